// Package shard provides hash-based shard routing for the word index. Each
// shard owns one bounded queue drained by exactly one consumer, and the
// Router dispatches every key to the queue its hash selects.
package shard

import (
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/queue"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
)

// Bucket maps key to a shard in [0, n). It is a pure function of (key, n)
// and is stable across processes because xxHash64 is unseeded.
func Bucket(key string, n int) (int, error) {
	if n <= 0 {
		return 0, apperrors.Configf("shard count must be positive, got %d", n)
	}
	return bucket(key, n), nil
}

func bucket(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}

// Router maps shard IDs to their queues.
type Router[T any] struct {
	queues    []*queue.Bounded[T]
	numShards int
	logger    *slog.Logger
}

// NewRouter creates numShards queues, each bounded to capacity.
func NewRouter[T any](numShards, capacity int) (*Router[T], error) {
	if numShards <= 0 {
		return nil, apperrors.Configf("shard count must be positive, got %d", numShards)
	}
	r := &Router[T]{
		queues:    make([]*queue.Bounded[T], numShards),
		numShards: numShards,
		logger:    slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < numShards; i++ {
		q, err := queue.New[T](capacity)
		if err != nil {
			return nil, fmt.Errorf("creating queue for shard %d: %w", i, err)
		}
		r.queues[i] = q
	}
	r.logger.Debug("shard router ready", "num_shards", numShards, "queue_capacity", capacity)
	return r, nil
}

// Route returns the shard ID and queue responsible for key.
func (r *Router[T]) Route(key string) (int, *queue.Bounded[T]) {
	id := bucket(key, r.numShards)
	return id, r.queues[id]
}

// Queue returns the queue owned by shardID.
func (r *Router[T]) Queue(shardID int) (*queue.Bounded[T], error) {
	if shardID < 0 || shardID >= r.numShards {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return r.queues[shardID], nil
}

// NumShards returns the number of shards managed by this router.
func (r *Router[T]) NumShards() int {
	return r.numShards
}

// Broadcast puts v on every shard queue in shard order. Each Put may block
// while that queue is full.
func (r *Router[T]) Broadcast(v T) {
	for _, q := range r.queues {
		q.Put(v)
	}
}

// Depths returns a snapshot of every queue's length, indexed by shard ID.
func (r *Router[T]) Depths() []int {
	out := make([]int, r.numShards)
	for i, q := range r.queues {
		out[i] = q.Len()
	}
	return out
}
