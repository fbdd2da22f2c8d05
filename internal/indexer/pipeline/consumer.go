package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/logger"
)

// ConsumerTask names the shard one consumer owns.
type ConsumerTask struct {
	Shard int
}

// ConsumerStats summarizes a finished consumer.
type ConsumerStats struct {
	Merged    int
	Sentinels int
	Invalid   int
}

// Consumer drains one shard queue into the shared index.
type Consumer struct {
	task   ConsumerTask
	shared *Shared
	stats  ConsumerStats
	logger *slog.Logger
}

func NewConsumer(task ConsumerTask, shared *Shared) *Consumer {
	return &Consumer{
		task:   task,
		shared: shared,
		logger: slog.Default().With("component", "consumer", "shard_id", task.Shard),
	}
}

// Run consumes while the queue is non-empty or any producer is still
// running. The predicate is re-checked after every Get: a sentinel only
// wakes the consumer, it does not mean the queue is drained. ctx only
// supplies the run's logger; a consumer is never cancelled, since producers
// still finishing would block on its full queue.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger = logger.FromContext(ctx).With("component", "consumer", "shard_id", c.task.Shard)
	q, err := c.shared.Router.Queue(c.task.Shard)
	if err != nil {
		return fmt.Errorf("consumer for shard %d: %w", c.task.Shard, err)
	}
	label := strconv.Itoa(c.task.Shard)
	m := c.shared.Metrics

	for !q.IsEmpty() || c.shared.Counter.Active() > 0 {
		msg := q.Get()
		if m != nil {
			m.QueueDepth.WithLabelValues(label).Set(float64(q.Len()))
		}
		if msg.IsSentinel() {
			c.stats.Sentinels++
			continue
		}
		rec, ok := msg.Record()
		if !ok {
			c.stats.Invalid++
			c.logger.Error("discarding message with invalid kind", "kind", msg.Kind())
			continue
		}
		c.shared.Index.Add(rec)
		c.stats.Merged++
		if m != nil {
			m.RecordsConsumed.WithLabelValues(label).Inc()
		}
	}
	c.logger.Debug("consumer finished",
		"merged", c.stats.Merged,
		"sentinels", c.stats.Sentinels,
	)
	return nil
}

// Stats is valid once Run has returned.
func (c *Consumer) Stats() ConsumerStats {
	return c.stats
}
