// Package sink delivers a finished index to its destinations: a text stream
// in the canonical rendering, and optionally a Kafka topic with one JSON
// event per key.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/metrics"
)

// Index is the read side of a finished index.
type Index interface {
	Render(w io.Writer) error
	Entries() []index.Entry
}

// Sink writes a finished index somewhere.
type Sink interface {
	Name() string
	Write(ctx context.Context, idx Index) error
}

// Text renders the index to an io.Writer.
type Text struct {
	w       io.Writer
	metrics *metrics.Metrics
}

func NewText(w io.Writer, m *metrics.Metrics) *Text {
	return &Text{w: w, metrics: m}
}

func (t *Text) Name() string { return "text" }

func (t *Text) Write(_ context.Context, idx Index) error {
	if err := idx.Render(t.w); err != nil {
		return err
	}
	if t.metrics != nil {
		if n, ok := idx.(interface{ Len() int }); ok {
			t.metrics.EntriesPublished.WithLabelValues(t.Name(), "ok").Add(float64(n.Len()))
		}
	}
	return nil
}

// Publisher sends a batch of events. *kafka.Producer implements it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// DefaultBatchSize bounds the events per PublishBatch call.
const DefaultBatchSize = 256

// Kafka publishes one event per key, keyed by the index key so all updates
// for a key land on the same partition.
type Kafka struct {
	pub       Publisher
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewKafka(pub Publisher, batchSize int, m *metrics.Metrics) *Kafka {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Kafka{
		pub:       pub,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger.WithComponent("kafka-sink"),
	}
}

func (k *Kafka) Name() string { return "kafka" }

// Write publishes entries in key order. It stops at the first failed batch;
// batches already sent stay published.
func (k *Kafka) Write(ctx context.Context, idx Index) error {
	entries := idx.Entries()
	sent := 0
	for start := 0; start < len(entries); start += k.batchSize {
		end := min(start+k.batchSize, len(entries))
		batch := make([]kafka.Event, 0, end-start)
		for _, e := range entries[start:end] {
			batch = append(batch, kafka.Event{Key: e.Key, Value: e})
		}
		if err := k.pub.PublishBatch(ctx, batch); err != nil {
			k.count("error", len(entries)-sent)
			return fmt.Errorf("publishing entries %d..%d: %w", start, end, err)
		}
		sent += len(batch)
		k.count("ok", len(batch))
	}
	k.logger.Info("index published", "entries", sent)
	return nil
}

func (k *Kafka) count(status string, n int) {
	if k.metrics == nil || n == 0 {
		return
	}
	k.metrics.EntriesPublished.WithLabelValues(k.Name(), status).Add(float64(n))
}

// WriteAll runs every sink in order and returns the first error.
func WriteAll(ctx context.Context, idx Index, sinks ...Sink) error {
	for _, s := range sinks {
		if err := s.Write(ctx, idx); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return nil
}
