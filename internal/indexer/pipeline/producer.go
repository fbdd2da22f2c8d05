package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/metrics"
)

// Shared is the state every task of one run holds a handle to.
type Shared struct {
	Router  *shard.Router[Message]
	Counter *Counter
	Index   *index.SharedIndex
	Opener  source.Opener
	KeyMode tokenizer.Mode
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// ProducerTask names the source one producer scans.
type ProducerTask struct {
	ID     int
	Source string
}

// ProducerStats summarizes a finished producer.
type ProducerStats struct {
	Lines       int
	Unavailable bool
	ReadErr     error
	Last        bool
}

// Producer scans one source into the shard queues.
type Producer struct {
	task   ProducerTask
	shared *Shared
	stats  ProducerStats
	logger *slog.Logger
}

func NewProducer(task ProducerTask, shared *Shared) *Producer {
	return &Producer{
		task:   task,
		shared: shared,
		logger: slog.Default().With("component", "producer", "producer_id", task.ID, "source", task.Source),
	}
}

// Run emits one record per line and then performs the completion step. The
// completion step runs even when the source cannot be opened or fails part
// way; only a counter violation is returned as an error. ctx bounds source
// I/O only, never a queue Put.
func (p *Producer) Run(ctx context.Context) (err error) {
	p.logger = logger.FromContext(ctx).With("component", "producer", "producer_id", p.task.ID, "source", p.task.Source)
	defer func() {
		if cerr := p.complete(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	src, err := p.shared.Opener.Open(ctx, p.task.Source)
	if err != nil {
		p.stats.Unavailable = true
		if p.shared.Metrics != nil {
			p.shared.Metrics.SourcesUnavailable.Inc()
		}
		p.logger.Warn("source unavailable, skipping", "error", err)
		return nil
	}
	defer src.Close()
	p.logger.Debug("source opened")

	readErr := src.Each(ctx, func(lineNo int, line string) error {
		p.emit(index.Record{
			SourceID: src.ID(),
			Line:     lineNo,
			Key:      tokenizer.Key(line, p.shared.KeyMode),
		})
		return nil
	})
	if readErr != nil {
		p.stats.ReadErr = readErr
		p.logger.Warn("source read failed, keeping records already emitted",
			"lines", p.stats.Lines,
			"error", readErr,
		)
	}
	p.logger.Debug("source exhausted", "lines", p.stats.Lines)
	return nil
}

func (p *Producer) emit(r index.Record) {
	shardID, q := p.shared.Router.Route(r.Key)
	q.Put(Data(r))
	p.stats.Lines++
	if m := p.shared.Metrics; m != nil {
		label := strconv.Itoa(shardID)
		m.RecordsProduced.WithLabelValues(label).Inc()
		m.QueueDepth.WithLabelValues(label).Set(float64(q.Len()))
	}
}

// complete decrements the counter and, if this producer was the last one
// running, puts a sentinel on every shard queue.
func (p *Producer) complete() error {
	last, err := p.shared.Counter.Done()
	if err != nil {
		p.logger.Error("completion step failed", "error", err)
		return fmt.Errorf("producer %d: %w", p.task.ID, err)
	}
	if m := p.shared.Metrics; m != nil {
		m.ActiveProducers.Set(float64(p.shared.Counter.Active()))
	}
	if !last {
		return nil
	}
	p.stats.Last = true
	p.shared.Router.Broadcast(Sentinel())
	if m := p.shared.Metrics; m != nil {
		m.SentinelsSent.Add(float64(p.shared.Router.NumShards()))
	}
	p.logger.Debug("last producer finished, sentinels broadcast", "shards", p.shared.Router.NumShards())
	return nil
}

// Stats is valid once Run has returned.
func (p *Producer) Stats() ProducerStats {
	return p.stats
}
