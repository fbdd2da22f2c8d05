package indexer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/tracing"
)

// Options carries the optional collaborators of an Engine.
type Options struct {
	// Opener resolves source identifiers. Defaults to a source.Mux with no
	// Redis client.
	Opener source.Opener
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Tracing records a span tree per run and logs it at debug level.
	Tracing bool
}

// Summary describes a finished run.
type Summary struct {
	RunID       string
	Producers   int
	Consumers   int
	Lines       int
	Merged      int
	Unavailable int
	ReadErrors  int
	Keys        int
	Occurrences int
	Duration    time.Duration
}

// Engine runs one indexing pass: m producers feed n shard queues drained by
// n consumers into a single shared index.
type Engine struct {
	cfg     config.IndexerConfig
	opener  source.Opener
	metrics *metrics.Metrics
	tracing bool
	last    Summary
}

func NewEngine(cfg config.IndexerConfig, opts Options) *Engine {
	opener := opts.Opener
	if opener == nil {
		opener = source.NewMux(source.Options{})
	}
	return &Engine{
		cfg:     cfg,
		opener:  opener,
		metrics: opts.Metrics,
		tracing: opts.Tracing,
	}
}

// Run indexes every source, one producer per source, and returns the index
// once all producers and consumers have finished. Invalid task counts or
// capacity fail with ErrConfiguration before any queue or task exists.
// Unavailable sources are skipped. ctx bounds source I/O only: a cancelled
// run still lets every task finish, then fails instead of returning a
// partial index.
func (e *Engine) Run(ctx context.Context, sources []string) (*index.SharedIndex, error) {
	m, n, capacity := len(sources), e.cfg.Consumers, e.cfg.QueueCapacity
	if m <= 0 {
		return nil, apperrors.Configf("at least one producer is required, got %d", m)
	}
	if n <= 0 {
		return nil, apperrors.Configf("at least one consumer is required, got %d", n)
	}
	if capacity < 1 {
		return nil, apperrors.Configf("queue capacity must be at least 1, got %d", capacity)
	}
	mode, err := tokenizer.ParseMode(e.cfg.KeyMode)
	if err != nil {
		return nil, apperrors.Configf("%v", err)
	}

	start := time.Now()
	runID := strconv.FormatInt(start.UnixNano(), 36)
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "engine")

	if e.tracing {
		var root *tracing.Span
		ctx, root = tracing.StartSpan(ctx, "run", runID)
		root.SetAttr("producers", m)
		root.SetAttr("consumers", n)
		defer func() {
			root.End()
			root.Log(log)
		}()
	}

	router, err := shard.NewRouter[pipeline.Message](n, capacity)
	if err != nil {
		return nil, err
	}
	shared := &pipeline.Shared{
		Router:  router,
		Counter: pipeline.NewCounter(m),
		Index:   index.NewSharedIndex(),
		Opener:  e.opener,
		KeyMode: mode,
		Metrics: e.metrics,
	}
	if e.metrics != nil {
		e.metrics.ActiveProducers.Set(float64(m))
	}

	log.Info("starting run",
		"producers", m,
		"consumers", n,
		"queue_capacity", capacity,
		"key_mode", string(mode),
	)

	consumers := make([]*pipeline.Consumer, n)
	producers := make([]*pipeline.Producer, m)

	// Producer and consumer errors are protocol violations; the group does
	// not cancel ctx on them, since every task must still run to completion
	// for the remaining consumers to terminate.
	var g errgroup.Group
	for i := 0; i < n; i++ {
		c := pipeline.NewConsumer(pipeline.ConsumerTask{Shard: i}, shared)
		consumers[i] = c
		g.Go(func() error {
			cctx, span := tracing.StartChildSpan(ctx, "consume")
			defer span.End()
			err := c.Run(cctx)
			st := c.Stats()
			span.SetAttr("shard", i)
			span.SetAttr("merged", st.Merged)
			return err
		})
	}
	for i, src := range sources {
		p := pipeline.NewProducer(pipeline.ProducerTask{ID: i + 1, Source: src}, shared)
		producers[i] = p
		g.Go(func() error {
			pctx, span := tracing.StartChildSpan(ctx, "produce")
			defer span.End()
			err := p.Run(pctx)
			st := p.Stats()
			span.SetAttr("source", src)
			span.SetAttr("lines", st.Lines)
			span.SetAttr("unavailable", st.Unavailable)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("indexing run %s: %w", runID, err)
	}
	if err := ctx.Err(); err != nil {
		log.Warn("run interrupted, discarding partial index", "error", err)
		return nil, fmt.Errorf("indexing run %s interrupted: %w", runID, err)
	}

	sum := Summary{
		RunID:       runID,
		Producers:   m,
		Consumers:   n,
		Keys:        shared.Index.Len(),
		Occurrences: shared.Index.Occurrences(),
		Duration:    time.Since(start),
	}
	for _, p := range producers {
		st := p.Stats()
		sum.Lines += st.Lines
		if st.Unavailable {
			sum.Unavailable++
		}
		if st.ReadErr != nil {
			sum.ReadErrors++
		}
	}
	for _, c := range consumers {
		sum.Merged += c.Stats().Merged
	}
	e.last = sum

	if e.metrics != nil {
		e.metrics.IndexKeys.Set(float64(sum.Keys))
		e.metrics.IndexOccurrences.Set(float64(sum.Occurrences))
		e.metrics.RunDuration.Observe(sum.Duration.Seconds())
	}
	log.Info("run complete",
		"lines", sum.Lines,
		"keys", sum.Keys,
		"occurrences", sum.Occurrences,
		"unavailable_sources", sum.Unavailable,
		"read_errors", sum.ReadErrors,
		"duration_ms", sum.Duration.Milliseconds(),
	)
	return shared.Index, nil
}

// LastSummary returns the summary of the most recent successful Run.
func (e *Engine) LastSummary() Summary {
	return e.last
}
