// Command wordindex builds an index of every line of its sources, mapping
// each distinct line to the places it occurs, and prints it in key order.
//
//	wordindex -producers 3 -consumers 2          # reads foo1.txt..foo3.txt
//	wordindex -consumers 4 a.txt b.txt redis:log  # explicit sources
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/sink"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/redis"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("wordindex", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	producers := fs.Int("producers", 0, "number of producers when sources come from the pattern")
	consumers := fs.Int("consumers", 0, "number of consumers (one shard queue each)")
	capacity := fs.Int("capacity", 0, "bound of every shard queue")
	pattern := fs.String("pattern", "", "source name pattern with one %d verb")
	keyMode := fs.String("key-mode", "", "key normalization: exact, trim or fold")
	outPath := fs.String("out", "", "write the index to this file instead of stdout")
	interactive := fs.Bool("interactive", false, "prompt for producer and consumer counts")
	if err := fs.Parse(args); err != nil {
		return apperrors.ExitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return apperrors.ExitFailure
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, stderr)

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["producers"] {
		cfg.Indexer.SetProducers(*producers)
	}
	if set["consumers"] {
		cfg.Indexer.Consumers = *consumers
	}
	if set["capacity"] {
		cfg.Indexer.QueueCapacity = *capacity
	}
	if set["pattern"] {
		cfg.Indexer.SourcePattern = *pattern
	}
	if set["key-mode"] {
		cfg.Indexer.KeyMode = *keyMode
	}
	if fs.NArg() > 0 {
		cfg.Indexer.Sources = fs.Args()
		if !cfg.Indexer.ProducersSet() {
			cfg.Indexer.Producers = fs.NArg()
		}
	}

	in := bufio.NewReader(stdin)
	if *interactive {
		p, c, err := promptCounts(in, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return apperrors.ExitUsage
		}
		cfg.Indexer.SetProducers(p)
		cfg.Indexer.Consumers = c
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}
	sources, err := cfg.Indexer.ResolveSources()
	if err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	var state health.RunState
	checker.Register("run", state.Check)

	opts := source.Options{PageSize: cfg.Redis.PageSize, Stdin: in}
	if needsRedis(sources) {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			// redis: sources become unavailable and are skipped.
			slog.Warn("redis unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer client.Close()
			opts.Redis = client
			checker.Register("redis", health.PingCheck(client))
		}
	}

	reg := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled || cfg.Metrics.Textfile != "" {
		m = metrics.New(reg)
	}
	if cfg.Metrics.Enabled {
		shutdown, err := metrics.StartServer(cfg.Metrics.Port, reg,
			metrics.Route{Pattern: "/healthz", Handler: checker.Handler()})
		if err != nil {
			return fail(err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	engine := indexer.NewEngine(cfg.Indexer, indexer.Options{
		Opener:  source.NewMux(opts),
		Metrics: m,
		Tracing: cfg.Tracing.Enabled,
	})
	idx, err := engine.Run(ctx, sources)
	state.Finish(err)
	if err != nil {
		return fail(err)
	}

	out := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fail(apperrors.Newf(apperrors.ErrSinkUnavailable, apperrors.ExitFailure, "creating %s: %v", *outPath, err))
		}
		defer f.Close()
		out = f
	}
	sinks := []sink.Sink{sink.NewText(out, m)}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		defer producer.Close()
		sinks = append(sinks, sink.NewKafka(producer, sink.DefaultBatchSize, m))
	}
	if err := sink.WriteAll(ctx, idx, sinks...); err != nil {
		return fail(err)
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			slog.Warn("writing metrics textfile failed", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	return apperrors.ExitOK
}

func needsRedis(sources []string) bool {
	for _, s := range sources {
		if strings.HasPrefix(s, source.RedisPrefix) {
			return true
		}
	}
	return false
}

func fail(err error) int {
	slog.Error("wordindex failed", "error", err)
	return apperrors.ExitCode(err)
}
