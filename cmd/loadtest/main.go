package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/logger"
)

type Config struct {
	Sources   int
	Lines     int
	Vocab     int
	Consumers int
	Capacity  int
	Runs      int
}

type Stats struct {
	durations []time.Duration
	lines     int
	keys      int
}

func main() {
	sources := flag.Int("sources", 8, "number of generated source files (producers)")
	lines := flag.Int("lines", 100000, "lines per source")
	vocab := flag.Int("vocab", 5000, "distinct words to draw lines from")
	consumers := flag.Int("consumers", 4, "number of consumers")
	capacity := flag.Int("capacity", config.DefaultQueueCapacity, "shard queue capacity")
	runs := flag.Int("runs", 5, "number of indexing runs")
	flag.Parse()

	logger.Setup("warn", "text", os.Stderr)
	if *runs < 1 {
		*runs = 1
	}

	cfg := Config{
		Sources:   *sources,
		Lines:     *lines,
		Vocab:     *vocab,
		Consumers: *consumers,
		Capacity:  *capacity,
		Runs:      *runs,
	}

	fmt.Println("=== Word Index Load Test ===")
	fmt.Printf("Sources:     %d x %d lines\n", cfg.Sources, cfg.Lines)
	fmt.Printf("Vocabulary:  %d words\n", cfg.Vocab)
	fmt.Printf("Consumers:   %d (capacity %d)\n", cfg.Consumers, cfg.Capacity)
	fmt.Printf("Runs:        %d\n", cfg.Runs)
	fmt.Println()

	dir, err := os.MkdirTemp("", "wordindex-loadtest-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating work dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	paths, err := generateSources(dir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generating sources: %v\n", err)
		os.Exit(1)
	}

	stats, err := runLoadTest(cfg, paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	printReport(stats, cfg)
}

func generateSources(dir string, cfg Config) ([]string, error) {
	words := make([]string, cfg.Vocab)
	for i := range words {
		words[i] = fmt.Sprintf("word%05d", i)
	}
	paths := make([]string, 0, cfg.Sources)
	for i := 1; i <= cfg.Sources; i++ {
		var b strings.Builder
		for j := 0; j < cfg.Lines; j++ {
			b.WriteString(words[rand.IntN(len(words))])
			b.WriteByte('\n')
		}
		path := filepath.Join(dir, fmt.Sprintf("foo%d.txt", i))
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func runLoadTest(cfg Config, paths []string) (*Stats, error) {
	stats := &Stats{durations: make([]time.Duration, 0, cfg.Runs)}
	engine := indexer.NewEngine(config.IndexerConfig{
		Consumers:     cfg.Consumers,
		QueueCapacity: cfg.Capacity,
		KeyMode:       config.KeyModeExact,
	}, indexer.Options{})

	fmt.Print("Running")
	for r := 0; r < cfg.Runs; r++ {
		start := time.Now()
		idx, err := engine.Run(context.Background(), paths)
		if err != nil {
			return nil, err
		}
		stats.durations = append(stats.durations, time.Since(start))
		stats.lines = idx.Occurrences()
		stats.keys = idx.Len()
		fmt.Print(".")
	}
	fmt.Println(" done!")
	fmt.Println()
	return stats, nil
}

func printReport(stats *Stats, cfg Config) {
	durations := append([]time.Duration(nil), stats.durations...)
	sort.Slice(durations, func(i, j int) bool {
		return durations[i] < durations[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	avg := sum / time.Duration(len(durations))

	fmt.Println("=== Results ===")
	fmt.Printf("Lines/run:   %d\n", stats.lines)
	fmt.Printf("Keys:        %d\n", stats.keys)
	fmt.Printf("Lines/sec:   %.0f\n", float64(stats.lines)/avg.Seconds())

	fmt.Println()
	fmt.Println("=== Run Duration ===")
	fmt.Printf("Min:    %s\n", durations[0])
	fmt.Printf("Avg:    %s\n", avg)
	fmt.Printf("P50:    %s\n", percentile(durations, 50))
	fmt.Printf("P90:    %s\n", percentile(durations, 90))
	fmt.Printf("Max:    %s\n", durations[len(durations)-1])

	if want := cfg.Sources * cfg.Lines; stats.lines != want {
		fmt.Println()
		fmt.Printf("WARNING: indexed %d occurrences, expected %d\n", stats.lines, want)
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
