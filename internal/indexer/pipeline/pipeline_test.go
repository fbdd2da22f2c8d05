package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordindex/pkg/metrics"
)

// memSource serves fixed lines, optionally failing after failAfter lines.
type memSource struct {
	id        string
	lines     []string
	failAfter int
}

func (s *memSource) ID() string { return s.id }

func (s *memSource) Each(ctx context.Context, fn source.LineFunc) error {
	for i, l := range s.lines {
		if s.failAfter > 0 && i == s.failAfter {
			return errors.New("device error")
		}
		if err := fn(i+1, l); err != nil {
			return err
		}
	}
	return nil
}

func (s *memSource) Close() error { return nil }

type memOpener struct {
	sources   map[string][]string
	failAfter map[string]int
}

func (o memOpener) Open(_ context.Context, id string) (source.Source, error) {
	lines, ok := o.sources[id]
	if !ok {
		return nil, fmt.Errorf("opening %s: %w", id, apperrors.ErrSourceUnavailable)
	}
	return &memSource{id: id, lines: lines, failAfter: o.failAfter[id]}, nil
}

func newShared(t *testing.T, producers, consumers, capacity int, opener source.Opener) *Shared {
	t.Helper()
	router, err := shard.NewRouter[Message](consumers, capacity)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &Shared{
		Router:  router,
		Counter: NewCounter(producers),
		Index:   index.NewSharedIndex(),
		Opener:  opener,
		KeyMode: tokenizer.Exact,
	}
}

// runAll starts every consumer then every producer and waits, failing the
// test if the run does not terminate.
func runAll(t *testing.T, sh *Shared, sources []string) ([]*Producer, []*Consumer) {
	t.Helper()
	return runAllContext(t, context.Background(), sh, sources)
}

func runAllContext(t *testing.T, ctx context.Context, sh *Shared, sources []string) ([]*Producer, []*Consumer) {
	t.Helper()
	consumers := make([]*Consumer, sh.Router.NumShards())
	producers := make([]*Producer, len(sources))
	errs := make(chan error, len(consumers)+len(producers))
	var wg sync.WaitGroup
	for i := range consumers {
		consumers[i] = NewConsumer(ConsumerTask{Shard: i}, sh)
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			errs <- c.Run(ctx)
		}(consumers[i])
	}
	for i, src := range sources {
		producers[i] = NewProducer(ProducerTask{ID: i + 1, Source: src}, sh)
		wg.Add(1)
		go func(p *Producer) {
			defer wg.Done()
			errs <- p.Run(ctx)
		}(producers[i])
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not terminate")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("task error: %v", err)
		}
	}
	return producers, consumers
}

func sortedOccurrences(occ []index.Occurrence) []index.Occurrence {
	out := append([]index.Occurrence(nil), occ...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Line < out[j].Line
	})
	return out
}

func TestMessageVariants(t *testing.T) {
	empty := Data(index.Record{})
	if empty.IsSentinel() {
		t.Error("data with empty fields must not be a sentinel")
	}
	if _, ok := empty.Record(); !ok {
		t.Error("Data(...).Record() should report ok")
	}
	s := Sentinel()
	if !s.IsSentinel() {
		t.Error("Sentinel() should be a sentinel")
	}
	if _, ok := s.Record(); ok {
		t.Error("sentinel should carry no record")
	}
	var zero Message
	if zero.IsSentinel() || zero.Kind() != 0 {
		t.Error("zero Message must be neither variant")
	}
	if _, ok := zero.Record(); ok {
		t.Error("zero Message must not carry a record")
	}
	if KindData.String() != "data" || KindSentinel.String() != "sentinel" || Kind(0).String() != "invalid" {
		t.Error("unexpected Kind strings")
	}
}

func TestCounterSingleLastEdge(t *testing.T) {
	const producers = 64
	c := NewCounter(producers)
	var lasts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last, err := c.Done()
			if err != nil {
				t.Errorf("Done: %v", err)
			}
			if last {
				lasts.Add(1)
			}
		}()
	}
	wg.Wait()
	if lasts.Load() != 1 {
		t.Errorf("%d producers observed the last edge, want 1", lasts.Load())
	}
	if c.Active() != 0 {
		t.Errorf("Active = %d, want 0", c.Active())
	}
}

func TestCounterUnderflowIsViolation(t *testing.T) {
	c := NewCounter(1)
	if last, err := c.Done(); !last || err != nil {
		t.Fatalf("Done = %v, %v", last, err)
	}
	if _, err := c.Done(); !apperrors.Is(err, apperrors.ErrProtocolViolation) {
		t.Errorf("second Done err = %v, want ErrProtocolViolation", err)
	}
}

func TestScenarioSameKeyTwoSources(t *testing.T) {
	sh := newShared(t, 2, 1, 10, memOpener{sources: map[string][]string{
		"f1": {"apple"},
		"f2": {"apple"},
	}})
	runAll(t, sh, []string{"f1", "f2"})

	occ, ok := sh.Index.Lookup("apple")
	if !ok {
		t.Fatal("apple missing")
	}
	want := []index.Occurrence{{SourceID: "f1", Line: 1}, {SourceID: "f2", Line: 1}}
	if got := sortedOccurrences(occ); !reflect.DeepEqual(got, want) {
		t.Errorf("apple = %v, want %v", got, want)
	}
	if sh.Index.Len() != 1 {
		t.Errorf("Len = %d, want 1", sh.Index.Len())
	}
}

func TestScenarioSingleQueueOrder(t *testing.T) {
	sh := newShared(t, 1, 1, 10, memOpener{sources: map[string][]string{
		"src": {"a", "b", "a"},
	}})
	runAll(t, sh, []string{"src"})

	a, _ := sh.Index.Lookup("a")
	if want := []index.Occurrence{{SourceID: "src", Line: 1}, {SourceID: "src", Line: 3}}; !reflect.DeepEqual(a, want) {
		t.Errorf("a = %v, want %v", a, want)
	}
	b, _ := sh.Index.Lookup("b")
	if want := []index.Occurrence{{SourceID: "src", Line: 2}}; !reflect.DeepEqual(b, want) {
		t.Errorf("b = %v, want %v", b, want)
	}
}

func TestScenarioUnavailableSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	sh := newShared(t, 2, 1, 10, memOpener{sources: map[string][]string{
		"good": {"x"},
	}})
	sh.Metrics = metrics.New(reg)
	producers, _ := runAll(t, sh, []string{"missing", "good"})

	if !producers[0].Stats().Unavailable {
		t.Error("producer for missing source should report Unavailable")
	}
	if sh.Index.Len() != 1 {
		t.Fatalf("Len = %d, want 1", sh.Index.Len())
	}
	if _, ok := sh.Index.Lookup("x"); !ok {
		t.Error("x missing")
	}
	if got := testutil.ToFloat64(sh.Metrics.SourcesUnavailable); got != 1 {
		t.Errorf("sources unavailable = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sh.Metrics.SentinelsSent); got != 1 {
		t.Errorf("sentinels sent = %v, want 1", got)
	}
}

func TestAllSourcesUnavailableStillTerminates(t *testing.T) {
	sh := newShared(t, 3, 4, 1, memOpener{sources: map[string][]string{}})
	producers, consumers := runAll(t, sh, []string{"a", "b", "c"})
	if sh.Index.Len() != 0 {
		t.Errorf("Len = %d, want 0", sh.Index.Len())
	}
	lasts := 0
	for _, p := range producers {
		if p.Stats().Last {
			lasts++
		}
	}
	if lasts != 1 {
		t.Errorf("%d producers broadcast sentinels, want 1", lasts)
	}
	for _, c := range consumers {
		if c.Stats().Merged != 0 {
			t.Errorf("consumer merged %d records from no input", c.Stats().Merged)
		}
	}
}

func TestEmptyLineIsIndexedNotSentinel(t *testing.T) {
	sh := newShared(t, 1, 2, 10, memOpener{sources: map[string][]string{
		"f": {"", "word", ""},
	}})
	runAll(t, sh, []string{"f"})
	occ, ok := sh.Index.Lookup("")
	if !ok {
		t.Fatal("empty key missing from index")
	}
	if want := []index.Occurrence{{SourceID: "f", Line: 1}, {SourceID: "f", Line: 3}}; !reflect.DeepEqual(occ, want) {
		t.Errorf("empty key = %v, want %v", occ, want)
	}
}

func TestReadErrorKeepsEmittedRecords(t *testing.T) {
	sh := newShared(t, 1, 1, 10, memOpener{
		sources:   map[string][]string{"f": {"a", "b", "c"}},
		failAfter: map[string]int{"f": 2},
	})
	producers, _ := runAll(t, sh, []string{"f"})
	if producers[0].Stats().ReadErr == nil {
		t.Error("expected ReadErr to be recorded")
	}
	if sh.Index.Occurrences() != 2 {
		t.Errorf("Occurrences = %d, want 2", sh.Index.Occurrences())
	}
}

func TestKeyModeAppliedByProducer(t *testing.T) {
	sh := newShared(t, 1, 1, 10, memOpener{sources: map[string][]string{
		"f": {"Apple\r", " apple "},
	}})
	sh.KeyMode = tokenizer.Fold
	runAll(t, sh, []string{"f"})
	occ, ok := sh.Index.Lookup("apple")
	if !ok || len(occ) != 2 {
		t.Errorf("apple = %v (%v), want two occurrences", occ, ok)
	}
}

func TestNoLossManyProducersSmallQueues(t *testing.T) {
	const producers, consumers, lines = 12, 5, 400
	sources := make(map[string][]string, producers)
	ids := make([]string, 0, producers)
	for p := 0; p < producers; p++ {
		id := fmt.Sprintf("foo%d.txt", p+1)
		ids = append(ids, id)
		for i := 0; i < lines; i++ {
			sources[id] = append(sources[id], fmt.Sprintf("w%d", (i*7+p)%97))
		}
	}
	sh := newShared(t, producers, consumers, 1, memOpener{sources: sources})
	_, cons := runAll(t, sh, ids)

	if got := sh.Index.Occurrences(); got != producers*lines {
		t.Fatalf("Occurrences = %d, want %d", got, producers*lines)
	}
	for _, e := range sh.Index.Entries() {
		seen := make(map[index.Occurrence]bool, len(e.Occurrences))
		for _, o := range e.Occurrences {
			if seen[o] {
				t.Fatalf("%s: duplicate occurrence %v", e.Key, o)
			}
			seen[o] = true
			if sources[o.SourceID][o.Line-1] != e.Key {
				t.Fatalf("%s: occurrence %v points at %q", e.Key, o, sources[o.SourceID][o.Line-1])
			}
		}
	}
	merged := 0
	for _, c := range cons {
		merged += c.Stats().Merged
		// A consumer may observe an empty queue with no producers left
		// before the broadcast reaches it, so zero sentinels is valid.
		if c.Stats().Sentinels > 1 {
			t.Errorf("consumer saw %d sentinels, want at most 1", c.Stats().Sentinels)
		}
	}
	if merged != producers*lines {
		t.Errorf("merged = %d, want %d", merged, producers*lines)
	}
}

func TestKeysStayOnOneShard(t *testing.T) {
	const consumers = 4
	sh := newShared(t, 2, consumers, 2, memOpener{sources: map[string][]string{
		"a": {"x", "y", "z", "x"},
		"b": {"y", "x", "q"},
	}})
	// Route every key twice; it must land on the same shard each time.
	for _, k := range []string{"x", "y", "z", "q"} {
		first, _ := sh.Router.Route(k)
		again, _ := sh.Router.Route(k)
		if first != again {
			t.Errorf("key %q routed to %d then %d", k, first, again)
		}
	}
	runAll(t, sh, []string{"a", "b"})
	if sh.Index.Occurrences() != 7 {
		t.Errorf("Occurrences = %d, want 7", sh.Index.Occurrences())
	}
}

func TestTaskLogsCarryRunID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	logger.Setup("debug", "text", &buf)

	opener := memOpener{sources: map[string][]string{"f1": {"a", "b"}}}
	sh := newShared(t, 1, 2, 1, opener)
	ctx := logger.WithRunID(context.Background(), "run-42")
	runAllContext(t, ctx, sh, []string{"f1"})

	var consumerLines, producerLines int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		switch {
		case strings.Contains(line, "component=consumer"):
			consumerLines++
		case strings.Contains(line, "component=producer"):
			producerLines++
		default:
			continue
		}
		if !strings.Contains(line, "run_id=run-42") {
			t.Errorf("log line without run id: %s", line)
		}
	}
	if consumerLines != 2 || producerLines == 0 {
		t.Errorf("consumer lines = %d, producer lines = %d\n%s", consumerLines, producerLines, buf.String())
	}
}
