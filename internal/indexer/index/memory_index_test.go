package index

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
)

func TestAddInsertThenAppend(t *testing.T) {
	s := NewSharedIndex()
	if !s.Add(Record{SourceID: "src", Line: 1, Key: "a"}) {
		t.Error("first Add of a should create the key")
	}
	if !s.Add(Record{SourceID: "src", Line: 2, Key: "b"}) {
		t.Error("first Add of b should create the key")
	}
	if s.Add(Record{SourceID: "src", Line: 3, Key: "a"}) {
		t.Error("second Add of a should append")
	}

	got, ok := s.Lookup("a")
	if !ok {
		t.Fatal("a missing")
	}
	want := []Occurrence{{"src", 1}, {"src", 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("a = %v, want %v", got, want)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if s.Occurrences() != 3 {
		t.Errorf("Occurrences = %d, want 3", s.Occurrences())
	}
	if _, ok := s.Lookup("c"); ok {
		t.Error("Lookup(c) should miss")
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	s := NewSharedIndex()
	s.Add(Record{SourceID: "f", Line: 1, Key: "k"})
	got, _ := s.Lookup("k")
	got[0].Line = 99
	again, _ := s.Lookup("k")
	if again[0].Line != 1 {
		t.Error("mutating a Lookup result changed the index")
	}
}

func TestEntriesLexicographic(t *testing.T) {
	s := NewSharedIndex()
	for i, k := range []string{"pear", "Apple", "apple", "", "banana", "apple pie"} {
		s.Add(Record{SourceID: "f", Line: i + 1, Key: k})
	}
	var keys []string
	for _, e := range s.Entries() {
		keys = append(keys, e.Key)
	}
	want := []string{"", "Apple", "apple", "apple pie", "banana", "pear"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %q, want %q", keys, want)
	}
}

func TestSortedInsertionStaysOrdered(t *testing.T) {
	s := NewSharedIndex()
	const n = 20000
	for i := 0; i < n; i++ {
		s.Add(Record{SourceID: "f", Line: i + 1, Key: fmt.Sprintf("key-%06d", i)})
	}
	entries := s.Entries()
	if len(entries) != n {
		t.Fatalf("len = %d, want %d", len(entries), n)
	}
	if !sort.SliceIsSorted(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key }) {
		t.Error("entries not sorted")
	}
}

func TestConcurrentWritersNoLoss(t *testing.T) {
	s := NewSharedIndex()
	const writers, perWriter = 8, 1000
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			src := fmt.Sprintf("src%d", w)
			for i := 0; i < perWriter; i++ {
				s.Add(Record{SourceID: src, Line: i + 1, Key: fmt.Sprintf("k%d", i%50)})
			}
		}(w)
	}
	wg.Wait()

	if s.Occurrences() != writers*perWriter {
		t.Fatalf("Occurrences = %d, want %d", s.Occurrences(), writers*perWriter)
	}
	if s.Len() != 50 {
		t.Fatalf("Len = %d, want 50", s.Len())
	}
	for _, e := range s.Entries() {
		if len(e.Occurrences) != writers*perWriter/50 {
			t.Errorf("%s has %d occurrences, want %d", e.Key, len(e.Occurrences), writers*perWriter/50)
		}
	}
}

func TestRender(t *testing.T) {
	s := NewSharedIndex()
	s.Add(Record{SourceID: "f1", Line: 1, Key: "apple"})
	s.Add(Record{SourceID: "f2", Line: 4, Key: "apple"})
	s.Add(Record{SourceID: "f1", Line: 2, Key: "zebra"})

	var buf bytes.Buffer
	if err := s.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "apple f1, 1; f2, 4;\nzebra f1, 2;\n"
	if buf.String() != want {
		t.Errorf("Render = %q, want %q", buf.String(), want)
	}
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewSharedIndex().Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Render of empty index = %q", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderWriteError(t *testing.T) {
	s := NewSharedIndex()
	s.Add(Record{SourceID: "f", Line: 1, Key: "x"})
	if err := s.Render(failingWriter{}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestFormatEntry(t *testing.T) {
	got := FormatEntry(Entry{Key: "x", Occurrences: []Occurrence{{"a.txt", 3}, {"b.txt", 10}}})
	if want := "x a.txt, 3; b.txt, 10;"; got != want {
		t.Errorf("FormatEntry = %q, want %q", got, want)
	}
}

// BenchmarkSharedIndexAdd measures insert-or-append throughput.
func BenchmarkSharedIndexAdd(b *testing.B) {
	s := NewSharedIndex()
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = fmt.Sprintf("word-%d", i)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Add(Record{SourceID: "bench", Line: i + 1, Key: keys[i%len(keys)]})
	}
}

// BenchmarkSharedIndexAddParallel measures contention between writers.
func BenchmarkSharedIndexAddParallel(b *testing.B) {
	s := NewSharedIndex()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			s.Add(Record{SourceID: "bench", Line: i + 1, Key: fmt.Sprintf("word-%d", i%512)})
			i++
		}
	})
}
