package index

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

// slot orders keys in the tree and points at the entry's arena handle.
type slot struct {
	key    string
	handle int
}

func slotLess(a, b slot) bool {
	return a.key < b.key
}

type entry struct {
	key         string
	occurrences []Occurrence
}

// SharedIndex maps each key to its occurrences. Entries live in an arena
// addressed by integer handle; a B-tree keyed by string keeps them in
// lexicographic order. Every Add holds the write lock for exactly one
// insert-or-append, so concurrent writers only contend for that section.
type SharedIndex struct {
	mu          sync.RWMutex
	tree        *btree.BTreeG[slot]
	arena       []entry
	occurrences int
}

func NewSharedIndex() *SharedIndex {
	return &SharedIndex{
		tree: btree.NewG[slot](btreeDegree, slotLess),
	}
}

// Add creates an entry for r.Key on first sight and appends the occurrence
// otherwise. It reports whether a new key was created.
func (s *SharedIndex) Add(r Record) bool {
	occ := Occurrence{SourceID: r.SourceID, Line: r.Line}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.occurrences++
	if found, ok := s.tree.Get(slot{key: r.Key}); ok {
		e := &s.arena[found.handle]
		e.occurrences = append(e.occurrences, occ)
		return false
	}
	handle := len(s.arena)
	s.arena = append(s.arena, entry{
		key:         r.Key,
		occurrences: []Occurrence{occ},
	})
	s.tree.ReplaceOrInsert(slot{key: r.Key, handle: handle})
	return true
}

// Lookup returns a copy of the occurrences recorded for key.
func (s *SharedIndex) Lookup(key string) ([]Occurrence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found, ok := s.tree.Get(slot{key: key})
	if !ok {
		return nil, false
	}
	src := s.arena[found.handle].occurrences
	out := make([]Occurrence, len(src))
	copy(out, src)
	return out, true
}

// Len returns the number of distinct keys.
func (s *SharedIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.arena)
}

// Occurrences returns the total number of occurrences across all keys.
func (s *SharedIndex) Occurrences() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.occurrences
}

// Ascend calls fn for every entry in key order until fn returns false. The
// entry's occurrence slice is shared with the index and must not be
// modified. The read lock is held for the whole walk.
func (s *SharedIndex) Ascend(fn func(Entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.tree.Ascend(func(sl slot) bool {
		e := s.arena[sl.handle]
		return fn(Entry{Key: e.key, Occurrences: e.occurrences})
	})
}

// Entries returns a deep copy of the index in key order.
func (s *SharedIndex) Entries() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.arena))
	s.mu.RUnlock()

	s.Ascend(func(e Entry) bool {
		occ := make([]Occurrence, len(e.Occurrences))
		copy(occ, e.Occurrences)
		entries = append(entries, Entry{Key: e.Key, Occurrences: occ})
		return true
	})
	return entries
}

// Render writes one line per key in lexicographic order:
//
//	<key> <source>, <line>; <source>, <line>;
func (s *SharedIndex) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var werr error
	s.Ascend(func(e Entry) bool {
		werr = writeEntry(bw, e)
		return werr == nil
	})
	if werr != nil {
		return fmt.Errorf("rendering index: %w", werr)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing rendered index: %w", err)
	}
	return nil
}

// FormatEntry renders a single entry without the trailing newline.
func FormatEntry(e Entry) string {
	buf := make([]byte, 0, len(e.Key)+len(e.Occurrences)*16)
	buf = appendEntry(buf, e)
	return string(buf)
}

func writeEntry(w *bufio.Writer, e Entry) error {
	buf := appendEntry(make([]byte, 0, len(e.Key)+len(e.Occurrences)*16), e)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

func appendEntry(buf []byte, e Entry) []byte {
	buf = append(buf, e.Key...)
	for _, o := range e.Occurrences {
		buf = append(buf, ' ')
		buf = append(buf, o.SourceID...)
		buf = append(buf, ", "...)
		buf = strconv.AppendInt(buf, int64(o.Line), 10)
		buf = append(buf, ';')
	}
	return buf
}
