package storage

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryVisitedSet is a VisitedSet held in process memory for a single session
type MemoryVisitedSet struct {
	urls  sync.Map // uri -> struct{}
	count atomic.Int64
}

// NewMemoryVisitedSet creates an empty set, optionally pre-seeded with URLs
func NewMemoryVisitedSet(seed ...string) *MemoryVisitedSet {
	s := &MemoryVisitedSet{}
	for _, u := range seed {
		_, _ = s.MarkVisited(u)
	}
	return s
}

// MarkVisited implements the VisitedSet interface
func (s *MemoryVisitedSet) MarkVisited(uri string) (bool, error) {
	_, loaded := s.urls.LoadOrStore(uri, struct{}{})
	if loaded {
		return false, nil
	}
	s.count.Add(1)
	return true, nil
}

// Contains implements the VisitedSet interface
func (s *MemoryVisitedSet) Contains(uri string) (bool, error) {
	_, ok := s.urls.Load(uri)
	return ok, nil
}

// Count implements the VisitedSet interface
func (s *MemoryVisitedSet) Count() (int, error) {
	return int(s.count.Load()), nil
}

// WriteVisitedLog writes the set's URLs, sorted, one per line
func (s *MemoryVisitedSet) WriteVisitedLog(filePath string) error {
	var urls []string
	s.urls.Range(func(key, _ any) bool {
		urls = append(urls, key.(string))
		return true
	})
	sort.Strings(urls)

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create visited log '%s': %w", filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, u := range urls {
		if _, err := writer.WriteString(u + "\n"); err != nil {
			return fmt.Errorf("write visited log '%s': %w", filePath, err)
		}
	}
	return writer.Flush()
}

// MemoryFrequencyTable is a FrequencyTable backed by a concurrent map of per-word atomic counters.
// Increments on different words never contend; increments on the same word are a single atomic add.
type MemoryFrequencyTable struct {
	counts   sync.Map // word -> *atomic.Int64
	total    atomic.Int64
	distinct atomic.Int64
}

// NewMemoryFrequencyTable creates an empty table
func NewMemoryFrequencyTable() *MemoryFrequencyTable {
	return &MemoryFrequencyTable{}
}

// Increment implements the FrequencyTable interface
func (t *MemoryFrequencyTable) Increment(word string) {
	t.Add(word, 1)
}

// Add implements the FrequencyTable interface
func (t *MemoryFrequencyTable) Add(word string, n int64) {
	if n == 0 {
		return
	}
	counter, ok := t.counts.Load(word)
	if !ok {
		var loaded bool
		counter, loaded = t.counts.LoadOrStore(word, new(atomic.Int64))
		if !loaded {
			t.distinct.Add(1)
		}
	}
	counter.(*atomic.Int64).Add(n)
	t.total.Add(n)
}

// Count implements the FrequencyTable interface
func (t *MemoryFrequencyTable) Count(word string) int64 {
	counter, ok := t.counts.Load(word)
	if !ok {
		return 0
	}
	return counter.(*atomic.Int64).Load()
}

// Snapshot implements the FrequencyTable interface
func (t *MemoryFrequencyTable) Snapshot() map[string]int64 {
	out := make(map[string]int64, t.distinct.Load())
	t.counts.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Total implements the FrequencyTable interface
func (t *MemoryFrequencyTable) Total() int64 {
	return t.total.Load()
}

// Len implements the FrequencyTable interface
func (t *MemoryFrequencyTable) Len() int {
	return int(t.distinct.Load())
}
