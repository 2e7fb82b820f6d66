package queue

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wordcrawl/pkg/models"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// --- Basic Operations Tests ---

func TestNewThreadSafePriorityQueue(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	if pq == nil {
		t.Fatal("NewThreadSafePriorityQueue() returned nil")
	}
	if pq.Len() != 0 {
		t.Errorf("New queue Len() = %d, want 0", pq.Len())
	}
}

func TestThreadSafePriorityQueue_AddAndPop(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	entry := &models.FrontierEntry{URL: "http://example.com/", Depth: 0}
	if !pq.Add(entry) {
		t.Fatal("Add() on open queue returned false")
	}
	if pq.Len() != 1 {
		t.Errorf("After Add, Len() = %d, want 1", pq.Len())
	}

	result, ok := pq.Pop()
	if !ok {
		t.Fatal("Pop() returned ok=false, want true")
	}
	if result != entry {
		t.Errorf("Pop() = %+v, want the added entry %+v", result, entry)
	}
	if pq.Len() != 0 {
		t.Errorf("After Pop, Len() = %d, want 0", pq.Len())
	}
}

func TestThreadSafePriorityQueue_PriorityOrdering(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	// Lower depth = higher priority (should be popped first)
	pq.Add(&models.FrontierEntry{URL: "depth2", Depth: 2})
	pq.Add(&models.FrontierEntry{URL: "depth0", Depth: 0})
	pq.Add(&models.FrontierEntry{URL: "depth1", Depth: 1})
	pq.Add(&models.FrontierEntry{URL: "depth3", Depth: 3})

	expectedOrder := []string{"depth0", "depth1", "depth2", "depth3"}
	for i, expected := range expectedOrder {
		entry, ok := pq.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned ok=false", i)
		}
		if entry.URL != expected {
			t.Errorf("Pop() #%d URL = %q, want %q", i, entry.URL, expected)
		}
	}
}

func TestThreadSafePriorityQueue_SamePriorityIsFIFO(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	for i := 0; i < 20; i++ {
		pq.Add(&models.FrontierEntry{URL: fmt.Sprintf("u%02d", i), Depth: 1})
	}
	pq.Add(&models.FrontierEntry{URL: "shallow", Depth: 0})

	first, _ := pq.Pop()
	if first.URL != "shallow" {
		t.Fatalf("first Pop() = %q, want %q", first.URL, "shallow")
	}
	for i := 0; i < 20; i++ {
		entry, ok := pq.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned ok=false", i)
		}
		want := fmt.Sprintf("u%02d", i)
		if entry.URL != want {
			t.Errorf("Pop() #%d URL = %q, want %q", i, entry.URL, want)
		}
	}
}

// --- Close Tests ---

func TestThreadSafePriorityQueue_Close(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	pq.Close()

	entry, ok := pq.Pop()
	if ok {
		t.Error("Pop() on closed empty queue returned ok=true, want false")
	}
	if entry != nil {
		t.Errorf("Pop() on closed empty queue returned entry %v, want nil", entry)
	}
}

func TestThreadSafePriorityQueue_CloseWithItems(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	pq.Add(&models.FrontierEntry{URL: "a", Depth: 0})
	pq.Add(&models.FrontierEntry{URL: "b", Depth: 1})
	pq.Close()

	// Existing entries are still poppable
	for i := 0; i < 2; i++ {
		if entry, ok := pq.Pop(); !ok || entry == nil {
			t.Errorf("Pop() #%d after Close should return existing entries", i)
		}
	}

	if entry, ok := pq.Pop(); ok || entry != nil {
		t.Error("Pop() on closed empty queue returned an entry")
	}
}

func TestThreadSafePriorityQueue_AddAfterClose(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	pq.Close()

	if pq.Add(&models.FrontierEntry{URL: "test", Depth: 0}) {
		t.Error("Add after Close returned true")
	}
	if pq.Len() != 0 {
		t.Errorf("Add after Close: Len() = %d, want 0", pq.Len())
	}
}

func TestThreadSafePriorityQueue_DoubleClose(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	pq.Close()
	pq.Close() // Should be safe
}

func TestThreadSafePriorityQueue_Drain(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	pq.Add(&models.FrontierEntry{URL: "b", Depth: 1})
	pq.Add(&models.FrontierEntry{URL: "a", Depth: 0})

	drained := pq.Drain()
	if len(drained) != 2 || drained[0].URL != "a" || drained[1].URL != "b" {
		t.Errorf("Drain() = %+v, want [a b] in priority order", drained)
	}
	if pq.Len() != 0 {
		t.Errorf("After Drain, Len() = %d, want 0", pq.Len())
	}
}

// --- Blocking Behavior Tests ---

func TestThreadSafePriorityQueue_PopBlocks(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	resultChan := make(chan *models.FrontierEntry, 1)
	go func() {
		entry, _ := pq.Pop() // This should block
		resultChan <- entry
	}()

	time.Sleep(50 * time.Millisecond)

	select {
	case <-resultChan:
		t.Fatal("Pop() returned before Add(), should have blocked")
	default:
	}

	pq.Add(&models.FrontierEntry{URL: "unblock", Depth: 0})

	select {
	case entry := <-resultChan:
		if entry == nil {
			t.Error("Pop() returned nil after Add()")
		} else if entry.URL != "unblock" {
			t.Errorf("Pop() URL = %q, want %q", entry.URL, "unblock")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Pop() did not return after Add()")
	}
}

func TestThreadSafePriorityQueue_CloseUnblocksWaiters(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	var wg sync.WaitGroup
	results := make(chan bool, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := pq.Pop()
			results <- ok
		}()
	}

	time.Sleep(50 * time.Millisecond)
	pq.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Close() did not unblock waiting goroutines")
	}

	close(results)
	for ok := range results {
		if ok {
			t.Error("Blocked Pop() returned ok=true after Close()")
		}
	}
}

// --- Concurrency Tests ---

func TestThreadSafePriorityQueue_ConcurrentAddPop(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	numProducers := 5
	numConsumers := 3
	itemsPerProducer := 20
	totalItems := numProducers * itemsPerProducer

	var popped atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < numConsumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := pq.Pop(); !ok {
					return
				}
				popped.Add(1)
			}
		}()
	}

	var producerWg sync.WaitGroup
	for i := 0; i < numProducers; i++ {
		producerWg.Add(1)
		go func(producerID int) {
			defer producerWg.Done()
			for j := 0; j < itemsPerProducer; j++ {
				pq.Add(&models.FrontierEntry{URL: "url", Depth: producerID})
			}
		}(i)
	}

	producerWg.Wait()
	pq.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Consumers did not finish in time")
	}

	if int(popped.Load()) != totalItems {
		t.Errorf("Popped %d entries, want %d", popped.Load(), totalItems)
	}
}
