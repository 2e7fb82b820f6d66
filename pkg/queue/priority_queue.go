package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wordcrawl/pkg/models"
)

// --- Priority Queue Implementation ---

// PQItem represents an entry in the priority queue
type PQItem struct {
	entry    *models.FrontierEntry
	priority int    // Lower value means higher priority (Depth)
	seq      uint64 // Insertion order, breaks ties so equal depths pop FIFO
	index    int    // The index of the item in the heap (required by heap interface)
}

// PriorityQueue implements heap.Interface
type PriorityQueue []*PQItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an element to the heap
func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*PQItem)
	item.index = n
	*pq = append(*pq, item)
}

// Pop removes and returns the highest priority element (minimum value) from the heap
func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// ThreadSafePriorityQueue is the crawl frontier: shallower entries pop first, equal depths in arrival order
type ThreadSafePriorityQueue struct {
	pq      PriorityQueue
	mu      sync.Mutex
	cond    *sync.Cond // Condition variable to wait for entries
	closed  bool
	nextSeq uint64
	log     *logrus.Entry
}

// NewThreadSafePriorityQueue creates a new thread-safe priority queue
func NewThreadSafePriorityQueue(logger *logrus.Entry) *ThreadSafePriorityQueue {
	tspq := &ThreadSafePriorityQueue{log: logger}
	tspq.cond = sync.NewCond(&tspq.mu)
	heap.Init(&tspq.pq)
	return tspq
}

// Add pushes an entry onto the queue with priority based on depth
// Returns false if the queue is closed and the entry was dropped
func (tspq *ThreadSafePriorityQueue) Add(entry *models.FrontierEntry) bool {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()

	if tspq.closed {
		tspq.log.Warnf("Attempted to add entry to closed queue: %s", entry.URL)
		return false
	}

	heap.Push(&tspq.pq, &PQItem{
		entry:    entry,
		priority: entry.Depth,
		seq:      tspq.nextSeq,
	})
	tspq.nextSeq++
	tspq.cond.Signal() // Wake one waiting worker
	return true
}

// Pop retrieves and removes the highest priority entry
// It blocks if the queue is empty until an entry is added or the queue is closed
// Returns the entry and true, or nil and false if the queue is closed and empty
func (tspq *ThreadSafePriorityQueue) Pop() (*models.FrontierEntry, bool) {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()

	for len(tspq.pq) == 0 {
		if tspq.closed {
			return nil, false
		}
		// Wait releases the lock and reacquires it upon waking
		tspq.cond.Wait()
	}

	pqItem := heap.Pop(&tspq.pq).(*PQItem)
	return pqItem.entry, true
}

// Close signals that no more entries will be added to the queue
// Entries already queued can still be popped
func (tspq *ThreadSafePriorityQueue) Close() {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	if !tspq.closed {
		tspq.closed = true
		tspq.cond.Broadcast() // Wake up ALL waiting workers so they can check the closed status
	}
}

// Drain removes and returns every queued entry without blocking
func (tspq *ThreadSafePriorityQueue) Drain() []*models.FrontierEntry {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	out := make([]*models.FrontierEntry, 0, len(tspq.pq))
	for len(tspq.pq) > 0 {
		out = append(out, heap.Pop(&tspq.pq).(*PQItem).entry)
	}
	return out
}

// Len returns the current number of entries in the queue (thread-safe)
func (tspq *ThreadSafePriorityQueue) Len() int {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	return len(tspq.pq)
}
