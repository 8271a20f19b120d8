// Package command implements the downlink command pipeline: a bounded
// FIFO filled from the radio event path and a processor goroutine that
// executes commands and transmits their replies.
package command

import (
	"sync"
	"time"
)

// QueueCapacity bounds the number of commands waiting for execution.
const QueueCapacity = 10

// Entry is one queued command.
type Entry struct {
	ID       byte
	Payload  []byte
	Received time.Time
}

// Queue is a fixed-capacity FIFO. A push against a full queue is
// dropped and latches the overflow flag; the flag stays set until
// explicitly cleared so a burst is visible after the fact.
type Queue struct {
	mu         sync.Mutex
	entries    [QueueCapacity]Entry
	head       int
	count      int
	overflowed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue { return &Queue{} }

// Push appends an entry. It reports false, dropping the entry, when
// the queue is full.
func (q *Queue) Push(e Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == QueueCapacity {
		q.overflowed = true
		return false
	}
	q.entries[(q.head+q.count)%QueueCapacity] = e
	q.count++
	return true
}

// Pop removes and returns the oldest entry.
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Entry{}, false
	}
	e := q.entries[q.head]
	q.entries[q.head] = Entry{}
	q.head = (q.head + 1) % QueueCapacity
	q.count--
	return e, true
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Overflowed reports whether any push has been dropped since the last
// clear.
func (q *Queue) Overflowed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflowed
}

// ClearOverflow resets the overflow latch.
func (q *Queue) ClearOverflow() {
	q.mu.Lock()
	q.overflowed = false
	q.mu.Unlock()
}
