package command

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()

	for i := 0; i < QueueCapacity; i++ {
		if !q.Push(Entry{ID: byte(i)}) {
			t.Fatalf("Push %d rejected below capacity", i)
		}
	}
	if got := q.Len(); got != QueueCapacity {
		t.Fatalf("Len = %d, want %d", got, QueueCapacity)
	}

	for i := 0; i < QueueCapacity; i++ {
		e, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d failed", i)
		}
		if e.ID != byte(i) {
			t.Errorf("Pop %d returned ID %d, want %d", i, e.ID, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue succeeded")
	}
}

func TestQueueOverflowLatch(t *testing.T) {
	q := NewQueue()
	for i := 0; i < QueueCapacity; i++ {
		q.Push(Entry{ID: byte(i)})
	}

	if q.Overflowed() {
		t.Fatal("overflow latched before any drop")
	}
	if q.Push(Entry{ID: 0xEE}) {
		t.Fatal("Push on full queue succeeded")
	}
	if !q.Overflowed() {
		t.Fatal("overflow not latched after drop")
	}

	// Draining does not clear the latch.
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
	}
	if !q.Overflowed() {
		t.Error("overflow latch cleared by draining")
	}

	q.ClearOverflow()
	if q.Overflowed() {
		t.Error("overflow latch survived ClearOverflow")
	}

	// The dropped entry is gone; accepted entries were intact.
	q.Push(Entry{ID: 0x01})
	e, ok := q.Pop()
	if !ok || e.ID != 0x01 {
		t.Errorf("queue unusable after overflow: %v %v", e, ok)
	}
}

func TestQueueWrapAround(t *testing.T) {
	q := NewQueue()
	next := 0
	for cycle := 0; cycle < 3; cycle++ {
		for i := 0; i < 7; i++ {
			q.Push(Entry{ID: byte(next % 256)})
			next++
		}
		for i := 0; i < 7; i++ {
			e, ok := q.Pop()
			if !ok {
				t.Fatalf("cycle %d: Pop %d failed", cycle, i)
			}
			want := byte((next - 7 + i) % 256)
			if e.ID != want {
				t.Fatalf("cycle %d: got ID %d, want %d", cycle, e.ID, want)
			}
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after balanced cycles, want 0", q.Len())
	}
}
