package window

import "iter"

// Window is a fixed-capacity FIFO buffer. Pushing onto a full window evicts
// the oldest item. The backing array is allocated once in New and is never
// grown or replaced.
//
// Window is not safe for concurrent use.
type Window[T any] struct {
	buf  []T
	head int // index of the oldest item
	size int
}

// New creates an empty window holding at most capacity items.
// It panics if capacity < 1; callers validate capacity before construction.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		panic("window: capacity must be >= 1")
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// NewFrom creates a window of the given capacity and pushes items into it in
// order. When len(items) > capacity only the newest capacity items remain.
func NewFrom[T any](items []T, capacity int) *Window[T] {
	w := New[T](capacity)
	for _, it := range items {
		w.Push(it)
	}
	return w
}

// Push appends item. If the window was full, the oldest item is evicted and
// returned with ok set to true.
func (w *Window[T]) Push(item T) (evicted T, ok bool) {
	capacity := len(w.buf)
	if w.size < capacity {
		w.buf[(w.head+w.size)%capacity] = item
		w.size++
		return evicted, false
	}

	evicted = w.buf[w.head]
	w.buf[w.head] = item
	w.head = (w.head + 1) % capacity
	return evicted, true
}

// Len reports the number of items currently held.
func (w *Window[T]) Len() int { return w.size }

// Cap reports the fixed capacity.
func (w *Window[T]) Cap() int { return len(w.buf) }

// Full reports whether the next Push will evict.
func (w *Window[T]) Full() bool { return w.size == len(w.buf) }

// All yields items oldest to newest without removing them.
func (w *Window[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < w.size; i++ {
			if !yield(w.buf[(w.head+i)%len(w.buf)]) {
				return
			}
		}
	}
}

// Items returns a copy of the contents, oldest first.
func (w *Window[T]) Items() []T {
	out := make([]T, 0, w.size)
	for it := range w.All() {
		out = append(out, it)
	}
	return out
}
