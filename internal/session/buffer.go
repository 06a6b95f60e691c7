package session

import "sync"

// Buffer is an ordered, append-only collection for one stream. Appends are
// accepted only while the buffer is open; a frozen buffer silently drops them.
//
// All methods are safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.Mutex
	open  bool
	items []T
}

// Append records v in arrival order. It reports whether v was kept.
func (b *Buffer[T]) Append(v T) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return false
	}
	b.items = append(b.items, v)
	return true
}

// Snapshot returns a copy of everything appended so far.
func (b *Buffer[T]) Snapshot() []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, 0, len(b.items))
	out = append(out, b.items...)
	return out
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Clear empties the buffer without changing whether it is open.
func (b *Buffer[T]) Clear() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// Drop the backing array; snapshots handed out earlier keep their copy.
	b.items = nil
}

// reset empties the buffer and opens it in one critical section so that no
// append can land between the two.
func (b *Buffer[T]) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.open = true
}

func (b *Buffer[T]) freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
}
