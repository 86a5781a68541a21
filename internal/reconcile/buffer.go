package reconcile

// Buffer is an ordered list of writes waiting for the Store. At most one
// batch is in flight at a time; it is always a prefix of the list.
// Not safe for concurrent use.
type Buffer[T any] struct {
	items    []T
	key      func(T) string
	inflight int
	busy     bool
}

// NewBuffer returns an empty buffer. When key is non-nil, Put replaces a
// queued item with the same key instead of appending.
func NewBuffer[T any](key func(T) string) *Buffer[T] {
	return &Buffer[T]{key: key}
}

// Put queues v. Items already in flight are never replaced.
func (b *Buffer[T]) Put(v T) {
	if b.key != nil {
		k := b.key(v)
		for i := b.inflight; i < len(b.items); i++ {
			if b.key(b.items[i]) == k {
				b.items[i] = v
				return
			}
		}
	}
	b.items = append(b.items, v)
}

// Len returns the number of queued items, in flight or not.
func (b *Buffer[T]) Len() int { return len(b.items) }

// Items returns a copy of every queued item in order.
func (b *Buffer[T]) Items() []T {
	return append([]T(nil), b.items...)
}

// Busy reports whether a batch is in flight.
func (b *Buffer[T]) Busy() bool { return b.busy }

// Begin marks the current contents as in flight and returns them. It returns
// false when the buffer is empty or a batch is already in flight.
func (b *Buffer[T]) Begin() ([]T, bool) {
	if b.busy || len(b.items) == 0 {
		return nil, false
	}
	b.busy = true
	b.inflight = len(b.items)
	return append([]T(nil), b.items[:b.inflight]...), true
}

// Complete ends the in-flight batch. On success the batch is removed; on
// failure it stays queued for the next attempt. It returns the removed items.
func (b *Buffer[T]) Complete(ok bool) []T {
	if !b.busy {
		return nil
	}
	n := b.inflight
	b.busy = false
	b.inflight = 0
	if !ok {
		return nil
	}
	done := append([]T(nil), b.items[:n]...)
	b.items = append(b.items[:0:0], b.items[n:]...)
	return done
}

// Take empties the buffer and returns what it held. Any in-flight batch is
// forgotten.
func (b *Buffer[T]) Take() []T {
	out := b.items
	b.items = nil
	b.inflight = 0
	b.busy = false
	return out
}
