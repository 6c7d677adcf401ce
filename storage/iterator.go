package storage

// Iterator is the sole forward walker over a Storage. It holds a cursor
// (cur) and its predecessor (prev), sufficient to erase cur in O(1). Only
// one Iterator may exist per Storage at a time; enforced by Storage.Iter.
type Iterator struct {
	storage *Storage
	prev    *Node
	cur     *Node

	started bool
	closed  bool
}

// Start positions the cursor on the first live node and reports whether one
// exists. It must be called before Payload, Advance or EraseAndAdvance.
func (it *Iterator) Start() bool {
	it.started = true
	it.prev = it.storage.head
	it.cur = it.storage.head.next.Load()
	return it.cur != nil
}

// Advance moves the cursor to the successor of the current node and reports
// whether one exists. Legal only when the cursor is live and non-end.
func (it *Iterator) Advance() bool {
	if !it.started || it.cur == nil {
		panic("iterator: Advance called on an exhausted or unstarted cursor")
	}
	it.prev = it.cur
	it.cur = it.cur.next.Load()
	return it.cur != nil
}

// Node returns the node the cursor currently points at.
func (it *Iterator) Node() *Node {
	if it.cur == nil {
		panic("iterator: Node called on an exhausted or unstarted cursor")
	}
	return it.cur
}

// Payload returns the payload bytes of the node the cursor currently points
// at, equivalent to it.Node().Data().
func (it *Iterator) Payload() []byte {
	return it.Node().Data()
}

// EraseAndAdvance unlinks the node at the cursor, invokes dispose (if
// non-nil) on its payload, and repositions the cursor to the successor
// (which may be none). Erasing the current tail is the only case that
// coordinates with concurrent publishers, via Storage's publish mutex.
// Erasing anywhere else is lock-free, since no publisher ever touches a
// non-tail node's next pointer.
func (it *Iterator) EraseAndAdvance(dispose func([]byte)) bool {
	if !it.started || it.cur == nil {
		panic("iterator: EraseAndAdvance called on an exhausted or unstarted cursor")
	}

	cur := it.cur
	next := cur.next.Load()

	if next != nil {
		if !it.prev.next.CompareAndSwap(cur, next) {
			panic("iterator: cursor was concurrently mutated")
		}
	} else {
		ok := func() bool {
			it.storage.mu.Lock()
			defer it.storage.mu.Unlock()

			next = cur.next.Load()
			if next == nil {
				it.storage.tail = it.prev
			}
			return it.prev.next.CompareAndSwap(cur, next)
		}()
		if !ok {
			panic("iterator: cursor was concurrently mutated")
		}
	}

	if dispose != nil {
		dispose(cur.Data())
	}

	it.cur = next
	return it.cur != nil
}

// Close releases this Iterator's exclusivity slot, allowing a later call to
// Storage.Iter to succeed. Safe to call multiple times.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.storage.iterTaken.Store(false)
}
