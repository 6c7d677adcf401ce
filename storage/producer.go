package storage

import (
	"github.com/outofforest/mass"

	"github.com/managedrt/objectfactory/alloc"
)

// Producer is a thread-local batch builder bound to one Storage. All of its
// methods are unsynchronized and must only ever be called from the single
// goroutine that owns the Producer.
type Producer struct {
	storage *Storage
	arena   *alloc.Arena
	cells   *mass.Mass[Node]

	localHead *Node
	localTail *Node

	closed bool
}

// Insert allocates size bytes aligned to alignRequest (which must not
// exceed the owning Storage's alignment) and appends a new node wrapping
// them to this Producer's private sublist. The returned slice is stable
// until the node is erased.
func (p *Producer) Insert(size, alignRequest uint64) ([]byte, error) {
	if alignRequest > p.storage.alignment {
		panic("producer: alignment request exceeds storage alignment")
	}

	payload, err := p.arena.Alloc(size)
	if err != nil {
		return nil, err
	}

	n := p.cells.New()
	n.payload = payload
	n.size = size
	n.next.Store(nil)

	if p.localHead == nil {
		p.localHead = n
	} else {
		p.localTail.next.Store(n)
	}
	p.localTail = n

	return n.Data(), nil
}

// Publish hands the current private sublist to Storage and empties the
// producer. It is a no-op when the sublist is empty.
func (p *Producer) Publish() {
	if p.localHead == nil {
		return
	}

	p.storage.publish(p.localHead, p.localTail)
	p.localHead = nil
	p.localTail = nil
}

// Close publishes any remaining inserts and releases this Producer's slot,
// standing in for the destructor-implies-publish contract a garbage
// collected language cannot express implicitly: callers must call Close
// before letting a Producer go. Publish alone does not release the slot.
func (p *Producer) Close() {
	if p.closed {
		return
	}
	p.Publish()
	p.closed = true
	p.storage.releaseProducer()
}
