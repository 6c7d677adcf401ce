// Package storage implements the singly-linked list at the core of the
// object factory: many Producers append thread-local batches to the tail
// without blocking each other or the sole Iterator, which may erase nodes
// mid-traversal.
//
// Appends are lock-free with respect to iteration: an Iterator walks the
// list by loading atomic next pointers and never blocks on a publisher.
// Publish itself, and the one case where the Iterator must coordinate with
// publishers (erasing the current tail), serialize on a single mutex. This
// is the mutex-guarded alternative design, chosen over a fully CAS-based
// scheme because publish sits off the hot allocation path (see DESIGN.md).
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/outofforest/mass"

	"github.com/managedrt/objectfactory/alloc"
)

// Config configures a Storage instance.
type Config struct {
	// Alignment is the alignment every payload pointer handed out by this
	// storage's producers will satisfy. Zero selects MaxAlign.
	Alignment uint64

	// ProducerMassCapacity sizes the pooled-node-cell chunks each Producer
	// allocates from. Zero selects a sensible default.
	ProducerMassCapacity uint64
}

const defaultMassCapacity = 1024

// New creates an empty Storage.
func New(config Config) *Storage {
	alignment := config.Alignment
	if alignment == 0 {
		alignment = MaxAlign
	}
	massCapacity := config.ProducerMassCapacity
	if massCapacity == 0 {
		massCapacity = defaultMassCapacity
	}

	sentinel := &Node{}
	return &Storage{
		alignment:    alignment,
		massCapacity: massCapacity,
		registry:     alloc.NewRegistry(),
		head:         sentinel,
		tail:         sentinel,
	}
}

// Storage owns the (head, tail) of the singly-linked list. Reachability from
// head visits every live node exactly once; tail always points at the last
// reachable node or, when empty, at the head sentinel.
type Storage struct {
	alignment    uint64
	massCapacity uint64
	registry     *alloc.Registry

	// mu serializes publish() against publish() and, only for the tail
	// case, EraseAndAdvance() against publish(). It is never taken by the
	// non-tail erase path or by traversal.
	mu   sync.Mutex
	head *Node
	tail *Node

	producers atomic.Int64
	iterTaken atomic.Bool
}

// Alignment returns the alignment every payload pointer satisfies.
func (s *Storage) Alignment() uint64 {
	return s.alignment
}

// NewProducer creates a Producer bound to this Storage. Producer.Close must
// be called before Destruct; a Producer that is only published keeps its
// slot and makes Destruct panic.
func (s *Storage) NewProducer() *Producer {
	s.producers.Add(1)
	return &Producer{
		storage: s,
		arena:   alloc.NewArena(s.alignment, s.registry),
		cells:   mass.New[Node](s.massCapacity),
	}
}

func (s *Storage) releaseProducer() {
	s.producers.Add(-1)
}

// publish splices a non-empty batch [localHead..localTail] at the tail.
func (s *Storage) publish(localHead, localTail *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tail.next.Store(localHead)
	s.tail = localTail
}

// Iter returns the sole Iterator over this Storage. It panics if another
// Iterator is already outstanding — Storage supports at most one reader at
// a time, though readers may be taken sequentially over the Storage's
// lifetime.
func (s *Storage) Iter() *Iterator {
	if !s.iterTaken.CompareAndSwap(false, true) {
		panic("storage: an Iterator is already outstanding")
	}
	return &Iterator{storage: s, prev: s.head}
}

// Destruct walks the whole list, invoking dispose (if non-nil) on every
// payload, then releases every arena slab ever carved out by any Producer
// that published into this Storage. It panics if a Producer or Iterator is
// still live — both must be closed first.
func (s *Storage) Destruct(dispose func([]byte)) {
	if s.producers.Load() != 0 {
		panic("storage: Destruct called with a live Producer")
	}
	if s.iterTaken.Load() {
		panic("storage: Destruct called with a live Iterator")
	}

	for n := s.head.next.Load(); n != nil; {
		next := n.next.Load()
		if dispose != nil {
			dispose(n.Data())
		}
		n = next
	}

	s.head.next.Store(nil)
	s.tail = s.head
	s.registry.ReleaseAll()
}
