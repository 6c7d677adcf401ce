package storage

import (
	"sync/atomic"
	"unsafe"
)

// MaxAlign is the alignment used by a Storage constructed without an
// explicit alignment override — the platform's max fundamental alignment,
// sufficient for any scalar or SIMD type the object/array adapter might
// place at the start of a payload.
const MaxAlign = 16

// Node is one list cell: a forward link plus a pointer to its aligned
// payload bytes. A Node remembers nothing about the payload's type; that is
// the adapter's job. Payload addresses are stable for the node's lifetime —
// they are carved out of a producer-owned arena, never moved or resized.
type Node struct {
	next    atomic.Pointer[Node]
	payload unsafe.Pointer
	size    uint64
}

// Data returns the payload bytes owned by this node.
func (n *Node) Data() []byte {
	return unsafe.Slice((*byte)(n.payload), n.size)
}
