// Package factory implements the typed façade over storage: given a type
// descriptor, it sizes and carves out a node for an object or an array and
// hands back a pointer to a header describing what was allocated.
package factory

import (
	"unsafe"

	"github.com/outofforest/photon"

	"github.com/managedrt/objectfactory/storage"
	"github.com/managedrt/objectfactory/types"
)

// headerAlignment is the alignment every header's trailing payload must
// satisfy; instance/element data starts immediately after the header,
// rounded up to this boundary.
const headerAlignment = 8

func roundUp(n uintptr) uintptr {
	return (n + headerAlignment - 1) / headerAlignment * headerAlignment
}

// ObjectHeader prefixes every node allocated by CreateObject. Descriptor is
// copied in at allocation time so the node remains self-describing even if
// the caller's original descriptor is later reused for something else.
type ObjectHeader struct {
	Descriptor types.Descriptor
}

// Data returns the instance bytes following this header.
func (h *ObjectHeader) Data() []byte {
	base := unsafe.Add(unsafe.Pointer(h), roundUp(unsafe.Sizeof(ObjectHeader{})))
	return unsafe.Slice((*byte)(base), h.Descriptor.ObjectSize())
}

// ArrayHeader prefixes every node allocated by CreateArray.
type ArrayHeader struct {
	Descriptor types.Descriptor
	Count      uint64
}

// Data returns the element bytes following this header.
func (h *ArrayHeader) Data() []byte {
	base := unsafe.Add(unsafe.Pointer(h), roundUp(unsafe.Sizeof(ArrayHeader{})))
	return unsafe.Slice((*byte)(base), h.Descriptor.ElementSize()*h.Count)
}

var (
	objectHeaderSize = roundUp(unsafe.Sizeof(ObjectHeader{}))
	arrayHeaderSize  = roundUp(unsafe.Sizeof(ArrayHeader{}))
)

// Factory is the typed façade over a storage.Storage, sized to the
// platform's max fundamental alignment so headers and instance data of any
// registered type can be placed at the start of a node's payload.
type Factory struct {
	storage *storage.Storage
}

// New creates a Factory backed by a fresh Storage.
func New(config storage.Config) *Factory {
	return &Factory{storage: storage.New(config)}
}

// NewThreadQueue creates a ThreadQueue bound to this Factory, equivalent to
// taking a new Producer and wrapping it with the typed helpers.
func (f *Factory) NewThreadQueue() *ThreadQueue {
	return &ThreadQueue{producer: f.storage.NewProducer()}
}

// Iter returns the sole Iter over this Factory's storage.
func (f *Factory) Iter() *Iter {
	return &Iter{it: f.storage.Iter()}
}

// Destruct tears down the underlying storage; see storage.Storage.Destruct.
func (f *Factory) Destruct(dispose func([]byte)) {
	f.storage.Destruct(dispose)
}

// ThreadQueue is a Producer plus the typed CreateObject/CreateArray helpers.
// Like Producer, every method must only be called from the single goroutine
// that owns the ThreadQueue.
type ThreadQueue struct {
	producer *storage.Producer
}

// CreateObject allocates a node sized for one instance of desc and returns a
// pointer to its header. desc.InstanceSize must be positive.
func (q *ThreadQueue) CreateObject(desc *types.Descriptor) (*ObjectHeader, error) {
	if desc == nil {
		return nil, types.ErrNilDescriptor
	}
	if desc.InstanceSize <= 0 {
		return nil, types.ErrNotAnObjectDescriptor
	}

	total := objectHeaderSize + uintptr(desc.ObjectSize())
	payload, err := q.producer.Insert(uint64(total), headerAlignment)
	if err != nil {
		return nil, err
	}

	h := photon.FromPointer[ObjectHeader](unsafe.Pointer(&payload[0]))
	h.Descriptor = *desc
	return h, nil
}

// CreateArray allocates a node sized for count instances of desc's element
// type and returns a pointer to its header. desc.InstanceSize must be
// negative; count must not be negative.
func (q *ThreadQueue) CreateArray(desc *types.Descriptor, count int64) (*ArrayHeader, error) {
	if desc == nil {
		return nil, types.ErrNilDescriptor
	}
	if !desc.IsArray() {
		return nil, types.ErrNotAnArrayDescriptor
	}
	if count < 0 {
		return nil, types.ErrNegativeCount
	}

	total := arrayHeaderSize + uintptr(desc.ElementSize())*uintptr(count)
	payload, err := q.producer.Insert(uint64(total), headerAlignment)
	if err != nil {
		return nil, err
	}

	h := photon.FromPointer[ArrayHeader](unsafe.Pointer(&payload[0]))
	h.Descriptor = *desc
	h.Count = uint64(count)
	return h, nil
}

// Publish forwards to the underlying Producer.
func (q *ThreadQueue) Publish() {
	q.producer.Publish()
}

// Close forwards to the underlying Producer.
func (q *ThreadQueue) Close() {
	q.producer.Close()
}

// Iter wraps storage.Iterator with header-typed accessors derived from the
// node's leading ObjectHeader/ArrayHeader.
type Iter struct {
	it *storage.Iterator
}

// Start positions the cursor on the first live node.
func (it *Iter) Start() bool {
	return it.it.Start()
}

// Advance moves the cursor to the successor.
func (it *Iter) Advance() bool {
	return it.it.Advance()
}

// Close releases this Iter's exclusivity slot.
func (it *Iter) Close() {
	it.it.Close()
}

// IsArray reports whether the node at the cursor holds an array, by reading
// the InstanceSize sign of the leading descriptor common to both header
// shapes.
func (it *Iter) IsArray() bool {
	h := photon.FromPointer[ObjectHeader](unsafe.Pointer(&it.it.Payload()[0]))
	return h.Descriptor.IsArray()
}

// ObjectHeader returns the node's header, projected as an object header.
// Only valid when IsArray reports false.
func (it *Iter) ObjectHeader() *ObjectHeader {
	return photon.FromPointer[ObjectHeader](unsafe.Pointer(&it.it.Payload()[0]))
}

// ArrayHeader returns the node's header, projected as an array header. Only
// valid when IsArray reports true.
func (it *Iter) ArrayHeader() *ArrayHeader {
	return photon.FromPointer[ArrayHeader](unsafe.Pointer(&it.it.Payload()[0]))
}

// EraseAndAdvance unlinks the node at the cursor and repositions it to the
// successor. See storage.Iterator.EraseAndAdvance.
func (it *Iter) EraseAndAdvance(dispose func([]byte)) bool {
	return it.it.EraseAndAdvance(dispose)
}
