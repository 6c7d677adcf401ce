// Package types defines the shapes shared between the storage layer and its
// collaborators: the type descriptor supplied by the (external) type system,
// and the sentinel errors the rest of the module returns.
package types

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Descriptor is the external type-descriptor handle. InstanceSize is signed:
// positive means an object of that many bytes, negative means an array whose
// element size is the magnitude. This mirrors the sign convention of the
// runtime's own TypeInfo.instanceSize field.
type Descriptor struct {
	InstanceSize int64
}

// IsArray reports whether the descriptor describes an array type.
func (d *Descriptor) IsArray() bool {
	return d.InstanceSize < 0
}

// ElementSize returns the per-element byte size for an array descriptor.
// Only valid when IsArray reports true.
func (d *Descriptor) ElementSize() uint64 {
	return uint64(-d.InstanceSize)
}

// ObjectSize returns the byte size of an object instance. Only valid when
// IsArray reports false.
func (d *Descriptor) ObjectSize() uint64 {
	return uint64(d.InstanceSize)
}

// NewObjectDescriptor returns a descriptor for an object type of the given
// byte size.
func NewObjectDescriptor(size uint64) *Descriptor {
	return lo.ToPtr(Descriptor{InstanceSize: int64(size)})
}

// NewArrayDescriptor returns a descriptor for an array type whose elements
// are elementSize bytes.
func NewArrayDescriptor(elementSize uint64) *Descriptor {
	return lo.ToPtr(Descriptor{InstanceSize: -int64(elementSize)})
}

// Sentinel errors returned by the arena, storage and factory packages.
var (
	// ErrAllocationFailed is returned when the backing arena cannot satisfy
	// a size or alignment request.
	ErrAllocationFailed = errors.New("allocation failed")

	// ErrNilDescriptor is returned when a nil type descriptor is passed to
	// CreateObject or CreateArray.
	ErrNilDescriptor = errors.New("type descriptor is nil")

	// ErrNotAnObjectDescriptor is returned when CreateObject is called with
	// a descriptor whose InstanceSize is not positive.
	ErrNotAnObjectDescriptor = errors.New("descriptor does not describe an object")

	// ErrNotAnArrayDescriptor is returned when CreateArray is called with a
	// descriptor whose InstanceSize is not negative.
	ErrNotAnArrayDescriptor = errors.New("descriptor does not describe an array")

	// ErrNegativeCount is returned when CreateArray is called with a
	// negative element count.
	ErrNegativeCount = errors.New("array count must not be negative")
)
