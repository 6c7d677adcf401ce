// Package alloc provides the byte-level memory underneath a Producer's
// thread-local batch: page-backed, alignment-guaranteeing slabs that are
// bump-allocated without synchronization by their owning goroutine, and
// tracked in a Registry so Storage.Destruct can release all of them at once.
package alloc

import (
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/managedrt/objectfactory/types"
)

// DefaultSlabSize is the size, in bytes, of a slab minted when an Arena runs
// out of room and the caller did not request a specific size.
const DefaultSlabSize = 64 * 1024

// mapSlab allocates one anonymous, page-backed slab of at least size bytes,
// aligned to alignment. It is the single-node primitive underneath both
// Arena and Registry: every off-heap byte this package hands out flows
// through it.
func mapSlab(size, alignment uint64) (unsafe.Pointer, uintptr, func(), error) {
	alignmentUintptr := uintptr(alignment)
	allocatedSize := uintptr(size) + alignmentUintptr
	dataP, err := unix.MmapPtr(-1, 0, nil, allocatedSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, 0, nil, errors.Wrapf(types.ErrAllocationFailed, "mmap of %d bytes: %s", allocatedSize, err)
	}

	dataPOrig := dataP

	// mmap already returns page-aligned memory, but the requested alignment may exceed the page size
	// (it never will in practice, since A is a fundamental alignment), so realign defensively.
	diff := uint64((uintptr(dataP)+alignmentUintptr-1)/alignmentUintptr*alignmentUintptr - uintptr(dataP))
	dataP = unsafe.Add(dataP, diff)

	dealloc := func() {
		// munmap requires the size passed at mmap time, rounded to the page size, not the aligned-down size.
		pageSize := uintptr(os.Getpagesize())
		_ = unix.MunmapPtr(dataPOrig, (allocatedSize+pageSize-1)/pageSize*pageSize)
	}

	return dataP, uintptr(size), dealloc, nil
}

// NewArena creates an arena that bump-allocates payload bytes aligned to
// alignment. An Arena is owned by exactly one Producer and must never be
// touched by more than one goroutine at a time — this mirrors the "no
// synchronization" contract on Producer.Insert.
func NewArena(alignment uint64, registry *Registry) *Arena {
	return &Arena{
		alignment: alignment,
		registry:  registry,
	}
}

// Arena is a producer-local bump allocator over a chain of mmap'd slabs.
// Slabs are never returned to the arena itself; once carved out, a payload's
// address is stable until the owning Storage is destructed, at which point
// the Registry the Arena reports slabs to unmaps every one of them.
type Arena struct {
	alignment uint64
	registry  *Registry

	slab     unsafe.Pointer
	offset   uintptr
	slabSize uintptr
}

// Alloc returns size freshly zeroed bytes aligned to the arena's alignment.
// The returned pointer is stable for as long as the arena's slabs are alive.
func (a *Arena) Alloc(size uint64) (unsafe.Pointer, error) {
	aligned := alignUp(uintptr(size), uintptr(a.alignment))

	if a.slab == nil || a.offset+aligned > a.slabSize {
		slabSize := uint64(DefaultSlabSize)
		if size > slabSize {
			slabSize = uint64(alignUp(uintptr(size), uintptr(os.Getpagesize())))
		}

		slab, mapped, dealloc, err := mapSlab(slabSize, a.alignment)
		if err != nil {
			return nil, err
		}

		a.registry.track(dealloc)
		a.slab = slab
		a.slabSize = mapped
		a.offset = 0
	}

	p := unsafe.Add(a.slab, a.offset)
	a.offset += aligned

	clear(unsafe.Slice((*byte)(p), size))
	return p, nil
}

func alignUp(n, alignment uintptr) uintptr {
	return (n + alignment - 1) / alignment * alignment
}

// NewRegistry creates an empty slab registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Registry accumulates the deallocation functions of every slab minted by
// every Arena feeding a single Storage, so Storage.Destruct can release all
// of them regardless of which Producer originally carved them out.
type Registry struct {
	mu       sync.Mutex
	deallocs []func()
}

func (r *Registry) track(dealloc func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deallocs = append(r.deallocs, dealloc)
}

// ReleaseAll unmaps every slab tracked by the registry. Callers must ensure
// no Arena still referencing this registry is in use.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dealloc := range r.deallocs {
		dealloc()
	}
	r.deallocs = nil
}
