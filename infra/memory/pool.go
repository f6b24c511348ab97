package memory

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

var (
	ErrPoolExhausted  = errors.New("memory: pool out of space")
	ErrForeignPointer = errors.New("memory: pointer does not belong to this pool")
	ErrDoubleFree     = errors.New("memory: slot is already free")
)

// block keeps obj as the first field so a *T is also the address
// of its block. indexOf depends on this.
type block[T any] struct {
	obj  T
	free bool
}

// MemPool is a fixed-capacity pool of T with pointer-stable slots.
type MemPool[T any] struct {
	store    []block[T]
	nextFree int
	inUse    int
}

// NewMemPool pre-constructs capacity zero-valued slots, all free.
func NewMemPool[T any](capacity int) *MemPool[T] {
	if capacity <= 0 {
		panic(errors.AssertionFailedf("memory: pool capacity must be positive, got %d", capacity))
	}
	p := &MemPool[T]{store: make([]block[T], capacity)}
	for i := range p.store {
		p.store[i].free = true
	}
	return p
}

// Allocate copies v into the next free slot and returns its address.
// Running out of slots is a sizing error and panics with ErrPoolExhausted.
func (p *MemPool[T]) Allocate(v T) *T {
	idx, ok := p.findFree()
	if !ok {
		panic(errors.Wrapf(ErrPoolExhausted, "capacity %d", len(p.store)))
	}

	b := &p.store[idx]
	b.obj = v
	b.free = false
	p.inUse++

	p.nextFree = idx + 1
	if p.nextFree == len(p.store) {
		p.nextFree = 0
	}
	return &b.obj
}

// Deallocate returns elem to the pool. Pointers outside the pool and
// slots that are already free are programming errors and panic.
func (p *MemPool[T]) Deallocate(elem *T) {
	idx, ok := p.indexOf(elem)
	if !ok {
		panic(errors.Wrapf(ErrForeignPointer, "%p", elem))
	}
	b := &p.store[idx]
	if b.free {
		panic(errors.Wrapf(ErrDoubleFree, "index %d", idx))
	}

	var zero T
	b.obj = zero
	b.free = true
	p.inUse--
}

// Cap returns the fixed number of slots.
func (p *MemPool[T]) Cap() int { return len(p.store) }

// InUse returns the number of allocated slots.
func (p *MemPool[T]) InUse() int { return p.inUse }

// findFree scans one full wrap starting at the cached cursor.
func (p *MemPool[T]) findFree() (int, bool) {
	idx := p.nextFree
	for range len(p.store) {
		if p.store[idx].free {
			return idx, true
		}
		idx++
		if idx == len(p.store) {
			idx = 0
		}
	}
	return 0, false
}

func (p *MemPool[T]) indexOf(elem *T) (int, bool) {
	if elem == nil {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&p.store[0]))
	addr := uintptr(unsafe.Pointer(elem))
	if addr < base {
		return 0, false
	}
	size := unsafe.Sizeof(p.store[0])
	off := addr - base
	if off%size != 0 {
		return 0, false
	}
	idx := off / size
	if idx >= uintptr(len(p.store)) {
		return 0, false
	}
	return int(idx), true
}
