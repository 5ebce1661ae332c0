package vmm

import (
	"taskos/kernel"
	"taskos/kernel/mm"
)

var (
	errInvalidStackBounds = &kernel.Error{Module: "vmm", Message: "stack end must be above stack start"}
	errEmptyStack         = &kernel.Error{Module: "vmm", Message: "stack size must be at least one page"}
)

// StackBounds describes the virtual address range [start, end) of a mapped
// stack. The page directly below start is left unmapped.
type StackBounds struct {
	start uintptr
	end   uintptr
}

// NewStackBounds returns the bounds for [start, end). It panics if end is not
// above start.
func NewStackBounds(start, end uintptr) StackBounds {
	if end <= start {
		panic(errInvalidStackBounds)
	}

	return StackBounds{start: start, end: end}
}

// Start returns the lowest address of the stack.
func (b StackBounds) Start() uintptr { return b.start }

// End returns the address just past the top of the stack. A new stack
// pointer should be initialized to this value.
func (b StackBounds) End() uintptr { return b.end }

// Size returns the stack size in bytes.
func (b StackBounds) Size() mm.Size { return mm.Size(b.end - b.start) }

// GuardPage returns the unmapped page that precedes the stack.
func (b StackBounds) GuardPage() mm.Page {
	return mm.PageFromAddress(b.start) - 1
}

// AllocStack reserves pageCount+1 pages from the region, leaves the lowest one
// unmapped as a guard page and maps the rest as present and writable with
// frames taken from alloc. An overflowing stack runs into the guard page and
// triggers a page fault instead of overwriting whatever lies below it.
//
// If a page cannot be mapped the error is returned as is. Pages mapped by the
// call up to that point are not unmapped and the reserved range is not
// reused.
func (r *StackRegion) AllocStack(pageCount uint64, m Mapper, alloc mm.FrameAllocator) (StackBounds, *kernel.Error) {
	if pageCount == 0 {
		return StackBounds{}, errEmptyStack
	}

	guardPage := r.Reserve(pageCount + 1)
	stackStart := guardPage + 1

	if err := MapRange(m, stackStart, pageCount, FlagPresent|FlagRW, alloc); err != nil {
		return StackBounds{}, err
	}

	return NewStackBounds(stackStart.Address(), (stackStart + mm.Page(pageCount)).Address()), nil
}
