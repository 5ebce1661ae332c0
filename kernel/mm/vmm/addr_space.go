package vmm

import (
	"sync/atomic"
	"taskos/kernel"
	"taskos/kernel/mm"
)

// StackRegionStart is the virtual address where the kernel starts carving
// out task stacks.
const StackRegionStart = uintptr(0x5555_5555_0000)

var errUnalignedRegionBase = &kernel.Error{Module: "vmm", Message: "region base is not page-aligned"}

// Region hands out page ranges from a window of the virtual address space
// that grows upwards from a fixed base. Reserved ranges are never returned to
// the region and reserving does not establish any mappings.
type Region struct {
	// next is the virtual address of the first page that has not been
	// reserved yet.
	next uint64
}

// Init sets the base address of the region. It panics if base is not
// page-aligned.
func (r *Region) Init(base uintptr) {
	if base&(mm.PageSize-1) != 0 {
		panic(errUnalignedRegionBase)
	}

	atomic.StoreUint64(&r.next, uint64(base))
}

// Reserve claims pageCount consecutive pages and returns the first one. It is
// safe to call concurrently.
func (r *Region) Reserve(pageCount uint64) mm.Page {
	end := atomic.AddUint64(&r.next, pageCount<<mm.PageShift)
	return mm.PageFromAddress(uintptr(end - pageCount<<mm.PageShift))
}

// StackRegion is the Region that task stacks are allocated from.
type StackRegion struct {
	Region
}
