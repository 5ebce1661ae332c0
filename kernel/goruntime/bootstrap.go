// Package goruntime backs the Go memory allocator with kernel page mappings
// so that new, make, maps and interfaces can be used once the memory
// subsystem is up.
package goruntime

import (
	"taskos/kernel"
	"taskos/kernel/mm"
	"taskos/kernel/mm/vmm"
	"unsafe"
)

// RegionStart is the virtual address where the address space handed to the Go
// allocator begins.
const RegionStart = uintptr(0x6000_0000_0000)

var (
	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	// The mapper and frame allocator used for backing allocator memory.
	// They are set by Init.
	mapper   vmm.Mapper
	frameSrc mm.FrameAllocator
	rtRegion vmm.Region

	mapFlags = vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute

	// A seed for the pseudo-random number generator used by getRandomData
	prngSeed = 0xdeadc0de

	errRuntimeMapFailed = &kernel.Error{Module: "goruntime", Message: "unable to back allocator memory"}
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

// sysReserveOS reserves address space without allocating any memory or
// establishing any page mappings. The address hint is ignored; the runtime
// falls back to an aligned reservation when the hint is not honored.
//
// This function replaces runtime.sysReserveOS and is required for
// initializing the Go allocator.
//
//go:redirect-from runtime.sysReserveOS
//go:nosplit
func sysReserveOS(_ unsafe.Pointer, size uintptr) unsafe.Pointer {
	return unsafe.Pointer(rtRegion.Reserve(mm.Size(size).Pages()).Address())
}

// sysMapOS backs a region that has previously been reserved via sysReserveOS
// with physical frames.
//
// This function replaces runtime.sysMapOS.
//
//go:redirect-from runtime.sysMapOS
//go:nosplit
func sysMapOS(virtAddr unsafe.Pointer, size uintptr) {
	// We trust the allocator to call sysMapOS with an address inside a reserved region.
	regionStart := mm.PageFromAddress((uintptr(virtAddr) + mm.PageSize - 1) &^ (mm.PageSize - 1))
	if err := vmm.MapRange(mapper, regionStart, mm.Size(size).Pages(), mapFlags, frameSrc); err != nil {
		panic(errRuntimeMapFailed)
	}
}

// sysAllocOS reserves enough physical frames to satisfy the allocation
// request and establishes a contiguous virtual page mapping for them
// returning back the pointer to the virtual region start.
//
// This function replaces runtime.sysAllocOS.
//
//go:redirect-from runtime.sysAllocOS
//go:nosplit
func sysAllocOS(size uintptr) unsafe.Pointer {
	pageCount := mm.Size(size).Pages()
	regionStart := rtRegion.Reserve(pageCount)
	if err := vmm.MapRange(mapper, regionStart, pageCount, mapFlags, frameSrc); err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	return unsafe.Pointer(regionStart.Address())
}

// sysUsedOS, sysUnusedOS, sysHugePageOS and sysFreeOS issue madvise/munmap
// calls on a hosted runtime. Memory is never given back here so they do
// nothing.
//
//go:redirect-from runtime.sysUsedOS
//go:nosplit
func sysUsedOS(_ unsafe.Pointer, _ uintptr) {}

//go:redirect-from runtime.sysUnusedOS
//go:nosplit
func sysUnusedOS(_ unsafe.Pointer, _ uintptr) {}

//go:redirect-from runtime.sysHugePageOS
//go:nosplit
func sysHugePageOS(_ unsafe.Pointer, _ uintptr) {}

//go:redirect-from runtime.sysFreeOS
//go:nosplit
func sysFreeOS(_ unsafe.Pointer, _ uintptr) {}

// nanotime returns a monotonically increasing clock value. There is no
// timekeeping yet so the value is constant.
//
// This function replaces runtime.nanotime1 and is invoked by the Go allocator
// when a span allocation is performed.
//
//go:redirect-from runtime.nanotime1
//go:nosplit
func nanotime() int64 {
	// Use a dummy loop to prevent the compiler from inlining this function.
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData populates the given slice with random data. The hosted
// runtime reads /dev/urandom; a prng is used instead.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables support for various Go runtime features. Allocator memory is
// reserved above RegionStart and backed with frames from alloc mapped
// through m. After a call to Init the following runtime features become
// available for use:
//   - heap memory allocation (new, make e.t.c)
//   - map primitives
//   - interfaces
func Init(m vmm.Mapper, alloc mm.FrameAllocator) *kernel.Error {
	mapper, frameSrc = m, alloc
	rtRegion.Init(RegionStart)

	mallocInitFn()
	algInitFn()       // setup hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules

	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file.
	var zeroPtr = unsafe.Pointer(uintptr(0))

	sysReserveOS(zeroPtr, 0)
	sysMapOS(zeroPtr, 0)
	sysAllocOS(0)
	sysUsedOS(zeroPtr, 0)
	sysUnusedOS(zeroPtr, 0)
	sysHugePageOS(zeroPtr, 0)
	sysFreeOS(zeroPtr, 0)
	getRandomData(nil)
	_ = nanotime()
}
