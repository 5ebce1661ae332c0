// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"sync/atomic"
	"taskos/kernel"
	"taskos/kernel/hal/multiboot"
	"taskos/kernel/kfmt"
	"taskos/kernel/mm"
)

// maxReservedRanges is the number of physical ranges that can be excluded
// from the allocation sequence.
const maxReservedRanges = 4

var (
	errBootAllocOutOfMemory  = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
	errTooManyReservedRanges = &kernel.Error{Module: "boot_mem_alloc", Message: "too many reserved ranges"}
)

// ReservedRange describes a [Start, End) physical address range that is
// already in use (e.g. the kernel image or the multiboot info payload) even
// though the bootloader reports it as available.
type ReservedRange struct {
	Start, End uintptr
}

// frames returns the frames that overlap the range. Start is rounded down and
// End rounded up so partially covered frames are excluded as well.
func (r ReservedRange) frames() (mm.Frame, mm.Frame) {
	pageSizeMinus1 := uintptr(mm.PageSize - 1)
	return mm.FrameFromAddress(r.Start &^ pageSizeMinus1),
		mm.FrameFromAddress((r.End + pageSizeMinus1) &^ pageSizeMinus1)
}

// RegionVisitorFn walks the firmware memory map invoking the supplied visitor
// for each region in map order. multiboot.VisitMemRegions is the
// implementation used by the kernel.
type RegionVisitorFn func(multiboot.MemRegionVisitor)

// BootMemAllocator implements a rudimentary physical memory allocator which
// hands out frames from the memory regions reported by the bootloader.
//
// The usable regions of the memory map, taken in map order and minus the
// frames that overlap a reserved range, define a sequence of frames. The
// allocator keeps a single cursor into that sequence: the n-th call to
// AllocFrame returns the n-th usable frame. The cursor only
// moves forward (even when an allocation fails) so frames can never be
// freed; once the sequence is exhausted every subsequent allocation fails.
//
// The cursor is updated atomically so AllocFrame may be invoked through any
// handle to the allocator without additional locking.
type BootMemAllocator struct {
	visitRegions RegionVisitorFn

	// Keep track of the frames in use by the kernel image and the
	// bootloader payload so we exclude them. Each entry is a [start, end)
	// frame pair.
	reserved      [maxReservedRanges][2]mm.Frame
	reservedCount int

	// next is the index of the next frame to hand out.
	next uint64
}

// Init sets up the allocator to serve frames from the memory map exposed by
// visitRegions, excluding any frame that overlaps one of the reserved ranges,
// and resets its cursor. Init panics if more than maxReservedRanges ranges
// are supplied.
func (alloc *BootMemAllocator) Init(visitRegions RegionVisitorFn, reserved ...ReservedRange) {
	if len(reserved) > maxReservedRanges {
		panic(errTooManyReservedRanges)
	}

	alloc.visitRegions = visitRegions
	alloc.reservedCount = 0
	for _, r := range reserved {
		if r.End <= r.Start {
			continue
		}

		alloc.reserved[alloc.reservedCount][0], alloc.reserved[alloc.reservedCount][1] = r.frames()
		alloc.reservedCount++
	}
	atomic.StoreUint64(&alloc.next, 0)
}

// AllocFrame reserves the next usable physical frame. It returns an error if
// no more memory can be allocated.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	var (
		index = atomic.AddUint64(&alloc.next, 1) - 1
		frame = mm.InvalidFrame
		seen  uint64
	)

	if alloc.visitRegions == nil {
		return mm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.visitRegions(func(region multiboot.MemoryMapEntry) bool {
		startFrame, frameCount := usableFrames(region)
		for cur, end := startFrame, startFrame+mm.Frame(frameCount); cur < end; {
			segStart, segEnd := alloc.nextFreeRun(cur, end)
			segLen := uint64(segEnd - segStart)
			if index < seen+segLen {
				frame = segStart + mm.Frame(index-seen)
				return false
			}

			seen += segLen
			cur = segEnd
		}

		return true
	})

	if !frame.Valid() {
		return mm.InvalidFrame, errBootAllocOutOfMemory
	}

	return frame, nil
}

// AllocatedFrames returns the number of AllocFrame calls served so far,
// including the ones that failed.
func (alloc *BootMemAllocator) AllocatedFrames() uint64 {
	return atomic.LoadUint64(&alloc.next)
}

// nextFreeRun returns the first run of frames in [from, end) that does not
// overlap a reserved range. An empty run (end, end) is returned if every
// remaining frame is reserved.
func (alloc *BootMemAllocator) nextFreeRun(from, end mm.Frame) (mm.Frame, mm.Frame) {
	for from < end {
		runEnd, skipped := end, false
		for i := 0; i < alloc.reservedCount; i++ {
			resStart, resEnd := alloc.reserved[i][0], alloc.reserved[i][1]
			if resStart <= from && from < resEnd {
				from, skipped = resEnd, true
				break
			}

			if resStart > from && resStart < runEnd {
				runEnd = resStart
			}
		}

		if !skipped {
			return from, runEnd
		}
	}

	return end, end
}

// freeFrames returns the number of frames a region contributes to the
// allocation sequence.
func (alloc *BootMemAllocator) freeFrames(region multiboot.MemoryMapEntry) uint64 {
	var count uint64

	startFrame, frameCount := usableFrames(region)
	for cur, end := startFrame, startFrame+mm.Frame(frameCount); cur < end; {
		runStart, runEnd := alloc.nextFreeRun(cur, end)
		count += uint64(runEnd - runStart)
		cur = runEnd
	}

	return count
}

// usableFrames returns the first frame and the number of frames that a
// region contributes to the allocation sequence. Only available regions
// contribute; reserved ranges are not taken into account. Reported addresses may not be page-aligned; the start is
// rounded up and the end rounded down so partially covered frames are never
// handed out.
func usableFrames(region multiboot.MemoryMapEntry) (mm.Frame, uint64) {
	if region.Type != multiboot.MemAvailable {
		return 0, 0
	}

	pageSizeMinus1 := uint64(mm.PageSize - 1)
	start := (region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1
	end := region.End() &^ pageSizeMinus1
	if end <= start {
		return 0, 0
	}

	return mm.FrameFromAddress(uintptr(start)), (end - start) >> mm.PageShift
}

// PrintMemoryMap scans the memory region information provided by the
// bootloader and prints out the system's memory map.
func (alloc *BootMemAllocator) PrintMemoryMap() {
	if alloc.visitRegions == nil {
		return
	}

	kfmt.Printf("[pmm] system memory map:\n")
	var (
		totalFree  mm.Size
		frameCount uint64
	)
	alloc.visitRegions(func(region multiboot.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.End(), region.Length, region.Type.String())

		frameCount += alloc.freeFrames(region)
		if region.Type == multiboot.MemAvailable {
			totalFree += mm.Size(region.Length)
		}
		return true
	})
	for i := 0; i < alloc.reservedCount; i++ {
		kfmt.Printf("\t[0x%10x - 0x%10x] in use, excluded from allocation\n", alloc.reserved[i][0].Address(), alloc.reserved[i][1].Address())
	}
	kfmt.Printf("[pmm] available memory: %dKb, usable frames: %d\n", uint64(totalFree/mm.Kb), frameCount)
}
