// Package heap reserves and backs the virtual address window used by the
// kernel heap.
package heap

import (
	"taskos/kernel"
	"taskos/kernel/kfmt"
	"taskos/kernel/mm"
	"taskos/kernel/mm/vmm"
)

const (
	// StartAddr is the virtual address where the kernel heap begins.
	StartAddr = uintptr(0x4444_4444_0000)

	// Size is the size of the kernel heap window.
	Size = 100 * mm.Kb
)

// Init maps every page of the heap window to a newly allocated frame using
// present and writable mappings. It fails with the first error returned by
// the mapper or the frame allocator.
func Init(m vmm.Mapper, alloc mm.FrameAllocator) *kernel.Error {
	if err := vmm.MapRange(m, mm.PageFromAddress(StartAddr), Size.Pages(), vmm.FlagPresent|vmm.FlagRW, alloc); err != nil {
		return err
	}

	kfmt.Printf("[heap] mapped %dKb at 0x%16x\n", uint64(Size/mm.Kb), StartAddr)
	return nil
}
