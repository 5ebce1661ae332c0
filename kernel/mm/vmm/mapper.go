// Package vmm manages virtual-to-physical address translations for the
// currently active page table hierarchy.
package vmm

import (
	"sync/atomic"
	"taskos/kernel"
	"taskos/kernel/cpu"
	"taskos/kernel/mm"
)

var (
	// activePDTFn is used by tests to override calls to cpu.ActivePDT
	// which will cause a fault if called in user-mode.
	activePDTFn = cpu.ActivePDT

	// flushTLBEntryFn is used by tests to override calls to
	// cpu.FlushTLBEntry which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// kernelMapper is the accessor handed out by ActivePageMapper.
	kernelMapper PageMapper

	// mapperAcquired is set once ActivePageMapper has handed out the
	// accessor for the active page tables.
	mapperAcquired uint32

	// ErrFrameAllocationFailed is returned when a physical frame for a new
	// page table (or for the page contents) cannot be allocated.
	ErrFrameAllocationFailed = &kernel.Error{Module: "vmm", Message: "frame allocation failed"}

	// ErrPageAlreadyMapped is returned when trying to map a page that is
	// already mapped to a physical frame.
	ErrPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page already mapped"}

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errMapperAcquired    = &kernel.Error{Module: "vmm", Message: "active page table accessor already acquired"}
)

// Mapper is implemented by types that can establish page mappings.
type Mapper interface {
	// Map points page to frame using the supplied flags. The allocator
	// is only consulted when intermediate page tables are missing. The
	// mapping must not be used before the returned Flush is applied.
	Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) (Flush, *kernel.Error)
}

// Flush is returned by operations that modify a page table entry. The CPU may
// keep using a stale translation for the page until Flush is called.
type Flush struct {
	page  mm.Page
	valid bool
}

// Flush invalidates the TLB entry for the modified page.
func (f Flush) Flush() {
	if f.valid {
		flushTLBEntryFn(f.page.Address())
	}
}

// Ignore discards the flush. It should only be used when the modified page
// tables are not active or when the TLB will be flushed by other means.
func (f Flush) Ignore() {}

// Page returns the page whose translation changed.
func (f Flush) Page() mm.Page {
	return f.page
}

// PageMapper provides access to a 4-level page table hierarchy. All physical
// memory is expected to be mapped at a fixed offset in the virtual address
// space, so the tables themselves are accessed at physOffset + their
// physical address.
type PageMapper struct {
	p4Frame    mm.Frame
	physOffset uintptr
}

// ActivePageMapper returns the accessor for the page tables that are
// currently loaded in the CR3 register. physOffset is the virtual address at
// which the bootloader mapped the start of physical memory.
//
// The returned mapper is the only handle to the active tables. It must be
// obtained exactly once while the kernel boots; all further calls fail.
func ActivePageMapper(physOffset uintptr) (*PageMapper, *kernel.Error) {
	if !atomic.CompareAndSwapUint32(&mapperAcquired, 0, 1) {
		return nil, errMapperAcquired
	}

	kernelMapper = PageMapper{
		p4Frame:    mm.Frame((activePDTFn() & ptePhysPageMask) >> mm.PageShift),
		physOffset: physOffset,
	}

	return &kernelMapper, nil
}

// PhysToVirt returns the virtual address through which the kernel can access
// the supplied physical address.
func (m *PageMapper) PhysToVirt(physAddr uintptr) uintptr {
	return m.physOffset + physAddr
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. The leaf entry is always flagged as present; flags specifies the
// remaining access bits. Missing intermediate page tables are allocated from
// alloc, cleared and installed as present and writable (and user-accessible
// if the requested flags include FlagUserAccessible).
//
// Map returns ErrPageAlreadyMapped if the page is already mapped and
// ErrFrameAllocationFailed if an intermediate table cannot be allocated.
// Tables allocated before such a failure stay installed.
func (m *PageMapper) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) (Flush, *kernel.Error) {
	var err *kernel.Error

	m.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = ErrPageAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags | FlagPresent)
			return true
		}

		if pte.HasFlags(FlagPresent) {
			if pte.HasFlags(FlagHugePage) {
				err = errNoHugePageSupport
				return false
			}

			pte.SetFlags(flags & FlagUserAccessible)
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents before
		// linking it into the hierarchy.
		newTableFrame, allocErr := alloc.AllocFrame()
		if allocErr != nil {
			err = ErrFrameAllocationFailed
			return false
		}

		kernel.Memset(m.PhysToVirt(newTableFrame.Address()), 0, mm.PageSize)
		*pte = 0
		pte.SetFrame(newTableFrame)
		pte.SetFlags(FlagPresent | FlagRW | (flags & FlagUserAccessible))
		return true
	})

	if err != nil {
		return Flush{}, err
	}

	return Flush{page: page, valid: true}, nil
}

// Unmap removes the mapping for page and returns the frame it pointed to.
// Page tables that become empty are not reclaimed.
func (m *PageMapper) Unmap(page mm.Page) (mm.Frame, Flush, *kernel.Error) {
	var (
		err   *kernel.Error
		frame = mm.InvalidFrame
	)

	m.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel == pageLevels-1 {
			// The frame bits are left in place; Map resets the
			// entry before it is reused.
			frame = pte.Frame()
			pte.ClearFlags(FlagPresent | FlagRW | FlagUserAccessible)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	if err != nil {
		return mm.InvalidFrame, Flush{}, err
	}

	return frame, Flush{page: page, valid: true}, nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (m *PageMapper) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		err   *kernel.Error
		entry pageTableEntry
	)

	m.walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel != pageLevels-1 && pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		entry = *pte
		return true
	})

	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return entry.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}

// MapRange backs pageCount consecutive pages starting at startPage with
// freshly allocated frames and flushes each new mapping. It stops at the
// first failure; pages mapped before the failure remain mapped.
func MapRange(m Mapper, startPage mm.Page, pageCount uint64, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	for page := startPage; pageCount > 0; pageCount, page = pageCount-1, page+1 {
		frame, err := alloc.AllocFrame()
		if err != nil {
			return ErrFrameAllocationFailed
		}

		flush, err := m.Map(page, frame, flags, alloc)
		if err != nil {
			return err
		}
		flush.Flush()
	}

	return nil
}
