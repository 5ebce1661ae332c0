package vmm

import (
	"taskos/kernel/mm"
	"unsafe"
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments.  If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the top-level table. It calls walkFn with the entry that corresponds to the
// address at each page table level. The table for the next level is the frame
// pointed to by the visited entry, so walkFn must not return true for an
// intermediate entry that is not present.
//
// Page tables are accessed through the physical memory window: every
// physical address is reachable at virtual address physOffset + physical.
func (m *PageMapper) walk(virtAddr uintptr, walkFn pageTableWalker) {
	tableFrame := m.p4Frame

	for level := uint8(0); level < pageLevels; level++ {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		pte := m.entryAt(tableFrame, entryIndex)

		if !walkFn(level, pte) {
			return
		}

		tableFrame = pte.Frame()
	}
}

// entryAt returns a pointer to the entry with the given index in the page
// table stored at tableFrame.
func (m *PageMapper) entryAt(tableFrame mm.Frame, entryIndex uintptr) *pageTableEntry {
	entryAddr := m.PhysToVirt(tableFrame.Address() + (entryIndex << mm.PointerShift))
	return (*pageTableEntry)(unsafe.Pointer(entryAddr))
}
