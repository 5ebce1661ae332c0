// Package multiboot parses the multiboot2 information payload that the
// bootloader hands over to the kernel entrypoint.
package multiboot

import "unsafe"

var (
	infoData uintptr
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
)

// info describes the multiboot info section header.
type info struct {
	// Total size of multiboot info section.
	totalSize uint32

	// Always set to zero; reserved for future use
	reserved uint32
}

// tagHeader describes the header the preceedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. Per the multiboot2 layout, each tag starts at a 8-byte aligned
	// address.
	size uint32
}

// mmapHeader describes the header for a memory map tag.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// End returns the physical address right after the last byte of the region.
func (e MemoryMapEntry) End() uint64 {
	return e.PhysAddress + e.Length
}

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader, in the
// order reported by the firmware. The visitor must return true to continue or
// false to abort the scan. Entries are passed by value; the firmware map is
// never modified.
type MemRegionVisitor func(MemoryMapEntry) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// InfoSize returns the size in bytes of the multiboot information payload,
// including its header, or 0 if no payload has been set.
func InfoSize() uintptr {
	if infoData == 0 {
		return 0
	}

	return uintptr((*info)(unsafe.Pointer(infoData)).totalSize)
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
// Entries with an unknown type are reported as MemReserved.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	// curPtr points to the memory map header (2 dwords long)
	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	if ptrMapHeader.entrySize == 0 {
		return
	}

	endPtr := curPtr + uintptr(size)
	for curPtr += unsafe.Sizeof(*ptrMapHeader); curPtr+uintptr(ptrMapHeader.entrySize) <= endPtr; curPtr += uintptr(ptrMapHeader.entrySize) {
		entry := *(*MemoryMapEntry)(unsafe.Pointer(curPtr))
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// GetBootLoaderName returns the name of the bootloader that loaded the kernel
// or an empty string if the bootloader did not provide one.
func GetBootLoaderName() string {
	curPtr, size := findTagByType(tagBootLoaderName)
	if size == 0 {
		return ""
	}

	// The name is a NULL-terminated string; drop the terminator.
	nameLen := uintptr(0)
	for ; nameLen < uintptr(size) && *(*byte)(unsafe.Pointer(curPtr + nameLen)) != 0; nameLen++ {
	}

	return unsafe.String((*byte)(unsafe.Pointer(curPtr)), nameLen)
}

// findTagByType scans the multiboot info data looking for the start of of the
// specified type. It returns a pointer to the tag contents start offset and
// the content length exluding the tag header.
//
// If the tag is not present in the multiboot info, findTagSection will return
// back (0,0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	if infoData == 0 {
		return 0, 0
	}

	var (
		hdr     *tagHeader
		curPtr  = infoData + unsafe.Sizeof(info{})
		infoEnd = infoData + uintptr((*info)(unsafe.Pointer(infoData)).totalSize)
	)

	for ; curPtr+unsafe.Sizeof(*hdr) <= infoEnd; curPtr += uintptr((hdr.size + 7) &^ 7) {
		hdr = (*tagHeader)(unsafe.Pointer(curPtr))
		if hdr.tagType == tagMbSectionEnd || hdr.size < uint32(unsafe.Sizeof(*hdr)) {
			break
		}

		if hdr.tagType == tagType {
			return curPtr + unsafe.Sizeof(*hdr), hdr.size - uint32(unsafe.Sizeof(*hdr))
		}
	}

	return 0, 0
}
