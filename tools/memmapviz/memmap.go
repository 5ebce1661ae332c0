package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"taskos/kernel/hal/multiboot"
	"taskos/kernel/mm"
	"taskos/kernel/mm/pmm"

	"github.com/pkg/errors"
)

// regionTypes maps the type names accepted in memory map files to multiboot
// memory entry types.
var regionTypes = map[string]multiboot.MemoryEntryType{
	"available":   multiboot.MemAvailable,
	"usable":      multiboot.MemAvailable,
	"reserved":    multiboot.MemReserved,
	"unavailable": multiboot.MemReserved,
	"acpi":        multiboot.MemAcpiReclaimable,
	"nvs":         multiboot.MemNvs,
}

// parseMemoryMap reads a memory map with one region per line in the form
// "<start> <end> <type>". Addresses accept any Go integer literal syntax.
// Blank lines and lines starting with '#' are ignored.
func parseMemoryMap(r io.Reader) ([]multiboot.MemoryMapEntry, error) {
	var (
		regions []multiboot.MemoryMapEntry
		scanner = bufio.NewScanner(r)
		lineNum int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, errors.Errorf("line %d: expected \"<start> <end> <type>\"", lineNum)
		}

		start, err := strconv.ParseUint(fields[0], 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: start address", lineNum)
		}
		end, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: end address", lineNum)
		}
		if end <= start {
			return nil, errors.Errorf("line %d: region end 0x%x is not above start 0x%x", lineNum, end, start)
		}

		regionType, ok := regionTypes[strings.ToLower(fields[2])]
		if !ok {
			return nil, errors.Errorf("line %d: unknown region type %q", lineNum, fields[2])
		}

		regions = append(regions, multiboot.MemoryMapEntry{
			PhysAddress: start,
			Length:      end - start,
			Type:        regionType,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading memory map")
	}

	return regions, nil
}

// regionUsage describes how many frames of a region the frame allocator
// handed out.
type regionUsage struct {
	region    multiboot.MemoryMapEntry
	allocated uint64
}

// simulateAllocations runs the boot frame allocator over regions for the
// requested number of allocations and attributes each returned frame to its
// region. It returns the per-region usage and the number of successful
// allocations.
func simulateAllocations(regions []multiboot.MemoryMapEntry, count uint64) ([]regionUsage, uint64) {
	var alloc pmm.BootMemAllocator
	alloc.Init(func(visitor multiboot.MemRegionVisitor) {
		for _, region := range regions {
			if !visitor(region) {
				return
			}
		}
	})

	usage := make([]regionUsage, len(regions))
	for i, region := range regions {
		usage[i].region = region
	}

	var allocated uint64
	for ; allocated < count; allocated++ {
		frame, err := alloc.AllocFrame()
		if err != nil {
			break
		}

		addr := uint64(frame.Address())
		for i := range usage {
			r := usage[i].region
			if r.Type == multiboot.MemAvailable && addr >= r.PhysAddress && addr+uint64(mm.PageSize) <= r.End() {
				usage[i].allocated++
				break
			}
		}
	}

	return usage, allocated
}
