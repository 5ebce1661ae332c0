package goruntime

import (
	"taskos/kernel"
	"taskos/kernel/mm"
	"taskos/kernel/mm/vmm"
	"testing"
	"unsafe"
)

type fakeMapper struct {
	mapped []mm.Page
	flags  vmm.PageTableEntryFlag
	err    *kernel.Error
}

func (m *fakeMapper) Map(page mm.Page, _ mm.Frame, flags vmm.PageTableEntryFlag, _ mm.FrameAllocator) (vmm.Flush, *kernel.Error) {
	if m.err != nil {
		return vmm.Flush{}, m.err
	}

	m.mapped = append(m.mapped, page)
	m.flags = flags
	return vmm.Flush{}, nil
}

var frameSource = mm.FrameAllocatorFn(func() (mm.Frame, *kernel.Error) {
	return mm.Frame(1), nil
})

func setupRuntimeRegion(t *testing.T, m vmm.Mapper) {
	origMapper, origFrameSrc := mapper, frameSrc
	t.Cleanup(func() {
		mapper, frameSrc = origMapper, origFrameSrc
	})

	mapper, frameSrc = m, frameSource
	rtRegion.Init(RegionStart)
}

func TestSysReserveOS(t *testing.T) {
	m := new(fakeMapper)
	setupRuntimeRegion(t, m)

	specs := []struct {
		reqSize mm.Size
		expAddr uintptr
	}{
		// exact multiple of page size
		{100 << mm.PageShift, RegionStart},
		// size should be rounded up to nearest page size
		{2*mm.Size(mm.PageSize) - 1, RegionStart + 100*mm.PageSize},
		{1, RegionStart + 102*mm.PageSize},
	}

	for specIndex, spec := range specs {
		if got := uintptr(sysReserveOS(nil, uintptr(spec.reqSize))); got != spec.expAddr {
			t.Errorf("[spec %d] expected reservation at 0x%x; got 0x%x", specIndex, spec.expAddr, got)
		}
	}

	if len(m.mapped) != 0 {
		t.Fatalf("expected sysReserveOS not to establish mappings; got %d", len(m.mapped))
	}
}

func TestSysMapOS(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		specs := []struct {
			reqAddr      uintptr
			reqSize      mm.Size
			expStartAddr uintptr
			expMapCount  int
		}{
			// exact multiple of page size
			{100 << mm.PageShift, 4 * mm.Size(mm.PageSize), 100 << mm.PageShift, 4},
			// address should be rounded up to nearest page size
			{(100 << mm.PageShift) + 1, 4 * mm.Size(mm.PageSize), 101 << mm.PageShift, 4},
			// size should be rounded up to nearest page size
			{1 << mm.PageShift, (4 * mm.Size(mm.PageSize)) + 1, 1 << mm.PageShift, 5},
		}

		for specIndex, spec := range specs {
			m := new(fakeMapper)
			setupRuntimeRegion(t, m)

			sysMapOS(unsafe.Pointer(spec.reqAddr), uintptr(spec.reqSize))

			if len(m.mapped) != spec.expMapCount {
				t.Errorf("[spec %d] expected %d pages to be mapped; got %d", specIndex, spec.expMapCount, len(m.mapped))
				continue
			}

			if got := m.mapped[0].Address(); got != spec.expStartAddr {
				t.Errorf("[spec %d] expected first mapped page at 0x%x; got 0x%x", specIndex, spec.expStartAddr, got)
			}

			if exp := vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute; m.flags != exp {
				t.Errorf("[spec %d] expected map flags to be %x; got %x", specIndex, exp, m.flags)
			}
		}
	})

	t.Run("map fails", func(t *testing.T) {
		setupRuntimeRegion(t, &fakeMapper{err: vmm.ErrPageAlreadyMapped})

		defer func() {
			if err := recover(); err != errRuntimeMapFailed {
				t.Fatalf("expected sysMapOS to panic with errRuntimeMapFailed; got %v", err)
			}
		}()

		sysMapOS(unsafe.Pointer(uintptr(0xbadf000)), 1)
	})
}

func TestSysAllocOS(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := new(fakeMapper)
		setupRuntimeRegion(t, m)

		ptr := sysAllocOS(3*uintptr(mm.PageSize) - 1)
		if got := uintptr(ptr); got != RegionStart {
			t.Fatalf("expected allocation at 0x%x; got 0x%x", RegionStart, got)
		}

		if exp := 3; len(m.mapped) != exp {
			t.Fatalf("expected %d pages to be mapped; got %d", exp, len(m.mapped))
		}

		// The next allocation must not overlap
		if got, exp := uintptr(sysAllocOS(1)), RegionStart+3*mm.PageSize; got != exp {
			t.Fatalf("expected next allocation at 0x%x; got 0x%x", exp, got)
		}
	})

	t.Run("map fails", func(t *testing.T) {
		setupRuntimeRegion(t, &fakeMapper{err: vmm.ErrPageAlreadyMapped})

		if got := sysAllocOS(1); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysAllocOS to return 0x0 if Map returns an error; got 0x%x", uintptr(got))
		}
	})

	t.Run("frame allocation fails", func(t *testing.T) {
		setupRuntimeRegion(t, new(fakeMapper))
		frameSrc = mm.FrameAllocatorFn(func() (mm.Frame, *kernel.Error) {
			return mm.InvalidFrame, &kernel.Error{Module: "test", Message: "out of memory"}
		})

		if got := sysAllocOS(1); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysAllocOS to return 0x0 if frame allocation fails; got 0x%x", uintptr(got))
		}
	})
}

func TestGetRandomData(t *testing.T) {
	sample1 := make([]byte, 128)
	sample2 := make([]byte, 128)

	getRandomData(sample1)
	getRandomData(sample2)

	if string(sample1) == string(sample2) {
		t.Fatal("expected getRandomData to return different values for each invocation")
	}
}

func TestInit(t *testing.T) {
	defer func() {
		mallocInitFn = mallocInit
		algInitFn = algInit
		modulesInitFn = modulesInit
		typeLinksInitFn = typeLinksInit
		itabsInitFn = itabsInit
	}()

	var calls []string
	record := func(name string) func() {
		return func() { calls = append(calls, name) }
	}
	mallocInitFn = record("malloc")
	algInitFn = record("alg")
	modulesInitFn = record("modules")
	typeLinksInitFn = record("typelinks")
	itabsInitFn = record("itabs")

	m := new(fakeMapper)
	setupRuntimeRegion(t, nil)
	if err := Init(m, frameSource); err != nil {
		t.Fatal(err)
	}

	exp := []string{"malloc", "alg", "modules", "typelinks", "itabs"}
	if len(calls) != len(exp) {
		t.Fatalf("expected init calls %v; got %v", exp, calls)
	}
	for i := range exp {
		if calls[i] != exp[i] {
			t.Fatalf("expected init calls %v; got %v", exp, calls)
		}
	}

	if mapper != vmm.Mapper(m) {
		t.Fatal("expected Init to install the supplied mapper")
	}
	if got := uintptr(sysReserveOS(nil, 1)); got != RegionStart {
		t.Fatalf("expected Init to reset the allocator region to 0x%x; got 0x%x", RegionStart, got)
	}
}
