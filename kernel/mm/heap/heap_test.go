package heap

import (
	"bytes"
	"io"
	"taskos/kernel"
	"taskos/kernel/kfmt"
	"taskos/kernel/mm"
	"taskos/kernel/mm/vmm"
	"testing"
)

var errNoFrames = &kernel.Error{Module: "test", Message: "no frames"}

type recordingMapper struct {
	mapped map[mm.Page]mm.Frame
	flags  []vmm.PageTableEntryFlag
	failAt int
}

func (m *recordingMapper) Map(page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag, _ mm.FrameAllocator) (vmm.Flush, *kernel.Error) {
	if m.failAt > 0 && len(m.mapped) == m.failAt {
		return vmm.Flush{}, vmm.ErrPageAlreadyMapped
	}

	m.mapped[page] = frame
	m.flags = append(m.flags, flags)
	return vmm.Flush{}, nil
}

func counterAllocator(limit uint64) mm.FrameAllocator {
	var next uint64
	return mm.FrameAllocatorFn(func() (mm.Frame, *kernel.Error) {
		if next == limit {
			return mm.InvalidFrame, errNoFrames
		}
		next++
		return mm.Frame(next), nil
	})
}

func TestInit(t *testing.T) {
	defer func(origSink io.Writer) {
		kfmt.SetOutputSink(origSink)
	}(kfmt.GetOutputSink())

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	m := &recordingMapper{mapped: make(map[mm.Page]mm.Frame)}
	if err := Init(m, counterAllocator(1000)); err != nil {
		t.Fatal(err)
	}

	if exp, got := 25, len(m.mapped); got != exp {
		t.Fatalf("expected %d heap pages to be mapped; got %d", exp, got)
	}

	startPage := mm.PageFromAddress(StartAddr)
	for i := mm.Page(0); i < 25; i++ {
		if _, ok := m.mapped[startPage+i]; !ok {
			t.Errorf("expected heap page at 0x%x to be mapped", (startPage + i).Address())
		}
	}

	for i, flags := range m.flags {
		if flags != vmm.FlagPresent|vmm.FlagRW {
			t.Errorf("[page %d] expected present+RW flags; got %x", i, flags)
		}
	}

	if exp, got := "[heap] mapped 100Kb at 0x0000444444440000\n", buf.String(); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}

func TestInitErrors(t *testing.T) {
	t.Run("out of frames", func(t *testing.T) {
		m := &recordingMapper{mapped: make(map[mm.Page]mm.Frame)}
		if err := Init(m, counterAllocator(10)); err != vmm.ErrFrameAllocationFailed {
			t.Fatalf("expected ErrFrameAllocationFailed; got %v", err)
		}
		if exp, got := 10, len(m.mapped); got != exp {
			t.Fatalf("expected %d pages to be mapped before the failure; got %d", exp, got)
		}
	})

	t.Run("mapper error", func(t *testing.T) {
		m := &recordingMapper{mapped: make(map[mm.Page]mm.Frame), failAt: 3}
		if err := Init(m, counterAllocator(1000)); err != vmm.ErrPageAlreadyMapped {
			t.Fatalf("expected ErrPageAlreadyMapped; got %v", err)
		}
	})
}
