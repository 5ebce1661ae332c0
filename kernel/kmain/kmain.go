// Package kmain contains the kernel entrypoint that brings up the memory
// subsystem and hands control over to the task executor.
package kmain

import (
	"taskos/kernel"
	"taskos/kernel/driver/vga"
	"taskos/kernel/goruntime"
	"taskos/kernel/hal/multiboot"
	"taskos/kernel/kfmt"
	"taskos/kernel/mm"
	"taskos/kernel/mm/heap"
	"taskos/kernel/mm/pmm"
	"taskos/kernel/mm/vmm"
	"taskos/kernel/task"
	"taskos/kernel/task/keyboard"
)

const (
	// exampleMappingAddr is an unused virtual address that gets mapped to
	// the VGA framebuffer to verify that the page mapper works.
	exampleMappingAddr = uintptr(0xdead_beaf_000)

	// exampleStackPages is the size of the stack allocated during boot.
	exampleStackPages = 4
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	frameAlloc  pmm.BootMemAllocator
	stackRegion vmm.StackRegion
	textBuf     vga.TextBuffer
	console     vga.Writer
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code passes the physical address of the
// multiboot info payload provided by the bootloader, the physical start and
// end addresses of the loaded kernel image and the virtual address at which
// the bootloader mapped all of physical memory.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd, physMemOffset uintptr) {
	multiboot.SetInfoPtr(physMemOffset + multibootInfoPtr)

	textBuf.Init(vga.Width, vga.Height, physMemOffset+vga.FramebufferPhysAddr)
	console.Init(&textBuf)
	console.Clear()
	kfmt.SetOutputSink(&console)
	kfmt.Printf("[kmain] booted by %s\n", multiboot.GetBootLoaderName())

	// The bootloader reports the frames holding the kernel image and the
	// multiboot payload as available.
	frameAlloc.Init(multiboot.VisitMemRegions,
		pmm.ReservedRange{Start: kernelStart, End: kernelEnd},
		pmm.ReservedRange{Start: multibootInfoPtr, End: multibootInfoPtr + multiboot.InfoSize()},
	)
	frameAlloc.PrintMemoryMap()

	mapper, err := vmm.ActivePageMapper(physMemOffset)
	if err != nil {
		panic(err)
	}

	var page mm.Page
	if page, err = exampleMapping(mapper, &frameAlloc); err != nil {
		panic(err)
	}
	writeBanner(page.Address())

	if err = heap.Init(mapper, &frameAlloc); err != nil {
		panic(err)
	} else if err = goruntime.Init(mapper, &frameAlloc); err != nil {
		panic(err)
	}

	stackRegion.Init(vmm.StackRegionStart)
	stack, err := stackRegion.AllocStack(exampleStackPages, mapper, &frameAlloc)
	if err != nil {
		panic(err)
	}
	kfmt.Printf("[kmain] stack [0x%x - 0x%x], guard page at 0x%x\n", stack.Start(), stack.End(), stack.GuardPage().Address())

	executor := task.NewExecutor(task.ReadyQueueCapacity)
	executor.Spawn(task.New(exampleTask()))
	executor.Spawn(keyboard.PrintKeypresses())
	executor.Run()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// exampleMapping maps the page at exampleMappingAddr to the VGA framebuffer.
func exampleMapping(m vmm.Mapper, alloc mm.FrameAllocator) (mm.Page, *kernel.Error) {
	page := mm.PageFromAddress(exampleMappingAddr)
	flush, err := m.Map(page, mm.FrameFromAddress(vga.FramebufferPhysAddr), vmm.FlagPresent|vmm.FlagRW, alloc)
	if err != nil {
		return page, err
	}
	flush.Flush()

	return page, nil
}

// writeBanner writes "New!" to line 20 of a text framebuffer mapped at
// fbAddr.
func writeBanner(fbAddr uintptr) {
	var buf vga.TextBuffer
	buf.Init(vga.Width, vga.Height, fbAddr)

	msg := "New!"
	for i := 0; i < len(msg); i++ {
		buf.Put(msg[i], vga.MakeAttr(vga.Black, vga.White), uint16(i), 20)
	}
}

// exampleTask returns a future that prints a number and completes on its
// first poll.
func exampleTask() task.Future {
	return task.FutureFunc(func(*task.Context) task.PollResult {
		w := kfmt.PrefixWriter{Sink: kfmt.GetOutputSink(), Prefix: []byte("[task] ")}
		kfmt.Fprintf(&w, "async number: %d\n", asyncNumber())
		return task.Ready
	})
}

func asyncNumber() int {
	return 42
}
