package vmm

import (
	"taskos/kernel/mm"
	"testing"
)

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   pageTableEntry
		flag1 = PageTableEntryFlag(1 << 10)
		flag2 = PageTableEntryFlag(1 << 21)
	)

	if pte.HasFlags(flag1) || pte.HasFlags(flag2) {
		t.Fatalf("expected HasFlags to return false")
	}

	pte.SetFlags(flag1 | flag2)

	if !pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return true")
	}

	pte.ClearFlags(flag1)

	if pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return false")
	}

	if !pte.HasFlags(flag2) {
		t.Fatalf("expected ClearFlags to leave unrelated flags set")
	}

	pte.ClearFlags(flag1 | flag2)

	if pte != 0 {
		t.Fatalf("expected all flags to be cleared; got 0x%x", uintptr(pte))
	}
}

func TestPageTableEntryFrameEncoding(t *testing.T) {
	var (
		pte       pageTableEntry
		physFrame = mm.Frame(123)
	)

	pte.SetFlags(FlagPresent | FlagRW | FlagNoExecute)
	pte.SetFrame(physFrame)
	if got := pte.Frame(); got != physFrame {
		t.Fatalf("expected pte.Frame() to return %v; got %v", physFrame, got)
	}

	if !pte.HasFlags(FlagPresent | FlagRW | FlagNoExecute) {
		t.Fatalf("expected SetFrame to preserve the entry flags")
	}

	pte.ClearFlags(FlagPresent)
	if got := pte.Frame(); got != physFrame {
		t.Fatalf("expected ClearFlags to preserve the frame; got %v", got)
	}
}
