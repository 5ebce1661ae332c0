package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// EnableInterruptsAndHalt re-enables interrupts and halts the CPU until the
// next interrupt arrives. STI delays interrupt delivery until the instruction
// following it has executed, so no interrupt can be serviced between the
// two instructions. An interrupt that is already pending when this is called
// wakes the CPU from HLT.
func EnableInterruptsAndHalt()

// Halt disables interrupts and stops instruction execution permanently.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ActivePDT returns the contents of the CR3 register; the physical address
// of the currently active top-level page table is stored in bits 12-51.
func ActivePDT() uintptr
