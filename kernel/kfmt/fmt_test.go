package kfmt

import (
	"bytes"
	"fmt"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer SetOutputSink(nil)

	specs := []struct {
		format string
		args   []interface{}
		exp    string
	}{
		{"no args", nil, "no args"},
		{"100%%", nil, "100%"},
		// strings
		{"%s", []interface{}{"vmm"}, "vmm"},
		{"[%s]", []interface{}{[]byte("pmm")}, "[pmm]"},
		{"'%6s'", []interface{}{"heap"}, "'  heap'"},
		{"'%2s'", []interface{}{"executor"}, "'executor'"},
		// chars
		{"%c%c", []interface{}{byte('o'), 'k'}, "ok"},
		{"%c", []interface{}{'λ'}, "?"},
		// integers
		{"%d", []interface{}{uint8(255)}, "255"},
		{"%d", []interface{}{int64(-42)}, "-42"},
		{"'%5d'", []interface{}{-42}, "'  -42'"},
		{"'%05d'", []interface{}{-42}, "'-0042'"},
		{"'%04d'", []interface{}{7}, "'0007'"},
		{"%o", []interface{}{uint16(0777)}, "777"},
		{"%x", []interface{}{uintptr(0xb8000)}, "b8000"},
		{"0x%16x", []interface{}{uint64(0x5555_5555_0000)}, "0x0000555555550000"},
		{"%x", []interface{}{uint32(0)}, "0"},
		{"%d", []interface{}{uint(1 << 40)}, "1099511627776"},
		// booleans
		{"%t %t", []interface{}{true, false}, "true false"},
		// errors
		{"%d", []interface{}{"nan"}, "%!(WRONGTYPE)"},
		{"%t", []interface{}{1}, "%!(WRONGTYPE)"},
		{"%s", []interface{}{42}, "%!(WRONGTYPE)"},
		{"%c", []interface{}{"ab"}, "%!(WRONGTYPE)"},
		{"%d %d", []interface{}{1}, "1 %!(MISSING)"},
		{"%d", []interface{}{1, 2}, "1%!(EXTRA)"},
		{"trailing %", nil, "trailing %!(NOVERB)"},
		{"%q", nil, "%!(NOVERB)"},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			buf.Reset()
			Printf(spec.format, spec.args...)
			if got := buf.String(); got != spec.exp {
				t.Errorf("expected Printf(%q) to produce %q; got %q", spec.format, spec.exp, got)
			}
		})
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "[%s] frame 0x%x\n", "pmm", 0x1000)

	if exp, got := "[pmm] frame 0x1000\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer SetOutputSink(nil)

	SetOutputSink(nil)
	Printf("early %s", "boot")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "early boot", buf.String(); got != exp {
		t.Fatalf("expected buffered output %q to be flushed to the sink; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the registered sink")
	}
}
