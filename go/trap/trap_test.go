package trap

import (
	"testing"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/cpu/sim64"
	"github.com/trapcore/trapcore/go/models/cpu"
)

const (
	stackBase = 0x200000
	stackSize = 0x10000
	stackTop  = stackBase + stackSize - 0x100
	testRip   = 0x401234
	testCs    = 0x08
	testSs    = 0x10
	testFlags = 0x202
)

var gpRegs = []int{
	x86_64.RAX, x86_64.RBX, x86_64.RCX, x86_64.RDX,
	x86_64.RSI, x86_64.RDI, x86_64.RBP,
	x86_64.R8, x86_64.R9, x86_64.R10, x86_64.R11,
	x86_64.R12, x86_64.R13, x86_64.R14, x86_64.R15,
}

func setupMachine(t *testing.T, sp uint64) *sim64.Sim64 {
	t.Helper()
	c := sim64.New()
	if err := c.MemMapProt(stackBase, stackSize, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	for i, enum := range gpRegs {
		c.RegWrite(enum, 0x1111111100000000|uint64(i+1))
	}
	c.RegWrite(x86_64.RSP, sp)
	c.RegWrite(x86_64.RIP, testRip)
	c.RegWrite(x86_64.CS, testCs)
	c.RegWrite(x86_64.SS, testSs)
	c.RegWrite(x86_64.RFLAGS, testFlags)
	return c
}

func snapshot(t *testing.T, c cpu.Cpu) map[int]uint64 {
	t.Helper()
	regs := map[int]uint64{}
	for _, enum := range append(gpRegs, x86_64.RSP, x86_64.RIP, x86_64.CS, x86_64.SS, x86_64.RFLAGS) {
		val, err := c.RegRead(enum)
		if err != nil {
			t.Fatal(err)
		}
		regs[enum] = val
	}
	return regs
}

// testDispatch records every delivery and forwards to optional hooks.
type testDispatch struct {
	exc, irq, soft func(vector int, f *Frame)
	calls          []int
}

func (d *testDispatch) Exception(vector int, f *Frame) {
	d.calls = append(d.calls, vector)
	if d.exc != nil {
		d.exc(vector, f)
	}
}

func (d *testDispatch) IRQ(vector int, f *Frame) {
	d.calls = append(d.calls, vector)
	if d.irq != nil {
		d.irq(vector, f)
	}
}

func (d *testDispatch) Software(vector int, f *Frame) {
	d.calls = append(d.calls, vector)
	if d.soft != nil {
		d.soft(vector, f)
	}
}

func TestTableClasses(t *testing.T) {
	table := NewTable()
	for v := 0; v < x86_64.VECTOR_COUNT; v++ {
		stub, err := table.Stub(v)
		if err != nil {
			t.Fatal(err)
		}
		if stub.Vector != v {
			t.Fatalf("stub %d has vector %d", v, stub.Vector)
		}
		if want := x86_64.Classify(v); stub.Class != want {
			t.Fatalf("vector %d: class %s, want %s", v,
				x86_64.ClassName(stub.Class), x86_64.ClassName(want))
		}
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	table := NewTable()
	// sweep stack offsets to cover every alignment case
	for off := uint64(0); off < 16; off += 8 {
		c := setupMachine(t, stackTop-off)
		before := snapshot(t, c)
		d := &testDispatch{}
		if err := table.Deliver(c, 32, 0, d); err != nil {
			t.Fatal(err)
		}
		if len(d.calls) != 1 || d.calls[0] != 32 {
			t.Fatalf("dispatch calls: %v", d.calls)
		}
		after := snapshot(t, c)
		for enum, val := range before {
			if after[enum] != val {
				t.Errorf("offset %d: %s changed 0x%x -> 0x%x", off,
					x86_64.Arch.Regs[enum], val, after[enum])
			}
		}
	}
}

func TestHandlerStackAlignment(t *testing.T) {
	table := NewTable()
	for off := uint64(0); off < 64; off += 8 {
		c := setupMachine(t, stackTop-off)
		var got uint64
		d := &testDispatch{
			irq: func(vector int, f *Frame) {
				got, _ = c.RegRead(x86_64.RSP)
			},
		}
		if err := table.Deliver(c, 33, 0, d); err != nil {
			t.Fatal(err)
		}
		if got%StackAlign != 0 {
			t.Fatalf("offset %d: handler rsp 0x%x not %d-byte aligned", off, got, StackAlign)
		}
	}
}

func TestFrameContents(t *testing.T) {
	table := NewTable()
	c := setupMachine(t, stackTop)
	var frame *Frame
	d := &testDispatch{exc: func(vector int, f *Frame) { frame = f }}
	if err := table.Deliver(c, 14, 0x2, d); err != nil {
		t.Fatal(err)
	}
	if frame == nil {
		t.Fatal("handler never ran")
	}
	code, err := frame.Error()
	if err != nil {
		t.Fatal(err)
	}
	if code != 0x2 {
		t.Fatalf("error code 0x%x, want 0x2", code)
	}
	ir, err := frame.Iret()
	if err != nil {
		t.Fatal(err)
	}
	if ir.Rip != testRip || ir.Cs != testCs || ir.Rflags != testFlags ||
		ir.Rsp != stackTop || ir.Ss != testSs {
		t.Fatalf("iret frame: %+v", ir)
	}
	regs, err := frame.Regs()
	if err != nil {
		t.Fatal(err)
	}
	if regs.Rax != 0x1111111100000001 || regs.R15 != 0x111111110000000f {
		t.Fatalf("saved registers: %+v", regs)
	}
	// rsp slot records the stack pointer at stub entry: below
	// the hardware frame plus the error code
	if want := stackTop - IretSize - RegSize; regs.Rsp != uint64(want) {
		t.Fatalf("rsp slot 0x%x, want 0x%x", regs.Rsp, want)
	}
}

func TestErrorCodeLayoutShift(t *testing.T) {
	table := NewTable()
	frames := map[int]*Frame{}
	for _, tc := range []struct {
		vector  int
		errcode uint64
	}{{14, 0x2}, {35, 0}} {
		c := setupMachine(t, stackTop)
		d := &testDispatch{}
		grab := func(vector int, f *Frame) { frames[vector] = f }
		d.exc, d.irq = grab, grab
		if err := table.Deliver(c, tc.vector, tc.errcode, d); err != nil {
			t.Fatal(err)
		}
	}
	withErr, noErr := frames[14], frames[35]
	if _, ok := withErr.ErrorAddr(); !ok {
		t.Fatal("vector 14 frame has no error slot")
	}
	if _, ok := noErr.ErrorAddr(); ok {
		t.Fatal("vector 35 frame has an error slot")
	}
	// same entry stack, so the error code shifts everything below the
	// hardware frame down by one slot
	if withErr.Addr() != noErr.Addr()-RegSize {
		t.Fatalf("frame pointers 0x%x / 0x%x, want %d-byte shift",
			withErr.Addr(), noErr.Addr(), RegSize)
	}
	if withErr.IretAddr() != noErr.IretAddr() {
		t.Fatalf("iret frames diverge: 0x%x / 0x%x", withErr.IretAddr(), noErr.IretAddr())
	}
}

func TestErrorCodeRejected(t *testing.T) {
	table := NewTable()
	c := setupMachine(t, stackTop)
	if err := table.Deliver(c, 32, 0x2, &testDispatch{}); err == nil {
		t.Fatal("error code on vector 32 accepted")
	}
}

func TestSoftwareDispatch(t *testing.T) {
	table := NewTable()
	c := setupMachine(t, stackTop)
	var hit bool
	d := &testDispatch{soft: func(vector int, f *Frame) {
		if vector != 128 {
			t.Fatalf("software vector %d", vector)
		}
		hit = true
	}}
	if err := table.Deliver(c, 128, 0, d); err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Fatal("software handler never ran")
	}
}

func TestHandlerMutation(t *testing.T) {
	table := NewTable()
	c := setupMachine(t, stackTop)
	d := &testDispatch{exc: func(vector int, f *Frame) {
		if err := f.SetReg(x86_64.RAX, 0xdeadbeef); err != nil {
			t.Fatal(err)
		}
		ir, err := f.Iret()
		if err != nil {
			t.Fatal(err)
		}
		// resume past the faulting instruction
		ir.Rip = testRip + 2
		if err := f.SetIret(ir); err != nil {
			t.Fatal(err)
		}
	}}
	if err := table.Deliver(c, 14, 0x2, d); err != nil {
		t.Fatal(err)
	}
	rax, _ := c.RegRead(x86_64.RAX)
	if rax != 0xdeadbeef {
		t.Fatalf("rax 0x%x after mutated restore", rax)
	}
	rip, _ := c.RegRead(x86_64.RIP)
	if rip != testRip+2 {
		t.Fatalf("rip 0x%x after rewritten iret frame", rip)
	}
	rsp, _ := c.RegRead(x86_64.RSP)
	if rsp != stackTop {
		t.Fatalf("rsp 0x%x, want 0x%x", rsp, stackTop)
	}
}

func TestAlignUnalign(t *testing.T) {
	c := setupMachine(t, stackTop-8)
	before, _ := c.RegRead(x86_64.RSP)
	if err := align(c); err != nil {
		t.Fatal(err)
	}
	mid, _ := c.RegRead(x86_64.RSP)
	if mid%StackAlign != 0 {
		t.Fatalf("aligned rsp 0x%x", mid)
	}
	if err := unalign(c); err != nil {
		t.Fatal(err)
	}
	after, _ := c.RegRead(x86_64.RSP)
	if after != before {
		t.Fatalf("rsp 0x%x, want 0x%x", after, before)
	}
}

func TestSourceDeterministic(t *testing.T) {
	a := NewTable().Source()
	b := NewTable().Source()
	if a != b {
		t.Fatal("regenerated source differs")
	}
	if len(a) == 0 {
		t.Fatal("empty source")
	}
}

func TestDeliverWriteHooks(t *testing.T) {
	c := setupMachine(t, stackTop)
	writes := 0
	var low, high uint64 = ^uint64(0), 0
	c.HookAdd(cpu.HOOK_MEM_WRITE, func(_ cpu.Cpu, access int, addr uint64, size int, val int64) {
		writes++
		if addr < low {
			low = addr
		}
		if addr > high {
			high = addr
		}
	}, 1, 0)
	if err := NewTable().Deliver(c, 3, 0, &testDispatch{}); err != nil {
		t.Fatal(err)
	}
	// hardware frame, saved registers, two alignment slots
	if writes != 5+RegSlots+2 {
		t.Fatalf("write hook saw %d writes", writes)
	}
	if low < stackBase || high >= stackBase+stackSize {
		t.Fatalf("writes outside the stack: 0x%x-0x%x", low, high)
	}
}

func TestStubBody(t *testing.T) {
	table := NewTable()
	for _, v := range []int{0, 8, 14, 32, 48, 255} {
		stub, _ := table.Stub(v)
		body := stub.Body(stub.target())
		if body[len(body)-1] != "iretq" {
			t.Fatalf("vector %d: last instruction %q", v, body[len(body)-1])
		}
		var pushes, pops int
		for _, ins := range body {
			switch {
			case len(ins) > 5 && ins[:5] == "push ":
				pushes++
			case len(ins) > 4 && ins[:4] == "pop ":
				pops++
			}
		}
		// 16 save slots plus the two alignment words
		if pushes != RegSlots+2 {
			t.Fatalf("vector %d: %d pushes", v, pushes)
		}
		if pops != RegSlots+1 {
			t.Fatalf("vector %d: %d pops", v, pops)
		}
	}
}
