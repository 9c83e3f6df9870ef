package trace

import (
	"bytes"
	"io"
	"io/ioutil"
	"testing"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/cpu/sim64"
	"github.com/trapcore/trapcore/go/models/cpu"
	"github.com/trapcore/trapcore/go/trap"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func TestTraceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	tw, err := NewWriter(nopCloser{&buf}, "x86_64")
	if err != nil {
		t.Fatal(err)
	}
	ops := []Op{
		&OpDeliver{Vector: 14, Errcode: 2, Rip: 0x401000, Rsp: 0x7ff0},
		&OpReg{Num: 1, Val: 0xdead},
		&OpMem{Addr: 0x2000, Data: []byte{1, 2, 3}},
		&OpResume{Rip: 0x401002, Rsp: 0x7ff0},
		&OpExit{},
	}
	for _, op := range ops {
		if err := tw.Pack(op); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()

	tr, err := NewReader(ioutil.NopCloser(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if tr.Header.Arch[:6] != "x86_64" {
		t.Fatalf("arch %q", tr.Header.Arch)
	}
	first, err := tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	del, ok := first.(*OpDeliver)
	if !ok {
		t.Fatalf("first op %T", first)
	}
	if del.Vector != 14 || del.Errcode != 2 || del.Rip != 0x401000 {
		t.Fatalf("deliver op %+v", del)
	}
	for i := 1; i < len(ops); i++ {
		if _, err := tr.Next(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
}

func TestBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("nopeically long enough to hold a header maybe not")
	if _, err := NewReader(ioutil.NopCloser(buf)); err == nil {
		t.Fatal("bad magic accepted")
	}
}

type countDispatch struct{ n int }

func (d *countDispatch) Exception(vector int, f *trap.Frame) { d.n++ }
func (d *countDispatch) IRQ(vector int, f *trap.Frame)       { d.n++ }
func (d *countDispatch) Software(vector int, f *trap.Frame)  { d.n++ }

type mutDispatch struct {
	fn func(f *trap.Frame)
}

func (d *mutDispatch) Exception(vector int, f *trap.Frame) { d.fn(f) }
func (d *mutDispatch) IRQ(vector int, f *trap.Frame)       { d.fn(f) }
func (d *mutDispatch) Software(vector int, f *trap.Frame)  { d.fn(f) }

func TestRecorderRegOps(t *testing.T) {
	c := sim64.New()
	if err := c.MemMapProt(0x7000, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	c.RegWrite(x86_64.RSP, 0x8f00)
	c.RegWrite(x86_64.RIP, 0x400000)
	c.RegWrite(x86_64.CS, 0x08)
	c.RegWrite(x86_64.SS, 0x10)

	var buf bytes.Buffer
	inner := &mutDispatch{fn: func(f *trap.Frame) {
		if err := f.SetReg(x86_64.RAX, 0x31337); err != nil {
			t.Fatal(err)
		}
	}}
	rec, err := NewRecorder(nopCloser{&buf}, inner)
	if err != nil {
		t.Fatal(err)
	}
	if err := trap.NewTable().Deliver(c, 3, 0, rec); err != nil {
		t.Fatal(err)
	}
	rec.Close()

	tr, err := NewReader(ioutil.NopCloser(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Next(); err != nil {
		t.Fatal(err)
	}
	op, err := tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	reg, ok := op.(*OpReg)
	if !ok {
		t.Fatalf("second op %T", op)
	}
	if reg.Num != uint16(x86_64.RAX) || reg.Val != 0x31337 {
		t.Fatalf("reg op %+v", reg)
	}
	// only the mutated slot is logged
	op, err = tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := op.(*OpExit); !ok {
		t.Fatalf("third op %T", op)
	}
}

func TestRecorderMemOps(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(nopCloser{&buf}, &countDispatch{})
	if err != nil {
		t.Fatal(err)
	}
	rec.OnMem(nil, cpu.MEM_WRITE, 0x2000, 8, 0x1122)
	rec.OnMem(nil, cpu.MEM_READ, 0x3000, 8, 0)
	rec.Close()

	tr, err := NewReader(ioutil.NopCloser(&buf))
	if err != nil {
		t.Fatal(err)
	}
	op, err := tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	mem, ok := op.(*OpMem)
	if !ok {
		t.Fatalf("first op %T", op)
	}
	if mem.Addr != 0x2000 || len(mem.Data) != 8 || mem.Data[0] != 0x22 || mem.Data[1] != 0x11 {
		t.Fatalf("mem op %+v", mem)
	}
	// reads are not recorded
	op, err = tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := op.(*OpExit); !ok {
		t.Fatalf("second op %T", op)
	}
}

func TestRecorder(t *testing.T) {
	c := sim64.New()
	if err := c.MemMapProt(0x7000, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	c.RegWrite(x86_64.RSP, 0x8f00)
	c.RegWrite(x86_64.RIP, 0x400000)
	c.RegWrite(x86_64.CS, 0x08)
	c.RegWrite(x86_64.SS, 0x10)
	c.RegWrite(x86_64.RFLAGS, 0x202)

	var buf bytes.Buffer
	inner := &countDispatch{}
	rec, err := NewRecorder(nopCloser{&buf}, inner)
	if err != nil {
		t.Fatal(err)
	}
	table := trap.NewTable()
	if err := table.Deliver(c, 13, 0x10, rec); err != nil {
		t.Fatal(err)
	}
	if err := rec.Resume(c); err != nil {
		t.Fatal(err)
	}
	rec.Close()
	if inner.n != 1 {
		t.Fatalf("forwarded %d deliveries", inner.n)
	}

	tr, err := NewReader(ioutil.NopCloser(&buf))
	if err != nil {
		t.Fatal(err)
	}
	op, err := tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	del := op.(*OpDeliver)
	if del.Vector != 13 || del.Errcode != 0x10 || del.Rip != 0x400000 {
		t.Fatalf("deliver op %+v", del)
	}
	op, err = tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	res := op.(*OpResume)
	if res.Rip != 0x400000 || res.Rsp != 0x8f00 {
		t.Fatalf("resume op %+v", res)
	}
}
