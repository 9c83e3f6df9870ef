package trace

import (
	"io"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/models/cpu"
	"github.com/trapcore/trapcore/go/trap"
)

// saved frame slots diffed around each dispatch
var savedRegs = []int{
	x86_64.RAX, x86_64.RBX, x86_64.RCX, x86_64.RDX,
	x86_64.RSI, x86_64.RDI, x86_64.RBP, x86_64.RSP,
	x86_64.R8, x86_64.R9, x86_64.R10, x86_64.R11,
	x86_64.R12, x86_64.R13, x86_64.R14, x86_64.R15,
}

// Recorder wraps a Dispatcher and logs every delivery it forwards,
// plus one reg op per saved slot the handler mutated. Resume must be
// called after each delivery unwinds; the stub has restored the
// interrupted context by then, so the machine registers are the resume
// state.
type Recorder struct {
	tw *TraceWriter
	d  trap.Dispatcher
}

func NewRecorder(w io.WriteCloser, d trap.Dispatcher) (*Recorder, error) {
	tw, err := NewWriter(w, x86_64.Arch.Name)
	if err != nil {
		return nil, err
	}
	return &Recorder{tw: tw, d: d}, nil
}

func (r *Recorder) deliver(f *trap.Frame, forward func()) {
	op := &OpDeliver{Vector: uint16(f.Vector())}
	if code, err := f.Error(); err == nil {
		op.Errcode = code
	}
	if ir, err := f.Iret(); err == nil {
		op.Rip = ir.Rip
		op.Rsp = ir.Rsp
	}
	r.tw.Pack(op)

	var before [16]uint64
	for i, enum := range savedRegs {
		before[i], _ = f.Reg(enum)
	}
	forward()
	for i, enum := range savedRegs {
		if val, err := f.Reg(enum); err == nil && val != before[i] {
			r.tw.Pack(&OpReg{Num: uint16(enum), Val: val})
		}
	}
}

func (r *Recorder) Exception(vector int, f *trap.Frame) {
	r.deliver(f, func() { r.d.Exception(vector, f) })
}

func (r *Recorder) IRQ(vector int, f *trap.Frame) {
	r.deliver(f, func() { r.d.IRQ(vector, f) })
}

func (r *Recorder) Software(vector int, f *trap.Frame) {
	r.deliver(f, func() { r.d.Software(vector, f) })
}

// OnMem is shaped like a memory hook callback so tools can feed
// observed guest writes straight into the trace.
func (r *Recorder) OnMem(_ cpu.Cpu, access int, addr uint64, size int, val int64) {
	if access != cpu.MEM_WRITE {
		return
	}
	data, err := cpu.PackUint(size, nil, uint64(val))
	if err != nil {
		return
	}
	r.tw.Pack(&OpMem{Addr: addr, Data: data})
}

func (r *Recorder) Resume(c cpu.Cpu) error {
	rip, err := c.RegRead(x86_64.RIP)
	if err != nil {
		return err
	}
	rsp, err := c.RegRead(x86_64.RSP)
	if err != nil {
		return err
	}
	return r.tw.Pack(&OpResume{Rip: rip, Rsp: rsp})
}

func (r *Recorder) Close() {
	r.tw.Pack(&OpExit{})
	r.tw.Close()
}
