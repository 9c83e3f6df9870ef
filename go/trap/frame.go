package trap

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/models"
	"github.com/trapcore/trapcore/go/models/cpu"
)

const (
	RegSize    = 8
	RegSlots   = 16
	FrameSize  = RegSlots * RegSize // saved register frame
	IretSize   = 5 * RegSize       // rip, cs, rflags, rsp, ss
	StackAlign = 16
)

// frameOrder lists the saved register slots in memory order, from the
// frame pointer upward. The stub pushes them in the reverse order, so
// rax lands highest (right below the hardware frame) and r15 lowest.
// This layout is ABI: handler code and the generated assembly both
// depend on it.
var frameOrder = []int{
	x86_64.R15, x86_64.R14, x86_64.R13, x86_64.R12,
	x86_64.R11, x86_64.R10, x86_64.R9, x86_64.R8,
	x86_64.RSP, x86_64.RBP, x86_64.RDI, x86_64.RSI,
	x86_64.RDX, x86_64.RCX, x86_64.RBX, x86_64.RAX,
}

var frameOffset = func() map[int]uint64 {
	m := make(map[int]uint64, len(frameOrder))
	for i, e := range frameOrder {
		m[e] = uint64(i) * RegSize
	}
	return m
}()

// RegFrame mirrors the saved register frame's memory layout.
type RegFrame struct {
	R15 uint64
	R14 uint64
	R13 uint64
	R12 uint64
	R11 uint64
	R10 uint64
	R9  uint64
	R8  uint64
	Rsp uint64
	Rbp uint64
	Rdi uint64
	Rsi uint64
	Rdx uint64
	Rcx uint64
	Rbx uint64
	Rax uint64
}

// IretFrame mirrors the hardware-pushed part of the trap frame. Long
// mode always pushes SS:RSP.
type IretFrame struct {
	Rip    uint64
	Cs     uint64
	Rflags uint64
	Rsp    uint64
	Ss     uint64
}

// Frame is the handler-facing view of one trap frame: the saved
// registers at the frame pointer, then (for error-code exceptions) the
// hardware error code, then the hardware iret frame. Mutations through
// it land in machine memory, so the restore path picks them up.
type Frame struct {
	c      cpu.Cpu
	vector int
	class  int
	addr   uint64
}

func NewFrame(c cpu.Cpu, vector int, addr uint64) *Frame {
	return &Frame{c: c, vector: vector, class: x86_64.Classify(vector), addr: addr}
}

// Cpu returns the machine the frame lives in.
func (f *Frame) Cpu() cpu.Cpu {
	return f.c
}

func (f *Frame) Vector() int {
	return f.vector
}

func (f *Frame) Class() int {
	return f.class
}

// Addr returns the frame pointer: the lowest address of the saved
// register frame.
func (f *Frame) Addr() uint64 {
	return f.addr
}

// ErrorAddr/IretAddr expose the layout: the error-code slot (when
// present) sits right above the saved registers, and shifts the iret
// frame up by one slot. This is the 8-byte layout difference between
// the error and no-error classes.
func (f *Frame) ErrorAddr() (uint64, bool) {
	if f.class != x86_64.CLASS_EXCEPTION_ERR {
		return 0, false
	}
	return f.addr + FrameSize, true
}

func (f *Frame) IretAddr() uint64 {
	if f.class == x86_64.CLASS_EXCEPTION_ERR {
		return f.addr + FrameSize + RegSize
	}
	return f.addr + FrameSize
}

func (f *Frame) Reg(enum int) (uint64, error) {
	off, ok := frameOffset[enum]
	if !ok {
		return 0, errors.Errorf("register %d is not in the saved frame", enum)
	}
	var val uint64
	err := models.StrucAt(f.c, f.addr+off).Unpack(&val)
	return val, errors.Wrap(err, "frame read failed")
}

func (f *Frame) SetReg(enum int, val uint64) error {
	off, ok := frameOffset[enum]
	if !ok {
		return errors.Errorf("register %d is not in the saved frame", enum)
	}
	return errors.Wrap(models.StrucAt(f.c, f.addr+off).Pack(&val), "frame write failed")
}

// Error reads the hardware error code. Only error-code exception
// vectors have one; anything else is a caller bug.
func (f *Frame) Error() (uint64, error) {
	addr, ok := f.ErrorAddr()
	if !ok {
		return 0, errors.Errorf("vector %d has no error code", f.vector)
	}
	var val uint64
	err := models.StrucAt(f.c, addr).Unpack(&val)
	return val, errors.Wrap(err, "frame read failed")
}

func (f *Frame) Regs() (*RegFrame, error) {
	r := &RegFrame{}
	if err := models.StrucAt(f.c, f.addr).Unpack(r); err != nil {
		return nil, errors.Wrap(err, "frame read failed")
	}
	return r, nil
}

func (f *Frame) SetRegs(r *RegFrame) error {
	return errors.Wrap(models.StrucAt(f.c, f.addr).Pack(r), "frame write failed")
}

func (f *Frame) Iret() (*IretFrame, error) {
	r := &IretFrame{}
	if err := models.StrucAt(f.c, f.IretAddr()).Unpack(r); err != nil {
		return nil, errors.Wrap(err, "frame read failed")
	}
	return r, nil
}

// SetIret rewrites the hardware frame, which is how a handler resumes
// somewhere else (skipping a faulting instruction, switching stacks).
func (f *Frame) SetIret(r *IretFrame) error {
	return errors.Wrap(models.StrucAt(f.c, f.IretAddr()).Pack(r), "frame write failed")
}

func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (vector %d, %s) frame at 0x%x\n",
		x86_64.VectorName(f.vector), f.vector, x86_64.ClassName(f.class), f.addr)
	if code, err := f.Error(); err == nil {
		fmt.Fprintf(&b, "  error code 0x%x\n", code)
	}
	if ir, err := f.Iret(); err == nil {
		fmt.Fprintf(&b, "  rip 0x%016x cs 0x%02x rflags 0x%08x\n", ir.Rip, ir.Cs, ir.Rflags)
		fmt.Fprintf(&b, "  rsp 0x%016x ss 0x%02x\n", ir.Rsp, ir.Ss)
	}
	if r, err := f.Regs(); err == nil {
		fmt.Fprintf(&b, "  rax 0x%016x rbx 0x%016x rcx 0x%016x\n", r.Rax, r.Rbx, r.Rcx)
		fmt.Fprintf(&b, "  rdx 0x%016x rsi 0x%016x rdi 0x%016x\n", r.Rdx, r.Rsi, r.Rdi)
		fmt.Fprintf(&b, "  rbp 0x%016x rsp 0x%016x r8  0x%016x\n", r.Rbp, r.Rsp, r.R8)
		fmt.Fprintf(&b, "  r9  0x%016x r10 0x%016x r11 0x%016x\n", r.R9, r.R10, r.R11)
		fmt.Fprintf(&b, "  r12 0x%016x r13 0x%016x r14 0x%016x\n", r.R12, r.R13, r.R14)
		fmt.Fprintf(&b, "  r15 0x%016x\n", r.R15)
	}
	return b.String()
}
