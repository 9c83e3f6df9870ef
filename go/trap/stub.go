package trap

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/models/cpu"
)

// Dispatcher is implemented by the handler layer. Each method is one of
// the three externally visible handler contracts; every handler must
// return normally so the stub can unwind back to the interrupted
// context.
type Dispatcher interface {
	Exception(vector int, f *Frame)
	IRQ(vector int, f *Frame)
	Software(vector int, f *Frame)
}

// Stub is one vector's entry point. All four classes share the same
// save/align/restore scaffolding; the class only picks which Dispatcher
// method gets called.
type Stub struct {
	Vector int
	Class  int
}

func (s *Stub) Name() string {
	return fmt.Sprintf("isr_stub_%d", s.Vector)
}

func push(c cpu.Cpu, val uint64) error {
	sp, err := c.RegRead(x86_64.RSP)
	if err != nil {
		return err
	}
	sp -= RegSize
	buf, _ := cpu.PackUint(RegSize, nil, val)
	if err := c.MemWrite(sp, buf); err != nil {
		return err
	}
	return c.RegWrite(x86_64.RSP, sp)
}

func pop(c cpu.Cpu) (uint64, error) {
	sp, err := c.RegRead(x86_64.RSP)
	if err != nil {
		return 0, err
	}
	p, err := c.MemRead(sp, RegSize)
	if err != nil {
		return 0, err
	}
	val, err := cpu.UnpackUint(RegSize, p)
	if err != nil {
		return 0, err
	}
	return val, c.RegWrite(x86_64.RSP, sp+RegSize)
}

// save pushes every general-purpose register in the fixed frame order.
// The rsp slot records the stack pointer at stub entry (the address of
// the hardware frame), matching what the generated assembly computes
// with lea. Nothing is clobbered before it lands on the stack.
func save(c cpu.Cpu) (uint64, error) {
	entry, err := c.RegRead(x86_64.RSP)
	if err != nil {
		return 0, err
	}
	// push order is the reverse of memory order
	for i := len(frameOrder) - 1; i >= 0; i-- {
		enum := frameOrder[i]
		val := entry
		if enum != x86_64.RSP {
			if val, err = c.RegRead(enum); err != nil {
				return 0, err
			}
		}
		if err := push(c, val); err != nil {
			return 0, errors.Wrap(err, "register save failed")
		}
	}
	// frame pointer: rsp right after the save sequence
	return entry - FrameSize, nil
}

// restore is save's exact mirror: it reads the slots back from the
// frame (picking up any handler mutations) and pops the stack past
// them. The rsp slot is skipped, not popped into rsp.
func restore(c cpu.Cpu, fp uint64) error {
	for i, enum := range frameOrder {
		if enum == x86_64.RSP {
			continue
		}
		addr := fp + uint64(i)*RegSize
		p, err := c.MemRead(addr, RegSize)
		if err != nil {
			return errors.Wrap(err, "register restore failed")
		}
		val, _ := cpu.UnpackUint(RegSize, p)
		if err := c.RegWrite(enum, val); err != nil {
			return err
		}
	}
	return c.RegWrite(x86_64.RSP, fp+FrameSize)
}

// align forces the stack to the ABI boundary for the handler call:
// round down, push the original stack pointer, push one padding slot so
// the two pushes cancel out against the boundary.
func align(c cpu.Cpu) error {
	orig, err := c.RegRead(x86_64.RSP)
	if err != nil {
		return err
	}
	if err := c.RegWrite(x86_64.RSP, orig&^uint64(StackAlign-1)); err != nil {
		return err
	}
	if err := push(c, orig); err != nil {
		return errors.Wrap(err, "stack align failed")
	}
	if err := push(c, 0); err != nil {
		return errors.Wrap(err, "stack align failed")
	}
	return nil
}

// unalign undoes align: pop the padding, then pop the saved original
// pointer back into rsp. Net stack movement is exactly zero.
func unalign(c cpu.Cpu) error {
	if _, err := pop(c); err != nil {
		return errors.Wrap(err, "stack unalign failed")
	}
	orig, err := pop(c)
	if err != nil {
		return errors.Wrap(err, "stack unalign failed")
	}
	return c.RegWrite(x86_64.RSP, orig)
}

// iret pops the hardware frame and resumes the interrupted context.
func iret(c cpu.Cpu) error {
	regs := []int{x86_64.RIP, x86_64.CS, x86_64.RFLAGS}
	vals := make([]uint64, 0, 5)
	for range regs {
		val, err := pop(c)
		if err != nil {
			return errors.Wrap(err, "iret failed")
		}
		vals = append(vals, val)
	}
	rsp, err := pop(c)
	if err != nil {
		return errors.Wrap(err, "iret failed")
	}
	ss, err := pop(c)
	if err != nil {
		return errors.Wrap(err, "iret failed")
	}
	for i, enum := range regs {
		if err := c.RegWrite(enum, vals[i]); err != nil {
			return err
		}
	}
	if err := c.RegWrite(x86_64.SS, ss); err != nil {
		return err
	}
	return c.RegWrite(x86_64.RSP, rsp)
}

// run is the reference rendition of the generated assembly: save the
// registers, compute the frame pointer, align, call the class handler,
// unalign, restore, iret.
func (s *Stub) run(c cpu.Cpu, d Dispatcher) error {
	fp, err := save(c)
	if err != nil {
		return err
	}
	frame := NewFrame(c, s.Vector, fp)

	if err := align(c); err != nil {
		return err
	}
	switch s.Class {
	case x86_64.CLASS_EXCEPTION, x86_64.CLASS_EXCEPTION_ERR:
		d.Exception(s.Vector, frame)
	case x86_64.CLASS_IRQ:
		d.IRQ(s.Vector, frame)
	case x86_64.CLASS_SOFTWARE:
		d.Software(s.Vector, frame)
	}
	if err := unalign(c); err != nil {
		return err
	}

	if err := restore(c, fp); err != nil {
		return err
	}
	// drop the hardware error code before iret
	if s.Class == x86_64.CLASS_EXCEPTION_ERR {
		sp, err := c.RegRead(x86_64.RSP)
		if err != nil {
			return err
		}
		if err := c.RegWrite(x86_64.RSP, sp+RegSize); err != nil {
			return err
		}
	}
	return iret(c)
}
