package sim64

import (
	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/models/cpu"
)

// Sim64 is a pure-Go x86-64 machine state model: a register file and a
// sparse paged memory behind the Cpu interface. It executes nothing; the
// trap engine drives it the way real stubs drive a real machine, which
// is what makes the trap discipline testable on a host.
type Sim64 struct {
	*cpu.Hooks
	*cpu.Regs
	*cpu.Mem
}

type Builder struct{}

func (b *Builder) New() (cpu.Cpu, error) {
	c := &Sim64{
		Regs: cpu.NewRegs(x86_64.Arch.RegEnums()),
		Mem:  cpu.NewMem(64),
	}
	c.Hooks = cpu.NewHooks(c, c.Mem)
	return c, nil
}

// New is shorthand for tools and tests that want the concrete type.
func New() *Sim64 {
	c, _ := (&Builder{}).New()
	return c.(*Sim64)
}

func (s *Sim64) Backend() interface{} {
	return s
}

func (s *Sim64) Close() error {
	return nil
}
