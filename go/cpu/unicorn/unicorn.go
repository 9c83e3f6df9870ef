package unicorn

import (
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/models/cpu"
)

// ucRegs maps the portable register enums onto unicorn's.
var ucRegs = map[int]int{
	x86_64.RAX:    uc.X86_REG_RAX,
	x86_64.RBX:    uc.X86_REG_RBX,
	x86_64.RCX:    uc.X86_REG_RCX,
	x86_64.RDX:    uc.X86_REG_RDX,
	x86_64.RSI:    uc.X86_REG_RSI,
	x86_64.RDI:    uc.X86_REG_RDI,
	x86_64.RBP:    uc.X86_REG_RBP,
	x86_64.RSP:    uc.X86_REG_RSP,
	x86_64.R8:     uc.X86_REG_R8,
	x86_64.R9:     uc.X86_REG_R9,
	x86_64.R10:    uc.X86_REG_R10,
	x86_64.R11:    uc.X86_REG_R11,
	x86_64.R12:    uc.X86_REG_R12,
	x86_64.R13:    uc.X86_REG_R13,
	x86_64.R14:    uc.X86_REG_R14,
	x86_64.R15:    uc.X86_REG_R15,
	x86_64.RIP:    uc.X86_REG_RIP,
	x86_64.RFLAGS: uc.X86_REG_EFLAGS,
	x86_64.CS:     uc.X86_REG_CS,
	x86_64.SS:     uc.X86_REG_SS,
}

type Builder struct{}

func (b *Builder) New() (cpu.Cpu, error) {
	u, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, errors.Wrap(err, "NewUnicorn() failed")
	}
	return &UnicornCpu{u}, nil
}

// UnicornCpu runs the generated stubs under emulation, behind the same
// interface the pure-Go machine model presents.
type UnicornCpu struct {
	uc.Unicorn
}

func (u *UnicornCpu) Backend() interface{} {
	return u.Unicorn
}

func (u *UnicornCpu) RegRead(enum int) (uint64, error) {
	reg, ok := ucRegs[enum]
	if !ok {
		return 0, errors.Errorf("unknown register enum %d", enum)
	}
	return u.Unicorn.RegRead(reg)
}

func (u *UnicornCpu) RegWrite(enum int, val uint64) error {
	reg, ok := ucRegs[enum]
	if !ok {
		return errors.Errorf("unknown register enum %d", enum)
	}
	return u.Unicorn.RegWrite(reg, val)
}

func (u *UnicornCpu) MemMapProt(addr, size uint64, prot int) error {
	return u.Unicorn.MemMapProt(addr, size, prot)
}

func (u *UnicornCpu) MemProt(addr, size uint64, prot int) error {
	return u.Unicorn.MemProtect(addr, size, prot)
}

func (u *UnicornCpu) MemReadInto(p []byte, addr uint64) error {
	tmp, err := u.Unicorn.MemRead(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(p, tmp)
	return nil
}

func (u *UnicornCpu) ContextSave(reuse interface{}) (interface{}, error) {
	if reuse == nil {
		return u.Unicorn.ContextSave(nil)
	}
	return u.Unicorn.ContextSave(reuse.(uc.Context))
}

func (u *UnicornCpu) ContextRestore(ctx interface{}) error {
	return u.Unicorn.ContextRestore(ctx.(uc.Context))
}
