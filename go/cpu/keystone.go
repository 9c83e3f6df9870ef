package cpu

import (
	"strings"

	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	"github.com/pkg/errors"
)

// Keystone assembles generated stub bodies. The zero value targets
// x86-64, the only flavor the generator emits; Arch/Mode can be set
// for anything else.
type Keystone struct {
	Arch ks.Architecture
	Mode ks.Mode
	ks   *ks.Keystone
}

func (k *Keystone) Open() (err error) {
	arch, mode := k.Arch, k.Mode
	if arch == 0 {
		arch, mode = ks.ARCH_X86, ks.MODE_64
	}
	k.ks, err = ks.New(arch, mode)
	return errors.Wrap(err, "ks.New() failed")
}

func (k *Keystone) Asm(asm string, addr uint64) ([]byte, error) {
	if k.ks == nil {
		if err := k.Open(); err != nil {
			return nil, err
		}
	}
	out, _, ok := k.ks.Assemble(asm, addr)
	if !ok {
		return nil, errors.Wrap(k.ks.LastError(), "ks.Assemble() failed")
	}
	return out, nil
}

// AsmLines assembles one instruction per line, the shape Stub.Body
// produces.
func (k *Keystone) AsmLines(lines []string, addr uint64) ([]byte, error) {
	return k.Asm(strings.Join(lines, "\n"), addr)
}
