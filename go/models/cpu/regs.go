package cpu

import (
	"github.com/pkg/errors"
)

// Regs implements the register half of the Cpu interface.
// The register file is always 64 bits wide here: the only machine this
// repo models is long-mode x86.
type Regs struct {
	vals map[int]uint64
}

func NewRegs(enums []int) *Regs {
	r := &Regs{vals: make(map[int]uint64, len(enums))}
	for _, e := range enums {
		r.vals[e] = 0
	}
	return r
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	if val, ok := r.vals[enum]; !ok {
		return 0, errors.Errorf("invalid register: %d", enum)
	} else {
		return val, nil
	}
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	if _, ok := r.vals[enum]; !ok {
		return errors.Errorf("invalid register: %d", enum)
	}
	r.vals[enum] = val
	return nil
}

// ContextSave only covers the register file. Memory is not snapshotted, as
// the trap discipline makes no net memory mutations outside the frame area.
func (r *Regs) ContextSave(reuse interface{}) (interface{}, error) {
	var m map[int]uint64
	if reuse != nil {
		var ok bool
		if m, ok = reuse.(map[int]uint64); !ok {
			return nil, errors.New("incorrect context type")
		}
	} else {
		m = make(map[int]uint64, len(r.vals))
	}
	for k, v := range r.vals {
		m[k] = v
	}
	return m, nil
}

func (r *Regs) ContextRestore(ctx interface{}) error {
	if m, ok := ctx.(map[int]uint64); !ok {
		return errors.New("incorrect context type")
	} else {
		for k, v := range m {
			r.vals[k] = v
		}
		return nil
	}
}
