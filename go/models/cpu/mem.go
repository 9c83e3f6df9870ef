package cpu

import (
	"github.com/pkg/errors"
)

// Mem wraps MemSim to make a Cpu interface-compatible memory model.
// The machine modeled here is long-mode x86, so words are 64-bit
// little-endian.
//
// Every access checks page protections and dispatches memory hooks.
// A failed access first runs the fault hooks; when one reports the
// fault handled (a page fault was injected and serviced), the access
// is retried once.
type Mem struct {
	bits uint
	// methods return an error for addresses that do not fit inside mask
	mask uint64
	// Mem.hooks is set when passing *Mem to NewHooks()
	hooks *Hooks
	// MemSim is private, so any cpu-facing functionality needs to be wrapped by Mem
	sim *MemSim
}

func NewMem(bits uint) *Mem {
	return &Mem{
		bits: bits,
		mask: ^uint64(0) >> (64 - bits),
		sim:  &MemSim{},
	}
}

func (m *Mem) Mappings() Pages {
	return m.sim.Mem
}

func (m *Mem) MemMapProt(addr, size uint64, prot int) error {
	if addr+size&m.mask != addr+size {
		return errors.New("region outside memory range")
	}
	m.sim.Map(addr, size, prot, false)
	return nil
}

func (m *Mem) MemProt(addr, size uint64, prot int) error {
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Prot(addr, size, prot)
	return nil
}

func (m *Mem) MemUnmap(addr, size uint64) error {
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Unmap(addr, size)
	return nil
}

func (m *Mem) MemReadInto(p []byte, addr uint64) error {
	err := m.sim.Read(addr, p, PROT_READ)
	if merr, ok := err.(*MemError); ok && m.hooks != nil {
		if m.hooks.OnFault(merr.Enum, addr, len(p), 0) {
			err = m.sim.Read(addr, p, PROT_READ)
		}
	}
	if err == nil && m.hooks != nil {
		m.hooks.OnMem(MEM_READ, addr, len(p), 0)
	}
	return err
}

func (m *Mem) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) MemWrite(addr uint64, p []byte) error {
	// word-sized writes surface their value to the write hooks
	var val int64
	switch len(p) {
	case 1, 2, 4, 8:
		v, _ := UnpackUint(len(p), p)
		val = int64(v)
	}
	err := m.sim.Write(addr, p, PROT_WRITE)
	if merr, ok := err.(*MemError); ok && m.hooks != nil {
		if m.hooks.OnFault(merr.Enum, addr, len(p), val) {
			err = m.sim.Write(addr, p, PROT_WRITE)
		}
	}
	if err == nil && m.hooks != nil {
		m.hooks.OnMem(MEM_WRITE, addr, len(p), val)
	}
	return err
}

// ReadStrAt reads a NUL-terminated string, one page-safe chunk at a
// time so a string ending near an unmapped page still reads cleanly.
func (m *Mem) ReadStrAt(addr uint64) (string, error) {
	var out []byte
	var chunk [64]byte
	for {
		n := uint64(len(chunk))
		if rem := 0x1000 - (addr & 0xfff); rem < n {
			n = rem
		}
		if err := m.MemReadInto(chunk[:n], addr); err != nil {
			return "", err
		}
		for i := uint64(0); i < n; i++ {
			if chunk[i] == 0 {
				return string(append(out, chunk[:i]...)), nil
			}
		}
		out = append(out, chunk[:n]...)
		addr += n
	}
}

func (m *Mem) ReadUint(addr uint64, size int) (uint64, error) {
	var buf [8]byte
	if size > 8 {
		return 0, errors.Errorf("MemReadUint size too large: %d > 8", size)
	}
	if err := m.MemReadInto(buf[:size], addr); err != nil {
		return 0, err
	}
	return UnpackUint(size, buf[:size])
}

func (m *Mem) WriteUint(addr uint64, size int, val uint64) error {
	var buf [8]byte
	if size > 8 {
		return errors.Errorf("MemWriteUint size too large: %d > 8", size)
	}
	if _, err := PackUint(size, buf[:], val); err != nil {
		return err
	}
	return m.MemWrite(addr, buf[:size])
}
