package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"

	"github.com/trapcore/trapcore/go/models/cpu"
)

type StrucStream struct {
	Stream io.ReadWriter
	Order  binary.ByteOrder
}

func (s *StrucStream) Pack(i interface{}) error {
	return struc.PackWithOrder(s.Stream, i, s.Order)
}

func (s *StrucStream) Unpack(i interface{}) error {
	return struc.UnpackWithOrder(s.Stream, i, s.Order)
}

// MemIO adapts a machine's memory to io.ReadWriter, advancing an address
// cursor, so struct layouts can be packed and unpacked straight out of
// simulated memory.
type MemIO struct {
	C    cpu.Cpu
	Addr uint64
}

func (m *MemIO) Read(p []byte) (int, error) {
	if err := m.C.MemReadInto(p, m.Addr); err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}

func (m *MemIO) Write(p []byte) (int, error) {
	if err := m.C.MemWrite(m.Addr, p); err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}

// StrucAt returns a struc view of machine memory at addr.
func StrucAt(c cpu.Cpu, addr uint64) *StrucStream {
	return &StrucStream{
		Stream: &MemIO{C: c, Addr: addr},
		Order:  binary.LittleEndian,
	}
}
