package x86_64

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// IDT gate attribute bits
const (
	IDT_PRESENT = 1 << 7
	IDT_DPL0    = 0 << 5
	IDT_DPL1    = 1 << 5
	IDT_DPL2    = 2 << 5
	IDT_DPL3    = 3 << 5

	IDT_TYPE_INT_GATE  = 0xE
	IDT_TYPE_TRAP_GATE = 0xF

	// interrupt gate, ring 0: the default for every vector
	KERNEL_INT_FLAGS = IDT_PRESENT | IDT_DPL0 | IDT_TYPE_INT_GATE
	// interrupt gate reachable from ring 3, for user-triggered vectors
	USER_INT_FLAGS = IDT_PRESENT | IDT_DPL3 | IDT_TYPE_INT_GATE
)

// IdtEntry is the 16-byte long-mode gate descriptor. IDT population
// itself is the consumer's job; this is just the wire layout.
type IdtEntry struct {
	IsrLow   uint16
	Selector uint16
	Ist      uint8
	Flags    uint8
	IsrMid   uint16
	IsrHigh  uint32
	Reserved uint32
}

func NewIdtEntry(isr uint64, selector uint16, ist, flags uint8) IdtEntry {
	return IdtEntry{
		IsrLow:   uint16(isr & 0xffff),
		Selector: selector,
		Ist:      ist,
		Flags:    flags,
		IsrMid:   uint16((isr >> 16) & 0xffff),
		IsrHigh:  uint32(isr >> 32),
	}
}

// Isr reassembles the stub address from its three slices.
func (e *IdtEntry) Isr() uint64 {
	return uint64(e.IsrLow) | uint64(e.IsrMid)<<16 | uint64(e.IsrHigh)<<32
}

func (e *IdtEntry) Pack() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, e, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "failed to pack IDT entry")
	}
	return buf.Bytes(), nil
}

func UnpackIdtEntry(p []byte) (*IdtEntry, error) {
	e := &IdtEntry{}
	if err := struc.UnpackWithOrder(bytes.NewReader(p), e, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "failed to unpack IDT entry")
	}
	return e, nil
}
