package trace

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var order = binary.LittleEndian

const (
	OP_NOP     = 0
	OP_DELIVER = 1
	OP_REG     = 2
	OP_MEM     = 3
	OP_RESUME  = 4
	OP_EXIT    = 5
)

type Op interface {
	Sizeof() int
	Pack(p []byte)
	Unpack(r io.Reader) (int, error)
}

func Unpack(r io.Reader) (Op, int, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return nil, 0, err
	}
	var op Op
	switch tmp[0] {
	case OP_NOP:
		op = &OpNop{}
	case OP_DELIVER:
		op = &OpDeliver{}
	case OP_REG:
		op = &OpReg{}
	case OP_MEM:
		op = &OpMem{}
	case OP_RESUME:
		op = &OpResume{}
	case OP_EXIT:
		op = &OpExit{}
	default:
		return nil, 0, errors.Errorf("unknown op: %d", tmp[0])
	}
	n, err := op.Unpack(r)
	return op, n + 1, err
}

type OpNop struct{}

func (o *OpNop) Sizeof() int   { return 1 }
func (o *OpNop) Pack(p []byte) { p[0] = OP_NOP }

func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

type OpExit struct{ OpNop }

func (o *OpExit) Pack(p []byte) { p[0] = OP_EXIT }

// OpDeliver records one trap entering its stub.
type OpDeliver struct {
	Vector  uint16
	Errcode uint64
	Rip     uint64
	Rsp     uint64
}

func (o *OpDeliver) Sizeof() int { return 1 + 2 + 8 + 8 + 8 }
func (o *OpDeliver) Pack(p []byte) {
	p[0] = OP_DELIVER
	order.PutUint16(p[1:], o.Vector)
	order.PutUint64(p[3:], o.Errcode)
	order.PutUint64(p[11:], o.Rip)
	order.PutUint64(p[19:], o.Rsp)
}

func (o *OpDeliver) Unpack(r io.Reader) (int, error) {
	var tmp [2 + 8 + 8 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Vector = order.Uint16(tmp[:])
		o.Errcode = order.Uint64(tmp[2:])
		o.Rip = order.Uint64(tmp[10:])
		o.Rsp = order.Uint64(tmp[18:])
	}
	return n, err
}

// OpReg records a handler mutating one saved register slot.
type OpReg struct {
	Num uint16
	Val uint64
}

func (o *OpReg) Sizeof() int { return 1 + 2 + 8 }
func (o *OpReg) Pack(p []byte) {
	p[0] = OP_REG
	order.PutUint16(p[1:], o.Num)
	order.PutUint64(p[3:], o.Val)
}

func (o *OpReg) Unpack(r io.Reader) (int, error) {
	var tmp [2 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Num = order.Uint16(tmp[:])
		o.Val = order.Uint64(tmp[2:])
	}
	return n, err
}

// OpMem records a guest memory write observed during handling.
type OpMem struct {
	Addr uint64
	Data []byte
}

func (o *OpMem) Sizeof() int { return 1 + 8 + 4 + len(o.Data) }
func (o *OpMem) Pack(p []byte) {
	p[0] = OP_MEM
	order.PutUint64(p[1:], o.Addr)
	order.PutUint32(p[9:], uint32(len(o.Data)))
	copy(p[13:], o.Data)
}

func (o *OpMem) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 4]byte
	total, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		size := order.Uint32(tmp[8:])
		o.Data = make([]byte, size)
		n, err := io.ReadFull(r, o.Data)
		return total + n, err
	}
	return total, err
}

// OpResume records the context the machine resumed with after iret.
type OpResume struct {
	Rip uint64
	Rsp uint64
}

func (o *OpResume) Sizeof() int { return 1 + 8 + 8 }
func (o *OpResume) Pack(p []byte) {
	p[0] = OP_RESUME
	order.PutUint64(p[1:], o.Rip)
	order.PutUint64(p[9:], o.Rsp)
}

func (o *OpResume) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Rip = order.Uint64(tmp[:])
		o.Rsp = order.Uint64(tmp[8:])
	}
	return n, err
}
