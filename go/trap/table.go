package trap

import (
	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/models/cpu"
)

// Table holds one stub per vector. Index == vector number.
type Table struct {
	Stubs [x86_64.VECTOR_COUNT]Stub
}

func NewTable() *Table {
	t := &Table{}
	for v := 0; v < x86_64.VECTOR_COUNT; v++ {
		t.Stubs[v] = Stub{Vector: v, Class: x86_64.Classify(v)}
	}
	return t
}

func (t *Table) Stub(vector int) (*Stub, error) {
	if vector < 0 || vector >= x86_64.VECTOR_COUNT {
		return nil, errors.Errorf("vector %d out of range", vector)
	}
	return &t.Stubs[vector], nil
}

// Deliver plays the part of the interrupt hardware: it pushes the iret
// frame (and the error code when the vector carries one) onto the
// current stack, then enters the vector's stub. errcode must be zero
// for vectors that do not push one.
func (t *Table) Deliver(c cpu.Cpu, vector int, errcode uint64, d Dispatcher) error {
	stub, err := t.Stub(vector)
	if err != nil {
		return err
	}
	if errcode != 0 && stub.Class != x86_64.CLASS_EXCEPTION_ERR {
		return errors.Errorf("vector %d (%s) does not take an error code", vector, x86_64.VectorName(vector))
	}
	rip, err := c.RegRead(x86_64.RIP)
	if err != nil {
		return err
	}
	cs, err := c.RegRead(x86_64.CS)
	if err != nil {
		return err
	}
	rflags, err := c.RegRead(x86_64.RFLAGS)
	if err != nil {
		return err
	}
	rsp, err := c.RegRead(x86_64.RSP)
	if err != nil {
		return err
	}
	ss, err := c.RegRead(x86_64.SS)
	if err != nil {
		return err
	}
	for _, val := range []uint64{ss, rsp, rflags, cs, rip} {
		if err := push(c, val); err != nil {
			return errors.Wrap(err, "interrupt delivery failed")
		}
	}
	if stub.Class == x86_64.CLASS_EXCEPTION_ERR {
		if err := push(c, errcode); err != nil {
			return errors.Wrap(err, "interrupt delivery failed")
		}
	}
	return stub.run(c, d)
}
