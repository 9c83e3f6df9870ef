package common

import (
	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/models"
)

type (
	// Buf is a guest pointer a service reads through.
	Buf struct {
		Addr uint64
		K    *KernelBase
	}
	// Obuf marks a pointer the service writes back through.
	Obuf struct{ Buf }
	Len  uint64
	Off  int64
	Ptr  uint64
)

func NewBuf(k Kernel, addr uint64) Buf {
	return Buf{K: k.TrapKernel(), Addr: addr}
}

func (b Buf) Struc() *models.StrucStream {
	return models.StrucAt(b.K.C, b.Addr)
}

func (b Buf) Pack(i interface{}) error {
	return errors.Wrap(b.Struc().Pack(i), "struc.Pack() failed")
}

func (b Buf) Unpack(i interface{}) error {
	return errors.Wrap(b.Struc().Unpack(i), "struc.Unpack() failed")
}
