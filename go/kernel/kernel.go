package kernel

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/trap"
)

type Handler func(vector int, f *trap.Frame)

// Dispatch routes delivered traps to per-vector handlers. It is the
// Dispatcher the stub engine calls into; vectors without a registered
// handler fall through to Unhandled.
type Dispatch struct {
	handlers [x86_64.VECTOR_COUNT]Handler

	// W receives unhandled trap dumps. Defaults to stderr.
	W io.Writer
	// Unhandled, when set, replaces the default dump.
	Unhandled Handler
}

func NewDispatch() *Dispatch {
	return &Dispatch{W: os.Stderr}
}

func (d *Dispatch) Handle(vector int, h Handler) error {
	if vector < 0 || vector >= x86_64.VECTOR_COUNT {
		return errors.Errorf("vector %d out of range", vector)
	}
	d.handlers[vector] = h
	return nil
}

// HandleRange registers one handler for [first, last] inclusive.
func (d *Dispatch) HandleRange(first, last int, h Handler) error {
	if first < 0 || last >= x86_64.VECTOR_COUNT || first > last {
		return errors.Errorf("vector range %d-%d invalid", first, last)
	}
	for v := first; v <= last; v++ {
		d.handlers[v] = h
	}
	return nil
}

func (d *Dispatch) dispatch(vector int, f *trap.Frame) {
	if h := d.handlers[vector]; h != nil {
		h(vector, f)
		return
	}
	if d.Unhandled != nil {
		d.Unhandled(vector, f)
		return
	}
	w := d.W
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "unhandled %s\n", f)
}

func (d *Dispatch) Exception(vector int, f *trap.Frame) { d.dispatch(vector, f) }
func (d *Dispatch) IRQ(vector int, f *trap.Frame)       { d.dispatch(vector, f) }
func (d *Dispatch) Software(vector int, f *trap.Frame)  { d.dispatch(vector, f) }
