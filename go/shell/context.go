package shell

import (
	"fmt"
	"io"

	"github.com/trapcore/trapcore/go/kernel"
	"github.com/trapcore/trapcore/go/models"
	"github.com/trapcore/trapcore/go/models/cpu"
	"github.com/trapcore/trapcore/go/models/trace"
	"github.com/trapcore/trapcore/go/trap"
)

type Context struct {
	io.ReadWriter
	C        cpu.Cpu
	Arch     *models.Arch
	Table    *trap.Table
	Dispatch *kernel.Dispatch
	Config   *models.Config

	// Last is the most recently delivered frame, for the frame command
	Last *trap.Frame
	// Rec is non-nil while the trace command has recording switched on
	Rec *trace.Recorder
}

func (c *Context) Printf(format string, a ...interface{}) (n int, err error) {
	return fmt.Fprintf(c, format, a...)
}
