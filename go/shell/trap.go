package shell

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/models"
	"github.com/trapcore/trapcore/go/models/trace"
	"github.com/trapcore/trapcore/go/trap"
)

// capture remembers the delivered frame so later commands can inspect
// it, then forwards to the wrapped dispatcher.
type capture struct {
	ctx *Context
	d   trap.Dispatcher
}

func (w *capture) Exception(vector int, f *trap.Frame) {
	w.ctx.Last = f
	w.d.Exception(vector, f)
}

func (w *capture) IRQ(vector int, f *trap.Frame) {
	w.ctx.Last = f
	w.d.IRQ(vector, f)
}

func (w *capture) Software(vector int, f *trap.Frame) {
	w.ctx.Last = f
	w.d.Software(vector, f)
}

var IntCmd = cmd(&Command{
	Name: "int",
	Desc: "Deliver an interrupt vector, with an optional error code.",
	Run: func(c *Context, vector uint64, args ...string) error {
		if c.Table == nil || c.Dispatch == nil {
			return errors.New("no trap table attached")
		}
		var errcode uint64
		if len(args) > 0 {
			var err error
			if errcode, err = strconv.ParseUint(args[0], 0, 64); err != nil {
				return err
			}
		}
		var d trap.Dispatcher = c.Dispatch
		if c.Rec != nil {
			d = c.Rec
		}
		diff := &models.StatusDiff{C: c.C, Arch: c.Arch}
		diff.Changes(false)
		if err := c.Table.Deliver(c.C, int(vector), errcode, &capture{ctx: c, d: d}); err != nil {
			return err
		}
		if c.Rec != nil {
			if err := c.Rec.Resume(c.C); err != nil {
				return err
			}
		}
		changes := diff.Changes(true)
		if changes.Count() > 0 {
			color := c.Config != nil && c.Config.Color
			c.Printf("%s", changes.String(color))
		}
		return nil
	},
})

var VecCmd = cmd(&Command{
	Name: "vec",
	Desc: "Describe an interrupt vector.",
	Run: func(c *Context, vector uint64) error {
		v := int(vector)
		if v >= x86_64.VECTOR_COUNT {
			return errors.Errorf("vector %d out of range", v)
		}
		class := x86_64.Classify(v)
		c.Printf("%d: %s (%s)", v, x86_64.VectorName(v), x86_64.ClassName(class))
		if x86_64.HasErrorCode(v) {
			c.Printf(" +errcode")
		}
		c.Printf("\n")
		return nil
	},
})

var FrameCmd = cmd(&Command{
	Name: "frame",
	Desc: "Show the last delivered trap frame.",
	Run: func(c *Context) error {
		if c.Last == nil {
			return errors.New("no trap delivered yet")
		}
		c.Printf("%s", c.Last)
		return nil
	},
})

var TraceCmd = cmd(&Command{
	Name: "trace",
	Desc: "Toggle trace recording: trace on <file> / trace off.",
	Run: func(c *Context, args ...string) error {
		if len(args) == 0 {
			if c.Rec != nil {
				c.Printf("tracing on\n")
			} else {
				c.Printf("tracing off\n")
			}
			return nil
		}
		switch args[0] {
		case "on":
			if c.Rec != nil {
				return errors.New("already tracing")
			}
			if len(args) < 2 {
				return errors.New("usage: trace on <file>")
			}
			f, err := os.Create(args[1])
			if err != nil {
				return errors.Wrap(err, "trace file")
			}
			rec, err := trace.NewRecorder(f, c.Dispatch)
			if err != nil {
				f.Close()
				return err
			}
			c.Rec = rec
		case "off":
			if c.Rec == nil {
				return errors.New("not tracing")
			}
			c.Rec.Close()
			c.Rec = nil
		default:
			return errors.Errorf("trace: unknown argument %q", args[0])
		}
		return nil
	},
})
