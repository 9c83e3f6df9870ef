package cmd

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/cpu/sim64"
	"github.com/trapcore/trapcore/go/models"
	"github.com/trapcore/trapcore/go/models/cpu"
)

type strslice []string

func (s *strslice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *strslice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// TrapCmd is the shared scaffolding for the trap tools: common flags,
// machine construction, profiling, and error reporting.
type TrapCmd struct {
	Config *models.Config

	SetupFlags  func() error
	MakeMachine func() (cpu.Cpu, error)
	RunTool     func(args []string) error
	Teardown    func()

	NoMachine bool

	Machine cpu.Cpu
	Flags   *flag.FlagSet
}

func NewTrapCmd() *TrapCmd {
	fs := flag.NewFlagSet("cli", flag.ExitOnError)
	cmd := &TrapCmd{Flags: fs}
	cmd.MakeMachine = func() (cpu.Cpu, error) {
		return (&sim64.Builder{}).New()
	}
	return cmd
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// print an error, and a stacktrace if available
func (c *TrapCmd) PrintError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		// parse full path and method name for each stack frame
		var frames [][]string
		for _, f := range err.StackTrace() {
			fullpath := ""
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)

			frame := fmt.Sprintf("%+s", f)
			tmp := strings.SplitN(frame, "\n", 3)
			if len(tmp) == 2 {
				pathsplit := strings.Split(tmp[0], "/")
				method = pathsplit[len(pathsplit)-1]
				fullpath = strings.TrimSpace(tmp[1])
			}
			frames = append(frames, []string{fullpath, fileline, method})
			if method == "main.main" {
				break
			}
		}
		// calculate column widths
		widths := make([]int, len(frames))
		for _, f := range frames {
			for i, s := range f {
				if len(s) > widths[i] {
					widths[i] = len(s)
				}
			}
		}
		// print pretty stacktrace
		for _, f := range frames {
			method := f[2]
			for i := 0; i < 2; i++ {
				if widths[i] > 0 {
					pad := strings.Repeat(" ", widths[i]-len(f[i]))
					fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
				}
			}
			fmt.Fprintf(os.Stderr, "%s()\n", method)
		}
	}
}

func (c *TrapCmd) Run(argv []string) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	fs := c.Flags
	verbose := fs.Bool("v", false, "verbose output")
	color := fs.Bool("color", false, "colorize output")
	tracevec := fs.Bool("tracevec", false, "print each delivered vector")
	tracemem := fs.Bool("tracemem", false, "print guest memory writes")
	tracefile := fs.String("to", "", "binary trace output file")

	cpuprofile := fs.String("cpuprofile", "", "write cpu profile to <file>")
	memprofile := fs.String("memprofile", "", "write mem profile to <file>")

	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			panic(err)
		}
	}
	fs.Parse(argv[1:])

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(f)
	}

	c.Config = &models.Config{
		Color:     *color,
		Verbose:   *verbose,
		TraceVec:  *tracevec,
		TraceMem:  *tracemem,
		TraceFile: *tracefile,
	}

	if !c.NoMachine {
		machine, err := c.MakeMachine()
		if err != nil {
			c.PrintError(err)
			os.Exit(1)
		}
		c.Machine = machine
		defer machine.Close()
	}

	if err := c.RunTool(fs.Args()); err != nil {
		c.PrintError(err)
		defer os.Exit(1)
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			panic(err)
		}
		pprof.WriteHeapProfile(f)
		f.Close()
	}
	if *cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	if c.Teardown != nil {
		c.Teardown()
	}
}
