package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/cmd"
	"github.com/trapcore/trapcore/go/kernel"
	"github.com/trapcore/trapcore/go/kernel/common"
	"github.com/trapcore/trapcore/go/models"
	"github.com/trapcore/trapcore/go/models/cpu"
	"github.com/trapcore/trapcore/go/models/trace"
	"github.com/trapcore/trapcore/go/trap"
)

const (
	stackBase = 0x70000000
	stackSize = 0x10000
	entryRip  = 0x400000
)

// simKernel backs the software interrupt vector with a few demo
// services so delivered traps have something to land on.
type simKernel struct {
	common.KernelBase
	exitCode int
	exited   bool
}

func (k *simKernel) Exit(code int) uint64 {
	k.exitCode = code
	k.exited = true
	return 0
}

func (k *simKernel) Write(buf common.Buf, size common.Len) uint64 {
	p, err := k.C.MemRead(buf.Addr, uint64(size))
	if err != nil {
		return common.UnknownService
	}
	n, _ := os.Stdout.Write(p)
	return uint64(n)
}

var serviceTable = map[uint64]string{
	1:  "write",
	60: "exit",
}

type hooker interface {
	HookAdd(htype int, cb interface{}, start, end uint64) (cpu.Hook, error)
}

// pageFaultCode turns a memory hook access enum into an x86 page fault
// error code: bit 0 present, bit 1 write.
func pageFaultCode(access int) uint64 {
	switch access {
	case cpu.MEM_WRITE_PROT:
		return 3
	case cpu.MEM_WRITE_UNMAPPED:
		return 2
	case cpu.MEM_READ_PROT:
		return 1
	}
	return 0
}

// parseSpec splits "vector[:errcode]".
func parseSpec(spec string) (int, uint64, error) {
	parts := strings.SplitN(spec, ":", 2)
	vector, err := strconv.ParseUint(parts[0], 0, 16)
	if err != nil || vector >= x86_64.VECTOR_COUNT {
		return 0, 0, errors.Errorf("bad vector %q", parts[0])
	}
	var errcode uint64
	if len(parts) == 2 {
		if errcode, err = strconv.ParseUint(parts[1], 0, 64); err != nil {
			return 0, 0, errors.Errorf("bad error code %q", parts[1])
		}
	}
	return int(vector), errcode, nil
}

func main() {
	c := cmd.NewTrapCmd()
	c.RunTool = func(args []string) error {
		if len(args) == 0 {
			return errors.New("usage: trapsim [options] vector[:errcode]...")
		}
		machine := c.Machine
		if err := machine.MemMapProt(stackBase, stackSize, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
			return err
		}
		machine.RegWrite(x86_64.RSP, stackBase+stackSize-0x100)
		machine.RegWrite(x86_64.RIP, entryRip)
		machine.RegWrite(x86_64.CS, 0x08)
		machine.RegWrite(x86_64.SS, 0x10)
		machine.RegWrite(x86_64.RFLAGS, 0x202)

		k := &simKernel{}
		dispatch := kernel.NewDispatch()
		dispatch.Handle(x86_64.VEC_SOFTWARE_BASE+80, common.Bind(k, serviceTable))

		var d trap.Dispatcher = dispatch
		var rec *trace.Recorder
		if c.Config.TraceFile != "" {
			f, err := os.Create(c.Config.TraceFile)
			if err != nil {
				return errors.Wrap(err, "trace file")
			}
			if rec, err = trace.NewRecorder(f, dispatch); err != nil {
				return err
			}
			defer rec.Close()
			d = rec
		}

		table := trap.NewTable()
		if h, ok := machine.(hooker); ok {
			// faulting accesses inject a page fault, then demand-map
			// the page so the access can retry
			h.HookAdd(cpu.HOOK_MEM_ERR, func(_ cpu.Cpu, access int, addr uint64, size int, val int64) bool {
				fmt.Printf("fault 0x%x(%d) -> %s\n", addr, size, x86_64.VectorName(14))
				if err := table.Deliver(machine, 14, pageFaultCode(access), d); err != nil {
					return false
				}
				machine.MemMapProt(addr&^uint64(0xfff), 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
				return true
			}, 1, 0)
			if c.Config.TraceMem {
				h.HookAdd(cpu.HOOK_MEM_WRITE, func(_ cpu.Cpu, access int, addr uint64, size int, val int64) {
					fmt.Printf("W 0x%x(%d) = 0x%x\n", addr, size, val)
					if rec != nil {
						rec.OnMem(machine, access, addr, size, val)
					}
				}, 1, 0)
			}
		}
		diff := &models.StatusDiff{C: machine, Arch: x86_64.Arch}
		diff.Changes(false)
		for _, spec := range args {
			vector, errcode, err := parseSpec(spec)
			if err != nil {
				return err
			}
			if c.Config.TraceVec {
				fmt.Printf("-> %d (%s)\n", vector, x86_64.VectorName(vector))
			}
			if err := table.Deliver(machine, vector, errcode, d); err != nil {
				return err
			}
			if rec != nil {
				if err := rec.Resume(machine); err != nil {
					return err
				}
			}
			changes := diff.Changes(true)
			if changes.Count() > 0 {
				fmt.Printf("%s", changes.String(c.Config.Color))
			}
			if k.exited {
				fmt.Printf("exit %d\n", k.exitCode)
				break
			}
		}
		return nil
	}
	c.Run(os.Args)
}
