package main

import (
	"fmt"
	"io/ioutil"
	"os"

	cs "github.com/lunixbochs/capstr"
	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/cmd"
	tcpu "github.com/trapcore/trapcore/go/cpu"
	ucpu "github.com/trapcore/trapcore/go/cpu/unicorn"
	"github.com/trapcore/trapcore/go/models/cpu"
	"github.com/trapcore/trapcore/go/trap"
)

// checkStubs round-trips every stub through the assembler and
// disassembler, with the call target pinned to a resolvable address.
func checkStubs(table *trap.Table) error {
	asm := &tcpu.Keystone{}
	dis := &tcpu.Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_64}
	base := uint64(0x1000)
	for v := range table.Stubs {
		stub := &table.Stubs[v]
		body := stub.Body("0x100000")
		sc, err := asm.AsmLines(body, base)
		if err != nil {
			return errors.Wrapf(err, "%s failed to assemble", stub.Name())
		}
		ins, err := dis.Dis(sc, base)
		if err != nil {
			return errors.Wrapf(err, "%s failed to disassemble", stub.Name())
		}
		if len(ins) != len(body) {
			return errors.Errorf("%s: %d instructions in, %d out", stub.Name(), len(body), len(ins))
		}
		if last := ins[len(ins)-1].Mnemonic(); last != "iretq" {
			return errors.Errorf("%s ends with %q", stub.Name(), last)
		}
	}
	return nil
}

const (
	emuCode    = 0x1000
	emuHandler = 0x100000
	emuScratch = 0x300000
	emuStack   = 0x200000
	emuStackSz = 0x10000
	emuRip     = 0x400000
)

// saved registers the emulation checks, with rsp handled separately
var emuRegs = []int{
	x86_64.RAX, x86_64.RBX, x86_64.RCX, x86_64.RDX,
	x86_64.RSI, x86_64.RDI, x86_64.RBP,
	x86_64.R8, x86_64.R9, x86_64.R10, x86_64.R11,
	x86_64.R12, x86_64.R13, x86_64.R14, x86_64.R15,
}

// emulateStubs executes every assembled stub under emulation, stopping
// at the final iretq, and checks the save/align/restore discipline
// against live machine state.
func emulateStubs(table *trap.Table) error {
	mc, err := (&ucpu.Builder{}).New()
	if err != nil {
		return err
	}
	defer mc.Close()
	u := mc.(*ucpu.UnicornCpu)

	maps := []struct {
		addr, size uint64
		prot       int
	}{
		{emuCode, 0x1000, cpu.PROT_READ | cpu.PROT_EXEC},
		{emuHandler, 0x1000, cpu.PROT_READ | cpu.PROT_EXEC},
		{emuScratch, 0x1000, cpu.PROT_READ | cpu.PROT_WRITE},
		{emuStack, emuStackSz, cpu.PROT_READ | cpu.PROT_WRITE},
	}
	for _, mm := range maps {
		if err := u.MemMapProt(mm.addr, mm.size, mm.prot); err != nil {
			return err
		}
	}

	asm := &tcpu.Keystone{}
	dis := &tcpu.Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_64}

	// the handler records its argument registers and stack pointer
	handler, err := asm.AsmLines([]string{
		fmt.Sprintf("mov [0x%x], rdi", emuScratch),
		fmt.Sprintf("mov [0x%x], rsi", emuScratch+8),
		fmt.Sprintf("mov [0x%x], rsp", emuScratch+16),
		"ret",
	}, emuHandler)
	if err != nil {
		return err
	}
	if err := u.MemWrite(emuHandler, handler); err != nil {
		return err
	}

	for v := range table.Stubs {
		stub := &table.Stubs[v]
		if err := emulateStub(u, asm, dis, stub); err != nil {
			return errors.Wrapf(err, "%s", stub.Name())
		}
	}
	return nil
}

func emulateStub(u *ucpu.UnicornCpu, asm *tcpu.Keystone, dis *tcpu.Capstr, stub *trap.Stub) error {
	sc, err := asm.AsmLines(stub.Body(fmt.Sprintf("0x%x", emuHandler)), emuCode)
	if err != nil {
		return err
	}
	if err := u.MemWrite(emuCode, sc); err != nil {
		return err
	}
	ins, err := dis.Dis(sc, emuCode)
	if err != nil {
		return err
	}
	iretq := ins[len(ins)-1].Addr()

	for i, enum := range emuRegs {
		if err := u.RegWrite(enum, uint64(i+1)*0x1111); err != nil {
			return err
		}
	}

	// vary alignment between vectors so both realignment paths run
	entry := uint64(emuStack+emuStackSz-0x100) - uint64(stub.Vector%2)*8
	errClass := stub.Class == x86_64.CLASS_EXCEPTION_ERR
	words := []uint64{emuRip, 0x08, 0x202, emuStack + emuStackSz - 8, 0x10}
	if errClass {
		words = append([]uint64{0x11}, words...)
	}
	frame := make([]byte, 0, len(words)*8)
	for _, w := range words {
		b, _ := cpu.PackUint(8, nil, w)
		frame = append(frame, b...)
	}
	if err := u.MemWrite(entry, frame); err != nil {
		return err
	}
	if err := u.RegWrite(x86_64.RSP, entry); err != nil {
		return err
	}

	if err := u.Start(emuCode, iretq); err != nil {
		return errors.Wrap(err, "emulation failed")
	}

	scratch, err := u.MemRead(emuScratch, 24)
	if err != nil {
		return err
	}
	vec, _ := cpu.UnpackUint(8, scratch[:8])
	fp, _ := cpu.UnpackUint(8, scratch[8:16])
	hsp, _ := cpu.UnpackUint(8, scratch[16:24])
	if vec != uint64(stub.Vector) {
		return errors.Errorf("handler got vector %d", vec)
	}
	if fp != entry-trap.FrameSize {
		return errors.Errorf("frame pointer 0x%x, expecting 0x%x", fp, entry-trap.FrameSize)
	}
	// the call pushed its return address onto the aligned stack
	if hsp%16 != 8 {
		return errors.Errorf("handler stack 0x%x misaligned", hsp)
	}
	for i, enum := range emuRegs {
		val, err := u.RegRead(enum)
		if err != nil {
			return err
		}
		if val != uint64(i+1)*0x1111 {
			return errors.Errorf("%s not restored: 0x%x", x86_64.Arch.Regs[enum], val)
		}
	}
	want := entry
	if errClass {
		want += 8
	}
	sp, err := u.RegRead(x86_64.RSP)
	if err != nil {
		return err
	}
	if sp != want {
		return errors.Errorf("stack 0x%x at iretq, expecting 0x%x", sp, want)
	}
	return nil
}

func main() {
	c := cmd.NewTrapCmd()
	c.NoMachine = true

	var outfile *string
	var check, emu, classes *bool
	c.SetupFlags = func() error {
		outfile = c.Flags.String("o", "", "write assembly to <file> (default stdout)")
		check = c.Flags.Bool("check", false, "verify every stub assembles and disassembles cleanly")
		emu = c.Flags.Bool("emu", false, "execute every stub under emulation and check the frame discipline")
		classes = c.Flags.Bool("classes", false, "print the vector class table and exit")
		return nil
	}
	c.RunTool = func(args []string) error {
		table := trap.NewTable()
		if *classes {
			for v := range table.Stubs {
				stub := &table.Stubs[v]
				fmt.Printf("%3d %-24s %s\n", v, x86_64.VectorName(v), x86_64.ClassName(stub.Class))
			}
			return nil
		}
		if *check {
			if err := checkStubs(table); err != nil {
				return err
			}
			if c.Config.Verbose {
				fmt.Fprintf(os.Stderr, "%d stubs check out\n", len(table.Stubs))
			}
		}
		if *emu {
			if err := emulateStubs(table); err != nil {
				return err
			}
			if c.Config.Verbose {
				fmt.Fprintf(os.Stderr, "%d stubs run clean under emulation\n", len(table.Stubs))
			}
		}
		src := table.Source()
		if *outfile == "" {
			fmt.Print(src)
			return nil
		}
		return errors.Wrap(ioutil.WriteFile(*outfile, []byte(src), 0644), "write failed")
	}
	c.Run(os.Args)
}
