package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lunixbochs/readline"
	"github.com/shibukawa/configdir"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/cmd"
	"github.com/trapcore/trapcore/go/kernel"
	"github.com/trapcore/trapcore/go/models/cpu"
	"github.com/trapcore/trapcore/go/shell"
	"github.com/trapcore/trapcore/go/trap"
)

const (
	stackBase = 0x70000000
	stackSize = 0x10000
)

func historyFile() string {
	configDirs := configdir.New("trapcore", "trapsh")
	folders := configDirs.QueryFolders(configdir.Cache)
	if len(folders) == 0 {
		return ""
	}
	folders[0].MkdirAll()
	return filepath.Join(folders[0].Path, "history")
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func main() {
	c := cmd.NewTrapCmd()
	c.RunTool = func(args []string) error {
		machine := c.Machine
		if err := machine.MemMapProt(stackBase, stackSize, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
			return err
		}
		machine.RegWrite(x86_64.RSP, stackBase+stackSize-0x100)
		machine.RegWrite(x86_64.RIP, 0x400000)
		machine.RegWrite(x86_64.CS, 0x08)
		machine.RegWrite(x86_64.SS, 0x10)
		machine.RegWrite(x86_64.RFLAGS, 0x202)

		rl, err := readline.NewEx(&readline.Config{
			Prompt:      "trap> ",
			HistoryFile: historyFile(),
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		context := &shell.Context{
			ReadWriter: stdio{},
			C:          machine,
			Arch:       x86_64.Arch,
			Table:      trap.NewTable(),
			Dispatch:   kernel.NewDispatch(),
			Config:     c.Config,
		}
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				break
			} else if err != nil {
				return err
			}
			if err := shell.Run(context, line); err != nil {
				fmt.Fprintf(os.Stderr, "error in command: %v\n", err)
			}
		}
		return nil
	}
	c.Run(os.Args)
}
