package shell

import (
	"github.com/pkg/errors"

	"github.com/trapcore/trapcore/go/models"
	"github.com/trapcore/trapcore/go/models/cpu"
)

var MapsCmd = cmd(&Command{
	Name: "maps",
	Desc: "Display memory mappings.",
	Run: func(c *Context) error {
		mapper, ok := c.C.(interface{ Mappings() cpu.Pages })
		if !ok {
			return errors.New("backend does not expose mappings")
		}
		for _, m := range mapper.Mappings() {
			c.Printf("  %v\n", m.String())
		}
		return nil
	},
})

var MemCmd = cmd(&Command{
	Name: "mem",
	Desc: "Read/write memory.",
	Run: func(c *Context, addr, size uint64) error {
		mem, err := c.C.MemRead(addr, size)
		if err != nil {
			return err
		}
		for _, line := range models.HexDump(addr, mem, c.Arch.Bits) {
			c.Printf("  %s\n", line)
		}
		return nil
	},
})

var MapCmd = cmd(&Command{
	Name: "map",
	Desc: "Map a memory region.",
	Run: func(c *Context, addr, size uint64) error {
		return c.C.MemMapProt(addr, size, cpu.PROT_READ|cpu.PROT_WRITE)
	},
})
