package models

import (
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/trapcore/trapcore/go/models/cpu"
)

type Reg struct {
	Enum int
	Name string
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

type regMap map[int]string

func (r regMap) Items() regList {
	ret := make(regList, 0, len(r))
	for e, n := range r {
		ret = append(ret, Reg{e, n})
	}
	return ret
}

// Arch describes the register file of a machine model: which enums exist,
// their display names, and which play the special stack/instruction
// pointer roles during trap delivery.
type Arch struct {
	Name string
	Bits int
	SP   int
	PC   int
	Regs map[int]string

	// sorted for RegDump
	regList regList
}

func (a *Arch) RegEnums() []int {
	ret := make([]int, 0, len(a.Regs))
	for e := range a.Regs {
		ret = append(ret, e)
	}
	sort.Ints(ret)
	return ret
}

func (a *Arch) RegByName(name string) (int, bool) {
	for e, n := range a.Regs {
		if n == name {
			return e, true
		}
	}
	return 0, false
}

func (a *Arch) RegDump(c cpu.Cpu) ([]RegVal, error) {
	if a.regList == nil {
		rl := regMap(a.Regs).Items()
		sort.Sort(rl)
		a.regList = rl
	}
	ret := make([]RegVal, len(a.regList))
	for i, r := range a.regList {
		val, err := c.RegRead(r.Enum)
		if err != nil {
			return nil, err
		}
		ret[i] = RegVal{r, val}
	}
	return ret, nil
}
