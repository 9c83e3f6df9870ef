package common

import (
	"github.com/trapcore/trapcore/go/trap"
)

// FrameArgs reads service arguments out of the saved register frame,
// not the live machine, so it sees the interrupted context even after
// the handler has scratched registers.
func FrameArgs(f *trap.Frame, regs []int) func(n int) ([]uint64, error) {
	return func(n int) ([]uint64, error) {
		ret := make([]uint64, n)
		for i := 0; i < n; i++ {
			val, err := f.Reg(regs[i])
			if err != nil {
				return nil, err
			}
			ret[i] = val
		}
		return ret, nil
	}
}
