package common

import (
	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/trap"
)

// UnknownService is returned in rax when the requested service number
// has no table entry or no method behind it.
const UnknownService = ^uint64(0)

// Bind turns a kernel into a software interrupt handler: rax selects
// the service through table, arguments follow the syscall register
// convention, and the result lands back in the frame's rax slot.
func Bind(kf Kernel, table map[uint64]string) func(vector int, f *trap.Frame) {
	return func(vector int, f *trap.Frame) {
		num, err := f.Reg(x86_64.RAX)
		if err != nil {
			return
		}
		ret := UnknownService
		if name, ok := table[num]; ok {
			if svc := Lookup(f.Cpu(), kf, name); svc != nil {
				n := len(svc.In)
				if svc.UintArr || n > len(x86_64.AbiRegs) {
					n = len(x86_64.AbiRegs)
				}
				args, err := FrameArgs(f, x86_64.AbiRegs)(n)
				if err != nil {
					return
				}
				ret = svc.Call(args)
			}
		}
		f.SetReg(x86_64.RAX, ret)
	}
}
