package x86_64

import (
	"github.com/trapcore/trapcore/go/models"
)

// register enums are private to this project; the unicorn backend maps
// them onto unicorn's own enums
const (
	RAX = iota + 1
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
	RFLAGS
	CS
	SS
)

var Arch = &models.Arch{
	Name: "x86_64",
	Bits: 64,
	SP:   RSP,
	PC:   RIP,
	Regs: map[int]string{
		RAX:    "rax",
		RBX:    "rbx",
		RCX:    "rcx",
		RDX:    "rdx",
		RSI:    "rsi",
		RDI:    "rdi",
		RBP:    "rbp",
		RSP:    "rsp",
		R8:     "r8",
		R9:     "r9",
		R10:    "r10",
		R11:    "r11",
		R12:    "r12",
		R13:    "r13",
		R14:    "r14",
		R15:    "r15",
		RIP:    "rip",
		RFLAGS: "rflags",
		CS:     "cs",
		SS:     "ss",
	},
}

// SysV ABI integer argument registers, in order.
var AbiRegs = []int{RDI, RSI, RDX, R10, R8, R9}
