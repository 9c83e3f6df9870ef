package x86_64

import "fmt"

// Vector space layout. 0-31 are architectural exceptions, the legacy PIC
// maps IRQ lines 0-15 at 32, and everything from 48 up is free for
// software-triggered interrupts.
const (
	VECTOR_COUNT = 256

	VEC_IRQ_BASE      = 32
	VEC_SOFTWARE_BASE = 48
)

// stub dispatch classes
const (
	CLASS_EXCEPTION = iota
	CLASS_EXCEPTION_ERR
	CLASS_IRQ
	CLASS_SOFTWARE
)

// exception vectors for which the CPU pushes a hardware error code
var errorCodeVectors = map[int]bool{
	8:  true, // #DF
	10: true, // #TS
	11: true, // #NP
	12: true, // #SS
	13: true, // #GP
	14: true, // #PF
	17: true, // #AC
	30: true, // #SX
}

var excNames = map[int]string{
	0:  "divide error",
	1:  "debug",
	2:  "nmi",
	3:  "breakpoint",
	4:  "overflow",
	5:  "bound range",
	6:  "invalid opcode",
	7:  "device not available",
	8:  "double fault",
	9:  "coprocessor segment overrun",
	10: "invalid tss",
	11: "segment not present",
	12: "stack fault",
	13: "general protection fault",
	14: "page fault",
	16: "x87 fp exception",
	17: "alignment check",
	18: "machine check",
	19: "simd fp exception",
	20: "virtualization exception",
	21: "control protection exception",
	30: "security exception",
}

func HasErrorCode(vector int) bool {
	return errorCodeVectors[vector]
}

// Classify returns the dispatch class for a vector. This assignment is
// fixed at build time; a consumer relying on a specific vector meaning
// (like a reserved syscall vector) depends on it staying put.
func Classify(vector int) int {
	switch {
	case vector < 0 || vector >= VECTOR_COUNT:
		panic(fmt.Sprintf("vector out of range: %d", vector))
	case vector < VEC_IRQ_BASE:
		if errorCodeVectors[vector] {
			return CLASS_EXCEPTION_ERR
		}
		return CLASS_EXCEPTION
	case vector < VEC_SOFTWARE_BASE:
		return CLASS_IRQ
	default:
		return CLASS_SOFTWARE
	}
}

func ClassName(class int) string {
	switch class {
	case CLASS_EXCEPTION:
		return "exception"
	case CLASS_EXCEPTION_ERR:
		return "exception+err"
	case CLASS_IRQ:
		return "irq"
	case CLASS_SOFTWARE:
		return "software"
	}
	return "unknown"
}

// VectorName names a vector for dumps: exception mnemonics for 0-31,
// the IRQ line for 32-47, and the interrupt number for the rest.
func VectorName(vector int) string {
	switch {
	case vector < VEC_IRQ_BASE:
		if name, ok := excNames[vector]; ok {
			return name
		}
		return fmt.Sprintf("exception %d", vector)
	case vector < VEC_SOFTWARE_BASE:
		return fmt.Sprintf("irq %d", vector-VEC_IRQ_BASE)
	default:
		return fmt.Sprintf("int 0x%02x", vector)
	}
}
