package trap

import (
	"fmt"
	"strings"

	"github.com/trapcore/trapcore/go/arch/x86_64"
)

// handler symbols the generated stubs call into
const (
	SymExceptionEntry = "trap_exception_entry"
	SymIRQEntry       = "trap_irq_entry"
	SymSoftwareEntry  = "trap_software_entry"
	SymStubTable      = "isr_stub_table"
)

func (s *Stub) target() string {
	switch s.Class {
	case x86_64.CLASS_IRQ:
		return SymIRQEntry
	case x86_64.CLASS_SOFTWARE:
		return SymSoftwareEntry
	}
	return SymExceptionEntry
}

// Body returns the stub's instruction sequence with the handler call
// aimed at target. Instructions only, so the sequence can be fed
// straight to an assembler without directive support.
func (s *Stub) Body(target string) []string {
	asm := []string{
		"push rax",
		"push rbx",
		"push rcx",
		"push rdx",
		"push rsi",
		"push rdi",
		"push rbp",
		// stack pointer at stub entry, reconstructed past the 7 pushes
		"lea rax, [rsp + 56]",
		"push rax",
	}
	for i := 8; i <= 15; i++ {
		asm = append(asm, fmt.Sprintf("push r%d", i))
	}
	asm = append(asm,
		fmt.Sprintf("mov rdi, %d", s.Vector),
		"mov rsi, rsp",
		"mov rax, rsp",
		"and rsp, -16",
		"push rax",
		"push 0",
		fmt.Sprintf("call %s", target),
		"pop rax",
		"pop rsp",
	)
	for i := 15; i >= 8; i-- {
		asm = append(asm, fmt.Sprintf("pop r%d", i))
	}
	asm = append(asm,
		// skip the saved stack pointer slot
		"add rsp, 8",
		"pop rbp",
		"pop rdi",
		"pop rsi",
		"pop rdx",
		"pop rcx",
		"pop rbx",
		"pop rax",
	)
	if s.Class == x86_64.CLASS_EXCEPTION_ERR {
		// drop the hardware error code
		asm = append(asm, "add rsp, 8")
	}
	asm = append(asm, "iretq")
	return asm
}

// Source renders the complete NASM translation unit: one stub per
// vector plus the 256-entry pointer table. Output is deterministic so
// regeneration can be diffed byte for byte.
func (t *Table) Source() string {
	var b strings.Builder
	b.WriteString("; generated by trapgen; do not edit\n")
	b.WriteString("bits 64\n\n")
	fmt.Fprintf(&b, "extern %s\n", SymExceptionEntry)
	fmt.Fprintf(&b, "extern %s\n", SymIRQEntry)
	fmt.Fprintf(&b, "extern %s\n\n", SymSoftwareEntry)
	b.WriteString("section .text\n")
	for v := range t.Stubs {
		s := &t.Stubs[v]
		fmt.Fprintf(&b, "\nglobal %s\n", s.Name())
		fmt.Fprintf(&b, "%s: ; %s, %s\n", s.Name(), x86_64.VectorName(v), x86_64.ClassName(s.Class))
		for _, ins := range s.Body(s.target()) {
			fmt.Fprintf(&b, "    %s\n", ins)
		}
	}
	b.WriteString("\nsection .rodata\n")
	b.WriteString("align 8\n")
	fmt.Fprintf(&b, "global %s\n", SymStubTable)
	fmt.Fprintf(&b, "%s:\n", SymStubTable)
	for v := range t.Stubs {
		fmt.Fprintf(&b, "    dq %s\n", t.Stubs[v].Name())
	}
	return b.String()
}
