package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trapcore/trapcore/go/arch/x86_64"
	"github.com/trapcore/trapcore/go/cpu/sim64"
	"github.com/trapcore/trapcore/go/kernel"
	"github.com/trapcore/trapcore/go/models"
	"github.com/trapcore/trapcore/go/models/cpu"
	"github.com/trapcore/trapcore/go/models/trace"
	"github.com/trapcore/trapcore/go/trap"
)

func testContext(t *testing.T) (*Context, *bytes.Buffer) {
	t.Helper()
	c := sim64.New()
	if err := c.MemMapProt(0x7000, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	c.RegWrite(x86_64.RSP, 0x8f00)
	c.RegWrite(x86_64.CS, 0x08)
	c.RegWrite(x86_64.SS, 0x10)
	var buf bytes.Buffer
	ctx := &Context{
		ReadWriter: &buf,
		C:          c,
		Arch:       x86_64.Arch,
		Table:      trap.NewTable(),
		Dispatch:   kernel.NewDispatch(),
		Config:     &models.Config{},
	}
	return ctx, &buf
}

func TestRegCmd(t *testing.T) {
	ctx, buf := testContext(t)
	if err := Run(ctx, "reg rax=0x1234"); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := Run(ctx, "reg rax"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "rax 0x1234") {
		t.Fatalf("reg output: %q", buf.String())
	}
}

func TestVecCmd(t *testing.T) {
	ctx, buf := testContext(t)
	if err := Run(ctx, "vec 14"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "page fault") || !strings.Contains(out, "+errcode") {
		t.Fatalf("vec output: %q", out)
	}
}

func TestMemCmd(t *testing.T) {
	ctx, buf := testContext(t)
	if err := ctx.C.MemWrite(0x7100, []byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if err := Run(ctx, "mem 0x7100 4"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "abcd") {
		t.Fatalf("mem output: %q", buf.String())
	}
}

func TestUnknownCmd(t *testing.T) {
	ctx, buf := testContext(t)
	if err := Run(ctx, "bogus"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "command not found") {
		t.Fatalf("output: %q", buf.String())
	}
}

func TestIntCmd(t *testing.T) {
	ctx, _ := testContext(t)
	var got int
	ctx.Dispatch.Handle(32, func(vector int, f *trap.Frame) { got = vector })
	if err := Run(ctx, "int 32"); err != nil {
		t.Fatal(err)
	}
	if got != 32 {
		t.Fatalf("handled vector %d", got)
	}
}

func TestFrameCmd(t *testing.T) {
	ctx, buf := testContext(t)
	if err := Run(ctx, "frame"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no trap delivered") {
		t.Fatalf("frame output: %q", buf.String())
	}
	ctx.Dispatch.Handle(3, func(vector int, f *trap.Frame) {})
	if err := Run(ctx, "int 3"); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := Run(ctx, "frame"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "breakpoint") || !strings.Contains(out, "rax") {
		t.Fatalf("frame output: %q", out)
	}
}

func TestTraceCmd(t *testing.T) {
	ctx, buf := testContext(t)
	ctx.Dispatch.Handle(3, func(vector int, f *trap.Frame) {})
	path := filepath.Join(t.TempDir(), "trace.bin")
	if err := Run(ctx, "trace on "+path); err != nil {
		t.Fatal(err)
	}
	if ctx.Rec == nil {
		t.Fatal("recorder not attached")
	}
	if err := Run(ctx, "int 3"); err != nil {
		t.Fatal(err)
	}
	if err := Run(ctx, "trace off"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "error:") {
		t.Fatalf("output: %q", buf.String())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := trace.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	op, err := tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	del, ok := op.(*trace.OpDeliver)
	if !ok || del.Vector != 3 {
		t.Fatalf("first op %#v", op)
	}
	op, err = tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := op.(*trace.OpResume); !ok {
		t.Fatalf("second op %#v", op)
	}
}
