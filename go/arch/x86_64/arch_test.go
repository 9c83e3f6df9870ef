package x86_64

import (
	"testing"
)

func TestClassify(t *testing.T) {
	errVectors := []int{8, 10, 11, 12, 13, 14, 17, 30}
	isErr := make(map[int]bool)
	for _, v := range errVectors {
		isErr[v] = true
	}
	for v := 0; v < VECTOR_COUNT; v++ {
		want := CLASS_SOFTWARE
		switch {
		case v < VEC_IRQ_BASE && isErr[v]:
			want = CLASS_EXCEPTION_ERR
		case v < VEC_IRQ_BASE:
			want = CLASS_EXCEPTION
		case v < VEC_SOFTWARE_BASE:
			want = CLASS_IRQ
		}
		if got := Classify(v); got != want {
			t.Fatalf("Classify(%d) = %s, expecting %s", v, ClassName(got), ClassName(want))
		}
		if HasErrorCode(v) != isErr[v] {
			t.Fatalf("HasErrorCode(%d) = %v", v, HasErrorCode(v))
		}
	}
}

func TestClassifyRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Classify(256) should panic")
		}
	}()
	Classify(VECTOR_COUNT)
}

func TestIdtEntry(t *testing.T) {
	isr := uint64(0xffff800012345678)
	e := NewIdtEntry(isr, 0x08, 1, KERNEL_INT_FLAGS)
	if e.Isr() != isr {
		t.Fatalf("Isr() = %#x, expecting %#x", e.Isr(), isr)
	}
	p, err := e.Pack()
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 16 {
		t.Fatalf("packed IDT entry is %d bytes, expecting 16", len(p))
	}
	want := []byte{
		0x78, 0x56, // isr low
		0x08, 0x00, // selector
		0x01,       // ist
		0x8e,       // present | dpl0 | int gate
		0x34, 0x12, // isr mid
		0x00, 0x80, 0xff, 0xff, // isr high
		0x00, 0x00, 0x00, 0x00, // reserved
	}
	for i := range want {
		if p[i] != want[i] {
			t.Fatalf("packed entry byte %d = %#x, expecting %#x", i, p[i], want[i])
		}
	}
	e2, err := UnpackIdtEntry(p)
	if err != nil {
		t.Fatal(err)
	}
	if *e2 != e {
		t.Fatalf("unpacked entry %+v != %+v", e2, e)
	}
}
