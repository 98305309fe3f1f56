package value

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/sockwrap/internal/protocol"
)

func TestPlainRoundTrip(t *testing.T) {
	in := Sequence{
		Int(1), Int(2), Float(2.3), String("Test"), Bool(true), Nil{},
		Sequence{Int(-1), Bytes("raw")},
		Record{"a": Int(1), "b": String("x")},
	}
	p, err := ToPlain(in)
	if err != nil {
		t.Fatalf("to plain: %v", err)
	}
	out, err := FromPlain(p)
	if err != nil {
		t.Fatalf("from plain: %v", err)
	}
	if !Equal(in, out) {
		t.Fatalf("round trip mismatch: in=%#v out=%#v", in, out)
	}
}

func TestToPlainRejectsNestedArrays(t *testing.T) {
	_, err := ToPlain(Sequence{Zeros(KindUint8, 2)})
	if !errors.Is(err, protocol.ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestEqualHandlesNaN(t *testing.T) {
	if !Equal(Float(math.NaN()), Float(math.NaN())) {
		t.Fatalf("NaN floats should compare equal")
	}
	if Equal(Int(1), Float(1)) {
		t.Fatalf("int and float must differ")
	}
}

func TestArrayValidate(t *testing.T) {
	a, err := FromInt64([]int{2, 3}, []int64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("from int64: %v", err)
	}
	if a.ByteLen() != 48 {
		t.Fatalf("unexpected byte len: %d", a.ByteLen())
	}
	got := a.Int64s()
	if got[5] != 6 {
		t.Fatalf("unexpected element: %v", got)
	}
	if _, err := NewArray(KindFloat32, []int{3}, make([]byte, 8)); !errors.Is(err, protocol.ErrMalformedArray) {
		t.Fatalf("expected ErrMalformedArray, got %v", err)
	}
	if _, err := NewArray(KindUint8, []int{-1}, nil); !errors.Is(err, protocol.ErrMalformedArray) {
		t.Fatalf("expected ErrMalformedArray for negative dim, got %v", err)
	}
}

func TestArrayHeaderRoundTrip(t *testing.T) {
	a := Zeros(KindFloat64, 3280, 1024)
	h, err := ParseHeader(a.Header())
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if h.Kind != KindFloat64 || len(h.Shape) != 2 || h.Shape[0] != 3280 || h.Shape[1] != 1024 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if _, err := ParseHeader([]any{[]any{int64(2)}, "<c16"}); !errors.Is(err, protocol.ErrMalformedArray) {
		t.Fatalf("expected unknown kind to be ErrMalformedArray, got %v", err)
	}
	if _, err := ParseHeader("nope"); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestEnumTypeResolve(t *testing.T) {
	colors := NewEnumType("Color", map[int64]string{1: "RED", 2: "GREEN"})
	e, err := colors.Resolve(2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.Type != "Color" || colors.NameOf(e) != "GREEN" {
		t.Fatalf("unexpected enum: %+v", e)
	}
	if _, err := colors.Resolve(9); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestOpenFileHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Test.txt")
	if err := os.WriteFile(path, []byte("Test"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	size, name, err := ParseFileHeader(f.Header())
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if size != 4 || name != "Test.txt" {
		t.Fatalf("unexpected header: size=%d name=%q", size, name)
	}
	if _, _, err := ParseFileHeader([]any{"4", "x"}); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestTryOfReportsUnsupportedTypes(t *testing.T) {
	v, err := TryOf(uint16(7))
	if err != nil || v != Int(7) {
		t.Fatalf("expected Int(7), got %#v err=%v", v, err)
	}
	if _, err := TryOf(struct{}{}); !errors.Is(err, protocol.ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue, got %v", err)
	}
	if _, err := TrySeq(1, "two", map[int]int{}); !errors.Is(err, protocol.ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue from TrySeq, got %v", err)
	}
	seq, err := TrySeq(1, "two", 3.5)
	if err != nil || !Equal(seq, Seq(1, "two", 3.5)) {
		t.Fatalf("TrySeq mismatch: %#v err=%v", seq, err)
	}
}

func TestOfPanicsOnUnsupportedType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Of to panic")
		}
	}()
	_ = Of(make(chan int))
}
