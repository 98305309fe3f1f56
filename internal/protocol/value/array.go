package value

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/sockwrap/internal/protocol"
)

// Kind is the element type of a numeric array.
type Kind uint8

const (
	KindUint8 Kind = iota + 1
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindUint64
	KindInt64
	KindFloat32
	KindFloat64
)

var kindDescr = map[Kind]string{
	KindUint8:   "|u1",
	KindInt8:    "|i1",
	KindUint16:  "<u2",
	KindInt16:   "<i2",
	KindUint32:  "<u4",
	KindInt32:   "<i4",
	KindUint64:  "<u8",
	KindInt64:   "<i8",
	KindFloat32: "<f4",
	KindFloat64: "<f8",
}

// Size returns the element size in bytes, or 0 for an unknown kind.
func (k Kind) Size() int {
	switch k {
	case KindUint8, KindInt8:
		return 1
	case KindUint16, KindInt16:
		return 2
	case KindUint32, KindInt32, KindFloat32:
		return 4
	case KindUint64, KindInt64, KindFloat64:
		return 8
	default:
		return 0
	}
}

// Descr is the numpy-style type descriptor sent in the envelope.
func (k Kind) Descr() string {
	return kindDescr[k]
}

func (k Kind) String() string {
	if d, ok := kindDescr[k]; ok {
		return d
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(descr string) (Kind, error) {
	for k, d := range kindDescr {
		if d == descr {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown element kind %q", protocol.ErrMalformedArray, descr)
}

// Array is a homogeneous numeric array. Data holds little-endian elements in
// row-major order.
type Array struct {
	Kind  Kind
	Shape []int
	Data  []byte
}

// NewArray checks data against shape and kind.
func NewArray(kind Kind, shape []int, data []byte) (Array, error) {
	a := Array{Kind: kind, Shape: append([]int(nil), shape...), Data: data}
	if err := a.Validate(); err != nil {
		return Array{}, err
	}
	return a, nil
}

// Zeros returns a zero-filled array.
func Zeros(kind Kind, shape ...int) Array {
	a := Array{Kind: kind, Shape: append([]int(nil), shape...)}
	a.Data = make([]byte, a.Len()*kind.Size())
	return a
}

func FromFloat64(shape []int, vals []float64) (Array, error) {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return NewArray(KindFloat64, shape, data)
}

func FromInt64(shape []int, vals []int64) (Array, error) {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
	}
	return NewArray(KindInt64, shape, data)
}

func FromUint8(shape []int, vals []uint8) (Array, error) {
	data := make([]byte, len(vals))
	copy(data, vals)
	return NewArray(KindUint8, shape, data)
}

// Len is the element count implied by Shape.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// ByteLen is the payload size implied by Shape and Kind.
func (a Array) ByteLen() int {
	return a.Len() * a.Kind.Size()
}

func (a Array) Validate() error {
	if a.Kind.Size() == 0 {
		return fmt.Errorf("%w: unknown element kind %d", protocol.ErrMalformedArray, a.Kind)
	}
	n := 1
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %v", protocol.ErrMalformedArray, a.Shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return fmt.Errorf("%w: shape %v overflows", protocol.ErrMalformedArray, a.Shape)
		}
		n *= d
	}
	if n > math.MaxInt/a.Kind.Size() {
		return fmt.Errorf("%w: shape %v overflows", protocol.ErrMalformedArray, a.Shape)
	}
	if want := n * a.Kind.Size(); len(a.Data) != want {
		return fmt.Errorf("%w: %d bytes for shape %v of %s, want %d", protocol.ErrMalformedArray, len(a.Data), a.Shape, a.Kind, want)
	}
	return nil
}

// Float64s converts every element to float64.
func (a Array) Float64s() []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.at(i)
	}
	return out
}

// Int64s converts every element to int64, truncating floats.
func (a Array) Int64s() []int64 {
	out := make([]int64, a.Len())
	for i := range out {
		switch a.Kind {
		case KindFloat32, KindFloat64:
			out[i] = int64(a.at(i))
		case KindUint64, KindInt64:
			out[i] = int64(binary.LittleEndian.Uint64(a.Data[i*8:]))
		default:
			out[i] = int64(a.at(i))
		}
	}
	return out
}

func (a Array) at(i int) float64 {
	switch a.Kind {
	case KindUint8:
		return float64(a.Data[i])
	case KindInt8:
		return float64(int8(a.Data[i]))
	case KindUint16:
		return float64(binary.LittleEndian.Uint16(a.Data[i*2:]))
	case KindInt16:
		return float64(int16(binary.LittleEndian.Uint16(a.Data[i*2:])))
	case KindUint32:
		return float64(binary.LittleEndian.Uint32(a.Data[i*4:]))
	case KindInt32:
		return float64(int32(binary.LittleEndian.Uint32(a.Data[i*4:])))
	case KindUint64:
		return float64(binary.LittleEndian.Uint64(a.Data[i*8:]))
	case KindInt64:
		return float64(int64(binary.LittleEndian.Uint64(a.Data[i*8:])))
	case KindFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i*4:])))
	case KindFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(a.Data[i*8:]))
	default:
		return 0
	}
}

// Equal is byte-for-byte equality of kind, shape and data.
func (a Array) Equal(b Array) bool {
	if a.Kind != b.Kind || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return bytes.Equal(a.Data, b.Data)
}

func (a Array) Clone() Array {
	return Array{
		Kind:  a.Kind,
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]byte(nil), a.Data...),
	}
}

// Header returns the inline (shape, descr) pair for the envelope.
func (a Array) Header() []any {
	shape := make([]any, len(a.Shape))
	for i, d := range a.Shape {
		shape[i] = int64(d)
	}
	return []any{shape, a.Kind.Descr()}
}

// ParseHeader reads an inline (shape, descr) pair into an empty array.
func ParseHeader(inline any) (Array, error) {
	pair, ok := inline.([]any)
	if !ok || len(pair) != 2 {
		return Array{}, fmt.Errorf("%w: array header %v", protocol.ErrMalformedMessage, inline)
	}
	dims, ok := pair[0].([]any)
	if !ok {
		return Array{}, fmt.Errorf("%w: array shape %v", protocol.ErrMalformedMessage, pair[0])
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		n, ok := d.(int64)
		if !ok || n < 0 || n > math.MaxInt32 {
			return Array{}, fmt.Errorf("%w: array dimension %v", protocol.ErrMalformedArray, d)
		}
		shape[i] = int(n)
	}
	descr, ok := pair[1].(string)
	if !ok {
		return Array{}, fmt.Errorf("%w: array kind %v", protocol.ErrMalformedMessage, pair[1])
	}
	kind, err := ParseKind(descr)
	if err != nil {
		return Array{}, err
	}
	return Array{Kind: kind, Shape: shape}, nil
}
