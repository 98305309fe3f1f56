package value

import (
	"fmt"
	"math"
	"sort"

	"github.com/danmuck/sockwrap/internal/protocol"
)

// Value is the closed set of things the wrapper can put on the wire.
type Value interface {
	isValue()
}

type (
	String string
	Int    int64
	Float  float64
	Bool   bool
	Bytes  []byte
	Nil    struct{}

	// Sequence is an ordered list of values sent inline in one envelope.
	Sequence []Value
	// Record is a generic structured value with string keys.
	Record map[string]Value
)

func (String) isValue()   {}
func (Int) isValue()      {}
func (Float) isValue()    {}
func (Bool) isValue()     {}
func (Bytes) isValue()    {}
func (Nil) isValue()      {}
func (Sequence) isValue() {}
func (Record) isValue()   {}
func (Enum) isValue()     {}
func (Array) isValue()    {}
func (*File) isValue()    {}
func (Received) isValue() {}

// TryOf converts common Go scalars into values. Other types fail with
// ErrUnsupportedValue.
func TryOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case nil:
		return Nil{}, nil
	case string:
		return String(x), nil
	case int:
		return Int(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(x), nil
	case uint16:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case float32:
		return Float(x), nil
	case float64:
		return Float(x), nil
	case bool:
		return Bool(x), nil
	case []byte:
		return Bytes(x), nil
	default:
		return nil, fmt.Errorf("%w: Go type %T", protocol.ErrUnsupportedValue, v)
	}
}

// Of is TryOf for values known at compile time. It panics on a type TryOf
// rejects, so input of unknown type should go through TryOf.
func Of(v any) Value {
	out, err := TryOf(v)
	if err != nil {
		panic("value: " + err.Error())
	}
	return out
}

// Seq builds a Sequence from literals via Of and panics like Of does. Use
// TrySeq for items of unknown type.
func Seq(items ...any) Sequence {
	out := make(Sequence, len(items))
	for i, item := range items {
		out[i] = Of(item)
	}
	return out
}

// TrySeq is Seq returning an error instead of panicking.
func TrySeq(items ...any) (Sequence, error) {
	out := make(Sequence, len(items))
	for i, item := range items {
		v, err := TryOf(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ToPlain maps inline-capable values onto the envelope plain tree.
func ToPlain(v Value) (any, error) {
	switch x := v.(type) {
	case nil, Nil:
		return nil, nil
	case String:
		return string(x), nil
	case Int:
		return int64(x), nil
	case Float:
		return float64(x), nil
	case Bool:
		return bool(x), nil
	case Bytes:
		out := make([]byte, len(x))
		copy(out, x)
		return out, nil
	case Enum:
		return x.Raw, nil
	case Sequence:
		out := make([]any, len(x))
		for i, e := range x {
			p, err := ToPlain(e)
			if err != nil {
				return nil, fmt.Errorf("sequence[%d]: %w", i, err)
			}
			out[i] = p
		}
		return out, nil
	case Record:
		out := make(map[string]any, len(x))
		for k, e := range x {
			p, err := ToPlain(e)
			if err != nil {
				return nil, fmt.Errorf("record[%q]: %w", k, err)
			}
			out[k] = p
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T cannot be nested", protocol.ErrUnsupportedValue, v)
	}
}

// FromPlain is the inverse of ToPlain. Enums come back as Int since the plain
// tree carries no enumeration type.
func FromPlain(p any) (Value, error) {
	switch x := p.(type) {
	case nil:
		return Nil{}, nil
	case string:
		return String(x), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case bool:
		return Bool(x), nil
	case []byte:
		return Bytes(x), nil
	case []any:
		out := make(Sequence, len(x))
		for i, e := range x {
			v, err := FromPlain(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(Record, len(x))
		for k, e := range x {
			v, err := FromPlain(e)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: plain %T", protocol.ErrMalformedMessage, p)
	}
}

// Equal compares two values structurally. Arrays compare byte-for-byte and
// NaN floats compare equal to each other.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Float:
		y, ok := b.(Float)
		if !ok {
			return false
		}
		if math.IsNaN(float64(x)) {
			return math.IsNaN(float64(y))
		}
		return x == y
	case Bytes:
		y, ok := b.(Bytes)
		return ok && string(x) == string(y)
	case Sequence:
		y, ok := b.(Sequence)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Record:
		y, ok := b.(Record)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case Array:
		y, ok := b.(Array)
		return ok && x.Equal(y)
	case Enum:
		y, ok := b.(Enum)
		return ok && x.Raw == y.Raw
	default:
		return a == b
	}
}

// Keys returns a record's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var errMalformedHeader = fmt.Errorf("%w: bad inline header", protocol.ErrMalformedMessage)
