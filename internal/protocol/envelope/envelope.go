package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/sockwrap/internal/protocol"
	"github.com/fxamacker/cbor/v2"
)

// Tag identifies the decode path of one logical message.
type Tag uint8

const (
	TagShortString  Tag = 1
	TagLongString   Tag = 2
	TagInteger      Tag = 3
	TagEnum         Tag = 4
	TagNumericArray Tag = 5
	TagFile         Tag = 6
	TagGenericValue Tag = 7
	TagSequence     Tag = 8
)

func (t Tag) Valid() bool {
	return t >= TagShortString && t <= TagSequence
}

func (t Tag) String() string {
	switch t {
	case TagShortString:
		return "short_string"
	case TagLongString:
		return "long_string"
	case TagInteger:
		return "integer"
	case TagEnum:
		return "enum"
	case TagNumericArray:
		return "numeric_array"
	case TagFile:
		return "file"
	case TagGenericValue:
		return "generic_value"
	case TagSequence:
		return "sequence"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Envelope precedes every logical message. Inline is a plain tree made of
// nil, bool, int64, float64, string, []byte, []any and map[string]any.
type Envelope struct {
	Tag    Tag
	Inline any
}

// Format reports which encoding an envelope used on the wire.
type Format int

const (
	FormatJSON Format = iota
	FormatCBOR
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes env as JSON text when the inline tree survives JSON
// unchanged, and as CBOR otherwise.
func Encode(env Envelope) ([]byte, error) {
	b, _, err := EncodeFormat(env)
	return b, err
}

func EncodeFormat(env Envelope) ([]byte, Format, error) {
	if !env.Tag.Valid() {
		return nil, 0, fmt.Errorf("%w: %d", protocol.ErrUnknownTag, env.Tag)
	}
	pair := []any{int64(env.Tag), env.Inline}
	if jsonSafe(env.Inline) {
		b, err := json.Marshal(pair)
		if err == nil {
			return b, FormatJSON, nil
		}
	}
	b, err := encMode.Marshal(pair)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: encode envelope: %v", protocol.ErrUnsupportedValue, err)
	}
	return b, FormatCBOR, nil
}

// Decode parses an envelope frame, trying JSON before CBOR.
func Decode(b []byte) (Envelope, error) {
	env, _, err := DecodeFormat(b)
	return env, err
}

func DecodeFormat(b []byte) (Envelope, Format, error) {
	if pair, ok := decodeJSON(b); ok {
		env, err := fromPair(pair)
		return env, FormatJSON, err
	}
	var raw any
	if err := decMode.Unmarshal(b, &raw); err != nil {
		return Envelope{}, 0, fmt.Errorf("%w: envelope is neither json nor cbor", protocol.ErrMalformedMessage)
	}
	pair, ok := raw.([]any)
	if !ok {
		return Envelope{}, 0, fmt.Errorf("%w: envelope is not a pair", protocol.ErrMalformedMessage)
	}
	norm, err := normalize(pair)
	if err != nil {
		return Envelope{}, 0, err
	}
	env, err := fromPair(norm.([]any))
	return env, FormatCBOR, err
}

// MarshalGeneric encodes a plain tree for the GenericValue payload frame.
func MarshalGeneric(plain any) ([]byte, error) {
	b, err := encMode.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrUnsupportedValue, err)
	}
	return b, nil
}

// UnmarshalGeneric decodes a GenericValue payload frame into a plain tree.
func UnmarshalGeneric(b []byte) (any, error) {
	var raw any
	if err := decMode.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: generic payload: %v", protocol.ErrMalformedMessage, err)
	}
	return normalize(raw)
}

func decodeJSON(b []byte) ([]any, bool) {
	if len(b) == 0 || b[0] != '[' || !utf8.Valid(b) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	norm, err := normalize(raw)
	if err != nil {
		return nil, false
	}
	return norm.([]any), true
}

func fromPair(pair []any) (Envelope, error) {
	if len(pair) != 2 {
		return Envelope{}, fmt.Errorf("%w: envelope has %d elements", protocol.ErrMalformedMessage, len(pair))
	}
	raw, ok := pair[0].(int64)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: envelope tag is %T", protocol.ErrMalformedMessage, pair[0])
	}
	if raw < 0 || raw > math.MaxUint8 || !Tag(raw).Valid() {
		return Envelope{}, fmt.Errorf("%w: %d", protocol.ErrUnknownTag, raw)
	}
	return Envelope{Tag: Tag(raw), Inline: pair[1]}, nil
}

// normalize maps decoder output onto the plain tree vocabulary.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64, []byte:
		return x, nil
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := x.Int64(); err == nil {
				return i, nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", protocol.ErrMalformedMessage, s)
		}
		return f, nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: integer %d overflows int64", protocol.ErrMalformedMessage, x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %T in envelope", protocol.ErrMalformedMessage, v)
	}
}

// jsonSafe reports whether JSON reproduces v exactly after a UseNumber decode.
func jsonSafe(v any) bool {
	switch x := v.(type) {
	case nil, bool, string, int64:
		if s, ok := x.(string); ok {
			return utf8.ValidString(s)
		}
		return true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
		return x != math.Trunc(x)
	case []any:
		for _, e := range x {
			if !jsonSafe(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range x {
			if !jsonSafe(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
