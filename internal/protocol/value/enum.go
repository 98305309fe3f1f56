package value

import (
	"fmt"

	"github.com/danmuck/sockwrap/internal/protocol"
)

// Enum is an enumeration member. Only Raw travels on the wire; Type is filled
// in by the receiver when it resolves the raw value against an EnumType.
type Enum struct {
	Type string
	Raw  int64
}

func (e Enum) String() string {
	if e.Type == "" {
		return fmt.Sprintf("enum(%d)", e.Raw)
	}
	return fmt.Sprintf("%s(%d)", e.Type, e.Raw)
}

// EnumType is the receiver-supplied mapping for raw enum values.
type EnumType struct {
	Name    string
	Members map[int64]string
}

func NewEnumType(name string, members map[int64]string) EnumType {
	m := make(map[int64]string, len(members))
	for k, v := range members {
		m[k] = v
	}
	return EnumType{Name: name, Members: m}
}

// Member returns the enum member for raw, or false when raw is not defined.
func (t EnumType) Member(raw int64) (Enum, bool) {
	if _, ok := t.Members[raw]; !ok {
		return Enum{}, false
	}
	return Enum{Type: t.Name, Raw: raw}, true
}

// MustMember is Member for compile-time constants.
func (t EnumType) MustMember(raw int64) Enum {
	e, ok := t.Member(raw)
	if !ok {
		panic(fmt.Sprintf("value: %s has no member %d", t.Name, raw))
	}
	return e
}

// Resolve maps a received raw value onto t.
func (t EnumType) Resolve(raw int64) (Enum, error) {
	e, ok := t.Member(raw)
	if !ok {
		return Enum{}, fmt.Errorf("%w: %d is not a member of %s", protocol.ErrMalformedMessage, raw, t.Name)
	}
	return e, nil
}

// NameOf returns the member name of e within t.
func (t EnumType) NameOf(e Enum) string {
	return t.Members[e.Raw]
}
