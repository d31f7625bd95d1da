package team

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a tagged union over the shapes an artifact's config and
// knowledge entries may take: null, number, string, bool, ordered
// sequence, mapping. Keeping the variants closed makes validation,
// reset, and merge logic total functions instead of type switches over
// an open interface.
type Value struct {
	kind Kind
	num  float64
	str  string
	boo  bool
	list []Value
	obj  map[string]Value
}

// Null returns the null value. The zero Value is also null.
func Null() Value { return Value{} }

// Number wraps a float64.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int wraps an integer as a number value.
func Int(i int) Value { return Number(float64(i)) }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, boo: b} }

// List wraps an ordered sequence. The slice is copied.
func List(items ...Value) Value {
	l := make([]Value, len(items))
	copy(l, items)
	return Value{kind: KindList, list: l}
}

// Map wraps a mapping. The map is shallow-copied; entries should
// already be Values and therefore deep-copy on Clone.
func Map(entries map[string]Value) Value {
	m := make(map[string]Value, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Value{kind: KindMap, obj: m}
}

// Kind reports the variant of the value.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric payload; ok is false for non-numbers.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// IntVal returns the numeric payload truncated to int; ok is false for
// non-numbers.
func (v Value) IntVal() (int, bool) {
	f, ok := v.Float()
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Str returns the string payload; ok is false for non-strings.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// BoolVal returns the bool payload; ok is false for non-bools.
func (v Value) BoolVal() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boo, true
}

// Items returns the sequence payload; nil for non-lists. The returned
// slice is a copy.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	items := make([]Value, len(v.list))
	copy(items, v.list)
	return items
}

// Entries returns the mapping payload; nil for non-maps. The returned
// map is a copy.
func (v Value) Entries() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	m := make(map[string]Value, len(v.obj))
	for k, e := range v.obj {
		m[k] = e
	}
	return m
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		l := make([]Value, len(v.list))
		for i, e := range v.list {
			l[i] = e.Clone()
		}
		return Value{kind: KindList, list: l}
	case KindMap:
		m := make(map[string]Value, len(v.obj))
		for k, e := range v.obj {
			m[k] = e.Clone()
		}
		return Value{kind: KindMap, obj: m}
	default:
		return v
	}
}

// Equal reports deep equality between two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.boo == o.boo
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders a compact human-readable form, mainly for logs and
// test failure messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindNumber:
		if v.num == math.Trunc(v.num) && !math.IsInf(v.num, 0) {
			return fmt.Sprintf("%d", int64(v.num))
		}
		return fmt.Sprintf("%g", v.num)
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBool:
		return fmt.Sprintf("%t", v.boo)
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.obj[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "invalid"
}

// MarshalJSON renders the value as its natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.boo)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.obj)
	}
	return nil, fmt.Errorf("%w: invalid value kind %d", ErrSchema, int(v.kind))
}

// UnmarshalJSON accepts any JSON shape and tags it.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts a dynamically typed value (as produced by
// encoding/json or gopkg.in/yaml.v3) into a tagged Value. Unsupported
// shapes fail with ErrSchema.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Int(x), nil
	case int64:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case string:
		return String(x), nil
	case []any:
		list := make([]Value, len(x))
		for i, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			list[i] = v
		}
		return Value{kind: KindList, list: list}, nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Value{kind: KindMap, obj: m}, nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrSchema, raw)
	}
}
