package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by an AttributeValue.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindEnum
	KindList
)

// AttributeValue is one entry of an item's attribute bag. It is validated
// against the category schema on write (Coerce) and read permissively at
// query time.
type AttributeValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
}

// StringValue returns a free-form string value.
func StringValue(s string) AttributeValue { return AttributeValue{kind: KindString, str: s} }

// NumberValue returns a numeric value.
func NumberValue(n float64) AttributeValue { return AttributeValue{kind: KindNumber, num: n} }

// BoolValue returns a boolean value.
func BoolValue(b bool) AttributeValue { return AttributeValue{kind: KindBool, b: b} }

// EnumValue returns a single enumeration value.
func EnumValue(s string) AttributeValue { return AttributeValue{kind: KindEnum, str: s} }

// ListValue returns a multi-valued enumeration.
func ListValue(vs ...string) AttributeValue {
	return AttributeValue{kind: KindList, list: append([]string(nil), vs...)}
}

// Kind returns the variant tag.
func (v AttributeValue) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is absent or JSON null.
func (v AttributeValue) IsNull() bool { return v.kind == KindNull }

// Terms returns the string forms of the value used for membership tests and
// facet counting. Null yields no terms.
func (v AttributeValue) Terms() []string {
	switch v.kind {
	case KindString, KindEnum:
		return []string{v.str}
	case KindNumber:
		return []string{formatNumber(v.num)}
	case KindBool:
		return []string{strconv.FormatBool(v.b)}
	case KindList:
		return v.list
	}
	return nil
}

// Truthy reports whether the value reads as boolean true. Absent, null and
// anything other than true or "true" read as false.
func (v AttributeValue) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString, KindEnum:
		return v.str == "true"
	}
	return false
}

// MatchesAny reports whether any term of the value is in set.
func (v AttributeValue) MatchesAny(set map[string]struct{}) bool {
	for _, t := range v.Terms() {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// Coerce converts a permissively decoded value into the variant required by
// def. Null is accepted for every type.
func (v AttributeValue) Coerce(def AttributeDefinition) (AttributeValue, error) {
	if v.kind == KindNull {
		return v, nil
	}

	switch def.Type {
	case TypeString:
		if v.kind == KindList {
			return AttributeValue{}, fmt.Errorf("attribute %q: expected string, got list", def.Key)
		}
		return StringValue(v.Terms()[0]), nil

	case TypeNumber:
		switch v.kind {
		case KindNumber:
			return v, nil
		case KindString, KindEnum:
			n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
			if err != nil {
				return AttributeValue{}, fmt.Errorf("attribute %q: %q is not a number", def.Key, v.str)
			}
			return NumberValue(n), nil
		}
		return AttributeValue{}, fmt.Errorf("attribute %q: expected number", def.Key)

	case TypeBoolean:
		switch v.kind {
		case KindBool:
			return v, nil
		case KindString, KindEnum:
			b, err := strconv.ParseBool(v.str)
			if err != nil {
				return AttributeValue{}, fmt.Errorf("attribute %q: %q is not a boolean", def.Key, v.str)
			}
			return BoolValue(b), nil
		}
		return AttributeValue{}, fmt.Errorf("attribute %q: expected boolean", def.Key)

	case TypeEnum:
		if v.kind == KindList {
			return AttributeValue{}, fmt.Errorf("attribute %q: expected a single option, got list", def.Key)
		}
		s := v.Terms()[0]
		if !def.HasOption(s) {
			return AttributeValue{}, fmt.Errorf("attribute %q: %q is not an allowed option", def.Key, s)
		}
		return EnumValue(s), nil

	case TypeMultiEnum:
		terms := v.Terms()
		out := make([]string, 0, len(terms))
		for _, t := range terms {
			if !def.HasOption(t) {
				return AttributeValue{}, fmt.Errorf("attribute %q: %q is not an allowed option", def.Key, t)
			}
			out = append(out, t)
		}
		return ListValue(out...), nil
	}

	return AttributeValue{}, fmt.Errorf("attribute %q: unknown type %q", def.Key, def.Type)
}

// MarshalJSON encodes the value as its natural JSON form.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString, KindEnum:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes any JSON scalar or array without a schema. Array
// elements are kept in their string form.
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = AttributeValue{}
		return nil
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode attribute value: %w", err)
	}

	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case bool:
		*v = BoolValue(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return fmt.Errorf("decode attribute value: %w", err)
		}
		*v = NumberValue(n)
	case []any:
		list := make([]string, 0, len(x))
		for _, el := range x {
			if s, ok := ScalarString(el); ok {
				list = append(list, s)
			}
		}
		*v = ListValue(list...)
	default:
		return fmt.Errorf("decode attribute value: unsupported json %s", string(data))
	}
	return nil
}

// ScalarString renders a decoded JSON scalar in the string form used by
// Terms. Nulls, objects and arrays are rejected.
func ScalarString(x any) (string, bool) {
	switch t := x.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return formatNumber(f), true
		}
		return t.String(), true
	case float64:
		return formatNumber(t), true
	case int:
		return strconv.Itoa(t), true
	}
	return "", false
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
