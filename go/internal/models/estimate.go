package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ValueKind describes what a Value holds.
type ValueKind string

const (
	ValueKindNull    ValueKind = "NULL"
	ValueKindNumber  ValueKind = "NUMBER"
	ValueKindToken   ValueKind = "TOKEN"
	ValueKindInvalid ValueKind = "INVALID"
)

// Special estimate tokens.
const (
	TokenUnsure = "?"
	TokenCoffee = "☕"
)

// Value is a single estimate: null until cast, a number, or a special token.
// Decoding never fails on a well-formed JSON value; anything that is not
// null, a number or a string decodes as ValueKindInvalid and is left to
// validation to reject.
type Value struct {
	kind  ValueKind
	num   float64
	token string
}

// NullValue returns the "not voted" value.
func NullValue() Value { return Value{} }

// NumberValue returns a numeric estimate.
func NumberValue(n float64) Value { return Value{kind: ValueKindNumber, num: n} }

// TokenValue returns a non-numeric estimate such as "?".
func TokenValue(token string) Value { return Value{kind: ValueKindToken, token: token} }

// Kind returns the kind of the value.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return ValueKindNull
	}
	return v.kind
}

// IsNull reports whether no estimate was cast.
func (v Value) IsNull() bool { return v.Kind() == ValueKindNull }

// Number returns the numeric estimate, if any.
func (v Value) Number() (float64, bool) {
	if v.kind != ValueKindNumber {
		return 0, false
	}
	return v.num, true
}

// Token returns the token estimate, if any.
func (v Value) Token() (string, bool) {
	if v.kind != ValueKindToken {
		return "", false
	}
	return v.token, true
}

// Equal reports whether two values hold the same estimate.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case ValueKindNumber:
		return v.num == other.num
	case ValueKindToken:
		return v.token == other.token
	case ValueKindInvalid:
		return false
	default:
		return true
	}
}

// Display renders the value the way the participant grid shows it after a
// reveal: "-" for no vote.
func (v Value) Display() string {
	switch v.Kind() {
	case ValueKindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueKindToken:
		return v.token
	case ValueKindInvalid:
		return "invalid"
	default:
		return "-"
	}
}

// MarshalJSON encodes the value as null, a number or a string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case ValueKindNumber:
		return json.Marshal(v.num)
	case ValueKindToken:
		return json.Marshal(v.token)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null, numbers and strings; other JSON types decode
// as an invalid value.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = NullValue()
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TokenValue(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
	default:
		*v = Value{kind: ValueKindInvalid}
	}
	return nil
}
