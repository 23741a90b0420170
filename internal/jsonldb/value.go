// Defines scalar cell values, rows and incoming records.

package jsonldb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindEmpty valueKind = iota
	kindText
	kindNumber
)

// Value is a single scalar cell: text, a number, or empty.
//
// The zero Value is empty. Numbers are kept as a canonical decimal literal so
// that 12 and 12.0 compare equal. Comparison is kind-sensitive: the number 5
// and the text "5" are different values.
type Value struct {
	kind valueKind
	s    string
}

// Text returns a text Value. The empty string is the empty Value.
func Text(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: kindText, s: s}
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{kind: kindNumber, s: strconv.FormatFloat(f, 'f', -1, 64)}
}

// ParseValue converts a decoded JSON scalar into a Value.
//
// Accepted inputs are nil, string, float64, json.Number and the Go integer
// types. Anything else (objects, arrays, booleans) returns ErrInvalidRecord.
func ParseValue(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case string:
		return Text(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("%w: non-finite number", ErrInvalidRecord)
		}
		return Number(t), nil
	case float32:
		return ParseValue(float64(t))
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: bad number %q", ErrInvalidRecord, t.String())
		}
		return ParseValue(f)
	default:
		return Value{}, fmt.Errorf("%w: unsupported value of type %T", ErrInvalidRecord, v)
	}
}

// IsEmpty reports whether the cell is empty.
func (v Value) IsEmpty() bool {
	return v.kind == kindEmpty
}

// String returns the text, the number literal, or "" when empty.
func (v Value) String() string {
	return v.s
}

// Float64 returns the numeric value of the cell.
//
// Text cells that parse as a number are accepted, since hand-edited sheets
// often carry numbers as text.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case kindNumber:
		f, err := strconv.ParseFloat(v.s, 64)
		return f, err == nil
	case kindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.s == o.s
}

// MarshalJSON encodes empty as "", text as a JSON string and numbers as JSON
// numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		return []byte(v.s), nil
	case kindText:
		return json.Marshal(v.s)
	default:
		return []byte(`""`), nil
	}
}

// UnmarshalJSON accepts a JSON string, number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var raw any
	if err := d.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Row maps column names to cell values. Rows returned by the store always
// carry every schema column.
type Row map[string]Value

// Record is an incoming object before it is projected onto a schema.
type Record map[string]any

// DecodeRecord decodes a JSON object into a Record, keeping numbers exact.
// Anything but a JSON object returns ErrInvalidRecord.
func DecodeRecord(data []byte) (Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidRecord)
	}
	d := json.NewDecoder(bytes.NewReader(trimmed))
	d.UseNumber()
	var rec Record
	if err := d.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return rec, nil
}

// DecodeRecords decodes a JSON array of objects.
func DecodeRecords(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("%w: expected an array of objects", ErrInvalidRecord)
	}
	out := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := DecodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
