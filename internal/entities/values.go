package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// FieldType enumerates the typed value columns of a dynamic field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldJSON    FieldType = "json"
)

// Valid reports whether t is one of the five field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldBoolean, FieldDate, FieldJSON:
		return true
	}
	return false
}

// FieldValue is a closed sum over the five field types. Exactly one typed
// column is populated per stored row, decided by the concrete variant.
type FieldValue interface {
	Type() FieldType
	Any() any
	isFieldValue()
}

// TextValue is a text field.
type TextValue string

// NumberValue is a numeric field.
type NumberValue float64

// BooleanValue is a boolean field.
type BooleanValue bool

// DateValue is a date/time field.
type DateValue time.Time

// JSONValue is a JSON document field.
type JSONValue json.RawMessage

func (TextValue) Type() FieldType    { return FieldText }
func (NumberValue) Type() FieldType  { return FieldNumber }
func (BooleanValue) Type() FieldType { return FieldBoolean }
func (DateValue) Type() FieldType    { return FieldDate }
func (JSONValue) Type() FieldType    { return FieldJSON }

func (v TextValue) Any() any    { return string(v) }
func (v NumberValue) Any() any  { return float64(v) }
func (v BooleanValue) Any() any { return bool(v) }
func (v DateValue) Any() any    { return time.Time(v) }

// Any decodes the document; undecodable bytes are returned raw.
func (v JSONValue) Any() any {
	var out any
	if err := json.Unmarshal(v, &out); err != nil {
		return json.RawMessage(v)
	}
	return out
}

func (TextValue) isFieldValue()    {}
func (NumberValue) isFieldValue()  {}
func (BooleanValue) isFieldValue() {}
func (DateValue) isFieldValue()    {}
func (JSONValue) isFieldValue()    {}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// NewFieldValue converts a runtime value into the variant named by
// fieldType. It fails with InvalidFieldType when the runtime type disagrees.
func NewFieldValue(fieldType FieldType, value any) (FieldValue, error) {
	if !fieldType.Valid() {
		return nil, shared.Errorf(shared.KindInvalidFieldType, "unknown field type %q", fieldType)
	}
	mismatch := func() error {
		return shared.Errorf(shared.KindInvalidFieldType, "value of type %T is not a %s", value, fieldType)
	}
	if value == nil {
		return nil, mismatch()
	}
	switch fieldType {
	case FieldText:
		s, ok := value.(string)
		if !ok {
			return nil, mismatch()
		}
		return TextValue(s), nil
	case FieldNumber:
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			if isInteger(value) {
				return nil, shared.Errorf(shared.KindInvalidFieldType, "integer %v cannot be stored as a number without rounding", value)
			}
			return nil, mismatch()
		}
		return NumberValue(f), nil
	case FieldBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, mismatch()
		}
		return BooleanValue(b), nil
	case FieldDate:
		switch v := value.(type) {
		case time.Time:
			return DateValue(v), nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return DateValue(t), nil
				}
			}
		}
		return nil, mismatch()
	default:
		switch v := value.(type) {
		case json.RawMessage:
			if !json.Valid(v) {
				return nil, mismatch()
			}
			return JSONValue(v), nil
		case map[string]any, []any:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, mismatch()
			}
			return JSONValue(raw), nil
		}
		return nil, mismatch()
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return exactInt(int64(v))
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return exactInt(v)
	case uint:
		return exactUint(uint64(v))
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return exactUint(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return exactInt(i)
		}
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func isInteger(value any) bool {
	switch value.(type) {
	case int, int64, uint, uint64:
		return true
	case json.Number:
		_, err := value.(json.Number).Int64()
		return err == nil
	}
	return false
}

// exactInt converts v only when float64 holds it without rounding.
func exactInt(v int64) (float64, bool) {
	f := float64(v)
	if f >= math.MaxInt64 {
		return 0, false
	}
	return f, int64(f) == v
}

func exactUint(v uint64) (float64, bool) {
	f := float64(v)
	if f >= math.MaxUint64 {
		return 0, false
	}
	return f, uint64(f) == v
}

// columns returns the five typed column values with only the variant's
// column set; the rest are nil.
func columns(v FieldValue) (text, number, boolean, date, doc any) {
	switch x := v.(type) {
	case TextValue:
		text = string(x)
	case NumberValue:
		number = float64(x)
	case BooleanValue:
		boolean = bool(x)
	case DateValue:
		date = time.Time(x)
	case JSONValue:
		doc = []byte(x)
	default:
		panic(fmt.Sprintf("entities: unknown field value %T", v))
	}
	return
}
