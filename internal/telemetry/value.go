// Package telemetry is the boundary between pipelines and the transports
// that deliver values off the device.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the type held by a Value.
type Kind uint8

const (
	KindFloat Kind = iota
	KindBool
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	default:
		return "float"
	}
}

// Value is a published telemetry value: a float, a boolean or an integer.
type Value struct {
	Kind Kind
	F    float64
	B    bool
	I    int64
}

// Float wraps a float value.
func Float(v float64) Value { return Value{Kind: KindFloat, F: v} }

// Bool wraps a boolean value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Int wraps an integer value.
func Int(v int64) Value { return Value{Kind: KindInt, I: v} }

// Any returns the value as float64, bool or int64.
func (v Value) Any() any {
	switch v.Kind {
	case KindBool:
		return v.B
	case KindInt:
		return v.I
	default:
		return v.F
	}
}

// String formats the value for logs and the serial console.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	default:
		return strconv.FormatFloat(v.F, 'f', -1, 64)
	}
}

// MarshalJSON encodes the bare value. Non-finite floats become null since
// JSON has no representation for them.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindFloat && (math.IsNaN(v.F) || math.IsInf(v.F, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a bare JSON boolean or number. Numbers without a
// fraction or exponent decode as integers; null decodes as NaN.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch s {
	case "true", "false":
		*v = Bool(s == "true")
		return nil
	case "null":
		*v = Float(math.NaN())
		return nil
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			*v = Int(i)
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("telemetry: cannot decode %s as a value", s)
	}
	*v = Float(f)
	return nil
}

// Scalar is the set of Go types an Output can publish.
type Scalar interface {
	float64 | float32 | bool | int | int32 | int64 | uint | uint32 | uint64
}

// ValueOf converts a scalar into a Value.
func ValueOf[T Scalar](v T) Value {
	switch x := any(v).(type) {
	case float64:
		return Float(x)
	case float32:
		return Float(float64(x))
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return Int(int64(x))
	}
	return Value{}
}
