package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the scalar held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindTime
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return "null"
	}
}

// Value is a single cell of an entity row or reconciled frame.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Time time.Time
}

// Null is the missing value.
var Null = Value{}

func Num(f float64) Value    { return Value{Kind: KindNumber, Num: f} }
func Str(s string) Value     { return Value{Kind: KindString, Str: s} }
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func Bool(b bool) Value {
	if b {
		return Num(1)
	}
	return Num(0)
}

// IsNull reports whether v carries no value. NaN numbers count as null.
func (v Value) IsNull() bool {
	return v.Kind == KindNull || (v.Kind == KindNumber && math.IsNaN(v.Num))
}

// Float returns the numeric view of v. Strings are parsed; times become unix seconds.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) {
			return 0, false
		}
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindTime:
		return float64(v.Time.Unix()), true
	default:
		return 0, false
	}
}

// String renders v the way it is used as a category label.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// Equal compares kind and payload. Two nulls are equal.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() && o.IsNull()
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindTime:
		return v.Time.Equal(o.Time)
	}
	return false
}

// FromAny converts decoded JSON/YAML/SQL scalars into a Value.
func FromAny(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null
	case Value:
		return t
	case float64:
		return Num(t)
	case float32:
		return Num(float64(t))
	case int:
		return Num(float64(t))
	case int8:
		return Num(float64(t))
	case int16:
		return Num(float64(t))
	case int32:
		return Num(float64(t))
	case int64:
		return Num(float64(t))
	case uint:
		return Num(float64(t))
	case uint8:
		return Num(float64(t))
	case uint16:
		return Num(float64(t))
	case uint32:
		return Num(float64(t))
	case uint64:
		return Num(float64(t))
	case bool:
		return Bool(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Num(f)
		}
		return Str(t.String())
	case string:
		return Str(t)
	case []byte:
		return Str(string(t))
	case time.Time:
		return Time(t)
	case *time.Time:
		if t == nil {
			return Null
		}
		return Time(*t)
	case *float64:
		if t == nil {
			return Null
		}
		return Num(*t)
	case *string:
		if t == nil {
			return Null
		}
		return Str(*t)
	case *int64:
		if t == nil {
			return Null
		}
		return Num(float64(*t))
	default:
		return Str(fmt.Sprint(t))
	}
}

// Any returns the plain Go scalar for serialization.
func (v Value) Any() interface{} {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil
		}
		return v.Num
	case KindString:
		return v.Str
	case KindTime:
		return v.Time
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var x interface{}
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}
