// Package record defines the runtime-typed value and record representation
// shared by the heap file, indexes, and query executor. A Record is an
// ordered field->Value mapping; ordering is the field insertion order, as
// reported by Fields. Serialize does not use that order: it writes keys
// sorted, so the same logical record always serializes to the same bytes
// (which the in-place update fast path in package heap relies on).
package record

import (
	"fmt"
	"math"
)

// Kind tags the dynamic type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

// Value is a tagged union over the field types a stored record may hold:
// null, bool, integer, float, or string. Only one of the typed fields is
// meaningful for a given Kind.
type Value struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	S    string
}

func Null() Value             { return Value{Kind: KindNull} }
func Bool(b bool) Value       { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value       { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value   { return Value{Kind: KindFloat, F: f} }
func String(s string) Value   { return Value{Kind: KindString, S: s} }

func (v Value) IsNull() bool    { return v.Kind == KindNull }
func (v Value) IsNumeric() bool { return v.Kind == KindInt || v.Kind == KindFloat }

// Num returns the numeric value of v as a float64, for arithmetic and
// numeric-coercion comparisons. It is only meaningful when IsNumeric is true.
func (v Value) Num() float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

// FromAny converts a loosely-typed Go value, as produced by a command AST's
// INSERT/UPDATE payload, into a Value. Supported inputs: nil, bool, string,
// and any of Go's integer/float kinds (Deserialize hands us int64 or
// float64, hand-built commands may hand us int).
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// Any converts v back to the loosely-typed representation the executor's
// public API and the event sink hooks traffic in.
func (v Value) Any() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.B
	case KindInt:
		return v.I
	case KindFloat:
		return v.F
	case KindString:
		return v.S
	default:
		return nil
	}
}

// Equal reports value-based equality with numeric coercion: if either side
// is numeric, both are compared as numbers. This is the equality used for
// "=" predicates, index bucket membership, and DISTINCT deduplication.
func (v Value) Equal(other Value) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() && other.IsNull()
	}
	if v.IsNumeric() || other.IsNumeric() {
		if v.IsNumeric() && other.IsNumeric() {
			return v.Num() == other.Num()
		}
		// one numeric, one not: coerce the non-numeric side if it parses,
		// otherwise they are not equal.
		if n, ok := coerceNumeric(v); ok {
			if m, ok2 := coerceNumeric(other); ok2 {
				return n == m
			}
		}
		return false
	}
	if v.Kind == KindBool && other.Kind == KindBool {
		return v.B == other.B
	}
	return v.Kind == other.Kind && v.S == other.S
}

func coerceNumeric(v Value) (float64, bool) {
	if v.IsNumeric() {
		return v.Num(), true
	}
	if v.Kind == KindString {
		var f float64
		if _, err := fmt.Sscanf(v.S, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Compare orders values with a deterministic total order: numbers order
// numerically, strings lexicographically, and across incompatible types the
// fixed ordering number < string < bool < null is used so that callers
// (sorting, index key ordering) never panic on mixed-type input.
func Compare(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindInt, KindFloat:
		an, bn := a.Num(), b.Num()
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case KindString:
		switch {
		case a.S < b.S:
			return -1
		case a.S > b.S:
			return 1
		default:
			return 0
		}
	case KindBool:
		if a.B == b.B {
			return 0
		}
		if !a.B && b.B {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func typeRank(v Value) int {
	switch v.Kind {
	case KindInt, KindFloat:
		return 0
	case KindString:
		return 1
	case KindBool:
		return 2
	default:
		return 3
	}
}

// orderedFloatBits maps a float64 onto a uint64 space such that unsigned
// integer comparison of the result matches numeric comparison of the
// original floats, including across the positive/negative boundary. Used by
// package index to build an order-preserving string key from a numeric
// Value for its underlying sorted map.
func orderedFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// OrderedBits exposes orderedFloatBits for the index package's key encoding.
func (v Value) OrderedBits() uint64 {
	return orderedFloatBits(v.Num())
}
