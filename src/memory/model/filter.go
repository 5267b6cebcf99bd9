package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the Value variants.
type ValueKind uint8

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindBool
)

// Value is a typed filter operand.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Int(n int) Value        { return Number(float64(n)) }

// Strings lifts a list of strings into Values.
func Strings(ss ...string) []Value {
	out := make([]Value, len(ss))
	for i, s := range ss {
		out[i] = String(s)
	}
	return out
}

// Any returns the operand as a plain Go value for backends that speak JSON or BSON.
func (v Value) Any() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return v.Str
	}
}

func (v Value) equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Str == o.Str
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return strconv.Quote(v.Str)
	}
}

// Op is a filter operator.
type Op string

const (
	OpEq        Op = "eq"
	OpIn        Op = "in"
	OpNotExists Op = "notExists"
	OpGte       Op = "gte"
)

// Condition constrains a single metadata field.
type Condition struct {
	Field  string
	Op     Op
	Values []Value
}

// Filter is the conjunction of its conditions. The empty filter matches everything.
type Filter []Condition

func Eq(field string, v Value) Condition {
	return Condition{Field: field, Op: OpEq, Values: []Value{v}}
}

func In(field string, vs ...Value) Condition {
	return Condition{Field: field, Op: OpIn, Values: vs}
}

func NotExists(field string) Condition {
	return Condition{Field: field, Op: OpNotExists}
}

func Gte(field string, n float64) Condition {
	return Condition{Field: field, Op: OpGte, Values: []Value{Number(n)}}
}

// Where builds a Filter from conditions.
func Where(conds ...Condition) Filter { return Filter(conds) }

// And appends conditions, returning a new Filter.
func (f Filter) And(conds ...Condition) Filter {
	out := make(Filter, 0, len(f)+len(conds))
	out = append(out, f...)
	return append(out, conds...)
}

// Validate rejects malformed conditions before they reach a backend.
func (f Filter) Validate() error {
	for _, c := range f {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("filter: empty field name")
		}
		switch c.Op {
		case OpEq, OpGte:
			if len(c.Values) != 1 {
				return fmt.Errorf("filter: %s on %q needs exactly one value", c.Op, c.Field)
			}
			if c.Op == OpGte && c.Values[0].Kind != KindNumber {
				return fmt.Errorf("filter: gte on %q needs a number", c.Field)
			}
		case OpIn:
			if len(c.Values) == 0 {
				return fmt.Errorf("filter: in on %q needs at least one value", c.Field)
			}
		case OpNotExists:
		default:
			return fmt.Errorf("filter: unknown operator %q", c.Op)
		}
	}
	return nil
}

// Match evaluates the filter against metadata. List fields match eq/in when any element matches.
func (f Filter) Match(m Metadata) bool {
	for _, c := range f {
		if !c.match(m) {
			return false
		}
	}
	return true
}

func (c Condition) match(m Metadata) bool {
	vals, ok := m.Values(c.Field)
	switch c.Op {
	case OpNotExists:
		return !ok
	case OpEq:
		if !ok || len(c.Values) == 0 {
			return false
		}
		return containsValue(vals, c.Values[0])
	case OpIn:
		if !ok {
			return false
		}
		for _, want := range c.Values {
			if containsValue(vals, want) {
				return true
			}
		}
		return false
	case OpGte:
		if !ok || len(c.Values) == 0 {
			return false
		}
		for _, v := range vals {
			if v.Kind == KindNumber && v.Num >= c.Values[0].Num {
				return true
			}
		}
		return false
	}
	return false
}

func containsValue(haystack []Value, needle Value) bool {
	for _, v := range haystack {
		if v.equal(needle) {
			return true
		}
	}
	return false
}

func (f Filter) String() string {
	if len(f) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		switch c.Op {
		case OpNotExists:
			parts = append(parts, fmt.Sprintf("%s notExists", c.Field))
		default:
			vals := make([]string, len(c.Values))
			for i, v := range c.Values {
				vals[i] = v.String()
			}
			parts = append(parts, fmt.Sprintf("%s %s [%s]", c.Field, c.Op, strings.Join(vals, ",")))
		}
	}
	return "{" + strings.Join(parts, " AND ") + "}"
}
