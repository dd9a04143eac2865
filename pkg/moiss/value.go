package moiss

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type ValueType string

const (
	NUMBER_VAL  ValueType = "NUMBER"
	STRING_VAL  ValueType = "STRING"
	BOOLEAN_VAL ValueType = "BOOLEAN"
	NULL_VAL    ValueType = "NULL"
	RECORD_VAL  ValueType = "RECORD"
	LIST_VAL    ValueType = "LIST"
)

// Value is the closed tagged variant of runtime values. Every operator
// in the executor pattern-matches on this set.
type Value interface {
	Type() ValueType
	Inspect() string
}

// Number is a floating-point magnitude with an optional unit tag. An
// empty Unit marks a dimensionless number.
type Number struct {
	Value float64
	Unit  string
}

func (n *Number) Type() ValueType { return NUMBER_VAL }
func (n *Number) Inspect() string {
	s := strconv.FormatFloat(n.Value, 'f', -1, 64)
	if n.Unit != "" {
		return s + " " + n.Unit
	}
	return s
}

type String struct {
	Value string
}

func (s *String) Type() ValueType { return STRING_VAL }
func (s *String) Inspect() string { return s.Value }

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ValueType { return BOOLEAN_VAL }
func (b *Boolean) Inspect() string { return fmt.Sprintf("%t", b.Value) }

type Null struct{}

func (n *Null) Type() ValueType { return NULL_VAL }
func (n *Null) Inspect() string { return "null" }

// List is an ordered sequence of values.
type List struct {
	Elements []Value
}

func (l *List) Type() ValueType { return LIST_VAL }
func (l *List) Inspect() string {
	parts := make([]string, len(l.Elements))
	for i, e := range l.Elements {
		parts[i] = e.Inspect()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Record is a flat named-field value: the Patient binding and instances
// of declared types. Parent fields are merged in at construction time,
// so lookup never walks a type hierarchy.
type Record struct {
	TypeName string
	Fields   map[string]Value
}

func (r *Record) Type() ValueType { return RECORD_VAL }
func (r *Record) Inspect() string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + r.Fields[name].Inspect()
	}
	return r.TypeName + " { " + strings.Join(parts, ", ") + " }"
}

// FieldNames returns the record's field names in sorted order, for
// error messages.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	NULL  = &Null{}
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
)

func nativeBoolToValue(b bool) *Boolean {
	if b {
		return TRUE
	}
	return FALSE
}
