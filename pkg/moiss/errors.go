package moiss

import (
	"fmt"
	"strings"
)

// Runtime errors carry the source line of the node that raised them
// when the parser recorded one; Line 0 means position unknown.

// NameError reports a reference to an unbound name or a missing
// record field.
type NameError struct {
	Name      string
	Line      int
	Available []string
}

func (e *NameError) Error() string {
	msg := fmt.Sprintf("name %q is not defined", e.Name)
	if len(e.Available) > 0 {
		msg += " (available: " + strings.Join(e.Available, ", ") + ")"
	}
	return at(msg, e.Line)
}

// TypeError reports an operation applied to operand types that do not
// support it, or a condition that did not evaluate to a boolean.
type TypeError struct {
	Op    string
	Left  ValueType
	Right ValueType
	Msg   string
	Line  int
}

func (e *TypeError) Error() string {
	if e.Msg != "" {
		return at(e.Msg, e.Line)
	}
	if e.Right == "" {
		return at(fmt.Sprintf("operator %q not supported for %s", e.Op, e.Left), e.Line)
	}
	return at(fmt.Sprintf("operator %q not supported between %s and %s", e.Op, e.Left, e.Right), e.Line)
}

// UnitMismatchError reports arithmetic or comparison between
// incompatible dimensions.
type UnitMismatchError struct {
	Op        string
	LeftUnit  string
	RightUnit string
	Line      int
}

func (e *UnitMismatchError) Error() string {
	return at(fmt.Sprintf("incompatible units for %q: %q vs %q", e.Op, e.LeftUnit, e.RightUnit), e.Line)
}

// IndexError reports a list index outside [0, len).
type IndexError struct {
	Index  int
	Length int
	Line   int
}

func (e *IndexError) Error() string {
	return at(fmt.Sprintf("index %d out of range for list of length %d", e.Index, e.Length), e.Line)
}

// LoopLimitError reports a while loop that reached the iteration
// ceiling.
type LoopLimitError struct {
	Limit int
	Line  int
}

func (e *LoopLimitError) Error() string {
	return at(fmt.Sprintf("loop exceeded %d iterations", e.Limit), e.Line)
}

// LibraryError reports a failed call into the default library.
type LibraryError struct {
	Function string
	Line     int
	Err      error
}

func (e *LibraryError) Error() string {
	return at(fmt.Sprintf("library call %s: %v", e.Function, e.Err), e.Line)
}

func (e *LibraryError) Unwrap() error { return e.Err }

func at(msg string, line int) string {
	if line > 0 {
		return fmt.Sprintf("%s at line %d", msg, line)
	}
	return msg
}
