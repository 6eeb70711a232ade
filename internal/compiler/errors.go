package compiler

import "fmt"

// Error is a ParseError (spec.md §7): an unexpected token, unknown
// symbol, ambiguous overload, type mismatch, redefinition, invalid
// array shape, or array-initializer overflow. Parsing aborts on the
// first one.
type Error struct {
	Pos     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}
