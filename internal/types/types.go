// Package types implements the structured type descriptor called for
// by spec.md's design notes: a type is a primitive name, a pointer to a
// descriptor, an array of a descriptor with a dimension list, or a
// function descriptor. The overload key and diagnostic text the rest of
// the compiler consumes are always the canonical string form, derived
// from the descriptor rather than stored separately.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes the four descriptor shapes.
type Kind int

const (
	Primitive Kind = iota
	Pointer
	Array
	Function
)

// Desc is a type descriptor. Only the fields relevant to Kind are set.
type Desc struct {
	Kind Kind

	// Primitive
	Name string

	// Pointer / Array element
	Elem *Desc

	// Array
	Dims []int

	// Function
	Ret  *Desc
	Args []*Desc
}

// Int is the lone scalar type this language's arithmetic operates on.
var Int = &Desc{Kind: Primitive, Name: "int"}

// CharPtr is the type of string literals, spec.md §4.5's "const
// char*" (not a bare "char*"): it must render exactly as the builtin
// stream/printf overloads declare their string parameter, or overload
// resolution would never find them.
var CharPtr = &Desc{Kind: Pointer, Elem: &Desc{Kind: Primitive, Name: "const char"}}

// NewPrimitive builds a bare named type, e.g. for "const char", "void".
func NewPrimitive(name string) *Desc {
	return &Desc{Kind: Primitive, Name: name}
}

// PointerTo builds a pointer-to-elem descriptor.
func PointerTo(elem *Desc) *Desc {
	return &Desc{Kind: Pointer, Elem: elem}
}

// ArrayOf builds an array-of-elem descriptor with the given dimensions,
// outermost first.
func ArrayOf(elem *Desc, dims []int) *Desc {
	return &Desc{Kind: Array, Elem: elem, Dims: dims}
}

// FuncOf builds a function descriptor.
func FuncOf(ret *Desc, args []*Desc) *Desc {
	return &Desc{Kind: Function, Ret: ret, Args: args}
}

// String renders the canonical external form used as overload-key text
// and in diagnostics: "int", "int*", "int[3]", "(*)(int,int)".
func (d *Desc) String() string {
	if d == nil {
		return ""
	}
	switch d.Kind {
	case Primitive:
		return d.Name
	case Pointer:
		return d.Elem.String() + "*"
	case Array:
		var sb strings.Builder
		sb.WriteString(d.Elem.String())
		for _, n := range d.Dims {
			if n > 0 {
				sb.WriteString("[" + strconv.Itoa(n) + "]")
			} else {
				sb.WriteString("[]")
			}
		}
		return sb.String()
	case Function:
		parts := make([]string, len(d.Args))
		for i, a := range d.Args {
			parts[i] = a.String()
		}
		return fmt.Sprintf("(*)(%s)", strings.Join(parts, ","))
	default:
		return "?"
	}
}

// IsInt reports whether d is exactly the scalar int type used for
// arithmetic (not a pointer or array of int).
func (d *Desc) IsInt() bool {
	return d != nil && d.Kind == Primitive && (d.Name == "int" || strings.HasSuffix(d.Name, " int"))
}

// IsPointer reports whether the canonical form ends in "*".
func (d *Desc) IsPointer() bool {
	return d != nil && d.Kind == Pointer
}

// IsArray reports whether the canonical form ends in "]".
func (d *Desc) IsArray() bool {
	return d != nil && d.Kind == Array
}

// Deref strips one level of pointer or one (outermost) array dimension,
// as described in spec.md §4.5's indexing rules. For a multi-dimensional
// array it peels the outermost dimension and returns an array of the
// remaining dimensions (or the bare element type once exhausted).
func (d *Desc) Deref() *Desc {
	switch d.Kind {
	case Pointer:
		return d.Elem
	case Array:
		if len(d.Dims) <= 1 {
			return d.Elem
		}
		return &Desc{Kind: Array, Elem: d.Elem, Dims: d.Dims[1:]}
	default:
		return d
	}
}

// ElementSize is always 1 word in this specification: there is no
// sub-word addressing and pointer arithmetic scales by a single word.
func (d *Desc) ElementSize() int {
	return 1
}

// FlatSize is the total number of words an array descriptor occupies.
func (d *Desc) FlatSize() int {
	if d.Kind != Array {
		return 1
	}
	n := 1
	for _, dim := range d.Dims {
		if dim > 0 {
			n *= dim
		}
	}
	return n
}

// ParseName turns a free-form declared type name (as produced by the
// parser from a sequence of tokens such as "int" "*" or "const" "char")
// back into a Desc, used when the parser only has text in hand (e.g.
// overload resolution against a stored decorated name's argument list).
func ParseName(name string) *Desc {
	name = strings.TrimSpace(name)
	stars := 0
	for len(name) > 0 && name[len(name)-1] == '*' {
		stars++
		name = strings.TrimSpace(name[:len(name)-1])
	}
	d := &Desc{Kind: Primitive, Name: name}
	var out *Desc = d
	for i := 0; i < stars; i++ {
		out = &Desc{Kind: Pointer, Elem: out}
	}
	return out
}
