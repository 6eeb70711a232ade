// Package scope implements the lexical scope stack and per-function
// stack-frame descriptor described in spec.md §4.3.
package scope

import (
	"fmt"

	"github.com/icpp-lang/icpp/internal/emitter"
	"github.com/icpp-lang/icpp/internal/opcode"
)

// Kind is the kind of a named scope. Only Function materially affects
// code generation (it opens/closes a stack frame).
type Kind int

const (
	FunctionScope Kind = iota
	StructScope
	ClassScope
	UnionScope
	NamespaceScope
)

// Local describes one local or argument slot within a frame.
type Local struct {
	Offset int // frame-relative: negative for locals, positive for args
	Size   int
	Type   string
	Dims   []int // declared array dimensions, outermost first; nil if not an array
}

// Frame is the per-function frame descriptor created at a function's
// ENTER instruction.
type Frame struct {
	Name          string
	EnterOffset   int // code-segment offset of the ENTER instruction (its immediate is the next word)
	LocalsSize    int
	FixedArgCount int
	ReturnType    string
	Locals        map[string]*Local
	Returned      bool // an explicit `return` already closed every path
}

type entry struct {
	kind  Kind
	name  string
	frame *Frame // non-nil only for FunctionScope
}

// Tracker is the scope stack plus the active frame descriptors.
type Tracker struct {
	stack  []entry
	frames []*Frame
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Depth returns the number of active (unmatched) function scopes —
// the invariant spec.md §8 calls "scope invariant".
func (t *Tracker) Depth() int {
	return len(t.frames)
}

// PushNamed enters a non-function named scope (struct/class/union/
// namespace): recorded for diagnostics, but opens no frame.
func (t *Tracker) PushNamed(kind Kind, name string) {
	t.stack = append(t.stack, entry{kind: kind, name: name})
}

// PushFunction enters a function scope. enterOffset is the code offset
// of the ENTER instruction just emitted (its immediate starts at 0 and
// is patched in place as locals are added).
func (t *Tracker) PushFunction(name string, fixedArgCount int, returnType string, enterOffset int) *Frame {
	f := &Frame{
		Name: name, EnterOffset: enterOffset, FixedArgCount: fixedArgCount,
		ReturnType: returnType, Locals: make(map[string]*Local),
	}
	t.stack = append(t.stack, entry{kind: FunctionScope, name: name, frame: f})
	t.frames = append(t.frames, f)
	return f
}

// Current returns the innermost active function frame, or nil if none.
func (t *Tracker) Current() *Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// Pop leaves the innermost scope. For a function scope, if the body did
// not already end with an explicit return, it emits the epilogue
// (LEAVE; RET fixedArgCount) automatically, per spec.md §4.3/§3's
// invariant that every ENTER is matched by LEAVE+RET on every exit.
func (t *Tracker) Pop(e *emitter.Emitter) error {
	if len(t.stack) == 0 {
		return fmt.Errorf("scope stack underflow")
	}
	top := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]

	if top.kind != FunctionScope {
		return nil
	}

	f := top.frame
	if len(t.frames) == 0 || t.frames[len(t.frames)-1] != f {
		return fmt.Errorf("frame stack out of sync with scope stack")
	}
	t.frames = t.frames[:len(t.frames)-1]

	if !f.Returned {
		e.Emit(opcode.LEAVE)
		e.EmitImm(opcode.RET, f.FixedArgCount)
	}
	return nil
}

// AddLocal reserves a local of the given size in the current function
// frame and returns its frame-relative (negative) offset, growing the
// frame's ENTER immediate in place.
func (t *Tracker) AddLocal(e *emitter.Emitter, name string, size int, typeName string) (int, error) {
	f := t.Current()
	if f == nil {
		return 0, fmt.Errorf("declaration of %q outside any function", name)
	}
	if _, exists := f.Locals[name]; exists {
		return 0, fmt.Errorf("redefinition of %q", name)
	}
	offset := -(f.LocalsSize + 1)
	f.Locals[name] = &Local{Offset: offset, Size: size, Type: typeName}
	f.LocalsSize += size
	e.PatchImmediate(f.EnterOffset, f.LocalsSize)
	return offset, nil
}

// AddArg registers argument name at positional index i (0 = leftmost)
// of a function with n fixed arguments. Its frame-relative offset is
// n - i + 1, placing arguments at positive offsets above the saved
// frame pointer and return address (spec.md §4.3).
func (t *Tracker) AddArg(name string, i, n int, typeName string) (int, error) {
	f := t.Current()
	if f == nil {
		return 0, fmt.Errorf("argument %q declared outside any function", name)
	}
	if _, exists := f.Locals[name]; exists {
		return 0, fmt.Errorf("redefinition of %q", name)
	}
	offset := n - i + 1
	f.Locals[name] = &Local{Offset: offset, Size: 1, Type: typeName}
	return offset, nil
}

// Lookup searches frame descriptors from innermost to outermost for a
// local or argument named name.
func (t *Tracker) Lookup(name string) (*Local, *Frame, bool) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		f := t.frames[i]
		if l, ok := f.Locals[name]; ok {
			return l, f, true
		}
	}
	return nil, nil, false
}

// MarkReturned records that the current function has already emitted
// its epilogue via an explicit return statement.
func (t *Tracker) MarkReturned() {
	if f := t.Current(); f != nil {
		f.Returned = true
	}
}
