// Package emitter implements the code-segment writer described in
// spec.md §4.4: it appends one- or two-word instructions, tracks which
// source line produced which code-segment range, optionally attaches a
// comment to an instruction for the disassembler, and patches forward
// branches through an explicit fixup record (spec.md §9).
package emitter

import (
	"fmt"

	"github.com/icpp-lang/icpp/internal/opcode"
)

// LineRange is the half-open [Start, End) code-segment range emitted
// while parsing tokens that originated on one source line.
type LineRange struct {
	Start, End int
}

// Emitter owns the growing code segment.
type Emitter struct {
	Code []int

	lineRanges map[int]*LineRange
	comments   map[int]string
	fixups     map[int]bool // offset -> resolved

	curLine int
}

// New creates an empty emitter.
func New() *Emitter {
	return &Emitter{
		lineRanges: make(map[int]*LineRange),
		comments:   make(map[int]string),
		fixups:     make(map[int]bool),
	}
}

// SetLine tells the emitter which source line subsequent Emit calls
// belong to, opening (or continuing) that line's range.
func (e *Emitter) SetLine(line int) {
	e.curLine = line
	if _, ok := e.lineRanges[line]; !ok {
		e.lineRanges[line] = &LineRange{Start: len(e.Code), End: len(e.Code)}
	}
}

func (e *Emitter) recordEmit() {
	if e.curLine == 0 {
		return
	}
	r := e.lineRanges[e.curLine]
	if r == nil {
		r = &LineRange{Start: len(e.Code)}
		e.lineRanges[e.curLine] = r
	}
	r.End = len(e.Code)
}

// End returns the current length of the code segment (the next
// instruction's offset).
func (e *Emitter) End() int {
	return len(e.Code)
}

// Emit appends a bare (no-immediate) instruction and returns its offset.
func (e *Emitter) Emit(op opcode.Op) int {
	off := len(e.Code)
	e.Code = append(e.Code, int(op))
	e.recordEmit()
	return off
}

// EmitImm appends a two-word instruction (opcode + literal immediate)
// and returns the opcode's offset.
func (e *Emitter) EmitImm(op opcode.Op, imm int) int {
	off := len(e.Code)
	e.Code = append(e.Code, int(op), imm)
	e.recordEmit()
	return off
}

// EmitRelative appends a CALL/JMP/JZ/JNZ instruction whose immediate is
// the signed displacement to targetAbs, computed relative to the
// address of the word immediately following the operand
// (ip_after_operand = off+2). The target must already be known; a
// forward branch is emitted with OpenFixup instead.
func (e *Emitter) EmitRelative(op opcode.Op, targetAbs int) int {
	if !opcode.Relative(op) {
		panic(fmt.Sprintf("EmitRelative called with non-relative opcode %s", op))
	}
	off := len(e.Code)
	disp := targetAbs - (off + 2)
	e.Code = append(e.Code, int(op), disp)
	e.recordEmit()
	return off
}

// OpenFixup emits a relative-address instruction whose target is not
// yet known (displacement 0) and registers it as an unresolved fixup.
// The returned offset must later be passed to UpdateRelativeAddress
// exactly once.
func (e *Emitter) OpenFixup(op opcode.Op) int {
	off := len(e.Code)
	e.Code = append(e.Code, int(op), 0) // placeholder displacement
	e.recordEmit()
	e.fixups[off] = false
	return off
}

// UpdateRelativeAddress patches the branch instruction at offset to
// target the current end of the code segment (spec.md §4.4). It is an
// error to patch a fixup that was not opened with OpenFixup, to patch
// an offset that is not a relative-address instruction, or to patch the
// same fixup twice.
func (e *Emitter) UpdateRelativeAddress(offset int) error {
	resolved, opened := e.fixups[offset]
	if !opened {
		return fmt.Errorf("offset %d is not a registered branch fixup", offset)
	}
	if resolved {
		return fmt.Errorf("fixup at offset %d already resolved", offset)
	}
	if offset+1 >= len(e.Code) {
		return fmt.Errorf("offset %d has no immediate word", offset)
	}
	op := opcode.Op(e.Code[offset])
	if !opcode.Relative(op) {
		return fmt.Errorf("offset %d (%s) is not a branch instruction", offset, op)
	}
	e.Code[offset+1] = len(e.Code) - (offset + 2)
	e.fixups[offset] = true
	return nil
}

// PatchRelativeTo patches the branch instruction at offset to target an
// already-known absolute target (used when the target was emitted
// earlier than the branch, i.e. a backward branch).
func (e *Emitter) PatchRelativeTo(offset, targetAbs int) error {
	if offset+1 >= len(e.Code) {
		return fmt.Errorf("offset %d has no immediate word", offset)
	}
	op := opcode.Op(e.Code[offset])
	if !opcode.Relative(op) {
		return fmt.Errorf("offset %d (%s) is not a branch instruction", offset, op)
	}
	e.Code[offset+1] = targetAbs - (offset + 2)
	e.fixups[offset] = true
	return nil
}

// PatchImmediate overwrites the immediate word of a non-relative
// instruction already emitted, used by the scope/frame tracker to grow
// an ENTER's locals-size operand in place as locals are declared
// (spec.md §4.3).
func (e *Emitter) PatchImmediate(offset, value int) {
	e.Code[offset+1] = value
}

// Rollback discards every instruction emitted since mark (a value
// previously returned by End), used by sizeof's "parse and discard"
// rule (spec.md §4.5): the inner expression must still be parsed for
// syntax, but it emits no code.
func (e *Emitter) Rollback(mark int) {
	e.Code = e.Code[:mark]
	for off := range e.fixups {
		if off >= mark {
			delete(e.fixups, off)
		}
	}
	for off := range e.comments {
		if off >= mark {
			delete(e.comments, off)
		}
	}
	for _, r := range e.lineRanges {
		if r.End > mark {
			r.End = mark
		}
		if r.Start > mark {
			r.Start = mark
		}
	}
}

// SetComment attaches a disassembly-only comment to the instruction at
// offset.
func (e *Emitter) SetComment(offset int, comment string) {
	e.comments[offset] = comment
}

// Comment returns the comment attached to offset, if any.
func (e *Emitter) Comment(offset int) (string, bool) {
	c, ok := e.comments[offset]
	return c, ok
}

// LineRanges returns the recorded per-line code ranges.
func (e *Emitter) LineRanges() map[int]*LineRange {
	return e.lineRanges
}
