// Package compiler implements the expression compiler (spec.md §4.5)
// and statement/declaration parser (spec.md §4.6) as a single explicit
// Context value (spec.md §9's design note), replacing the source
// implementation's process-global lexer cursor, scope stack, emitter
// state, and symbol tables with fields threaded through every parser
// function.
package compiler

import (
	"fmt"
	"io"

	"github.com/icpp-lang/icpp/internal/dataseg"
	"github.com/icpp-lang/icpp/internal/emitter"
	"github.com/icpp-lang/icpp/internal/lexer"
	"github.com/icpp-lang/icpp/internal/scope"
	"github.com/icpp-lang/icpp/internal/symtab"
)

// loopFrame tracks the fixup offsets pending resolution for one active
// for/while/do-while loop (or switch, for break only), enabling
// break/continue (SPEC_FULL.md §12, a feature recovered from
// original_source/icpp.cpp). Both breaks and continues are deferred
// fixups: a loop's continue target (the step for "for", the condition
// test for "while"/"do") is not known until the body has been parsed.
type loopFrame struct {
	breaks    []int // OpenFixup offsets to patch to loop-end
	continues []int // OpenFixup offsets to patch to the continue target
}

// Context bundles every piece of compiler state threaded explicitly
// through the parser, in place of the original implementation's
// globals (spec.md §9).
type Context struct {
	Syms  *symtab.Store
	Scope *scope.Tracker
	Emit  *emitter.Emitter
	Data  *dataseg.Segment

	Enums map[string]int

	// Verbosity gates the diagnostic printing described in
	// SPEC_FULL.md §10: -v repeated on the CLI raises this counter,
	// and Tracef only writes at or below the current level, in the
	// same spirit as the teacher's -trace/-mem-trace/-stats flag
	// family but funneled through one counter instead of several
	// independent booleans.
	Verbosity int
	Diag      io.Writer
	Filename  string

	toks []lexer.Token
	pos  int
	cur  lexer.Token
	peek lexer.Token

	loops []loopFrame
}

// New creates a compiler context over an already-tokenized source,
// with the symbol store, emitter, and data segment pre-populated
// (typically by internal/builtin.Declare before the first call here).
func New(toks []lexer.Token, filename string, syms *symtab.Store, emit *emitter.Emitter, data *dataseg.Segment) *Context {
	c := &Context{
		Syms:     syms,
		Scope:    scope.New(),
		Emit:     emit,
		Data:     data,
		Enums:    make(map[string]int),
		Filename: filename,
		toks:     toks,
	}
	c.advance()
	c.advance()
	return c
}

func (c *Context) advance() {
	c.cur = c.peek
	if c.pos < len(c.toks) {
		c.peek = c.toks[c.pos]
		c.pos++
	} else {
		c.peek = lexer.Token{Type: lexer.TokEOF}
	}
}

// Tracef writes a diagnostic line when the context's Verbosity is at
// least level, per SPEC_FULL.md §10. A nil Diag (the default when no
// -v flag was given) makes this a no-op.
func (c *Context) Tracef(level int, format string, args ...interface{}) {
	if c.Diag == nil || c.Verbosity < level {
		return
	}
	fmt.Fprintf(c.Diag, format+"\n", args...)
}

func (c *Context) errorf(format string, args ...interface{}) error {
	return &Error{Pos: fmt.Sprintf("%s:%d:%d", c.Filename, c.cur.Pos.Line, c.cur.Pos.Column), Message: fmt.Sprintf(format, args...)}
}

// expect consumes the current token if it is the operator lit,
// otherwise fails with a ParseError.
func (c *Context) expect(lit string) error {
	if !c.cur.Is(lit) {
		return c.errorf("expected %q, got %q", lit, c.cur.Literal)
	}
	c.advance()
	return nil
}

func (c *Context) expectIdent() (string, error) {
	if c.cur.Type != lexer.TokIdent {
		return "", c.errorf("expected identifier, got %q", c.cur.Literal)
	}
	name := c.cur.Literal
	c.advance()
	return name, nil
}

// skipStdNamespace consumes a leading "std::" qualifier, a tolerance
// for sources that don't carry "using namespace std;".
func (c *Context) skipStdNamespace() {
	if c.cur.Type == lexer.TokIdent && c.cur.Literal == "std" && c.peek.Is("::") {
		c.advance()
		c.advance()
	}
}

func (c *Context) atEOF() bool {
	return c.cur.Type == lexer.TokEOF
}

// curIndex returns the absolute index into toks of the current token,
// derived from the (cur, peek, pos) lookahead window New()/advance()
// maintain: pos is always exactly 2 past cur's index.
func (c *Context) curIndex() int {
	return c.pos - 2
}

// tokenAt returns the token at an absolute index, or a synthetic EOF
// token past the end.
func (c *Context) tokenAt(idx int) lexer.Token {
	if idx < 0 || idx >= len(c.toks) {
		return lexer.Token{Type: lexer.TokEOF}
	}
	return c.toks[idx]
}

// seek repositions the parser's lookahead window to start at an
// absolute token index, used by switch compilation (spec.md §12) to
// revisit each case/default body in an order other than source order.
func (c *Context) seek(idx int) {
	c.cur = c.tokenAt(idx)
	c.peek = c.tokenAt(idx + 1)
	c.pos = idx + 2
}

// pushLoop opens a new break/continue context for a loop (or switch)
// body.
func (c *Context) pushLoop() {
	c.loops = append(c.loops, loopFrame{})
}

func (c *Context) addBreak(off int) {
	f := &c.loops[len(c.loops)-1]
	f.breaks = append(f.breaks, off)
}

func (c *Context) addContinue(off int) {
	f := &c.loops[len(c.loops)-1]
	f.continues = append(f.continues, off)
}

// resolveContinues patches every pending continue fixup to the current
// code offset (the point a loop re-tests its condition).
func (c *Context) resolveContinues() error {
	f := &c.loops[len(c.loops)-1]
	for _, off := range f.continues {
		if err := c.Emit.UpdateRelativeAddress(off); err != nil {
			return err
		}
	}
	f.continues = nil
	return nil
}

// resolveContinuesTo patches every pending continue fixup to an
// already-emitted target (a "for" loop's step, which is parsed before
// the body).
func (c *Context) resolveContinuesTo(target int) error {
	f := &c.loops[len(c.loops)-1]
	for _, off := range f.continues {
		if err := c.Emit.PatchRelativeTo(off, target); err != nil {
			return err
		}
	}
	f.continues = nil
	return nil
}

// popLoop closes the innermost loop context, patching every pending
// break fixup to the current (loop-end) code offset.
func (c *Context) popLoop() error {
	n := len(c.loops)
	f := c.loops[n-1]
	c.loops = c.loops[:n-1]
	for _, off := range f.breaks {
		if err := c.Emit.UpdateRelativeAddress(off); err != nil {
			return err
		}
	}
	return nil
}

// popSwitch closes a switch's break context the same way popLoop
// does, but forwards any continue fixups collected inside the switch
// body to the next enclosing loop (a switch has no loop of its own, so
// "continue" inside one targets whatever loop contains it).
func (c *Context) popSwitch() error {
	n := len(c.loops)
	f := c.loops[n-1]
	c.loops = c.loops[:n-1]
	for _, off := range f.breaks {
		if err := c.Emit.UpdateRelativeAddress(off); err != nil {
			return err
		}
	}
	if len(f.continues) > 0 && len(c.loops) > 0 {
		outer := &c.loops[len(c.loops)-1]
		outer.continues = append(outer.continues, f.continues...)
	}
	return nil
}

// symbolExists reports whether name is already bound as a local, a
// global, or a function overload group, used to reject enum constants
// that would shadow an existing symbol.
func (c *Context) symbolExists(name string) bool {
	if _, _, ok := c.Scope.Lookup(name); ok {
		return true
	}
	if _, ok := c.Syms.Lookup(name); ok {
		return true
	}
	return len(c.Syms.OverloadGroup(name)) > 0
}
