package compiler

import (
	"fmt"
	"io"
	"strings"

	"github.com/icpp-lang/icpp/internal/builtin"
	"github.com/icpp-lang/icpp/internal/dataseg"
	"github.com/icpp-lang/icpp/internal/emitter"
	"github.com/icpp-lang/icpp/internal/lexer"
	"github.com/icpp-lang/icpp/internal/opcode"
	"github.com/icpp-lang/icpp/internal/symtab"
)

// Program is everything a compiled source file produces: the finished
// symbol store, data segment and code (via Emit), the builtin
// dispatch table, and the resolved entry point, handed to
// internal/loader and internal/disasm.
type Program struct {
	Syms     *symtab.Store
	Data     *dataseg.Segment
	Emit     *emitter.Emitter
	Builtins *builtin.Table
	Main     *symtab.Symbol
}

// Compile tokenizes and parses source (spec.md §4.1-§4.7 end to end),
// returning a Program ready for internal/loader, or the first
// lexical/parse error encountered. verbosity and diag implement
// SPEC_FULL.md §10's diagnostic gate (each -v on the CLI raises
// verbosity by one); pass 0 and nil to compile silently.
func Compile(source []string, filename string, verbosity int, diag io.Writer) (*Program, error) {
	lx := lexer.New(source, filename)
	toks := lx.TokenizeAll()
	if lx.Errors.HasErrors() {
		return nil, lx.Errors.Errors[0]
	}

	syms := symtab.New()
	emit := emitter.New()
	data := dataseg.New()
	bt, err := builtin.Declare(syms, emit, data)
	if err != nil {
		return nil, err
	}

	ctx := New(toks, filename, syms, emit, data)
	ctx.Verbosity = verbosity
	ctx.Diag = diag
	ctx.Tracef(1, "%s: %d source line(s), %d token(s)", filename, len(source), len(toks))
	for !ctx.atEOF() {
		if err := ctx.parseTopLevelItem(); err != nil {
			return nil, err
		}
	}

	mainSym, err := syms.LookupUnambiguous("main")
	if err != nil {
		return nil, fmt.Errorf("cannot resolve entry point %q: %w", "main", err)
	}

	return &Program{Syms: syms, Data: data, Emit: emit, Builtins: bt, Main: mainSym}, nil
}

func (c *Context) parseTopLevelItem() error {
	switch {
	case c.cur.Type == lexer.TokIdent && topSkipKeywords[c.cur.Literal]:
		return c.skipTopLevelDirective()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "enum":
		return c.parseEnumDecl()
	case c.cur.Type == lexer.TokIdent && isTypeLeading(c.cur.Literal):
		return c.parseTopLevelTypedItem()
	default:
		return c.errorf("unexpected top-level token %q", c.cur.Literal)
	}
}

func (c *Context) skipTopLevelDirective() error {
	c.advance() // the keyword itself
	depth := 0
	for {
		if c.atEOF() {
			return c.errorf("unexpected end of file while skipping a declaration")
		}
		if c.cur.Is("{") {
			depth++
			c.advance()
			continue
		}
		if c.cur.Is("}") {
			depth--
			c.advance()
			if depth == 0 {
				if c.cur.Is(";") {
					c.advance()
				}
				return nil
			}
			continue
		}
		if depth == 0 && c.cur.Is(";") {
			c.advance()
			return nil
		}
		c.advance()
	}
}

func (c *Context) parseTypePrefix() (string, error) {
	var words []string
	if c.cur.Type == lexer.TokIdent && c.cur.Literal == "const" {
		words = append(words, "const")
		c.advance()
	}
	if c.cur.Type != lexer.TokIdent || !knownTypeWords[c.cur.Literal] {
		return "", c.errorf("expected a type name, got %q", c.cur.Literal)
	}
	words = append(words, c.cur.Literal)
	c.advance()
	for c.cur.Type == lexer.TokIdent && knownTypeWords[c.cur.Literal] {
		words = append(words, c.cur.Literal)
		c.advance()
	}
	return strings.Join(words, " "), nil
}

func (c *Context) parseArrayDims() ([]int, error) {
	var dims []int
	for c.cur.Is("[") {
		c.advance()
		n := 0
		if c.cur.Type == lexer.TokNumber {
			n = lexer.EvalNumber(c.cur.Literal)
			c.advance()
		}
		if err := c.expect("]"); err != nil {
			return nil, err
		}
		dims = append(dims, n)
	}
	return dims, nil
}

func (c *Context) parseConstIntExpr() (int, error) {
	neg := false
	for c.cur.Is("-") || c.cur.Is("+") {
		if c.cur.Is("-") {
			neg = !neg
		}
		c.advance()
	}
	var v int
	switch {
	case c.cur.Type == lexer.TokNumber:
		v = lexer.EvalNumber(c.cur.Literal)
		c.advance()
	case c.cur.Type == lexer.TokChar:
		v = lexer.EvalChar(c.cur.Literal)
		c.advance()
	case c.cur.Type == lexer.TokIdent:
		ev, ok := c.Enums[c.cur.Literal]
		if !ok {
			return 0, c.errorf("expected a constant expression, got %q", c.cur.Literal)
		}
		v = ev
		c.advance()
	default:
		return 0, c.errorf("expected a constant expression, got %q", c.cur.Literal)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// parseGroupList parses one brace-delimited list of elements at the
// current dimension level, per spec.md §12's recovered array
// initializer feature: each group either is a leaf constant or, if
// subDims still has entries and the next token opens a brace, another
// nested group list, flattened and zero-padded to subDims' size.
func (c *Context) parseGroupList(subDims []int) ([][]int, error) {
	if err := c.expect("{"); err != nil {
		return nil, err
	}
	subSize := flatSize(subDims)
	var groups [][]int
	for !c.cur.Is("}") {
		var g []int
		if len(subDims) > 0 && c.cur.Is("{") {
			inner, err := c.parseGroupList(subDims[1:])
			if err != nil {
				return nil, err
			}
			for _, ig := range inner {
				g = append(g, ig...)
			}
		} else {
			v, err := c.parseConstIntExpr()
			if err != nil {
				return nil, err
			}
			g = []int{v}
		}
		if subSize > 0 && len(g) > subSize {
			return nil, c.errorf("array initializer has too many elements")
		}
		for len(g) < subSize {
			g = append(g, 0)
		}
		groups = append(groups, g)
		if c.cur.Is(",") {
			c.advance()
			continue
		}
		break
	}
	if err := c.expect("}"); err != nil {
		return nil, err
	}
	return groups, nil
}

// parseArrayInitializer parses a (possibly nested) brace list for an
// array of the given declared dims, inferring dims[0] when it was
// declared as "[]" (spec.md §12).
func (c *Context) parseArrayInitializer(dims []int) ([]int, []int, error) {
	groups, err := c.parseGroupList(dims[1:])
	if err != nil {
		return nil, nil, err
	}
	resolved := append([]int{}, dims...)
	if resolved[0] <= 0 {
		resolved[0] = len(groups)
	} else if len(groups) > resolved[0] {
		return nil, nil, c.errorf("array initializer has too many elements")
	}
	var vals []int
	for _, g := range groups {
		vals = append(vals, g...)
	}
	want := flatSize(resolved)
	for len(vals) < want {
		vals = append(vals, 0)
	}
	return vals, resolved, nil
}

func (c *Context) parseTopLevelTypedItem() error {
	baseType, err := c.parseTypePrefix()
	if err != nil {
		return err
	}
	stars := 0
	for c.cur.Is("*") {
		stars++
		c.advance()
	}
	name, err := c.expectIdent()
	if err != nil {
		return err
	}
	typeName := baseType + strings.Repeat("*", stars)

	if c.cur.Is("(") {
		return c.parseFunctionDecl(name, typeName)
	}
	return c.parseGlobalDeclaration(baseType, name, typeName)
}

func (c *Context) parseGlobalDeclaration(baseType, name, typeName string) error {
	for {
		dims, err := c.parseArrayDims()
		if err != nil {
			return err
		}
		var initVals []int
		if c.cur.Is("=") {
			c.advance()
			if len(dims) > 0 {
				v, resolved, err := c.parseArrayInitializer(dims)
				if err != nil {
					return err
				}
				initVals = v
				dims = resolved
			} else {
				v, err := c.parseConstIntExpr()
				if err != nil {
					return err
				}
				initVals = []int{v}
			}
		}
		size := 1
		if len(dims) > 0 {
			size = flatSize(dims)
		}
		off := c.Data.AllocGlobal(size, initVals)
		sym, err := c.Syms.InsertData(name, off, size, typeName)
		if err != nil {
			return err
		}
		sym.Dims = dims

		if c.cur.Is(",") {
			c.advance()
			stars := 0
			for c.cur.Is("*") {
				stars++
				c.advance()
			}
			n, err := c.expectIdent()
			if err != nil {
				return err
			}
			name = n
			typeName = baseType + strings.Repeat("*", stars)
			continue
		}
		break
	}
	return c.expect(";")
}

type param struct {
	name, typ string
}

func (c *Context) parseParamList() ([]param, error) {
	if err := c.expect("("); err != nil {
		return nil, err
	}
	var params []param
	for !c.cur.Is(")") {
		if c.cur.Type == lexer.TokIdent && c.cur.Literal == "void" && c.peek.Is(")") {
			c.advance()
			break
		}
		pBase, err := c.parseTypePrefix()
		if err != nil {
			return nil, err
		}
		stars := 0
		for c.cur.Is("*") {
			stars++
			c.advance()
		}
		pType := pBase + strings.Repeat("*", stars)
		pName := ""
		if c.cur.Type == lexer.TokIdent {
			pName = c.cur.Literal
			c.advance()
		}
		if c.cur.Is("[") {
			for c.cur.Is("[") {
				c.advance()
				if c.cur.Type == lexer.TokNumber {
					c.advance()
				}
				if err := c.expect("]"); err != nil {
					return nil, err
				}
			}
			pType += "*" // array parameters decay to a pointer
		}
		params = append(params, param{name: pName, typ: pType})
		if c.cur.Is(",") {
			c.advance()
			continue
		}
		break
	}
	if err := c.expect(")"); err != nil {
		return nil, err
	}
	return params, nil
}

func (c *Context) parseFunctionDecl(name, retType string) error {
	params, err := c.parseParamList()
	if err != nil {
		return err
	}
	argTypes := make([]string, len(params))
	for i, p := range params {
		argTypes[i] = p.typ
	}

	enterOff := c.Emit.EmitImm(opcode.ENTER, 0)
	if _, err := c.Syms.InsertCode(name, argTypes, retType, len(params), enterOff); err != nil {
		return err
	}
	c.Tracef(1, "%s:%d: function %s(%s) -> %s at code offset %d",
		c.Filename, c.cur.Pos.Line, name, strings.Join(argTypes, ","), retType, enterOff)

	c.Scope.PushFunction(name, len(params), retType, enterOff)
	for i, p := range params {
		if p.name == "" {
			continue
		}
		if _, err := c.Scope.AddArg(p.name, i, len(params), p.typ); err != nil {
			return err
		}
	}

	if err := c.parseBlock(); err != nil {
		return err
	}
	return c.Scope.Pop(c.Emit)
}

func (c *Context) parseBlock() error {
	if err := c.expect("{"); err != nil {
		return err
	}
	for !c.cur.Is("}") && !c.atEOF() {
		if err := c.parseStatement(); err != nil {
			return err
		}
	}
	return c.expect("}")
}

// parseBody parses a compound-statement body or, absent braces, a
// single statement — both are legal after if/for/while/do in this
// subset's grammar.
func (c *Context) parseBody() error {
	if c.cur.Is("{") {
		return c.parseBlock()
	}
	return c.parseStatement()
}

func (c *Context) parseStatement() error {
	if c.cur.Pos.Line != 0 {
		c.Emit.SetLine(c.cur.Pos.Line)
	}
	switch {
	case c.cur.Is("{"):
		return c.parseBlock()
	case c.cur.Is(";"):
		c.advance()
		return nil
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "if":
		return c.parseIf()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "for":
		return c.parseFor()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "while":
		return c.parseWhile()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "do":
		return c.parseDoWhile()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "return":
		return c.parseReturn()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "break":
		return c.parseBreak()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "continue":
		return c.parseContinue()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "switch":
		return c.parseSwitch()
	case c.cur.Type == lexer.TokIdent && c.cur.Literal == "enum":
		return c.parseEnumDecl()
	case c.cur.Type == lexer.TokIdent && isTypeLeading(c.cur.Literal):
		baseType, err := c.parseTypePrefix()
		if err != nil {
			return err
		}
		return c.parseLocalDeclaration(baseType)
	default:
		return c.parseExpressionStatement()
	}
}

func (c *Context) parseExpressionStatement() error {
	if _, err := c.compileExpr(precSentinel); err != nil {
		return err
	}
	return c.expect(";")
}

func (c *Context) parseLocalDeclaration(baseType string) error {
	for {
		stars := 0
		for c.cur.Is("*") {
			stars++
			c.advance()
		}
		name, err := c.expectIdent()
		if err != nil {
			return err
		}
		typeName := baseType + strings.Repeat("*", stars)

		dims, err := c.parseArrayDims()
		if err != nil {
			return err
		}

		if len(dims) > 0 {
			var vals []int
			if c.cur.Is("=") {
				c.advance()
				v, resolved, err := c.parseArrayInitializer(dims)
				if err != nil {
					return err
				}
				vals = v
				dims = resolved
			}
			size := flatSize(dims)
			off, err := c.Scope.AddLocal(c.Emit, name, size, typeName)
			if err != nil {
				return err
			}
			c.Scope.Current().Locals[name].Dims = dims
			for i, v := range vals {
				c.Emit.EmitImm(opcode.MOV, v)
				c.Emit.EmitImm(opcode.LPUT, off-i)
			}
		} else {
			off, err := c.Scope.AddLocal(c.Emit, name, 1, typeName)
			if err != nil {
				return err
			}
			if c.cur.Is("=") {
				c.advance()
				if _, err := c.compileExpr(precComma); err != nil {
					return err
				}
				c.Emit.EmitImm(opcode.LPUT, off)
			}
		}

		if c.cur.Is(",") {
			c.advance()
			continue
		}
		break
	}
	return c.expect(";")
}

func (c *Context) parseReturn() error {
	c.advance() // "return"
	f := c.Scope.Current()
	if f == nil {
		return c.errorf("return outside a function")
	}
	if !c.cur.Is(";") {
		if _, err := c.compileExpr(precSentinel); err != nil {
			return err
		}
	}
	if err := c.expect(";"); err != nil {
		return err
	}
	c.Emit.Emit(opcode.LEAVE)
	c.Emit.EmitImm(opcode.RET, f.FixedArgCount)
	c.Scope.MarkReturned()
	return nil
}

func (c *Context) parseBreak() error {
	c.advance()
	if err := c.expect(";"); err != nil {
		return err
	}
	if len(c.loops) == 0 {
		return c.errorf("break outside a loop or switch")
	}
	off := c.Emit.OpenFixup(opcode.JMP)
	c.addBreak(off)
	return nil
}

func (c *Context) parseContinue() error {
	c.advance()
	if err := c.expect(";"); err != nil {
		return err
	}
	if len(c.loops) == 0 {
		return c.errorf("continue outside a loop")
	}
	off := c.Emit.OpenFixup(opcode.JMP)
	c.addContinue(off)
	return nil
}

func (c *Context) parseIf() error {
	c.Tracef(2, "%s:%d: if", c.Filename, c.cur.Pos.Line)
	c.advance() // "if"
	if err := c.expect("("); err != nil {
		return err
	}
	if _, err := c.compileExpr(precSentinel); err != nil {
		return err
	}
	if err := c.expect(")"); err != nil {
		return err
	}
	jzOff := c.Emit.OpenFixup(opcode.JZ)

	// Returned is tracked per arm and joined at the end: an if with no
	// else can always fall through the untaken branch, and an if/else
	// only returns on every path when both arms do.
	f := c.Scope.Current()
	var preReturned, thenReturned bool
	if f != nil {
		preReturned = f.Returned
		f.Returned = false
	}
	if err := c.parseBody(); err != nil {
		return err
	}
	if f != nil {
		thenReturned = f.Returned
	}

	if c.cur.Type == lexer.TokIdent && c.cur.Literal == "else" {
		jmpOff := c.Emit.OpenFixup(opcode.JMP)
		if err := c.Emit.UpdateRelativeAddress(jzOff); err != nil {
			return err
		}
		c.advance() // "else"
		if f != nil {
			f.Returned = false
		}
		if err := c.parseBody(); err != nil {
			return err
		}
		if f != nil {
			f.Returned = preReturned || (thenReturned && f.Returned)
		}
		return c.Emit.UpdateRelativeAddress(jmpOff)
	}
	if f != nil {
		f.Returned = preReturned
	}
	return c.Emit.UpdateRelativeAddress(jzOff)
}

func (c *Context) parseWhile() error {
	c.advance() // "while"
	condStart := c.Emit.End()
	if err := c.expect("("); err != nil {
		return err
	}
	if _, err := c.compileExpr(precSentinel); err != nil {
		return err
	}
	if err := c.expect(")"); err != nil {
		return err
	}
	exitFixup := c.Emit.OpenFixup(opcode.JZ)
	c.pushLoop()
	// A while body may run zero times, so whatever it returns on
	// never binds the loop as a whole.
	f := c.Scope.Current()
	var preReturned bool
	if f != nil {
		preReturned = f.Returned
	}
	if err := c.parseBody(); err != nil {
		return err
	}
	if f != nil {
		f.Returned = preReturned
	}
	if err := c.resolveContinues(); err != nil {
		return err
	}
	c.Emit.EmitRelative(opcode.JMP, condStart)
	if err := c.popLoop(); err != nil {
		return err
	}
	return c.Emit.UpdateRelativeAddress(exitFixup)
}

func (c *Context) parseDoWhile() error {
	c.advance() // "do"
	bodyStart := c.Emit.End()
	c.pushLoop()
	// break can still exit the body before any return runs, so a
	// do-while is no more return-guaranteeing than a while.
	f := c.Scope.Current()
	var preReturned bool
	if f != nil {
		preReturned = f.Returned
	}
	if err := c.parseBody(); err != nil {
		return err
	}
	if f != nil {
		f.Returned = preReturned
	}
	if err := c.resolveContinues(); err != nil {
		return err
	}
	if c.cur.Type != lexer.TokIdent || c.cur.Literal != "while" {
		return c.errorf("expected %q after do-block body", "while")
	}
	c.advance()
	if err := c.expect("("); err != nil {
		return err
	}
	if _, err := c.compileExpr(precSentinel); err != nil {
		return err
	}
	if err := c.expect(")"); err != nil {
		return err
	}
	if err := c.expect(";"); err != nil {
		return err
	}
	c.Emit.EmitRelative(opcode.JNZ, bodyStart)
	return c.popLoop()
}

func (c *Context) parseForInit() error {
	if c.cur.Type == lexer.TokIdent && isTypeLeading(c.cur.Literal) {
		baseType, err := c.parseTypePrefix()
		if err != nil {
			return err
		}
		return c.parseLocalDeclaration(baseType) // consumes trailing ";"
	}
	return c.parseExpressionStatement() // consumes trailing ";"
}

func (c *Context) parseFor() error {
	c.Tracef(2, "%s:%d: for", c.Filename, c.cur.Pos.Line)
	c.advance() // "for"
	if err := c.expect("("); err != nil {
		return err
	}

	if c.cur.Is(";") {
		c.advance()
	} else if err := c.parseForInit(); err != nil {
		return err
	}

	condStart := c.Emit.End()
	hasCond := !c.cur.Is(";")
	if hasCond {
		if _, err := c.compileExpr(precSentinel); err != nil {
			return err
		}
	}
	if err := c.expect(";"); err != nil {
		return err
	}
	var exitFixup int
	if hasCond {
		exitFixup = c.Emit.OpenFixup(opcode.JZ)
	}

	toBodyFixup := c.Emit.OpenFixup(opcode.JMP)
	stepStart := c.Emit.End()
	if !c.cur.Is(")") {
		if _, err := c.compileExpr(precSentinel); err != nil {
			return err
		}
	}
	if err := c.expect(")"); err != nil {
		return err
	}
	c.Emit.EmitRelative(opcode.JMP, condStart)

	if err := c.Emit.UpdateRelativeAddress(toBodyFixup); err != nil {
		return err
	}
	c.pushLoop()
	// A for body may run zero times (or never reach a return before a
	// break), so it never binds the loop as a whole.
	f := c.Scope.Current()
	var preReturned bool
	if f != nil {
		preReturned = f.Returned
	}
	if err := c.parseBody(); err != nil {
		return err
	}
	if f != nil {
		f.Returned = preReturned
	}
	if err := c.resolveContinuesTo(stepStart); err != nil {
		return err
	}
	c.Emit.EmitRelative(opcode.JMP, stepStart)
	if err := c.popLoop(); err != nil {
		return err
	}

	if hasCond {
		return c.Emit.UpdateRelativeAddress(exitFixup)
	}
	return nil
}

// switchSection is one case/default label found by scanSwitchSections,
// with its body's token-index extent in original source order.
type switchSection struct {
	isDefault bool
	value     int
	bodyIdx   int
	endIdx    int
}

// scanSwitchSections walks the switch body once, without emitting any
// code, to record each case/default label's value and the token-index
// span of its body. Actual codegen then revisits each body through
// Context.seek, in an order with default last (SPEC_FULL.md §12).
func (c *Context) scanSwitchSections() ([]switchSection, int, error) {
	var sections []switchSection
	depth := 0
	for {
		if c.atEOF() {
			return nil, 0, c.errorf("unterminated switch body")
		}
		if depth == 0 && c.cur.Is("}") {
			break
		}
		if depth == 0 && c.cur.Type == lexer.TokIdent && c.cur.Literal == "case" {
			if n := len(sections); n > 0 {
				sections[n-1].endIdx = c.curIndex()
			}
			c.advance()
			v, err := c.parseConstIntExpr()
			if err != nil {
				return nil, 0, err
			}
			if err := c.expect(":"); err != nil {
				return nil, 0, err
			}
			sections = append(sections, switchSection{value: v, bodyIdx: c.curIndex()})
			continue
		}
		if depth == 0 && c.cur.Type == lexer.TokIdent && c.cur.Literal == "default" {
			if n := len(sections); n > 0 {
				sections[n-1].endIdx = c.curIndex()
			}
			c.advance()
			if err := c.expect(":"); err != nil {
				return nil, 0, err
			}
			sections = append(sections, switchSection{isDefault: true, bodyIdx: c.curIndex()})
			continue
		}
		if c.cur.Is("{") {
			depth++
		}
		if c.cur.Is("}") {
			depth--
		}
		c.advance()
	}
	closeIdx := c.curIndex()
	if n := len(sections); n > 0 {
		sections[n-1].endIdx = closeIdx
	}
	return sections, closeIdx, nil
}

func (c *Context) parseUntilIndex(target int) error {
	for c.curIndex() < target && !c.atEOF() {
		if err := c.parseStatement(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) parseSwitch() error {
	c.advance() // "switch"
	if err := c.expect("("); err != nil {
		return err
	}
	if _, err := c.compileExpr(precSentinel); err != nil {
		return err
	}
	if err := c.expect(")"); err != nil {
		return err
	}

	if c.Scope.Current() == nil {
		return c.errorf("switch outside a function")
	}
	tempOff, err := c.Scope.AddLocal(c.Emit, fmt.Sprintf("__switch$%d", c.Emit.End()), 1, "int")
	if err != nil {
		return err
	}
	c.Emit.EmitImm(opcode.LPUT, tempOff)

	if err := c.expect("{"); err != nil {
		return err
	}

	sections, closeIdx, err := c.scanSwitchSections()
	if err != nil {
		return err
	}

	ordered := make([]switchSection, 0, len(sections))
	var def *switchSection
	for i := range sections {
		if sections[i].isDefault {
			d := sections[i]
			def = &d
			continue
		}
		ordered = append(ordered, sections[i])
	}
	if def != nil {
		ordered = append(ordered, *def)
	}

	// No case (not even default) is guaranteed to run, and a case body
	// can fall through into the next one without returning, so each
	// section's returned-ness is tracked in isolation and none of it
	// binds the switch as a whole.
	f := c.Scope.Current()
	var preReturned bool
	if f != nil {
		preReturned = f.Returned
	}

	c.pushLoop()
	havePendingJZ := false
	var pendingJZ int
	haveFall := false
	var fallJMP int
	for i, sec := range ordered {
		if !sec.isDefault {
			if havePendingJZ {
				if err := c.Emit.UpdateRelativeAddress(pendingJZ); err != nil {
					return err
				}
			}
			c.Emit.EmitImm(opcode.LGET, tempOff)
			c.Emit.Emit(opcode.PUSH)
			c.Emit.EmitImm(opcode.MOV, sec.value)
			c.Emit.Emit(opcode.EQ)
			pendingJZ = c.Emit.OpenFixup(opcode.JZ)
			havePendingJZ = true
		} else if havePendingJZ {
			if err := c.Emit.UpdateRelativeAddress(pendingJZ); err != nil {
				return err
			}
			havePendingJZ = false
		}
		if haveFall {
			if err := c.Emit.UpdateRelativeAddress(fallJMP); err != nil {
				return err
			}
			haveFall = false
		}

		if f != nil {
			f.Returned = false
		}
		c.seek(sec.bodyIdx)
		if err := c.parseUntilIndex(sec.endIdx); err != nil {
			return err
		}
		if i+1 < len(ordered) {
			fallJMP = c.Emit.OpenFixup(opcode.JMP)
			haveFall = true
		}
	}
	if havePendingJZ {
		if err := c.Emit.UpdateRelativeAddress(pendingJZ); err != nil {
			return err
		}
	}
	if f != nil {
		f.Returned = preReturned
	}

	c.seek(closeIdx)
	if err := c.expect("}"); err != nil {
		return err
	}
	return c.popSwitch()
}

func (c *Context) parseEnumDecl() error {
	c.Tracef(1, "%s:%d: enum", c.Filename, c.cur.Pos.Line)
	c.advance() // "enum"
	if c.cur.Type == lexer.TokIdent && c.cur.Literal == "class" {
		c.advance() // tolerate "enum class"
	}
	if c.cur.Type == lexer.TokIdent {
		c.advance() // optional tag name, discarded
	}
	if err := c.expect("{"); err != nil {
		return err
	}
	next := 0
	for !c.cur.Is("}") {
		name, err := c.expectIdent()
		if err != nil {
			return err
		}
		if _, exists := c.Enums[name]; exists {
			return c.errorf("redefinition of enum constant %q", name)
		}
		if c.symbolExists(name) {
			return c.errorf("enum constant %q shadows an existing symbol", name)
		}
		val := next
		if c.cur.Is("=") {
			c.advance()
			v, err := c.parseConstIntExpr()
			if err != nil {
				return err
			}
			val = v
		}
		c.Enums[name] = val
		next = val + 1
		if c.cur.Is(",") {
			c.advance()
			continue
		}
		break
	}
	if err := c.expect("}"); err != nil {
		return err
	}
	return c.expect(";")
}
