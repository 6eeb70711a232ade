// Package disasm implements the disassembler described in spec.md
// §4.9: for each source line, it prints the line text followed by
// every instruction emitted while parsing tokens on that line, then a
// listing of the data segment.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/icpp-lang/icpp/internal/compiler"
	"github.com/icpp-lang/icpp/internal/opcode"
)

// Print writes the interleaved source/instruction listing for prog,
// whose source lines are source (1-based, matching
// internal/lexer.Position.Line), followed by a data-segment listing.
func Print(w io.Writer, source []string, prog *compiler.Program) {
	ranges := prog.Emit.LineRanges()
	code := prog.Emit.Code

	for lineNo := 1; lineNo <= len(source); lineNo++ {
		fmt.Fprintf(w, "%5d | %s\n", lineNo, source[lineNo-1])
		r, ok := ranges[lineNo]
		if !ok {
			continue
		}
		for off := r.Start; off < r.End; {
			instrOff := off
			op := opcode.Op(code[off])
			off++
			hasImm := opcode.HasImmediate(op)
			var imm int
			if hasImm {
				imm = code[off]
				off++
			}
			fmt.Fprint(w, instructionText(prog, instrOff, op, imm, hasImm))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "data segment:")
	PrintDataSegment(w, prog)
}

// instructionText renders one decoded instruction, resolving relative
// displacements to their absolute target and appending any attached
// comment (spec.md §4.9, §4.4's per-instruction comment map).
func instructionText(prog *compiler.Program, instrOff int, op opcode.Op, imm int, hasImm bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "      %6d  %s", instrOff, op)
	if hasImm {
		fmt.Fprintf(&sb, " %d", imm)
		if opcode.Relative(op) {
			target := instrOff + 2 + imm
			fmt.Fprintf(&sb, "\t; -> %d", target)
		}
	}
	if c, ok := prog.Emit.Comment(instrOff); ok {
		fmt.Fprintf(&sb, "\t; %s", c)
	}
	sb.WriteByte('\n')
	return sb.String()
}

// PrintDataSegment renders every data-segment allocation: string-typed
// entries with escaped content, word-typed entries as hex (spec.md
// §4.9).
func PrintDataSegment(w io.Writer, prog *compiler.Program) {
	for _, e := range prog.Data.Entries() {
		if e.Kind == "string" {
			fmt.Fprintf(w, "  %6d  .string %q\n", e.Offset, prog.Data.ReadString(e.Offset))
			continue
		}
		words := make([]string, e.Size)
		for i := 0; i < e.Size; i++ {
			words[i] = fmt.Sprintf("0x%x", prog.Data.Words[e.Offset+i])
		}
		fmt.Fprintf(w, "  %6d  .word %s\n", e.Offset, strings.Join(words, " "))
	}
}
