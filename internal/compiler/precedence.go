package compiler

import "github.com/icpp-lang/icpp/internal/opcode"

// precSentinel is higher (looser) than every real binary operator, so
// passing it as a stop-token precedence means "consume the loosest
// binary operators too" (used for statement-level and parenthesized
// contexts, which correspond to a ";" stop token in spec.md §4.5).
const precSentinel = 1000

// precComma is the precedence used when parsing a call argument or a
// for-loop clause: looser than assignment (handled separately, by
// leading-token dispatch, not through this table) but it must stop
// before an actual "," token.
const precComma = 100

// binOpPrec maps each binary operator spec.md §4.5 tabulates to its
// precedence (lower binds tighter). Operators with no corresponding VM
// opcode (::, .*, ->*, ^, <=>, the assignment family, and the comma
// operator itself) are intentionally absent: the leading-token
// dispatch in expr.go handles assignment, and the rest are outside
// this restricted subset's opcode set (spec.md §4.8).
var binOpPrec = map[string]int{
	"*": 0, "/": 0, "%": 0,
	"+": 1, "-": 1,
	"<<": 2, ">>": 2,
	"<": 3, "<=": 3, ">": 3, ">=": 3,
	"==": 4, "!=": 4,
	"&": 5,
	"|": 6,
	"&&": 7,
	"||": 8,
}

// binOpcode maps an operator to the opcode emitted when both operands
// are int-typed (spec.md §4.5).
var binOpcode = map[string]opcode.Op{
	"+": opcode.ADD, "-": opcode.SUB, "*": opcode.MUL, "/": opcode.DIV, "%": opcode.MOD,
	"<<": opcode.SHL, ">>": opcode.SHR,
	"&": opcode.AND, "|": opcode.OR,
	"==": opcode.EQ, "!=": opcode.NE,
	"<": opcode.LT, "<=": opcode.LE, ">": opcode.GT, ">=": opcode.GE,
	"&&": opcode.LAND, "||": opcode.LOR,
}

// compoundAssignOp maps a compound-assignment operator to the binary
// opcode applied before the final store (spec.md §4.5).
var compoundAssignOp = map[string]opcode.Op{
	"+=": opcode.ADD, "-=": opcode.SUB, "*=": opcode.MUL, "/=": opcode.DIV, "%=": opcode.MOD,
	"<<=": opcode.SHL, ">>=": opcode.SHR, "&=": opcode.AND, "|=": opcode.OR,
}
