package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(toks []Token) []TokenType {
	out := make([]TokenType, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.Type)
	}
	return out
}

func TestLexerBasicTokens(t *testing.T) {
	src := []string{`int main(){ return 2 + 3 * 4; }`}
	l := New(src, "test.cpp")
	toks := l.TokenizeAll()
	require.NotEmpty(t, toks)
	assert.Equal(t, TokEOF, toks[len(toks)-1].Type)

	var lits []string
	for _, tok := range toks {
		if tok.Type != TokEOF {
			lits = append(lits, tok.Literal)
		}
	}
	assert.Equal(t, []string{"int", "main", "(", ")", "{", "return", "2", "+", "3", "*", "4", ";", "}"}, lits)
}

func TestLexerSkipsHashLines(t *testing.T) {
	src := []string{`#include <iostream>`, `using namespace std;`, `int x;`}
	l := New(src, "test.cpp")
	toks := l.TokenizeAll()
	var lits []string
	for _, tok := range toks {
		if tok.Type != TokEOF {
			lits = append(lits, tok.Literal)
		}
	}
	assert.Equal(t, []string{"using", "namespace", "std", ";", "int", "x", ";"}, lits)
}

func TestLexerSkipsComments(t *testing.T) {
	src := []string{
		`int a; // trailing comment`,
		`/* block`,
		`   spans lines */ int b;`,
	}
	l := New(src, "test.cpp")
	toks := l.TokenizeAll()
	var lits []string
	for _, tok := range toks {
		if tok.Type != TokEOF {
			lits = append(lits, tok.Literal)
		}
	}
	assert.Equal(t, []string{"int", "a", ";", "int", "b", ";"}, lits)
}

func TestLexerStringAndChar(t *testing.T) {
	src := []string{`"Hello\n" 'a' '\''`}
	l := New(src, "test.cpp")
	toks := l.TokenizeAll()
	require.Len(t, toks, 4) // string, char, char, EOF
	assert.Equal(t, TokString, toks[0].Type)
	assert.Equal(t, "Hello\n", EvalString(toks[0].Literal))
	assert.Equal(t, TokChar, toks[1].Type)
	assert.Equal(t, 'a', rune(EvalChar(toks[1].Literal)))
	assert.Equal(t, TokChar, toks[2].Type)
	assert.Equal(t, '\'', rune(EvalChar(toks[2].Literal)))
}

func TestLexerMultiCharOperatorsLongestMatch(t *testing.T) {
	src := []string{`a <<= b >> c <= d`}
	l := New(src, "test.cpp")
	toks := l.TokenizeAll()
	var lits []string
	for _, tok := range toks {
		if tok.Type != TokEOF {
			lits = append(lits, tok.Literal)
		}
	}
	assert.Equal(t, []string{"a", "<<=", "b", ">>", "c", "<=", "d"}, lits)
}

func TestEvalNumberTable(t *testing.T) {
	cases := map[string]int{
		"0":     0,
		"0x1F":  31,
		"0777":  511,
		"-42":   -42,
		"3.14":  3,
		"0X1f":  31,
		"10":    10,
	}
	for lit, want := range cases {
		assert.Equal(t, want, EvalNumber(lit), "EvalNumber(%q)", lit)
	}
}

func TestEvalNumberNegationSymmetry(t *testing.T) {
	for _, lit := range []string{"0", "7", "0x1F", "0777", "123"} {
		assert.Equal(t, -EvalNumber(lit), EvalNumber("-"+lit))
	}
}

func TestLexerRoundTrip(t *testing.T) {
	src := []string{`x = a+b*(c-1);`}
	l := New(src, "test.cpp")
	toks := l.TokenizeAll()

	var rebuilt []string
	for _, tok := range toks {
		if tok.Type != TokEOF {
			rebuilt = append(rebuilt, tok.Literal)
		}
	}
	joined := ""
	for i, lit := range rebuilt {
		if i > 0 {
			joined += " "
		}
		joined += lit
	}

	l2 := New([]string{joined}, "test.cpp")
	toks2 := l2.TokenizeAll()
	assert.Equal(t, tokenTypes(toks), tokenTypes(toks2))
}
