package disasm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icpp-lang/icpp/internal/compiler"
)

func TestPrintInterleavesSourceAndInstructions(t *testing.T) {
	source := []string{`int main() { return 2 + 3 * 4; }`}
	prog, err := compiler.Compile(source, "test.cpp", 0, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	Print(&buf, source, prog)
	out := buf.String()

	assert.Contains(t, out, "return 2 + 3 * 4")
	assert.Contains(t, out, "MOV")
	assert.Contains(t, out, "ADD")
	assert.Contains(t, out, "data segment:")
}

func TestPrintResolvesRelativeBranchTargets(t *testing.T) {
	source := []string{`int main() { if (1) { return 1; } return 0; }`}
	prog, err := compiler.Compile(source, "test.cpp", 0, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	Print(&buf, source, prog)
	assert.Contains(t, buf.String(), "JZ")
	assert.Contains(t, buf.String(), "-> ")
}

func TestPrintDataSegmentRendersStringsAndWords(t *testing.T) {
	source := []string{
		`int g = 7;`,
		`int main() { return g; }`,
	}
	prog, err := compiler.Compile(source, "test.cpp", 0, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintDataSegment(&buf, prog)
	assert.Contains(t, buf.String(), ".word")
}
