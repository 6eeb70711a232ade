package loader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icpp-lang/icpp/internal/compiler"
)

func compile(t *testing.T, src string) *compiler.Program {
	t.Helper()
	lines := []string{src}
	prog, err := compiler.Compile(lines, "test.cpp", 0, nil)
	require.NoError(t, err)
	return prog
}

func TestLoadAndRunReturnsMainResult(t *testing.T) {
	prog := compile(t, `int main() { return 2 + 3 * 4; }`)
	res, err := Load(prog, "test.cpp", nil, 0)
	require.NoError(t, err)

	require.NoError(t, res.Machine.Run())
	assert.Equal(t, 14, res.Machine.ExitCode)
}

func TestLoadSeedsArgcArgv(t *testing.T) {
	// argc is the first fixed argument of main (offset n-0+1 = 3 for a
	// two-argument main), read back through LGET.
	prog := compile(t, `int main(int argc, int argv) { return argc; }`)
	res, err := Load(prog, "prog.cpp", []string{"a", "b"}, 0)
	require.NoError(t, err)

	require.NoError(t, res.Machine.Run())
	assert.Equal(t, 3, res.Machine.ExitCode) // argv[0]=prog.cpp, plus "a","b"
}

func TestLoadWritesOutputThroughBuiltins(t *testing.T) {
	prog := compile(t, `int main() { printf("%d\n", 5); return 0; }`)
	res, err := Load(prog, "test.cpp", nil, 0)
	require.NoError(t, err)

	var out bytes.Buffer
	res.Machine.Output = &out
	require.NoError(t, res.Machine.Run())
	assert.Equal(t, "5\n", out.String())
}

func TestLoadRejectsProgramLargerThanMemory(t *testing.T) {
	prog := compile(t, `int main() { return 0; }`)
	_, err := Load(prog, "test.cpp", nil, 4)
	require.Error(t, err)
}
