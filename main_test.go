package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runFixture executes testdata/name.cpp through the same run() entry
// point the compiled binary uses, returning its exit code and captured
// stdout/stderr (spec.md §8's end-to-end scenarios).
func runFixture(t *testing.T, name string, extraArgs ...string) (exit int, stdout, stderr string) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	args := append([]string{"testdata/" + name}, extraArgs...)
	exit = run(args, &outBuf, &errBuf)
	return exit, outBuf.String(), errBuf.String()
}

func TestHelloWorld(t *testing.T) {
	exit, stdout, stderr := runFixture(t, "hello.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 0, exit)
	assert.Equal(t, "Hello\n", stdout)
}

func TestArithmetic(t *testing.T) {
	exit, _, stderr := runFixture(t, "arithmetic.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 14, exit)
}

func TestRecursionFibonacci(t *testing.T) {
	exit, _, stderr := runFixture(t, "fibonacci.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 55, exit)
}

func TestRecursionFibonacciBaseNVariant(t *testing.T) {
	exit, _, stderr := runFixture(t, "fibonacci_basen.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 89, exit)
}

func TestForLoopAccumulates(t *testing.T) {
	exit, _, stderr := runFixture(t, "forloop.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 55, exit)
}

func TestPrintfVariadic(t *testing.T) {
	exit, stdout, stderr := runFixture(t, "printf_variadic.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 0, exit)
	assert.Equal(t, "7 ok\n", stdout)
}

func TestArrayIndexingRead(t *testing.T) {
	exit, _, stderr := runFixture(t, "array_indexing.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 60, exit)
}

func TestArrayIndexingAssign(t *testing.T) {
	exit, _, stderr := runFixture(t, "array_assign.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 5, exit)
}

// TestNonExhaustiveIfStillEmitsEpilogue exercises the fall-off-the-end
// path of an if with no else: classify(0) must return to its caller
// through the auto-emitted epilogue rather than running into whatever
// follows it in the code segment, so execution reaches sentinel()'s
// own return intact.
func TestNonExhaustiveIfStillEmitsEpilogue(t *testing.T) {
	exit, _, stderr := runFixture(t, "nonexhaustive_return.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 77, exit)
}

func TestSwitchBreakDefault(t *testing.T) {
	exit, _, stderr := runFixture(t, "switch_break.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 129, exit)
}

func TestContinueSkipsEvenIterations(t *testing.T) {
	exit, _, stderr := runFixture(t, "continue_loop.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 25, exit)
}

func TestGlobalAndMultiDimArrayInitializers(t *testing.T) {
	exit, _, stderr := runFixture(t, "global_multidim.cpp")
	require.Empty(t, stderr)
	assert.Equal(t, 121, exit)
}

func TestDisassembleModeListsSourceAndInstructions(t *testing.T) {
	var outBuf, errBuf bytes.Buffer
	exit := run([]string{"-s", "testdata/arithmetic.cpp"}, &outBuf, &errBuf)
	require.Empty(t, errBuf.String())
	assert.Equal(t, 0, exit)
	out := outBuf.String()
	assert.Contains(t, out, "return 2 + 3 * 4;")
	assert.Contains(t, out, "MOV")
	assert.Contains(t, out, "data segment:")
}

func TestVerboseFlagEmitsDiagnostics(t *testing.T) {
	var outBuf, errBuf bytes.Buffer
	exit := run([]string{"-v", "testdata/arithmetic.cpp"}, &outBuf, &errBuf)
	assert.Equal(t, 14, exit)
	assert.True(t, strings.Contains(errBuf.String(), "function main"))
}

func TestMissingSourceFileFails(t *testing.T) {
	var outBuf, errBuf bytes.Buffer
	exit := run([]string{"testdata/does-not-exist.cpp"}, &outBuf, &errBuf)
	assert.Equal(t, 1, exit)
	assert.NotEmpty(t, errBuf.String())
}

func TestNoArgsPrintsUsageAndFails(t *testing.T) {
	var outBuf, errBuf bytes.Buffer
	exit := run(nil, &outBuf, &errBuf)
	assert.Equal(t, 1, exit)
	assert.Contains(t, errBuf.String(), "usage:")
}
