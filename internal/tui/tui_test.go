package tui

import (
	"strconv"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icpp-lang/icpp/internal/compiler"
	"github.com/icpp-lang/icpp/internal/loader"
)

func newTUI(t *testing.T, src string) *TUI {
	t.Helper()
	source := []string{src}
	prog, err := compiler.Compile(source, "test.cpp", 0, nil)
	require.NoError(t, err)
	res, err := loader.Load(prog, "test.cpp", nil, 0)
	require.NoError(t, err)
	return New(prog, res, source, "test.cpp")
}

func TestStepAdvancesIPWithoutHalting(t *testing.T) {
	tui := newTUI(t, `int main() { return 2 + 3; }`)
	startIP := tui.Res.Machine.IP
	tui.step()
	assert.NotEqual(t, startIP, tui.Res.Machine.IP)
}

func TestRunToBreakpointOrHaltStopsAtHalt(t *testing.T) {
	tui := newTUI(t, `int main() { return 7; }`)
	tui.runToBreakpointOrHalt()
	assert.True(t, tui.Res.Machine.Halted)
	assert.Equal(t, 7, tui.Res.Machine.ExitCode)
}

func TestRunToBreakpointOrHaltStopsAtSetBreakpoint(t *testing.T) {
	tui := newTUI(t, `int main() { return 7; }`)
	tui.Breakpoints[tui.Res.EntryIP] = true
	tui.runToBreakpointOrHalt()
	assert.False(t, tui.Res.Machine.Halted)
	assert.Equal(t, tui.Res.EntryIP, tui.Res.Machine.IP)
}

func TestHandleCommandBreakThenContinueStopsAtBreakpoint(t *testing.T) {
	tui := newTUI(t, `int main() { return 7; }`)
	entryAddr := tui.Res.EntryIP
	tui.CommandInput.SetText("break " + strconv.Itoa(entryAddr))
	tui.handleCommand(tcell.KeyEnter)
	tui.CommandInput.SetText("continue")
	tui.handleCommand(tcell.KeyEnter)
	assert.False(t, tui.Res.Machine.Halted)
	assert.Equal(t, entryAddr, tui.Res.Machine.IP)
}

func TestOutputCapturesProgramWrites(t *testing.T) {
	tui := newTUI(t, `int main() { printf("hi"); return 0; }`)
	tui.runToBreakpointOrHalt()
	assert.Contains(t, tui.output.String(), "hi")
}
