// Package tui implements the optional interactive viewer named in
// spec.md's ambient tooling: a single-screen panel layout driving the
// virtual machine one instruction at a time, built on the same
// tcell/tview application-owns-the-thread model the teacher's debugger
// uses, adapted here from an ARM register/memory/breakpoint view to
// this machine's source/disassembly/stack/output view.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/icpp-lang/icpp/internal/compiler"
	"github.com/icpp-lang/icpp/internal/disasm"
	"github.com/icpp-lang/icpp/internal/loader"
)

// TUI is the interactive session over one loaded program.
type TUI struct {
	App  *tview.Application
	Prog *compiler.Program
	Res  *loader.Result

	Source     []string
	SourceFile string

	Breakpoints map[int]bool

	MainLayout      *tview.Flex
	SourceView      *tview.TextView
	DisassemblyView *tview.TextView
	RegisterView    *tview.TextView
	StackView       *tview.TextView
	OutputView      *tview.TextView
	CommandInput    *tview.InputField

	output strings.Builder
}

// New builds a TUI over an already-compiled and loaded program.
func New(prog *compiler.Program, res *loader.Result, source []string, sourceFile string) *TUI {
	t := &TUI{
		App:         tview.NewApplication(),
		Prog:        prog,
		Res:         res,
		Source:      source,
		SourceFile:  sourceFile,
		Breakpoints: make(map[int]bool),
	}
	res.Machine.Output = t
	res.Machine.Errout = t

	t.initializeViews()
	t.buildLayout()
	t.setupKeyBindings()
	return t
}

// Write satisfies io.Writer, letting the running program's own output
// (cout/printf) land in the Output panel alongside debugger messages.
func (t *TUI) Write(p []byte) (int, error) {
	t.output.Write(p)
	return len(p), nil
}

func (t *TUI) initializeViews() {
	t.SourceView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.SourceView.SetBorder(true).SetTitle(" Source ")

	t.DisassemblyView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	t.DisassemblyView.SetBorder(true).SetTitle(" Disassembly ")

	t.RegisterView = tview.NewTextView().SetDynamicColors(true)
	t.RegisterView.SetBorder(true).SetTitle(" Registers ")

	t.StackView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	t.StackView.SetBorder(true).SetTitle(" Stack ")

	t.OutputView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(true)
	t.OutputView.SetBorder(true).SetTitle(" Output ")

	t.CommandInput = tview.NewInputField().SetLabel("> ").SetFieldWidth(0)
	t.CommandInput.SetBorder(true).SetTitle(" Command (step/continue/break N/quit) ")
	t.CommandInput.SetDoneFunc(t.handleCommand)
}

func (t *TUI) buildLayout() {
	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.SourceView, 0, 3, false).
		AddItem(t.DisassemblyView, 0, 2, false)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.RegisterView, 7, 0, false).
		AddItem(t.StackView, 0, 1, false)

	content := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(left, 0, 2, false).
		AddItem(right, 0, 1, false)

	t.MainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(content, 0, 4, false).
		AddItem(t.OutputView, 8, 0, false).
		AddItem(t.CommandInput, 3, 0, true)
}

func (t *TUI) setupKeyBindings() {
	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			t.step()
			return nil
		case tcell.KeyF5:
			t.runToBreakpointOrHalt()
			return nil
		case tcell.KeyCtrlC:
			t.App.Stop()
			return nil
		}
		return event
	})
}

func (t *TUI) handleCommand(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	cmd := strings.TrimSpace(t.CommandInput.GetText())
	t.CommandInput.SetText("")
	if cmd == "" {
		return
	}
	fields := strings.Fields(cmd)
	switch fields[0] {
	case "step", "s":
		t.step()
	case "continue", "c":
		t.runToBreakpointOrHalt()
	case "break", "b":
		if len(fields) == 2 {
			if addr, err := strconv.Atoi(fields[1]); err == nil {
				t.Breakpoints[addr] = true
			}
		}
	case "quit", "q":
		t.App.Stop()
	default:
		fmt.Fprintf(t, "unknown command %q\n", cmd)
	}
	t.refresh()
}

// step executes exactly one VM instruction, unless the machine has
// already halted.
func (t *TUI) step() {
	m := t.Res.Machine
	if m.Halted {
		return
	}
	if err := m.Step(); err != nil {
		fmt.Fprintf(t, "error: %v\n", err)
	}
	t.refresh()
}

// runToBreakpointOrHalt single-steps until halted or ip is on a
// user-set breakpoint, rather than calling Machine.Run directly, so
// the panels can be updated at the stopping point. The breakpoint
// check comes before each step, so a breakpoint on the current
// instruction stops it before anything runs; step moves past it.
func (t *TUI) runToBreakpointOrHalt() {
	m := t.Res.Machine
	for !m.Halted {
		if t.Breakpoints[m.IP] {
			break
		}
		if err := m.Step(); err != nil {
			fmt.Fprintf(t, "error: %v\n", err)
			break
		}
	}
	t.refresh()
}

func (t *TUI) refresh() {
	t.updateSource()
	t.updateDisassembly()
	t.updateRegisters()
	t.updateStack()
	t.OutputView.SetText(t.output.String())
	t.OutputView.ScrollToEnd()
	t.App.Draw()
}

func (t *TUI) updateSource() {
	var lines []string
	for i, src := range t.Source {
		lines = append(lines, fmt.Sprintf("%5d | %s", i+1, src))
	}
	t.SourceView.SetText(strings.Join(lines, "\n"))
}

func (t *TUI) updateDisassembly() {
	var buf strings.Builder
	disasm.Print(&buf, t.Source, t.Prog)
	t.DisassemblyView.SetText(buf.String())
}

func (t *TUI) updateRegisters() {
	m := t.Res.Machine
	status := "running"
	if m.Halted {
		status = fmt.Sprintf("halted, exit=%d", m.ExitCode)
	}
	text := fmt.Sprintf("ip: %-8d ax: %d\nsp: %-8d bp: %d\ncycles: %-6d %s",
		m.IP, m.AX, m.SP, m.BP, m.Cycles, status)
	t.RegisterView.SetText(text)
}

func (t *TUI) updateStack() {
	m := t.Res.Machine
	var lines []string
	for addr := m.SP; addr < m.SP+16 && addr < len(m.Mem); addr++ {
		marker := "  "
		if addr == m.SP {
			marker = "->"
		}
		if addr == m.BP {
			marker = "bp"
		}
		lines = append(lines, fmt.Sprintf("%s %-8d %d", marker, addr, m.Mem[addr]))
	}
	t.StackView.SetText(strings.Join(lines, "\n"))
}

// Run shows the interface and blocks until the user quits. A
// breakpoint on the entry instruction stops execution immediately so
// the user sees the program before it has executed anything.
func (t *TUI) Run() error {
	t.Breakpoints[t.Res.EntryIP] = true
	t.refresh()
	t.CommandInput.SetText("")
	return t.App.SetRoot(t.MainLayout, true).SetFocus(t.CommandInput).Run()
}
