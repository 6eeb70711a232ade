// Package builtin implements the small built-in library named in
// spec.md §6: the cout/cerr stream handles, endl, the operator<<
// overload family, and printf. Each is registered into the symbol
// store and code segment as an external-code symbol (spec.md §4.2)
// whose address is later wired to a native Go handler on the Machine
// (spec.md §4.8's trampoline mechanism), the same shape as the
// teacher's vm/syscall.go dispatch-by-address table.
package builtin

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/icpp-lang/icpp/internal/dataseg"
	"github.com/icpp-lang/icpp/internal/emitter"
	"github.com/icpp-lang/icpp/internal/opcode"
	"github.com/icpp-lang/icpp/internal/symtab"
	"github.com/icpp-lang/icpp/internal/vm"
)

// EndlType is the pseudo type assigned to the bare `endl` identifier,
// so that `cout << endl` resolves specifically to
// operator<<(ostream,(*)(endl_t)) rather than the generic
// zero-argument function-pointer type a bare external symbol would
// otherwise carry.
const EndlType = "(*)(endl_t)"

// Table records the addresses of the pre-registered external symbols
// so a Machine can be wired with their native handlers once the
// program has been loaded into memory.
type Table struct {
	CoutAddr int
	CerrAddr int
	EndlAddr int

	handlers map[int]vm.Builtin
}

// Declare inserts cout, cerr, endl, the operator<< family, and printf
// into syms (spec.md §6's table), allocating cout/cerr as one-word
// data symbols and emitting a one-instruction RET-n prelude in emit
// for each external-code symbol (spec.md §4.2's insert-external-code).
// It must run before any user source is parsed, so ordinary lookups
// see these names already bound.
func Declare(syms *symtab.Store, emit *emitter.Emitter, data *dataseg.Segment) (*Table, error) {
	t := &Table{handlers: make(map[int]vm.Builtin)}

	coutOff := data.AllocWords(1)
	if _, err := syms.InsertData("cout", coutOff, 1, "ostream"); err != nil {
		return nil, err
	}
	t.CoutAddr = coutOff

	cerrOff := data.AllocWords(1)
	if _, err := syms.InsertData("cerr", cerrOff, 1, "ostream"); err != nil {
		return nil, err
	}
	t.CerrAddr = cerrOff

	declare := func(bare string, argTypes []string, retType string, argCount int, fn vm.Builtin) error {
		prelude := argCount
		if prelude < 0 {
			prelude = 0
		}
		off := emit.EmitImm(opcode.RET, prelude)
		if _, err := syms.InsertExternalCode(bare, argTypes, retType, argCount, off); err != nil {
			return err
		}
		t.handlers[off] = fn
		return nil
	}

	if err := declare("endl", nil, "void", 0, t.writeNothing); err != nil {
		return nil, err
	}
	endlSym, err := syms.LookupUnambiguous("endl")
	if err != nil {
		return nil, err
	}
	t.EndlAddr = endlSym.Offset

	streams := []struct {
		argType string
		fn      func(*vm.Machine) int
	}{
		{"int", t.writeInt},
		{"double", t.writeDouble},
		{"const char*", t.writeCString},
		{"char", t.writeChar},
		{EndlType, t.writeEndl},
	}
	for _, s := range streams {
		if err := declare("operator<<", []string{"ostream", s.argType}, "ostream", 2, s.fn); err != nil {
			return nil, err
		}
	}

	if err := declare("printf", []string{"const char*", "..."}, "int", -1, t.printf); err != nil {
		return nil, err
	}

	return t, nil
}

// Install registers every declared builtin's native handler on m,
// keyed by the prelude address captured at Declare time, shifted by
// codeStart (the flat-memory offset internal/loader assigns to the
// start of the code segment, since every address recorded at Declare
// time is code-segment-local).
func (t *Table) Install(m *vm.Machine, codeStart int) {
	for addr, fn := range t.handlers {
		m.RegisterExternal(addr+codeStart, fn)
	}
}

func (t *Table) writer(m *vm.Machine, streamAddr int) (io.Writer, int) {
	if streamAddr == t.CerrAddr {
		return m.Errout, streamAddr
	}
	return m.Output, streamAddr
}

func (t *Table) writeNothing(m *vm.Machine) int {
	return 0
}

func (t *Table) writeInt(m *vm.Machine) int {
	streamAddr := m.Arg(2, 0)
	val := m.Arg(2, 1)
	w, addr := t.writer(m, streamAddr)
	fmt.Fprint(w, strconv.Itoa(val))
	return addr
}

// writeDouble writes the raw word passed for a "double"-typed operand.
// This language has no distinct floating-point runtime representation
// (spec.md Non-goals), so the word is printed as-is; the overload
// exists so the parser accepts `cout << x` where x was declared
// `double`, per spec.md §6's note that the VM may not interpret it.
func (t *Table) writeDouble(m *vm.Machine) int {
	streamAddr := m.Arg(2, 0)
	val := m.Arg(2, 1)
	w, addr := t.writer(m, streamAddr)
	fmt.Fprint(w, strconv.Itoa(val))
	return addr
}

func (t *Table) writeCString(m *vm.Machine) int {
	streamAddr := m.Arg(2, 0)
	strAddr := m.Arg(2, 1)
	w, addr := t.writer(m, streamAddr)
	fmt.Fprint(w, readCString(m.Mem, strAddr))
	return addr
}

func (t *Table) writeChar(m *vm.Machine) int {
	streamAddr := m.Arg(2, 0)
	val := m.Arg(2, 1)
	w, addr := t.writer(m, streamAddr)
	fmt.Fprint(w, string(byte(val)))
	return addr
}

func (t *Table) writeEndl(m *vm.Machine) int {
	streamAddr := m.Arg(2, 0)
	w, addr := t.writer(m, streamAddr)
	fmt.Fprint(w, "\n")
	if f, ok := w.(interface{ Sync() error }); ok {
		_ = f.Sync()
	}
	return addr
}

// printf implements the restricted conversions %d %c %s %p (spec.md
// §6); any other conversion character is printed literally, matching
// the original's laxness. It reads its arguments directly off the
// stack at trampoline time rather than through the [bp+1] convention
// documented for user-defined variadic functions (spec.md §9), since
// this handler is native Go code with direct access to the stack.
func (t *Table) printf(m *vm.Machine) int {
	sp := m.SP
	count := m.Mem[sp+1]
	fmtAddr := m.Mem[sp+2+count]
	argAt := func(i int) int {
		return m.Mem[sp+2+(count-1-i)]
	}

	format := readCString(m.Mem, fmtAddr)
	var out strings.Builder
	argi := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			out.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 'd':
			out.WriteString(strconv.Itoa(argAt(argi)))
			argi++
		case 'c':
			out.WriteByte(byte(argAt(argi)))
			argi++
		case 's':
			out.WriteString(readCString(m.Mem, argAt(argi)))
			argi++
		case 'p':
			out.WriteString(fmt.Sprintf("0x%x", argAt(argi)))
			argi++
		default:
			out.WriteByte('%')
			out.WriteByte(format[i])
		}
	}
	fmt.Fprint(m.Output, out.String())
	return len(format)
}

// readCString decodes a NUL-terminated string packed four bytes per
// word, little-endian (spec.md §3, §9), starting at word offset off
// in mem.
func readCString(mem []int, off int) string {
	var out []byte
	for wi := off; wi >= 0 && wi < len(mem); wi++ {
		w := mem[wi]
		done := false
		for shift := uint(0); shift < 32; shift += 8 {
			b := byte((w >> shift) & 0xff)
			if b == 0 {
				done = true
				break
			}
			out = append(out, b)
		}
		if done {
			break
		}
	}
	return string(out)
}
