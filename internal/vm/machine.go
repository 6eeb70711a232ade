// Package vm implements the stack-based virtual machine described in
// spec.md §4.8: a fetch-decode-execute loop over a flat, word-addressed
// memory array, with a trampoline that reaches external (built-in)
// routines whenever the instruction pointer enters their prelude range.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/icpp-lang/icpp/internal/opcode"
)

// Builtin is a native Go routine reached through an external-code
// symbol's prelude. It receives the machine at the moment ip has
// landed on the prelude's RET instruction (so arguments are still on
// the stack, not yet cleaned up) and returns the value to leave in ax.
type Builtin func(m *Machine) int

// Machine holds the VM's registers and flat memory array.
type Machine struct {
	Mem []int

	AX, IP, SP, BP int

	// CodeEnd bounds valid jump/call targets: [0, CodeEnd).
	CodeEnd int

	externals map[int]Builtin

	Output io.Writer
	Errout io.Writer
	Input  io.Reader

	ExitCode int
	Halted   bool

	Cycles int
	MaxCycles int // 0 means unlimited

	// Verbosity and Trace implement SPEC_FULL.md §10's diagnostic
	// gate at the VM level: at verbosity >= 3 every fetched
	// instruction is logged; at verbosity >= 1 every external
	// (built-in) dispatch is logged. A nil Trace disables both.
	Verbosity int
	Trace     io.Writer
}

// New creates a machine over mem with code segment ending at codeEnd
// (exclusive), with entry point ip and initial stack pointer sp.
func New(mem []int, codeEnd, ip, sp int) *Machine {
	return &Machine{
		Mem:       mem,
		IP:        ip,
		SP:        sp,
		BP:        sp,
		CodeEnd:   codeEnd,
		externals: make(map[int]Builtin),
		Output:    os.Stdout,
		Errout:    os.Stderr,
		Input:     os.Stdin,
	}
}

// RegisterExternal installs fn as the native handler invoked whenever
// ip lands exactly on the prelude address addr (the offset of an
// external-code symbol's RET instruction).
func (m *Machine) RegisterExternal(addr int, fn Builtin) {
	m.externals[addr] = fn
}

// Arg reads the i-th (0-indexed, left to right) of total fixed
// arguments to an external routine at the moment its prelude's native
// handler runs: sp still points at the saved return address, so
// arguments sit at sp+1..sp+total in reverse push order.
func (m *Machine) Arg(total, i int) int {
	return m.Mem[m.SP+(total-i)]
}

// Run executes instructions until EXIT, an error, or MaxCycles is
// reached (if set).
func (m *Machine) Run() error {
	for !m.Halted {
		if m.MaxCycles > 0 && m.Cycles >= m.MaxCycles {
			return m.fail("exceeded maximum cycle count %d", m.MaxCycles)
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) checkAddr(addr int) error {
	if addr < 0 || addr >= len(m.Mem) {
		return m.fail("access outside memory array at %d", addr)
	}
	return nil
}

func (m *Machine) load(addr int) (int, error) {
	if err := m.checkAddr(addr); err != nil {
		return 0, err
	}
	return m.Mem[addr], nil
}

func (m *Machine) store(addr, v int) error {
	if err := m.checkAddr(addr); err != nil {
		return err
	}
	m.Mem[addr] = v
	return nil
}

func (m *Machine) pop() (int, error) {
	v, err := m.load(m.SP)
	if err != nil {
		return 0, m.fail("stack underflow on pop")
	}
	m.SP++
	return v, nil
}

func (m *Machine) push(v int) error {
	m.SP--
	return m.store(m.SP, v)
}

// Step fetches and executes exactly one instruction. Before fetching,
// it applies the prelude trampoline (spec.md §4.8): if ip has landed on
// a registered external-code address, the native handler runs and sets
// ax, and the prelude's own RET instruction is then fetched and
// executed normally to unwind the caller's stack.
func (m *Machine) Step() error {
	m.Cycles++

	if fn, ok := m.externals[m.IP]; ok {
		if m.Trace != nil && m.Verbosity >= 1 {
			fmt.Fprintf(m.Trace, "external call at ip=%d\n", m.IP)
		}
		m.AX = fn(m)
	}

	if m.IP < 0 || m.IP >= m.CodeEnd {
		return m.fail("instruction pointer %d outside code segment", m.IP)
	}
	op := opcode.Op(m.Mem[m.IP])
	m.IP++

	var imm int
	if opcode.HasImmediate(op) {
		v, err := m.load(m.IP)
		if err != nil {
			return err
		}
		imm = v
		m.IP++
	}

	if m.Trace != nil && m.Verbosity >= 3 {
		fmt.Fprintf(m.Trace, "ip=%-6d %-6s %-8d ax=%-8d sp=%-6d bp=%d\n", m.IP-1, op, imm, m.AX, m.SP, m.BP)
	}

	switch op {
	case opcode.EXIT:
		m.ExitCode = m.AX
		m.Halted = true

	case opcode.PUSH:
		if err := m.push(m.AX); err != nil {
			return err
		}
	case opcode.POP:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.AX = v

	case opcode.ADJ:
		m.SP -= imm

	case opcode.MOV:
		m.AX = imm
	case opcode.LEA:
		m.AX = imm
	case opcode.GET:
		v, err := m.load(imm)
		if err != nil {
			return err
		}
		m.AX = v
	case opcode.PUT:
		if err := m.store(imm, m.AX); err != nil {
			return err
		}

	case opcode.LLEA:
		m.AX = m.BP + imm
	case opcode.LGET:
		v, err := m.load(m.BP + imm)
		if err != nil {
			return err
		}
		m.AX = v
	case opcode.LPUT:
		if err := m.store(m.BP+imm, m.AX); err != nil {
			return err
		}

	case opcode.SGET:
		addr, err := m.pop()
		if err != nil {
			return err
		}
		v, err := m.load(addr)
		if err != nil {
			return err
		}
		m.AX = v
	case opcode.SPUT:
		addr, err := m.pop()
		if err != nil {
			return err
		}
		if err := m.store(addr, m.AX); err != nil {
			return err
		}

	case opcode.ADD, opcode.SUB, opcode.MUL, opcode.DIV, opcode.MOD,
		opcode.SHL, opcode.SHR, opcode.AND, opcode.OR,
		opcode.EQ, opcode.NE, opcode.GE, opcode.GT, opcode.LE, opcode.LT,
		opcode.LAND, opcode.LOR:
		lhs, err := m.pop()
		if err != nil {
			return err
		}
		v, err := binaryOp(op, lhs, m.AX)
		if err != nil {
			return m.fail("%s", err)
		}
		m.AX = v

	case opcode.NEG:
		m.AX = -m.AX
	case opcode.INC:
		m.AX++
	case opcode.DEC:
		m.AX--
	case opcode.NOT:
		m.AX = ^m.AX
	case opcode.LNOT:
		if m.AX == 0 {
			m.AX = 1
		} else {
			m.AX = 0
		}

	case opcode.ENTER:
		if err := m.push(m.BP); err != nil {
			return err
		}
		m.BP = m.SP
		m.SP -= imm

	case opcode.LEAVE:
		m.SP = m.BP
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.BP = v

	case opcode.CALL:
		target := m.IP + imm
		if target < 0 || target >= m.CodeEnd {
			return m.fail("call target %d outside code segment", target)
		}
		if err := m.push(m.IP); err != nil {
			return err
		}
		m.IP = target

	case opcode.RET:
		ra, err := m.pop()
		if err != nil {
			return err
		}
		m.IP = ra
		m.SP += imm

	case opcode.JMP:
		target := m.IP + imm
		if target < 0 || target >= m.CodeEnd {
			return m.fail("jump target %d outside code segment", target)
		}
		m.IP = target
	case opcode.JZ:
		if m.AX == 0 {
			target := m.IP + imm
			if target < 0 || target >= m.CodeEnd {
				return m.fail("jump target %d outside code segment", target)
			}
			m.IP = target
		}
	case opcode.JNZ:
		if m.AX != 0 {
			target := m.IP + imm
			if target < 0 || target >= m.CodeEnd {
				return m.fail("jump target %d outside code segment", target)
			}
			m.IP = target
		}

	default:
		fmt.Fprintf(m.Errout, "warning: unknown opcode %d at ip=%d\n", int(op), m.IP-1)
	}

	return nil
}

func binaryOp(op opcode.Op, lhs, rhs int) (int, error) {
	boolInt := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	switch op {
	case opcode.ADD:
		return lhs + rhs, nil
	case opcode.SUB:
		return lhs - rhs, nil
	case opcode.MUL:
		return lhs * rhs, nil
	case opcode.DIV:
		if rhs == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return lhs / rhs, nil
	case opcode.MOD:
		if rhs == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return lhs % rhs, nil
	case opcode.SHL:
		return shift(lhs, rhs, true), nil
	case opcode.SHR:
		return shift(lhs, rhs, false), nil
	case opcode.AND:
		return lhs & rhs, nil
	case opcode.OR:
		return lhs | rhs, nil
	case opcode.EQ:
		return boolInt(lhs == rhs), nil
	case opcode.NE:
		return boolInt(lhs != rhs), nil
	case opcode.GE:
		return boolInt(lhs >= rhs), nil
	case opcode.GT:
		return boolInt(lhs > rhs), nil
	case opcode.LE:
		return boolInt(lhs <= rhs), nil
	case opcode.LT:
		return boolInt(lhs < rhs), nil
	case opcode.LAND:
		return boolInt(lhs != 0 && rhs != 0), nil
	case opcode.LOR:
		return boolInt(lhs != 0 || rhs != 0), nil
	default:
		return 0, fmt.Errorf("not a binary opcode: %s", op)
	}
}

// shift mirrors the host's behavior for out-of-range shift counts
// instead of crashing, per spec.md §4.8.
func shift(v, n int, left bool) int {
	if n < 0 || n >= 32 {
		n &= 31
	}
	if left {
		return v << uint(n)
	}
	return v >> uint(n)
}
