package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icpp-lang/icpp/internal/opcode"
)

// assemble builds a flat memory array of the given code words padded
// with extra scratch words for a stack, returning the machine with sp
// at the top of that scratch region.
func assemble(code []int, stackWords int) *Machine {
	mem := make([]int, len(code)+stackWords)
	copy(mem, code)
	return New(mem, len(code), 0, len(mem))
}

func TestArithmeticExitsWithComputedValue(t *testing.T) {
	// return 2 + 3 * 4: evaluate 3*4 first (ax=12), push, then ax=2, ADD.
	code := []int{
		int(opcode.MOV), 4,
		int(opcode.PUSH),
		int(opcode.MOV), 3,
		int(opcode.MUL), // ax = m[sp++] * ax = 4*3 = 12
		int(opcode.PUSH),
		int(opcode.MOV), 2,
		int(opcode.ADD), // ax = m[sp++] + ax = 12+2 = 14
		int(opcode.EXIT),
	}
	m := assemble(code, 8)
	require.NoError(t, m.Run())
	assert.Equal(t, 14, m.ExitCode)
}

func TestDivisionByZeroFails(t *testing.T) {
	code := []int{
		int(opcode.MOV), 5,
		int(opcode.PUSH),
		int(opcode.MOV), 0,
		int(opcode.DIV), // ax = m[sp++] / ax = 5/0
		int(opcode.EXIT),
	}
	m := assemble(code, 8)
	err := m.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestJumpLandingExactlyOnCodeEndFails(t *testing.T) {
	// JMP +1 from ip=2 (right after the two-word JMP instruction) lands
	// exactly at CodeEnd, one past the last valid instruction, which
	// must fail the same way a CALL to CodeEnd does.
	code := []int{int(opcode.JMP), 1, int(opcode.EXIT)}
	m := assemble(code, 8)
	err := m.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside code segment")
}

func TestStackUnderflowFailsWithRuntimeMemory(t *testing.T) {
	code := []int{int(opcode.POP), int(opcode.EXIT)}
	mem := append([]int{}, code...)
	m := New(mem, len(code), 0, -1) // sp already off the bottom of memory
	err := m.Run()
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
}

func TestCallAndReturnRestoresCallerFrame(t *testing.T) {
	// main: CALL f; EXIT
	// f (at offset 3): ENTER 0; MOV 7; LEAVE; RET 0
	code := []int{
		int(opcode.CALL), 1, // disp to f: f starts at offset 3, ip_after_operand=2, disp=1
		int(opcode.EXIT),
		int(opcode.ENTER), 0,
		int(opcode.MOV), 7,
		int(opcode.LEAVE),
		int(opcode.RET), 0,
	}
	m := assemble(code, 8)
	require.NoError(t, m.Run())
	assert.Equal(t, 7, m.ExitCode)
}

func TestJZBranchesOnlyWhenAxIsZero(t *testing.T) {
	code := []int{
		int(opcode.MOV), 0,
		int(opcode.JZ), 2, // skip the MOV 99 below
		int(opcode.MOV), 99,
		int(opcode.MOV), 1,
		int(opcode.EXIT),
	}
	m := assemble(code, 4)
	require.NoError(t, m.Run())
	assert.Equal(t, 1, m.ExitCode)
}

func TestCallOutsideCodeSegmentFails(t *testing.T) {
	code := []int{int(opcode.CALL), 1000, int(opcode.EXIT)}
	m := assemble(code, 4)
	err := m.Run()
	require.Error(t, err)
}

func TestExternalPreludeInvokesRegisteredHandler(t *testing.T) {
	// main: CALL external; EXIT
	// external prelude at offset 3: RET 0
	code := []int{
		int(opcode.CALL), 1,
		int(opcode.EXIT),
		int(opcode.RET), 0,
	}
	m := assemble(code, 8)
	called := false
	m.RegisterExternal(3, func(mm *Machine) int {
		called = true
		return 99
	})
	require.NoError(t, m.Run())
	assert.True(t, called)
	assert.Equal(t, 99, m.ExitCode)
}

func TestShiftDoesNotCrashOnOutOfRangeCount(t *testing.T) {
	code := []int{
		int(opcode.MOV), 40,
		int(opcode.PUSH),
		int(opcode.MOV), 1,
		int(opcode.SHL),
		int(opcode.EXIT),
	}
	m := assemble(code, 4)
	require.NoError(t, m.Run())
}
