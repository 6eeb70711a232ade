package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icpp-lang/icpp/internal/opcode"
)

func TestEmitImmAndEnd(t *testing.T) {
	e := New()
	off := e.EmitImm(opcode.MOV, 42)
	assert.Equal(t, 0, off)
	assert.Equal(t, 2, e.End())
	assert.Equal(t, []int{int(opcode.MOV), 42}, e.Code)
}

func TestForwardFixupResolvesToAbsoluteTarget(t *testing.T) {
	e := New()
	fz := e.OpenFixup(opcode.JZ)
	e.Emit(opcode.PUSH) // "then" body
	require.NoError(t, e.UpdateRelativeAddress(fz))

	target := e.End()
	disp := e.Code[fz+1]
	assert.Equal(t, target, fz+2+disp)
}

func TestBackwardBranchDisplacement(t *testing.T) {
	e := New()
	loopStart := e.End()
	e.Emit(opcode.PUSH)
	jOff := e.EmitRelative(opcode.JMP, loopStart)
	target := loopStart
	disp := e.Code[jOff+1]
	assert.Equal(t, target, jOff+2+disp)
}

func TestFixupCannotBePatchedTwice(t *testing.T) {
	e := New()
	fz := e.OpenFixup(opcode.JMP)
	require.NoError(t, e.UpdateRelativeAddress(fz))
	err := e.UpdateRelativeAddress(fz)
	assert.Error(t, err)
}

func TestPatchUnknownOffsetFails(t *testing.T) {
	e := New()
	err := e.UpdateRelativeAddress(99)
	assert.Error(t, err)
}

func TestLineRangesRecordEmittedSpans(t *testing.T) {
	e := New()
	e.SetLine(1)
	e.EmitImm(opcode.MOV, 1)
	e.SetLine(2)
	e.Emit(opcode.PUSH)
	e.Emit(opcode.POP)

	r1 := e.LineRanges()[1]
	r2 := e.LineRanges()[2]
	require.NotNil(t, r1)
	require.NotNil(t, r2)
	assert.Equal(t, LineRange{Start: 0, End: 2}, *r1)
	assert.Equal(t, LineRange{Start: 2, End: 4}, *r2)
}

func TestPatchImmediateRewritesEnterLocalsSize(t *testing.T) {
	e := New()
	enterOff := e.EmitImm(opcode.ENTER, 0)
	e.PatchImmediate(enterOff, 3)
	assert.Equal(t, 3, e.Code[enterOff+1])
}
