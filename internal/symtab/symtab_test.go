package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertDataDuplicateName(t *testing.T) {
	s := New()
	_, err := s.InsertData("g", 0, 1, "int")
	require.NoError(t, err)
	_, err = s.InsertData("g", 1, 1, "int")
	require.Error(t, err)
	assert.IsType(t, &DuplicateError{}, err)
}

func TestInsertDataDuplicateOffset(t *testing.T) {
	s := New()
	_, err := s.InsertData("a", 5, 1, "int")
	require.NoError(t, err)
	_, err = s.InsertData("b", 5, 1, "int")
	require.Error(t, err)
}

func TestOverloadResolutionExactMatch(t *testing.T) {
	s := New()
	_, err := s.InsertCode("add", []string{"int", "int"}, "int", 2, 10)
	require.NoError(t, err)
	_, err = s.InsertCode("add", []string{"int"}, "int", 1, 20)
	require.NoError(t, err)

	sym, err := s.ResolveCall("add", []string{"int", "int"})
	require.NoError(t, err)
	assert.Equal(t, 10, sym.Offset)

	sym, err = s.ResolveCall("add", []string{"int"})
	require.NoError(t, err)
	assert.Equal(t, 20, sym.Offset)

	_, err = s.ResolveCall("add", []string{"int", "int", "int"})
	require.Error(t, err)
	assert.IsType(t, &UnknownOverloadError{}, err)
}

func TestResolveVariadicPrefixMatch(t *testing.T) {
	s := New()
	_, err := s.InsertExternalCode("printf", []string{"const char*", "..."}, "int", -1, 5)
	require.NoError(t, err)

	sym, err := s.ResolveCall("printf", []string{"const char*", "int", "const char*"})
	require.NoError(t, err)
	assert.Equal(t, "printf(const char*,...)", sym.Name)
}

func TestLookupUnambiguousMain(t *testing.T) {
	s := New()
	_, err := s.InsertCode("main", nil, "int", 0, 100)
	require.NoError(t, err)
	sym, err := s.LookupUnambiguous("main")
	require.NoError(t, err)
	assert.Equal(t, 100, sym.Offset)

	_, err = s.InsertCode("main", []string{"int"}, "int", 1, 200)
	require.NoError(t, err)
	_, err = s.LookupUnambiguous("main")
	assert.Error(t, err)
}
