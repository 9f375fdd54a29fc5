package generator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/ilmodel"
)

func TestDeclareTypeIsIdempotentByName(t *testing.T) {
	g := generator.New(nil)
	cur := generator.Cursor{}
	a, err := g.DeclareType("Point", cur)
	require.NoError(t, err)
	b, err := g.DeclareType("Point", cur)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDefineTypeTwiceIsRedefinition(t *testing.T) {
	g := generator.New(nil)
	cur := generator.Cursor{}
	idx, err := g.DeclareType("Point", cur)
	require.NoError(t, err)
	_, err = g.DefineType(idx, false, cur)
	require.NoError(t, err)
	_, err = g.DefineType(idx, false, cur)
	assert.Error(t, err)
}

func TestIdentifierKindMismatchIsRejected(t *testing.T) {
	g := generator.New(nil)
	cur := generator.Cursor{}
	_, err := g.DeclareType("thing", cur)
	require.NoError(t, err)
	_, err = g.DeclareMethod("thing", cur)
	assert.Error(t, err, "a name already denoting a type cannot also denote a method")
}

func TestDeclarePointerTypeDeduplicates(t *testing.T) {
	g := generator.New(nil)
	p1 := g.DeclarePointerType(ilmodel.I32)
	p2 := g.DeclarePointerType(ilmodel.I32)
	assert.Equal(t, p1, p2)

	p3 := g.DeclarePointerType(ilmodel.I64)
	assert.NotEqual(t, p1, p3)
}

func TestDeclareArrayTypeRejectsZeroCount(t *testing.T) {
	g := generator.New(nil)
	_, err := g.DeclareArrayType(ilmodel.I32, 0, generator.Cursor{})
	assert.Error(t, err)
}

func TestMakeSignatureDeduplicatesByShape(t *testing.T) {
	g := generator.New(nil)
	s1, err := g.MakeSignature(ilmodel.I32, []ilmodel.TypeIndex{ilmodel.I32, ilmodel.I64})
	require.NoError(t, err)
	s2, err := g.MakeSignature(ilmodel.I32, []ilmodel.TypeIndex{ilmodel.I32, ilmodel.I64})
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	s3, err := g.MakeSignature(ilmodel.I64, []ilmodel.TypeIndex{ilmodel.I32, ilmodel.I64})
	require.NoError(t, err)
	assert.NotEqual(t, s1, s3)
}

func TestMakeSignatureRejectsVoidParameter(t *testing.T) {
	g := generator.New(nil)
	_, err := g.MakeSignature(ilmodel.I32, []ilmodel.TypeIndex{ilmodel.Void})
	assert.Error(t, err)
}

func TestFinalizeRejectsSecondCall(t *testing.T) {
	g := generator.New(nil)
	_, err := g.Finalize()
	require.NoError(t, err)
	_, err = g.Finalize()
	assert.Error(t, err)
}

func TestMethodWriterRoundTripsStackVarsAndBytecode(t *testing.T) {
	g := generator.New(nil)
	cur := generator.Cursor{}
	idx, err := g.DeclareMethod("main", cur)
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(idx, sig, cur)
	require.NoError(t, err)

	a := mw.PushStack(ilmodel.I32)
	assert.Equal(t, 0, a)
	b := mw.PushStack(ilmodel.I64)
	assert.Equal(t, 1, b)

	mw.Ret()
	require.NoError(t, mw.Finish())

	im, err := g.Finalize()
	require.NoError(t, err)
	assert.Len(t, im.Methods[idx].StackVars, 2)
	assert.NotEmpty(t, im.Methods[idx].Bytecode)
}
