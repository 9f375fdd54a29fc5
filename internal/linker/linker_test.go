package linker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/linker"
)

// buildPointStruct declares a Point{x:i32, y:i32, z:i64} struct and a "main"
// method that sets a local pointer-to-Point field through a generated field
// offset, so both link stages (type layout and offset resolution) run.
func buildPointStruct(t *testing.T) (*generator.Generator, ilmodel.TypeIndex) {
	t.Helper()
	g := generator.New(nil)
	cur := generator.Cursor{}

	idx, err := g.DeclareType("Point", cur)
	require.NoError(t, err)
	tw, err := g.DefineType(idx, false, cur)
	require.NoError(t, err)
	require.NoError(t, tw.Field("x", ilmodel.I32))
	require.NoError(t, tw.Field("y", ilmodel.I32))
	require.NoError(t, tw.Field("z", ilmodel.I64))

	return g, idx
}

func TestLinkComputesStructFieldOffsets(t *testing.T) {
	g, pointType := buildPointStruct(t)
	offIdx := g.MakeOffset(pointType, []string{"z"})

	mIdx, err := g.DeclareMethod("main", generator.Cursor{})
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(mIdx, sig, generator.Cursor{})
	require.NoError(t, err)
	mw.RetV(ilmodel.Address{Type: ilmodel.AddrConstant, Index: uint32(ilmodel.I32), ConstantBytes: []byte{0, 0, 0, 0}})
	require.NoError(t, mw.Finish())

	im, err := g.Finalize()
	require.NoError(t, err)

	as, err := linker.Link(im, linker.RuntimeBindings{}, nil)
	require.NoError(t, err)

	require.Len(t, as.Offsets, 1)
	resolved := as.Offsets[0]
	assert.Equal(t, ilmodel.I64, resolved.ResultType)
	assert.Equal(t, int64(8), resolved.ByteOffset) // two i32 fields precede z

	var pt ilmodel.Type
	for _, ty := range as.Types {
		if ty.Name.Valid() && as.Names[ty.Name] == "Point" {
			pt = ty
		}
	}
	assert.Equal(t, int64(16), pt.Size) // 4 + 4 + 8, with z naturally trailing
	_ = offIdx
}

func TestLinkUnionFieldsShareOffsetZero(t *testing.T) {
	g := generator.New(nil)
	cur := generator.Cursor{}

	idx, err := g.DeclareType("Either", cur)
	require.NoError(t, err)
	tw, err := g.DefineType(idx, true, cur)
	require.NoError(t, err)
	require.NoError(t, tw.Field("asInt", ilmodel.I32))
	require.NoError(t, tw.Field("asLong", ilmodel.I64))

	mIdx, err := g.DeclareMethod("main", cur)
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(mIdx, sig, cur)
	require.NoError(t, err)
	mw.RetV(ilmodel.Address{Type: ilmodel.AddrConstant, Index: uint32(ilmodel.I32), ConstantBytes: []byte{0, 0, 0, 0}})
	require.NoError(t, mw.Finish())

	im, err := g.Finalize()
	require.NoError(t, err)

	as, err := linker.Link(im, linker.RuntimeBindings{}, nil)
	require.NoError(t, err)

	var either ilmodel.Type
	for _, ty := range as.Types {
		if ty.Name.Valid() && as.Names[ty.Name] == "Either" {
			either = ty
		}
	}
	assert.Equal(t, int64(8), either.Size) // union size is its widest member
}

func TestLinkDetectsRecursiveType(t *testing.T) {
	g := generator.New(nil)
	cur := generator.Cursor{}

	idx, err := g.DeclareType("Node", cur)
	require.NoError(t, err)
	tw, err := g.DefineType(idx, false, cur)
	require.NoError(t, err)
	require.NoError(t, tw.Field("value", ilmodel.I32))
	require.NoError(t, tw.Field("self", idx)) // directly embeds itself, not a pointer-to-self

	mIdx, err := g.DeclareMethod("main", cur)
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(mIdx, sig, cur)
	require.NoError(t, err)
	mw.RetV(ilmodel.Address{Type: ilmodel.AddrConstant, Index: uint32(ilmodel.I32), ConstantBytes: []byte{0, 0, 0, 0}})
	require.NoError(t, mw.Finish())

	im, err := g.Finalize()
	require.NoError(t, err)

	_, err = linker.Link(im, linker.RuntimeBindings{}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "recursively")
}

func TestLinkFailsWithoutEntryPoint(t *testing.T) {
	g := generator.New(nil)
	_, err := g.DeclareMethod("helper", generator.Cursor{})
	require.NoError(t, err)

	im, err := g.Finalize()
	require.NoError(t, err)

	_, err = linker.Link(im, linker.RuntimeBindings{}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "main")
}

func TestPointerTypeSizeMatchesWordSize(t *testing.T) {
	g := generator.New(nil)
	cur := generator.Cursor{}
	ptr := g.DeclarePointerType(ilmodel.I64)

	mIdx, err := g.DeclareMethod("main", cur)
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(mIdx, sig, cur)
	require.NoError(t, err)
	mw.RetV(ilmodel.Address{Type: ilmodel.AddrConstant, Index: uint32(ilmodel.I32), ConstantBytes: []byte{0, 0, 0, 0}})
	require.NoError(t, mw.Finish())

	im, err := g.Finalize()
	require.NoError(t, err)

	as, err := linker.Link(im, linker.RuntimeBindings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(as.Version.PtrWidth), as.Types[ptr].Size)
}
