package merger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/merger"
)

func declareMethod(t *testing.T, name string) *ilmodel.Intermediate {
	t.Helper()
	g := generator.New(nil)
	cur := generator.Cursor{}
	idx, err := g.DeclareMethod(name, cur)
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(idx, sig, cur)
	require.NoError(t, err)
	mw.RetV(ilmodel.Address{Type: ilmodel.AddrConstant, Index: uint32(ilmodel.I32), ConstantBytes: []byte{0, 0, 0, 0}})
	require.NoError(t, mw.Finish())
	im, err := g.Finalize()
	require.NoError(t, err)
	return im
}

func TestMergeUnionsDistinctMethods(t *testing.T) {
	lhs := declareMethod(t, "main")
	rhs := declareMethod(t, "helper")

	merged, err := merger.Merge(lhs, rhs, nil)
	require.NoError(t, err)
	assert.Len(t, merged.Methods, 2)

	names := map[string]bool{}
	for _, m := range merged.Methods {
		names[merged.Names[m.Name]] = true
	}
	assert.True(t, names["main"])
	assert.True(t, names["helper"])
}

func TestMergeRejectsDuplicateMethodDefinitions(t *testing.T) {
	lhs := declareMethod(t, "main")
	rhs := declareMethod(t, "main")

	_, err := merger.Merge(lhs, rhs, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "main")
}

func TestMergeSharesStructTypeAcrossInputsByName(t *testing.T) {
	cur := generator.Cursor{}

	gl := generator.New(nil)
	lt, err := gl.DeclareType("Point", cur)
	require.NoError(t, err)
	ltw, err := gl.DefineType(lt, false, cur)
	require.NoError(t, err)
	require.NoError(t, ltw.Field("x", ilmodel.I32))
	_, err = gl.DeclareMethod("main", cur)
	require.NoError(t, err)
	lim, err := gl.Finalize()
	require.NoError(t, err)

	// rhs only declares Point: a body on both sides would be a type
	// redefinition, so the one body comes from lhs.
	gr := generator.New(nil)
	_, err = gr.DeclareType("Point", cur)
	require.NoError(t, err)
	_, err = gr.DeclareMethod("helper", cur)
	require.NoError(t, err)
	rim, err := gr.Finalize()
	require.NoError(t, err)

	merged, err := merger.Merge(lim, rim, nil)
	require.NoError(t, err)

	count := 0
	for _, ty := range merged.Types {
		if ty.Name.Valid() && merged.Names[ty.Name] == "Point" {
			count++
			assert.Len(t, ty.Fields, 1, "the merged Point keeps lhs's body")
		}
	}
	assert.Equal(t, 1, count, "merging the same named type from both sides should not duplicate it")
}
