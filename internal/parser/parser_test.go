package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/linker"
	"il.dev/il/internal/parser"
)

const sumSource = `
struct Point
  x:i32
  y:i32
end

external add_native parameters(i32, i32) returns i32

method sum parameters(i32, i32) returns i32 stack(i32)
  set {0}, (0)
  ari_add {0}, (1)
  retv {0}
end

global counter : i32 init(0)
constant limit : i32 init(100)
`

func parse(t *testing.T, src string) *ilmodel.Intermediate {
	t.Helper()
	g := generator.New(nil)
	p, err := parser.New([]byte(src), "test.il", g)
	require.NoError(t, err)
	require.NoError(t, p.Parse())
	im, err := g.Finalize()
	require.NoError(t, err)
	return im
}

func TestParseStructMethodAndGlobals(t *testing.T) {
	im := parse(t, sumSource)
	assert.Len(t, im.Methods, 2) // add_native, sum
	assert.Len(t, im.Globals.Entries, 1)
	assert.Len(t, im.Constants.Entries, 1)

	var pointType *ilmodel.Type
	for i := range im.Types {
		if im.Types[i].Name.Valid() && im.Names[im.Types[i].Name] == "Point" {
			pointType = &im.Types[i]
		}
	}
	require.NotNil(t, pointType)
	assert.Len(t, pointType.Fields, 2)
}

func TestParsedProgramLinks(t *testing.T) {
	im := parse(t, sumSource)
	_, err := linker.Link(im, linker.RuntimeBindings{}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "main")
}

func TestParseRejectsUnknownOpcode(t *testing.T) {
	g := generator.New(nil)
	_, err := parser.New([]byte("method main\n  frobnicate {0}\nend\n"), "bad.il", g)
	require.NoError(t, err) // tokenizing succeeds; the failure is in Parse

	p, _ := parser.New([]byte("method main\n  frobnicate {0}\nend\n"), "bad.il", g)
	err = p.Parse()
	assert.Error(t, err)
}
