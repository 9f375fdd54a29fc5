package translator_test

import (
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/hostlib"
	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/interpreter"
	"il.dev/il/internal/linker"
	"il.dev/il/internal/parser"
	"il.dev/il/internal/translator"
)

func i32Lit(v int32) ilmodel.Address {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return ilmodel.Address{Type: ilmodel.AddrConstant, Index: uint32(ilmodel.I32), ConstantBytes: b}
}

func stackAddr(idx int) ilmodel.Address {
	return ilmodel.Address{Type: ilmodel.AddrStackVar, Index: uint32(idx)}
}

// buildBranchingAssembly links a program exercising a global reference, a
// forward conditional branch over a skippable instruction, and a dump/retv
// tail, built directly through the generator API (the opcodes it uses are
// all ones the textual parser understands, unlike call/callv/sw).
func buildBranchingAssembly(t *testing.T) *ilmodel.Assembly {
	t.Helper()
	g := generator.New(nil)
	cur := generator.Cursor{}

	gi, err := g.DefineGlobal("bias", false, ilmodel.I32, i32Lit(100).ConstantBytes, cur)
	require.NoError(t, err)

	idx, err := g.DeclareMethod("main", cur)
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(idx, sig, cur)
	require.NoError(t, err)

	a := stackAddr(mw.PushStack(ilmodel.I32))
	bVar := stackAddr(mw.PushStack(ilmodel.I32))

	mw.Set(a, i32Lit(2))
	mw.Set(bVar, i32Lit(5))
	mw.Branch(ilmodel.OpBEq, a, bVar, "skip") // false: a != b, falls through
	mw.Ari(ilmodel.OpAriAdd, a, bVar)         // a = 7
	require.NoError(t, mw.WriteLabel("skip"))
	mw.Ari(ilmodel.OpAriAdd, a, ilmodel.Address{Type: ilmodel.AddrGlobal, Index: uint32(gi)}) // a += bias
	mw.Dump(a)
	mw.RetV(a)
	require.NoError(t, mw.Finish())

	im, err := g.Finalize()
	require.NoError(t, err)

	as, err := linker.Link(im, linker.RuntimeBindings{}, nil)
	require.NoError(t, err)
	return as
}

func runCapturingStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func runAssembly(t *testing.T, as *ilmodel.Assembly) (int32, string) {
	t.Helper()
	var rc int32
	var runErr error
	out := runCapturingStdout(t, func() {
		rc, runErr = interpreter.Run(as, interpreter.Config{
			MinStack:          4096,
			MaxStack:          1 << 16,
			MaxCallstackDepth: 64,
			RuntimeHash:       linker.RuntimeBindings{}.Hash(),
			Bindings:          hostlib.NewRegistry(),
		})
	})
	require.NoError(t, runErr)
	return rc, out
}

// TestEmitReparseRoundTripsBehaviour re-emits a linked assembly as textual
// IL, reparses it from scratch, relinks it, and checks the reparsed program
// produces the same dump output and return code as the original: the
// round-trip property the package doc promises.
func TestEmitReparseRoundTripsBehaviour(t *testing.T) {
	as := buildBranchingAssembly(t)
	wantRC, wantOut := runAssembly(t, as)
	require.Equal(t, int32(107), wantRC) // beq falls through, so 2+5, then +100 bias
	require.Contains(t, wantOut, "(107)\n")

	text := translator.New(as).Emit()

	g := generator.New(nil)
	p, err := parser.New([]byte(text), "roundtrip.il", g)
	require.NoError(t, err, "re-emitted text:\n%s", text)
	require.NoError(t, p.Parse())
	im, err := g.Finalize()
	require.NoError(t, err)

	reLinked, err := linker.Link(im, linker.RuntimeBindings{}, nil)
	require.NoError(t, err)

	gotRC, gotOut := runAssembly(t, reLinked)
	assert.Equal(t, wantRC, gotRC)
	assert.Equal(t, wantOut, gotOut)
}

func TestEmitUsesReparsableArithmeticMnemonics(t *testing.T) {
	as := buildBranchingAssembly(t)
	text := translator.New(as).Emit()
	assert.Contains(t, text, "ari_add")
	assert.NotContains(t, text, " add ") // bare "add" isn't a mnemonic the parser accepts
}

func TestEmitRendersBranchTargetsAsLabels(t *testing.T) {
	as := buildBranchingAssembly(t)
	text := translator.New(as).Emit()
	assert.Contains(t, text, "beq")
	assert.Contains(t, text, "L0:")
}

func TestCMangleUsesPropanePrefix(t *testing.T) {
	as := buildBranchingAssembly(t)
	var mainIdx ilmodel.MethodIndex
	for i, m := range as.Methods {
		if as.Names[m.Name] == "main" {
			mainIdx = ilmodel.MethodIndex(i)
		}
	}
	assert.Equal(t, "propane_main", translator.CMangle(as, mainIdx))
}

func TestCTypeNameMapsBaseTypes(t *testing.T) {
	as := buildBranchingAssembly(t)
	assert.Equal(t, "int32_t", translator.CTypeName(as, ilmodel.I32))
	assert.Equal(t, "double", translator.CTypeName(as, ilmodel.F64))
}

func TestCConstantRendersScalar(t *testing.T) {
	as := buildBranchingAssembly(t)
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, 42)
	got := translator.CConstant(as, ilmodel.DataEntry{Type: ilmodel.I32}, raw)
	assert.Equal(t, "42", got)
}
