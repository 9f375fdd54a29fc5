package interpreter_test

import (
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/hostlib"
	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/interpreter"
	"il.dev/il/internal/linker"
)

func i32Literal(v int32) ilmodel.Address {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return ilmodel.Address{Type: ilmodel.AddrConstant, Index: uint32(ilmodel.I32), ConstantBytes: b}
}

func stackAddr(idx int) ilmodel.Address {
	return ilmodel.Address{Type: ilmodel.AddrStackVar, Index: uint32(idx)}
}

// buildAddAndDump assembles a "main" method equivalent to:
//
//	stack(i32, i32)
//	set {0}, 12i32
//	set {1}, 8i32
//	ari_add {0}, {1}
//	dump {0}
//	retv {0}
//
// directly through the generator API, since the parser's statement grammar
// doesn't yet cover call/callv/sw and this test only needs arithmetic and
// dump.
func buildAddAndDump(t *testing.T) *ilmodel.Assembly {
	t.Helper()
	g := generator.New(nil)
	cur := generator.Cursor{}

	idx, err := g.DeclareMethod("main", cur)
	require.NoError(t, err)
	sig, err := g.MakeSignature(ilmodel.I32, nil)
	require.NoError(t, err)
	mw, err := g.DefineMethod(idx, sig, cur)
	require.NoError(t, err)

	a0 := stackAddr(mw.PushStack(ilmodel.I32))
	a1 := stackAddr(mw.PushStack(ilmodel.I32))

	mw.Set(a0, i32Literal(12))
	mw.Set(a1, i32Literal(8))
	mw.Ari(ilmodel.OpAriAdd, a0, a1)
	mw.Dump(a0)
	mw.RetV(a0)
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

func TestRunDumpsSummedValue(t *testing.T) {
	as := buildAddAndDump(t)

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
	require.Contains(t, out, "(20)\n")
	require.Equal(t, int32(20), rc)
}

func TestRunRejectsRuntimeHashMismatch(t *testing.T) {
	as := buildAddAndDump(t)
	_, err := interpreter.Run(as, interpreter.Config{
		MinStack:          4096,
		MaxStack:          1 << 16,
		MaxCallstackDepth: 64,
		RuntimeHash:       as.RuntimeHash ^ 1,
		Bindings:          hostlib.NewRegistry(),
	})
	require.Error(t, err)
}
