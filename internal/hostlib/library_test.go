package hostlib_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/hostlib"
	"il.dev/il/internal/ilmodel"
)

func addSymbol() hostlib.Symbol {
	return hostlib.Symbol{
		Name:   "add",
		Return: ilmodel.I32,
		Params: []ilmodel.TypeIndex{ilmodel.I32, ilmodel.I32},
		Fn: func(ret, params []byte) {
			a := int32(binary.LittleEndian.Uint32(params[0:4]))
			b := int32(binary.LittleEndian.Uint32(params[4:8]))
			binary.LittleEndian.PutUint32(ret, uint32(a+b))
		},
	}
}

func TestRegistryResolve(t *testing.T) {
	r := hostlib.NewRegistry()
	idx := r.Register(hostlib.Library{Name: "math", Symbols: []hostlib.Symbol{addSymbol()}})

	sym, err := r.Resolve(idx, 0)
	require.NoError(t, err)
	assert.Equal(t, "add", sym.Name)

	ret := make([]byte, 4)
	params := make([]byte, 8)
	binary.LittleEndian.PutUint32(params[0:4], uint32(int32(17)))
	binary.LittleEndian.PutUint32(params[4:8], uint32(int32(3)))
	sym.Fn(ret, params)
	assert.Equal(t, int32(20), int32(binary.LittleEndian.Uint32(ret)))
}

func TestRegistryResolveUnknownLibrary(t *testing.T) {
	r := hostlib.NewRegistry()
	_, err := r.Resolve(0, 0)
	assert.Error(t, err)
}

func TestRegistryResolveUnknownSymbol(t *testing.T) {
	r := hostlib.NewRegistry()
	idx := r.Register(hostlib.Library{Name: "math", Symbols: []hostlib.Symbol{addSymbol()}})
	_, err := r.Resolve(idx, 5)
	assert.Error(t, err)
}

func TestRegistryHashDependsOnContents(t *testing.T) {
	empty := hostlib.NewRegistry()
	withLib := hostlib.NewRegistry()
	withLib.Register(hostlib.Library{Name: "math", Symbols: []hostlib.Symbol{addSymbol()}})

	assert.NotEqual(t, empty.Hash(), withLib.Hash())

	again := hostlib.NewRegistry()
	again.Register(hostlib.Library{Name: "math", Symbols: []hostlib.Symbol{addSymbol()}})
	assert.Equal(t, withLib.Hash(), again.Hash(), "hash is deterministic over the same registration sequence")
}

func TestRegistryCloseAfterResolveDoesNotPanic(t *testing.T) {
	r := hostlib.NewRegistry()
	idx := r.Register(hostlib.Library{Name: "math", Symbols: []hostlib.Symbol{addSymbol()}})
	_, err := r.Resolve(idx, 0)
	require.NoError(t, err)
	assert.NotPanics(t, r.Close)
}
