package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/linker"
)

const sumProgram = `
method main returns i32 stack(i32, i32)
  set {0}, 12i32
  set {1}, 8i32
  ari_add {0}, {1}
  retv {0}
end
`

func TestRunBuildThenDumpRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sum.il")
	require.NoError(t, os.WriteFile(src, []byte(sumProgram), 0o644))
	out := filepath.Join(dir, "a.ilasm")

	buildOutput = out
	require.NoError(t, runBuild(buildCmd, []string{src}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	as, err := ilmodel.DeserializeAssembly(data)
	require.NoError(t, err)
	assert.True(t, as.Main.Valid())
	assert.Equal(t, "main", as.Names[as.Methods[as.Main].Name])

	var buf bytes.Buffer
	dumpCmd.SetOut(&buf)
	require.NoError(t, runDump(dumpCmd, []string{out}))
	assert.Contains(t, buf.String(), "entry point:  main")
	assert.Contains(t, buf.String(), "methods")
}

func TestDefaultBindingsHashIsStableAndEmpty(t *testing.T) {
	b1, _ := defaultBindings()
	b2, _ := defaultBindings()
	assert.Equal(t, b1.Hash(), b2.Hash())
	assert.Equal(t, linker.RuntimeBindings{}.Hash(), b1.Hash())
}

func TestRunBuildFailsWithoutEntryPoint(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "nomain.il")
	require.NoError(t, os.WriteFile(src, []byte("method helper returns i32 stack(i32)\n  set {0}, 1i32\n  retv {0}\nend\n"), 0o644))
	buildOutput = filepath.Join(dir, "out.ilasm")

	err := runBuild(buildCmd, []string{src})
	assert.Error(t, err)
}
