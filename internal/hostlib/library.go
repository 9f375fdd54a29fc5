// Package hostlib is the external-call surface a linked assembly calls
// into: a registry of host libraries, each exposing a table of symbols
// resolved lazily and cached, matching the "at most once per
// (library, symbol) pair" dynamic-loader rule.
//
// A native dlopen/dlsym loader does not fit an in-process Go host the way
// it fits a C++ one (Go's own plugin package is ELF-only and fragile across
// toolchain versions); a library here is instead a statically registered Go
// value, and "loading" it means looking it up by name in the registry
// rather than opening a shared object. The lazy-bind-and-cache contract
// itself is preserved exactly.
package hostlib

import (
	"sync"

	"il.dev/il/internal/ilmodel"
)

// Thunk is a forward-thunk: given the packed, no-padding parameter area and
// a return-value area (empty if the symbol returns void), it decodes the
// parameters into the native Go signature, invokes the host function, and
// encodes the result back into ret.
type Thunk func(ret []byte, params []byte)

// Symbol is one exported host function: its descriptor (for the
// interpreter/linker's own bookkeeping) and its forward-thunk.
type Symbol struct {
	Name   string
	Return ilmodel.TypeIndex
	Params []ilmodel.TypeIndex
	Fn     Thunk
}

// Library is a named, ordered table of symbols, registered up front by the
// embedding host program (the Go equivalent of a shared object).
type Library struct {
	Name    string
	Symbols []Symbol
}

// Registry is the set of libraries a given run is bound against. Libraries
// are registered before Run and never change afterward; symbol resolution
// within a library is cached on first use, mirroring the single dlopen/
// dlsym-per-pair rule.
type Registry struct {
	mu        sync.Mutex
	libraries []*Library
	byName    map[string]int

	opened map[int]bool // libraries "opened" so far, in open order
	order  []int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]int{}, opened: map[int]bool{}}
}

// Register adds a library, returning its stable LibraryIndex. Registration
// order is significant: it is what an assembly's ExternalCall.LibraryIndex
// values were compiled against.
func (r *Registry) Register(lib Library) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := len(r.libraries)
	r.libraries = append(r.libraries, &lib)
	r.byName[lib.Name] = idx
	return uint32(idx)
}

// Resolve looks up the symbol at (libraryIndex, callIndex), marking the
// library "opened" (for LIFO teardown bookkeeping) the first time any of
// its symbols is touched.
func (r *Registry) Resolve(libraryIndex, callIndex uint32) (Symbol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(libraryIndex) >= len(r.libraries) {
		return Symbol{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil,
			"external call names undefined library %d", libraryIndex)
	}
	lib := r.libraries[libraryIndex]
	if int(callIndex) >= len(lib.Symbols) {
		return Symbol{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil,
			"external call names undefined symbol %d in library %q", callIndex, lib.Name)
	}
	if !r.opened[int(libraryIndex)] {
		r.opened[int(libraryIndex)] = true
		r.order = append(r.order, int(libraryIndex))
	}
	return lib.Symbols[callIndex], nil
}

// Close tears down every opened library in LIFO order. Since libraries here
// are in-process Go values rather than OS handles, this is a no-op beyond
// bookkeeping reset, kept for symmetry with the host's open/close discipline
// and as the hook a future native-library backend would use.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		delete(r.opened, r.order[i])
	}
	r.order = nil
}

// Hash folds every registered library and symbol name into a 64-bit
// fingerprint, fed into the runtime hash so an assembly built against one
// set of host libraries mismatches cleanly against another.
func (r *Registry) Hash() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := uint64(14695981039346656037)
	const prime = uint64(1099511628211)
	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			h ^= uint64(s[i])
			h *= prime
		}
	}
	for _, lib := range r.libraries {
		mix(lib.Name)
		for _, sym := range lib.Symbols {
			mix(sym.Name)
		}
	}
	return h
}
