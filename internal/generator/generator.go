// Package generator is the imperative builder API that produces an
// Intermediate: declare_type/define_type, declare_pointer_type,
// make_signature, declare_method/define_method, define_global and finalize,
// for the generator phase.
package generator

import (
	"go.uber.org/zap"

	"il.dev/il/internal/ilmodel"
)

// Cursor is the caller-supplied source-location tracker used to stamp
// generator errors with file/line metadata, mirroring the format's "location
// cursor" concept.
type Cursor struct {
	File string
	Line int
}

func (c Cursor) meta() *ilmodel.Meta {
	if c.File == "" {
		return nil
	}
	return &ilmodel.Meta{File: c.File, Line: c.Line}
}

// Generator builds one Intermediate. It is single-use: calling Finalize
// consumes it.
type Generator struct {
	log *zap.Logger

	im *ilmodel.Intermediate

	names     map[string]ilmodel.NameIndex
	nameKinds map[ilmodel.NameIndex]identifierKind

	typeByName   map[ilmodel.NameIndex]ilmodel.TypeIndex
	typeDefined  map[ilmodel.TypeIndex]bool
	pointerOf    map[ilmodel.TypeIndex]ilmodel.TypeIndex
	arrayOf      map[arrayKey]ilmodel.TypeIndex
	signatureOf  map[ilmodel.SignatureIndex]ilmodel.TypeIndex
	sigByKey     map[string]ilmodel.SignatureIndex
	offsetByKey  map[string]ilmodel.OffsetIndex
	methodByName map[ilmodel.NameIndex]ilmodel.MethodIndex
	methodDefined map[ilmodel.MethodIndex]bool

	finalized bool
}

type identifierKind int

const (
	identUnused identifierKind = iota
	identType
	identMethod
	identGlobal
)

type arrayKey struct {
	base  ilmodel.TypeIndex
	count uint64
}

// New creates an empty Generator. log may be nil (a no-op logger is used).
func New(log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Generator{
		log:           log,
		im:            ilmodel.NewIntermediate(),
		names:         map[string]ilmodel.NameIndex{},
		nameKinds:     map[ilmodel.NameIndex]identifierKind{},
		typeByName:    map[ilmodel.NameIndex]ilmodel.TypeIndex{},
		typeDefined:   map[ilmodel.TypeIndex]bool{},
		pointerOf:     map[ilmodel.TypeIndex]ilmodel.TypeIndex{},
		arrayOf:       map[arrayKey]ilmodel.TypeIndex{},
		signatureOf:   map[ilmodel.SignatureIndex]ilmodel.TypeIndex{},
		sigByKey:      map[string]ilmodel.SignatureIndex{},
		offsetByKey:   map[string]ilmodel.OffsetIndex{},
		methodByName:  map[ilmodel.NameIndex]ilmodel.MethodIndex{},
		methodDefined: map[ilmodel.MethodIndex]bool{},
	}
	for i := 0; i < ilmodel.NumBaseTypes; i++ {
		g.im.Types = append(g.im.Types, ilmodel.Type{
			Index: ilmodel.TypeIndex(i), Name: ilmodel.InvalidName, PointerTo: ilmodel.InvalidType,
		})
		g.typeDefined[ilmodel.TypeIndex(i)] = true
	}
	return g
}

func (g *Generator) intern(name string) ilmodel.NameIndex {
	if idx, ok := g.names[name]; ok {
		return idx
	}
	idx := ilmodel.NameIndex(len(g.im.Names))
	g.im.Names = append(g.im.Names, name)
	g.names[name] = idx
	return idx
}

// InternName exposes name interning to callers that need a NameIndex
// without declaring a type, method or global against it (e.g. the parser
// resolving a field name within an address modifier).
func (g *Generator) InternName(name string) ilmodel.NameIndex {
	return g.intern(name)
}

// GlobalByName resolves a previously defined global or constant by name,
// returning its GlobalIndex and declared type.
func (g *Generator) GlobalByName(name string) (ilmodel.GlobalIndex, ilmodel.TypeIndex, bool) {
	nameIdx, ok := g.names[name]
	if !ok {
		return ilmodel.InvalidGlobal, ilmodel.InvalidType, false
	}
	if i := g.im.Globals.ByName(nameIdx); i >= 0 {
		return ilmodel.NewGlobalIndex(uint32(i), false), g.im.Globals.Entries[i].Type, true
	}
	if i := g.im.Constants.ByName(nameIdx); i >= 0 {
		return ilmodel.NewGlobalIndex(uint32(i), true), g.im.Constants.Entries[i].Type, true
	}
	return ilmodel.InvalidGlobal, ilmodel.InvalidType, false
}

func (g *Generator) checkIdentifier(name ilmodel.NameIndex, kind identifierKind, cur Cursor) error {
	existing, ok := g.nameKinds[name]
	if ok && existing != identUnused && existing != kind {
		return ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeRedefinition, cur.meta(),
			"identifier %q already denotes a different kind of entity", g.im.Names[name])
	}
	g.nameKinds[name] = kind
	return nil
}

// DeclareType returns the index for a (possibly new) named type, without
// requiring a body. Declaring the same name twice returns the same index
// (idempotent lookup by name).
func (g *Generator) DeclareType(name string, cur Cursor) (ilmodel.TypeIndex, error) {
	nameIdx := g.intern(name)
	if idx, ok := g.typeByName[nameIdx]; ok {
		return idx, nil
	}
	if err := g.checkIdentifier(nameIdx, identType, cur); err != nil {
		return ilmodel.InvalidType, err
	}
	idx := ilmodel.TypeIndex(len(g.im.Types))
	g.im.Types = append(g.im.Types, ilmodel.Type{
		Index: idx, Name: nameIdx, PointerTo: ilmodel.InvalidType,
		Meta: *orZero(cur.meta()),
	})
	g.typeByName[nameIdx] = idx
	return idx, nil
}

func orZero(m *ilmodel.Meta) *ilmodel.Meta {
	if m == nil {
		return &ilmodel.Meta{}
	}
	return m
}

// TypeWriter accumulates fields for one type body.
type TypeWriter struct {
	g       *Generator
	idx     ilmodel.TypeIndex
	isUnion bool
}

// DefineType opens the body of a previously declared type. A second body on
// an already-defined type fails with Redefinition.
func (g *Generator) DefineType(idx ilmodel.TypeIndex, isUnion bool, cur Cursor) (*TypeWriter, error) {
	if g.typeDefined[idx] {
		return nil, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeRedefinition, cur.meta(),
			"type %d already defined", idx)
	}
	g.typeDefined[idx] = true
	t := &g.im.Types[idx]
	if isUnion {
		t.Flags |= ilmodel.FlagUnion
	}
	return &TypeWriter{g: g, idx: idx, isUnion: isUnion}, nil
}

// Field appends one named field to the type being defined. A void field
// type is rejected immediately: void has no size, so it could only ever
// denote a field that overlaps its neighbours or a struct with no layout.
func (w *TypeWriter) Field(name string, typ ilmodel.TypeIndex) error {
	if typ == ilmodel.Void {
		return ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeInvalidVoidUse, nil,
			"field %q cannot have type void", name)
	}
	nameIdx := w.g.intern(name)
	w.g.im.Types[w.idx].Fields = append(w.g.im.Types[w.idx].Fields, ilmodel.Field{
		Name: nameIdx, Type: typ,
	})
	return nil
}

// DeclarePointerType returns the (deduplicated) pointer-to-base type index.
func (g *Generator) DeclarePointerType(base ilmodel.TypeIndex) ilmodel.TypeIndex {
	if idx, ok := g.pointerOf[base]; ok {
		return idx
	}
	idx := ilmodel.TypeIndex(len(g.im.Types))
	g.im.Types = append(g.im.Types, ilmodel.Type{
		Index: idx, Name: ilmodel.InvalidName, Flags: ilmodel.FlagPointer, PointerTo: ilmodel.InvalidType,
		Generated: &ilmodel.Generated{Kind: ilmodel.GeneratedPointer, Pointee: base},
	})
	g.typeDefined[idx] = true
	g.pointerOf[base] = idx
	if base.Valid() && int(base) < len(g.im.Types) {
		g.im.Types[base].PointerTo = idx
	}
	return idx
}

// DeclareArrayType returns the (deduplicated) array-of-base,count type
// index. A zero count is a generator error (Non-goal: zero-length arrays).
func (g *Generator) DeclareArrayType(base ilmodel.TypeIndex, count uint64, cur Cursor) (ilmodel.TypeIndex, error) {
	if count == 0 {
		return ilmodel.InvalidType, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeZeroLengthArray, cur.meta(),
			"array type must have a non-zero element count")
	}
	if base == ilmodel.Void {
		return ilmodel.InvalidType, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeInvalidVoidUse, cur.meta(),
			"array element type cannot be void")
	}
	key := arrayKey{base: base, count: count}
	if idx, ok := g.arrayOf[key]; ok {
		return idx, nil
	}
	idx := ilmodel.TypeIndex(len(g.im.Types))
	g.im.Types = append(g.im.Types, ilmodel.Type{
		Index: idx, Name: ilmodel.InvalidName, Flags: ilmodel.FlagArray, PointerTo: ilmodel.InvalidType,
		Generated: &ilmodel.Generated{Kind: ilmodel.GeneratedArray, Element: base, Count: count},
	})
	g.typeDefined[idx] = true
	g.arrayOf[key] = idx
	return idx, nil
}

// maxSignatureParams bounds a signature's parameter count: generous enough
// for any realistic call, tight enough to keep parameter-offset bytes (8
// per slot, see below) comfortably inside the packed address's 26-bit index
// field.
const maxSignatureParams = 255

// MakeSignature returns a structurally-deduplicated signature index. A void
// parameter type or an oversized parameter list is rejected immediately;
// void is only meaningful as a return type.
func (g *Generator) MakeSignature(ret ilmodel.TypeIndex, params []ilmodel.TypeIndex) (ilmodel.SignatureIndex, error) {
	if len(params) > maxSignatureParams {
		return ilmodel.InvalidSignature, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeParameterListTooLong, nil,
			"signature has %d parameters, exceeding the limit of %d", len(params), maxSignatureParams)
	}
	for i, p := range params {
		if p == ilmodel.Void {
			return ilmodel.InvalidSignature, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeInvalidVoidUse, nil,
				"parameter %d cannot have type void", i)
		}
	}
	key := ilmodel.SignatureKey(ret, params)
	if idx, ok := g.sigByKey[key]; ok {
		return idx, nil
	}
	idx := ilmodel.SignatureIndex(len(g.im.Signatures))
	sig := ilmodel.Signature{Index: idx, Return: ret, SignatureType: ilmodel.InvalidType}
	var offset int64
	for _, p := range params {
		sig.Params = append(sig.Params, ilmodel.Parameter{Type: p, Offset: offset})
		offset += 8 // conservative placeholder; linker recomputes real offsets from resolved sizes
	}
	sig.ParamBytes = offset
	g.im.Signatures = append(g.im.Signatures, sig)
	g.sigByKey[key] = idx
	return idx, nil
}

// DeclareSignatureType returns the (deduplicated) function-pointer type for
// a signature.
func (g *Generator) DeclareSignatureType(sig ilmodel.SignatureIndex) ilmodel.TypeIndex {
	if idx, ok := g.signatureOf[sig]; ok {
		return idx
	}
	idx := ilmodel.TypeIndex(len(g.im.Types))
	g.im.Types = append(g.im.Types, ilmodel.Type{
		Index: idx, Name: ilmodel.InvalidName, Flags: ilmodel.FlagSignature, PointerTo: ilmodel.InvalidType,
		Generated: &ilmodel.Generated{Kind: ilmodel.GeneratedSignature, Signature: sig},
	})
	g.typeDefined[idx] = true
	g.signatureOf[sig] = idx
	g.im.Signatures[sig].SignatureType = idx
	return idx
}

// MakeOffset returns a structurally-deduplicated field-address index for the
// chain of field names walked from root.
func (g *Generator) MakeOffset(root ilmodel.TypeIndex, fieldNames []string) ilmodel.OffsetIndex {
	chain := make([]ilmodel.NameIndex, len(fieldNames))
	for i, n := range fieldNames {
		chain[i] = g.intern(n)
	}
	addr := ilmodel.FieldAddress{Root: root, Chain: chain}
	key := addr.Key()
	if idx, ok := g.offsetByKey[key]; ok {
		return idx
	}
	idx := ilmodel.OffsetIndex(len(g.im.Offsets))
	g.im.Offsets = append(g.im.Offsets, ilmodel.FieldOffset{
		Index: idx, Root: root, Chain: chain, ResultType: ilmodel.InvalidType, ByteOffset: -1,
	})
	g.offsetByKey[key] = idx
	return idx
}

// DeclareMethod returns the index for a (possibly new) named method.
func (g *Generator) DeclareMethod(name string, cur Cursor) (ilmodel.MethodIndex, error) {
	nameIdx := g.intern(name)
	if idx, ok := g.methodByName[nameIdx]; ok {
		return idx, nil
	}
	if err := g.checkIdentifier(nameIdx, identMethod, cur); err != nil {
		return ilmodel.InvalidMethod, err
	}
	idx := ilmodel.MethodIndex(len(g.im.Methods))
	g.im.Methods = append(g.im.Methods, ilmodel.Method{
		Index: idx, Name: nameIdx, Signature: ilmodel.InvalidSignature, Meta: *orZero(cur.meta()),
	})
	g.methodByName[nameIdx] = idx
	return idx, nil
}

// DefineMethod opens a MethodWriter for a previously declared method. A
// second body is a Redefinition error.
func (g *Generator) DefineMethod(idx ilmodel.MethodIndex, sig ilmodel.SignatureIndex, cur Cursor) (*MethodWriter, error) {
	if g.methodDefined[idx] {
		return nil, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeRedefinition, cur.meta(),
			"method %d already defined", idx)
	}
	g.methodDefined[idx] = true
	g.im.Methods[idx].Signature = sig
	return newMethodWriter(g, idx), nil
}

// DefineGlobal appends a named, typed global or constant, with its
// initializer as a packed sequence of raw bytes (already encoded by the
// caller/parser from typed literals; nested aggregates are a flat byte
// sequence).
func (g *Generator) DefineGlobal(name string, isConstant bool, typ ilmodel.TypeIndex, init []byte, cur Cursor) (ilmodel.GlobalIndex, error) {
	nameIdx := g.intern(name)
	if err := g.checkIdentifier(nameIdx, identGlobal, cur); err != nil {
		return ilmodel.InvalidGlobal, err
	}
	table := &g.im.Globals
	if isConstant {
		table = &g.im.Constants
	}
	if table.ByName(nameIdx) >= 0 {
		return ilmodel.InvalidGlobal, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeRedefinition, cur.meta(),
			"global %q already defined", name)
	}
	if ilmodel.IsBase(typ) {
		want := ilmodel.BaseTypeSizes(int(g.im.Version.PtrWidth))[typ]
		if int64(len(init)) != want {
			return ilmodel.InvalidGlobal, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeInitializerOverflow, cur.meta(),
				"global %q initializer is %d bytes, type requires %d", name, len(init), want)
		}
	}
	ordinal := uint32(len(table.Entries))
	table.Append(nameIdx, typ, init)
	return ilmodel.NewGlobalIndex(ordinal, isConstant), nil
}

// Finalize returns the built in-memory intermediate (Intermediate.Serialize
// produces its serialized form). The Generator must not be used afterward.
func (g *Generator) Finalize() (*ilmodel.Intermediate, error) {
	if g.finalized {
		return nil, ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeRedefinition, nil, "generator already finalized")
	}
	g.finalized = true
	g.log.Debug("finalized intermediate",
		zap.Int("types", len(g.im.Types)), zap.Int("methods", len(g.im.Methods)),
		zap.Int("signatures", len(g.im.Signatures)))
	return g.im, nil
}
