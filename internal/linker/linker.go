package linker

import (
	"go.uber.org/zap"

	"il.dev/il/internal/ilmodel"
)

// RuntimeBindings is the runtime binding surface a link is performed
// against: the set of host libraries the resulting assembly may call into.
// Its Hash mixes into every serialized method-pointer constant so an
// assembly linked against one binding surface trips RuntimeHashMismatch if
// run against a different one (preserved verbatim, not strengthened: its
// security value is nil, its job is to fail loud on a mismatched runtime).
type RuntimeBindings struct {
	LibraryNames  []string
	LibraryHashes []uint64
}

// Hash mixes the host toolchain version with every bound library's hash
// using FNV-1a, the simplest stdlib hash that gives a stable, well-mixed
// 64-bit fingerprint without pulling in a dependency for what is explicitly
// not a security boundary.
func (b RuntimeBindings) Hash() uint64 {
	h := fnv1aOffset
	mix := func(v uint64) {
		for i := 0; i < 8; i++ {
			h ^= v & 0xFF
			h *= fnv1aPrime
			v >>= 8
		}
	}
	mix(uint64(ilmodel.HostVersion.Major)<<48 | uint64(ilmodel.HostVersion.Minor)<<32 | uint64(ilmodel.HostVersion.Changelist))
	for _, lh := range b.LibraryHashes {
		mix(lh)
	}
	return h
}

const (
	fnv1aOffset uint64 = 14695981039346656037
	fnv1aPrime  uint64 = 1099511628211
)

// linker carries one link's working state across its five stages.
type linker struct {
	log *zap.Logger
	im  *ilmodel.Intermediate

	wordSize  int
	sizes     []int64                                  // computed per-type size, parallel to im.Types
	status    []resolveStatus                          // three-color walk state, parallel to im.Types
	pointerOf map[ilmodel.TypeIndex]ilmodel.TypeIndex // pointee -> declared pointer-to type
}

type resolveStatus int

const (
	statusUnresolved resolveStatus = iota
	statusResolving
	statusResolved
)

// Link resolves im into an executable Assembly against the given runtime
// binding surface, running the five stages of spec.md §4.4 in order.
func Link(im *ilmodel.Intermediate, bindings RuntimeBindings, log *zap.Logger) (*ilmodel.Assembly, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &linker{
		log: log, im: im,
		wordSize: int(im.Version.PtrWidth),
		sizes:    make([]int64, len(im.Types)),
		status:   make([]resolveStatus, len(im.Types)),
		pointerOf: map[ilmodel.TypeIndex]ilmodel.TypeIndex{},
	}
	for i, t := range im.Types {
		if t.Flags&ilmodel.FlagPointer != 0 && t.Generated != nil {
			l.pointerOf[t.Generated.Pointee] = ilmodel.TypeIndex(i)
		}
	}

	// Stage 1: type resolution.
	for i := range im.Types {
		if err := l.resolveType(ilmodel.TypeIndex(i)); err != nil {
			return nil, err
		}
	}
	// Record the computed sizes and struct field offsets on the assembly's
	// own copy of the type table (union fields stay at offset 0).
	types := append([]ilmodel.Type(nil), im.Types...)
	for i := range types {
		types[i].Size = l.sizes[i]
		types[i].Fields = append([]ilmodel.Field(nil), types[i].Fields...)
		var running int64
		for j := range types[i].Fields {
			if !types[i].IsUnion() {
				types[i].Fields[j].Offset = running
				running += l.sizes[types[i].Fields[j].Type]
			}
		}
	}

	// Stage 2: field offsets.
	offsets := make([]ilmodel.FieldOffset, len(im.Offsets))
	for i, o := range im.Offsets {
		resolved, err := l.resolveOffset(o)
		if err != nil {
			return nil, err
		}
		offsets[i] = resolved
	}

	runtimeHash := bindings.Hash()

	// Stage 3: global/constant layout.
	globals, err := l.layoutDataTable(im.Globals, offsets, runtimeHash)
	if err != nil {
		return nil, err
	}
	constants, err := l.layoutDataTable(im.Constants, offsets, runtimeHash)
	if err != nil {
		return nil, err
	}

	// Stage 4: per-method validation, subcode assignment, stack layout.
	methods := make([]ilmodel.Method, len(im.Methods))
	mainIdx := ilmodel.InvalidMethod
	for i, mt := range im.Methods {
		linked, err := l.linkMethod(ilmodel.MethodIndex(i), mt, offsets)
		if err != nil {
			return nil, err
		}
		methods[i] = linked
		if l.im.Names[mt.Name] == "main" && mt.Name.Valid() {
			mainIdx = ilmodel.MethodIndex(i)
		}
	}
	if !mainIdx.Valid() {
		return nil, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeEntryPointMissing, nil, "no method named %q", "main")
	}

	as := &ilmodel.Assembly{
		Version:     im.Version,
		Types:       types,
		Signatures:  im.Signatures,
		Methods:     methods,
		Offsets:     offsets,
		Names:       im.Names,
		Metas:       im.Metas,
		Globals:     globals,
		Constants:   constants,
		Main:        mainIdx,
		RuntimeHash: runtimeHash,
		WordSize:    l.wordSize,
	}
	l.log.Debug("linked assembly",
		zap.Int("types", len(as.Types)), zap.Int("methods", len(as.Methods)),
		zap.Uint64("runtime_hash", runtimeHash))
	return as, nil
}

// resolveType implements stage 1: a three-color walk computing each type's
// total byte size, rejecting a type that recurses into itself other than
// through a pointer edge (a pointer's size is fixed regardless of its
// pointee's resolution state, which is exactly what breaks the cycle for
// self-referential linked structures).
func (l *linker) resolveType(idx ilmodel.TypeIndex) error {
	if int(idx) < ilmodel.NumBaseTypes {
		l.sizes[idx] = ilmodel.BaseTypeSizes(l.wordSize)[idx]
		l.status[idx] = statusResolved
		return nil
	}
	switch l.status[idx] {
	case statusResolved:
		return nil
	case statusResolving:
		t := l.im.Types[idx]
		return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeRecursiveTypeDefinition, &t.Meta,
			"type %q recursively contains itself", l.typeName(idx))
	}
	l.status[idx] = statusResolving
	t := l.im.Types[idx]

	switch {
	case t.Flags&ilmodel.FlagPointer != 0:
		l.sizes[idx] = int64(l.wordSize) // pointer size never depends on pointee resolution
	case t.Flags&ilmodel.FlagArray != 0:
		if err := l.resolveType(t.Generated.Element); err != nil {
			return err
		}
		l.sizes[idx] = l.sizes[t.Generated.Element] * int64(t.Generated.Count)
	case t.Flags&ilmodel.FlagSignature != 0:
		l.sizes[idx] = int64(l.wordSize)
	default:
		var size int64
		for _, f := range t.Fields {
			if err := l.resolveType(f.Type); err != nil {
				return err
			}
			fsize := l.sizes[f.Type]
			if t.IsUnion() {
				if fsize > size {
					size = fsize
				}
			} else {
				size += fsize
			}
		}
		l.sizes[idx] = size
		if size == 0 && len(t.Fields) == 0 && !t.IsExternal() {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeZeroSizedType, &t.Meta,
				"type %q has no fields and no size", l.typeName(idx))
		}
	}
	l.status[idx] = statusResolved
	return nil
}

func (l *linker) typeName(idx ilmodel.TypeIndex) string {
	t := l.im.Types[idx]
	if t.Name.Valid() {
		return l.im.Names[t.Name]
	}
	return "<anonymous>"
}

// fieldOffset computes a field's byte offset and type within a
// resolved type (struct fields accumulate; union fields all sit at 0).
func (l *linker) fieldOffset(root ilmodel.TypeIndex) func(name ilmodel.NameIndex) (ilmodel.TypeIndex, int64, bool) {
	t := l.im.Types[root]
	var running int64
	offsets := map[ilmodel.NameIndex][2]int64{} // name -> (unused 0, offset); types holds the field type
	types := map[ilmodel.NameIndex]ilmodel.TypeIndex{}
	for _, f := range t.Fields {
		var off int64
		if t.IsUnion() {
			off = 0
		} else {
			off = running
			running += l.sizes[f.Type]
		}
		offsets[f.Name] = [2]int64{0, off}
		types[f.Name] = f.Type
	}
	return func(name ilmodel.NameIndex) (ilmodel.TypeIndex, int64, bool) {
		typ, ok := types[name]
		if !ok {
			return ilmodel.InvalidType, 0, false
		}
		return typ, offsets[name][1], true
	}
}

// resolveOffset implements stage 2: walk a field-address chain from its
// root type, summing byte offsets and tracking the resulting type.
func (l *linker) resolveOffset(o ilmodel.FieldOffset) (ilmodel.FieldOffset, error) {
	cur := o.Root
	var total int64
	for _, name := range o.Chain {
		t := l.im.Types[cur]
		if t.Flags&ilmodel.FlagPointer != 0 {
			return o, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidOffsetModifier, nil,
				"field chain crosses a pointer without indirection at %q", l.typeName(cur))
		}
		lookup := l.fieldOffset(cur)
		ftype, foff, ok := lookup(name)
		if !ok {
			return o, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeUndefinedTypeField, nil,
				"type %q has no field %q", l.typeName(cur), l.im.Names[name])
		}
		total += foff
		cur = ftype
	}
	o.ResultType = cur
	o.ByteOffset = total
	return o, nil
}

// layoutDataTable implements stage 3: concatenate initializer bytes
// unchanged (merger/generator already did that), and for any entry whose
// type is a signature-type (a function-pointer global), XOR its non-zero
// 8-byte method-index payload with the runtime hash so a null handle stays
// zero and a stray reinterpreted integer is unlikely to collide.
func (l *linker) layoutDataTable(src ilmodel.DataTable, offsets []ilmodel.FieldOffset, runtimeHash uint64) (ilmodel.DataTable, error) {
	out := ilmodel.DataTable{
		Entries: append([]ilmodel.DataEntry(nil), src.Entries...),
		Bytes:   append([]byte(nil), src.Bytes...),
	}
	for _, e := range out.Entries {
		t := l.im.Types[e.Type]
		if t.Flags&ilmodel.FlagSignature == 0 {
			continue
		}
		end := e.Offset + 8
		if end > int64(len(out.Bytes)) {
			continue
		}
		var v uint64
		for i := int64(0); i < 8; i++ {
			v |= uint64(out.Bytes[e.Offset+i]) << (8 * uint(i))
		}
		if v == 0 {
			continue // null function pointer stays null
		}
		v ^= runtimeHash
		for i := int64(0); i < 8; i++ {
			out.Bytes[e.Offset+i] = byte(v >> (8 * uint(i)))
		}
	}
	return out, nil
}
