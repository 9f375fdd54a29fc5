// Package merger unions two intermediates into one:
// dense remap tables translate every rhs index into the merged lhs index
// space, redefinitions across the two inputs are rejected, and names merge
// through one shared identifier table with cross-kind uniqueness enforced.
package merger

import (
	"go.uber.org/zap"

	"il.dev/il/internal/ilmodel"
)

// remap holds the rhs → merged dense translation tables built in step 1.
type remap struct {
	types      []ilmodel.TypeIndex
	signatures []ilmodel.SignatureIndex
	methods    []ilmodel.MethodIndex
	offsets    []ilmodel.OffsetIndex
	names      []ilmodel.NameIndex
	metas      []ilmodel.MetaIndex

	// globals/constants translate an rhs ordinal (within the Globals or
	// Constants table respectively) to its merged GlobalIndex, for
	// rewriting AddrGlobal operands embedded in bytecode.
	globals   []ilmodel.GlobalIndex
	constants []ilmodel.GlobalIndex
}

type identifierKind int

const (
	identUnused identifierKind = iota
	identType
	identMethod
)

// merger accumulates the merged intermediate as rhs is folded into lhs.
type merger struct {
	log *zap.Logger
	out *ilmodel.Intermediate

	lhs, rhs *ilmodel.Intermediate
	rm       remap

	names     map[string]ilmodel.NameIndex
	nameKinds map[ilmodel.NameIndex]identifierKind

	typeByName      map[ilmodel.NameIndex]ilmodel.TypeIndex
	typeDefined     map[ilmodel.TypeIndex]bool
	pointerOf       map[ilmodel.TypeIndex]ilmodel.TypeIndex
	arrayOf         map[arrayKey]ilmodel.TypeIndex
	signatureTypeOf map[ilmodel.SignatureIndex]ilmodel.TypeIndex
	sigByKey        map[string]ilmodel.SignatureIndex
	offsetByKey     map[string]ilmodel.OffsetIndex
	methodByName    map[ilmodel.NameIndex]ilmodel.MethodIndex
	methodDefined   map[ilmodel.MethodIndex]bool
	globalByName    map[ilmodel.NameIndex]ilmodel.GlobalIndex
}

type arrayKey struct {
	base  ilmodel.TypeIndex
	count uint64
}

// Merge unions lhs and rhs into a single intermediate. Both inputs must be
// version-compatible, else IncompatibleIntermediate.
func Merge(lhs, rhs *ilmodel.Intermediate, log *zap.Logger) (*ilmodel.Intermediate, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !lhs.Version.Compatible(rhs.Version) {
		return nil, ilmodel.New(ilmodel.KindMerger, ilmodel.CodeIncompatibleIntermediate, nil,
			"intermediates have incompatible versions")
	}

	m := &merger{
		log: log, lhs: lhs, rhs: rhs,
		out:             cloneIntermediate(lhs),
		names:           map[string]ilmodel.NameIndex{},
		nameKinds:       map[ilmodel.NameIndex]identifierKind{},
		typeByName:      map[ilmodel.NameIndex]ilmodel.TypeIndex{},
		typeDefined:     map[ilmodel.TypeIndex]bool{},
		pointerOf:       map[ilmodel.TypeIndex]ilmodel.TypeIndex{},
		arrayOf:         map[arrayKey]ilmodel.TypeIndex{},
		signatureTypeOf: map[ilmodel.SignatureIndex]ilmodel.TypeIndex{},
		sigByKey:        map[string]ilmodel.SignatureIndex{},
		offsetByKey:     map[string]ilmodel.OffsetIndex{},
		methodByName:    map[ilmodel.NameIndex]ilmodel.MethodIndex{},
		methodDefined:   map[ilmodel.MethodIndex]bool{},
		globalByName:    map[ilmodel.NameIndex]ilmodel.GlobalIndex{},
	}
	m.seedFromLHS()

	m.rm = remap{
		types:      makeIdentityTypes(len(rhs.Types)),
		signatures: makeIdentitySignatures(len(rhs.Signatures)),
		methods:    makeIdentityMethods(len(rhs.Methods)),
		offsets:    makeIdentityOffsets(len(rhs.Offsets)),
		names:      makeIdentityNames(len(rhs.Names)),
		metas:      makeIdentityMetas(len(rhs.Metas)),
		globals:    make([]ilmodel.GlobalIndex, len(rhs.Globals.Entries)),
		constants:  make([]ilmodel.GlobalIndex, len(rhs.Constants.Entries)),
	}

	// 2. Intern rhs name identifiers (and metadata) into lhs's tables.
	for i, name := range rhs.Names {
		m.rm.names[i] = m.intern(name)
	}
	for i, meta := range rhs.Metas {
		m.rm.metas[i] = m.internMeta(meta)
	}

	// 3+4. Translate types in rhs table order; a generated type translates
	// its base first (recursively), since its translation depends on it.
	for i := range rhs.Types {
		if err := m.translateType(ilmodel.TypeIndex(i)); err != nil {
			return nil, err
		}
	}

	// 5. Translate signatures.
	for i := range rhs.Signatures {
		m.translateSignature(ilmodel.SignatureIndex(i))
	}

	// 6. Translate offsets.
	for i := range rhs.Offsets {
		m.translateOffset(ilmodel.OffsetIndex(i))
	}

	// 7. Translate globals and constants.
	if err := m.translateDataTable(&rhs.Globals, &m.out.Globals, false); err != nil {
		return nil, err
	}
	if err := m.translateDataTable(&rhs.Constants, &m.out.Constants, true); err != nil {
		return nil, err
	}

	// 8. Translate methods, then their bytecode bodies.
	for i := range rhs.Methods {
		if err := m.translateMethod(ilmodel.MethodIndex(i)); err != nil {
			return nil, err
		}
	}
	for i := range rhs.Methods {
		m.translateBytecode(ilmodel.MethodIndex(i))
	}

	m.log.Debug("merged intermediates",
		zap.Int("lhs_types", len(lhs.Types)), zap.Int("rhs_types", len(rhs.Types)),
		zap.Int("merged_types", len(m.out.Types)))
	return m.out, nil
}

func cloneIntermediate(src *ilmodel.Intermediate) *ilmodel.Intermediate {
	out := ilmodel.NewIntermediate()
	out.Version = src.Version
	out.Types = append([]ilmodel.Type(nil), src.Types...)
	out.Signatures = append([]ilmodel.Signature(nil), src.Signatures...)
	out.Methods = append([]ilmodel.Method(nil), src.Methods...)
	out.Offsets = append([]ilmodel.FieldOffset(nil), src.Offsets...)
	out.Names = append([]string(nil), src.Names...)
	out.Metas = append([]ilmodel.MetaEntry(nil), src.Metas...)
	out.Globals = ilmodel.DataTable{
		Entries: append([]ilmodel.DataEntry(nil), src.Globals.Entries...),
		Bytes:   append([]byte(nil), src.Globals.Bytes...),
	}
	out.Constants = ilmodel.DataTable{
		Entries: append([]ilmodel.DataEntry(nil), src.Constants.Entries...),
		Bytes:   append([]byte(nil), src.Constants.Bytes...),
	}
	return out
}

func makeIdentityTypes(n int) []ilmodel.TypeIndex {
	out := make([]ilmodel.TypeIndex, n)
	for i := range out {
		out[i] = ilmodel.InvalidType
	}
	return out
}
func makeIdentitySignatures(n int) []ilmodel.SignatureIndex {
	out := make([]ilmodel.SignatureIndex, n)
	for i := range out {
		out[i] = ilmodel.InvalidSignature
	}
	return out
}
func makeIdentityMethods(n int) []ilmodel.MethodIndex {
	out := make([]ilmodel.MethodIndex, n)
	for i := range out {
		out[i] = ilmodel.InvalidMethod
	}
	return out
}
func makeIdentityOffsets(n int) []ilmodel.OffsetIndex {
	out := make([]ilmodel.OffsetIndex, n)
	for i := range out {
		out[i] = ilmodel.InvalidOffset
	}
	return out
}
func makeIdentityNames(n int) []ilmodel.NameIndex {
	out := make([]ilmodel.NameIndex, n)
	for i := range out {
		out[i] = ilmodel.InvalidName
	}
	return out
}
func makeIdentityMetas(n int) []ilmodel.MetaIndex {
	out := make([]ilmodel.MetaIndex, n)
	for i := range out {
		out[i] = ilmodel.InvalidMeta
	}
	return out
}

// seedFromLHS populates the merger's by-name/by-structure caches from the
// (cloned) lhs intermediate so rhs entities can be looked up and deduped
// against it.
func (m *merger) seedFromLHS() {
	for i, n := range m.out.Names {
		idx := ilmodel.NameIndex(i)
		m.names[n] = idx
	}
	for i := range m.out.Types {
		t := &m.out.Types[i]
		idx := ilmodel.TypeIndex(i)
		if t.Name.Valid() {
			m.typeByName[t.Name] = idx
			m.nameKinds[t.Name] = identType
		}
		if !t.IsGenerated() && (len(t.Fields) > 0 || t.Size > 0) {
			m.typeDefined[idx] = true
		}
		switch {
		case t.Flags&ilmodel.FlagPointer != 0 && t.Generated != nil:
			m.pointerOf[t.Generated.Pointee] = idx
		case t.Flags&ilmodel.FlagArray != 0 && t.Generated != nil:
			m.arrayOf[arrayKey{base: t.Generated.Element, count: t.Generated.Count}] = idx
		case t.Flags&ilmodel.FlagSignature != 0 && t.Generated != nil:
			m.signatureTypeOf[t.Generated.Signature] = idx
		}
	}
	for i := range m.out.Signatures {
		s := &m.out.Signatures[i]
		key := s.Key()
		m.sigByKey[key] = ilmodel.SignatureIndex(i)
	}
	for i := range m.out.Offsets {
		o := &m.out.Offsets[i]
		addr := ilmodel.FieldAddress{Root: o.Root, Chain: o.Chain}
		m.offsetByKey[addr.Key()] = ilmodel.OffsetIndex(i)
	}
	for i := range m.out.Methods {
		mt := &m.out.Methods[i]
		idx := ilmodel.MethodIndex(i)
		if mt.Name.Valid() {
			m.methodByName[mt.Name] = idx
			m.nameKinds[mt.Name] = identMethod
		}
		if len(mt.Bytecode) > 0 {
			m.methodDefined[idx] = true
		}
	}
	for i, e := range m.out.Globals.Entries {
		m.globalByName[e.Name] = ilmodel.NewGlobalIndex(uint32(i), false)
	}
	for i, e := range m.out.Constants.Entries {
		m.globalByName[e.Name] = ilmodel.NewGlobalIndex(uint32(i), true)
	}
}

func (m *merger) intern(name string) ilmodel.NameIndex {
	if idx, ok := m.names[name]; ok {
		return idx
	}
	idx := ilmodel.NameIndex(len(m.out.Names))
	m.out.Names = append(m.out.Names, name)
	m.names[name] = idx
	return idx
}

func (m *merger) internMeta(meta ilmodel.MetaEntry) ilmodel.MetaIndex {
	idx := ilmodel.MetaIndex(len(m.out.Metas))
	m.out.Metas = append(m.out.Metas, meta)
	return idx
}

func (m *merger) rhsName(i ilmodel.NameIndex) ilmodel.NameIndex {
	if !i.Valid() {
		return ilmodel.InvalidName
	}
	return m.rm.names[i]
}

// translateType implements steps 3-4: non-generated types merge by name
// with a redefinition check; generated types translate their base first
// and then dedup structurally.
func (m *merger) translateType(rhsIdx ilmodel.TypeIndex) error {
	if m.rm.types[rhsIdx].Valid() {
		return nil // already translated (recursive dependency)
	}
	if int(rhsIdx) < ilmodel.NumBaseTypes {
		m.rm.types[rhsIdx] = rhsIdx // base types share fixed indices
		return nil
	}
	t := m.rhs.Types[rhsIdx]

	if t.IsGenerated() {
		return m.translateGeneratedType(rhsIdx, t)
	}

	name := m.rhsName(t.Name)
	if existing, ok := m.typeByName[name]; ok && name.Valid() {
		rhsHasBody := len(t.Fields) > 0 || t.Size > 0
		lhsHasBody := m.typeDefined[existing]
		if rhsHasBody && lhsHasBody {
			return ilmodel.New(ilmodel.KindMerger, ilmodel.CodeTypeRedefinition, &t.Meta,
				"type %q is defined on both sides of the merge", m.out.Names[name])
		}
		m.rm.types[rhsIdx] = existing
		if rhsHasBody && !lhsHasBody {
			m.copyTypeBody(existing, t)
			m.typeDefined[existing] = true
		}
		return nil
	}
	if kind, ok := m.nameKinds[name]; ok && kind != identUnused && kind != identType {
		return ilmodel.New(ilmodel.KindMerger, ilmodel.CodeIdentifierTypeMismatch, &t.Meta,
			"identifier %q already denotes a non-type entity", m.out.Names[name])
	}

	newIdx := ilmodel.TypeIndex(len(m.out.Types))
	nt := ilmodel.Type{Index: newIdx, Name: name, Flags: t.Flags, Size: t.Size, Meta: t.Meta, PointerTo: ilmodel.InvalidType}
	m.out.Types = append(m.out.Types, nt)
	m.rm.types[rhsIdx] = newIdx
	if name.Valid() {
		m.typeByName[name] = newIdx
		m.nameKinds[name] = identType
	}
	if len(t.Fields) > 0 || t.Size > 0 {
		m.copyTypeBody(newIdx, t)
		m.typeDefined[newIdx] = true
	}
	return nil
}

func (m *merger) copyTypeBody(dst ilmodel.TypeIndex, src ilmodel.Type) {
	fields := make([]ilmodel.Field, len(src.Fields))
	for i, f := range src.Fields {
		fields[i] = ilmodel.Field{Name: m.rhsName(f.Name), Type: ilmodel.InvalidType, Offset: f.Offset}
		// Field types may reference a type not yet translated (forward
		// reference within the same struct graph); resolve eagerly.
		if err := m.translateType(f.Type); err == nil {
			fields[i].Type = m.rm.types[f.Type]
		}
	}
	t := &m.out.Types[dst]
	t.Fields = fields
	t.Size = src.Size
	t.Flags |= src.Flags &^ ilmodel.FlagExternal
}

func (m *merger) translateGeneratedType(rhsIdx ilmodel.TypeIndex, t ilmodel.Type) error {
	switch t.Generated.Kind {
	case ilmodel.GeneratedPointer:
		if err := m.translateType(t.Generated.Pointee); err != nil {
			return err
		}
		base := m.rm.types[t.Generated.Pointee]
		if idx, ok := m.pointerOf[base]; ok {
			m.rm.types[rhsIdx] = idx
			return nil
		}
		idx := ilmodel.TypeIndex(len(m.out.Types))
		m.out.Types = append(m.out.Types, ilmodel.Type{
			Index: idx, Flags: ilmodel.FlagPointer, PointerTo: ilmodel.InvalidType,
			Generated: &ilmodel.Generated{Kind: ilmodel.GeneratedPointer, Pointee: base},
		})
		m.pointerOf[base] = idx
		m.rm.types[rhsIdx] = idx
	case ilmodel.GeneratedArray:
		if err := m.translateType(t.Generated.Element); err != nil {
			return err
		}
		base := m.rm.types[t.Generated.Element]
		key := arrayKey{base: base, count: t.Generated.Count}
		if idx, ok := m.arrayOf[key]; ok {
			m.rm.types[rhsIdx] = idx
			return nil
		}
		idx := ilmodel.TypeIndex(len(m.out.Types))
		m.out.Types = append(m.out.Types, ilmodel.Type{
			Index: idx, Flags: ilmodel.FlagArray, PointerTo: ilmodel.InvalidType,
			Generated: &ilmodel.Generated{Kind: ilmodel.GeneratedArray, Element: base, Count: t.Generated.Count},
		})
		m.arrayOf[key] = idx
		m.rm.types[rhsIdx] = idx
	case ilmodel.GeneratedSignature:
		newSig := m.translateSignature(t.Generated.Signature)
		if idx, ok := m.signatureTypeOf[newSig]; ok {
			m.rm.types[rhsIdx] = idx
			return nil
		}
		idx := ilmodel.TypeIndex(len(m.out.Types))
		m.out.Types = append(m.out.Types, ilmodel.Type{
			Index: idx, Flags: ilmodel.FlagSignature, PointerTo: ilmodel.InvalidType,
			Generated: &ilmodel.Generated{Kind: ilmodel.GeneratedSignature, Signature: newSig},
		})
		m.signatureTypeOf[newSig] = idx
		m.rm.types[rhsIdx] = idx
		m.out.Signatures[newSig].SignatureType = idx
	}
	return nil
}

// translateSignature implements step 5: translate return/params, dedup by
// structural key. Safe to call multiple times for the same rhs index.
func (m *merger) translateSignature(rhsIdx ilmodel.SignatureIndex) ilmodel.SignatureIndex {
	if m.rm.signatures[rhsIdx].Valid() {
		return m.rm.signatures[rhsIdx]
	}
	s := m.rhs.Signatures[rhsIdx]
	m.translateType(s.Return)
	ret := m.rm.types[s.Return]
	params := make([]ilmodel.TypeIndex, len(s.Params))
	for i, p := range s.Params {
		m.translateType(p.Type)
		params[i] = m.rm.types[p.Type]
	}
	key := ilmodel.SignatureKey(ret, params)
	if idx, ok := m.sigByKey[key]; ok {
		m.rm.signatures[rhsIdx] = idx
		return idx
	}
	idx := ilmodel.SignatureIndex(len(m.out.Signatures))
	out := ilmodel.Signature{Index: idx, Return: ret, SignatureType: ilmodel.InvalidType, ParamBytes: s.ParamBytes}
	for i, p := range s.Params {
		out.Params = append(out.Params, ilmodel.Parameter{Type: params[i], Offset: p.Offset})
	}
	m.out.Signatures = append(m.out.Signatures, out)
	m.sigByKey[key] = idx
	m.rm.signatures[rhsIdx] = idx
	return idx
}

// translateOffset implements step 6: translate the root type, rename the
// field-name chain, then dedup by structural key.
func (m *merger) translateOffset(rhsIdx ilmodel.OffsetIndex) {
	o := m.rhs.Offsets[rhsIdx]
	m.translateType(o.Root)
	root := m.rm.types[o.Root]
	chain := make([]ilmodel.NameIndex, len(o.Chain))
	for i, n := range o.Chain {
		chain[i] = m.rhsName(n)
	}
	addr := ilmodel.FieldAddress{Root: root, Chain: chain}
	key := addr.Key()
	if idx, ok := m.offsetByKey[key]; ok {
		m.rm.offsets[rhsIdx] = idx
		return
	}
	idx := ilmodel.OffsetIndex(len(m.out.Offsets))
	m.out.Offsets = append(m.out.Offsets, ilmodel.FieldOffset{
		Index: idx, Root: root, Chain: chain, ResultType: ilmodel.InvalidType, ByteOffset: -1,
	})
	m.offsetByKey[key] = idx
	m.rm.offsets[rhsIdx] = idx
}

// translateDataTable implements step 7: duplicate names are rejected, bytes
// are copied verbatim and relocated to the destination table's byte offset.
func (m *merger) translateDataTable(src *ilmodel.DataTable, dst *ilmodel.DataTable, isConstant bool) error {
	rmOrdinals := &m.rm.globals
	if isConstant {
		rmOrdinals = &m.rm.constants
	}
	for i, e := range src.Entries {
		name := m.rhsName(e.Name)
		if _, exists := m.globalByName[name]; exists {
			return ilmodel.New(ilmodel.KindMerger, ilmodel.CodeGlobalRedefinition, nil,
				"global %q is defined on both sides of the merge", m.out.Names[name])
		}
		m.translateType(e.Type)
		typ := m.rm.types[e.Type]

		var init []byte
		if e.Offset >= 0 {
			end := e.Offset + entrySize(src, e)
			if end > int64(len(src.Bytes)) {
				end = int64(len(src.Bytes))
			}
			init = append([]byte(nil), src.Bytes[e.Offset:end]...)
		}
		ordinal := uint32(len(dst.Entries))
		dst.Append(name, typ, init)
		gi := ilmodel.NewGlobalIndex(ordinal, isConstant)
		m.globalByName[name] = gi
		(*rmOrdinals)[i] = gi
	}
	return nil
}

// entrySize computes one data-table entry's byte span by looking at the
// next entry's offset, or the end of the buffer for the last entry.
func entrySize(table *ilmodel.DataTable, e ilmodel.DataEntry) int64 {
	next := int64(len(table.Bytes))
	for _, other := range table.Entries {
		if other.Offset > e.Offset && other.Offset < next {
			next = other.Offset
		}
	}
	return next - e.Offset
}

// translateMethod implements step 8's declaration half: merge by name with
// at most one body, same as types.
func (m *merger) translateMethod(rhsIdx ilmodel.MethodIndex) error {
	if m.rm.methods[rhsIdx].Valid() {
		return nil
	}
	mt := m.rhs.Methods[rhsIdx]
	name := m.rhsName(mt.Name)

	if existing, ok := m.methodByName[name]; ok && name.Valid() {
		rhsHasBody := len(mt.Bytecode) > 0 || mt.External
		lhsHasBody := m.methodDefined[existing]
		if rhsHasBody && lhsHasBody {
			return ilmodel.New(ilmodel.KindMerger, ilmodel.CodeMethodRedefinition, &mt.Meta,
				"method %q is defined on both sides of the merge", m.out.Names[name])
		}
		m.rm.methods[rhsIdx] = existing
		if rhsHasBody {
			m.methodDefined[existing] = true
		}
		return nil
	}
	if kind, ok := m.nameKinds[name]; ok && kind != identUnused && kind != identMethod {
		return ilmodel.New(ilmodel.KindMerger, ilmodel.CodeIdentifierTypeMismatch, &mt.Meta,
			"identifier %q already denotes a non-method entity", m.out.Names[name])
	}

	m.translateSignature(mt.Signature)
	newIdx := ilmodel.MethodIndex(len(m.out.Methods))
	m.out.Methods = append(m.out.Methods, ilmodel.Method{
		Index: newIdx, Name: name, External: mt.External,
		Signature: m.rm.signatures[mt.Signature], Meta: mt.Meta,
	})
	m.rm.methods[rhsIdx] = newIdx
	if name.Valid() {
		m.methodByName[name] = newIdx
		m.nameKinds[name] = identMethod
	}
	if len(mt.Bytecode) > 0 || mt.External {
		m.methodDefined[newIdx] = true
	}
	return nil
}

// translateBytecode implements step 8's bytecode-walk half: every embedded
// method-call index, global identifier and offset index is translated
// through the remap tables; stackvar types and the signature index too.
func (m *merger) translateBytecode(rhsIdx ilmodel.MethodIndex) {
	mt := m.rhs.Methods[rhsIdx]
	newIdx := m.rm.methods[rhsIdx]
	out := &m.out.Methods[newIdx]
	if len(out.Bytecode) > 0 || mt.External {
		return // already has a body from the other side, or has none at all
	}

	stackVars := make([]ilmodel.StackVar, len(mt.StackVars))
	for i, sv := range mt.StackVars {
		m.translateType(sv.Type)
		stackVars[i] = ilmodel.StackVar{Type: m.rm.types[sv.Type], Offset: sv.Offset}
	}
	if mt.Signature.Valid() {
		out.Signature = m.translateSignature(mt.Signature)
	}
	out.StackVars = stackVars
	out.StackBytes = mt.StackBytes
	out.Labels = append([]int64(nil), mt.Labels...)
	out.Bytecode = translateOpcodeStream(m, mt.Bytecode)
}

// translateOpcodeStream rewrites the index fields embedded in a bytecode
// stream (call targets, global/constant ordinals, field-offset indices, and
// anonymous-constant base types) while leaving opaque payload bytes (literal
// bytes, branch-target byte offsets, subscript offsets) untouched, since
// those need no remapping: branch targets stay relative to the method's own
// bytecode, which a merge never reshapes.
//
// Decoding mirrors the generator's MethodWriter encoding exactly, so the
// stream can be walked generically rather
// than re-deriving each opcode's operand shape here.
func translateOpcodeStream(m *merger, code []byte) []byte {
	var out []byte
	err := ilmodel.Walk(code, func(in ilmodel.Instruction) error {
		if in.Op == ilmodel.OpCall || in.Op == ilmodel.OpCallV {
			in.CallMethod = m.rm.methods[in.CallMethod]
		}
		for i, a := range in.Addrs {
			in.Addrs[i] = m.rewriteAddress(a)
		}
		out = append(out, in.Encode()...)
		return nil
	})
	if err != nil {
		// A malformed or truncated stream here means the rhs intermediate
		// itself is inconsistent; the merger has no better recovery than to
		// leave the body untranslated and let the linker reject it.
		m.log.Error("failed to decode method bytecode during merge", zap.Error(err))
		return append([]byte(nil), code...)
	}
	return out
}

// rewriteAddress translates the index fields of one address operand that
// cross from the rhs index space into the merged one: a named global or
// constant's table ordinal, an anonymous constant literal's base type, and
// a field-modifier's offset-table index. Stackvar and parameter indices are
// local to the method itself and never need translating.
func (m *merger) rewriteAddress(a ilmodel.Address) ilmodel.Address {
	switch a.Type {
	case ilmodel.AddrGlobal:
		gi := ilmodel.GlobalIndex(a.Index)
		var translated ilmodel.GlobalIndex
		if gi.IsConstant() {
			translated = m.rm.constants[gi.Ordinal()]
		} else {
			translated = m.rm.globals[gi.Ordinal()]
		}
		a.Index = uint32(translated)
	case ilmodel.AddrConstant:
		a.Index = uint32(m.rm.types[ilmodel.TypeIndex(a.Index)])
	}
	if a.Modifier == ilmodel.ModifierDirectField || a.Modifier == ilmodel.ModifierIndirectField {
		a.OffsetIdx = m.rm.offsets[a.OffsetIdx]
	}
	return a
}
