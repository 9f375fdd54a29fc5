package ilmodel

// MetaEntry is one entry of the shared file/line metadata table.
type MetaEntry struct {
	File string
	Line int
}

// Intermediate is the generator/merger's working form of a module: declared
// and defined types, signatures, methods, field addresses, globals and
// constants, with sizes and offsets not yet computed. It is mergeable with
// another Intermediate and is the linker's sole input.
type Intermediate struct {
	Version Version

	Types      []Type
	Signatures []Signature
	Methods    []Method
	Offsets    []FieldOffset // field *addresses* pre-link; reuses FieldOffset with ResultType/ByteOffset unset

	Names []string
	Metas []MetaEntry

	Globals   DataTable
	Constants DataTable
}

// NewIntermediate returns an empty intermediate stamped with the host
// toolchain version.
func NewIntermediate() *Intermediate {
	return &Intermediate{Version: HostVersion}
}

// Serialize encodes the intermediate as the versioned, magic-wrapped binary
// form used to pass intermediates between toolchain stages.
func (im *Intermediate) Serialize() []byte {
	var e encoder
	e.u32(MagicIntermediate)
	e.buf = append(e.buf, im.Version.encode()...)

	e.u32(uint32(len(im.Types)))
	for _, t := range im.Types {
		encodeType(&e, t)
	}

	e.u32(uint32(len(im.Signatures)))
	for _, s := range im.Signatures {
		encodeSignature(&e, s)
	}

	e.u32(uint32(len(im.Methods)))
	for _, m := range im.Methods {
		encodeMethod(&e, m)
	}

	e.u32(uint32(len(im.Offsets)))
	for _, o := range im.Offsets {
		encodeFieldAddress(&e, o)
	}

	e.u32(uint32(len(im.Names)))
	for _, n := range im.Names {
		e.str(n)
	}

	e.u32(uint32(len(im.Metas)))
	for _, m := range im.Metas {
		e.str(m.File)
		e.u32(uint32(m.Line))
	}

	encodeDataTable(&e, im.Globals)
	encodeDataTable(&e, im.Constants)

	e.u32(MagicFooter)
	return e.buf
}

// DeserializeIntermediate is the inverse of (*Intermediate).Serialize.
func DeserializeIntermediate(data []byte) (*Intermediate, error) {
	if err := ValidateIntermediateHeader(data); err != nil {
		return nil, err
	}
	d := decoder{buf: data, pos: 4}
	if d.remaining() < versionSize {
		return nil, New(KindMerger, CodeInvalidIntermediate, nil, "truncated version block")
	}
	version := decodeVersion(d.buf[d.pos : d.pos+versionSize])
	d.pos += versionSize

	im := &Intermediate{Version: version}

	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	im.Types = make([]Type, n)
	for i := range im.Types {
		t, err := decodeType(&d)
		if err != nil {
			return nil, err
		}
		im.Types[i] = t
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	im.Signatures = make([]Signature, n)
	for i := range im.Signatures {
		s, err := decodeSignature(&d)
		if err != nil {
			return nil, err
		}
		im.Signatures[i] = s
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	im.Methods = make([]Method, n)
	for i := range im.Methods {
		m, err := decodeMethod(&d)
		if err != nil {
			return nil, err
		}
		im.Methods[i] = m
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	im.Offsets = make([]FieldOffset, n)
	for i := range im.Offsets {
		o, err := decodeFieldAddress(&d)
		if err != nil {
			return nil, err
		}
		im.Offsets[i] = o
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	im.Names = make([]string, n)
	for i := range im.Names {
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		im.Names[i] = s
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	im.Metas = make([]MetaEntry, n)
	for i := range im.Metas {
		f, err := d.str()
		if err != nil {
			return nil, err
		}
		line, err := d.u32()
		if err != nil {
			return nil, err
		}
		im.Metas[i] = MetaEntry{File: f, Line: int(line)}
	}

	im.Globals, err = decodeDataTable(&d)
	if err != nil {
		return nil, err
	}
	im.Constants, err = decodeDataTable(&d)
	if err != nil {
		return nil, err
	}

	return im, nil
}

func encodeDataTable(e *encoder, t DataTable) {
	e.u32(uint32(len(t.Entries)))
	for _, ent := range t.Entries {
		e.u32(uint32(ent.Name))
		e.u32(uint32(ent.Type))
		e.i64(ent.Offset)
	}
	e.bytes(t.Bytes)
}

func decodeDataTable(d *decoder) (DataTable, error) {
	n, err := d.u32()
	if err != nil {
		return DataTable{}, err
	}
	t := DataTable{Entries: make([]DataEntry, n)}
	for i := range t.Entries {
		name, err := d.u32()
		if err != nil {
			return DataTable{}, err
		}
		typ, err := d.u32()
		if err != nil {
			return DataTable{}, err
		}
		off, err := d.i64()
		if err != nil {
			return DataTable{}, err
		}
		t.Entries[i] = DataEntry{Name: NameIndex(name), Type: TypeIndex(typ), Offset: off}
	}
	bytes, err := d.bytes()
	if err != nil {
		return DataTable{}, err
	}
	t.Bytes = append([]byte(nil), bytes...)
	return t, nil
}

func encodeType(e *encoder, t Type) {
	e.u32(uint32(t.Index))
	e.u32(uint32(t.Name))
	e.u32(uint32(t.Flags))
	e.i64(t.Size)
	e.u32(uint32(t.PointerTo))
	e.str(t.Meta.File)
	e.u32(uint32(t.Meta.Line))

	if t.Generated != nil {
		e.u8(1)
		e.u8(uint8(t.Generated.Kind))
		e.u32(uint32(t.Generated.Pointee))
		e.i64(t.Generated.PointeeSize)
		e.u32(uint32(t.Generated.Element))
		e.u64(t.Generated.Count)
		e.u32(uint32(t.Generated.Signature))
	} else {
		e.u8(0)
	}

	e.u32(uint32(len(t.Fields)))
	for _, f := range t.Fields {
		e.u32(uint32(f.Name))
		e.u32(uint32(f.Type))
		e.i64(f.Offset)
	}
}

func decodeType(d *decoder) (Type, error) {
	var t Type
	idx, err := d.u32()
	if err != nil {
		return t, err
	}
	name, err := d.u32()
	if err != nil {
		return t, err
	}
	flags, err := d.u32()
	if err != nil {
		return t, err
	}
	size, err := d.i64()
	if err != nil {
		return t, err
	}
	ptrTo, err := d.u32()
	if err != nil {
		return t, err
	}
	file, err := d.str()
	if err != nil {
		return t, err
	}
	line, err := d.u32()
	if err != nil {
		return t, err
	}
	t = Type{
		Index: TypeIndex(idx), Name: NameIndex(name), Flags: TypeFlag(flags),
		Size: size, PointerTo: TypeIndex(ptrTo), Meta: Meta{File: file, Line: int(line)},
	}

	hasGen, err := d.u8()
	if err != nil {
		return t, err
	}
	if hasGen == 1 {
		kind, err := d.u8()
		if err != nil {
			return t, err
		}
		pointee, err := d.u32()
		if err != nil {
			return t, err
		}
		pointeeSize, err := d.i64()
		if err != nil {
			return t, err
		}
		elem, err := d.u32()
		if err != nil {
			return t, err
		}
		count, err := d.u64()
		if err != nil {
			return t, err
		}
		sig, err := d.u32()
		if err != nil {
			return t, err
		}
		t.Generated = &Generated{
			Kind: GeneratedKind(kind), Pointee: TypeIndex(pointee), PointeeSize: pointeeSize,
			Element: TypeIndex(elem), Count: count, Signature: SignatureIndex(sig),
		}
	}

	nf, err := d.u32()
	if err != nil {
		return t, err
	}
	t.Fields = make([]Field, nf)
	for i := range t.Fields {
		fn, err := d.u32()
		if err != nil {
			return t, err
		}
		ft, err := d.u32()
		if err != nil {
			return t, err
		}
		fo, err := d.i64()
		if err != nil {
			return t, err
		}
		t.Fields[i] = Field{Name: NameIndex(fn), Type: TypeIndex(ft), Offset: fo}
	}
	return t, nil
}

func encodeSignature(e *encoder, s Signature) {
	e.u32(uint32(s.Index))
	e.u32(uint32(s.Return))
	e.i64(s.ParamBytes)
	e.u32(uint32(s.SignatureType))
	e.u32(uint32(len(s.Params)))
	for _, p := range s.Params {
		e.u32(uint32(p.Type))
		e.i64(p.Offset)
	}
}

func decodeSignature(d *decoder) (Signature, error) {
	var s Signature
	idx, err := d.u32()
	if err != nil {
		return s, err
	}
	ret, err := d.u32()
	if err != nil {
		return s, err
	}
	pb, err := d.i64()
	if err != nil {
		return s, err
	}
	st, err := d.u32()
	if err != nil {
		return s, err
	}
	s = Signature{Index: SignatureIndex(idx), Return: TypeIndex(ret), ParamBytes: pb, SignatureType: TypeIndex(st)}
	n, err := d.u32()
	if err != nil {
		return s, err
	}
	s.Params = make([]Parameter, n)
	for i := range s.Params {
		t, err := d.u32()
		if err != nil {
			return s, err
		}
		off, err := d.i64()
		if err != nil {
			return s, err
		}
		s.Params[i] = Parameter{Type: TypeIndex(t), Offset: off}
	}
	return s, nil
}

func encodeMethod(e *encoder, m Method) {
	e.u32(uint32(m.Index))
	e.u32(uint32(m.Name))
	if m.External {
		e.u8(1)
	} else {
		e.u8(0)
	}
	e.u32(uint32(m.Signature))
	e.bytes(m.Bytecode)
	e.i64(m.StackBytes)
	e.str(m.Meta.File)
	e.u32(uint32(m.Meta.Line))

	e.u32(uint32(len(m.Labels)))
	for _, l := range m.Labels {
		e.i64(l)
	}
	e.u32(uint32(len(m.StackVars)))
	for _, sv := range m.StackVars {
		e.u32(uint32(sv.Type))
		e.i64(sv.Offset)
	}
}

func decodeMethod(d *decoder) (Method, error) {
	var m Method
	idx, err := d.u32()
	if err != nil {
		return m, err
	}
	name, err := d.u32()
	if err != nil {
		return m, err
	}
	ext, err := d.u8()
	if err != nil {
		return m, err
	}
	sig, err := d.u32()
	if err != nil {
		return m, err
	}
	bc, err := d.bytes()
	if err != nil {
		return m, err
	}
	sb, err := d.i64()
	if err != nil {
		return m, err
	}
	file, err := d.str()
	if err != nil {
		return m, err
	}
	line, err := d.u32()
	if err != nil {
		return m, err
	}
	m = Method{
		Index: MethodIndex(idx), Name: NameIndex(name), External: ext == 1,
		Signature: SignatureIndex(sig), Bytecode: append([]byte(nil), bc...),
		StackBytes: sb, Meta: Meta{File: file, Line: int(line)},
	}

	nl, err := d.u32()
	if err != nil {
		return m, err
	}
	m.Labels = make([]int64, nl)
	for i := range m.Labels {
		v, err := d.i64()
		if err != nil {
			return m, err
		}
		m.Labels[i] = v
	}

	nsv, err := d.u32()
	if err != nil {
		return m, err
	}
	m.StackVars = make([]StackVar, nsv)
	for i := range m.StackVars {
		t, err := d.u32()
		if err != nil {
			return m, err
		}
		off, err := d.i64()
		if err != nil {
			return m, err
		}
		m.StackVars[i] = StackVar{Type: TypeIndex(t), Offset: off}
	}
	return m, nil
}

func encodeFieldAddress(e *encoder, o FieldOffset) {
	e.u32(uint32(o.Index))
	e.u32(uint32(o.Root))
	e.u32(uint32(o.ResultType))
	e.i64(o.ByteOffset)
	chain := make([]uint32, len(o.Chain))
	for i, n := range o.Chain {
		chain[i] = uint32(n)
	}
	e.u32s(chain)
}

func decodeFieldAddress(d *decoder) (FieldOffset, error) {
	idx, err := d.u32()
	if err != nil {
		return FieldOffset{}, err
	}
	root, err := d.u32()
	if err != nil {
		return FieldOffset{}, err
	}
	result, err := d.u32()
	if err != nil {
		return FieldOffset{}, err
	}
	byteOff, err := d.i64()
	if err != nil {
		return FieldOffset{}, err
	}
	chain, err := d.u32s()
	if err != nil {
		return FieldOffset{}, err
	}
	names := make([]NameIndex, len(chain))
	for i, c := range chain {
		names[i] = NameIndex(c)
	}
	return FieldOffset{
		Index: OffsetIndex(idx), Root: TypeIndex(root), ResultType: TypeIndex(result),
		ByteOffset: byteOff, Chain: names,
	}, nil
}
