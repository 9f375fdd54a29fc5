package ilmodel

// Assembly is the linker's output: the same model as Intermediate but with
// every field offset and type size computed, globals laid out, constants
// finalized, and a runtime hash identifying the host binding surface the
// assembly was linked against.
type Assembly struct {
	Version Version

	Types      []Type
	Signatures []Signature
	Methods    []Method
	Offsets    []FieldOffset // fully resolved: ResultType/ByteOffset populated

	Names []string
	Metas []MetaEntry

	Globals   DataTable
	Constants DataTable

	Main        MethodIndex
	RuntimeHash uint64
	WordSize    int
}

// Serialize encodes the assembly as a table-of-contents of self-relative
// (offset, length) blocks followed by the tables themselves, so the whole
// blob is relocatable in memory (spec's "Assembly binary layout").
func (as *Assembly) Serialize() []byte {
	// Encode each table independently first so we know their lengths before
	// writing the table-of-contents.
	types := encodeTable(func(e *encoder) {
		e.u32(uint32(len(as.Types)))
		for _, t := range as.Types {
			encodeType(e, t)
		}
	})
	sigs := encodeTable(func(e *encoder) {
		e.u32(uint32(len(as.Signatures)))
		for _, s := range as.Signatures {
			encodeSignature(e, s)
		}
	})
	methods := encodeTable(func(e *encoder) {
		e.u32(uint32(len(as.Methods)))
		for _, m := range as.Methods {
			encodeMethod(e, m)
		}
	})
	offsets := encodeTable(func(e *encoder) {
		e.u32(uint32(len(as.Offsets)))
		for _, o := range as.Offsets {
			encodeFieldAddress(e, o)
		}
	})
	globals := encodeTable(func(e *encoder) { encodeDataTable(e, as.Globals) })
	constants := encodeTable(func(e *encoder) { encodeDataTable(e, as.Constants) })
	names := encodeTable(func(e *encoder) {
		e.u32(uint32(len(as.Names)))
		for _, n := range as.Names {
			e.str(n)
		}
	})
	metas := encodeTable(func(e *encoder) {
		e.u32(uint32(len(as.Metas)))
		for _, m := range as.Metas {
			e.str(m.File)
			e.u32(uint32(m.Line))
		}
	})

	tables := [][]byte{types, sigs, methods, offsets, globals, constants, names, metas}

	var e encoder
	e.u32(MagicAssembly)
	e.buf = append(e.buf, as.Version.encode()...)
	e.u32(uint32(as.Main))
	e.u64(as.RuntimeHash)
	e.u32(uint32(as.WordSize))

	// Table-of-contents: one self-relative (offset, length) pair per table,
	// offsets measured from the start of the payload area (right after the
	// TOC) so the blob can be relocated as a whole.
	tocStart := len(e.buf)
	tocSize := len(tables) * blockSize
	payloadStart := tocStart + tocSize

	cursor := payloadStart
	for range tables {
		e.u32(0) // placeholder offset
		e.u32(0) // placeholder length
	}
	for i, t := range tables {
		b := block{Offset: uint32(cursor - payloadStart), Length: uint32(len(t))}
		b.encode(e.buf[tocStart+i*blockSize:])
		e.buf = append(e.buf, t...)
		cursor += len(t)
	}

	e.u32(MagicFooter)
	return e.buf
}

// encodeTable runs fn against a fresh encoder and returns its bytes.
func encodeTable(fn func(e *encoder)) []byte {
	var e encoder
	fn(&e)
	return e.buf
}

// DeserializeAssembly is the inverse of (*Assembly).Serialize.
func DeserializeAssembly(data []byte) (*Assembly, error) {
	if err := ValidateAssemblyHeader(data); err != nil {
		return nil, err
	}
	d := decoder{buf: data, pos: 4}
	if d.remaining() < versionSize {
		return nil, New(KindRuntime, CodeInvalidAssembly, nil, "truncated version block")
	}
	version := decodeVersion(d.buf[d.pos : d.pos+versionSize])
	d.pos += versionSize

	as := &Assembly{Version: version}

	mainIdx, err := d.u32()
	if err != nil {
		return nil, err
	}
	as.Main = MethodIndex(mainIdx)

	hash, err := d.u64()
	if err != nil {
		return nil, err
	}
	as.RuntimeHash = hash

	wordSize, err := d.u32()
	if err != nil {
		return nil, err
	}
	as.WordSize = int(wordSize)

	const numTables = 8
	payloadStart := d.pos + numTables*blockSize
	blocks := make([]block, numTables)
	for i := range blocks {
		if err := d.need(blockSize); err != nil {
			return nil, err
		}
		blocks[i] = decodeBlock(d.buf[d.pos:])
		d.pos += blockSize
	}

	tableBytes := func(i int) []byte {
		b := blocks[i]
		start := payloadStart + int(b.Offset)
		return data[start : start+int(b.Length)]
	}

	td := decoder{buf: tableBytes(0)}
	n, err := td.u32()
	if err != nil {
		return nil, err
	}
	as.Types = make([]Type, n)
	for i := range as.Types {
		t, err := decodeType(&td)
		if err != nil {
			return nil, err
		}
		as.Types[i] = t
	}

	sd := decoder{buf: tableBytes(1)}
	n, err = sd.u32()
	if err != nil {
		return nil, err
	}
	as.Signatures = make([]Signature, n)
	for i := range as.Signatures {
		s, err := decodeSignature(&sd)
		if err != nil {
			return nil, err
		}
		as.Signatures[i] = s
	}

	md := decoder{buf: tableBytes(2)}
	n, err = md.u32()
	if err != nil {
		return nil, err
	}
	as.Methods = make([]Method, n)
	for i := range as.Methods {
		m, err := decodeMethod(&md)
		if err != nil {
			return nil, err
		}
		as.Methods[i] = m
	}

	od := decoder{buf: tableBytes(3)}
	n, err = od.u32()
	if err != nil {
		return nil, err
	}
	as.Offsets = make([]FieldOffset, n)
	for i := range as.Offsets {
		o, err := decodeFieldAddress(&od)
		if err != nil {
			return nil, err
		}
		as.Offsets[i] = o
	}

	gd := decoder{buf: tableBytes(4)}
	as.Globals, err = decodeDataTable(&gd)
	if err != nil {
		return nil, err
	}

	cd := decoder{buf: tableBytes(5)}
	as.Constants, err = decodeDataTable(&cd)
	if err != nil {
		return nil, err
	}

	nd := decoder{buf: tableBytes(6)}
	n, err = nd.u32()
	if err != nil {
		return nil, err
	}
	as.Names = make([]string, n)
	for i := range as.Names {
		s, err := nd.str()
		if err != nil {
			return nil, err
		}
		as.Names[i] = s
	}

	metaD := decoder{buf: tableBytes(7)}
	n, err = metaD.u32()
	if err != nil {
		return nil, err
	}
	as.Metas = make([]MetaEntry, n)
	for i := range as.Metas {
		f, err := metaD.str()
		if err != nil {
			return nil, err
		}
		line, err := metaD.u32()
		if err != nil {
			return nil, err
		}
		as.Metas[i] = MetaEntry{File: f, Line: int(line)}
	}

	return as, nil
}
