package ilmodel

import "encoding/binary"

// wordSize is the target pointer width assumed by bytecode encoding: the
// toolchain targets x64 hosts, matching Version.PtrWidth's default
// (ArchX64), so vptr-typed constants and address payloads are 8 bytes.
const wordSize = 8

// Instruction is one decoded bytecode instruction: enough structure for the
// merger (index remapping), linker (type-checking and subcode assignment)
// and interpreter (dispatch) to share a single decode pass, per the design
// note that linker subcode assignment and interpreter subcode dispatch
// should be driven from one source.
type Instruction struct {
	Op      Opcode
	Subcode Subcode // placeholder until the linker assigns it

	// Addrs holds every address operand in encoding order: e.g. (dst, src)
	// for set/conv/ari_*, (dst, lhs, rhs) for cmp family, (lhs[, rhs]) for
	// branches, (selector) for switch, (dst) for callv, variable-length
	// argument lists for call/callv.
	Addrs []Address

	CallMethod MethodIndex // call/callv only
	CallArgsAt int         // index into Addrs where the argument list starts

	BranchTargets []int64 // resolved byte offsets, in encoding order

	// Start/End are this instruction's byte span within the owning
	// method's bytecode, set by Decode.
	Start, End int
}

// literalSize returns the byte length of an inlined constant literal whose
// base type is baseType (an Address.Index value when Type is AddrConstant).
func literalSize(baseType TypeIndex) int {
	sizes := BaseTypeSizes(wordSize)
	if int(baseType) < len(sizes) {
		return int(sizes[baseType])
	}
	return wordSize
}

type instrReader struct {
	code []byte
	pos  int
}

func (r *instrReader) need(n int) error {
	if r.pos+n > len(r.code) {
		return New(KindRuntime, CodeInvalidAssembly, nil, "truncated bytecode at offset %d", r.pos)
	}
	return nil
}

func (r *instrReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.code[r.pos]
	r.pos++
	return v, nil
}

func (r *instrReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.code[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *instrReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.code[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *instrReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.code[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *instrReader) address() (Address, error) {
	header, err := r.u32()
	if err != nil {
		return Address{}, err
	}
	a := DecodeAddress(header, 0)
	if a.Modifier != ModifierNone {
		payload, err := r.u64()
		if err != nil {
			return Address{}, err
		}
		a = DecodeAddress(header, int64(payload))
	}
	if a.Type == AddrConstant {
		n := literalSize(TypeIndex(a.Index))
		lit, err := r.bytes(n)
		if err != nil {
			return Address{}, err
		}
		a.ConstantBytes = append([]byte(nil), lit...)
	}
	return a, nil
}

// DecodeInstruction decodes exactly one instruction starting at pos,
// mirroring the generator's MethodWriter emission order exactly.
func DecodeInstruction(code []byte, pos int) (Instruction, error) {
	r := &instrReader{code: code, pos: pos}
	opByte, err := r.u8()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(opByte)
	in := Instruction{Op: op, Start: pos}

	readSubcode := func() error {
		b, err := r.u8()
		if err != nil {
			return err
		}
		in.Subcode = Subcode(b)
		return nil
	}
	readAddr := func() (Address, error) { return r.address() }
	readBranchTarget := func() error {
		v, err := r.u32()
		if err != nil {
			return err
		}
		in.BranchTargets = append(in.BranchTargets, int64(v))
		return nil
	}

	switch op {
	case OpNoop, OpRet:
		// no operands

	case OpSet, OpConv, OpAriAdd, OpAriSub, OpAriMul, OpAriDiv, OpAriMod, OpCZ, OpCNz:
		// OpSet carries no subcode (emitOpcodeWithSubcode gates it on
		// HasSubcode, and OpSet is deliberately excluded: a plain move
		// needs no typed variant selection).
		if op.HasSubcode() {
			if err := readSubcode(); err != nil {
				return in, err
			}
		}
		dst, err := readAddr()
		if err != nil {
			return in, err
		}
		src, err := readAddr()
		if err != nil {
			return in, err
		}
		in.Addrs = []Address{dst, src}

	case OpPAdd, OpPSub, OpPDif:
		a, err := readAddr()
		if err != nil {
			return in, err
		}
		b, err := readAddr()
		if err != nil {
			return in, err
		}
		in.Addrs = []Address{a, b}

	case OpCmp, OpCEq, OpCNe, OpCLt, OpCLe, OpCGt, OpCGe:
		if err := readSubcode(); err != nil {
			return in, err
		}
		dst, err := readAddr()
		if err != nil {
			return in, err
		}
		lhs, err := readAddr()
		if err != nil {
			return in, err
		}
		rhs, err := readAddr()
		if err != nil {
			return in, err
		}
		in.Addrs = []Address{dst, lhs, rhs}

	case OpBr:
		if err := readBranchTarget(); err != nil {
			return in, err
		}

	case OpBEq, OpBNe, OpBLt, OpBLe, OpBGt, OpBGe:
		if err := readSubcode(); err != nil {
			return in, err
		}
		lhs, err := readAddr()
		if err != nil {
			return in, err
		}
		rhs, err := readAddr()
		if err != nil {
			return in, err
		}
		in.Addrs = []Address{lhs, rhs}
		if err := readBranchTarget(); err != nil {
			return in, err
		}

	case OpBZ, OpBNz:
		if err := readSubcode(); err != nil {
			return in, err
		}
		lhs, err := readAddr()
		if err != nil {
			return in, err
		}
		in.Addrs = []Address{lhs}
		if err := readBranchTarget(); err != nil {
			return in, err
		}

	case OpSw:
		selector, err := readAddr()
		if err != nil {
			return in, err
		}
		in.Addrs = []Address{selector}
		count, err := r.u32()
		if err != nil {
			return in, err
		}
		for i := uint32(0); i < count; i++ {
			if err := readBranchTarget(); err != nil {
				return in, err
			}
		}

	case OpCall:
		method, err := r.u32()
		if err != nil {
			return in, err
		}
		in.CallMethod = MethodIndex(method)
		argc, err := r.u32()
		if err != nil {
			return in, err
		}
		in.CallArgsAt = 0
		for i := uint32(0); i < argc; i++ {
			a, err := readAddr()
			if err != nil {
				return in, err
			}
			in.Addrs = append(in.Addrs, a)
		}

	case OpCallV:
		dst, err := readAddr()
		if err != nil {
			return in, err
		}
		method, err := r.u32()
		if err != nil {
			return in, err
		}
		in.CallMethod = MethodIndex(method)
		argc, err := r.u32()
		if err != nil {
			return in, err
		}
		in.Addrs = append(in.Addrs, dst)
		in.CallArgsAt = 1
		for i := uint32(0); i < argc; i++ {
			a, err := readAddr()
			if err != nil {
				return in, err
			}
			in.Addrs = append(in.Addrs, a)
		}

	case OpRetV, OpDump:
		src, err := readAddr()
		if err != nil {
			return in, err
		}
		in.Addrs = []Address{src}

	default:
		return in, New(KindLinker, CodeUndefinedMethod, nil, "unknown opcode byte %d at offset %d", opByte, pos)
	}

	in.End = r.pos
	return in, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendAddress(buf []byte, a Address) []byte {
	buf = appendU32(buf, a.Header())
	if a.Modifier != ModifierNone {
		buf = appendU64(buf, uint64(a.Payload()))
	}
	if a.Type == AddrConstant && len(a.ConstantBytes) > 0 {
		buf = append(buf, a.ConstantBytes...)
	}
	return buf
}

// Encode re-serializes the instruction, mirroring MethodWriter's emission
// order exactly. Used by callers (e.g. the merger) that decode a stream,
// rewrite embedded indices, and need to write it back out unchanged in
// layout.
func (in Instruction) Encode() []byte {
	var buf []byte
	buf = append(buf, byte(in.Op))

	writeSubcode := func() {
		buf = append(buf, byte(in.Subcode))
	}
	writeBranchTargets := func() {
		for _, t := range in.BranchTargets {
			buf = appendU32(buf, uint32(t))
		}
	}

	switch in.Op {
	case OpNoop, OpRet:
		// no operands

	case OpSet, OpConv, OpAriAdd, OpAriSub, OpAriMul, OpAriDiv, OpAriMod, OpCZ, OpCNz:
		if in.Op.HasSubcode() {
			writeSubcode()
		}
		buf = appendAddress(buf, in.Addrs[0])
		buf = appendAddress(buf, in.Addrs[1])

	case OpPAdd, OpPSub, OpPDif:
		buf = appendAddress(buf, in.Addrs[0])
		buf = appendAddress(buf, in.Addrs[1])

	case OpCmp, OpCEq, OpCNe, OpCLt, OpCLe, OpCGt, OpCGe:
		writeSubcode()
		buf = appendAddress(buf, in.Addrs[0])
		buf = appendAddress(buf, in.Addrs[1])
		buf = appendAddress(buf, in.Addrs[2])

	case OpBr:
		writeBranchTargets()

	case OpBEq, OpBNe, OpBLt, OpBLe, OpBGt, OpBGe:
		writeSubcode()
		buf = appendAddress(buf, in.Addrs[0])
		buf = appendAddress(buf, in.Addrs[1])
		writeBranchTargets()

	case OpBZ, OpBNz:
		writeSubcode()
		buf = appendAddress(buf, in.Addrs[0])
		writeBranchTargets()

	case OpSw:
		buf = appendAddress(buf, in.Addrs[0])
		buf = appendU32(buf, uint32(len(in.BranchTargets)))
		writeBranchTargets()

	case OpCall:
		buf = appendU32(buf, uint32(in.CallMethod))
		buf = appendU32(buf, uint32(len(in.Addrs)))
		for _, a := range in.Addrs {
			buf = appendAddress(buf, a)
		}

	case OpCallV:
		buf = appendAddress(buf, in.Addrs[0])
		buf = appendU32(buf, uint32(in.CallMethod))
		buf = appendU32(buf, uint32(len(in.Addrs)-1))
		for _, a := range in.Addrs[1:] {
			buf = appendAddress(buf, a)
		}

	case OpRetV, OpDump:
		buf = appendAddress(buf, in.Addrs[0])
	}
	return buf
}

// Walk decodes every instruction in code in order, calling fn with each.
// Stops and returns fn's error if it returns one.
func Walk(code []byte, fn func(Instruction) error) error {
	pos := 0
	for pos < len(code) {
		in, err := DecodeInstruction(code, pos)
		if err != nil {
			return err
		}
		if err := fn(in); err != nil {
			return err
		}
		pos = in.End
	}
	return nil
}
