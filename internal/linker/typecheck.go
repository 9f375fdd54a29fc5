package linker

import (
	"go.uber.org/zap"

	"il.dev/il/internal/ilmodel"
)

// methodContext is everything linkMethod's address-type resolver needs: the
// method's own stack-variable and signature tables, plus the already-
// resolved field-offset table shared by the whole assembly.
type methodContext struct {
	l         *linker
	sig       ilmodel.Signature
	stackVars []ilmodel.StackVar
	offsets   []ilmodel.FieldOffset

	// prevWasCallV tracks whether the instruction immediately preceding the
	// one currently being typechecked was a callv, the only operation that
	// establishes a {^} return-slot value a later instruction may read.
	prevWasCallV bool
}

// linkMethod implements stage 4 for a single method: assign stack-variable
// offsets and the total frame size, type-check every instruction, assign a
// concrete subcode to every subcode-bearing opcode, and re-encode the
// bytecode with those subcodes in place of the generator's placeholder.
func (l *linker) linkMethod(idx ilmodel.MethodIndex, mt ilmodel.Method, offsets []ilmodel.FieldOffset) (ilmodel.Method, error) {
	out := mt
	if mt.External || !mt.Signature.Valid() {
		return out, nil // external, or declared but never defined: nothing to lay out
	}
	sig := l.im.Signatures[mt.Signature]

	stackVars := make([]ilmodel.StackVar, len(mt.StackVars))
	var frameOffset int64
	for i, sv := range mt.StackVars {
		size := l.sizes[sv.Type]
		stackVars[i] = ilmodel.StackVar{Type: sv.Type, Offset: frameOffset}
		frameOffset += wordAlign(size, int64(l.wordSize))
	}
	out.StackVars = stackVars
	out.StackBytes = frameOffset

	ctx := &methodContext{l: l, sig: sig, stackVars: stackVars, offsets: offsets}

	var rebuilt []byte
	var lastOp ilmodel.Opcode
	var sawInstruction bool
	err := ilmodel.Walk(mt.Bytecode, func(in ilmodel.Instruction) error {
		if err := ctx.typecheck(&in, mt.Meta); err != nil {
			return err
		}
		ctx.prevWasCallV = in.Op == ilmodel.OpCallV
		lastOp = in.Op
		sawInstruction = true
		rebuilt = append(rebuilt, in.Encode()...)
		return nil
	})
	if err != nil {
		return out, err
	}
	if len(mt.Bytecode) > 0 && (!sawInstruction || !lastOp.IsTerminator()) {
		return out, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeMissingReturn, &mt.Meta,
			"method %q does not end in a return, branch or switch", l.im.Names[mt.Name])
	}
	out.Bytecode = rebuilt

	l.log.Debug("linked method", zap.String("name", l.im.Names[mt.Name]), zap.Int64("stack_bytes", out.StackBytes))
	return out, nil
}

func wordAlign(size, word int64) int64 {
	if size <= 0 {
		return word
	}
	if rem := size % word; rem != 0 {
		size += word - rem
	}
	return size
}

// addrType resolves the effective type of an address operand: its base
// storage type, then its unary prefix, then its postfix modifier, in that
// order (mirroring how the parser itself builds up an Address).
func (c *methodContext) addrType(a ilmodel.Address, meta ilmodel.Meta) (ilmodel.TypeIndex, error) {
	var base ilmodel.TypeIndex
	switch a.Type {
	case ilmodel.AddrStackVar:
		if a.IsReturnSlot() {
			base = c.sig.Return
		} else if int(a.Index) < len(c.stackVars) {
			base = c.stackVars[a.Index].Type
		} else {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeOutOfRangeStackIndex, &meta,
				"stack variable index %d out of range", a.Index)
		}
	case ilmodel.AddrParameter:
		if int(a.Index) < len(c.sig.Params) {
			base = c.sig.Params[a.Index].Type
		} else {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeOutOfRangeParamIndex, &meta,
				"parameter index %d out of range", a.Index)
		}
	case ilmodel.AddrGlobal:
		gi := ilmodel.GlobalIndex(a.Index)
		table := &c.l.im.Globals
		if gi.IsConstant() {
			table = &c.l.im.Constants
		}
		ord := gi.Ordinal()
		if int(ord) >= len(table.Entries) {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeUndefinedGlobal, &meta,
				"global/constant index %d out of range", ord)
		}
		base = table.Entries[ord].Type
	case ilmodel.AddrConstant:
		base = ilmodel.TypeIndex(a.Index)
		if !ilmodel.IsBase(base) {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeUndefinedType, &meta,
				"inlined literal names a non-base type %d", base)
		}
	}

	switch a.Prefix {
	case ilmodel.PrefixIndirection:
		t := c.l.im.Types[base]
		if t.Flags&ilmodel.FlagPointer == 0 {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidPointerExpression, &meta,
				"cannot dereference non-pointer type %q", c.l.typeName(base))
		}
		base = t.Generated.Pointee
	case ilmodel.PrefixAddressOf:
		ptr, ok := c.l.pointerOf[base]
		if !ok {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeUndefinedType, &meta,
				"no pointer type declared for %q", c.l.typeName(base))
		}
		base = ptr
	case ilmodel.PrefixSizeOf:
		base = ilmodel.U64
	}

	switch a.Modifier {
	case ilmodel.ModifierDirectField:
		if int(a.OffsetIdx) >= len(c.offsets) {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeUndefinedTypeField, &meta,
				"field-offset index %d out of range", a.OffsetIdx)
		}
		fo := c.offsets[a.OffsetIdx]
		if fo.Root != base {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeFieldParentTypeMismatch, &meta,
				"field chain rooted at %q used on %q", c.l.typeName(fo.Root), c.l.typeName(base))
		}
		base = fo.ResultType
	case ilmodel.ModifierIndirectField:
		t := c.l.im.Types[base]
		if t.Flags&ilmodel.FlagPointer == 0 {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidOffsetModifier, &meta,
				"-> used on non-pointer type %q", c.l.typeName(base))
		}
		pointee := t.Generated.Pointee
		if int(a.OffsetIdx) >= len(c.offsets) {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeUndefinedTypeField, &meta,
				"field-offset index %d out of range", a.OffsetIdx)
		}
		fo := c.offsets[a.OffsetIdx]
		if fo.Root != pointee {
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeFieldParentTypeMismatch, &meta,
				"field chain rooted at %q used on %q", c.l.typeName(fo.Root), c.l.typeName(pointee))
		}
		base = fo.ResultType
	case ilmodel.ModifierSubscript:
		t := c.l.im.Types[base]
		switch {
		case t.Flags&ilmodel.FlagPointer != 0:
			base = t.Generated.Pointee
		case t.Flags&ilmodel.FlagArray != 0:
			base = t.Generated.Element
		default:
			return ilmodel.InvalidType, ilmodel.New(ilmodel.KindLinker, ilmodel.CodeOutOfRangeArrayIndex, &meta,
				"[n] used on non-pointer, non-array type %q", c.l.typeName(base))
		}
	}
	return base, nil
}

// checkReturnSlot validates every {^} reference in in against "only legal
// where the immediately preceding operation established a return value": a
// callv may always write to {^} (that write is what establishes it), but
// any other use of {^} — including a callv's own argument addresses — must
// be immediately preceded by a callv.
func (c *methodContext) checkReturnSlot(in *ilmodel.Instruction, meta ilmodel.Meta) error {
	for i, a := range in.Addrs {
		if in.Op == ilmodel.OpCallV && i == 0 {
			continue
		}
		if a.IsReturnSlot() && !c.prevWasCallV {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidReturnSlotReference, &meta,
				"{^} referenced without an immediately preceding callv")
		}
	}
	return nil
}

// typecheck validates one instruction's operands against their opcode
// family's rules and assigns a concrete subcode in place of the generator's
// placeholder, mutating in in place so the caller can re-encode it.
func (c *methodContext) typecheck(in *ilmodel.Instruction, meta ilmodel.Meta) error {
	if err := c.checkReturnSlot(in, meta); err != nil {
		return err
	}
	switch {
	case in.Op == ilmodel.OpSet:
		_, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		_, err = c.addrType(in.Addrs[1], meta)
		return err

	case in.Op == ilmodel.OpConv:
		dst, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		src, err := c.addrType(in.Addrs[1], meta)
		if err != nil {
			return err
		}
		code, ok := ilmodel.LookupSubcode(dst, src)
		if !ok {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidImplicitConversion, &meta,
				"cannot convert %q to %q", c.l.typeName(src), c.l.typeName(dst))
		}
		in.Subcode = code

	case in.Op.IsArithmetic():
		dst, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		src, err := c.addrType(in.Addrs[1], meta)
		if err != nil {
			return err
		}
		code, ok := ilmodel.LookupSubcode(dst, src)
		if !ok {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidArithmeticExpression, &meta,
				"invalid operand types %q, %q", c.l.typeName(dst), c.l.typeName(src))
		}
		in.Subcode = code

	case in.Op == ilmodel.OpCZ || in.Op == ilmodel.OpCNz:
		t, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		if !ilmodel.IsArithmetic(t) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidComparisonExpression, &meta,
				"compare-zero used on non-arithmetic type %q", c.l.typeName(t))
		}
		code, _ := ilmodel.LookupSubcode(t, t)
		in.Subcode = code

	case in.Op == ilmodel.OpPAdd || in.Op == ilmodel.OpPSub:
		ptr, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		t := c.l.im.Types[ptr]
		if t.Flags&ilmodel.FlagPointer == 0 {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidPointerExpression, &meta,
				"pointer arithmetic on non-pointer type %q", c.l.typeName(ptr))
		}
		off, err := c.addrType(in.Addrs[1], meta)
		if err != nil {
			return err
		}
		if !ilmodel.IsIntegral(off) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidPointerExpression, &meta,
				"pointer offset must be integral, got %q", c.l.typeName(off))
		}

	case in.Op == ilmodel.OpPDif:
		a, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		b, err := c.addrType(in.Addrs[1], meta)
		if err != nil {
			return err
		}
		ta, tb := c.l.im.Types[a], c.l.im.Types[b]
		if ta.Flags&ilmodel.FlagPointer == 0 || tb.Flags&ilmodel.FlagPointer == 0 || ta.Generated.Pointee != tb.Generated.Pointee {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidPointerExpression, &meta,
				"pointer difference requires matching pointee types")
		}

	case in.Op.IsComparison():
		dstIdx := 0
		if in.Op.IsBranch() {
			dstIdx = -1 // branches have no dst operand, just lhs/rhs
		}
		var lhs, rhs ilmodel.Address
		if dstIdx == 0 {
			lhs, rhs = in.Addrs[1], in.Addrs[2]
		} else {
			lhs, rhs = in.Addrs[0], in.Addrs[1]
		}
		lt, err := c.addrType(lhs, meta)
		if err != nil {
			return err
		}
		rt, err := c.addrType(rhs, meta)
		if err != nil {
			return err
		}
		if !ilmodel.IsArithmetic(lt) || !ilmodel.IsArithmetic(rt) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidComparisonExpression, &meta,
				"comparison requires arithmetic operands, got %q, %q", c.l.typeName(lt), c.l.typeName(rt))
		}
		common := ilmodel.CommonArithmeticType(lt, rt)
		code, ok := ilmodel.LookupSubcode(common, common)
		if !ok {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidComparisonExpression, &meta,
				"no comparison subcode for %q", c.l.typeName(common))
		}
		in.Subcode = code
		if dstIdx == 0 {
			if _, err := c.addrType(in.Addrs[0], meta); err != nil {
				return err
			}
		}

	case in.Op == ilmodel.OpBr:
		// no operands to check; the branch target offset is not range-checked

	case in.Op == ilmodel.OpBZ || in.Op == ilmodel.OpBNz:
		t, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		if !ilmodel.IsArithmetic(t) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidComparisonExpression, &meta,
				"conditional branch on non-arithmetic type %q", c.l.typeName(t))
		}
		code, _ := ilmodel.LookupSubcode(t, t)
		in.Subcode = code

	case in.Op == ilmodel.OpSw:
		t, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		if !ilmodel.IsIntegral(t) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidComparisonExpression, &meta,
				"switch selector must be integral, got %q", c.l.typeName(t))
		}

	case in.Op == ilmodel.OpCall || in.Op == ilmodel.OpCallV:
		if !in.CallMethod.Valid() || int(in.CallMethod) >= len(c.l.im.Methods) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeUndefinedMethod, &meta,
				"call to undefined method %d", in.CallMethod)
		}
		callee := c.l.im.Signatures[c.l.im.Methods[in.CallMethod].Signature]
		args := in.Addrs[in.CallArgsAt:]
		if len(args) != len(callee.Params) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidCallArgumentCount, &meta,
				"call passes %d arguments, method takes %d", len(args), len(callee.Params))
		}
		for i, arg := range args {
			at, err := c.addrType(arg, meta)
			if err != nil {
				return err
			}
			pt := callee.Params[i].Type
			if at != pt && !(ilmodel.IsArithmetic(at) && ilmodel.IsArithmetic(pt)) {
				return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidImplicitConversion, &meta,
					"argument %d: cannot pass %q where %q is expected", i, c.l.typeName(at), c.l.typeName(pt))
			}
		}
		if in.Op == ilmodel.OpCallV {
			dst, err := c.addrType(in.Addrs[0], meta)
			if err != nil {
				return err
			}
			if callee.Return == ilmodel.Void {
				return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidReturnStatement, &meta,
					"callv used on a void-returning method")
			}
			_ = dst

		}

	case in.Op == ilmodel.OpRetV:
		if c.sig.Return == ilmodel.Void {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidReturnStatement, &meta,
				"retv used in a void method")
		}
		rt, err := c.addrType(in.Addrs[0], meta)
		if err != nil {
			return err
		}
		if rt != c.sig.Return && !(ilmodel.IsArithmetic(rt) && ilmodel.IsArithmetic(c.sig.Return)) {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidImplicitConversion, &meta,
				"cannot return %q from a method declared to return %q", c.l.typeName(rt), c.l.typeName(c.sig.Return))
		}

	case in.Op == ilmodel.OpRet:
		if c.sig.Return != ilmodel.Void {
			return ilmodel.New(ilmodel.KindLinker, ilmodel.CodeInvalidReturnStatement, &meta,
				"bare ret used in a non-void method")
		}

	case in.Op == ilmodel.OpDump:
		_, err := c.addrType(in.Addrs[0], meta)
		return err
	}
	return nil
}
