package interpreter

import (
	"fmt"
	"os"
	"strconv"

	"il.dev/il/internal/ilmodel"
)

// loop runs frames until the entry frame itself returns.
func (vm *VM) loop() error {
	for len(vm.frames) > 0 {
		f := &vm.frames[len(vm.frames)-1]
		in, err := ilmodel.DecodeInstruction(f.Method.Bytecode, f.IPtr)
		if err != nil {
			return err
		}
		if err := vm.step(f, in); err != nil {
			return err
		}
	}
	return nil
}

// step executes one instruction, advancing or replacing the current frame
// as needed. Most opcodes just fall through to f.IPtr = in.End; branches,
// calls and returns set it explicitly.
func (vm *VM) step(f *frame, in ilmodel.Instruction) error {
	switch {
	case in.Op == ilmodel.OpNoop:
		f.IPtr = in.End

	case in.Op == ilmodel.OpSet:
		dst, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		src, err := vm.resolve(f, in.Addrs[1], vm.scratch[1][:])
		if err != nil {
			return err
		}
		copy(vm.readBytes(dst), vm.readBytes(src))
		f.IPtr = in.End

	case in.Op == ilmodel.OpConv:
		dst, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		src, err := vm.resolve(f, in.Addrs[1], vm.scratch[1][:])
		if err != nil {
			return err
		}
		entry := ilmodel.SubcodeByCode(in.Subcode)
		n := toNumeric(vm.readBits(src), src.typ)
		vm.writeBits(dst, fromNumeric(n, entry.Result))
		f.IPtr = in.End

	case in.Op.IsArithmetic():
		dst, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		src, err := vm.resolve(f, in.Addrs[1], vm.scratch[1][:])
		if err != nil {
			return err
		}
		entry := ilmodel.SubcodeByCode(in.Subcode)
		a := toNumeric(vm.readBits(dst), dst.typ)
		b := toNumeric(vm.readBits(src), src.typ)
		r, err := arithmetic(in.Op, a, b, entry.Result)
		if err != nil {
			return err
		}
		vm.writeBits(dst, fromNumeric(r, entry.Result))
		f.IPtr = in.End

	case in.Op == ilmodel.OpCZ || in.Op == ilmodel.OpCNz:
		a, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		entry := ilmodel.SubcodeByCode(in.Subcode)
		n := toNumeric(vm.readBits(a), a.typ)
		zero := n.signed == 0 && n.float == 0
		result := zero
		if in.Op == ilmodel.OpCNz {
			result = !zero
		}
		vm.writeBits(a, fromNumeric(boolNumeric(result), entry.Result))
		f.IPtr = in.End

	case in.Op == ilmodel.OpPAdd || in.Op == ilmodel.OpPSub:
		ptr, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		off, err := vm.resolve(f, in.Addrs[1], vm.scratch[1][:])
		if err != nil {
			return err
		}
		pt := vm.as.Types[ptr.typ]
		elemSize := vm.sizeOf(pt.Generated.Pointee)
		delta := toNumeric(vm.readBits(off), off.typ).signed * elemSize
		if in.Op == ilmodel.OpPSub {
			delta = -delta
		}
		sp, base := decodePointer(vm.readBits(ptr))
		vm.writeBits(ptr, encodePointer(sp, base+delta))
		f.IPtr = in.End

	case in.Op == ilmodel.OpPDif:
		a, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		b, err := vm.resolve(f, in.Addrs[1], vm.scratch[1][:])
		if err != nil {
			return err
		}
		pt := vm.as.Types[a.typ]
		elemSize := vm.sizeOf(pt.Generated.Pointee)
		_, ao := decodePointer(vm.readBits(a))
		_, bo := decodePointer(vm.readBits(b))
		diff := (ao - bo) / elemSize
		vm.writeBits(a, fromNumeric(numeric{signed: diff, unsigned: uint64(diff), float: float64(diff)}, a.typ))
		f.IPtr = in.End

	case in.Op == ilmodel.OpCmp:
		dst, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		lhs, err := vm.resolve(f, in.Addrs[1], vm.scratch[0][:])
		if err != nil {
			return err
		}
		rhs, err := vm.resolve(f, in.Addrs[2], vm.scratch[1][:])
		if err != nil {
			return err
		}
		entry := ilmodel.SubcodeByCode(in.Subcode)
		c := compare(toNumeric(vm.readBits(lhs), lhs.typ), toNumeric(vm.readBits(rhs), rhs.typ), entry.Result)
		vm.writeBits(dst, fromNumeric(numeric{signed: int64(c), unsigned: uint64(int64(c)), float: float64(c)}, dst.typ))
		f.IPtr = in.End

	case in.Op == ilmodel.OpCEq, in.Op == ilmodel.OpCNe, in.Op == ilmodel.OpCLt,
		in.Op == ilmodel.OpCLe, in.Op == ilmodel.OpCGt, in.Op == ilmodel.OpCGe:
		dst, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		lhs, err := vm.resolve(f, in.Addrs[1], vm.scratch[0][:])
		if err != nil {
			return err
		}
		rhs, err := vm.resolve(f, in.Addrs[2], vm.scratch[1][:])
		if err != nil {
			return err
		}
		entry := ilmodel.SubcodeByCode(in.Subcode)
		c := compare(toNumeric(vm.readBits(lhs), lhs.typ), toNumeric(vm.readBits(rhs), rhs.typ), entry.Result)
		vm.writeBits(dst, fromNumeric(boolNumeric(satisfies(in.Op, c)), dst.typ))
		f.IPtr = in.End

	case in.Op == ilmodel.OpBr:
		f.IPtr = int(in.BranchTargets[0])

	case in.Op == ilmodel.OpBEq, in.Op == ilmodel.OpBNe, in.Op == ilmodel.OpBLt,
		in.Op == ilmodel.OpBLe, in.Op == ilmodel.OpBGt, in.Op == ilmodel.OpBGe:
		lhs, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		rhs, err := vm.resolve(f, in.Addrs[1], vm.scratch[1][:])
		if err != nil {
			return err
		}
		entry := ilmodel.SubcodeByCode(in.Subcode)
		c := compare(toNumeric(vm.readBits(lhs), lhs.typ), toNumeric(vm.readBits(rhs), rhs.typ), entry.Result)
		if satisfies(branchToCompare(in.Op), c) {
			f.IPtr = int(in.BranchTargets[0])
		} else {
			f.IPtr = in.End
		}

	case in.Op == ilmodel.OpBZ || in.Op == ilmodel.OpBNz:
		a, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		n := toNumeric(vm.readBits(a), a.typ)
		zero := n.signed == 0 && n.float == 0
		take := zero
		if in.Op == ilmodel.OpBNz {
			take = !zero
		}
		if take {
			f.IPtr = int(in.BranchTargets[0])
		} else {
			f.IPtr = in.End
		}

	case in.Op == ilmodel.OpSw:
		sel, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		v := int(toNumeric(vm.readBits(sel), sel.typ).signed)
		last := len(in.BranchTargets) - 1
		if v >= 0 && v < last {
			f.IPtr = int(in.BranchTargets[v])
		} else {
			f.IPtr = int(in.BranchTargets[last])
		}

	case in.Op == ilmodel.OpCall, in.Op == ilmodel.OpCallV:
		return vm.call(f, in)

	case in.Op == ilmodel.OpRet:
		vm.frames = vm.frames[:len(vm.frames)-1]

	case in.Op == ilmodel.OpRetV:
		return vm.retv(f, in)

	case in.Op == ilmodel.OpDump:
		a, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		s, err := vm.format(a)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "(%s)\n", s)
		f.IPtr = in.End
	}
	return nil
}

func boolNumeric(b bool) numeric {
	if b {
		return numeric{signed: 1, unsigned: 1, float: 1}
	}
	return numeric{}
}

// compare returns -1, 0 or 1 the way a three-way compare does, reading a and
// b through whichever of their three numeric views t calls for (the
// comparison's common type, already resolved by the subcode the linker
// assigned) so an unsigned comparison near the top of u64's range is never
// mistaken for a negative signed one.
func compare(a, b numeric, t ilmodel.TypeIndex) int {
	switch {
	case ilmodel.IsFloatingPoint(t):
		switch {
		case a.float < b.float:
			return -1
		case a.float > b.float:
			return 1
		default:
			return 0
		}
	case ilmodel.IsUnsigned(t):
		switch {
		case a.unsigned < b.unsigned:
			return -1
		case a.unsigned > b.unsigned:
			return 1
		default:
			return 0
		}
	default:
		switch {
		case a.signed < b.signed:
			return -1
		case a.signed > b.signed:
			return 1
		default:
			return 0
		}
	}
}

func satisfies(op ilmodel.Opcode, c int) bool {
	switch op {
	case ilmodel.OpCEq:
		return c == 0
	case ilmodel.OpCNe:
		return c != 0
	case ilmodel.OpCLt:
		return c < 0
	case ilmodel.OpCLe:
		return c <= 0
	case ilmodel.OpCGt:
		return c > 0
	case ilmodel.OpCGe:
		return c >= 0
	}
	return false
}

func branchToCompare(op ilmodel.Opcode) ilmodel.Opcode {
	switch op {
	case ilmodel.OpBEq:
		return ilmodel.OpCEq
	case ilmodel.OpBNe:
		return ilmodel.OpCNe
	case ilmodel.OpBLt:
		return ilmodel.OpCLt
	case ilmodel.OpBLe:
		return ilmodel.OpCLe
	case ilmodel.OpBGt:
		return ilmodel.OpCGt
	case ilmodel.OpBGe:
		return ilmodel.OpCGe
	}
	return ilmodel.OpCEq
}

func arithmetic(op ilmodel.Opcode, a, b numeric, result ilmodel.TypeIndex) (numeric, error) {
	if ilmodel.IsFloatingPoint(result) {
		switch op {
		case ilmodel.OpAriAdd:
			return numeric{float: a.float + b.float}, nil
		case ilmodel.OpAriSub:
			return numeric{float: a.float - b.float}, nil
		case ilmodel.OpAriMul:
			return numeric{float: a.float * b.float}, nil
		case ilmodel.OpAriDiv:
			return numeric{float: a.float / b.float}, nil
		case ilmodel.OpAriMod:
			return numeric{float: float64(int64(a.float) % int64(b.float))}, nil
		}
	}
	if ilmodel.IsUnsigned(result) {
		switch op {
		case ilmodel.OpAriAdd:
			return numeric{unsigned: a.unsigned + b.unsigned}, nil
		case ilmodel.OpAriSub:
			return numeric{unsigned: a.unsigned - b.unsigned}, nil
		case ilmodel.OpAriMul:
			return numeric{unsigned: a.unsigned * b.unsigned}, nil
		case ilmodel.OpAriDiv:
			if b.unsigned == 0 {
				return numeric{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil, "division by zero")
			}
			return numeric{unsigned: a.unsigned / b.unsigned}, nil
		case ilmodel.OpAriMod:
			if b.unsigned == 0 {
				return numeric{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil, "modulo by zero")
			}
			return numeric{unsigned: a.unsigned % b.unsigned}, nil
		}
	}
	switch op {
	case ilmodel.OpAriAdd:
		return numeric{signed: a.signed + b.signed}, nil
	case ilmodel.OpAriSub:
		return numeric{signed: a.signed - b.signed}, nil
	case ilmodel.OpAriMul:
		return numeric{signed: a.signed * b.signed}, nil
	case ilmodel.OpAriDiv:
		if b.signed == 0 {
			return numeric{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil, "division by zero")
		}
		return numeric{signed: a.signed / b.signed}, nil
	case ilmodel.OpAriMod:
		if b.signed == 0 {
			return numeric{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil, "modulo by zero")
		}
		return numeric{signed: a.signed % b.signed}, nil
	}
	return numeric{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil, "unreachable arithmetic opcode %d", op)
}

// call dispatches a call/callv instruction: either into a freshly pushed VM
// frame, or (for an external method) straight into the bound host thunk.
func (vm *VM) call(f *frame, in ilmodel.Instruction) error {
	if int(in.CallMethod) >= len(vm.as.Methods) {
		return ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil, "call to undefined method %d", in.CallMethod)
	}
	callee := vm.as.Methods[in.CallMethod]
	sig := vm.as.Signatures[callee.Signature]
	args := in.Addrs[in.CallArgsAt:]

	var callerDst *target
	if in.Op == ilmodel.OpCallV {
		dst, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
		if err != nil {
			return err
		}
		callerDst = &dst
	}

	argBytes := make([][]byte, len(args))
	for i, a := range args {
		src, err := vm.resolve(f, a, vm.scratch[i%2][:])
		if err != nil {
			return err
		}
		pt := sig.Params[i].Type
		if src.typ == pt {
			argBytes[i] = append([]byte(nil), vm.readBytes(src)...)
		} else {
			bits := fromNumeric(toNumeric(vm.readBits(src), src.typ), pt)
			buf := make([]byte, vm.sizeOf(pt))
			writeScalar(buf, pt, bits)
			argBytes[i] = buf
		}
	}

	if callee.External {
		return vm.callExternal(f, in, callee, sig, argBytes, callerDst)
	}

	retSize := vm.sizeOf(sig.Return)
	newBase := f.StackEnd
	newReturn := newBase
	newParam := newReturn + retSize
	newStack := newParam + sig.ParamBytes
	newEnd := newStack + callee.StackBytes
	if int(newEnd) > len(vm.stack.mem) {
		return ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeStackOverflow, nil,
			"frame for %q needs %d bytes, only %d remain", vm.as.Names[callee.Name], newEnd-newBase, int64(len(vm.stack.mem))-newBase)
	}
	if len(vm.frames) >= vm.cfg.MaxCallstackDepth {
		return ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeCallstackLimit, nil,
			"call depth exceeds configured limit of %d", vm.cfg.MaxCallstackDepth)
	}

	for i, p := range sig.Params {
		copy(vm.stack.mem[newParam+p.Offset:], argBytes[i])
	}

	f.IPtr = in.End
	vm.frames = append(vm.frames, frame{
		Method: &callee, ReturnOffset: newReturn, ParamOffset: newParam,
		StackOffset: newStack, StackEnd: newEnd, CallerDst: callerDst,
	})
	return nil
}

// callExternal invokes a host thunk directly with no VM frame pushed: the
// packed parameter area and return slot are ordinary Go byte slices, not VM
// stack memory, matching "external calls do not create a saved frame".
func (vm *VM) callExternal(f *frame, in ilmodel.Instruction, callee ilmodel.Method, sig ilmodel.Signature, argBytes [][]byte, callerDst *target) error {
	ext := ilmodel.DecodeExternalCall(callee.Bytecode)
	sym, err := vm.bindings.Resolve(ext.LibraryIndex, ext.CallIndex)
	if err != nil {
		return err
	}
	params := make([]byte, sig.ParamBytes)
	for i, p := range sig.Params {
		copy(params[p.Offset:], argBytes[i])
	}
	ret := make([]byte, vm.sizeOf(sig.Return))
	sym.Fn(ret, params)
	if callerDst != nil {
		copy(vm.readBytes(*callerDst), ret)
	}
	f.IPtr = in.End
	return nil
}

// retv implements retv (a bare ret is handled inline in step): copy the
// return value into this frame's own {^} slot, relay it to the caller's
// destination if one was requested, then pop.
func (vm *VM) retv(f *frame, in ilmodel.Instruction) error {
	sig := vm.as.Signatures[f.Method.Signature]
	src, err := vm.resolve(f, in.Addrs[0], vm.scratch[0][:])
	if err != nil {
		return err
	}
	retTarget := target{sp: spaceStack, offset: f.ReturnOffset, typ: sig.Return}
	if src.typ == sig.Return {
		copy(vm.readBytes(retTarget), vm.readBytes(src))
	} else {
		bits := fromNumeric(toNumeric(vm.readBits(src), src.typ), sig.Return)
		vm.writeBits(retTarget, bits)
	}
	if f.CallerDst != nil {
		copy(vm.readBytes(*f.CallerDst), vm.readBytes(retTarget))
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	return nil
}

// format renders a for the dump opcode: primitives in decimal/scientific,
// pointers and signature-typed values in hex, arrays and structs/unions
// recursively as "{ field=…, … }".
func (vm *VM) format(a target) (string, error) {
	t := vm.as.Types[a.typ]
	if ilmodel.IsBase(a.typ) {
		n := toNumeric(vm.readBits(a), a.typ)
		switch {
		case a.typ == ilmodel.VPtr:
			return "0x" + strconv.FormatUint(vm.readBits(a), 16), nil
		case ilmodel.IsFloatingPoint(a.typ):
			return strconv.FormatFloat(n.float, 'g', -1, 64), nil
		case ilmodel.IsUnsigned(a.typ):
			return strconv.FormatUint(n.unsigned, 10), nil
		default:
			return strconv.FormatInt(n.signed, 10), nil
		}
	}
	switch {
	case t.Flags&ilmodel.FlagPointer != 0, t.Flags&ilmodel.FlagSignature != 0:
		return "0x" + strconv.FormatUint(vm.readBits(a), 16), nil
	case t.Flags&ilmodel.FlagArray != 0:
		elemSize := vm.sizeOf(t.Generated.Element)
		out := "{ "
		for i := uint64(0); i < t.Generated.Count; i++ {
			if i > 0 {
				out += ", "
			}
			elem := target{sp: a.sp, offset: a.offset + int64(i)*elemSize, typ: t.Generated.Element, raw: a.raw}
			s, err := vm.format(elem)
			if err != nil {
				return "", err
			}
			out += strconv.FormatUint(i, 10) + "=" + s
		}
		return out + " }", nil
	default:
		out := "{ "
		for i, field := range t.Fields {
			if i > 0 {
				out += ", "
			}
			fv := target{sp: a.sp, offset: a.offset + field.Offset, typ: field.Type, raw: a.raw}
			s, err := vm.format(fv)
			if err != nil {
				return "", err
			}
			out += vm.as.Names[field.Name] + "=" + s
		}
		return out + " }", nil
	}
}
