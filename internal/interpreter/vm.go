// Package interpreter executes a linked Assembly: a stack machine with a
// single mmap-backed runtime stack, a read-only mmap'd copy of the
// assembly's serialized bytes, lazily bound host libraries, and an opcode
// dispatch loop driven by the same subcode table the linker assigned from.
package interpreter

import (
	"go.uber.org/zap"

	"il.dev/il/internal/hostlib"
	"il.dev/il/internal/ilmodel"
)

// Config is the interpreter's runtime configuration, spec.md's
// {max_stack, min_stack, max_callstack_depth} plus the host bindings and an
// optional logger.
type Config struct {
	MinStack          int
	MaxStack          int
	MaxCallstackDepth int

	// RuntimeHash is the caller's current runtime-hash fingerprint, as
	// linker.RuntimeBindings.Hash computes it (host toolchain version mixed
	// with RuntimeBindings.LibraryHashes; Bindings is not consulted). Checked
	// against the assembly's own RuntimeHash before any instruction runs.
	RuntimeHash uint64

	Bindings *hostlib.Registry
	Log      *zap.Logger
}

// target is a resolved address: a backing byte slice selector (space) plus
// a byte offset and the type governing how many bytes to read/write, or a
// raw override (an inline constant literal, or a `&`/`!` scratch cell).
type target struct {
	sp     space
	offset int64
	typ    ilmodel.TypeIndex
	raw    []byte
}

// VM holds one run's live state.
type VM struct {
	as  *ilmodel.Assembly
	cfg Config
	log *zap.Logger

	stack *region
	code  *region

	bindings *hostlib.Registry

	frames  []frame
	scratch [2][8]byte
}

// Run executes as.Main to completion and returns its i32 result.
func Run(as *ilmodel.Assembly, cfg Config) (int32, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Bindings == nil {
		cfg.Bindings = hostlib.NewRegistry()
	}

	if as.RuntimeHash != cfg.RuntimeHash {
		return 0, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeRuntimeHashMismatch, nil,
			"assembly was linked against a different runtime binding surface (got %#x, want %#x)",
			as.RuntimeHash, cfg.RuntimeHash)
	}

	if !as.Main.Valid() || int(as.Main) >= len(as.Methods) {
		return 0, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeEntryPointMissing, nil, "assembly has no entry method")
	}

	stackRegion, err := allocateStack(cfg.MinStack, cfg.MaxStack)
	if err != nil {
		return 0, err
	}
	defer stackRegion.free()

	codeRegion, err := loadCodeImage(as.Serialize())
	if err != nil {
		return 0, err
	}
	defer codeRegion.free()

	vm := &VM{as: as, cfg: cfg, log: log, stack: stackRegion, code: codeRegion, bindings: cfg.Bindings}
	defer vm.bindings.Close()

	main := as.Methods[as.Main]
	sig := as.Signatures[main.Signature]
	retSize := vm.sizeOf(sig.Return)

	top := frame{
		Method:       &main,
		ReturnOffset: 0,
		ParamOffset:  retSize,
		StackOffset:  retSize,
		StackEnd:     retSize + main.StackBytes,
	}
	if int(top.StackEnd) > len(vm.stack.mem) {
		return 0, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeStackOverflow, nil,
			"entry method's frame (%d bytes) exceeds the allocated stack (%d bytes)", top.StackEnd, len(vm.stack.mem))
	}
	vm.frames = append(vm.frames, top)

	if err := vm.loop(); err != nil {
		return 0, err
	}

	result := readScalar(vm.stack.mem[0:retSize], sig.Return)
	return int32(int32(result)), nil
}

func (vm *VM) spaceBytes(sp space) []byte {
	switch sp {
	case spaceStack:
		return vm.stack.mem
	case spaceGlobal:
		return vm.as.Globals.Bytes
	case spaceConstant:
		return vm.as.Constants.Bytes
	}
	return nil
}

// sizeOf returns t's byte size: the fixed base-type size, or the linker's
// precomputed Type.Size for anything generated/aggregate.
func (vm *VM) sizeOf(t ilmodel.TypeIndex) int64 {
	if ilmodel.IsBase(t) {
		return ilmodel.BaseTypeSizes(vm.as.WordSize)[t]
	}
	return vm.as.Types[t].Size
}

func (t target) bytes(vm *VM, n int64) []byte {
	if t.raw != nil {
		return t.raw[:n]
	}
	base := vm.spaceBytes(t.sp)
	return base[t.offset : t.offset+n]
}

func (vm *VM) readBytes(t target) []byte {
	return t.bytes(vm, vm.sizeOf(t.typ))
}

func (vm *VM) readBits(t target) uint64 {
	return readScalar(vm.readBytes(t), t.typ)
}

func (vm *VM) writeBits(t target, bits uint64) {
	writeScalar(vm.readBytes(t), t.typ, bits)
}

// resolve computes the storage location named by address a within frame f,
// applying its prefix then its postfix modifier in turn. scratch is an
// 8-byte cell this call may use (and return a target pointing into) for a
// `&` or `!` prefix; the caller owns which of the VM's two cells to pass.
func (vm *VM) resolve(f *frame, a ilmodel.Address, scratch []byte) (target, error) {
	var t target
	m := f.Method
	sig := vm.as.Signatures[m.Signature]

	switch a.Type {
	case ilmodel.AddrStackVar:
		if a.IsReturnSlot() {
			t = target{sp: spaceStack, offset: f.ReturnOffset, typ: sig.Return}
		} else {
			sv := m.StackVars[a.Index]
			t = target{sp: spaceStack, offset: f.stackVarOffset(m.StackVars, int(a.Index)), typ: sv.Type}
		}
	case ilmodel.AddrParameter:
		p := sig.Params[a.Index]
		t = target{sp: spaceStack, offset: f.paramVarOffset(sig.Params, int(a.Index)), typ: p.Type}
	case ilmodel.AddrGlobal:
		gi := ilmodel.GlobalIndex(a.Index)
		if gi.IsConstant() {
			e := vm.as.Constants.Entries[gi.Ordinal()]
			t = target{sp: spaceConstant, offset: e.Offset, typ: e.Type}
		} else {
			e := vm.as.Globals.Entries[gi.Ordinal()]
			t = target{sp: spaceGlobal, offset: e.Offset, typ: e.Type}
		}
	case ilmodel.AddrConstant:
		t = target{raw: a.ConstantBytes, typ: ilmodel.TypeIndex(a.Index)}
	}

	switch a.Prefix {
	case ilmodel.PrefixIndirection:
		nt, err := vm.dereference(t)
		if err != nil {
			return target{}, err
		}
		t = nt
	case ilmodel.PrefixAddressOf:
		bits := encodePointer(t.sp, t.offset)
		writeScalar(scratch, ilmodel.VPtr, bits)
		ptrType := vm.as.Types[t.typ].PointerTo
		t = target{raw: scratch, typ: ptrType}
	case ilmodel.PrefixSizeOf:
		sz := vm.sizeOf(t.typ)
		writeScalar(scratch, ilmodel.U64, uint64(sz))
		t = target{raw: scratch, typ: ilmodel.U64}
	}

	switch a.Modifier {
	case ilmodel.ModifierDirectField:
		fo := vm.as.Offsets[a.OffsetIdx]
		t.offset += fo.ByteOffset
		t.typ = fo.ResultType
	case ilmodel.ModifierIndirectField:
		nt, err := vm.dereference(t)
		if err != nil {
			return target{}, err
		}
		fo := vm.as.Offsets[a.OffsetIdx]
		nt.offset += fo.ByteOffset
		nt.typ = fo.ResultType
		t = nt
	case ilmodel.ModifierSubscript:
		typ := vm.as.Types[t.typ]
		if typ.Flags&ilmodel.FlagPointer != 0 {
			nt, err := vm.dereference(t)
			if err != nil {
				return target{}, err
			}
			elem := typ.Generated.Pointee
			nt.offset += a.Subscript * vm.sizeOf(elem)
			nt.typ = elem
			t = nt
		} else {
			elem := typ.Generated.Element
			t.offset += a.Subscript * vm.sizeOf(elem)
			t.typ = elem
		}
	}
	return t, nil
}

// dereference reads a pointer value out of t and returns the target it
// names: the logical (space, offset) pair a runtime pointer packs itself as
// (see value.go), typed as the pointee of t's own (pointer) type.
func (vm *VM) dereference(t target) (target, error) {
	typ := vm.as.Types[t.typ]
	if typ.Flags&ilmodel.FlagPointer == 0 {
		return target{}, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeInvalidAssembly, nil,
			"dereference of non-pointer type %q at runtime", vm.typeName(t.typ))
	}
	bits := vm.readBits(t)
	sp, off := decodePointer(bits)
	return target{sp: sp, offset: off, typ: typ.Generated.Pointee}, nil
}

func (vm *VM) typeName(t ilmodel.TypeIndex) string {
	if ilmodel.IsBase(t) {
		return baseTypeNames[t]
	}
	name := vm.as.Types[t].Name
	if name.Valid() {
		return vm.as.Names[name]
	}
	return "<anonymous>"
}

var baseTypeNames = [ilmodel.NumBaseTypes]string{
	ilmodel.I8: "i8", ilmodel.U8: "u8", ilmodel.I16: "i16", ilmodel.U16: "u16",
	ilmodel.I32: "i32", ilmodel.U32: "u32", ilmodel.I64: "i64", ilmodel.U64: "u64",
	ilmodel.F32: "f32", ilmodel.F64: "f64", ilmodel.VPtr: "vptr", ilmodel.Void: "void",
}
