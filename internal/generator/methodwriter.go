package generator

import (
	"encoding/binary"

	"il.dev/il/internal/ilmodel"
)

// label holds a label's resolved offset (if written) and the patch sites
// recorded before it was written.
type label struct {
	offset  int64
	written bool
	patches []int // byte offsets of 4-byte placeholders awaiting this label
}

// MethodWriter emits one method's bytecode: one call per opcode, stack
// layout (set_stack/push_stack), and label declaration/resolution with
// forward-reference back-patching.
type MethodWriter struct {
	g   *Generator
	idx ilmodel.MethodIndex

	code []byte

	stackVars []ilmodel.StackVar
	curOffset int64

	labels     map[string]*label
	labelOrder []string

	calledMethods map[ilmodel.MethodIndex]bool
	referencedGlobals map[ilmodel.GlobalIndex]bool
}

func newMethodWriter(g *Generator, idx ilmodel.MethodIndex) *MethodWriter {
	return &MethodWriter{
		g: g, idx: idx,
		labels:            map[string]*label{},
		calledMethods:     map[ilmodel.MethodIndex]bool{},
		referencedGlobals: map[ilmodel.GlobalIndex]bool{},
	}
}

// SetStack declares the method's stack-variable types up front, assigning
// each a monotonically increasing byte offset (the generator does not know
// real sizes yet; it uses a conservative machine-word stride, and the
// linker recomputes tight offsets during its per-method validation pass).
func (w *MethodWriter) SetStack(types []ilmodel.TypeIndex) {
	for _, t := range types {
		w.PushStack(t)
	}
}

// PushStack appends one stack variable and returns its index.
func (w *MethodWriter) PushStack(t ilmodel.TypeIndex) int {
	idx := len(w.stackVars)
	w.stackVars = append(w.stackVars, ilmodel.StackVar{Type: t, Offset: w.curOffset})
	w.curOffset += 8
	return idx
}

// DeclareLabel introduces a named label usable before it is written.
// Declaring the same label name twice is an error.
func (w *MethodWriter) DeclareLabel(name string) error {
	if _, ok := w.labels[name]; ok {
		return ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeDuplicateLabel, nil,
			"label %q already declared", name)
	}
	w.labels[name] = &label{}
	w.labelOrder = append(w.labelOrder, name)
	return nil
}

// WriteLabel sets name's byte offset to the current write position and
// resolves every previously recorded forward reference to it.
func (w *MethodWriter) WriteLabel(name string) error {
	l, ok := w.labels[name]
	if !ok {
		if err := w.DeclareLabel(name); err != nil {
			return err
		}
		l = w.labels[name]
	}
	if l.written {
		return ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeDuplicateLabel, nil,
			"label %q written twice", name)
	}
	l.offset = int64(len(w.code))
	l.written = true
	for _, patch := range l.patches {
		binary.LittleEndian.PutUint32(w.code[patch:], uint32(l.offset))
	}
	return nil
}

// emitBranchTarget writes a 32-bit placeholder for a branch target and
// records a patch site against the named label, to be resolved on
// WriteLabel; Finish rejects a label that was never written.
func (w *MethodWriter) emitBranchTarget(labelName string) {
	l, ok := w.labels[labelName]
	if !ok {
		l = &label{}
		w.labels[labelName] = l
		w.labelOrder = append(w.labelOrder, labelName)
	}
	patchAt := len(w.code)
	w.emitU32(0)
	if l.written {
		binary.LittleEndian.PutUint32(w.code[patchAt:], uint32(l.offset))
	} else {
		l.patches = append(l.patches, patchAt)
	}
}

func (w *MethodWriter) emitByte(b byte)   { w.code = append(w.code, b) }
func (w *MethodWriter) emitOp(op ilmodel.Opcode) { w.emitByte(byte(op)) }

func (w *MethodWriter) emitU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.code = append(w.code, buf[:]...)
}

func (w *MethodWriter) emitU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.code = append(w.code, buf[:]...)
}

// emitAddress writes an address's header and modifier-specific payload.
// Constant addresses additionally inline their raw literal bytes.
func (w *MethodWriter) emitAddress(a ilmodel.Address) {
	w.emitU32(a.Header())
	if a.Modifier != ilmodel.ModifierNone {
		w.emitU64(uint64(a.Payload()))
	}
	if a.Type == ilmodel.AddrConstant && len(a.ConstantBytes) > 0 {
		w.code = append(w.code, a.ConstantBytes...)
	}
}

// placeholderSubcode is written by the generator and reassigned by the
// linker once operand types are known.
const placeholderSubcode = 0xFF

func (w *MethodWriter) emitOpcodeWithSubcode(op ilmodel.Opcode, dst, src ilmodel.Address) {
	w.emitOp(op)
	if op.HasSubcode() {
		w.emitByte(placeholderSubcode)
	}
	w.emitAddress(dst)
	w.emitAddress(src)
}

// Set emits `set dst, src` (a plain value move/store).
func (w *MethodWriter) Set(dst, src ilmodel.Address) { w.emitOpcodeWithSubcode(ilmodel.OpSet, dst, src) }

// Conv emits a typed conversion of src into dst.
func (w *MethodWriter) Conv(dst, src ilmodel.Address) { w.emitOpcodeWithSubcode(ilmodel.OpConv, dst, src) }

// Ari emits one of the binary arithmetic opcodes over (dst op= src).
func (w *MethodWriter) Ari(op ilmodel.Opcode, dst, src ilmodel.Address) {
	w.emitOpcodeWithSubcode(op, dst, src)
}

// PAdd/PSub/PDif emit pointer arithmetic: dst is the pointer/result operand.
func (w *MethodWriter) PAdd(dst, offset ilmodel.Address) { w.emitTwoAddr(ilmodel.OpPAdd, dst, offset) }
func (w *MethodWriter) PSub(dst, offset ilmodel.Address) { w.emitTwoAddr(ilmodel.OpPSub, dst, offset) }
func (w *MethodWriter) PDif(dst, other ilmodel.Address)  { w.emitTwoAddr(ilmodel.OpPDif, dst, other) }

func (w *MethodWriter) emitTwoAddr(op ilmodel.Opcode, a, b ilmodel.Address) {
	w.emitOp(op)
	w.emitAddress(a)
	w.emitAddress(b)
}

// Cmp family emits a comparison; the result is conceptually stored to dst
// (the boolean result of the comparison), consuming a typed subcode.
func (w *MethodWriter) Cmp(op ilmodel.Opcode, dst, lhs, rhs ilmodel.Address) {
	w.emitOp(op)
	w.emitByte(placeholderSubcode)
	w.emitAddress(dst)
	w.emitAddress(lhs)
	w.emitAddress(rhs)
}

// CUnary emits the unary zero/non-zero compare (op is OpCZ or OpCNz).
func (w *MethodWriter) CUnary(op ilmodel.Opcode, dst, src ilmodel.Address) {
	w.emitOpcodeWithSubcode(op, dst, src)
}

// Branch family emits a conditional or unconditional branch to a label.
func (w *MethodWriter) Branch(op ilmodel.Opcode, lhs, rhs ilmodel.Address, labelName string) {
	w.emitOp(op)
	if op != ilmodel.OpBr {
		w.emitByte(placeholderSubcode)
		w.emitAddress(lhs)
		if op != ilmodel.OpBZ && op != ilmodel.OpBNz {
			w.emitAddress(rhs)
		}
	}
	w.emitBranchTarget(labelName)
}

// Switch emits `sw selector, labels...`.
func (w *MethodWriter) Switch(selector ilmodel.Address, labelNames []string) {
	w.emitOp(ilmodel.OpSw)
	w.emitAddress(selector)
	w.emitU32(uint32(len(labelNames)))
	for _, l := range labelNames {
		w.emitBranchTarget(l)
	}
}

// Call emits a void call to method, with the given argument addresses.
func (w *MethodWriter) Call(method ilmodel.MethodIndex, args []ilmodel.Address) {
	w.calledMethods[method] = true
	w.emitOp(ilmodel.OpCall)
	w.emitU32(uint32(method))
	w.emitU32(uint32(len(args)))
	for _, a := range args {
		w.emitAddress(a)
	}
}

// CallV emits a value-returning call to method, storing the result at dst.
func (w *MethodWriter) CallV(dst ilmodel.Address, method ilmodel.MethodIndex, args []ilmodel.Address) {
	w.calledMethods[method] = true
	w.emitOp(ilmodel.OpCallV)
	w.emitAddress(dst)
	w.emitU32(uint32(method))
	w.emitU32(uint32(len(args)))
	for _, a := range args {
		w.emitAddress(a)
	}
}

// Ret emits a void return.
func (w *MethodWriter) Ret() { w.emitOp(ilmodel.OpRet) }

// RetV emits a value-returning return of the given address.
func (w *MethodWriter) RetV(src ilmodel.Address) {
	w.emitOp(ilmodel.OpRetV)
	w.emitAddress(src)
}

// Dump emits a dump of the given address.
func (w *MethodWriter) Dump(src ilmodel.Address) {
	w.emitOp(ilmodel.OpDump)
	w.emitAddress(src)
}

// NoOp emits a no-op instruction.
func (w *MethodWriter) NoOp() { w.emitOp(ilmodel.OpNoop) }

// ReferenceGlobal marks a global/constant as referenced by this method, for
// the linker's link-time validation pass.
func (w *MethodWriter) ReferenceGlobal(g ilmodel.GlobalIndex) { w.referencedGlobals[g] = true }

// Finish writes the accumulated bytecode, stack layout and label table back
// into the owning Generator's method entry. A label that was declared or
// branched to but never written is a dangling forward reference: its branch
// placeholder would otherwise stay zeroed, silently compiling into a branch
// to offset 0 instead of being caught here.
func (w *MethodWriter) Finish() error {
	for _, name := range w.labelOrder {
		if !w.labels[name].written {
			return ilmodel.New(ilmodel.KindGenerator, ilmodel.CodeUndefinedLabel, nil,
				"label %q is referenced but never written", name)
		}
	}

	m := &w.g.im.Methods[w.idx]
	m.Bytecode = w.code
	m.StackVars = w.stackVars
	m.StackBytes = w.curOffset

	m.Labels = make([]int64, len(w.labelOrder))
	for i, name := range w.labelOrder {
		m.Labels[i] = w.labels[name].offset
	}
	return nil
}
