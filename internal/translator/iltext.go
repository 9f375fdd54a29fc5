// Package translator re-emits a linked Assembly in the two external forms
// spec.md names: its own textual IL grammar, and a plain C source form
// whose scope is limited to the name-mangling and constant-emission
// contracts it shares with the core.
package translator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"il.dev/il/internal/ilmodel"
)

var baseTypeNames = [ilmodel.NumBaseTypes]string{
	ilmodel.I8: "i8", ilmodel.U8: "u8", ilmodel.I16: "i16", ilmodel.U16: "u16",
	ilmodel.I32: "i32", ilmodel.U32: "u32", ilmodel.I64: "i64", ilmodel.U64: "u64",
	ilmodel.F32: "f32", ilmodel.F64: "f64", ilmodel.VPtr: "vptr", ilmodel.Void: "void",
}

var opcodeNames = map[ilmodel.Opcode]string{
	ilmodel.OpNoop: "noop", ilmodel.OpSet: "set", ilmodel.OpConv: "conv",
	ilmodel.OpAriAdd: "ari_add", ilmodel.OpAriSub: "ari_sub", ilmodel.OpAriMul: "ari_mul",
	ilmodel.OpAriDiv: "ari_div", ilmodel.OpAriMod: "ari_mod",
	ilmodel.OpPAdd: "padd", ilmodel.OpPSub: "psub", ilmodel.OpPDif: "pdif",
	ilmodel.OpCmp: "cmp", ilmodel.OpCEq: "ceq", ilmodel.OpCNe: "cne",
	ilmodel.OpCLt: "clt", ilmodel.OpCLe: "cle", ilmodel.OpCGt: "cgt", ilmodel.OpCGe: "cge",
	ilmodel.OpCZ: "cz", ilmodel.OpCNz: "cnz",
	ilmodel.OpBr: "br", ilmodel.OpBEq: "beq", ilmodel.OpBNe: "bne",
	ilmodel.OpBLt: "blt", ilmodel.OpBLe: "ble", ilmodel.OpBGt: "bgt", ilmodel.OpBGe: "bge",
	ilmodel.OpBZ: "bz", ilmodel.OpBNz: "bnz", ilmodel.OpSw: "sw",
	ilmodel.OpCall: "call", ilmodel.OpCallV: "callv",
	ilmodel.OpRet: "ret", ilmodel.OpRetV: "retv", ilmodel.OpDump: "dump",
}

// ILText re-emits as in textIL an Assembly as spec.md §6's textual IL
// grammar: struct/union declarations, then the globals and constants
// sections, then method bodies (the parser resolves a global operand only
// if its declaration came earlier in the text). Round-tripping this output back through the
// parser and an empty-intermediate merge must reproduce the same linked
// behaviour (spec.md §8 property 7).
type ILText struct {
	as *ilmodel.Assembly
}

// New wraps as for text-IL (and, via C, C-source) emission.
func New(as *ilmodel.Assembly) *ILText {
	return &ILText{as: as}
}

// Emit renders the whole assembly as textual IL.
func (t *ILText) Emit() string {
	var b strings.Builder
	for i := range t.as.Types {
		idx := ilmodel.TypeIndex(i)
		if ilmodel.IsBase(idx) {
			continue
		}
		typ := t.as.Types[i]
		if typ.Flags&ilmodel.FlagGenerated != 0 {
			continue // pointer/array/signature types have no surface declaration
		}
		t.emitAggregate(&b, idx, typ)
	}
	t.emitDataTable(&b, "global", t.as.Globals)
	t.emitDataTable(&b, "constant", t.as.Constants)
	for i := range t.as.Methods {
		t.emitMethod(&b, ilmodel.MethodIndex(i), t.as.Methods[i])
	}
	return b.String()
}

func (t *ILText) typeName(idx ilmodel.TypeIndex) string {
	if ilmodel.IsBase(idx) {
		return baseTypeNames[idx]
	}
	typ := t.as.Types[idx]
	if typ.Name.Valid() {
		return t.as.Names[typ.Name]
	}
	switch {
	case typ.Flags&ilmodel.FlagPointer != 0:
		return t.typeName(typ.Generated.Pointee) + "*"
	case typ.Flags&ilmodel.FlagArray != 0:
		return fmt.Sprintf("%s[%d]", t.typeName(typ.Generated.Element), typ.Generated.Count)
	case typ.Flags&ilmodel.FlagSignature != 0:
		sig := t.as.Signatures[typ.Generated.Signature]
		return t.signatureName(sig)
	}
	return fmt.Sprintf("<type %d>", idx)
}

func (t *ILText) signatureName(sig ilmodel.Signature) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = t.typeName(p.Type)
	}
	return fmt.Sprintf("(%s)->%s", strings.Join(params, ","), t.typeName(sig.Return))
}

// emitAggregate renders `struct NAME\n  field:Type\n...end`, the
// single-identifier-per-field form the parser's own field loop accepts
// (fieldName, then a colon, then the type — not the reverse).
func (t *ILText) emitAggregate(b *strings.Builder, idx ilmodel.TypeIndex, typ ilmodel.Type) {
	kind := "struct"
	if typ.IsUnion() {
		kind = "union"
	}
	fmt.Fprintf(b, "%s %s\n", kind, t.typeName(idx))
	for _, f := range typ.Fields {
		fmt.Fprintf(b, "  %s:%s\n", t.as.Names[f.Name], t.typeName(f.Type))
	}
	b.WriteString("end\n\n")
}

// emitMethod renders a method the way the parser's own `parseMethodDecl`
// reads it back: `method NAME [parameters(T,T)] [returns T]`, followed —
// for a non-external method — by an optional `stack(T,T)` declaration, the
// instruction stream, and a single closing `end`. An external method has
// no stack, no body, and no `end` at all: its declaration line is the
// whole thing.
func (t *ILText) emitMethod(b *strings.Builder, idx ilmodel.MethodIndex, mt ilmodel.Method) {
	sig := t.as.Signatures[mt.Signature]
	keyword := "method"
	if mt.External {
		keyword = "external"
	}
	fmt.Fprintf(b, "%s %s", keyword, t.as.Names[mt.Name])
	if len(sig.Params) > 0 {
		params := make([]string, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = t.typeName(p.Type)
		}
		fmt.Fprintf(b, " parameters(%s)", strings.Join(params, ", "))
	}
	if sig.Return != ilmodel.Void {
		fmt.Fprintf(b, " returns %s", t.typeName(sig.Return))
	}
	if mt.External {
		b.WriteString("\n\n")
		return
	}
	if len(mt.StackVars) > 0 {
		types := make([]string, len(mt.StackVars))
		for i, sv := range mt.StackVars {
			types[i] = t.typeName(sv.Type)
		}
		fmt.Fprintf(b, " stack(%s)", strings.Join(types, ", "))
	}
	labelNames := branchLabelNames(mt.Bytecode)
	b.WriteString("\n")
	_ = ilmodel.Walk(mt.Bytecode, func(in ilmodel.Instruction) error {
		if name, ok := labelNames[int64(in.Start)]; ok {
			fmt.Fprintf(b, "%s:\n", name)
		}
		t.emitInstruction(b, in, labelNames)
		return nil
	})
	b.WriteString("end\n\n")
}

// branchLabelNames assigns a synthetic label name to every byte offset any
// instruction in code branches to, so branch targets can be rendered as the
// bare identifiers parseLabelRef expects instead of raw byte offsets that
// have no surface syntax of their own.
func branchLabelNames(code []byte) map[int64]string {
	targets := map[int64]bool{}
	_ = ilmodel.Walk(code, func(in ilmodel.Instruction) error {
		for _, tgt := range in.BranchTargets {
			targets[tgt] = true
		}
		return nil
	})
	offsets := make([]int64, 0, len(targets))
	for off := range targets {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	names := make(map[int64]string, len(offsets))
	for i, off := range offsets {
		names[off] = fmt.Sprintf("L%d", i)
	}
	return names
}

func (t *ILText) emitInstruction(b *strings.Builder, in ilmodel.Instruction, labelNames map[int64]string) {
	name, ok := opcodeNames[in.Op]
	if !ok {
		name = fmt.Sprintf("op%d", in.Op)
	}
	b.WriteString("  ")
	b.WriteString(name)
	switch in.Op {
	case ilmodel.OpCall, ilmodel.OpCallV:
		for _, a := range in.Addrs {
			b.WriteString(" ")
			b.WriteString(t.addr(a))
		}
		fmt.Fprintf(b, " method%d", in.CallMethod)
	case ilmodel.OpSw:
		b.WriteString(" ")
		b.WriteString(t.addr(in.Addrs[0]))
		for _, target := range in.BranchTargets {
			fmt.Fprintf(b, " %s", labelNames[target])
		}
	default:
		for i, a := range in.Addrs {
			if i == 0 {
				b.WriteString(" ")
			} else {
				b.WriteString(", ") // parseTwoAddresses/parseThreeAddresses expect commas
			}
			b.WriteString(t.addr(a))
		}
		for _, target := range in.BranchTargets {
			fmt.Fprintf(b, " %s", labelNames[target])
		}
	}
	b.WriteString("\n")
}

func (t *ILText) addr(a ilmodel.Address) string {
	var prefix string
	switch a.Prefix {
	case ilmodel.PrefixIndirection:
		prefix = "*"
	case ilmodel.PrefixAddressOf:
		prefix = "&"
	case ilmodel.PrefixSizeOf:
		prefix = "!"
	}

	var basic string
	switch a.Type {
	case ilmodel.AddrStackVar:
		if a.IsReturnSlot() {
			basic = "{^}"
		} else {
			basic = fmt.Sprintf("{%d}", a.Index)
		}
	case ilmodel.AddrParameter:
		basic = fmt.Sprintf("(%d)", a.Index)
	case ilmodel.AddrGlobal:
		gi := ilmodel.GlobalIndex(a.Index)
		table := t.as.Globals
		if gi.IsConstant() {
			table = t.as.Constants
		}
		ord := gi.Ordinal()
		if int(ord) < len(table.Entries) {
			basic = t.as.Names[table.Entries[ord].Name]
		} else {
			basic = fmt.Sprintf("<global %d>", ord)
		}
	case ilmodel.AddrConstant:
		if ilmodel.TypeIndex(a.Index) == ilmodel.VPtr {
			basic = "null"
		} else {
			basic = literalText(ilmodel.TypeIndex(a.Index), a.ConstantBytes)
		}
	}

	var modifier string
	switch a.Modifier {
	case ilmodel.ModifierDirectField:
		modifier = "." + t.fieldChain(a.OffsetIdx)
	case ilmodel.ModifierIndirectField:
		modifier = "->" + t.fieldChain(a.OffsetIdx)
	case ilmodel.ModifierSubscript:
		modifier = fmt.Sprintf("[%d]", a.Subscript)
	}

	return prefix + basic + modifier
}

// fieldChain renders the single field name a `.`/`->` modifier carries.
// parseAddress only ever captures one identifier after the dot or arrow, so
// a chain longer than one entry (only reachable by building an Intermediate
// through the generator API directly) has no surface-syntax equivalent;
// this emits its first field and drops the rest rather than produce text
// the parser cannot read back.
func (t *ILText) fieldChain(idx ilmodel.OffsetIndex) string {
	if int(idx) >= len(t.as.Offsets) {
		return fmt.Sprintf("<offset %d>", idx)
	}
	fo := t.as.Offsets[idx]
	if len(fo.Chain) == 0 {
		return "<empty>"
	}
	return t.as.Names[fo.Chain[0]]
}

// emitDataTable renders each entry as its own `global|constant NAME : TYPE
// init(...)` declaration — parseGlobalDecl reads exactly one such
// declaration per call and never consumes a shared section-level `end`.
func (t *ILText) emitDataTable(b *strings.Builder, keyword string, table ilmodel.DataTable) {
	for _, e := range table.Entries {
		size := t.entrySize(e.Type)
		raw := table.Bytes[e.Offset : e.Offset+size]
		fmt.Fprintf(b, "%s %s : %s init(%s)\n", keyword, t.as.Names[e.Name], t.typeName(e.Type),
			strings.Join(t.literalInitList(e.Type, raw), ", "))
	}
	if len(table.Entries) > 0 {
		b.WriteString("\n")
	}
}

func (t *ILText) entrySize(typ ilmodel.TypeIndex) int64 {
	if ilmodel.IsBase(typ) {
		return ilmodel.BaseTypeSizes(t.as.WordSize)[typ]
	}
	return t.as.Types[typ].Size
}

// literalInitList flattens typ's raw bytes into the literal sequence
// `init(...)` expects: one literal per base-type leaf, visiting aggregate
// fields in declaration order. A generated (pointer/array/signature) leaf
// has no source-level literal form other than `null`, which is all the
// grammar's own init-list syntax supports for it.
func (t *ILText) literalInitList(typ ilmodel.TypeIndex, raw []byte) []string {
	if ilmodel.IsBase(typ) {
		return []string{literalText(typ, raw)}
	}
	gt := t.as.Types[typ]
	if gt.Flags&ilmodel.FlagGenerated != 0 {
		return []string{"null"}
	}
	var out []string
	for _, f := range gt.Fields {
		size := t.entrySize(f.Type)
		end := f.Offset + size
		if end > int64(len(raw)) {
			end = int64(len(raw))
		}
		out = append(out, t.literalInitList(f.Type, raw[f.Offset:end])...)
	}
	return out
}

// literalText renders an inlined constant's raw bytes as a source literal
// with an explicit type suffix, so reparsing it always recovers the exact
// same base type regardless of magnitude (the parser's own suffixless
// defaulting only ever lands on i32/i64/u64).
func literalText(t ilmodel.TypeIndex, raw []byte) string {
	if len(raw) == 0 {
		return "0i32"
	}
	bits := uint64(0)
	for i := len(raw) - 1; i >= 0; i-- {
		bits = bits<<8 | uint64(raw[i])
	}
	suffix := literalSuffix[t]
	switch {
	case ilmodel.IsFloatingPoint(t):
		var f float64
		if t == ilmodel.F32 {
			f = float64(math.Float32frombits(uint32(bits)))
		} else {
			f = math.Float64frombits(bits)
		}
		return strconv.FormatFloat(f, 'g', -1, 64) + suffix
	case ilmodel.IsUnsigned(t):
		return strconv.FormatUint(bits, 10) + suffix
	default:
		return strconv.FormatInt(int64(bits), 10) + suffix
	}
}

var literalSuffix = map[ilmodel.TypeIndex]string{
	ilmodel.I8: "i8", ilmodel.U8: "u8", ilmodel.I16: "i16", ilmodel.U16: "u16",
	ilmodel.I32: "i32", ilmodel.U32: "u32", ilmodel.I64: "i64", ilmodel.U64: "u64",
	ilmodel.F32: "f32", ilmodel.F64: "f64",
}
