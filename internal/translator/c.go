package translator

import (
	"fmt"
	"strings"

	"il.dev/il/internal/ilmodel"
)

// CMangle computes a linked method's C symbol name: the
// "propane_<identifier>" scheme of the original C translator, carried
// forward because spec.md keeps the mangling contract in scope even while
// excluding the C translator's pretty-printing.
func CMangle(as *ilmodel.Assembly, idx ilmodel.MethodIndex) string {
	mt := as.Methods[idx]
	return "propane_" + as.Names[mt.Name]
}

// CTypeName computes the mangled C spelling of a type: base types map to
// their fixed-width C equivalents, and generated types synthesize a name
// from their own mangling rule (pointee/element/signature name plus a
// shape suffix) the same way the original scheme built one for an
// otherwise-anonymous pointer/array/signature type.
func CTypeName(as *ilmodel.Assembly, idx ilmodel.TypeIndex) string {
	if ilmodel.IsBase(idx) {
		return cBaseTypeNames[idx]
	}
	typ := as.Types[idx]
	switch {
	case typ.Flags&ilmodel.FlagPointer != 0:
		return CTypeName(as, typ.Generated.Pointee) + "*"
	case typ.Flags&ilmodel.FlagArray != 0:
		return fmt.Sprintf("%s_arr%d", CTypeName(as, typ.Generated.Element), typ.Generated.Count)
	case typ.Flags&ilmodel.FlagSignature != 0:
		sig := as.Signatures[typ.Generated.Signature]
		params := make([]string, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = CTypeName(as, p.Type)
		}
		return fmt.Sprintf("propane_fn_%s__%s", strings.Join(params, "_"), CTypeName(as, sig.Return))
	}
	if typ.Name.Valid() {
		return "propane_" + as.Names[typ.Name]
	}
	return fmt.Sprintf("propane_anon_t%d", idx)
}

var cBaseTypeNames = [ilmodel.NumBaseTypes]string{
	ilmodel.I8: "int8_t", ilmodel.U8: "uint8_t", ilmodel.I16: "int16_t", ilmodel.U16: "uint16_t",
	ilmodel.I32: "int32_t", ilmodel.U32: "uint32_t", ilmodel.I64: "int64_t", ilmodel.U64: "uint64_t",
	ilmodel.F32: "float", ilmodel.F64: "double", ilmodel.VPtr: "void*", ilmodel.Void: "void",
}

// CConstant renders a data-table entry's raw little-endian bytes as a C
// initializer literal, matching the original's constant-emission contract
// for the scalar/pointer/aggregate cases.
func CConstant(as *ilmodel.Assembly, entry ilmodel.DataEntry, raw []byte) string {
	if ilmodel.IsBase(entry.Type) {
		return cScalarLiteral(entry.Type, raw)
	}
	typ := as.Types[entry.Type]
	if typ.Flags&ilmodel.FlagGenerated == 0 {
		parts := make([]string, 0, len(typ.Fields))
		for _, f := range typ.Fields {
			size := as.Types[f.Type].Size
			if ilmodel.IsBase(f.Type) {
				size = ilmodel.BaseTypeSizes(as.WordSize)[f.Type]
			}
			end := f.Offset + size
			if end > int64(len(raw)) {
				end = int64(len(raw))
			}
			parts = append(parts, CConstant(as, ilmodel.DataEntry{Type: f.Type}, raw[f.Offset:end]))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	}
	// pointer/array/signature constants are emitted as their raw
	// little-endian bit pattern; a real linker resolves them to a C symbol
	// reference, out of scope for the mangling/constant contract alone.
	return cScalarLiteral(ilmodel.U64, raw)
}

func cScalarLiteral(t ilmodel.TypeIndex, raw []byte) string {
	bits := uint64(0)
	for i := len(raw) - 1; i >= 0; i-- {
		bits = bits<<8 | uint64(raw[i])
	}
	if ilmodel.IsFloatingPoint(t) {
		return fmt.Sprintf("%#x /* float bits */", bits)
	}
	if ilmodel.IsUnsigned(t) {
		return fmt.Sprintf("%dU", bits)
	}
	return fmt.Sprintf("%d", int64(bits))
}
