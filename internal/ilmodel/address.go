package ilmodel

// AddrType is the 2-bit "what kind of storage does this address name" field
// of the packed address header.
type AddrType uint32

const (
	AddrStackVar AddrType = iota
	AddrParameter
	AddrGlobal
	AddrConstant
)

// AddrPrefix is the 2-bit unary-prefix field: *, &, ! or none.
type AddrPrefix uint32

const (
	PrefixNone AddrPrefix = iota
	PrefixIndirection      // *
	PrefixAddressOf        // &
	PrefixSizeOf           // !
)

// AddrModifier is the 2-bit postfix-modifier field: ., ->, [n] or none.
type AddrModifier uint32

const (
	ModifierNone AddrModifier = iota
	ModifierDirectField      // .name
	ModifierIndirectField    // ->name
	ModifierSubscript        // [n]
)

// Bit layout of the 32-bit packed address header, MSB first:
//
//	[ type:2 | prefix:2 | modifier:2 | index:26 ]
const (
	indexBits    = 26
	modifierBits = 2
	prefixBits   = 2
	typeBits     = 2

	indexShift    = 0
	modifierShift = indexShift + indexBits
	prefixShift   = modifierShift + modifierBits
	typeShift     = prefixShift + prefixBits

	indexMask    = uint32(1)<<indexBits - 1
	modifierMask = uint32(1)<<modifierBits - 1
	prefixMask   = uint32(1)<<prefixBits - 1
	typeMask     = uint32(1)<<typeBits - 1
)

// ReturnSlotIndex is the all-ones value of the 26-bit index field, denoting
// the return-value slot of the current frame ({^} in source form).
const ReturnSlotIndex uint32 = indexMask

// EncodeHeader packs the four address-header fields into one uint32.
func EncodeHeader(typ AddrType, prefix AddrPrefix, modifier AddrModifier, index uint32) uint32 {
	return (uint32(typ)&typeMask)<<typeShift |
		(uint32(prefix)&prefixMask)<<prefixShift |
		(uint32(modifier)&modifierMask)<<modifierShift |
		(index & indexMask)
}

// DecodeHeader unpacks a header produced by EncodeHeader.
func DecodeHeader(header uint32) (typ AddrType, prefix AddrPrefix, modifier AddrModifier, index uint32) {
	typ = AddrType((header >> typeShift) & typeMask)
	prefix = AddrPrefix((header >> prefixShift) & prefixMask)
	modifier = AddrModifier((header >> modifierShift) & modifierMask)
	index = header & indexMask
	return
}

// Address is a decoded address: the packed header plus its 64-bit payload.
// The payload is an OffsetIdx for field modifiers, or a signed byte offset
// for a subscript modifier. A constant address stores its base type in
// Index and the literal's raw bytes out-of-band, inlined into the bytecode
// stream immediately after the header by the generator.
type Address struct {
	Type     AddrType
	Prefix   AddrPrefix
	Modifier AddrModifier
	Index    uint32

	// OffsetIdx is meaningful when Modifier is ModifierDirectField or
	// ModifierIndirectField.
	OffsetIdx OffsetIndex

	// Subscript is meaningful when Modifier is ModifierSubscript: a signed
	// element-count offset, not a byte offset (the linker/interpreter scale
	// it by the element size).
	Subscript int64

	// ConstantBytes holds the literal's raw little-endian bytes when Type is
	// AddrConstant. The bytecode encoding inlines these immediately after
	// the header; this field is how a Go caller carries them
	// from parse/generation time through to that inlining.
	ConstantBytes []byte
}

// Header packs this address's type/prefix/modifier/index fields.
func (a Address) Header() uint32 {
	return EncodeHeader(a.Type, a.Prefix, a.Modifier, a.Index)
}

// IsReturnSlot reports whether this address names the current frame's
// return-value slot ({^} in source form).
func (a Address) IsReturnSlot() bool {
	return a.Type == AddrStackVar && a.Index == ReturnSlotIndex
}

// DecodeAddress rebuilds an Address from a header and the modifier-specific
// payload (OffsetIdx for field modifiers, a signed offset for subscript).
func DecodeAddress(header uint32, payload int64) Address {
	typ, prefix, modifier, index := DecodeHeader(header)
	a := Address{Type: typ, Prefix: prefix, Modifier: modifier, Index: index}
	switch modifier {
	case ModifierDirectField, ModifierIndirectField:
		a.OffsetIdx = OffsetIndex(uint32(payload))
	case ModifierSubscript:
		a.Subscript = payload
	}
	return a
}

// Payload returns this address's modifier-specific payload, ready to be
// written to the bytecode stream alongside Header().
func (a Address) Payload() int64 {
	switch a.Modifier {
	case ModifierDirectField, ModifierIndirectField:
		return int64(uint32(a.OffsetIdx))
	case ModifierSubscript:
		return a.Subscript
	default:
		return 0
	}
}
