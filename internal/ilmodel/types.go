package ilmodel

// Base type indices. These occupy indices 0..11 in exactly this order;
// every predicate below (IsIntegral, IsUnsigned, ...) depends on this order
// holding, regardless of target word size.
const (
	I8 TypeIndex = iota
	U8
	I16
	U16
	I32
	U32
	I64
	U64
	F32
	F64
	VPtr
	Void

	NumBaseTypes = int(Void) + 1
)

// BaseTypeSizes gives the byte size of each base type for a given pointer
// width (vptr's size is the target word size, not a fixed constant).
func BaseTypeSizes(wordSize int) [NumBaseTypes]int64 {
	return [NumBaseTypes]int64{
		I8: 1, U8: 1, I16: 2, U16: 2, I32: 4, U32: 4, I64: 8, U64: 8,
		F32: 4, F64: 8, VPtr: int64(wordSize), Void: 0,
	}
}

// IsIntegral reports whether t is one of the eight integer base types.
func IsIntegral(t TypeIndex) bool { return t < F32 }

// IsUnsigned reports whether t is an unsigned integer base type (the odd
// indices within the integral range).
func IsUnsigned(t TypeIndex) bool { return IsIntegral(t) && uint32(t)%2 == 1 }

// IsFloatingPoint reports whether t is f32 or f64.
func IsFloatingPoint(t TypeIndex) bool { return t == F32 || t == F64 }

// IsArithmetic reports whether t is any of the ten numeric base types.
func IsArithmetic(t TypeIndex) bool { return t <= F64 }

// IsBase reports whether t is one of the eleven base types or void.
func IsBase(t TypeIndex) bool { return uint32(t) < uint32(NumBaseTypes) }

// TypeFlag is a bit set describing the shape of a Type.
type TypeFlag uint32

const (
	FlagUnion TypeFlag = 1 << iota
	FlagExternal
	FlagPointer
	FlagArray
	FlagSignature
)

// FlagGenerated is the union of the three "generated" shapes: pointer-of,
// array-of and signature-type.
const FlagGenerated = FlagPointer | FlagArray | FlagSignature

// GeneratedKind discriminates which payload a generated type carries.
type GeneratedKind int

const (
	GeneratedNone GeneratedKind = iota
	GeneratedPointer
	GeneratedArray
	GeneratedSignature
)

// Generated is the discriminated payload of a pointer/array/signature type.
// Exactly one of the field groups is meaningful, selected by Kind.
type Generated struct {
	Kind GeneratedKind

	// GeneratedPointer:
	Pointee     TypeIndex
	PointeeSize int64

	// GeneratedArray:
	Element TypeIndex
	Count   uint64

	// GeneratedSignature:
	Signature SignatureIndex
}

// Field is one named, typed, byte-offset member of a struct/union type.
type Field struct {
	Name   NameIndex
	Type   TypeIndex
	Offset int64
}

// resolveState tracks the linker's three-color type-resolution walk.
type resolveState int

const (
	stateUnresolved resolveState = iota
	stateResolving
	stateResolved
)

// Type is one entry of the type table: a unique index, optional identifier,
// shape flags, an optional generated payload, a field list, computed size,
// an optional cached "pointer to this" index, and source metadata.
type Type struct {
	Index TypeIndex
	Name  NameIndex // InvalidName if anonymous

	Flags     TypeFlag
	Generated *Generated // non-nil iff Flags&FlagGenerated != 0

	Fields []Field
	Size   int64

	PointerTo TypeIndex // cached "pointer to this type" index, or InvalidType

	Meta Meta

	resolve resolveState
}

// IsUnion reports whether this type's fields overlap (all at offset 0) or
// are laid out sequentially (a struct).
func (t *Type) IsUnion() bool { return t.Flags&FlagUnion != 0 }

// IsExternal reports whether this type was declared but never defined, i.e.
// forward-declared by name only and defined in a merged-in intermediate.
func (t *Type) IsExternal() bool { return t.Flags&FlagExternal != 0 }

// IsGenerated reports whether this type is a pointer/array/signature type.
func (t *Type) IsGenerated() bool { return t.Flags&FlagGenerated != 0 }

// FieldByName looks up a field by name index, returning its position or -1.
func (t *Type) FieldByName(name NameIndex) int {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return i
		}
	}
	return -1
}
