package ilmodel

// index_t is the underlying representation of every dense index space: type,
// method, signature, offset, global, name and metadata indices are all
// dense unsigned integers, with the all-ones value reserved as "invalid".
type indexT = uint32

const invalidIndex indexT = 0xFFFFFFFF

// TypeIndex indexes the type table.
type TypeIndex indexT

// MethodIndex indexes the method table.
type MethodIndex indexT

// SignatureIndex indexes the signature table.
type SignatureIndex indexT

// OffsetIndex indexes the field-offset table.
type OffsetIndex indexT

// NameIndex indexes the shared identifier-name table.
type NameIndex indexT

// MetaIndex indexes the shared file/line metadata table.
type MetaIndex indexT

// GlobalIndex indexes the globals-or-constants data table. The top bit
// distinguishes a constant (1) from a mutable global (0). This packed value
// is what an AddrGlobal address stores in its 26-bit index field, so the
// flag bit is bit 25, not bit 31: a GlobalIndex
// must fit whole inside that field, costing one bit of ordinal range (still
// 2^25 entries per table) rather than losing the constant/mutable
// distinction on the trip through Address.Index.
type GlobalIndex indexT

const globalConstantBit indexT = 1 << 25

// InvalidType, InvalidMethod, ... are the sentinel "no such index" values,
// identical to invalidIndex across every index space.
const (
	InvalidType      TypeIndex      = TypeIndex(invalidIndex)
	InvalidMethod    MethodIndex    = MethodIndex(invalidIndex)
	InvalidSignature SignatureIndex = SignatureIndex(invalidIndex)
	InvalidOffset    OffsetIndex    = OffsetIndex(invalidIndex)
	InvalidName      NameIndex      = NameIndex(invalidIndex)
	InvalidMeta      MetaIndex      = MetaIndex(invalidIndex)
	InvalidGlobal    GlobalIndex    = GlobalIndex(invalidIndex)
)

func (i TypeIndex) Valid() bool      { return i != InvalidType }
func (i MethodIndex) Valid() bool    { return i != InvalidMethod }
func (i SignatureIndex) Valid() bool { return i != InvalidSignature }
func (i OffsetIndex) Valid() bool    { return i != InvalidOffset }
func (i NameIndex) Valid() bool      { return i != InvalidName }
func (i MetaIndex) Valid() bool      { return i != InvalidMeta }

// NewGlobalIndex packs an index and the constant flag into a GlobalIndex.
func NewGlobalIndex(idx uint32, isConstant bool) GlobalIndex {
	if isConstant {
		return GlobalIndex(idx | globalConstantBit)
	}
	return GlobalIndex(idx &^ globalConstantBit)
}

// IsConstant reports whether this index refers to the constants table
// rather than the mutable-globals table.
func (g GlobalIndex) IsConstant() bool { return uint32(g)&globalConstantBit != 0 }

// Ordinal returns the index within whichever table (globals or constants)
// this GlobalIndex belongs to, with the flag bit stripped.
func (g GlobalIndex) Ordinal() uint32 { return uint32(g) &^ globalConstantBit }

// Valid reports whether g is not the all-ones sentinel (flag bit excluded).
func (g GlobalIndex) Valid() bool { return g.Ordinal() != uint32(invalidIndex)&^globalConstantBit }
