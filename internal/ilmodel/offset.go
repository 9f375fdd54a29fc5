package ilmodel

import "fmt"

// FieldAddress is the intermediate (pre-link) form of a field reference: a
// root type and a chain of field names to walk from it. Two field
// addresses with the same (root, chain) are the same offset entry.
type FieldAddress struct {
	Root  TypeIndex
	Chain []NameIndex
}

// Key is the structural deduplication key for a field address/offset.
func (a FieldAddress) Key() string {
	buf := fmt.Sprintf("%d:", a.Root)
	for i, n := range a.Chain {
		if i > 0 {
			buf += "."
		}
		buf += fmt.Sprintf("%d", n)
	}
	return buf
}

// FieldOffset is the assembly (post-link) form of a field reference: the
// same chain, resolved to a resulting type and a total byte offset from the
// root.
type FieldOffset struct {
	Index      OffsetIndex
	Root       TypeIndex
	Chain      []NameIndex
	ResultType TypeIndex
	ByteOffset int64
}

// Key reuses FieldAddress's structural key so offsets dedup identically to
// the field addresses they were resolved from.
func (o FieldOffset) Key() string {
	return FieldAddress{Root: o.Root, Chain: o.Chain}.Key()
}
