package ilmodel

import "encoding/binary"

// StackVar is one entry of a method's stack-variable table: its type and
// its computed byte offset within the method's stack frame.
type StackVar struct {
	Type   TypeIndex
	Offset int64
}

// Method is one entry of the method table: a unique index, identifier,
// external flag, signature, bytecode body, label table (byte offsets into
// the bytecode), stack-variable table, total stack-frame size and source
// metadata.
//
// An external method's Bytecode contains exactly the little-endian encoding
// of an ExternalCall pair, which the interpreter decodes to dispatch into a
// host library rather than executing bytecode.
type Method struct {
	Index     MethodIndex
	Name      NameIndex
	External  bool
	Signature SignatureIndex

	Bytecode   []byte
	Labels     []int64 // byte offsets into Bytecode, indexed by label_idx
	StackVars  []StackVar
	StackBytes int64

	Meta Meta
}

// ExternalCall is the payload of an external method's "bytecode": the index
// of the host library providing it and the library-local call index used to
// resolve the host thunk.
type ExternalCall struct {
	LibraryIndex uint32
	CallIndex    uint32
}

// Encode serializes an ExternalCall as the 8-byte little-endian pair that
// becomes an external method's Bytecode.
func (c ExternalCall) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], c.LibraryIndex)
	binary.LittleEndian.PutUint32(buf[4:8], c.CallIndex)
	return buf
}

// DecodeExternalCall is the inverse of Encode.
func DecodeExternalCall(b []byte) ExternalCall {
	return ExternalCall{
		LibraryIndex: binary.LittleEndian.Uint32(b[0:4]),
		CallIndex:    binary.LittleEndian.Uint32(b[4:8]),
	}
}
