package ilmodel

import "fmt"

// Parameter is one entry of a signature's parameter list: its type and its
// computed byte offset within the packed parameter area.
type Parameter struct {
	Type   TypeIndex
	Offset int64
}

// Signature is a function-type descriptor: a return type (Void for none), a
// parameter list, the total byte size of the packed parameter area, and an
// optional cached index of the function-pointer type synthesized for this
// signature (declare_signature_type).
type Signature struct {
	Index      SignatureIndex
	Return     TypeIndex
	Params     []Parameter
	ParamBytes int64

	SignatureType TypeIndex // cached, InvalidType until first requested
}

// Key is the structural deduplication key for a signature: two signatures
// with the same (return, parameter types...) must compare equal under Key.
func (s *Signature) Key() string {
	buf := fmt.Sprintf("%d(", s.Return)
	for i, p := range s.Params {
		if i > 0 {
			buf += ","
		}
		buf += fmt.Sprintf("%d", p.Type)
	}
	return buf + ")"
}

// SignatureKey computes the structural key directly from a return type and
// parameter type list, for use before a Signature value exists (e.g. during
// make_signature's lookup).
func SignatureKey(ret TypeIndex, params []TypeIndex) string {
	buf := fmt.Sprintf("%d(", ret)
	for i, p := range params {
		if i > 0 {
			buf += ","
		}
		buf += fmt.Sprintf("%d", p)
	}
	return buf + ")"
}
