package parser

import (
	"math"
	"strconv"
	"strings"

	"il.dev/il/internal/ilmodel"
)

// Literal is a parsed numeric literal: its resolved base type and its raw
// 8-byte value, stored the same way for every arithmetic type so the
// generator can hand it straight to a global/constant initializer.
type Literal struct {
	Type  ilmodel.TypeIndex
	Value uint64 // reinterpret per Type: as_i8 .. as_f64, per original_source's literal_t union
}

// integerSuffix maps a literal's lowercase suffix to a forced base type, per
// original_source/src/literals.cpp's parse_integer_suffix.
var integerSuffix = map[string]ilmodel.TypeIndex{
	"i8": ilmodel.I8, "i16": ilmodel.I16, "i32": ilmodel.I32, "i64": ilmodel.I64,
	"u8": ilmodel.U8, "u16": ilmodel.U16, "u32": ilmodel.U32, "u64": ilmodel.U64,
	"u": ilmodel.U32, "ul": ilmodel.U64, "l": ilmodel.I64,
}

// ParseLiteral resolves a lexed TOKEN_INT or TOKEN_FLOAT token's text into a
// typed value. An integer literal without a suffix takes the smallest of
// {i32, i64, u64} that fits its magnitude.
func ParseLiteral(tok Token) (Literal, error) {
	text := tok.Val
	negative := false
	if strings.HasPrefix(text, "-") {
		negative = true
		text = text[1:]
	} else if strings.HasPrefix(text, "+") {
		text = text[1:]
	}

	if tok.Kind == TOKEN_FLOAT {
		return parseFloatLiteral(text, negative, tok)
	}
	return parseIntLiteral(text, negative, tok)
}

func splitSuffix(text string, base int) (digits, suffix string) {
	i := len(text)
	for i > 0 {
		c := text[i-1]
		isDigitForBase := (base == 16 && isHexDigit(c)) ||
			(base == 2 && (c == '0' || c == '1')) ||
			(base == 10 && isDigit(c))
		if isDigitForBase {
			break
		}
		i--
	}
	return text[:i], text[i:]
}

func parseIntLiteral(text string, negative bool, tok Token) (Literal, error) {
	base := 10
	digits := text
	switch {
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		base = 16
		digits = text[2:]
	case strings.HasPrefix(text, "0b") || strings.HasPrefix(text, "0B"):
		base = 2
		digits = text[2:]
	}

	numerals, suffix := splitSuffix(digits, base)
	value, err := strconv.ParseUint(numerals, base, 64)
	if err != nil {
		return Literal{}, ilmodel.New(ilmodel.KindParser, ilmodel.CodeLiteralParseFailure,
			&ilmodel.Meta{Line: tok.Line}, "malformed integer literal %q", tok.Val)
	}

	typ, ok := integerSuffix[strings.ToLower(suffix)]
	if suffix != "" && !ok {
		return Literal{}, ilmodel.New(ilmodel.KindParser, ilmodel.CodeLiteralParseFailure,
			&ilmodel.Meta{Line: tok.Line}, "unknown integer suffix %q", suffix)
	}
	if !ok {
		switch {
		case value <= math.MaxInt32:
			typ = ilmodel.I32
		case value <= math.MaxInt64:
			typ = ilmodel.I64
		default:
			typ = ilmodel.U64
		}
	}

	if negative {
		value = negateBits(value, typ)
	}
	return Literal{Type: typ, Value: value}, nil
}

// negateBits applies unary negation to the value as if cast to typ first,
// mirroring original_source's negate_num: cast, negate as a signed value of
// the same width, keep the bit pattern.
func negateBits(value uint64, typ ilmodel.TypeIndex) uint64 {
	switch typ {
	case ilmodel.I8:
		return uint64(uint8(-int8(uint8(value))))
	case ilmodel.I16:
		return uint64(uint16(-int16(uint16(value))))
	case ilmodel.I32:
		return uint64(uint32(-int32(uint32(value))))
	case ilmodel.I64:
		return uint64(-int64(value))
	default:
		return uint64(-int64(value))
	}
}

func parseFloatLiteral(text string, negative bool, tok Token) (Literal, error) {
	lower := strings.ToLower(text)
	typ := ilmodel.F64
	numerals := text
	switch {
	case strings.HasSuffix(lower, "f32"):
		typ = ilmodel.F32
		numerals = text[:len(text)-3]
	case strings.HasSuffix(lower, "f64"):
		typ = ilmodel.F64
		numerals = text[:len(text)-3]
	case strings.HasSuffix(lower, "f"):
		typ = ilmodel.F32
		numerals = text[:len(text)-1]
	}

	f, err := strconv.ParseFloat(numerals, 64)
	if err != nil {
		return Literal{}, ilmodel.New(ilmodel.KindParser, ilmodel.CodeLiteralParseFailure,
			&ilmodel.Meta{Line: tok.Line}, "malformed float literal %q", tok.Val)
	}
	if negative {
		f = -f
	}

	if typ == ilmodel.F32 {
		return Literal{Type: typ, Value: uint64(math.Float32bits(float32(f)))}, nil
	}
	return Literal{Type: typ, Value: math.Float64bits(f)}, nil
}

// Bytes returns the literal's value as a little-endian byte sequence sized
// to its type, ready to append to a global/constant initializer buffer.
func (l Literal) Bytes() []byte {
	return littleEndian(l.Value, baseSize(l.Type))
}

func baseSize(t ilmodel.TypeIndex) int {
	switch t {
	case ilmodel.I8, ilmodel.U8:
		return 1
	case ilmodel.I16, ilmodel.U16:
		return 2
	case ilmodel.I32, ilmodel.U32, ilmodel.F32:
		return 4
	default:
		return 8
	}
}

func littleEndian(v uint64, size int) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// ResizeTo reinterprets an integer literal's value at a wider or narrower
// base type than the one ParseLiteral inferred for it — e.g. a bare "0"
// (inferred i32) used to initialize a "global x : i64" slot. Widening
// sign-extends for a signed literal type and zero-extends otherwise;
// narrowing succeeds only when the value still fits, so a genuinely
// out-of-range initializer still surfaces as an overflow rather than being
// silently truncated. ok is false when l or want is a non-integer type, or
// the value doesn't fit a narrower want.
func (l Literal) ResizeTo(want ilmodel.TypeIndex) (data []byte, ok bool) {
	if !ilmodel.IsIntegral(l.Type) || !ilmodel.IsIntegral(want) {
		return nil, false
	}
	from, to := baseSize(l.Type), baseSize(want)
	if from == to {
		return l.Bytes(), true
	}

	v := l.Value
	if to > from {
		if !ilmodel.IsUnsigned(l.Type) {
			v = signExtend(v, from)
		}
		return littleEndian(v, to), true
	}

	// Narrowing: accept only if the discarded high bytes are a pure
	// extension of the kept low bytes (all zero, or all one for a
	// sign-extended negative value).
	kept := littleEndian(v, to)
	reextended := uint64(0)
	if !ilmodel.IsUnsigned(l.Type) {
		reextended = signExtend(binary64(kept), to)
	} else {
		reextended = binary64(kept)
	}
	if reextended != v {
		return nil, false
	}
	return kept, true
}

func binary64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func signExtend(v uint64, fromSize int) uint64 {
	bits := uint(fromSize * 8)
	if bits >= 64 {
		return v
	}
	signBit := uint64(1) << (bits - 1)
	if v&signBit != 0 {
		return v | (^uint64(0) << bits)
	}
	return v
}
