package ilmodel

// SubcodeTable is the single declarative (lhs_type, rhs_type) -> (result,
// conversion) description driving both the linker's subcode assignment and
// the interpreter's subcode dispatch, built once at init time instead of
// hand-written as a giant switch, per the design note that both stages
// should read from one source so they can never disagree.
var SubcodeTable []SubcodeEntry

var subcodeByPair map[[2]TypeIndex]Subcode
var subcodeByCode []SubcodeEntry

func init() {
	for lhs := TypeIndex(0); lhs < TypeIndex(NumBaseTypes)-1; lhs++ {
		if !IsArithmetic(lhs) {
			continue
		}
		for rhs := TypeIndex(0); rhs < TypeIndex(NumBaseTypes)-1; rhs++ {
			if !IsArithmetic(rhs) {
				continue
			}
			SubcodeTable = append(SubcodeTable, SubcodeEntry{
				Code:       Subcode(len(SubcodeTable)),
				LHS:        lhs,
				RHS:        rhs,
				Result:     lhs, // the accumulator/dst side keeps its own type
				Conversion: ClassifyConversion(rhs, lhs),
			})
		}
	}
	subcodeByPair = make(map[[2]TypeIndex]Subcode, len(SubcodeTable))
	subcodeByCode = make([]SubcodeEntry, len(SubcodeTable))
	for _, e := range SubcodeTable {
		subcodeByPair[[2]TypeIndex{e.LHS, e.RHS}] = e.Code
		subcodeByCode[e.Code] = e
	}
}

// arithmeticSize returns a type's byte size at the host word size, for
// ranking conversions; floats and integers of equal byte size both widen
// towards the float (a float is never "narrower" than an int of equal size).
func arithmeticSize(t TypeIndex) int64 {
	return BaseTypeSizes(8)[t]
}

// ClassifyConversion reports how a value of type from is converted to reach
// type to: same width and kind, a widen (more bits, or any int->float), or
// a narrow.
func ClassifyConversion(from, to TypeIndex) ConversionKind {
	if from == to {
		return ConvSame
	}
	fromFloat, toFloat := IsFloatingPoint(from), IsFloatingPoint(to)
	if !fromFloat && toFloat {
		return ConvWiden
	}
	if fromFloat && !toFloat {
		return ConvNarrow
	}
	if arithmeticSize(to) > arithmeticSize(from) {
		return ConvWiden
	}
	if arithmeticSize(to) < arithmeticSize(from) {
		return ConvNarrow
	}
	return ConvSame
}

// CommonArithmeticType picks the "larger" of two arithmetic types for a
// comparison's shared working type: floats outrank integers, and within a
// kind the wider (then the unsigned, on an exact tie) type wins. Ties
// resolve to lhs so the rule is commutative-visible rather than arbitrary.
func CommonArithmeticType(lhs, rhs TypeIndex) TypeIndex {
	if lhs == rhs {
		return lhs
	}
	lf, rf := IsFloatingPoint(lhs), IsFloatingPoint(rhs)
	if lf != rf {
		if lf {
			return lhs
		}
		return rhs
	}
	ls, rs := arithmeticSize(lhs), arithmeticSize(rhs)
	if ls != rs {
		if ls > rs {
			return lhs
		}
		return rhs
	}
	if IsUnsigned(lhs) != IsUnsigned(rhs) {
		if IsUnsigned(lhs) {
			return lhs
		}
		return rhs
	}
	return lhs
}

// LookupSubcode finds the table row for (lhs, rhs), reporting ok=false if
// either type is non-arithmetic (the lhs/rhs here are the subcode table's
// own axes: dst/src for ari/conv, the two compared operands for cmp).
func LookupSubcode(lhs, rhs TypeIndex) (Subcode, bool) {
	code, ok := subcodeByPair[[2]TypeIndex{lhs, rhs}]
	return code, ok
}

// SubcodeByCode returns the table row a linker-assigned subcode names, for
// the interpreter to dispatch on directly without re-deriving it from
// operand types.
func SubcodeByCode(code Subcode) SubcodeEntry {
	return subcodeByCode[code]
}
