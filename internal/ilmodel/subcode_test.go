package ilmodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"il.dev/il/internal/ilmodel"
)

func TestLookupSubcodeCoversEveryArithmeticPair(t *testing.T) {
	for lhs := ilmodel.TypeIndex(0); lhs < ilmodel.TypeIndex(ilmodel.NumBaseTypes)-1; lhs++ {
		if !ilmodel.IsArithmetic(lhs) {
			continue
		}
		for rhs := ilmodel.TypeIndex(0); rhs < ilmodel.TypeIndex(ilmodel.NumBaseTypes)-1; rhs++ {
			if !ilmodel.IsArithmetic(rhs) {
				continue
			}
			code, ok := ilmodel.LookupSubcode(lhs, rhs)
			require.Truef(t, ok, "no subcode for (%d, %d)", lhs, rhs)

			entry := ilmodel.SubcodeByCode(code)
			assert.Equal(t, lhs, entry.LHS)
			assert.Equal(t, rhs, entry.RHS)
			assert.Equal(t, lhs, entry.Result, "result side always tracks lhs")
		}
	}
}

func TestLookupSubcodeRejectsNonArithmetic(t *testing.T) {
	_, ok := ilmodel.LookupSubcode(ilmodel.Void, ilmodel.I32)
	assert.False(t, ok)
}

func TestClassifyConversion(t *testing.T) {
	tests := []struct {
		name     string
		from, to ilmodel.TypeIndex
		want     ilmodel.ConversionKind
	}{
		{"same type", ilmodel.I32, ilmodel.I32, ilmodel.ConvSame},
		{"widen int", ilmodel.I8, ilmodel.I32, ilmodel.ConvWiden},
		{"narrow int", ilmodel.I64, ilmodel.I16, ilmodel.ConvNarrow},
		{"int to float widens", ilmodel.I32, ilmodel.F32, ilmodel.ConvWiden},
		{"float to int narrows", ilmodel.F64, ilmodel.I32, ilmodel.ConvNarrow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ilmodel.ClassifyConversion(tt.from, tt.to))
		})
	}
}

func TestCommonArithmeticType(t *testing.T) {
	assert.Equal(t, ilmodel.F64, ilmodel.CommonArithmeticType(ilmodel.F64, ilmodel.I32))
	assert.Equal(t, ilmodel.F64, ilmodel.CommonArithmeticType(ilmodel.I32, ilmodel.F64))
	assert.Equal(t, ilmodel.I64, ilmodel.CommonArithmeticType(ilmodel.I64, ilmodel.I32))
	assert.Equal(t, ilmodel.U32, ilmodel.CommonArithmeticType(ilmodel.I32, ilmodel.U32))
	assert.Equal(t, ilmodel.I32, ilmodel.CommonArithmeticType(ilmodel.I32, ilmodel.I32))
}
