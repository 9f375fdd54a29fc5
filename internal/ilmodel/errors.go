// Package ilmodel is the shared data model for the IL toolchain: indexed
// type, signature, method and offset tables, the packed address header, and
// the serialized forms (Intermediate, Assembly) that flow between the
// generator, merger, linker and interpreter.
package ilmodel

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which phase of the toolchain raised an error, matching the
// four-kind taxonomy (generator/parser/merger/linker) plus the runtime phase.
type Kind int

const (
	KindGenerator Kind = iota
	KindParser
	KindMerger
	KindLinker
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindGenerator:
		return "generator"
	case KindParser:
		return "parser"
	case KindMerger:
		return "merger"
	case KindLinker:
		return "linker"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Code is a numeric error code, unique within its Kind.
type Code int

const (
	// Generator errors.
	CodeRedefinition Code = iota + 1
	CodeInvalidVoidUse
	CodeIndexOverflow
	CodeZeroLengthArray
	CodeParameterListTooLong
	CodeInitializerOverflow
	CodeUndefinedLabel
	CodeMissingReturn
	CodeOutOfRangeStackIndex
	CodeOutOfRangeParamIndex
	CodeInvalidConstant
	CodeDuplicateLabel
)

const (
	// Parser errors.
	CodeUnexpectedExpression Code = iota + 100
	CodeUnexpectedCharacter
	CodeUnexpectedEOF
	CodeUnexpectedEnd
	CodeUnterminatedComment
	CodeUnterminatedCharacter
	CodeLiteralParseFailure
	CodeOverflowingIndex
	CodeDuplicateLocalName
	CodeUnexpectedLiteralPlacement
)

const (
	// Merger errors.
	CodeInvalidIntermediate Code = iota + 200
	CodeIncompatibleIntermediate
	CodeMergeIndexOutOfRange
	CodeTypeRedefinition
	CodeMethodRedefinition
	CodeGlobalRedefinition
	CodeIdentifierTypeMismatch
	CodeIdentifierKindCollision
)

const (
	// Linker errors.
	CodeRecursiveTypeDefinition Code = iota + 300
	CodeUndefinedType
	CodeUndefinedMethod
	CodeUndefinedGlobal
	CodeUndefinedTypeField
	CodeZeroSizedType
	CodeInvalidInitializer
	CodeInvalidOffsetModifier
	CodeFieldParentTypeMismatch
	CodeInvalidArithmeticExpression
	CodeInvalidImplicitConversion
	CodeInvalidComparisonExpression
	CodeInvalidPointerExpression
	CodeInvalidCallArgumentCount
	CodeOutOfRangeArrayIndex
	CodeInvalidReturnSlotReference
	CodeInvalidReturnStatement
)

const (
	// Runtime errors.
	CodeInvalidAssembly Code = iota + 400
	CodeIncompatibleAssembly
	CodeEntryPointMissing
	CodeStackAllocationFailure
	CodeStackOverflow
	CodeCallstackLimit
	CodeRuntimeHashMismatch
)

// Meta is source-location metadata attached to an error, when available.
type Meta struct {
	File string
	Line int
}

func (m Meta) String() string {
	if m.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", m.File, m.Line)
}

// Error is the single error type raised by every phase of the toolchain.
type Error struct {
	Kind    Kind
	Code    Code
	Meta    *Meta
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Meta != nil && e.Meta.File != "" {
		return fmt.Sprintf("%s error %d at %s: %s", e.Kind, e.Code, e.Meta, e.Message)
	}
	return fmt.Sprintf("%s error %d: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a phase error with a stack trace attached via pkg/errors, so a
// failing phase can be traced back to its call site.
func New(kind Kind, code Code, meta *Meta, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	e := &Error{
		Kind:    kind,
		Code:    code,
		Meta:    meta,
		Message: msg,
	}
	// Stack trace only, kept separate from e to avoid an Unwrap cycle.
	e.cause = errors.New(msg)
	return e
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
