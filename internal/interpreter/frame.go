package interpreter

import "il.dev/il/internal/ilmodel"

// frame is one activation record. The spec's "saved stack_frame" fields are
// tracked here as an ordinary Go value on the interpreter's own call stack
// (vm.frames) rather than physically encoded into the VM-owned byte region:
// only the parameter area and locals of each frame actually live in that
// region (see memory.go), since the saved bookkeeping fields have no
// observable effect through dump output or return codes and a Go slice is
// the far simpler place to keep them.
type frame struct {
	Method *ilmodel.Method

	IPtr int // byte offset into Method.Bytecode of the next instruction

	// ReturnOffset is the stack-byte offset of this frame's own {^} slot:
	// reserved by every call regardless of whether the caller wants the
	// value, so retv always has somewhere to write.
	ReturnOffset int64

	ParamOffset int64 // stack-byte offset where parameters begin
	StackOffset int64 // stack-byte offset where locals begin
	StackEnd    int64 // stack-byte offset one past this frame's locals

	// CallerDst is where, in the caller's own memory, this frame's return
	// value should land once it returns — resolved in the caller's context
	// before this frame was pushed, so it stays valid regardless of how the
	// caller's own frame is later reused. nil for a bare call whose result
	// is discarded.
	CallerDst *target
}

// stackVarOffset returns the absolute stack-byte offset of local index i.
func (f *frame) stackVarOffset(sv []ilmodel.StackVar, i int) int64 {
	return f.StackOffset + sv[i].Offset
}

// paramVarOffset returns the absolute stack-byte offset of parameter index i.
func (f *frame) paramVarOffset(params []ilmodel.Parameter, i int) int64 {
	return f.ParamOffset + params[i].Offset
}
