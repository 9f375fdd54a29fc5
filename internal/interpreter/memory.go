package interpreter

import (
	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"il.dev/il/internal/ilmodel"
)

// region is one anonymous mmap'd allocation: the runtime stack, or the
// assembly's read-only code image. Both are freed on teardown with a single
// Unmap, matching the host's allocate/protect/free discipline.
type region struct {
	mem mmap.MMap
}

// allocateStack maps the largest power of two within [minStack, maxStack]
// the OS accepts, preferring the larger sizes first. An anonymous,
// read-write mapping; never protected, since the stack is mutated for the
// life of the run.
func allocateStack(minStack, maxStack int) (*region, error) {
	size := highestPowerOfTwo(maxStack)
	floor := lowestPowerOfTwo(minStack)
	for size >= floor {
		mem, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
		if err == nil {
			return &region{mem: mem}, nil
		}
		size /= 2
	}
	return nil, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeStackAllocationFailure, nil,
		"no stack size in [%d, %d] was accepted by the OS allocator", minStack, maxStack)
}

// loadCodeImage copies code into a fresh anonymous mapping, then flips it to
// read-only: the assembly's executable image is never mutated once the
// interpreter starts running it.
func loadCodeImage(code []byte) (*region, error) {
	mem, err := mmap.MapRegion(nil, len(code), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeStackAllocationFailure, nil,
			"failed to map code image: %v", err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ); err != nil {
		mem.Unmap()
		return nil, ilmodel.New(ilmodel.KindRuntime, ilmodel.CodeStackAllocationFailure, nil,
			"failed to mark code image read-only: %v", err)
	}
	return &region{mem: mem}, nil
}

func (r *region) free() {
	if r == nil || r.mem == nil {
		return
	}
	_ = r.mem.Unmap()
	r.mem = nil
}

func highestPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

func lowestPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
