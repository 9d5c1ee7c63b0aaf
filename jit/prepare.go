package jit

import (
	"sync/atomic"

	"github.com/chazu/pyrite/vm"
)

// Prepare fills the decoded instruction arrays and the exception-handler flag
// of bc.JIT. It does the work once per code block.
func Prepare(bc *vm.ByteCode) {
	info := &bc.JIT
	if info.Prepared {
		return
	}
	n := len(bc.Instructions)
	info.Opcodes = make([]vm.Opcode, n)
	info.Args = make([]int32, n)
	for i, in := range bc.Instructions {
		info.Opcodes[i] = in.Op
		info.Args[i] = in.Arg
		if in.Op.IsExceptionSetup() {
			info.HasExceptionHandlers = true
		}
	}
	info.Prepared = true
}

// fastOpcodes is the fast interpreter's allow-list.
var fastOpcodes = map[vm.Opcode]bool{
	vm.OpLoadConst:   true,
	vm.OpLoadName:    true,
	vm.OpStoreName:   true,
	vm.OpLoadFast:    true,
	vm.OpStoreFast:   true,
	vm.OpLoadGlobal:  true,
	vm.OpStoreGlobal: true,
	vm.OpPopTop:      true,
	vm.OpReturnValue: true,

	vm.OpCallFunction: true,
	vm.OpMakeFunction: true,

	vm.OpBuildList:  true,
	vm.OpBuildTuple: true,
	vm.OpBuildSet:   true,
	vm.OpBuildMap:   true,
	vm.OpListAppend: true,
	vm.OpSetAdd:     true,
	vm.OpMapAdd:     true,

	vm.OpLoadAttr:    true,
	vm.OpLoadSubscr:  true,
	vm.OpStoreSubscr: true,

	vm.OpBinaryAdd:         true,
	vm.OpBinarySubtract:    true,
	vm.OpBinaryMultiply:    true,
	vm.OpBinaryDivide:      true,
	vm.OpBinaryFloorDivide: true,
	vm.OpBinaryModulo:      true,
	vm.OpBinaryPower:       true,
	vm.OpInplaceAdd:        true,
	vm.OpInplaceSubtract:   true,
	vm.OpInplaceMultiply:   true,
	vm.OpUnaryNegative:     true,
	vm.OpUnaryPositive:     true,
	vm.OpUnaryNot:          true,
	vm.OpCompareOp:         true,

	vm.OpJumpForward:      true,
	vm.OpJumpAbsolute:     true,
	vm.OpPopJumpIfFalse:   true,
	vm.OpPopJumpIfTrue:    true,
	vm.OpJumpIfFalseOrPop: true,
	vm.OpJumpIfTrueOrPop:  true,

	vm.OpGetIter: true,
	vm.OpForIter: true,
}

var fastPathScans atomic.Uint64

// FastPathScans returns how many eligibility scans have run in this process.
// A memoized code block is scanned at most once.
func FastPathScans() uint64 { return fastPathScans.Load() }

// IsFastPathSupported reports whether every opcode of bc is on the fast
// interpreter's allow-list and bc has no exception regions. The answer is
// memoized on bc.
func IsFastPathSupported(bc *vm.ByteCode) bool {
	switch bc.JIT.FastPath {
	case vm.FastPathSupported:
		return true
	case vm.FastPathUnsupported:
		return false
	}
	Prepare(bc)
	fastPathScans.Add(1)
	ok := !bc.JIT.HasExceptionHandlers && !bc.IsGenerator
	if ok {
		for _, op := range bc.JIT.Opcodes {
			if !fastOpcodes[op] {
				ok = false
				break
			}
		}
	}
	if ok {
		bc.JIT.FastPath = vm.FastPathSupported
	} else {
		bc.JIT.FastPath = vm.FastPathUnsupported
	}
	return ok
}
