package jit

import "github.com/chazu/pyrite/vm"

// CompiledFunc runs a frame to completion. It must produce exactly what the
// reference interpreter would for the same frame, and must not retain the
// ByteCode it was generated from.
type CompiledFunc func(v *vm.VM, f *vm.Frame) (vm.Value, error)

// CodeGenerator turns bytecode into a CompiledFunc. Generate returns nil, nil
// when it cannot prove the result equivalent; an error or panic marks the
// code as failed for good.
type CodeGenerator interface {
	Name() string
	Generate(bc *vm.ByteCode, tier Tier, profile Profile) (CompiledFunc, error)
}
