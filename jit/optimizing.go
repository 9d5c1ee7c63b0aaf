package jit

import "github.com/chazu/pyrite/vm"

// OptimizingGenerator is the top tier. It produces no native code yet: the
// closure it returns re-enters the reference interpreter, so promotion to
// Tier2 is observable without changing results.
type OptimizingGenerator struct{}

// NewOptimizingGenerator creates the optimizing tier generator.
func NewOptimizingGenerator() *OptimizingGenerator { return &OptimizingGenerator{} }

func (*OptimizingGenerator) Name() string { return "optimizing" }

func (*OptimizingGenerator) Generate(_ *vm.ByteCode, _ Tier, _ Profile) (CompiledFunc, error) {
	return interpretCompiled, nil
}

func interpretCompiled(v *vm.VM, f *vm.Frame) (vm.Value, error) {
	return v.ExecuteFrameInterpreter(f)
}
