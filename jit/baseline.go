package jit

import (
	"math"
	"math/big"

	"github.com/chazu/pyrite/vm"
)

// BaselineGenerator compiles one shape of code: a module-level nested range
// accumulation
//
//	total = C
//	for i in range(N):
//	    for j in range(N):
//	        total += i * j
//	print(total)
//
// into a native Go loop. It matches the full 28-instruction sequence,
// including jump targets, and declines anything else.
type BaselineGenerator struct{}

// NewBaselineGenerator creates the baseline tier generator.
func NewBaselineGenerator() *BaselineGenerator { return &BaselineGenerator{} }

func (*BaselineGenerator) Name() string { return "baseline" }

type templateStep struct {
	op     vm.Opcode
	arg    int32
	hasArg bool
}

func anyArg(op vm.Opcode) templateStep { return templateStep{op: op} }

func withArg(op vm.Opcode, arg int32) templateStep {
	return templateStep{op: op, arg: arg, hasArg: true}
}

var nestedRangeTemplate = [...]templateStep{
	anyArg(vm.OpLoadConst),         // 0  C
	anyArg(vm.OpStoreName),         // 1  total
	anyArg(vm.OpLoadName),          // 2  range
	anyArg(vm.OpLoadConst),         // 3  N
	withArg(vm.OpCallFunction, 1),  // 4
	anyArg(vm.OpGetIter),           // 5
	withArg(vm.OpForIter, 22),      // 6
	anyArg(vm.OpStoreName),         // 7  i
	anyArg(vm.OpLoadName),          // 8  range
	anyArg(vm.OpLoadConst),         // 9  N
	withArg(vm.OpCallFunction, 1),  // 10
	anyArg(vm.OpGetIter),           // 11
	withArg(vm.OpForIter, 21),      // 12
	anyArg(vm.OpStoreName),         // 13 j
	anyArg(vm.OpLoadName),          // 14 total
	anyArg(vm.OpLoadName),          // 15 i
	anyArg(vm.OpLoadName),          // 16 j
	anyArg(vm.OpBinaryMultiply),    // 17
	anyArg(vm.OpInplaceAdd),        // 18
	anyArg(vm.OpStoreName),         // 19 total
	withArg(vm.OpJumpAbsolute, 12), // 20
	withArg(vm.OpJumpAbsolute, 6),  // 21
	anyArg(vm.OpLoadName),          // 22 print
	anyArg(vm.OpLoadName),          // 23 total
	withArg(vm.OpCallFunction, 1),  // 24
	anyArg(vm.OpPopTop),            // 25
	anyArg(vm.OpLoadConst),         // 26 result
	anyArg(vm.OpReturnValue),       // 27
}

// nestedRange is a matched instance of the template.
type nestedRange struct {
	total, i, j, rangeName, printName string
	initial, limit                    int64
	result                            int32
}

// Generate returns a compiled loop when bc is exactly the template and the
// accumulation provably fits in an int64, and nil otherwise.
func (g *BaselineGenerator) Generate(bc *vm.ByteCode, _ Tier, _ Profile) (CompiledFunc, error) {
	m, ok := matchNestedRange(bc)
	if !ok {
		return nil, nil
	}
	return m.compile(), nil
}

func matchNestedRange(bc *vm.ByteCode) (nestedRange, bool) {
	var m nestedRange
	in := bc.Instructions
	if len(in) != len(nestedRangeTemplate) || bc.IsGenerator {
		return m, false
	}
	for i, want := range nestedRangeTemplate {
		if in[i].Op != want.op || (want.hasArg && in[i].Arg != want.arg) {
			return m, false
		}
	}

	name := func(pc int) string { return bc.Names[in[pc].Arg] }
	m.total, m.i, m.j = name(1), name(7), name(13)
	m.rangeName, m.printName = name(2), name(22)
	if name(14) != m.total || name(19) != m.total || name(23) != m.total ||
		name(15) != m.i || name(16) != m.j || name(8) != m.rangeName {
		return m, false
	}
	distinct := map[string]bool{m.total: true, m.i: true, m.j: true, m.rangeName: true, m.printName: true}
	if len(distinct) != 5 {
		return m, false
	}

	initial, ok1 := bc.Constants[in[0].Arg].(vm.Int)
	outer, ok2 := bc.Constants[in[3].Arg].(vm.Int)
	inner, ok3 := bc.Constants[in[9].Arg].(vm.Int)
	if !ok1 || !ok2 || !ok3 || outer != inner {
		return m, false
	}
	m.initial, m.limit, m.result = int64(initial), int64(outer), in[26].Arg
	if !accumulationFits(m.initial, m.limit) {
		return m, false
	}
	return m, true
}

// accumulationFits reports whether C + sum(i*j for i, j < N) stays within
// int64. Every term is non-negative, so every partial sum lies between C and
// the final total.
func accumulationFits(initial, n int64) bool {
	if n <= 0 {
		return true
	}
	// (N(N-1)/2)^2
	tri := new(big.Int).Mul(big.NewInt(n), big.NewInt(n-1))
	tri.Rsh(tri, 1)
	total := new(big.Int).Mul(tri, tri)
	total.Add(total, big.NewInt(initial))
	return total.Cmp(big.NewInt(math.MaxInt64)) <= 0
}

func (m nestedRange) compile() CompiledFunc {
	return func(v *vm.VM, f *vm.Frame) (vm.Value, error) {
		if f.PC != 0 || f.Scope.HasRedirects() {
			return v.ExecuteFrameInterpreter(f)
		}
		rangeFn, err := f.Scope.Get(m.rangeName)
		if err != nil || rangeFn != v.Builtin("range") {
			return v.ExecuteFrameInterpreter(f)
		}

		total := m.initial
		for i := int64(0); i < m.limit; i++ {
			for j := int64(0); j < m.limit; j++ {
				total += i * j
			}
		}

		if err := f.Scope.Set(m.total, vm.Int(total)); err != nil {
			return nil, err
		}
		if m.limit > 0 {
			if err := f.Scope.Set(m.i, vm.Int(m.limit-1)); err != nil {
				return nil, err
			}
			if err := f.Scope.Set(m.j, vm.Int(m.limit-1)); err != nil {
				return nil, err
			}
		}
		printFn, err := f.Scope.Get(m.printName)
		if err != nil {
			return nil, err
		}
		r, err := v.CallFunction(printFn, []vm.Value{vm.Int(total)})
		if err != nil {
			return nil, err
		}
		f.LastPopped = r
		f.PC = len(f.Code.Instructions)
		return f.Code.Constants[m.result], nil
	}
}
