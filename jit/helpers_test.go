package jit

import (
	"bytes"
	"testing"

	"github.com/chazu/pyrite/vm"
)

// run executes bc on a fresh VM. When m is non-nil it is installed as the
// frame executor.
func run(t *testing.T, bc *vm.ByteCode, m *Manager) (vm.Value, string) {
	t.Helper()
	v := vm.NewVM()
	var out bytes.Buffer
	v.Stdout = &out
	if m != nil {
		v.SetExecutor(m)
	}
	val, err := v.Execute(bc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return val, out.String()
}

// runFast runs bc as a module frame directly in the fast interpreter.
func runFast(t *testing.T, bc *vm.ByteCode) (vm.Value, string) {
	t.Helper()
	v := vm.NewVM()
	var out bytes.Buffer
	v.Stdout = &out
	val, err := ExecuteFrameFast(v, vm.NewFrame(bc, v.NewGlobals()))
	if err != nil {
		t.Fatalf("ExecuteFrameFast: %v", err)
	}
	return val, out.String()
}

func testConfig() Config {
	return Config{Enabled: true, BaselineThreshold: 1, OptimizingThreshold: 3}
}

// nestedLoop assembles:
//
//	total = 0
//	for i in range(n):
//	    for j in range(n):
//	        total += i * j
//	print(total)
func nestedLoop(n int64) *vm.ByteCode {
	return nestedLoopFrom(0, n, n)
}

func nestedLoopFrom(initial, outerN, innerN int64) *vm.ByteCode {
	b := vm.NewBuilder("")
	outer, outerEnd := b.NewLabel(), b.NewLabel()
	inner, innerEnd := b.NewLabel(), b.NewLabel()
	b.LoadConst(vm.Int(initial)).StoreName("total")
	b.LoadName("range").LoadConst(vm.Int(outerN)).Call(1).Op(vm.OpGetIter)
	b.Mark(outer).Jump(vm.OpForIter, outerEnd)
	b.StoreName("i")
	b.LoadName("range").LoadConst(vm.Int(innerN)).Call(1).Op(vm.OpGetIter)
	b.Mark(inner).Jump(vm.OpForIter, innerEnd)
	b.StoreName("j")
	b.LoadName("total").LoadName("i").LoadName("j").Op(vm.OpBinaryMultiply).Op(vm.OpInplaceAdd).StoreName("total")
	b.Jump(vm.OpJumpAbsolute, inner)
	b.Mark(innerEnd).Jump(vm.OpJumpAbsolute, outer)
	b.Mark(outerEnd).LoadName("print").LoadName("total").Call(1).Op(vm.OpPopTop)
	b.Return()
	return b.MustBuild()
}

// callTwice assembles a module that defines fn from body and prints
// fn(arg) twice.
func callTwice(body *vm.ByteCode, arg vm.Value) *vm.ByteCode {
	return callTwiceAfter(nil, body, arg)
}

// callTwiceAfter is callTwice with prelude emitted first.
func callTwiceAfter(prelude func(b *vm.Builder), body *vm.ByteCode, arg vm.Value) *vm.ByteCode {
	b := vm.NewBuilder("")
	if prelude != nil {
		prelude(b)
	}
	b.LoadConst(body).LoadConst(vm.Str(body.Name)).Emit(vm.OpMakeFunction, 0).StoreName("fn")
	for range 2 {
		b.LoadName("print").LoadName("fn").LoadConst(arg).Call(1).Call(1).Op(vm.OpPopTop)
	}
	b.Return()
	return b.MustBuild()
}

// counterBody assembles:
//
//	def inc(x):
//	    x = x + 1
//	    return x
func counterBody() *vm.ByteCode {
	b := vm.NewBuilder("inc").Params("x")
	b.LoadFast("x").LoadConst(vm.Int(1)).Op(vm.OpBinaryAdd).StoreFast("x")
	b.LoadFast("x").Op(vm.OpReturnValue)
	return b.MustBuild()
}
