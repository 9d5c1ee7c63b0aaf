package jit

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/pyrite/vm"
)

func TestFastMatchesReference(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *vm.Builder)
		want  string
	}{
		{"int overflow promotes", func(b *vm.Builder) {
			b.LoadConst(vm.Int(math.MaxInt64)).LoadConst(vm.Int(1)).Op(vm.OpBinaryAdd).Op(vm.OpReturnValue)
		}, "9223372036854775808"},
		{"int multiply overflow", func(b *vm.Builder) {
			b.LoadConst(vm.Int(1 << 40)).LoadConst(vm.Int(1 << 40)).Op(vm.OpInplaceMultiply).Op(vm.OpReturnValue)
		}, "1208925819614629174706176"},
		{"negate min int", func(b *vm.Builder) {
			b.LoadConst(minInt).Op(vm.OpUnaryNegative).Op(vm.OpReturnValue)
		}, "9223372036854775808"},
		{"float arithmetic", func(b *vm.Builder) {
			b.LoadConst(vm.Float(1.5)).LoadConst(vm.Float(2)).Op(vm.OpBinaryMultiply)
			b.LoadConst(vm.Float(0.5)).Op(vm.OpBinarySubtract).Op(vm.OpReturnValue)
		}, "2.5"},
		{"mixed int and float", func(b *vm.Builder) {
			b.LoadConst(vm.Int(1)).LoadConst(vm.Float(2.5)).Op(vm.OpBinaryAdd).Op(vm.OpReturnValue)
		}, "3.5"},
		{"string plus int", func(b *vm.Builder) {
			b.LoadConst(vm.Str("a")).LoadConst(vm.Int(1)).Op(vm.OpBinaryAdd).Op(vm.OpReturnValue)
		}, "'a1'"},
		{"floor modulo", func(b *vm.Builder) {
			b.LoadConst(vm.Int(-7)).LoadConst(vm.Int(3)).Op(vm.OpBinaryModulo).Op(vm.OpReturnValue)
		}, "2"},
		{"true division", func(b *vm.Builder) {
			b.LoadConst(vm.Int(7)).LoadConst(vm.Int(2)).Op(vm.OpBinaryDivide).Op(vm.OpReturnValue)
		}, "3.5"},
		{"int float compare", func(b *vm.Builder) {
			b.LoadConst(vm.Int(3)).LoadConst(vm.Float(3.5)).Compare(vm.CmpLT).Op(vm.OpReturnValue)
		}, "True"},
		{"nan compare", func(b *vm.Builder) {
			b.LoadConst(vm.Float(math.NaN())).LoadConst(vm.Float(math.NaN())).Compare(vm.CmpEQ).Op(vm.OpReturnValue)
		}, "False"},
		{"bool plus int", func(b *vm.Builder) {
			b.LoadConst(vm.Bool(true)).LoadConst(vm.Int(2)).Op(vm.OpBinaryAdd).Op(vm.OpReturnValue)
		}, "3"},
		{"negative list index", func(b *vm.Builder) {
			b.LoadConst(vm.Int(1)).LoadConst(vm.Int(2)).LoadConst(vm.Int(3)).Emit(vm.OpBuildList, 3)
			b.LoadConst(vm.Int(-1)).Op(vm.OpLoadSubscr).Op(vm.OpReturnValue)
		}, "3"},
		{"dict literal", func(b *vm.Builder) {
			b.LoadConst(vm.Str("a")).LoadConst(vm.Int(1)).Emit(vm.OpBuildMap, 1).Op(vm.OpReturnValue)
		}, "{'a': 1}"},
		{"tuple literal", func(b *vm.Builder) {
			b.LoadConst(vm.Int(1)).Emit(vm.OpBuildTuple, 1).Op(vm.OpReturnValue)
		}, "(1,)"},
		{"while loop", func(b *vm.Builder) {
			top, end := b.NewLabel(), b.NewLabel()
			b.LoadConst(vm.Int(0)).StoreName("i")
			b.Mark(top).LoadName("i").LoadConst(vm.Int(5)).Compare(vm.CmpLT).Jump(vm.OpPopJumpIfFalse, end)
			b.LoadName("i").LoadConst(vm.Int(1)).Op(vm.OpInplaceAdd).StoreName("i")
			b.Jump(vm.OpJumpAbsolute, top)
			b.Mark(end).LoadName("i").Op(vm.OpReturnValue)
		}, "5"},
		{"jump if false or pop", func(b *vm.Builder) {
			end := b.NewLabel()
			b.LoadConst(vm.Int(0)).Jump(vm.OpJumpIfFalseOrPop, end).LoadConst(vm.Int(5))
			b.Mark(end).Op(vm.OpReturnValue)
		}, "0"},
		{"jump if true or pop", func(b *vm.Builder) {
			end := b.NewLabel()
			b.LoadConst(vm.Str("")).Jump(vm.OpJumpIfTrueOrPop, end).LoadConst(vm.Int(5))
			b.Mark(end).Op(vm.OpReturnValue)
		}, "5"},
		{"jump forward", func(b *vm.Builder) {
			skip := b.NewLabel()
			b.LoadConst(vm.Int(1)).Jump(vm.OpJumpForward, skip)
			b.Op(vm.OpUnaryNegative)
			b.Mark(skip).Op(vm.OpReturnValue)
		}, "1"},
		{"list comprehension shape", func(b *vm.Builder) {
			loop, end := b.NewLabel(), b.NewLabel()
			b.Emit(vm.OpBuildList, 0).StoreName("acc")
			b.LoadName("range").LoadConst(vm.Int(4)).Call(1).Op(vm.OpGetIter)
			b.Mark(loop).Jump(vm.OpForIter, end)
			b.StoreName("x").LoadName("acc").LoadName("x").LoadName("x").Op(vm.OpBinaryMultiply)
			b.Op(vm.OpListAppend).Op(vm.OpPopTop)
			b.Jump(vm.OpJumpAbsolute, loop)
			b.Mark(end).LoadName("acc").Op(vm.OpReturnValue)
		}, "[0, 1, 4, 9]"},
		{"method call", func(b *vm.Builder) {
			b.LoadConst(vm.Str("abc")).LoadAttr("upper").Call(0).Op(vm.OpReturnValue)
		}, "'ABC'"},
		{"store subscript", func(b *vm.Builder) {
			b.LoadConst(vm.Int(0)).LoadConst(vm.Int(0)).Emit(vm.OpBuildList, 2).StoreName("l")
			b.LoadConst(vm.Int(9)).LoadName("l").LoadConst(vm.Int(1)).Op(vm.OpStoreSubscr)
			b.LoadName("l").Op(vm.OpReturnValue)
		}, "[0, 9]"},
		{"falls off the end", func(b *vm.Builder) {
			b.LoadConst(vm.Int(4)).Op(vm.OpPopTop)
		}, "4"},
		{"continues past unsupported opcode", func(b *vm.Builder) {
			b.LoadConst(vm.Int(6)).Op(vm.OpDupTop).Op(vm.OpBinaryMultiply).Op(vm.OpReturnValue)
		}, "36"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := vm.NewBuilder("")
			tt.build(b)
			bc := b.MustBuild()

			ref, _ := run(t, bc, nil)
			fast, _ := runFast(t, bc)
			if got := vm.Repr(ref); got != tt.want {
				t.Errorf("reference = %s, want %s", got, tt.want)
			}
			if got := vm.Repr(fast); got != tt.want {
				t.Errorf("fast = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFastRaisesLikeReference(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *vm.Builder)
		class *vm.Class
	}{
		{"division by zero", func(b *vm.Builder) {
			b.LoadConst(vm.Int(1)).LoadConst(vm.Int(0)).Op(vm.OpBinaryFloorDivide).Op(vm.OpReturnValue)
		}, vm.ZeroDivisionErrorClass},
		{"undefined name", func(b *vm.Builder) {
			b.LoadName("missing").Op(vm.OpReturnValue)
		}, vm.NameErrorClass},
		{"unsupported operand", func(b *vm.Builder) {
			b.LoadConst(vm.None).LoadConst(vm.Int(1)).Op(vm.OpBinarySubtract).Op(vm.OpReturnValue)
		}, vm.TypeErrorClass},
		{"list index out of range", func(b *vm.Builder) {
			b.Emit(vm.OpBuildList, 0).LoadConst(vm.Int(0)).Op(vm.OpLoadSubscr).Op(vm.OpReturnValue)
		}, vm.IndexErrorClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := vm.NewBuilder("")
			tt.build(b)
			bc := b.MustBuild()

			v := vm.NewVM()
			_, err := ExecuteFrameFast(v, vm.NewFrame(bc, v.NewGlobals()))
			var exc *vm.Exception
			if !errors.As(err, &exc) || !exc.Matches(tt.class) {
				t.Errorf("fast err = %v, want %s", err, tt.class.Name)
			}
			_, err = v.Execute(bc)
			if !errors.As(err, &exc) || !exc.Matches(tt.class) {
				t.Errorf("reference err = %v, want %s", err, tt.class.Name)
			}
		})
	}
}

func TestFastStackUnderflowIsFatal(t *testing.T) {
	bc := &vm.ByteCode{Instructions: []vm.Instruction{{Op: vm.OpBinaryAdd}}}
	v := vm.NewVM()
	_, err := ExecuteFrameFast(v, vm.NewFrame(bc, v.NewGlobals()))
	if !errors.Is(err, vm.ErrStackUnderflow) {
		t.Errorf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestFastLocalSync(t *testing.T) {
	tests := []struct {
		name string
		body func() *vm.ByteCode
		arg  vm.Value
		want string
	}{
		{"parameter round trip", counterBody, vm.Int(41), "42\n42\n"},
		{"store to parameter is visible by name", func() *vm.ByteCode {
			b := vm.NewBuilder("f").Params("x")
			b.LoadConst(vm.Int(5)).StoreFast("x")
			b.LoadName("x").Op(vm.OpReturnValue)
			return b.MustBuild()
		}, vm.Int(1), "5\n5\n"},
		{"slot synced after scope grows", func() *vm.ByteCode {
			b := vm.NewBuilder("f").Params("x")
			b.LoadConst(vm.Int(1)).StoreName("y")
			b.LoadFast("x").StoreFast("y")
			b.LoadName("y").Op(vm.OpReturnValue)
			return b.MustBuild()
		}, vm.Str("s"), "s\ns\n"},
		{"unsynced slot stays private", func() *vm.ByteCode {
			b := vm.NewBuilder("f").Params("x")
			b.LoadFast("x").StoreFast("y")
			b.LoadName("y").Op(vm.OpReturnValue)
			return b.MustBuild()
		}, vm.Int(3), "global\nglobal\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prelude := func(b *vm.Builder) { b.LoadConst(vm.Str("global")).StoreName("y") }
			module := callTwiceAfter(prelude, tt.body(), tt.arg)
			_, refOut := run(t, module, nil)
			m := NewManager(Config{Enabled: true, BaselineThreshold: math.MaxInt, OptimizingThreshold: math.MaxInt})
			_, fastOut := run(t, module, m)
			if refOut != tt.want {
				t.Errorf("reference output = %q, want %q", refOut, tt.want)
			}
			if fastOut != tt.want {
				t.Errorf("fast output = %q, want %q", fastOut, tt.want)
			}
			if s := m.Stats(); s.FastFrames != 3 {
				t.Errorf("FastFrames = %d, want 3", s.FastFrames)
			}
		})
	}
}

func TestIsFastPathSupported(t *testing.T) {
	handler := func() *vm.ByteCode {
		b := vm.NewBuilder("")
		h := b.NewLabel()
		b.Jump(vm.OpSetupFinally, h).LoadConst(vm.Int(1)).Op(vm.OpPopBlock).Op(vm.OpReturnValue)
		b.Mark(h).Op(vm.OpPopTop).Return()
		return b.MustBuild()
	}
	generator := func() *vm.ByteCode {
		b := vm.NewBuilder("gen").Generator()
		b.LoadConst(vm.Int(1)).Op(vm.OpYieldValue).Op(vm.OpPopTop).Return()
		return b.MustBuild()
	}
	dupTop := func() *vm.ByteCode {
		b := vm.NewBuilder("")
		b.LoadConst(vm.Int(1)).Op(vm.OpDupTop).Op(vm.OpBinaryAdd).Op(vm.OpReturnValue)
		return b.MustBuild()
	}

	tests := []struct {
		name string
		bc   *vm.ByteCode
		want bool
	}{
		{"nested loop", nestedLoop(3), true},
		{"function body", counterBody(), true},
		{"exception handler", handler(), false},
		{"generator", generator(), false},
		{"unlisted opcode", dupTop(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := FastPathScans()
			for range 3 {
				if got := IsFastPathSupported(tt.bc); got != tt.want {
					t.Fatalf("IsFastPathSupported = %v, want %v", got, tt.want)
				}
			}
			if scans := FastPathScans() - before; scans != 1 {
				t.Errorf("scanned %d times, want 1", scans)
			}
		})
	}
}

func TestPrepare(t *testing.T) {
	b := vm.NewBuilder("")
	h := b.NewLabel()
	b.Jump(vm.OpSetupFinally, h).LoadConst(vm.Int(7)).Op(vm.OpPopBlock).Op(vm.OpReturnValue)
	b.Mark(h).Op(vm.OpPopTop).Return()
	bc := b.MustBuild()

	Prepare(bc)
	if !bc.JIT.Prepared || !bc.JIT.HasExceptionHandlers {
		t.Fatalf("JIT = %+v, want prepared with exception handlers", bc.JIT)
	}
	if len(bc.JIT.Opcodes) != len(bc.Instructions) {
		t.Fatalf("len(Opcodes) = %d, want %d", len(bc.JIT.Opcodes), len(bc.Instructions))
	}
	for i, in := range bc.Instructions {
		if bc.JIT.Opcodes[i] != in.Op || bc.JIT.Args[i] != in.Arg {
			t.Errorf("pc %d: prepared (%s, %d), want (%s, %d)", i, bc.JIT.Opcodes[i], bc.JIT.Args[i], in.Op, in.Arg)
		}
	}

	ops := bc.JIT.Opcodes
	Prepare(bc)
	if &bc.JIT.Opcodes[0] != &ops[0] {
		t.Error("second Prepare rebuilt the opcode array")
	}
}
