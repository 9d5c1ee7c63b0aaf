package jit

import (
	"fmt"

	"github.com/chazu/pyrite/vm"
)

// ExecuteFrameFast runs f with specialized paths for small int and float
// arithmetic and comparison. Iteration goes through the generic iterator
// protocol. It only handles code accepted by IsFastPathSupported;
// when it reaches an instruction it does not implement it hands the frame,
// positioned at that instruction, to the reference interpreter.
func ExecuteFrameFast(v *vm.VM, f *vm.Frame) (vm.Value, error) {
	code := f.Code
	Prepare(code)
	ops, args := code.JIT.Opcodes, code.JIT.Args
	locals := newLocalSync(f)

	for f.PC < len(ops) {
		op, arg := ops[f.PC], args[f.PC]
		f.PC++
		if err := vm.CheckArity(op, arg, len(f.Stack)); err != nil {
			return nil, fmt.Errorf("%s: pc %d: %w", codeName(code), f.PC-1, err)
		}

		switch op {
		case vm.OpLoadConst:
			push(f, code.Constants[arg])
		case vm.OpLoadName:
			val, err := f.Scope.Get(code.Names[arg])
			if err != nil {
				return nil, err
			}
			push(f, val)
		case vm.OpStoreName:
			if err := f.Scope.Set(code.Names[arg], pop(f)); err != nil {
				return nil, err
			}
		case vm.OpLoadFast:
			val := f.Locals[arg]
			if val == nil {
				var err error
				if val, err = vm.LoadFastSlow(f, int(arg)); err != nil {
					return nil, err
				}
			}
			push(f, val)
		case vm.OpStoreFast:
			val := pop(f)
			f.Locals[arg] = val
			if locals.synced(int(arg)) {
				f.Scope.SetLocal(code.Varnames[arg], val)
			}
		case vm.OpLoadGlobal:
			val, err := f.Scope.Root().Get(code.Names[arg])
			if err != nil {
				return nil, err
			}
			push(f, val)
		case vm.OpStoreGlobal:
			f.Scope.Root().SetLocal(code.Names[arg], pop(f))
		case vm.OpPopTop:
			f.LastPopped = pop(f)
		case vm.OpReturnValue:
			return pop(f), nil

		case vm.OpBinaryAdd, vm.OpBinarySubtract, vm.OpBinaryMultiply, vm.OpBinaryDivide,
			vm.OpBinaryFloorDivide, vm.OpBinaryModulo, vm.OpBinaryPower:
			b, a := pop(f), pop(f)
			if r, ok := fastArith(op, a, b); ok {
				push(f, r)
				continue
			}
			binop, _ := vm.BinaryOpFor(op)
			r, err := v.ApplyBinary(binop, a, b)
			if err != nil {
				return nil, err
			}
			push(f, r)
		case vm.OpInplaceAdd, vm.OpInplaceSubtract, vm.OpInplaceMultiply:
			b, a := pop(f), pop(f)
			if r, ok := fastArith(op, a, b); ok {
				push(f, r)
				continue
			}
			binop, _ := vm.BinaryOpFor(op)
			r, err := v.ApplyInPlaceBinary(binop, a, b)
			if err != nil {
				return nil, err
			}
			push(f, r)
		case vm.OpUnaryNegative:
			a := pop(f)
			if x, ok := a.(vm.Int); ok && x != minInt {
				push(f, -x)
				continue
			}
			r, err := v.ApplyUnary(op, a)
			if err != nil {
				return nil, err
			}
			push(f, r)
		case vm.OpUnaryPositive, vm.OpUnaryNot:
			r, err := v.ApplyUnary(op, pop(f))
			if err != nil {
				return nil, err
			}
			push(f, r)
		case vm.OpCompareOp:
			b, a := pop(f), pop(f)
			if r, ok := fastCompare(vm.CompareOp(arg), a, b); ok {
				push(f, r)
				continue
			}
			r, err := v.ApplyCompare(vm.CompareOp(arg), a, b)
			if err != nil {
				return nil, err
			}
			push(f, r)

		case vm.OpJumpForward:
			f.PC += int(arg)
		case vm.OpJumpAbsolute:
			f.PC = int(arg)
		case vm.OpPopJumpIfFalse, vm.OpPopJumpIfTrue:
			t, err := truthy(v, pop(f))
			if err != nil {
				return nil, err
			}
			if t == (op == vm.OpPopJumpIfTrue) {
				f.PC = int(arg)
			}
		case vm.OpJumpIfFalseOrPop, vm.OpJumpIfTrueOrPop:
			t, err := truthy(v, f.Top())
			if err != nil {
				return nil, err
			}
			if t == (op == vm.OpJumpIfTrueOrPop) {
				f.PC = int(arg)
			} else {
				pop(f)
			}

		case vm.OpBuildList:
			push(f, vm.NewList(popN(f, int(arg))...))
		case vm.OpBuildTuple:
			push(f, vm.NewTuple(popN(f, int(arg))...))
		case vm.OpBuildSet:
			push(f, vm.NewSet(popN(f, int(arg))...))
		case vm.OpBuildMap:
			push(f, vm.BuildMap(popN(f, 2*int(arg))))
		case vm.OpListAppend, vm.OpSetAdd, vm.OpMapAdd:
			if err := vm.ContainerAdd(f, op); err != nil {
				return nil, err
			}

		case vm.OpLoadAttr:
			r, err := v.GetAttribute(pop(f), code.Names[arg])
			if err != nil {
				return nil, err
			}
			push(f, r)
		case vm.OpLoadSubscr:
			key := pop(f)
			obj := pop(f)
			if l, ok := obj.(*vm.List); ok {
				if i, ok := key.(vm.Int); ok && i >= 0 && int64(i) < int64(len(l.Items)) {
					push(f, l.Items[i])
					continue
				}
			}
			r, err := v.GetSubscript(obj, key)
			if err != nil {
				return nil, err
			}
			push(f, r)
		case vm.OpStoreSubscr:
			key := pop(f)
			obj := pop(f)
			if err := v.SetSubscript(obj, key, pop(f)); err != nil {
				return nil, err
			}

		case vm.OpGetIter:
			it, err := v.GetIter(pop(f))
			if err != nil {
				return nil, err
			}
			push(f, it)
		case vm.OpForIter:
			it, ok := f.Top().(vm.Iterator)
			if !ok {
				return nil, vm.Raisef(vm.TypeErrorClass, "'%s' object is not an iterator", f.Top().TypeName())
			}
			next, more, err := it.Next(v)
			if err != nil {
				return nil, err
			}
			if more {
				push(f, next)
			} else {
				pop(f)
				f.PC = int(arg)
			}

		case vm.OpCallFunction:
			callArgs := popN(f, int(arg))
			r, err := v.CallFunction(pop(f), callArgs)
			if err != nil {
				return nil, err
			}
			push(f, r)
		case vm.OpMakeFunction:
			fn, err := vm.MakeFunction(f, int(arg))
			if err != nil {
				return nil, err
			}
			push(f, fn)

		default:
			f.PC--
			return v.ExecuteFrameInterpreter(f)
		}
	}
	return f.LastPopped, nil
}

const minInt = vm.Int(-1 << 63)

func codeName(bc *vm.ByteCode) string {
	if bc.Name == "" {
		return "<module>"
	}
	return bc.Name
}

// fastArith handles Int/Int and Float/Float for + - *. Int results that
// would overflow are left to the generic path.
func fastArith(op vm.Opcode, a, b vm.Value) (vm.Value, bool) {
	switch x := a.(type) {
	case vm.Int:
		y, ok := b.(vm.Int)
		if !ok {
			return nil, false
		}
		var r int64
		switch op {
		case vm.OpBinaryAdd, vm.OpInplaceAdd:
			r, ok = vm.AddInt64(int64(x), int64(y))
		case vm.OpBinarySubtract, vm.OpInplaceSubtract:
			r, ok = vm.SubInt64(int64(x), int64(y))
		case vm.OpBinaryMultiply, vm.OpInplaceMultiply:
			r, ok = vm.MulInt64(int64(x), int64(y))
		default:
			return nil, false
		}
		if !ok {
			return nil, false
		}
		return vm.Int(r), true
	case vm.Float:
		y, ok := b.(vm.Float)
		if !ok {
			return nil, false
		}
		switch op {
		case vm.OpBinaryAdd, vm.OpInplaceAdd:
			return x + y, true
		case vm.OpBinarySubtract, vm.OpInplaceSubtract:
			return x - y, true
		case vm.OpBinaryMultiply, vm.OpInplaceMultiply:
			return x * y, true
		}
	}
	return nil, false
}

// fastCompare handles ordering and equality of two Ints or two Floats.
func fastCompare(op vm.CompareOp, a, b vm.Value) (vm.Value, bool) {
	switch x := a.(type) {
	case vm.Int:
		if y, ok := b.(vm.Int); ok {
			return compareOrdered(op, x, y)
		}
	case vm.Float:
		if y, ok := b.(vm.Float); ok {
			return compareOrdered(op, x, y)
		}
	}
	return nil, false
}

func compareOrdered[T vm.Int | vm.Float](op vm.CompareOp, x, y T) (vm.Value, bool) {
	switch op {
	case vm.CmpLT:
		return vm.Bool(x < y), true
	case vm.CmpLE:
		return vm.Bool(x <= y), true
	case vm.CmpEQ:
		return vm.Bool(x == y), true
	case vm.CmpNE:
		return vm.Bool(x != y), true
	case vm.CmpGT:
		return vm.Bool(x > y), true
	case vm.CmpGE:
		return vm.Bool(x >= y), true
	}
	return nil, false
}

func truthy(v *vm.VM, val vm.Value) (bool, error) {
	switch x := val.(type) {
	case vm.Bool:
		return bool(x), nil
	case vm.Int:
		return x != 0, nil
	case vm.NoneType:
		return false, nil
	}
	return v.IsTruthy(val)
}

// ---------------------------------------------------------------------------
// Stack helpers. Arity is checked before each instruction.
// ---------------------------------------------------------------------------

func push(f *vm.Frame, val vm.Value) {
	f.Stack = append(f.Stack, val)
}

func pop(f *vm.Frame) vm.Value {
	n := len(f.Stack) - 1
	val := f.Stack[n]
	f.Stack[n] = nil
	f.Stack = f.Stack[:n]
	return val
}

func popN(f *vm.Frame, n int) []vm.Value {
	start := len(f.Stack) - n
	out := make([]vm.Value, n)
	copy(out, f.Stack[start:])
	clear(f.Stack[start:])
	f.Stack = f.Stack[:start]
	return out
}

// ---------------------------------------------------------------------------
// Local slot synchronization
// ---------------------------------------------------------------------------

// localSync tracks which local slots mirror a binding in the frame's own
// scope. A slot is synced when the scope holds its name; stores to synced
// slots are written through. The flags are recomputed whenever the scope's
// shape changes.
type localSync struct {
	f     *vm.Frame
	shape uint64
	flags []bool
}

func newLocalSync(f *vm.Frame) *localSync {
	s := &localSync{f: f, flags: make([]bool, len(f.Code.Varnames))}
	s.refresh()
	return s
}

func (s *localSync) refresh() {
	s.shape = s.f.Scope.Shape()
	for i, name := range s.f.Code.Varnames {
		s.flags[i] = s.f.Scope.HasLocal(name)
	}
}

func (s *localSync) synced(i int) bool {
	if s.f.Scope.Shape() != s.shape {
		s.refresh()
	}
	return s.flags[i]
}
