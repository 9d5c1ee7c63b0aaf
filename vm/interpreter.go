package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Reference interpreter
// ---------------------------------------------------------------------------

// ExecuteFrameInterpreter runs f in the reference interpreter starting at
// f.PC. Other execution paths call it to continue a frame they cannot finish,
// so it must accept a frame in any state they leave behind.
func (vm *VM) ExecuteFrameInterpreter(f *Frame) (Value, error) {
	code := f.Code.Instructions
	for f.PC < len(code) {
		in := code[f.PC]
		f.PC++
		if err := CheckArity(in.Op, in.Arg, len(f.Stack)); err != nil {
			return nil, fmt.Errorf("%s: pc %d: %w", f.Code.displayName(), f.PC-1, err)
		}
		v, done, err := vm.step(f, in)
		if err != nil {
			if exc, ok := AsException(err); ok && len(f.blocks) > 0 {
				f.enterHandler(exc)
				continue
			}
			return nil, err
		}
		if done {
			return v, nil
		}
	}
	return f.LastPopped, nil
}

// enterHandler transfers control to the innermost handler block.
func (f *Frame) enterHandler(exc *Exception) {
	b := f.blocks[len(f.blocks)-1]
	f.blocks = f.blocks[:len(f.blocks)-1]
	f.truncate(b.depth)
	f.Push(exc)
	f.handled = exc
	f.PC = b.handler
}

// step executes one instruction. done reports that the frame returned or
// yielded v.
func (vm *VM) step(f *Frame, in Instruction) (v Value, done bool, err error) {
	arg := in.Arg
	switch in.Op {

	// Stack operations
	case OpNop:
	case OpPopTop:
		f.LastPopped = f.pop()
	case OpRotTwo:
		n := len(f.Stack)
		f.Stack[n-1], f.Stack[n-2] = f.Stack[n-2], f.Stack[n-1]
	case OpRotThree:
		n := len(f.Stack)
		f.Stack[n-1], f.Stack[n-2], f.Stack[n-3] = f.Stack[n-2], f.Stack[n-3], f.Stack[n-1]
	case OpDupTop:
		f.Push(f.Top())
	case OpDupTopTwo:
		n := len(f.Stack)
		f.Push(f.Stack[n-2])
		f.Push(f.Stack[n-2])

	// Loads and stores
	case OpLoadConst:
		f.Push(f.Code.Constants[arg])
	case OpLoadName:
		v, err := f.Scope.Get(f.Code.Names[arg])
		if err != nil {
			return nil, false, err
		}
		f.Push(v)
	case OpStoreName:
		return nil, false, f.Scope.Set(f.Code.Names[arg], f.pop())
	case OpDeleteName:
		return nil, false, f.Scope.Delete(f.Code.Names[arg])
	case OpLoadFast:
		v, err := LoadFastSlow(f, int(arg))
		if err != nil {
			return nil, false, err
		}
		f.Push(v)
	case OpStoreFast:
		val := f.pop()
		f.Locals[arg] = val
		name := f.Code.Varnames[arg]
		if f.Scope.HasLocal(name) {
			f.Scope.SetLocal(name, val)
		}
	case OpDeleteFast:
		name := f.Code.Varnames[arg]
		inScope := f.Scope.HasLocal(name)
		if f.Locals[arg] == nil && !inScope {
			return nil, false, unboundLocal(name)
		}
		f.Locals[arg] = nil
		if inScope {
			return nil, false, f.Scope.Delete(name)
		}
	case OpLoadGlobal:
		v, err := f.Scope.Root().Get(f.Code.Names[arg])
		if err != nil {
			return nil, false, err
		}
		f.Push(v)
	case OpStoreGlobal:
		f.Scope.Root().SetLocal(f.Code.Names[arg], f.pop())

	// Operators
	case OpUnaryPositive, OpUnaryNegative, OpUnaryNot, OpUnaryInvert:
		r, err := vm.ApplyUnary(in.Op, f.pop())
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpBinaryAdd, OpBinarySubtract, OpBinaryMultiply, OpBinaryDivide, OpBinaryFloorDivide,
		OpBinaryModulo, OpBinaryPower, OpBinaryAnd, OpBinaryOr, OpBinaryXor, OpBinaryLShift, OpBinaryRShift:
		op, _ := BinaryOpFor(in.Op)
		b := f.pop()
		a := f.pop()
		r, err := vm.ApplyBinary(op, a, b)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpInplaceAdd, OpInplaceSubtract, OpInplaceMultiply, OpInplaceDivide, OpInplaceFloorDivide,
		OpInplaceModulo, OpInplacePower, OpInplaceAnd, OpInplaceOr, OpInplaceXor, OpInplaceLShift, OpInplaceRShift:
		op, _ := BinaryOpFor(in.Op)
		b := f.pop()
		a := f.pop()
		r, err := vm.ApplyInPlaceBinary(op, a, b)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpCompareOp:
		b := f.pop()
		a := f.pop()
		r, err := vm.ApplyCompare(CompareOp(arg), a, b)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)

	// Control flow
	case OpJumpForward:
		f.PC += int(arg)
	case OpJumpAbsolute:
		f.PC = int(arg)
	case OpPopJumpIfFalse, OpPopJumpIfTrue:
		t, err := vm.IsTruthy(f.pop())
		if err != nil {
			return nil, false, err
		}
		if t == (in.Op == OpPopJumpIfTrue) {
			f.PC = int(arg)
		}
	case OpJumpIfFalseOrPop, OpJumpIfTrueOrPop:
		t, err := vm.IsTruthy(f.Top())
		if err != nil {
			return nil, false, err
		}
		if t == (in.Op == OpJumpIfTrueOrPop) {
			f.PC = int(arg)
		} else {
			f.pop()
		}

	// Containers
	case OpBuildList:
		f.Push(NewList(f.popN(int(arg))...))
	case OpBuildTuple:
		f.Push(NewTuple(f.popN(int(arg))...))
	case OpBuildSet:
		f.Push(NewSet(f.popN(int(arg))...))
	case OpBuildMap:
		f.Push(BuildMap(f.popN(2 * int(arg))))
	case OpListAppend, OpSetAdd, OpMapAdd:
		return nil, false, ContainerAdd(f, in.Op)
	case OpUnpackSequence:
		items, err := vm.iterate(f.pop())
		if err != nil {
			return nil, false, err
		}
		if len(items) != int(arg) {
			if len(items) < int(arg) {
				return nil, false, Raisef(ValueErrorClass, "not enough values to unpack (expected %d, got %d)", arg, len(items))
			}
			return nil, false, Raisef(ValueErrorClass, "too many values to unpack (expected %d)", arg)
		}
		for i := len(items) - 1; i >= 0; i-- {
			f.Push(items[i])
		}
	case OpBuildSlice:
		parts := f.popN(int(arg))
		s := &Slice{Start: None, Stop: None, Step: None}
		if len(parts) >= 2 {
			s.Start, s.Stop = parts[0], parts[1]
		}
		if len(parts) == 3 {
			s.Step = parts[2]
		}
		f.Push(s)
	case OpBuildString:
		parts := f.popN(int(arg))
		var out []byte
		for _, p := range parts {
			s, err := vm.str(p)
			if err != nil {
				return nil, false, err
			}
			out = append(out, s...)
		}
		f.Push(Str(out))
	case OpFormatValue:
		var spec Value = Str("")
		if arg&formatWithSpec != 0 {
			spec = f.pop()
		}
		r, err := vm.FormatValue(f.pop(), arg&formatRepr != 0, ToStr(spec))
		if err != nil {
			return nil, false, err
		}
		f.Push(r)

	// Attributes and subscripts
	case OpLoadAttr:
		r, err := vm.GetAttribute(f.pop(), f.Code.Names[arg])
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpStoreAttr:
		obj := f.pop()
		return nil, false, vm.SetAttribute(obj, f.Code.Names[arg], f.pop())
	case OpLoadSubscr:
		key := f.pop()
		r, err := vm.GetSubscript(f.pop(), key)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpStoreSubscr:
		key := f.pop()
		obj := f.pop()
		return nil, false, vm.SetSubscript(obj, key, f.pop())
	case OpDeleteSubscr:
		key := f.pop()
		return nil, false, vm.DeleteSubscript(f.pop(), key)

	// Iteration
	case OpGetIter:
		it, err := vm.GetIter(f.pop())
		if err != nil {
			return nil, false, err
		}
		f.Push(it)
	case OpForIter:
		it, ok := f.Top().(Iterator)
		if !ok {
			return nil, false, Raisef(TypeErrorClass, "'%s' object is not an iterator", f.Top().TypeName())
		}
		next, more, err := it.Next(vm)
		if err != nil {
			return nil, false, err
		}
		if more {
			f.Push(next)
		} else {
			f.pop()
			f.PC = int(arg)
		}

	// Functions and classes
	case OpMakeFunction:
		fn, err := MakeFunction(f, int(arg))
		if err != nil {
			return nil, false, err
		}
		f.Push(fn)
	case OpCallFunction:
		args := f.popN(int(arg))
		r, err := vm.call(f.pop(), args, nil)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpCallFunctionKw:
		names, ok := f.pop().(*List)
		if !ok || len(names.Items) > int(arg) {
			return nil, false, fmt.Errorf("%s: pc %d: CALL_FUNCTION_KW without keyword names: %w", f.Code.displayName(), f.PC-1, ErrBadOperand)
		}
		args := f.popN(int(arg))
		split := len(args) - len(names.Items)
		kwargs := NewDict()
		for i, n := range names.Items {
			kwargs.Set(n, args[split+i])
		}
		r, err := vm.call(f.pop(), args[:split], kwargs)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpReturnValue:
		return f.pop(), true, nil
	case OpYieldValue:
		f.yielded = true
		return f.pop(), true, nil
	case OpBuildClass:
		name := f.pop()
		body, ok := f.pop().(*ByteCode)
		if !ok {
			return nil, false, fmt.Errorf("%s: pc %d: BUILD_CLASS body is not code: %w", f.Code.displayName(), f.PC-1, ErrBadOperand)
		}
		bases := f.popN(int(arg))
		cls, err := vm.buildClass(f.Scope, ToStr(name), body, bases)
		if err != nil {
			return nil, false, err
		}
		f.Push(cls)

	// Exceptions
	case OpSetupFinally:
		f.blocks = append(f.blocks, handlerBlock{kind: blockFinally, handler: int(arg), depth: len(f.Stack)})
	case OpSetupWith:
		mgr := f.pop()
		exit, err := vm.GetAttribute(mgr, "__exit__")
		if err != nil {
			return nil, false, err
		}
		enter, err := vm.GetAttribute(mgr, "__enter__")
		if err != nil {
			return nil, false, err
		}
		f.Push(exit)
		f.blocks = append(f.blocks, handlerBlock{kind: blockWith, handler: int(arg), depth: len(f.Stack)})
		r, err := vm.call(enter, nil, nil)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpWithExceptStart:
		n := len(f.Stack)
		exc := f.Stack[n-1]
		var cls Value = None
		if e, ok := exc.(*Exception); ok {
			cls = e.Class
		}
		r, err := vm.call(f.Stack[n-2], []Value{cls, exc, None}, nil)
		if err != nil {
			return nil, false, err
		}
		f.Push(r)
	case OpPopBlock:
		if len(f.blocks) == 0 {
			return nil, false, fmt.Errorf("%s: pc %d: POP_BLOCK without block: %w", f.Code.displayName(), f.PC-1, ErrBadOperand)
		}
		f.blocks = f.blocks[:len(f.blocks)-1]
	case OpRaiseVarargs:
		switch arg {
		case 0:
			if f.handled == nil {
				return nil, false, Raisef(RuntimeErrorClass, "No active exception to reraise")
			}
			return nil, false, f.handled
		case 1, 2:
			if arg == 2 {
				f.pop() // cause
			}
			return nil, false, vm.toException(f.pop())
		}
		return nil, false, fmt.Errorf("%s: pc %d: RAISE_VARARGS %d: %w", f.Code.displayName(), f.PC-1, arg, ErrBadOperand)
	case OpJumpIfNotExcMatch:
		cls := f.pop()
		exc, ok := f.pop().(*Exception)
		if !ok {
			return nil, false, Raisef(TypeErrorClass, "exception match on a non-exception")
		}
		match, err := excMatches(exc, cls)
		if err != nil {
			return nil, false, err
		}
		if !match {
			f.PC = int(arg)
		}
	case OpReraise:
		return nil, false, vm.toException(f.pop())

	default:
		return nil, false, fmt.Errorf("%s: pc %d: opcode 0x%02X: %w", f.Code.displayName(), f.PC-1, uint16(in.Op), ErrUnknownOpcode)
	}
	return nil, false, nil
}

// ---------------------------------------------------------------------------
// Shared instruction helpers
// ---------------------------------------------------------------------------

// LoadFastSlow resolves local slot i when the fast array may be stale: the
// slot value if set, else the binding of the same name in the frame's own
// scope. It caches a scope hit in the slot.
func LoadFastSlow(f *Frame, i int) (Value, error) {
	if v := f.Locals[i]; v != nil {
		return v, nil
	}
	name := f.Code.Varnames[i]
	if v, ok := f.Scope.Local(name); ok {
		f.Locals[i] = v
		return v, nil
	}
	return nil, unboundLocal(name)
}

func unboundLocal(name string) *Exception {
	return Raisef(UnboundLocalErrorClass, "local variable '%s' referenced before assignment", name)
}

// BuildMap builds a dict from alternating keys and values.
func BuildMap(kv []Value) *Dict {
	d := NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i], kv[i+1])
	}
	return d
}

// ContainerAdd implements LIST_APPEND, SET_ADD and MAP_ADD: it pops the
// value (and key) and adds it to the container left on top of the stack.
func ContainerAdd(f *Frame, op Opcode) error {
	val := f.pop()
	switch op {
	case OpListAppend:
		l, ok := f.Top().(*List)
		if !ok || l.Tuple {
			return Raisef(TypeErrorClass, "list.append on non-list")
		}
		l.Items = append(l.Items, val)
	case OpSetAdd:
		s, ok := f.Top().(*Set)
		if !ok {
			return Raisef(TypeErrorClass, "set.add on non-set")
		}
		s.Add(val)
	case OpMapAdd:
		key := f.pop()
		d, ok := f.Top().(*Dict)
		if !ok {
			return Raisef(TypeErrorClass, "dict add on non-dict")
		}
		d.Set(key, val)
	}
	return nil
}

// MakeFunction implements MAKE_FUNCTION with ndefaults default values.
func MakeFunction(f *Frame, ndefaults int) (*Function, error) {
	name := f.pop()
	code, ok := f.pop().(*ByteCode)
	if !ok {
		return nil, fmt.Errorf("%s: pc %d: MAKE_FUNCTION operand is not code: %w", f.Code.displayName(), f.PC-1, ErrBadOperand)
	}
	defaults := f.popN(ndefaults)
	fname := code.Name
	if s, ok := name.(Str); ok {
		fname = string(s)
	}
	return &Function{
		Name:        fname,
		Code:        code,
		Params:      code.Params,
		Defaults:    defaults,
		Closure:     f.ClosureScope(),
		IsGenerator: code.IsGenerator,
	}, nil
}

// toException converts a raised value into an exception.
func (vm *VM) toException(v Value) error {
	switch x := v.(type) {
	case *Exception:
		return x
	case *Class:
		if x.IsException {
			r, err := vm.instantiate(x, nil, nil)
			if err != nil {
				return err
			}
			return r.(*Exception)
		}
	}
	return Raisef(TypeErrorClass, "exceptions must derive from BaseException")
}

// excMatches tests an exception against a class or tuple of classes.
func excMatches(exc *Exception, cls Value) (bool, error) {
	switch c := cls.(type) {
	case *Class:
		return exc.Matches(c), nil
	case *List:
		for _, it := range c.Items {
			if ok, err := excMatches(exc, it); ok || err != nil {
				return ok, err
			}
		}
		return false, nil
	}
	return false, Raisef(TypeErrorClass, "catching classes that do not inherit from BaseException is not allowed")
}
