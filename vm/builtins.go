package vm

import (
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Builtin functions
// ---------------------------------------------------------------------------

// makeBuiltins builds the table backing every root scope of this VM.
func (vm *VM) makeBuiltins() map[string]Value {
	fns := map[string]BuiltinFunc{
		"print":      builtinPrint,
		"range":      builtinRange,
		"len":        builtinLen,
		"next":       builtinNext,
		"iter":       builtinIter,
		"list":       builtinList,
		"tuple":      builtinTuple,
		"set":        builtinSet,
		"dict":       builtinDict,
		"str":        builtinStr,
		"repr":       builtinRepr,
		"int":        builtinInt,
		"float":      builtinFloat,
		"bool":       builtinBool,
		"abs":        builtinAbs,
		"min":        builtinMinMax("min", -1),
		"max":        builtinMinMax("max", 1),
		"sum":        builtinSum,
		"isinstance": builtinIsInstance,
		"type":       builtinType,
		"sorted":     builtinSorted,
		"enumerate":  builtinEnumerate,
		"zip":        builtinZip,
		"reversed":   builtinReversed,
		"callable":   builtinCallable,
		"getattr":    builtinGetAttr,
		"setattr":    builtinSetAttr,
		"hasattr":    builtinHasAttr,
		"format":     builtinFormat,
	}
	out := make(map[string]Value, len(fns)+len(builtinExceptionClasses))
	for name, fn := range fns {
		out[name] = &Builtin{Name: name, Fn: fn}
	}
	for _, c := range builtinExceptionClasses {
		out[c.Name] = c
	}
	return out
}

// arity checks the positional argument count of a builtin call.
func arity(name string, args []Value, min, max int) error {
	switch n := len(args); {
	case n < min && min == max:
		return Raisef(TypeErrorClass, "%s() takes exactly %d argument%s (%d given)", name, min, plural(min), n)
	case n < min:
		return Raisef(TypeErrorClass, "%s expected at least %d argument%s, got %d", name, min, plural(min), n)
	case n > max:
		return Raisef(TypeErrorClass, "%s expected at most %d argument%s, got %d", name, max, plural(max), n)
	}
	return nil
}

func noKeywords(name string, kwargs *Dict) error {
	if kwargs != nil && kwargs.Len() > 0 {
		return Raisef(TypeErrorClass, "%s() takes no keyword arguments", name)
	}
	return nil
}

func toIndex(v Value) (int64, error) {
	n, ok := AsInt(v)
	if !ok {
		return 0, Raisef(TypeErrorClass, "'%s' object cannot be interpreted as an integer", v.TypeName())
	}
	return n, nil
}

func builtinPrint(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	sep, end := " ", "\n"
	if kwargs != nil {
		var err error
		kwargs.Each(func(k, v Value) bool {
			var s string
			if v != None {
				str, ok := v.(Str)
				if !ok {
					err = Raisef(TypeErrorClass, "%s must be None or a string, not %s", ToStr(k), v.TypeName())
					return false
				}
				s = string(str)
			}
			switch k {
			case Str("sep"):
				if v != None {
					sep = s
				}
			case Str("end"):
				if v != None {
					end = s
				}
			default:
				err = Raisef(TypeErrorClass, "'%s' is an invalid keyword argument for print()", ToStr(k))
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteString(sep)
		}
		s, err := vm.str(a)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	b.WriteString(end)
	if _, err := io.WriteString(vm.Stdout, b.String()); err != nil {
		return nil, err
	}
	return None, nil
}

func builtinRange(_ *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := noKeywords("range", kwargs); err != nil {
		return nil, err
	}
	if err := arity("range", args, 1, 3); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, err := toIndex(a)
		if err != nil {
			return nil, err
		}
		bounds[i] = n
	}
	r := &Range{Step: 1}
	switch len(bounds) {
	case 1:
		r.Stop = bounds[0]
	case 2:
		r.Start, r.Stop = bounds[0], bounds[1]
	case 3:
		r.Start, r.Stop, r.Step = bounds[0], bounds[1], bounds[2]
		if r.Step == 0 {
			return nil, Raisef(ValueErrorClass, "range() arg 3 must not be zero")
		}
	}
	return r, nil
}

func builtinLen(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	n, err := vm.Len(args[0])
	if err != nil {
		return nil, err
	}
	return Int(n), nil
}

func builtinNext(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("next", args, 1, 2); err != nil {
		return nil, err
	}
	if g, ok := args[0].(*Generator); ok {
		v, err := g.Send(vm, None)
		if err != nil && len(args) == 2 && IsStopIteration(err) {
			return args[1], nil
		}
		return v, err
	}
	it, ok := args[0].(Iterator)
	if !ok {
		return nil, Raisef(TypeErrorClass, "'%s' object is not an iterator", args[0].TypeName())
	}
	v, more, err := it.Next(vm)
	if err != nil {
		return nil, err
	}
	if !more {
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, Raisef(StopIterationClass, "")
	}
	return v, nil
}

func builtinIter(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("iter", args, 1, 1); err != nil {
		return nil, err
	}
	return vm.GetIter(args[0])
}

func builtinList(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("list", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return NewList(), nil
	}
	items, err := vm.iterate(args[0])
	if err != nil {
		return nil, err
	}
	return NewList(items...), nil
}

func builtinTuple(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("tuple", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return NewTuple(), nil
	}
	if l, ok := args[0].(*List); ok && l.Tuple {
		return l, nil
	}
	items, err := vm.iterate(args[0])
	if err != nil {
		return nil, err
	}
	return NewTuple(items...), nil
}

func builtinSet(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("set", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return NewSet(), nil
	}
	items, err := vm.iterate(args[0])
	if err != nil {
		return nil, err
	}
	return NewSet(items...), nil
}

func builtinDict(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := arity("dict", args, 0, 1); err != nil {
		return nil, err
	}
	d := NewDict()
	if len(args) == 1 {
		if err := vm.mergeInto(d, args[0]); err != nil {
			return nil, err
		}
	}
	if kwargs != nil {
		kwargs.Each(func(k, v Value) bool {
			d.Set(k, v)
			return true
		})
	}
	return d, nil
}

func builtinStr(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("str", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Str(""), nil
	}
	s, err := vm.str(args[0])
	if err != nil {
		return nil, err
	}
	return Str(s), nil
}

func builtinRepr(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("repr", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := vm.repr(args[0])
	if err != nil {
		return nil, err
	}
	return Str(s), nil
}

func builtinInt(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("int", args, 0, 2); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Int(0), nil
	}
	base := int64(10)
	if len(args) == 2 {
		if _, ok := args[0].(Str); !ok {
			return nil, Raisef(TypeErrorClass, "int() can't convert non-string with explicit base")
		}
		b, err := toIndex(args[1])
		if err != nil {
			return nil, err
		}
		if b != 0 && (b < 2 || b > 36) {
			return nil, Raisef(ValueErrorClass, "int() base must be >= 2 and <= 36, or 0")
		}
		base = b
	}
	switch x := args[0].(type) {
	case Bool:
		if x {
			return Int(1), nil
		}
		return Int(0), nil
	case Int, *BigInt:
		return x, nil
	case Float:
		f := float64(x)
		if math.IsInf(f, 0) {
			return nil, Raisef(OverflowErrorClass, "cannot convert float infinity to integer")
		}
		if math.IsNaN(f) {
			return nil, Raisef(ValueErrorClass, "cannot convert float NaN to integer")
		}
		n, _ := big.NewFloat(math.Trunc(f)).Int(nil)
		return NewBigInt(n), nil
	case Str:
		s := strings.ReplaceAll(strings.TrimSpace(string(x)), "_", "")
		n, ok := new(big.Int).SetString(s, int(base))
		if !ok || s == "" {
			return nil, Raisef(ValueErrorClass, "invalid literal for int() with base %d: %s", base, Repr(x))
		}
		return NewBigInt(n), nil
	}
	return nil, Raisef(TypeErrorClass, "int() argument must be a string or a number, not '%s'", args[0].TypeName())
}

func builtinFloat(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Float(0), nil
	}
	switch x := args[0].(type) {
	case Float:
		return x, nil
	case Bool, Int, *BigInt:
		f := toFloat(x)
		if math.IsInf(f, 0) {
			return nil, Raisef(OverflowErrorClass, "int too large to convert to float")
		}
		return Float(f), nil
	case Str:
		s := strings.ToLower(strings.TrimSpace(string(x)))
		switch strings.TrimLeft(s, "+-") {
		case "inf", "infinity", "nan":
		default:
			if strings.ContainsAny(s, "xp") {
				s = "invalid"
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !strings.Contains(err.Error(), "out of range") {
			return nil, Raisef(ValueErrorClass, "could not convert string to float: %s", Repr(x))
		}
		return Float(f), nil
	}
	return nil, Raisef(TypeErrorClass, "float() argument must be a string or a number, not '%s'", args[0].TypeName())
}

func builtinBool(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Bool(false), nil
	}
	t, err := vm.IsTruthy(args[0])
	if err != nil {
		return nil, err
	}
	return Bool(t), nil
}

func builtinAbs(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case Float:
		return Float(math.Abs(float64(x))), nil
	case Bool, Int, *BigInt:
		n := toBig(x)
		return NewBigInt(n.Abs(n)), nil
	case *Instance:
		if r, found, err := vm.callDunder(x, "__abs__"); found {
			return r, err
		}
	}
	return nil, Raisef(TypeErrorClass, "bad operand type for abs(): '%s'", args[0].TypeName())
}

// builtinMinMax implements min (want -1) and max (want 1).
func builtinMinMax(name string, want int) BuiltinFunc {
	return func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		var key, dflt Value
		if kwargs != nil {
			var err error
			kwargs.Each(func(k, v Value) bool {
				switch k {
				case Str("key"):
					key = v
				case Str("default"):
					dflt = v
				default:
					err = Raisef(TypeErrorClass, "'%s' is an invalid keyword argument for %s()", ToStr(k), name)
					return false
				}
				return true
			})
			if err != nil {
				return nil, err
			}
		}
		if len(args) == 0 {
			return nil, Raisef(TypeErrorClass, "%s expected at least 1 argument, got 0", name)
		}
		items := args
		if len(args) == 1 {
			var err error
			if items, err = vm.iterate(args[0]); err != nil {
				return nil, err
			}
		} else if dflt != nil {
			return nil, Raisef(TypeErrorClass, "Cannot specify a default for %s() with multiple positional arguments", name)
		}
		if len(items) == 0 {
			if dflt != nil {
				return dflt, nil
			}
			return nil, Raisef(ValueErrorClass, "%s() arg is an empty sequence", name)
		}
		keyOf := func(v Value) (Value, error) {
			if key == nil || key == None {
				return v, nil
			}
			return vm.call(key, []Value{v}, nil)
		}
		best := items[0]
		bestKey, err := keyOf(best)
		if err != nil {
			return nil, err
		}
		for _, it := range items[1:] {
			k, err := keyOf(it)
			if err != nil {
				return nil, err
			}
			op := CmpGT
			if want < 0 {
				op = CmpLT
			}
			r, err := vm.ApplyCompare(op, k, bestKey)
			if err != nil {
				return nil, err
			}
			if Truthy(r) {
				best, bestKey = it, k
			}
		}
		return best, nil
	}
}

func builtinSum(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("sum", args, 1, 2); err != nil {
		return nil, err
	}
	var total Value = Int(0)
	if len(args) == 2 {
		if _, ok := args[1].(Str); ok {
			return nil, Raisef(TypeErrorClass, "sum() can't sum strings [use ''.join(seq) instead]")
		}
		total = args[1]
	}
	items, err := vm.iterate(args[0])
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if total, err = vm.ApplyBinary(BinAdd, total, it); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// isInstance tests v against a class, a builtin type constructor or a tuple
// of either.
func (vm *VM) isInstance(v, typ Value) (bool, error) {
	switch t := typ.(type) {
	case *Class:
		switch x := v.(type) {
		case *Instance:
			return x.Class.IsSubclassOf(t), nil
		case *Exception:
			return x.Class.IsSubclassOf(t), nil
		}
		return false, nil
	case *Builtin:
		if vm.builtins[t.Name] != t {
			break
		}
		name := v.TypeName()
		if t.Name == "int" && name == "bool" {
			return true, nil
		}
		if t.Name == "type" {
			_, ok := v.(*Class)
			return ok, nil
		}
		if _, ok := v.(*Instance); ok {
			return false, nil
		}
		return name == t.Name, nil
	case *List:
		if t.Tuple {
			for _, it := range t.Items {
				ok, err := vm.isInstance(v, it)
				if ok || err != nil {
					return ok, err
				}
			}
			return false, nil
		}
	}
	return false, Raisef(TypeErrorClass, "isinstance() arg 2 must be a type or tuple of types")
}

func builtinIsInstance(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("isinstance", args, 2, 2); err != nil {
		return nil, err
	}
	ok, err := vm.isInstance(args[0], args[1])
	if err != nil {
		return nil, err
	}
	return Bool(ok), nil
}

// TypeOf returns the class of v: the user class for instances and
// exceptions, the builtin constructor for builtin types.
func (vm *VM) TypeOf(v Value) Value {
	switch x := v.(type) {
	case *Instance:
		return x.Class
	case *Exception:
		return x.Class
	}
	if t, ok := vm.builtins[v.TypeName()]; ok {
		return t
	}
	return NewClass(v.TypeName(), nil, nil)
}

func builtinType(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("type", args, 1, 1); err != nil {
		return nil, err
	}
	return vm.TypeOf(args[0]), nil
}

func builtinSorted(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := arity("sorted", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := vm.iterate(args[0])
	if err != nil {
		return nil, err
	}
	out, err := vm.sortValues(items, kwargs)
	if err != nil {
		return nil, err
	}
	return NewList(out...), nil
}

// enumerateIterator yields (index, item) pairs lazily.
type enumerateIterator struct {
	src Iterator
	n   Value
}

func (*enumerateIterator) TypeName() string { return "enumerate" }
func (*enumerateIterator) pyValue()         {}

func (it *enumerateIterator) Next(vm *VM) (Value, bool, error) {
	v, more, err := it.src.Next(vm)
	if err != nil || !more {
		return nil, false, err
	}
	pair := NewTuple(it.n, v)
	if it.n, err = vm.ApplyBinary(BinAdd, it.n, Int(1)); err != nil {
		return nil, false, err
	}
	return pair, true, nil
}

func builtinEnumerate(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := arity("enumerate", args, 1, 2); err != nil {
		return nil, err
	}
	var start Value = Int(0)
	if len(args) == 2 {
		start = args[1]
	}
	if kwargs != nil {
		if v, ok := kwargs.Get(Str("start")); ok {
			start = v
		}
	}
	if !IsIntLike(start) {
		return nil, Raisef(TypeErrorClass, "'%s' object cannot be interpreted as an integer", start.TypeName())
	}
	src, err := vm.GetIter(args[0])
	if err != nil {
		return nil, err
	}
	return &enumerateIterator{src: src, n: start}, nil
}

// zipIterator yields tuples until the shortest source is exhausted.
type zipIterator struct {
	srcs []Iterator
}

func (*zipIterator) TypeName() string { return "zip" }
func (*zipIterator) pyValue()         {}

func (it *zipIterator) Next(vm *VM) (Value, bool, error) {
	if len(it.srcs) == 0 {
		return nil, false, nil
	}
	items := make([]Value, len(it.srcs))
	for i, src := range it.srcs {
		v, more, err := src.Next(vm)
		if err != nil || !more {
			return nil, false, err
		}
		items[i] = v
	}
	return NewTuple(items...), true, nil
}

func builtinZip(vm *VM, args []Value, _ *Dict) (Value, error) {
	srcs := make([]Iterator, len(args))
	for i, a := range args {
		it, err := vm.GetIter(a)
		if err != nil {
			return nil, err
		}
		srcs[i] = it
	}
	return &zipIterator{srcs: srcs}, nil
}

func builtinReversed(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("reversed", args, 1, 1); err != nil {
		return nil, err
	}
	switch args[0].(type) {
	case *List, *Range, Str:
	default:
		return nil, Raisef(TypeErrorClass, "'%s' object is not reversible", args[0].TypeName())
	}
	items, err := vm.iterate(args[0])
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return &SnapshotIterator{kind: "reversed", items: items}, nil
}

func builtinCallable(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("callable", args, 1, 1); err != nil {
		return nil, err
	}
	return Bool(Callable(args[0])), nil
}

func builtinGetAttr(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("getattr", args, 2, 3); err != nil {
		return nil, err
	}
	name, ok := args[1].(Str)
	if !ok {
		return nil, Raisef(TypeErrorClass, "attribute name must be string, not '%s'", args[1].TypeName())
	}
	v, err := vm.GetAttribute(args[0], string(name))
	if err != nil && len(args) == 3 {
		if exc, ok := AsException(err); ok && exc.Matches(AttributeErrorClass) {
			return args[2], nil
		}
	}
	return v, err
}

func builtinSetAttr(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("setattr", args, 3, 3); err != nil {
		return nil, err
	}
	name, ok := args[1].(Str)
	if !ok {
		return nil, Raisef(TypeErrorClass, "attribute name must be string, not '%s'", args[1].TypeName())
	}
	return None, vm.SetAttribute(args[0], string(name), args[2])
}

func builtinHasAttr(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("hasattr", args, 2, 2); err != nil {
		return nil, err
	}
	name, ok := args[1].(Str)
	if !ok {
		return nil, Raisef(TypeErrorClass, "attribute name must be string, not '%s'", args[1].TypeName())
	}
	_, err := vm.GetAttribute(args[0], string(name))
	if err == nil {
		return Bool(true), nil
	}
	if exc, ok := AsException(err); ok && exc.Matches(AttributeErrorClass) {
		return Bool(false), nil
	}
	return nil, err
}

func builtinFormat(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := arity("format", args, 1, 2); err != nil {
		return nil, err
	}
	spec := ""
	if len(args) == 2 {
		s, ok := args[1].(Str)
		if !ok {
			return nil, Raisef(TypeErrorClass, "format() argument 2 must be str, not %s", args[1].TypeName())
		}
		spec = string(s)
	}
	return vm.FormatValue(args[0], false, spec)
}
