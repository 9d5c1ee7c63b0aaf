package vm

import (
	"slices"
	"strings"
)

// ---------------------------------------------------------------------------
// Methods of builtin types
// ---------------------------------------------------------------------------

// methodTable maps method names to builtins that receive the receiver as
// their first argument.
type methodTable map[string]*Builtin

var (
	listMethods      methodTable
	tupleMethods     methodTable
	dictMethods      methodTable
	setMethods       methodTable
	strMethods       methodTable
	generatorMethods methodTable
)

// The tables are filled in init because several methods re-enter the
// interpreter, which itself looks methods up.
func init() {
	listMethods = newMethodTable(map[string]BuiltinFunc{
		"append":  listAppend,
		"pop":     listPop,
		"extend":  listExtend,
		"insert":  listInsert,
		"index":   seqIndexOf,
		"count":   seqCount,
		"reverse": listReverse,
		"remove":  listRemove,
		"clear":   listClear,
		"copy":    listCopy,
		"sort":    listSort,
	})
	tupleMethods = newMethodTable(map[string]BuiltinFunc{
		"index": seqIndexOf,
		"count": seqCount,
	})
	dictMethods = newMethodTable(map[string]BuiltinFunc{
		"get":        dictGet,
		"keys":       dictKeys,
		"values":     dictValues,
		"items":      dictItems,
		"pop":        dictPop,
		"setdefault": dictSetDefault,
		"update":     dictUpdate,
		"clear":      dictClear,
		"copy":       dictCopy,
	})
	setMethods = newMethodTable(map[string]BuiltinFunc{
		"add":          setAdd,
		"remove":       setRemove,
		"discard":      setDiscard,
		"clear":        setClear,
		"copy":         setCopy,
		"union":        setCombine("union", BinOr),
		"intersection": setCombine("intersection", BinAnd),
		"difference":   setCombine("difference", BinSub),
	})
	strMethods = newMethodTable(map[string]BuiltinFunc{
		"upper":      strUpper,
		"lower":      strLower,
		"strip":      strStrip(strings.Trim, strings.TrimSpace),
		"lstrip":     strStrip(strings.TrimLeft, func(s string) string { return strings.TrimLeft(s, " \t\n\r\v\f") }),
		"rstrip":     strStrip(strings.TrimRight, func(s string) string { return strings.TrimRight(s, " \t\n\r\v\f") }),
		"split":      strSplit,
		"join":       strJoin,
		"replace":    strReplace,
		"startswith": strAffix(strings.HasPrefix),
		"endswith":   strAffix(strings.HasSuffix),
		"find":       strFind,
		"count":      strCount,
		"format":     strFormatMethod,
		"isdigit":    strIsDigit,
	})
	generatorMethods = newMethodTable(map[string]BuiltinFunc{
		"send":     generatorSend,
		"__next__": generatorNext,
	})
}

func newMethodTable(fns map[string]BuiltinFunc) methodTable {
	t := make(methodTable, len(fns))
	for name, fn := range fns {
		t[name] = &Builtin{Name: name, Fn: fn}
	}
	return t
}

// lookupMethod finds a method of a builtin type, or returns nil.
func lookupMethod(obj Value, name string) Value {
	var t methodTable
	switch x := obj.(type) {
	case *List:
		if x.Tuple {
			t = tupleMethods
		} else {
			t = listMethods
		}
	case *Dict:
		t = dictMethods
	case *Set:
		t = setMethods
	case Str:
		t = strMethods
	case *Generator:
		t = generatorMethods
	default:
		return nil
	}
	if m, ok := t[name]; ok {
		return m
	}
	return nil
}

// argRange checks the positional argument count of a method call, counting
// the receiver.
func argRange(name string, args []Value, min, max int) error {
	n := len(args) - 1
	switch {
	case n < min && min == max:
		return Raisef(TypeErrorClass, "%s() takes exactly %d argument%s (%d given)", name, min, plural(min), n)
	case n < min:
		return Raisef(TypeErrorClass, "%s() takes at least %d argument%s (%d given)", name, min, plural(min), n)
	case n > max:
		return Raisef(TypeErrorClass, "%s() takes at most %d argument%s (%d given)", name, max, plural(max), n)
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// ---------------------------------------------------------------------------
// list and tuple
// ---------------------------------------------------------------------------

func listAppend(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("append", args, 1, 1); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	l.Items = append(l.Items, args[1])
	return None, nil
}

func listPop(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("pop", args, 0, 1); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	if len(l.Items) == 0 {
		return nil, Raisef(IndexErrorClass, "pop from empty list")
	}
	i := len(l.Items) - 1
	if len(args) == 2 {
		var err error
		if i, err = seqIndex(args[1], len(l.Items), "pop"); err != nil {
			return nil, err
		}
	}
	v := l.Items[i]
	l.Items = slices.Delete(l.Items, i, i+1)
	return v, nil
}

func listExtend(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("extend", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := vm.iterate(args[1])
	if err != nil {
		return nil, err
	}
	l := args[0].(*List)
	l.Items = append(l.Items, items...)
	return None, nil
}

func listInsert(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("insert", args, 2, 2); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	i, ok := AsInt(args[1])
	if !ok {
		return nil, Raisef(TypeErrorClass, "'%s' object cannot be interpreted as an integer", args[1].TypeName())
	}
	n := int64(len(l.Items))
	if i < 0 {
		i = max(i+n, 0)
	}
	i = min(i, n)
	l.Items = slices.Insert(l.Items, int(i), args[2])
	return None, nil
}

func seqIndexOf(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("index", args, 1, 1); err != nil {
		return nil, err
	}
	for i, it := range args[0].(*List).Items {
		eq, err := vm.Equal(it, args[1])
		if err != nil {
			return nil, err
		}
		if eq {
			return Int(i), nil
		}
	}
	return nil, Raisef(ValueErrorClass, "%s is not in %s", Repr(args[1]), args[0].TypeName())
}

func seqCount(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("count", args, 1, 1); err != nil {
		return nil, err
	}
	n := 0
	for _, it := range args[0].(*List).Items {
		eq, err := vm.Equal(it, args[1])
		if err != nil {
			return nil, err
		}
		if eq {
			n++
		}
	}
	return Int(n), nil
}

func listReverse(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("reverse", args, 0, 0); err != nil {
		return nil, err
	}
	slices.Reverse(args[0].(*List).Items)
	return None, nil
}

func listRemove(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("remove", args, 1, 1); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	for i, it := range l.Items {
		eq, err := vm.Equal(it, args[1])
		if err != nil {
			return nil, err
		}
		if eq {
			l.Items = slices.Delete(l.Items, i, i+1)
			return None, nil
		}
	}
	return nil, Raisef(ValueErrorClass, "list.remove(x): x not in list")
}

func listClear(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("clear", args, 0, 0); err != nil {
		return nil, err
	}
	args[0].(*List).Items = nil
	return None, nil
}

func listCopy(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("copy", args, 0, 0); err != nil {
		return nil, err
	}
	return NewList(slices.Clone(args[0].(*List).Items)...), nil
}

func listSort(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := argRange("sort", args, 0, 0); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	sorted, err := vm.sortValues(l.Items, kwargs)
	if err != nil {
		return nil, err
	}
	l.Items = sorted
	return None, nil
}

// sortValues returns a stably sorted copy of items, honoring the key and
// reverse keyword arguments.
func (vm *VM) sortValues(items []Value, kwargs *Dict) ([]Value, error) {
	var key Value = None
	reverse := false
	if kwargs != nil {
		var err error
		kwargs.Each(func(k, v Value) bool {
			switch k {
			case Str("key"):
				key = v
			case Str("reverse"):
				reverse = Truthy(v)
			default:
				err = Raisef(TypeErrorClass, "'%s' is an invalid keyword argument for sort()", ToStr(k))
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	keys := slices.Clone(items)
	if key != None {
		for i, it := range items {
			k, err := vm.call(key, []Value{it}, nil)
			if err != nil {
				return nil, err
			}
			keys[i] = k
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	slices.SortStableFunc(idx, func(a, b int) int {
		if sortErr != nil {
			return 0
		}
		c, ok, err := vm.order(CmpLT, keys[a], keys[b])
		if err != nil {
			sortErr = err
			return 0
		}
		if !ok {
			sortErr = Raisef(TypeErrorClass, "'<' not supported between instances of '%s' and '%s'", keys[a].TypeName(), keys[b].TypeName())
			return 0
		}
		if reverse {
			return -c
		}
		return c
	})
	if sortErr != nil {
		return nil, sortErr
	}
	out := make([]Value, len(items))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// dict
// ---------------------------------------------------------------------------

func dictGet(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("get", args, 1, 2); err != nil {
		return nil, err
	}
	if v, ok := args[0].(*Dict).Get(args[1]); ok {
		return v, nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return None, nil
}

func dictKeys(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("keys", args, 0, 0); err != nil {
		return nil, err
	}
	return NewList(args[0].(*Dict).Keys()...), nil
}

func dictValues(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("values", args, 0, 0); err != nil {
		return nil, err
	}
	return NewList(args[0].(*Dict).Values()...), nil
}

func dictItems(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("items", args, 0, 0); err != nil {
		return nil, err
	}
	return NewList(args[0].(*Dict).Items()...), nil
}

func dictPop(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("pop", args, 1, 2); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	if v, ok := d.Get(args[1]); ok {
		d.Delete(args[1])
		return v, nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return nil, Raisef(KeyErrorClass, "%s", Repr(args[1]))
}

func dictSetDefault(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("setdefault", args, 1, 2); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	if v, ok := d.Get(args[1]); ok {
		return v, nil
	}
	var v Value = None
	if len(args) == 3 {
		v = args[2]
	}
	d.Set(args[1], v)
	return v, nil
}

func dictUpdate(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := argRange("update", args, 0, 1); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	if len(args) == 2 {
		if err := vm.mergeInto(d, args[1]); err != nil {
			return nil, err
		}
	}
	if kwargs != nil {
		kwargs.Each(func(k, v Value) bool {
			d.Set(k, v)
			return true
		})
	}
	return None, nil
}

// mergeInto adds the entries of a dict, or of an iterable of pairs, to d.
func (vm *VM) mergeInto(d *Dict, src Value) error {
	if other, ok := src.(*Dict); ok {
		other.Each(func(k, v Value) bool {
			d.Set(k, v)
			return true
		})
		return nil
	}
	items, err := vm.iterate(src)
	if err != nil {
		return err
	}
	for i, it := range items {
		pair, err := vm.iterate(it)
		if err != nil {
			return err
		}
		if len(pair) != 2 {
			return Raisef(ValueErrorClass, "dictionary update sequence element #%d has length %d; 2 is required", i, len(pair))
		}
		d.Set(pair[0], pair[1])
	}
	return nil
}

func dictClear(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("clear", args, 0, 0); err != nil {
		return nil, err
	}
	*args[0].(*Dict) = Dict{}
	return None, nil
}

func dictCopy(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("copy", args, 0, 0); err != nil {
		return nil, err
	}
	return args[0].(*Dict).Copy(), nil
}

// ---------------------------------------------------------------------------
// set
// ---------------------------------------------------------------------------

func setAdd(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("add", args, 1, 1); err != nil {
		return nil, err
	}
	args[0].(*Set).Add(args[1])
	return None, nil
}

func setRemove(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("remove", args, 1, 1); err != nil {
		return nil, err
	}
	if !args[0].(*Set).Remove(args[1]) {
		return nil, Raisef(KeyErrorClass, "%s", Repr(args[1]))
	}
	return None, nil
}

func setDiscard(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("discard", args, 1, 1); err != nil {
		return nil, err
	}
	args[0].(*Set).Remove(args[1])
	return None, nil
}

func setClear(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("clear", args, 0, 0); err != nil {
		return nil, err
	}
	args[0].(*Set).d = Dict{}
	return None, nil
}

func setCopy(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("copy", args, 0, 0); err != nil {
		return nil, err
	}
	return args[0].(*Set).Copy(), nil
}

func setCombine(name string, op BinaryOp) BuiltinFunc {
	return func(vm *VM, args []Value, _ *Dict) (Value, error) {
		if err := argRange(name, args, 1, 1); err != nil {
			return nil, err
		}
		other, ok := args[1].(*Set)
		if !ok {
			items, err := vm.iterate(args[1])
			if err != nil {
				return nil, err
			}
			other = NewSet(items...)
		}
		return setOp(op, args[0].(*Set), other), nil
	}
}

// ---------------------------------------------------------------------------
// str
// ---------------------------------------------------------------------------

func strUpper(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("upper", args, 0, 0); err != nil {
		return nil, err
	}
	return Str(strings.ToUpper(string(args[0].(Str)))), nil
}

func strLower(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("lower", args, 0, 0); err != nil {
		return nil, err
	}
	return Str(strings.ToLower(string(args[0].(Str)))), nil
}

func strStrip(trim func(s, cutset string) string, space func(string) string) BuiltinFunc {
	return func(_ *VM, args []Value, _ *Dict) (Value, error) {
		if err := argRange("strip", args, 0, 1); err != nil {
			return nil, err
		}
		s := string(args[0].(Str))
		if len(args) == 1 || args[1] == None {
			return Str(space(s)), nil
		}
		chars, ok := args[1].(Str)
		if !ok {
			return nil, Raisef(TypeErrorClass, "strip arg must be None or str")
		}
		return Str(trim(s, string(chars))), nil
	}
}

func strSplit(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("split", args, 0, 2); err != nil {
		return nil, err
	}
	s := string(args[0].(Str))
	limit := -1
	if len(args) == 3 {
		n, ok := AsInt(args[2])
		if !ok {
			return nil, Raisef(TypeErrorClass, "'%s' object cannot be interpreted as an integer", args[2].TypeName())
		}
		if n >= 0 {
			limit = int(n) + 1
		}
	}
	var parts []string
	if len(args) == 1 || args[1] == None {
		parts = strings.Fields(s)
		if limit > 0 && len(parts) > limit {
			// Re-split so the remainder keeps its inner whitespace.
			rest := s
			parts = parts[:0]
			for range limit - 1 {
				rest = strings.TrimLeft(rest, " \t\n\r\v\f")
				end := strings.IndexAny(rest, " \t\n\r\v\f")
				parts = append(parts, rest[:end])
				rest = rest[end:]
			}
			parts = append(parts, strings.TrimLeft(rest, " \t\n\r\v\f"))
		}
	} else {
		sep, ok := args[1].(Str)
		if !ok {
			return nil, Raisef(TypeErrorClass, "must be str or None, not %s", args[1].TypeName())
		}
		if sep == "" {
			return nil, Raisef(ValueErrorClass, "empty separator")
		}
		parts = strings.SplitN(s, string(sep), limit)
	}
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = Str(p)
	}
	return NewList(out...), nil
}

func strJoin(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("join", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := vm.iterate(args[1])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(Str)
		if !ok {
			return nil, Raisef(TypeErrorClass, "sequence item %d: expected str instance, %s found", i, it.TypeName())
		}
		parts[i] = string(s)
	}
	return Str(strings.Join(parts, string(args[0].(Str)))), nil
}

func strReplace(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("replace", args, 2, 3); err != nil {
		return nil, err
	}
	old, ok1 := args[1].(Str)
	repl, ok2 := args[2].(Str)
	if !ok1 || !ok2 {
		return nil, Raisef(TypeErrorClass, "replace() arguments must be str")
	}
	n := -1
	if len(args) == 4 {
		c, ok := AsInt(args[3])
		if !ok {
			return nil, Raisef(TypeErrorClass, "'%s' object cannot be interpreted as an integer", args[3].TypeName())
		}
		n = int(c)
	}
	return Str(strings.Replace(string(args[0].(Str)), string(old), string(repl), n)), nil
}

func strAffix(test func(s, affix string) bool) BuiltinFunc {
	return func(_ *VM, args []Value, _ *Dict) (Value, error) {
		if err := argRange("startswith", args, 1, 1); err != nil {
			return nil, err
		}
		s := string(args[0].(Str))
		switch a := args[1].(type) {
		case Str:
			return Bool(test(s, string(a))), nil
		case *List:
			if a.Tuple {
				for _, it := range a.Items {
					if p, ok := it.(Str); ok && test(s, string(p)) {
						return Bool(true), nil
					}
				}
				return Bool(false), nil
			}
		}
		return nil, Raisef(TypeErrorClass, "argument must be str or a tuple of str, not %s", args[1].TypeName())
	}
}

func strFind(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("find", args, 1, 1); err != nil {
		return nil, err
	}
	sub, ok := args[1].(Str)
	if !ok {
		return nil, Raisef(TypeErrorClass, "must be str, not %s", args[1].TypeName())
	}
	s := string(args[0].(Str))
	i := strings.Index(s, string(sub))
	if i < 0 {
		return Int(-1), nil
	}
	return Int(len([]rune(s[:i]))), nil
}

func strCount(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("count", args, 1, 1); err != nil {
		return nil, err
	}
	sub, ok := args[1].(Str)
	if !ok {
		return nil, Raisef(TypeErrorClass, "must be str, not %s", args[1].TypeName())
	}
	s := string(args[0].(Str))
	if sub == "" {
		return Int(len([]rune(s)) + 1), nil
	}
	return Int(strings.Count(s, string(sub))), nil
}

func strFormatMethod(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	return vm.strFormat(string(args[0].(Str)), args[1:], kwargs)
}

func strIsDigit(_ *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("isdigit", args, 0, 0); err != nil {
		return nil, err
	}
	s := string(args[0].(Str))
	if s == "" {
		return Bool(false), nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Bool(false), nil
		}
	}
	return Bool(true), nil
}

// ---------------------------------------------------------------------------
// generator
// ---------------------------------------------------------------------------

func generatorSend(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("send", args, 1, 1); err != nil {
		return nil, err
	}
	return args[0].(*Generator).Send(vm, args[1])
}

func generatorNext(vm *VM, args []Value, _ *Dict) (Value, error) {
	if err := argRange("__next__", args, 0, 0); err != nil {
		return nil, err
	}
	return args[0].(*Generator).Send(vm, None)
}
