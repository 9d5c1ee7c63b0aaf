package vm

import "testing"

// callMethod invokes obj.name(args...).
func callMethod(vm *VM, obj Value, name string, args ...Value) (Value, error) {
	m, err := vm.GetAttribute(obj, name)
	if err != nil {
		return nil, err
	}
	return vm.CallFunction(m, args)
}

func TestListMethods(t *testing.T) {
	vm := NewVM()
	l := NewList(Int(1), Int(2))
	steps := []struct {
		name string
		args []Value
	}{
		{"append", []Value{Int(3)}},
		{"insert", []Value{Int(0), Int(0)}},
		{"extend", []Value{NewTuple(Int(4), Int(5))}},
		{"remove", []Value{Int(2)}},
		{"reverse", nil},
	}
	for _, s := range steps {
		if _, err := callMethod(vm, l, s.name, s.args...); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
	}
	if got := Repr(l); got != "[5, 4, 3, 1, 0]" {
		t.Fatalf("list = %s", got)
	}
	if v, _ := callMethod(vm, l, "pop"); v != Int(0) {
		t.Errorf("pop() = %v", v)
	}
	if v, _ := callMethod(vm, l, "pop", Int(0)); v != Int(5) {
		t.Errorf("pop(0) = %v", v)
	}
	if v, _ := callMethod(vm, l, "index", Int(1)); v != Int(2) {
		t.Errorf("index(1) = %v", v)
	}
	if v, _ := callMethod(vm, l, "count", Int(4)); v != Int(1) {
		t.Errorf("count(4) = %v", v)
	}
	_, err := callMethod(vm, l, "index", Int(42))
	if exc, ok := AsException(err); !ok || !exc.Matches(ValueErrorClass) {
		t.Errorf("index(42) err = %v", err)
	}
}

func TestTupleHasNoMutators(t *testing.T) {
	vm := NewVM()
	_, err := vm.GetAttribute(NewTuple(Int(1)), "append")
	if exc, ok := AsException(err); !ok || !exc.Matches(AttributeErrorClass) {
		t.Errorf("tuple.append err = %v, want AttributeError", err)
	}
	if v, err := callMethod(vm, NewTuple(Int(1), Int(1)), "count", Int(1)); err != nil || v != Int(2) {
		t.Errorf("tuple.count = %v, %v", v, err)
	}
}

func TestDictMethods(t *testing.T) {
	vm := NewVM()
	d := NewDict()
	d.Set(Str("a"), Int(1))

	if v, _ := callMethod(vm, d, "get", Str("zz")); v != None {
		t.Errorf("get missing = %v", v)
	}
	if v, _ := callMethod(vm, d, "get", Str("zz"), Int(0)); v != Int(0) {
		t.Errorf("get default = %v", v)
	}
	if v, _ := callMethod(vm, d, "setdefault", Str("b"), Int(2)); v != Int(2) {
		t.Errorf("setdefault = %v", v)
	}
	other := NewDict()
	other.Set(Str("c"), Int(3))
	if _, err := callMethod(vm, d, "update", other); err != nil {
		t.Fatal(err)
	}
	keys, _ := callMethod(vm, d, "keys")
	if got := Repr(keys); got != "['a', 'b', 'c']" {
		t.Errorf("keys = %s", got)
	}
	items, _ := callMethod(vm, d, "items")
	if got := Repr(items); got != "[('a', 1), ('b', 2), ('c', 3)]" {
		t.Errorf("items = %s", got)
	}
	if v, _ := callMethod(vm, d, "pop", Str("a")); v != Int(1) {
		t.Errorf("pop = %v", v)
	}
	_, err := callMethod(vm, d, "pop", Str("a"))
	if exc, ok := AsException(err); !ok || !exc.Matches(KeyErrorClass) {
		t.Errorf("pop missing err = %v", err)
	}
}

func TestSetMethods(t *testing.T) {
	vm := NewVM()
	s := NewSet(Int(1))
	callMethod(vm, s, "add", Int(2))
	callMethod(vm, s, "discard", Int(9))
	if _, err := callMethod(vm, s, "remove", Int(9)); err == nil {
		t.Error("remove of missing member succeeded")
	}
	u, _ := callMethod(vm, s, "union", NewList(Int(3)))
	if got := Repr(u); got != "{1, 2, 3}" {
		t.Errorf("union = %s", got)
	}
}

func TestStrMethods(t *testing.T) {
	vm := NewVM()
	tests := []struct {
		recv string
		name string
		args []Value
		want string
	}{
		{"Hello", "upper", nil, "'HELLO'"},
		{"Hello", "lower", nil, "'hello'"},
		{"  pad  ", "strip", nil, "'pad'"},
		{"xxaxx", "strip", []Value{Str("x")}, "'a'"},
		{"a b  c", "split", nil, "['a', 'b', 'c']"},
		{"a,b,,c", "split", []Value{Str(",")}, "['a', 'b', '', 'c']"},
		{"a b c", "split", []Value{None, Int(1)}, "['a', 'b c']"},
		{"-", "join", []Value{NewList(Str("x"), Str("y"))}, "'x-y'"},
		{"aaa", "replace", []Value{Str("a"), Str("b"), Int(2)}, "'bba'"},
		{"prefix", "startswith", []Value{Str("pre")}, "True"},
		{"file.go", "endswith", []Value{NewTuple(Str(".py"), Str(".go"))}, "True"},
		{"héllo", "find", []Value{Str("l")}, "2"},
		{"abc", "find", []Value{Str("z")}, "-1"},
	}
	for _, tt := range tests {
		v, err := callMethod(vm, Str(tt.recv), tt.name, tt.args...)
		if err != nil {
			t.Errorf("%q.%s: %v", tt.recv, tt.name, err)
			continue
		}
		if got := Repr(v); got != tt.want {
			t.Errorf("%q.%s%v = %s, want %s", tt.recv, tt.name, tt.args, got, tt.want)
		}
	}

	if v, err := callMethod(vm, Str("{} + {} = {total}"), "format", Int(1), Int(2)); err == nil {
		t.Errorf("format without total = %v", v)
	}
	fmtStr, _ := vm.GetAttribute(Str("{0}-{name!r}-{1:>4}"), "format")
	v, err := vm.CallWithKeywords(fmtStr, []Value{Int(1), Int(2)}, kw(Str("name"), Str("n")))
	if err != nil || v != Str("1-'n'-   2") {
		t.Errorf("format = %v, %v", v, err)
	}
}

func TestPercentFormat(t *testing.T) {
	vm := NewVM()
	tests := []struct {
		tmpl string
		arg  Value
		want string
	}{
		{"%d items", Int(3), "3 items"},
		{"%s and %r", NewTuple(Str("a"), Str("b")), "a and 'b'"},
		{"%5.2f|", Float(3.14159), " 3.14|"},
		{"%-4d|", Int(7), "7   |"},
		{"%03d", Int(7), "007"},
		{"%x", Int(255), "ff"},
		{"100%%", NewTuple(), "100%"},
	}
	for _, tt := range tests {
		v, err := vm.ApplyBinary(BinMod, Str(tt.tmpl), tt.arg)
		if err != nil {
			t.Errorf("%q %% %s: %v", tt.tmpl, Repr(tt.arg), err)
			continue
		}
		if v != Str(tt.want) {
			t.Errorf("%q %% %s = %q, want %q", tt.tmpl, Repr(tt.arg), v, tt.want)
		}
	}
	if _, err := vm.ApplyBinary(BinMod, Str("%d %d"), NewTuple(Int(1))); err == nil {
		t.Error("too few arguments accepted")
	}
}

func TestFormatSpec(t *testing.T) {
	vm := NewVM()
	tests := []struct {
		v    Value
		spec string
		want string
	}{
		{Int(42), "", "42"},
		{Int(42), ">5", "   42"},
		{Int(42), "*^6", "**42**"},
		{Int(-42), "05", "-0042"},
		{Int(1234567), ",", "1,234,567"},
		{Int(255), "#x", ""},
		{Float(0.5), ".1%", "50.0%"},
		{Float(1234.5), ",.2f", "1,234.50"},
		{Str("ab"), "<4", "ab  "},
		{Int(5), "+", "+5"},
	}
	for _, tt := range tests {
		v, err := vm.FormatValue(tt.v, false, tt.spec)
		if tt.want == "" {
			if err == nil {
				t.Errorf("format(%s, %q) accepted", Repr(tt.v), tt.spec)
			}
			continue
		}
		if err != nil || v != Str(tt.want) {
			t.Errorf("format(%s, %q) = %v, %v, want %q", Repr(tt.v), tt.spec, v, err, tt.want)
		}
	}
}
