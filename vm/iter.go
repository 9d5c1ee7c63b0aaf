package vm

// Iterator is the value produced by GET_ITER. Next returns false once the
// iterator is exhausted; exhaustion is not an error.
type Iterator interface {
	Value
	Next(vm *VM) (Value, bool, error)
}

// ListIterator walks a list or tuple. Appends during iteration are observed.
type ListIterator struct {
	list *List
	pos  int
}

func (*ListIterator) TypeName() string { return "list_iterator" }
func (*ListIterator) pyValue()         {}

func (it *ListIterator) Next(*VM) (Value, bool, error) {
	if it.pos >= len(it.list.Items) {
		return nil, false, nil
	}
	v := it.list.Items[it.pos]
	it.pos++
	return v, true, nil
}

// RangeIterator walks a range without materializing it.
type RangeIterator struct {
	cur, step int64
	left      uint64
}

func (*RangeIterator) TypeName() string { return "range_iterator" }
func (*RangeIterator) pyValue()         {}

func (it *RangeIterator) Next(*VM) (Value, bool, error) {
	if it.left == 0 {
		return nil, false, nil
	}
	v := it.cur
	it.left--
	if it.left > 0 {
		it.cur += it.step
	}
	return Int(v), true, nil
}

// SnapshotIterator walks a fixed slice of values. Dicts, sets and strings
// iterate over a snapshot taken by GET_ITER.
type SnapshotIterator struct {
	kind  string
	items []Value
	pos   int
}

func (it *SnapshotIterator) TypeName() string { return it.kind }
func (*SnapshotIterator) pyValue()            {}

func (it *SnapshotIterator) Next(*VM) (Value, bool, error) {
	if it.pos >= len(it.items) {
		return nil, false, nil
	}
	v := it.items[it.pos]
	it.pos++
	return v, true, nil
}

// instanceIterator drives an instance implementing __next__.
type instanceIterator struct {
	inst *Instance
}

func (it *instanceIterator) TypeName() string { return it.inst.Class.Name }
func (*instanceIterator) pyValue()            {}

func (it *instanceIterator) Next(vm *VM) (Value, bool, error) {
	v, _, err := vm.callDunder(it.inst, "__next__")
	if err != nil {
		if IsStopIteration(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// GetIter implements iter(v).
func (vm *VM) GetIter(v Value) (Iterator, error) {
	switch x := v.(type) {
	case Iterator:
		return x, nil
	case *List:
		return &ListIterator{list: x}, nil
	case *Range:
		return &RangeIterator{cur: x.Start, step: x.Step, left: x.Count()}, nil
	case *Dict:
		return &SnapshotIterator{kind: "dict_keyiterator", items: x.Keys()}, nil
	case *Set:
		return &SnapshotIterator{kind: "set_iterator", items: x.Members()}, nil
	case Str:
		runes := []rune(string(x))
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = Str(string(r))
		}
		return &SnapshotIterator{kind: "str_iterator", items: items}, nil
	case *Instance:
		if _, ok := x.Class.Lookup("__iter__"); ok {
			r, _, err := vm.callDunder(x, "__iter__")
			if err != nil {
				return nil, err
			}
			if inst, ok := r.(*Instance); ok {
				if _, ok := inst.Class.Lookup("__next__"); ok {
					return &instanceIterator{inst: inst}, nil
				}
			}
			return vm.GetIter(r)
		}
	}
	return nil, Raisef(TypeErrorClass, "'%s' object is not iterable", v.TypeName())
}

// iterate drains an iterable into a slice.
func (vm *VM) iterate(v Value) ([]Value, error) {
	switch x := v.(type) {
	case *List:
		out := make([]Value, len(x.Items))
		copy(out, x.Items)
		return out, nil
	}
	it, err := vm.GetIter(v)
	if err != nil {
		return nil, err
	}
	var out []Value
	for {
		item, ok, err := it.Next(vm)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}
