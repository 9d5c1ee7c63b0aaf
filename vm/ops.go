package vm

import (
	"math"
	"math/big"
	"strings"
)

// The helpers in this file are the single source of truth for operand
// combinations. The fast interpreter calls them for everything it does not
// special-case.

var binaryDunders = [...]string{
	BinAdd: "__add__", BinSub: "__sub__", BinMul: "__mul__", BinDiv: "__truediv__",
	BinFloorDiv: "__floordiv__", BinMod: "__mod__", BinPow: "__pow__", BinAnd: "__and__",
	BinOr: "__or__", BinXor: "__xor__", BinLShift: "__lshift__", BinRShift: "__rshift__",
}

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// ApplyBinary evaluates a op b.
func (vm *VM) ApplyBinary(op BinaryOp, a, b Value) (Value, error) {
	if IsNumeric(a) && IsNumeric(b) {
		if op == BinAnd || op == BinOr || op == BinXor {
			if x, ok := a.(Bool); ok {
				if y, ok := b.(Bool); ok {
					return boolBitwise(op, x, y), nil
				}
			}
			if IsFloatLike(a) || IsFloatLike(b) {
				return nil, unsupportedOperands(op, a, b)
			}
		}
		if (op == BinLShift || op == BinRShift) && (IsFloatLike(a) || IsFloatLike(b)) {
			return nil, unsupportedOperands(op, a, b)
		}
		return numericBinary(op, a, b)
	}
	if inst, ok := a.(*Instance); ok {
		if v, found, err := vm.callDunder(inst, binaryDunders[op], b); found || err != nil {
			return v, err
		}
	}
	if inst, ok := b.(*Instance); ok {
		if v, found, err := vm.callDunder(inst, "__r"+binaryDunders[op][2:], a); found || err != nil {
			return v, err
		}
	}
	switch op {
	case BinAdd:
		_, sa := a.(Str)
		_, sb := b.(Str)
		if sa || sb {
			x, err := vm.str(a)
			if err != nil {
				return nil, err
			}
			y, err := vm.str(b)
			if err != nil {
				return nil, err
			}
			return Str(x + y), nil
		}
		if la, ok := a.(*List); ok {
			if lb, ok := b.(*List); ok && la.Tuple == lb.Tuple {
				items := make([]Value, 0, len(la.Items)+len(lb.Items))
				items = append(items, la.Items...)
				items = append(items, lb.Items...)
				return &List{Items: items, Tuple: la.Tuple}, nil
			}
		}
	case BinMul:
		if v, ok, err := repeat(a, b); ok {
			return v, err
		}
		if v, ok, err := repeat(b, a); ok {
			return v, err
		}
	case BinMod:
		if s, ok := a.(Str); ok {
			return vm.percentFormat(string(s), b)
		}
	case BinSub, BinAnd, BinOr, BinXor:
		if sa, ok := a.(*Set); ok {
			if sb, ok := b.(*Set); ok {
				return setOp(op, sa, sb), nil
			}
		}
		if da, ok := a.(*Dict); ok && op == BinOr {
			if db, ok := b.(*Dict); ok {
				out := da.Copy()
				db.Each(func(k, v Value) bool {
					out.Set(k, v)
					return true
				})
				return out, nil
			}
		}
	}
	return nil, unsupportedOperands(op, a, b)
}

// ApplyInPlaceBinary evaluates a op= b. Mutable containers are updated in
// place; everything else behaves like ApplyBinary.
func (vm *VM) ApplyInPlaceBinary(op BinaryOp, a, b Value) (Value, error) {
	switch x := a.(type) {
	case *List:
		if op == BinAdd && !x.Tuple {
			items, err := vm.iterate(b)
			if err != nil {
				return nil, err
			}
			x.Items = append(x.Items, items...)
			return x, nil
		}
	case *Set:
		if y, ok := b.(*Set); ok {
			switch op {
			case BinOr, BinAnd, BinSub, BinXor:
				res := setOp(op, x, y)
				x.d = res.d
				return x, nil
			}
		}
	case *Instance:
		if v, found, err := vm.callDunder(x, "__i"+binaryDunders[op][2:], b); found || err != nil {
			return v, err
		}
	}
	return vm.ApplyBinary(op, a, b)
}

func boolBitwise(op BinaryOp, x, y Bool) Value {
	switch op {
	case BinAnd:
		return x && y
	case BinOr:
		return x || y
	}
	return Bool(x != y)
}

func unsupportedOperands(op BinaryOp, a, b Value) error {
	return Raisef(TypeErrorClass, "unsupported operand type(s) for %s: '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

// maxRepeat bounds the size of a sequence built by repetition.
const maxRepeat = 1 << 31

// repeat implements seq * count. The second result is false when v is not a
// repeatable sequence or count is not an integer.
func repeat(v, count Value) (Value, bool, error) {
	var size int64
	switch x := v.(type) {
	case Str:
		size = int64(len(x))
	case *List:
		size = int64(len(x.Items))
	default:
		return nil, false, nil
	}

	n, ok := AsInt(count)
	if !ok {
		b, isBig := count.(*BigInt)
		if !isBig {
			return nil, false, nil
		}
		if b.v.Sign() > 0 && size > 0 {
			return nil, true, Raisef(OverflowErrorClass, "cannot fit 'int' into an index-sized integer")
		}
		n = 0
	}
	if n < 0 || size == 0 {
		n = 0
	}
	if n > 0 {
		if size > math.MaxInt64/n {
			return nil, true, Raisef(OverflowErrorClass, "repeated %s is too long", v.TypeName())
		}
		if size*n > maxRepeat {
			return nil, true, Raisef(MemoryErrorClass, "repeated %s of %d items", v.TypeName(), size*n)
		}
	}

	switch x := v.(type) {
	case Str:
		return Str(strings.Repeat(string(x), int(n))), true, nil
	case *List:
		items := make([]Value, 0, int(size*n))
		for i := int64(0); i < n; i++ {
			items = append(items, x.Items...)
		}
		return &List{Items: items, Tuple: x.Tuple}, true, nil
	}
	return nil, false, nil
}

func setOp(op BinaryOp, a, b *Set) *Set {
	out := &Set{}
	switch op {
	case BinOr:
		for _, m := range a.Members() {
			out.Add(m)
		}
		for _, m := range b.Members() {
			out.Add(m)
		}
	case BinAnd:
		for _, m := range a.Members() {
			if b.Has(m) {
				out.Add(m)
			}
		}
	case BinSub:
		for _, m := range a.Members() {
			if !b.Has(m) {
				out.Add(m)
			}
		}
	case BinXor:
		for _, m := range a.Members() {
			if !b.Has(m) {
				out.Add(m)
			}
		}
		for _, m := range b.Members() {
			if !a.Has(m) {
				out.Add(m)
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

// ApplyUnary evaluates a unary opcode on v.
func (vm *VM) ApplyUnary(op Opcode, v Value) (Value, error) {
	if op == OpUnaryNot {
		t, err := vm.IsTruthy(v)
		return Bool(!t), err
	}
	if inst, ok := v.(*Instance); ok {
		name := map[Opcode]string{OpUnaryNegative: "__neg__", OpUnaryPositive: "__pos__", OpUnaryInvert: "__invert__"}[op]
		if r, found, err := vm.callDunder(inst, name); found || err != nil {
			return r, err
		}
	}
	switch op {
	case OpUnaryPositive:
		switch x := v.(type) {
		case Bool:
			n, _ := smallInt(x)
			return Int(n), nil
		case Int, *BigInt, Float:
			return v, nil
		}
	case OpUnaryNegative:
		switch x := v.(type) {
		case Float:
			return -x, nil
		case Bool, Int, *BigInt:
			if n, ok := smallInt(x); ok && n != math.MinInt64 {
				return Int(-n), nil
			}
			return NewBigInt(new(big.Int).Neg(toBig(x))), nil
		}
	case OpUnaryInvert:
		if IsIntLike(v) {
			if n, ok := smallInt(v); ok {
				return Int(^n), nil
			}
			return NewBigInt(new(big.Int).Not(toBig(v))), nil
		}
	}
	sym := map[Opcode]string{OpUnaryNegative: "-", OpUnaryPositive: "+", OpUnaryInvert: "~"}[op]
	return nil, Raisef(TypeErrorClass, "bad operand type for unary %s: '%s'", sym, v.TypeName())
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

var compareDunders = [...]string{
	CmpLT: "__lt__", CmpLE: "__le__", CmpEQ: "__eq__", CmpNE: "__ne__", CmpGT: "__gt__", CmpGE: "__ge__",
}

// ApplyCompare evaluates a op b.
func (vm *VM) ApplyCompare(op CompareOp, a, b Value) (Value, error) {
	switch op {
	case CmpIs:
		return Bool(identical(a, b)), nil
	case CmpIsNot:
		return Bool(!identical(a, b)), nil
	case CmpIn, CmpNotIn:
		ok, err := vm.Contains(b, a)
		if err != nil {
			return nil, err
		}
		return Bool(ok == (op == CmpIn)), nil
	case CmpEQ, CmpNE:
		if inst, ok := a.(*Instance); ok {
			if r, found, err := vm.callDunder(inst, compareDunders[op], b); found || err != nil {
				return r, err
			}
		}
		eq, err := vm.Equal(a, b)
		if err != nil {
			return nil, err
		}
		return Bool(eq == (op == CmpEQ)), nil
	case CmpLT, CmpLE, CmpGT, CmpGE:
		if inst, ok := a.(*Instance); ok {
			if r, found, err := vm.callDunder(inst, compareDunders[op], b); found || err != nil {
				return r, err
			}
		}
		c, ordered, err := vm.order(op, a, b)
		if err != nil {
			return nil, err
		}
		if !ordered {
			return Bool(false), nil
		}
		switch op {
		case CmpLT:
			return Bool(c < 0), nil
		case CmpLE:
			return Bool(c <= 0), nil
		case CmpGT:
			return Bool(c > 0), nil
		}
		return Bool(c >= 0), nil
	}
	return nil, Raisef(TypeErrorClass, "unknown comparison %d", int32(op))
}

// identical implements the is operator.
func identical(a, b Value) bool {
	return a == b
}

// enterCompare bounds the nesting of container comparisons, so comparing
// self-referential containers raises RecursionError.
func (vm *VM) enterCompare() error {
	limit := vm.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	vm.depth++
	if vm.depth > limit {
		vm.depth--
		return Raisef(RecursionErrorClass, "maximum recursion depth exceeded in comparison")
	}
	return nil
}

// order compares a and b for the ordering operators. The second result is
// false when the comparison is unordered, as with NaN or incomparable sets.
func (vm *VM) order(op CompareOp, a, b Value) (int, bool, error) {
	if IsNumeric(a) && IsNumeric(b) {
		c, ok := NumericCompare(a, b)
		return c, ok, nil
	}
	switch x := a.(type) {
	case Str:
		if y, ok := b.(Str); ok {
			return strings.Compare(string(x), string(y)), true, nil
		}
	case *List:
		if y, ok := b.(*List); ok && x.Tuple == y.Tuple {
			if err := vm.enterCompare(); err != nil {
				return 0, false, err
			}
			defer vm.leave()
			for i := 0; i < len(x.Items) && i < len(y.Items); i++ {
				if identical(x.Items[i], y.Items[i]) {
					continue
				}
				eq, err := vm.Equal(x.Items[i], y.Items[i])
				if err != nil {
					return 0, false, err
				}
				if !eq {
					return vm.order(op, x.Items[i], y.Items[i])
				}
			}
			return cmpInt(len(x.Items), len(y.Items)), true, nil
		}
	case *Set:
		if y, ok := b.(*Set); ok {
			sub := isSubset(x, y)
			sup := isSubset(y, x)
			switch {
			case sub && sup:
				return 0, true, nil
			case sub:
				return -1, true, nil
			case sup:
				return 1, true, nil
			}
			return 0, false, nil
		}
	}
	return 0, false, Raisef(TypeErrorClass, "'%s' not supported between instances of '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isSubset(a, b *Set) bool {
	for _, m := range a.Members() {
		if !b.Has(m) {
			return false
		}
	}
	return true
}

// Equal implements ==.
func (vm *VM) Equal(a, b Value) (bool, error) {
	if IsNumeric(a) && IsNumeric(b) {
		return NumericEquals(a, b), nil
	}
	switch x := a.(type) {
	case Str:
		y, ok := b.(Str)
		return ok && x == y, nil
	case *List:
		y, ok := b.(*List)
		if !ok || x.Tuple != y.Tuple || len(x.Items) != len(y.Items) {
			return false, nil
		}
		if x == y {
			return true, nil
		}
		if err := vm.enterCompare(); err != nil {
			return false, err
		}
		defer vm.leave()
		for i := range x.Items {
			if identical(x.Items[i], y.Items[i]) {
				continue
			}
			eq, err := vm.Equal(x.Items[i], y.Items[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false, nil
		}
		if x == y {
			return true, nil
		}
		if err := vm.enterCompare(); err != nil {
			return false, err
		}
		defer vm.leave()
		var err error
		equal := true
		x.Each(func(k, v Value) bool {
			w, found := y.Get(k)
			if !found {
				equal = false
				return false
			}
			if identical(v, w) {
				return true
			}
			equal, err = vm.Equal(v, w)
			return equal && err == nil
		})
		return equal, err
	case *Set:
		y, ok := b.(*Set)
		return ok && x.Len() == y.Len() && isSubset(x, y), nil
	case *Range:
		y, ok := b.(*Range)
		return ok && *x == *y, nil
	case *Instance:
		if r, found, err := vm.callDunder(x, "__eq__", b); found || err != nil {
			if err != nil {
				return false, err
			}
			return vm.IsTruthy(r)
		}
	}
	return identical(a, b), nil
}

// Contains implements item in container.
func (vm *VM) Contains(container, item Value) (bool, error) {
	switch c := container.(type) {
	case *List:
		for _, it := range c.Items {
			eq, err := vm.Equal(it, item)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	case Str:
		s, ok := item.(Str)
		if !ok {
			return false, Raisef(TypeErrorClass, "'in <string>' requires string as left operand, not %s", item.TypeName())
		}
		return strings.Contains(string(c), string(s)), nil
	case *Dict:
		return c.Has(item), nil
	case *Set:
		return c.Has(item), nil
	case *Range:
		n, ok := AsInt(item)
		if !ok {
			return false, nil
		}
		if c.Step > 0 {
			return n >= c.Start && n < c.Stop && (uint64(n)-uint64(c.Start))%uint64(c.Step) == 0, nil
		}
		return n <= c.Start && n > c.Stop && (uint64(c.Start)-uint64(n))%-uint64(c.Step) == 0, nil
	case *Instance:
		if r, found, err := vm.callDunder(c, "__contains__", item); found || err != nil {
			if err != nil {
				return false, err
			}
			return vm.IsTruthy(r)
		}
	}
	items, err := vm.iterate(container)
	if err != nil {
		return false, Raisef(TypeErrorClass, "argument of type '%s' is not iterable", container.TypeName())
	}
	for _, it := range items {
		eq, err := vm.Equal(it, item)
		if err != nil || eq {
			return eq, err
		}
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Truthiness and length
// ---------------------------------------------------------------------------

// IsTruthy returns the boolean interpretation of v.
func (vm *VM) IsTruthy(v Value) (bool, error) {
	if inst, ok := v.(*Instance); ok {
		if r, found, err := vm.callDunder(inst, "__bool__"); found || err != nil {
			if err != nil {
				return false, err
			}
			b, ok := r.(Bool)
			if !ok {
				return false, Raisef(TypeErrorClass, "__bool__ should return bool, returned %s", r.TypeName())
			}
			return bool(b), nil
		}
		if r, found, err := vm.callDunder(inst, "__len__"); found || err != nil {
			if err != nil {
				return false, err
			}
			n, _ := AsInt(r)
			return n != 0, nil
		}
		return true, nil
	}
	return Truthy(v), nil
}

// Truthy returns the boolean interpretation of a non-instance value.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil, NoneType:
		return false
	case Bool:
		return bool(x)
	case Int:
		return x != 0
	case *BigInt:
		return x.v.Sign() != 0
	case Float:
		return x != 0
	case Str:
		return x != ""
	case *List:
		return len(x.Items) > 0
	case *Dict:
		return x.Len() > 0
	case *Set:
		return x.Len() > 0
	case *Range:
		return x.Count() > 0
	}
	return true
}

// Len implements len().
func (vm *VM) Len(v Value) (int64, error) {
	switch x := v.(type) {
	case Str:
		return int64(len([]rune(string(x)))), nil
	case *List:
		return int64(len(x.Items)), nil
	case *Dict:
		return int64(x.Len()), nil
	case *Set:
		return int64(x.Len()), nil
	case *Range:
		n, ok := x.Len()
		if !ok {
			return 0, Raisef(OverflowErrorClass, "Python int too large to convert to C ssize_t")
		}
		return n, nil
	case *Instance:
		if r, found, err := vm.callDunder(x, "__len__"); found || err != nil {
			if err != nil {
				return 0, err
			}
			if n, ok := AsInt(r); ok {
				return n, nil
			}
			return 0, Raisef(TypeErrorClass, "'%s' object cannot be interpreted as an integer", r.TypeName())
		}
	}
	return 0, Raisef(TypeErrorClass, "object of type '%s' has no len()", v.TypeName())
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// GetAttribute implements obj.name.
func (vm *VM) GetAttribute(obj Value, name string) (Value, error) {
	switch x := obj.(type) {
	case *Instance:
		if v, ok := x.Attrs[name]; ok {
			return v, nil
		}
		if name == "__class__" {
			return x.Class, nil
		}
		if v, ok := x.Class.Lookup(name); ok {
			return bindMember(obj, v), nil
		}
	case *Class:
		if name == "__name__" {
			return Str(x.Name), nil
		}
		if v, ok := x.Lookup(name); ok {
			return v, nil
		}
	case *Exception:
		if v, ok := x.Attrs[name]; ok {
			return v, nil
		}
		switch name {
		case "args":
			return x.args(), nil
		case "__class__":
			return x.Class, nil
		}
		if v, ok := x.Class.Lookup(name); ok {
			return bindMember(obj, v), nil
		}
	case *Function:
		if name == "__name__" {
			return Str(x.Name), nil
		}
	case *Builtin:
		if name == "__name__" {
			return Str(x.Name), nil
		}
	case *Slice:
		switch name {
		case "start":
			return x.Start, nil
		case "stop":
			return x.Stop, nil
		case "step":
			return x.Step, nil
		}
	case *Range:
		switch name {
		case "start":
			return Int(x.Start), nil
		case "stop":
			return Int(x.Stop), nil
		case "step":
			return Int(x.Step), nil
		}
	}
	if m := lookupMethod(obj, name); m != nil {
		return &BoundMethod{Self: obj, Fn: m}, nil
	}
	if c, ok := obj.(*Class); ok {
		return nil, Raisef(AttributeErrorClass, "type object '%s' has no attribute '%s'", c.Name, name)
	}
	return nil, Raisef(AttributeErrorClass, "'%s' object has no attribute '%s'", obj.TypeName(), name)
}

// bindMember binds functions found on a class to the receiver.
func bindMember(self, v Value) Value {
	switch v.(type) {
	case *Function, *Builtin:
		return &BoundMethod{Self: self, Fn: v}
	}
	return v
}

// SetAttribute implements obj.name = v.
func (vm *VM) SetAttribute(obj Value, name string, v Value) error {
	switch x := obj.(type) {
	case *Instance:
		x.Attrs[name] = v
		return nil
	case *Class:
		x.Attrs[name] = v
		return nil
	case *Exception:
		if x.Attrs == nil {
			x.Attrs = make(map[string]Value)
		}
		x.Attrs[name] = v
		return nil
	}
	return Raisef(AttributeErrorClass, "'%s' object has no attribute '%s'", obj.TypeName(), name)
}

// ---------------------------------------------------------------------------
// Subscripts
// ---------------------------------------------------------------------------

// GetSubscript implements obj[key].
func (vm *VM) GetSubscript(obj, key Value) (Value, error) {
	switch x := obj.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			start, stop, step, err := s.indices(len(x.Items))
			if err != nil {
				return nil, err
			}
			return &List{Items: sliceItems(x.Items, start, stop, step), Tuple: x.Tuple}, nil
		}
		i, err := seqIndex(key, len(x.Items), x.TypeName())
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case Str:
		runes := []rune(string(x))
		if s, ok := key.(*Slice); ok {
			start, stop, step, err := s.indices(len(runes))
			if err != nil {
				return nil, err
			}
			var b strings.Builder
			for _, i := range sliceRange(start, stop, step) {
				b.WriteRune(runes[i])
			}
			return Str(b.String()), nil
		}
		i, err := seqIndex(key, len(runes), "string")
		if err != nil {
			return nil, err
		}
		return Str(string(runes[i])), nil
	case *Dict:
		if v, ok := x.Get(key); ok {
			return v, nil
		}
		return nil, &Exception{Class: KeyErrorClass, Kind: KeyErrorClass.Name, Message: Repr(key), Payload: key}
	case *Range:
		n := x.Count()
		if n > math.MaxInt32 {
			n = math.MaxInt32
		}
		i, err := seqIndex(key, int(n), "range object")
		if err != nil {
			return nil, err
		}
		return Int(x.Start + int64(i)*x.Step), nil
	case *Instance:
		if r, found, err := vm.callDunder(x, "__getitem__", key); found || err != nil {
			return r, err
		}
	case *Class:
		// Generic aliases such as list[int] evaluate to the class itself.
		return x, nil
	}
	return nil, Raisef(TypeErrorClass, "'%s' object is not subscriptable", obj.TypeName())
}

// SetSubscript implements obj[key] = v.
func (vm *VM) SetSubscript(obj, key, v Value) error {
	switch x := obj.(type) {
	case *List:
		if err := x.checkMutable("item assignment"); err != nil {
			return err
		}
		if s, ok := key.(*Slice); ok {
			items, err := vm.iterate(v)
			if err != nil {
				return err
			}
			start, stop, step, err := s.indices(len(x.Items))
			if err != nil {
				return err
			}
			if step != 1 {
				idx := sliceRange(start, stop, step)
				if len(idx) != len(items) {
					return Raisef(ValueErrorClass, "attempt to assign sequence of size %d to extended slice of size %d", len(items), len(idx))
				}
				for j, i := range idx {
					x.Items[i] = items[j]
				}
				return nil
			}
			if stop < start {
				stop = start
			}
			out := make([]Value, 0, len(x.Items)-(stop-start)+len(items))
			out = append(out, x.Items[:start]...)
			out = append(out, items...)
			out = append(out, x.Items[stop:]...)
			x.Items = out
			return nil
		}
		i, err := seqIndex(key, len(x.Items), "list assignment")
		if err != nil {
			return err
		}
		x.Items[i] = v
		return nil
	case *Dict:
		x.Set(key, v)
		return nil
	case *Instance:
		if _, found, err := vm.callDunder(x, "__setitem__", key, v); found || err != nil {
			return err
		}
	}
	return Raisef(TypeErrorClass, "'%s' object does not support item assignment", obj.TypeName())
}

// DeleteSubscript implements del obj[key].
func (vm *VM) DeleteSubscript(obj, key Value) error {
	switch x := obj.(type) {
	case *List:
		if err := x.checkMutable("item deletion"); err != nil {
			return err
		}
		if s, ok := key.(*Slice); ok {
			start, stop, step, err := s.indices(len(x.Items))
			if err != nil {
				return err
			}
			drop := make(map[int]bool)
			for _, i := range sliceRange(start, stop, step) {
				drop[i] = true
			}
			kept := x.Items[:0:0]
			for i, it := range x.Items {
				if !drop[i] {
					kept = append(kept, it)
				}
			}
			x.Items = kept
			return nil
		}
		i, err := seqIndex(key, len(x.Items), "list assignment")
		if err != nil {
			return err
		}
		x.Items = append(x.Items[:i], x.Items[i+1:]...)
		return nil
	case *Dict:
		if !x.Delete(key) {
			return &Exception{Class: KeyErrorClass, Kind: KeyErrorClass.Name, Message: Repr(key), Payload: key}
		}
		return nil
	case *Instance:
		if _, found, err := vm.callDunder(x, "__delitem__", key); found || err != nil {
			return err
		}
	}
	return Raisef(TypeErrorClass, "'%s' object does not support item deletion", obj.TypeName())
}

// seqIndex resolves a possibly negative index against a sequence length.
func seqIndex(key Value, n int, what string) (int, error) {
	i, ok := AsInt(key)
	if !ok {
		if IsIntLike(key) {
			return 0, Raisef(IndexErrorClass, "cannot fit 'int' into an index-sized integer")
		}
		return 0, Raisef(TypeErrorClass, "%s indices must be integers, not %s", what, key.TypeName())
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, Raisef(IndexErrorClass, "%s index out of range", what)
	}
	return int(i), nil
}

// indices resolves the slice against a sequence of length n.
func (s *Slice) indices(n int) (start, stop, step int, err error) {
	step = 1
	if s.Step != nil && s.Step != None {
		st, ok := AsInt(s.Step)
		if !ok {
			return 0, 0, 0, Raisef(TypeErrorClass, "slice indices must be integers or None")
		}
		if st == 0 {
			return 0, 0, 0, Raisef(ValueErrorClass, "slice step cannot be zero")
		}
		step = int(st)
	}
	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}
	bound := func(v Value, def int) (int, error) {
		if v == nil || v == None {
			return def, nil
		}
		x, ok := AsInt(v)
		if !ok {
			return 0, Raisef(TypeErrorClass, "slice indices must be integers or None")
		}
		i := int(x)
		if i < 0 {
			i += n
			if i < lower {
				i = lower
			}
		} else if i > upper {
			i = upper
		}
		return i, nil
	}
	if step > 0 {
		start, err = bound(s.Start, lower)
		if err == nil {
			stop, err = bound(s.Stop, upper)
		}
	} else {
		start, err = bound(s.Start, upper)
		if err == nil {
			stop, err = bound(s.Stop, lower)
		}
	}
	return start, stop, step, err
}

func sliceRange(start, stop, step int) []int {
	var idx []int
	if step > 0 {
		for i := start; i < stop; i += step {
			idx = append(idx, i)
		}
	} else {
		for i := start; i > stop; i += step {
			idx = append(idx, i)
		}
	}
	return idx
}

func sliceItems(items []Value, start, stop, step int) []Value {
	idx := sliceRange(start, stop, step)
	out := make([]Value, len(idx))
	for j, i := range idx {
		out[j] = items[i]
	}
	return out
}

// ---------------------------------------------------------------------------
// Dunder dispatch
// ---------------------------------------------------------------------------

// callDunder calls a special method defined on the instance's class. found is
// false when the class does not define it.
func (vm *VM) callDunder(inst *Instance, name string, args ...Value) (Value, bool, error) {
	m, ok := inst.Class.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	r, err := vm.call(bindMember(inst, m), args, nil)
	return r, true, err
}

// str converts v for printing and string concatenation, honoring __str__
// and __repr__ on instances.
func (vm *VM) str(v Value) (string, error) {
	inst, ok := v.(*Instance)
	if !ok {
		return ToStr(v), nil
	}
	for _, name := range []string{"__str__", "__repr__"} {
		r, found, err := vm.callDunder(inst, name)
		if err != nil {
			return "", err
		}
		if found {
			return dunderString(name, r)
		}
	}
	return ToStr(v), nil
}

// repr is the VM-aware counterpart of Repr.
func (vm *VM) repr(v Value) (string, error) {
	inst, ok := v.(*Instance)
	if !ok {
		return Repr(v), nil
	}
	r, found, err := vm.callDunder(inst, "__repr__")
	if err != nil {
		return "", err
	}
	if found {
		return dunderString("__repr__", r)
	}
	return Repr(v), nil
}

func dunderString(name string, r Value) (string, error) {
	s, ok := r.(Str)
	if !ok {
		return "", Raisef(TypeErrorClass, "%s returned non-string (type %s)", name, r.TypeName())
	}
	return string(s), nil
}
