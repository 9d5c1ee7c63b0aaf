package vm

import (
	"math"
	"math/big"
)

// Value is a runtime value. The set of implementations is closed: every
// operation helper dispatches on the concrete types declared in this package.
type Value interface {
	// TypeName returns the Python-visible type name of the value.
	TypeName() string
	pyValue()
}

// ---------------------------------------------------------------------------
// Scalars
// ---------------------------------------------------------------------------

// NoneType is the type of None.
type NoneType struct{}

// None is the single None value.
var None Value = NoneType{}

// Bool is a boolean. Booleans are int-like in arithmetic and dict keys.
type Bool bool

// Int is a machine integer. Results that overflow int64 become *BigInt.
type Int int64

// Float is a double-precision float. A Float is always float-like, even when
// its value is integral.
type Float float64

// Str is an immutable string.
type Str string

// BigInt is an arbitrary-precision integer whose magnitude does not fit in
// an Int. Use NewBigInt to build one so small results normalize back to Int.
type BigInt struct {
	v *big.Int
}

// NewBigInt returns the canonical integer value for x: an Int if it fits in
// int64, a *BigInt otherwise. x must not be modified afterwards.
func NewBigInt(x *big.Int) Value {
	if x.IsInt64() {
		return Int(x.Int64())
	}
	return &BigInt{v: x}
}

// Big returns the underlying big.Int. Callers must not modify it.
func (b *BigInt) Big() *big.Int { return b.v }

func (NoneType) TypeName() string { return "NoneType" }
func (Bool) TypeName() string     { return "bool" }
func (Int) TypeName() string      { return "int" }
func (*BigInt) TypeName() string  { return "int" }
func (Float) TypeName() string    { return "float" }
func (Str) TypeName() string      { return "str" }

func (NoneType) pyValue() {}
func (Bool) pyValue()     {}
func (Int) pyValue()      {}
func (*BigInt) pyValue()  {}
func (Float) pyValue()    {}
func (Str) pyValue()      {}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

// List is an ordered sequence. A List with Tuple set is a tuple and rejects
// every mutation with TypeError.
type List struct {
	Items []Value
	Tuple bool
}

// NewList returns a mutable list holding items.
func NewList(items ...Value) *List {
	if items == nil {
		items = []Value{}
	}
	return &List{Items: items}
}

// NewTuple returns a tuple holding items.
func NewTuple(items ...Value) *List {
	if items == nil {
		items = []Value{}
	}
	return &List{Items: items, Tuple: true}
}

func (l *List) TypeName() string {
	if l.Tuple {
		return "tuple"
	}
	return "list"
}

func (*List) pyValue() {}

// checkMutable returns a TypeError for tuples.
func (l *List) checkMutable(what string) error {
	if l.Tuple {
		return Raisef(TypeErrorClass, "'tuple' object does not support %s", what)
	}
	return nil
}

// Range is the lazy integer sequence produced by range().
type Range struct {
	Start, Stop, Step int64
}

func (*Range) TypeName() string { return "range" }
func (*Range) pyValue()         {}

// Count returns the number of elements in the range. The count of a range
// spanning most of int64 does not fit in an int64, so it is unsigned.
func (r *Range) Count() uint64 {
	var dist, step uint64
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		dist, step = uint64(r.Stop)-uint64(r.Start), uint64(r.Step)
	case r.Step < 0 && r.Start > r.Stop:
		dist, step = uint64(r.Start)-uint64(r.Stop), -uint64(r.Step)
	default:
		return 0
	}
	return (dist-1)/step + 1
}

// Len returns the number of elements in the range, or false when it exceeds
// int64.
func (r *Range) Len() (int64, bool) {
	n := r.Count()
	return int64(n), n <= math.MaxInt64
}

// Slice is the value built by BUILD_SLICE. Nil bounds are None.
type Slice struct {
	Start, Stop, Step Value
}

func (*Slice) TypeName() string { return "slice" }
func (*Slice) pyValue()         {}

// ---------------------------------------------------------------------------
// Callables and objects
// ---------------------------------------------------------------------------

// Function is a user-defined function: a code object closed over the scope
// that was active when MAKE_FUNCTION ran.
type Function struct {
	Name        string
	Code        *ByteCode
	Params      []string
	Defaults    []Value // apply to the last len(Defaults) params
	Closure     *Scope
	IsGenerator bool
}

func (*Function) TypeName() string { return "function" }
func (*Function) pyValue()         {}

// BuiltinFunc is the signature of natively implemented callables.
type BuiltinFunc func(vm *VM, args []Value, kwargs *Dict) (Value, error)

// Builtin is a natively implemented function.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
}

func (*Builtin) TypeName() string { return "builtin_function_or_method" }
func (*Builtin) pyValue()         {}

// BoundMethod binds a callable to a receiver passed as the first argument.
type BoundMethod struct {
	Self Value
	Fn   Value
}

func (*BoundMethod) TypeName() string { return "method" }
func (*BoundMethod) pyValue()         {}

// Class is a user-defined or builtin class.
type Class struct {
	Name        string
	Bases       []*Class
	Attrs       map[string]Value
	IsException bool
}

// NewClass creates a class. It is an exception class if any base is one.
func NewClass(name string, bases []*Class, attrs map[string]Value) *Class {
	if attrs == nil {
		attrs = make(map[string]Value)
	}
	c := &Class{Name: name, Bases: bases, Attrs: attrs}
	for _, b := range bases {
		if b.IsException {
			c.IsException = true
		}
	}
	return c
}

func (*Class) TypeName() string { return "type" }
func (*Class) pyValue()         {}

// Lookup finds an attribute on the class or, depth first, its bases.
func (c *Class) Lookup(name string) (Value, bool) {
	if v, ok := c.Attrs[name]; ok {
		return v, true
	}
	for _, b := range c.Bases {
		if v, ok := b.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

// IsSubclassOf reports whether c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	if c == other {
		return true
	}
	for _, b := range c.Bases {
		if b.IsSubclassOf(other) {
			return true
		}
	}
	return false
}

// Instance is an object of a user-defined class.
type Instance struct {
	Class *Class
	Attrs map[string]Value
}

// NewInstance allocates an instance with no attributes.
func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, Attrs: make(map[string]Value)}
}

func (i *Instance) TypeName() string { return i.Class.Name }
func (*Instance) pyValue()           {}

// Code constants are values too: MAKE_FUNCTION and BUILD_CLASS load them
// with LOAD_CONST.
func (*ByteCode) TypeName() string { return "code" }
func (*ByteCode) pyValue()         {}

// ---------------------------------------------------------------------------
// Type predicates
// ---------------------------------------------------------------------------

// IsFloatLike reports whether v takes part in float promotion.
func IsFloatLike(v Value) bool {
	_, ok := v.(Float)
	return ok
}

// IsIntLike reports whether v is a bool, Int or *BigInt.
func IsIntLike(v Value) bool {
	switch v.(type) {
	case Bool, Int, *BigInt:
		return true
	}
	return false
}

// IsNumeric reports whether v is int-like or float-like.
func IsNumeric(v Value) bool {
	return IsIntLike(v) || IsFloatLike(v)
}

// Callable reports whether v can be the target of CALL_FUNCTION.
func Callable(v Value) bool {
	switch x := v.(type) {
	case *Function, *Builtin, *BoundMethod, *Class:
		return true
	case *Instance:
		_, ok := x.Class.Lookup("__call__")
		return ok
	}
	return false
}
