package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Fatal VM errors
// ---------------------------------------------------------------------------

// Fatal errors signal malformed bytecode or interpreter bugs. They are plain Go
// errors, never Python exceptions, so exception handlers cannot intercept them.
var (
	ErrStackUnderflow = errors.New("vm: stack underflow")
	ErrBadOperand     = errors.New("vm: operand out of range")
	ErrUnknownOpcode  = errors.New("vm: unknown opcode")
)

// ---------------------------------------------------------------------------
// Python exceptions
// ---------------------------------------------------------------------------

// Exception is a raised Python exception. It is both a Value (handlers bind it
// to names) and an error (operations return it).
type Exception struct {
	Class   *Class
	Kind    string
	Message string
	Payload Value
	Attrs   map[string]Value
}

func (e *Exception) TypeName() string { return e.Kind }
func (*Exception) pyValue()           {}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Message
}

// Is lets errors.Is match exceptions of the same class.
func (e *Exception) Is(target error) bool {
	t, ok := target.(*Exception)
	return ok && t.Class == e.Class
}

// Matches reports whether the exception is an instance of cls.
func (e *Exception) Matches(cls *Class) bool {
	return e.Class != nil && e.Class.IsSubclassOf(cls)
}

// Raisef creates an exception of class cls with a formatted message.
func Raisef(cls *Class, format string, args ...any) *Exception {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Exception{Class: cls, Kind: cls.Name, Message: msg, Payload: Str(msg)}
}

// AsException extracts the Python exception from err, if there is one.
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}

// IsStopIteration reports whether err is a StopIteration exception.
func IsStopIteration(err error) bool {
	exc, ok := AsException(err)
	return ok && exc.Matches(StopIterationClass)
}

// ---------------------------------------------------------------------------
// Builtin exception hierarchy
// ---------------------------------------------------------------------------

func exceptionClass(name string, base *Class) *Class {
	var bases []*Class
	if base != nil {
		bases = []*Class{base}
	}
	c := NewClass(name, bases, nil)
	c.IsException = true
	return c
}

// Builtin exception classes.
var (
	BaseExceptionClass       = exceptionClass("BaseException", nil)
	ExceptionClass           = exceptionClass("Exception", BaseExceptionClass)
	StopIterationClass       = exceptionClass("StopIteration", ExceptionClass)
	ArithmeticErrorClass     = exceptionClass("ArithmeticError", ExceptionClass)
	ZeroDivisionErrorClass   = exceptionClass("ZeroDivisionError", ArithmeticErrorClass)
	OverflowErrorClass       = exceptionClass("OverflowError", ArithmeticErrorClass)
	LookupErrorClass         = exceptionClass("LookupError", ExceptionClass)
	KeyErrorClass            = exceptionClass("KeyError", LookupErrorClass)
	IndexErrorClass          = exceptionClass("IndexError", LookupErrorClass)
	NameErrorClass           = exceptionClass("NameError", ExceptionClass)
	UnboundLocalErrorClass   = exceptionClass("UnboundLocalError", NameErrorClass)
	TypeErrorClass           = exceptionClass("TypeError", ExceptionClass)
	ValueErrorClass          = exceptionClass("ValueError", ExceptionClass)
	AttributeErrorClass      = exceptionClass("AttributeError", ExceptionClass)
	RuntimeErrorClass        = exceptionClass("RuntimeError", ExceptionClass)
	RecursionErrorClass      = exceptionClass("RecursionError", RuntimeErrorClass)
	NotImplementedErrorClass = exceptionClass("NotImplementedError", RuntimeErrorClass)
	AssertionErrorClass      = exceptionClass("AssertionError", ExceptionClass)
	MemoryErrorClass         = exceptionClass("MemoryError", ExceptionClass)
)

var builtinExceptionClasses = []*Class{
	BaseExceptionClass, ExceptionClass, StopIterationClass, ArithmeticErrorClass,
	ZeroDivisionErrorClass, OverflowErrorClass, LookupErrorClass, KeyErrorClass,
	IndexErrorClass, NameErrorClass, UnboundLocalErrorClass, TypeErrorClass,
	ValueErrorClass, AttributeErrorClass, RuntimeErrorClass, RecursionErrorClass,
	NotImplementedErrorClass, AssertionErrorClass, MemoryErrorClass,
}

// newException instantiates an exception class called with args.
func newException(cls *Class, args []Value) *Exception {
	exc := &Exception{Class: cls, Kind: cls.Name, Payload: None}
	switch len(args) {
	case 0:
	case 1:
		exc.Payload = args[0]
		exc.Message = ToStr(args[0])
	default:
		exc.Payload = NewTuple(args...)
		exc.Message = Repr(exc.Payload)
	}
	return exc
}

// args returns the exception's args tuple.
func (e *Exception) args() *List {
	switch p := e.Payload.(type) {
	case NoneType, nil:
		return NewTuple()
	case *List:
		if p.Tuple {
			return p
		}
	}
	return NewTuple(e.Payload)
}
