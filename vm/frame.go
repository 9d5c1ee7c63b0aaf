package vm

import "fmt"

// blockKind distinguishes handler blocks pushed by SETUP_FINALLY and SETUP_WITH.
type blockKind uint8

const (
	blockFinally blockKind = iota
	blockWith
)

// handlerBlock is an active exception-handler region.
type handlerBlock struct {
	kind    blockKind
	handler int
	depth   int
}

// Frame is the execution state of one call. A frame is owned by whichever
// interpreter is running it; execution paths hand the same frame over to one
// another, so every path must keep PC, Stack and Locals consistent.
type Frame struct {
	Code   *ByteCode
	PC     int
	Stack  []Value
	Locals []Value // nil slot means unbound
	Scope  *Scope

	// LastPopped is the value most recently discarded by POP_TOP. It is the
	// frame's result when execution runs off the end of the code.
	LastPopped Value

	blocks    []handlerBlock
	handled   *Exception // exception being handled, for bare raise
	yielded   bool
	classBody bool
}

// NewFrame creates a frame for code running in scope.
func NewFrame(code *ByteCode, scope *Scope) *Frame {
	return &Frame{
		Code:       code,
		Stack:      make([]Value, 0, 16),
		Locals:     make([]Value, len(code.Varnames)),
		Scope:      scope,
		LastPopped: None,
	}
}

// ClosureScope returns the scope captured by functions created in this
// frame. Class bodies are skipped, so methods do not see class attributes
// as free variables.
func (f *Frame) ClosureScope() *Scope {
	if f.classBody && f.Scope.parent != nil {
		return f.Scope.parent
	}
	return f.Scope
}

// Push pushes v onto the operand stack.
func (f *Frame) Push(v Value) {
	f.Stack = append(f.Stack, v)
}

// Pop removes and returns the top of stack.
func (f *Frame) Pop() (Value, error) {
	n := len(f.Stack)
	if n == 0 {
		return nil, fmt.Errorf("%s: pc %d: %w", f.Code.displayName(), f.PC, ErrStackUnderflow)
	}
	v := f.Stack[n-1]
	f.Stack[n-1] = nil
	f.Stack = f.Stack[:n-1]
	return v, nil
}

// pop removes the top of stack. Callers have already checked arity.
func (f *Frame) pop() Value {
	n := len(f.Stack) - 1
	v := f.Stack[n]
	f.Stack[n] = nil
	f.Stack = f.Stack[:n]
	return v
}

// popN removes the top n items and returns them in push order.
func (f *Frame) popN(n int) []Value {
	start := len(f.Stack) - n
	out := make([]Value, n)
	copy(out, f.Stack[start:])
	clear(f.Stack[start:])
	f.Stack = f.Stack[:start]
	return out
}

// Top returns the top of stack without removing it.
func (f *Frame) Top() Value {
	return f.Stack[len(f.Stack)-1]
}

// truncate drops stack items above depth.
func (f *Frame) truncate(depth int) {
	if depth < len(f.Stack) {
		clear(f.Stack[depth:])
		f.Stack = f.Stack[:depth]
	}
}
