package vm

import "fmt"

// ---------------------------------------------------------------------------
// Builder: helper for assembling ByteCode
// ---------------------------------------------------------------------------

// Label marks a jump target whose position is fixed later with Mark.
type Label int

// Builder assembles a ByteCode. Names and varnames are interned; constants
// are appended as given so identity-sensitive values stay distinct.
type Builder struct {
	bc      *ByteCode
	names   map[string]int32
	vars    map[string]int32
	labels  []int
	patches []labelPatch
}

type labelPatch struct {
	pc    int
	label Label
}

// NewBuilder starts a code block with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		bc:    &ByteCode{Name: name},
		names: make(map[string]int32),
		vars:  make(map[string]int32),
	}
}

// Params declares the function's parameter names.
func (b *Builder) Params(params ...string) *Builder {
	b.bc.Params = append(b.bc.Params, params...)
	return b
}

// Globals declares names redirected to the module scope.
func (b *Builder) Globals(names ...string) *Builder {
	b.bc.Globals = append(b.bc.Globals, names...)
	return b
}

// Nonlocals declares names redirected to an enclosing function scope.
func (b *Builder) Nonlocals(names ...string) *Builder {
	b.bc.Nonlocals = append(b.bc.Nonlocals, names...)
	return b
}

// Generator marks the code as a generator body.
func (b *Builder) Generator() *Builder {
	b.bc.IsGenerator = true
	return b
}

// Const appends a constant and returns its index.
func (b *Builder) Const(v Value) int32 {
	b.bc.Constants = append(b.bc.Constants, v)
	return int32(len(b.bc.Constants) - 1)
}

// Name interns a name and returns its index.
func (b *Builder) Name(name string) int32 {
	if i, ok := b.names[name]; ok {
		return i
	}
	i := int32(len(b.bc.Names))
	b.bc.Names = append(b.bc.Names, name)
	b.names[name] = i
	return i
}

// Var interns a local variable name and returns its slot.
func (b *Builder) Var(name string) int32 {
	if i, ok := b.vars[name]; ok {
		return i
	}
	i := int32(len(b.bc.Varnames))
	b.bc.Varnames = append(b.bc.Varnames, name)
	b.vars[name] = i
	return i
}

// PC returns the index of the next instruction.
func (b *Builder) PC() int { return len(b.bc.Instructions) }

// Emit appends an instruction.
func (b *Builder) Emit(op Opcode, arg int32) *Builder {
	b.bc.Instructions = append(b.bc.Instructions, Instruction{Op: op, Arg: arg})
	return b
}

// Op appends an instruction without an argument.
func (b *Builder) Op(op Opcode) *Builder { return b.Emit(op, 0) }

// LoadConst emits LOAD_CONST for a new constant.
func (b *Builder) LoadConst(v Value) *Builder { return b.Emit(OpLoadConst, b.Const(v)) }

// LoadName emits LOAD_NAME.
func (b *Builder) LoadName(name string) *Builder { return b.Emit(OpLoadName, b.Name(name)) }

// StoreName emits STORE_NAME.
func (b *Builder) StoreName(name string) *Builder { return b.Emit(OpStoreName, b.Name(name)) }

// LoadFast emits LOAD_FAST.
func (b *Builder) LoadFast(name string) *Builder { return b.Emit(OpLoadFast, b.Var(name)) }

// StoreFast emits STORE_FAST.
func (b *Builder) StoreFast(name string) *Builder { return b.Emit(OpStoreFast, b.Var(name)) }

// LoadGlobal emits LOAD_GLOBAL.
func (b *Builder) LoadGlobal(name string) *Builder { return b.Emit(OpLoadGlobal, b.Name(name)) }

// LoadAttr emits LOAD_ATTR.
func (b *Builder) LoadAttr(name string) *Builder { return b.Emit(OpLoadAttr, b.Name(name)) }

// StoreAttr emits STORE_ATTR.
func (b *Builder) StoreAttr(name string) *Builder { return b.Emit(OpStoreAttr, b.Name(name)) }

// Call emits CALL_FUNCTION with n positional arguments.
func (b *Builder) Call(n int) *Builder { return b.Emit(OpCallFunction, int32(n)) }

// Compare emits COMPARE_OP.
func (b *Builder) Compare(op CompareOp) *Builder { return b.Emit(OpCompareOp, int32(op)) }

// NewLabel allocates an unplaced label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Mark places l at the next instruction.
func (b *Builder) Mark(l Label) *Builder {
	b.labels[l] = b.PC()
	return b
}

// Jump emits a jump-family instruction targeting l. JUMP_FORWARD is encoded
// relative to the following instruction, every other jump absolutely.
func (b *Builder) Jump(op Opcode, l Label) *Builder {
	b.patches = append(b.patches, labelPatch{pc: b.PC(), label: l})
	return b.Emit(op, 0)
}

// Return emits LOAD_CONST None, RETURN_VALUE.
func (b *Builder) Return() *Builder {
	return b.LoadConst(None).Op(OpReturnValue)
}

// Build resolves labels and returns the finished code block.
func (b *Builder) Build() (*ByteCode, error) {
	for _, p := range b.patches {
		target := b.labels[p.label]
		if target < 0 {
			return nil, fmt.Errorf("%s: pc %d: label %d never marked: %w", b.bc.displayName(), p.pc, p.label, ErrBadOperand)
		}
		in := &b.bc.Instructions[p.pc]
		if in.Op == OpJumpForward {
			in.Arg = int32(target - p.pc - 1)
		} else {
			in.Arg = int32(target)
		}
	}
	if err := b.bc.Validate(); err != nil {
		return nil, err
	}
	return b.bc, nil
}

// MustBuild is Build for code known to be well formed.
func (b *Builder) MustBuild() *ByteCode {
	bc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return bc
}
