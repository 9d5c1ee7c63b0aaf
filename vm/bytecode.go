package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single bytecode instruction.
type Opcode uint16

// Stack Operations
const (
	OpNop       Opcode = 0x00 // no operation
	OpPopTop    Opcode = 0x01 // discard top of stack
	OpRotTwo    Opcode = 0x02 // swap the two top items
	OpRotThree  Opcode = 0x03 // lift second and third items up, move top down two
	OpDupTop    Opcode = 0x04 // duplicate top of stack
	OpDupTopTwo Opcode = 0x05 // duplicate the two top items
)

// Loads and Stores
const (
	OpLoadConst   Opcode = 0x10 // push constants[arg]
	OpLoadName    Opcode = 0x11 // push scope lookup of names[arg]
	OpStoreName   Opcode = 0x12 // bind names[arg] through the scope
	OpDeleteName  Opcode = 0x13 // unbind names[arg]
	OpLoadFast    Opcode = 0x14 // push local slot arg
	OpStoreFast   Opcode = 0x15 // store local slot arg
	OpDeleteFast  Opcode = 0x16 // clear local slot arg
	OpLoadGlobal  Opcode = 0x17 // push root scope lookup of names[arg]
	OpStoreGlobal Opcode = 0x18 // bind names[arg] in the root scope
)

// Unary Operations
const (
	OpUnaryPositive Opcode = 0x20 // +TOS
	OpUnaryNegative Opcode = 0x21 // -TOS
	OpUnaryNot      Opcode = 0x22 // not TOS
	OpUnaryInvert   Opcode = 0x23 // ~TOS
)

// Binary Operations
const (
	OpBinaryAdd         Opcode = 0x30 // TOS1 + TOS
	OpBinarySubtract    Opcode = 0x31 // TOS1 - TOS
	OpBinaryMultiply    Opcode = 0x32 // TOS1 * TOS
	OpBinaryDivide      Opcode = 0x33 // TOS1 / TOS
	OpBinaryFloorDivide Opcode = 0x34 // TOS1 // TOS
	OpBinaryModulo      Opcode = 0x35 // TOS1 % TOS
	OpBinaryPower       Opcode = 0x36 // TOS1 ** TOS
	OpBinaryAnd         Opcode = 0x37 // TOS1 & TOS
	OpBinaryOr          Opcode = 0x38 // TOS1 | TOS
	OpBinaryXor         Opcode = 0x39 // TOS1 ^ TOS
	OpBinaryLShift      Opcode = 0x3A // TOS1 << TOS
	OpBinaryRShift      Opcode = 0x3B // TOS1 >> TOS
)

// In-place Operations
const (
	OpInplaceAdd         Opcode = 0x40
	OpInplaceSubtract    Opcode = 0x41
	OpInplaceMultiply    Opcode = 0x42
	OpInplaceDivide      Opcode = 0x43
	OpInplaceFloorDivide Opcode = 0x44
	OpInplaceModulo      Opcode = 0x45
	OpInplacePower       Opcode = 0x46
	OpInplaceAnd         Opcode = 0x47
	OpInplaceOr          Opcode = 0x48
	OpInplaceXor         Opcode = 0x49
	OpInplaceLShift      Opcode = 0x4A
	OpInplaceRShift      Opcode = 0x4B
)

// Comparison and Control Flow
const (
	OpCompareOp        Opcode = 0x50 // TOS1 <arg> TOS, arg is a CompareOp
	OpJumpForward      Opcode = 0x51 // pc += arg (relative to the next instruction)
	OpJumpAbsolute     Opcode = 0x52 // pc = arg
	OpPopJumpIfFalse   Opcode = 0x53 // pop; jump to arg if falsy
	OpPopJumpIfTrue    Opcode = 0x54 // pop; jump to arg if truthy
	OpJumpIfFalseOrPop Opcode = 0x55 // jump to arg keeping TOS if falsy, else pop
	OpJumpIfTrueOrPop  Opcode = 0x56 // jump to arg keeping TOS if truthy, else pop
)

// Containers
const (
	OpBuildList      Opcode = 0x60 // pop arg items into a list
	OpBuildTuple     Opcode = 0x61 // pop arg items into a tuple
	OpBuildSet       Opcode = 0x62 // pop arg items into a set
	OpBuildMap       Opcode = 0x63 // pop arg key/value pairs into a dict
	OpListAppend     Opcode = 0x64 // pop value, append to the list now on top
	OpSetAdd         Opcode = 0x65 // pop value, add to the set now on top
	OpMapAdd         Opcode = 0x66 // pop value and key, insert into the dict now on top
	OpUnpackSequence Opcode = 0x67 // pop a sequence of exactly arg items, push them reversed
	OpBuildSlice     Opcode = 0x68 // pop 2 or 3 bounds into a slice
	OpBuildString    Opcode = 0x69 // pop arg strings and concatenate
	OpFormatValue    Opcode = 0x6A // format TOS with str (arg 0) or repr (arg 1)
)

// Attributes and Subscripts
const (
	OpLoadAttr     Opcode = 0x70 // TOS.names[arg]
	OpStoreAttr    Opcode = 0x71 // TOS.names[arg] = TOS1
	OpLoadSubscr   Opcode = 0x72 // TOS1[TOS]
	OpStoreSubscr  Opcode = 0x73 // TOS1[TOS] = TOS2
	OpDeleteSubscr Opcode = 0x74 // del TOS1[TOS]
)

// Iteration
const (
	OpGetIter Opcode = 0x80 // replace TOS with iter(TOS)
	OpForIter Opcode = 0x81 // push next(TOS), or pop the iterator and jump to arg
)

// Functions and Classes
const (
	OpMakeFunction   Opcode = 0x90 // stack: defaults*arg, code, name
	OpCallFunction   Opcode = 0x91 // stack: callable, args*arg
	OpCallFunctionKw Opcode = 0x92 // stack: callable, args*arg, tuple of keyword names
	OpReturnValue    Opcode = 0x93 // return TOS
	OpYieldValue     Opcode = 0x94 // suspend the generator yielding TOS
	OpBuildClass     Opcode = 0x95 // stack: bases*arg, body code, name
)

// Exceptions
const (
	OpSetupFinally      Opcode = 0xA0 // push a handler block targeting arg
	OpSetupWith         Opcode = 0xA1 // enter the context manager on TOS, handler at arg
	OpWithExceptStart   Opcode = 0xA2 // call __exit__ with the exception on TOS
	OpPopBlock          Opcode = 0xA3 // pop the innermost handler block
	OpRaiseVarargs      Opcode = 0xA4 // raise TOS (arg 1) or re-raise (arg 0)
	OpJumpIfNotExcMatch Opcode = 0xA5 // pop class and exception, jump to arg if no match
	OpReraise           Opcode = 0xA6 // pop an exception and raise it again
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// JumpKind describes how an opcode's argument is used as a branch target.
type JumpKind uint8

const (
	JumpNone JumpKind = iota
	JumpAbsolute
	JumpRelative
)

// OpcodeInfo describes an opcode's name and stack contract. An instruction
// requires Pops + PopsPerArg*arg items on the stack before it executes.
type OpcodeInfo struct {
	Name       string
	HasArg     bool
	Pops       int
	PopsPerArg int
	Jump       JumpKind
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:       {Name: "NOP"},
	OpPopTop:    {Name: "POP_TOP", Pops: 1},
	OpRotTwo:    {Name: "ROT_TWO", Pops: 2},
	OpRotThree:  {Name: "ROT_THREE", Pops: 3},
	OpDupTop:    {Name: "DUP_TOP", Pops: 1},
	OpDupTopTwo: {Name: "DUP_TOP_TWO", Pops: 2},

	OpLoadConst:   {Name: "LOAD_CONST", HasArg: true},
	OpLoadName:    {Name: "LOAD_NAME", HasArg: true},
	OpStoreName:   {Name: "STORE_NAME", HasArg: true, Pops: 1},
	OpDeleteName:  {Name: "DELETE_NAME", HasArg: true},
	OpLoadFast:    {Name: "LOAD_FAST", HasArg: true},
	OpStoreFast:   {Name: "STORE_FAST", HasArg: true, Pops: 1},
	OpDeleteFast:  {Name: "DELETE_FAST", HasArg: true},
	OpLoadGlobal:  {Name: "LOAD_GLOBAL", HasArg: true},
	OpStoreGlobal: {Name: "STORE_GLOBAL", HasArg: true, Pops: 1},

	OpUnaryPositive: {Name: "UNARY_POSITIVE", Pops: 1},
	OpUnaryNegative: {Name: "UNARY_NEGATIVE", Pops: 1},
	OpUnaryNot:      {Name: "UNARY_NOT", Pops: 1},
	OpUnaryInvert:   {Name: "UNARY_INVERT", Pops: 1},

	OpBinaryAdd:         {Name: "BINARY_ADD", Pops: 2},
	OpBinarySubtract:    {Name: "BINARY_SUBTRACT", Pops: 2},
	OpBinaryMultiply:    {Name: "BINARY_MULTIPLY", Pops: 2},
	OpBinaryDivide:      {Name: "BINARY_DIVIDE", Pops: 2},
	OpBinaryFloorDivide: {Name: "BINARY_FLOOR_DIVIDE", Pops: 2},
	OpBinaryModulo:      {Name: "BINARY_MODULO", Pops: 2},
	OpBinaryPower:       {Name: "BINARY_POWER", Pops: 2},
	OpBinaryAnd:         {Name: "BINARY_AND", Pops: 2},
	OpBinaryOr:          {Name: "BINARY_OR", Pops: 2},
	OpBinaryXor:         {Name: "BINARY_XOR", Pops: 2},
	OpBinaryLShift:      {Name: "BINARY_LSHIFT", Pops: 2},
	OpBinaryRShift:      {Name: "BINARY_RSHIFT", Pops: 2},

	OpInplaceAdd:         {Name: "INPLACE_ADD", Pops: 2},
	OpInplaceSubtract:    {Name: "INPLACE_SUBTRACT", Pops: 2},
	OpInplaceMultiply:    {Name: "INPLACE_MULTIPLY", Pops: 2},
	OpInplaceDivide:      {Name: "INPLACE_DIVIDE", Pops: 2},
	OpInplaceFloorDivide: {Name: "INPLACE_FLOOR_DIVIDE", Pops: 2},
	OpInplaceModulo:      {Name: "INPLACE_MODULO", Pops: 2},
	OpInplacePower:       {Name: "INPLACE_POWER", Pops: 2},
	OpInplaceAnd:         {Name: "INPLACE_AND", Pops: 2},
	OpInplaceOr:          {Name: "INPLACE_OR", Pops: 2},
	OpInplaceXor:         {Name: "INPLACE_XOR", Pops: 2},
	OpInplaceLShift:      {Name: "INPLACE_LSHIFT", Pops: 2},
	OpInplaceRShift:      {Name: "INPLACE_RSHIFT", Pops: 2},

	OpCompareOp:        {Name: "COMPARE_OP", HasArg: true, Pops: 2},
	OpJumpForward:      {Name: "JUMP_FORWARD", HasArg: true, Jump: JumpRelative},
	OpJumpAbsolute:     {Name: "JUMP_ABSOLUTE", HasArg: true, Jump: JumpAbsolute},
	OpPopJumpIfFalse:   {Name: "POP_JUMP_IF_FALSE", HasArg: true, Pops: 1, Jump: JumpAbsolute},
	OpPopJumpIfTrue:    {Name: "POP_JUMP_IF_TRUE", HasArg: true, Pops: 1, Jump: JumpAbsolute},
	OpJumpIfFalseOrPop: {Name: "JUMP_IF_FALSE_OR_POP", HasArg: true, Pops: 1, Jump: JumpAbsolute},
	OpJumpIfTrueOrPop:  {Name: "JUMP_IF_TRUE_OR_POP", HasArg: true, Pops: 1, Jump: JumpAbsolute},

	OpBuildList:      {Name: "BUILD_LIST", HasArg: true, PopsPerArg: 1},
	OpBuildTuple:     {Name: "BUILD_TUPLE", HasArg: true, PopsPerArg: 1},
	OpBuildSet:       {Name: "BUILD_SET", HasArg: true, PopsPerArg: 1},
	OpBuildMap:       {Name: "BUILD_MAP", HasArg: true, PopsPerArg: 2},
	OpListAppend:     {Name: "LIST_APPEND", Pops: 2},
	OpSetAdd:         {Name: "SET_ADD", Pops: 2},
	OpMapAdd:         {Name: "MAP_ADD", Pops: 3},
	OpUnpackSequence: {Name: "UNPACK_SEQUENCE", HasArg: true, Pops: 1},
	OpBuildSlice:     {Name: "BUILD_SLICE", HasArg: true, PopsPerArg: 1},
	OpBuildString:    {Name: "BUILD_STRING", HasArg: true, PopsPerArg: 1},
	OpFormatValue:    {Name: "FORMAT_VALUE", HasArg: true, Pops: 1},

	OpLoadAttr:     {Name: "LOAD_ATTR", HasArg: true, Pops: 1},
	OpStoreAttr:    {Name: "STORE_ATTR", HasArg: true, Pops: 2},
	OpLoadSubscr:   {Name: "LOAD_SUBSCR", Pops: 2},
	OpStoreSubscr:  {Name: "STORE_SUBSCR", Pops: 3},
	OpDeleteSubscr: {Name: "DELETE_SUBSCR", Pops: 2},

	OpGetIter: {Name: "GET_ITER", Pops: 1},
	OpForIter: {Name: "FOR_ITER", HasArg: true, Pops: 1, Jump: JumpAbsolute},

	OpMakeFunction:   {Name: "MAKE_FUNCTION", HasArg: true, Pops: 2, PopsPerArg: 1},
	OpCallFunction:   {Name: "CALL_FUNCTION", HasArg: true, Pops: 1, PopsPerArg: 1},
	OpCallFunctionKw: {Name: "CALL_FUNCTION_KW", HasArg: true, Pops: 2, PopsPerArg: 1},
	OpReturnValue:    {Name: "RETURN_VALUE", Pops: 1},
	OpYieldValue:     {Name: "YIELD_VALUE", Pops: 1},
	OpBuildClass:     {Name: "BUILD_CLASS", HasArg: true, Pops: 2, PopsPerArg: 1},

	OpSetupFinally:      {Name: "SETUP_FINALLY", HasArg: true, Jump: JumpAbsolute},
	OpSetupWith:         {Name: "SETUP_WITH", HasArg: true, Pops: 1, Jump: JumpAbsolute},
	OpWithExceptStart:   {Name: "WITH_EXCEPT_START", Pops: 2},
	OpPopBlock:          {Name: "POP_BLOCK"},
	OpRaiseVarargs:      {Name: "RAISE_VARARGS", HasArg: true, PopsPerArg: 1},
	OpJumpIfNotExcMatch: {Name: "JUMP_IF_NOT_EXC_MATCH", HasArg: true, Pops: 2, Jump: JumpAbsolute},
	OpReraise:           {Name: "RERAISE", Pops: 1},
}

// Info returns the metadata for op.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint16(op))
}

// IsExceptionSetup reports whether op opens, closes or services a handler
// region. Bytecode containing these never runs on the fast path.
func (op Opcode) IsExceptionSetup() bool {
	switch op {
	case OpSetupFinally, OpSetupWith, OpWithExceptStart, OpPopBlock:
		return true
	}
	return false
}

// StackInputs returns how many stack items an instruction consumes or
// inspects. FORMAT_VALUE with flag 4 also pops a format spec.
func StackInputs(op Opcode, arg int32) int {
	info, ok := opcodeTable[op]
	if !ok {
		return 0
	}
	n := info.Pops + info.PopsPerArg*int(arg)
	if op == OpFormatValue && arg&formatWithSpec != 0 {
		n++
	}
	return n
}

// CheckArity verifies that a stack of the given depth satisfies the
// instruction's input contract.
func CheckArity(op Opcode, arg int32, depth int) error {
	if need := StackInputs(op, arg); depth < need {
		return fmt.Errorf("%s needs %d stack items, have %d: %w", op, need, depth, ErrStackUnderflow)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operator enums
// ---------------------------------------------------------------------------

// BinaryOp is an arithmetic or bitwise operator.
type BinaryOp uint8

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinFloorDiv
	BinMod
	BinPow
	BinAnd
	BinOr
	BinXor
	BinLShift
	BinRShift
)

var binaryOpSymbols = [...]string{"+", "-", "*", "/", "//", "%", "**", "&", "|", "^", "<<", ">>"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpSymbols) {
		return binaryOpSymbols[op]
	}
	return "?"
}

// BinaryOpFor maps BINARY_* and INPLACE_* opcodes to their operator.
func BinaryOpFor(op Opcode) (BinaryOp, bool) {
	switch {
	case op >= OpBinaryAdd && op <= OpBinaryRShift:
		return BinaryOp(op - OpBinaryAdd), true
	case op >= OpInplaceAdd && op <= OpInplaceRShift:
		return BinaryOp(op - OpInplaceAdd), true
	}
	return 0, false
}

// CompareOp is the argument of COMPARE_OP.
type CompareOp int32

const (
	CmpLT CompareOp = iota
	CmpLE
	CmpEQ
	CmpNE
	CmpGT
	CmpGE
	CmpIn
	CmpNotIn
	CmpIs
	CmpIsNot
)

var compareOpSymbols = [...]string{"<", "<=", "==", "!=", ">", ">=", "in", "not in", "is", "is not"}

func (op CompareOp) String() string {
	if op >= 0 && int(op) < len(compareOpSymbols) {
		return compareOpSymbols[op]
	}
	return "?"
}

// FORMAT_VALUE flags.
const (
	formatRepr     int32 = 1
	formatWithSpec int32 = 4
)

// ---------------------------------------------------------------------------
// ByteCode
// ---------------------------------------------------------------------------

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Op  Opcode
	Arg int32
}

// FastPathState is the memoized result of the fast-path eligibility scan.
type FastPathState uint8

const (
	FastPathUnknown FastPathState = iota
	FastPathSupported
	FastPathUnsupported
)

// JITInfo holds derived data cached on a ByteCode by the JIT. Each field is
// written at most once and never changes program semantics.
type JITInfo struct {
	Prepared             bool
	Opcodes              []Opcode
	Args                 []int32
	HasExceptionHandlers bool
	FastPath             FastPathState
}

var nextCodeID atomic.Uint64

// ByteCode is a compiled code block: a module body, function body or class
// body. It is immutable after construction apart from the JIT side record.
type ByteCode struct {
	Name         string
	Instructions []Instruction
	Constants    []Value
	Names        []string
	Varnames     []string
	Params       []string
	Globals      []string
	Nonlocals    []string
	IsGenerator  bool

	JIT JITInfo

	id uint64
}

// ID returns a process-unique identifier for the code block. It is assigned
// lazily so ByteCode literals work without a constructor.
func (bc *ByteCode) ID() uint64 {
	if id := atomic.LoadUint64(&bc.id); id != 0 {
		return id
	}
	atomic.CompareAndSwapUint64(&bc.id, 0, nextCodeID.Add(1))
	return atomic.LoadUint64(&bc.id)
}

// Validate checks operand indexes and jump targets.
func (bc *ByteCode) Validate() error {
	n := int32(len(bc.Instructions))
	for pc, in := range bc.Instructions {
		info, ok := in.Op.Info()
		if !ok {
			return fmt.Errorf("%s: pc %d: opcode 0x%02X: %w", bc.displayName(), pc, uint16(in.Op), ErrUnknownOpcode)
		}
		var limit int32 = -1
		switch in.Op {
		case OpLoadConst:
			limit = int32(len(bc.Constants))
		case OpLoadName, OpStoreName, OpDeleteName, OpLoadGlobal, OpStoreGlobal, OpLoadAttr, OpStoreAttr:
			limit = int32(len(bc.Names))
		case OpLoadFast, OpStoreFast, OpDeleteFast:
			limit = int32(len(bc.Varnames))
		}
		if limit >= 0 && (in.Arg < 0 || in.Arg >= limit) {
			return fmt.Errorf("%s: pc %d: %s %d: %w", bc.displayName(), pc, in.Op, in.Arg, ErrBadOperand)
		}
		switch info.Jump {
		case JumpAbsolute:
			if in.Arg < 0 || in.Arg > n {
				return fmt.Errorf("%s: pc %d: %s target %d: %w", bc.displayName(), pc, in.Op, in.Arg, ErrBadOperand)
			}
		case JumpRelative:
			if t := int32(pc) + 1 + in.Arg; t < 0 || t > n {
				return fmt.Errorf("%s: pc %d: %s target %d: %w", bc.displayName(), pc, in.Op, t, ErrBadOperand)
			}
		}
		if in.Arg < 0 && info.PopsPerArg > 0 {
			return fmt.Errorf("%s: pc %d: %s %d: %w", bc.displayName(), pc, in.Op, in.Arg, ErrBadOperand)
		}
	}
	for _, c := range bc.Constants {
		if sub, ok := c.(*ByteCode); ok {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (bc *ByteCode) displayName() string {
	if bc.Name == "" {
		return "<module>"
	}
	return bc.Name
}
