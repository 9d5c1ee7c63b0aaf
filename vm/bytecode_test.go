package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpLoadConst, "LOAD_CONST"},
		{OpJumpForward, "JUMP_FORWARD"},
		{OpJumpIfNotExcMatch, "JUMP_IF_NOT_EXC_MATCH"},
		{Opcode(0xFF), "UNKNOWN(0xFF)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", uint16(tt.op), got, tt.want)
		}
	}
}

func TestCheckArity(t *testing.T) {
	tests := []struct {
		op    Opcode
		arg   int32
		depth int
		ok    bool
	}{
		{OpBinaryAdd, 0, 2, true},
		{OpBinaryAdd, 0, 1, false},
		{OpBuildList, 3, 3, true},
		{OpBuildList, 3, 2, false},
		{OpBuildMap, 2, 3, false},
		{OpCallFunction, 2, 3, true},
		{OpCallFunction, 2, 2, false},
		{OpMakeFunction, 1, 3, true},
		{OpMapAdd, 0, 2, false},
		{OpFormatValue, formatWithSpec, 1, false},
		{OpLoadConst, 0, 0, true},
	}
	for _, tt := range tests {
		err := CheckArity(tt.op, tt.arg, tt.depth)
		if tt.ok && err != nil {
			t.Errorf("CheckArity(%s, %d, %d) = %v", tt.op, tt.arg, tt.depth, err)
		}
		if !tt.ok && !errors.Is(err, ErrStackUnderflow) {
			t.Errorf("CheckArity(%s, %d, %d) = %v, want ErrStackUnderflow", tt.op, tt.arg, tt.depth, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		bc   *ByteCode
		want error
	}{
		{"const index", &ByteCode{Instructions: []Instruction{{OpLoadConst, 1}}, Constants: []Value{None}}, ErrBadOperand},
		{"name index", &ByteCode{Instructions: []Instruction{{OpLoadName, 0}}}, ErrBadOperand},
		{"fast index", &ByteCode{Instructions: []Instruction{{OpLoadFast, -1}}, Varnames: []string{"x"}}, ErrBadOperand},
		{"absolute target", &ByteCode{Instructions: []Instruction{{OpJumpAbsolute, 5}}}, ErrBadOperand},
		{"relative target", &ByteCode{Instructions: []Instruction{{OpJumpForward, -3}}}, ErrBadOperand},
		{"negative count", &ByteCode{Instructions: []Instruction{{OpBuildTuple, -1}}}, ErrBadOperand},
		{"unknown opcode", &ByteCode{Instructions: []Instruction{{Opcode(0xEE), 0}}}, ErrUnknownOpcode},
		{"nested code", &ByteCode{
			Instructions: []Instruction{{OpNop, 0}},
			Constants:    []Value{&ByteCode{Name: "inner", Instructions: []Instruction{{OpStoreFast, 0}}}},
		}, ErrBadOperand},
		{"jump to end", &ByteCode{Instructions: []Instruction{{OpJumpAbsolute, 1}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bc.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuilderLabels(t *testing.T) {
	b := NewBuilder("labels")
	skip := b.NewLabel()
	back := b.NewLabel()
	b.Mark(back)
	b.Jump(OpJumpForward, skip)
	b.Op(OpNop)
	b.Jump(OpJumpAbsolute, back)
	b.Mark(skip).Jump(OpPopJumpIfFalse, skip)
	bc := b.MustBuild()

	if got := bc.Instructions[0].Arg; got != 2 {
		t.Errorf("JUMP_FORWARD arg = %d, want 2 (relative)", got)
	}
	if got := bc.Instructions[2].Arg; got != 0 {
		t.Errorf("JUMP_ABSOLUTE arg = %d, want 0", got)
	}
	if got := bc.Instructions[3].Arg; got != 3 {
		t.Errorf("POP_JUMP_IF_FALSE arg = %d, want 3", got)
	}

	b = NewBuilder("dangling")
	b.Jump(OpJumpAbsolute, b.NewLabel())
	if _, err := b.Build(); !errors.Is(err, ErrBadOperand) {
		t.Errorf("unmarked label: err = %v, want ErrBadOperand", err)
	}
}

func TestBuilderInterning(t *testing.T) {
	b := NewBuilder("intern")
	if b.Name("x") != b.Name("x") || b.Var("y") != b.Var("y") {
		t.Error("names are not interned")
	}
	if b.Const(Int(1)) == b.Const(Int(1)) {
		t.Error("constants were deduplicated")
	}
}

func TestDisassemble(t *testing.T) {
	inner := NewBuilder("inner").Params("a")
	inner.LoadFast("a").Op(OpReturnValue)

	b := NewBuilder("")
	b.LoadConst(inner.MustBuild()).LoadConst(Str("inner")).Emit(OpMakeFunction, 0).StoreName("inner")
	b.LoadName("inner").LoadConst(Int(7)).Call(1).Op(OpPopTop)
	b.Return()
	out := Disassemble(b.MustBuild())

	for _, want := range []string{
		"; === <module> ===",
		"<code inner>",
		"STORE_NAME",
		"; inner",
		"CALL_FUNCTION",
		"; === inner ===",
		"; Parameters: a",
		"LOAD_FAST",
		"; a",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
