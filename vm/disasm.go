package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of bc and the code blocks in
// its constants.
func Disassemble(bc *ByteCode) string {
	var sb strings.Builder
	disassemble(&sb, bc)
	return sb.String()
}

func disassemble(sb *strings.Builder, bc *ByteCode) {
	fmt.Fprintf(sb, "; === %s ===\n", bc.displayName())
	if len(bc.Params) > 0 {
		fmt.Fprintf(sb, "; Parameters: %s\n", strings.Join(bc.Params, ", "))
	}
	if len(bc.Globals) > 0 {
		fmt.Fprintf(sb, "; Globals: %s\n", strings.Join(bc.Globals, ", "))
	}
	if len(bc.Nonlocals) > 0 {
		fmt.Fprintf(sb, "; Nonlocals: %s\n", strings.Join(bc.Nonlocals, ", "))
	}
	if bc.IsGenerator {
		sb.WriteString("; Generator\n")
	}

	if len(bc.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range bc.Constants {
			fmt.Fprintf(sb, ";   [%3d] %s\n", i, constDisplay(c))
		}
	}

	sb.WriteString("; Code:\n")
	for pc, in := range bc.Instructions {
		fmt.Fprintf(sb, "%04d  %s\n", pc, disassembleInstruction(bc, pc, in))
	}

	for _, c := range bc.Constants {
		if sub, ok := c.(*ByteCode); ok {
			sb.WriteString("\n")
			disassemble(sb, sub)
		}
	}
}

func constDisplay(v Value) string {
	if sub, ok := v.(*ByteCode); ok {
		return "<code " + sub.displayName() + ">"
	}
	s := Repr(v)
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}

// disassembleInstruction formats one instruction with an annotation for
// indexed operands and jump targets.
func disassembleInstruction(bc *ByteCode, pc int, in Instruction) string {
	info, ok := in.Op.Info()
	if !ok {
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	}
	if !info.HasArg {
		return info.Name
	}
	base := fmt.Sprintf("%-22s %d", info.Name, in.Arg)
	note := ""
	switch in.Op {
	case OpLoadConst:
		if int(in.Arg) < len(bc.Constants) {
			note = constDisplay(bc.Constants[in.Arg])
		}
	case OpLoadName, OpStoreName, OpDeleteName, OpLoadGlobal, OpStoreGlobal, OpLoadAttr, OpStoreAttr:
		if int(in.Arg) < len(bc.Names) {
			note = bc.Names[in.Arg]
		}
	case OpLoadFast, OpStoreFast, OpDeleteFast:
		if int(in.Arg) < len(bc.Varnames) {
			note = bc.Varnames[in.Arg]
		}
	case OpCompareOp:
		note = CompareOp(in.Arg).String()
	}
	switch info.Jump {
	case JumpAbsolute:
		note = fmt.Sprintf("to %d", in.Arg)
	case JumpRelative:
		note = fmt.Sprintf("to %d", pc+1+int(in.Arg))
	}
	if note == "" {
		return base
	}
	return base + " ; " + note
}
