// Package codec serializes compiled programs.
//
// Two encodings share one wire structure. The JSON encoding is gzip
// compressed and tags values that JSON cannot carry:
//
//	{"__type": "bigint", "value": "<decimal>"}
//	{"__type": "float",  "value": "1.0"}     integral, nan and inf floats
//	{"__type": "tuple",  "items": [...]}
//	{"__type": "code",   "value": {...}}     nested code blocks
//
// null decodes to None. The CBOR encoding uses canonical mode, so the same
// program always encodes to the same bytes.
package codec

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/chazu/pyrite/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pyrite.codec")

var (
	// ErrUnsupportedConstant is returned when a constant has a type that
	// cannot appear in compiled code.
	ErrUnsupportedConstant = errors.New("codec: unsupported constant")

	// ErrMalformed is returned for input that decodes but does not describe
	// a program.
	ErrMalformed = errors.New("codec: malformed program")
)

// wireCode is the serialized form of a vm.ByteCode.
type wireCode struct {
	Name         string            `json:"name,omitempty" cbor:"1,keyasint,omitempty"`
	Instructions []wireInstruction `json:"instructions" cbor:"2,keyasint"`
	Constants    []wireConst       `json:"constants" cbor:"3,keyasint"`
	Names        []string          `json:"names" cbor:"4,keyasint"`
	Varnames     []string          `json:"varnames,omitempty" cbor:"5,keyasint,omitempty"`
	Params       []string          `json:"params,omitempty" cbor:"6,keyasint,omitempty"`
	Globals      []string          `json:"globals,omitempty" cbor:"7,keyasint,omitempty"`
	Nonlocals    []string          `json:"nonlocals,omitempty" cbor:"8,keyasint,omitempty"`
	IsGenerator  bool              `json:"isGenerator,omitempty" cbor:"9,keyasint,omitempty"`
}

type wireInstruction struct {
	Opcode uint16 `json:"opcode" cbor:"1,keyasint"`
	Arg    int32  `json:"arg,omitempty" cbor:"2,keyasint,omitempty"`
}

type constKind uint8

const (
	constNone constKind = iota
	constBool
	constInt
	constBigInt
	constFloat
	constStr
	constTuple
	constCode
)

// wireConst is one constant. CBOR encodes the struct directly; JSON goes
// through MarshalJSON and UnmarshalJSON.
type wireConst struct {
	Kind  constKind   `cbor:"1,keyasint"`
	Bool  bool        `cbor:"2,keyasint,omitempty"`
	Int   int64       `cbor:"3,keyasint,omitempty"`
	Float float64     `cbor:"4,keyasint"`
	Str   string      `cbor:"5,keyasint,omitempty"` // string, or bigint digits
	Items []wireConst `cbor:"6,keyasint,omitempty"`
	Code  *wireCode   `cbor:"7,keyasint,omitempty"`
}

func toWire(bc *vm.ByteCode) (*wireCode, error) {
	w := &wireCode{
		Name:         bc.Name,
		Instructions: make([]wireInstruction, len(bc.Instructions)),
		Constants:    make([]wireConst, len(bc.Constants)),
		Names:        nonNil(bc.Names),
		Varnames:     bc.Varnames,
		Params:       bc.Params,
		Globals:      bc.Globals,
		Nonlocals:    bc.Nonlocals,
		IsGenerator:  bc.IsGenerator,
	}
	for i, in := range bc.Instructions {
		w.Instructions[i] = wireInstruction{Opcode: uint16(in.Op), Arg: in.Arg}
	}
	for i, c := range bc.Constants {
		wc, err := constToWire(c)
		if err != nil {
			return nil, fmt.Errorf("%s: constant %d: %w", displayName(bc.Name), i, err)
		}
		w.Constants[i] = wc
	}
	return w, nil
}

func constToWire(v vm.Value) (wireConst, error) {
	switch x := v.(type) {
	case vm.NoneType:
		return wireConst{Kind: constNone}, nil
	case vm.Bool:
		return wireConst{Kind: constBool, Bool: bool(x)}, nil
	case vm.Int:
		return wireConst{Kind: constInt, Int: int64(x)}, nil
	case *vm.BigInt:
		return wireConst{Kind: constBigInt, Str: x.Big().String()}, nil
	case vm.Float:
		return wireConst{Kind: constFloat, Float: float64(x)}, nil
	case vm.Str:
		return wireConst{Kind: constStr, Str: string(x)}, nil
	case *vm.List:
		if !x.Tuple {
			break
		}
		items := make([]wireConst, len(x.Items))
		for i, item := range x.Items {
			wc, err := constToWire(item)
			if err != nil {
				return wireConst{}, err
			}
			items[i] = wc
		}
		return wireConst{Kind: constTuple, Items: items}, nil
	case *vm.ByteCode:
		code, err := toWire(x)
		if err != nil {
			return wireConst{}, err
		}
		return wireConst{Kind: constCode, Code: code}, nil
	}
	return wireConst{}, fmt.Errorf("%w: %s", ErrUnsupportedConstant, v.TypeName())
}

// fromWire rebuilds and validates a code block and every code block nested
// in its constants.
func fromWire(w *wireCode) (*vm.ByteCode, error) {
	bc := &vm.ByteCode{
		Name:         w.Name,
		Instructions: make([]vm.Instruction, len(w.Instructions)),
		Constants:    make([]vm.Value, len(w.Constants)),
		Names:        w.Names,
		Varnames:     w.Varnames,
		Params:       w.Params,
		Globals:      w.Globals,
		Nonlocals:    w.Nonlocals,
		IsGenerator:  w.IsGenerator,
	}
	for i, in := range w.Instructions {
		bc.Instructions[i] = vm.Instruction{Op: vm.Opcode(in.Opcode), Arg: in.Arg}
	}
	for i, c := range w.Constants {
		v, err := constFromWire(c)
		if err != nil {
			return nil, fmt.Errorf("%s: constant %d: %w", displayName(w.Name), i, err)
		}
		bc.Constants[i] = v
	}
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	return bc, nil
}

func constFromWire(c wireConst) (vm.Value, error) {
	switch c.Kind {
	case constNone:
		return vm.None, nil
	case constBool:
		return vm.Bool(c.Bool), nil
	case constInt:
		return vm.Int(c.Int), nil
	case constBigInt:
		x, ok := new(big.Int).SetString(c.Str, 10)
		if !ok {
			return nil, fmt.Errorf("%w: bad bigint %q", ErrMalformed, c.Str)
		}
		return vm.NewBigInt(x), nil
	case constFloat:
		return vm.Float(c.Float), nil
	case constStr:
		return vm.Str(c.Str), nil
	case constTuple:
		items := make([]vm.Value, len(c.Items))
		for i, item := range c.Items {
			v, err := constFromWire(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return vm.NewTuple(items...), nil
	case constCode:
		if c.Code == nil {
			return nil, fmt.Errorf("%w: empty code constant", ErrMalformed)
		}
		return fromWire(c.Code)
	}
	return nil, fmt.Errorf("%w: constant kind %d", ErrMalformed, c.Kind)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func displayName(name string) string {
	if name == "" {
		return "<module>"
	}
	return name
}
