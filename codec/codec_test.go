package codec

import (
	"bytes"
	"compress/gzip"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/chazu/pyrite/vm"
)

// sample assembles a module that defines and calls a function, carrying a
// constant of every serializable kind.
func sample() *vm.ByteCode {
	big30, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	fb := vm.NewBuilder("describe").Params("x", "*rest")
	fb.LoadName("print").LoadFast("x").Call(1).Op(vm.OpPopTop)
	fb.LoadFast("x").Op(vm.OpReturnValue)
	fn := fb.MustBuild()

	b := vm.NewBuilder("")
	b.LoadConst(fn).LoadConst(vm.Str("describe")).Emit(vm.OpMakeFunction, 0).StoreName("describe")
	for _, c := range []vm.Value{
		vm.None,
		vm.Bool(true),
		vm.Int(-42),
		vm.NewBigInt(big30),
		vm.Float(2.5),
		vm.Float(1),
		vm.Float(math.Inf(-1)),
		vm.Float(1e-7),
		vm.Str("héllo \"world\""),
		vm.NewTuple(vm.Int(1), vm.NewTuple(vm.Float(2))),
		vm.NewTuple(),
	} {
		b.LoadName("describe").LoadConst(c).Call(1).Op(vm.OpPopTop)
	}
	b.Return()
	return b.MustBuild()
}

func sameValue(a, b vm.Value) bool {
	ca, okA := a.(*vm.ByteCode)
	cb, okB := b.(*vm.ByteCode)
	if okA || okB {
		return okA && okB && sameCode(ca, cb)
	}
	return a.TypeName() == b.TypeName() && vm.Repr(a) == vm.Repr(b)
}

func sameCode(a, b *vm.ByteCode) bool {
	if a.Name != b.Name || a.IsGenerator != b.IsGenerator ||
		len(a.Instructions) != len(b.Instructions) || len(a.Constants) != len(b.Constants) ||
		strings.Join(a.Names, ",") != strings.Join(b.Names, ",") ||
		strings.Join(a.Varnames, ",") != strings.Join(b.Varnames, ",") ||
		strings.Join(a.Params, ",") != strings.Join(b.Params, ",") {
		return false
	}
	for i := range a.Instructions {
		if a.Instructions[i] != b.Instructions[i] {
			return false
		}
	}
	for i := range a.Constants {
		if !sameValue(a.Constants[i], b.Constants[i]) {
			return false
		}
	}
	return true
}

func output(t *testing.T, bc *vm.ByteCode) string {
	t.Helper()
	v := vm.NewVM()
	var out bytes.Buffer
	v.Stdout = &out
	if _, err := v.Execute(bc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return out.String()
}

func TestRoundTrip(t *testing.T) {
	codecs := []struct {
		name   string
		encode func(*vm.ByteCode) ([]byte, error)
		format Format
	}{
		{"json", MarshalJSON, FormatJSON},
		{"cbor", EncodeCBOR, FormatCBOR},
	}

	for _, c := range codecs {
		t.Run(c.name, func(t *testing.T) {
			bc := sample()
			data, err := c.encode(bc)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if got := Detect(data); got != c.format {
				t.Errorf("Detect = %s, want %s", got, c.format)
			}
			decoded, format, err := Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if format != c.format {
				t.Errorf("format = %s, want %s", format, c.format)
			}
			if !sameCode(bc, decoded) {
				t.Fatalf("decoded program differs from the encoded one")
			}
			if got, want := output(t, decoded), output(t, sample()); got != want {
				t.Errorf("decoded output = %q, want %q", got, want)
			}
		})
	}
}

func TestFloatsSurviveEncoding(t *testing.T) {
	codecs := []struct {
		name   string
		encode func(*vm.ByteCode) ([]byte, error)
	}{
		{"json", MarshalJSON},
		{"cbor", EncodeCBOR},
	}

	for _, c := range codecs {
		t.Run(c.name, func(t *testing.T) {
			for _, f := range []float64{0, 1, -3, 1e300, math.NaN(), math.Inf(1), math.Copysign(0, -1)} {
				b := vm.NewBuilder("")
				b.LoadConst(vm.Float(f)).Op(vm.OpReturnValue)
				data, err := c.encode(b.MustBuild())
				if err != nil {
					t.Fatalf("encode(%v): %v", f, err)
				}
				bc, _, err := Decode(bytes.NewReader(data))
				if err != nil {
					t.Fatalf("Decode(%v): %v", f, err)
				}
				got, ok := bc.Constants[0].(vm.Float)
				if !ok {
					t.Errorf("%v decoded as %s", f, bc.Constants[0].TypeName())
					continue
				}
				if vm.Repr(got) != vm.Repr(vm.Float(f)) || math.Signbit(float64(got)) != math.Signbit(f) {
					t.Errorf("%v decoded as %v", f, got)
				}
			}
		})
	}
}

func TestCBORIsCanonical(t *testing.T) {
	a, err := EncodeCBOR(sample())
	if err != nil {
		t.Fatalf("EncodeCBOR: %v", err)
	}
	b, err := EncodeCBOR(sample())
	if err != nil {
		t.Fatalf("EncodeCBOR: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same program differ")
	}
}

// compatProgram prints 123456789012345678901234567890 + 1.
const compatProgram = `{
  "instructions": [
    {"opcode": 17, "arg": 0},
    {"opcode": 16, "arg": 0},
    {"opcode": 16, "arg": 1},
    {"opcode": 48},
    {"opcode": 145, "arg": 1},
    {"opcode": 1},
    {"opcode": 16, "arg": 2},
    {"opcode": 147}
  ],
  "constants": [{"__type": "bigint", "value": "123456789012345678901234567890"}, 1, null],
  "names": ["print"]
}`

func TestDecodeHandWrittenJSON(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write([]byte(compatProgram))
	w.Close()

	inputs := map[string][]byte{
		"plain":   []byte(compatProgram),
		"gzipped": gz.Bytes(),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			bc, format, err := Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if format != FormatJSON {
				t.Errorf("format = %s, want json", format)
			}
			if c, ok := bc.Constants[1].(vm.Int); !ok || c != 1 {
				t.Errorf("constant 1 = %#v, want Int(1)", bc.Constants[1])
			}
			if bc.Constants[2] != vm.None {
				t.Errorf("constant 2 = %#v, want None", bc.Constants[2])
			}
			if got := output(t, bc); got != "123456789012345678901234567891\n" {
				t.Errorf("output = %q", got)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want error
	}{
		{"unknown tag", `{"instructions": [], "constants": [{"__type": "set"}], "names": []}`, ErrMalformed},
		{"bad bigint", `{"instructions": [], "constants": [{"__type": "bigint", "value": "12x"}], "names": []}`, ErrMalformed},
		{"bad float", `{"instructions": [], "constants": [{"__type": "float", "value": "one"}], "names": []}`, ErrMalformed},
		{"name out of range", `{"instructions": [{"opcode": 17, "arg": 3}], "constants": [], "names": ["x"]}`, vm.ErrBadOperand},
		{"unknown opcode", `{"instructions": [{"opcode": 65535}], "constants": [], "names": []}`, vm.ErrUnknownOpcode},
		{"bad nested code", `{"instructions": [], "constants": [{"__type": "code", "value": {"instructions": [{"opcode": 16, "arg": 0}], "constants": [], "names": []}}], "names": []}`, vm.ErrBadOperand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON(strings.NewReader(tt.json))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeRejectsRuntimeValues(t *testing.T) {
	for _, c := range []vm.Value{vm.NewList(vm.Int(1)), vm.NewDict(), vm.NewTuple(vm.NewSet())} {
		bc := &vm.ByteCode{Constants: []vm.Value{c}}
		if _, err := EncodeCBOR(bc); !errors.Is(err, ErrUnsupportedConstant) {
			t.Errorf("EncodeCBOR(%s) err = %v, want ErrUnsupportedConstant", vm.Repr(c), err)
		}
		if _, err := MarshalJSON(bc); !errors.Is(err, ErrUnsupportedConstant) {
			t.Errorf("MarshalJSON(%s) err = %v, want ErrUnsupportedConstant", vm.Repr(c), err)
		}
	}
}
