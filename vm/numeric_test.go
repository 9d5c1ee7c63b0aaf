package vm

import (
	"errors"
	"math"
	"math/big"
	"testing"
)

func TestApplyBinaryIntegers(t *testing.T) {
	vm := NewVM()
	tests := []struct {
		name string
		op   BinaryOp
		a, b Value
		want string
	}{
		{"add", BinAdd, Int(2), Int(3), "5"},
		{"floor mod negative dividend", BinMod, Int(-7), Int(3), "2"},
		{"floor mod negative divisor", BinMod, Int(7), Int(-3), "-2"},
		{"floor div rounds down", BinFloorDiv, Int(7), Int(-2), "-4"},
		{"true division", BinDiv, Int(1), Int(2), "0.5"},
		{"integral division stays float", BinDiv, Int(4), Int(2), "2.0"},
		{"bool is int-like", BinAdd, Bool(true), Int(1), "2"},
		{"add overflows to big", BinAdd, Int(math.MaxInt64), Int(1), "9223372036854775808"},
		{"mul overflows to big", BinMul, Int(math.MaxInt64), Int(2), "18446744073709551614"},
		{"pow", BinPow, Int(2), Int(100), "1267650600228229401496703205376"},
		{"negative pow is float", BinPow, Int(2), Int(-1), "0.5"},
		{"shift", BinLShift, Int(1), Int(70), "1180591620717411303424"},
		{"int float promotion", BinAdd, Int(1), Float(0.5), "1.5"},
		{"float floor mod", BinMod, Float(-7), Float(3), "2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.ApplyBinary(tt.op, tt.a, tt.b)
			if err != nil {
				t.Fatalf("ApplyBinary: %v", err)
			}
			if s := Repr(got); s != tt.want {
				t.Errorf("%s %s %s = %s, want %s", Repr(tt.a), tt.op, Repr(tt.b), s, tt.want)
			}
		})
	}
}

func TestBigIntNormalizesBack(t *testing.T) {
	vm := NewVM()
	big1, err := vm.ApplyBinary(BinAdd, Int(math.MaxInt64), Int(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := big1.(*BigInt); !ok {
		t.Fatalf("MaxInt64+1 is %T, want *BigInt", big1)
	}
	back, err := vm.ApplyBinary(BinSub, big1, Int(1))
	if err != nil {
		t.Fatal(err)
	}
	if back != Int(math.MaxInt64) {
		t.Errorf("(MaxInt64+1)-1 = %#v, want Int(MaxInt64)", back)
	}
	if v := NewBigInt(big.NewInt(5)); v != Int(5) {
		t.Errorf("NewBigInt(5) = %#v, want Int(5)", v)
	}
}

func TestZeroDivision(t *testing.T) {
	vm := NewVM()
	for _, op := range []BinaryOp{BinDiv, BinFloorDiv, BinMod} {
		_, err := vm.ApplyBinary(op, Int(1), Int(0))
		exc, ok := AsException(err)
		if !ok || !exc.Matches(ZeroDivisionErrorClass) {
			t.Errorf("1 %s 0: err = %v, want ZeroDivisionError", op, err)
		}
	}
}

func TestUnsupportedOperands(t *testing.T) {
	vm := NewVM()
	_, err := vm.ApplyBinary(BinSub, Str("a"), Int(1))
	exc, ok := AsException(err)
	if !ok || !exc.Matches(TypeErrorClass) {
		t.Fatalf("'a' - 1: err = %v, want TypeError", err)
	}
}

func TestOverflowHelpers(t *testing.T) {
	if _, ok := AddInt64(math.MaxInt64, 1); ok {
		t.Error("AddInt64 did not report overflow")
	}
	if _, ok := SubInt64(math.MinInt64, 1); ok {
		t.Error("SubInt64 did not report overflow")
	}
	if _, ok := MulInt64(math.MinInt64, -1); ok {
		t.Error("MulInt64(MinInt64, -1) did not report overflow")
	}
	if r, ok := MulInt64(-3, 4); !ok || r != -12 {
		t.Errorf("MulInt64(-3, 4) = %d, %v", r, ok)
	}
}

func TestNumericCompare(t *testing.T) {
	if !NumericEquals(Int(1), Float(1.0)) {
		t.Error("1 != 1.0")
	}
	if !NumericEquals(Bool(true), Int(1)) {
		t.Error("True != 1")
	}
	if NumericEquals(Float(math.NaN()), Float(math.NaN())) {
		t.Error("nan == nan")
	}
	if _, ok := NumericCompare(Float(math.NaN()), Int(1)); ok {
		t.Error("nan compared as ordered")
	}
	huge := NewBigInt(new(big.Int).Lsh(big.NewInt(1), 80))
	if c, ok := NumericCompare(huge, Int(math.MaxInt64)); !ok || c != 1 {
		t.Errorf("2**80 vs MaxInt64 = %d, %v", c, ok)
	}
}

func TestFloatRepr(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{1, "1.0"},
		{0.1, "0.1"},
		{-2.5, "-2.5"},
		{1e16, "1e+16"},
		{1.5e-5, "1.5e-05"},
		{math.Inf(1), "inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		if got := Repr(Float(tt.f)); got != tt.want {
			t.Errorf("Repr(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	vm := NewVM()
	r, err := vm.ApplyCompare(CmpLT, NewTuple(Int(1), Int(2)), NewTuple(Int(1), Int(3)))
	if err != nil || r != Bool(true) {
		t.Errorf("(1, 2) < (1, 3) = %v, %v", r, err)
	}
	_, err = vm.ApplyCompare(CmpLT, Int(1), Str("a"))
	if exc, ok := AsException(err); !ok || !exc.Matches(TypeErrorClass) {
		t.Errorf("1 < 'a': err = %v, want TypeError", err)
	}
	if !errors.Is(err, Raisef(TypeErrorClass, "")) {
		t.Errorf("errors.Is did not match TypeError")
	}
}
