package vm

import (
	"math"
	"math/big"
	"math/bits"
	"strconv"
)

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// toBig converts an int-like value to a fresh big.Int.
func toBig(v Value) *big.Int {
	switch x := v.(type) {
	case Bool:
		if x {
			return big.NewInt(1)
		}
		return big.NewInt(0)
	case Int:
		return big.NewInt(int64(x))
	case *BigInt:
		return new(big.Int).Set(x.v)
	}
	return new(big.Int)
}

// toFloat converts a numeric value to float64.
func toFloat(v Value) float64 {
	switch x := v.(type) {
	case Bool:
		if x {
			return 1
		}
		return 0
	case Int:
		return float64(x)
	case *BigInt:
		f, _ := new(big.Float).SetInt(x.v).Float64()
		return f
	case Float:
		return float64(x)
	}
	return math.NaN()
}

// smallInt returns v as an int64 when it is a bool or Int.
func smallInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case Int:
		return int64(x), true
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsInt returns v as an int64 if v is an int-like value that fits.
func AsInt(v Value) (int64, bool) {
	if n, ok := smallInt(v); ok {
		return n, true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Overflow-checked machine arithmetic
// ---------------------------------------------------------------------------

// AddInt64 returns a+b and whether the sum fits in int64.
func AddInt64(a, b int64) (int64, bool) {
	c := a + b
	return c, (a^c)&(b^c) >= 0
}

// SubInt64 returns a-b and whether the difference fits in int64.
func SubInt64(a, b int64) (int64, bool) {
	c := a - b
	return c, (a^b)&(a^c) >= 0
}

// MulInt64 returns a*b and whether the product fits in int64.
func MulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absU(a), absU(b))
	if hi != 0 {
		return 0, false
	}
	if neg {
		if lo > 1<<63 {
			return 0, false
		}
		return int64(-lo), true
	}
	if lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

func absU(a int64) uint64 {
	if a < 0 {
		return uint64(-a)
	}
	return uint64(a)
}

// floorDivInt64 divides rounding toward negative infinity. b must be non-zero
// and the pair must not be (MinInt64, -1).
func floorDivInt64(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// floorModInt64 returns a modulo b with the sign of b.
func floorModInt64(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// ---------------------------------------------------------------------------
// Numeric tower
// ---------------------------------------------------------------------------

// NumericEquals compares two numeric values. Either side being float-like
// promotes the comparison to float64, where NaN is never equal. Otherwise the
// comparison is exact.
func NumericEquals(a, b Value) bool {
	if IsFloatLike(a) || IsFloatLike(b) {
		x, y := toFloat(a), toFloat(b)
		return !math.IsNaN(x) && !math.IsNaN(y) && x == y
	}
	if x, ok := smallInt(a); ok {
		if y, ok := smallInt(b); ok {
			return x == y
		}
	}
	return toBig(a).Cmp(toBig(b)) == 0
}

// NumericCompare orders two numeric values. The second result is false when
// the values are unordered (a NaN is involved).
func NumericCompare(a, b Value) (int, bool) {
	if IsFloatLike(a) || IsFloatLike(b) {
		x, y := toFloat(a), toFloat(b)
		switch {
		case math.IsNaN(x) || math.IsNaN(y):
			return 0, false
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if x, ok := smallInt(a); ok {
		if y, ok := smallInt(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	}
	return toBig(a).Cmp(toBig(b)), true
}

// numericBinary applies an arithmetic operator to two numeric operands.
func numericBinary(op BinaryOp, a, b Value) (Value, error) {
	if IsFloatLike(a) || IsFloatLike(b) {
		return floatBinary(op, toFloat(a), toFloat(b))
	}
	if x, ok := smallInt(a); ok {
		if y, ok := smallInt(b); ok {
			if v, ok, err := intBinary(op, x, y); ok || err != nil {
				return v, err
			}
		}
	}
	return bigBinary(op, toBig(a), toBig(b))
}

// intBinary is the machine-integer path. It reports false when the result
// needs arbitrary precision.
func intBinary(op BinaryOp, x, y int64) (Value, bool, error) {
	switch op {
	case BinAdd:
		r, ok := AddInt64(x, y)
		return Int(r), ok, nil
	case BinSub:
		r, ok := SubInt64(x, y)
		return Int(r), ok, nil
	case BinMul:
		r, ok := MulInt64(x, y)
		return Int(r), ok, nil
	case BinDiv:
		if y == 0 {
			return nil, false, Raisef(ZeroDivisionErrorClass, "division by zero")
		}
		return Float(float64(x) / float64(y)), true, nil
	case BinFloorDiv:
		if y == 0 {
			return nil, false, Raisef(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return nil, false, nil
		}
		return Int(floorDivInt64(x, y)), true, nil
	case BinMod:
		if y == 0 {
			return nil, false, Raisef(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		if y == -1 {
			return Int(0), true, nil
		}
		return Int(floorModInt64(x, y)), true, nil
	case BinPow:
		if y < 0 {
			if x == 0 {
				return nil, false, Raisef(ZeroDivisionErrorClass, "0.0 cannot be raised to a negative power")
			}
			return Float(math.Pow(float64(x), float64(y))), true, nil
		}
		return nil, false, nil
	case BinAnd:
		return Int(x & y), true, nil
	case BinOr:
		return Int(x | y), true, nil
	case BinXor:
		return Int(x ^ y), true, nil
	case BinLShift:
		if y < 0 {
			return nil, false, Raisef(ValueErrorClass, "negative shift count")
		}
		if y < 63 {
			r := x << uint(y)
			if r>>uint(y) == x {
				return Int(r), true, nil
			}
		}
		return nil, false, nil
	case BinRShift:
		if y < 0 {
			return nil, false, Raisef(ValueErrorClass, "negative shift count")
		}
		if y > 63 {
			y = 63
		}
		return Int(x >> uint(y)), true, nil
	}
	return nil, false, nil
}

// maxShift bounds left shifts so a typo cannot exhaust memory.
const maxShift = 1 << 20

func bigBinary(op BinaryOp, x, y *big.Int) (Value, error) {
	r := new(big.Int)
	switch op {
	case BinAdd:
		r.Add(x, y)
	case BinSub:
		r.Sub(x, y)
	case BinMul:
		r.Mul(x, y)
	case BinDiv:
		if y.Sign() == 0 {
			return nil, Raisef(ZeroDivisionErrorClass, "division by zero")
		}
		q, _ := new(big.Rat).SetFrac(x, y).Float64()
		return Float(q), nil
	case BinFloorDiv, BinMod:
		if y.Sign() == 0 {
			return nil, Raisef(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		q, m := new(big.Int).QuoRem(x, y, new(big.Int))
		if m.Sign() != 0 && (m.Sign() < 0) != (y.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
			m.Add(m, y)
		}
		if op == BinMod {
			return NewBigInt(m), nil
		}
		return NewBigInt(q), nil
	case BinPow:
		if y.Sign() < 0 {
			if x.Sign() == 0 {
				return nil, Raisef(ZeroDivisionErrorClass, "0.0 cannot be raised to a negative power")
			}
			xf, _ := new(big.Float).SetInt(x).Float64()
			yf, _ := new(big.Float).SetInt(y).Float64()
			return Float(math.Pow(xf, yf)), nil
		}
		r.Exp(x, y, nil)
	case BinAnd:
		r.And(x, y)
	case BinOr:
		r.Or(x, y)
	case BinXor:
		r.Xor(x, y)
	case BinLShift:
		if y.Sign() < 0 {
			return nil, Raisef(ValueErrorClass, "negative shift count")
		}
		if !y.IsInt64() || y.Int64() > maxShift {
			return nil, Raisef(OverflowErrorClass, "shift count too large")
		}
		r.Lsh(x, uint(y.Int64()))
	case BinRShift:
		if y.Sign() < 0 {
			return nil, Raisef(ValueErrorClass, "negative shift count")
		}
		if !y.IsInt64() {
			if x.Sign() < 0 {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		r.Rsh(x, uint(y.Int64()))
	default:
		return nil, Raisef(TypeErrorClass, "unsupported operand for %s", op)
	}
	return NewBigInt(r), nil
}

func floatBinary(op BinaryOp, x, y float64) (Value, error) {
	switch op {
	case BinAdd:
		return Float(x + y), nil
	case BinSub:
		return Float(x - y), nil
	case BinMul:
		return Float(x * y), nil
	case BinDiv:
		if y == 0 {
			return nil, Raisef(ZeroDivisionErrorClass, "float division by zero")
		}
		return Float(x / y), nil
	case BinFloorDiv:
		if y == 0 {
			return nil, Raisef(ZeroDivisionErrorClass, "float floor division by zero")
		}
		return Float(math.Floor(x / y)), nil
	case BinMod:
		if y == 0 {
			return nil, Raisef(ZeroDivisionErrorClass, "float modulo")
		}
		return Float(x - math.Floor(x/y)*y), nil
	case BinPow:
		if x == 0 && y < 0 {
			return nil, Raisef(ZeroDivisionErrorClass, "0.0 cannot be raised to a negative power")
		}
		return Float(math.Pow(x, y)), nil
	}
	return nil, Raisef(TypeErrorClass, "unsupported operand type(s) for %s: 'float' and 'float'", op)
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// formatFloat renders f the way Python's repr does.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f == math.Trunc(f) {
		s += ".0"
	}
	return s
}

// numericKey renders a numeric value so that equal numbers of any type
// produce the same string.
func numericKey(v Value) string {
	switch x := v.(type) {
	case Bool:
		if x {
			return "1"
		}
		return "0"
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case *BigInt:
		return x.v.String()
	case Float:
		f := float64(x)
		if math.IsNaN(f) {
			return "nan"
		}
		if math.IsInf(f, 0) || f != math.Trunc(f) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		if math.Abs(f) < 1<<63 {
			return strconv.FormatInt(int64(f), 10)
		}
		i, _ := big.NewFloat(f).Int(nil)
		return i.String()
	}
	return ""
}
