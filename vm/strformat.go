package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Format specs
// ---------------------------------------------------------------------------

// formatSpec is a parsed standard format specifier:
// [[fill]align][sign][0][width][,][.precision][type]
type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	zero      bool
	width     int
	comma     bool
	precision int // -1 when absent
	kind      byte
}

func parseFormatSpec(s string) (formatSpec, error) {
	spec := formatSpec{fill: ' ', precision: -1}
	isAlign := func(c byte) bool { return c == '<' || c == '>' || c == '^' || c == '=' }
	if r, size := utf8.DecodeRuneInString(s); size > 0 && size < len(s) && isAlign(s[size]) {
		spec.fill, spec.align = r, s[size]
		s = s[size+1:]
	} else if len(s) > 0 && isAlign(s[0]) {
		spec.align = s[0]
		s = s[1:]
	}
	if len(s) > 0 && (s[0] == '+' || s[0] == '-' || s[0] == ' ') {
		spec.sign = s[0]
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '0' {
		spec.zero = true
		s = s[1:]
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 {
		spec.width, _ = strconv.Atoi(s[:i])
		s = s[i:]
	}
	if len(s) > 0 && s[0] == ',' {
		spec.comma = true
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '.' {
		i = 1
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 1 {
			return spec, Raisef(ValueErrorClass, "Format specifier missing precision")
		}
		spec.precision, _ = strconv.Atoi(s[1:i])
		s = s[i:]
	}
	if len(s) > 1 {
		return spec, Raisef(ValueErrorClass, "Invalid format specifier")
	}
	if len(s) == 1 {
		spec.kind = s[0]
	}
	return spec, nil
}

// FormatValue implements FORMAT_VALUE and format(v, spec).
func (vm *VM) FormatValue(v Value, useRepr bool, spec string) (Value, error) {
	if useRepr {
		s, err := vm.repr(v)
		if err != nil {
			return nil, err
		}
		v = Str(s)
	}
	if inst, ok := v.(*Instance); ok {
		if r, found, err := vm.callDunder(inst, "__format__", Str(spec)); found {
			return r, err
		}
	}
	if spec == "" {
		s, err := vm.str(v)
		if err != nil {
			return nil, err
		}
		return Str(s), nil
	}
	fs, err := parseFormatSpec(spec)
	if err != nil {
		return nil, err
	}
	s, err := vm.applySpec(v, fs)
	if err != nil {
		return nil, err
	}
	return Str(s), nil
}

func (vm *VM) applySpec(v Value, fs formatSpec) (string, error) {
	numeric := IsNumeric(v)
	var body string
	switch {
	case fs.kind == 's' || (fs.kind == 0 && !numeric):
		if numeric && fs.kind == 's' {
			return "", Raisef(ValueErrorClass, "Unknown format code 's' for object of type '%s'", v.TypeName())
		}
		s, err := vm.str(v)
		if err != nil {
			return "", err
		}
		body = s
		if fs.precision >= 0 {
			if r := []rune(body); len(r) > fs.precision {
				body = string(r[:fs.precision])
			}
		}
		return pad(body, fs, '<'), nil
	case !numeric:
		return "", Raisef(ValueErrorClass, "Unknown format code '%c' for object of type '%s'", fs.kind, v.TypeName())
	}

	neg := false
	switch fs.kind {
	case 'd', 'x', 'X', 'o', 'b':
		if !IsIntLike(v) {
			return "", Raisef(ValueErrorClass, "Unknown format code '%c' for object of type '%s'", fs.kind, v.TypeName())
		}
		n := toBig(v)
		neg = n.Sign() < 0
		n.Abs(n)
		base := map[byte]int{'d': 10, 'x': 16, 'X': 16, 'o': 8, 'b': 2}[fs.kind]
		body = n.Text(base)
		if fs.kind == 'X' {
			body = strings.ToUpper(body)
		}
	case 'f', 'F', 'e', 'E', 'g', 'G', '%':
		f := toFloat(v)
		neg = math.Signbit(f) && !math.IsNaN(f)
		f = math.Abs(f)
		prec := fs.precision
		if prec < 0 {
			prec = 6
		}
		switch fs.kind {
		case '%':
			body = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
		case 'F':
			body = strings.ToUpper(strconv.FormatFloat(f, 'f', prec, 64))
		default:
			body = strconv.FormatFloat(f, fs.kind, prec, 64)
		}
		if math.IsInf(f, 0) {
			body = "inf"
		} else if math.IsNaN(f) {
			body = "nan"
		}
	case 0:
		if IsIntLike(v) {
			n := toBig(v)
			neg = n.Sign() < 0
			body = new(big.Int).Abs(n).String()
		} else {
			f := toFloat(v)
			neg = math.Signbit(f) && !math.IsNaN(f)
			if fs.precision >= 0 {
				body = strconv.FormatFloat(math.Abs(f), 'g', fs.precision, 64)
			} else {
				body = formatFloat(math.Abs(f))
			}
		}
	default:
		return "", Raisef(ValueErrorClass, "Unknown format code '%c' for object of type '%s'", fs.kind, v.TypeName())
	}

	if fs.comma {
		body = groupThousands(body)
	}
	sign := ""
	switch {
	case neg:
		sign = "-"
	case fs.sign == '+':
		sign = "+"
	case fs.sign == ' ':
		sign = " "
	}
	if fs.zero && fs.align == 0 {
		fs.fill, fs.align = '0', '='
	}
	if fs.align == '=' {
		if n := fs.width - len(sign) - utf8.RuneCountInString(body); n > 0 {
			body = strings.Repeat(string(fs.fill), n) + body
		}
		return sign + body, nil
	}
	return pad(sign+body, fs, '>'), nil
}

// groupThousands inserts commas into the integer part of a digit string.
func groupThousands(s string) string {
	end := strings.IndexAny(s, ".eE%")
	if end < 0 {
		end = len(s)
	}
	intPart, rest := s[:end], s[end:]
	if len(intPart) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + rest
}

func pad(s string, fs formatSpec, defaultAlign byte) string {
	n := fs.width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	fill := string(fs.fill)
	align := fs.align
	if align == 0 {
		align = defaultAlign
	}
	switch align {
	case '<':
		return s + strings.Repeat(fill, n)
	case '^':
		return strings.Repeat(fill, n/2) + s + strings.Repeat(fill, n-n/2)
	}
	return strings.Repeat(fill, n) + s
}

// ---------------------------------------------------------------------------
// str.format
// ---------------------------------------------------------------------------

// strFormat implements str.format with automatic, positional and keyword
// fields.
func (vm *VM) strFormat(tmpl string, args []Value, kwargs *Dict) (Value, error) {
	var b strings.Builder
	auto := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '}' {
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
			continue
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			return nil, Raisef(ValueErrorClass, "Single '{' encountered in format string")
		}
		field := tmpl[i+1 : i+end]
		i += end

		name, spec, _ := strings.Cut(field, ":")
		useRepr := false
		if n, conv, ok := strings.Cut(name, "!"); ok {
			name, useRepr = n, conv == "r"
		}
		var v Value
		switch {
		case name == "":
			if auto >= len(args) {
				return nil, Raisef(IndexErrorClass, "Replacement index %d out of range for positional args tuple", auto)
			}
			v = args[auto]
			auto++
		case name[0] >= '0' && name[0] <= '9':
			idx, err := strconv.Atoi(name)
			if err != nil || idx >= len(args) {
				return nil, Raisef(IndexErrorClass, "Replacement index %s out of range for positional args tuple", name)
			}
			v = args[idx]
		default:
			var ok bool
			if kwargs != nil {
				v, ok = kwargs.Get(Str(name))
			}
			if !ok {
				return nil, Raisef(KeyErrorClass, "'%s'", name)
			}
		}
		r, err := vm.FormatValue(v, useRepr, spec)
		if err != nil {
			return nil, err
		}
		s, err := vm.str(r)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return Str(b.String()), nil
}

// ---------------------------------------------------------------------------
// printf-style formatting
// ---------------------------------------------------------------------------

// percentFormat implements str % args.
func (vm *VM) percentFormat(tmpl string, arg Value) (Value, error) {
	var args []Value
	var mapping *Dict
	switch x := arg.(type) {
	case *List:
		if x.Tuple {
			args = x.Items
		} else {
			args = []Value{x}
		}
	case *Dict:
		mapping = x
		args = []Value{x}
	default:
		args = []Value{arg}
	}

	var b strings.Builder
	next := 0
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' {
			b.WriteByte(tmpl[i])
			continue
		}
		i++
		if i >= len(tmpl) {
			return nil, Raisef(ValueErrorClass, "incomplete format")
		}
		if tmpl[i] == '%' {
			b.WriteByte('%')
			continue
		}
		var v Value
		if tmpl[i] == '(' && mapping != nil {
			end := strings.IndexByte(tmpl[i:], ')')
			if end < 0 {
				return nil, Raisef(ValueErrorClass, "incomplete format key")
			}
			key := Str(tmpl[i+1 : i+end])
			var ok bool
			if v, ok = mapping.Get(key); !ok {
				return nil, Raisef(KeyErrorClass, "%s", Repr(key))
			}
			i += end + 1
		}
		start := i
		for i < len(tmpl) && strings.IndexByte("-+ 0#.0123456789", tmpl[i]) >= 0 {
			i++
		}
		if i >= len(tmpl) {
			return nil, Raisef(ValueErrorClass, "incomplete format")
		}
		flags, conv := tmpl[start:i], tmpl[i]
		if v == nil {
			if next >= len(args) {
				return nil, Raisef(TypeErrorClass, "not enough arguments for format string")
			}
			v = args[next]
			next++
		}
		s, err := vm.percentOne(flags, conv, v)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	if mapping == nil && next < len(args) {
		return nil, Raisef(TypeErrorClass, "not all arguments converted during string formatting")
	}
	return Str(b.String()), nil
}

func (vm *VM) percentOne(flags string, conv byte, v Value) (string, error) {
	left := strings.HasPrefix(flags, "-")
	flags = strings.TrimLeft(flags, "-")
	switch conv {
	case 's':
		s, err := vm.str(v)
		if err != nil {
			return "", err
		}
		return percentPad(s, flags, left), nil
	case 'r':
		s, err := vm.repr(v)
		if err != nil {
			return "", err
		}
		return percentPad(s, flags, left), nil
	case 'd', 'i', 'f', 'F', 'e', 'E', 'g', 'G', 'x', 'X', 'o':
		if !IsNumeric(v) {
			return "", Raisef(TypeErrorClass, "%%%c format: a real number is required, not %s", conv, v.TypeName())
		}
		kind := conv
		if conv == 'i' || conv == 'd' {
			kind = 'd'
			if f, ok := v.(Float); ok {
				n, _ := big.NewFloat(math.Trunc(float64(f))).Int(nil)
				v = NewBigInt(n)
			}
		} else if (conv == 'x' || conv == 'X' || conv == 'o') && !IsIntLike(v) {
			return "", Raisef(TypeErrorClass, "%%%c format: an integer is required, not %s", conv, v.TypeName())
		}
		fs, err := parseFormatSpec(flags + string(kind))
		if err != nil {
			return "", err
		}
		s, err := vm.applySpec(v, fs)
		if err != nil {
			return "", err
		}
		if left {
			s = strings.TrimLeft(s, " ")
			return percentPad(s, flags, true), nil
		}
		return s, nil
	}
	return "", Raisef(ValueErrorClass, "unsupported format character '%c'", conv)
}

func percentPad(s, flags string, left bool) string {
	width, _ := strconv.Atoi(strings.TrimLeft(strings.SplitN(flags, ".", 2)[0], "+ 0#"))
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	if left {
		return s + strings.Repeat(" ", n)
	}
	return strings.Repeat(" ", n) + s
}
