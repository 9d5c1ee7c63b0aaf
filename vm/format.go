package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Repr returns the Python repr of v.
func Repr(v Value) string {
	var b strings.Builder
	writeRepr(&b, v, nil)
	return b.String()
}

// ToStr returns the Python str of v.
func ToStr(v Value) string {
	switch x := v.(type) {
	case Str:
		return string(x)
	case *Exception:
		return x.Message
	case *Class:
		return "<class '" + x.Name + "'>"
	}
	return Repr(v)
}

func writeRepr(b *strings.Builder, v Value, seen map[Value]bool) {
	switch x := v.(type) {
	case nil, NoneType:
		b.WriteString("None")
	case Bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case Int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case *BigInt:
		b.WriteString(x.v.String())
	case Float:
		b.WriteString(formatFloat(float64(x)))
	case Str:
		b.WriteString(quoteStr(string(x)))
	case *List:
		if seen[x] {
			if x.Tuple {
				b.WriteString("(...)")
			} else {
				b.WriteString("[...]")
			}
			return
		}
		seen = mark(seen, x)
		defer delete(seen, x)
		lb, rb := "[", "]"
		if x.Tuple {
			lb, rb = "(", ")"
		}
		b.WriteString(lb)
		for i, it := range x.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, it, seen)
		}
		if x.Tuple && len(x.Items) == 1 {
			b.WriteString(",")
		}
		b.WriteString(rb)
	case *Set:
		if x.Len() == 0 {
			b.WriteString("set()")
			return
		}
		if seen[x] {
			b.WriteString("{...}")
			return
		}
		seen = mark(seen, x)
		defer delete(seen, x)
		b.WriteString("{")
		for i, m := range x.Members() {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, m, seen)
		}
		b.WriteString("}")
	case *Dict:
		if seen[x] {
			b.WriteString("{...}")
			return
		}
		seen = mark(seen, x)
		defer delete(seen, x)
		b.WriteString("{")
		first := true
		x.Each(func(k, val Value) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			writeRepr(b, k, seen)
			b.WriteString(": ")
			writeRepr(b, val, seen)
			return true
		})
		b.WriteString("}")
	case *Range:
		if x.Step == 1 {
			fmt.Fprintf(b, "range(%d, %d)", x.Start, x.Stop)
		} else {
			fmt.Fprintf(b, "range(%d, %d, %d)", x.Start, x.Stop, x.Step)
		}
	case *Slice:
		b.WriteString("slice(")
		writeRepr(b, x.Start, seen)
		b.WriteString(", ")
		writeRepr(b, x.Stop, seen)
		b.WriteString(", ")
		writeRepr(b, x.Step, seen)
		b.WriteString(")")
	case *Function:
		fmt.Fprintf(b, "<function %s>", x.Name)
	case *Builtin:
		fmt.Fprintf(b, "<built-in function %s>", x.Name)
	case *BoundMethod:
		b.WriteString("<bound method of ")
		writeRepr(b, x.Self, seen)
		b.WriteString(">")
	case *Class:
		fmt.Fprintf(b, "<class '%s'>", x.Name)
	case *Instance:
		fmt.Fprintf(b, "<%s object>", x.Class.Name)
	case *Exception:
		b.WriteString(x.Kind)
		b.WriteString("(")
		for i, a := range x.args().Items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, a, seen)
		}
		b.WriteString(")")
	case *Generator:
		fmt.Fprintf(b, "<generator object %s>", x.name())
	case *ByteCode:
		fmt.Fprintf(b, "<code object %s>", x.displayName())
	default:
		fmt.Fprintf(b, "<%s object>", v.TypeName())
	}
}

func mark(seen map[Value]bool, v Value) map[Value]bool {
	if seen == nil {
		seen = make(map[Value]bool)
	}
	seen[v] = true
	return seen
}

// quoteStr quotes s with single quotes unless it contains a single quote and
// no double quote.
func quoteStr(s string) string {
	q := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r == rune(q) {
				b.WriteByte('\\')
			}
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
