package codec

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/chazu/pyrite/vm"
)

// EncodeJSON writes bc to w as gzip-compressed JSON.
func EncodeJSON(w io.Writer, bc *vm.ByteCode) error {
	wc, err := toWire(bc)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(wc); err != nil {
		gz.Close()
		return fmt.Errorf("codec: encode json: %w", err)
	}
	return gz.Close()
}

// MarshalJSON returns the gzip-compressed JSON encoding of bc.
func MarshalJSON(bc *vm.ByteCode) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, bc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeJSON reads a program in the JSON encoding. Input that does not
// start with the gzip magic is read as plain JSON.
func DecodeJSON(r io.Reader) (*vm.ByteCode, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(2); isGzip(head) {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("codec: gzip: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	var wc wireCode
	if err := json.NewDecoder(src).Decode(&wc); err != nil {
		return nil, fmt.Errorf("codec: decode json: %w", err)
	}
	return fromWire(&wc)
}

func isGzip(head []byte) bool {
	return len(head) >= 2 && head[0] == 0x1f && head[1] == 0x8b
}

// taggedConst is the JSON object form of constants JSON cannot carry.
type taggedConst struct {
	Type  string          `json:"__type"`
	Value json.RawMessage `json:"value,omitempty"`
	Items []wireConst     `json:"items,omitempty"`
}

func (c wireConst) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case constNone:
		return []byte("null"), nil
	case constBool:
		return json.Marshal(c.Bool)
	case constInt:
		return strconv.AppendInt(nil, c.Int, 10), nil
	case constBigInt:
		return tagged("bigint", c.Str)
	case constFloat:
		f := c.Float
		if math.IsNaN(f) || math.IsInf(f, 0) || f == math.Trunc(f) {
			return tagged("float", vm.Repr(vm.Float(f)))
		}
		return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
	case constStr:
		return json.Marshal(c.Str)
	case constTuple:
		items := c.Items
		if items == nil {
			items = []wireConst{}
		}
		return json.Marshal(taggedConst{Type: "tuple", Items: items})
	case constCode:
		raw, err := json.Marshal(c.Code)
		if err != nil {
			return nil, err
		}
		return json.Marshal(taggedConst{Type: "code", Value: raw})
	}
	return nil, fmt.Errorf("%w: constant kind %d", ErrUnsupportedConstant, c.Kind)
}

func tagged(typ, value string) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedConst{Type: typ, Value: raw})
}

func (c *wireConst) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty constant", ErrMalformed)
	}
	switch data[0] {
	case 'n':
		*c = wireConst{Kind: constNone}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*c = wireConst{Kind: constBool, Bool: b}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = wireConst{Kind: constStr, Str: s}
		return nil
	case '{':
		return c.unmarshalTagged(data)
	}
	return c.unmarshalNumber(string(data))
}

// unmarshalNumber reads an untagged number. Numbers written without a
// fraction or exponent are integers, promoted to bigint when out of range.
func (c *wireConst) unmarshalNumber(s string) error {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*c = wireConst{Kind: constInt, Int: n}
		return nil
	} else if errors.Is(err, strconv.ErrRange) {
		*c = wireConst{Kind: constBigInt, Str: s}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: bad number %q", ErrMalformed, s)
	}
	*c = wireConst{Kind: constFloat, Float: f}
	return nil
}

func (c *wireConst) unmarshalTagged(data []byte) error {
	var t taggedConst
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	switch t.Type {
	case "bigint":
		var s string
		if err := json.Unmarshal(t.Value, &s); err != nil {
			return fmt.Errorf("%w: bigint value: %v", ErrMalformed, err)
		}
		*c = wireConst{Kind: constBigInt, Str: s}
	case "float":
		var s string
		if err := json.Unmarshal(t.Value, &s); err != nil {
			return fmt.Errorf("%w: float value: %v", ErrMalformed, err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: float value %q", ErrMalformed, s)
		}
		*c = wireConst{Kind: constFloat, Float: f}
	case "tuple":
		*c = wireConst{Kind: constTuple, Items: t.Items}
	case "code":
		var code wireCode
		if err := json.Unmarshal(t.Value, &code); err != nil {
			return err
		}
		*c = wireConst{Kind: constCode, Code: &code}
	default:
		return fmt.Errorf("%w: unknown __type %q", ErrMalformed, t.Type)
	}
	return nil
}
