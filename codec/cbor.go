package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/chazu/pyrite/vm"
	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeCBOR serializes bc to canonical CBOR bytes.
func EncodeCBOR(bc *vm.ByteCode) ([]byte, error) {
	wc, err := toWire(bc)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(wc)
}

// DecodeCBOR deserializes a program from CBOR bytes.
func DecodeCBOR(data []byte) (*vm.ByteCode, error) {
	var wc wireCode
	if err := cbor.Unmarshal(data, &wc); err != nil {
		return nil, fmt.Errorf("codec: unmarshal cbor: %w", err)
	}
	return fromWire(&wc)
}

// Format identifies an encoding.
type Format int

const (
	FormatJSON Format = iota // gzip-compressed or plain JSON
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Detect guesses the encoding of data. Gzip streams and text starting with
// '{' are JSON; anything else is taken to be CBOR.
func Detect(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if isGzip(data) || (len(trimmed) > 0 && trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCBOR
}

// Decode reads a program in either encoding.
func Decode(r io.Reader) (*vm.ByteCode, Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("codec: read: %w", err)
	}
	format := Detect(data)
	var bc *vm.ByteCode
	switch format {
	case FormatJSON:
		bc, err = DecodeJSON(bytes.NewReader(data))
	default:
		bc, err = DecodeCBOR(data)
	}
	if err != nil {
		return nil, format, err
	}
	log.Debugf("decoded %s program %s: %d instructions, %d bytes", format, displayName(bc.Name), len(bc.Instructions), len(data))
	return bc, format, nil
}
