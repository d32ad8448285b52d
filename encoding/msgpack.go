// Package encoding provides centralized msgpack serialization for run manifests
// and notification payloads. All msgpack operations go through this package.
//
// Thread Safety: Marshal, Unmarshal, Write and Read are safe for concurrent use.
package encoding

import (
	"bytes"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes a value to msgpack format.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data using loose interface decoding.
// When decoding into interface{}, strings stay Go strings rather than []byte.
func Unmarshal(data []byte, v interface{}) error {
	return Read(bytes.NewReader(data), v)
}

// Write encodes v to w
func Write(w io.Writer, v interface{}) error {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	return enc.Encode(v)
}

// Read decodes one value from r into v
func Read(r io.Reader, v interface{}) error {
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}
