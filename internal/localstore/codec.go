package localstore

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a slot value with msgpack, honouring json struct tags
// so slot payloads use the same field names as the HTTP API.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes a slot value written by Encode.
func Decode(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
