// Package binarycodec funnels all msgpack serialization for application
// messages. Every payload encode/decode MUST go through this package so the
// codec behaves identically on both sides of the log.
//
// Type preservation: when decoding into any, msgpack strings decode as Go
// strings (not []byte). Without this, a message that was sent as text would
// come back as bytes on the consuming node and the round-trip law would not
// hold.
package binarycodec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes a value to msgpack.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data using loose interface decoding, so []byte
// becomes string when the destination is any.
func Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	return dec.Decode(v)
}
