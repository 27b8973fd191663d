// Package jsoncodec funnels the JSON serialization used for the outer
// envelope layer. The log store is assumed to normalize stored values to a
// JSON-like model, so the envelope itself is plain JSON; anything that must
// survive that boundary intact goes through the binary codec first.
package jsoncodec

import "github.com/bytedance/sonic"

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}
