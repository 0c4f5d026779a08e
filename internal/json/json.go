// Package json 统一项目内的 JSON 编解码入口，底层基于 bytedance/sonic。
package json

import (
	stdjson "encoding/json"

	"github.com/bytedance/sonic"
)

// Number 与 encoding/json.Number 相同，sonic 在 UseNumber 模式下产出该类型。
type Number = stdjson.Number

// Marshaler 与 encoding/json.Marshaler 相同。
type Marshaler = stdjson.Marshaler

var (
	json = sonic.ConfigStd

	// exact 在解码时保留数字的原始文本，避免大整数 id 被转换成 float64 后丢失精度。
	exact = sonic.Config{
		EscapeHTML:       true,
		SortMapKeys:      true,
		CompactMarshaler: true,
		CopyString:       true,
		ValidateString:   true,
		UseNumber:        true,
	}.Froze()

	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	Valid         = json.Valid
)

// UnmarshalNumber 与 Unmarshal 相同，但数字统一解码为 Number。
func UnmarshalNumber(data []byte, v any) error {
	return exact.Unmarshal(data, v)
}
