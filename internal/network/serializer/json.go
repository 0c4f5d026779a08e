package serializer

import (
	"github.com/kykrueger/openbis-sub009/internal/json"
)

// JSONSerializer 使用 internal/json（基于 bytedance/sonic）进行普通 JSON 编解码，不处理对象引用。
// ExactNumbers 为 true 时，解码到 interface 的数字保持为 json.Number。
type JSONSerializer struct {
	ExactNumbers bool
}

var _ Serializer = (*JSONSerializer)(nil)

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s JSONSerializer) Unmarshal(data []byte, v any) error {
	if s.ExactNumbers {
		return json.UnmarshalNumber(data, v)
	}
	return json.Unmarshal(data, v)
}
