package serializer

import "context"

// Serializer 抽象了“对象 <-> 字节流”的序列化能力。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象，v 通常为指针。
	Unmarshal(data []byte, v any) error
}

// ContextUnmarshaler 由解码过程可能阻塞的 Serializer 实现。
type ContextUnmarshaler interface {
	UnmarshalContext(ctx context.Context, data []byte, v any) error
}

// Unmarshal 在 s 支持时携带 ctx 解码。
func Unmarshal(ctx context.Context, s Serializer, data []byte, v any) error {
	if cu, ok := s.(ContextUnmarshaler); ok {
		return cu.UnmarshalContext(ctx, data, v)
	}
	return s.Unmarshal(data, v)
}
