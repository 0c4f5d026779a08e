package graphjson

import (
	"github.com/kykrueger/openbis-sub009/pkg/log"
	"github.com/kykrueger/openbis-sub009/pkg/util/typeutil"
)

// DefaultMaxDepth 是编解码允许的最大嵌套深度。
const DefaultMaxDepth = 10000

// EncoderOption 配置 Encoder。
type EncoderOption func(*Encoder)

// WithEncoderMaxDepth 设置编码时允许的最大嵌套深度。
func WithEncoderMaxDepth(depth int) EncoderOption {
	return func(e *Encoder) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithEncoderLogger 为 Encoder 绑定 Logger。
func WithEncoderLogger(logger *log.MLogger) EncoderOption {
	return func(e *Encoder) {
		e.BindComponent(logger, "encoder")
	}
}

// DecoderOption 配置 Decoder。
type DecoderOption func(*Decoder)

// WithLookupKey 设置类型标签到注册表键的转换函数。
func WithLookupKey(fn LookupKeyFunc) DecoderOption {
	return func(d *Decoder) {
		if fn != nil {
			d.lookupKey = fn
		}
	}
}

// WithScalarTypes 设置按字面量处理数字的类型名，默认只有 Date。
func WithScalarTypes(names ...string) DecoderOption {
	return func(d *Decoder) {
		d.scalarTypes = typeutil.NewSet(names...)
	}
}

// WithRejectUnknownFields 为 true 时，未声明的字段会导致解码失败。
func WithRejectUnknownFields(reject bool) DecoderOption {
	return func(d *Decoder) {
		d.rejectUnknown = reject
	}
}

// WithMaxDepth 设置解码时允许的最大嵌套深度。
func WithMaxDepth(depth int) DecoderOption {
	return func(d *Decoder) {
		if depth > 0 {
			d.maxDepth = depth
		}
	}
}

// WithLogger 为 Decoder 绑定 Logger。
func WithLogger(logger *log.MLogger) DecoderOption {
	return func(d *Decoder) {
		d.BindComponent(logger, "decoder")
	}
}
