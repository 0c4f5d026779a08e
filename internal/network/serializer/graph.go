package serializer

import (
	"context"
	"reflect"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// GraphSerializer 用 @type/@id 图格式序列化对象，共享与循环引用在解码后保持同一实例。
type GraphSerializer struct {
	encoder  *graphjson.Encoder
	decoder  *graphjson.Decoder
	declared *graphjson.FieldType
}

var (
	_ Serializer         = (*GraphSerializer)(nil)
	_ ContextUnmarshaler = (*GraphSerializer)(nil)
)

// NewGraphSerializer 创建图序列化器，declared 为根值的声明规则，nil 表示按 @type 推断。
func NewGraphSerializer(encoder *graphjson.Encoder, decoder *graphjson.Decoder, declared *graphjson.FieldType) *GraphSerializer {
	return &GraphSerializer{
		encoder:  encoder,
		decoder:  decoder,
		declared: declared,
	}
}

func (s *GraphSerializer) Marshal(v any) ([]byte, error) {
	return s.encoder.Marshal(v)
}

func (s *GraphSerializer) Unmarshal(data []byte, v any) error {
	return s.UnmarshalContext(context.Background(), data, v)
}

// UnmarshalContext 解码并把根值写入 v。
// v 可以是 *any，也可以是指向根值类型的指针（如 **Sample 或 **graphjson.Record）。
func (s *GraphSerializer) UnmarshalContext(ctx context.Context, data []byte, v any) error {
	target := reflect.ValueOf(v)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return merr.WrapErrParameterInvalidMsg("unmarshal target must be a non-nil pointer, got %T", v)
	}
	out, err := s.decoder.Unmarshal(ctx, data, s.declared)
	if err != nil {
		return err
	}
	elem := target.Elem()
	if out == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	rv := reflect.ValueOf(out)
	if !rv.Type().AssignableTo(elem.Type()) {
		return merr.WrapErrParameterInvalidMsg("cannot store decoded %T into %s", out, elem.Type())
	}
	elem.Set(rv)
	return nil
}
