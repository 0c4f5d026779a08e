package registry

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

const unknownFieldsOption = "unknown"

var (
	taggedType = reflect.TypeOf((*graphjson.Tagged)(nil)).Elem()
	timeType   = reflect.TypeOf(time.Time{})
)

// Reflect 从 Go 结构体推导字段规则，解码时直接填充结构体。
//
// 字段规则推导：
//   - time.Time → Date；
//   - 实现 Tagged 的结构体（或其指针）→ 该类型的标签；
//   - 非空接口 → 任意带标签类型，空接口 → 按形状推断；
//   - 切片与数组 → List，string 键的 map → Map；
//   - 其他 → Scalar。
//
// 字段上的 graph 标签可以直接给出规则表达式，graph:",unknown" 标记收集未声明字段的 map。
type Reflect struct {
	static *Static
}

var _ graphjson.TypeRegistry = (*Reflect)(nil)

func NewReflect(opts ...Option) *Reflect {
	return &Reflect{static: NewStatic(opts...)}
}

// Register 注册样例值的类型，样例必须是实现 Tagged 的结构体指针。
func (r *Reflect) Register(samples ...graphjson.Tagged) error {
	for _, sample := range samples {
		def, err := Describe(sample)
		if err != nil {
			return err
		}
		if err := r.static.Register(graphjson.TypeTag(def.Name), def.New, def.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reflect) ResolveMany(ctx context.Context, keys []string) (map[string]graphjson.Constructor, error) {
	return r.static.ResolveMany(ctx, keys)
}

func (r *Reflect) FieldTypesOf(key string) (graphjson.FieldTypeDescriptor, bool) {
	return r.static.FieldTypesOf(key)
}

// Describe 推导样例类型的定义，构造器创建新的结构体并按字段写入。
func Describe(sample graphjson.Tagged) (*TypeDefinition, error) {
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, merr.WrapErrParameterInvalid("pointer to struct", fmt.Sprintf("%T", sample))
	}
	info, err := inspect(t.Elem())
	if err != nil {
		return nil, err
	}
	return &TypeDefinition{
		Name:   string(sample.GraphType()),
		Fields: info.fields,
		New: func() (graphjson.Instance, error) {
			return newStructInstance(info), nil
		},
	}, nil
}

// structInfo 缓存一个结构体类型的字段索引。
type structInfo struct {
	typ    reflect.Type
	fields graphjson.FieldTypeDescriptor
	// byName 按存储名与线上名索引字段
	byName map[string]graphjson.StructField
	extra  *graphjson.StructField
}

func inspect(t reflect.Type) (*structInfo, error) {
	info := &structInfo{
		typ:    t,
		fields: make(graphjson.FieldTypeDescriptor),
		byName: make(map[string]graphjson.StructField),
	}
	for _, f := range graphjson.StructFields(t) {
		if f.HasOption(unknownFieldsOption) {
			if f.Type.Kind() != reflect.Map || f.Type.Key().Kind() != reflect.String {
				return nil, merr.WrapErrParameterInvalidMsg("field %s.%s: unknown fields must be collected into a string-keyed map", t.Name(), f.GoName)
			}
			extra := f
			info.extra = &extra
			continue
		}
		if vt, ok := taggedValueOf(f.Type); ok {
			return nil, merr.WrapErrParameterInvalidMsg("field %s.%s: tagged type %s must be held by pointer", t.Name(), f.GoName, vt)
		}
		ft := fieldTypeOf(f.Type)
		if expr := f.TypeExpr(); expr != "" {
			parsed, err := graphjson.ParseFieldType(expr)
			if err != nil {
				return nil, err
			}
			ft = parsed
		}
		// 编码时去掉了前导下划线，线上名与之保持一致
		wire := f.Name
		if len(wire) > 1 && wire[0] == '_' {
			wire = wire[1:]
		}
		info.fields[wire] = ft.WithAlias(f.GoName)
		info.byName[f.GoName] = f
		info.byName[wire] = f
	}
	return info, nil
}

// taggedValueOf 找出以值形式保存的带标签结构体，包括切片、数组与 map 的元素。
// 值形式的字段只能得到对象的副本，引用先于定义出现时副本还是空的。
func taggedValueOf(t reflect.Type) (reflect.Type, bool) {
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return taggedValueOf(t.Elem())
	case reflect.Struct:
		if t.Implements(taggedType) || reflect.PointerTo(t).Implements(taggedType) {
			return t, true
		}
	}
	return nil, false
}

func isTagged(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		return t.Implements(taggedType)
	}
	return t.Kind() == reflect.Struct && t.Implements(taggedType)
}

// tagOf 通过零值取得类型标签，GraphType 不能依赖字段内容。
func tagOf(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return string(reflect.New(t.Elem()).Interface().(graphjson.Tagged).GraphType())
	}
	return string(reflect.Zero(t).Interface().(graphjson.Tagged).GraphType())
}

func fieldTypeOf(t reflect.Type) *graphjson.FieldType {
	if t == timeType || (t.Kind() == reflect.Pointer && t.Elem() == timeType) {
		return graphjson.Date()
	}
	if isTagged(t) {
		return graphjson.Typed(tagOf(t))
	}
	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return graphjson.Any()
		}
		return graphjson.Typed("")
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return graphjson.Scalar()
		}
		return graphjson.ListOf(fieldTypeOf(t.Elem()))
	case reflect.Array:
		return graphjson.ListOf(fieldTypeOf(t.Elem()))
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return graphjson.MapOf("String", fieldTypeOf(t.Elem()))
		}
		return graphjson.Opaque()
	case reflect.Pointer:
		return fieldTypeOf(t.Elem())
	case reflect.Struct:
		return graphjson.Any()
	}
	return graphjson.Scalar()
}
