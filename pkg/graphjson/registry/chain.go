package registry

import (
	"context"

	"github.com/samber/lo"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
)

// Chain 按顺序查询多个注册表，前面的注册表优先。
type Chain []graphjson.TypeRegistry

var _ graphjson.TypeRegistry = Chain(nil)

// NewChain 组合注册表，nil 会被忽略。
func NewChain(registries ...graphjson.TypeRegistry) Chain {
	return lo.Filter(registries, func(r graphjson.TypeRegistry, _ int) bool { return r != nil })
}

// ResolveMany 依次把尚未解析的键交给下一个注册表。
func (c Chain) ResolveMany(ctx context.Context, keys []string) (map[string]graphjson.Constructor, error) {
	out := make(map[string]graphjson.Constructor, len(keys))
	pending := keys
	for _, r := range c {
		if len(pending) == 0 {
			break
		}
		found, err := r.ResolveMany(ctx, pending)
		if err != nil {
			return nil, err
		}
		for key, ctor := range found {
			out[key] = ctor
		}
		pending = lo.Filter(pending, func(key string, _ int) bool {
			_, ok := found[key]
			return !ok
		})
	}
	return out, nil
}

// FieldTypesOf 返回第一个认识该键的注册表给出的字段规则。
func (c Chain) FieldTypesOf(key string) (graphjson.FieldTypeDescriptor, bool) {
	for _, r := range c {
		if fields, ok := r.FieldTypesOf(key); ok {
			return fields, true
		}
	}
	return nil, false
}
