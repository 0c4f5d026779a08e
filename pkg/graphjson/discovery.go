package graphjson

import (
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
	"github.com/kykrueger/openbis-sub009/pkg/util/typeutil"
)

// definition 记录文档中带 @id 的完整对象，前向引用据此提前构造实例。
type definition struct {
	tag   TypeTag
	node  node
	path  string
	depth int
}

type discovery struct {
	tags     typeutil.Set[TypeTag]
	defs     map[ReferenceID]definition
	maxDepth int
}

func newDiscovery(maxDepth int) *discovery {
	return &discovery{
		tags:     typeutil.NewSet[TypeTag](),
		defs:     make(map[ReferenceID]definition),
		maxDepth: maxDepth,
	}
}

// walk 收集全部 @type 并索引每个 @id 的定义，同一编号定义两次即失败。
func (d *discovery) walk(v any, path string, depth int) error {
	if depth > d.maxDepth {
		return merr.WrapErrGraphTooDeep(path, d.maxDepth)
	}
	if n, ok := asNode(v); ok {
		if raw, tagged := n.get(TypeKey); tagged {
			tag, ok := raw.(string)
			if !ok || tag == "" {
				return merr.WrapErrMalformedDocument(path, "@type must be a non-empty string")
			}
			d.tags.Insert(TypeTag(tag))
			if rawID, hasID := n.get(IDKey); hasID && rawID != nil {
				id, ok := asReferenceID(rawID)
				if !ok {
					return merr.WrapErrMalformedDocument(path, "@id must be a non-negative integer")
				}
				if first, dup := d.defs[id]; dup {
					return merr.WrapErrDuplicateReferenceID(int64(id), path, first.path)
				}
				d.defs[id] = definition{tag: TypeTag(tag), node: n, path: path, depth: depth}
			}
		}
		for _, key := range n.keys {
			if key == TypeKey || key == IDKey {
				continue
			}
			if err := d.walk(n.values[key], fieldPath(path, key), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if arr, ok := v.([]any); ok {
		for i := range arr {
			if err := d.walk(arr[i], indexPath(path, i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// DiscoverTags 只执行发现阶段，返回文档中出现的全部类型标签。
func DiscoverTags(doc any) (typeutil.Set[TypeTag], error) {
	d := newDiscovery(DefaultMaxDepth)
	if err := d.walk(doc, rootPath, 0); err != nil {
		return nil, err
	}
	return d.tags, nil
}
