package graphjson

import (
	"math"
	"slices"
	"strconv"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"

	"github.com/kykrueger/openbis-sub009/internal/json"
)

// node 是文档中一个 JSON 对象的只读视图。
type node struct {
	keys   []string
	values map[string]any
}

func (n node) get(key string) (any, bool) {
	v, ok := n.values[key]
	return v, ok
}

// asNode 接受解析得到的 map[string]any 与编码器产出的 *Object。
// map 的键按字典序遍历，保证错误与路径稳定。
func asNode(v any) (node, bool) {
	switch x := v.(type) {
	case map[string]any:
		keys := maps.Keys(x)
		slices.Sort(keys)
		return node{keys: keys, values: x}, true
	case *Object:
		if x == nil {
			return node{}, false
		}
		return node{keys: x.keys, values: x.values}, true
	}
	return node{}, false
}

func isNumber(v any) bool {
	switch v.(type) {
	case json.Number, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func integerID[T constraints.Integer](n T) (ReferenceID, bool) {
	if n < 0 || uint64(n) > math.MaxInt64 {
		return 0, false
	}
	return ReferenceID(n), true
}

func floatID[T constraints.Float](f T) (ReferenceID, bool) {
	v := float64(f)
	if v < 0 || v != math.Trunc(v) || v > 1<<53 {
		return 0, false
	}
	return ReferenceID(v), true
}

// asReferenceID 把 JSON 数字解释为非负整数编号。
func asReferenceID(v any) (ReferenceID, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return integerID(n)
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatID(f)
	case float64:
		return floatID(x)
	case float32:
		return floatID(x)
	case int:
		return integerID(x)
	case int8:
		return integerID(x)
	case int16:
		return integerID(x)
	case int32:
		return integerID(x)
	case int64:
		return integerID(x)
	case uint:
		return integerID(x)
	case uint8:
		return integerID(x)
	case uint16:
		return integerID(x)
	case uint32:
		return integerID(x)
	case uint64:
		return integerID(x)
	}
	return 0, false
}

// normalizeScalar 把 json.Number 转成 int64 或 float64。
func normalizeScalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return string(n)
}

// plainValue 返回不含 *Object 与 json.Number 的普通 JSON 值副本。
func plainValue(v any) any {
	if n, ok := asNode(v); ok {
		out := make(map[string]any, len(n.keys))
		for _, key := range n.keys {
			out[key] = plainValue(n.values[key])
		}
		return out
	}
	if arr, ok := v.([]any); ok {
		out := make([]any, len(arr))
		for i := range arr {
			out[i] = plainValue(arr[i])
		}
		return out
	}
	return normalizeScalar(v)
}

func fieldPath(parent, key string) string {
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
