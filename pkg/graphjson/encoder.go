package graphjson

import (
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/kykrueger/openbis-sub009/internal/json"
	"github.com/kykrueger/openbis-sub009/pkg/log"
	"github.com/kykrueger/openbis-sub009/pkg/metrics"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

const rootPath = "$"

// unknownFieldsOption 标记收集未声明字段的 map 字段：graph:",unknown"。
const unknownFieldsOption = "unknown"

// Encoder 把对象图折叠成 JSON 安全的树。
// 同一个对象在一次 Encode 中只完整输出一次，之后的出现输出其 @id。
// Encoder 不持有调用间状态，可以并发使用。
type Encoder struct {
	log.Binder
	maxDepth int
}

func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode 返回由 *Object、[]any 与标量组成的树，不修改输入。
func (e *Encoder) Encode(v any) (any, error) {
	st := &encodeState{
		maxDepth: e.maxDepth,
		ids:      make(map[identity]ReferenceID),
	}
	out, err := st.encode(v, rootPath, 0)
	metrics.CodecEncodeTotal.WithLabelValues(metrics.ResultLabel(err)).Inc()
	if err != nil {
		e.Logger().Warn("encode graph failed", zap.Error(err))
		return nil, err
	}
	metrics.CodecReferencesTotal.WithLabelValues(metrics.EncodeLabel).Add(float64(st.collapsed))
	return out, nil
}

// Marshal 编码后序列化成 JSON。
func (e *Encoder) Marshal(v any) ([]byte, error) {
	tree, err := e.Encode(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, errors.Wrap(err, "graphjson: marshal encoded graph")
	}
	metrics.CodecDocumentBytes.WithLabelValues(metrics.EncodeLabel).Observe(float64(len(data)))
	return data, nil
}

// identity 以类型和地址标识一个对象。
type identity struct {
	typ reflect.Type
	ptr uintptr
}

type encodeState struct {
	maxDepth  int
	ids       map[identity]ReferenceID
	next      int64
	collapsed int
}

func outputKey(key string) string {
	if len(key) > 1 && strings.HasPrefix(key, "_") {
		return key[1:]
	}
	return key
}

func skippable(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

func (s *encodeState) encode(v any, path string, depth int) (any, error) {
	if depth > s.maxDepth {
		return nil, merr.WrapErrGraphTooDeep(path, s.maxDepth)
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x, nil
	case time.Time:
		return x.UnixMilli(), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UnixMilli(), nil
	case *Record:
		if x == nil {
			return nil, nil
		}
		return s.encodeRecord(x, path, depth)
	case *Object:
		if x == nil {
			return nil, nil
		}
		n := node{keys: x.keys, values: x.values}
		return s.encodeNode(n, identity{typ: reflect.TypeOf(x), ptr: reflect.ValueOf(x).Pointer()}, path, depth)
	case map[string]any:
		if x == nil {
			return nil, nil
		}
		n, _ := asNode(x)
		return s.encodeNode(n, identity{typ: reflect.TypeOf(x), ptr: reflect.ValueOf(x).Pointer()}, path, depth)
	case []any:
		if x == nil {
			return nil, nil
		}
		return s.encodeList(len(x), func(i int) any { return x[i] }, path, depth)
	}
	return s.encodeReflect(reflect.ValueOf(v), path, depth)
}

// encodeTagged 在递归字段之前登记编号，使指回自身的字段得到该编号。
func (s *encodeState) encodeTagged(id identity, tracked bool, tag TypeTag, fill func(obj *Object) error) (any, error) {
	if tracked {
		if ref, ok := s.ids[id]; ok {
			s.collapsed++
			return int64(ref), nil
		}
	}
	ref := ReferenceID(s.next)
	s.next++
	if tracked {
		s.ids[id] = ref
	}
	obj := NewObject(8)
	obj.Set(TypeKey, string(tag))
	obj.Set(IDKey, int64(ref))
	if err := fill(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *encodeState) encodeRecord(r *Record, path string, depth int) (any, error) {
	id := identity{typ: reflect.TypeOf(r), ptr: reflect.ValueOf(r).Pointer()}
	return s.encodeTagged(id, true, r.typ, func(obj *Object) error {
		for _, key := range r.keys {
			if key == TypeKey || key == IDKey {
				continue
			}
			fv := r.values[key]
			if skippable(fv) {
				continue
			}
			out := outputKey(key)
			ev, err := s.encode(fv, fieldPath(path, out), depth+1)
			if err != nil {
				return err
			}
			obj.Set(out, ev)
		}
		return nil
	})
}

// encodeNode 处理普通 JSON 对象，带字符串 @type 的对象按带标签对象处理。
func (s *encodeState) encodeNode(n node, id identity, path string, depth int) (any, error) {
	if raw, ok := n.get(TypeKey); ok {
		if tag, ok := raw.(string); ok {
			return s.encodeTagged(id, true, TypeTag(tag), func(obj *Object) error {
				for _, key := range n.keys {
					if key == TypeKey || key == IDKey || skippable(n.values[key]) {
						continue
					}
					out := outputKey(key)
					ev, err := s.encode(n.values[key], fieldPath(path, out), depth+1)
					if err != nil {
						return err
					}
					obj.Set(out, ev)
				}
				return nil
			})
		}
	}
	obj := NewObject(len(n.keys))
	for _, key := range n.keys {
		if skippable(n.values[key]) {
			continue
		}
		ev, err := s.encode(n.values[key], fieldPath(path, key), depth+1)
		if err != nil {
			return nil, err
		}
		obj.Set(key, ev)
	}
	return obj, nil
}

func (s *encodeState) encodeList(n int, at func(i int) any, path string, depth int) (any, error) {
	out := make([]any, n)
	for i := 0; i < n; i++ {
		ev, err := s.encode(at(i), indexPath(path, i), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

var (
	taggedType    = reflect.TypeOf((*Tagged)(nil)).Elem()
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

func (s *encodeState) encodeReflect(rv reflect.Value, path string, depth int) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Implements(taggedType) && rv.Elem().Kind() == reflect.Struct {
			tag := rv.Interface().(Tagged).GraphType()
			id := identity{typ: rv.Type(), ptr: rv.Pointer()}
			return s.encodeTagged(id, true, tag, func(obj *Object) error {
				return s.fillStruct(obj, rv.Elem(), true, path, depth)
			})
		}
		if rv.Type().Implements(marshalerType) {
			return rv.Interface(), nil
		}
		return s.encode(rv.Elem().Interface(), path, depth)
	case reflect.Struct:
		if rv.Type().Implements(taggedType) {
			// 值类型没有身份，每次出现都分配新编号
			tag := rv.Interface().(Tagged).GraphType()
			return s.encodeTagged(identity{}, false, tag, func(obj *Object) error {
				return s.fillStruct(obj, rv, true, path, depth)
			})
		}
		if rv.Type().Implements(marshalerType) {
			return rv.Interface(), nil
		}
		obj := NewObject(rv.NumField())
		if err := s.fillStruct(obj, rv, false, path, depth); err != nil {
			return nil, err
		}
		return obj, nil
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		return s.encodeMap(rv, path, depth)
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Interface(), nil
		}
		return s.encodeList(rv.Len(), func(i int) any { return rv.Index(i).Interface() }, path, depth)
	case reflect.Array:
		return s.encodeList(rv.Len(), func(i int) any { return rv.Index(i).Interface() }, path, depth)
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Interface(), nil
	}
	return nil, merr.WrapErrUnsupportedValue(path, rv.Kind().String())
}

func (s *encodeState) fillStruct(obj *Object, sv reflect.Value, tagged bool, path string, depth int) error {
	for _, f := range StructFields(sv.Type()) {
		fv := sv.FieldByIndex(f.Index)
		if f.OmitEmpty && fv.IsZero() {
			continue
		}
		if f.HasOption(unknownFieldsOption) {
			if err := s.fillExtra(obj, fv, path, depth); err != nil {
				return err
			}
			continue
		}
		key := f.Name
		if tagged {
			key = outputKey(key)
		}
		ev, err := s.encode(fv.Interface(), fieldPath(path, key), depth+1)
		if err != nil {
			return err
		}
		obj.Set(key, ev)
	}
	return nil
}

// fillExtra 把解码时收集的未声明字段原样写回。
func (s *encodeState) fillExtra(obj *Object, fv reflect.Value, path string, depth int) error {
	if fv.Kind() != reflect.Map || fv.IsNil() || fv.Type().Key().Kind() != reflect.String {
		return nil
	}
	keys := make([]string, 0, fv.Len())
	for _, k := range fv.MapKeys() {
		keys = append(keys, k.String())
	}
	slices.Sort(keys)
	for _, key := range keys {
		if _, exists := obj.Get(key); exists {
			continue
		}
		ev, err := s.encode(fv.MapIndex(reflect.ValueOf(key).Convert(fv.Type().Key())).Interface(), fieldPath(path, key), depth+1)
		if err != nil {
			return err
		}
		obj.Set(key, ev)
	}
	return nil
}

func mapKeyString(k reflect.Value) (string, bool) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), true
	}
	return "", false
}

func (s *encodeState) encodeMap(rv reflect.Value, path string, depth int) (any, error) {
	type entry struct {
		key   string
		value reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, ok := mapKeyString(iter.Key())
		if !ok {
			return nil, merr.WrapErrMalformedDocument(path, "map key must be a string or an integer", iter.Key().Kind().String())
		}
		entries = append(entries, entry{key: key, value: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })

	values := make(map[string]any, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.key)
		values[e.key] = e.value.Interface()
	}
	id := identity{typ: rv.Type(), ptr: rv.Pointer()}
	return s.encodeNode(node{keys: keys, values: values}, id, path, depth)
}
