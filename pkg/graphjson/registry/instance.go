package registry

import (
	"encoding/base64"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
)

// structInstance 把解码得到的值写入一个新分配的结构体。
// 带标签对象以指针写入，共享与循环引用保持同一实例。
type structInstance struct {
	info *structInfo
	ptr  reflect.Value
}

var _ graphjson.Instance = (*structInstance)(nil)

func newStructInstance(info *structInfo) *structInstance {
	return &structInstance{info: info, ptr: reflect.New(info.typ)}
}

func (i *structInstance) Interface() any {
	return i.ptr.Interface()
}

// Set 写入字段。未声明的字段写入 graph:",unknown" 标记的 map，没有该字段时丢弃。
func (i *structInstance) Set(field string, value any) error {
	sv := i.ptr.Elem()
	f, ok := i.info.byName[field]
	if !ok {
		if i.info.extra == nil {
			return nil
		}
		m := sv.FieldByIndex(i.info.extra.Index)
		if m.IsNil() {
			m.Set(reflect.MakeMap(m.Type()))
		}
		v, err := assign(m.Type().Elem(), value)
		if err != nil {
			return err
		}
		m.SetMapIndex(reflect.ValueOf(field).Convert(m.Type().Key()), v)
		return nil
	}
	v, err := assign(f.Type, value)
	if err != nil {
		return err
	}
	sv.FieldByIndex(f.Index).Set(v)
	return nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func assignError(v any, t reflect.Type) error {
	return errors.Newf("cannot assign %T to %s", v, t)
}

// assign 把解码得到的值转换为类型 t。
func assign(t reflect.Type, v any) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if t == timeType {
		return assignTime(v)
	}
	// 值类型字段接收带标签对象时复制一份
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type().AssignableTo(t) {
		return rv.Elem(), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		inner, err := assign(t.Elem(), v)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	case reflect.String, reflect.Bool:
		if rv.Kind() == t.Kind() {
			return rv.Convert(t), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return assignInt(t, rv, v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return assignUint(t, rv, v)
	case reflect.Float32, reflect.Float64:
		if isNumericKind(rv.Kind()) {
			return rv.Convert(t), nil
		}
	case reflect.Slice:
		if s, ok := v.(string); ok && t.Elem().Kind() == reflect.Uint8 {
			data, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return reflect.Value{}, errors.Wrap(err, "decode base64 bytes")
			}
			return reflect.ValueOf(data).Convert(t), nil
		}
		arr, ok := v.([]any)
		if !ok {
			break
		}
		out := reflect.MakeSlice(t, len(arr), len(arr))
		for idx := range arr {
			ev, err := assign(t.Elem(), arr[idx])
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "element %d", idx)
			}
			out.Index(idx).Set(ev)
		}
		return out, nil
	case reflect.Array:
		arr, ok := v.([]any)
		if !ok || len(arr) != t.Len() {
			break
		}
		out := reflect.New(t).Elem()
		for idx := range arr {
			ev, err := assign(t.Elem(), arr[idx])
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "element %d", idx)
			}
			out.Index(idx).Set(ev)
		}
		return out, nil
	case reflect.Map:
		m, ok := v.(map[string]any)
		if !ok {
			break
		}
		out := reflect.MakeMapWithSize(t, len(m))
		for key, val := range m {
			kv, err := assignKey(t.Key(), key)
			if err != nil {
				return reflect.Value{}, err
			}
			ev, err := assign(t.Elem(), val)
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "key %q", key)
			}
			out.SetMapIndex(kv, ev)
		}
		return out, nil
	case reflect.Struct:
		m, ok := v.(map[string]any)
		if !ok {
			break
		}
		out := reflect.New(t).Elem()
		for _, f := range graphjson.StructFields(t) {
			val, ok := m[f.Name]
			if !ok {
				continue
			}
			fv, err := assign(f.Type, val)
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "field %s", f.Name)
			}
			out.FieldByIndex(f.Index).Set(fv)
		}
		return out, nil
	}
	return reflect.Value{}, assignError(v, t)
}

func assignInt(t reflect.Type, rv reflect.Value, v any) (reflect.Value, error) {
	var n int64
	switch {
	case rv.CanInt():
		n = rv.Int()
	case rv.CanUint():
		if rv.Uint() > math.MaxInt64 {
			return reflect.Value{}, assignError(v, t)
		}
		n = int64(rv.Uint())
	case rv.CanFloat():
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return reflect.Value{}, assignError(v, t)
		}
		n = int64(f)
	default:
		return reflect.Value{}, assignError(v, t)
	}
	out := reflect.New(t).Elem()
	if out.OverflowInt(n) {
		return reflect.Value{}, errors.Newf("value %d overflows %s", n, t)
	}
	out.SetInt(n)
	return out, nil
}

func assignUint(t reflect.Type, rv reflect.Value, v any) (reflect.Value, error) {
	var n uint64
	switch {
	case rv.CanInt():
		if rv.Int() < 0 {
			return reflect.Value{}, assignError(v, t)
		}
		n = uint64(rv.Int())
	case rv.CanUint():
		n = rv.Uint()
	case rv.CanFloat():
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f > math.MaxUint64 {
			return reflect.Value{}, assignError(v, t)
		}
		n = uint64(f)
	default:
		return reflect.Value{}, assignError(v, t)
	}
	out := reflect.New(t).Elem()
	if out.OverflowUint(n) {
		return reflect.Value{}, errors.Newf("value %d overflows %s", n, t)
	}
	out.SetUint(n)
	return out, nil
}

// assignTime 接受毫秒时间戳与 RFC 3339 字符串。
func assignTime(v any) (reflect.Value, error) {
	switch x := v.(type) {
	case int64:
		return reflect.ValueOf(time.UnixMilli(x)), nil
	case int:
		return reflect.ValueOf(time.UnixMilli(int64(x))), nil
	case float64:
		return reflect.ValueOf(time.UnixMilli(int64(x))), nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return reflect.Value{}, errors.Wrap(err, "parse time")
		}
		return reflect.ValueOf(ts), nil
	}
	return reflect.Value{}, assignError(v, timeType)
}

func assignKey(t reflect.Type, key string) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(key).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "map key %q", key)
		}
		return assignInt(t, reflect.ValueOf(n), key)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "map key %q", key)
		}
		return assignUint(t, reflect.ValueOf(n), key)
	}
	return reflect.Value{}, errors.Newf("unsupported map key type %s", t)
}
