package graphjson

import (
	"reflect"
	"strings"
	"sync"
)

// StructField 描述 Go 结构体中参与编解码的一个导出字段。
type StructField struct {
	// Name 为线上字段名，取自 json 标签，缺省为 Go 字段名。
	Name      string
	GoName    string
	Index     []int
	Type      reflect.Type
	OmitEmpty bool
	// Graph 为 graph 标签原文，可以是字段规则表达式或以逗号开头的选项。
	Graph string
}

// HasOption 判断 graph 标签是否带有指定选项，如 graph:",unknown"。
func (f StructField) HasOption(opt string) bool {
	idx := strings.LastIndexByte(f.Graph, ',')
	if idx < 0 {
		return false
	}
	for _, o := range strings.Split(f.Graph[idx+1:], "|") {
		if o == opt {
			return true
		}
	}
	return false
}

// TypeExpr 返回 graph 标签中的字段规则表达式，没有时为空。
func (f StructField) TypeExpr() string {
	if strings.HasPrefix(f.Graph, ",") {
		return ""
	}
	if f.HasOption("unknown") {
		return f.Graph[:strings.LastIndexByte(f.Graph, ',')]
	}
	return f.Graph
}

var structFieldCache sync.Map // map[reflect.Type][]StructField

// StructFields 返回结构体类型 t 的可编解码字段，结果按类型缓存。
func StructFields(t reflect.Type) []StructField {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := structFieldCache.Load(t); ok {
		return cached.([]StructField)
	}
	seen := make(map[string]struct{})
	fields := collectStructFields(t, nil, seen, nil)
	actual, _ := structFieldCache.LoadOrStore(t, fields)
	return actual.([]StructField)
}

func collectStructFields(t reflect.Type, index []int, seen map[string]struct{}, out []StructField) []StructField {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		jsonTag := f.Tag.Get("json")
		graphTag := f.Tag.Get("graph")
		if jsonTag == "-" || graphTag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(jsonTag, ",")
		fieldIndex := append(append([]int(nil), index...), i)

		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct && f.IsExported() {
			out = collectStructFields(f.Type, fieldIndex, seen, out)
			continue
		}
		if !f.IsExported() {
			continue
		}
		switch f.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}
		if name == "" {
			name = f.Name
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, StructField{
			Name:      name,
			GoName:    f.Name,
			Index:     fieldIndex,
			Type:      f.Type,
			OmitEmpty: strings.Contains(","+opts+",", ",omitempty,"),
			Graph:     graphTag,
		})
	}
	return out
}
