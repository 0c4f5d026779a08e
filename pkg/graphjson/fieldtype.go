package graphjson

import (
	"strings"
	"unicode"

	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// FieldKind 是字段的解码规则。
type FieldKind int

const (
	// KindOpaque 原样保留 JSON 值，未声明的字段使用该规则。
	KindOpaque FieldKind = iota
	// KindScalar 原样复制 JSON 值，数字不会被当作引用。
	KindScalar
	// KindAny 按值的形状推断：带 @type 的对象按标签构造，数字保持字面量。
	KindAny
	// KindTyped 值是带标签对象或指向它的引用编号。
	KindTyped
	// KindList 值是数组，元素使用 Elem 规则。
	KindList
	// KindMap 值是普通 JSON 对象，值使用 Elem 规则。
	KindMap
)

var fieldKindNames = map[FieldKind]string{
	KindOpaque: "Opaque",
	KindScalar: "Scalar",
	KindAny:    "Any",
	KindTyped:  "Typed",
	KindList:   "List",
	KindMap:    "Map",
}

func (k FieldKind) String() string {
	if name, ok := fieldKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// DateType 是按毫秒时间戳处理的类型名。
const DateType = "Date"

// 文本形式中的关键字。
const (
	opaqueKeyword = "Opaque"
	scalarKeyword = "Scalar"
	anyKeyword    = "Any"
	objectKeyword = "Object"
	listKeyword   = "List"
	mapKeyword    = "Map"
)

// FieldType 描述一个字段的解码规则。
type FieldType struct {
	Kind FieldKind
	// Name 为 KindTyped 的声明类型名，为空表示任意带标签类型。
	Name string
	// Key 为 KindMap 的键类型，仅用于说明。
	Key string
	// Elem 为 KindList/KindMap 的元素规则，nil 表示按形状推断。
	Elem *FieldType
	// Alias 为实例内部的存储名，为空时与线上字段名相同。
	Alias string
}

// FieldTypeDescriptor 按线上字段名记录每个字段的解码规则。
type FieldTypeDescriptor map[string]*FieldType

func Opaque() *FieldType { return &FieldType{Kind: KindOpaque} }

func Scalar() *FieldType { return &FieldType{Kind: KindScalar} }

func Any() *FieldType { return &FieldType{Kind: KindAny} }

func Typed(name string) *FieldType { return &FieldType{Kind: KindTyped, Name: name} }

func Date() *FieldType { return Typed(DateType) }

func ListOf(elem *FieldType) *FieldType { return &FieldType{Kind: KindList, Elem: elem} }

func MapOf(key string, elem *FieldType) *FieldType {
	return &FieldType{Kind: KindMap, Key: key, Elem: elem}
}

// WithAlias 返回设置了存储名的副本。
func (t *FieldType) WithAlias(alias string) *FieldType {
	clone := *t
	clone.Alias = alias
	return &clone
}

// StorageName 返回字段在实例上的存储名。
func (t *FieldType) StorageName(field string) string {
	if t != nil && t.Alias != "" {
		return t.Alias
	}
	return field
}

// Equal 比较两个规则（忽略 Alias）。
func (t *FieldType) Equal(other *FieldType) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Kind == other.Kind &&
		t.Name == other.Name &&
		t.Key == other.Key &&
		t.Elem.Equal(other.Elem)
}

func (t *FieldType) String() string {
	if t == nil {
		return anyKeyword
	}
	switch t.Kind {
	case KindOpaque:
		return opaqueKeyword
	case KindScalar:
		return scalarKeyword
	case KindAny:
		return anyKeyword
	case KindTyped:
		if t.Name == "" {
			return objectKeyword
		}
		return t.Name
	case KindList:
		return listKeyword + "<" + t.Elem.String() + ">"
	case KindMap:
		key := t.Key
		if key == "" {
			key = "String"
		}
		return mapKeyword + "<" + key + "," + t.Elem.String() + ">"
	default:
		return t.Kind.String()
	}
}

// ParseFieldType 解析字段规则的文本形式：
//
//	Scalar | Opaque | Any | Object | Date | <类型名> | List<T> | Map<K,V>
func ParseFieldType(expr string) (*FieldType, error) {
	p := &typeParser{src: expr}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.fail("unexpected trailing input")
	}
	return t, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) fail(reason string) error {
	return merr.WrapErrParameterInvalidMsg("field type %q at offset %d: %s", p.src, p.pos, reason)
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return p.fail("expected '" + string(c) + "'")
	}
	p.pos++
	return nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._$/-", r)
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isIdentRune(rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) parse() (*FieldType, error) {
	name := p.ident()
	if name == "" {
		return nil, p.fail("expected type name")
	}
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '<' {
		p.pos++
		switch name {
		case listKeyword:
			elem, err := p.parse()
			if err != nil {
				return nil, err
			}
			if err := p.expect('>'); err != nil {
				return nil, err
			}
			return ListOf(elem), nil
		case mapKeyword:
			key := p.ident()
			if key == "" {
				return nil, p.fail("expected map key type")
			}
			if err := p.expect(','); err != nil {
				return nil, err
			}
			elem, err := p.parse()
			if err != nil {
				return nil, err
			}
			if err := p.expect('>'); err != nil {
				return nil, err
			}
			return MapOf(key, elem), nil
		default:
			return nil, p.fail("type " + name + " takes no parameters")
		}
	}
	switch name {
	case opaqueKeyword:
		return Opaque(), nil
	case scalarKeyword:
		return Scalar(), nil
	case anyKeyword:
		return Any(), nil
	case objectKeyword:
		return Typed(""), nil
	default:
		return Typed(name), nil
	}
}
