package graphjson

// Record 是没有对应 Go 结构体时使用的通用带标签对象，字段保持写入顺序。
type Record struct {
	typ    TypeTag
	keys   []string
	values map[string]any
}

var (
	_ Instance = (*Record)(nil)
	_ Tagged   = (*Record)(nil)
)

func NewRecord(tag TypeTag) *Record {
	return &Record{
		typ:    tag,
		values: make(map[string]any),
	}
}

// NewRecordConstructor 返回创建指定类型 Record 的构造器。
func NewRecordConstructor(tag TypeTag) Constructor {
	return func() (Instance, error) {
		return NewRecord(tag), nil
	}
}

func (r *Record) GraphType() TypeTag {
	return r.typ
}

// retag 把解码得到的 Record 的标签设为文档中的 @type。
func (r *Record) retag(tag TypeTag) {
	r.typ = tag
}

// Set 写入字段，已存在的字段保持原有位置。
func (r *Record) Set(field string, value any) error {
	if _, ok := r.values[field]; !ok {
		r.keys = append(r.keys, field)
	}
	r.values[field] = value
	return nil
}

// With 与 Set 相同，便于链式构造。
func (r *Record) With(field string, value any) *Record {
	_ = r.Set(field, value)
	return r
}

func (r *Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Fields 按写入顺序返回字段名。
func (r *Record) Fields() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Record) Len() int {
	return len(r.keys)
}

func (r *Record) Interface() any {
	return r
}
