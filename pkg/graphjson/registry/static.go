package registry

import (
	"context"
	"sync"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

type entry struct {
	ctor   graphjson.Constructor
	fields graphjson.FieldTypeDescriptor
}

// Static 是内存注册表，条目按查找键保存。
// 注册通常在启动阶段完成，之后可以被任意多个解码并发读取。
type Static struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	lookupKey graphjson.LookupKeyFunc
}

var _ graphjson.TypeRegistry = (*Static)(nil)

// Option 配置注册表。
type Option func(*Static)

// WithKeyFunc 设置注册时类型标签到查找键的转换，须与 Decoder 的 WithLookupKey 一致。
func WithKeyFunc(fn graphjson.LookupKeyFunc) Option {
	return func(s *Static) {
		if fn != nil {
			s.lookupKey = fn
		}
	}
}

func NewStatic(opts ...Option) *Static {
	s := &Static{
		entries:   make(map[string]*entry),
		lookupKey: graphjson.DottedKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register 注册类型，fields 为 nil 时视为没有声明字段。
func (s *Static) Register(tag graphjson.TypeTag, ctor graphjson.Constructor, fields graphjson.FieldTypeDescriptor) error {
	if tag == "" {
		return merr.WrapErrParameterMissing("tag")
	}
	if ctor == nil {
		return merr.WrapErrParameterMissing("constructor", string(tag))
	}
	if fields == nil {
		fields = graphjson.FieldTypeDescriptor{}
	}
	key := s.lookupKey(tag)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return merr.WrapErrTypeAlreadyRegistered(string(tag))
	}
	s.entries[key] = &entry{ctor: ctor, fields: fields}
	return nil
}

// RegisterDefinitions 注册一组类型定义，没有构造器的定义使用 Record。
func (s *Static) RegisterDefinitions(defs ...*TypeDefinition) error {
	for _, def := range defs {
		if err := s.Register(graphjson.TypeTag(def.Name), def.Constructor(), def.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (s *Static) ResolveMany(_ context.Context, keys []string) (map[string]graphjson.Constructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]graphjson.Constructor, len(keys))
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			out[key] = e.ctor
		}
	}
	return out, nil
}

func (s *Static) FieldTypesOf(key string) (graphjson.FieldTypeDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.fields, true
}

// Len 返回已注册的类型数量。
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
