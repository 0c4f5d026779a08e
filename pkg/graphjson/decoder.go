package graphjson

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kykrueger/openbis-sub009/internal/json"
	"github.com/kykrueger/openbis-sub009/pkg/log"
	"github.com/kykrueger/openbis-sub009/pkg/metrics"
	"github.com/kykrueger/openbis-sub009/pkg/util/conc"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
	"github.com/kykrueger/openbis-sub009/pkg/util/typeutil"
)

const tracerName = "github.com/kykrueger/openbis-sub009/pkg/graphjson"

// Decoder 根据 TypeRegistry 把图文档还原成对象图。
// 每次解码拥有独立的引用表，Decoder 本身可以并发使用。
type Decoder struct {
	log.Binder
	registry      TypeRegistry
	lookupKey     LookupKeyFunc
	scalarTypes   typeutil.Set[string]
	rejectUnknown bool
	maxDepth      int
}

func NewDecoder(registry TypeRegistry, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		registry:    registry,
		lookupKey:   DottedKey,
		scalarTypes: typeutil.NewSet(DateType),
		maxDepth:    DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode 还原 doc 表示的对象图，declared 为 nil 时按 @type 推断。
// doc 可以是解析得到的 map[string]any/[]any 树，也可以是 Encoder 的输出。
// 任何错误都会中止整个解码，不返回部分结果。
func (d *Decoder) Decode(ctx context.Context, declared *FieldType, doc any) (any, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "graphjson.Decode")
	defer span.End()

	start := time.Now()
	out, err := d.decode(ctx, declared, doc)
	result := metrics.ResultLabel(err)
	metrics.CodecDecodeTotal.WithLabelValues(result).Inc()
	metrics.CodecDecodeLatency.WithLabelValues(result).Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.Logger().Warn("decode graph failed", append(log.SpanFields(ctx), zap.Error(err))...)
		return nil, err
	}
	return out, nil
}

// Unmarshal 解析 JSON 后解码，数字保持精确值。
func (d *Decoder) Unmarshal(ctx context.Context, data []byte, declared *FieldType) (any, error) {
	var doc any
	if err := json.UnmarshalNumber(data, &doc); err != nil {
		return nil, merr.WrapErrMalformedDocument(rootPath, "invalid json", err.Error())
	}
	metrics.CodecDocumentBytes.WithLabelValues(metrics.DecodeLabel).Observe(float64(len(data)))
	return d.Decode(ctx, declared, doc)
}

// DecodeAsync 在独立协程中解码并返回 Future。
func (d *Decoder) DecodeAsync(ctx context.Context, declared *FieldType, doc any) *conc.Future[any] {
	return conc.Go(func() (any, error) {
		return d.Decode(ctx, declared, doc)
	})
}

// DiscoverTags 只执行发现阶段。
func (d *Decoder) DiscoverTags(doc any) (typeutil.Set[TypeTag], error) {
	disc := newDiscovery(d.maxDepth)
	if err := disc.walk(doc, rootPath, 0); err != nil {
		return nil, err
	}
	return disc.tags, nil
}

func (d *Decoder) decode(ctx context.Context, declared *FieldType, doc any) (any, error) {
	if d.registry == nil {
		return nil, merr.ErrRegistryNotInitialized
	}
	disc := newDiscovery(d.maxDepth)
	if err := disc.walk(doc, rootPath, 0); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 唯一的挂起点：全部类型解析完成前不开始构造
	types, err := d.resolveTypes(ctx, disc.tags)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := &resolveState{
		d:       d,
		logger:  d.Logger(),
		types:   types,
		defs:    disc.defs,
		table:   make(map[ReferenceID]Instance, len(disc.defs)),
		pending: make(map[ReferenceID]struct{}),
	}
	root, err := st.value(declared, doc, rootPath, 0)
	if err != nil {
		return nil, err
	}
	if err := st.drain(); err != nil {
		return nil, err
	}
	metrics.CodecReferencesTotal.WithLabelValues(metrics.DecodeLabel).Add(float64(st.resolved))
	return root, nil
}

type resolvedType struct {
	ctor   Constructor
	fields FieldTypeDescriptor
}

func compareTags(a, b TypeTag) int {
	return strings.Compare(string(a), string(b))
}

func (d *Decoder) resolveTypes(ctx context.Context, tags typeutil.Set[TypeTag]) (map[TypeTag]*resolvedType, error) {
	out := make(map[TypeTag]*resolvedType, tags.Len())
	if tags.Len() == 0 {
		return out, nil
	}

	sorted := tags.Sorted(compareTags)
	keyOf := make(map[TypeTag]string, len(sorted))
	keys := make([]string, 0, len(sorted))
	seen := typeutil.NewSet[string]()
	for _, tag := range sorted {
		key := d.lookupKey(tag)
		keyOf[tag] = key
		if !seen.Contain(key) {
			seen.Insert(key)
			keys = append(keys, key)
		}
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "graphjson.ResolveMany")
	span.SetAttributes(attribute.Int("graphjson.types", len(keys)))
	ctors, err := d.registry.ResolveMany(ctx, keys)
	span.End()
	if err != nil {
		return nil, errors.Wrapf(err, "graphjson: resolve %d types", len(keys))
	}

	for _, tag := range sorted {
		key := keyOf[tag]
		ctor, ok := ctors[key]
		if !ok || ctor == nil {
			return nil, merr.WrapErrUnknownType(string(tag), key)
		}
		fields, _ := d.registry.FieldTypesOf(key)
		out[tag] = &resolvedType{ctor: ctor, fields: fields}
	}
	return out, nil
}

// resolveState 是一次解码的引用表与待填充实例集合。
type resolveState struct {
	d      *Decoder
	logger *log.MLogger
	types  map[TypeTag]*resolvedType
	defs   map[ReferenceID]definition
	table  map[ReferenceID]Instance
	// pending 为被前向引用提前构造、尚未填充字段的实例
	pending  map[ReferenceID]struct{}
	queue    []ReferenceID
	resolved int
}

func (s *resolveState) isReference(t *FieldType) bool {
	return t != nil && t.Kind == KindTyped && !s.d.scalarTypes.Contain(t.Name)
}

func (s *resolveState) value(declared *FieldType, raw any, path string, depth int) (any, error) {
	if depth > s.d.maxDepth {
		return nil, merr.WrapErrGraphTooDeep(path, s.d.maxDepth)
	}
	if raw == nil {
		return nil, nil
	}
	if declared != nil && (declared.Kind == KindScalar || declared.Kind == KindOpaque) {
		return plainValue(raw), nil
	}
	if n, ok := asNode(raw); ok {
		if _, tagged := n.get(TypeKey); tagged {
			return s.object(n, path, depth)
		}
		return s.mapValue(declared, n, path, depth)
	}
	if arr, ok := raw.([]any); ok {
		return s.list(declared, arr, path, depth)
	}
	if isNumber(raw) && s.isReference(declared) {
		return s.reference(raw, path)
	}
	return normalizeScalar(raw), nil
}

func isPrimitive(v any) bool {
	if _, ok := asNode(v); ok {
		return false
	}
	_, isList := v.([]any)
	return !isList
}

func (s *resolveState) list(declared *FieldType, arr []any, path string, depth int) (any, error) {
	// 兼容旧格式 [标签, 原始值]，只用于声明为具名类型的字段
	if declared != nil && declared.Kind == KindTyped && len(arr) == 2 {
		if _, ok := arr[0].(string); ok && isPrimitive(arr[1]) {
			return normalizeScalar(arr[1]), nil
		}
	}
	var elem *FieldType
	if declared != nil {
		switch declared.Kind {
		case KindList, KindMap:
			elem = declared.Elem
		case KindTyped:
			elem = declared
		}
	}
	out := make([]any, len(arr))
	for i := range arr {
		v, err := s.value(elem, arr[i], indexPath(path, i), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *resolveState) mapValue(declared *FieldType, n node, path string, depth int) (any, error) {
	var elem *FieldType
	if declared != nil && (declared.Kind == KindMap || declared.Kind == KindList) {
		elem = declared.Elem
	}
	out := make(map[string]any, len(n.keys))
	for _, key := range n.keys {
		v, err := s.value(elem, n.values[key], fieldPath(path, key), depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (s *resolveState) typeOf(tag TypeTag) (*resolvedType, error) {
	rt, ok := s.types[tag]
	if !ok {
		return nil, merr.WrapErrUnknownType(string(tag), s.d.lookupKey(tag))
	}
	return rt, nil
}

func (s *resolveState) object(n node, path string, depth int) (any, error) {
	raw, _ := n.get(TypeKey)
	tagStr, ok := raw.(string)
	if !ok {
		return nil, merr.WrapErrMalformedDocument(path, "@type must be a non-empty string")
	}
	tag := TypeTag(tagStr)
	rt, err := s.typeOf(tag)
	if err != nil {
		return nil, err
	}

	var inst Instance
	if rawID, hasID := n.get(IDKey); hasID && rawID != nil {
		id, ok := asReferenceID(rawID)
		if !ok {
			return nil, merr.WrapErrMalformedDocument(path, "@id must be a non-negative integer")
		}
		if existing, ok := s.table[id]; ok {
			if _, waiting := s.pending[id]; !waiting {
				return nil, merr.WrapErrDuplicateReferenceID(int64(id), path, s.defs[id].path)
			}
			delete(s.pending, id)
			inst = existing
		} else {
			if inst, err = s.construct(tag, rt, path); err != nil {
				return nil, err
			}
			// 先登记再填充字段，指回自身的引用才能解析
			s.table[id] = inst
		}
	} else if inst, err = s.construct(tag, rt, path); err != nil {
		return nil, err
	}

	if err := s.populate(inst, tag, rt, n, path, depth); err != nil {
		return nil, err
	}
	return inst.Interface(), nil
}

// reference 解析引用编号。目标尚未遍历到时按索引的定义提前构造实例，之后再填充。
func (s *resolveState) reference(raw any, path string) (any, error) {
	id, ok := asReferenceID(raw)
	if !ok {
		return nil, merr.WrapErrMalformedDocument(path, "reference must be a non-negative integer")
	}
	s.resolved++
	if inst, ok := s.table[id]; ok {
		return inst.Interface(), nil
	}
	def, ok := s.defs[id]
	if !ok {
		return nil, merr.WrapErrUnresolvedReference(int64(id), path)
	}
	rt, err := s.typeOf(def.tag)
	if err != nil {
		return nil, err
	}
	inst, err := s.construct(def.tag, rt, def.path)
	if err != nil {
		return nil, err
	}
	s.table[id] = inst
	s.pending[id] = struct{}{}
	s.queue = append(s.queue, id)
	return inst.Interface(), nil
}

// drain 填充定义位于未遍历子树（如不透明字段）中的前向引用实例。
func (s *resolveState) drain() error {
	for i := 0; i < len(s.queue); i++ {
		id := s.queue[i]
		if _, waiting := s.pending[id]; !waiting {
			continue
		}
		delete(s.pending, id)
		def := s.defs[id]
		if err := s.populate(s.table[id], def.tag, s.types[def.tag], def.node, def.path, def.depth); err != nil {
			return err
		}
	}
	return nil
}

func (s *resolveState) populate(inst Instance, tag TypeTag, rt *resolvedType, n node, path string, depth int) error {
	for _, key := range n.keys {
		if key == TypeKey || key == IDKey {
			continue
		}
		raw := n.values[key]
		fpath := fieldPath(path, key)
		storage := key

		var (
			v   any
			err error
		)
		if ft, declared := rt.fields[key]; declared {
			if ft == nil {
				ft = Any()
			}
			v, err = s.value(ft, raw, fpath, depth+1)
			if err != nil {
				return err
			}
			storage = ft.StorageName(key)
		} else {
			if s.d.rejectUnknown {
				return merr.WrapErrUnknownField(string(tag), key, fpath)
			}
			s.logger.RatedDebug(1, "pass through undeclared field",
				log.FieldTypeTag(string(tag)),
				zap.String("field", key),
				log.FieldPath(fpath))
			v = plainValue(raw)
		}
		if err := inst.Set(storage, v); err != nil {
			return merr.WrapErrFieldAssign(string(tag), key, fpath, err)
		}
	}
	return nil
}

func (s *resolveState) construct(tag TypeTag, rt *resolvedType, path string) (inst Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, merr.WrapErrConstructionFailure(string(tag), path, errors.Newf("constructor panicked: %v", r))
		}
	}()
	inst, err = rt.ctor()
	if err != nil {
		return nil, merr.WrapErrConstructionFailure(string(tag), path, err)
	}
	if inst == nil {
		return nil, merr.WrapErrConstructionFailure(string(tag), path, errors.New("constructor returned nil instance"))
	}
	// 构造器按查找键注册，标签以文档为准
	if rec, ok := inst.(*Record); ok && rec != nil {
		rec.retag(tag)
	}
	return inst, nil
}
