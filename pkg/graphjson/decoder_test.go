package graphjson_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// countingRegistry 记录每次 ResolveMany 请求的键。
type countingRegistry struct {
	mu     sync.Mutex
	ctors  map[string]graphjson.Constructor
	fields map[string]graphjson.FieldTypeDescriptor
	calls  [][]string
	err    error
}

func newCountingRegistry() *countingRegistry {
	return &countingRegistry{
		ctors:  make(map[string]graphjson.Constructor),
		fields: make(map[string]graphjson.FieldTypeDescriptor),
	}
}

func (r *countingRegistry) define(key string, fields graphjson.FieldTypeDescriptor) *countingRegistry {
	r.ctors[key] = graphjson.NewRecordConstructor(graphjson.TypeTag(key))
	r.fields[key] = fields
	return r
}

func (r *countingRegistry) ResolveMany(_ context.Context, keys []string) (map[string]graphjson.Constructor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), keys...))
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string]graphjson.Constructor, len(keys))
	for _, key := range keys {
		if ctor, ok := r.ctors[key]; ok {
			out[key] = ctor
		}
	}
	return out, nil
}

func (r *countingRegistry) FieldTypesOf(key string) (graphjson.FieldTypeDescriptor, bool) {
	fields, ok := r.fields[key]
	return fields, ok
}

type DecoderSuite struct {
	suite.Suite
	ctx      context.Context
	registry *countingRegistry
	dec      *graphjson.Decoder
}

func (s *DecoderSuite) SetupTest() {
	s.ctx = context.Background()
	s.registry = newCountingRegistry().
		define("A", graphjson.FieldTypeDescriptor{
			"next":  graphjson.Typed("A"),
			"left":  graphjson.Typed("Leaf"),
			"right": graphjson.Typed("Leaf"),
		}).
		define("Leaf", graphjson.FieldTypeDescriptor{
			"value": graphjson.Scalar(),
		}).
		define("Foo", graphjson.FieldTypeDescriptor{
			"x":        graphjson.Scalar(),
			"childRef": graphjson.Typed("Foo"),
			"ref":      graphjson.Typed(""),
			"born":     graphjson.Date(),
			"kind":     graphjson.Typed("as.dto.Kind"),
			"code":     graphjson.Scalar().WithAlias("_code"),
			"blob":     graphjson.Opaque(),
			"items":    graphjson.ListOf(graphjson.Typed("Foo")),
			"byName":   graphjson.MapOf("String", graphjson.Typed("Foo")),
			"count":    graphjson.Any(),
		})
	s.dec = graphjson.NewDecoder(s.registry)
}

func (s *DecoderSuite) decode(declared *graphjson.FieldType, doc string) (any, error) {
	return s.dec.Unmarshal(s.ctx, []byte(doc), declared)
}

func (s *DecoderSuite) mustDecode(declared *graphjson.FieldType, doc string) any {
	out, err := s.decode(declared, doc)
	s.Require().NoError(err)
	return out
}

func field(r *graphjson.Record, name string) any {
	v, _ := r.Get(name)
	return v
}

func (s *DecoderSuite) TestSelfReference() {
	out := s.mustDecode(graphjson.Typed("A"), `{"@type":"A","@id":0,"next":0}`)
	a, ok := out.(*graphjson.Record)
	s.Require().True(ok)
	s.Same(a, field(a, "next"))
}

func (s *DecoderSuite) TestSharedReference() {
	out := s.mustDecode(nil, `{"@type":"A","@id":0,"left":{"@type":"Leaf","@id":1,"value":1},"right":1}`)
	a := out.(*graphjson.Record)
	left := field(a, "left").(*graphjson.Record)
	s.Same(left, field(a, "right"))
	s.Equal(int64(1), field(left, "value"))
}

func (s *DecoderSuite) TestForwardReference() {
	out := s.mustDecode(nil, `{"10": {"@type":"Foo","@id":1,"childRef":2}, "person": {"@type":"Foo","@id":2,"childRef": null}}`)
	root := out.(map[string]any)
	first := root["10"].(*graphjson.Record)
	person := root["person"].(*graphjson.Record)
	s.Same(person, field(first, "childRef"))
	s.Nil(field(person, "childRef"))
}

func (s *DecoderSuite) TestForwardReferenceIntoOpaqueSubtree() {
	out := s.mustDecode(nil, `{"@type":"Foo","@id":0,"ref":1,"blob":{"@type":"Foo","@id":1,"x":5}}`)
	root := out.(*graphjson.Record)
	target := field(root, "ref").(*graphjson.Record)
	s.Equal(int64(5), field(target, "x"))
	// 不透明字段仍按原样保留
	s.Equal(map[string]any{"@type": "Foo", "@id": int64(1), "x": int64(5)}, field(root, "blob"))
}

func (s *DecoderSuite) TestDuplicateReferenceID() {
	_, err := s.decode(nil, `[{"@type":"Foo","@id":3},{"@type":"Foo","@id":3}]`)
	s.ErrorIs(err, merr.ErrDuplicateReferenceID)
	s.Contains(err.Error(), "$[1]")
	s.Empty(s.registry.calls)
}

func (s *DecoderSuite) TestUnresolvedReference() {
	_, err := s.decode(nil, `{"@type":"Foo","@id":0,"childRef":7}`)
	s.ErrorIs(err, merr.ErrUnresolvedReference)
	s.Contains(err.Error(), "$.childRef")
}

func (s *DecoderSuite) TestDateIsLiteral() {
	out := s.mustDecode(nil, `{"@type":"Foo","@id":0,"born":1700000000000}`)
	s.Equal(int64(1700000000000), field(out.(*graphjson.Record), "born"))

	// 其他类型名也可以配置为标量
	dec := graphjson.NewDecoder(s.registry, graphjson.WithScalarTypes("Date", "as.dto.Kind"))
	out, err := dec.Unmarshal(s.ctx, []byte(`{"@type":"Foo","kind":42}`), nil)
	s.Require().NoError(err)
	s.Equal(int64(42), field(out.(*graphjson.Record), "kind"))
}

func (s *DecoderSuite) TestListOfSharedInstance() {
	out := s.mustDecode(graphjson.ListOf(graphjson.Typed("Foo")), `[ {"@type":"Foo","@id":0,"x":1}, 0 ]`)
	list := out.([]any)
	s.Require().Len(list, 2)
	s.Same(list[0], list[1])
	s.Equal(int64(1), field(list[0].(*graphjson.Record), "x"))
}

func (s *DecoderSuite) TestListAndMapFields() {
	out := s.mustDecode(nil, `{"@type":"Foo","@id":0,
		"items":[{"@type":"Foo","@id":1,"x":1},1,0],
		"byName":{"self":0,"first":1}}`)
	root := out.(*graphjson.Record)
	items := field(root, "items").([]any)
	s.Same(items[0], items[1])
	s.Same(root, items[2])
	byName := field(root, "byName").(map[string]any)
	s.Same(root, byName["self"])
	s.Same(items[0], byName["first"])
}

func (s *DecoderSuite) TestScalarAndAnyNumbersStayLiteral() {
	out := s.mustDecode(nil, `{"@type":"Foo","x":0,"count":3}`)
	root := out.(*graphjson.Record)
	s.Equal(int64(0), field(root, "x"))
	s.Equal(int64(3), field(root, "count"))
}

func (s *DecoderSuite) TestLegacyShorthand() {
	out := s.mustDecode(nil, `{"@type":"Foo","kind":["as.dto.Kind","SAMPLE"]}`)
	s.Equal("SAMPLE", field(out.(*graphjson.Record), "kind"))

	// 列表字段不适用
	out = s.mustDecode(nil, `{"@type":"Foo","items":[{"@type":"Foo","@id":1},1]}`)
	items := field(out.(*graphjson.Record), "items").([]any)
	s.Same(items[0], items[1])
}

func (s *DecoderSuite) TestAlias() {
	out := s.mustDecode(nil, `{"@type":"Foo","code":"P1"}`)
	root := out.(*graphjson.Record)
	s.Equal("P1", field(root, "_code"))
	_, ok := root.Get("code")
	s.False(ok)
}

func (s *DecoderSuite) TestUnknownFields() {
	out := s.mustDecode(nil, `{"@type":"Leaf","value":1,"extra":{"nested":[1,2]}}`)
	s.Equal(map[string]any{"nested": []any{int64(1), int64(2)}}, field(out.(*graphjson.Record), "extra"))

	strict := graphjson.NewDecoder(s.registry, graphjson.WithRejectUnknownFields(true))
	_, err := strict.Unmarshal(s.ctx, []byte(`{"@type":"Leaf","value":1,"extra":true}`), nil)
	s.ErrorIs(err, merr.ErrUnknownField)
}

func (s *DecoderSuite) TestUnknownType() {
	_, err := s.decode(nil, `{"@type":"Foo","ref":{"@type":"as.dto.Missing"}}`)
	s.ErrorIs(err, merr.ErrUnknownType)
	s.Contains(err.Error(), "as.dto.Missing")
}

func (s *DecoderSuite) TestConstructionFailure() {
	boom := errors.New("boom")
	s.registry.ctors["Foo"] = func() (graphjson.Instance, error) { return nil, boom }
	_, err := s.decode(nil, `{"@type":"Foo"}`)
	s.ErrorIs(err, merr.ErrConstructionFailure)
	s.ErrorIs(err, boom)

	s.registry.ctors["Foo"] = func() (graphjson.Instance, error) { panic("bad default") }
	_, err = s.decode(nil, `{"@type":"Foo"}`)
	s.ErrorIs(err, merr.ErrConstructionFailure)

	s.registry.ctors["Foo"] = func() (graphjson.Instance, error) { return nil, nil }
	_, err = s.decode(nil, `{"@type":"Foo"}`)
	s.ErrorIs(err, merr.ErrConstructionFailure)
}

func (s *DecoderSuite) TestSingleBatchResolve() {
	s.mustDecode(nil, `[{"@type":"Foo","items":[{"@type":"Leaf"},{"@type":"A"}]},{"@type":"Leaf"}]`)
	s.Equal([][]string{{"A", "Foo", "Leaf"}}, s.registry.calls)

	s.registry.calls = nil
	out := s.mustDecode(nil, `{"plain":[1,2,3]}`)
	s.Equal(map[string]any{"plain": []any{int64(1), int64(2), int64(3)}}, out)
	s.Empty(s.registry.calls)
}

func (s *DecoderSuite) TestLookupKey() {
	registry := newCountingRegistry().define("as/dto/Foo", graphjson.FieldTypeDescriptor{"x": graphjson.Scalar()})
	dec := graphjson.NewDecoder(registry, graphjson.WithLookupKey(graphjson.SlashKey))
	out, err := dec.Unmarshal(s.ctx, []byte(`{"@type":"as.dto.Foo","x":1}`), nil)
	s.Require().NoError(err)
	s.Equal(graphjson.TypeTag("as.dto.Foo"), out.(*graphjson.Record).GraphType())
	s.Equal([][]string{{"as/dto/Foo"}}, registry.calls)
}

func (s *DecoderSuite) TestRegistryError() {
	unavailable := merr.WrapErrLoaderUnavailable("Foo", errors.New("dial timeout"))
	s.registry.err = unavailable
	_, err := s.decode(nil, `{"@type":"Foo"}`)
	s.ErrorIs(err, merr.ErrLoaderUnavailable)
}

func (s *DecoderSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.dec.Unmarshal(ctx, []byte(`{"@type":"Foo"}`), nil)
	s.ErrorIs(err, context.Canceled)
	s.Empty(s.registry.calls)
}

func (s *DecoderSuite) TestMalformedDocument() {
	_, err := s.decode(nil, `{"@type":1}`)
	s.ErrorIs(err, merr.ErrMalformedDocument)

	_, err = s.decode(nil, `{"@type":"Foo","@id":-1}`)
	s.ErrorIs(err, merr.ErrMalformedDocument)

	_, err = s.decode(nil, `{"@type":`)
	s.ErrorIs(err, merr.ErrMalformedDocument)
}

func (s *DecoderSuite) TestMaxDepth() {
	dec := graphjson.NewDecoder(s.registry, graphjson.WithMaxDepth(2))
	_, err := dec.Unmarshal(s.ctx, []byte(`[[[[1]]]]`), nil)
	s.ErrorIs(err, merr.ErrGraphTooDeep)
}

func (s *DecoderSuite) TestDecodeAsync() {
	doc := map[string]any{"@type": "A", "@id": 0, "next": 0}
	future := s.dec.DecodeAsync(s.ctx, nil, doc)
	out, err := future.Await()
	s.Require().NoError(err)
	a := out.(*graphjson.Record)
	s.Same(a, field(a, "next"))
}

func (s *DecoderSuite) TestDiscoverTags() {
	tags, err := graphjson.DiscoverTags(map[string]any{
		"a": map[string]any{"@type": "X"},
		"b": []any{map[string]any{"@type": "Y", "c": map[string]any{"@type": "X"}}},
	})
	s.Require().NoError(err)
	s.ElementsMatch([]graphjson.TypeTag{"X", "Y"}, tags.Collect())
}

func TestDecoder(t *testing.T) {
	suite.Run(t, new(DecoderSuite))
}
