package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

type testSpace struct {
	Code string `json:"code"`
}

func (*testSpace) GraphType() graphjson.TypeTag { return "as.dto.space.Space" }

type testProject struct {
	Code       string     `json:"code"`
	Space      *testSpace `json:"space"`
	Registered time.Time  `json:"registrationDate"`
}

func (*testProject) GraphType() graphjson.TypeTag { return "as.dto.project.Project" }

type testSample struct {
	Code     string            `json:"code"`
	PermID   string            `json:"_permId"`
	Project  *testProject      `json:"project"`
	Parents  []*testSample     `json:"parents"`
	Props    map[string]string `json:"properties"`
	Owner    graphjson.Tagged  `json:"owner"`
	Meta     any               `json:"meta"`
	Kind     string            `json:"kind" graph:"as.dto.Kind"`
	Counts   map[int]int       `json:"counts"`
	Size     *int32            `json:"size"`
	Modified *time.Time        `json:"modificationDate"`
	Extra    map[string]any    `graph:",unknown"`
}

func (*testSample) GraphType() graphjson.TypeTag { return "as.dto.sample.Sample" }

type ReflectSuite struct {
	suite.Suite
	registry *Reflect
}

func (s *ReflectSuite) SetupTest() {
	s.registry = NewReflect()
	s.Require().NoError(s.registry.Register(&testSpace{}, &testProject{}, &testSample{}))
}

func (s *ReflectSuite) TestDescribe() {
	fields, ok := s.registry.FieldTypesOf("as.dto.sample.Sample")
	s.Require().True(ok)

	expect := map[string]*graphjson.FieldType{
		"code":             graphjson.Scalar(),
		"permId":           graphjson.Scalar(),
		"project":          graphjson.Typed("as.dto.project.Project"),
		"parents":          graphjson.ListOf(graphjson.Typed("as.dto.sample.Sample")),
		"properties":       graphjson.MapOf("String", graphjson.Scalar()),
		"owner":            graphjson.Typed(""),
		"meta":             graphjson.Any(),
		"kind":             graphjson.Typed("as.dto.Kind"),
		"counts":           graphjson.Opaque(),
		"size":             graphjson.Scalar(),
		"modificationDate": graphjson.Date(),
	}
	s.Len(fields, len(expect))
	for wire, want := range expect {
		got, ok := fields[wire]
		if s.True(ok, wire) {
			s.True(want.Equal(got), "%s: got %s want %s", wire, got, want)
		}
	}
	s.Equal("PermID", fields["permId"].Alias)
}

func (s *ReflectSuite) TestRegisterErrors() {
	s.ErrorIs(s.registry.Register(&testSpace{}), merr.ErrTypeAlreadyRegistered)

	_, err := Describe(valueTagged{})
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = Describe(&badExtra{})
	s.ErrorIs(err, merr.ErrParameterInvalid)

	for _, sample := range []graphjson.Tagged{&leafHolder{}, &leafListHolder{}, &leafMapHolder{}} {
		_, err = Describe(sample)
		s.ErrorIs(err, merr.ErrParameterInvalid, "%T", sample)
		s.ErrorContains(err, "must be held by pointer")
	}
}

type leaf struct {
	Value int `json:"value"`
}

func (*leaf) GraphType() graphjson.TypeTag { return "Leaf" }

// 以值保存带标签对象时，先出现的引用只能复制到一个尚未填充的对象
type leafHolder struct {
	First leaf  `json:"first"`
	Later *leaf `json:"later"`
}

func (*leafHolder) GraphType() graphjson.TypeTag { return "LeafHolder" }

type leafListHolder struct {
	Leaves []leaf `json:"leaves"`
}

func (*leafListHolder) GraphType() graphjson.TypeTag { return "LeafListHolder" }

type leafMapHolder struct {
	Leaves map[string]leaf `json:"leaves"`
}

func (*leafMapHolder) GraphType() graphjson.TypeTag { return "LeafMapHolder" }

func (s *ReflectSuite) TestPointerHeldForwardReference() {
	s.Require().NoError(s.registry.Register(&leaf{}, &pointerHolder{}))

	dec := graphjson.NewDecoder(s.registry)
	out, err := dec.Unmarshal(context.Background(),
		[]byte(`{"@type":"PointerHolder","@id":0,"first":1,"later":{"@type":"Leaf","@id":1,"value":7}}`), nil)
	s.Require().NoError(err)
	h := out.(*pointerHolder)
	s.Same(h.First, h.Later)
	s.Equal(7, h.First.Value)
}

type pointerHolder struct {
	First *leaf `json:"first"`
	Later *leaf `json:"later"`
}

func (*pointerHolder) GraphType() graphjson.TypeTag { return "PointerHolder" }

type valueTagged struct{}

func (valueTagged) GraphType() graphjson.TypeTag { return "Value" }

type badExtra struct {
	Extra []string `graph:",unknown"`
}

func (*badExtra) GraphType() graphjson.TypeTag { return "Bad" }

func (s *ReflectSuite) TestRoundTrip() {
	space := &testSpace{Code: "DEFAULT"}
	registered := time.UnixMilli(1700000000000)
	modified := time.UnixMilli(1700000005000)
	size := int32(12)
	sample := &testSample{
		Code:     "S1",
		PermID:   "20240101-1",
		Project:  &testProject{Code: "P1", Space: space, Registered: registered},
		Props:    map[string]string{"NAME": "first"},
		Owner:    space,
		Meta:     map[string]any{"source": "import"},
		Kind:     "SAMPLE",
		Counts:   map[int]int{1: 2},
		Size:     &size,
		Modified: &modified,
		Extra:    map[string]any{"flavor": "vanilla"},
	}
	sample.Parents = []*testSample{sample}

	data, err := graphjson.NewEncoder().Marshal(sample)
	s.Require().NoError(err)

	out, err := graphjson.NewDecoder(s.registry).Unmarshal(context.Background(), data, graphjson.Typed("as.dto.sample.Sample"))
	s.Require().NoError(err)
	got, ok := out.(*testSample)
	s.Require().True(ok)

	s.Equal("S1", got.Code)
	s.Equal("20240101-1", got.PermID)
	s.Require().Len(got.Parents, 1)
	s.Same(got, got.Parents[0])
	s.Same(got.Project.Space, got.Owner)
	s.True(registered.Equal(got.Project.Registered))
	s.Require().NotNil(got.Modified)
	s.True(modified.Equal(*got.Modified))
	s.Equal(map[string]string{"NAME": "first"}, got.Props)
	s.Equal(map[string]any{"source": "import"}, got.Meta)
	s.Equal("SAMPLE", got.Kind)
	s.Equal(map[int]int{1: 2}, got.Counts)
	s.Require().NotNil(got.Size)
	s.Equal(int32(12), *got.Size)
	s.Equal(map[string]any{"flavor": "vanilla"}, got.Extra)
}

func (s *ReflectSuite) TestLegacyShorthandAndUnknownFields() {
	doc := `{"@type":"as.dto.sample.Sample","@id":0,"kind":["as.dto.Kind","SAMPLE"],"flavor":"x"}`
	out, err := graphjson.NewDecoder(s.registry).Unmarshal(context.Background(), []byte(doc), nil)
	s.Require().NoError(err)
	got := out.(*testSample)
	s.Equal("SAMPLE", got.Kind)
	s.Equal(map[string]any{"flavor": "x"}, got.Extra)

	// 没有收集字段的类型直接丢弃未声明字段
	out, err = graphjson.NewDecoder(s.registry).Unmarshal(context.Background(), []byte(`{"@type":"as.dto.space.Space","code":"S","other":1}`), nil)
	s.Require().NoError(err)
	s.Equal(&testSpace{Code: "S"}, out)
}

func (s *ReflectSuite) TestForwardReference() {
	doc := `{"@type":"as.dto.sample.Sample","@id":0,
		"owner":2,
		"project":{"@type":"as.dto.project.Project","@id":1,"code":"P1","space":{"@type":"as.dto.space.Space","@id":2,"code":"DEFAULT"}}}`
	out, err := graphjson.NewDecoder(s.registry).Unmarshal(context.Background(), []byte(doc), nil)
	s.Require().NoError(err)
	got := out.(*testSample)
	s.Same(got.Project.Space, got.Owner)
	s.Equal("DEFAULT", got.Project.Space.Code)
}

func (s *ReflectSuite) TestAssignFailure() {
	doc := `{"@type":"as.dto.sample.Sample","size":1e12}`
	_, err := graphjson.NewDecoder(s.registry).Unmarshal(context.Background(), []byte(doc), nil)
	s.ErrorIs(err, merr.ErrFieldAssign)

	doc = `{"@type":"as.dto.sample.Sample","code":{"nested":true}}`
	_, err = graphjson.NewDecoder(s.registry).Unmarshal(context.Background(), []byte(doc), nil)
	s.ErrorIs(err, merr.ErrFieldAssign)
}

func TestReflect(t *testing.T) {
	suite.Run(t, new(ReflectSuite))
}
