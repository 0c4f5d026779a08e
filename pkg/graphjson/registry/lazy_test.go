package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

type LazySuite struct {
	suite.Suite
	ctx   context.Context
	calls *atomic.Int64
	defs  map[string]*TypeDefinition
	fail  func(key string, attempt int64) error
}

func (s *LazySuite) SetupTest() {
	s.ctx = context.Background()
	s.calls = atomic.NewInt64(0)
	s.defs = map[string]*TypeDefinition{
		"Foo": {Fields: graphjson.FieldTypeDescriptor{"next": graphjson.Typed("Foo")}},
		"Bar": {Name: "as.dto.Bar"},
	}
	s.fail = nil
}

func (s *LazySuite) loader() Loader {
	return LoaderFunc(func(_ context.Context, key string) (*TypeDefinition, error) {
		attempt := s.calls.Inc()
		if s.fail != nil {
			if err := s.fail(key, attempt); err != nil {
				return nil, err
			}
		}
		def, ok := s.defs[key]
		if !ok {
			return nil, merr.WrapErrUnknownType(key, key)
		}
		clone := *def
		return &clone, nil
	})
}

func (s *LazySuite) TestResolveAndCache() {
	l := NewLazy(s.loader(), WithWorkers(2))
	defer l.Close()

	ctors, err := l.ResolveMany(s.ctx, []string{"Foo", "Bar", "Missing"})
	s.Require().NoError(err)
	s.Len(ctors, 2)
	s.NotContains(ctors, "Missing")
	s.Equal(int64(3), s.calls.Load())
	s.Equal(int64(2), l.Loads())
	s.Equal(2, l.Len())

	fields, ok := l.FieldTypesOf("Foo")
	s.True(ok)
	s.Contains(fields, "next")
	_, ok = l.FieldTypesOf("Missing")
	s.False(ok)

	inst, err := ctors["Bar"]()
	s.Require().NoError(err)
	s.Equal(graphjson.TypeTag("as.dto.Bar"), inst.(*graphjson.Record).GraphType())
	// 没有 name 的定义不把查找键当作类型名，标签在解码时取自 @type
	inst, err = ctors["Foo"]()
	s.Require().NoError(err)
	s.Empty(inst.(*graphjson.Record).GraphType())

	// 命中缓存不再调用 Loader
	_, err = l.ResolveMany(s.ctx, []string{"Foo", "Bar"})
	s.Require().NoError(err)
	s.Equal(int64(3), s.calls.Load())
}

func (s *LazySuite) TestConcurrentLoadsMerged() {
	release := make(chan struct{})
	s.fail = func(string, int64) error {
		<-release
		return nil
	}
	l := NewLazy(s.loader(), WithWorkers(4))
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctors, err := l.ResolveMany(s.ctx, []string{"Foo"})
			s.NoError(err)
			s.Len(ctors, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	s.Equal(int64(1), l.Loads())
}

func (s *LazySuite) TestRetriableError() {
	s.fail = func(key string, attempt int64) error {
		if attempt == 1 {
			return merr.WrapErrLoaderUnavailable(key, errors.New("connection refused"))
		}
		return nil
	}
	l := NewLazy(s.loader(), WithWorkers(1), WithRetryAttempts(3))
	defer l.Close()

	ctors, err := l.ResolveMany(s.ctx, []string{"Foo"})
	s.Require().NoError(err)
	s.Len(ctors, 1)
	s.Equal(int64(2), s.calls.Load())
}

func (s *LazySuite) TestPermanentError() {
	broken := errors.New("bad definition")
	s.fail = func(string, int64) error { return broken }
	l := NewLazy(s.loader(), WithWorkers(1))
	defer l.Close()

	_, err := l.ResolveMany(s.ctx, []string{"Foo"})
	s.ErrorIs(err, broken)
	s.Equal(int64(1), s.calls.Load())
	s.Equal(0, l.Len())
}

func (s *LazySuite) TestPreload() {
	l := NewLazy(s.loader(), WithWorkers(2))
	defer l.Close()

	s.Require().NoError(l.Preload(s.ctx, "Foo", "Bar"))
	s.Equal(2, l.Len())
	s.ErrorIs(l.Preload(s.ctx, "Missing"), merr.ErrUnknownType)
}

func (s *LazySuite) TestDecodeThroughLazy() {
	l := NewLazy(s.loader(), WithWorkers(2))
	defer l.Close()

	dec := graphjson.NewDecoder(l)
	out, err := dec.Unmarshal(s.ctx, []byte(`{"@type":"Foo","@id":0,"next":0}`), nil)
	s.Require().NoError(err)
	root := out.(*graphjson.Record)
	next, _ := root.Get("next")
	s.Same(root, next)

	_, err = dec.Unmarshal(s.ctx, []byte(`{"@type":"Missing"}`), nil)
	s.ErrorIs(err, merr.ErrUnknownType)
}

func (s *LazySuite) TestLoaderPanic() {
	s.fail = func(key string, _ int64) error {
		if key == "Bar" {
			panic("broken loader")
		}
		return nil
	}
	l := NewLazy(s.loader(), WithWorkers(2))
	defer l.Close()

	_, err := l.ResolveMany(s.ctx, []string{"Bar"})
	s.ErrorContains(err, "broken loader")

	ctors, err := l.ResolveMany(s.ctx, []string{"Foo"})
	s.Require().NoError(err)
	s.Contains(ctors, "Foo")
}

func (s *LazySuite) TestMergedLoadKeepsOwnContext() {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	loader := LoaderFunc(func(ctx context.Context, key string) (*TypeDefinition, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &TypeDefinition{Fields: graphjson.FieldTypeDescriptor{}}, nil
	})
	l := NewLazy(loader, WithWorkers(2))
	defer l.Close()

	first, cancel := context.WithCancel(s.ctx)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.ResolveMany(first, []string{"Foo"})
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		ctors, err := l.ResolveMany(s.ctx, []string{"Foo"})
		if err == nil && len(ctors) != 1 {
			err = errors.New("constructor missing")
		}
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	s.ErrorIs(<-firstErr, context.Canceled)
	close(release)
	s.NoError(<-secondErr)
	s.Equal(int64(1), l.Loads())
}

func (s *LazySuite) TestRoundTripWithSlashKeys() {
	stored := map[string]string{
		"as/dto/sample/Sample":   "fields: {code: Scalar, project: as.dto.project.Project, children: List<as.dto.sample.Sample>}",
		"as/dto/project/Project": "fields: {code: Scalar}",
	}
	l := NewLazy(LoaderFunc(func(_ context.Context, key string) (*TypeDefinition, error) {
		data, ok := stored[key]
		if !ok {
			return nil, merr.WrapErrUnknownType(key, key)
		}
		return ParseTypeDefinition(key, []byte(data))
	}), WithWorkers(2))
	defer l.Close()

	dec := graphjson.NewDecoder(l, graphjson.WithLookupKey(graphjson.SlashKey))
	// 字段按名称顺序解码，编号也按这个顺序排列，重新编码后与原文档一致
	doc := `{"@type":"as.dto.sample.Sample","@id":0,` +
		`"children":[{"@type":"as.dto.sample.Sample","@id":1,"children":[0],"code":"S2",` +
		`"project":{"@type":"as.dto.project.Project","@id":2,"code":"P1"}}],` +
		`"code":"S1","project":2}`
	out, err := dec.Unmarshal(s.ctx, []byte(doc), nil)
	s.Require().NoError(err)
	s.Equal(graphjson.TypeTag("as.dto.sample.Sample"), out.(*graphjson.Record).GraphType())

	data, err := graphjson.NewEncoder().Marshal(out)
	s.Require().NoError(err)
	s.JSONEq(doc, string(data))
	s.NotContains(string(data), "as/dto")
}

func TestLazy(t *testing.T) {
	suite.Run(t, new(LazySuite))
}
