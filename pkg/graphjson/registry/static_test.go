package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

func TestStaticRegister(t *testing.T) {
	s := NewStatic()
	fields := graphjson.FieldTypeDescriptor{"code": graphjson.Scalar()}
	require.NoError(t, s.Register("as.dto.Foo", graphjson.NewRecordConstructor("as.dto.Foo"), fields))
	require.NoError(t, s.Register("as.dto.Bar", graphjson.NewRecordConstructor("as.dto.Bar"), nil))

	err := s.Register("as.dto.Foo", graphjson.NewRecordConstructor("as.dto.Foo"), nil)
	assert.ErrorIs(t, err, merr.ErrTypeAlreadyRegistered)
	assert.ErrorIs(t, s.Register("", graphjson.NewRecordConstructor("x"), nil), merr.ErrParameterMissing)
	assert.ErrorIs(t, s.Register("x", nil, nil), merr.ErrParameterMissing)
	assert.Equal(t, 2, s.Len())

	ctors, err := s.ResolveMany(context.Background(), []string{"as.dto.Foo", "as.dto.Missing"})
	require.NoError(t, err)
	assert.Len(t, ctors, 1)
	assert.Contains(t, ctors, "as.dto.Foo")

	got, ok := s.FieldTypesOf("as.dto.Foo")
	assert.True(t, ok)
	assert.Equal(t, fields, got)

	empty, ok := s.FieldTypesOf("as.dto.Bar")
	assert.True(t, ok)
	assert.Empty(t, empty)

	_, ok = s.FieldTypesOf("as.dto.Missing")
	assert.False(t, ok)
}

func TestStaticKeyFunc(t *testing.T) {
	s := NewStatic(WithKeyFunc(graphjson.SlashKey))
	require.NoError(t, s.Register("as.dto.Foo", graphjson.NewRecordConstructor("as.dto.Foo"), nil))

	dec := graphjson.NewDecoder(s, graphjson.WithLookupKey(graphjson.SlashKey))
	out, err := dec.Unmarshal(context.Background(), []byte(`{"@type":"as.dto.Foo","@id":0}`), nil)
	require.NoError(t, err)
	assert.Equal(t, graphjson.TypeTag("as.dto.Foo"), out.(*graphjson.Record).GraphType())
}

func TestChain(t *testing.T) {
	first := NewStatic()
	require.NoError(t, first.Register("A", graphjson.NewRecordConstructor("first.A"), graphjson.FieldTypeDescriptor{"x": graphjson.Scalar()}))
	second := NewStatic()
	require.NoError(t, second.Register("A", graphjson.NewRecordConstructor("second.A"), nil))
	require.NoError(t, second.Register("B", graphjson.NewRecordConstructor("second.B"), nil))

	chain := NewChain(first, nil, second)
	assert.Len(t, chain, 2)

	ctors, err := chain.ResolveMany(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, ctors, 2)
	inst, err := ctors["A"]()
	require.NoError(t, err)
	assert.Equal(t, graphjson.TypeTag("first.A"), inst.(*graphjson.Record).GraphType())

	fields, ok := chain.FieldTypesOf("A")
	assert.True(t, ok)
	assert.Contains(t, fields, "x")
	_, ok = chain.FieldTypesOf("C")
	assert.False(t, ok)
}
