package compressor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

func TestNew(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmNone, c.Algorithm())

	c, err = New("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmZstd, c.Algorithm())
	c.(*ZstdCompressor).Close()

	_, err = New("lz4")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestNopCompressor(t *testing.T) {
	src := []byte(`{"@type":"A","@id":0}`)
	packet, err := NopCompressor{}.Compress(nil, src)
	require.NoError(t, err)
	assert.Equal(t, src, packet)
	plain, err := NopCompressor{}.Decompress(nil, packet)
	require.NoError(t, err)
	assert.Equal(t, src, plain)
}

func TestZstdCompressor(t *testing.T) {
	c, err := NewZstdCompressorWithConcurrency(2)
	require.NoError(t, err)
	defer c.Close()

	src := bytes.Repeat([]byte(`{"@type":"as.dto.sample.Sample","@id":1,"code":"S1"},`), 64)
	packet, err := c.Compress(nil, src)
	require.NoError(t, err)
	assert.Less(t, len(packet), len(src))

	plain, err := c.Decompress(nil, packet)
	require.NoError(t, err)
	assert.Equal(t, src, plain)

	_, err = c.Decompress(nil, []byte("not zstd"))
	assert.ErrorIs(t, err, merr.ErrDecompressFailed)
}

func TestZstdClosed(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	c.Close()
	c.Close()

	_, err = c.Compress(nil, []byte("x"))
	assert.ErrorIs(t, err, merr.ErrCompressFailed)
	_, err = c.Decompress(nil, []byte("x"))
	assert.ErrorIs(t, err, merr.ErrDecompressFailed)
}
