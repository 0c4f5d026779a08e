package codec

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/kykrueger/openbis-sub009/internal/network/compressor"
	"github.com/kykrueger/openbis-sub009/internal/network/framer"
	"github.com/kykrueger/openbis-sub009/internal/network/serializer"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// Codec 把对象写成字节流中的一帧，或从一帧还原对象。
//
// 写出：msg --> serializer --> [compress?] --> framer.WriteFrame
//
// 读入：framer.ReadFrame --> [decompress?] --> serializer --> msg
type Codec interface {
	Encode(w io.Writer, msg any) error

	// Decode 读取一帧并解码到 msg，流已结束时返回 io.EOF。
	Decode(ctx context.Context, r io.Reader, msg any) error

	// DecodeRaw 读取一帧并返回解压后的字节，不做反序列化。
	DecodeRaw(r io.Reader) ([]byte, error)
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer
	Serializer serializer.Serializer
	// Compressor 为 nil 时使用 NopCompressor
	Compressor compressor.Compressor

	EnableCompression bool
	// MinCompressSize 以下的负载不压缩，帧上也不设置压缩标志。
	MinCompressSize int
}

type codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor
	compress   bool
	minSize    int
}

var _ Codec = (*codec)(nil)

func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, merr.WrapErrParameterMissing("framer")
	}
	if opts.Serializer == nil {
		return nil, merr.WrapErrParameterMissing("serializer")
	}
	c := &codec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
		compressor: opts.Compressor,
		compress:   opts.EnableCompression,
		minSize:    opts.MinCompressSize,
	}
	if c.compressor == nil {
		c.compressor = compressor.NopCompressor{}
	}
	return c, nil
}

func (c *codec) Encode(w io.Writer, msg any) error {
	if w == nil {
		return merr.WrapErrParameterMissing("writer")
	}
	body, err := c.serializer.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "codec: marshal")
	}

	var flags uint8
	if c.compress && len(body) > 0 && len(body) >= c.minSize {
		body, err = c.compressor.Compress(nil, body)
		if err != nil {
			return err
		}
		flags |= framer.FlagCompressed
	}
	if err := c.framer.WriteFrame(w, framer.Frame{Flags: flags, Payload: body}); err != nil {
		return errors.Wrap(err, "codec: write frame")
	}
	return nil
}

func (c *codec) DecodeRaw(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, merr.WrapErrParameterMissing("reader")
	}
	frame, err := c.framer.ReadFrame(r)
	if err != nil {
		return nil, err
	}
	data := frame.Payload
	if frame.Flags&framer.FlagCompressed != 0 {
		if !c.compress {
			return nil, merr.WrapErrDecompress(c.compressor.Algorithm(), errors.New("compressed payload but compression disabled"))
		}
		data, err = c.compressor.Decompress(nil, data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (c *codec) Decode(ctx context.Context, r io.Reader, msg any) error {
	data, err := c.DecodeRaw(r)
	if err != nil {
		return err
	}
	if msg == nil || len(data) == 0 {
		return nil
	}
	return serializer.Unmarshal(ctx, c.serializer, data, msg)
}
