package framer

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// Frame 是一帧数据：标志位与负载。
type Frame struct {
	Flags   uint8
	Payload []byte
}

// 标志位。
const (
	FlagCompressed uint8 = 1 << iota
)

// Framer 抽象了在字节流上划分图文档的能力。
type Framer interface {
	WriteFrame(w io.Writer, f Frame) error
	ReadFrame(r io.Reader) (Frame, error)
}

// LengthPrefixedFramer 使用 4 字节大端长度作为帧边界：
//
//	length(uint32) | flags(uint8) | payload
//
// length 为 flags 与 payload 的总长度。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧大小，为 0 时使用 defaultMaxFrameSize。
	MaxFrameSize uint32
}

const defaultMaxFrameSize uint32 = 16 * 1024 * 1024 // 16MB

var _ Framer = (*LengthPrefixedFramer)(nil)

func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &LengthPrefixedFramer{MaxFrameSize: maxFrameSize}
}

func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, frame Frame) error {
	length := uint64(len(frame.Payload)) + 1
	if length > uint64(f.effectiveMaxSize()) {
		return merr.WrapErrParameterInvalidRange(0, uint64(f.effectiveMaxSize()), length, "frame too large")
	}

	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(length))
	header[4] = frame.Flags
	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "framer: write header")
	}
	if len(frame.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(frame.Payload); err != nil {
		return errors.Wrap(err, "framer: write payload")
	}
	return nil
}

// ReadFrame 读取一帧。流在帧边界处结束时返回 io.EOF。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) (Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, errors.Wrap(err, "framer: read header")
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > f.effectiveMaxSize() {
		return Frame{}, merr.WrapErrParameterInvalidRange(uint32(1), f.effectiveMaxSize(), length, "bad frame length")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, errors.Wrap(err, "framer: read payload")
	}
	return Frame{Flags: body[0], Payload: body[1:]}, nil
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return f.MaxFrameSize
}
