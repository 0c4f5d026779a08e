package compressor

import (
	"strings"

	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// 支持的压缩算法名。
const (
	AlgorithmNone = "none"
	AlgorithmZstd = "zstd"
)

// Compressor 抽象了单次压缩/解压能力，用于序列化后的图文档。
type Compressor interface {
	// Compress 将 src 压缩到 dst。
	//
	// dst 可以传入一个可复用的缓冲区（长度可为 0），实现可选择复用其底层容量。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将 Compress 的输出 src 解压到 dst。
	Decompress(dst, src []byte) (plain []byte, err error)

	// Algorithm 返回算法名，用于日志与错误信息。
	Algorithm() string
}

// NopCompressor 不做任何压缩，直接返回输入内容，是未开启压缩时的默认值。
type NopCompressor struct{}

var _ Compressor = NopCompressor{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Algorithm() string {
	return AlgorithmNone
}

// New 按算法名创建压缩器，空字符串等同于 none。
func New(algorithm string) (Compressor, error) {
	switch strings.ToLower(algorithm) {
	case "", AlgorithmNone:
		return NopCompressor{}, nil
	case AlgorithmZstd:
		return NewZstdCompressor()
	default:
		return nil, merr.WrapErrParameterInvalid(AlgorithmNone+"|"+AlgorithmZstd, algorithm, "unknown compression algorithm")
	}
}
