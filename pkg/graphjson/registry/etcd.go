package registry

import (
	"context"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// DefaultEtcdPrefix 是类型定义在 etcd 中的默认前缀。
const DefaultEtcdPrefix = "/graphjson/types"

// EtcdLoader 从 etcd 读取类型定义，每个查找键对应 <prefix>/<key>，值为 YAML 或 JSON。
type EtcdLoader struct {
	kv      clientv3.KV
	prefix  string
	timeout time.Duration
}

var _ Loader = (*EtcdLoader)(nil)

func NewEtcdLoader(kv clientv3.KV, prefix string, timeout time.Duration) *EtcdLoader {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &EtcdLoader{kv: kv, prefix: prefix, timeout: timeout}
}

func (l *EtcdLoader) keyPath(key string) string {
	return path.Join(l.prefix, key)
}

// Load 读取一个类型定义。键不存在返回 ErrUnknownType，访问 etcd 失败返回可重试的 ErrLoaderUnavailable。
func (l *EtcdLoader) Load(ctx context.Context, key string) (*TypeDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.kv.Get(ctx, l.keyPath(key))
	if err != nil {
		return nil, merr.WrapErrLoaderUnavailable(key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, merr.WrapErrUnknownType(key, key)
	}
	return ParseTypeDefinition(key, resp.Kvs[0].Value)
}

// Publish 把类型定义写入 etcd，value 为单个类型定义的 YAML 或 JSON。
func (l *EtcdLoader) Publish(ctx context.Context, key string, value []byte) error {
	if _, err := ParseTypeDefinition(key, value); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if _, err := l.kv.Put(ctx, l.keyPath(key), string(value)); err != nil {
		return merr.WrapErrLoaderUnavailable(key, err)
	}
	return nil
}
