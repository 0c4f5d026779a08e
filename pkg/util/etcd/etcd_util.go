package etcd

import (
	"time"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var errEmbedNotStarted = errors.New("embedded etcd server is not started")

// Config 描述如何获得 etcd 客户端。
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string

	// UseEmbed 为 true 时启动嵌入式 etcd，忽略 Endpoints。
	UseEmbed   bool
	ConfigPath string
	DataDir    string
	LogPath    string
	LogLevel   string
}

// GetEtcdClient 按配置返回 etcd 客户端。
func GetEtcdClient(cfg Config) (*clientv3.Client, error) {
	if cfg.UseEmbed {
		if err := startEmbedServer(cfg); err != nil {
			return nil, errors.Wrap(err, "start embedded etcd")
		}
		return GetEmbedEtcdClient()
	}
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints are empty")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}
	return client, nil
}
