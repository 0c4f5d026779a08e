package etcd

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
	"go.etcd.io/etcd/server/v3/etcdserver/api/v3client"
	"go.uber.org/zap"

	"github.com/kykrueger/openbis-sub009/pkg/log"
)

const embedReadyTimeout = time.Minute

// 嵌入式 etcd 单例，用于单机部署时存放类型定义。
var (
	embedMu    sync.Mutex
	etcdServer *embed.Etcd
)

// GetEmbedEtcdClient 返回嵌入式 etcd 服务对应的 v3 客户端。
func GetEmbedEtcdClient() (*clientv3.Client, error) {
	embedMu.Lock()
	defer embedMu.Unlock()
	if etcdServer == nil {
		return nil, errEmbedNotStarted
	}
	return v3client.New(etcdServer.Server), nil
}

func embedConfig(cfg Config) (*embed.Config, error) {
	ec := embed.NewConfig()
	if cfg.ConfigPath != "" {
		fromFile, err := embed.ConfigFromFile(cfg.ConfigPath)
		if err != nil {
			return nil, errors.Wrapf(err, "read embedded etcd config %s", cfg.ConfigPath)
		}
		ec = fromFile
	}
	if cfg.DataDir != "" {
		ec.Dir = cfg.DataDir
	}
	if cfg.LogPath != "" {
		ec.LogOutputs = []string{cfg.LogPath}
	}
	if cfg.LogLevel != "" {
		ec.LogLevel = cfg.LogLevel
	}
	return ec, nil
}

// startEmbedServer 启动嵌入式 etcd，已经在运行时直接返回。
func startEmbedServer(cfg Config) error {
	embedMu.Lock()
	defer embedMu.Unlock()
	if etcdServer != nil {
		return nil
	}

	ec, err := embedConfig(cfg)
	if err != nil {
		return err
	}
	e, err := embed.StartEtcd(ec)
	if err != nil {
		log.Error("failed to start embedded etcd", zap.Error(err))
		return err
	}
	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(embedReadyTimeout):
		e.Close()
		return errors.Newf("embedded etcd not ready after %s", embedReadyTimeout)
	}
	etcdServer = e
	log.Info("embedded etcd started", zap.String("config", cfg.ConfigPath), zap.String("data", ec.Dir))
	return nil
}

func HasServer() bool {
	embedMu.Lock()
	defer embedMu.Unlock()
	return etcdServer != nil
}

// StopEtcdServer 关闭嵌入式 etcd 服务，未启动时什么也不做。
func StopEtcdServer() {
	embedMu.Lock()
	defer embedMu.Unlock()
	if etcdServer == nil {
		return
	}
	etcdServer.Close()
	etcdServer = nil
}
