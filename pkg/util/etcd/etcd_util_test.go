package etcd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEtcdClientRequiresEndpoints(t *testing.T) {
	_, err := GetEtcdClient(Config{})
	assert.Error(t, err)
}

func TestEmbedClientBeforeStart(t *testing.T) {
	assert.False(t, HasServer())
	_, err := GetEmbedEtcdClient()
	assert.ErrorIs(t, err, errEmbedNotStarted)
	// 未启动时关闭不会出错
	StopEtcdServer()
}

func TestEmbedConfig(t *testing.T) {
	ec, err := embedConfig(Config{DataDir: "data", LogPath: "stderr", LogLevel: "warn"})
	assert.NoError(t, err)
	assert.Equal(t, "data", ec.Dir)
	assert.Equal(t, []string{"stderr"}, ec.LogOutputs)
	assert.Equal(t, "warn", ec.LogLevel)

	_, err = embedConfig(Config{ConfigPath: "/nonexistent/etcd.yaml"})
	assert.Error(t, err)
}
