// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	_globalL atomic.Pointer[zap.Logger]
	_globalS atomic.Pointer[zap.SugaredLogger]
	_globalP atomic.Value // *ZapProperties
	_globalR atomic.Pointer[rateLimiterHolder]

	_namedRateLimiters sync.Map
)

// RateLimiter 是限流日志所需的最小接口。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

// rateLimiterHolder 让不同实现的 RateLimiter 可以存入同一个原子指针。
type rateLimiterHolder struct {
	RateLimiter
}

func init() {
	conf := &Config{Level: "info", Stdout: true, DisableErrorVerbose: true}
	lg, props, _ := InitLogger(conf, zap.OnFatal(zapcore.WriteThenPanic))
	ReplaceGlobals(lg, props)
	configureRateLimiterFromEnv()
}

// InitLogger 按配置初始化 zap Logger，输出可以是文件、标准输出或两者，都没有时丢弃日志。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}
	if len(outputs) == 0 {
		outputs = append(outputs, zapcore.AddSync(nopWriter{}))
	}

	levelCfg := *cfg
	if strings.EqualFold(levelCfg.Level, "trace") {
		levelCfg.Level = "debug"
	}
	lg, props, err := InitLoggerWithWriteSyncer(&levelCfg, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	return lg, props, nil
}

// InitTestLogger 初始化一个把日志写入 testing.T 的 Logger，zap 自身出错时测试失败。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	writer := zaptest.NewTestingWriter(t)
	opts = append([]zap.Option{zap.ErrorOutput(writer.WithMarkFailed(true))}, opts...)
	return InitLoggerWithWriteSyncer(cfg, writer, opts...)
}

// InitLoggerWithWriteSyncer 使用指定的 WriteSyncer 初始化 zap Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("init logger: bad level %q: %w", cfg.Level, err)
	}
	core := newCoreWithConfig(cfg, output, level)
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{
		Core:   core,
		Syncer: output,
		Level:  level,
	}, nil
}

// initFileLog 基于 lumberjack 创建可滚动的文件输出。
func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.Newf("can't use directory %s as log file", logPath)
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// L 返回全局 Logger，并发安全。
func L() *zap.Logger {
	return _globalL.Load()
}

// S 返回全局 SugaredLogger，并发安全。
func S() *zap.SugaredLogger {
	return _globalS.Load()
}

// R 返回限流日志使用的全局 RateLimiter，未开启限流时从不丢弃日志。
func R() RateLimiter {
	if h := _globalR.Load(); h != nil && h.RateLimiter != nil {
		return h.RateLimiter
	}
	return nopRateLimiter{}
}

// ReplaceGlobals 替换全局 Logger，并发安全。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalS.Store(logger.Sugar())
	_globalP.Store(props)
}

// Sync 刷新全局 Logger 中缓冲的日志。
func Sync() error {
	return L().Sync()
}

func Level() zap.AtomicLevel {
	return _globalP.Load().(*ZapProperties).Level
}

// 限流相关环境变量，默认关闭。
const (
	EnvRateEnable          = "GRAPHJSON_LOG_RATE_ENABLE"
	EnvRateCreditPerSecond = "GRAPHJSON_LOG_RATE_CREDIT_PER_SECOND"
	EnvRateMaxBalance      = "GRAPHJSON_LOG_RATE_MAX_BALANCE"
)

func configureRateLimiterFromEnv() {
	if !getenvBool(EnvRateEnable, false) {
		_globalR.Store(&rateLimiterHolder{nopRateLimiter{}})
		return
	}
	credit := getenvFloat(EnvRateCreditPerSecond, 1.0)
	maxBalance := getenvFloat(EnvRateMaxBalance, 60.0)
	_globalR.Store(&rateLimiterHolder{utils.NewRateLimiter(credit, maxBalance)})
}

// ReloadRateLimiterFromEnv 重新读取 GRAPHJSON_LOG_RATE_* 环境变量。
func ReloadRateLimiterFromEnv() {
	configureRateLimiterFromEnv()
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return f
}
