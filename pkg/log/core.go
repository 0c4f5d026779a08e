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
	"go.uber.org/zap/zapcore"
)

// NewCore 创建一个将日志写入指定 WriteSyncer 的 Core。
func NewCore(enc zapcore.Encoder, ws zapcore.WriteSyncer, enab zapcore.LevelEnabler) zapcore.Core {
	return &ioCore{
		LevelEnabler: enab,
		enc:          enc,
		out:          ws,
	}
}

// newCoreWithConfig 与 NewCore 相同，但会按配置裁剪错误详情字段。
func newCoreWithConfig(cfg *Config, ws zapcore.WriteSyncer, enab zapcore.LevelEnabler) zapcore.Core {
	return &ioCore{
		LevelEnabler:     enab,
		enc:              newZapEncoder(cfg),
		out:              ws,
		dropErrorVerbose: cfg.DisableErrorVerbose,
	}
}

// ioCore 是 zapcore.ioCore 的简化拷贝。
type ioCore struct {
	zapcore.LevelEnabler
	enc              zapcore.Encoder
	out              zapcore.WriteSyncer
	dropErrorVerbose bool
}

func (c *ioCore) With(fields []zapcore.Field) zapcore.Core {
	clone := c.clone()
	for _, field := range c.filter(fields) {
		field.AddTo(clone.enc)
	}
	return clone
}

func (c *ioCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ioCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, c.filter(fields))
	if err != nil {
		return err
	}
	_, err = c.out.Write(buf.Bytes())
	buf.Free()
	if err != nil {
		return err
	}
	if ent.Level > zapcore.ErrorLevel {
		// 进程可能即将退出，强制同步
		c.Sync()
	}
	return nil
}

func (c *ioCore) Sync() error {
	return c.out.Sync()
}

// filter 在 dropErrorVerbose 时把错误字段降级为只输出 Error() 文本。
func (c *ioCore) filter(fields []zapcore.Field) []zapcore.Field {
	if !c.dropErrorVerbose {
		return fields
	}
	out := fields[:0:0]
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok && err != nil {
				out = append(out, zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: err.Error()})
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func (c *ioCore) clone() *ioCore {
	return &ioCore{
		LevelEnabler:     c.LevelEnabler,
		enc:              c.enc.Clone(),
		out:              c.out,
		dropErrorVerbose: c.dropErrorVerbose,
	}
}
