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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(t *testing.T, cfg *Config) (*zap.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	lg, _, err := InitLoggerWithWriteSyncer(cfg, zapcore.AddSync(buf))
	require.NoError(t, err)
	return lg, buf
}

func TestInitLoggerWithWriteSyncer(t *testing.T) {
	lg, buf := newBufferLogger(t, &Config{Level: "info", Format: FormatJSON})
	lg.Debug("hidden")
	lg.Info("decoded graph", FieldTypeTag("as.dto.Sample"), FieldRefID(3), FieldPath("$.a"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"decoded graph"`)
	assert.Contains(t, out, `"typeTag":"as.dto.Sample"`)
	assert.Contains(t, out, `"refID":3`)
	assert.Contains(t, out, `"path":"$.a"`)
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestDisableErrorVerbose(t *testing.T) {
	lg, buf := newBufferLogger(t, &Config{Level: "debug", Format: FormatJSON, DisableErrorVerbose: true})
	lg.Warn("failed", zap.Error(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, `"error":"boom"`)
	assert.NotContains(t, out, "errorVerbose")
}

func TestInitLoggerFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Level:  "debug",
		Format: FormatConsole,
		File: FileLogConfig{
			RootPath: dir,
			Filename: "graphjson.log",
		},
	}
	lg, _, err := InitLogger(cfg)
	require.NoError(t, err)
	lg.Info("to file")
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "graphjson.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	_, _, err = InitLogger(&Config{Level: "debug", File: FileLogConfig{RootPath: filepath.Dir(dir), Filename: filepath.Base(dir)}})
	assert.Error(t, err)
}

func TestCtxFields(t *testing.T) {
	lg, buf := newBufferLogger(t, &Config{Level: "debug", Format: FormatJSON})
	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, &ZapProperties{Level: zap.NewAtomicLevelAt(zapcore.DebugLevel)})
	defer ReplaceGlobals(oldL, oldP)

	ctx := WithModule(context.Background(), "codec")
	ctx = WithFields(ctx, FieldLookupKey("as/dto/Sample"))
	Ctx(ctx).Info("with ctx")

	out := buf.String()
	assert.Contains(t, out, `"module":"codec"`)
	assert.Contains(t, out, `"lookupKey":"as/dto/Sample"`)
	assert.NotNil(t, Ctx(nil))
}

func TestSpanFields(t *testing.T) {
	assert.Nil(t, SpanFields(context.Background()))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	fields := SpanFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, FieldNameTraceID, fields[0].Key)
	assert.Equal(t, "01000000000000000000000000000000", fields[0].String)
	assert.Equal(t, "0200000000000000", fields[1].String)
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())
	b.BindComponent(nil, "decoder")
	assert.NotNil(t, b.Logger())

	lg, buf := newBufferLogger(t, &Config{Level: "debug", Format: FormatJSON})
	b.BindComponent(&MLogger{Logger: lg}, "decoder")
	b.Logger().Info("bound")
	assert.Contains(t, buf.String(), `"component":"decoder"`)
}

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, props.Level.Level())
	lg.Warn("visible in test output", FieldRefID(7))
}

func TestRatedLog(t *testing.T) {
	lg, buf := newBufferLogger(t, &Config{Level: "debug", Format: FormatJSON})
	ml := (&MLogger{Logger: lg}).WithRateGroup("test.rated", 0.001, 1)

	assert.True(t, ml.RatedDebug(1, "first"))
	assert.False(t, ml.RatedDebug(1, "second"))
	assert.False(t, ml.With(FieldComponent("decoder")).RatedWarn(1, "third"))
	assert.Contains(t, buf.String(), "first")
	assert.NotContains(t, buf.String(), "second")
}

func TestRateLimiterFromEnv(t *testing.T) {
	t.Setenv(EnvRateEnable, "true")
	t.Setenv(EnvRateCreditPerSecond, "0.001")
	t.Setenv(EnvRateMaxBalance, "1")
	ReloadRateLimiterFromEnv()
	defer func() {
		os.Unsetenv(EnvRateEnable)
		ReloadRateLimiterFromEnv()
	}()

	assert.True(t, R().CheckCredit(1))
	assert.False(t, R().CheckCredit(1))
}

func TestRateLimiterToggle(t *testing.T) {
	defer func() {
		os.Unsetenv(EnvRateEnable)
		ReloadRateLimiterFromEnv()
	}()

	t.Setenv(EnvRateEnable, "false")
	ReloadRateLimiterFromEnv()
	assert.True(t, R().CheckCredit(100))

	t.Setenv(EnvRateEnable, "true")
	t.Setenv(EnvRateCreditPerSecond, "0.001")
	t.Setenv(EnvRateMaxBalance, "1")
	assert.NotPanics(t, ReloadRateLimiterFromEnv)
	assert.True(t, R().CheckCredit(1))
	assert.False(t, R().CheckCredit(1))

	t.Setenv(EnvRateEnable, "false")
	assert.NotPanics(t, ReloadRateLimiterFromEnv)
	assert.True(t, R().CheckCredit(100))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{Level: "info", Format: FormatJSON}).Validate())
	assert.NoError(t, (&Config{Level: "trace"}).Validate())
	assert.Error(t, (&Config{Level: "loud"}).Validate())
	assert.Error(t, (&Config{Format: "xml"}).Validate())
}
