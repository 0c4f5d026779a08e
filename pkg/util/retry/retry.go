// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/kykrueger/openbis-sub009/pkg/log"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

func (c *config) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.sleep
	b.MaxInterval = c.maxSleepTime
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	// 次数上限由 attempts 控制
	b.MaxElapsedTime = 0
	b.Reset()

	var policy backoff.BackOff = b
	if c.attempts > 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.attempts-1))
	}
	return backoff.WithContext(policy, ctx)
}

// Do 使用重试机制执行 fn。
// 不可恢复的错误或 RetryErr 判定为不可重试的错误立即返回；
// ctx 结束时返回最后一次 fn 的错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	logger := log.Ctx(ctx).With(zap.String("caller", getCaller(2)))

	var (
		retried uint
		lastErr error
	)
	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRecoverable(err) {
			logger.Warn("retry func failed, not recoverable",
				zap.Uint("retried", retried),
				zap.Bool("isContextErr", merr.IsCanceledOrTimeout(err)),
				zap.Error(err))
			return backoff.Permanent(err)
		}
		if c.isRetryErr != nil && !c.isRetryErr(err) {
			logger.Warn("retry func failed, not retryable",
				zap.Uint("retried", retried),
				zap.Error(err))
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		if retried%4 == 0 {
			logger.Warn("retry func failed",
				zap.Uint("retried", retried),
				zap.Uint("attempt", c.attempts),
				zap.Duration("next", next),
				zap.Error(err))
		}
		retried++
	}

	err := backoff.RetryNotify(operation, c.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if merr.IsCanceledOrTimeout(err) && lastErr != nil && !merr.IsCanceledOrTimeout(lastErr) {
		logger.Warn("retry func failed, ctx done", zap.Uint("retried", retried))
		return lastErr
	}
	return err
}

// errUnrecoverable 表示不可恢复错误的标记实例。
var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 将错误包装为不可恢复错误，使重试逻辑能够快速返回。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

// IsRecoverable 判断给定错误是否为“可恢复”错误。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
