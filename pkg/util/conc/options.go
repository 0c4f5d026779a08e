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

package conc

import (
	"time"

	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kykrueger/openbis-sub009/pkg/log"
)

type poolOption struct {
	// name 出现在池相关日志中。
	name string
	// nonBlocking 为 true 时池满直接返回 ants.ErrPoolOverload。
	nonBlocking bool
	// expiryDuration 为空闲 worker 的回收间隔，0 使用 ants 默认值。
	expiryDuration time.Duration
	// concealPanic 为 true 时任务 panic 只转为 Future 的错误，不再向上抛出。
	concealPanic bool
	// preHandler 在每个任务执行前调用。
	preHandler func()
}

func defaultPoolOption() *poolOption {
	return &poolOption{name: "conc"}
}

func (opt *poolOption) antsOptions() []ants.Option {
	result := []ants.Option{
		ants.WithNonblocking(opt.nonBlocking),
		ants.WithPanicHandler(func(v any) {
			log.Error("conc pool worker panicked", zap.String("pool", opt.name), zap.Any("panic", v))
			panic(v)
		}),
	}
	if opt.expiryDuration > 0 {
		result = append(result, ants.WithExpiryDuration(opt.expiryDuration))
	}
	return result
}

// PoolOption 配置协程池。
type PoolOption func(opt *poolOption)

func WithPoolName(name string) PoolOption {
	return func(opt *poolOption) {
		if name != "" {
			opt.name = name
		}
	}
}

func WithNonBlocking(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.nonBlocking = v
	}
}

func WithExpiryDuration(d time.Duration) PoolOption {
	return func(opt *poolOption) {
		opt.expiryDuration = d
	}
}

func WithConcealPanic(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.concealPanic = v
	}
}

func WithPreHandler(fn func()) PoolOption {
	return func(opt *poolOption) {
		opt.preHandler = fn
	}
}
