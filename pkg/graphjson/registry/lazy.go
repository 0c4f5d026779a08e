package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/log"
	"github.com/kykrueger/openbis-sub009/pkg/metrics"
	"github.com/kykrueger/openbis-sub009/pkg/util/conc"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
	"github.com/kykrueger/openbis-sub009/pkg/util/retry"
)

// Loader 按查找键加载一个类型定义，类型不存在时返回 merr.ErrUnknownType。
// 可重试的错误（如 merr.ErrLoaderUnavailable）会被 Lazy 重试。
type Loader interface {
	Load(ctx context.Context, key string) (*TypeDefinition, error)
}

// LoaderFunc 把函数适配为 Loader。
type LoaderFunc func(ctx context.Context, key string) (*TypeDefinition, error)

func (f LoaderFunc) Load(ctx context.Context, key string) (*TypeDefinition, error) {
	return f(ctx, key)
}

// Lazy 在首次解析时通过 Loader 加载类型定义并缓存。
// 一次 ResolveMany 中未命中的键并发加载，同一个键的并发加载会被合并。
type Lazy struct {
	log.Binder

	loader        Loader
	pool          *conc.Pool[*TypeDefinition]
	group         singleflight.Group
	retryAttempts uint

	mu    sync.RWMutex
	cache map[string]*TypeDefinition
	loads atomic.Int64
}

var _ graphjson.TypeRegistry = (*Lazy)(nil)

// 加载器 panic 只让对应的键失败。
var lazyPoolOptions = []conc.PoolOption{conc.WithPoolName("registry.lazy"), conc.WithConcealPanic(true)}

// LazyOption 配置 Lazy。
type LazyOption func(*Lazy)

// WithWorkers 设置并发加载的协程数。
func WithWorkers(n int) LazyOption {
	return func(l *Lazy) {
		if n > 0 {
			l.pool = conc.NewPool[*TypeDefinition](n, lazyPoolOptions...)
		}
	}
}

// WithRetryAttempts 设置单个键的最大尝试次数，0 表示保持默认值。
func WithRetryAttempts(n uint) LazyOption {
	return func(l *Lazy) {
		if n > 0 {
			l.retryAttempts = n
		}
	}
}

// WithLazyLogger 为 Lazy 绑定 Logger。
func WithLazyLogger(logger *log.MLogger) LazyOption {
	return func(l *Lazy) {
		l.BindComponent(logger, "registry")
	}
}

func NewLazy(loader Loader, opts ...LazyOption) *Lazy {
	l := &Lazy{
		loader:        loader,
		retryAttempts: 3,
		cache:         make(map[string]*TypeDefinition),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pool == nil {
		l.pool = conc.NewDefaultPool[*TypeDefinition](lazyPoolOptions...)
	}
	return l
}

// ResolveMany 返回已知键的构造器，不存在的类型不出现在结果中。
// 其他加载错误会使整个调用失败。
func (l *Lazy) ResolveMany(ctx context.Context, keys []string) (map[string]graphjson.Constructor, error) {
	out := make(map[string]graphjson.Constructor, len(keys))
	missing := make([]string, 0, len(keys))

	l.mu.RLock()
	for _, key := range keys {
		if def, ok := l.cache[key]; ok {
			out[key] = def.Constructor()
		} else {
			missing = append(missing, key)
		}
	}
	l.mu.RUnlock()
	if len(missing) == 0 {
		return out, nil
	}

	futures := make([]*conc.Future[*TypeDefinition], len(missing))
	for i, key := range missing {
		futures[i] = l.pool.Submit(func() (*TypeDefinition, error) {
			return l.load(ctx, key)
		})
	}
	for i, future := range futures {
		def, err := future.Await()
		if err != nil {
			if errors.Is(err, merr.ErrUnknownType) {
				continue
			}
			return nil, err
		}
		out[missing[i]] = def.Constructor()
	}
	return out, nil
}

func (l *Lazy) FieldTypesOf(key string) (graphjson.FieldTypeDescriptor, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.cache[key]
	if !ok {
		return nil, false
	}
	return def.Fields, true
}

// Preload 预先加载指定的键，任何一个失败都返回错误。
func (l *Lazy) Preload(ctx context.Context, keys ...string) error {
	futures := make([]*conc.Future[*TypeDefinition], 0, len(keys))
	for _, key := range keys {
		futures = append(futures, l.pool.Submit(func() (*TypeDefinition, error) {
			return l.load(ctx, key)
		}))
	}
	return conc.AwaitAll(futures...)
}

// Len 返回已缓存的类型数量。
func (l *Lazy) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

// Loads 返回实际调用 Loader 成功加载的次数。
func (l *Lazy) Loads() int64 {
	return l.loads.Load()
}

// Close 释放加载协程池。
func (l *Lazy) Close() {
	l.pool.Release()
}

// load 合并同一个键的并发加载。合并后的加载不随任何一个调用方取消，
// 每个调用方只按自己的 ctx 放弃等待。
func (l *Lazy) load(ctx context.Context, key string) (*TypeDefinition, error) {
	ch := l.group.DoChan(key, func() (any, error) {
		return l.loadOnce(context.WithoutCancel(ctx), key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TypeDefinition), nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "wait for type definition %s", key)
	}
}

func (l *Lazy) loadOnce(ctx context.Context, key string) (def *TypeDefinition, err error) {
	defer func() {
		if r := recover(); r != nil {
			def, err = nil, errors.Newf("load type definition %s panicked: %v", key, r)
			l.Logger().Warn("type loader panicked", log.FieldLookupKey(key), zap.Any("panic", r))
		}
	}()

	l.mu.RLock()
	cached, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	err = retry.Do(ctx, func() error {
		loaded, err := l.loader.Load(ctx, key)
		if err != nil {
			if !merr.IsRetryableErr(err) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		if loaded == nil {
			return retry.Unrecoverable(merr.WrapErrUnknownType(key, key))
		}
		def = loaded
		return nil
	}, retry.Attempts(l.retryAttempts))
	metrics.RegistryLoadTotal.WithLabelValues(metrics.ResultLabel(err)).Inc()
	if err != nil {
		if !errors.Is(err, merr.ErrUnknownType) {
			l.Logger().Warn("load type definition failed", log.FieldLookupKey(key), zap.Error(err))
		}
		return nil, err
	}

	l.mu.Lock()
	l.cache[key] = def
	size := len(l.cache)
	l.mu.Unlock()
	l.loads.Inc()
	metrics.RegistryCachedTypes.Set(float64(size))
	l.Logger().Debug("type definition loaded", log.FieldLookupKey(key), zap.Int("fields", len(def.Fields)))
	return def, nil
}
