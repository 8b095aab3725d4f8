/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cache

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/strata/errs"
	"github.com/tomoncle/strata/types"
	"github.com/tomoncle/strata/utils"
	"github.com/viccon/sturdyc"
	"golang.org/x/sync/singleflight"
)

// SimpleMemoryCache keeps values of type T in process memory and builds
// missing ones on demand. Concurrent misses for one key share a single
// factory call. It is safe for concurrent use.
type SimpleMemoryCache[T any] struct {
	store  *sturdyc.Client[T]
	group  singleflight.Group
	keyFn  KeyGenerator
	logger *logrus.Logger

	// mu orders stores after a factory call against Remove. gens counts
	// removals per key.
	mu   sync.Mutex
	gens map[string]uint64
}

// Option customises a SimpleMemoryCache.
type Option func(*settings)

type settings struct {
	keyFn  KeyGenerator
	logger *logrus.Logger
}

// WithKeyGenerator replaces IdentityKey.
func WithKeyGenerator(fn KeyGenerator) Option {
	return func(s *settings) {
		if fn != nil {
			s.keyFn = fn
		}
	}
}

// WithLogger replaces the "CACHE" logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns an empty cache sized by cfg.
func New[T any](cfg Config, opts ...Option) (*SimpleMemoryCache[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := settings{keyFn: IdentityKey}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = utils.NewLogger("CACHE")
	}
	return &SimpleMemoryCache[T]{
		store:  sturdyc.New[T](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, cfg.options()...),
		keyFn:  s.keyFn,
		logger: s.logger,
		gens:   make(map[string]uint64),
	}, nil
}

// GenerateCacheKey returns the key identifier is stored under.
func (c *SimpleMemoryCache[T]) GenerateCacheKey(identifier any) string {
	return c.keyFn(identifier)
}

// GetOrCreate returns the value cached for identifier, calling factory to
// build and store it on a miss. Factory errors are returned and nothing is
// cached.
func (c *SimpleMemoryCache[T]) GetOrCreate(identifier any, factory func() (T, error)) (T, error) {
	var zero T
	if factory == nil {
		return zero, errs.Configurationf("cache factory must not be nil")
	}
	key := c.GenerateCacheKey(identifier)
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, c.load(key, factory))
	if err != nil {
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

// GetOrCreateAsync is GetOrCreate on its own goroutine. The factory gets a
// context that is not cancelled with ctx. A caller whose ctx is done
// receives ctx.Err() without waiting for the factory.
func (c *SimpleMemoryCache[T]) GetOrCreateAsync(ctx context.Context, identifier any, factory func(context.Context) (T, error)) <-chan types.Result[T] {
	out := make(chan types.Result[T], 1)
	if factory == nil {
		out <- types.Err[T](errs.Configurationf("cache factory must not be nil"))
		close(out)
		return out
	}
	key := c.GenerateCacheKey(identifier)
	if v, ok := c.store.Get(key); ok {
		out <- types.Ok(v)
		close(out)
		return out
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, c.load(key, func() (T, error) { return factory(detached) }))
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
			out <- types.Err[T](ctx.Err())
		case r := <-ch:
			if r.Err != nil {
				out <- types.Err[T](r.Err)
				return
			}
			typed, _ := r.Val.(T)
			out <- types.Ok(typed)
		}
	}()
	return out
}

// load re-checks the store inside the singleflight call and stores the value
// before waiters are released. A value built across a Remove of its key is
// returned to the waiting callers but not stored.
func (c *SimpleMemoryCache[T]) load(key string, factory func() (T, error)) func() (any, error) {
	return func() (any, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		gen := c.generation(key)
		c.logger.WithField("key", key).Debug("cache miss")
		v, err := factory()
		if err != nil {
			c.logger.WithField("key", key).WithError(err).Debug("cache factory failed")
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gens[key] != gen {
			c.logger.WithField("key", key).Debug("cache entry removed while loading")
			return v, nil
		}
		c.store.Set(key, v)
		return v, nil
	}
}

func (c *SimpleMemoryCache[T]) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

// Remove evicts identifier so the next lookup builds a new value.
func (c *SimpleMemoryCache[T]) Remove(identifier any) {
	key := c.GenerateCacheKey(identifier)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.group.Forget(key)
	c.store.Delete(key)
}

// Len returns the number of cached entries.
func (c *SimpleMemoryCache[T]) Len() int {
	return c.store.Size()
}
