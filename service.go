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

package strata

import (
	"context"
	"sync"

	"github.com/tomoncle/strata/cache"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errs"
	"github.com/tomoncle/strata/repository"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

// Service is a long-lived facade over one entity type. Create, Update,
// Delete and Save share one staged unit of work guarded by the service, so a
// Save commits what every caller staged since the last Save. Use Begin for
// an independent unit of work.
type Service[T any] interface {
	// Find returns the entity with id. Loaded entities are cached until they
	// are staged for update or delete, and again after the next Save.
	Find(ctx context.Context, id any) (*T, error)

	// Evict drops the cached entity with id.
	Evict(id any)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Create stages a new entity.
	Create(model *T, createdBy string) error

	// Update stages changes to an existing entity.
	Update(model *T, modifiedBy string) error

	// Delete stages the removal of the entity with id.
	Delete(ctx context.Context, id any) error

	// Save commits every staged change. Updated and deleted entities are
	// evicted from the cache whether or not the commit succeeds, and a failed
	// Save discards the staged changes.
	Save(ctx context.Context) (int, error)

	// Begin returns a repository on a new session, owned by the caller. Its
	// writes bypass the cache; call Evict for the ids it changes.
	Begin() (repository.Repository[T], error)

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any, PT repository.EntityPtr[T]] struct {
	db    bun.IDB
	repo  repository.Repository[T]
	cache *cache.SimpleMemoryCache[*T]
	err   error
	once  sync.Once
	// mu guards the session behind repo.
	mu sync.Mutex
}

// NewService returns a Service over the global database. The repository and
// cache are built on first use, so NewService may be called before InitDB.
func NewService[T any, PT repository.EntityPtr[T]]() Service[T] {
	return &baseServiceImpl[T, PT]{}
}

// NewServiceWithDB returns a Service over db instead of the global database.
func NewServiceWithDB[T any, PT repository.EntityPtr[T]](db bun.IDB) Service[T] {
	return &baseServiceImpl[T, PT]{db: db}
}

func cacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	global := database.GetConfig()
	if global == nil {
		return cfg
	}
	c := global.Cache
	if c.Capacity > 0 {
		cfg.Capacity = c.Capacity
	}
	if c.NumShards > 0 {
		cfg.NumShards = c.NumShards
	}
	if c.TTL > 0 {
		cfg.TTL = c.TTL
	}
	if c.EvictionPercentage > 0 {
		cfg.EvictionPercentage = c.EvictionPercentage
	}
	cfg.EvictionInterval = c.EvictionInterval
	cfg.NumShards = min(cfg.NumShards, cfg.Capacity)
	return cfg
}

func (s *baseServiceImpl[T, PT]) init() error {
	s.once.Do(func() {
		if s.db == nil {
			if global := database.GetDB(); global != nil {
				s.db = global
			}
		}
		if s.repo, s.err = s.newRepository(); s.err != nil {
			return
		}
		s.cache, s.err = cache.New[*T](cacheConfig(), cache.WithKeyGenerator(cache.TypedKey[T]()))
	})
	return s.err
}

func (s *baseServiceImpl[T, PT]) newRepository() (repository.Repository[T], error) {
	session, err := repository.NewSession(s.db)
	if err != nil {
		return nil, err
	}
	return repository.NewRepository[T, PT](session)
}

func (s *baseServiceImpl[T, PT]) Begin() (repository.Repository[T], error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	return s.newRepository()
}

func (s *baseServiceImpl[T, PT]) Evict(id any) {
	if s.init() == nil {
		s.cache.Remove(id)
	}
}

func (s *baseServiceImpl[T, PT]) Find(ctx context.Context, id any) (*T, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	return s.cache.GetOrCreate(id, func() (*T, error) {
		e, err := s.repo.GetByID(ctx, id)
		if err == nil && e == nil {
			err = errs.NotFoundf("id=%v", id)
		}
		return e, err
	})
}

func (s *baseServiceImpl[T, PT]) All(ctx context.Context) ([]*T, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	return s.repo.GetAll(ctx)
}

func (s *baseServiceImpl[T, PT]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	if filter == nil {
		return s.repo.GetAll(ctx)
	}
	return s.repo.Get(ctx, repository.Where(filter.Schema, filter.Args...))
}

func (s *baseServiceImpl[T, PT]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	return s.repo.Page(ctx, page)
}

func (s *baseServiceImpl[T, PT]) Create(model *T, createdBy string) error {
	if err := s.init(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Create(model, createdBy)
}

func (s *baseServiceImpl[T, PT]) Update(model *T, modifiedBy string) error {
	if err := s.init(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Update(model, modifiedBy); err != nil {
		return err
	}
	s.cache.Remove(PT(model).EntityID())
	return nil
}

func (s *baseServiceImpl[T, PT]) Delete(ctx context.Context, id any) error {
	if err := s.init(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

func (s *baseServiceImpl[T, PT]) Save(ctx context.Context) (int, error) {
	if err := s.init(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var touched []any
	for _, c := range s.repo.Session().Pending() {
		if c.State == types.Modified || c.State == types.Deleted {
			touched = append(touched, c.Entity.EntityID())
		}
	}
	defer func() {
		for _, id := range touched {
			s.cache.Remove(id)
		}
	}()
	n, err := s.repo.Save(ctx)
	if err != nil {
		s.repo.Session().Discard()
		return 0, err
	}
	return n, nil
}

func (s *baseServiceImpl[T, PT]) SelectBuilder() *bun.SelectQuery {
	if err := s.init(); err != nil {
		return nil
	}
	return s.repo.NewSelect()
}
