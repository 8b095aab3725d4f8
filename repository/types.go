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

package repository

import (
	"context"

	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

// ReadOnlyRepository queries one entity type. Every read has an Async
// variant that runs the same query on its own goroutine and delivers one
// Result.
type ReadOnlyRepository[T any] interface {
	// GetAll returns every entity, honouring order, include and paging.
	// Filters are ignored.
	GetAll(ctx context.Context, opts ...QueryOption) ([]*T, error)
	GetAllAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[[]*T]

	// Get returns the entities matching the filters.
	Get(ctx context.Context, opts ...QueryOption) ([]*T, error)
	GetAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[[]*T]

	// GetOne returns the single match. No match fails with errs.ErrNotFound
	// and more than one with errs.ErrMultipleResults.
	GetOne(ctx context.Context, opts ...QueryOption) (*T, error)
	GetOneAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[*T]

	// GetFirst returns the first match in order, or nil when nothing matches.
	GetFirst(ctx context.Context, opts ...QueryOption) (*T, error)
	GetFirstAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[*T]

	// GetByID returns the entity with the primary key id, or nil.
	GetByID(ctx context.Context, id any, opts ...QueryOption) (*T, error)
	GetByIDAsync(ctx context.Context, id any, opts ...QueryOption) <-chan types.Result[*T]

	GetCount(ctx context.Context, opts ...QueryOption) (int, error)
	GetCountAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[int]

	Exists(ctx context.Context, opts ...QueryOption) (bool, error)
	ExistsAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[bool]

	// Page returns one page of matches plus the total match count.
	Page(ctx context.Context, page *types.PageRequest, opts ...QueryOption) (*types.Pagination[T], error)

	// NewSelect exposes a bun select on the entity table for queries the
	// options cannot express.
	NewSelect() *bun.SelectQuery
}

// Repository adds staged writes to ReadOnlyRepository. Writes only touch
// the store on Save, which commits every change staged in the session,
// including changes staged through other repositories sharing it.
type Repository[T any] interface {
	ReadOnlyRepository[T]

	// Create stamps the audit fields and stages an insert.
	Create(entity *T, createdBy string) error
	// Update stamps the modification fields and stages a full update.
	Update(entity *T, modifiedBy string) error
	// Delete stages the removal of entity.
	Delete(entity *T) error
	// DeleteByID loads the entity and stages its removal. A missing id fails
	// with errs.ErrNotFound immediately.
	DeleteByID(ctx context.Context, id any) error

	Save(ctx context.Context) (int, error)
	SaveAsync(ctx context.Context) <-chan types.Result[int]

	Session() *Session
}
