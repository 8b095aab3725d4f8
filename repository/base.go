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
	"time"

	"github.com/tomoncle/strata/entity"
	"github.com/tomoncle/strata/errs"
	"github.com/tomoncle/strata/types"
)

// EntityPtr constrains PT to *T implementing entity.IEntity, which any struct
// embedding entity.Entity or entity.GuidEntity does.
type EntityPtr[T any] interface {
	*T
	entity.IEntity
}

type baseRepositoryImpl[T any, PT EntityPtr[T]] struct {
	*readOnlyRepository[T]
	session *Session
	now     func() time.Time
}

// NewRepository returns a read/write repository for T staging its writes
// in session. Repositories sharing a session commit together.
func NewRepository[T any, PT EntityPtr[T]](session *Session) (Repository[T], error) {
	if session == nil {
		return nil, errs.Configurationf("repository needs a session")
	}
	ro, err := newReadOnlyRepository[T](session.DB())
	if err != nil {
		return nil, err
	}
	return &baseRepositoryImpl[T, PT]{
		readOnlyRepository: ro,
		session:            session,
		now:                func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *baseRepositoryImpl[T, PT]) Session() *Session { return r.session }

func (r *baseRepositoryImpl[T, PT]) tracked(e *T) (PT, error) {
	if e == nil {
		var zero PT
		return zero, errs.Configurationf("nil %s passed to repository", r.entityName())
	}
	return PT(e), nil
}

func (r *baseRepositoryImpl[T, PT]) Create(e *T, createdBy string) error {
	p, err := r.tracked(e)
	if err != nil {
		return err
	}
	p.AssignID()
	p.SetCreated(r.now(), createdBy)
	p.SetVersion(entity.NewVersion())
	return r.session.stage(p, types.Added)
}

func (r *baseRepositoryImpl[T, PT]) Update(e *T, modifiedBy string) error {
	p, err := r.tracked(e)
	if err != nil {
		return err
	}
	p.SetModified(r.now(), modifiedBy)
	return r.session.stage(p, types.Modified)
}

func (r *baseRepositoryImpl[T, PT]) Delete(e *T) error {
	p, err := r.tracked(e)
	if err != nil {
		return err
	}
	return r.session.stage(p, types.Deleted)
}

func (r *baseRepositoryImpl[T, PT]) DeleteByID(ctx context.Context, id any) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return errs.NotFoundf("%s id=%v", r.entityName(), id)
	}
	return r.session.stage(PT(e), types.Deleted)
}

func (r *baseRepositoryImpl[T, PT]) Save(ctx context.Context) (int, error) {
	return r.session.Save(ctx)
}

func (r *baseRepositoryImpl[T, PT]) SaveAsync(ctx context.Context) <-chan types.Result[int] {
	return r.session.SaveAsync(ctx)
}
