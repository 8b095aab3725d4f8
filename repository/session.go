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
	"database/sql"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/entity"
	"github.com/tomoncle/strata/errs"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

// Change is one staged write.
type Change struct {
	State  types.EntityState
	Entity entity.IEntity
}

// Session is a unit of work over one bun handle. It records staged inserts,
// updates and deletes and applies them in a single transaction on Save.
// A Session is not safe for concurrent use.
type Session struct {
	db        bun.IDB
	logger    database.Logger
	changes   []*Change
	index     map[entity.IEntity]*Change
	committed map[entity.IEntity]struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger replaces the session logger.
func WithLogger(logger database.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession returns an empty unit of work over db.
func NewSession(db bun.IDB, opts ...SessionOption) (*Session, error) {
	if isNilDB(db) {
		return nil, errs.Configurationf("session needs a database handle")
	}
	s := &Session{
		db:        db,
		logger:    database.NewLogger("SESSION"),
		index:     make(map[entity.IEntity]*Change),
		committed: make(map[entity.IEntity]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the handle the session reads and writes through.
func (s *Session) DB() bun.IDB { return s.db }

// Pending returns a snapshot of the staged changes in staging order.
func (s *Session) Pending() []Change {
	out := make([]Change, len(s.changes))
	for i, c := range s.changes {
		out[i] = *c
	}
	return out
}

// State reports where e stands in the session: staged, written by the last
// successful Save, or unknown.
func (s *Session) State(e entity.IEntity) types.EntityState {
	if c, ok := s.index[e]; ok {
		return c.State
	}
	if _, ok := s.committed[e]; ok {
		return types.Committed
	}
	return types.Unstaged
}

// Discard drops every staged change and forgets the entities written by
// the last Save.
func (s *Session) Discard() {
	s.reset()
	s.committed = make(map[entity.IEntity]struct{})
}

func (s *Session) reset() {
	s.changes = nil
	s.index = make(map[entity.IEntity]*Change)
}

// stage records a change for e, merging it with a change already staged for
// the same instance.
func (s *Session) stage(e entity.IEntity, state types.EntityState) error {
	delete(s.committed, e)
	c, ok := s.index[e]
	if !ok {
		c = &Change{State: state, Entity: e}
		s.changes = append(s.changes, c)
		s.index[e] = c
		return nil
	}

	switch {
	case c.State == state:
	case c.State == types.Added && state == types.Modified:
	case c.State == types.Added && state == types.Deleted:
		s.unstage(e)
	case c.State == types.Modified && state == types.Deleted:
		c.State = types.Deleted
	default:
		return errs.Mark(errors.Newf("%s is already staged as %s and cannot be staged as %s",
			entityName(e), c.State, state), errs.ErrData)
	}
	return nil
}

func (s *Session) unstage(e entity.IEntity) {
	delete(s.index, e)
	for i, c := range s.changes {
		if c.Entity == e {
			s.changes = append(s.changes[:i], s.changes[i+1:]...)
			return
		}
	}
}

func entityName(e entity.IEntity) string {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// validate runs ozzo validation on every staged insert and update and
// aggregates the failures.
func (s *Session) validate() error {
	var messages []string
	for _, c := range s.changes {
		if c.State != types.Added && c.State != types.Modified {
			continue
		}
		v, ok := c.Entity.(validation.Validatable)
		if !ok {
			continue
		}
		if err := v.Validate(); err != nil {
			messages = append(messages, fmt.Sprintf("%s(id=%v): %v", entityName(c.Entity), c.Entity.EntityID(), err))
		}
	}
	if len(messages) > 0 {
		return errs.NewValidationError(messages)
	}
	return nil
}

// Save validates and then applies every staged change in one transaction,
// returning the number of affected rows. On failure nothing is committed,
// version tokens are restored and the changes stay staged.
func (s *Session) Save(ctx context.Context) (int, error) {
	if len(s.changes) == 0 {
		return 0, nil
	}
	if err := s.validate(); err != nil {
		return 0, err
	}

	versions := make([][]byte, len(s.changes))
	for i, c := range s.changes {
		versions[i] = c.Entity.GetVersion()
	}

	var affected int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		affected = 0
		for i, c := range s.changes {
			n, err := s.apply(ctx, tx, c, versions[i])
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	})
	if err != nil {
		for i, c := range s.changes {
			c.Entity.SetVersion(versions[i])
		}
		s.logger.Warn("Save rolled back", "changes", len(s.changes), "error", err)
		return 0, err
	}

	committed := make(map[entity.IEntity]struct{}, len(s.changes))
	for _, c := range s.changes {
		if c.State != types.Deleted {
			committed[c.Entity] = struct{}{}
		}
	}
	s.logger.Debug("Save committed", "changes", len(s.changes), "rows", affected)
	s.reset()
	s.committed = committed
	return affected, nil
}

// SaveAsync runs Save on its own goroutine.
func (s *Session) SaveAsync(ctx context.Context) <-chan types.Result[int] {
	return types.Go(func() (int, error) { return s.Save(ctx) })
}

func (s *Session) apply(ctx context.Context, tx bun.Tx, c *Change, version []byte) (int, error) {
	var (
		res sql.Result
		err error
	)
	switch c.State {
	case types.Added:
		if c.Entity.GetVersion() == nil {
			c.Entity.SetVersion(entity.NewVersion())
		}
		res, err = tx.NewInsert().Model(c.Entity).Exec(ctx)
	case types.Modified:
		c.Entity.SetVersion(entity.NewVersion())
		res, err = whereVersion(tx.NewUpdate().Model(c.Entity).WherePK(), version).Exec(ctx)
	case types.Deleted:
		res, err = whereVersion(tx.NewDelete().Model(c.Entity).WherePK(), version).Exec(ctx)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, storeError(err, c)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Data(err, "rows affected")
	}
	if n == 0 && c.State != types.Added {
		return 0, errs.NewConcurrencyError(entityName(c.Entity), c.Entity.EntityID())
	}
	return int(n), nil
}

type versionedQuery[Q any] interface {
	Where(query string, args ...interface{}) Q
}

// whereVersion restricts an update or delete to the row version that was
// read, so a concurrent write makes it affect no row.
func whereVersion[Q versionedQuery[Q]](q Q, version []byte) Q {
	if version == nil {
		return q.Where("version IS NULL")
	}
	return q.Where("version = ?", version)
}

func storeError(err error, c *Change) error {
	if ok, kind := database.ClassifyError(err); ok && kind.IsConstraint() {
		return errs.NewConstraintError(kind.String(), err)
	}
	return errs.Data(err, fmt.Sprintf("%s %s(id=%v)", c.State, entityName(c.Entity), c.Entity.EntityID()))
}
