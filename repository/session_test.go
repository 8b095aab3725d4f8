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
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/strata/entity"
	"github.com/tomoncle/strata/errs"
	"github.com/tomoncle/strata/types"
)

func newColor(name, hex string) *Color {
	c := &Color{Hex: hex}
	c.Name = name
	return c
}

func TestCreateStampsAuditFields(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	start := time.Now().UTC()
	red := newColor("Red", "#ff0000")
	require.NoError(t, f.colors.Create(red, "tester"))

	exists, err := f.colors.Exists(ctx, Where("name = ?", "Red"))
	require.NoError(t, err)
	assert.False(t, exists, "staged inserts are not visible before Save")

	n, err := f.colors.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	end := time.Now().UTC()

	assert.NotZero(t, red.ID, "store-generated id is written back")
	got, err := f.colors.GetOne(ctx, Where("name = ?", "Red"))
	require.NoError(t, err)
	assert.Equal(t, red.ID, got.ID)
	assert.Equal(t, "tester", got.CreatedBy)
	assert.Empty(t, got.ModifiedBy)
	assert.Nil(t, got.ModifiedDate)
	assert.NotEmpty(t, got.Version)
	assert.WithinRange(t, got.CreatedDate, start.Add(-time.Second), end.Add(time.Second))
}

func TestUpdateVisibleAfterSave(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	red, err := f.colors.GetOne(ctx, Where("name = ?", "Red"))
	require.NoError(t, err)
	before := red.Version

	red.Hex = "#fe0000"
	require.NoError(t, f.colors.Update(red, "editor"))

	reader, err := NewReadOnlyRepository[Color](f.db)
	require.NoError(t, err)
	stored, err := reader.GetByID(ctx, red.ID)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", stored.Hex)

	n, err := f.colors.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotEqual(t, before, red.Version)

	stored, err = reader.GetByID(ctx, red.ID)
	require.NoError(t, err)
	assert.Equal(t, "#fe0000", stored.Hex)
	assert.Equal(t, "editor", stored.ModifiedBy)
	assert.Equal(t, "seed", stored.CreatedBy)
	assert.NotNil(t, stored.ModifiedDate)
	assert.Equal(t, red.Version, stored.Version)
}

func TestStaleUpdateFailsWithConcurrency(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	id := f.seeded["Grey"].ID

	a, err := f.colors.GetByID(ctx, id)
	require.NoError(t, err)
	b, err := f.colors.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotSame(t, a, b)

	a.Hex = "#818181"
	require.NoError(t, f.colors.Update(a, "alice"))
	_, err = f.colors.Save(ctx)
	require.NoError(t, err)

	stale := b.Version
	b.Hex = "#7f7f7f"
	require.NoError(t, f.colors.Update(b, "bob"))
	_, err = f.colors.Save(ctx)
	require.True(t, errs.Is(err, errs.ErrConcurrency), "got %v", err)
	assert.True(t, errs.Is(err, errs.ErrData))

	var ce *errs.ConcurrencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Color", ce.Entity)

	assert.Equal(t, stale, b.Version, "version is restored after a failed save")
	assert.Len(t, f.colors.Session().Pending(), 1, "failed changes stay staged")

	stored, err := f.colors.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "#818181", stored.Hex)
}

func TestDeleteMissingFailsWithConcurrency(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ghost := newColor("Ghost", "#010101")
	ghost.ID = 999
	require.NoError(t, f.colors.Delete(ghost))
	_, err := f.colors.Save(ctx)
	assert.True(t, errs.Is(err, errs.ErrConcurrency), "got %v", err)

	f.colors.Session().Discard()
	lime, err := f.colors.GetByID(ctx, f.seeded["Lime"].ID)
	require.NoError(t, err)
	lime.Version = entity.NewVersion()
	require.NoError(t, f.colors.Delete(lime))
	_, err = f.colors.Save(ctx)
	assert.True(t, errs.Is(err, errs.ErrConcurrency), "got %v", err)
}

func TestDeleteByID(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	err := f.colors.DeleteByID(ctx, int64(999))
	assert.True(t, errs.Is(err, errs.ErrNotFound), "got %v", err)
	assert.Empty(t, f.colors.Session().Pending())

	id := f.seeded["Black"].ID
	require.NoError(t, f.colors.DeleteByID(ctx, id))
	pending := f.colors.Session().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, types.Deleted, pending[0].State)

	still, err := f.colors.GetByID(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, still)

	n, err := f.colors.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gone, err := f.colors.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDuplicateKeyFailsWithConstraint(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	dup := newColor("Copy", "#ff0001")
	dup.ID = f.seeded["Red"].ID
	require.NoError(t, f.colors.Create(dup, "tester"))
	_, err := f.colors.Save(ctx)
	require.True(t, errs.Is(err, errs.ErrConstraint), "got %v", err)

	var ce *errs.ConstraintError
	require.True(t, errors.As(err, &ce))
	assert.NotEmpty(t, ce.Kind)
}

func TestValidationStopsSave(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.colors.Create(newColor("Purple", "#800080"), "tester"))
	require.NoError(t, f.colors.Create(newColor("", "purple"), "tester"))

	_, err := f.colors.Save(ctx)
	require.True(t, errs.Is(err, errs.ErrValidation), "got %v", err)

	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Messages, 1)
	assert.Contains(t, ve.Messages[0], "Color(id=0)")

	n, err := f.colors.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "nothing is written when validation fails")
	assert.Len(t, f.colors.Session().Pending(), 2)
}

func TestSaveIsAtomic(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.colors.Create(newColor("Purple", "#800080"), "tester"))
	teal, err := f.colors.GetByID(ctx, f.seeded["Teal"].ID)
	require.NoError(t, err)
	teal.Version = entity.NewVersion()
	require.NoError(t, f.colors.Update(teal, "tester"))

	_, err = f.colors.Save(ctx)
	require.True(t, errs.Is(err, errs.ErrConcurrency), "got %v", err)

	ok, err := f.colors.Exists(ctx, Where("name = ?", "Purple"))
	require.NoError(t, err)
	assert.False(t, ok, "insert staged with a failing update is rolled back")
}

func TestSessionSharedAcrossRepositories(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	assert.Same(t, f.colors.Session(), f.fruits.Session())

	navy := newColor("Navy", "#000080")
	require.NoError(t, f.colors.Create(navy, "tester"))
	_, err := f.colors.Save(ctx)
	require.NoError(t, err)

	plum := &Fruit{ColorID: navy.ID}
	plum.Name = "Plum"
	maroon := newColor("Maroon", "#800000")
	require.NoError(t, f.fruits.Create(plum, "tester"))
	require.NoError(t, f.colors.Create(maroon, "tester"))

	n, err := f.fruits.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := f.colors.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStagingTransitions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	sess := f.colors.Session()

	fresh := newColor("Olive", "#808000")
	assert.Equal(t, types.Unstaged, sess.State(fresh))
	require.NoError(t, f.colors.Create(fresh, "tester"))
	assert.Equal(t, types.Added, sess.State(fresh))
	require.NoError(t, f.colors.Update(fresh, "tester"))
	assert.Equal(t, types.Added, sess.State(fresh))
	require.NoError(t, f.colors.Delete(fresh))
	assert.Equal(t, types.Unstaged, sess.State(fresh))
	assert.Empty(t, sess.Pending())

	white, err := f.colors.GetByID(ctx, f.seeded["White"].ID)
	require.NoError(t, err)
	require.NoError(t, f.colors.Update(white, "tester"))
	assert.Equal(t, types.Modified, sess.State(white))
	require.NoError(t, f.colors.Delete(white))
	assert.Equal(t, types.Deleted, sess.State(white))

	err = f.colors.Update(white, "tester")
	assert.True(t, errs.Is(err, errs.ErrData), "got %v", err)
	sess.Discard()

	silver := newColor("Silver", "#c0c0c0")
	require.NoError(t, f.colors.Create(silver, "tester"))
	_, err = f.colors.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Committed, sess.State(silver))
	assert.Empty(t, sess.Pending())
	sess.Discard()
	assert.Equal(t, types.Unstaged, sess.State(silver), "Discard forgets committed entities")

	n, err := f.colors.Save(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "saving an empty session is a no-op")

	assert.True(t, errs.Is(f.colors.Create(nil, "tester"), errs.ErrConfiguration))
}

func TestSaveAsync(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for _, p := range palette[:3] {
		require.NoError(t, f.colors.Create(newColor(p.name, p.hex), "async"))
	}
	res := <-f.colors.SaveAsync(ctx)
	require.True(t, res.IsOk(), "got %v", res.Err)
	assert.Equal(t, 3, res.Ok)
}

func TestGuidEntity(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	sess, err := NewSession(db)
	require.NoError(t, err)
	tokens, err := NewRepository[Token](sess)
	require.NoError(t, err)

	tok := &Token{Scope: "read"}
	require.NoError(t, tokens.Create(tok, "tester"))
	assert.NotEqual(t, uuid.Nil, tok.ID, "id is assigned when staged")

	_, err = tokens.Save(ctx)
	require.NoError(t, err)

	got, err := tokens.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "read", got.Scope)

	require.NoError(t, tokens.DeleteByID(ctx, tok.ID))
	_, err = tokens.Save(ctx)
	require.NoError(t, err)

	gone, err := tokens.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
