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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/strata/errs"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

const hasFF = "hex LIKE ?"

func TestGetAllOrdersAndPages(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	all, err := f.colors.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	page, err := f.colors.GetAll(ctx, OrderBy("name DESC"), Skip(3), Take(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"Red", "Lime"}, names(page))

	ignored, err := f.colors.GetAll(ctx, Where(hasFF, "%ff%"))
	require.NoError(t, err)
	assert.Len(t, ignored, 10, "GetAll does not filter")
}

func TestGetFilters(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	matches, err := f.colors.Get(ctx, Where(hasFF, "%ff%"))
	require.NoError(t, err)
	assert.Len(t, matches, 6)

	page, err := f.colors.Get(ctx, Where(hasFF, "%ff%"), OrderBy("name desc"), Skip(1), Take(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"White", "Red"}, names(page))

	both, err := f.colors.Get(ctx, Where(hasFF, "%ff%"), Where("name LIKE ?", "%e%"), OrderBy("name"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Lime", "Red", "White", "Yellow"}, names(both))

	scoped, err := f.colors.Get(ctx, Scope(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("name = ?", "Teal").WhereOr("name = ?", "Aqua")
		})
	}), OrderBy("name"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Aqua", "Teal"}, names(scoped))
}

func TestOrderByExpression(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	longest, err := f.colors.GetAll(ctx, OrderBy("length(name) DESC", "name"), Take(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"Fushia", "Yellow", "Black"}, names(longest))

	shortest, err := f.colors.GetAll(ctx, OrderBy("length(name)", "name DESC"), Take(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"Red", "Teal"}, names(shortest))
}

func TestPagingEdges(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	none, err := f.colors.GetAll(ctx, Take(0))
	require.NoError(t, err)
	assert.Empty(t, none)

	beyond, err := f.colors.Get(ctx, Skip(20), Take(5))
	require.NoError(t, err)
	assert.Empty(t, beyond)

	tail, err := f.colors.GetAll(ctx, OrderBy("name"), Skip(8))
	require.NoError(t, err)
	assert.Equal(t, []string{"White", "Yellow"}, names(tail))

	clamped, err := f.colors.GetAll(ctx, Skip(-4), Take(-1))
	require.NoError(t, err)
	assert.Empty(t, clamped)
}

func TestGetOne(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	red, err := f.colors.GetOne(ctx, Where("name = ?", "Red"))
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", red.Hex)

	_, err = f.colors.GetOne(ctx)
	assert.True(t, errs.Is(err, errs.ErrMultipleResults), "got %v", err)
	assert.True(t, errs.Is(err, errs.ErrData))

	_, err = f.colors.GetOne(ctx, Where("name = ?", "Purple"))
	assert.True(t, errs.Is(err, errs.ErrNotFound), "got %v", err)
	assert.False(t, errs.Is(err, errs.ErrMultipleResults))
}

func TestGetFirst(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.colors.GetFirst(ctx, Where(hasFF, "%ff%"), OrderBy("name"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Aqua", first.Name)

	byID, err := f.colors.GetFirst(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Red", byID.Name)

	missing, err := f.colors.GetFirst(ctx, Where("name = ?", "Purple"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetByID(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	teal := f.seeded["Teal"]
	got, err := f.colors.GetByID(ctx, teal.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Teal", got.Name)
	assert.Equal(t, teal.Version, got.Version)

	missing, err := f.colors.GetByID(ctx, int64(999))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCountAndExists(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	n, err := f.colors.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = f.colors.GetCount(ctx, Where(hasFF, "%ff%"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	ok, err := f.colors.Exists(ctx, Where("name = ?", "Grey"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.colors.Exists(ctx, Where("name = ?", "Purple"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInclude(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	apple, err := f.fruits.GetOne(ctx, Where("?TableAlias.name = ?", "Apple"), Include("Color"))
	require.NoError(t, err)
	require.NotNil(t, apple.Color)
	assert.Equal(t, "Red", apple.Color.Name)

	plain, err := f.fruits.GetByID(ctx, apple.ID)
	require.NoError(t, err)
	assert.Nil(t, plain.Color)

	fruits, err := f.fruits.GetAll(ctx, Include("Color"), OrderBy("name DESC"))
	require.NoError(t, err)
	require.Len(t, fruits, 2)
	assert.Equal(t, "Banana", fruits[0].Name)
	assert.Equal(t, "Yellow", fruits[0].Color.Name)
}

func TestFilterWithInclude(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	apples, err := f.fruits.Get(ctx, Include("Color"), Where("?TableAlias.name = ?", "Apple"), OrderBy("name"))
	require.NoError(t, err)
	require.Len(t, apples, 1)
	assert.Equal(t, "Red", apples[0].Color.Name)

	yellow, err := f.fruits.Get(ctx, Include("Color"), Where("color.name = ?", "Yellow"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Banana"}, names(yellow))

	n, err := f.fruits.GetCount(ctx, Where("?TableAlias.name LIKE ?", "%a%"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnknownInclude(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for _, path := range []string{"Owner", "Color.Owner", "color"} {
		_, err := f.fruits.GetAll(ctx, Include(path))
		assert.True(t, errs.Is(err, errs.ErrUnknownInclude), "%s: got %v", path, err)
	}

	_, err := f.fruits.GetByID(ctx, int64(1), Include("Owner"))
	assert.True(t, errs.Is(err, errs.ErrUnknownInclude))
}

func TestPage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	p, err := f.colors.Page(ctx, types.NewPageRequest(2, 3, nil, "name ASC"))
	require.NoError(t, err)
	assert.Equal(t, 10, p.Total)
	assert.Equal(t, 4, p.Pages())
	assert.Equal(t, []string{"Green", "Grey", "Lime"}, names(p.Items))

	filtered, err := f.colors.Page(ctx, types.NewPageRequest(1, 4, types.NewQueryFilter(hasFF, "%ff%"), "name DESC"))
	require.NoError(t, err)
	assert.Equal(t, 6, filtered.Total)
	assert.Equal(t, []string{"Yellow", "White", "Red", "Lime"}, names(filtered.Items))

	empty, err := f.colors.Page(ctx, nil, Where("name = ?", "Purple"))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)
}

func TestAsyncReads(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	all := f.colors.GetAllAsync(ctx, OrderBy("name"), Take(3))
	count := f.colors.GetCountAsync(ctx, Where(hasFF, "%ff%"))
	one := f.colors.GetOneAsync(ctx)

	items, err := types.Await(all)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aqua", "Black", "Fushia"}, names(items))

	n, err := types.Await(count)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	res := <-one
	assert.True(t, res.IsErr(errs.ErrMultipleResults))

	exists, err := types.Await(f.colors.ExistsAsync(ctx, Where("name = ?", "Lime")))
	require.NoError(t, err)
	assert.True(t, exists)

	byID, err := types.Await(f.colors.GetByIDAsync(ctx, f.seeded["Lime"].ID))
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", byID.Hex)

	first, err := types.Await(f.colors.GetFirstAsync(ctx, OrderBy("name DESC")))
	require.NoError(t, err)
	assert.Equal(t, "Yellow", first.Name)

	got, err := types.Await(f.colors.GetAsync(ctx, Where("name = ?", "Black")))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReadOnlyOverTx(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	err := f.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo, err := NewReadOnlyRepository[Color](tx)
		if err != nil {
			return err
		}
		n, err := repo.GetCount(ctx)
		assert.Equal(t, 10, n)
		return err
	})
	require.NoError(t, err)
}

func TestConstructorErrors(t *testing.T) {
	_, err := NewReadOnlyRepository[Color](nil)
	assert.True(t, errs.Is(err, errs.ErrConfiguration))

	var db *bun.DB
	_, err = NewReadOnlyRepository[Color](db)
	assert.True(t, errs.Is(err, errs.ErrConfiguration))

	_, err = NewRepository[Color](nil)
	assert.True(t, errs.Is(err, errs.ErrConfiguration))

	_, err = NewSession(nil)
	assert.True(t, errs.Is(err, errs.ErrConfiguration))

	_, err = NewReadOnlyRepository[int](openDB(t))
	assert.True(t, errs.Is(err, errs.ErrConfiguration))
}
