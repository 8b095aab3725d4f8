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
	"errors"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/tomoncle/strata/errs"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type readOnlyRepository[T any] struct {
	db    bun.IDB
	table *schema.Table
}

// NewReadOnlyRepository returns a repository reading T through db, which
// may be a *bun.DB, a bun.Tx or a bun.Conn.
func NewReadOnlyRepository[T any](db bun.IDB) (ReadOnlyRepository[T], error) {
	return newReadOnlyRepository[T](db)
}

func newReadOnlyRepository[T any](db bun.IDB) (*readOnlyRepository[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if isNilDB(db) {
		return nil, errs.Configurationf("repository for %s needs a database handle", typ)
	}
	if typ.Kind() != reflect.Struct {
		return nil, errs.Configurationf("repository entity %s must be a struct", typ)
	}
	return &readOnlyRepository[T]{db: db, table: db.Dialect().Tables().Get(typ)}, nil
}

func isNilDB(db bun.IDB) bool {
	if db == nil {
		return true
	}
	v := reflect.ValueOf(db)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

func (r *readOnlyRepository[T]) entityName() string { return r.table.Type.Name() }

func (r *readOnlyRepository[T]) NewSelect() *bun.SelectQuery {
	return r.db.NewSelect().Model((*T)(nil))
}

// checkIncludes resolves every include path against the bun relations of T.
func (r *readOnlyRepository[T]) checkIncludes(paths []string) error {
	for _, path := range paths {
		table := r.table
		for _, name := range strings.Split(path, ".") {
			rel, ok := table.Relations[name]
			if !ok {
				return errs.UnknownInclude(r.entityName(), path)
			}
			table = rel.JoinTable
		}
	}
	return nil
}

func (r *readOnlyRepository[T]) selectQuery(model interface{}, o *queryOptions) (*bun.SelectQuery, error) {
	if err := r.checkIncludes(o.includes); err != nil {
		return nil, err
	}
	q := r.db.NewSelect().Model(model)
	for _, path := range o.includes {
		q = q.Relation(path)
	}
	return q, nil
}

func applyFilters(q *bun.SelectQuery, o *queryOptions) *bun.SelectQuery {
	for _, w := range o.filters {
		q = q.Where(w.schema, w.args...)
	}
	for _, scope := range o.scopes {
		q = scope(q)
	}
	return q
}

var sortDirections = map[string]bool{
	"ASC":              true,
	"DESC":             true,
	"ASC NULLS FIRST":  true,
	"ASC NULLS LAST":   true,
	"DESC NULLS FIRST": true,
	"DESC NULLS LAST":  true,
}

// applyOrder qualifies bare column names with the entity alias so ordering
// stays unambiguous once relations are joined.
func applyOrder(q *bun.SelectQuery, orders []string) *bun.SelectQuery {
	for _, term := range orders {
		col, dir, _ := strings.Cut(term, " ")
		dir = strings.ToUpper(strings.Join(strings.Fields(dir), " "))
		if dir == "" {
			dir = "ASC"
		}
		switch {
		case strings.ContainsAny(col, "(\"`"), !sortDirections[dir]:
			q = q.OrderExpr(term)
		case strings.Contains(col, "."):
			q = q.Order(col + " " + dir)
		default:
			q = q.OrderExpr("?TableAlias.? "+dir, bun.Ident(col))
		}
	}
	return q
}

func applyPaging(q *bun.SelectQuery, o *queryOptions) *bun.SelectQuery {
	if !o.paged() {
		return q
	}
	if len(o.orders) == 0 {
		q = q.OrderExpr("?TablePKs ASC")
	}
	if o.skip > 0 {
		q = q.Offset(o.skip)
	}
	if o.hasTake {
		return q.Limit(o.take)
	}
	return q.Limit(math.MaxInt32)
}

func (r *readOnlyRepository[T]) list(ctx context.Context, o *queryOptions, filtered bool) ([]*T, error) {
	items := make([]*T, 0)
	if o.emptyPage() {
		return items, nil
	}
	q, err := r.selectQuery(&items, o)
	if err != nil {
		return nil, err
	}
	if filtered {
		q = applyFilters(q, o)
	}
	q = applyPaging(applyOrder(q, o.orders), o)
	if err := q.Scan(ctx); err != nil {
		return nil, errs.Data(err, "select "+r.entityName())
	}
	return items, nil
}

func (r *readOnlyRepository[T]) GetAll(ctx context.Context, opts ...QueryOption) ([]*T, error) {
	return r.list(ctx, collect(opts), false)
}

func (r *readOnlyRepository[T]) GetAllAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[[]*T] {
	return types.Go(func() ([]*T, error) { return r.GetAll(ctx, opts...) })
}

func (r *readOnlyRepository[T]) Get(ctx context.Context, opts ...QueryOption) ([]*T, error) {
	return r.list(ctx, collect(opts), true)
}

func (r *readOnlyRepository[T]) GetAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[[]*T] {
	return types.Go(func() ([]*T, error) { return r.Get(ctx, opts...) })
}

func (r *readOnlyRepository[T]) GetOne(ctx context.Context, opts ...QueryOption) (*T, error) {
	o := collect(opts)
	items := make([]*T, 0, 2)
	q, err := r.selectQuery(&items, o)
	if err != nil {
		return nil, err
	}
	if err := applyFilters(q, o).Limit(2).Scan(ctx); err != nil {
		return nil, errs.Data(err, "select "+r.entityName())
	}
	switch len(items) {
	case 0:
		return nil, errs.NotFoundf("no %s matches the filter", r.entityName())
	case 1:
		return items[0], nil
	default:
		return nil, errs.MultipleResultsf("more than one %s matches the filter", r.entityName())
	}
}

func (r *readOnlyRepository[T]) GetOneAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[*T] {
	return types.Go(func() (*T, error) { return r.GetOne(ctx, opts...) })
}

func (r *readOnlyRepository[T]) GetFirst(ctx context.Context, opts ...QueryOption) (*T, error) {
	o := collect(opts)
	if o.emptyPage() {
		return nil, nil
	}
	o.take, o.hasTake = 1, true
	items, err := r.list(ctx, o, true)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *readOnlyRepository[T]) GetFirstAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[*T] {
	return types.Go(func() (*T, error) { return r.GetFirst(ctx, opts...) })
}

func (r *readOnlyRepository[T]) GetByID(ctx context.Context, id any, opts ...QueryOption) (*T, error) {
	o := collect(opts)
	item := new(T)
	q, err := r.selectQuery(item, o)
	if err != nil {
		return nil, err
	}
	if err := q.Where("?TablePKs = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Data(err, "select "+r.entityName())
	}
	return item, nil
}

func (r *readOnlyRepository[T]) GetByIDAsync(ctx context.Context, id any, opts ...QueryOption) <-chan types.Result[*T] {
	return types.Go(func() (*T, error) { return r.GetByID(ctx, id, opts...) })
}

func (r *readOnlyRepository[T]) GetCount(ctx context.Context, opts ...QueryOption) (int, error) {
	n, err := applyFilters(r.NewSelect(), collect(opts)).Count(ctx)
	if err != nil {
		return 0, errs.Data(err, "count "+r.entityName())
	}
	return n, nil
}

func (r *readOnlyRepository[T]) GetCountAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[int] {
	return types.Go(func() (int, error) { return r.GetCount(ctx, opts...) })
}

func (r *readOnlyRepository[T]) Exists(ctx context.Context, opts ...QueryOption) (bool, error) {
	ok, err := applyFilters(r.NewSelect(), collect(opts)).Exists(ctx)
	if err != nil {
		return false, errs.Data(err, "exists "+r.entityName())
	}
	return ok, nil
}

func (r *readOnlyRepository[T]) ExistsAsync(ctx context.Context, opts ...QueryOption) <-chan types.Result[bool] {
	return types.Go(func() (bool, error) { return r.Exists(ctx, opts...) })
}

func (r *readOnlyRepository[T]) Page(ctx context.Context, page *types.PageRequest, opts ...QueryOption) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewPageRequest(1, types.DefaultPageSize, nil)
	}
	o := collect(opts)
	if f := page.GetFilter(); f != nil {
		o.filters = append(o.filters, whereClause{schema: f.Schema, args: f.Args})
	}
	o.orders = slices.Concat(page.GetOrders(), o.orders)
	o.skip, o.take, o.hasTake = page.GetOffset(), page.GetPageSize(), true

	pagination := types.NewPagination[T](page)
	var items []*T
	q, err := r.selectQuery(&items, o)
	if err != nil {
		return nil, err
	}
	q = applyFilters(q, o)
	total, err := q.Count(ctx)
	if err != nil {
		return nil, errs.Data(err, "count "+r.entityName())
	}
	if total == 0 {
		return pagination, nil
	}
	if err := applyPaging(applyOrder(q, o.orders), o).Scan(ctx); err != nil {
		return nil, errs.Data(err, "select "+r.entityName())
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}
