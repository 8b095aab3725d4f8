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
	"strings"

	"github.com/uptrace/bun"
)

// QueryOption shapes a read. Options that a read does not use are ignored,
// e.g. GetAll ignores filters and GetOne ignores ordering and paging.
type QueryOption func(*queryOptions)

type queryOptions struct {
	filters  []whereClause
	scopes   []func(*bun.SelectQuery) *bun.SelectQuery
	orders   []string
	includes []string
	skip     int
	take     int
	hasTake  bool
}

type whereClause struct {
	schema string
	args   []interface{}
}

// Where adds a bun WHERE fragment such as "?TableAlias.hex LIKE ?". Several
// Where options are AND-ed. Fragments are passed to bun as written: once an
// Include joins another table, qualify shared column names with the
// ?TableAlias placeholder, e.g. Where("?TableAlias.name = ?", "Apple").
func Where(schema string, args ...interface{}) QueryOption {
	return func(o *queryOptions) {
		o.filters = append(o.filters, whereClause{schema: schema, args: args})
	}
}

// Scope adds an arbitrary filter built on the select query, e.g. a
// WhereGroup.
func Scope(fn func(*bun.SelectQuery) *bun.SelectQuery) QueryOption {
	return func(o *queryOptions) {
		if fn != nil {
			o.scopes = append(o.scopes, fn)
		}
	}
}

// OrderBy adds ordering terms like "name DESC". Columns without a table
// qualifier refer to the entity table. Terms that are not a column plus a
// direction are passed to bun as raw SQL, so they must never be built from
// untrusted input.
func OrderBy(terms ...string) QueryOption {
	return func(o *queryOptions) {
		for _, t := range terms {
			if t = strings.TrimSpace(t); t != "" {
				o.orders = append(o.orders, t)
			}
		}
	}
}

// Include eager-loads relationships given as a comma-separated list of
// relation names. Nested relations use dots, e.g. "Color,Color.Owner".
func Include(paths string) QueryOption {
	return func(o *queryOptions) {
		for _, p := range strings.Split(paths, ",") {
			if p = strings.TrimSpace(p); p != "" {
				o.includes = append(o.includes, p)
			}
		}
	}
}

// Skip drops the first n matches. Negative values count as zero.
func Skip(n int) QueryOption {
	return func(o *queryOptions) {
		o.skip = max(n, 0)
	}
}

// Take limits the result to n rows after Skip. Negative values count as zero.
func Take(n int) QueryOption {
	return func(o *queryOptions) {
		o.take = max(n, 0)
		o.hasTake = true
	}
}

func collect(opts []QueryOption) *queryOptions {
	o := &queryOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *queryOptions) paged() bool {
	return o.skip > 0 || o.hasTake
}

// emptyPage reports whether Take(0) was requested, which matches nothing.
func (o *queryOptions) emptyPage() bool {
	return o.hasTake && o.take == 0
}
