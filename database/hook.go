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

package database

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var querySilent atomic.Bool

// SetQueryLogSilent mutes QueryLogHook, e.g. while tables are created.
func SetQueryLogSilent(silent bool) {
	querySilent.Store(silent)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var otherOperationColor = color.New(color.FgRed)

// colorQuery colors a statement by its operation.
func colorQuery(event *bun.QueryEvent) string {
	c, ok := operationColors[event.Operation()]
	if !ok {
		c = otherOperationColor
	}
	return c.Sprint(event.Query)
}

// QueryLogHook reports failed statements and statements slower than
// SlowTime through Logger. A zero SlowTime disables slow-query reporting.
type QueryLogHook struct {
	SlowTime time.Duration
	Logger   Logger
}

var _ bun.QueryHook = (*QueryLogHook)(nil)

func (h *QueryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if h.Logger == nil || querySilent.Load() {
		return
	}
	duration := time.Since(event.StartTime)

	if event.Err != nil {
		if errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone) {
			return
		}
		_, kind := ClassifyError(event.Err)
		h.Logger.Warn("Query failed",
			"operation", event.Operation(),
			"kind", kind.String(),
			"duration", duration.Round(time.Microsecond),
			"query", colorQuery(event),
			"error", event.Err,
		)
		return
	}

	if h.SlowTime > 0 && duration > h.SlowTime {
		h.Logger.Warn("Slow query detected",
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.SlowTime,
			"query", colorQuery(event),
		)
	}
}
