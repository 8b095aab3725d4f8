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
	"fmt"
	"regexp"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/entity"
	"github.com/uptrace/bun"
)

var hexPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type Color struct {
	bun.BaseModel `bun:"table:colors,alias:color"`
	entity.Entity

	Hex string `bun:"hex,notnull" json:"hex"`
}

func (c *Color) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Hex, validation.Required, validation.Match(hexPattern)),
	)
}

type Fruit struct {
	bun.BaseModel `bun:"table:fruits,alias:fruit"`
	entity.Entity

	ColorID int64  `bun:"color_id,notnull"`
	Color   *Color `bun:"rel:belongs-to,join:color_id=id"`
}

type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:token"`
	entity.GuidEntity

	Scope string `bun:"scope"`
}

var palette = []struct{ name, hex string }{
	{"Red", "#ff0000"},
	{"Yellow", "#ffff00"},
	{"White", "#ffffff"},
	{"Black", "#000000"},
	{"Grey", "#808080"},
	{"Lime", "#00ff00"},
	{"Green", "#008000"},
	{"Aqua", "#00ffff"},
	{"Teal", "#008080"},
	{"Fushia", "#ff00ff"},
}

// openDB returns a private in-memory sqlite database with the test tables.
func openDB(t *testing.T) *bun.DB {
	t.Helper()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.HealthCheckInterval = 0

	manager := database.NewDatabaseManager(cfg, (*Color)(nil), (*Fruit)(nil), (*Token)(nil))
	ctx := context.Background()
	require.NoError(t, manager.Connect(ctx))
	t.Cleanup(func() { _ = manager.Disconnect() })
	require.NoError(t, manager.RunMigrations(ctx))
	return manager.GetDB()
}

type fixture struct {
	db     *bun.DB
	colors Repository[Color]
	fruits Repository[Fruit]
	seeded map[string]*Color
}

func newFixture(t *testing.T, seed bool) *fixture {
	t.Helper()
	db := openDB(t)
	sess, err := NewSession(db)
	require.NoError(t, err)
	colors, err := NewRepository[Color](sess)
	require.NoError(t, err)
	fruits, err := NewRepository[Fruit](sess)
	require.NoError(t, err)

	f := &fixture{db: db, colors: colors, fruits: fruits, seeded: map[string]*Color{}}
	if !seed {
		return f
	}

	ctx := context.Background()
	for _, p := range palette {
		c := &Color{Hex: p.hex}
		c.Name = p.name
		require.NoError(t, colors.Create(c, "seed"))
		f.seeded[p.name] = c
	}
	n, err := colors.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, len(palette), n)

	apple := &Fruit{ColorID: f.seeded["Red"].ID}
	apple.Name = "Apple"
	banana := &Fruit{ColorID: f.seeded["Yellow"].ID}
	banana.Name = "Banana"
	require.NoError(t, fruits.Create(apple, "seed"))
	require.NoError(t, fruits.Create(banana, "seed"))
	_, err = fruits.Save(ctx)
	require.NoError(t, err)
	return f
}

func names[T entity.NamedEntity](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.GetName()
	}
	return out
}
