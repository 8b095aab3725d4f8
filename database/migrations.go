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
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/uptrace/bun"
)

// MigrationManager creates the tables of a set of bun models and records
// each applied step in schema_migrations so it runs once per database.
type MigrationManager struct {
	db     *bun.DB
	logger Logger
	models []interface{}
}

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations,alias:sm"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// NewMigrationManager returns a manager for the given models. With no models
// it uses the registered ones, in priority order.
func NewMigrationManager(db *bun.DB, logger Logger, models ...interface{}) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	if len(models) == 0 {
		models = RegisteredModelInstances()
	}
	return &MigrationManager{db: db, logger: logger, models: models}
}

// RunMigrations applies every pending step in order.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		SetQueryLogSilent(true)
		defer SetQueryLogSilent(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := mm.migrations()
	if err != nil {
		return err
	}
	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed", "steps", len(migrations))
	return nil
}

// migrations builds one create-table step per model, keyed by table name.
func (mm *MigrationManager) migrations() ([]MigrationItem, error) {
	items := make([]MigrationItem, 0, len(mm.models))
	for _, model := range mm.models {
		typ := reflect.TypeOf(model)
		for typ != nil && typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		if typ == nil || typ.Kind() != reflect.Struct {
			return nil, fmt.Errorf("model %T is not a struct", model)
		}
		table := mm.db.Dialect().Tables().Get(typ)
		items = append(items, MigrationItem{
			Version:     "create_table_" + table.Name,
			Name:        typ.Name(),
			Description: fmt.Sprintf("Create table %s", table.Name),
			Up: func(ctx context.Context, db bun.IDB) error {
				_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
				return err
			},
		})
	}
	return items, nil
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now().UTC(),
			Description: migration.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed", "version", migration.Version, "name", migration.Name)
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}
