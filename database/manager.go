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
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// driver knows how to reach one database type.
type driver struct {
	name    string
	dsn     func(*ConnectionConfig) string
	dialect func() schema.Dialect
	// singleConn pins the pool to one connection.
	singleConn bool
}

var drivers = map[string]driver{
	"mysql": {
		name:    "mysql",
		dsn:     mysqlDSN,
		dialect: func() schema.Dialect { return mysqldialect.New() },
	},
	"postgres": {
		name:    "postgres",
		dsn:     postgresDSN,
		dialect: func() schema.Dialect { return pgdialect.New() },
	},
	"sqlite": {
		name:       sqliteshim.ShimName,
		dsn:        func(c *ConnectionConfig) string { return SQLiteDSN(c.DBName) },
		dialect:    func() schema.Dialect { return sqlitedialect.New() },
		singleConn: true,
	},
}

func lookupDriver(typ string) (driver, error) {
	d, ok := drivers[typ]
	if !ok {
		return driver{}, fmt.Errorf("unsupported database type: %s", typ)
	}
	return d, nil
}

func mysqlDSN(c *ConnectionConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=%s&readTimeout=%s&writeTimeout=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, c.ConnectTimeout, c.ReadTimeout, c.WriteTimeout)
}

func postgresDSN(c *ConnectionConfig) string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode, int(c.ConnectTimeout.Seconds()))
}

// SQLiteDSN turns a configured sqlite name into a driver DSN. An empty name
// or ":memory:" opens a shared in-memory database, "file:" URIs pass
// through and plain names get a ".db" suffix.
func SQLiteDSN(name string) string {
	switch {
	case name == "" || name == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	default:
		return name + ".db"
	}
}

// bunManager owns the bun handle of one ConnectionConfig. While connected
// with a positive HealthCheckInterval a monitor goroutine pings the store
// and, when EnableReconnect is set, reopens the handle after failures.
type bunManager struct {
	config *ConnectionConfig
	models []interface{}

	mu          sync.RWMutex
	logger      Logger
	db          *bun.DB
	sqlDB       *sql.DB
	stopMonitor context.CancelFunc
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by bun. A nil
// config falls back to DefaultConnectionConfig. Models, when given, are the
// tables RunMigrations creates; otherwise the registered models are used.
func NewDatabaseManager(config *ConnectionConfig, models ...interface{}) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	return &bunManager{
		config: config,
		models: models,
		logger: GetLogger(),
	}
}

// open builds and verifies a new handle without publishing it.
func (m *bunManager) open(ctx context.Context, logger Logger) (*sql.DB, *bun.DB, error) {
	d, err := lookupDriver(m.config.Type)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := sql.Open(d.name, d.dsn(m.config))
	if err != nil {
		return nil, nil, err
	}

	if d.singleConn {
		// an in-memory sqlite database lives as long as its last connection
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)
	}

	db := bun.NewDB(sqlDB, d.dialect())
	if m.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
	}
	db.AddQueryHook(&QueryLogHook{SlowTime: m.config.SlowQueryTime, Logger: logger})

	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("database connection test failed: %w", err)
	}
	return sqlDB, db, nil
}

func (m *bunManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}

	sqlDB, db, err := m.open(ctx, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	m.sqlDB, m.db = sqlDB, db

	if every := m.config.HealthCheckInterval; every > 0 {
		monitorCtx, cancel := context.WithCancel(context.Background())
		m.stopMonitor = cancel
		go m.monitor(monitorCtx, every)
	}
	m.logger.Info("Database connected", "type", m.config.Type, "host", m.config.Host, "dbname", m.config.DBName)
	return nil
}

func (m *bunManager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopMonitor != nil {
		m.stopMonitor()
		m.stopMonitor = nil
	}
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db, m.sqlDB = nil, nil
	if err != nil {
		m.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	m.logger.Info("Database connection closed")
	return nil
}

func (m *bunManager) Reconnect(ctx context.Context) error {
	m.log().Info("Attempting to reconnect to the database")
	if err := m.Disconnect(); err != nil {
		m.log().Warn("Error disconnecting existing connection", "error", err)
	}
	return m.Connect(ctx)
}

// reopen swaps in a fresh handle while keeping the monitor running.
func (m *bunManager) reopen(ctx context.Context) error {
	sqlDB, db, err := m.open(ctx, m.log())
	if err != nil {
		return err
	}
	m.mu.Lock()
	old := m.db
	m.sqlDB, m.db = sqlDB, db
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (m *bunManager) monitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	tries := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.HealthCheck(ctx).Healthy {
			tries = 0
			continue
		}
		if !m.config.EnableReconnect || ctx.Err() != nil {
			continue
		}
		if tries >= m.config.MaxReconnectTries {
			m.log().Error("Max reconnect attempts reached", "tries", tries)
			continue
		}
		tries++
		m.log().Info("Starting database reconnect", "try", tries)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.config.ReconnectInterval):
		}
		if err := m.reopen(ctx); err != nil {
			m.log().Error("Reconnect failed", "error", err, "try", tries)
			continue
		}
		m.log().Info("Reconnect succeeded", "try", tries)
	}
}

func (m *bunManager) handles() (*bun.DB, *sql.DB) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db, m.sqlDB
}

func (m *bunManager) GetDB() *bun.DB {
	db, _ := m.handles()
	return db
}

func (m *bunManager) GetSQLDB() *sql.DB {
	_, sqlDB := m.handles()
	return sqlDB
}

func (m *bunManager) Ping(ctx context.Context) error {
	db, _ := m.handles()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (m *bunManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	db, sqlDB := m.handles()
	if db == nil {
		status.LastError = "database not initialized"
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := db.PingContext(pingCtx)
		cancel()

		status.ResponseTime = time.Since(start)
		status.Healthy = err == nil
		status.Connected = err == nil
		if err != nil {
			status.LastError = err.Error()
		}
		stats := sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	return status
}

func (m *bunManager) GetStats() *DBStats {
	_, sqlDB := m.handles()
	if sqlDB == nil {
		return &DBStats{}
	}
	s := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

func (m *bunManager) RunMigrations(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return NewMigrationManager(db, m.log(), m.models...).RunMigrations(ctx)
}

func (m *bunManager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

func (m *bunManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}
