// Package database manages the bun connection behind the repositories:
// configuration and DB_* overrides, mysql/postgres/sqlite managers, query
// logging, store error classification and table creation for registered
// models.
package database
