// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// MySQL/MariaDB (production) and SQLite (pure Go driver, dev and tests),
// plus schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/avramides/go-convo-proxy/internal/domain"
)

// MySQLParams holds the connection parameters for a MySQL/MariaDB server.
// The DSN is assembled here so callers only deal with discrete env values.
type MySQLParams struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// DSN renders the go-sql-driver DSN for the parameters.
func (p MySQLParams) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		p.User, p.Password, p.Host, p.Port, p.Name)
}

// OpenMySQL opens a MySQL/MariaDB database without pinging it. An
// unreachable server must not fail process startup; the first real query
// performs the actual connection attempt (lazy reconnection).
func OpenMySQL(p MySQLParams) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN: p.DSN(),
		// AutoDetect would dial the server at configuration time.
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, err
	}
	tunePool(db)
	_ = db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	tunePool(db)
	_ = db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
	return db, nil
}

// tunePool applies conservative connection pool limits.
func tunePool(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// AutoMigrate creates or updates the users and turns tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Turn{},
	)
}
