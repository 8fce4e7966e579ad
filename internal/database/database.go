// Package database owns the shared gorm connection. Each plugin creates its
// own tables through idempotent migrations; the runtime does not serialize
// access across plugins.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/castbot/castbot/internal/config"
)

var db *gorm.DB

// Initialize opens the database connection described by the active config.
func Initialize() error {
	cfg := config.Get().Database

	var err error
	switch cfg.Type {
	case "postgres":
		db, err = connectPostgres(cfg)
	case "", "sqlite":
		db, err = connectSQLite(cfg)
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", cfg.Type, err)
	}
	return nil
}

func connectPostgres(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

func connectSQLite(cfg config.DatabaseConfig) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "./data/castbot.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

// GetDB returns the shared database handle.
func GetDB() *gorm.DB {
	return db
}

// SetDB replaces the shared handle. Used by tests and embedded setups.
func SetDB(d *gorm.DB) {
	db = d
}

// Migrate executes one or more schema statements. Statements must be safe to
// re-run (CREATE TABLE IF NOT EXISTS style) because plugin init runs them on
// every process start.
func Migrate(d *gorm.DB, statements ...string) error {
	for _, stmt := range statements {
		if err := d.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	return nil
}
