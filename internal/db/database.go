// Package db wraps the GORM connection used by the scheduler, sandbox
// manager, and HTTP surface to share a single pool.
package db

import (
	"fmt"
	"time"

	"fairplay/pkg/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fairplay/internal/logging"
)

// Database wraps the GORM database instance.
type Database struct {
	DB *gorm.DB
}

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// DefaultConfig returns connection settings for a local postgres instance.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "password",
		DBName:   "fairplay",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}
}

// NewDatabase opens a postgres connection, configures the pool, and runs
// AutoMigrate over every known model.
func NewDatabase(config *Config) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		config.Host, config.Port, config.User, config.Password,
		config.DBName, config.SSLMode, config.TimeZone,
	)

	gormDB, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	database := &Database{DB: gormDB}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logging.L().Info("database connected")
	return database, nil
}

// Migrate brings the schema up to date via GORM's AutoMigrate. Schema
// migrations as a reviewable, versioned artifact are out of scope here;
// see DESIGN.md for why AutoMigrate replaces golang-migrate in this repo.
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// NewTestDatabase opens an in-memory pure-Go sqlite database (no cgo),
// migrated the same way as production. Used by package tests that need a
// real *gorm.DB without a postgres instance.
func NewTestDatabase() (*Database, error) {
	gormDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open test database: %w", err)
	}
	database := &Database{DB: gormDB}
	if err := database.Migrate(); err != nil {
		return nil, err
	}
	return database, nil
}

// Health pings the underlying connection.
func (d *Database) Health() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a GORM transaction, rolling back on error.
func (d *Database) Transaction(fn func(*gorm.DB) error) error {
	return d.DB.Transaction(fn)
}

// Stats exposes pool counters for the metrics package.
func (d *Database) Stats() map[string]int {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil
	}
	s := sqlDB.Stats()
	return map[string]int{
		"open_connections": s.OpenConnections,
		"in_use":           s.InUse,
		"idle":             s.Idle,
	}
}
