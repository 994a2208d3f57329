// Package db owns the database connection and schema migrations.
package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/invoicerhq/invoicer/internal/config"
	"github.com/invoicerhq/invoicer/internal/models"
)

// Connect opens the database selected by the configuration. Postgres serves
// deployments; sqlite serves local development and tests.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate applies GORM auto-migrations for every persisted model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Settings{},
		&models.Invoice{},
		&models.LineItem{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
