package main

import (
	"gorm.io/gorm"

	"github.com/appforge/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		&models.Application{},
		&models.Document{},
		&models.DeploymentRecord{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	if err := enableUUIDExtension(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}
	return addDeploymentIndexes(db)
}

// enableUUIDExtension ensures UUID generation is available
func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addDeploymentIndexes adds custom indexes for performance
func addDeploymentIndexes(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_deployment_records_app_created
		ON deployment_records(application_id, created_at DESC)
		WHERE deleted_at IS NULL
	`).Error
}
