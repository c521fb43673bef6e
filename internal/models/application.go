package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Application statuses.
const (
	AppStatusDraft      = "draft"
	AppStatusGenerating = "generating"
	AppStatusReady      = "ready"
	AppStatusFailed     = "failed"
)

// Application represents one generated web application.
type Application struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string         `gorm:"not null;index" json:"name" validate:"required"`
	Description string         `gorm:"type:text;not null" json:"description" validate:"required"`
	Status      string         `gorm:"type:varchar(32);index;not null;default:draft" json:"status" validate:"required,oneof=draft generating ready failed"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
