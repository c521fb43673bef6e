package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is the persisted session record a pipeline run originates from.
// The auto-deployment trigger writes deployment metadata back into Content.
type Document struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ApplicationID *uuid.UUID     `gorm:"type:uuid;index" json:"application_id"`
	Content       datatypes.JSON `gorm:"type:jsonb" json:"content"`
	Metadata      datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
