package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeploymentRecord stores the outcome of one deployment attempt, whether it
// came from the synchronous Deploy stage or the auto-deployment trigger.
type DeploymentRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ApplicationID  uuid.UUID      `gorm:"type:uuid;index;not null" json:"application_id" validate:"required"`
	VendorProject  string         `gorm:"type:varchar(128);index" json:"vendor_project"`
	VendorDeployID string         `gorm:"type:varchar(128);index" json:"vendor_deploy_id"`
	URL            string         `gorm:"type:text" json:"url"`
	Status         string         `gorm:"type:varchar(32);index;not null" json:"status" validate:"required,oneof=pending building ready error timed_out"`
	EnvVars        datatypes.JSON `gorm:"type:jsonb" json:"env_vars"`
	Summary        datatypes.JSON `gorm:"type:jsonb" json:"summary"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
