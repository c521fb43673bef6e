package repository

import (
	"context"

	"github.com/appforge/engine/internal/models"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeploymentRepository interface {
	BaseRepository[models.DeploymentRecord]
	ListByApplication(ctx context.Context, appID uuid.UUID) ([]models.DeploymentRecord, error)
	GetLatestByApplication(ctx context.Context, appID uuid.UUID, dest *models.DeploymentRecord) error
	UpdateStatus(ctx context.Context, deploymentID uuid.UUID, status string) error
}

type deploymentRepository struct {
	BaseRepository[models.DeploymentRecord]
	db *gorm.DB
}

func NewDeploymentRepository(db *gorm.DB) DeploymentRepository {
	return &deploymentRepository{BaseRepository: NewBaseRepository[models.DeploymentRecord](db), db: db}
}

func (r *deploymentRepository) ListByApplication(ctx context.Context, appID uuid.UUID) ([]models.DeploymentRecord, error) {
	var out []models.DeploymentRecord
	if err := r.db.WithContext(ctx).Where("application_id = ?", appID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list deployments failed")
	}
	return out, nil
}

func (r *deploymentRepository) GetLatestByApplication(ctx context.Context, appID uuid.UUID, dest *models.DeploymentRecord) error {
	if err := r.db.WithContext(ctx).Where("application_id = ?", appID).Order("created_at DESC").First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no deployments found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get latest deployment failed")
	}
	return nil
}

func (r *deploymentRepository) UpdateStatus(ctx context.Context, deploymentID uuid.UUID, status string) error {
	res := r.db.WithContext(ctx).Model(&models.DeploymentRecord{}).Where("id = ?", deploymentID).Update("status", status)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update deployment status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "deployment not found")
	}
	return nil
}
