package repository

import (
	"context"

	"github.com/appforge/engine/internal/models"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApplicationRepository interface {
	BaseRepository[models.Application]
	List(ctx context.Context) ([]models.Application, error)
	UpdateStatus(ctx context.Context, appID uuid.UUID, status string) error
}

type applicationRepository struct {
	BaseRepository[models.Application]
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{BaseRepository: NewBaseRepository[models.Application](db), db: db}
}

func (r *applicationRepository) List(ctx context.Context) ([]models.Application, error) {
	var out []models.Application
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list applications failed")
	}
	return out, nil
}

func (r *applicationRepository) UpdateStatus(ctx context.Context, appID uuid.UUID, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", appID).Update("status", status)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update application status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "application not found")
	}
	return nil
}
