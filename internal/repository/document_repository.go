package repository

import (
	"context"

	"github.com/appforge/engine/internal/models"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentRepository interface {
	BaseRepository[models.Document]
	GetByApplication(ctx context.Context, appID uuid.UUID, dest *models.Document) error
	SaveContent(ctx context.Context, docID uuid.UUID, content, metadata datatypes.JSON) error
}

type documentRepository struct {
	BaseRepository[models.Document]
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{BaseRepository: NewBaseRepository[models.Document](db), db: db}
}

func (r *documentRepository) GetByApplication(ctx context.Context, appID uuid.UUID, dest *models.Document) error {
	if err := r.db.WithContext(ctx).Where("application_id = ?", appID).Order("created_at DESC").First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no document for application")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get document failed")
	}
	return nil
}

func (r *documentRepository) SaveContent(ctx context.Context, docID uuid.UUID, content, metadata datatypes.JSON) error {
	updates := map[string]any{"content": content}
	if metadata != nil {
		updates["metadata"] = metadata
	}
	res := r.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", docID).Updates(updates)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "save document content failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "document not found")
	}
	return nil
}
