package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/appforge/engine/internal/models"
	"github.com/appforge/engine/internal/repository"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/appforge/engine/pkg/logger"
)

// TaskTypeGenerate is the queued task that runs the full generation pipeline
// for an application.
const TaskTypeGenerate = "app:generate"

type ApplicationService interface {
	CreateApplication(ctx context.Context, input *CreateApplicationInput) (*models.Application, error)
	GetApplication(ctx context.Context, appID uuid.UUID) (*models.Application, error)
	ListApplications(ctx context.Context) ([]models.Application, error)
	ListDeployments(ctx context.Context, appID uuid.UUID) ([]models.DeploymentRecord, error)
}

type CreateApplicationInput struct {
	Name        string `json:"name" validate:"required,min=1,max=128"`
	Description string `json:"description" validate:"required,min=10"`
}

// GeneratePayload is the task payload for TaskTypeGenerate.
type GeneratePayload struct {
	ApplicationID string `json:"application_id"`
}

type applicationService struct {
	appRepo     repository.ApplicationRepository
	deployRepo  repository.DeploymentRepository
	asynqClient *asynq.Client
}

func NewApplicationService(appRepo repository.ApplicationRepository, deployRepo repository.DeploymentRepository, client *asynq.Client) ApplicationService {
	return &applicationService{appRepo: appRepo, deployRepo: deployRepo, asynqClient: client}
}

var _ ApplicationService = (*applicationService)(nil)

func (s *applicationService) CreateApplication(ctx context.Context, input *CreateApplicationInput) (*models.Application, error) {
	logger.L().Info("create application", zap.String("name", input.Name))

	app := &models.Application{
		Name:        input.Name,
		Description: input.Description,
		Status:      models.AppStatusDraft,
	}
	if err := s.appRepo.Create(ctx, app); err != nil {
		return nil, err
	}

	pb, _ := json.Marshal(GeneratePayload{ApplicationID: app.ID.String()})
	task := asynq.NewTask(TaskTypeGenerate, pb)
	if s.asynqClient == nil {
		logger.L().Warn("asynq client not configured, skipping enqueue", zap.String("application_id", app.ID.String()))
	} else {
		if _, err := s.asynqClient.EnqueueContext(ctx, task); err != nil {
			logger.L().Error("enqueue generate task failed", zap.Error(err), zap.String("application_id", app.ID.String()))
			_ = s.appRepo.UpdateStatus(ctx, app.ID, models.AppStatusFailed)
			return nil, appErr.Wrap(err, appErr.CodeInternal, "enqueue generate task failed")
		}
		_ = s.appRepo.UpdateStatus(ctx, app.ID, models.AppStatusGenerating)
		app.Status = models.AppStatusGenerating
	}

	logger.L().Info("application created and enqueued", zap.String("application_id", app.ID.String()))
	return app, nil
}

func (s *applicationService) GetApplication(ctx context.Context, appID uuid.UUID) (*models.Application, error) {
	var app models.Application
	if err := s.appRepo.GetByID(ctx, appID, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *applicationService) ListApplications(ctx context.Context) ([]models.Application, error) {
	return s.appRepo.List(ctx)
}

func (s *applicationService) ListDeployments(ctx context.Context, appID uuid.UUID) ([]models.DeploymentRecord, error) {
	var app models.Application
	if err := s.appRepo.GetByID(ctx, appID, &app); err != nil {
		return nil, err
	}
	return s.deployRepo.ListByApplication(ctx, appID)
}
