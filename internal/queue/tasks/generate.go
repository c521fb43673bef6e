// Package tasks holds the asynq task handlers for the generation pipeline
// and the auto-deployment trigger.
package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/appforge/engine/internal/models"
	"github.com/appforge/engine/internal/pipeline"
	"github.com/appforge/engine/internal/repository"
	"github.com/appforge/engine/internal/scaffold"
	"github.com/appforge/engine/internal/schema"
	"github.com/appforge/engine/internal/services"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/appforge/engine/pkg/logger"
)

// PipelineRunner runs the full generation pipeline for an application.
type PipelineRunner interface {
	Run(ctx context.Context, app *models.Application) (*pipeline.Result, error)
}

// DocumentContent is the artifact bundle persisted on the application's
// document after a pipeline run. The auto-deploy handler reads it back to
// rebuild its deploy input.
type DocumentContent struct {
	AppName    string               `json:"app_name"`
	Summary    pipeline.Summary     `json:"summary"`
	Schema     schema.Schema        `json:"schema"`
	SchemaText string               `json:"schema_text"`
	Operations []scaffold.Operation `json:"operations"`
	Jobs       []scaffold.Job       `json:"jobs"`
	Deployment map[string]any       `json:"deployment,omitempty"`
}

// GenerateTaskHandler handles the app:generate task.
type GenerateTaskHandler struct {
	runner  PipelineRunner
	appRepo repository.ApplicationRepository
	docRepo repository.DocumentRepository
}

func NewGenerateTaskHandler(runner PipelineRunner, appRepo repository.ApplicationRepository, docRepo repository.DocumentRepository) *GenerateTaskHandler {
	return &GenerateTaskHandler{runner: runner, appRepo: appRepo, docRepo: docRepo}
}

func (h *GenerateTaskHandler) HandleGenerate(ctx context.Context, t *asynq.Task) error {
	var p services.GeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid generate task payload", zap.Error(err))
		return err
	}
	appID, err := uuid.Parse(p.ApplicationID)
	if err != nil {
		logger.L().Error("invalid application id in task", zap.Error(err))
		return err
	}

	log := logger.L().With(zap.String("application_id", appID.String()))
	log.Info("handling generate task")

	var app models.Application
	if err := h.appRepo.GetByID(ctx, appID, &app); err != nil {
		log.Error("get application failed", zap.Error(err))
		return err
	}
	if err := h.appRepo.UpdateStatus(ctx, appID, models.AppStatusGenerating); err != nil {
		log.Warn("update status generating failed", zap.Error(err))
	}

	res, err := h.runner.Run(ctx, &app)
	if err != nil {
		log.Error("pipeline run failed", zap.Error(err), zap.String("stage", appErr.Stage(err)))
		_ = h.appRepo.UpdateStatus(ctx, appID, models.AppStatusFailed)
		// validation gates fail the same way every time
		if appErr.IsCode(err, appErr.CodeInvalid) {
			return asynq.SkipRetry
		}
		return err
	}

	if err := h.persistResult(ctx, &app, res); err != nil {
		log.Error("persist pipeline result failed", zap.Error(err))
		_ = h.appRepo.UpdateStatus(ctx, appID, models.AppStatusFailed)
		return err
	}

	_ = h.appRepo.UpdateStatus(ctx, appID, models.AppStatusReady)
	log.Info("generate task finished",
		zap.Int("models", len(res.Merged.Schema.Models)),
		zap.Int("operations", len(res.Operations)),
	)
	return nil
}

func (h *GenerateTaskHandler) persistResult(ctx context.Context, app *models.Application, res *pipeline.Result) error {
	content := DocumentContent{
		AppName:    res.Analysis.AppName,
		Summary:    res.Summary,
		Schema:     res.Merged.Schema,
		SchemaText: res.Merged.Text,
		Operations: res.Operations,
		Jobs:       res.Jobs,
	}
	if res.Deployment != nil {
		content.Deployment = map[string]any{
			"id":     res.Deployment.ID.String(),
			"url":    res.Deployment.URL,
			"status": res.Deployment.Status,
		}
	}
	b, err := json.Marshal(content)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "marshal document content failed")
	}

	var doc models.Document
	if err := h.docRepo.GetByApplication(ctx, app.ID, &doc); err != nil {
		if !appErr.IsCode(err, appErr.CodeNotFound) {
			return err
		}
		return h.docRepo.Create(ctx, &models.Document{
			ApplicationID: &app.ID,
			Content:       datatypes.JSON(b),
		})
	}
	return h.docRepo.SaveContent(ctx, doc.ID, datatypes.JSON(b), nil)
}
