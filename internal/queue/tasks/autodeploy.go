package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/appforge/engine/internal/live"
	"github.com/appforge/engine/internal/models"
	"github.com/appforge/engine/internal/queue"
	"github.com/appforge/engine/internal/repository"
	"github.com/appforge/engine/internal/schema"
	"github.com/appforge/engine/internal/services"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/appforge/engine/pkg/logger"
)

// Live event names pushed after a successful auto-deployment.
const (
	EventDeploymentComplete = "deployment:complete"
	EventDocumentUpdated    = "document:updated"
)

// AutoDeployTaskHandler handles the debounced deployment:autodeploy task.
// Everything here is best-effort: any failure is logged and swallowed so the
// task never bounces back onto the queue or affects the primary pipeline.
type AutoDeployTaskHandler struct {
	deploySvc services.DeployService
	appRepo   repository.ApplicationRepository
	docRepo   repository.DocumentRepository
	publisher live.Publisher
	region    string
}

func NewAutoDeployTaskHandler(deploySvc services.DeployService, appRepo repository.ApplicationRepository, docRepo repository.DocumentRepository, publisher live.Publisher, region string) *AutoDeployTaskHandler {
	return &AutoDeployTaskHandler{deploySvc: deploySvc, appRepo: appRepo, docRepo: docRepo, publisher: publisher, region: region}
}

func (h *AutoDeployTaskHandler) HandleAutoDeploy(ctx context.Context, t *asynq.Task) error {
	var p queue.AutoDeployPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid auto-deploy task payload", zap.Error(err))
		return nil
	}
	log := logger.L().With(
		zap.String("application_id", p.ApplicationID),
		zap.String("app_name", p.AppName),
	)

	if p.ApplicationID == "" && p.DocumentID == "" {
		log.Info("auto-deploy skipped, no application or document reference")
		return nil
	}
	if p.AppName == "" {
		log.Info("auto-deploy skipped, no application name")
		return nil
	}

	app, doc, err := h.resolve(ctx, &p)
	if err != nil {
		log.Warn("auto-deploy skipped, resolve failed", zap.Error(err))
		return nil
	}

	var content DocumentContent
	if doc == nil || len(doc.Content) == 0 {
		log.Info("auto-deploy skipped, no generated artifacts yet")
		return nil
	}
	if err := json.Unmarshal(doc.Content, &content); err != nil {
		log.Warn("auto-deploy skipped, unreadable document content", zap.Error(err))
		return nil
	}
	if len(content.Schema.Models) == 0 {
		log.Info("auto-deploy skipped, document has no schema")
		return nil
	}

	record, err := h.deploySvc.DeployApplication(ctx, app, &services.DeployInput{
		Merged:     &schema.Merged{Schema: content.Schema, Text: content.SchemaText},
		Operations: content.Operations,
		Jobs:       content.Jobs,
		Region:     h.region,
	})
	if err != nil {
		if services.IsDeployInFlight(err) {
			log.Info("auto-deploy skipped, deployment already in flight")
		} else {
			log.Error("auto-deploy failed", zap.Error(err))
		}
		return nil
	}

	// read-modify-write the deployment metadata back into the document
	content.Deployment = map[string]any{
		"id":     record.ID.String(),
		"url":    record.URL,
		"status": record.Status,
		"source": "auto",
	}
	if b, err := json.Marshal(content); err == nil {
		if err := h.docRepo.SaveContent(ctx, doc.ID, datatypes.JSON(b), nil); err != nil {
			log.Error("persist auto-deploy metadata failed", zap.Error(err))
		}
	}

	if h.publisher == nil {
		log.Info("no live-update channel configured, skipping push")
	} else {
		h.publisher.Push(ctx, EventDeploymentComplete, map[string]any{
			"application_id": app.ID.String(),
			"url":            record.URL,
			"status":         record.Status,
		})
		h.publisher.Push(ctx, EventDocumentUpdated, content)
	}

	log.Info("auto-deploy finished",
		zap.String("deployment_id", record.ID.String()),
		zap.String("status", record.Status),
	)
	return nil
}

// resolve loads the application and its document from whichever reference the
// payload carries. A missing application record gets a minimal placeholder so
// deployment can still proceed from document artifacts.
func (h *AutoDeployTaskHandler) resolve(ctx context.Context, p *queue.AutoDeployPayload) (*models.Application, *models.Document, error) {
	var doc models.Document

	if p.ApplicationID != "" {
		appID, err := uuid.Parse(p.ApplicationID)
		if err != nil {
			return nil, nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid application id")
		}
		var app models.Application
		if err := h.appRepo.GetByID(ctx, appID, &app); err != nil {
			if !appErr.IsCode(err, appErr.CodeNotFound) {
				return nil, nil, err
			}
			app = models.Application{ID: appID, Name: p.AppName}
		}
		if err := h.docRepo.GetByApplication(ctx, appID, &doc); err != nil {
			if !appErr.IsCode(err, appErr.CodeNotFound) {
				return nil, nil, err
			}
			return &app, nil, nil
		}
		return &app, &doc, nil
	}

	docID, err := uuid.Parse(p.DocumentID)
	if err != nil {
		return nil, nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid document id")
	}
	if err := h.docRepo.GetByID(ctx, docID, &doc); err != nil {
		return nil, nil, err
	}

	app := models.Application{Name: p.AppName}
	if doc.ApplicationID != nil {
		var existing models.Application
		if err := h.appRepo.GetByID(ctx, *doc.ApplicationID, &existing); err == nil {
			app = existing
		} else {
			app.ID = *doc.ApplicationID
		}
	} else {
		app.ID = uuid.New()
	}
	return &app, &doc, nil
}
