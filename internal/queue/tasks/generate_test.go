package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/appforge/engine/internal/models"
	"github.com/appforge/engine/internal/pipeline"
	"github.com/appforge/engine/internal/scaffold"
	"github.com/appforge/engine/internal/schema"
	"github.com/appforge/engine/internal/services"
	appErr "github.com/appforge/engine/pkg/errors"
)

func generateTask(t *testing.T, appID uuid.UUID) *asynq.Task {
	t.Helper()
	pb, err := json.Marshal(services.GeneratePayload{ApplicationID: appID.String()})
	require.NoError(t, err)
	return asynq.NewTask(services.TaskTypeGenerate, pb)
}

func pipelineResult(t *testing.T, appID uuid.UUID) *pipeline.Result {
	t.Helper()
	merged, err := schema.Merge(&schema.Schema{Models: []schema.Model{{
		Name: "Note",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeString, IsID: true, IsRequired: true},
		},
	}}})
	require.NoError(t, err)
	return &pipeline.Result{
		Analysis:   &pipeline.AnalysisResult{AppName: "notes-app", Summary: "keeps notes"},
		Merged:     merged,
		Operations: []scaffold.Operation{{Name: "createNote", Entity: "Note", Kind: "create", Code: "x"}},
		Deployment: &models.DeploymentRecord{ID: uuid.New(), ApplicationID: appID, URL: "notes.example.app", Status: "ready"},
	}
}

func TestHandleGeneratePersistsResult(t *testing.T) {
	appID := uuid.New()
	app := &models.Application{ID: appID, Name: "notes-app", Description: "keeps notes", Status: models.AppStatusDraft}

	appRepo := &mockAppRepo{}
	appRepo.On("GetByID", mock.Anything, appID, mock.Anything).Return(nil, app)
	appRepo.On("UpdateStatus", mock.Anything, appID, models.AppStatusGenerating).Return(nil)
	appRepo.On("UpdateStatus", mock.Anything, appID, models.AppStatusReady).Return(nil)

	docRepo := &mockDocRepo{}
	docRepo.On("GetByApplication", mock.Anything, appID, mock.Anything).
		Return(appErr.New(appErr.CodeNotFound, "no document for application"), nil)
	docRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *models.Document) bool {
		var c DocumentContent
		require.NoError(t, json.Unmarshal(d.Content, &c))
		return *d.ApplicationID == appID && c.AppName == "notes-app" && len(c.Operations) == 1 && c.Deployment != nil
	})).Return(nil)

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.MatchedBy(func(a *models.Application) bool {
		return a.ID == appID
	})).Return(pipelineResult(t, appID), nil)

	h := NewGenerateTaskHandler(runner, appRepo, docRepo)
	require.NoError(t, h.HandleGenerate(context.Background(), generateTask(t, appID)))

	appRepo.AssertExpectations(t)
	docRepo.AssertExpectations(t)
}

func TestHandleGenerateUpdatesExistingDocument(t *testing.T) {
	appID := uuid.New()
	docID := uuid.New()
	app := &models.Application{ID: appID, Name: "notes-app", Description: "keeps notes"}
	doc := &models.Document{ID: docID, ApplicationID: &appID, Content: datatypes.JSON(`{}`)}

	appRepo := &mockAppRepo{}
	appRepo.On("GetByID", mock.Anything, appID, mock.Anything).Return(nil, app)
	appRepo.On("UpdateStatus", mock.Anything, appID, mock.Anything).Return(nil)

	docRepo := &mockDocRepo{}
	docRepo.On("GetByApplication", mock.Anything, appID, mock.Anything).Return(nil, doc)
	docRepo.On("SaveContent", mock.Anything, docID, mock.Anything, datatypes.JSON(nil)).Return(nil)

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).Return(pipelineResult(t, appID), nil)

	h := NewGenerateTaskHandler(runner, appRepo, docRepo)
	require.NoError(t, h.HandleGenerate(context.Background(), generateTask(t, appID)))
	docRepo.AssertExpectations(t)
}

func TestHandleGenerateMarksFailedOnPipelineError(t *testing.T) {
	appID := uuid.New()
	app := &models.Application{ID: appID, Name: "notes-app", Description: "keeps notes"}

	appRepo := &mockAppRepo{}
	appRepo.On("GetByID", mock.Anything, appID, mock.Anything).Return(nil, app)
	appRepo.On("UpdateStatus", mock.Anything, appID, models.AppStatusGenerating).Return(nil)
	appRepo.On("UpdateStatus", mock.Anything, appID, models.AppStatusFailed).Return(nil)

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("generator unreachable"))

	h := NewGenerateTaskHandler(runner, appRepo, &mockDocRepo{})
	err := h.HandleGenerate(context.Background(), generateTask(t, appID))
	require.Error(t, err)
	appRepo.AssertExpectations(t)
}

func TestHandleGenerateSkipsRetryOnValidationFailure(t *testing.T) {
	appID := uuid.New()
	app := &models.Application{ID: appID, Name: "notes-app", Description: "keeps notes"}

	appRepo := &mockAppRepo{}
	appRepo.On("GetByID", mock.Anything, appID, mock.Anything).Return(nil, app)
	appRepo.On("UpdateStatus", mock.Anything, appID, mock.Anything).Return(nil)

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).
		Return(nil, appErr.New(appErr.CodeInvalid, "stage schema validation failed").WithMeta("stage", "schema"))

	h := NewGenerateTaskHandler(runner, appRepo, &mockDocRepo{})
	err := h.HandleGenerate(context.Background(), generateTask(t, appID))
	require.ErrorIs(t, err, asynq.SkipRetry, "validation gates fail deterministically, retrying is pointless")
}
