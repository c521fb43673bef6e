package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/appforge/engine/internal/generator"
	"github.com/appforge/engine/internal/models"
	"github.com/appforge/engine/internal/services"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/appforge/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockDeployer struct{ mock.Mock }

func (m *mockDeployer) DeployApplication(ctx context.Context, app *models.Application, input *services.DeployInput) (*models.DeploymentRecord, error) {
	args := m.Called(ctx, app, input)
	if r := args.Get(0); r != nil {
		return r.(*models.DeploymentRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockScheduler struct{ mock.Mock }

func (m *mockScheduler) ScheduleAutoDeploy(ctx context.Context, appID uuid.UUID, appName string) error {
	return m.Called(ctx, appID, appName).Error(0)
}

func testApp() *models.Application {
	return &models.Application{ID: uuid.New(), Name: "todo-app", Description: "a todo list app with projects and tasks"}
}

// stageGenerator answers each stage with canned JSON.
func stageGenerator(t *testing.T) generator.Generator {
	t.Helper()
	return generator.Func(func(ctx context.Context, req generator.Request) (json.RawMessage, error) {
		switch req.Stage {
		case StageAnalysis:
			return json.Marshal(AnalysisResult{
				AppName: "todo-app",
				Summary: "tracks tasks in projects",
				Entities: []EntitySketch{
					{Name: "Project"}, {Name: "Task"}, {Name: "Label"},
				},
				Complexity: 3,
			})
		case StageSchema:
			return json.RawMessage(`{
				"quality": 7,
				"schema": {
					"models": [
						{"name": "Project", "fields": [
							{"name": "id", "type": "String", "is_id": true, "is_required": true},
							{"name": "title", "type": "String", "is_required": true}
						]},
						{"name": "Task", "fields": [
							{"name": "id", "type": "String", "is_id": true, "is_required": true},
							{"name": "projectId", "type": "String"}
						]},
						{"name": "Label", "fields": [
							{"name": "id", "type": "String", "is_id": true, "is_required": true}
						]}
					]
				}
			}`), nil
		case StageOperations:
			return json.Marshal(OperationsResult{
				Quality: 6,
				Operations: []OperationSketch{
					{Name: "createTask", Entity: "Task", Kind: "create"},
					{Name: "listProjects", Entity: "Project", Kind: "list"},
				},
			})
		case StageOperations + ":code":
			return json.Marshal(OperationCode{Code: "export async function handler() {}"})
		case StageSchedule:
			return json.Marshal(ScheduleResult{
				Quality: 5,
				Jobs:    []JobSketch{{Name: "dailyDigest", Schedule: "0 9 * * *", Code: "digest()"}},
			})
		default:
			t.Fatalf("unexpected stage %q", req.Stage)
			return nil, nil
		}
	})
}

func TestRunAllStages(t *testing.T) {
	app := testApp()
	deployer := &mockDeployer{}
	record := &models.DeploymentRecord{ID: uuid.New(), ApplicationID: app.ID, Status: "ready"}
	deployer.On("DeployApplication", mock.Anything, app, mock.MatchedBy(func(in *services.DeployInput) bool {
		return len(in.Operations) == 2 && len(in.Jobs) == 1 && in.Merged != nil
	})).Return(record, nil)

	scheduler := &mockScheduler{}
	scheduler.On("ScheduleAutoDeploy", mock.Anything, app.ID, "todo-app").Return(nil)

	p := New(stageGenerator(t), deployer, "aws-us-east-1", WithScheduler(scheduler))
	res, err := p.Run(context.Background(), app)
	require.NoError(t, err)

	// 3 business models + 5 system models, 1 system enum
	require.Len(t, res.Merged.Schema.Models, 8)
	require.Len(t, res.Merged.Schema.Enums, 1)
	require.Len(t, res.Operations, 2)
	require.NotEmpty(t, res.Operations[0].Code, "per-operation code generation ran")
	require.Equal(t, record, res.Deployment)
	require.Len(t, res.Summary.Stages, 5)
	require.Equal(t, 18, res.Summary.TotalQuality)

	deployer.AssertExpectations(t)
	scheduler.AssertExpectations(t)
}

func TestRunFailsNamingStage(t *testing.T) {
	gen := generator.Func(func(ctx context.Context, req generator.Request) (json.RawMessage, error) {
		if req.Stage == StageAnalysis {
			return json.Marshal(AnalysisResult{AppName: "x", Summary: "y"}) // no entities
		}
		return nil, errors.New("unreachable")
	})

	p := New(gen, &mockDeployer{}, "aws-us-east-1")
	_, err := p.Run(context.Background(), testApp())
	require.Error(t, err)
	require.Contains(t, err.Error(), StageAnalysis)
	require.Equal(t, StageAnalysis, appErr.Stage(err))
}

func TestRunRejectsOperationOnUnknownEntity(t *testing.T) {
	base := stageGenerator(t)
	gen := generator.Func(func(ctx context.Context, req generator.Request) (json.RawMessage, error) {
		if req.Stage == StageOperations {
			return json.Marshal(OperationsResult{Operations: []OperationSketch{
				{Name: "createInvoice", Entity: "Invoice", Kind: "create"},
			}})
		}
		return base.Generate(ctx, req)
	})

	p := New(gen, &mockDeployer{}, "aws-us-east-1")
	_, err := p.Run(context.Background(), testApp())
	require.Error(t, err)
	require.Equal(t, StageOperations, appErr.Stage(err))
	require.Contains(t, err.Error(), "Invoice")
}

func TestRunOperationCodeFailureFailsStage(t *testing.T) {
	base := stageGenerator(t)
	gen := generator.Func(func(ctx context.Context, req generator.Request) (json.RawMessage, error) {
		if req.Stage == StageOperations+":code" {
			return nil, errors.New("model overloaded")
		}
		return base.Generate(ctx, req)
	})

	p := New(gen, &mockDeployer{}, "aws-us-east-1")
	_, err := p.Run(context.Background(), testApp())
	require.Error(t, err)
	require.Equal(t, StageOperations, appErr.Stage(err))
}

func TestRunSkipsDeployWhenInFlight(t *testing.T) {
	deployer := &mockDeployer{}
	deployer.On("DeployApplication", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, appErr.New(appErr.CodeConflict, "deployment already in flight for application"))

	p := New(stageGenerator(t), deployer, "aws-us-east-1")
	res, err := p.Run(context.Background(), testApp())
	require.NoError(t, err, "losing the in-flight race is a skip, not a failure")
	require.Nil(t, res.Deployment)
	require.True(t, res.Summary.DeploySkipped)
	require.Len(t, res.Summary.Stages, 4)
}

func TestRunSchedulerFailureDoesNotFailRun(t *testing.T) {
	app := testApp()
	deployer := &mockDeployer{}
	deployer.On("DeployApplication", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.DeploymentRecord{ID: uuid.New(), ApplicationID: app.ID, Status: "ready"}, nil)

	scheduler := &mockScheduler{}
	scheduler.On("ScheduleAutoDeploy", mock.Anything, app.ID, "todo-app").Return(errors.New("redis down"))

	p := New(stageGenerator(t), deployer, "aws-us-east-1", WithScheduler(scheduler))
	res, err := p.Run(context.Background(), app)
	require.NoError(t, err)
	require.NotNil(t, res.Deployment)
	scheduler.AssertExpectations(t)
}
