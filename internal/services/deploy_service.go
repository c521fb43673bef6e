package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/appforge/engine/internal/models"
	"github.com/appforge/engine/internal/provision/neon"
	"github.com/appforge/engine/internal/provision/vercel"
	"github.com/appforge/engine/internal/repository"
	"github.com/appforge/engine/internal/scaffold"
	"github.com/appforge/engine/internal/schema"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/appforge/engine/pkg/logger"
	"github.com/appforge/engine/pkg/utils"
)

// DatabaseProvisioner is the database vendor surface the deploy flow needs.
type DatabaseProvisioner interface {
	CreateProject(ctx context.Context, name, region string) (*neon.Project, error)
	EnsureDatabase(ctx context.Context, projectID, dbName string) error
	ConnectionString(ctx context.Context, projectID, dbName string) (string, error)
}

// HostingProvisioner is the hosting vendor surface the deploy flow needs.
type HostingProvisioner interface {
	CreateProject(ctx context.Context, name string) (*vercel.Project, error)
	SetEnvironmentVariables(ctx context.Context, projectID string, vars []vercel.EnvVar) error
	Deploy(ctx context.Context, projectName string, files map[string]string) (*vercel.Deployment, error)
	PollUntilTerminal(ctx context.Context, deploymentID string) (*vercel.Deployment, error)
}

// DeployInput carries everything the deploy flow needs beyond the
// application record itself.
type DeployInput struct {
	Merged     *schema.Merged
	Operations []scaffold.Operation
	Jobs       []scaffold.Job
	Region     string
}

type DeployService interface {
	// DeployApplication provisions the database, creates the hosting project,
	// renders and uploads the files, and polls the deployment. Returns
	// CodeConflict when another deployment is already in flight for the
	// application.
	DeployApplication(ctx context.Context, app *models.Application, input *DeployInput) (*models.DeploymentRecord, error)
}

type deployService struct {
	guard      *DeployGuard
	db         DatabaseProvisioner
	hosting    HostingProvisioner
	scaffolder scaffold.Scaffolder
	deployRepo repository.DeploymentRepository
}

func NewDeployService(guard *DeployGuard, db DatabaseProvisioner, hosting HostingProvisioner, scaffolder scaffold.Scaffolder, deployRepo repository.DeploymentRepository) DeployService {
	return &deployService{guard: guard, db: db, hosting: hosting, scaffolder: scaffolder, deployRepo: deployRepo}
}

var _ DeployService = (*deployService)(nil)

func (s *deployService) DeployApplication(ctx context.Context, app *models.Application, input *DeployInput) (*models.DeploymentRecord, error) {
	if !s.guard.TryAcquire(app.ID) {
		return nil, appErr.New(appErr.CodeConflict, "deployment already in flight for application").
			WithMeta("application_id", app.ID.String())
	}
	defer s.guard.Release(app.ID)

	log := logger.L().With(zap.String("application_id", app.ID.String()), zap.String("app_name", app.Name))
	log.Info("deployment starting")

	dbProject, err := s.db.CreateProject(ctx, app.Name, input.Region)
	if err != nil {
		return nil, err
	}
	if err := s.db.EnsureDatabase(ctx, dbProject.ID, neon.DefaultDatabase); err != nil {
		return nil, err
	}
	connString, err := s.db.ConnectionString(ctx, dbProject.ID, neon.DefaultDatabase)
	if err != nil {
		return nil, err
	}

	hostProject, err := s.hosting.CreateProject(ctx, app.Name)
	if err != nil {
		return nil, err
	}

	files, err := s.scaffolder.Render(input.Merged, input.Operations, input.Jobs, hostProject.Name)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "render project files failed")
	}

	envVars := []vercel.EnvVar{
		{Key: "DATABASE_URL", Value: connString, Secret: true},
		{Key: "APP_NAME", Value: hostProject.Name},
		{Key: "NODE_ENV", Value: "production"},
	}
	if err := s.hosting.SetEnvironmentVariables(ctx, hostProject.ID, envVars); err != nil {
		return nil, err
	}

	deployment, err := s.hosting.Deploy(ctx, hostProject.Name, files)
	if err != nil {
		return nil, err
	}
	final, err := s.hosting.PollUntilTerminal(ctx, deployment.ID)
	if err != nil {
		return nil, err
	}

	record := &models.DeploymentRecord{
		ApplicationID:  app.ID,
		VendorProject:  hostProject.ID,
		VendorDeployID: final.ID,
		URL:            final.URL,
		Status:         final.Status,
		EnvVars:        envVarKeys(envVars),
		Summary: mustJSON(map[string]any{
			"db_project_id": dbProject.ID,
			"files":         len(files),
			"bundle_digest": utils.DigestFileMap(files),
			"operations":    len(input.Operations),
			"jobs":          len(input.Jobs),
		}),
	}
	if err := s.deployRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	log.Info("deployment finished",
		zap.String("deployment_id", record.ID.String()),
		zap.String("status", record.Status),
		zap.String("url", record.URL),
	)
	return record, nil
}

// envVarKeys stores variable names only; values may hold credentials.
func envVarKeys(vars []vercel.EnvVar) datatypes.JSON {
	keys := make([]string, 0, len(vars))
	for _, v := range vars {
		keys = append(keys, v.Key)
	}
	return mustJSON(keys)
}

func mustJSON(v any) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

// IsDeployInFlight reports whether err is the guard's conflict.
func IsDeployInFlight(err error) bool {
	return appErr.IsCode(err, appErr.CodeConflict)
}
