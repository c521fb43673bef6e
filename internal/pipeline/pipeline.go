// Package pipeline runs the five-stage generation flow that turns an
// application description into a deployed web app. Stages execute strictly in
// order; each consumes the immutable outputs of the stages before it and must
// pass its validation gate before the next stage starts.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appforge/engine/internal/generator"
	"github.com/appforge/engine/internal/models"
	"github.com/appforge/engine/internal/scaffold"
	"github.com/appforge/engine/internal/schema"
	"github.com/appforge/engine/internal/services"
	appErr "github.com/appforge/engine/pkg/errors"
	"github.com/appforge/engine/pkg/logger"
)

// AutoDeployScheduler schedules the debounced background deployment after the
// schema stage. Scheduling failures never fail the pipeline.
type AutoDeployScheduler interface {
	ScheduleAutoDeploy(ctx context.Context, appID uuid.UUID, appName string) error
}

// Result is the terminal state of a successful run. Deployment is nil when
// the deploy stage lost the in-flight race and skipped.
type Result struct {
	Analysis   *AnalysisResult
	Merged     *schema.Merged
	Operations []scaffold.Operation
	Jobs       []scaffold.Job
	Deployment *models.DeploymentRecord
	Summary    Summary
}

type Pipeline struct {
	gen       generator.Generator
	deployer  services.DeployService
	scheduler AutoDeployScheduler
	region    string
	validate  *validator.Validate
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithScheduler enables the post-schema auto-deployment trigger.
func WithScheduler(s AutoDeployScheduler) Option {
	return func(p *Pipeline) { p.scheduler = s }
}

func New(gen generator.Generator, deployer services.DeployService, region string, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:      gen,
		deployer: deployer,
		region:   region,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes all five stages for the application. The returned error, if
// any, names the failing stage; no stage is retried.
func (p *Pipeline) Run(ctx context.Context, app *models.Application) (*Result, error) {
	log := logger.L().With(zap.String("application_id", app.ID.String()))
	res := &Result{}

	analysis, err := p.runAnalysis(ctx, app)
	if err != nil {
		return nil, err
	}
	res.Analysis = analysis
	res.Summary.add(StageMetrics{Stage: StageAnalysis, Complexity: analysis.Complexity})
	log.Info("stage complete", zap.String("stage", StageAnalysis), zap.Int("entities", len(analysis.Entities)))

	merged, quality, err := p.runSchema(ctx, app, analysis)
	if err != nil {
		return nil, err
	}
	res.Merged = merged
	res.Summary.add(StageMetrics{Stage: StageSchema, Quality: quality})
	log.Info("stage complete", zap.String("stage", StageSchema), zap.Int("models", len(merged.Schema.Models)))

	if p.scheduler != nil {
		if err := p.scheduler.ScheduleAutoDeploy(ctx, app.ID, analysis.AppName); err != nil {
			log.Warn("schedule auto-deploy failed", zap.Error(err))
		}
	}

	ops, quality, err := p.runOperations(ctx, analysis, merged)
	if err != nil {
		return nil, err
	}
	res.Operations = ops
	res.Summary.add(StageMetrics{Stage: StageOperations, Quality: quality})
	log.Info("stage complete", zap.String("stage", StageOperations), zap.Int("operations", len(ops)))

	jobs, quality, err := p.runSchedule(ctx, analysis, ops)
	if err != nil {
		return nil, err
	}
	res.Jobs = jobs
	res.Summary.add(StageMetrics{Stage: StageSchedule, Quality: quality})
	log.Info("stage complete", zap.String("stage", StageSchedule), zap.Int("jobs", len(jobs)))

	record, err := p.deployer.DeployApplication(ctx, app, &services.DeployInput{
		Merged:     merged,
		Operations: ops,
		Jobs:       jobs,
		Region:     p.region,
	})
	if err != nil {
		if services.IsDeployInFlight(err) {
			log.Info("deploy stage skipped, deployment already in flight")
			res.Summary.DeploySkipped = true
			return res, nil
		}
		return nil, stageFailure(StageDeploy, err)
	}
	res.Deployment = record
	res.Summary.add(StageMetrics{Stage: StageDeploy})
	log.Info("stage complete", zap.String("stage", StageDeploy), zap.String("status", record.Status))
	return res, nil
}

func (p *Pipeline) runAnalysis(ctx context.Context, app *models.Application) (*AnalysisResult, error) {
	raw, err := p.gen.Generate(ctx, generator.Request{
		Stage:  StageAnalysis,
		Prompt: app.Description,
	})
	if err != nil {
		return nil, stageFailure(StageAnalysis, err)
	}
	var out AnalysisResult
	if err := p.decode(raw, &out); err != nil {
		return nil, gateFailure(StageAnalysis, err)
	}

	seen := map[string]bool{}
	for _, e := range out.Entities {
		if seen[e.Name] {
			return nil, gateFailure(StageAnalysis, fmt.Errorf("duplicate entity %q", e.Name))
		}
		seen[e.Name] = true
	}
	return &out, nil
}

func (p *Pipeline) runSchema(ctx context.Context, app *models.Application, analysis *AnalysisResult) (*schema.Merged, int, error) {
	raw, err := p.gen.Generate(ctx, generator.Request{
		Stage:  StageSchema,
		Prompt: analysis.Summary,
		Context: map[string]any{
			"app_name": analysis.AppName,
			"entities": analysis.Entities,
			"features": analysis.Features,
		},
	})
	if err != nil {
		return nil, 0, stageFailure(StageSchema, err)
	}
	var out SchemaResult
	if err := p.decode(raw, &out); err != nil {
		return nil, 0, gateFailure(StageSchema, err)
	}
	if len(out.Schema.Models) == 0 {
		return nil, 0, gateFailure(StageSchema, fmt.Errorf("schema has no models"))
	}

	merged, err := schema.Merge(&out.Schema)
	if err != nil {
		return nil, 0, gateFailure(StageSchema, err)
	}
	if actions := schema.SanitizeMerged(merged); len(actions) > 0 {
		logger.L().Info("schema sanitized",
			zap.String("application_id", app.ID.String()),
			zap.Int("repairs", len(actions)),
		)
	}
	return merged, out.Quality, nil
}

func (p *Pipeline) runOperations(ctx context.Context, analysis *AnalysisResult, merged *schema.Merged) ([]scaffold.Operation, int, error) {
	raw, err := p.gen.Generate(ctx, generator.Request{
		Stage:  StageOperations,
		Prompt: analysis.Summary,
		Context: map[string]any{
			"schema": merged.Text,
		},
	})
	if err != nil {
		return nil, 0, stageFailure(StageOperations, err)
	}
	var out OperationsResult
	if err := p.decode(raw, &out); err != nil {
		return nil, 0, gateFailure(StageOperations, err)
	}
	for _, op := range out.Operations {
		if merged.Schema.Model(op.Entity) == nil {
			return nil, 0, gateFailure(StageOperations, fmt.Errorf("operation %q targets unknown entity %q", op.Name, op.Entity))
		}
	}

	// generate each operation's code concurrently; one failure fails the
	// stage once all in-flight siblings are joined
	ops := make([]scaffold.Operation, len(out.Operations))
	g, gctx := errgroup.WithContext(ctx)
	for i, sk := range out.Operations {
		g.Go(func() error {
			raw, err := p.gen.Generate(gctx, generator.Request{
				Stage:  StageOperations + ":code",
				Prompt: sk.Description,
				Context: map[string]any{
					"operation": sk,
					"schema":    merged.Text,
				},
			})
			if err != nil {
				return fmt.Errorf("operation %q: %w", sk.Name, err)
			}
			var code OperationCode
			if err := p.decode(raw, &code); err != nil {
				return fmt.Errorf("operation %q: %w", sk.Name, err)
			}
			ops[i] = scaffold.Operation{
				Name:        sk.Name,
				Entity:      sk.Entity,
				Kind:        sk.Kind,
				Description: sk.Description,
				Code:        code.Code,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, stageFailure(StageOperations, err)
	}
	return ops, out.Quality, nil
}

func (p *Pipeline) runSchedule(ctx context.Context, analysis *AnalysisResult, ops []scaffold.Operation) ([]scaffold.Job, int, error) {
	raw, err := p.gen.Generate(ctx, generator.Request{
		Stage:  StageSchedule,
		Prompt: analysis.Summary,
		Context: map[string]any{
			"operations": ops,
		},
	})
	if err != nil {
		return nil, 0, stageFailure(StageSchedule, err)
	}
	var out ScheduleResult
	if err := p.decode(raw, &out); err != nil {
		return nil, 0, gateFailure(StageSchedule, err)
	}

	jobs := make([]scaffold.Job, 0, len(out.Jobs))
	for _, j := range out.Jobs {
		jobs = append(jobs, scaffold.Job{
			Name:        j.Name,
			Schedule:    j.Schedule,
			Description: j.Description,
			Code:        j.Code,
		})
	}
	return jobs, out.Quality, nil
}

// decode unmarshals a stage's raw output and runs its declared validation.
func (p *Pipeline) decode(raw json.RawMessage, dest any) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("malformed stage output: %w", err)
	}
	if err := p.validate.Struct(dest); err != nil {
		return err
	}
	return nil
}

func stageFailure(stage string, err error) error {
	return appErr.Wrap(err, appErr.CodeInternal, "stage "+stage+" failed").WithMeta("stage", stage)
}

func gateFailure(stage string, err error) error {
	return appErr.Wrap(err, appErr.CodeInvalid, "stage "+stage+" validation failed").WithMeta("stage", stage)
}
