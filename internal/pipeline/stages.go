package pipeline

import (
	"github.com/appforge/engine/internal/schema"
)

// Stage names, in execution order. Error messages and logs refer to these.
const (
	StageAnalysis   = "analysis"
	StageSchema     = "schema"
	StageOperations = "operations"
	StageSchedule   = "schedule"
	StageDeploy     = "deploy"
)

// EntitySketch is one entity the analysis stage identified in the
// description. It seeds the schema stage's prompt context.
type EntitySketch struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// AnalysisResult is the first stage's output: what the application is and
// which entities it needs.
type AnalysisResult struct {
	AppName    string         `json:"app_name" validate:"required"`
	Summary    string         `json:"summary" validate:"required"`
	Entities   []EntitySketch `json:"entities" validate:"required,min=1,dive"`
	Features   []string       `json:"features"`
	Complexity int            `json:"complexity" validate:"gte=0,lte=10"`
}

// SchemaResult wraps the generated business schema before merging.
type SchemaResult struct {
	Schema  schema.Schema `json:"schema" validate:"required"`
	Quality int           `json:"quality" validate:"gte=0,lte=10"`
}

// OperationSketch is one API operation before its code is generated.
type OperationSketch struct {
	Name        string `json:"name" validate:"required"`
	Entity      string `json:"entity" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=create read update delete list custom"`
	Description string `json:"description"`
}

// OperationsResult is the third stage's output.
type OperationsResult struct {
	Operations []OperationSketch `json:"operations" validate:"required,min=1,dive"`
	Quality    int               `json:"quality" validate:"gte=0,lte=10"`
}

// OperationCode is the per-operation code generation output.
type OperationCode struct {
	Code string `json:"code" validate:"required"`
}

// JobSketch is one scheduled job. An application may have none.
type JobSketch struct {
	Name        string `json:"name" validate:"required"`
	Schedule    string `json:"schedule" validate:"required"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// ScheduleResult is the fourth stage's output.
type ScheduleResult struct {
	Jobs    []JobSketch `json:"jobs" validate:"dive"`
	Quality int         `json:"quality" validate:"gte=0,lte=10"`
}

// StageMetrics is the per-stage contribution to the run summary.
type StageMetrics struct {
	Stage      string `json:"stage"`
	Quality    int    `json:"quality"`
	Complexity int    `json:"complexity"`
}

// Summary aggregates metrics across all completed stages.
type Summary struct {
	Stages          []StageMetrics `json:"stages"`
	TotalQuality    int            `json:"total_quality"`
	TotalComplexity int            `json:"total_complexity"`
	DeploySkipped   bool           `json:"deploy_skipped,omitempty"`
}

func (s *Summary) add(m StageMetrics) {
	s.Stages = append(s.Stages, m)
	s.TotalQuality += m.Quality
	s.TotalComplexity += m.Complexity
}
