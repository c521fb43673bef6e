// Package queue wires pipeline events onto the asynq worker.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/appforge/engine/pkg/logger"
)

// TaskTypeAutoDeploy is the debounced background deployment task scheduled
// after the schema stage.
const TaskTypeAutoDeploy = "deployment:autodeploy"

// AutoDeployPayload is the task payload for TaskTypeAutoDeploy.
type AutoDeployPayload struct {
	ApplicationID string `json:"application_id"`
	DocumentID    string `json:"document_id,omitempty"`
	AppName       string `json:"app_name"`
}

// Scheduler enqueues the auto-deployment task with a fixed debounce delay.
// The task is best-effort end to end, so it gets no retries.
type Scheduler struct {
	client *asynq.Client
	delay  time.Duration
}

func NewScheduler(client *asynq.Client, delay time.Duration) *Scheduler {
	return &Scheduler{client: client, delay: delay}
}

func (s *Scheduler) ScheduleAutoDeploy(ctx context.Context, appID uuid.UUID, appName string) error {
	pb, err := json.Marshal(AutoDeployPayload{ApplicationID: appID.String(), AppName: appName})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeAutoDeploy, pb)
	info, err := s.client.EnqueueContext(ctx, task, asynq.ProcessIn(s.delay), asynq.MaxRetry(0))
	if err != nil {
		return err
	}
	logger.L().Info("auto-deploy scheduled",
		zap.String("application_id", appID.String()),
		zap.String("task_id", info.ID),
		zap.Duration("delay", s.delay),
	)
	return nil
}
