// Package vercel provisions the hosting project and drives deployments for a
// generated application via the vendor's REST API.
package vercel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/appforge/engine/pkg/httpclient"
	"github.com/appforge/engine/pkg/logger"
	"go.uber.org/zap"

	appErr "github.com/appforge/engine/pkg/errors"
)

// Deployment status values as stored on deployment records. Vendor states
// are folded into these on read.
const (
	StatusPending  = "pending"
	StatusBuilding = "building"
	StatusReady    = "ready"
	StatusError    = "error"
	StatusTimedOut = "timed_out"
)

const (
	maxNameAttempts     = 10
	defaultPollInterval = 10 * time.Second
	defaultPollAttempts = 30
)

// Project is the provisioned hosting project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Deployment is one deployment of a project.
type Deployment struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"readyState"`
}

// EnvVar is one environment variable pushed to the hosting project before
// deployment.
type EnvVar struct {
	Key    string
	Value  string
	Secret bool
}

// Client drives the hosting API through the shared rate-limited HTTP client.
// teamID, when set, scopes every call to that team.
type Client struct {
	api    *httpclient.Client
	teamID string

	pollInterval time.Duration
	pollAttempts int
}

// Option configures a Client.
type Option func(*Client)

// WithTeam scopes all API calls to the given team.
func WithTeam(teamID string) Option {
	return func(c *Client) { c.teamID = teamID }
}

// WithPolling overrides the deployment polling cadence.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.pollAttempts = attempts
	}
}

func New(api *httpclient.Client, opts ...Option) *Client {
	c := &Client{
		api:          api,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) query() url.Values {
	if c.teamID == "" {
		return nil
	}
	q := url.Values{}
	q.Set("teamId", c.teamID)
	return q
}

// CreateProject creates a hosting project named after the application. Name
// collisions are resolved by mutating the name with a time-derived suffix
// and retrying; the vendor's conflict response is the only existence check.
func (c *Client) CreateProject(ctx context.Context, name string) (*Project, error) {
	candidate := SanitizeProjectName(name)
	if candidate == "" {
		return nil, appErr.New(appErr.CodeInvalid, "project name is empty after sanitization")
	}

	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		body := map[string]any{
			"name":      candidate,
			"framework": "nextjs",
		}
		var p Project
		err := c.api.Post(ctx, "/v10/projects", c.query(), body, &p)
		if err == nil {
			if candidate != SanitizeProjectName(name) {
				logger.L().Info("project name collided, created under mutated name",
					zap.String("requested", name),
					zap.String("assigned", candidate),
				)
			}
			return &p, nil
		}
		if !httpclient.IsConflict(err) {
			return nil, appErr.Wrap(err, appErr.CodeUnavailable, "create hosting project failed")
		}
		candidate = nextCandidate(SanitizeProjectName(name))
	}
	return nil, appErr.Newf(appErr.CodeUnavailable,
		"create hosting project failed: %d name collisions for %q", maxNameAttempts, name)
}

// SetEnvironmentVariables pushes all variables concurrently. Every variable
// is attempted even when some fail; failures are joined into one error.
func (c *Client) SetEnvironmentVariables(ctx context.Context, projectID string, vars []EnvVar) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, v := range vars {
		g.Go(func() error {
			kind := "plain"
			if v.Secret {
				kind = "encrypted"
			}
			body := map[string]any{
				"key":    v.Key,
				"value":  v.Value,
				"type":   kind,
				"target": []string{"production", "preview", "development"},
			}
			path := fmt.Sprintf("/v10/projects/%s/env", projectID)
			if err := c.api.Post(ctx, path, c.query(), body, nil); err != nil {
				return appErr.Wrap(err, appErr.CodeUnavailable,
					fmt.Sprintf("set environment variable %s failed", v.Key))
			}
			return nil
		})
	}
	return g.Wait()
}

// Deploy uploads the rendered project files inline (base64) and starts a
// deployment configured for a Next.js build.
func (c *Client) Deploy(ctx context.Context, projectName string, files map[string]string) (*Deployment, error) {
	encoded := make([]map[string]any, 0, len(files))
	for path, content := range files {
		encoded = append(encoded, map[string]any{
			"file":     path,
			"data":     base64.StdEncoding.EncodeToString([]byte(content)),
			"encoding": "base64",
		})
	}

	body := map[string]any{
		"name":   projectName,
		"files":  encoded,
		"target": "production",
		"projectSettings": map[string]any{
			"framework":      "nextjs",
			"buildCommand":   "prisma generate && next build",
			"installCommand": "npm install",
		},
	}
	var d Deployment
	if err := c.api.Post(ctx, "/v13/deployments", c.query(), body, &d); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "start deployment failed")
	}
	logger.L().Info("deployment started",
		zap.String("deployment_id", d.ID),
		zap.String("url", d.URL),
		zap.Int("files", len(files)),
	)
	d.Status = mapVendorStatus(d.Status)
	return &d, nil
}

// GetDeployment fetches the current state of a deployment.
func (c *Client) GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error) {
	var d Deployment
	if err := c.api.Get(ctx, "/v13/deployments/"+deploymentID, c.query(), &d); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "get deployment failed")
	}
	d.Status = mapVendorStatus(d.Status)
	return &d, nil
}

// PollUntilTerminal polls the deployment until it reaches ready or error, or
// the polling budget is exhausted. Budget exhaustion is not an error: the
// deployment is reported as timed_out and may still complete on the vendor
// side afterwards.
func (c *Client) PollUntilTerminal(ctx context.Context, deploymentID string) (*Deployment, error) {
	var last *Deployment
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pollInterval):
			}
		}
		d, err := c.GetDeployment(ctx, deploymentID)
		if err != nil {
			return nil, err
		}
		last = d
		switch d.Status {
		case StatusReady, StatusError:
			return d, nil
		}
		logger.L().Debug("deployment still in progress",
			zap.String("deployment_id", deploymentID),
			zap.String("status", d.Status),
			zap.Int("attempt", attempt+1),
		)
	}

	logger.L().Warn("deployment polling budget exhausted",
		zap.String("deployment_id", deploymentID),
		zap.Int("attempts", c.pollAttempts),
	)
	last.Status = StatusTimedOut
	return last, nil
}

// mapVendorStatus folds the vendor's ready states into record statuses.
func mapVendorStatus(s string) string {
	switch s {
	case "READY":
		return StatusReady
	case "ERROR", "CANCELED":
		return StatusError
	case "BUILDING", "INITIALIZING":
		return StatusBuilding
	case "QUEUED":
		return StatusPending
	default:
		return StatusPending
	}
}
