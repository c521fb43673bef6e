// Package neon provisions the logical database project for a generated
// application via the vendor's console API.
package neon

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/appforge/engine/pkg/httpclient"
	"github.com/appforge/engine/pkg/logger"
	"go.uber.org/zap"

	appErr "github.com/appforge/engine/pkg/errors"
)

// DefaultDatabase and DefaultRole follow the vendor's provisioning defaults.
const (
	DefaultDatabase = "neondb"
	DefaultRole     = "neondb_owner"
)

// Project is the provisioned database project. Created once per pipeline
// run and referenced by id thereafter.
type Project struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	RegionID        string `json:"region_id"`
	DefaultBranchID string `json:"default_branch_id"`
}

type branch struct {
	ID      string `json:"id"`
	Default bool   `json:"default"`
	Primary bool   `json:"primary"`
}

type endpoint struct {
	Host string `json:"host"`
	Type string `json:"type"`
}

type role struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

// Client drives the database provisioning API through the shared
// rate-limited HTTP client.
type Client struct {
	api       *httpclient.Client
	passwords *credentialCache
}

func New(api *httpclient.Client) *Client {
	return &Client{api: api, passwords: newCredentialCache(5 * time.Minute)}
}

// CreateProject creates the database project. A single POST; failures other
// than the client's own 429 handling are fatal to the run.
func (c *Client) CreateProject(ctx context.Context, name, region string) (*Project, error) {
	body := map[string]any{"project": map[string]any{"name": name, "region_id": region}}
	var resp struct {
		Project Project `json:"project"`
	}
	if err := c.api.Post(ctx, "/projects", nil, body, &resp); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "create database project failed")
	}
	logger.L().Info("database project created",
		zap.String("project_id", resp.Project.ID),
		zap.String("region", resp.Project.RegionID),
	)
	return &resp.Project, nil
}

func (c *Client) getProject(ctx context.Context, projectID string) (*Project, error) {
	var resp struct {
		Project Project `json:"project"`
	}
	if err := c.api.Get(ctx, "/projects/"+projectID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Project, nil
}

func (c *Client) listBranches(ctx context.Context, projectID string) ([]branch, error) {
	var resp struct {
		Branches []branch `json:"branches"`
	}
	if err := c.api.Get(ctx, "/projects/"+projectID+"/branches", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Branches, nil
}

// defaultBranch resolves the project's default branch id. A provisioned
// project must always have one.
func (c *Client) defaultBranch(ctx context.Context, projectID string) (string, error) {
	p, err := c.getProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if p.DefaultBranchID != "" {
		return p.DefaultBranchID, nil
	}
	branches, err := c.listBranches(ctx, projectID)
	if err != nil {
		return "", err
	}
	for _, b := range branches {
		if b.Default || b.Primary {
			return b.ID, nil
		}
	}
	return "", appErr.Newf(appErr.CodeInternal, "project %s has no default branch", projectID)
}

// EnsureDatabase creates the named database on the default branch unless it
// already exists. Idempotent by construction: existence is checked first,
// the vendor offers no upsert.
func (c *Client) EnsureDatabase(ctx context.Context, projectID, dbName string) error {
	branchID, err := c.defaultBranch(ctx, projectID)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "resolve default branch failed")
	}

	base := fmt.Sprintf("/projects/%s/branches/%s/databases", projectID, branchID)
	var resp struct {
		Databases []struct {
			Name      string `json:"name"`
			OwnerName string `json:"owner_name"`
		} `json:"databases"`
	}
	if err := c.api.Get(ctx, base, nil, &resp); err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "list databases failed")
	}
	for _, db := range resp.Databases {
		if db.Name == dbName {
			logger.L().Debug("database already present", zap.String("database", dbName))
			return nil
		}
	}

	owner, err := c.ownerRole(ctx, projectID, branchID)
	if err != nil {
		return err
	}
	body := map[string]any{"database": map[string]any{"name": dbName, "owner_name": owner}}
	if err := c.api.Post(ctx, base, nil, body, nil); err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "create database failed")
	}
	logger.L().Info("database created", zap.String("database", dbName), zap.String("branch", branchID))
	return nil
}

// ownerRole picks the canonical owner role, falling back to the first
// available role.
func (c *Client) ownerRole(ctx context.Context, projectID, branchID string) (string, error) {
	var resp struct {
		Roles []role `json:"roles"`
	}
	if err := c.api.Get(ctx, fmt.Sprintf("/projects/%s/branches/%s/roles", projectID, branchID), nil, &resp); err != nil {
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "list roles failed")
	}
	if len(resp.Roles) == 0 {
		return "", appErr.New(appErr.CodeInternal, "branch has no roles")
	}
	for _, r := range resp.Roles {
		if r.Name == DefaultRole || strings.HasSuffix(r.Name, "_owner") {
			return r.Name, nil
		}
	}
	return resp.Roles[0].Name, nil
}

// ConnectionString returns a connection string for the database. The single
// connection-URI endpoint is tried first; on failure the string is
// reconstructed from branch, endpoint, and role primitives — slower, but it
// works for freshly created resources the convenience endpoint may not see
// yet. Both errors are reported when both paths fail.
func (c *Client) ConnectionString(ctx context.Context, projectID, dbName string) (string, error) {
	uri, primaryErr := c.connectionURI(ctx, projectID, dbName)
	if primaryErr == nil {
		return uri, nil
	}
	logger.L().Warn("connection uri endpoint failed, reconstructing from primitives",
		zap.String("project_id", projectID),
		zap.Error(primaryErr),
	)

	uri, fallbackErr := c.assembleConnectionString(ctx, projectID, dbName)
	if fallbackErr == nil {
		return uri, nil
	}
	return "", appErr.Newf(appErr.CodeUnavailable,
		"connection string unavailable: primary: %v; fallback: %v", primaryErr, fallbackErr)
}

func (c *Client) connectionURI(ctx context.Context, projectID, dbName string) (string, error) {
	q := url.Values{}
	q.Set("database_name", dbName)
	q.Set("role_name", DefaultRole)
	var resp struct {
		URI string `json:"uri"`
	}
	if err := c.api.Get(ctx, "/projects/"+projectID+"/connection_uri", q, &resp); err != nil {
		return "", err
	}
	if resp.URI == "" {
		return "", appErr.New(appErr.CodeUnavailable, "connection uri endpoint returned no uri")
	}
	return resp.URI, nil
}

func (c *Client) assembleConnectionString(ctx context.Context, projectID, dbName string) (string, error) {
	branchID, err := c.defaultBranch(ctx, projectID)
	if err != nil {
		return "", err
	}

	var eresp struct {
		Endpoints []endpoint `json:"endpoints"`
	}
	if err := c.api.Get(ctx, fmt.Sprintf("/projects/%s/branches/%s/endpoints", projectID, branchID), nil, &eresp); err != nil {
		return "", err
	}
	var host string
	for _, e := range eresp.Endpoints {
		if e.Type == "read_write" {
			host = e.Host
			break
		}
	}
	if host == "" {
		return "", appErr.New(appErr.CodeInternal, "branch has no read-write endpoint")
	}

	owner, err := c.ownerRole(ctx, projectID, branchID)
	if err != nil {
		return "", err
	}
	password, err := c.revealPassword(ctx, projectID, branchID, owner)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:5432/%s?sslmode=require",
		owner, url.QueryEscape(password), host, dbName), nil
}

func (c *Client) revealPassword(ctx context.Context, projectID, branchID, roleName string) (string, error) {
	cacheKey := projectID + "/" + branchID + "/" + roleName
	if pw, ok := c.passwords.get(cacheKey); ok {
		return pw, nil
	}
	var resp struct {
		Password string `json:"password"`
	}
	path := fmt.Sprintf("/projects/%s/branches/%s/roles/%s/reveal_password", projectID, branchID, roleName)
	if err := c.api.Get(ctx, path, nil, &resp); err != nil {
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "reveal role password failed")
	}
	if resp.Password == "" {
		return "", appErr.New(appErr.CodeInternal, "reveal password returned empty password")
	}
	c.passwords.put(cacheKey, resp.Password)
	return resp.Password, nil
}

// credentialCache holds revealed role passwords with an expiry, scoped to
// one client instance.
type credentialCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func newCredentialCache(ttl time.Duration) *credentialCache {
	return &credentialCache{ttl: ttl, entries: map[string]cachedSecret{}}
}

func (c *credentialCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *credentialCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedSecret{value: value, expiresAt: time.Now().Add(c.ttl)}
}
