package vercel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appforge/engine/pkg/httpclient"
	"github.com/appforge/engine/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func testClient(srv *httptest.Server, opts ...Option) *Client {
	return New(httpclient.New(srv.URL, "tok",
		httpclient.WithMinInterval(time.Millisecond),
		httpclient.WithRetry(1, time.Millisecond)), opts...)
}

func TestSanitizeProjectName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"My Cool App!!!", "my-cool-app"},
		{"todo-app", "todo-app"},
		{"  Spaced   Out  ", "spaced-out"},
		{"UPPER.case_name", "upper.case_name"},
		{"--leading--and--trailing--", "leading-and-trailing"},
		{"émoji 🎉 app", "moji-app"},
		{strings.Repeat("a", 120), strings.Repeat("a", 100)},
	}
	for _, tc := range cases {
		got := SanitizeProjectName(tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
		require.Equal(t, got, SanitizeProjectName(got), "sanitization must be idempotent for %q", tc.in)
	}
}

func TestNextCandidateStaysWithinLimit(t *testing.T) {
	c := nextCandidate(strings.Repeat("a", 100))
	require.LessOrEqual(t, len(c), maxProjectNameLen)
	require.NotEqual(t, strings.Repeat("a", 100), c)
}

func TestCreateProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v10/projects", r.URL.Path)
		require.Equal(t, "team-1", r.URL.Query().Get("teamId"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "my-cool-app", body["name"])

		json.NewEncoder(w).Encode(Project{ID: "prj-1", Name: "my-cool-app"})
	}))
	defer srv.Close()

	p, err := testClient(srv, WithTeam("team-1")).CreateProject(context.Background(), "My Cool App!!!")
	require.NoError(t, err)
	require.Equal(t, "prj-1", p.ID)
}

func TestCreateProjectRetriesOnCollision(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		name := body["name"].(string)

		if n <= 3 {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":{"code":"conflict","message":"project already exists"}}`))
			return
		}
		// the fourth candidate carries a mutation suffix
		require.True(t, strings.HasPrefix(name, "todo-app-"), "got %q", name)
		require.Greater(t, len(name), len("todo-app"))
		json.NewEncoder(w).Encode(Project{ID: "prj-4", Name: name})
	}))
	defer srv.Close()

	p, err := testClient(srv).CreateProject(context.Background(), "todo-app")
	require.NoError(t, err)
	require.Equal(t, "prj-4", p.ID)
	require.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestCreateProjectGivesUpAfterMaxCollisions(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"message":"already exists"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).CreateProject(context.Background(), "todo-app")
	require.Error(t, err)
	require.Contains(t, err.Error(), "name collisions")
	require.EqualValues(t, maxNameAttempts, atomic.LoadInt32(&calls))
}

func TestSetEnvironmentVariables(t *testing.T) {
	var seen int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v10/projects/prj-1/env", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["key"] == "DATABASE_URL" {
			require.Equal(t, "encrypted", body["type"])
		}
		atomic.AddInt32(&seen, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := testClient(srv).SetEnvironmentVariables(context.Background(), "prj-1", []EnvVar{
		{Key: "DATABASE_URL", Value: "postgresql://...", Secret: true},
		{Key: "NODE_ENV", Value: "production"},
		{Key: "APP_NAME", Value: "todo-app"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&seen))
}

func TestSetEnvironmentVariablesReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["key"] == "BAD" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"invalid key"}}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := testClient(srv).SetEnvironmentVariables(context.Background(), "prj-1", []EnvVar{
		{Key: "GOOD", Value: "v"},
		{Key: "BAD", Value: "v"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "BAD")
}

func TestDeployEncodesFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v13/deployments", r.URL.Path)
		var body struct {
			Name  string `json:"name"`
			Files []struct {
				File     string `json:"file"`
				Data     string `json:"data"`
				Encoding string `json:"encoding"`
			} `json:"files"`
			ProjectSettings map[string]any `json:"projectSettings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "todo-app", body.Name)
		require.Equal(t, "nextjs", body.ProjectSettings["framework"])
		require.Len(t, body.Files, 1)
		require.Equal(t, "base64", body.Files[0].Encoding)
		decoded, err := base64.StdEncoding.DecodeString(body.Files[0].Data)
		require.NoError(t, err)
		require.Equal(t, "console.log('hi')", string(decoded))

		json.NewEncoder(w).Encode(map[string]string{
			"id": "dpl-1", "url": "todo-app.example.app", "readyState": "QUEUED",
		})
	}))
	defer srv.Close()

	d, err := testClient(srv).Deploy(context.Background(), "todo-app", map[string]string{
		"pages/index.js": "console.log('hi')",
	})
	require.NoError(t, err)
	require.Equal(t, "dpl-1", d.ID)
	require.Equal(t, StatusPending, d.Status)
}

func TestPollUntilTerminalReady(t *testing.T) {
	states := []string{"QUEUED", "BUILDING", "READY"}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]string{
			"id": "dpl-1", "url": "todo-app.example.app", "readyState": states[n-1],
		})
	}))
	defer srv.Close()

	c := testClient(srv, WithPolling(time.Millisecond, 30))
	d, err := c.PollUntilTerminal(context.Background(), "dpl-1")
	require.NoError(t, err)
	require.Equal(t, StatusReady, d.Status)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestPollUntilTerminalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "dpl-1", "readyState": "ERROR"})
	}))
	defer srv.Close()

	c := testClient(srv, WithPolling(time.Millisecond, 30))
	d, err := c.PollUntilTerminal(context.Background(), "dpl-1")
	require.NoError(t, err)
	require.Equal(t, StatusError, d.Status)
}

func TestPollUntilTerminalTimesOutWithoutError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]string{"id": "dpl-1", "readyState": "BUILDING"})
	}))
	defer srv.Close()

	c := testClient(srv, WithPolling(time.Millisecond, 5))
	d, err := c.PollUntilTerminal(context.Background(), "dpl-1")
	require.NoError(t, err, "budget exhaustion is a status, not an error")
	require.Equal(t, StatusTimedOut, d.Status)
	require.EqualValues(t, 5, atomic.LoadInt32(&calls))
}
