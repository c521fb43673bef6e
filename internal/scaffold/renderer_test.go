package scaffold

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appforge/engine/internal/schema"
)

func mergedFixture(t *testing.T) *schema.Merged {
	t.Helper()
	merged, err := schema.Merge(&schema.Schema{Models: []schema.Model{{
		Name: "Task",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeString, IsID: true, IsRequired: true},
			{Name: "title", Type: schema.TypeString, IsRequired: true},
		},
	}}})
	require.NoError(t, err)
	return merged
}

func TestRenderProjectFiles(t *testing.T) {
	ops := []Operation{{Name: "createTask", Entity: "Task", Kind: "create", Code: "export default async function handler(req, res) {}"}}
	jobs := []Job{{Name: "digest", Schedule: "0 9 * * *", Code: "export default async function handler(req, res) {}"}}

	files, err := NewProjectRenderer().Render(mergedFixture(t), ops, jobs, "todo-app")
	require.NoError(t, err)

	require.Contains(t, files, "prisma/schema.prisma")
	require.Contains(t, files["prisma/schema.prisma"], `env("DATABASE_URL")`)
	require.Contains(t, files["prisma/schema.prisma"], "model Task")
	require.Contains(t, files["prisma/schema.prisma"], schema.SystemDelimiter)

	require.Contains(t, files, "pages/api/createTask.js")
	require.True(t, strings.HasSuffix(files["pages/api/createTask.js"], "\n"))

	require.Contains(t, files, "vercel.json")
	var cfg struct {
		Crons []struct {
			Path     string `json:"path"`
			Schedule string `json:"schedule"`
		} `json:"crons"`
	}
	require.NoError(t, json.Unmarshal([]byte(files["vercel.json"]), &cfg))
	require.Len(t, cfg.Crons, 1)
	require.Equal(t, "/api/jobs/digest", cfg.Crons[0].Path)

	var pkg map[string]any
	require.NoError(t, json.Unmarshal([]byte(files["package.json"]), &pkg))
	require.Equal(t, "todo-app", pkg["name"])
}

func TestRenderRequiresSchema(t *testing.T) {
	_, err := NewProjectRenderer().Render(nil, nil, nil, "x")
	require.Error(t, err)
}

func TestRenderOmitsCronConfigWithoutJobs(t *testing.T) {
	files, err := NewProjectRenderer().Render(mergedFixture(t), nil, nil, "todo-app")
	require.NoError(t, err)
	require.NotContains(t, files, "vercel.json")
}
