package scaffold

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/appforge/engine/internal/schema"
)

const schemaHeader = `generator client {
  provider = "prisma-client-js"
}

datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

`

// ProjectRenderer is the built-in Scaffolder: it lays the merged schema,
// operation handlers, and scheduled jobs out as a deployable Next.js project
// file map.
type ProjectRenderer struct{}

func NewProjectRenderer() *ProjectRenderer { return &ProjectRenderer{} }

var _ Scaffolder = (*ProjectRenderer)(nil)

func (pr *ProjectRenderer) Render(merged *schema.Merged, ops []Operation, jobs []Job, projectName string) (map[string]string, error) {
	if merged == nil || merged.Text == "" {
		return nil, fmt.Errorf("render: merged schema is empty")
	}

	files := map[string]string{
		"prisma/schema.prisma": schemaHeader + merged.Text,
		"package.json":         packageJSON(projectName),
		"pages/index.js":       indexPage(projectName),
	}

	for _, op := range ops {
		files["pages/api/"+op.Name+".js"] = handlerFile(op)
	}

	if len(jobs) > 0 {
		crons := make([]map[string]string, 0, len(jobs))
		for _, j := range jobs {
			files["pages/api/jobs/"+j.Name+".js"] = jobFile(j)
			crons = append(crons, map[string]string{
				"path":     "/api/jobs/" + j.Name,
				"schedule": j.Schedule,
			})
		}
		b, err := json.MarshalIndent(map[string]any{"crons": crons}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render cron config: %w", err)
		}
		files["vercel.json"] = string(b) + "\n"
	}

	return files, nil
}

func packageJSON(projectName string) string {
	b, _ := json.MarshalIndent(map[string]any{
		"name":    projectName,
		"version": "0.1.0",
		"private": true,
		"scripts": map[string]string{
			"dev":   "next dev",
			"build": "prisma generate && next build",
			"start": "next start",
		},
		"dependencies": map[string]string{
			"@prisma/client": "^5.14.0",
			"next":           "^14.2.3",
			"react":          "^18.3.1",
			"react-dom":      "^18.3.1",
		},
		"devDependencies": map[string]string{
			"prisma": "^5.14.0",
		},
	}, "", "  ")
	return string(b) + "\n"
}

func indexPage(projectName string) string {
	return fmt.Sprintf(`export default function Home() {
  return <main><h1>%s</h1></main>;
}
`, projectName)
}

func handlerFile(op Operation) string {
	var b strings.Builder
	if op.Description != "" {
		fmt.Fprintf(&b, "// %s\n", op.Description)
	}
	fmt.Fprintf(&b, "// %s %s\n", op.Kind, op.Entity)
	b.WriteString(op.Code)
	if !strings.HasSuffix(op.Code, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func jobFile(j Job) string {
	var b strings.Builder
	if j.Description != "" {
		fmt.Fprintf(&b, "// %s\n", j.Description)
	}
	fmt.Fprintf(&b, "// schedule: %s\n", j.Schedule)
	b.WriteString(j.Code)
	if !strings.HasSuffix(j.Code, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
