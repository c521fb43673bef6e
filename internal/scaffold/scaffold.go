// Package scaffold defines the boundary to the project template renderer.
package scaffold

import (
	"github.com/appforge/engine/internal/schema"
)

// Job is a scheduled task rendered into the generated project.
type Job struct {
	Name        string `json:"name"`
	Schedule    string `json:"schedule"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// Operation is one generated API operation.
type Operation struct {
	Name        string `json:"name"`
	Entity      string `json:"entity"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// Scaffolder renders a complete project as a file-path-to-content map. It is
// treated as pure: no side effects beyond the returned map.
type Scaffolder interface {
	Render(merged *schema.Merged, ops []Operation, jobs []Job, projectName string) (map[string]string, error)
}

// Func adapts a function to the Scaffolder interface.
type Func func(merged *schema.Merged, ops []Operation, jobs []Job, projectName string) (map[string]string, error)

func (f Func) Render(merged *schema.Merged, ops []Operation, jobs []Job, projectName string) (map[string]string, error) {
	return f(merged, ops, jobs, projectName)
}
