// Package generator defines the boundary to the generative model. The
// pipeline only requires that a successful call returns JSON conforming to
// the stage's declared shape; how the value is produced is not its concern.
package generator

import (
	"context"
	"encoding/json"
)

// Request carries one generation call: the stage prompt plus accumulated
// context from prior stages.
type Request struct {
	Stage   string         `json:"stage"`
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
}

// Generator produces structured stage output from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (json.RawMessage, error)

func (f Func) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}
