package generator

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/appforge/engine/pkg/httpclient"
)

// HTTPGenerator calls the generation model service over its HTTP boundary.
// The service owns prompting and model selection; this client only moves the
// stage request across and returns the raw JSON result.
type HTTPGenerator struct {
	api *httpclient.Client
}

func NewHTTP(api *httpclient.Client) *HTTPGenerator {
	return &HTTPGenerator{api: api}
}

var _ Generator = (*HTTPGenerator)(nil)

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	return g.api.Do(ctx, http.MethodPost, "/generate", nil, req)
}
