package handlers

import (
	"net/http"

	"github.com/appforge/engine/internal/api/types"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ready"}})
}
