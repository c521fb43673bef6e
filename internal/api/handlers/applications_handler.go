package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/appforge/engine/internal/api/types"
	"github.com/appforge/engine/internal/services"
)

type ApplicationsHandler struct {
	svc      services.ApplicationService
	validate interface{ Struct(any) error }
}

func NewApplicationsHandler(svc services.ApplicationService, v interface{ Struct(any) error }) *ApplicationsHandler {
	return &ApplicationsHandler{svc: svc, validate: v}
}

// Create accepts a name and description, persists the application, and
// enqueues the generation pipeline. Responds before generation finishes.
func (h *ApplicationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.ApplicationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := h.svc.CreateApplication(r.Context(), &services.CreateApplicationInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true, Data: app})
}

func (h *ApplicationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	appID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid application id")
		return
	}
	app, err := h.svc.GetApplication(r.Context(), appID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: app})
}

func (h *ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListApplications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{Total: int64(len(items))}})
}

// Deployments lists the deployment records for one application, newest first.
func (h *ApplicationsHandler) Deployments(w http.ResponseWriter, r *http.Request) {
	appID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid application id")
		return
	}
	items, err := h.svc.ListDeployments(r.Context(), appID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}
