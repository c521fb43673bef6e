package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/appforge/engine/internal/api/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, types.StatusFor(err), types.APIResponse{Success: false, Error: types.FromAppError(err)})
}

func writeErrorStr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: &types.APIError{Code: "invalid", Message: msg}})
}
