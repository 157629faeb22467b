package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/internal/catalog"
	"github.com/metaphotor/metaphotor/internal/editor"
	"github.com/metaphotor/metaphotor/internal/scan"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

// writeError maps err onto a status code and a JSON error body. Server-side
// failures are logged.
func writeError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	status, payload := classify(err)
	if status >= http.StatusInternalServerError && logg != nil {
		logg.Error(ctx, "request.error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: payload})
}

func classify(err error) (int, apiError) {
	var verr *editor.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, apiError{Code: "VALIDATION", Message: "validation failed", Details: verr.Fields}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, apiError{Code: "VALIDATION", Message: err.Error()}
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, apiError{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, scan.ErrBusy):
		return http.StatusConflict, apiError{Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, core.ErrGeocodingUnresolved):
		return http.StatusNotFound, apiError{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, core.ErrUnreadableFile):
		return http.StatusUnprocessableEntity, apiError{Code: "UNREADABLE_FILE", Message: err.Error()}
	}
	return http.StatusInternalServerError, apiError{Code: "INTERNAL", Message: "unexpected error"}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
