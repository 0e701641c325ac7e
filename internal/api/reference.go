package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rapbattles/batalla/internal/auth"
	"github.com/rapbattles/batalla/internal/observability"
	"github.com/rapbattles/batalla/internal/reference"
)

type referenceResponse struct {
	LoadedAt string            `json:"loaded_at,omitempty"`
	Counts   map[string]int    `json:"counts"`
	Values   *reference.Values `json:"values,omitempty"`
}

func newReferenceResponse(values reference.Values, withValues bool) referenceResponse {
	response := referenceResponse{Counts: values.Counts()}
	if values.Loaded() {
		response.LoadedAt = values.LoadedAt.UTC().Format(time.RFC3339)
	}
	if withValues {
		response.Values = &values
	}
	return response
}

func handleReference(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.References == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "REFERENCE_NOT_CONFIGURED", "reference cache is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	withValues := false
	if raw := r.URL.Query().Get("values"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_QUERY_PARAM", "values must be a boolean", false, map[string]any{"values": raw})
			return
		}
		withValues = parsed
	}
	writeJSON(w, http.StatusOK, newReferenceResponse(deps.References.Values(), withValues))
}

func handleReferenceReload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.References == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "REFERENCE_NOT_CONFIGURED", "reference cache is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	values, err := deps.References.Load(r.Context())
	OnReferenceReload(deps.Chat)(values, err)
	if err != nil {
		deps.Logger.ErrorContext(r.Context(), "reference reload failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(r.Context(), w, http.StatusServiceUnavailable, "REFERENCE_RELOAD_FAILED", "reference reload failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newReferenceResponse(values, false))
}

// OnReferenceReload records a reload attempt and, when it succeeded, drops the
// cached schema description of service so prompts pick up the new values.
func OnReferenceReload(service ChatService) func(reference.Values, error) {
	return func(values reference.Values, err error) {
		observability.ObserveReferenceRefresh(err)
		if err != nil {
			return
		}
		observability.SetReferenceCounts(values.Counts())
		if service != nil {
			service.InvalidateSchema()
		}
	}
}
