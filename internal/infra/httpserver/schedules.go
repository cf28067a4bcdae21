package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GET /v1/{workspace}/schedules
func (r *Router) handleSchedules(w http.ResponseWriter, req *http.Request) error {
	if r.schedules == nil {
		return writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	}
	return writeJSON(w, http.StatusOK, map[string]any{"data": r.schedules.Jobs(chi.URLParam(req, "workspace"))})
}

// POST /v1/{workspace}/schedules/{name}/run
// Runs the schedule now through the normal intake, so credits and quota apply.
func (r *Router) handleRunSchedule(w http.ResponseWriter, req *http.Request) error {
	if r.schedules == nil {
		return errUnavailable
	}
	res, err := r.schedules.Trigger(req.Context(), chi.URLParam(req, "workspace"), chi.URLParam(req, "name"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, res)
}
