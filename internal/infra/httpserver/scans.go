package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appscans "github.com/bryanwahyu/footprint/internal/application/scans"
	domain "github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/middleware"
)

// POST /v1/{workspace}/scans
// Body: {"target_type": "email", "target_value": "a@example.com", "providers": ["hibp"]}
func (r *Router) handleStartScan(w http.ResponseWriter, req *http.Request) error {
	ws := chi.URLParam(req, "workspace")

	var body struct {
		TargetType  string   `json:"target_type"`
		TargetValue string   `json:"target_value"`
		Target      string   `json:"target"`
		Providers   []string `json:"providers"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	target := body.TargetValue
	if target == "" {
		target = body.Target
	}
	ps, err := middleware.NormalizeProviders(body.Providers)
	if err != nil {
		return domain.Invalid(domain.CodeInvalidProvider, "%s", err.Error())
	}

	res, err := r.scans.StartScan(req.Context(), appscans.StartScanCommand{
		WorkspaceID: ws,
		TargetType:  strings.ToLower(strings.TrimSpace(body.TargetType)),
		Target:      middleware.SanitizeString(target),
		Providers:   ps,
		Source:      "api",
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, res)
}

// GET /v1/{workspace}/scans?page=&page_size=&status=&target_type=&archived=
func (r *Router) handlePaginate(w http.ResponseWriter, req *http.Request) error {
	ws := chi.URLParam(req, "workspace")
	q := req.URL.Query()

	f := domain.Filter{IncludeArchived: q.Get("archived") == "true"}
	if s := q.Get("status"); s != "" {
		st := domain.Status(strings.ToLower(s))
		if !st.Valid() {
			return invalid("unknown status " + s)
		}
		f.Status = st
	}
	if t := q.Get("target_type"); t != "" {
		tt, ok := domain.ParseTargetType(t)
		if !ok {
			return invalid("unknown target_type " + t)
		}
		f.TargetType = tt
	}

	page, err := r.scans.Paginate(req.Context(), ws, queryInt(req, "page"), queryInt(req, "page_size"), f)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, page)
}

// GET /v1/{workspace}/scans/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	ws := chi.URLParam(req, "workspace")
	limit := middleware.ValidateLimit(queryInt(req, "limit"), 20, 100)

	list, err := r.scans.Latest(req.Context(), ws, limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Scan{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{workspace}/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	scan, err := r.scans.Get(req.Context(), chi.URLParam(req, "workspace"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scan)
}

// GET /v1/{workspace}/scans/{id}/results
func (r *Router) handleResults(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	view, err := r.scans.Results(req.Context(), chi.URLParam(req, "workspace"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, view)
}

// GET /v1/{workspace}/scans/{id}/profiles
func (r *Router) handleProfiles(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	agg, err := r.scans.Profiles(req.Context(), chi.URLParam(req, "workspace"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, agg)
}

// GET /v1/{workspace}/scans/{id}/events?limit=
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	limit := middleware.ValidateLimit(queryInt(req, "limit"), 100, 1000)
	events, err := r.scans.Events(req.Context(), chi.URLParam(req, "workspace"), id, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"scan_id": id, "events": events})
}

// GET /v1/{workspace}/scans/{id}/progress
func (r *Router) handleProgress(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	snap, err := r.scans.Progress(req.Context(), chi.URLParam(req, "workspace"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

// POST /v1/{workspace}/scans/{id}/cancel
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	scan, err := r.scans.Cancel(req.Context(), chi.URLParam(req, "workspace"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scan)
}

// POST /v1/{workspace}/scans/{id}/archive
func (r *Router) handleArchive(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	if err := r.scans.Archive(req.Context(), chi.URLParam(req, "workspace"), id); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"scan_id": id, "archived": true})
}

// GET /v1/{workspace}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	ws := chi.URLParam(req, "workspace")
	days := middleware.ValidateDays(queryInt(req, "days"))

	summary, err := r.scans.Summary(req.Context(), ws, days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"workspace_id": ws,
		"days":         days,
		"since":        time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339),
		"summary":      summary,
	})
}
