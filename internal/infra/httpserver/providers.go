package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/middleware"
)

// GET /v1/{workspace}/providers
func (r *Router) handleProviders(w http.ResponseWriter, req *http.Request) error {
	list, err := r.scans.Providers(req.Context(), chi.URLParam(req, "workspace"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"providers": list})
}

type toolHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// GET /v1/{workspace}/providers/health
// Runs the worker's self test for every provider this workspace can use.
func (r *Router) handleProvidersHealth(w http.ResponseWriter, req *http.Request) error {
	if r.worker == nil {
		return errUnavailable
	}
	list, err := r.scans.Providers(req.Context(), chi.URLParam(req, "workspace"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(req.Context(), 15*time.Second)
	defer cancel()

	worker := toolHealth{Status: "ok"}
	if err := r.worker.Health(ctx); err != nil {
		worker = toolHealth{Status: "down", Error: err.Error()}
	}

	var mu sync.Mutex
	tools := make(map[string]toolHealth, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range list {
		if !p.Available {
			continue
		}
		id := p.ID
		g.Go(func() error {
			h := toolHealth{Status: "ok"}
			if err := r.worker.TestTool(gctx, id); err != nil {
				h = toolHealth{Status: "failed", Error: err.Error()}
			}
			mu.Lock()
			tools[id] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return writeJSON(w, http.StatusOK, map[string]any{"worker": worker, "providers": tools})
}

// GET /v1/{workspace}/credits
func (r *Router) handleBalance(w http.ResponseWriter, req *http.Request) error {
	b, err := r.credits.Balance(req.Context(), chi.URLParam(req, "workspace"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, b)
}

// GET /v1/{workspace}/credits/ledger?limit=50
func (r *Router) handleLedger(w http.ResponseWriter, req *http.Request) error {
	ws := chi.URLParam(req, "workspace")
	entries, err := r.credits.Entries(req.Context(), ws, queryInt(req, "limit"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"workspace_id": ws, "entries": entries})
}

// POST /v1/{workspace}/credits/grant
// Header: X-Admin-Key. Body: {"amount": 100, "reason": "topup"}
func (r *Router) handleGrant(w http.ResponseWriter, req *http.Request) error {
	key := strings.TrimSpace(req.Header.Get("X-Admin-Key"))
	if r.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(r.adminKey)) != 1 {
		return errForbidden
	}
	ws := chi.URLParam(req, "workspace")

	var body struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}

	// ledger rows reference the workspace
	if _, err := r.scans.EnsureWorkspace(req.Context(), ws); err != nil {
		return err
	}
	e, err := r.credits.Grant(req.Context(), ws, body.Amount, middleware.SanitizeString(body.Reason))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, e)
}

// POST /v1/{workspace}/ai/analyze
// Body: {"scan_id": "<id>"}
func (r *Router) handleAIAnalyze(w http.ResponseWriter, req *http.Request) error {
	if r.ai == nil {
		return errUnavailable
	}
	ws := chi.URLParam(req, "workspace")
	var body struct {
		ScanID string `json:"scan_id"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateScanID(body.ScanID); err != nil {
		return invalid(err.Error())
	}

	a, err := r.ai.AnalyzeScan(req.Context(), ws, domain.ScanID(body.ScanID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, a)
}

// GET /v1/{workspace}/ai/analyze?page=&page_size=
// GET /v1/{workspace}/ai/analyze?scan_id=  latest analysis of one scan
func (r *Router) handleAIAnalyzeList(w http.ResponseWriter, req *http.Request) error {
	if r.ai == nil {
		return errUnavailable
	}
	ws := chi.URLParam(req, "workspace")

	if id := req.URL.Query().Get("scan_id"); id != "" {
		if err := middleware.ValidateScanID(id); err != nil {
			return invalid(err.Error())
		}
		a, err := r.ai.Latest(req.Context(), ws, id)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, a)
	}

	list, err := r.ai.ListAnalyses(req.Context(), ws, queryInt(req, "page"), queryInt(req, "page_size"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"data": list})
}
