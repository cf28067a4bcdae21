package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appcredits "github.com/bryanwahyu/footprint/internal/application/credits"
	appscans "github.com/bryanwahyu/footprint/internal/application/scans"
	"github.com/bryanwahyu/footprint/internal/application/results"
	"github.com/bryanwahyu/footprint/internal/application/schedule"
	domai "github.com/bryanwahyu/footprint/internal/domain/ai"
	"github.com/bryanwahyu/footprint/internal/domain/analyst"
	"github.com/bryanwahyu/footprint/internal/domain/credits"
	"github.com/bryanwahyu/footprint/internal/domain/progress"
	"github.com/bryanwahyu/footprint/internal/domain/scanevents"
	domain "github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/domain/workspaces"
	"github.com/bryanwahyu/footprint/internal/middleware"
)

// ScanService is what the HTTP layer needs from the scan use cases.
type ScanService interface {
	StartScan(ctx context.Context, cmd appscans.StartScanCommand) (appscans.StartScanResult, error)
	EnsureWorkspace(ctx context.Context, id string) (*workspaces.Workspace, error)
	Get(ctx context.Context, workspace string, id domain.ScanID) (*domain.Scan, error)
	Latest(ctx context.Context, workspace string, limit int) ([]*domain.Scan, error)
	Paginate(ctx context.Context, workspace string, page, pageSize int, f domain.Filter) (domain.PaginatedResult, error)
	Summary(ctx context.Context, workspace string, sinceDays int) (domain.Summary, error)
	Results(ctx context.Context, workspace string, id domain.ScanID) (appscans.ResultsView, error)
	Profiles(ctx context.Context, workspace string, id domain.ScanID) (results.Aggregate, error)
	Events(ctx context.Context, workspace string, id domain.ScanID, limit int) ([]*scanevents.ProviderEvent, error)
	Progress(ctx context.Context, workspace string, id domain.ScanID) (*progress.Snapshot, error)
	Cancel(ctx context.Context, workspace string, id domain.ScanID) (*domain.Scan, error)
	Archive(ctx context.Context, workspace string, id domain.ScanID) error
	Providers(ctx context.Context, workspace string) ([]appscans.ProviderView, error)
}

type CreditService interface {
	Balance(ctx context.Context, workspace string) (appcredits.BalanceView, error)
	Entries(ctx context.Context, workspace string, limit int) ([]credits.Entry, error)
	Grant(ctx context.Context, workspace string, amount int, reason string) (credits.Entry, error)
}

type AnalysisService interface {
	AnalyzeScan(ctx context.Context, workspace string, id domain.ScanID) (*analyst.Analysis, error)
	ListAnalyses(ctx context.Context, workspace string, page, pageSize int) ([]*analyst.Analysis, error)
	Latest(ctx context.Context, workspace, scanID string) (*analyst.Analysis, error)
}

// ScheduleService lists and runs a workspace's configured scan schedules.
type ScheduleService interface {
	Jobs(workspace string) []schedule.JobView
	Trigger(ctx context.Context, workspace, name string) (appscans.StartScanResult, error)
}

// WorkerProbe checks the remote worker and its tools.
type WorkerProbe interface {
	Health(ctx context.Context) error
	TestTool(ctx context.Context, tool string) error
}

// MetricsHandler exposes /metrics and observes every request.
type MetricsHandler interface {
	middleware.HTTPObserver
	Handler() http.Handler
}

// Deps wires the router. Only Scans and Credits are required.
type Deps struct {
	Scans     ScanService
	Credits   CreditService
	AI        AnalysisService
	Schedules ScheduleService
	Progress  progress.Subscriber
	Worker    WorkerProbe
	Metrics   MetricsHandler

	Health      map[string]middleware.CheckFunc
	APIKeys     map[string]string
	AdminKey    string
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	Log         *zap.Logger
}

type Router struct {
	scans     ScanService
	credits   CreditService
	ai        AnalysisService
	schedules ScheduleService
	progress  progress.Subscriber
	worker    WorkerProbe
	adminKey  string
	origins   []string
	log       *zap.Logger

	// ping interval of the progress stream
	pingEvery time.Duration
}

func NewRouter(d Deps) http.Handler {
	r := newRouter(d)
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.RequestLogger(r.log))
	mux.Use(chimw.Recoverer)
	if d.Metrics != nil {
		mux.Use(middleware.Metrics(d.Metrics))
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(d.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Admin-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Get("/healthz", middleware.HealthHandler(d.Health))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	if d.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	mux.Route("/v1/{workspace}", func(rt chi.Router) {
		if len(d.APIKeys) > 0 {
			rt.Use(middleware.APIKeyAuth(d.APIKeys))
		}
		rt.Use(middleware.RequireWorkspace)
		if d.RateLimiter != nil {
			rt.Use(middleware.RateLimit(d.RateLimiter))
		}

		rt.Post("/scans", r.wrap(r.handleStartScan))
		rt.Get("/scans", r.wrap(r.handlePaginate))
		rt.Get("/scans/latest", r.wrap(r.handleLatest))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Get("/scans/{id}/results", r.wrap(r.handleResults))
		rt.Get("/scans/{id}/profiles", r.wrap(r.handleProfiles))
		rt.Get("/scans/{id}/events", r.wrap(r.handleEvents))
		rt.Get("/scans/{id}/progress", r.wrap(r.handleProgress))
		rt.Get("/scans/{id}/stream", r.wrap(r.handleStream))
		rt.Post("/scans/{id}/cancel", r.wrap(r.handleCancel))
		rt.Post("/scans/{id}/archive", r.wrap(r.handleArchive))
		rt.Get("/summary", r.wrap(r.handleSummary))

		rt.Get("/providers", r.wrap(r.handleProviders))
		rt.Get("/providers/health", r.wrap(r.handleProvidersHealth))

		rt.Get("/credits", r.wrap(r.handleBalance))
		rt.Get("/credits/ledger", r.wrap(r.handleLedger))
		rt.Post("/credits/grant", r.wrap(r.handleGrant))

		rt.Post("/ai/analyze", r.wrap(r.handleAIAnalyze))
		rt.Get("/ai/analyze", r.wrap(r.handleAIAnalyzeList))

		rt.Get("/schedules", r.wrap(r.handleSchedules))
		rt.Post("/schedules/{name}/run", r.wrap(r.handleRunSchedule))
	})

	return mux
}

func newRouter(d Deps) *Router {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		scans:     d.Scans,
		credits:   d.Credits,
		ai:        d.AI,
		schedules: d.Schedules,
		progress:  d.Progress,
		worker:    d.Worker,
		adminKey:  d.AdminKey,
		origins:   d.CORSOrigins,
		log:       log,
		pingEvery: 30 * time.Second,
	}
}

func corsOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks errors caused by a malformed request body or query.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func invalid(msg string) error { return badRequest{msg: msg} }

// Error codes that are not validation codes.
const (
	codeInsufficientCredits = "insufficient_credits"
	codeNotFound            = "not_found"
	codeNotCancellable      = "not_cancellable"
	codeAIQuota             = "ai_quota_exceeded"
	codeNothingToAnalyze    = "nothing_to_analyze"
	codeForbidden           = "forbidden"
	codeUnavailable         = "unavailable"
	codeInternal            = "internal_error"
)

// errForbidden is returned by admin only endpoints.
var errForbidden = errors.New("admin key required")

// errUnavailable is returned when an optional dependency was not wired.
var errUnavailable = errors.New("feature not configured")

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, code, msg := classify(err)
		if status >= http.StatusInternalServerError {
			r.log.Error("request failed",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("request_id", chimw.GetReqID(req.Context())),
				zap.Error(err))
		}
		middleware.WriteError(w, status, code, msg)
	}
}

// classify maps an error to status, code and a client safe message.
func classify(err error) (int, string, string) {
	var ve *domain.ValidationError
	var br badRequest
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError

	switch {
	case errors.As(err, &ve):
		return ve.HTTPStatus(), ve.Code, ve.Message
	case errors.As(err, &br):
		return http.StatusBadRequest, domain.CodeInvalidRequest, br.msg
	case errors.As(err, &se), errors.As(err, &te):
		return http.StatusBadRequest, domain.CodeInvalidRequest, "invalid JSON body"
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusPaymentRequired, codeInsufficientCredits, "insufficient credits"
	case errors.Is(err, workspaces.ErrQuotaExceeded):
		return http.StatusForbidden, domain.CodeQuotaExceeded, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "scan not found"
	case errors.Is(err, workspaces.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "workspace not found"
	case errors.Is(err, schedule.ErrJobNotFound):
		return http.StatusNotFound, codeNotFound, "schedule not found"
	case errors.Is(err, domain.ErrNotCancellable):
		return http.StatusConflict, codeNotCancellable, "scan already finished"
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests, codeAIQuota, "ai quota exceeded"
	case errors.Is(err, domai.ErrNothingToAnalyze):
		return http.StatusConflict, codeNothingToAnalyze, err.Error()
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, codeForbidden, err.Error()
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, codeUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

func decodeBody(w http.ResponseWriter, req *http.Request, dst any) error {
	req.Body = http.MaxBytesReader(w, req.Body, 1<<20)
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(dst); err != nil {
		var se *json.SyntaxError
		var te *json.UnmarshalTypeError
		if errors.As(err, &se) || errors.As(err, &te) {
			return err
		}
		return invalid("invalid JSON body")
	}
	return nil
}

func scanID(req *http.Request) (domain.ScanID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return "", invalid(err.Error())
	}
	return domain.ScanID(id), nil
}

func queryInt(req *http.Request, key string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(key))
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	middleware.WriteJSON(w, status, v)
	return nil
}
