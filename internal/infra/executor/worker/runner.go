package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/bryanwahyu/footprint/internal/domain/scans"
)

// maxBody caps a worker response; maigret output for popular usernames is large.
const maxBody = 32 << 20

// Runner calls the OSINT worker over HTTP, one POST /scan per provider.
type Runner struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewRunner(baseURL, token string) *Runner {
	return &Runner{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		// per call deadlines come from the context
		HTTP: &http.Client{Transport: http.DefaultTransport},
	}
}

type scanResponse struct {
	Results []map[string]any `json:"results"`
	Error   string           `json:"error,omitempty"`
	Meta    map[string]any   `json:"meta,omitempty"`
}

func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	if r == nil || r.BaseURL == "" {
		return domain.RunResult{}, domain.ErrWorkerNotConfigured
	}
	start := time.Now()

	payload := map[string]any{"tool": req.Tool, string(req.TargetType): req.Target}
	if r.Token != "" {
		payload["token"] = r.Token
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.RunResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/scan", bytes.NewReader(body))
	if err != nil {
		return domain.RunResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	r.auth(httpReq)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := r.HTTP.Do(httpReq)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("worker request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("read worker response: %w", err)
	}
	trace.SpanFromContext(ctx).AddEvent("worker.response", trace.WithAttributes(
		attribute.String("tool", req.Tool),
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int("bytes", len(raw)),
	))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.RunResult{}, fmt.Errorf("worker returned %d: %s", resp.StatusCode, snippet(raw))
	}

	var out scanResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.RunResult{}, fmt.Errorf("decode worker response: %w", err)
	}
	if out.Error != "" {
		return domain.RunResult{}, errors.New(out.Error)
	}
	return domain.RunResult{
		Results:    out.Results,
		Meta:       out.Meta,
		Raw:        raw,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

// Health calls GET /health on the worker.
func (r *Runner) Health(ctx context.Context) error {
	return r.get(ctx, "/health")
}

// TestTool calls the worker's per tool self test, GET /test-<tool>.
func (r *Runner) TestTool(ctx context.Context, tool string) error {
	return r.get(ctx, "/test-"+tool)
}

func (r *Runner) get(ctx context.Context, path string) error {
	if r == nil || r.BaseURL == "" {
		return domain.ErrWorkerNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return err
	}
	r.auth(req)
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker %s returned %d: %s", path, resp.StatusCode, snippet(raw))
	}
	return nil
}

func (r *Runner) auth(req *http.Request) {
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
		req.Header.Set("X-Worker-Token", r.Token)
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
