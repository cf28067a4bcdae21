package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/footprint/internal/application"
	"github.com/bryanwahyu/footprint/internal/domain/findings"
	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/domain/scanevents"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/logging"
)

const (
	DefaultTimeout     = 120 * time.Second
	DefaultConcurrency = 7
	DefaultCacheTTL    = 24 * time.Hour
)

// Cache stores successful provider responses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Reporter receives per-provider progress.
type Reporter interface {
	ProviderStarted(ctx context.Context, scanID, provider string)
	ProviderFinished(ctx context.Context, scanID, provider string, status providers.Status, results int)
}

// Observer records provider call metrics.
type Observer interface {
	ObserveProvider(provider, outcome string, d time.Duration)
}

// Request is one scan's fan-out.
type Request struct {
	ScanID      string
	WorkspaceID string
	TargetType  scans.TargetType
	Target      string
	Providers   []string
}

// Result is the outcome of one provider. Error is set instead of returning a Go error.
type Result struct {
	Provider   string                   `json:"provider"`
	Status     providers.Status         `json:"status"`
	Findings   []findings.Finding       `json:"-"`
	Profiles   []findings.SocialProfile `json:"-"`
	Count      int                      `json:"result_count"`
	Error      string                   `json:"error,omitempty"`
	DurationMS int64                    `json:"duration_ms"`
	Cached     bool                     `json:"cached"`
}

// Dispatcher fans a scan out to the worker, one call per provider.
// There are no retries; each provider gets its own timeout.
type Dispatcher struct {
	Runner    scans.Runner
	Registry  *providers.Registry
	Events    scanevents.Repository
	Findings  findings.Repository
	Artifacts scans.ArtifactStore // optional
	Cache     Cache               // optional
	Progress  Reporter            // optional
	Metrics   Observer            // optional
	Clock     application.Clock
	Log       *zap.Logger

	Timeout     time.Duration
	Concurrency int
	CacheTTL    time.Duration
}

// CacheKey for a provider response.
func CacheKey(provider string, t scans.TargetType, target string) string {
	return fmt.Sprintf("scan:%s:%s:%s", provider, t, target)
}

// Dispatch runs every provider and returns one Result per provider, in request order.
// It never fails as a whole: a failing provider only affects its own Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) []Result {
	results := make([]Result, len(req.Providers))

	var g errgroup.Group
	g.SetLimit(d.concurrency())
	for i, p := range req.Providers {
		g.Go(func() error {
			results[i] = d.runOne(ctx, req, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) runOne(ctx context.Context, req Request, provider string) Result {
	log := d.logger().With(logging.ScanID(req.ScanID), logging.Provider(provider))
	start := d.Clock.Now()

	p, ok := d.Registry.Lookup(provider)
	if !ok || !p.Enabled || !p.Supports(req.TargetType) {
		return d.skip(ctx, req, provider, providers.StatusSkipped, "provider not available for "+string(req.TargetType))
	}
	if ctx.Err() != nil {
		return d.skip(ctx, req, provider, providers.StatusSkipped, "scan stopped before provider started")
	}

	ctx, span := otel.Tracer("footprint/dispatch").Start(ctx, "provider."+p.ID)
	span.SetAttributes(
		attribute.String("scan.id", req.ScanID),
		attribute.String("provider", p.ID),
		attribute.String("target.type", string(req.TargetType)),
	)
	defer span.End()

	d.event(ctx, req, p.ID, scanevents.KindStart, "provider started", 0, 0, nil)
	if d.Progress != nil {
		d.Progress.ProviderStarted(ctx, req.ScanID, p.ID)
	}

	run, cached, err := d.call(ctx, req, p.ID)
	elapsed := d.Clock.Now().Sub(start)
	if err != nil {
		if errors.Is(err, scans.ErrWorkerNotConfigured) {
			return d.skip(ctx, req, p.ID, providers.StatusNotConfigured, err.Error())
		}
		msg := err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		log.Warn("provider failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return d.fail(ctx, req, p.ID, msg, elapsed)
	}

	out := findings.Normalize(findings.Source{
		Provider:    p.ID,
		ScanID:      req.ScanID,
		WorkspaceID: req.WorkspaceID,
		TargetType:  req.TargetType,
		Target:      req.Target,
		ObservedAt:  d.Clock.Now(),
	}, run.Results)
	out.Findings = findings.Dedupe(out.Findings)

	// rows are written as soon as this provider returns, independent of the others
	persistCtx := context.WithoutCancel(ctx)
	if len(out.Findings) > 0 {
		if err := d.Findings.Insert(persistCtx, out.Findings); err != nil {
			log.Error("persist findings", zap.Error(err))
			return d.fail(ctx, req, p.ID, "persist findings: "+err.Error(), elapsed)
		}
	}
	if len(out.Profiles) > 0 {
		if err := d.Findings.InsertProfiles(persistCtx, out.Profiles); err != nil {
			log.Warn("persist social profiles", zap.Error(err))
		}
	}
	if !cached {
		d.archive(persistCtx, req, p.ID, run, log)
		d.store(persistCtx, req, p.ID, run, log)
	}

	count := len(out.Findings)
	span.SetAttributes(attribute.Int("results", count), attribute.Bool("cached", cached))
	d.event(ctx, req, p.ID, scanevents.KindSuccess, fmt.Sprintf("found %d results", count), count, elapsed, nil)
	if d.Progress != nil {
		d.Progress.ProviderFinished(ctx, req.ScanID, p.ID, providers.StatusSuccess, count)
	}
	d.observe(p.ID, "success", elapsed)
	log.Info("provider finished", zap.Int("results", count), zap.Bool("cached", cached), zap.Duration("elapsed", elapsed))

	return Result{
		Provider:   p.ID,
		Status:     providers.StatusSuccess,
		Findings:   out.Findings,
		Profiles:   out.Profiles,
		Count:      count,
		DurationMS: elapsed.Milliseconds(),
		Cached:     cached,
	}
}

// call returns a cached response or runs the provider under its own deadline.
func (d *Dispatcher) call(ctx context.Context, req Request, provider string) (scans.RunResult, bool, error) {
	key := CacheKey(provider, req.TargetType, req.Target)
	if d.Cache != nil {
		if raw, ok, err := d.Cache.Get(ctx, key); err == nil && ok {
			var run scans.RunResult
			if err := json.Unmarshal(raw, &run.Results); err == nil {
				run.Raw = raw
				return run, true, nil
			}
		}
	}

	pctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	run, err := d.Runner.Run(pctx, scans.RunRequest{Tool: provider, TargetType: req.TargetType, Target: req.Target})
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return run, false, fmt.Errorf("%s timed out after %s", provider, d.timeout())
		}
		return run, false, err
	}
	return run, false, nil
}

func (d *Dispatcher) store(ctx context.Context, req Request, provider string, run scans.RunResult, log *zap.Logger) {
	if d.Cache == nil {
		return
	}
	raw, err := json.Marshal(run.Results)
	if err != nil {
		return
	}
	ttl := d.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if err := d.Cache.Set(ctx, CacheKey(provider, req.TargetType, req.Target), raw, ttl); err != nil {
		log.Warn("cache set failed", zap.Error(err))
	}
}

func (d *Dispatcher) archive(ctx context.Context, req Request, provider string, run scans.RunResult, log *zap.Logger) {
	if d.Artifacts == nil || len(run.Raw) == 0 {
		return
	}
	key := fmt.Sprintf("scans/%s/%s.json", req.ScanID, provider)
	if _, err := d.Artifacts.PutJSON(ctx, key, run.Raw); err != nil {
		log.Warn("archive raw payload failed", zap.String("key", key), zap.Error(err))
	}
}

func (d *Dispatcher) fail(ctx context.Context, req Request, provider, msg string, elapsed time.Duration) Result {
	details := map[string]string{"error": msg}
	d.event(ctx, req, provider, scanevents.KindFailed, msg, 0, elapsed, details)
	if d.Progress != nil {
		d.Progress.ProviderFinished(ctx, req.ScanID, provider, providers.StatusFailed, 0)
	}
	d.observe(provider, "failed", elapsed)
	return Result{Provider: provider, Status: providers.StatusFailed, Error: msg, DurationMS: elapsed.Milliseconds()}
}

func (d *Dispatcher) skip(ctx context.Context, req Request, provider string, st providers.Status, msg string) Result {
	d.event(ctx, req, provider, scanevents.KindSkipped, msg, 0, 0, map[string]string{"status": string(st)})
	if d.Progress != nil {
		d.Progress.ProviderFinished(ctx, req.ScanID, provider, st, 0)
	}
	d.observe(provider, string(st), 0)
	return Result{Provider: provider, Status: st, Error: msg}
}

func (d *Dispatcher) event(ctx context.Context, req Request, provider string, kind scanevents.Kind, msg string, count int, elapsed time.Duration, details any) {
	if d.Events == nil {
		return
	}
	e := &scanevents.ProviderEvent{
		WorkspaceID: req.WorkspaceID,
		ScanID:      req.ScanID,
		Provider:    provider,
		Event:       kind,
		Message:     msg,
		ResultCount: count,
		DurationMS:  elapsed.Milliseconds(),
		CreatedAt:   d.Clock.Now(),
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.DetailsJSON = string(b)
		}
	}
	if err := d.Events.Save(context.WithoutCancel(ctx), e); err != nil {
		d.logger().Warn("save provider event", logging.ScanID(req.ScanID), logging.Provider(provider), zap.Error(err))
	}
}

func (d *Dispatcher) observe(provider, outcome string, elapsed time.Duration) {
	if d.Metrics != nil {
		d.Metrics.ObserveProvider(provider, outcome, elapsed)
	}
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return d.Concurrency
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
