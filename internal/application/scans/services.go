package scans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/application"
	"github.com/bryanwahyu/footprint/internal/application/dispatch"
	"github.com/bryanwahyu/footprint/internal/application/results"
	"github.com/bryanwahyu/footprint/internal/domain/credits"
	"github.com/bryanwahyu/footprint/internal/domain/findings"
	progressdomain "github.com/bryanwahyu/footprint/internal/domain/progress"
	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/domain/scanevents"
	domain "github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/domain/workspaces"
	"github.com/bryanwahyu/footprint/internal/logging"
)

var (
	errCancelled = errors.New("scan cancelled")
	errShutdown  = errors.New("server shutting down")
)

// Dispatcher fans a scan out to its providers.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) []dispatch.Result
}

// Tracker is the server side progress owner.
type Tracker interface {
	Begin(ctx context.Context, scanID string, providerIDs []string)
	Finish(ctx context.Context, scanID string, status domain.Status, findings int, message string)
	Snapshot(ctx context.Context, scanID string) (*progressdomain.Snapshot, error)
}

// Recorder receives scan lifecycle metrics.
type Recorder interface {
	ScanStarted()
	ScanCompleted(status domain.Status, d time.Duration)
}

// Service implements the scan use-cases.
// Service is safe for concurrent use.
type Service struct {
	Repo       domain.Repository
	Workspaces workspaces.Repository
	Ledger     credits.Ledger
	Registry   *providers.Registry
	Dispatcher Dispatcher
	Findings   findings.Repository
	EventLog   scanevents.Repository
	Tracker    Tracker
	Notifier   domain.Notifier // optional
	Metrics    Recorder        // optional
	Clock      application.Clock
	Log        *zap.Logger

	// Timeout bounds a whole scan, on top of the per-provider timeout.
	Timeout time.Duration

	mu      sync.Mutex
	running map[domain.ScanID]*run
	wg      sync.WaitGroup
}

// ==== COMMANDS ====

type StartScanCommand struct {
	WorkspaceID string
	TargetType  string
	Target      string
	Providers   []string
	Source      string
}

type StartScanResult struct {
	ID          string        `json:"scan_id"`
	Status      domain.Status `json:"status"`
	TargetType  string        `json:"target_type"`
	Providers   []string      `json:"providers"`
	Dropped     []string      `json:"dropped_providers,omitempty"`
	Defaulted   bool          `json:"defaulted"`
	CreditsUsed int           `json:"credits_used"`
}

// StartScan validates the request, charges the credits and queues the scan.
// Nothing is dispatched unless the spend succeeded.
func (s *Service) StartScan(ctx context.Context, cmd StartScanCommand) (StartScanResult, error) {
	tt, ok := domain.ParseTargetType(cmd.TargetType)
	if !ok {
		return StartScanResult{}, domain.Invalid(domain.CodeInvalidTarget,
			"target type must be one of username, email, phone, domain")
	}
	target := domain.NormalizeTarget(tt, cmd.Target)
	if err := domain.ValidateTarget(tt, target); err != nil {
		return StartScanResult{}, err
	}

	ws, err := s.workspace(ctx, cmd.WorkspaceID)
	if err != nil {
		return StartScanResult{}, err
	}
	if err := ws.CheckQuota(); err != nil {
		limit, _ := ws.Limit()
		return StartScanResult{}, domain.Invalid(domain.CodeQuotaExceeded,
			"monthly scan limit of %d reached for the %s plan", limit, ws.Tier)
	}

	res, err := s.Registry.Resolve(tt, cmd.Providers, ws.Tier)
	if err != nil {
		return StartScanResult{}, err
	}
	log := s.logger().With(logging.Workspace(ws.ID))
	if len(res.Dropped) > 0 {
		log.Warn("dropped incompatible providers", zap.Strings("dropped", res.Dropped), zap.String("target_type", string(tt)))
	}

	// CheckQuota above is only a fast path, the reservation is what holds
	if err := s.reserve(ctx, ws); err != nil {
		return StartScanResult{}, err
	}

	id := uuid.NewString()
	cost := s.Registry.TotalCredits(res.Providers)
	if _, err := s.Ledger.Spend(ctx, credits.SpendRequest{
		WorkspaceID: ws.ID,
		Cost:        cost,
		Reason:      credits.ReasonScan,
		RefID:       id,
		Meta:        map[string]any{"target_type": string(tt), "providers": res.Providers},
	}); err != nil {
		s.release(ctx, ws.ID, log)
		return StartScanResult{}, err
	}

	source := cmd.Source
	if source == "" {
		source = "api"
	}
	scan := &domain.Scan{
		ID:          domain.ScanID(id),
		WorkspaceID: ws.ID,
		TargetType:  tt,
		TargetValue: target,
		Providers:   res.Providers,
		Status:      domain.StatusQueued,
		CreditsUsed: cost,
		Source:      source,
		CreatedAt:   s.Clock.Now(),
	}
	if err := s.Repo.Create(ctx, scan); err != nil {
		// kembalikan credit kalau scan gagal disimpan
		if _, rerr := s.Ledger.Grant(context.WithoutCancel(ctx), ws.ID, cost, credits.ReasonRefund, id); rerr != nil {
			log.Error("refund after failed create", zap.String("scan_id", id), zap.Error(rerr))
		}
		s.release(ctx, ws.ID, log)
		return StartScanResult{}, fmt.Errorf("create scan: %w", err)
	}

	s.Tracker.Begin(ctx, id, res.Providers)
	s.launch(scan)
	log.Info("scan queued", logging.ScanID(id), zap.Strings("providers", res.Providers), zap.Int("cost", cost))

	return StartScanResult{
		ID:          id,
		Status:      domain.StatusQueued,
		TargetType:  string(tt),
		Providers:   res.Providers,
		Dropped:     res.Dropped,
		Defaulted:   res.Defaulted,
		CreditsUsed: cost,
	}, nil
}

func (s *Service) reserve(ctx context.Context, ws *workspaces.Workspace) error {
	var limit *int
	if l, ok := ws.Limit(); ok {
		limit = &l
	}
	err := s.Workspaces.ReserveScan(ctx, ws.ID, limit)
	if errors.Is(err, workspaces.ErrQuotaExceeded) {
		l, _ := ws.Limit()
		return domain.Invalid(domain.CodeQuotaExceeded,
			"monthly scan limit of %d reached for the %s plan", l, ws.Tier)
	}
	if err != nil {
		return fmt.Errorf("reserve scan quota: %w", err)
	}
	return nil
}

func (s *Service) release(ctx context.Context, workspace string, log *zap.Logger) {
	if err := s.Workspaces.ReleaseScan(context.WithoutCancel(ctx), workspace); err != nil {
		log.Error("release scan quota", zap.Error(err))
	}
}

// EnsureWorkspace returns the workspace, provisioning a free one on first use.
func (s *Service) EnsureWorkspace(ctx context.Context, id string) (*workspaces.Workspace, error) {
	return s.workspace(ctx, id)
}

// workspace loads the workspace, provisioning a free one on first use.
func (s *Service) workspace(ctx context.Context, id string) (*workspaces.Workspace, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Invalid(domain.CodeInvalidRequest, "workspace is required")
	}
	ws, err := s.Workspaces.Get(ctx, id)
	if errors.Is(err, workspaces.ErrNotFound) {
		ws = &workspaces.Workspace{ID: id, Name: id, Tier: providers.TierFree, CreatedAt: s.Clock.Now()}
		if err := s.Workspaces.Save(ctx, ws); err != nil {
			return nil, fmt.Errorf("provision workspace: %w", err)
		}
		return ws, nil
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// run is a scan executing on this instance. done closes once its
// completion has been written.
type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// launch runs the scan in the background with its own deadline.
// Scans outlive the request that started them.
func (s *Service) launch(scan *domain.Scan) {
	parent, cancelCause := context.WithCancelCause(context.Background())
	ctx, cancel := context.WithTimeout(parent, s.timeout())
	r := &run{cancel: cancelCause, done: make(chan struct{})}

	s.mu.Lock()
	if s.running == nil {
		s.running = map[domain.ScanID]*run{}
	}
	s.running[scan.ID] = r
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		defer cancelCause(nil)
		defer cancel()
		defer func() {
			s.mu.Lock()
			delete(s.running, scan.ID)
			s.mu.Unlock()
		}()
		s.Execute(ctx, scan)
	}()
}

// Execute dispatches every provider and writes the completion back.
func (s *Service) Execute(ctx context.Context, scan *domain.Scan) domain.Completion {
	log := s.logger().With(logging.ScanID(string(scan.ID)), logging.Workspace(scan.WorkspaceID))
	start := s.Clock.Now()
	bg := context.WithoutCancel(ctx)

	if err := s.Repo.UpdateStatus(bg, scan.WorkspaceID, scan.ID, domain.StatusRunning, ""); err != nil {
		log.Warn("mark running", zap.Error(err))
	}
	if s.Metrics != nil {
		s.Metrics.ScanStarted()
	}

	out := s.Dispatcher.Dispatch(ctx, dispatch.Request{
		ScanID:      string(scan.ID),
		WorkspaceID: scan.WorkspaceID,
		TargetType:  scan.TargetType,
		Target:      scan.TargetValue,
		Providers:   scan.Providers,
	})

	var all []findings.Finding
	providerCounts := make(map[string]int, len(out))
	for _, r := range out {
		all = append(all, r.Findings...)
		if r.Status == providers.StatusSuccess {
			providerCounts[r.Provider] = r.Count
		}
	}
	all = findings.Dedupe(all)
	findings.Sort(all)

	status, msg := s.outcome(ctx, out)
	if len(all) == 0 && status == domain.StatusFinished {
		nh := findings.NoHits(string(scan.ID), scan.WorkspaceID, scan.Providers, s.Clock.Now())
		if err := s.Findings.Insert(bg, []findings.Finding{nh}); err != nil {
			log.Warn("record no-hits finding", zap.Error(err))
		}
	}

	counts := findings.Tally(all)
	c := domain.Completion{
		Status:         status,
		Counts:         counts,
		PrivacyScore:   counts.PrivacyScore(),
		ProviderCounts: providerCounts,
		ErrorMessage:   msg,
		FinishedAt:     s.Clock.Now(),
	}
	if err := s.Repo.Complete(bg, scan.WorkspaceID, scan.ID, c); err != nil {
		log.Error("complete scan", zap.Error(err))
	}
	s.Tracker.Finish(bg, string(scan.ID), status, counts.Total, msg)

	if s.Metrics != nil {
		s.Metrics.ScanCompleted(status, c.FinishedAt.Sub(start))
	}
	s.notify(bg, scan, c, log)

	log.Info("scan completed",
		zap.String("status", string(status)),
		zap.Int("findings", counts.Total),
		zap.Int("high", counts.High),
		zap.Duration("elapsed", c.FinishedAt.Sub(start)),
	)
	return c
}

// outcome decides the terminal status.
// finished when any provider succeeded or none failed, error when all failed.
func (s *Service) outcome(ctx context.Context, out []dispatch.Result) (domain.Status, string) {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, errCancelled):
			return domain.StatusCancelled, "scan cancelled"
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return domain.StatusTimeout, fmt.Sprintf("scan timed out after %s", s.timeout())
		default:
			return domain.StatusError, cause.Error()
		}
	}
	succeeded, failed := 0, 0
	var errs []string
	for _, r := range out {
		switch r.Status {
		case providers.StatusSuccess:
			succeeded++
		case providers.StatusFailed:
			failed++
			errs = append(errs, r.Provider+": "+r.Error)
		}
	}
	if succeeded == 0 && failed > 0 {
		return domain.StatusError, "all providers failed: " + strings.Join(errs, "; ")
	}
	return domain.StatusFinished, ""
}

func (s *Service) notify(ctx context.Context, scan *domain.Scan, c domain.Completion, log *zap.Logger) {
	if s.Notifier == nil || c.Status == domain.StatusCancelled {
		return
	}
	event := domain.EventScanCompleted
	if c.Counts.High > 0 {
		event = domain.EventFindingsCritical
	}
	snapshot := *scan
	snapshot.Status = c.Status
	snapshot.Counts = c.Counts
	score := c.PrivacyScore
	snapshot.PrivacyScore = &score
	snapshot.ProviderCounts = c.ProviderCounts
	snapshot.ErrorMessage = c.ErrorMessage
	finished := c.FinishedAt
	snapshot.FinishedAt = &finished

	if err := s.Notifier.Notify(ctx, domain.Notification{Event: event, Scan: snapshot}); err != nil {
		log.Warn("webhook notify failed", zap.String("event", event), zap.Error(err))
	}
}

// Cancel stops a queued or running scan.
func (s *Service) Cancel(ctx context.Context, workspace string, id domain.ScanID) (*domain.Scan, error) {
	scan, err := s.Get(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	if scan.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrNotCancellable, scan.Status)
	}

	s.mu.Lock()
	r, live := s.running[id]
	s.mu.Unlock()
	if live {
		// the running goroutine writes the completion. It may already be
		// past the point of no return, so report what it actually stored.
		r.cancel(errCancelled)
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return s.Get(ctx, workspace, id)
	}

	// not running on this instance: close the row directly
	now := s.Clock.Now()
	if err := s.Repo.Complete(ctx, workspace, id, domain.Completion{
		Status:         domain.StatusCancelled,
		Counts:         scan.Counts,
		PrivacyScore:   scan.Counts.PrivacyScore(),
		ProviderCounts: scan.ProviderCounts,
		ErrorMessage:   "scan cancelled",
		FinishedAt:     now,
	}); err != nil {
		return nil, err
	}
	s.Tracker.Finish(ctx, string(id), domain.StatusCancelled, scan.Counts.Total, "scan cancelled")
	scan.Status = domain.StatusCancelled
	scan.FinishedAt = &now
	return scan, nil
}

// Archive hides a finished scan from listings.
func (s *Service) Archive(ctx context.Context, workspace string, id domain.ScanID) error {
	scan, err := s.Get(ctx, workspace, id)
	if err != nil {
		return err
	}
	if !scan.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot archive a %s scan", domain.ErrNotCancellable, scan.Status)
	}
	return s.Repo.Archive(ctx, workspace, id, s.Clock.Now())
}

// Shutdown cancels running scans and waits for them to record their completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, r := range s.running {
		r.cancel(errShutdown)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every launched scan has completed.
func (s *Service) Wait() { s.wg.Wait() }

// ==== QUERIES ====

// Get ambil 1 scan by id
func (s *Service) Get(ctx context.Context, workspace string, id domain.ScanID) (*domain.Scan, error) {
	scan, err := s.Repo.Get(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, domain.ErrNotFound
	}
	return scan, nil
}

// Latest ambil N scan terakhir
func (s *Service) Latest(ctx context.Context, workspace string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.Repo.Latest(ctx, workspace, limit)
}

func (s *Service) Paginate(ctx context.Context, workspace string, page, pageSize int, f domain.Filter) (domain.PaginatedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.Repo.Paginate(ctx, workspace, page, pageSize, f)
}

// Summary rekap hasil scan N hari terakhir
func (s *Service) Summary(ctx context.Context, workspace string, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 30
	}
	return s.Repo.Summary(ctx, workspace, sinceDays)
}

// ResultsView is the merged result list of one scan.
type ResultsView struct {
	ScanID     string                   `json:"scan_id"`
	Status     domain.Status            `json:"status"`
	Items      []results.Item           `json:"items"`
	ByCategory map[results.Category]int `json:"by_category"`
	Counts     domain.SeverityCounts    `json:"counts"`
}

func (s *Service) Results(ctx context.Context, workspace string, id domain.ScanID) (ResultsView, error) {
	scan, err := s.Get(ctx, workspace, id)
	if err != nil {
		return ResultsView{}, err
	}
	items, err := s.merged(ctx, scan)
	if err != nil {
		return ResultsView{}, err
	}
	byCat := map[results.Category]int{}
	for _, it := range items {
		byCat[it.Category]++
	}
	return ResultsView{
		ScanID:     string(scan.ID),
		Status:     scan.Status,
		Items:      items,
		ByCategory: byCat,
		Counts:     scan.Counts,
	}, nil
}

// Profiles returns the cross-provider profile aggregate of one scan.
func (s *Service) Profiles(ctx context.Context, workspace string, id domain.ScanID) (results.Aggregate, error) {
	scan, err := s.Get(ctx, workspace, id)
	if err != nil {
		return results.Aggregate{}, err
	}
	items, err := s.merged(ctx, scan)
	if err != nil {
		return results.Aggregate{}, err
	}
	return results.AggregateProfiles(items), nil
}

func (s *Service) merged(ctx context.Context, scan *domain.Scan) ([]results.Item, error) {
	fs, err := s.Findings.ListByScan(ctx, scan.WorkspaceID, string(scan.ID))
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	ps, err := s.Findings.ListProfilesByScan(ctx, string(scan.ID))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return results.Merge(fs, ps), nil
}

func (s *Service) Events(ctx context.Context, workspace string, id domain.ScanID, limit int) ([]*scanevents.ProviderEvent, error) {
	if _, err := s.Get(ctx, workspace, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.EventLog.ListByScan(ctx, workspace, string(id), limit)
}

// Progress returns the live snapshot, falling back to the scan row when
// nothing was recorded.
func (s *Service) Progress(ctx context.Context, workspace string, id domain.ScanID) (*progressdomain.Snapshot, error) {
	scan, err := s.Get(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.Tracker.Snapshot(ctx, string(id))
	if err == nil && snap != nil {
		return snap, nil
	}
	if err != nil {
		s.logger().Debug("progress snapshot unavailable", logging.ScanID(string(id)), zap.Error(err))
	}
	return fromScan(scan), nil
}

func fromScan(scan *domain.Scan) *progressdomain.Snapshot {
	snap := &progressdomain.Snapshot{
		ScanID:        string(scan.ID),
		Status:        scan.Status,
		Total:         len(scan.Providers),
		FindingsCount: scan.Counts.Total,
		Message:       scan.ErrorMessage,
		Providers:     map[string]providers.Status{},
		UpdatedAt:     scan.CreatedAt,
	}
	if scan.Status.IsTerminal() {
		snap.Completed = snap.Total
		snap.Error = scan.Status != domain.StatusFinished
		if scan.Status == domain.StatusFinished {
			snap.Percent = 100
		}
		if scan.FinishedAt != nil {
			snap.UpdatedAt = *scan.FinishedAt
		}
	}
	return snap
}

// ProviderView is a registry entry as seen by one workspace.
type ProviderView struct {
	providers.Provider
	Available bool `json:"available"`
}

func (s *Service) Providers(ctx context.Context, workspace string) ([]ProviderView, error) {
	tier := providers.TierFree
	ws, err := s.Workspaces.Get(ctx, workspace)
	switch {
	case err == nil:
		tier = ws.Tier
	case !errors.Is(err, workspaces.ErrNotFound):
		return nil, err
	}
	all := s.Registry.All()
	out := make([]ProviderView, 0, len(all))
	for _, p := range all {
		out = append(out, ProviderView{Provider: p, Available: p.Enabled && tier.Allows(p.MinTier)})
	}
	return out, nil
}

func (s *Service) timeout() time.Duration {
	if s.Timeout <= 0 {
		return dispatch.DefaultTimeout + time.Minute
	}
	return s.Timeout
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
