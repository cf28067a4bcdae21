package scans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/application"
	"github.com/bryanwahyu/footprint/internal/application/dispatch"
	"github.com/bryanwahyu/footprint/internal/domain/credits"
	"github.com/bryanwahyu/footprint/internal/domain/findings"
	progressdomain "github.com/bryanwahyu/footprint/internal/domain/progress"
	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/domain/scanevents"
	domain "github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/domain/workspaces"
)

// ---- fakes ----

type memScans struct {
	mu             sync.Mutex
	rows           map[domain.ScanID]*domain.Scan
	createErr      error
	beforeComplete func()
}

func newMemScans() *memScans { return &memScans{rows: map[domain.ScanID]*domain.Scan{}} }

func (m *memScans) Create(_ context.Context, s *domain.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memScans) Get(_ context.Context, ws string, id domain.ScanID) (*domain.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.WorkspaceID != ws {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memScans) Latest(context.Context, string, int) ([]*domain.Scan, error) { return nil, nil }

func (m *memScans) Paginate(_ context.Context, _ string, page, size int, _ domain.Filter) (domain.PaginatedResult, error) {
	return domain.NewPage(nil, page, size, 0), nil
}

func (m *memScans) UpdateStatus(_ context.Context, _ string, id domain.ScanID, st domain.Status, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok && !s.Status.IsTerminal() {
		s.Status = st
		s.ErrorMessage = msg
	}
	return nil
}

func (m *memScans) Complete(_ context.Context, _ string, id domain.ScanID, c domain.Completion) error {
	if m.beforeComplete != nil {
		m.beforeComplete()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = c.Status
	s.Counts = c.Counts
	score := c.PrivacyScore
	s.PrivacyScore = &score
	s.ProviderCounts = c.ProviderCounts
	s.ErrorMessage = c.ErrorMessage
	at := c.FinishedAt
	s.FinishedAt = &at
	return nil
}

func (m *memScans) Archive(_ context.Context, _ string, id domain.ScanID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].ArchivedAt = &at
	return nil
}

func (m *memScans) Summary(context.Context, string, int) (domain.Summary, error) {
	return domain.Summary{}, nil
}

func (m *memScans) get(id string) domain.Scan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[domain.ScanID(id)]
}

type memWorkspaces struct {
	mu    sync.Mutex
	rows  map[string]*workspaces.Workspace
	delay time.Duration // simulates a database round trip on Get
}

func (m *memWorkspaces) Get(_ context.Context, id string) (*workspaces.Workspace, error) {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.rows[id]
	if !ok {
		return nil, workspaces.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memWorkspaces) Save(_ context.Context, w *workspaces.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string]*workspaces.Workspace{}
	}
	cp := *w
	m.rows[w.ID] = &cp
	return nil
}

func (m *memWorkspaces) ReserveScan(_ context.Context, id string, limit *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.rows[id]
	if !ok {
		return workspaces.ErrNotFound
	}
	if limit != nil && w.ScansUsedMonthly >= *limit {
		return workspaces.ErrQuotaExceeded
	}
	w.ScansUsedMonthly++
	return nil
}

func (m *memWorkspaces) ReleaseScan(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.rows[id]; ok && w.ScansUsedMonthly > 0 {
		w.ScansUsedMonthly--
	}
	return nil
}

func (m *memWorkspaces) used(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].ScansUsedMonthly
}

type memLedger struct {
	mu      sync.Mutex
	entries []credits.Entry
}

func (l *memLedger) Balance(_ context.Context, ws string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(ws), nil
}

func (l *memLedger) balance(ws string) int {
	var own []credits.Entry
	for _, e := range l.entries {
		if e.WorkspaceID == ws {
			own = append(own, e)
		}
	}
	return credits.Balance(own)
}

func (l *memLedger) Spend(_ context.Context, req credits.SpendRequest) (credits.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !credits.CanSpend(l.balance(req.WorkspaceID), req.Cost) {
		return credits.Entry{}, fmt.Errorf("%w: cost %d", credits.ErrInsufficientCredits, req.Cost)
	}
	e := credits.Entry{WorkspaceID: req.WorkspaceID, Delta: -req.Cost, Reason: req.Reason, RefID: req.RefID}
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *memLedger) Grant(_ context.Context, ws string, amount int, reason, ref string) (credits.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := credits.Entry{WorkspaceID: ws, Delta: amount, Reason: reason, RefID: ref}
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *memLedger) Entries(context.Context, string, int) ([]credits.Entry, error) {
	return l.entries, nil
}

type memFindings struct {
	mu       sync.Mutex
	findings []findings.Finding
	profiles []findings.SocialProfile
}

func (m *memFindings) Insert(_ context.Context, fs []findings.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, fs...)
	return nil
}

func (m *memFindings) ListByScan(_ context.Context, _ string, scanID string) ([]findings.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []findings.Finding
	for _, f := range m.findings {
		if f.ScanID == scanID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFindings) InsertProfiles(_ context.Context, ps []findings.SocialProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = append(m.profiles, ps...)
	return nil
}

func (m *memFindings) ListProfilesByScan(context.Context, string) ([]findings.SocialProfile, error) {
	return m.profiles, nil
}

type memEvents struct {
	mu     sync.Mutex
	events []*scanevents.ProviderEvent
}

func (m *memEvents) Save(_ context.Context, e *scanevents.ProviderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) ListByScan(_ context.Context, _, scanID string, _ int) ([]*scanevents.ProviderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*scanevents.ProviderEvent
	for _, e := range m.events {
		if e.ScanID == scanID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeTracker struct {
	mu       sync.Mutex
	begun    []string
	finished map[string]domain.Status
}

func (f *fakeTracker) Begin(_ context.Context, id string, _ []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, id)
}

func (f *fakeTracker) Finish(_ context.Context, id string, st domain.Status, _ int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = map[string]domain.Status{}
	}
	f.finished[id] = st
}

func (f *fakeTracker) Snapshot(context.Context, string) (*progressdomain.Snapshot, error) {
	return nil, errors.New("no snapshot")
}

type countingDispatcher struct {
	mu    sync.Mutex
	calls int
	inner Dispatcher
}

func (c *countingDispatcher) Dispatch(ctx context.Context, req dispatch.Request) []dispatch.Result {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Dispatch(ctx, req)
}

type dispatchFunc func(ctx context.Context, req dispatch.Request) []dispatch.Result

func (f dispatchFunc) Dispatch(ctx context.Context, req dispatch.Request) []dispatch.Result {
	return f(ctx, req)
}

type runnerFunc func(ctx context.Context, req domain.RunRequest) (domain.RunResult, error)

func (f runnerFunc) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	return f(ctx, req)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, note)
	return nil
}

type harness struct {
	svc      *Service
	scans    *memScans
	ws       *memWorkspaces
	ledger   *memLedger
	findings *memFindings
	events   *memEvents
	tracker  *fakeTracker
	disp     *countingDispatcher
	notifier *recordingNotifier
}

func testRegistry() *providers.Registry {
	e := domain.TargetEmail
	return providers.NewRegistry([]providers.Provider{
		{ID: "maigret", ScanTypes: []domain.TargetType{e, domain.TargetUsername}, CreditCost: 5, Enabled: true},
		{ID: "hibp", ScanTypes: []domain.TargetType{e}, CreditCost: 1, Enabled: true},
		{ID: "spiderfoot", ScanTypes: []domain.TargetType{e}, CreditCost: 10, MinTier: providers.TierBusiness, Enabled: true},
	}, map[domain.TargetType][]string{e: {"hibp"}})
}

func newHarness(t *testing.T, runner domain.Runner) *harness {
	t.Helper()
	h := &harness{
		scans:    newMemScans(),
		ws:       &memWorkspaces{},
		ledger:   &memLedger{},
		findings: &memFindings{},
		events:   &memEvents{},
		tracker:  &fakeTracker{},
		notifier: &recordingNotifier{},
	}
	reg := testRegistry()
	d := &dispatch.Dispatcher{
		Runner:   runner,
		Registry: reg,
		Events:   h.events,
		Findings: h.findings,
		Clock:    application.SystemClock{},
		Log:      zap.NewNop(),
		Timeout:  50 * time.Millisecond,
	}
	h.disp = &countingDispatcher{inner: d}
	h.svc = &Service{
		Repo:       h.scans,
		Workspaces: h.ws,
		Ledger:     h.ledger,
		Registry:   reg,
		Dispatcher: h.disp,
		Findings:   h.findings,
		EventLog:   h.events,
		Tracker:    h.tracker,
		Notifier:   h.notifier,
		Clock:      application.SystemClock{},
		Log:        zap.NewNop(),
		Timeout:    5 * time.Second,
	}
	return h
}

func hibpOnly(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	switch req.Tool {
	case "hibp":
		return domain.RunResult{Results: []map[string]any{{"Name": "Adobe", "DataClasses": []any{"Passwords"}}}}, nil
	case "maigret":
		<-ctx.Done()
		return domain.RunResult{}, ctx.Err()
	}
	return domain.RunResult{}, errors.New("unexpected")
}

// ---- tests ----

func TestStartScanPartialResults(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))
	_, _ = h.ledger.Grant(context.Background(), "acme", 50, credits.ReasonGrant, "")

	res, err := h.svc.StartScan(context.Background(), StartScanCommand{
		WorkspaceID: "acme", TargetType: "email", Target: " A@Example.com ", Providers: []string{"maigret", "hibp"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, res.Status)
	assert.Equal(t, 6, res.CreditsUsed)
	assert.Equal(t, []string{"maigret", "hibp"}, res.Providers)
	h.svc.Wait()

	scan := h.scans.get(res.ID)
	assert.Equal(t, domain.StatusFinished, scan.Status)
	assert.Equal(t, "a@example.com", scan.TargetValue)
	assert.Equal(t, 1, scan.Counts.Total)
	assert.Equal(t, 1, scan.Counts.High)
	require.NotNil(t, scan.PrivacyScore)
	assert.Equal(t, 90, *scan.PrivacyScore)
	assert.Equal(t, map[string]int{"hibp": 1}, scan.ProviderCounts)

	fs, _ := h.findings.ListByScan(context.Background(), "acme", res.ID)
	require.Len(t, fs, 1)
	assert.Equal(t, "hibp", fs[0].Provider)

	var failed []string
	for _, e := range h.events.events {
		if e.Event == scanevents.KindFailed {
			failed = append(failed, e.Provider)
		}
	}
	assert.Equal(t, []string{"maigret"}, failed)

	bal, _ := h.ledger.Balance(context.Background(), "acme")
	assert.Equal(t, 44, bal)
	assert.Equal(t, 1, h.ws.rows["acme"].ScansUsedMonthly)
	assert.Equal(t, domain.StatusFinished, h.tracker.finished[res.ID])

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, domain.EventFindingsCritical, h.notifier.events[0].Event)
}

func TestStartScanRejectsBeforeDispatchWhenBalanceTooLow(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))
	_, _ = h.ledger.Grant(context.Background(), "acme", 5, credits.ReasonGrant, "")

	_, err := h.svc.StartScan(context.Background(), StartScanCommand{
		WorkspaceID: "acme", TargetType: "email", Target: "a@example.com", Providers: []string{"maigret", "hibp"},
	})
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)
	h.svc.Wait()

	assert.Zero(t, h.disp.calls)
	assert.Empty(t, h.scans.rows)
	assert.Empty(t, h.tracker.begun)
	bal, _ := h.ledger.Balance(context.Background(), "acme")
	assert.Equal(t, 5, bal)
}

func TestStartScanValidation(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))
	_, _ = h.ledger.Grant(context.Background(), "acme", 100, credits.ReasonGrant, "")

	tests := []struct {
		name string
		cmd  StartScanCommand
		code string
	}{
		{"bad type", StartScanCommand{WorkspaceID: "acme", TargetType: "ip", Target: "1.1.1.1"}, domain.CodeInvalidTarget},
		{"bad email", StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "nope"}, domain.CodeInvalidTarget},
		{"tier", StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io", Providers: []string{"spiderfoot"}}, domain.CodeTierRestricted},
		{"no workspace", StartScanCommand{TargetType: "email", Target: "a@b.io"}, domain.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.StartScan(context.Background(), tt.cmd)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.code, ve.Code)
		})
	}
	assert.Zero(t, h.disp.calls)
}

func TestStartScanQuota(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))
	limit := 1
	require.NoError(t, h.ws.Save(context.Background(), &workspaces.Workspace{
		ID: "acme", Tier: providers.TierFree, ScanLimitMonthly: &limit, ScansUsedMonthly: 1,
	}))
	_, _ = h.ledger.Grant(context.Background(), "acme", 100, credits.ReasonGrant, "")

	_, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.CodeQuotaExceeded, ve.Code)
	assert.Equal(t, 403, ve.HTTPStatus())
}

func TestStartScanQuotaHoldsUnderConcurrency(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))
	h.ws.delay = 5 * time.Millisecond
	limit := 1
	require.NoError(t, h.ws.Save(context.Background(), &workspaces.Workspace{
		ID: "acme", Tier: providers.TierFree, ScanLimitMonthly: &limit,
	}))
	_, _ = h.ledger.Grant(context.Background(), "acme", 100, credits.ReasonGrant, "")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
			mu.Lock()
			defer mu.Unlock()
			var ve *domain.ValidationError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &ve) && ve.Code == domain.CodeQuotaExceeded:
				rejected++
			}
		}()
	}
	wg.Wait()
	h.svc.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 19, rejected)
	assert.Equal(t, 1, h.ws.used("acme"))
	bal, _ := h.ledger.Balance(context.Background(), "acme")
	assert.Equal(t, 99, bal)
}

func TestStartScanReleasesQuotaWhenSpendFails(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))

	_, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)
	assert.Zero(t, h.ws.used("acme"))
}

func TestStartScanRefundsWhenCreateFails(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))
	h.scans.createErr = errors.New("db down")
	_, _ = h.ledger.Grant(context.Background(), "acme", 10, credits.ReasonGrant, "")

	_, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	require.Error(t, err)
	bal, _ := h.ledger.Balance(context.Background(), "acme")
	assert.Equal(t, 10, bal)
	assert.Equal(t, credits.ReasonRefund, h.ledger.entries[len(h.ledger.entries)-1].Reason)
	assert.Zero(t, h.ws.used("acme"))
}

func TestExecuteAllFailedIsError(t *testing.T) {
	h := newHarness(t, runnerFunc(func(context.Context, domain.RunRequest) (domain.RunResult, error) {
		return domain.RunResult{}, errors.New("boom")
	}))
	_, _ = h.ledger.Grant(context.Background(), "acme", 10, credits.ReasonGrant, "")

	res, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	require.NoError(t, err)
	h.svc.Wait()

	scan := h.scans.get(res.ID)
	assert.Equal(t, domain.StatusError, scan.Status)
	assert.Contains(t, scan.ErrorMessage, "hibp: boom")
	assert.Equal(t, domain.EventScanCompleted, h.notifier.events[0].Event)
}

func TestExecuteNoHitsRecordsSystemFinding(t *testing.T) {
	h := newHarness(t, runnerFunc(func(context.Context, domain.RunRequest) (domain.RunResult, error) {
		return domain.RunResult{}, nil
	}))
	_, _ = h.ledger.Grant(context.Background(), "acme", 10, credits.ReasonGrant, "")

	res, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	require.NoError(t, err)
	h.svc.Wait()

	scan := h.scans.get(res.ID)
	assert.Equal(t, domain.StatusFinished, scan.Status)
	assert.Zero(t, scan.Counts.Total)
	fs, _ := h.findings.ListByScan(context.Background(), "acme", res.ID)
	require.Len(t, fs, 1)
	assert.Equal(t, findings.KindNoHits, fs[0].Kind)

	view, err := h.svc.Results(context.Background(), "acme", domain.ScanID(res.ID))
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestExecuteTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.Dispatcher = dispatchFunc(func(ctx context.Context, req dispatch.Request) []dispatch.Result {
		<-ctx.Done()
		return []dispatch.Result{{Provider: "hibp", Status: providers.StatusSkipped}}
	})
	h.svc.Timeout = 20 * time.Millisecond
	_, _ = h.ledger.Grant(context.Background(), "acme", 10, credits.ReasonGrant, "")

	res, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	require.NoError(t, err)
	h.svc.Wait()

	scan := h.scans.get(res.ID)
	assert.Equal(t, domain.StatusTimeout, scan.Status)
	assert.Contains(t, scan.ErrorMessage, "timed out")
}

func TestCancelRunningScan(t *testing.T) {
	h := newHarness(t, nil)
	started := make(chan struct{})
	h.svc.Dispatcher = dispatchFunc(func(ctx context.Context, req dispatch.Request) []dispatch.Result {
		close(started)
		<-ctx.Done()
		return nil
	})
	_, _ = h.ledger.Grant(context.Background(), "acme", 10, credits.ReasonGrant, "")

	res, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	require.NoError(t, err)
	<-started

	scan, err := h.svc.Cancel(context.Background(), "acme", domain.ScanID(res.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, scan.Status)
	h.svc.Wait()

	assert.Equal(t, domain.StatusCancelled, h.scans.get(res.ID).Status)
	assert.Empty(t, h.notifier.events)

	_, err = h.svc.Cancel(context.Background(), "acme", domain.ScanID(res.ID))
	assert.ErrorIs(t, err, domain.ErrNotCancellable)

	require.NoError(t, h.svc.Archive(context.Background(), "acme", domain.ScanID(res.ID)))
	assert.NotNil(t, h.scans.get(res.ID).ArchivedAt)
}

func TestCancelAfterOutcomeReportsStoredStatus(t *testing.T) {
	h := newHarness(t, runnerFunc(hibpOnly))
	completing := make(chan struct{})
	release := make(chan struct{})
	h.scans.beforeComplete = func() {
		close(completing)
		<-release
	}
	_, _ = h.ledger.Grant(context.Background(), "acme", 10, credits.ReasonGrant, "")

	res, err := h.svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: "acme", TargetType: "email", Target: "a@b.io"})
	require.NoError(t, err)
	<-completing

	type cancelled struct {
		scan *domain.Scan
		err  error
	}
	got := make(chan cancelled, 1)
	go func() {
		scan, err := h.svc.Cancel(context.Background(), "acme", domain.ScanID(res.ID))
		got <- cancelled{scan, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	c := <-got
	require.NoError(t, c.err)
	h.svc.Wait()
	stored := h.scans.get(res.ID).Status
	assert.Equal(t, domain.StatusFinished, stored)
	assert.Equal(t, stored, c.scan.Status)
}

func TestCancelQueuedScanNotRunningHere(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Now()
	require.NoError(t, h.scans.Create(context.Background(), &domain.Scan{
		ID: "s-1", WorkspaceID: "acme", Status: domain.StatusQueued, CreatedAt: now,
	}))

	scan, err := h.svc.Cancel(context.Background(), "acme", "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, scan.Status)
	assert.Equal(t, domain.StatusCancelled, h.scans.get("s-1").Status)
	assert.Equal(t, domain.StatusCancelled, h.tracker.finished["s-1"])

	_, err = h.svc.Cancel(context.Background(), "other", "s-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProgressFallsBackToScanRow(t *testing.T) {
	h := newHarness(t, nil)
	done := time.Now()
	require.NoError(t, h.scans.Create(context.Background(), &domain.Scan{
		ID: "s-2", WorkspaceID: "acme", Providers: []string{"hibp", "holehe"},
		Status: domain.StatusFinished, FinishedAt: &done, Counts: domain.SeverityCounts{Total: 3},
	}))
	snap, err := h.svc.Progress(context.Background(), "acme", "s-2")
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 3, snap.FindingsCount)
	assert.False(t, snap.Error)
}

func TestProvidersMarksTierAvailability(t *testing.T) {
	h := newHarness(t, nil)
	views, err := h.svc.Providers(context.Background(), "new-ws")
	require.NoError(t, err)
	require.Len(t, views, 3)
	avail := map[string]bool{}
	for _, v := range views {
		avail[v.ID] = v.Available
	}
	assert.True(t, avail["hibp"])
	assert.False(t, avail["spiderfoot"])
}

func TestEnsureWorkspaceProvisionsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	ws, err := h.svc.EnsureWorkspace(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, providers.TierFree, ws.Tier)

	h.ws.rows["fresh"].Tier = providers.TierPro
	again, err := h.svc.EnsureWorkspace(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, providers.TierPro, again.Tier)

	_, err = h.svc.EnsureWorkspace(ctx, " ")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}
