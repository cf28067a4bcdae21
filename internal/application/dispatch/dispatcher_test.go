package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/application"
	"github.com/bryanwahyu/footprint/internal/domain/findings"
	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/domain/scanevents"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

type runnerFunc func(ctx context.Context, req scans.RunRequest) (scans.RunResult, error)

func (f runnerFunc) Run(ctx context.Context, req scans.RunRequest) (scans.RunResult, error) {
	return f(ctx, req)
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

func (m *memEvents) ListByScan(_ context.Context, _, _ string, _ int) ([]*scanevents.ProviderEvent, error) {
	return m.events, nil
}

func (m *memEvents) kinds(provider string) []scanevents.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scanevents.Kind
	for _, e := range m.events {
		if e.Provider == provider {
			out = append(out, e.Event)
		}
	}
	return out
}

type memFindings struct {
	mu       sync.Mutex
	findings []findings.Finding
	profiles []findings.SocialProfile
	failFor  string
}

func (m *memFindings) Insert(_ context.Context, fs []findings.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(fs) > 0 && fs[0].Provider == m.failFor {
		return errors.New("disk full")
	}
	m.findings = append(m.findings, fs...)
	return nil
}

func (m *memFindings) ListByScan(context.Context, string, string) ([]findings.Finding, error) {
	return m.findings, nil
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

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}

type memArtifacts struct {
	mu   sync.Mutex
	keys []string
}

func (a *memArtifacts) PutJSON(_ context.Context, key string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return "http://minio/" + key, nil
}

type progressLog struct {
	mu       sync.Mutex
	finished map[string]providers.Status
}

func (p *progressLog) ProviderStarted(context.Context, string, string) {}

func (p *progressLog) ProviderFinished(_ context.Context, _, provider string, st providers.Status, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished == nil {
		p.finished = map[string]providers.Status{}
	}
	p.finished[provider] = st
}

func hibpBreach() []map[string]any {
	return []map[string]any{{
		"Name":        "Adobe",
		"Domain":      "adobe.com",
		"DataClasses": []any{"Email addresses", "Passwords"},
	}}
}

func newDispatcher(r scans.Runner) (*Dispatcher, *memEvents, *memFindings) {
	ev, fs := &memEvents{}, &memFindings{}
	return &Dispatcher{
		Runner:   r,
		Registry: providers.DefaultRegistry(),
		Events:   ev,
		Findings: fs,
		Clock:    application.SystemClock{},
		Log:      zap.NewNop(),
		Timeout:  50 * time.Millisecond,
	}, ev, fs
}

func TestDispatchPartialResultsWhenOneProviderTimesOut(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, req scans.RunRequest) (scans.RunResult, error) {
		switch req.Tool {
		case "maigret":
			<-ctx.Done()
			return scans.RunResult{}, ctx.Err()
		case "hibp":
			return scans.RunResult{Results: hibpBreach(), Raw: []byte(`{"results":[]}`)}, nil
		}
		return scans.RunResult{}, errors.New("unexpected tool " + req.Tool)
	})
	d, ev, fs := newDispatcher(runner)
	art := &memArtifacts{}
	d.Artifacts = art
	prog := &progressLog{}
	d.Progress = prog

	// maigret does not support email, so use a username-and-email capable pair
	d.Registry = providers.NewRegistry([]providers.Provider{
		{ID: "maigret", ScanTypes: []scans.TargetType{scans.TargetEmail}, Enabled: true},
		{ID: "hibp", ScanTypes: []scans.TargetType{scans.TargetEmail}, Enabled: true},
	}, nil)

	results := d.Dispatch(context.Background(), Request{
		ScanID:      "scan-1",
		WorkspaceID: "ws-1",
		TargetType:  scans.TargetEmail,
		Target:      "a@b.c",
		Providers:   []string{"maigret", "hibp"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "maigret", results[0].Provider)
	assert.Equal(t, providers.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "timed out")
	assert.Empty(t, results[0].Findings)

	assert.Equal(t, providers.StatusSuccess, results[1].Status)
	require.Len(t, results[1].Findings, 1)
	assert.Equal(t, "breach.hit", results[1].Findings[0].Kind)

	require.Len(t, fs.findings, 1)
	assert.Equal(t, "hibp", fs.findings[0].Provider)

	assert.Equal(t, []scanevents.Kind{scanevents.KindStart, scanevents.KindFailed}, ev.kinds("maigret"))
	assert.Equal(t, []scanevents.Kind{scanevents.KindStart, scanevents.KindSuccess}, ev.kinds("hibp"))

	assert.Equal(t, []string{"scans/scan-1/hibp.json"}, art.keys)
	assert.Equal(t, providers.StatusFailed, prog.finished["maigret"])
	assert.Equal(t, providers.StatusSuccess, prog.finished["hibp"])
}

func TestDispatchWorkerErrorIsCaptured(t *testing.T) {
	runner := runnerFunc(func(context.Context, scans.RunRequest) (scans.RunResult, error) {
		return scans.RunResult{}, errors.New("worker returned 502")
	})
	d, ev, _ := newDispatcher(runner)

	results := d.Dispatch(context.Background(), Request{
		ScanID: "s", TargetType: scans.TargetUsername, Target: "alice", Providers: []string{"sherlock"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "worker returned 502", results[0].Error)
	assert.Equal(t, []scanevents.Kind{scanevents.KindStart, scanevents.KindFailed}, ev.kinds("sherlock"))
	assert.JSONEq(t, `{"error":"worker returned 502"}`, ev.events[1].DetailsJSON)
}

func TestDispatchSkipsUnknownAndIncompatible(t *testing.T) {
	var calls int32
	runner := runnerFunc(func(context.Context, scans.RunRequest) (scans.RunResult, error) {
		atomic.AddInt32(&calls, 1)
		return scans.RunResult{}, nil
	})
	d, ev, _ := newDispatcher(runner)

	results := d.Dispatch(context.Background(), Request{
		ScanID: "s", TargetType: scans.TargetEmail, Target: "a@b.c", Providers: []string{"ghost", "maigret"},
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, providers.StatusSkipped, r.Status)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Equal(t, []scanevents.Kind{scanevents.KindSkipped}, ev.kinds("ghost"))
}

func TestDispatchNotConfigured(t *testing.T) {
	runner := runnerFunc(func(context.Context, scans.RunRequest) (scans.RunResult, error) {
		return scans.RunResult{}, scans.ErrWorkerNotConfigured
	})
	d, ev, _ := newDispatcher(runner)
	results := d.Dispatch(context.Background(), Request{
		ScanID: "s", TargetType: scans.TargetEmail, Target: "a@b.c", Providers: []string{"hibp"},
	})
	assert.Equal(t, providers.StatusNotConfigured, results[0].Status)
	assert.Equal(t, []scanevents.Kind{scanevents.KindStart, scanevents.KindSkipped}, ev.kinds("hibp"))
}

func TestDispatchUsesCache(t *testing.T) {
	var calls int32
	runner := runnerFunc(func(context.Context, scans.RunRequest) (scans.RunResult, error) {
		atomic.AddInt32(&calls, 1)
		return scans.RunResult{Results: hibpBreach()}, nil
	})
	d, _, _ := newDispatcher(runner)
	cache := &memCache{}
	d.Cache = cache

	req := Request{ScanID: "s1", TargetType: scans.TargetEmail, Target: "a@b.c", Providers: []string{"hibp"}}
	first := d.Dispatch(context.Background(), req)
	req.ScanID = "s2"
	second := d.Dispatch(context.Background(), req)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, first[0].Cached)
	assert.True(t, second[0].Cached)
	assert.Equal(t, 1, second[0].Count)
	assert.Equal(t, "s2", second[0].Findings[0].ScanID)
	assert.Contains(t, cache.data, "scan:hibp:email:a@b.c")
}

func TestDispatchPersistFailureFailsOnlyThatProvider(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, req scans.RunRequest) (scans.RunResult, error) {
		if req.Tool == "hibp" {
			return scans.RunResult{Results: hibpBreach()}, nil
		}
		return scans.RunResult{Results: []map[string]any{{"domain": "spotify.com", "exists": true}}}, nil
	})
	d, _, fs := newDispatcher(runner)
	fs.failFor = "hibp"

	results := d.Dispatch(context.Background(), Request{
		ScanID: "s", TargetType: scans.TargetEmail, Target: "a@b.c", Providers: []string{"hibp", "holehe"},
	})
	assert.Equal(t, providers.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "persist findings")
	assert.Equal(t, providers.StatusSuccess, results[1].Status)
	assert.Len(t, fs.profiles, 1)
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	var running, peak int32
	runner := runnerFunc(func(context.Context, scans.RunRequest) (scans.RunResult, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return scans.RunResult{}, nil
	})
	d, _, _ := newDispatcher(runner)
	d.Concurrency = 2
	d.Timeout = time.Second

	d.Dispatch(context.Background(), Request{
		ScanID: "s", TargetType: scans.TargetUsername, Target: "alice",
		Providers: []string{"sherlock", "maigret", "whatsmyname", "gosearch"},
	})
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDispatchCancelledScanSkipsProviders(t *testing.T) {
	d, ev, _ := newDispatcher(runnerFunc(func(context.Context, scans.RunRequest) (scans.RunResult, error) {
		t.Fatal("runner must not be called")
		return scans.RunResult{}, nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := d.Dispatch(ctx, Request{ScanID: "s", TargetType: scans.TargetEmail, Target: "a@b.c", Providers: []string{"hibp"}})
	assert.Equal(t, providers.StatusSkipped, results[0].Status)
	assert.Equal(t, []scanevents.Kind{scanevents.KindSkipped}, ev.kinds("hibp"))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "scan:maigret:username:alice", CacheKey("maigret", scans.TargetUsername, "alice"))
}
