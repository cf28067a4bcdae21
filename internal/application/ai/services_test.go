package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/footprint/internal/application"
	"github.com/bryanwahyu/footprint/internal/domain/ai"
	"github.com/bryanwahyu/footprint/internal/domain/analyst"
	"github.com/bryanwahyu/footprint/internal/domain/findings"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

type stubScans struct {
	scans.Repository
	scan *scans.Scan
}

func (s stubScans) Get(_ context.Context, ws string, id scans.ScanID) (*scans.Scan, error) {
	if s.scan == nil || s.scan.ID != id || s.scan.WorkspaceID != ws {
		return nil, scans.ErrNotFound
	}
	return s.scan, nil
}

type stubFindings struct {
	findings.Repository
	fs []findings.Finding
}

func (s stubFindings) ListByScan(context.Context, string, string) ([]findings.Finding, error) {
	return s.fs, nil
}

type memAnalyses struct {
	saved []*analyst.Analysis
}

func (m *memAnalyses) Save(_ context.Context, a *analyst.Analysis) error {
	m.saved = append(m.saved, a)
	return nil
}

func (m *memAnalyses) Paginate(context.Context, string, int, int) ([]*analyst.Analysis, error) {
	return m.saved, nil
}

func (m *memAnalyses) LatestByScan(_ context.Context, _ string, scanID string) (*analyst.Analysis, error) {
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].ScanID == scanID {
			return m.saved[i], nil
		}
	}
	return nil, nil
}

type captureClient struct {
	got ai.Digest
	err error
}

func (c *captureClient) Analyze(_ context.Context, d ai.Digest) (string, error) {
	c.got = d
	return `{"counts":{"total":0}}`, c.err
}

func (c *captureClient) Model() string { return "test-model" }

func finishedScan() *scans.Scan {
	return &scans.Scan{
		ID: "s1", WorkspaceID: "acme", TargetType: scans.TargetUsername, TargetValue: "alice",
		Status: scans.StatusFinished, Counts: scans.SeverityCounts{High: 1, Low: 1, Total: 2},
	}
}

func TestAnalyzeScanStoresReport(t *testing.T) {
	client := &captureClient{}
	analyses := &memAnalyses{}
	fs := []findings.Finding{
		{Provider: "maigret", Kind: "presence.hit", Severity: findings.SeverityLow,
			Meta: map[string]any{"platform": "GitHub", "url": "https://github.com/alice"}},
		{Provider: "dehashed", Kind: "breach.hit", Severity: findings.SeverityHigh,
			Evidence: []findings.Evidence{{Key: "Breach Name", Value: "Canva"}}},
		{Provider: "system", Kind: findings.KindNoHits},
	}
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := NewService(client, stubScans{scan: finishedScan()}, stubFindings{fs: fs}, analyses, application.FixedClock{T: fixed}, nil)

	a, err := svc.AnalyzeScan(context.Background(), "acme", "s1")
	require.NoError(t, err)
	assert.Equal(t, "test-model", a.Model)
	assert.Equal(t, fixed, a.CreatedAt)
	require.Len(t, analyses.saved, 1)

	require.Len(t, client.got.Findings, 2)
	assert.Equal(t, "breach.hit", client.got.Findings[0].Kind)
	assert.Equal(t, "Canva", client.got.Findings[0].Site)
	assert.Equal(t, "https://github.com/[target]", client.got.Findings[1].URL)
	assert.Equal(t, 88, client.got.PrivacyScore)

	latest, err := svc.Latest(context.Background(), "acme", "s1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, latest.ID)
}

func TestAnalyzeScanRequiresTerminalScan(t *testing.T) {
	scan := finishedScan()
	scan.Status = scans.StatusRunning
	svc := NewService(&captureClient{}, stubScans{scan: scan}, stubFindings{}, &memAnalyses{}, application.SystemClock{}, nil)

	_, err := svc.AnalyzeScan(context.Background(), "acme", "s1")
	assert.ErrorIs(t, err, ai.ErrNothingToAnalyze)

	_, err = svc.AnalyzeScan(context.Background(), "other", "s1")
	assert.ErrorIs(t, err, scans.ErrNotFound)
}

func TestAnalyzeScanPropagatesQuota(t *testing.T) {
	analyses := &memAnalyses{}
	client := &captureClient{err: ai.ErrQuotaExceeded}
	svc := NewService(client, stubScans{scan: finishedScan()}, stubFindings{}, analyses, application.SystemClock{}, nil)

	_, err := svc.AnalyzeScan(context.Background(), "acme", "s1")
	assert.True(t, errors.Is(err, ai.ErrQuotaExceeded))
	assert.Empty(t, analyses.saved)
}

func TestLatestNotFound(t *testing.T) {
	svc := NewService(&captureClient{}, stubScans{}, stubFindings{}, &memAnalyses{}, application.SystemClock{}, nil)
	_, err := svc.Latest(context.Background(), "acme", "nope")
	assert.ErrorIs(t, err, scans.ErrNotFound)
}
