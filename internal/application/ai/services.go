package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/application"
	"github.com/bryanwahyu/footprint/internal/domain/ai"
	"github.com/bryanwahyu/footprint/internal/domain/analyst"
	"github.com/bryanwahyu/footprint/internal/domain/findings"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/logging"
)

// maxDigestItems keeps prompts small for scans with thousands of hits.
const maxDigestItems = 200

type Service struct {
	client   ai.Client
	scans    scans.Repository
	findings findings.Repository
	analyses analyst.Repository
	clock    application.Clock
	log      *zap.Logger
}

func NewService(client ai.Client, sr scans.Repository, fr findings.Repository, ar analyst.Repository, clock application.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, scans: sr, findings: fr, analyses: ar, clock: clock, log: log}
}

// AnalyzeScan builds a digest of a terminal scan, asks the analyzer for a
// report and stores it.
func (s *Service) AnalyzeScan(ctx context.Context, workspace string, id scans.ScanID) (*analyst.Analysis, error) {
	scan, err := s.scans.Get(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	if !scan.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: scan is %s", ai.ErrNothingToAnalyze, scan.Status)
	}
	fs, err := s.findings.ListByScan(ctx, workspace, string(id))
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}

	d := BuildDigest(scan, fs)
	result, err := s.client.Analyze(ctx, d)
	if err != nil {
		return nil, err
	}

	a := &analyst.Analysis{
		ID:          analyst.AnalysisID(uuid.NewString()),
		WorkspaceID: workspace,
		ScanID:      string(id),
		Model:       s.client.Model(),
		Result:      result,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.analyses.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	s.log.Info("scan analyzed", logging.Workspace(workspace), logging.ScanID(string(id)), zap.String("model", a.Model))
	return a, nil
}

func (s *Service) ListAnalyses(ctx context.Context, workspace string, page, pageSize int) ([]*analyst.Analysis, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.analyses.Paginate(ctx, workspace, page, pageSize)
}

func (s *Service) Latest(ctx context.Context, workspace, scanID string) (*analyst.Analysis, error) {
	a, err := s.analyses.LatestByScan(ctx, workspace, scanID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, scans.ErrNotFound
	}
	return a, nil
}

// BuildDigest strips a scan down to what the analyzer needs. The target
// value itself is never sent.
func BuildDigest(scan *scans.Scan, fs []findings.Finding) ai.Digest {
	d := ai.Digest{
		ScanID:     string(scan.ID),
		TargetType: string(scan.TargetType),
		Counts: map[string]int{
			"high":   scan.Counts.High,
			"medium": scan.Counts.Medium,
			"low":    scan.Counts.Low,
			"info":   scan.Counts.Info,
			"total":  scan.Counts.Total,
		},
	}
	if scan.PrivacyScore != nil {
		d.PrivacyScore = *scan.PrivacyScore
	} else {
		d.PrivacyScore = scan.Counts.PrivacyScore()
	}

	sorted := append([]findings.Finding(nil), fs...)
	findings.Sort(sorted)
	for _, f := range sorted {
		if f.Kind == findings.KindNoHits {
			continue
		}
		if len(d.Findings) == maxDigestItems {
			break
		}
		v := findings.ToView(f)
		d.Findings = append(d.Findings, ai.DigestItem{
			Provider: f.Provider,
			Kind:     f.Kind,
			Severity: string(f.Severity),
			Site:     v.Site,
			URL:      redact(v.URL, scan.TargetValue),
		})
	}
	return d
}

func redact(url, target string) string {
	if target == "" || url == "" {
		return url
	}
	if i := strings.Index(strings.ToLower(url), strings.ToLower(target)); i >= 0 {
		return url[:i] + "[target]" + url[i+len(target):]
	}
	return url
}
