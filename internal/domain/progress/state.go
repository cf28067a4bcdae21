package progress

import (
	"sort"
	"time"

	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

// State is the progress state machine of one scan. Provider states only move
// forward (pending, running, terminal) and nothing changes once the scan is terminal.
// State is not safe for concurrent use.
type State struct {
	snap Snapshot
}

// NewState starts a scan with every provider pending.
func NewState(scanID string, providerIDs []string, now time.Time) *State {
	ps := make(map[string]providers.Status, len(providerIDs))
	for _, p := range providerIDs {
		ps[p] = providers.StatusPending
	}
	return &State{snap: Snapshot{
		ScanID:    scanID,
		Status:    scans.StatusRunning,
		Total:     len(ps),
		Current:   []string{},
		Providers: ps,
		Message:   "Scan started",
		Version:   1,
		UpdatedAt: now,
	}}
}

// Restore rebuilds a State from a persisted snapshot.
func Restore(s Snapshot) *State {
	if s.Providers == nil {
		s.Providers = map[string]providers.Status{}
	}
	return &State{snap: s}
}

// Snapshot returns a copy of the current snapshot.
func (s *State) Snapshot() Snapshot {
	out := s.snap
	out.Current = append([]string{}, s.snap.Current...)
	out.Providers = make(map[string]providers.Status, len(s.snap.Providers))
	for k, v := range s.snap.Providers {
		out.Providers[k] = v
	}
	return out
}

func (s *State) Terminal() bool { return s.snap.Status.IsTerminal() }

// ProviderRunning marks a pending provider as running.
func (s *State) ProviderRunning(provider string, now time.Time) bool {
	if s.Terminal() {
		return false
	}
	cur, ok := s.snap.Providers[provider]
	if ok && cur != providers.StatusPending {
		return false
	}
	if !ok {
		s.snap.Total++
	}
	s.snap.Providers[provider] = providers.StatusRunning
	s.refresh(now)
	s.snap.Message = "Running " + provider
	return true
}

// ProviderDone records a terminal provider status. Repeats are ignored.
func (s *State) ProviderDone(provider string, st providers.Status, results int, now time.Time) bool {
	if s.Terminal() || !st.IsTerminal() {
		return false
	}
	cur, ok := s.snap.Providers[provider]
	if ok && cur.IsTerminal() {
		return false
	}
	if !ok {
		s.snap.Total++
	}
	s.snap.Providers[provider] = st
	s.snap.Completed++
	if st == providers.StatusFailed {
		s.snap.Failed++
	}
	s.snap.FindingsCount += results
	s.refresh(now)
	s.snap.Message = provider + " " + string(st)
	return true
}

// Finish moves the scan to a terminal status. Only the first call has effect.
func (s *State) Finish(status scans.Status, findings int, message string, now time.Time) bool {
	if s.Terminal() || !status.IsTerminal() {
		return false
	}
	s.snap.Status = status
	s.snap.FindingsCount = findings
	s.snap.Current = []string{}
	s.snap.Error = status != scans.StatusFinished
	if status == scans.StatusFinished {
		s.snap.Percent = 100
	}
	s.snap.Message = message
	s.snap.Version++
	s.snap.UpdatedAt = now
	return true
}

func (s *State) refresh(now time.Time) {
	cur := []string{}
	for p, st := range s.snap.Providers {
		if st == providers.StatusRunning {
			cur = append(cur, p)
		}
	}
	sort.Strings(cur)
	s.snap.Current = cur
	if s.snap.Total > 0 {
		pct := s.snap.Completed * 100 / s.snap.Total
		// 100 is reserved for a finished scan
		if pct > 99 {
			pct = 99
		}
		if pct > s.snap.Percent {
			s.snap.Percent = pct
		}
	}
	s.snap.Version++
	s.snap.UpdatedAt = now
}
