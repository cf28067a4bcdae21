package progress

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/application"
	domain "github.com/bryanwahyu/footprint/internal/domain/progress"
	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/logging"
)

// Relay owns the progress state of in-flight scans. Every accepted change is
// written to the store and published on the scan channel. Storage and publish
// failures are logged, never returned: progress must not fail a scan.
type Relay struct {
	Store     domain.Store
	Publisher domain.Publisher
	Clock     application.Clock
	Log       *zap.Logger

	mu     sync.Mutex
	states map[string]*domain.State
}

func NewRelay(store domain.Store, pub domain.Publisher, clock application.Clock, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{Store: store, Publisher: pub, Clock: clock, Log: log, states: map[string]*domain.State{}}
}

// Begin registers a scan with its provider list.
func (r *Relay) Begin(ctx context.Context, scanID string, providerIDs []string) {
	r.mu.Lock()
	st := domain.NewState(scanID, providerIDs, r.Clock.Now())
	r.states[scanID] = st
	snap := st.Snapshot()
	r.mu.Unlock()

	r.emit(ctx, domain.Update{Type: domain.EventProviderUpdate, ScanID: scanID, Snapshot: snap})
}

func (r *Relay) ProviderStarted(ctx context.Context, scanID, provider string) {
	r.apply(ctx, scanID, func(st *domain.State) (domain.Update, bool) {
		if !st.ProviderRunning(provider, r.Clock.Now()) {
			return domain.Update{}, false
		}
		return domain.Update{
			Type:           domain.EventProviderUpdate,
			Provider:       provider,
			ProviderStatus: providers.StatusRunning,
		}, true
	})
}

func (r *Relay) ProviderFinished(ctx context.Context, scanID, provider string, status providers.Status, results int) {
	r.apply(ctx, scanID, func(st *domain.State) (domain.Update, bool) {
		if !st.ProviderDone(provider, status, results, r.Clock.Now()) {
			return domain.Update{}, false
		}
		return domain.Update{
			Type:           domain.EventProviderUpdate,
			Provider:       provider,
			ProviderStatus: status,
			ResultCount:    results,
		}, true
	})
}

// Finish publishes scan_complete and forgets the scan.
func (r *Relay) Finish(ctx context.Context, scanID string, status scans.Status, findings int, message string) {
	r.mu.Lock()
	st, ok := r.states[scanID]
	if !ok {
		// not running here: cancelled while queued, or already finished
		st = r.restore(ctx, scanID)
	}
	changed := st.Finish(status, findings, message, r.Clock.Now())
	snap := st.Snapshot()
	delete(r.states, scanID)
	r.mu.Unlock()

	if changed {
		r.emit(ctx, domain.Update{Type: domain.EventScanComplete, ScanID: scanID, Snapshot: snap})
	}
}

// Snapshot returns the live state when the scan runs here, otherwise the stored row.
func (r *Relay) Snapshot(ctx context.Context, scanID string) (*domain.Snapshot, error) {
	r.mu.Lock()
	if st, ok := r.states[scanID]; ok {
		snap := st.Snapshot()
		r.mu.Unlock()
		return &snap, nil
	}
	r.mu.Unlock()
	return r.Store.Get(ctx, scanID)
}

func (r *Relay) restore(ctx context.Context, scanID string) *domain.State {
	if r.Store != nil {
		snap, err := r.Store.Get(ctx, scanID)
		if err == nil && snap != nil {
			return domain.Restore(*snap)
		}
	}
	return domain.NewState(scanID, nil, r.Clock.Now())
}

func (r *Relay) apply(ctx context.Context, scanID string, fn func(*domain.State) (domain.Update, bool)) {
	r.mu.Lock()
	st, ok := r.states[scanID]
	if !ok {
		r.mu.Unlock()
		return
	}
	u, changed := fn(st)
	snap := st.Snapshot()
	r.mu.Unlock()

	if !changed {
		return
	}
	u.ScanID = scanID
	u.Snapshot = snap
	r.emit(ctx, u)
}

func (r *Relay) emit(ctx context.Context, u domain.Update) {
	// detached so a cancelled scan still records its final state
	ctx = context.WithoutCancel(ctx)
	if r.Store != nil {
		if err := r.Store.Upsert(ctx, u.Snapshot); err != nil {
			r.Log.Warn("progress upsert failed", logging.ScanID(u.ScanID), zap.Error(err))
		}
	}
	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, u); err != nil {
			r.Log.Warn("progress publish failed", logging.ScanID(u.ScanID), zap.Error(err))
		}
	}
}
