package pubsub

import (
	"context"
	"sync"

	"github.com/bryanwahyu/footprint/internal/domain/progress"
)

const bufferSize = 64

// Local is an in-process broker used when redis is not configured.
// Slow subscribers lose updates instead of blocking the publisher; the
// snapshot carried by the next update supersedes anything missed.
type Local struct {
	mu   sync.RWMutex
	subs map[string]map[*localSub]struct{}
}

type localSub struct {
	ch   chan progress.Update
	once sync.Once
}

func NewLocal() *Local {
	return &Local{subs: map[string]map[*localSub]struct{}{}}
}

func (b *Local) Publish(_ context.Context, u progress.Update) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[u.ScanID] {
		select {
		case s.ch <- u:
		default:
		}
	}
	return nil
}

func (b *Local) Subscribe(ctx context.Context, scanID string) (<-chan progress.Update, func(), error) {
	s := &localSub{ch: make(chan progress.Update, bufferSize)}

	b.mu.Lock()
	if b.subs[scanID] == nil {
		b.subs[scanID] = map[*localSub]struct{}{}
	}
	b.subs[scanID][s] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[scanID], s)
			if len(b.subs[scanID]) == 0 {
				delete(b.subs, scanID)
			}
			b.mu.Unlock()
			close(s.ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return s.ch, cancel, nil
}

// Subscribers returns the number of live subscriptions for a scan.
func (b *Local) Subscribers(scanID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[scanID])
}
