package progress

import "context"

// Store persists the latest snapshot, last write wins.
type Store interface {
	Upsert(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, scanID string) (*Snapshot, error)
}

type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Subscriber delivers updates for one scan until the returned cancel is called.
type Subscriber interface {
	Subscribe(ctx context.Context, scanID string) (<-chan Update, func(), error)
}
