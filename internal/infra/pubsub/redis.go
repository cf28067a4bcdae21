package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/domain/progress"
)

// Redis relays progress updates across API instances over redis pub/sub.
type Redis struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedis(client *redis.Client, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, log: log}
}

func (b *Redis) Publish(ctx context.Context, u progress.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	return b.client.Publish(ctx, progress.Channel(u.ScanID), data).Err()
}

func (b *Redis) Subscribe(ctx context.Context, scanID string) (<-chan progress.Update, func(), error) {
	sub := b.client.Subscribe(ctx, progress.Channel(scanID))
	// tunggu konfirmasi subscribe supaya update berikutnya tidak hilang
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", scanID, err)
	}

	out := make(chan progress.Update, bufferSize)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u progress.Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					b.log.Warn("drop malformed progress update", zap.String("scan_id", scanID), zap.Error(err))
					continue
				}
				select {
				case out <- u:
				default:
					b.log.Warn("slow progress subscriber, update dropped", zap.String("scan_id", scanID))
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}
