package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/config"
)

// Index answers "is this the first time we see this event id?". Must be safe
// for concurrent use.
type Index interface {
	// FirstSeen marks id as seen and reports whether this observation was
	// the first one.
	FirstSeen(ctx context.Context, id string) (bool, error)
}

// ValkeyIndex is the Valkey/Redis-backed dedup index. SETNX with a TTL: the
// first writer wins, later appends of the same id read it as a duplicate.
// The TTL bounds memory; it only needs to outlive the sources' replay
// horizon, the store's replacing engine catches anything older.
type ValkeyIndex struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewValkeyIndex connects to Valkey and verifies the connection.
func NewValkeyIndex(ctx context.Context, cfg config.Valkey, log *zap.Logger) (*ValkeyIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	log.Info("Valkey dedup index connected",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port))

	return &ValkeyIndex{
		client: client,
		ttl:    time.Duration(cfg.DedupTTLHours) * time.Hour,
		log:    log,
	}, nil
}

// FirstSeen marks id as seen via SETNX.
func (i *ValkeyIndex) FirstSeen(ctx context.Context, id string) (bool, error) {
	first, err := i.client.SetNX(ctx, "signal:event:"+id, 1, i.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup index: %w", err)
	}
	return first, nil
}

// Close releases the underlying connection.
func (i *ValkeyIndex) Close() error {
	return i.client.Close()
}
