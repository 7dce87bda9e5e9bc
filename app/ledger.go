package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/config"
)

// EventLedger remembers billing event ids that were fully processed so a
// redelivery can be acknowledged without touching the stores again.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

const ledgerKeyPrefix = "stripe:event:"

type RedisLedger struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLedger(ctx context.Context, cfg config.RedisConfig) (*RedisLedger, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisLedger{rdb: rdb, ttl: cfg.LedgerTTL}, nil
}

func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := l.rdb.Get(ctx, ledgerKeyPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *RedisLedger) Mark(ctx context.Context, eventID string) error {
	return l.rdb.Set(ctx, ledgerKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), l.ttl).Err()
}

func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}

// MemoryLedger is used when no Redis is configured. It only deduplicates
// within one process.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

func (l *MemoryLedger) Seen(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[eventID]
	return ok, nil
}

func (l *MemoryLedger) Mark(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[eventID] = struct{}{}
	return nil
}
