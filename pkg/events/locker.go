package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// Locker is the idempotency barrier. AcquireOnce claims an event id before
// processing; a false return means another worker already processed or is
// processing it. Release frees the claim so a failed event can be retried.
type Locker interface {
	AcquireOnce(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, eventID string) error
}

const processedKeyPrefix = "processed_event:"

// RedisLocker claims event ids with SET NX EX, the shared barrier for
// multi-node deployments.
type RedisLocker struct {
	rdb redis.UniversalClient
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) AcquireOnce(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, processedKeyPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: acquire %s: %w", eventID, err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, eventID string) error {
	if err := l.rdb.Del(ctx, processedKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("events: release %s: %w", eventID, err)
	}
	return nil
}

// SQLiteLocker is the single-node substitute: claims live in a local file so
// a Redis outage does not take idempotency down with it. Expired claims are
// cleared lazily on the next acquire.
type SQLiteLocker struct {
	db *sql.DB
}

func NewSQLiteLocker(path string) (*SQLiteLocker, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("events: open idempotency store: %w", err)
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("events: init idempotency store: %w", err)
	}
	return &SQLiteLocker{db: db}, nil
}

func (l *SQLiteLocker) AcquireOnce(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE expires_at <= ?`, now); err != nil {
		return false, fmt.Errorf("events: sweep expired claims: %w", err)
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, expires_at) VALUES (?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, now+int64(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("events: acquire %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("events: acquire %s: %w", eventID, err)
	}
	return n == 1, nil
}

func (l *SQLiteLocker) Release(ctx context.Context, eventID string) error {
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("events: release %s: %w", eventID, err)
	}
	return nil
}

func (l *SQLiteLocker) Close() error { return l.db.Close() }
