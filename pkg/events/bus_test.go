package events

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewBus(rdb), mr
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	bus, _ := testBus(t)
	ctx := context.Background()

	ev := ActivityCreated{
		Envelope:       NewEnvelope(TypeActivityCreated),
		ActivityDataID: 7,
		FacilityID:     3,
		Quantity:       1500,
		Unit:           "kWh",
	}
	require.NoError(t, bus.Publish(ctx, QueueIngestion, ev))

	depth, err := bus.QueueDepth(ctx, QueueIngestion)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	payload, err := bus.Consume(ctx, QueueIngestion, time.Second)
	require.NoError(t, err)
	require.NotNil(t, payload)

	var got ActivityCreated
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, int64(7), got.ActivityDataID)
}

func TestConsumePreservesPublishOrder(t *testing.T) {
	bus, _ := testBus(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ev := NewEnvelope(TypeAnalyticsRefresh)
		ev.Attempt = i
		require.NoError(t, bus.Publish(ctx, QueueAnalytics, ev))
	}
	for i := 1; i <= 3; i++ {
		payload, err := bus.Consume(ctx, QueueAnalytics, time.Second)
		require.NoError(t, err)
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		assert.Equal(t, i, env.Attempt)
	}
}

func TestPumpDelayedMovesOnlyDueEntries(t *testing.T) {
	bus, mr := testBus(t)
	ctx := context.Background()

	require.NoError(t, bus.PublishDelayed(ctx, QueueReports, NewEnvelope(TypeReportRequested), time.Minute))

	moved, err := bus.PumpDelayed(ctx, QueueReports)
	require.NoError(t, err)
	assert.Zero(t, moved, "nothing is due yet")

	depth, err := bus.QueueDepth(ctx, QueueReports)
	require.NoError(t, err)
	assert.Zero(t, depth)

	// miniredis does not advance wall time, so rewrite the score to the past.
	members, err := redis.NewClient(&redis.Options{Addr: mr.Addr()}).
		ZRange(ctx, QueueReports+":delayed", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)
	mr.ZAdd(QueueReports+":delayed", float64(time.Now().Add(-time.Second).UnixMilli()), members[0])

	moved, err = bus.PumpDelayed(ctx, QueueReports)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	depth, err = bus.QueueDepth(ctx, QueueReports)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestConsumeTimeoutReturnsNil(t *testing.T) {
	bus, _ := testBus(t)
	payload, err := bus.Consume(context.Background(), QueueIngestion, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestDeadLetterOf(t *testing.T) {
	dl := DeadLetterOf(TypeReportRequested, []byte(`{"event_id":"abc"}`), assert.AnError)
	assert.Equal(t, TypeReportRequested, dl.FailedTaskName)
	assert.Equal(t, `{"event_id":"abc"}`, dl.OriginalEvent)
	assert.Equal(t, assert.AnError.Error(), dl.ErrorMessage)
}

func TestRedisLockerClaims(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(rdb)
	ctx := context.Background()

	ok, err := locker.AcquireOnce(ctx, "ev-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locker.AcquireOnce(ctx, "ev-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same id must fail")

	require.NoError(t, locker.Release(ctx, "ev-1"))
	ok, err = locker.AcquireOnce(ctx, "ev-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "released claims can be retaken")
}

func TestRedisLockerClaimExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(rdb)
	ctx := context.Background()

	ok, err := locker.AcquireOnce(ctx, "ev-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = locker.AcquireOnce(ctx, "ev-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteLocker(t *testing.T) {
	locker, err := NewSQLiteLocker(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })
	ctx := context.Background()

	ok, err := locker.AcquireOnce(ctx, "ev-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locker.AcquireOnce(ctx, "ev-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "ev-1"))
	ok, err = locker.AcquireOnce(ctx, "ev-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteLockerSweepsExpiredClaims(t *testing.T) {
	locker, err := NewSQLiteLocker(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })
	ctx := context.Background()

	ok, err := locker.AcquireOnce(ctx, "ev-1", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired claim is swept on the next acquire.
	ok, err = locker.AcquireOnce(ctx, "ev-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
