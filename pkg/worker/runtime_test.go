package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/observability"
)

type testRig struct {
	rt  *Runtime
	bus *events.Bus
	mr  *miniredis.Miniredis
	rdb *redis.Client
}

func newRig(t *testing.T, maxRetries int) *testRig {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := events.NewBus(rdb)
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := NewRuntime(bus, events.NewRedisLocker(rdb), metrics, maxRetries, time.Minute, log)
	return &testRig{rt: rt, bus: bus, mr: mr, rdb: rdb}
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatchCallsHandlerOnce(t *testing.T) {
	rig := newRig(t, 3)
	ctx := context.Background()

	calls := 0
	rig.rt.Register(events.TypeActivityCreated, func(ctx context.Context, payload []byte) error {
		calls++
		return nil
	})

	ev := events.ActivityCreated{Envelope: events.NewEnvelope(events.TypeActivityCreated), ActivityDataID: 1}
	payload := marshal(t, ev)

	rig.rt.Dispatch(ctx, events.QueueIngestion, payload)
	assert.Equal(t, 1, calls)

	// A redelivery of the same event id is acknowledged without reprocessing.
	rig.rt.Dispatch(ctx, events.QueueIngestion, payload)
	assert.Equal(t, 1, calls)
}

func TestDispatchSchedulesRetryWithBumpedAttempt(t *testing.T) {
	rig := newRig(t, 3)
	ctx := context.Background()

	rig.rt.Register(events.TypeActivityCreated, func(ctx context.Context, payload []byte) error {
		return errors.New("provider down")
	})

	ev := events.ActivityCreated{Envelope: events.NewEnvelope(events.TypeActivityCreated), ActivityDataID: 9, Quantity: 42}
	rig.rt.Dispatch(ctx, events.QueueIngestion, marshal(t, ev))

	delayed, err := rig.rdb.ZRange(ctx, events.QueueIngestion+":delayed", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, delayed, 1)

	var retried events.ActivityCreated
	require.NoError(t, json.Unmarshal([]byte(delayed[0]), &retried))
	assert.Equal(t, 1, retried.Attempt)
	assert.Equal(t, ev.EventID, retried.EventID, "retry keeps the idempotency key")
	assert.Equal(t, int64(9), retried.ActivityDataID, "retry keeps the concrete fields")

	// The claim was released so the retry is processable.
	claimed, err := rig.rt.locker.AcquireOnce(ctx, ev.EventID, time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDispatchDeadLettersAfterMaxRetries(t *testing.T) {
	rig := newRig(t, 2)
	ctx := context.Background()

	cause := errors.New("still broken")
	rig.rt.Register(events.TypeReportRequested, func(ctx context.Context, payload []byte) error {
		return cause
	})

	var hookCause error
	rig.rt.OnTerminalFailure(events.TypeReportRequested, func(ctx context.Context, payload []byte, err error) {
		hookCause = err
	})

	ev := events.ReportRequested{Envelope: events.NewEnvelope(events.TypeReportRequested), ReportID: 5}
	ev.Attempt = 2
	rig.rt.Dispatch(ctx, events.QueueReports, marshal(t, ev))

	assert.Equal(t, cause, hookCause, "terminal hook fires before dead-lettering")

	payload, err := rig.bus.Consume(ctx, events.QueueDeadLetter, time.Second)
	require.NoError(t, err)
	require.NotNil(t, payload)

	var dl events.DeadLetter
	require.NoError(t, json.Unmarshal(payload, &dl))
	assert.Equal(t, events.TypeReportRequested, dl.FailedTaskName)
	assert.Equal(t, cause.Error(), dl.ErrorMessage)
	assert.Contains(t, dl.OriginalEvent, ev.EventID)

	delayed, err := rig.rdb.ZCard(ctx, events.QueueReports+":delayed").Result()
	require.NoError(t, err)
	assert.Zero(t, delayed, "exhausted events are not rescheduled")
}

func TestDispatchDeadLettersUnroutableType(t *testing.T) {
	rig := newRig(t, 3)
	ctx := context.Background()

	env := events.NewEnvelope("nobody.handles.this")
	rig.rt.Dispatch(ctx, events.QueueIngestion, marshal(t, env))

	payload, err := rig.bus.Consume(ctx, events.QueueDeadLetter, time.Second)
	require.NoError(t, err)
	require.NotNil(t, payload)

	var dl events.DeadLetter
	require.NoError(t, json.Unmarshal(payload, &dl))
	assert.Equal(t, "nobody.handles.this", dl.FailedTaskName)
}

func TestDispatchDeadLettersUndecodablePayload(t *testing.T) {
	rig := newRig(t, 3)
	ctx := context.Background()

	rig.rt.Dispatch(ctx, events.QueueIngestion, []byte("{not json"))

	payload, err := rig.bus.Consume(ctx, events.QueueDeadLetter, time.Second)
	require.NoError(t, err)
	require.NotNil(t, payload)

	var dl events.DeadLetter
	require.NoError(t, json.Unmarshal(payload, &dl))
	assert.Equal(t, "decode", dl.FailedTaskName)
}

func TestBackoffOverridePerEventType(t *testing.T) {
	rig := newRig(t, 3)
	rig.rt.SetBackoff(events.TypeROIRequested, 10*time.Minute)
	assert.Equal(t, 10*time.Minute, rig.rt.backoffFor(events.TypeROIRequested))
	assert.Equal(t, time.Minute, rig.rt.backoffFor(events.TypeActivityCreated))
}

func TestBumpAttempt(t *testing.T) {
	out, err := bumpAttempt([]byte(`{"event_id":"x","attempt":2,"report_id":7}`))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, float64(3), m["attempt"])
	assert.Equal(t, float64(7), m["report_id"])
}
