// Package worker runs the queue consumers: it claims each event exactly once,
// dispatches to the registered handler and drives the retry and dead-letter
// policy. Handlers stay oblivious to delivery mechanics; they receive a
// payload and return an error.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/observability"
)

// claimTTL is how long a processed event id stays claimed. A redelivery
// inside the window is acknowledged as a duplicate without reprocessing.
const claimTTL = time.Hour

const consumeTimeout = 5 * time.Second

// Handler processes one event payload.
type Handler func(ctx context.Context, payload []byte) error

// TerminalHook runs once after retries are exhausted, right before the event
// dead-letters. The report worker uses it to mark the row failed.
type TerminalHook func(ctx context.Context, payload []byte, cause error)

// Runtime consumes queues and dispatches events by type.
type Runtime struct {
	bus        *events.Bus
	locker     events.Locker
	metrics    *observability.Metrics
	log        *slog.Logger
	maxRetries int
	backoffs   map[string]time.Duration
	defBackoff time.Duration

	handlers map[string]Handler
	terminal map[string]TerminalHook
}

func NewRuntime(bus *events.Bus, locker events.Locker, metrics *observability.Metrics, maxRetries int, defaultBackoff time.Duration, log *slog.Logger) *Runtime {
	return &Runtime{
		bus:        bus,
		locker:     locker,
		metrics:    metrics,
		log:        log,
		maxRetries: maxRetries,
		backoffs:   make(map[string]time.Duration),
		defBackoff: defaultBackoff,
		handlers:   make(map[string]Handler),
		terminal:   make(map[string]TerminalHook),
	}
}

// Register binds a handler to an event type.
func (r *Runtime) Register(eventType string, h Handler) {
	r.handlers[eventType] = h
}

// OnTerminalFailure binds a hook to run before an event type dead-letters.
func (r *Runtime) OnTerminalFailure(eventType string, hook TerminalHook) {
	r.terminal[eventType] = hook
}

// SetBackoff overrides the redelivery delay for one event type.
func (r *Runtime) SetBackoff(eventType string, d time.Duration) {
	r.backoffs[eventType] = d
}

func (r *Runtime) backoffFor(eventType string) time.Duration {
	if d, ok := r.backoffs[eventType]; ok {
		return d
	}
	return r.defBackoff
}

// Run consumes the queues until the context is canceled. One goroutine per
// queue; messages on one queue are processed in order.
func (r *Runtime) Run(ctx context.Context, queues ...string) {
	var wg sync.WaitGroup
	for _, queue := range queues {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			r.consumeLoop(ctx, q)
		}(queue)
	}
	wg.Wait()
}

func (r *Runtime) consumeLoop(ctx context.Context, queue string) {
	r.log.Info("consumer started", "queue", queue)
	for {
		if ctx.Err() != nil {
			r.log.Info("consumer stopped", "queue", queue)
			return
		}
		payload, err := r.bus.Consume(ctx, queue, consumeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.log.Error("consume failed", "queue", queue, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if payload == nil {
			continue
		}
		r.Dispatch(ctx, queue, payload)
	}
}

// Dispatch claims, handles and, on failure, retries or dead-letters one
// message.
func (r *Runtime) Dispatch(ctx context.Context, queue string, payload []byte) {
	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.log.Error("undecodable message", "queue", queue, "error", err)
		r.deadLetter(ctx, queue, "decode", payload, err)
		return
	}

	handler, ok := r.handlers[env.EventType]
	if !ok {
		err := fmt.Errorf("worker: no handler for event type %q", env.EventType)
		r.log.Error("unroutable message", "queue", queue, "event_type", env.EventType)
		r.deadLetter(ctx, queue, env.EventType, payload, err)
		return
	}

	claimed, err := r.locker.AcquireOnce(ctx, env.EventID, claimTTL)
	if err != nil {
		// The claim store is down. Requeue rather than risk double
		// processing with no barrier.
		r.log.Error("idempotency claim failed", "event_id", env.EventID, "error", err)
		r.requeue(ctx, queue, payload, env)
		return
	}
	if !claimed {
		r.metrics.EventsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
		r.log.Info("duplicate event skipped", "event_id", env.EventID, "event_type", env.EventType)
		return
	}

	if err := handler(ctx, payload); err != nil {
		// Free the claim so the redelivery is processable.
		if relErr := r.locker.Release(ctx, env.EventID); relErr != nil {
			r.log.Error("claim release failed", "event_id", env.EventID, "error", relErr)
		}
		r.retryOrBury(ctx, queue, payload, env, err)
		return
	}
	r.metrics.EventsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

func (r *Runtime) retryOrBury(ctx context.Context, queue string, payload []byte, env events.Envelope, cause error) {
	if env.Attempt+1 > r.maxRetries {
		r.log.Error("event exhausted retries",
			"event_id", env.EventID, "event_type", env.EventType, "attempts", env.Attempt, "error", cause)
		if hook, ok := r.terminal[env.EventType]; ok {
			hook(ctx, payload, cause)
		}
		r.deadLetter(ctx, queue, env.EventType, payload, cause)
		return
	}

	bumped, err := bumpAttempt(payload)
	if err != nil {
		r.log.Error("attempt bump failed", "event_id", env.EventID, "error", err)
		r.deadLetter(ctx, queue, env.EventType, payload, err)
		return
	}
	backoff := r.backoffFor(env.EventType)
	if err := r.bus.PublishDelayed(ctx, queue, json.RawMessage(bumped), backoff); err != nil {
		r.log.Error("retry scheduling failed", "event_id", env.EventID, "error", err)
		return
	}
	r.log.Warn("event scheduled for retry",
		"event_id", env.EventID, "event_type", env.EventType,
		"attempt", env.Attempt+1, "backoff", backoff, "error", cause)
}

// requeue puts a message back with a short delay without counting an attempt,
// used when the claim store itself failed.
func (r *Runtime) requeue(ctx context.Context, queue string, payload []byte, env events.Envelope) {
	if err := r.bus.PublishDelayed(ctx, queue, json.RawMessage(payload), consumeTimeout); err != nil {
		r.log.Error("requeue failed", "event_id", env.EventID, "error", err)
	}
}

func (r *Runtime) deadLetter(ctx context.Context, queue, taskName string, payload []byte, cause error) {
	dl := events.DeadLetterOf(taskName, payload, cause)
	if err := r.bus.Publish(ctx, events.QueueDeadLetter, dl); err != nil {
		r.log.Error("dead letter publish failed", "queue", queue, "error", err)
		return
	}
	r.metrics.EventsDead.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

// bumpAttempt increments the attempt counter in the raw payload, preserving
// every other field of the concrete event.
func bumpAttempt(payload []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("worker: decode for retry: %w", err)
	}
	attempt, _ := m["attempt"].(float64)
	m["attempt"] = int(attempt) + 1
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("worker: encode for retry: %w", err)
	}
	return out, nil
}
