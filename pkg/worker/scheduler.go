package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/observability"
)

// Job is one periodic task.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler runs periodic jobs on independent tickers. A failing job logs and
// waits for its next tick; it never stops the others.
type Scheduler struct {
	jobs []Job
	log  *slog.Logger
}

func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Add registers a job.
func (s *Scheduler) Add(name string, every time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Every: every, Run: run})
}

// Run blocks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Every)
	defer ticker.Stop()
	s.log.Info("periodic job scheduled", "job", j.Name, "every", j.Every)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started := time.Now()
			if err := j.Run(ctx); err != nil {
				s.log.Error("periodic job failed", "job", j.Name, "error", err)
				continue
			}
			s.log.Info("periodic job finished", "job", j.Name, "took", time.Since(started))
		}
	}
}

// PumpDelayedQueues moves due retries back onto the live queues and records
// queue depths. Registered on a short interval so backoffs land close to
// their due time.
func PumpDelayedQueues(bus *events.Bus, metrics *observability.Metrics, queues []string, log *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, q := range queues {
			moved, err := bus.PumpDelayed(ctx, q)
			if err != nil {
				return err
			}
			if moved > 0 {
				log.Info("delayed events requeued", "queue", q, "count", moved)
			}
			depth, err := bus.QueueDepth(ctx, q)
			if err != nil {
				return err
			}
			metrics.QueueDepth.Record(ctx, depth, metric.WithAttributes(attribute.String("queue", q)))
		}
		return nil
	}
}
