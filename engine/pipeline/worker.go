package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/metrics"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/natsutil"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/resilience"
)

const (
	// JobSubject is the NATS subject for quiz processing jobs.
	JobSubject = "quiz.process"
	// DLQSubject is the dead letter queue subject for jobs that kept failing.
	DLQSubject = "quiz.process.dlq"
	// MaxAttempts before a failing job goes to the DLQ.
	MaxAttempts = 3
	// RetryBackoff is the delay before a failed job is re-published.
	RetryBackoff = 5 * time.Minute
	// PostponeDelay is the wait before retrying a job parked on provider
	// rate limits. Postponed jobs do not consume an attempt.
	PostponeDelay = 5 * time.Minute
)

// dlqMessage is published to the DLQ when a job exhausts its attempts or
// fails a non-retryable way.
type dlqMessage struct {
	Job     domain.Job `json:"job"`
	Error   string     `json:"error"`
	Retries int        `json:"retries"`
}

// WorkerOpts tunes the consumer. Zero values pick the defaults:
// one job at a time, five job starts per minute.
type WorkerOpts struct {
	Concurrency int
	JobsPerMin  float64
	Metrics     *metrics.Registry
}

// Worker consumes jobs from NATS and runs them through the Processor.
type Worker struct {
	nc      *nats.Conn
	proc    *Processor
	log     *slog.Logger
	sem     chan struct{}
	limiter *resilience.Limiter
	depth   *metrics.Gauge
	delay   func(d time.Duration, f func()) // time.AfterFunc, overridable in tests
	publish func(ctx context.Context, subject string, v any) error
}

func NewWorker(nc *nats.Conn, proc *Processor, log *slog.Logger, opts WorkerOpts) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.JobsPerMin <= 0 {
		opts.JobsPerMin = 5
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		nc:      nc,
		proc:    proc,
		log:     log.With("component", "worker"),
		sem:     make(chan struct{}, opts.Concurrency),
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: opts.JobsPerMin / 60, Burst: 1}),
		delay:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		publish: func(ctx context.Context, subject string, v any) error {
			return natsutil.Publish(ctx, nc, subject, v)
		},
	}
	if opts.Metrics != nil {
		w.depth = opts.Metrics.Gauge("quiz_queue_depth", "Jobs received and not yet finished.")
	}
	return w
}

// Start subscribes to JobSubject. Each job runs on its own goroutine,
// gated by the concurrency semaphore and the job-start rate limit.
func (w *Worker) Start() (*nats.Subscription, error) {
	return natsutil.Subscribe(w.nc, JobSubject, func(ctx context.Context, job domain.Job) {
		if w.depth != nil {
			w.depth.Inc()
		}
		w.sem <- struct{}{}
		go func() {
			defer func() {
				<-w.sem
				if w.depth != nil {
					w.depth.Dec()
				}
			}()
			if err := w.limiter.Wait(ctx); err != nil {
				w.log.Warn("job start aborted", "job_id", job.ID, "error", err)
				return
			}
			w.handle(ctx, job)
		}()
	})
}

func (w *Worker) handle(ctx context.Context, job domain.Job) {
	if wait := time.Until(job.NotBefore); wait > 0 {
		w.requeueAfter(job, wait)
		return
	}

	err := w.proc.ProcessJob(ctx, job)
	switch {
	case err == nil:
		w.log.Info("job done", "job_id", job.ID, "quiz_id", job.QuizID)

	case errors.Is(err, domain.ErrPostponed):
		// Quota pressure is not the job's fault; retry later without
		// incrementing the attempt counter.
		job.NotBefore = time.Now().Add(PostponeDelay)
		w.requeueAfter(job, PostponeDelay)

	case domain.IsParser(err):
		// The document itself is bad. Retrying cannot help.
		w.toDLQ(job, err)

	default:
		job.Retries++
		if job.Retries >= MaxAttempts {
			w.toDLQ(job, err)
			return
		}
		w.log.Warn("job failed, scheduling retry",
			"job_id", job.ID, "retry", job.Retries, "error", err)
		w.requeueAfter(job, RetryBackoff)
	}
}

func (w *Worker) requeueAfter(job domain.Job, d time.Duration) {
	w.delay(d, func() {
		if err := w.publish(context.Background(), JobSubject, job); err != nil {
			w.log.Error("requeue publish failed", "job_id", job.ID, "error", err)
		}
	})
}

func (w *Worker) toDLQ(job domain.Job, cause error) {
	w.log.Error("job moved to DLQ", "job_id", job.ID, "quiz_id", job.QuizID, "error", cause)
	msg := dlqMessage{Job: job, Error: cause.Error(), Retries: job.Retries}
	if err := w.publish(context.Background(), DLQSubject, msg); err != nil {
		w.log.Error("DLQ publish failed", "job_id", job.ID, "error", err)
	}
}
