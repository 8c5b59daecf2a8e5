// Package bulk drains queued numbers through the call initiator one at a time.
package bulk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/service/call"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

// Entry is one number waiting to be dialed.
type Entry = domain.BatchEntry

// Job is the batch currently being drained.
type Job struct {
	ID        string    `json:"jobId"`
	Source    string    `json:"source"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"startedAt"`
}

// Status is a point-in-time view of the processor.
type Status struct {
	IsRunning   bool  `json:"isRunning"`
	QueueLength int   `json:"queueLength"`
	DelayMs     int64 `json:"delayMs"`
	Job         *Job  `json:"currentJob,omitempty"`
}

// Progress is published after every processed entry.
type Progress struct {
	Job
	Number  string `json:"number"`
	LocalID string `json:"localId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Summary is published when a batch finishes or is stopped.
type Summary struct {
	Job
	Stopped    bool      `json:"stopped"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Initiator places a single call.
type Initiator interface {
	InitiateCall(ctx context.Context, input call.InitiateCallInput) (*domain.Call, error)
}

// Metrics receives batch observations.
type Metrics interface {
	BatchStarted()
	BatchFinished(success, failed int, stopped bool)
	SetQueueLength(n int)
}

// Options tune a Processor.
type Options struct {
	Delay    time.Duration
	MaxDelay time.Duration
	NewJobID func() string

	// BaseContext bounds batches started by Kick; cancelling it stops them.
	BaseContext context.Context
}

// Processor owns the pending queue and the single running batch.
type Processor struct {
	initiator Initiator
	publisher events.Publisher
	metrics   Metrics
	logger    *logger.Logger
	tracer    trace.Tracer
	maxDelay  time.Duration
	newJobID  func() string
	base      context.Context

	mu       sync.Mutex
	queue    []Entry
	source   string
	delay    time.Duration
	running  bool
	stopping bool
	stopCh   chan struct{}
	job      *Job
}

// NewProcessor builds an idle processor.
func NewProcessor(initiator Initiator, publisher events.Publisher, metrics Metrics, lg *logger.Logger, opts Options) *Processor {
	if publisher == nil {
		publisher = events.Discard
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if lg == nil {
		lg = logger.NewNop()
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}
	if opts.NewJobID == nil {
		opts.NewJobID = func() string { return "job-" + uuid.NewString() }
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Processor{
		initiator: initiator,
		publisher: publisher,
		metrics:   metrics,
		logger:    lg.Named("bulk_processor"),
		tracer:    otel.Tracer("github.com/ProductBay/vynce/internal/service/bulk"),
		maxDelay:  opts.MaxDelay,
		newJobID:  opts.NewJobID,
		base:      opts.BaseContext,
		delay:     clampDelay(opts.Delay, opts.MaxDelay),
	}
}

// Enqueue appends entries to the pending queue and returns the new queue length.
func (p *Processor) Enqueue(source string, entries ...Entry) int {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.source = source
	}
	for _, e := range entries {
		p.queue = append(p.queue, Entry{Number: e.Number, Metadata: e.Metadata})
	}
	n := len(p.queue)
	p.mu.Unlock()

	p.metrics.SetQueueLength(n)
	return n
}

// Process drains the queue in the caller's goroutine. It returns immediately when a
// batch is already running or nothing is queued. Entries enqueued while a batch runs
// are drained as a follow-up batch before Process returns.
func (p *Processor) Process(ctx context.Context) {
	p.mu.Lock()
	if p.running || len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for {
		job, batch, stop, ok := p.nextBatch(ctx)
		if !ok {
			return
		}
		p.runBatch(ctx, job, batch, stop)
	}
}

// Kick drains the queue on a new goroutine bound to the base context. The returned
// channel closes when that drain returns.
func (p *Processor) Kick() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Process(p.base)
	}()
	return done
}

// nextBatch takes a copy of the queue and clears it, or marks the processor idle.
func (p *Processor) nextBatch(ctx context.Context) (*Job, []Entry, chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 || ctx.Err() != nil {
		p.queue = nil
		p.running = false
		p.stopping = false
		p.stopCh = nil
		p.job = nil
		p.metrics.SetQueueLength(0)
		return nil, nil, nil, false
	}

	batch := p.queue
	p.queue = nil
	p.stopping = false
	p.stopCh = make(chan struct{})
	p.job = &Job{
		ID:        p.newJobID(),
		Source:    p.source,
		Total:     len(batch),
		StartedAt: time.Now().UTC(),
	}
	p.metrics.SetQueueLength(0)
	return p.job, batch, p.stopCh, true
}

func (p *Processor) runBatch(ctx context.Context, job *Job, batch []Entry, stop <-chan struct{}) {
	ctx, span := p.tracer.Start(ctx, "bulk.batch", trace.WithAttributes(
		attribute.String("bulk.job_id", job.ID),
		attribute.Int("bulk.total", job.Total),
	))
	defer span.End()

	p.metrics.BatchStarted()
	p.publisher.Publish(events.BulkStatus, p.Status())
	p.logger.Info("bulk batch started",
		zap.String("job_id", job.ID), zap.String("source", job.Source), zap.Int("total", job.Total))

	stopped := false
	for i, entry := range batch {
		if isClosed(stop) || ctx.Err() != nil {
			stopped = true
			break
		}

		rec, err := p.initiator.InitiateCall(ctx, call.InitiateCallInput{
			Number:   entry.Number,
			Metadata: entry.Metadata,
			Type:     domain.CallTypeBulk,
			JobID:    job.ID,
		})

		progress := Progress{Number: entry.Number}
		if rec != nil {
			progress.LocalID = rec.LocalID
		}
		p.mu.Lock()
		job.Processed++
		if err != nil {
			job.Failed++
			progress.Error = err.Error()
		} else {
			job.Success++
		}
		progress.Job = *job
		last := i == len(batch)-1 && len(p.queue) == 0
		p.mu.Unlock()

		if err != nil {
			p.logger.Warn("bulk entry failed",
				zap.String("job_id", job.ID), zap.String("number", entry.Number), zap.Error(err))
		}
		p.publisher.Publish(events.BulkProgress, progress)

		if last {
			break
		}
		if !p.wait(ctx, stop) {
			stopped = i < len(batch)-1 || isClosed(stop)
			break
		}
	}

	p.mu.Lock()
	summary := Summary{Job: *job, Stopped: stopped, FinishedAt: time.Now().UTC()}
	p.mu.Unlock()

	p.metrics.BatchFinished(summary.Success, summary.Failed, stopped)
	span.SetAttributes(
		attribute.Int("bulk.success", summary.Success),
		attribute.Int("bulk.failed", summary.Failed),
		attribute.Bool("bulk.stopped", stopped),
	)
	p.logger.Info("bulk batch finished",
		zap.String("job_id", job.ID),
		zap.Int("processed", summary.Processed),
		zap.Int("success", summary.Success),
		zap.Int("failed", summary.Failed),
		zap.Bool("stopped", stopped))
	p.publisher.Publish(events.BulkComplete, summary)
}

// wait sleeps for the configured delay and reports false when interrupted.
func (p *Processor) wait(ctx context.Context, stop <-chan struct{}) bool {
	d := p.Delay()
	if d <= 0 {
		return !isClosed(stop) && ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// Stop discards pending entries and asks the running batch to end before its next
// entry. An in-flight placement is allowed to finish. It returns how many queued
// entries were dropped.
func (p *Processor) Stop() int {
	p.mu.Lock()
	cleared := len(p.queue)
	p.queue = nil
	wasRunning := p.running && !p.stopping && p.stopCh != nil
	if wasRunning {
		p.stopping = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.metrics.SetQueueLength(0)
	p.logger.Info("bulk stop requested", zap.Int("cleared", cleared), zap.Bool("was_running", wasRunning))
	p.publisher.Publish(events.BulkStatus, p.Status())
	return cleared
}

// Status reports whether a batch is running, the queue length and the current job.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		IsRunning:   p.running && !p.stopping,
		QueueLength: len(p.queue),
		DelayMs:     p.delay.Milliseconds(),
	}
	if p.job != nil {
		job := *p.job
		st.Job = &job
	}
	return st
}

// Delay returns the pause between calls.
func (p *Processor) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// SetDelay changes the pause between calls; it takes effect at the next wait.
func (p *Processor) SetDelay(d time.Duration) error {
	if d < 0 || d > p.maxDelay {
		return apperrors.Validation("bulk delay must be between 0 and %d ms", p.maxDelay.Milliseconds())
	}
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
	return nil
}

func clampDelay(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > max {
		return max
	}
	return d
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

type nopMetrics struct{}

func (nopMetrics) BatchStarted()                {}
func (nopMetrics) BatchFinished(int, int, bool) {}
func (nopMetrics) SetQueueLength(int)           {}
