// Package scheduler holds uploaded bulk batches until their start time and releases
// them into the bulk processor inside the operator's calling window.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/repository"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

// Queue accepts released batches for dialing.
type Queue interface {
	Enqueue(source string, entries ...domain.BatchEntry) int
	Kick() <-chan struct{}
}

// Settings exposes the operator's time zone.
type Settings interface {
	Current() domain.Settings
}

// Options tune a Scheduler.
type Options struct {
	TickInterval time.Duration
	MaxBatchSize int
	Window       CallingWindow
	Now          func() time.Time
}

// Scheduler periodically moves due batches into the bulk queue.
type Scheduler struct {
	store     repository.ScheduleStore
	queue     Queue
	settings  Settings
	publisher events.Publisher
	logger    *logger.Logger
	tracer    trace.Tracer
	interval  time.Duration
	batchSize int
	window    CallingWindow
	now       func() time.Time
}

// New constructs a scheduler.
func New(store repository.ScheduleStore, queue Queue, settings Settings, publisher events.Publisher, lg *logger.Logger, opts Options) *Scheduler {
	if publisher == nil {
		publisher = events.Discard
	}
	if lg == nil {
		lg = logger.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 5 * time.Second
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 20
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		store:     store,
		queue:     queue,
		settings:  settings,
		publisher: publisher,
		logger:    lg.Named("scheduler"),
		tracer:    otel.Tracer("github.com/ProductBay/vynce/internal/scheduler"),
		interval:  opts.TickInterval,
		batchSize: opts.MaxBatchSize,
		window:    opts.Window,
		now:       opts.Now,
	}
}

// ScheduleInput describes an upload to dial now or later.
type ScheduleInput struct {
	Source      string
	CreatedBy   string
	ScheduledAt time.Time
	Entries     []domain.BatchEntry
}

// Scheduled reports what Schedule did with a batch.
type Scheduled struct {
	Batch     *domain.ScheduledBatch `json:"job"`
	Immediate bool                   `json:"immediate"`
}

// Schedule stores a batch for later, or enqueues it right away when its start time is
// unset or already past.
func (s *Scheduler) Schedule(ctx context.Context, input ScheduleInput) (*Scheduled, error) {
	if len(input.Entries) == 0 {
		return nil, apperrors.Validation("batch has no entries")
	}
	now := s.now()
	batch := &domain.ScheduledBatch{
		ID:          uuid.NewString(),
		Source:      input.Source,
		CreatedBy:   input.CreatedBy,
		ScheduledAt: input.ScheduledAt.UTC(),
		CreatedAt:   now,
		Entries:     input.Entries,
	}

	if input.ScheduledAt.IsZero() || !input.ScheduledAt.After(now) {
		batch.ScheduledAt = now
		s.release(batch)
		return &Scheduled{Batch: batch, Immediate: true}, nil
	}

	if err := s.store.Add(ctx, batch); err != nil {
		return nil, fmt.Errorf("scheduler: store batch: %w", err)
	}
	s.publisher.Publish(events.JobScheduled, summarize(batch))
	s.logger.WithContext(ctx).Info("bulk batch scheduled",
		zap.String("batch_id", batch.ID),
		zap.Int("entries", len(batch.Entries)),
		zap.Time("scheduled_at", batch.ScheduledAt))
	return &Scheduled{Batch: batch}, nil
}

// List returns the batches still waiting, soonest first.
func (s *Scheduler) List(ctx context.Context) ([]*domain.ScheduledBatch, error) {
	batches, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list: %w", err)
	}
	return batches, nil
}

// Run executes the scheduling loop until cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick releases every due batch this instance manages to claim and returns how many
// were released. Outside the calling window nothing is released.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	now := s.now()
	loc := time.UTC
	if s.settings != nil {
		loc = s.settings.Current().Location()
	}
	if !s.window.Contains(now, loc) {
		span.SetAttributes(attribute.Bool("scheduler.outside_window", true))
		s.logger.Debug("scheduler: outside calling window", zap.Time("now", now), zap.String("tz", loc.String()))
		return 0, nil
	}

	due, err := s.store.Due(ctx, now, s.batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("scheduler: fetch due: %w", err)
	}
	span.SetAttributes(attribute.Int("scheduler.due", len(due)))

	released := 0
	for _, batch := range due {
		claimed, err := s.store.Claim(ctx, batch.ID)
		if err != nil {
			span.RecordError(err)
			s.logger.Error("scheduler: claim batch", zap.String("batch_id", batch.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		s.release(batch)
		released++
	}
	return released, nil
}

func (s *Scheduler) release(batch *domain.ScheduledBatch) {
	n := s.queue.Enqueue(batch.Source, batch.Entries...)
	s.queue.Kick()
	s.logger.Info("bulk batch released",
		zap.String("batch_id", batch.ID),
		zap.String("source", batch.Source),
		zap.Int("entries", len(batch.Entries)),
		zap.Int("queue_length", n))
}

// Summary is the jobScheduled payload; it omits the entries themselves.
type Summary struct {
	ID          string    `json:"id"`
	Source      string    `json:"filename"`
	Count       int       `json:"count"`
	ScheduledAt time.Time `json:"scheduledAt"`
	CreatedAt   time.Time `json:"createdAt"`
	Status      string    `json:"status"`
}

func summarize(b *domain.ScheduledBatch) Summary {
	return Summary{
		ID:          b.ID,
		Source:      b.Source,
		Count:       len(b.Entries),
		ScheduledAt: b.ScheduledAt,
		CreatedAt:   b.CreatedAt,
		Status:      "scheduled",
	}
}

// Summaries converts stored batches into their public view.
func Summaries(batches []*domain.ScheduledBatch) []Summary {
	out := make([]Summary, 0, len(batches))
	for _, b := range batches {
		out = append(out, summarize(b))
	}
	return out
}
