// Package archive consumes mirrored call events and files finished calls into history.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/queue"
	"github.com/ProductBay/vynce/pkg/logger"
)

// Reader is the part of kafka.Reader the worker uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recorder stores a finished call.
type Recorder interface {
	Record(ctx context.Context, call *domain.Call) error
}

// recordAttempts bounds how often one call is retried before it is skipped.
const recordAttempts = 3

// maxFetchBackoff caps the pause between failed fetches.
const maxFetchBackoff = 10 * time.Second

// Worker archives callEnded events.
type Worker struct {
	reader     Reader
	recorder   Recorder
	logger     *logger.Logger
	tracer     trace.Tracer
	retryDelay time.Duration
}

// New creates an archive worker.
func New(reader Reader, recorder Recorder, lg *logger.Logger) *Worker {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Worker{
		reader:     reader,
		recorder:   recorder,
		logger:     lg.Named("archive-worker"),
		tracer:     otel.Tracer("github.com/ProductBay/vynce/internal/worker/archive"),
		retryDelay: 500 * time.Millisecond,
	}
}

// Run processes events until the context is cancelled. A call that still cannot be
// stored after a few attempts is logged and skipped so one bad record cannot wedge the
// partition. Fetch errors back off exponentially; a closed reader ends the run.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	backoff := w.retryDelay
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("archive worker: reader closed: %w", err)
			}
			w.logger.Error("archive worker: fetch", zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxFetchBackoff)
			continue
		}
		backoff = w.retryDelay

		if err := w.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("archive worker: giving up on call", zap.Error(err),
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			w.logger.Error("archive worker: commit", zap.Error(err))
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	env, err := queue.DecodeEvent(msg.Value)
	if err != nil {
		w.logger.Warn("archive worker: skipping undecodable message", zap.Error(err))
		return nil
	}
	if env.Event != events.CallEnded {
		return nil
	}
	call, err := env.Call()
	if err != nil {
		w.logger.Warn("archive worker: skipping malformed call", zap.Error(err))
		return nil
	}

	sctx, span := w.tracer.Start(ctx, "archive.call_ended", trace.WithAttributes(
		attribute.String("call.local_id", call.LocalID),
		attribute.String("call.status", string(call.Status)),
	))
	defer span.End()

	for attempt := 1; ; attempt++ {
		err = w.recorder.Record(sctx, call)
		if err == nil {
			return nil
		}
		span.RecordError(err)
		if attempt == recordAttempts {
			return err
		}
		w.logger.Warn("archive worker: record failed, retrying",
			zap.String("local_id", call.LocalID), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retryDelay * time.Duration(attempt)):
		}
	}
}
