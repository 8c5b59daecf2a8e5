package call

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/callstore"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/phone"
	"github.com/ProductBay/vynce/internal/telephony"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

const maxOutcomeLength = 64

// Metrics receives placement observations.
type Metrics interface {
	ObservePlacement(ok bool, elapsed time.Duration)
}

// CallerID supplies the number calls are placed from.
type CallerID interface {
	CallerID() string
}

// Callbacks are the webhook URLs handed to the provider with every placement.
type Callbacks struct {
	StatusURL string
	AnswerURL string
}

// Service places calls and applies operator actions to call records.
type Service struct {
	store     *callstore.Store
	client    telephony.Client
	callerID  CallerID
	callbacks Callbacks
	metrics   Metrics
	logger    *logger.Logger
	tracer    trace.Tracer
}

// NewService wires the call initiator.
func NewService(
	store *callstore.Store,
	client telephony.Client,
	callerID CallerID,
	callbacks Callbacks,
	metrics Metrics,
	lg *logger.Logger,
) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Service{
		store:     store,
		client:    client,
		callerID:  callerID,
		callbacks: callbacks,
		metrics:   metrics,
		logger:    lg.Named("call_service"),
		tracer:    otel.Tracer("github.com/ProductBay/vynce/internal/service/call"),
	}
}

// InitiateCallInput describes one call to place.
type InitiateCallInput struct {
	Number   string
	Metadata map[string]any
	Type     domain.CallType
	JobID    string
}

// InitiateCall creates a dialing record and asks the provider to place the call.
// On failure the returned record carries status failed together with the error.
func (s *Service) InitiateCall(ctx context.Context, input InitiateCallInput) (*domain.Call, error) {
	ctx, span := s.tracer.Start(ctx, "call.initiate", trace.WithAttributes(
		attribute.String("call.type", string(input.Type)),
		attribute.String("bulk.job_id", input.JobID),
	))
	defer span.End()

	if input.Type == "" {
		input.Type = domain.CallTypeSingle
	}

	number, normErr := phone.Normalize(input.Number)
	if normErr != nil {
		number = strings.TrimSpace(input.Number)
	}
	call := s.store.Create(number, input.Metadata, input.Type, input.JobID)
	span.SetAttributes(attribute.String("call.local_id", call.LocalID))

	if normErr != nil {
		failed := s.fail(call.LocalID, normErr)
		span.SetStatus(codes.Error, normErr.Error())
		return failed, fmt.Errorf("call service: normalize %q: %w", input.Number, normErr)
	}

	req := telephony.CallRequest{
		To:        number,
		StatusURL: s.callbacks.StatusURL,
		AnswerURL: s.callbacks.AnswerURL,
	}
	if s.callerID != nil {
		req.From = s.callerID.CallerID()
	}

	started := time.Now()
	remoteID, err := s.client.PlaceCall(ctx, req)
	s.metrics.ObservePlacement(err == nil, time.Since(started))
	if err != nil {
		s.logger.WithContext(ctx).Warn("call placement failed",
			zap.String("local_id", call.LocalID),
			zap.String("number", number),
			zap.Error(err))
		failed := s.fail(call.LocalID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "placement failed")
		return failed, fmt.Errorf("call service: place call: %w", err)
	}

	updated, err := s.store.Reconcile(call.LocalID, remoteID, domain.CallStatusInitiated)
	if err != nil {
		// The record was cleared while the provider was dialing; the call itself is live.
		s.logger.WithContext(ctx).Warn("placed call has no record",
			zap.String("local_id", call.LocalID), zap.String("remote_id", remoteID))
		call.RemoteID = remoteID
		return call, nil
	}
	if updated.Status == domain.CallStatusEnded {
		// An operator ended the placeholder before the provider answered the request.
		s.hangup(ctx, updated)
	}

	s.logger.WithContext(ctx).Info("call placed",
		zap.String("local_id", updated.LocalID),
		zap.String("remote_id", remoteID),
		zap.String("type", string(updated.Type)))
	return updated, nil
}

func (s *Service) fail(localID string, cause error) *domain.Call {
	reason := cause.Error()
	failed, err := s.store.Update(localID, func(c *domain.Call, now time.Time) bool {
		if c.Advance(domain.CallStatusFailed, now) != domain.TransitionApplied {
			return false
		}
		c.Error = reason
		return true
	})
	if err != nil {
		s.logger.Warn("failed call record vanished", zap.String("local_id", localID), zap.Error(err))
		return nil
	}
	return failed
}

// EndCall terminates a call on operator request. The provider hangup is best effort.
func (s *Service) EndCall(ctx context.Context, localID string) (*domain.Call, error) {
	ctx, span := s.tracer.Start(ctx, "call.end", trace.WithAttributes(attribute.String("call.local_id", localID)))
	defer span.End()

	call, err := s.store.Get(localID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return call, nil
	}
	s.hangup(ctx, call)

	ended, err := s.store.Update(localID, func(c *domain.Call, now time.Time) bool {
		if c.Advance(domain.CallStatusEnded, now) != domain.TransitionApplied {
			return false
		}
		c.EndedBy = "admin"
		return true
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

func (s *Service) hangup(ctx context.Context, call *domain.Call) {
	if call.RemoteID == "" {
		return
	}
	if err := s.client.Hangup(ctx, call.RemoteID); err != nil {
		s.logger.WithContext(ctx).Warn("hangup failed",
			zap.String("local_id", call.LocalID),
			zap.String("remote_id", call.RemoteID),
			zap.Error(err))
	}
}

// AddNote appends an operator note to a call.
func (s *Service) AddNote(localID, text, author string) (*domain.Call, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.Validation("note text is required")
	}
	return s.store.Update(localID, func(c *domain.Call, now time.Time) bool {
		c.Notes = append(c.Notes, domain.CallNote{Text: text, Author: author, CreatedAt: now})
		return true
	})
}

// SetOutcome records the operator's disposition of a call.
func (s *Service) SetOutcome(localID, outcome string) (*domain.Call, error) {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return nil, apperrors.Validation("outcome is required")
	}
	if len(outcome) > maxOutcomeLength {
		return nil, apperrors.Validation("outcome must be at most %d characters", maxOutcomeLength)
	}
	return s.store.Update(localID, func(c *domain.Call, _ time.Time) bool {
		if c.Outcome == outcome {
			return false
		}
		c.Outcome = outcome
		return true
	})
}

// GetCall returns one record.
func (s *Service) GetCall(localID string) (*domain.Call, error) {
	return s.store.Get(localID)
}

// ListCalls returns live records newest first.
func (s *Service) ListCalls(limit int) []*domain.Call {
	return s.store.List(limit)
}

// ClearCalls wipes the live record set.
func (s *Service) ClearCalls() int {
	return s.store.Clear()
}

type nopMetrics struct{}

func (nopMetrics) ObservePlacement(bool, time.Duration) {}
