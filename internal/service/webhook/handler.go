// Package webhook applies provider call events to the live call records.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/callstore"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/telephony"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

// Webhook kinds and outcomes reported to Metrics.
const (
	KindStatus = "status"
	KindAMD    = "amd"

	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeUnknown   = "unknown"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
)

// Settings exposes the current dialer settings without I/O.
type Settings interface {
	Current() domain.Settings
}

// Metrics receives webhook observations.
type Metrics interface {
	ObserveWebhook(kind, outcome string)
	ObserveTransition(status domain.CallStatus)
}

// StatusEvent is a provider call status callback.
type StatusEvent struct {
	RemoteID         string
	Status           string
	Detail           string
	SIPCode          int
	MachineDetection string
}

// Instruction tells the provider what to do with a call answered by a machine.
type Instruction struct {
	// Speak is played before the call ends; empty means hang up silently.
	Speak string
	// Continue leaves the call connected.
	Continue bool
}

// Handler maps provider callbacks onto call records.
type Handler struct {
	store    *callstore.Store
	client   telephony.Client
	settings Settings
	metrics  Metrics
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewHandler wires a webhook handler.
func NewHandler(store *callstore.Store, client telephony.Client, settings Settings, metrics Metrics, lg *logger.Logger) *Handler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Handler{
		store:    store,
		client:   client,
		settings: settings,
		metrics:  metrics,
		logger:   lg.Named("webhook"),
		tracer:   otel.Tracer("github.com/ProductBay/vynce/internal/service/webhook"),
	}
}

// OnStatusEvent applies a status callback. Unknown call ids are logged and reported as
// ErrNotFound; callers acknowledge the webhook regardless.
func (h *Handler) OnStatusEvent(ctx context.Context, ev StatusEvent) (*domain.Call, error) {
	ctx, span := h.tracer.Start(ctx, "webhook.status", trace.WithAttributes(
		attribute.String("call.remote_id", ev.RemoteID),
		attribute.String("call.provider_status", ev.Status),
	))
	defer span.End()

	if ev.RemoteID == "" {
		h.metrics.ObserveWebhook(KindStatus, OutcomeInvalid)
		return nil, apperrors.Validation("status event without call id")
	}

	if isMachine(ev.MachineDetection) || ev.Status == "machine" {
		call, instr, err := h.OnAnsweringMachineEvent(ctx, ev.RemoteID, "machine")
		if err != nil {
			return nil, err
		}
		return h.execute(ctx, call, instr), nil
	}

	status, known := domain.ParseProviderStatus(strings.ToLower(ev.Status))
	if !known {
		h.logger.WithContext(ctx).Info("unmapped provider status",
			zap.String("remote_id", ev.RemoteID), zap.String("status", ev.Status))
	}

	result := domain.TransitionDuplicate
	updated, err := h.store.UpdateByRemoteID(ev.RemoteID, func(c *domain.Call, now time.Time) bool {
		changed := false
		if ev.Detail != "" && c.Detail != ev.Detail {
			c.Detail = ev.Detail
			changed = true
		}
		if ev.SIPCode != 0 && c.SIPCode != ev.SIPCode {
			c.SIPCode = ev.SIPCode
			changed = true
		}
		if !known {
			return changed
		}
		result = c.Advance(status, now)
		if result == domain.TransitionRejected {
			h.logger.WithContext(ctx).Warn("ignoring invalid status transition",
				zap.String("local_id", c.LocalID),
				zap.String("remote_id", ev.RemoteID),
				zap.String("from", string(c.Status)),
				zap.String("to", string(status)))
		}
		return changed || result == domain.TransitionApplied
	})
	if err != nil {
		return nil, h.unknown(ctx, KindStatus, ev.RemoteID, err)
	}

	switch {
	case known && result == domain.TransitionApplied:
		h.metrics.ObserveWebhook(KindStatus, OutcomeApplied)
		h.metrics.ObserveTransition(status)
	case known && result == domain.TransitionDuplicate:
		h.metrics.ObserveWebhook(KindStatus, OutcomeDuplicate)
	default:
		h.metrics.ObserveWebhook(KindStatus, OutcomeIgnored)
	}
	return updated, nil
}

// OnAnsweringMachineEvent records an answering machine detection result and decides
// what the provider should do next. Machines get the voicemail drop when it is enabled
// and a silent hangup otherwise; either way the record ends in status voicemail.
func (h *Handler) OnAnsweringMachineEvent(ctx context.Context, remoteID, result string) (*domain.Call, Instruction, error) {
	ctx, span := h.tracer.Start(ctx, "webhook.amd", trace.WithAttributes(
		attribute.String("call.remote_id", remoteID),
		attribute.String("amd.result", result),
	))
	defer span.End()

	if remoteID == "" {
		h.metrics.ObserveWebhook(KindAMD, OutcomeInvalid)
		return nil, Instruction{}, apperrors.Validation("machine detection event without call id")
	}

	if !isMachine(result) {
		updated, err := h.store.UpdateByRemoteID(remoteID, func(c *domain.Call, _ time.Time) bool {
			detail := "amd:" + strings.ToLower(result)
			if c.Detail == detail {
				return false
			}
			c.Detail = detail
			return true
		})
		if err != nil {
			return nil, Instruction{Continue: true}, h.unknown(ctx, KindAMD, remoteID, err)
		}
		h.metrics.ObserveWebhook(KindAMD, OutcomeIgnored)
		return updated, Instruction{Continue: true}, nil
	}

	settings := h.current()
	var (
		instr     Instruction
		duplicate bool
		applied   bool
	)
	updated, err := h.store.UpdateByRemoteID(remoteID, func(c *domain.Call, now time.Time) bool {
		if c.VoicemailDetected {
			duplicate = true
			instr.Continue = true
			return false
		}
		c.VoicemailDetected = true
		if c.Status.IsTerminal() {
			instr.Continue = true
			return true
		}
		if settings.VoicemailDropEnabled && strings.TrimSpace(settings.VoicemailTemplate) != "" {
			text := domain.RenderTemplate(settings.VoicemailTemplate, settings.VarsFor(c))
			instr.Speak = text
			c.VoicemailLeft = true
			c.VoicemailMessage = text
		}
		applied = c.Advance(domain.CallStatusVoicemail, now) == domain.TransitionApplied
		return true
	})
	if err != nil {
		return nil, Instruction{}, h.unknown(ctx, KindAMD, remoteID, err)
	}

	switch {
	case duplicate:
		h.metrics.ObserveWebhook(KindAMD, OutcomeDuplicate)
	case applied:
		h.metrics.ObserveWebhook(KindAMD, OutcomeApplied)
		h.metrics.ObserveTransition(domain.CallStatusVoicemail)
	default:
		h.metrics.ObserveWebhook(KindAMD, OutcomeIgnored)
	}
	h.logger.WithContext(ctx).Info("answering machine detected",
		zap.String("local_id", updated.LocalID),
		zap.String("remote_id", remoteID),
		zap.Bool("voicemail_left", updated.VoicemailLeft),
		zap.Bool("duplicate", duplicate))
	return updated, instr, nil
}

// execute carries out a machine instruction against the provider for callbacks that
// cannot answer with call control.
func (h *Handler) execute(ctx context.Context, call *domain.Call, instr Instruction) *domain.Call {
	if call == nil || instr.Continue || call.RemoteID == "" {
		return call
	}
	if instr.Speak == "" {
		if err := h.client.Hangup(ctx, call.RemoteID); err != nil {
			h.logger.WithContext(ctx).Warn("machine hangup failed",
				zap.String("remote_id", call.RemoteID), zap.Error(err))
		}
		return call
	}
	if err := h.client.PlayAndHangup(ctx, call.RemoteID, instr.Speak); err != nil {
		h.logger.WithContext(ctx).Warn("voicemail drop failed",
			zap.String("remote_id", call.RemoteID), zap.Error(err))
		reason := fmt.Sprintf("voicemail drop: %v", err)
		reverted, uerr := h.store.UpdateByRemoteID(call.RemoteID, func(c *domain.Call, _ time.Time) bool {
			c.VoicemailLeft = false
			c.Error = reason
			return true
		})
		if uerr == nil {
			return reverted
		}
	}
	return call
}

func (h *Handler) current() domain.Settings {
	if h.settings == nil {
		return domain.Settings{}
	}
	return h.settings.Current()
}

func (h *Handler) unknown(ctx context.Context, kind, remoteID string, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.logger.WithContext(ctx).Warn("webhook for unknown call",
			zap.String("kind", kind), zap.String("remote_id", remoteID))
		h.metrics.ObserveWebhook(kind, OutcomeUnknown)
	}
	return err
}

func isMachine(result string) bool {
	return strings.EqualFold(strings.TrimSpace(result), "machine")
}

type nopMetrics struct{}

func (nopMetrics) ObserveWebhook(string, string)       {}
func (nopMetrics) ObserveTransition(domain.CallStatus) {}
