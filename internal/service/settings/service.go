// Package settings owns the operator-editable dialer preferences.
package settings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/phone"
	"github.com/ProductBay/vynce/internal/repository"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

// MessageLookup resolves voicemail templates by id.
type MessageLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.VoicemailMessage, error)
}

// Patch carries a partial settings update; nil fields are left unchanged.
type Patch struct {
	CallerID             *string `json:"callerId"`
	TimeZone             *string `json:"timeZone"`
	BulkDelayMs          *int64  `json:"bulkDelayMs"`
	VoicemailDropEnabled *bool   `json:"enableVoicemailDrop"`
	VoicemailMessageID   *string `json:"voicemailMessageId"`
	VoicemailTemplate    *string `json:"voicemailTemplate"`
	AgentName            *string `json:"agentName"`
	CompanyName          *string `json:"companyName"`
}

// TouchesDelay reports whether the patch changes the bulk delay.
func (p Patch) TouchesDelay() bool {
	return p.BulkDelayMs != nil
}

// Service caches settings in memory and writes changes through to the store.
type Service struct {
	store    repository.SettingsStore
	messages MessageLookup
	defaults domain.Settings
	maxDelay time.Duration
	logger   *logger.Logger

	// updateMu serializes read-validate-save-apply so concurrent patches compose.
	updateMu  sync.Mutex
	mu        sync.RWMutex
	current   domain.Settings
	listeners []func(domain.Settings)
}

// NewService builds a settings service seeded with defaults.
func NewService(store repository.SettingsStore, messages MessageLookup, defaults domain.Settings, maxDelay time.Duration, lg *logger.Logger) *Service {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Service{
		store:    store,
		messages: messages,
		defaults: defaults,
		maxDelay: maxDelay,
		logger:   lg.Named("settings"),
		current:  defaults,
	}
}

// Load refreshes the cache from the store, keeping defaults for fields never saved.
func (s *Service) Load(ctx context.Context) (domain.Settings, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	stored, found, err := s.store.Load(ctx)
	if err != nil {
		return s.Current(), fmt.Errorf("settings service: load: %w", err)
	}
	next := s.defaults
	if found {
		next = mergeDefaults(stored, s.defaults)
	}
	s.apply(next)
	return next, nil
}

// Current returns the cached settings.
func (s *Service) Current() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CallerID returns the number calls are placed from.
func (s *Service) CallerID() string {
	return s.Current().CallerID
}

// OnChange registers fn to run after every successful update.
func (s *Service) OnChange(fn func(domain.Settings)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Update validates and persists a patch, then notifies listeners.
func (s *Service) Update(ctx context.Context, patch Patch) (domain.Settings, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	next := s.Current()

	if patch.CallerID != nil {
		raw := strings.TrimSpace(*patch.CallerID)
		if raw == "" {
			next.CallerID = ""
		} else {
			normalized, err := phone.Normalize(raw)
			if err != nil {
				return domain.Settings{}, fmt.Errorf("settings service: caller id: %w", err)
			}
			next.CallerID = normalized
		}
	}
	if patch.TimeZone != nil {
		tz := strings.TrimSpace(*patch.TimeZone)
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return domain.Settings{}, apperrors.Validation("unknown time zone %q", tz)
			}
		}
		next.TimeZone = tz
	}
	if patch.BulkDelayMs != nil {
		d := time.Duration(*patch.BulkDelayMs) * time.Millisecond
		if d < 0 || d > s.maxDelay {
			return domain.Settings{}, apperrors.Validation("bulkDelayMs must be between 0 and %d", s.maxDelay.Milliseconds())
		}
		next.BulkDelay = d
	}
	if patch.VoicemailDropEnabled != nil {
		next.VoicemailDropEnabled = *patch.VoicemailDropEnabled
	}
	if patch.VoicemailTemplate != nil {
		next.VoicemailTemplate = strings.TrimSpace(*patch.VoicemailTemplate)
		next.VoicemailMessageID = ""
	}
	if patch.VoicemailMessageID != nil && *patch.VoicemailMessageID != "" {
		msg, err := s.lookupMessage(ctx, *patch.VoicemailMessageID)
		if err != nil {
			return domain.Settings{}, err
		}
		next.VoicemailMessageID = msg.ID.String()
		next.VoicemailTemplate = msg.Content
	}
	if patch.AgentName != nil {
		next.AgentName = strings.TrimSpace(*patch.AgentName)
	}
	if patch.CompanyName != nil {
		next.CompanyName = strings.TrimSpace(*patch.CompanyName)
	}

	if err := s.store.Save(ctx, next); err != nil {
		return domain.Settings{}, fmt.Errorf("settings service: save: %w", err)
	}
	s.apply(next)
	s.logger.Info("settings updated",
		zap.String("caller_id", next.CallerID),
		zap.Int64("bulk_delay_ms", next.BulkDelay.Milliseconds()),
		zap.Bool("voicemail_drop", next.VoicemailDropEnabled))
	return next, nil
}

func (s *Service) lookupMessage(ctx context.Context, rawID string) (*domain.VoicemailMessage, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperrors.Validation("voicemailMessageId %q is not a valid id", rawID)
	}
	if s.messages == nil {
		return nil, fmt.Errorf("settings service: voicemail library unavailable: %w", apperrors.ErrUnavailable)
	}
	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("settings service: voicemail message %s: %w", id, err)
	}
	if !msg.IsActive {
		return nil, apperrors.Validation("voicemail message %s is inactive", id)
	}
	return msg, nil
}

func (s *Service) apply(next domain.Settings) {
	s.mu.Lock()
	s.current = next
	listeners := append([]func(domain.Settings){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func mergeDefaults(stored, defaults domain.Settings) domain.Settings {
	if stored.CallerID == "" {
		stored.CallerID = defaults.CallerID
	}
	if stored.TimeZone == "" {
		stored.TimeZone = defaults.TimeZone
	}
	if stored.VoicemailTemplate == "" {
		stored.VoicemailTemplate = defaults.VoicemailTemplate
	}
	if stored.AgentName == "" {
		stored.AgentName = defaults.AgentName
	}
	if stored.CompanyName == "" {
		stored.CompanyName = defaults.CompanyName
	}
	return stored
}
