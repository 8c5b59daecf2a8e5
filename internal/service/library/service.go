// Package library manages the agent call scripts and voicemail drop templates.
package library

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

const (
	maxNameLength    = 120
	maxContentLength = 4000
	defaultCategory  = "general"
)

// Service orchestrates script and voicemail library operations.
type Service struct {
	scripts   repository.ScriptRepository
	voicemail repository.VoicemailRepository
	logger    *logger.Logger
	now       func() time.Time
}

// NewService constructs a library service.
func NewService(scripts repository.ScriptRepository, voicemail repository.VoicemailRepository, lg *logger.Logger) *Service {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Service{
		scripts:   scripts,
		voicemail: voicemail,
		logger:    lg.Named("library"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ScriptInput captures script creation parameters.
type ScriptInput struct {
	Name     string
	Content  string
	Category string
}

// UpdateScriptInput captures updatable script properties.
type UpdateScriptInput struct {
	ID       uuid.UUID
	Name     *string
	Content  *string
	Category *string
	IsActive *bool
}

// MessageInput captures voicemail message creation parameters.
type MessageInput struct {
	Name    string
	Content string
}

// UpdateMessageInput captures updatable voicemail message properties.
type UpdateMessageInput struct {
	ID       uuid.UUID
	Name     *string
	Content  *string
	IsActive *bool
}

// SeedDefaults installs the stock scripts and voicemail messages into empty tables.
func (s *Service) SeedDefaults(ctx context.Context) error {
	now := s.now()
	scripts := make([]*domain.Script, 0, len(defaultScripts))
	for _, in := range defaultScripts {
		scripts = append(scripts, &domain.Script{
			ID: uuid.New(), Name: in.Name, Content: in.Content, Category: in.Category,
			IsActive: true, CreatedAt: now, UpdatedAt: now,
		})
	}
	n, err := s.scripts.Seed(ctx, scripts)
	if err != nil {
		return fmt.Errorf("library service: seed scripts: %w", err)
	}

	messages := make([]*domain.VoicemailMessage, 0, len(defaultMessages))
	for _, in := range defaultMessages {
		messages = append(messages, &domain.VoicemailMessage{
			ID: uuid.New(), Name: in.Name, Content: in.Content,
			IsActive: true, CreatedAt: now, UpdatedAt: now,
		})
	}
	m, err := s.voicemail.Seed(ctx, messages)
	if err != nil {
		return fmt.Errorf("library service: seed voicemail messages: %w", err)
	}
	if n > 0 || m > 0 {
		s.logger.Info("seeded default library", zap.Int("scripts", n), zap.Int("voicemail_messages", m))
	}
	return nil
}

// CreateScript adds a script to the library.
func (s *Service) CreateScript(ctx context.Context, input ScriptInput) (*domain.Script, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	if input.Category == "" {
		input.Category = defaultCategory
	}
	if err := validateEntry(input.Name, input.Content); err != nil {
		return nil, err
	}

	now := s.now()
	script := &domain.Script{
		ID:        uuid.New(),
		Name:      input.Name,
		Content:   input.Content,
		Category:  input.Category,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.scripts.Create(ctx, script); err != nil {
		return nil, fmt.Errorf("library service: create script: %w", err)
	}
	return script, nil
}

// GetScript retrieves a script by id.
func (s *Service) GetScript(ctx context.Context, id uuid.UUID) (*domain.Script, error) {
	return s.scripts.Get(ctx, id)
}

// ListScripts returns the library, optionally only active scripts.
func (s *Service) ListScripts(ctx context.Context, activeOnly bool) ([]*domain.Script, error) {
	return s.scripts.List(ctx, activeOnly)
}

// UpdateScript modifies a script.
func (s *Service) UpdateScript(ctx context.Context, input UpdateScriptInput) (*domain.Script, error) {
	script, err := s.scripts.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		script.Name = strings.TrimSpace(*input.Name)
	}
	if input.Content != nil {
		script.Content = *input.Content
	}
	if input.Category != nil {
		script.Category = strings.ToLower(strings.TrimSpace(*input.Category))
		if script.Category == "" {
			script.Category = defaultCategory
		}
	}
	if input.IsActive != nil {
		script.IsActive = *input.IsActive
	}
	if err := validateEntry(script.Name, script.Content); err != nil {
		return nil, err
	}

	script.UpdatedAt = s.now()
	if err := s.scripts.Update(ctx, script); err != nil {
		return nil, err
	}
	return script, nil
}

// DeleteScript removes a script.
func (s *Service) DeleteScript(ctx context.Context, id uuid.UUID) error {
	return s.scripts.Delete(ctx, id)
}

// CreateMessage adds a voicemail template.
func (s *Service) CreateMessage(ctx context.Context, input MessageInput) (*domain.VoicemailMessage, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateEntry(input.Name, input.Content); err != nil {
		return nil, err
	}

	now := s.now()
	msg := &domain.VoicemailMessage{
		ID:        uuid.New(),
		Name:      input.Name,
		Content:   input.Content,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.voicemail.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("library service: create voicemail message: %w", err)
	}
	return msg, nil
}

// GetMessage retrieves a voicemail template by id.
func (s *Service) GetMessage(ctx context.Context, id uuid.UUID) (*domain.VoicemailMessage, error) {
	return s.voicemail.Get(ctx, id)
}

// ListMessages returns voicemail templates, optionally only active ones.
func (s *Service) ListMessages(ctx context.Context, activeOnly bool) ([]*domain.VoicemailMessage, error) {
	return s.voicemail.List(ctx, activeOnly)
}

// UpdateMessage modifies a voicemail template.
func (s *Service) UpdateMessage(ctx context.Context, input UpdateMessageInput) (*domain.VoicemailMessage, error) {
	msg, err := s.voicemail.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		msg.Name = strings.TrimSpace(*input.Name)
	}
	if input.Content != nil {
		msg.Content = *input.Content
	}
	if input.IsActive != nil {
		msg.IsActive = *input.IsActive
	}
	if err := validateEntry(msg.Name, msg.Content); err != nil {
		return nil, err
	}

	msg.UpdatedAt = s.now()
	if err := s.voicemail.Update(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage removes a voicemail template.
func (s *Service) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return s.voicemail.Delete(ctx, id)
}

func validateEntry(name, content string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", apperrors.ErrValidation, maxNameLength)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", apperrors.ErrValidation)
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return fmt.Errorf("%w: content must be at most %d characters", apperrors.ErrValidation, maxContentLength)
	}
	return nil
}
