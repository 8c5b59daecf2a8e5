package library

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

type scriptTable map[uuid.UUID]domain.Script

func (t scriptTable) Create(_ context.Context, s *domain.Script) error { t[s.ID] = *s; return nil }
func (t scriptTable) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t, id)
	return nil
}
func (t scriptTable) Get(_ context.Context, id uuid.UUID) (*domain.Script, error) {
	s, ok := t[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}
func (t scriptTable) Update(_ context.Context, s *domain.Script) error {
	if _, ok := t[s.ID]; !ok {
		return repository.ErrNotFound
	}
	t[s.ID] = *s
	return nil
}
func (t scriptTable) List(_ context.Context, activeOnly bool) ([]*domain.Script, error) {
	var out []*domain.Script
	for _, s := range t {
		if activeOnly && !s.IsActive {
			continue
		}
		s := s
		out = append(out, &s)
	}
	return out, nil
}
func (t scriptTable) Count(context.Context) (int, error) { return len(t), nil }
func (t scriptTable) Seed(ctx context.Context, scripts []*domain.Script) (int, error) {
	if len(t) > 0 {
		return 0, nil
	}
	for _, s := range scripts {
		_ = t.Create(ctx, s)
	}
	return len(scripts), nil
}

type messageTable map[uuid.UUID]domain.VoicemailMessage

func (t messageTable) Create(_ context.Context, m *domain.VoicemailMessage) error {
	t[m.ID] = *m
	return nil
}
func (t messageTable) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t, id)
	return nil
}
func (t messageTable) Get(_ context.Context, id uuid.UUID) (*domain.VoicemailMessage, error) {
	m, ok := t[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}
func (t messageTable) Update(_ context.Context, m *domain.VoicemailMessage) error {
	if _, ok := t[m.ID]; !ok {
		return repository.ErrNotFound
	}
	t[m.ID] = *m
	return nil
}
func (t messageTable) List(_ context.Context, activeOnly bool) ([]*domain.VoicemailMessage, error) {
	var out []*domain.VoicemailMessage
	for _, m := range t {
		if activeOnly && !m.IsActive {
			continue
		}
		m := m
		out = append(out, &m)
	}
	return out, nil
}
func (t messageTable) Count(context.Context) (int, error) { return len(t), nil }
func (t messageTable) Seed(ctx context.Context, msgs []*domain.VoicemailMessage) (int, error) {
	if len(t) > 0 {
		return 0, nil
	}
	for _, m := range msgs {
		_ = t.Create(ctx, m)
	}
	return len(msgs), nil
}

func newService() (*Service, scriptTable, messageTable) {
	scripts, messages := scriptTable{}, messageTable{}
	return NewService(scripts, messages, nil), scripts, messages
}

func TestSeedDefaultsOnlyOnce(t *testing.T) {
	svc, scripts, messages := newService()
	ctx := context.Background()

	if err := svc.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(scripts) != len(defaultScripts) || len(messages) != len(defaultMessages) {
		t.Fatalf("expected %d scripts and %d messages, got %d and %d",
			len(defaultScripts), len(defaultMessages), len(scripts), len(messages))
	}
	if err := svc.SeedDefaults(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(scripts) != len(defaultScripts) {
		t.Fatalf("seed must not duplicate scripts, got %d", len(scripts))
	}
}

func TestCreateScriptValidation(t *testing.T) {
	svc, _, _ := newService()
	cases := []ScriptInput{
		{Name: "", Content: "hello"},
		{Name: "  ", Content: "hello"},
		{Name: "intro", Content: "   "},
		{Name: strings.Repeat("n", maxNameLength+1), Content: "hello"},
		{Name: "intro", Content: strings.Repeat("c", maxContentLength+1)},
	}
	for _, tc := range cases {
		if _, err := svc.CreateScript(context.Background(), tc); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("expected validation error for input %+v, got %v", tc, err)
		}
	}
}

func TestCreateScriptDefaultsCategory(t *testing.T) {
	svc, scripts, _ := newService()
	script, err := svc.CreateScript(context.Background(), ScriptInput{Name: " Intro ", Content: "Hi [Name]"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if script.Name != "Intro" || script.Category != defaultCategory || !script.IsActive {
		t.Fatalf("unexpected script %+v", script)
	}
	if _, ok := scripts[script.ID]; !ok {
		t.Fatal("script was not stored")
	}
}

func TestUpdateScriptDeactivates(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	script, err := svc.CreateScript(ctx, ScriptInput{Name: "Intro", Content: "Hi", Category: "Sales"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inactive := false
	updated, err := svc.UpdateScript(ctx, UpdateScriptInput{ID: script.ID, IsActive: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IsActive || updated.Category != "sales" {
		t.Fatalf("unexpected script %+v", updated)
	}

	active, err := svc.ListScripts(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active scripts, got %d", len(active))
	}

	empty := ""
	if _, err := svc.UpdateScript(ctx, UpdateScriptInput{ID: script.ID, Content: &empty}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateScript(ctx, UpdateScriptInput{ID: uuid.New()}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMessageLifecycle(t *testing.T) {
	svc, _, messages := newService()
	ctx := context.Background()

	msg, err := svc.CreateMessage(ctx, MessageInput{Name: "Reminder", Content: "Call [Number]"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.GetMessage(ctx, msg.ID)
	if err != nil || got.Content != "Call [Number]" {
		t.Fatalf("get: %+v, %v", got, err)
	}

	content := "Call us at [Number]"
	if _, err := svc.UpdateMessage(ctx, UpdateMessageInput{ID: msg.ID, Content: &content}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if messages[msg.ID].Content != content {
		t.Fatalf("update not stored: %+v", messages[msg.ID])
	}

	if err := svc.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteMessage(ctx, msg.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
