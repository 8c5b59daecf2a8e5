package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/domain"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// UserRepository persists dashboard accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, sub domain.Subscription) error
	List(ctx context.Context, limit int) ([]*domain.User, error)
}

// ScriptRepository stores agent call scripts.
type ScriptRepository interface {
	Create(ctx context.Context, script *domain.Script) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Script, error)
	Update(ctx context.Context, script *domain.Script) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool) ([]*domain.Script, error)
	Count(ctx context.Context) (int, error)
	// Seed inserts scripts only when the table is empty and reports how many were written.
	Seed(ctx context.Context, scripts []*domain.Script) (int, error)
}

// VoicemailRepository stores voicemail drop templates.
type VoicemailRepository interface {
	Create(ctx context.Context, msg *domain.VoicemailMessage) error
	Get(ctx context.Context, id uuid.UUID) (*domain.VoicemailMessage, error)
	Update(ctx context.Context, msg *domain.VoicemailMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool) ([]*domain.VoicemailMessage, error)
	Count(ctx context.Context) (int, error)
	Seed(ctx context.Context, messages []*domain.VoicemailMessage) (int, error)
}

// StatsRepository keeps per-day call aggregates.
type StatsRepository interface {
	Increment(ctx context.Context, delta domain.DailyCallStats) error
	Range(ctx context.Context, from, to time.Time) ([]domain.DailyCallStats, error)
}

// CallArchive keeps finished calls for history views.
type CallArchive interface {
	Archive(ctx context.Context, call *domain.Call) error
	ListByDay(ctx context.Context, day time.Time, limit int, pageState []byte) ([]domain.Call, []byte, error)
	ListByNumber(ctx context.Context, number string, limit int, pageState []byte) ([]domain.Call, []byte, error)
}

// SettingsStore persists operator settings.
type SettingsStore interface {
	// Load returns the stored settings and whether any were found.
	Load(ctx context.Context) (domain.Settings, bool, error)
	Save(ctx context.Context, settings domain.Settings) error
}

// ScheduleStore holds bulk batches until they are due.
type ScheduleStore interface {
	Add(ctx context.Context, batch *domain.ScheduledBatch) error
	Due(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledBatch, error)
	// Claim removes a batch and reports whether this caller removed it.
	Claim(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*domain.ScheduledBatch, error)
}
