package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
)

// VoicemailRepository implements repository.VoicemailRepository using PostgreSQL.
type VoicemailRepository struct {
	db *sqlx.DB
}

// NewVoicemailRepository constructs a new repository.
func NewVoicemailRepository(db *sqlx.DB) *VoicemailRepository {
	return &VoicemailRepository{db: db}
}

const insertVoicemail = `INSERT INTO voicemail_messages (id, name, content, is_active, created_at, updated_at)
	VALUES (:id, :name, :content, :is_active, :created_at, :updated_at)`

// Create inserts a new voicemail message.
func (r *VoicemailRepository) Create(ctx context.Context, msg *domain.VoicemailMessage) error {
	if _, err := r.db.NamedExecContext(ctx, insertVoicemail, voicemailRecordFrom(msg)); err != nil {
		return fmt.Errorf("voicemail repo: insert: %w", err)
	}
	return nil
}

// Get fetches a voicemail message by id.
func (r *VoicemailRepository) Get(ctx context.Context, id uuid.UUID) (*domain.VoicemailMessage, error) {
	var record voicemailRecord
	err := r.db.QueryRowxContext(ctx, `SELECT id, name, content, is_active, created_at, updated_at
		FROM voicemail_messages WHERE id = $1`, id).StructScan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("voicemail repo: get: %w", err)
	}
	msg := record.toDomain()
	return &msg, nil
}

// Update replaces the editable fields of a message.
func (r *VoicemailRepository) Update(ctx context.Context, msg *domain.VoicemailMessage) error {
	res, err := r.db.NamedExecContext(ctx, `UPDATE voicemail_messages SET
		name = :name,
		content = :content,
		is_active = :is_active,
		updated_at = :updated_at
	 WHERE id = :id`, voicemailRecordFrom(msg))
	if err != nil {
		return fmt.Errorf("voicemail repo: update: %w", err)
	}
	return expectOneRow(res, "voicemail repo")
}

// Delete removes a message.
func (r *VoicemailRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM voicemail_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("voicemail repo: delete: %w", err)
	}
	return expectOneRow(res, "voicemail repo")
}

// List returns messages, newest first.
func (r *VoicemailRepository) List(ctx context.Context, activeOnly bool) ([]*domain.VoicemailMessage, error) {
	q := `SELECT id, name, content, is_active, created_at, updated_at FROM voicemail_messages`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at DESC`

	var records []voicemailRecord
	if err := r.db.SelectContext(ctx, &records, q); err != nil {
		return nil, fmt.Errorf("voicemail repo: list: %w", err)
	}
	out := make([]*domain.VoicemailMessage, 0, len(records))
	for _, rec := range records {
		msg := rec.toDomain()
		out = append(out, &msg)
	}
	return out, nil
}

// Count returns the number of stored messages.
func (r *VoicemailRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM voicemail_messages`); err != nil {
		return 0, fmt.Errorf("voicemail repo: count: %w", err)
	}
	return n, nil
}

// Seed writes the default messages in one transaction when the table is empty.
func (r *VoicemailRepository) Seed(ctx context.Context, messages []*domain.VoicemailMessage) (int, error) {
	n, err := seedIfEmpty(ctx, r.db, "voicemail_messages", func(tx *sqlx.Tx) (int, error) {
		stmt, err := tx.PrepareNamedContext(ctx, insertVoicemail)
		if err != nil {
			return 0, fmt.Errorf("prepare seed: %w", err)
		}
		defer stmt.Close()

		for i, m := range messages {
			if _, err := stmt.ExecContext(ctx, voicemailRecordFrom(m)); err != nil {
				return i, fmt.Errorf("seed %q: %w", m.Name, err)
			}
		}
		return len(messages), nil
	})
	if err != nil {
		return 0, fmt.Errorf("voicemail repo: %w", err)
	}
	return n, nil
}

type voicemailRecord struct {
	ID        uuid.UUID    `db:"id"`
	Name      string       `db:"name"`
	Content   string       `db:"content"`
	IsActive  bool         `db:"is_active"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

func voicemailRecordFrom(m *domain.VoicemailMessage) voicemailRecord {
	return voicemailRecord{
		ID:        m.ID,
		Name:      m.Name,
		Content:   m.Content,
		IsActive:  m.IsActive,
		CreatedAt: sql.NullTime{Time: m.CreatedAt, Valid: !m.CreatedAt.IsZero()},
		UpdatedAt: sql.NullTime{Time: m.UpdatedAt, Valid: !m.UpdatedAt.IsZero()},
	}
}

func (r voicemailRecord) toDomain() domain.VoicemailMessage {
	return domain.VoicemailMessage{
		ID:        r.ID,
		Name:      r.Name,
		Content:   r.Content,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

var _ repository.VoicemailRepository = (*VoicemailRepository)(nil)
