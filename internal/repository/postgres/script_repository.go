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

// ScriptRepository implements repository.ScriptRepository using PostgreSQL.
type ScriptRepository struct {
	db *sqlx.DB
}

// NewScriptRepository constructs a new repository.
func NewScriptRepository(db *sqlx.DB) *ScriptRepository {
	return &ScriptRepository{db: db}
}

const insertScript = `INSERT INTO scripts (id, name, content, category, is_active, created_at, updated_at)
	VALUES (:id, :name, :content, :category, :is_active, :created_at, :updated_at)`

// Create inserts a new script.
func (r *ScriptRepository) Create(ctx context.Context, script *domain.Script) error {
	if _, err := r.db.NamedExecContext(ctx, insertScript, scriptRecordFrom(script)); err != nil {
		return fmt.Errorf("script repo: insert: %w", err)
	}
	return nil
}

// Get fetches a script by id.
func (r *ScriptRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Script, error) {
	var record scriptRecord
	err := r.db.QueryRowxContext(ctx, `SELECT id, name, content, category, is_active, created_at, updated_at
		FROM scripts WHERE id = $1`, id).StructScan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("script repo: get: %w", err)
	}
	script := record.toDomain()
	return &script, nil
}

// Update replaces the editable fields of a script.
func (r *ScriptRepository) Update(ctx context.Context, script *domain.Script) error {
	res, err := r.db.NamedExecContext(ctx, `UPDATE scripts SET
		name = :name,
		content = :content,
		category = :category,
		is_active = :is_active,
		updated_at = :updated_at
	 WHERE id = :id`, scriptRecordFrom(script))
	if err != nil {
		return fmt.Errorf("script repo: update: %w", err)
	}
	return expectOneRow(res, "script repo")
}

// Delete removes a script.
func (r *ScriptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("script repo: delete: %w", err)
	}
	return expectOneRow(res, "script repo")
}

// List returns scripts ordered by category and name.
func (r *ScriptRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Script, error) {
	q := `SELECT id, name, content, category, is_active, created_at, updated_at FROM scripts`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY category ASC, name ASC`

	var records []scriptRecord
	if err := r.db.SelectContext(ctx, &records, q); err != nil {
		return nil, fmt.Errorf("script repo: list: %w", err)
	}
	scripts := make([]*domain.Script, 0, len(records))
	for _, rec := range records {
		script := rec.toDomain()
		scripts = append(scripts, &script)
	}
	return scripts, nil
}

// Count returns the number of stored scripts.
func (r *ScriptRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM scripts`); err != nil {
		return 0, fmt.Errorf("script repo: count: %w", err)
	}
	return n, nil
}

// Seed writes the default scripts in one transaction when the table is empty.
func (r *ScriptRepository) Seed(ctx context.Context, scripts []*domain.Script) (int, error) {
	n, err := seedIfEmpty(ctx, r.db, "scripts", func(tx *sqlx.Tx) (int, error) {
		stmt, err := tx.PrepareNamedContext(ctx, insertScript)
		if err != nil {
			return 0, fmt.Errorf("prepare seed: %w", err)
		}
		defer stmt.Close()

		for i, s := range scripts {
			if _, err := stmt.ExecContext(ctx, scriptRecordFrom(s)); err != nil {
				return i, fmt.Errorf("seed %q: %w", s.Name, err)
			}
		}
		return len(scripts), nil
	})
	if err != nil {
		return 0, fmt.Errorf("script repo: %w", err)
	}
	return n, nil
}

type scriptRecord struct {
	ID        uuid.UUID    `db:"id"`
	Name      string       `db:"name"`
	Content   string       `db:"content"`
	Category  string       `db:"category"`
	IsActive  bool         `db:"is_active"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

func scriptRecordFrom(s *domain.Script) scriptRecord {
	return scriptRecord{
		ID:        s.ID,
		Name:      s.Name,
		Content:   s.Content,
		Category:  s.Category,
		IsActive:  s.IsActive,
		CreatedAt: sql.NullTime{Time: s.CreatedAt, Valid: !s.CreatedAt.IsZero()},
		UpdatedAt: sql.NullTime{Time: s.UpdatedAt, Valid: !s.UpdatedAt.IsZero()},
	}
}

func (r scriptRecord) toDomain() domain.Script {
	return domain.Script{
		ID:        r.ID,
		Name:      r.Name,
		Content:   r.Content,
		Category:  r.Category,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

func expectOneRow(res sql.Result, component string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", component, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.ScriptRepository = (*ScriptRepository)(nil)
