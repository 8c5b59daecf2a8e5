package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
)

// pgxQuerier is the subset of *pgxpool.Pool the user repository needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, password_hash, first_name, last_name, role, plan, max_calls,
	subscription_active, expires_at, created_at, updated_at`

// UserRepository implements repository.UserRepository on a pgx pool.
type UserRepository struct {
	pool pgxQuerier
}

// NewUserRepository constructs a new repository.
func NewUserRepository(pool pgxQuerier) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a user. A taken email yields repository.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (email) DO NOTHING`,
		user.ID,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		string(user.Role),
		string(user.Subscription.Plan),
		user.Subscription.MaxCalls,
		user.Subscription.Active,
		user.Subscription.ExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("user repo: insert: %w", repository.ErrConflict)
		}
		return fmt.Errorf("user repo: insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user repo: email %s already registered: %w", user.Email, repository.ErrConflict)
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "get by id")
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row, "get by email")
}

// UpdateSubscription replaces the plan and quota of a user.
func (r *UserRepository) UpdateSubscription(ctx context.Context, id uuid.UUID, sub domain.Subscription) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		   SET plan = $1, max_calls = $2, subscription_active = $3, expires_at = $4, updated_at = NOW()
		 WHERE id = $5`,
		string(sub.Plan), sub.MaxCalls, sub.Active, sub.ExpiresAt, id)
	if err != nil {
		return fmt.Errorf("user repo: update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns users ordered by creation time.
func (r *UserRepository) List(ctx context.Context, limit int) ([]*domain.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("user repo: list: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows, "list")
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user repo: rows err: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row, action string) (*domain.User, error) {
	var (
		u         domain.User
		role      string
		plan      string
		expiresAt *time.Time
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&role,
		&plan,
		&u.Subscription.MaxCalls,
		&u.Subscription.Active,
		&expiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("user repo: %s: %w", action, err)
	}
	u.Role = domain.Role(role)
	u.Subscription.Plan = domain.Plan(plan)
	u.Subscription.ExpiresAt = expiresAt
	return &u, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
