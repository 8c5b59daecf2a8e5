package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
)

var userRowColumns = []string{
	"id", "email", "password_hash", "first_name", "last_name", "role", "plan", "max_calls",
	"subscription_active", "expires_at", "created_at", "updated_at",
}

func TestUserRepositoryCreate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user := &domain.User{
		ID:           uuid.MustParse("5b7c3a1e-4b8a-4bb0-9d3e-2f1d4c0a9e11"),
		Email:        "Alex@Example.com",
		PasswordHash: "hash",
		FirstName:    "Alex",
		LastName:     "Rivera",
		Role:         domain.RoleCustomer,
		Subscription: domain.Subscription{Plan: domain.PlanStarter, MaxCalls: 1000, Active: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tests := []struct {
		name      string
		setupMock func(pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "inserted",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(
						user.ID,
						"alex@example.com",
						"hash",
						"Alex",
						"Rivera",
						"customer",
						"starter",
						1000,
						true,
						pgxmock.AnyArg(),
						now,
						now,
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "email taken",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WillReturnResult(pgxmock.NewResult("INSERT", 0))
			},
			wantErr: repository.ErrConflict,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create pgx mock: %v", err)
			}
			defer mock.Close()
			tc.setupMock(mock)

			err = NewUserRepository(mock).Create(context.Background(), user)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestUserRepositoryGetByEmail(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := created.AddDate(0, 1, 0)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("alex@example.com").
		WillReturnRows(pgxmock.NewRows(userRowColumns).AddRow(
			id, "alex@example.com", "hash", "Alex", "Rivera", "admin", "professional", 5000,
			true, &expires, created, created,
		))

	user, err := NewUserRepository(mock).GetByEmail(context.Background(), "  Alex@Example.com ")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if user.ID != id || user.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Subscription.Plan != domain.PlanProfessional || user.Subscription.MaxCalls != 5000 {
		t.Fatalf("unexpected subscription %+v", user.Subscription)
	}
	if user.Subscription.ExpiresAt == nil || !user.Subscription.ExpiresAt.Equal(expires) {
		t.Fatalf("expected expiry %v, got %v", expires, user.Subscription.ExpiresAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepositoryGetByIDNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userRowColumns))

	_, err = NewUserRepository(mock).GetByID(context.Background(), id)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepositoryUpdateSubscription(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	known, missing := uuid.New(), uuid.New()
	sub := domain.Subscription{Plan: domain.PlanEnterprise, MaxCalls: 20000, Active: true}
	mock.ExpectExec(`UPDATE users`).
		WithArgs("enterprise", 20000, true, pgxmock.AnyArg(), known).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users`).
		WithArgs("enterprise", 20000, true, pgxmock.AnyArg(), missing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewUserRepository(mock)
	if err := repo.UpdateSubscription(context.Background(), known, sub); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}
	if err := repo.UpdateSubscription(context.Background(), missing, sub); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
