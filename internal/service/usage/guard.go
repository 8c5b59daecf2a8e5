// Package usage enforces monthly call allowances per subscription.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/domain"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

// Counter stores monthly call counts.
type Counter interface {
	Reserve(ctx context.Context, userID uuid.UUID, n, limit int) (int64, bool, error)
	Release(ctx context.Context, userID uuid.UUID, n int) error
	Used(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Users resolves the subscription of a caller.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Usage summarises a user's month.
type Usage struct {
	Plan      domain.Plan `json:"plan"`
	Used      int64       `json:"used"`
	Limit     int         `json:"limit"`
	Remaining int64       `json:"remaining"`
	Unlimited bool        `json:"unlimited"`
}

// Guard checks subscriptions before calls are placed.
type Guard struct {
	counter Counter
	users   Users
	now     func() time.Time
}

// NewGuard builds a guard.
func NewGuard(counter Counter, users Users) *Guard {
	return &Guard{counter: counter, users: users, now: time.Now}
}

// Reserve counts n calls for userID. Admins are not metered.
func (g *Guard) Reserve(ctx context.Context, userID uuid.UUID, n int) (Usage, error) {
	user, limit, err := g.subscription(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	if user.Role.IsAdmin() {
		return Usage{Plan: user.Subscription.Plan, Unlimited: true}, nil
	}

	used, ok, err := g.counter.Reserve(ctx, userID, n, limit)
	if err != nil {
		return Usage{}, fmt.Errorf("usage guard: reserve: %w", err)
	}
	usage := summarise(user.Subscription.Plan, used, limit)
	if !ok {
		return usage, fmt.Errorf("%w: %d of %d monthly calls used, %d requested",
			apperrors.ErrQuotaExceeded, used, limit, n)
	}
	return usage, nil
}

// Release gives back n calls that were reserved but never placed.
func (g *Guard) Release(ctx context.Context, userID uuid.UUID, n int) error {
	return g.counter.Release(ctx, userID, n)
}

// Usage reports the month so far.
func (g *Guard) Usage(ctx context.Context, userID uuid.UUID) (Usage, error) {
	user, limit, err := g.subscription(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	used, err := g.counter.Used(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("usage guard: used: %w", err)
	}
	usage := summarise(user.Subscription.Plan, used, limit)
	usage.Unlimited = user.Role.IsAdmin()
	return usage, nil
}

func (g *Guard) subscription(ctx context.Context, userID uuid.UUID) (*domain.User, int, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("usage guard: user %s: %w", userID, err)
	}
	if user.Role.IsAdmin() {
		return user, 0, nil
	}
	if !user.Subscription.Usable(g.now()) {
		return nil, 0, fmt.Errorf("%w: subscription is inactive or expired", apperrors.ErrForbidden)
	}
	limit := user.Subscription.MaxCalls
	if limit <= 0 {
		if plan, ok := domain.LookupPlan(string(user.Subscription.Plan)); ok {
			limit = plan.MaxCalls
		}
	}
	return user, limit, nil
}

func summarise(plan domain.Plan, used int64, limit int) Usage {
	remaining := int64(limit) - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Plan: plan, Used: used, Limit: limit, Remaining: remaining}
}
