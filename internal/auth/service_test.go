package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ProductBay/vynce/internal/domain"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[uuid.UUID]*domain.User{}}
}

func (m *memoryUsers) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperrors.ErrConflict
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memoryUsers) UpdateSubscription(_ context.Context, id uuid.UUID, sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.Subscription = sub
	return nil
}

func (m *memoryUsers) List(context.Context, int) ([]*domain.User, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *memoryUsers) {
	users := newMemoryUsers()
	return NewService(users, newTestManager(t), bcrypt.MinCost, nil), users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{
		Email:     " Ops@Example.com ",
		Password:  "correct horse",
		FirstName: "Ops",
		Plan:      "Professional",
	})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", session.User.Email)
	assert.Equal(t, "customer", session.User.Role)
	assert.Equal(t, "professional", session.User.Plan)
	assert.Equal(t, 5000, session.User.MaxCalls)
	assert.NotEmpty(t, session.Tokens.AccessToken)

	_, err = svc.Register(ctx, RegisterInput{Email: "ops@example.com", Password: "another one", FirstName: "Dup"})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	logged, err := svc.Login(ctx, "OPS@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, logged.User.ID)

	_, err = svc.Login(ctx, "ops@example.com", "wrong password")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []RegisterInput{
		{Email: "not-an-email", Password: "long enough", FirstName: "A"},
		{Email: "a@example.com", Password: "short", FirstName: "A"},
		{Email: "a@example.com", Password: "long enough"},
		{Email: "a@example.com", Password: "long enough", FirstName: "A", Plan: "platinum"},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", in, err)
		}
	}
}

func TestRefreshPicksUpPlanChanges(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "long enough", FirstName: "A"})
	require.NoError(t, err)
	assert.Equal(t, "starter", session.User.Plan)

	require.NoError(t, users.UpdateSubscription(ctx, session.User.ID, domain.Subscription{
		Plan: domain.PlanEnterprise, MaxCalls: 20000, Active: true,
	}))

	refreshed, err := svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", refreshed.User.Plan)

	_, err = svc.Refresh(ctx, session.Tokens.AccessToken)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	me, err := svc.Me(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 20000, me.MaxCalls)
}
