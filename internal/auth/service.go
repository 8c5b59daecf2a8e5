package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

// Service registers and authenticates dashboard users.
type Service struct {
	users      repository.UserRepository
	tokens     *Manager
	bcryptCost int
	logger     *logger.Logger
	now        func() time.Time
}

// NewService wires the account service.
func NewService(users repository.UserRepository, tokens *Manager, bcryptCost int, lg *logger.Logger) *Service {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     lg.Named("auth"),
		now:        time.Now,
	}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Plan      string `json:"plan"`
}

// Profile is the public view of a user.
type Profile struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Role      string     `json:"role"`
	Plan      string     `json:"plan"`
	MaxCalls  int        `json:"maxCalls"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Session is returned after a successful sign-in.
type Session struct {
	User   Profile   `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Register creates a customer account on the requested plan, starter by default.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperrors.Validation("a valid email is required")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return nil, apperrors.Validation("firstName is required")
	}

	planName := in.Plan
	if strings.TrimSpace(planName) == "" {
		planName = string(domain.PlanStarter)
	}
	plan, ok := domain.LookupPlan(planName)
	if !ok {
		return nil, apperrors.Validation("unknown plan %q", in.Plan)
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         domain.RoleCustomer,
		Subscription: domain.Subscription{
			Plan:     plan.Name,
			MaxCalls: plan.MaxCalls,
			Active:   true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("auth: register: %w", err)
	}
	s.logger.WithContext(ctx).Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("plan", string(plan.Name)))

	return s.session(user)
}

// Login checks credentials and issues a token pair. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthorized)
		}
		return nil, fmt.Errorf("auth: login: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.logger.WithContext(ctx).Warn("login rejected", zap.String("user_id", user.ID.String()))
		return nil, fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthorized)
	}
	return s.session(user)
}

// Refresh exchanges a refresh token for a new pair, re-reading the user so role and
// plan changes take effect.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.Verify(refreshToken, TokenTypeRefresh, s.now())
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, uuid.MustParse(claims.UserID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", apperrors.ErrUnauthorized)
		}
		return nil, fmt.Errorf("auth: refresh: %w", err)
	}
	return s.session(user)
}

// Me returns the caller's profile.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (Profile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return Profile{}, fmt.Errorf("auth: me: %w", err)
	}
	return ProfileOf(user), nil
}

func (s *Service) session(user *domain.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(s.now(), user)
	if err != nil {
		return nil, err
	}
	return &Session{User: ProfileOf(user), Tokens: pair}, nil
}

// ProfileOf hides credentials from a user record.
func ProfileOf(u *domain.User) Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		Plan:      string(u.Subscription.Plan),
		MaxCalls:  u.Subscription.MaxCalls,
		Active:    u.Subscription.Active,
		ExpiresAt: u.Subscription.ExpiresAt,
		CreatedAt: u.CreatedAt,
	}
}
