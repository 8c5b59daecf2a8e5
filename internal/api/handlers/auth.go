package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
)

// UserAdmin is the account store as seen by administrators.
type UserAdmin interface {
	List(ctx context.Context, limit int) ([]*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, sub domain.Subscription) error
}

var _ UserAdmin = (repository.UserRepository)(nil)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type subscriptionRequest struct {
	Plan      string     `json:"plan"`
	Active    *bool      `json:"active"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *HandlerSet) register(ctx *fiber.Ctx) error {
	var req auth.RegisterInput
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	session, err := h.Accounts.Register(ctx.UserContext(), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(session)
}

func (h *HandlerSet) login(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	session, err := h.Accounts.Login(ctx.UserContext(), req.Email, req.Password)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(session)
}

func (h *HandlerSet) refresh(ctx *fiber.Ctx) error {
	var req refreshRequest
	if err := ctx.BodyParser(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest("refreshToken is required")
	}
	session, err := h.Accounts.Refresh(ctx.UserContext(), req.RefreshToken)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(session)
}

func (h *HandlerSet) me(ctx *fiber.Ctx) error {
	id, _ := auth.FromFiber(ctx)
	profile, err := h.Accounts.Me(ctx.UserContext(), id.UserID)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(profile)
}

func (h *HandlerSet) listPlans(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"plans": domain.Plans()})
}

func (h *HandlerSet) usage(ctx *fiber.Ctx) error {
	id, _ := auth.FromFiber(ctx)
	u, err := h.Usage.Usage(ctx.UserContext(), id.UserID)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(u)
}

func (h *HandlerSet) listUsers(ctx *fiber.Ctx) error {
	users, err := h.Users.List(ctx.UserContext(), ctx.QueryInt("limit", 100))
	if err != nil {
		return translateError(err)
	}
	out := make([]auth.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, auth.ProfileOf(u))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"users": out})
}

// updateSubscription changes a user's plan. Billing happens elsewhere; this only records
// the outcome.
func (h *HandlerSet) updateSubscription(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return badRequest("invalid user id")
	}
	var req subscriptionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	plan, ok := domain.LookupPlan(req.Plan)
	if !ok {
		return badRequest("unknown plan")
	}

	user, err := h.Users.GetByID(ctx.UserContext(), id)
	if err != nil {
		return translateError(err)
	}
	sub := domain.Subscription{
		Plan:      plan.Name,
		MaxCalls:  plan.MaxCalls,
		Active:    user.Subscription.Active,
		ExpiresAt: req.ExpiresAt,
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	if err := h.Users.UpdateSubscription(ctx.UserContext(), id, sub); err != nil {
		return translateError(err)
	}
	user.Subscription = sub
	return ctx.Status(http.StatusOK).JSON(auth.ProfileOf(user))
}
