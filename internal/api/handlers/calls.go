package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/domain"
	callsvc "github.com/ProductBay/vynce/internal/service/call"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

type makeCallRequest struct {
	Number   string         `json:"number"`
	To       string         `json:"to"`
	Metadata map[string]any `json:"metadata"`
}

type noteRequest struct {
	Text string `json:"text"`
	Note string `json:"note"`
}

type outcomeRequest struct {
	Outcome string `json:"outcome"`
}

func (h *HandlerSet) listCalls(ctx *fiber.Ctx) error {
	calls := h.Calls.ListCalls(ctx.QueryInt("limit", 0))
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"calls": calls, "total": len(calls)})
}

func (h *HandlerSet) getCall(ctx *fiber.Ctx) error {
	call, err := h.Calls.GetCall(ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(call)
}

// makeCall places one call on behalf of the caller, counting it against their plan.
// Numbers that cannot be normalized are not counted.
func (h *HandlerSet) makeCall(ctx *fiber.Ctx) error {
	var req makeCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		number = strings.TrimSpace(req.To)
	}
	if number == "" {
		return badRequest("number is required")
	}

	id, _ := auth.FromFiber(ctx)
	uctx := ctx.UserContext()
	if _, err := h.Usage.Reserve(uctx, id.UserID, 1); err != nil {
		return translateError(err)
	}

	call, err := h.Calls.InitiateCall(uctx, callsvc.InitiateCallInput{
		Number:   number,
		Metadata: req.Metadata,
		Type:     domain.CallTypeSingle,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			if rerr := h.Usage.Release(uctx, id.UserID, 1); rerr != nil {
				h.logger.Warn("usage release failed", zap.String("user_id", id.UserID.String()), zap.Error(rerr))
			}
			return translateError(err)
		}
		return ctx.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "call": call})
	}
	return ctx.Status(http.StatusCreated).JSON(call)
}

func (h *HandlerSet) endCall(ctx *fiber.Ctx) error {
	call, err := h.Calls.EndCall(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(call)
}

func (h *HandlerSet) addNote(ctx *fiber.Ctx) error {
	var req noteRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	text := req.Text
	if text == "" {
		text = req.Note
	}
	id, _ := auth.FromFiber(ctx)
	call, err := h.Calls.AddNote(ctx.Params("id"), text, id.Email)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(call)
}

func (h *HandlerSet) setOutcome(ctx *fiber.Ctx) error {
	var req outcomeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	call, err := h.Calls.SetOutcome(ctx.Params("id"), req.Outcome)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(call)
}

func (h *HandlerSet) clearCalls(ctx *fiber.Ctx) error {
	n := h.Calls.ClearCalls()
	h.logger.Info("call records cleared", zap.Int("cleared", n))
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"cleared": n})
}
