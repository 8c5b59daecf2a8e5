package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/service/history"
)

func (h *HandlerSet) listHistory(ctx *fiber.Ctx) error {
	page, err := h.History.List(ctx.UserContext(), history.Query{
		Day:       ctx.Query("day"),
		Number:    ctx.Query("number"),
		Limit:     ctx.QueryInt("limit", 0),
		PageToken: ctx.Query("pageToken"),
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(page)
}

func (h *HandlerSet) analyticsOverview(ctx *fiber.Ctx) error {
	id, _ := auth.FromFiber(ctx)
	overview, err := h.History.Overview(ctx.UserContext(), id.UserID)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "data": overview})
}
