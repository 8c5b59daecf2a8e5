package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/domain"
	settingssvc "github.com/ProductBay/vynce/internal/service/settings"
)

type settingsView struct {
	domain.Settings
	BulkDelayMs int64 `json:"bulkDelayMs"`
}

func viewSettings(s domain.Settings) settingsView {
	return settingsView{Settings: s, BulkDelayMs: s.BulkDelayMs()}
}

func (h *HandlerSet) getSettings(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(viewSettings(h.Settings.Current()))
}

// updateSettings applies a partial update. Only administrators may change the delay.
func (h *HandlerSet) updateSettings(ctx *fiber.Ctx) error {
	var patch settingssvc.Patch
	if err := ctx.BodyParser(&patch); err != nil {
		return badRequest("invalid request body")
	}
	id, _ := auth.FromFiber(ctx)
	if patch.TouchesDelay() && !id.Role.IsAdmin() {
		return fiber.NewError(http.StatusForbidden, "only administrators may change the bulk delay")
	}

	updated, err := h.Settings.Update(ctx.UserContext(), patch)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(viewSettings(updated))
}
