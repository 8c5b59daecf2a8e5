package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/service/library"
)

type scriptRequest struct {
	Name     *string `json:"name"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
	IsActive *bool   `json:"isActive"`
}

type messageRequest struct {
	Name     *string `json:"name"`
	Content  *string `json:"content"`
	IsActive *bool   `json:"isActive"`
}

type scriptResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toScriptResponse(s *domain.Script) scriptResponse {
	return scriptResponse{
		ID:        s.ID,
		Name:      s.Name,
		Content:   s.Content,
		Category:  s.Category,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.VoicemailMessage) messageResponse {
	return messageResponse{
		ID:        m.ID,
		Name:      m.Name,
		Content:   m.Content,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pathID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, badRequest("invalid id")
	}
	return id, nil
}

func (h *HandlerSet) listScripts(ctx *fiber.Ctx) error {
	scripts, err := h.Library.ListScripts(ctx.UserContext(), ctx.QueryBool("active", false))
	if err != nil {
		return translateError(err)
	}
	out := make([]scriptResponse, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, toScriptResponse(s))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"scripts": out})
}

func (h *HandlerSet) getScript(ctx *fiber.Ctx) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	script, err := h.Library.GetScript(ctx.UserContext(), id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toScriptResponse(script))
}

func (h *HandlerSet) createScript(ctx *fiber.Ctx) error {
	var req scriptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	script, err := h.Library.CreateScript(ctx.UserContext(), library.ScriptInput{
		Name:     deref(req.Name),
		Content:  deref(req.Content),
		Category: deref(req.Category),
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(toScriptResponse(script))
}

func (h *HandlerSet) updateScript(ctx *fiber.Ctx) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var req scriptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	script, err := h.Library.UpdateScript(ctx.UserContext(), library.UpdateScriptInput{
		ID:       id,
		Name:     req.Name,
		Content:  req.Content,
		Category: req.Category,
		IsActive: req.IsActive,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toScriptResponse(script))
}

func (h *HandlerSet) deleteScript(ctx *fiber.Ctx) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := h.Library.DeleteScript(ctx.UserContext(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) listMessages(ctx *fiber.Ctx) error {
	messages, err := h.Library.ListMessages(ctx.UserContext(), ctx.QueryBool("active", false))
	if err != nil {
		return translateError(err)
	}
	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"messages": out})
}

func (h *HandlerSet) getMessage(ctx *fiber.Ctx) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	msg, err := h.Library.GetMessage(ctx.UserContext(), id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toMessageResponse(msg))
}

func (h *HandlerSet) createMessage(ctx *fiber.Ctx) error {
	var req messageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	msg, err := h.Library.CreateMessage(ctx.UserContext(), library.MessageInput{
		Name:    deref(req.Name),
		Content: deref(req.Content),
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(toMessageResponse(msg))
}

func (h *HandlerSet) updateMessage(ctx *fiber.Ctx) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var req messageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	msg, err := h.Library.UpdateMessage(ctx.UserContext(), library.UpdateMessageInput{
		ID:       id,
		Name:     req.Name,
		Content:  req.Content,
		IsActive: req.IsActive,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toMessageResponse(msg))
}

func (h *HandlerSet) deleteMessage(ctx *fiber.Ctx) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := h.Library.DeleteMessage(ctx.UserContext(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}
