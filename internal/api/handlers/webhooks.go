package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/service/webhook"
	"github.com/ProductBay/vynce/internal/telephony/vonage"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

// providerEvent covers the fields Vonage sends to the status and machine detection
// callbacks.
type providerEvent struct {
	UUID             string      `json:"uuid"`
	CallUUID         string      `json:"call_uuid"`
	ConversationUUID string      `json:"conversation_uuid"`
	Status           string      `json:"status"`
	Detail           string      `json:"detail"`
	SIPCode          flexibleInt `json:"sip_code"`
	MachineDetection string      `json:"machine_detection"`
}

func (e providerEvent) remoteID() string {
	for _, id := range []string{e.UUID, e.CallUUID, e.ConversationUUID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

// flexibleInt accepts a JSON number or a numeric string.
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		var fl float64
		if jerr := json.Unmarshal([]byte(raw), &fl); jerr != nil {
			return err
		}
		n = int(fl)
	}
	*f = flexibleInt(n)
	return nil
}

// statusWebhook always acknowledges so the provider does not retry; problems are logged.
func (h *HandlerSet) statusWebhook(ctx *fiber.Ctx) error {
	var ev providerEvent
	if err := ctx.BodyParser(&ev); err != nil {
		h.logger.Warn("status webhook: unreadable body", zap.Error(err))
		return ctx.SendStatus(http.StatusOK)
	}

	_, err := h.Webhooks.OnStatusEvent(ctx.UserContext(), webhook.StatusEvent{
		RemoteID:         ev.remoteID(),
		Status:           ev.Status,
		Detail:           ev.Detail,
		SIPCode:          int(ev.SIPCode),
		MachineDetection: ev.MachineDetection,
	})
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		h.logger.WithContext(ctx.UserContext()).Warn("status webhook rejected",
			zap.String("remote_id", ev.remoteID()),
			zap.String("status", ev.Status),
			zap.Error(err))
	}
	return ctx.SendStatus(http.StatusOK)
}

// answerWebhook bridges the callee to the forwarding number with machine detection.
func (h *HandlerSet) answerWebhook(ctx *fiber.Ctx) error {
	doc := vonage.AnswerNCCO(vonage.AnswerOptions{
		Greeting:  h.Answer.Greeting,
		From:      h.Settings.CallerID(),
		ForwardTo: h.Answer.ForwardTo,
		AMDURL:    h.Answer.AMDURL,
	})
	return ctx.Status(http.StatusOK).JSON(doc)
}

// amdWebhook answers a machine detection callback with the next call-control document.
// A human, an unknown call or a repeated detection leaves the call untouched.
func (h *HandlerSet) amdWebhook(ctx *fiber.Ctx) error {
	var ev providerEvent
	if err := ctx.BodyParser(&ev); err != nil {
		return badRequest("invalid request body")
	}
	result := ev.MachineDetection
	if result == "" {
		result = ev.Status
	}

	_, instr, err := h.Webhooks.OnAnsweringMachineEvent(ctx.UserContext(), ev.remoteID(), result)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ctx.SendStatus(http.StatusNoContent)
		}
		return translateError(err)
	}
	if instr.Continue {
		return ctx.SendStatus(http.StatusNoContent)
	}
	if instr.Speak == "" {
		return ctx.Status(http.StatusOK).JSON(vonage.HangupNCCO())
	}
	return ctx.Status(http.StatusOK).JSON(vonage.TalkNCCO(instr.Speak))
}
