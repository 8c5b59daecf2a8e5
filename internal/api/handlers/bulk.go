package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/csvimport"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/scheduler"
	settingssvc "github.com/ProductBay/vynce/internal/service/settings"
)

const apiSource = "api"

type bulkRequest struct {
	Entries []domain.BatchEntry `json:"entries"`
	Numbers []string            `json:"numbers"`
	DelayMs *int64              `json:"delayMs"`
}

func (r bulkRequest) entries() []domain.BatchEntry {
	out := make([]domain.BatchEntry, 0, len(r.Entries)+len(r.Numbers))
	for _, e := range r.Entries {
		if strings.TrimSpace(e.Number) != "" {
			out = append(out, e)
		}
	}
	for _, n := range r.Numbers {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, domain.BatchEntry{Number: n})
		}
	}
	return out
}

// enqueueBulk queues numbers and starts draining them unless a batch is already running.
func (h *HandlerSet) enqueueBulk(ctx *fiber.Ctx) error {
	var req bulkRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	entries := req.entries()
	if len(entries) == 0 {
		return badRequest("entries must contain at least one number")
	}

	id, _ := auth.FromFiber(ctx)
	if req.DelayMs != nil {
		if !id.Role.IsAdmin() {
			return fiber.NewError(http.StatusForbidden, "only administrators may change the bulk delay")
		}
		if _, err := h.Settings.Update(ctx.UserContext(), settingssvc.Patch{BulkDelayMs: req.DelayMs}); err != nil {
			return translateError(err)
		}
	}
	if _, err := h.Usage.Reserve(ctx.UserContext(), id.UserID, len(entries)); err != nil {
		return translateError(err)
	}

	n := h.Bulk.Enqueue(apiSource, entries...)
	h.Bulk.Kick()
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"queued":      len(entries),
		"queueLength": n,
		"status":      h.Bulk.Status(),
	})
}

func (h *HandlerSet) stopBulk(ctx *fiber.Ctx) error {
	cleared := h.Bulk.Stop()
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"cleared": cleared, "status": h.Bulk.Status()})
}

func (h *HandlerSet) bulkStatus(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(h.Bulk.Status())
}

// uploadCSV parses a contact sheet from the "file" form field and queues its numbers.
func (h *HandlerSet) uploadCSV(ctx *fiber.Ctx) error {
	filename, res, err := h.parseUpload(ctx)
	if err != nil {
		return err
	}

	id, _ := auth.FromFiber(ctx)
	if _, err := h.Usage.Reserve(ctx.UserContext(), id.UserID, res.Accepted); err != nil {
		return translateError(err)
	}

	n := h.Bulk.Enqueue(filename, res.Entries...)
	h.Bulk.Kick()
	h.logger.WithContext(ctx.UserContext()).Info("csv queued",
		zap.String("filename", filename),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected))
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"filename":    filename,
		"result":      res,
		"queueLength": n,
	})
}

// scheduleCSV holds a contact sheet until the scheduledAt form value, an RFC 3339 time.
// A missing or past time queues the sheet right away.
func (h *HandlerSet) scheduleCSV(ctx *fiber.Ctx) error {
	var at time.Time
	if raw := strings.TrimSpace(ctx.FormValue("scheduledAt")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest("scheduledAt must be an RFC 3339 timestamp")
		}
		at = parsed
	}

	filename, res, err := h.parseUpload(ctx)
	if err != nil {
		return err
	}

	id, _ := auth.FromFiber(ctx)
	if _, err := h.Usage.Reserve(ctx.UserContext(), id.UserID, res.Accepted); err != nil {
		return translateError(err)
	}

	scheduled, err := h.Scheduler.Schedule(ctx.UserContext(), scheduler.ScheduleInput{
		Source:      filename,
		CreatedBy:   id.Email,
		ScheduledAt: at,
		Entries:     res.Entries,
	})
	if err != nil {
		if rerr := h.Usage.Release(ctx.UserContext(), id.UserID, res.Accepted); rerr != nil {
			h.logger.Warn("usage release failed", zap.String("user_id", id.UserID.String()), zap.Error(rerr))
		}
		return translateError(err)
	}

	status := "scheduled"
	if scheduled.Immediate {
		status = "queued"
	}
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"status": status,
		"job":    scheduler.Summaries([]*domain.ScheduledBatch{scheduled.Batch})[0],
		"result": res,
	})
}

func (h *HandlerSet) listScheduled(ctx *fiber.Ctx) error {
	batches, err := h.Scheduler.List(ctx.UserContext())
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"jobs": scheduler.Summaries(batches)})
}

func (h *HandlerSet) parseUpload(ctx *fiber.Ctx) (string, *csvimport.Result, error) {
	header, err := ctx.FormFile("file")
	if err != nil {
		return "", nil, badRequest("no file uploaded")
	}
	f, err := header.Open()
	if err != nil {
		return "", nil, badRequest("uploaded file is unreadable")
	}
	defer f.Close()

	res, err := csvimport.Parse(f, csvimport.Options{Source: header.Filename, MaxRows: h.MaxUploadRows})
	if err != nil {
		return "", nil, translateError(err)
	}
	return header.Filename, res, nil
}
