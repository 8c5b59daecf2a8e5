package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/scheduler"
	"github.com/ProductBay/vynce/internal/service/bulk"
	callsvc "github.com/ProductBay/vynce/internal/service/call"
	"github.com/ProductBay/vynce/internal/service/history"
	"github.com/ProductBay/vynce/internal/service/library"
	settingssvc "github.com/ProductBay/vynce/internal/service/settings"
	"github.com/ProductBay/vynce/internal/service/usage"
	"github.com/ProductBay/vynce/internal/service/webhook"
	"github.com/ProductBay/vynce/pkg/logger"
)

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

// AnswerConfig shapes the call-control document served when a placed call is answered.
type AnswerConfig struct {
	Greeting  string
	ForwardTo string
	AMDURL    string
}

// Dependencies are the services the HTTP layer drives.
type Dependencies struct {
	Calls     *callsvc.Service
	Bulk      *bulk.Processor
	Webhooks  *webhook.Handler
	Settings  *settingssvc.Service
	Library   *library.Service
	Scheduler *scheduler.Scheduler
	History   *history.Service
	Accounts  *auth.Service
	Tokens    *auth.Manager
	Users     UserAdmin
	Usage     *usage.Guard
	Hub       *events.Hub
	Metrics   http.Handler
	Health    map[string]HealthCheck
	Answer    AnswerConfig
	Logger    *logger.Logger

	MaxUploadRows int
	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat     time.Duration
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	Dependencies
	logger *logger.Logger
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(deps Dependencies) *HandlerSet {
	lg := deps.Logger
	if lg == nil {
		lg = logger.NewNop()
	}
	if deps.Heartbeat <= 0 {
		deps.Heartbeat = 15 * time.Second
	}
	return &HandlerSet{Dependencies: deps, logger: lg.Named("http")}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics))
	}

	hooks := app.Group("/webhooks")
	hooks.Post("/status", h.statusWebhook)
	hooks.Get("/answer", h.answerWebhook)
	hooks.Post("/answer", h.answerWebhook)
	hooks.Post("/amd", h.amdWebhook)

	api := app.Group("/api")
	api.Post("/auth/register", h.register)
	api.Post("/auth/login", h.login)
	api.Post("/auth/refresh", h.refresh)
	api.Get("/subscription/plans", h.listPlans)

	secured := api.Group("", auth.RequireAccessToken(h.Tokens))
	admin := auth.RequireAdmin()

	secured.Get("/auth/me", h.me)
	secured.Get("/usage", h.usage)
	secured.Get("/events", h.stream)

	secured.Get("/users", admin, h.listUsers)
	secured.Put("/users/:id/subscription", admin, h.updateSubscription)

	calls := secured.Group("/calls")
	calls.Get("/", h.listCalls)
	calls.Post("/", h.makeCall)
	calls.Delete("/", admin, h.clearCalls)
	calls.Get("/:id", h.getCall)
	calls.Post("/:id/end", h.endCall)
	calls.Post("/:id/notes", h.addNote)
	calls.Put("/:id/outcome", h.setOutcome)

	bulkGroup := secured.Group("/bulk")
	bulkGroup.Post("/", h.enqueueBulk)
	bulkGroup.Post("/stop", h.stopBulk)
	bulkGroup.Get("/status", h.bulkStatus)
	bulkGroup.Post("/csv", h.uploadCSV)
	bulkGroup.Post("/schedule", h.scheduleCSV)
	bulkGroup.Get("/scheduled", h.listScheduled)

	secured.Get("/settings", h.getSettings)
	secured.Put("/settings", h.updateSettings)

	scripts := secured.Group("/scripts")
	scripts.Get("/", h.listScripts)
	scripts.Post("/", h.createScript)
	scripts.Get("/:id", h.getScript)
	scripts.Put("/:id", h.updateScript)
	scripts.Delete("/:id", h.deleteScript)

	messages := secured.Group("/voicemail/messages")
	messages.Get("/", h.listMessages)
	messages.Post("/", h.createMessage)
	messages.Get("/:id", h.getMessage)
	messages.Put("/:id", h.updateMessage)
	messages.Delete("/:id", h.deleteMessage)

	secured.Get("/history", h.listHistory)
	secured.Get("/analytics/overview", h.analyticsOverview)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	err = translateError(err)
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	traceID := ""
	if sc := trace.SpanContextFromContext(ctx.UserContext()); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if code >= fiber.StatusInternalServerError {
		h.logger.WithContext(ctx.UserContext()).Error("request failed",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": traceID,
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.Health {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status := fiber.StatusOK
	state := "ok"
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}

	body := fiber.Map{"status": state, "errors": errs}
	if h.Bulk != nil {
		body["bulk"] = h.Bulk.Status()
	}
	return ctx.Status(status).JSON(body)
}
