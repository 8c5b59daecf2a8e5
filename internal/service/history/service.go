// Package history serves archived calls and the analytics overview built from them.
package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
	"github.com/ProductBay/vynce/internal/service/common"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	// overviewDays is the analytics look-back window.
	overviewDays    = 30
	// unassignedAgent labels calls placed without an agent in their metadata.
	unassignedAgent = "Unassigned"
)

// Users resolves the caller's subscription for analytics gating.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Service records finished calls and reads them back.
type Service struct {
	archive repository.CallArchive
	stats   repository.StatsRepository
	users   Users
	logger  *logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService wires the history service.
func NewService(archive repository.CallArchive, stats repository.StatsRepository, users Users, lg *logger.Logger) *Service {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Service{
		archive: archive,
		stats:   stats,
		users:   users,
		logger:  lg.Named("history"),
		tracer:  otel.Tracer("github.com/ProductBay/vynce/internal/service/history"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record archives a terminal call and folds it into the daily aggregates.
// Non-terminal calls are ignored.
func (s *Service) Record(ctx context.Context, call *domain.Call) error {
	if call == nil || !call.Status.IsTerminal() {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "history.record",
		trace.WithAttributes(
			attribute.String("call.local_id", call.LocalID),
			attribute.String("call.status", string(call.Status)),
		))
	defer span.End()

	if err := s.archive.Archive(ctx, call); err != nil {
		span.RecordError(err)
		return fmt.Errorf("history: archive %s: %w", call.LocalID, err)
	}

	day := call.CreatedAt
	if call.EndedAt != nil {
		day = *call.EndedAt
	}
	var secs int64
	if call.Duration != nil {
		secs = *call.Duration
	}
	if err := s.stats.Increment(ctx, domain.DailyCallStats{
		Day:             day,
		Status:          call.Status,
		Agent:           agentOf(call),
		Calls:           1,
		DurationSeconds: secs,
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("history: stats %s: %w", call.LocalID, err)
	}
	s.logger.WithContext(ctx).Debug("call archived",
		zap.String("local_id", call.LocalID),
		zap.String("status", string(call.Status)))
	return nil
}

// Query selects a page of archived calls by day or by number.
type Query struct {
	// Day is "YYYY-MM-DD" in UTC; empty means today unless Number is set.
	Day       string
	Number    string
	Limit     int
	PageToken string
}

// Page is one slice of history.
type Page struct {
	Calls         []domain.Call `json:"calls"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

// List returns archived calls newest first.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	state, err := common.DecodePageToken(q.PageToken)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var (
		calls []domain.Call
		next  []byte
	)
	if number := strings.TrimSpace(q.Number); number != "" {
		calls, next, err = s.archive.ListByNumber(ctx, number, limit, state)
	} else {
		day := s.now()
		if q.Day != "" {
			day, err = time.Parse(time.DateOnly, q.Day)
			if err != nil {
				return nil, apperrors.Validation("day must be YYYY-MM-DD")
			}
		}
		calls, next, err = s.archive.ListByDay(ctx, day, limit, state)
	}
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	if calls == nil {
		calls = []domain.Call{}
	}
	return &Page{Calls: calls, NextPageToken: common.EncodePageToken(next)}, nil
}

// DayCount is the number of calls on one day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Overview summarises the last thirty days.
type Overview struct {
	TotalCalls         int64            `json:"totalCalls"`
	StatusCounts       map[string]int64 `json:"statusCounts"`
	AgentCounts        map[string]int64 `json:"agentCounts"`
	CallsPerDay        []DayCount       `json:"callsPerDay"`
	AvgDurationSeconds int64            `json:"avgDurationSeconds"`
	From               string           `json:"from"`
	To                 string           `json:"to"`
}

// Overview builds the analytics summary for userID. Plans without analytics are
// refused; administrators always have access.
func (s *Service) Overview(ctx context.Context, userID uuid.UUID) (*Overview, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("history: overview: %w", err)
	}
	if !user.Role.IsAdmin() {
		plan, ok := domain.LookupPlan(string(user.Subscription.Plan))
		if !ok || !plan.Analytics {
			return nil, fmt.Errorf("%w: your current plan does not include analytics", apperrors.ErrForbidden)
		}
	}

	to := s.now()
	from := to.AddDate(0, 0, -overviewDays)
	rows, err := s.stats.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("history: overview: %w", err)
	}
	out := Summarize(rows)
	out.From = from.Format(time.DateOnly)
	out.To = to.Format(time.DateOnly)
	return out, nil
}

// Summarize folds daily aggregates into an overview.
func Summarize(rows []domain.DailyCallStats) *Overview {
	out := &Overview{
		StatusCounts: map[string]int64{},
		AgentCounts:  map[string]int64{},
		CallsPerDay:  []DayCount{},
	}
	perDay := map[string]int64{}
	var duration int64
	for _, r := range rows {
		out.TotalCalls += r.Calls
		out.StatusCounts[string(r.Status)] += r.Calls
		agent := r.Agent
		if agent == "" {
			agent = unassignedAgent
		}
		out.AgentCounts[agent] += r.Calls
		perDay[r.Day.UTC().Format(time.DateOnly)] += r.Calls
		duration += r.DurationSeconds
	}
	for day, n := range perDay {
		out.CallsPerDay = append(out.CallsPerDay, DayCount{Date: day, Count: n})
	}
	sort.Slice(out.CallsPerDay, func(i, j int) bool { return out.CallsPerDay[i].Date < out.CallsPerDay[j].Date })
	if out.TotalCalls > 0 {
		out.AvgDurationSeconds = int64(math.Round(float64(duration) / float64(out.TotalCalls)))
	}
	return out
}

func agentOf(call *domain.Call) string {
	for _, key := range []string{"agent", "agentName"} {
		if v := strings.TrimSpace(call.MetadataString(key)); v != "" {
			return v
		}
	}
	return unassignedAgent
}
