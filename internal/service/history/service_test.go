package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProductBay/vynce/internal/domain"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

type fakeArchive struct {
	archived []domain.Call
	lastDay  time.Time
	lastNum  string
	state    []byte
}

func (f *fakeArchive) Archive(_ context.Context, call *domain.Call) error {
	f.archived = append(f.archived, *call)
	return nil
}

func (f *fakeArchive) ListByDay(_ context.Context, day time.Time, _ int, state []byte) ([]domain.Call, []byte, error) {
	f.lastDay = day
	f.state = state
	return f.archived, []byte("next"), nil
}

func (f *fakeArchive) ListByNumber(_ context.Context, number string, _ int, state []byte) ([]domain.Call, []byte, error) {
	f.lastNum = number
	f.state = state
	return nil, nil, nil
}

type fakeStats struct {
	rows []domain.DailyCallStats
}

func (f *fakeStats) Increment(_ context.Context, delta domain.DailyCallStats) error {
	f.rows = append(f.rows, delta)
	return nil
}

func (f *fakeStats) Range(context.Context, time.Time, time.Time) ([]domain.DailyCallStats, error) {
	return f.rows, nil
}

type fakeUsers map[uuid.UUID]*domain.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, apperrors.ErrNotFound
}

func TestRecordSkipsLiveCalls(t *testing.T) {
	archive, stats := &fakeArchive{}, &fakeStats{}
	svc := NewService(archive, stats, fakeUsers{}, nil)

	created := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	live := &domain.Call{LocalID: "a", Status: domain.CallStatusRinging, CreatedAt: created}
	require.NoError(t, svc.Record(context.Background(), live))
	assert.Empty(t, archive.archived)

	done := &domain.Call{
		LocalID:   "b",
		Status:    domain.CallStatusCompleted,
		CreatedAt: created,
		Metadata:  map[string]any{"agent": "Kim"},
	}
	done.MarkEnded(created.Add(2 * time.Minute))
	require.NoError(t, svc.Record(context.Background(), done))

	require.Len(t, archive.archived, 1)
	require.Len(t, stats.rows, 1)
	assert.Equal(t, "Kim", stats.rows[0].Agent)
	assert.Equal(t, int64(120), stats.rows[0].DurationSeconds)
	assert.Equal(t, 2, stats.rows[0].Day.Day(), "calls are counted on the day they ended")
}

func TestListPaging(t *testing.T) {
	archive := &fakeArchive{archived: []domain.Call{{LocalID: "x"}}}
	svc := NewService(archive, &fakeStats{}, fakeUsers{}, nil)
	ctx := context.Background()

	page, err := svc.List(ctx, Query{Day: "2024-06-01"})
	require.NoError(t, err)
	assert.Len(t, page.Calls, 1)
	assert.NotEmpty(t, page.NextPageToken)
	assert.Equal(t, "2024-06-01", archive.lastDay.Format(time.DateOnly))

	_, err = svc.List(ctx, Query{Day: "2024-06-01", PageToken: page.NextPageToken})
	require.NoError(t, err)
	assert.Equal(t, []byte("next"), archive.state)

	byNumber, err := svc.List(ctx, Query{Number: "+15551230001"})
	require.NoError(t, err)
	assert.Equal(t, "+15551230001", archive.lastNum)
	assert.NotNil(t, byNumber.Calls)
	assert.Empty(t, byNumber.NextPageToken)

	_, err = svc.List(ctx, Query{Day: "June 1"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	_, err = svc.List(ctx, Query{PageToken: "%%%"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestSummarize(t *testing.T) {
	d1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	out := Summarize([]domain.DailyCallStats{
		{Day: d2, Status: domain.CallStatusCompleted, Agent: "Kim", Calls: 2, DurationSeconds: 100},
		{Day: d1, Status: domain.CallStatusFailed, Calls: 1},
		{Day: d1, Status: domain.CallStatusCompleted, Agent: "Kim", Calls: 1, DurationSeconds: 50},
	})

	assert.Equal(t, int64(4), out.TotalCalls)
	assert.Equal(t, map[string]int64{"completed": 3, "failed": 1}, out.StatusCounts)
	assert.Equal(t, map[string]int64{"Kim": 3, "Unassigned": 1}, out.AgentCounts)
	assert.Equal(t, []DayCount{{Date: "2024-06-01", Count: 2}, {Date: "2024-06-02", Count: 2}}, out.CallsPerDay)
	assert.Equal(t, int64(38), out.AvgDurationSeconds)
}

func TestOverviewPlanGate(t *testing.T) {
	starter := &domain.User{ID: uuid.New(), Subscription: domain.Subscription{Plan: domain.PlanStarter}}
	pro := &domain.User{ID: uuid.New(), Subscription: domain.Subscription{Plan: domain.PlanProfessional}}
	admin := &domain.User{ID: uuid.New(), Role: domain.RoleAdmin, Subscription: domain.Subscription{Plan: domain.PlanStarter}}
	users := fakeUsers{starter.ID: starter, pro.ID: pro, admin.ID: admin}
	svc := NewService(&fakeArchive{}, &fakeStats{}, users, nil)
	ctx := context.Background()

	_, err := svc.Overview(ctx, starter.ID)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	out, err := svc.Overview(ctx, pro.ID)
	require.NoError(t, err)
	assert.Zero(t, out.TotalCalls)
	assert.NotNil(t, out.CallsPerDay)

	_, err = svc.Overview(ctx, admin.ID)
	assert.NoError(t, err)

	_, err = svc.Overview(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}
