package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
)

// StatsRepository implements repository.StatsRepository.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository builds the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Increment adds the delta to the row for its day, status and agent, creating it on first use.
func (r *StatsRepository) Increment(ctx context.Context, delta domain.DailyCallStats) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO call_daily_stats (day, status, agent, calls, duration_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (day, status, agent) DO UPDATE SET
			calls = call_daily_stats.calls + EXCLUDED.calls,
			duration_seconds = call_daily_stats.duration_seconds + EXCLUDED.duration_seconds`,
		truncateDay(delta.Day),
		string(delta.Status),
		delta.Agent,
		delta.Calls,
		delta.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("call stats: increment: %w", err)
	}
	return nil
}

// Range returns the rows with from <= day <= to, oldest first.
func (r *StatsRepository) Range(ctx context.Context, from, to time.Time) ([]domain.DailyCallStats, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT day, status, agent, calls, duration_seconds
		FROM call_daily_stats WHERE day BETWEEN $1 AND $2 ORDER BY day, status, agent`,
		truncateDay(from), truncateDay(to))
	if err != nil {
		return nil, fmt.Errorf("call stats: query: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyCallStats
	for rows.Next() {
		var row struct {
			Day      time.Time `db:"day"`
			Status   string    `db:"status"`
			Agent    string    `db:"agent"`
			Calls    int64     `db:"calls"`
			Duration int64     `db:"duration_seconds"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("call stats: scan: %w", err)
		}
		out = append(out, domain.DailyCallStats{
			Day:             row.Day.UTC(),
			Status:          domain.CallStatus(row.Status),
			Agent:           row.Agent,
			Calls:           row.Calls,
			DurationSeconds: row.Duration,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("call stats: rows err: %w", err)
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ repository.StatsRepository = (*StatsRepository)(nil)
