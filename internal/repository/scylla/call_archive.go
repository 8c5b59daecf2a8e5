package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/repository"
)

// Schema holds the archive tables. Rows cluster newest first inside each partition.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS calls_by_day (
		day date,
		created_at timestamp,
		local_id text,
		number text,
		status text,
		payload text,
		PRIMARY KEY ((day), created_at, local_id)
	) WITH CLUSTERING ORDER BY (created_at DESC, local_id ASC)`,
	`CREATE TABLE IF NOT EXISTS calls_by_number (
		number text,
		created_at timestamp,
		local_id text,
		status text,
		payload text,
		PRIMARY KEY ((number), created_at, local_id)
	) WITH CLUSTERING ORDER BY (created_at DESC, local_id ASC)`,
}

// CallArchive persists finished calls in Scylla for history views.
type CallArchive struct {
	session *gocql.Session
	ttl     time.Duration
}

// NewCallArchive creates an archive. A positive ttl expires rows after that long.
func NewCallArchive(session *gocql.Session, ttl time.Duration) *CallArchive {
	return &CallArchive{session: session, ttl: ttl}
}

// Archive writes the call to both lookup tables. Rewriting the same call is idempotent.
func (a *CallArchive) Archive(ctx context.Context, call *domain.Call) error {
	payload, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("call archive: encode %s: %w", call.LocalID, err)
	}
	created := call.CreatedAt.UTC()
	ttl := int(a.ttl / time.Second)

	batch := a.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO calls_by_day (day, created_at, local_id, number, status, payload)
		VALUES (?, ?, ?, ?, ?, ?) USING TTL ?`,
		bucketDate(created), created, call.LocalID, call.Number, string(call.Status), string(payload), ttl)
	batch.Query(`INSERT INTO calls_by_number (number, created_at, local_id, status, payload)
		VALUES (?, ?, ?, ?, ?) USING TTL ?`,
		call.Number, created, call.LocalID, string(call.Status), string(payload), ttl)
	if err := a.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("call archive: insert %s: %w", call.LocalID, err)
	}
	return nil
}

// ListByDay pages through the calls created on the UTC day of day.
func (a *CallArchive) ListByDay(ctx context.Context, day time.Time, limit int, pageState []byte) ([]domain.Call, []byte, error) {
	q := a.session.Query(`SELECT payload FROM calls_by_day WHERE day = ?`, bucketDate(day))
	return a.page(ctx, q, limit, pageState)
}

// ListByNumber pages through the calls placed to a normalized number.
func (a *CallArchive) ListByNumber(ctx context.Context, number string, limit int, pageState []byte) ([]domain.Call, []byte, error) {
	q := a.session.Query(`SELECT payload FROM calls_by_number WHERE number = ?`, number)
	return a.page(ctx, q, limit, pageState)
}

func (a *CallArchive) page(ctx context.Context, query *gocql.Query, limit int, pageState []byte) ([]domain.Call, []byte, error) {
	if limit <= 0 {
		limit = 100
	}
	query = query.WithContext(ctx).PageSize(limit)
	if len(pageState) > 0 {
		query = query.PageState(pageState)
	}

	iter := query.Iter()
	calls := make([]domain.Call, 0, limit)
	var payload string
	for iter.Scan(&payload) {
		call, err := decodeCall(payload)
		if err != nil {
			// A row written by an incompatible build is skipped rather than failing the page.
			continue
		}
		calls = append(calls, call)
	}
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("call archive: iter close: %w", err)
	}
	return calls, iter.PageState(), nil
}

func decodeCall(payload string) (domain.Call, error) {
	var call domain.Call
	if err := json.Unmarshal([]byte(payload), &call); err != nil {
		return domain.Call{}, fmt.Errorf("call archive: decode: %w", err)
	}
	if call.LocalID == "" {
		return domain.Call{}, fmt.Errorf("call archive: decode: missing localId")
	}
	return call, nil
}

func bucketDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var _ repository.CallArchive = (*CallArchive)(nil)
