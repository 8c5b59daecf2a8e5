package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ProductBay/vynce/internal/domain"
	infraredis "github.com/ProductBay/vynce/internal/infra/redis"
	"github.com/ProductBay/vynce/internal/repository"
)

// ScheduleStore indexes scheduled batches by start time in a sorted set and keeps
// each batch body under its own key.
type ScheduleStore struct {
	client   *redis.Client
	ns       *infraredis.Client
	indexKey string
}

// NewScheduleStore builds a store under the client's key prefix.
func NewScheduleStore(client *infraredis.Client) *ScheduleStore {
	return &ScheduleStore{
		client:   client.Inner(),
		ns:       client,
		indexKey: client.Key("schedule", "due"),
	}
}

func (s *ScheduleStore) batchKey(id string) string {
	return s.ns.Key("schedule", "batch", id)
}

// Add stores a batch and indexes it by ScheduledAt.
func (s *ScheduleStore) Add(ctx context.Context, batch *domain.ScheduledBatch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("schedule store: encode %s: %w", batch.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.batchKey(batch.ID), body, 0)
	pipe.ZAdd(ctx, s.indexKey, redis.Z{
		Score:  float64(batch.ScheduledAt.UnixMilli()),
		Member: batch.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule store: add %s: %w", batch.ID, err)
	}
	return nil
}

// Due returns up to limit batches whose start time is at or before now, oldest first.
func (s *ScheduleStore) Due(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledBatch, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("schedule store: due: %w", err)
	}
	return s.load(ctx, ids)
}

// Claim removes a batch from the index and deletes its body. Only the caller that
// removed the index entry gets true.
func (s *ScheduleStore) Claim(ctx context.Context, id string) (bool, error) {
	removed, err := s.client.ZRem(ctx, s.indexKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("schedule store: claim %s: %w", id, err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := s.client.Del(ctx, s.batchKey(id)).Err(); err != nil {
		return true, fmt.Errorf("schedule store: delete %s: %w", id, err)
	}
	return true, nil
}

// List returns every pending batch ordered by start time.
func (s *ScheduleStore) List(ctx context.Context) ([]*domain.ScheduledBatch, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("schedule store: list: %w", err)
	}
	return s.load(ctx, ids)
}

// Get returns one pending batch.
func (s *ScheduleStore) Get(ctx context.Context, id string) (*domain.ScheduledBatch, error) {
	body, err := s.client.Get(ctx, s.batchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("schedule store: get %s: %w", id, err)
	}
	return decodeBatch(id, body)
}

func (s *ScheduleStore) load(ctx context.Context, ids []string) ([]*domain.ScheduledBatch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.batchKey(id)
	}
	bodies, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("schedule store: load: %w", err)
	}
	out := make([]*domain.ScheduledBatch, 0, len(ids))
	for i, raw := range bodies {
		str, ok := raw.(string)
		if !ok {
			// Index entry without a body; Claim will clean it up.
			continue
		}
		batch, err := decodeBatch(ids[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, batch)
	}
	return out, nil
}

func decodeBatch(id string, body []byte) (*domain.ScheduledBatch, error) {
	var batch domain.ScheduledBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("schedule store: decode %s: %w", id, err)
	}
	return &batch, nil
}

var _ repository.ScheduleStore = (*ScheduleStore)(nil)
var _ repository.SettingsStore = (*SettingsStore)(nil)
