package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ProductBay/vynce/internal/domain"
	infraredis "github.com/ProductBay/vynce/internal/infra/redis"
)

// Hash fields of the settings key.
const (
	fieldCallerID       = "caller_id"
	fieldTimeZone       = "time_zone"
	fieldBulkDelayMs    = "bulk_delay_ms"
	fieldVoicemailDrop  = "voicemail_drop"
	fieldVoicemailMsgID = "voicemail_message_id"
	fieldVoicemailText  = "voicemail_template"
	fieldAgentName      = "agent_name"
	fieldCompanyName    = "company_name"
)

// SettingsStore keeps operator settings in a single Redis hash.
type SettingsStore struct {
	client *redis.Client
	key    string
}

// NewSettingsStore builds a store under the client's key prefix.
func NewSettingsStore(client *infraredis.Client) *SettingsStore {
	return &SettingsStore{client: client.Inner(), key: client.Key("settings")}
}

// Load reads the settings hash. The boolean is false when nothing has been saved yet.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return domain.Settings{}, false, fmt.Errorf("settings store: load: %w", err)
	}
	if len(fields) == 0 {
		return domain.Settings{}, false, nil
	}
	settings, err := decodeSettings(fields)
	if err != nil {
		return domain.Settings{}, false, fmt.Errorf("settings store: decode: %w", err)
	}
	return settings, true, nil
}

// Save replaces the settings hash.
func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key, encodeSettings(settings))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("settings store: save: %w", err)
	}
	return nil
}

func encodeSettings(s domain.Settings) map[string]any {
	return map[string]any{
		fieldCallerID:       s.CallerID,
		fieldTimeZone:       s.TimeZone,
		fieldBulkDelayMs:    strconv.FormatInt(s.BulkDelay.Milliseconds(), 10),
		fieldVoicemailDrop:  strconv.FormatBool(s.VoicemailDropEnabled),
		fieldVoicemailMsgID: s.VoicemailMessageID,
		fieldVoicemailText:  s.VoicemailTemplate,
		fieldAgentName:      s.AgentName,
		fieldCompanyName:    s.CompanyName,
	}
}

func decodeSettings(fields map[string]string) (domain.Settings, error) {
	out := domain.Settings{
		CallerID:           fields[fieldCallerID],
		TimeZone:           fields[fieldTimeZone],
		VoicemailMessageID: fields[fieldVoicemailMsgID],
		VoicemailTemplate:  fields[fieldVoicemailText],
		AgentName:          fields[fieldAgentName],
		CompanyName:        fields[fieldCompanyName],
	}
	if raw := fields[fieldBulkDelayMs]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("%s: %w", fieldBulkDelayMs, err)
		}
		out.BulkDelay = time.Duration(ms) * time.Millisecond
	}
	if raw := fields[fieldVoicemailDrop]; raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("%s: %w", fieldVoicemailDrop, err)
		}
		out.VoicemailDropEnabled = enabled
	}
	return out, nil
}
