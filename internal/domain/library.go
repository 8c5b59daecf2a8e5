package domain

import (
	"time"

	"github.com/google/uuid"
)

// Script is a call script shown to agents.
type Script struct {
	ID        uuid.UUID
	Name      string
	Content   string
	Category  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoicemailMessage is a template spoken when a machine answers.
type VoicemailMessage struct {
	ID        uuid.UUID
	Name      string
	Content   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DailyCallStats aggregates archived calls for one day, status and agent.
type DailyCallStats struct {
	Day             time.Time
	Status          CallStatus
	Agent           string
	Calls           int64
	DurationSeconds int64
}

// BatchEntry is one number submitted for bulk dialing.
type BatchEntry struct {
	Number   string         `json:"number"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScheduledBatch is a bulk upload held until its start time.
type ScheduledBatch struct {
	ID          string       `json:"id"`
	Source      string       `json:"source"`
	CreatedBy   string       `json:"createdBy,omitempty"`
	ScheduledAt time.Time    `json:"scheduledAt"`
	CreatedAt   time.Time    `json:"createdAt"`
	Entries     []BatchEntry `json:"entries"`
}
