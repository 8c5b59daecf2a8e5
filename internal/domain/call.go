package domain

import "time"

// CallStatus enumerates lifecycle stages for an individual call.
type CallStatus string

const (
	CallStatusDialing   CallStatus = "dialing"
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusCompleted CallStatus = "completed"
	CallStatusEnded     CallStatus = "ended"
	CallStatusFailed    CallStatus = "failed"
	CallStatusBusy      CallStatus = "busy"
	CallStatusTimeout   CallStatus = "timeout"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusCancelled CallStatus = "cancelled"
	CallStatusVoicemail CallStatus = "voicemail"
)

// IsTerminal reports whether no further transition is expected from s.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusEnded, CallStatusFailed, CallStatusBusy,
		CallStatusTimeout, CallStatusRejected, CallStatusCancelled, CallStatusVoicemail:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusDialing, CallStatusInitiated, CallStatusRinging, CallStatusAnswered:
		return true
	}
	return s.IsTerminal()
}

// providerOutcomes are the terminal statuses a provider may report for a live call.
var providerOutcomes = []CallStatus{
	CallStatusCompleted, CallStatusBusy, CallStatusFailed, CallStatusTimeout,
	CallStatusRejected, CallStatusCancelled, CallStatusVoicemail, CallStatusEnded,
}

// transitions lists, for each non-terminal status, the statuses it may move to.
var transitions = map[CallStatus][]CallStatus{
	CallStatusDialing:   {CallStatusInitiated, CallStatusFailed, CallStatusEnded},
	CallStatusInitiated: append([]CallStatus{CallStatusRinging, CallStatusAnswered}, providerOutcomes...),
	CallStatusRinging:   append([]CallStatus{CallStatusAnswered}, providerOutcomes...),
	CallStatusAnswered:  providerOutcomes,
}

// CanTransition reports whether a record in status from may move to status to.
func CanTransition(from, to CallStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseProviderStatus maps a provider call status onto a CallStatus.
func ParseProviderStatus(raw string) (CallStatus, bool) {
	switch raw {
	case "started", "ringing":
		return CallStatusRinging, true
	case "answered":
		return CallStatusAnswered, true
	case "completed":
		return CallStatusCompleted, true
	case "busy":
		return CallStatusBusy, true
	case "failed":
		return CallStatusFailed, true
	case "timeout", "unanswered":
		return CallStatusTimeout, true
	case "rejected":
		return CallStatusRejected, true
	case "cancelled", "canceled":
		return CallStatusCancelled, true
	case "machine":
		return CallStatusVoicemail, true
	}
	return "", false
}

// CallType records where a call originated.
type CallType string

const (
	CallTypeSingle CallType = "single"
	CallTypeBulk   CallType = "bulk"
)

// Call is one outbound call attempt tracked by the dialer.
type Call struct {
	LocalID           string         `json:"localId"`
	RemoteID          string         `json:"remoteId,omitempty"`
	Number            string         `json:"number"`
	Status            CallStatus     `json:"status"`
	Type              CallType       `json:"type"`
	JobID             string         `json:"jobId,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	EndedAt           *time.Time     `json:"endedAt,omitempty"`
	Duration          *int64         `json:"duration,omitempty"`
	VoicemailDetected bool           `json:"voicemailDetected"`
	VoicemailLeft     bool           `json:"voicemailLeft"`
	VoicemailMessage  string         `json:"voicemailMessage,omitempty"`
	Error             string         `json:"error,omitempty"`
	Detail            string         `json:"detail,omitempty"`
	SIPCode           int            `json:"sipCode,omitempty"`
	EndedBy           string         `json:"endedBy,omitempty"`
	Outcome           string         `json:"outcome,omitempty"`
	Notes             []CallNote     `json:"notes,omitempty"`
}

// CallNote is an operator annotation on a call.
type CallNote struct {
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarkEnded stamps endedAt and the frozen duration on the first terminal transition.
// It returns false when the call already carries an end time.
func (c *Call) MarkEnded(at time.Time) bool {
	if c.EndedAt != nil {
		return false
	}
	ended := at
	c.EndedAt = &ended
	secs := int64(at.Sub(c.CreatedAt).Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	c.Duration = &secs
	return true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c *Call) Clone() *Call {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	if c.Duration != nil {
		d := *c.Duration
		cp.Duration = &d
	}
	if c.Notes != nil {
		cp.Notes = append([]CallNote(nil), c.Notes...)
	}
	return &cp
}

// MetadataString returns metadata[key] when it is a non-empty string.
func (c *Call) MetadataString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// EventKey partitions published call events by local id.
func (c *Call) EventKey() string { return c.LocalID }

// TransitionResult describes what Advance did.
type TransitionResult int

const (
	// TransitionApplied means the status changed.
	TransitionApplied TransitionResult = iota
	// TransitionDuplicate means the call was already in the requested status.
	TransitionDuplicate
	// TransitionRejected means the state machine does not allow the move.
	TransitionRejected
)

// Advance moves the call to status to when the transition table allows it.
// The first terminal status stamps EndedAt and Duration; later calls never touch them.
func (c *Call) Advance(to CallStatus, at time.Time) TransitionResult {
	if c.Status == to {
		return TransitionDuplicate
	}
	if !CanTransition(c.Status, to) {
		return TransitionRejected
	}
	c.Status = to
	c.UpdatedAt = at
	if to.IsTerminal() {
		c.MarkEnded(at)
	}
	return TransitionApplied
}
