// Package callstore keeps the live set of call records for the dashboard.
package callstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
	"github.com/ProductBay/vynce/pkg/logger"
)

// Store is the in-memory source of truth for call status. Records are kept in
// insertion order and listed newest first.
type Store struct {
	mu       sync.RWMutex
	calls    []*domain.Call
	byLocal  map[string]*domain.Call
	byRemote map[string]*domain.Call

	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time
	newID     func() string
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides local id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates an empty store.
func New(publisher events.Publisher, lg *logger.Logger, opts ...Option) *Store {
	if publisher == nil {
		publisher = events.Discard
	}
	if lg == nil {
		lg = logger.NewNop()
	}
	s := &Store{
		byLocal:   make(map[string]*domain.Call),
		byRemote:  make(map[string]*domain.Call),
		publisher: publisher,
		logger:    lg.Named("callstore"),
		now:       time.Now,
		newID:     func() string { return "local-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a dialing record and publishes it.
func (s *Store) Create(number string, metadata map[string]any, typ domain.CallType, jobID string) *domain.Call {
	now := s.now().UTC()
	call := &domain.Call{
		LocalID:   s.newID(),
		Number:    number,
		Status:    domain.CallStatusDialing,
		Type:      typ,
		JobID:     jobID,
		Metadata:  copyMetadata(metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.byLocal[call.LocalID] = call
	snapshot := call.Clone()
	s.mu.Unlock()

	s.publisher.Publish(events.CallUpdate, snapshot)
	return snapshot
}

// Reconcile attaches the provider call id to a placeholder and moves it to status.
// An unknown localID is logged and reported as ErrNotFound.
func (s *Store) Reconcile(localID, remoteID string, status domain.CallStatus) (*domain.Call, error) {
	s.mu.Lock()
	call, ok := s.byLocal[localID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("reconcile: placeholder no longer tracked",
			zap.String("local_id", localID), zap.String("remote_id", remoteID))
		return nil, fmt.Errorf("callstore: reconcile %s: %w", localID, apperrors.ErrNotFound)
	}

	switch {
	case call.RemoteID == "":
		call.RemoteID = remoteID
		s.byRemote[remoteID] = call
	case call.RemoteID != remoteID:
		s.logger.Warn("reconcile: remote id already assigned",
			zap.String("local_id", localID),
			zap.String("remote_id", call.RemoteID),
			zap.String("ignored_remote_id", remoteID))
	}
	wasEnded := call.EndedAt != nil
	s.advanceLocked(call, status)
	call.UpdatedAt = s.now().UTC()
	snapshot := call.Clone()
	s.mu.Unlock()

	s.publish(snapshot, wasEnded)
	return snapshot, nil
}

// Get returns a copy of the record with the given local id.
func (s *Store) Get(localID string) (*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.byLocal[localID]
	if !ok {
		return nil, fmt.Errorf("callstore: call %s: %w", localID, apperrors.ErrNotFound)
	}
	return call.Clone(), nil
}

// FindByRemoteID returns a copy of the record for a provider call id, or nil.
func (s *Store) FindByRemoteID(remoteID string) *domain.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if call, ok := s.byRemote[remoteID]; ok {
		return call.Clone()
	}
	return nil
}

// List returns up to limit records, newest first. A limit of zero returns everything.
func (s *Store) List(limit int) []*domain.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.calls)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*domain.Call, 0, n)
	for i := len(s.calls) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.calls[i].Clone())
	}
	return out
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// Mutation edits a record in place and reports whether anything changed.
type Mutation func(call *domain.Call, now time.Time) bool

// Update applies fn to the record with localID and publishes the result when it changed.
func (s *Store) Update(localID string, fn Mutation) (*domain.Call, error) {
	s.mu.Lock()
	call, ok := s.byLocal[localID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("callstore: update %s: %w", localID, apperrors.ErrNotFound)
	}
	return s.finishUpdate(call, fn)
}

// UpdateByRemoteID applies fn to the record with the provider call id.
func (s *Store) UpdateByRemoteID(remoteID string, fn Mutation) (*domain.Call, error) {
	s.mu.Lock()
	call, ok := s.byRemote[remoteID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("callstore: update remote %s: %w", remoteID, apperrors.ErrNotFound)
	}
	return s.finishUpdate(call, fn)
}

// finishUpdate runs fn with s.mu held and releases it before publishing.
func (s *Store) finishUpdate(call *domain.Call, fn Mutation) (*domain.Call, error) {
	now := s.now().UTC()
	wasEnded := call.EndedAt != nil
	changed := fn(call, now)
	if changed {
		call.UpdatedAt = now
	}
	snapshot := call.Clone()
	s.mu.Unlock()

	if changed {
		s.publish(snapshot, wasEnded)
	}
	return snapshot, nil
}

// publish emits callUpdate, plus callEnded the first time a record reaches a terminal status.
func (s *Store) publish(snapshot *domain.Call, wasEnded bool) {
	s.publisher.Publish(events.CallUpdate, snapshot)
	if !wasEnded && snapshot.EndedAt != nil {
		s.publisher.Publish(events.CallEnded, snapshot)
	}
}

// Transition returns a Mutation that advances a call through the state machine.
// Rejected moves are logged and leave the record untouched.
func (s *Store) Transition(to domain.CallStatus) Mutation {
	return func(call *domain.Call, now time.Time) bool {
		switch call.Advance(to, now) {
		case domain.TransitionApplied:
			return true
		case domain.TransitionRejected:
			s.logger.Warn("ignoring invalid status transition",
				zap.String("local_id", call.LocalID),
				zap.String("from", string(call.Status)),
				zap.String("to", string(to)))
		}
		return false
	}
}

// Clear removes every record and returns how many were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = nil
	s.byLocal = make(map[string]*domain.Call)
	s.byRemote = make(map[string]*domain.Call)
	s.mu.Unlock()

	s.logger.Info("call records cleared", zap.Int("count", n))
	s.publisher.Publish(events.CallsCleared, map[string]int{"cleared": n})
	return n
}

func (s *Store) advanceLocked(call *domain.Call, to domain.CallStatus) {
	if call.Advance(to, s.now().UTC()) == domain.TransitionRejected {
		s.logger.Warn("ignoring invalid status transition",
			zap.String("local_id", call.LocalID),
			zap.String("from", string(call.Status)),
			zap.String("to", string(to)))
	}
}

func copyMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
