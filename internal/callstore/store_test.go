package callstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *events.Recorder, *fakeClock) {
	t.Helper()
	rec := &events.Recorder{}
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	seq := 0
	store := New(rec, nil,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("local-%d", seq)
		}),
	)
	return store, rec, clock
}

func TestCreateListsNewestFirst(t *testing.T) {
	store, rec, _ := newTestStore(t)

	store.Create("+15551230001", nil, domain.CallTypeBulk, "job-1")
	store.Create("+15551230002", map[string]any{"name": "Ada"}, domain.CallTypeSingle, "")

	calls := store.List(0)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Number != "+15551230002" || calls[1].Number != "+15551230001" {
		t.Fatalf("expected newest first, got %s then %s", calls[0].Number, calls[1].Number)
	}
	if calls[0].Status != domain.CallStatusDialing {
		t.Fatalf("expected dialing, got %s", calls[0].Status)
	}
	if got := len(rec.Named(events.CallUpdate)); got != 2 {
		t.Fatalf("expected 2 callUpdate events, got %d", got)
	}

	if limited := store.List(1); len(limited) != 1 || limited[0].LocalID != "local-2" {
		t.Fatalf("unexpected limited list %+v", limited)
	}
}

func TestReconcileAssignsRemoteIDOnce(t *testing.T) {
	store, _, _ := newTestStore(t)
	call := store.Create("+15551230001", nil, domain.CallTypeSingle, "")

	updated, err := store.Reconcile(call.LocalID, "remote-A", domain.CallStatusInitiated)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if updated.RemoteID != "remote-A" || updated.Status != domain.CallStatusInitiated {
		t.Fatalf("unexpected record %+v", updated)
	}

	if _, err := store.Reconcile(call.LocalID, "remote-B", domain.CallStatusInitiated); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if store.FindByRemoteID("remote-B") != nil {
		t.Fatalf("remote id must not be reassigned")
	}
	if found := store.FindByRemoteID("remote-A"); found == nil || found.LocalID != call.LocalID {
		t.Fatalf("expected lookup by remote id to find %s", call.LocalID)
	}
}

func TestReconcileUnknownLocalID(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Reconcile("missing", "remote-A", domain.CallStatusInitiated)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("reconcile must not create records")
	}
}

func TestTransitionFreezesDuration(t *testing.T) {
	store, _, clock := newTestStore(t)
	call := store.Create("+15551230001", nil, domain.CallTypeSingle, "")
	if _, err := store.Reconcile(call.LocalID, "remote-A", domain.CallStatusInitiated); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	clock.Advance(45 * time.Second)
	ended, err := store.UpdateByRemoteID("remote-A", store.Transition(domain.CallStatusCompleted))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ended.Duration == nil || *ended.Duration != 45 {
		t.Fatalf("expected duration 45, got %v", ended.Duration)
	}
	endedAt := *ended.EndedAt

	clock.Advance(time.Minute)
	for _, status := range []domain.CallStatus{domain.CallStatusFailed, domain.CallStatusCompleted, domain.CallStatusRinging} {
		again, err := store.UpdateByRemoteID("remote-A", store.Transition(status))
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if *again.Duration != 45 || !again.EndedAt.Equal(endedAt) || again.Status != domain.CallStatusCompleted {
			t.Fatalf("terminal record changed after %s: %+v", status, again)
		}
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	store, _, _ := newTestStore(t)
	call := store.Create("+15551230001", map[string]any{"name": "Ada"}, domain.CallTypeSingle, "")
	call.Metadata["name"] = "mutated"
	call.Status = domain.CallStatusCompleted

	stored, err := store.Get(call.LocalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Metadata["name"] != "Ada" || stored.Status != domain.CallStatusDialing {
		t.Fatalf("store leaked internal state: %+v", stored)
	}
}

func TestClear(t *testing.T) {
	store, rec, _ := newTestStore(t)
	call := store.Create("+15551230001", nil, domain.CallTypeSingle, "")
	_, _ = store.Reconcile(call.LocalID, "remote-A", domain.CallStatusInitiated)

	if n := store.Clear(); n != 1 {
		t.Fatalf("expected 1 cleared, got %d", n)
	}
	if store.Len() != 0 || store.FindByRemoteID("remote-A") != nil {
		t.Fatalf("expected empty store")
	}
	if len(rec.Named(events.CallsCleared)) != 1 {
		t.Fatalf("expected callsCleared event")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			call := store.Create(fmt.Sprintf("+1555123%04d", i), nil, domain.CallTypeBulk, "")
			remote := fmt.Sprintf("remote-%d", i)
			_, _ = store.Reconcile(call.LocalID, remote, domain.CallStatusInitiated)
			_, _ = store.UpdateByRemoteID(remote, store.Transition(domain.CallStatusRinging))
			_ = store.List(5)
		}(i)
	}
	wg.Wait()

	if store.Len() != 20 {
		t.Fatalf("expected 20 records, got %d", store.Len())
	}
}
