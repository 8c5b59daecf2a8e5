package scheduler

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
)

func TestCallingWindowContains(t *testing.T) {
	w, err := ParseWindow("09:00", "17:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	morning := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !w.Contains(morning, time.UTC) {
		t.Fatalf("expected %v to be within the calling window", morning)
	}

	night := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	if w.Contains(night, time.UTC) {
		t.Fatalf("expected %v to be outside the calling window", night)
	}

	jamaica, err := time.LoadLocation("America/Jamaica")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 15:00 UTC is 10:00 in Jamaica.
	if !w.Contains(time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), jamaica) {
		t.Fatal("expected the window to be read in the operator's time zone")
	}
	if w.Contains(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), jamaica) {
		t.Fatal("05:00 local must be outside the window")
	}
}

func TestCallingWindowSpanningMidnight(t *testing.T) {
	w, err := ParseWindow("22:00", "02:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	night := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	if !w.Contains(night, time.UTC) {
		t.Fatalf("expected %v to be within cross-midnight window", night)
	}

	earlyMorning := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	if !w.Contains(earlyMorning, time.UTC) {
		t.Fatalf("expected %v to be within cross-midnight window", earlyMorning)
	}

	noon := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	if w.Contains(noon, time.UTC) {
		t.Fatalf("expected %v to be outside cross-midnight window", noon)
	}
}

func TestParseWindowFailures(t *testing.T) {
	cases := [][2]string{
		{"9am", "17:00"},
		{"09:00", ""},
		{"09:00", "09:00"},
		{"25:00", "26:00"},
	}
	for _, tc := range cases {
		if _, err := ParseWindow(tc[0], tc[1]); err == nil {
			t.Errorf("expected error for window %q-%q", tc[0], tc[1])
		}
	}

	always, err := ParseWindow("", "")
	if err != nil {
		t.Fatalf("empty window: %v", err)
	}
	if !always.Contains(time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), time.UTC) {
		t.Fatal("empty window must always be open")
	}
}

type memoryStore struct {
	mu      sync.Mutex
	batches map[string]*domain.ScheduledBatch
}

func newMemoryStore() *memoryStore {
	return &memoryStore{batches: map[string]*domain.ScheduledBatch{}}
}

func (m *memoryStore) Add(_ context.Context, b *domain.ScheduledBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = b
	return nil
}

func (m *memoryStore) Due(_ context.Context, now time.Time, limit int) ([]*domain.ScheduledBatch, error) {
	all, _ := m.List(context.Background())
	var out []*domain.ScheduledBatch
	for _, b := range all {
		if !b.ScheduledAt.After(now) && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memoryStore) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[id]; !ok {
		return false, nil
	}
	delete(m.batches, id)
	return true, nil
}

func (m *memoryStore) List(context.Context) ([]*domain.ScheduledBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ScheduledBatch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

type recordingQueue struct {
	sources []string
	entries []domain.BatchEntry
	kicks   int
}

func (q *recordingQueue) Enqueue(source string, entries ...domain.BatchEntry) int {
	q.sources = append(q.sources, source)
	q.entries = append(q.entries, entries...)
	return len(q.entries)
}

func (q *recordingQueue) Kick() <-chan struct{} {
	q.kicks++
	done := make(chan struct{})
	close(done)
	return done
}

type fixedSettings domain.Settings

func (f fixedSettings) Current() domain.Settings { return domain.Settings(f) }

func newTestScheduler(now *time.Time, window CallingWindow) (*Scheduler, *memoryStore, *recordingQueue, *events.Recorder) {
	store := newMemoryStore()
	queue := &recordingQueue{}
	rec := &events.Recorder{}
	s := New(store, queue, fixedSettings{TimeZone: "UTC"}, rec, nil, Options{
		Window: window,
		Now:    func() time.Time { return *now },
	})
	return s, store, queue, rec
}

func entries(numbers ...string) []domain.BatchEntry {
	out := make([]domain.BatchEntry, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, domain.BatchEntry{Number: n})
	}
	return out
}

func TestScheduleInPastRunsImmediately(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s, store, queue, rec := newTestScheduler(&now, CallingWindow{})

	out, err := s.Schedule(context.Background(), ScheduleInput{
		Source:      "leads.csv",
		ScheduledAt: now.Add(-time.Minute),
		Entries:     entries("+15551230001", "+15551230002"),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !out.Immediate {
		t.Fatal("expected immediate release")
	}
	if len(queue.entries) != 2 || queue.kicks != 1 || queue.sources[0] != "leads.csv" {
		t.Fatalf("unexpected queue state %+v", queue)
	}
	if len(store.batches) != 0 {
		t.Fatal("immediate batches must not be stored")
	}
	if len(rec.Named(events.JobScheduled)) != 0 {
		t.Fatal("immediate batches must not publish jobScheduled")
	}
}

func TestScheduleFutureReleasesWhenDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s, store, queue, rec := newTestScheduler(&now, CallingWindow{})
	ctx := context.Background()

	out, err := s.Schedule(ctx, ScheduleInput{
		Source:      "later.csv",
		ScheduledAt: now.Add(time.Hour),
		Entries:     entries("+15551230001"),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if out.Immediate {
		t.Fatal("future batch must be held")
	}
	published := rec.Named(events.JobScheduled)
	if len(published) != 1 || published[0].(Summary).Count != 1 {
		t.Fatalf("expected one jobScheduled summary, got %+v", published)
	}

	if n, err := s.Tick(ctx); err != nil || n != 0 {
		t.Fatalf("early tick released %d, err %v", n, err)
	}

	now = now.Add(time.Hour)
	if n, err := s.Tick(ctx); err != nil || n != 1 {
		t.Fatalf("due tick released %d, err %v", n, err)
	}
	if len(queue.entries) != 1 || queue.kicks != 1 {
		t.Fatalf("unexpected queue state %+v", queue)
	}
	if len(store.batches) != 0 {
		t.Fatal("released batch must be removed from the store")
	}

	if n, _ := s.Tick(ctx); n != 0 {
		t.Fatalf("batch released twice")
	}
}

func TestTickHonoursCallingWindow(t *testing.T) {
	window, err := ParseWindow("09:00", "17:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	s, _, queue, _ := newTestScheduler(&now, window)
	ctx := context.Background()

	if _, err := s.Schedule(ctx, ScheduleInput{ScheduledAt: now.Add(time.Minute), Entries: entries("+15551230001")}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	now = now.Add(time.Hour)
	if n, _ := s.Tick(ctx); n != 0 {
		t.Fatal("batch released before the calling window opened")
	}

	now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if n, _ := s.Tick(ctx); n != 1 {
		t.Fatal("batch not released once the window opened")
	}
	if queue.kicks != 1 {
		t.Fatalf("expected one kick, got %d", queue.kicks)
	}
}

func TestScheduleRejectsEmptyBatch(t *testing.T) {
	now := time.Now()
	s, _, _, _ := newTestScheduler(&now, CallingWindow{})
	if _, err := s.Schedule(context.Background(), ScheduleInput{}); err == nil {
		t.Fatal("expected validation error")
	}
}
