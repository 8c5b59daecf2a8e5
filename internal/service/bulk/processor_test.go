package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProductBay/vynce/internal/callstore"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/service/call"
	"github.com/ProductBay/vynce/internal/telephony"
	"github.com/ProductBay/vynce/internal/telephony/mock"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

type fixture struct {
	processor *Processor
	store     *callstore.Store
	provider  *mock.Provider
	events    *events.Recorder
}

func newFixture(t *testing.T, cfg mock.Config, delay time.Duration) *fixture {
	t.Helper()
	rec := &events.Recorder{}
	store := callstore.New(rec, nil)
	provider := mock.NewProvider(cfg)
	initiator := call.NewService(store, provider, nil, call.Callbacks{}, nil, nil)
	jobs := 0
	p := NewProcessor(initiator, rec, nil, nil, Options{
		Delay:    delay,
		MaxDelay: time.Minute,
		NewJobID: func() string { jobs++; return fmt.Sprintf("job-%d", jobs) },
	})
	return &fixture{processor: p, store: store, provider: provider, events: rec}
}

func entries(numbers ...string) []Entry {
	out := make([]Entry, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, Entry{Number: n, Metadata: map[string]any{"name": "n" + n}})
	}
	return out
}

func summaries(rec *events.Recorder) []Summary {
	var out []Summary
	for _, p := range rec.Named(events.BulkComplete) {
		out = append(out, p.(Summary))
	}
	return out
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t, mock.Config{}, 0)

	f.processor.Enqueue("api", entries("5551230001", "5551230002")...)
	f.processor.Process(context.Background())

	calls := f.store.List(0)
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, domain.CallStatusInitiated, c.Status)
		assert.Equal(t, domain.CallTypeBulk, c.Type)
		assert.Equal(t, "job-1", c.JobID)
		assert.NotEmpty(t, c.RemoteID)
	}

	done := summaries(f.events)
	require.Len(t, done, 1)
	assert.Equal(t, 2, done[0].Total)
	assert.Equal(t, 2, done[0].Success)
	assert.Equal(t, 0, done[0].Failed)
	assert.False(t, done[0].Stopped)
	assert.Len(t, f.events.Named(events.BulkProgress), 2)
	assert.Len(t, f.events.Named(events.BulkStatus), 1)

	st := f.processor.Status()
	assert.False(t, st.IsRunning)
	assert.Zero(t, st.QueueLength)
	assert.Nil(t, st.Job)
}

func TestProcessPreservesOrder(t *testing.T) {
	f := newFixture(t, mock.Config{}, 0)

	f.processor.Enqueue("api", entries("5551230001", "5551230002", "5551230003")...)
	f.processor.Process(context.Background())

	placed := f.provider.Placed()
	require.Len(t, placed, 3)
	assert.Equal(t, "+15551230001", placed[0].To)
	assert.Equal(t, "+15551230002", placed[1].To)
	assert.Equal(t, "+15551230003", placed[2].To)

	listed := f.store.List(0)
	assert.Equal(t, "+15551230003", listed[0].Number)
	assert.Equal(t, "+15551230001", listed[2].Number)
}

func TestProcessContinuesAfterFailures(t *testing.T) {
	f := newFixture(t, mock.Config{Failures: map[string]error{
		"+15551230002": fmt.Errorf("%w: busy route", apperrors.ErrPlacement),
	}}, 0)

	f.processor.Enqueue("api", entries("5551230001", "5551230002", "bad-number", "5551230004")...)
	f.processor.Process(context.Background())

	done := summaries(f.events)
	require.Len(t, done, 1)
	assert.Equal(t, 4, done[0].Processed)
	assert.Equal(t, 2, done[0].Success)
	assert.Equal(t, 2, done[0].Failed)

	byNumber := map[string]*domain.Call{}
	for _, c := range f.store.List(0) {
		byNumber[c.Number] = c
	}
	require.Contains(t, byNumber, "bad-number")
	assert.Equal(t, domain.CallStatusFailed, byNumber["bad-number"].Status)
	assert.Equal(t, domain.CallStatusFailed, byNumber["+15551230002"].Status)
	assert.Equal(t, domain.CallStatusInitiated, byNumber["+15551230004"].Status)
	assert.Len(t, f.provider.Placed(), 3)
}

func TestProcessIsSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newFixture(t, mock.Config{BeforePlace: func(context.Context, telephony.CallRequest) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}}, 0)

	f.processor.Enqueue("api", entries("5551230001", "5551230002")...)
	done := make(chan struct{})
	go func() {
		f.processor.Process(context.Background())
		close(done)
	}()

	<-entered
	assert.True(t, f.processor.Status().IsRunning)

	second := make(chan struct{})
	go func() {
		f.processor.Process(context.Background())
		close(second)
	}()
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second Process call blocked while a batch was running")
	}

	close(release)
	<-done

	assert.Len(t, f.provider.Placed(), 2)
	assert.Len(t, summaries(f.events), 1)
}

func TestStopMidBatch(t *testing.T) {
	var f *fixture
	f = newFixture(t, mock.Config{BeforePlace: func(_ context.Context, req telephony.CallRequest) {
		if req.To == "+15551230002" {
			f.processor.Stop()
		}
	}}, 0)

	f.processor.Enqueue("api", entries("5551230001", "5551230002", "5551230003", "5551230004")...)
	f.processor.Process(context.Background())

	placed := f.provider.Placed()
	require.Len(t, placed, 2)
	assert.Equal(t, "+15551230002", placed[1].To)

	done := summaries(f.events)
	require.Len(t, done, 1)
	assert.True(t, done[0].Stopped)
	assert.Equal(t, 2, done[0].Processed)
	assert.Equal(t, 4, done[0].Total)

	st := f.processor.Status()
	assert.False(t, st.IsRunning)
	assert.Zero(t, st.QueueLength)
}

func TestStopInterruptsDelay(t *testing.T) {
	f := newFixture(t, mock.Config{}, time.Minute)

	f.processor.Enqueue("api", entries("5551230001", "5551230002")...)
	done := make(chan struct{})
	go func() {
		f.processor.Process(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.provider.Placed()) == 1 }, 2*time.Second, 5*time.Millisecond)
	f.processor.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt the inter-call delay")
	}
	assert.Len(t, f.provider.Placed(), 1)
	require.Len(t, summaries(f.events), 1)
	assert.True(t, summaries(f.events)[0].Stopped)
}

func TestEntriesEnqueuedDuringBatchFormNewBatch(t *testing.T) {
	var f *fixture
	var once sync.Once
	f = newFixture(t, mock.Config{BeforePlace: func(context.Context, telephony.CallRequest) {
		once.Do(func() { f.processor.Enqueue("csv", entries("5551230009")...) })
	}}, 0)

	f.processor.Enqueue("api", entries("5551230001", "5551230002")...)
	f.processor.Process(context.Background())

	done := summaries(f.events)
	require.Len(t, done, 2)
	assert.Equal(t, "job-1", done[0].ID)
	assert.Equal(t, 2, done[0].Total)
	assert.Equal(t, "job-2", done[1].ID)
	assert.Equal(t, 1, done[1].Total)
	assert.Equal(t, "csv", done[1].Source)
	assert.Len(t, f.provider.Placed(), 3)
}

func TestProcessEmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t, mock.Config{}, 0)
	f.processor.Process(context.Background())
	assert.Empty(t, f.events.Events())
}

func TestSetDelay(t *testing.T) {
	f := newFixture(t, mock.Config{}, 1500*time.Millisecond)
	assert.Equal(t, int64(1500), f.processor.Status().DelayMs)

	require.NoError(t, f.processor.SetDelay(0))
	assert.Zero(t, f.processor.Delay())

	err := f.processor.SetDelay(2 * time.Minute)
	require.True(t, errors.Is(err, apperrors.ErrValidation))
	err = f.processor.SetDelay(-time.Millisecond)
	require.True(t, errors.Is(err, apperrors.ErrValidation))
}
