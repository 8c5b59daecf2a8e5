package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/queue"
)

type scriptedReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

type fakeRecorder struct {
	calls    []string
	attempts map[string]int
	// failures is how many times each call fails before succeeding.
	failures map[string]int
}

func (f *fakeRecorder) Record(_ context.Context, call *domain.Call) error {
	f.attempts[call.LocalID]++
	if f.attempts[call.LocalID] <= f.failures[call.LocalID] {
		return errors.New("scylla unavailable")
	}
	f.calls = append(f.calls, call.LocalID)
	return nil
}

func message(t *testing.T, offset int64, event string, call *domain.Call) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("marshal call: %v", err)
	}
	value, err := json.Marshal(queue.EventMessage{Event: event, Payload: payload, OccurredAt: time.Now()})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return kafka.Message{Offset: offset, Value: value}
}

func TestWorkerArchivesEndedCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		message(t, 1, events.CallUpdate, &domain.Call{LocalID: "a"}),
		message(t, 2, events.CallEnded, &domain.Call{LocalID: "a", Status: domain.CallStatusCompleted}),
		{Offset: 3, Value: []byte("not json")},
		message(t, 4, events.CallEnded, &domain.Call{LocalID: "b", Status: domain.CallStatusFailed}),
		message(t, 5, events.CallEnded, &domain.Call{LocalID: "c", Status: domain.CallStatusBusy}),
	}}
	recorder := &fakeRecorder{
		attempts: map[string]int{},
		failures: map[string]int{"b": 1, "c": recordAttempts},
	}

	w := New(reader, recorder, nil)
	w.retryDelay = time.Millisecond
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(recorder.calls) != 2 || recorder.calls[0] != "a" || recorder.calls[1] != "b" {
		t.Fatalf("expected calls a and b to be recorded, got %v", recorder.calls)
	}
	if recorder.attempts["c"] != recordAttempts {
		t.Fatalf("expected %d attempts for c, got %d", recordAttempts, recorder.attempts["c"])
	}
	want := []int64{1, 2, 3, 4, 5}
	if len(reader.committed) != len(want) {
		t.Fatalf("expected commits %v, got %v", want, reader.committed)
	}
	for i := range want {
		if reader.committed[i] != want[i] {
			t.Fatalf("expected commits %v, got %v", want, reader.committed)
		}
	}
	if !reader.closed {
		t.Fatal("reader must be closed when the worker stops")
	}
}

type flakyReader struct {
	scriptedReader
	errs    []error
	fetches []time.Time
}

func (r *flakyReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.fetches = append(r.fetches, time.Now())
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	return r.scriptedReader.FetchMessage(ctx)
}

func TestWorkerBacksOffOnFetchErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &flakyReader{
		scriptedReader: scriptedReader{cancel: cancel, msgs: []kafka.Message{
			message(t, 7, events.CallEnded, &domain.Call{LocalID: "a", Status: domain.CallStatusCompleted}),
		}},
		errs: []error{errors.New("broker unreachable"), errors.New("broker unreachable")},
	}
	recorder := &fakeRecorder{attempts: map[string]int{}, failures: map[string]int{}}

	w := New(reader, recorder, nil)
	w.retryDelay = 20 * time.Millisecond
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(recorder.calls) != 1 || recorder.calls[0] != "a" {
		t.Fatalf("expected call a to be recorded after the broker recovered, got %v", recorder.calls)
	}
	if len(reader.fetches) < 3 {
		t.Fatalf("expected at least 3 fetches, got %d", len(reader.fetches))
	}
	if gap := reader.fetches[1].Sub(reader.fetches[0]); gap < 20*time.Millisecond {
		t.Fatalf("expected a pause after the first failure, got %v", gap)
	}
	if gap := reader.fetches[2].Sub(reader.fetches[1]); gap < 40*time.Millisecond {
		t.Fatalf("expected the pause to grow after the second failure, got %v", gap)
	}
}

func TestWorkerStopsWhenReaderCloses(t *testing.T) {
	reader := &flakyReader{errs: []error{io.EOF}}
	recorder := &fakeRecorder{attempts: map[string]int{}, failures: map[string]int{}}

	done := make(chan error, 1)
	go func() { done <- New(reader, recorder, nil).Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker kept polling a closed reader")
	}
	if !reader.closed {
		t.Fatal("reader must be closed when the worker stops")
	}
}
