package events

import (
	"testing"
	"time"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	hub.Publish(CallUpdate, "payload")

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.C:
			if ev.Name != CallUpdate || ev.Payload != "payload" {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestHubNeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(BulkProgress, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}

	if hub.Dropped() != 99 {
		t.Fatalf("expected 99 dropped deliveries, got %d", hub.Dropped())
	}
}

func TestSubscriptionClose(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()
	sub.Close()
	sub.Close()

	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after close")
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}
	hub.Publish(CallUpdate, nil)
}

func TestFanoutSkipsNil(t *testing.T) {
	var rec Recorder
	pub := Fanout(nil, &rec, Discard)
	pub.Publish(JobScheduled, 1)

	if got := rec.Named(JobScheduled); len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected recorded events %v", got)
	}
}
