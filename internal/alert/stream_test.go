package alert

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedAlerts(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Publish(Alert{Severity: "critical", Message: "domain audit write failed"})

	select {
	case a := <-ch:
		if a.Message != "domain audit write failed" || a.Timestamp.IsZero() {
			t.Fatalf("unexpected alert: %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatalf("alert not delivered")
	}
}

func TestSubscriptionClosesOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel, got a value")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}

	// Publishing after the subscriber left must not panic.
	s.Publish(Alert{Message: "late"})
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Alert{Message: "burst"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}
	if len(ch) == 0 {
		t.Fatalf("expected at least the buffered alerts")
	}
}

func TestAlerterAdapterMarksCritical(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	s.Alert(context.Background(), "boom", map[string]any{"org_id": "org-a"})

	select {
	case a := <-ch:
		if a.Severity != "critical" || a.Fields["org_id"] != "org-a" {
			t.Fatalf("unexpected alert: %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatalf("alert not delivered")
	}
}
