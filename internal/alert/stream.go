package alert

import (
	"context"
	"sync"
	"time"
)

// Alert is an operational escalation, e.g. a failed domain audit write.
type Alert struct {
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stream fans alerts out to all active subscribers (ops dashboards, SSE
// clients). Publishing never blocks; a slow subscriber drops alerts rather
// than stalling the write path.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Alert
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Alert)}
}

// Subscribe returns a channel receiving all alerts published after the call.
// The subscription ends when ctx is done; the channel is then closed.
func (s *Stream) Subscribe(ctx context.Context) <-chan Alert {
	ch := make(chan Alert, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		// Closed under the write lock so no concurrent Publish can be
		// mid-send on this channel.
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the alert to every subscriber, dropping it for any whose
// buffer is full.
func (s *Stream) Publish(a Alert) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

// Alert implements audit.Alerter: escalated audit failures land on the
// stream as critical alerts.
func (s *Stream) Alert(_ context.Context, message string, fields map[string]any) {
	s.Publish(Alert{Severity: "critical", Message: message, Fields: fields})
}
