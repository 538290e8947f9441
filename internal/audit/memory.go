package audit

import (
	"context"
	"sync"
	"time"

	"accessgate.org/internal/ids"
)

// InMemory implements Sink with in-process concurrency safety. Used in tests
// and for running the service without Postgres.
type InMemory struct {
	mu sync.RWMutex
	// events per channel per org, append-only, ordered by id.
	events map[Channel]map[string][]Event
	// last assigned timestamp per channel, to keep RecordedAt monotonically
	// non-decreasing per writer.
	lastTS map[Channel]time.Time
	now    func() time.Time
}

// NewInMemory creates an empty sink.
func NewInMemory() *InMemory {
	return &InMemory{
		events: map[Channel]map[string][]Event{
			ChannelIdentity: {},
			ChannelDomain:   {},
		},
		lastTS: map[Channel]time.Time{},
		now:    time.Now,
	}
}

var _ Sink = (*InMemory)(nil)
var _ Pruner = (*InMemory)(nil)

func (s *InMemory) Record(ctx context.Context, e Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e = e.Clone()
	e.ID = ids.New()
	ts := s.now().UTC()
	if last := s.lastTS[e.Channel]; ts.Before(last) {
		ts = last
	}
	s.lastTS[e.Channel] = ts
	e.RecordedAt = ts

	byOrg := s.events[e.Channel]
	byOrg[e.OrgID] = append(byOrg[e.OrgID], e)
	return e.ID, nil
}

func (s *InMemory) Query(ctx context.Context, q Query) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if err := q.Validate(); err != nil {
		return Page{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var page Page
	for _, e := range s.events[q.Channel][q.OrgID] {
		if !matches(e, q) {
			continue
		}
		page.Events = append(page.Events, e.Clone())
		if len(page.Events) == q.Limit {
			break
		}
	}
	if len(page.Events) == q.Limit {
		page.NextAfterID = page.Events[len(page.Events)-1].ID
	}
	return page, nil
}

// Prune removes events recorded before the cutoff. Retention only; nothing
// else in the package deletes.
func (s *InMemory) Prune(ctx context.Context, c Channel, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for org, list := range s.events[c] {
		kept := list[:0]
		for _, e := range list {
			if e.RecordedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		s.events[c][org] = kept
	}
	return removed, nil
}

func matches(e Event, q Query) bool {
	if q.AfterID != "" && e.ID <= q.AfterID {
		return false
	}
	if !q.From.IsZero() && e.RecordedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.RecordedAt.Before(q.To) {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.ResourceType != "" && e.ResourceType != q.ResourceType {
		return false
	}
	return true
}
