package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func record(t *testing.T, s *InMemory, c Channel, orgID, actor, action string) string {
	t.Helper()
	id, err := s.Record(context.Background(), Event{
		Channel: c,
		OrgID:   orgID,
		ActorID: actor,
		Action:  action,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return id
}

func TestRecordThenQueryReadYourWrites(t *testing.T) {
	s := NewInMemory()
	id := record(t, s, ChannelDomain, "org-a", "u1", ActionRecordAccess)

	page, err := s.Query(context.Background(), Query{Channel: ChannelDomain, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != id {
		t.Fatalf("expected the recorded event, got %+v", page.Events)
	}
	if page.Events[0].RecordedAt.IsZero() {
		t.Fatalf("expected server-assigned timestamp")
	}
}

func TestQueryIsTenantScoped(t *testing.T) {
	s := NewInMemory()
	record(t, s, ChannelDomain, "org-a", "u1", ActionRecordAccess)
	record(t, s, ChannelDomain, "org-b", "u2", ActionRecordUpdate)

	page, err := s.Query(context.Background(), Query{Channel: ChannelDomain, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, e := range page.Events {
		if e.OrgID != "org-a" {
			t.Fatalf("event of org %s leaked into org-a query", e.OrgID)
		}
	}
	if len(page.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(page.Events))
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	s := NewInMemory()
	record(t, s, ChannelIdentity, "org-a", "u1", ActionAccessDenied)
	record(t, s, ChannelDomain, "org-a", "u1", ActionRecordAccess)

	idPage, err := s.Query(context.Background(), Query{Channel: ChannelIdentity, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(idPage.Events) != 1 || idPage.Events[0].Action != ActionAccessDenied {
		t.Fatalf("unexpected identity events: %+v", idPage.Events)
	}
	domPage, err := s.Query(context.Background(), Query{Channel: ChannelDomain, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(domPage.Events) != 1 || domPage.Events[0].Action != ActionRecordAccess {
		t.Fatalf("unexpected domain events: %+v", domPage.Events)
	}
}

func TestEventsAreImmutableThroughQueryResults(t *testing.T) {
	s := NewInMemory()
	_, err := s.Record(context.Background(), Event{
		Channel:  ChannelDomain,
		OrgID:    "org-a",
		ActorID:  "u1",
		Action:   ActionRecordUpdate,
		Metadata: map[string]string{"field": "diagnosis"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	page, err := s.Query(context.Background(), Query{Channel: ChannelDomain, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	page.Events[0].ActorID = "tampered"
	page.Events[0].Metadata["field"] = "tampered"

	again, err := s.Query(context.Background(), Query{Channel: ChannelDomain, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if again.Events[0].ActorID != "u1" || again.Events[0].Metadata["field"] != "diagnosis" {
		t.Fatalf("stored event was mutated through a query result: %+v", again.Events[0])
	}
}

func TestQueryOrderingAndRestartablePaging(t *testing.T) {
	s := NewInMemory()
	var want []string
	for i := 0; i < 25; i++ {
		want = append(want, record(t, s, ChannelDomain, "org-a", "u1", ActionRecordAccess))
	}

	var got []string
	q := Query{Channel: ChannelDomain, OrgID: "org-a", Limit: 10}
	for {
		page, err := s.Query(context.Background(), q)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		for _, e := range page.Events {
			got = append(got, e.ID)
		}
		if page.NextAfterID == "" {
			break
		}
		q.AfterID = page.NextAfterID
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d events across pages, got %d", len(want), len(got))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("ordering broken at %d: %s != %s", i, got[i], want[i])
		}
		if i > 0 && got[i] <= got[i-1] {
			t.Fatalf("ids not ascending at %d", i)
		}
	}
}

func TestQuerySupersetRangeLosesNothing(t *testing.T) {
	s := NewInMemory()
	record(t, s, ChannelDomain, "org-a", "u1", ActionRecordAccess)
	record(t, s, ChannelDomain, "org-a", "u1", ActionRecordUpdate)

	now := time.Now().UTC()
	narrow, err := s.Query(context.Background(), Query{
		Channel: ChannelDomain, OrgID: "org-a",
		From: now.Add(-time.Minute), To: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	wide, err := s.Query(context.Background(), Query{
		Channel: ChannelDomain, OrgID: "org-a",
		From: now.Add(-time.Hour), To: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(wide.Events) < len(narrow.Events) || len(wide.Events) != 2 {
		t.Fatalf("superset range lost events: narrow=%d wide=%d", len(narrow.Events), len(wide.Events))
	}
}

func TestQueryFilters(t *testing.T) {
	s := NewInMemory()
	record(t, s, ChannelDomain, "org-a", "u1", ActionRecordAccess)
	record(t, s, ChannelDomain, "org-a", "u2", ActionRecordUpdate)
	record(t, s, ChannelDomain, "org-a", "u2", ActionExport)

	page, err := s.Query(context.Background(), Query{Channel: ChannelDomain, OrgID: "org-a", ActorID: "u2", Action: ActionExport})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].Action != ActionExport {
		t.Fatalf("filter mismatch: %+v", page.Events)
	}
}

func TestRecordRejectsInvalidEvents(t *testing.T) {
	s := NewInMemory()
	cases := []Event{
		{Channel: "bogus", OrgID: "org-a", ActorID: "u1", Action: ActionRecordAccess},
		{Channel: ChannelDomain, ActorID: "u1", Action: ActionRecordAccess},
		{Channel: ChannelDomain, OrgID: "org-a", Action: ActionRecordAccess},
		{Channel: ChannelDomain, OrgID: "org-a", ActorID: "u1", Action: "made.up"},
		{Channel: ChannelIdentity, OrgID: "org-a", ActorID: "u1", Action: ActionExport},
	}
	for i, e := range cases {
		if _, err := s.Record(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("case %d: expected ErrInvalidEvent, got %v", i, err)
		}
	}
}

func TestTimestampsMonotonicPerChannel(t *testing.T) {
	s := NewInMemory()
	base := time.Now().UTC()
	times := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	i := 0
	s.now = func() time.Time {
		t := times[i%len(times)]
		i++
		return t
	}

	for range times {
		record(t, s, ChannelDomain, "org-a", "u1", ActionRecordAccess)
	}
	page, err := s.Query(context.Background(), Query{Channel: ChannelDomain, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for j := 1; j < len(page.Events); j++ {
		if page.Events[j].RecordedAt.Before(page.Events[j-1].RecordedAt) {
			t.Fatalf("timestamps regressed at %d", j)
		}
	}
}

func TestPruneRemovesOnlyOldEvents(t *testing.T) {
	s := NewInMemory()
	old := time.Now().UTC().Add(-48 * time.Hour)
	s.now = func() time.Time { return old }
	record(t, s, ChannelIdentity, "org-a", "u1", ActionSessionStart)

	s.now = time.Now
	record(t, s, ChannelIdentity, "org-a", "u1", ActionSessionEnd)

	removed, err := s.Prune(context.Background(), ChannelIdentity, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
	page, err := s.Query(context.Background(), Query{Channel: ChannelIdentity, OrgID: "org-a"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].Action != ActionSessionEnd {
		t.Fatalf("wrong survivor: %+v", page.Events)
	}
}
