package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"accessgate.org/internal/audit"
	"accessgate.org/internal/authz"
)

type fixedResolver map[string]authz.Membership

func (r fixedResolver) Resolve(_ context.Context, subjectID, orgID string) (authz.Membership, error) {
	m, ok := r[subjectID+"/"+orgID]
	if !ok {
		return authz.Membership{}, authz.ErrNotAMember
	}
	return m, nil
}

func active(subject, org string, role authz.Role) authz.Membership {
	return authz.Membership{SubjectID: subject, OrgID: org, Role: role, Status: authz.MembershipActive}
}

func newTestReporter(t *testing.T, resolver authz.Resolver) (*Reporter, *audit.InMemory) {
	t.Helper()
	sink := audit.NewInMemory()
	recorder, err := audit.NewRecorder(sink, audit.NopAlerter{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r, err := NewReporter(resolver, sink, recorder)
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}
	return r, sink
}

func seed(t *testing.T, sink *audit.InMemory, c audit.Channel, orgID, actor, action, rtype string) {
	t.Helper()
	_, err := sink.Record(context.Background(), audit.Event{
		Channel: c, OrgID: orgID, ActorID: actor, Action: action, ResourceType: rtype,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestEventsRoleGatePerChannel(t *testing.T) {
	resolver := fixedResolver{
		"admin/org-a":  active("admin", "org-a", authz.RoleAdmin),
		"member/org-a": active("member", "org-a", authz.RoleMember),
	}
	r, sink := newTestReporter(t, resolver)
	seed(t, sink, audit.ChannelDomain, "org-a", "u1", audit.ActionRecordAccess, "sensitive-record")
	seed(t, sink, audit.ChannelIdentity, "org-a", "u1", audit.ActionAccessDenied, "")

	if _, err := r.Events(context.Background(), "member", audit.Query{Channel: audit.ChannelDomain, OrgID: "org-a"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member reading domain channel: expected ErrForbidden, got %v", err)
	}
	page, err := r.Events(context.Background(), "member", audit.Query{Channel: audit.ChannelIdentity, OrgID: "org-a"})
	if err != nil || len(page.Events) != 1 {
		t.Fatalf("member reading identity channel: %d events, err=%v", len(page.Events), err)
	}
	page, err = r.Events(context.Background(), "admin", audit.Query{Channel: audit.ChannelDomain, OrgID: "org-a"})
	if err != nil || len(page.Events) != 1 {
		t.Fatalf("admin reading domain channel: %d events, err=%v", len(page.Events), err)
	}
	if _, err := r.Events(context.Background(), "stranger", audit.Query{Channel: audit.ChannelIdentity, OrgID: "org-a"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-member: expected ErrForbidden, got %v", err)
	}
}

func TestReportAggregatesBothChannels(t *testing.T) {
	resolver := fixedResolver{"owner/org-a": active("owner", "org-a", authz.RoleOwner)}
	r, sink := newTestReporter(t, resolver)
	seed(t, sink, audit.ChannelDomain, "org-a", "u1", audit.ActionRecordAccess, "sensitive-record")
	seed(t, sink, audit.ChannelDomain, "org-a", "u1", audit.ActionRecordAccess, "sensitive-record")
	seed(t, sink, audit.ChannelDomain, "org-a", "u2", audit.ActionPaymentTransfer, "financial-transfer")
	seed(t, sink, audit.ChannelIdentity, "org-a", "u3", audit.ActionAccessDenied, "")
	seed(t, sink, audit.ChannelDomain, "org-b", "u9", audit.ActionRecordAccess, "sensitive-record")

	s, err := r.Report(context.Background(), "owner", "org-a", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if s.Total != 4 {
		t.Fatalf("expected 4 events in org-a, got %d", s.Total)
	}
	if s.ByChannel["domain"] != 3 || s.ByChannel["identity"] != 1 {
		t.Fatalf("channel counts wrong: %v", s.ByChannel)
	}
	if s.ByAction[audit.ActionRecordAccess] != 2 || s.ByAction[audit.ActionPaymentTransfer] != 1 {
		t.Fatalf("action counts wrong: %v", s.ByAction)
	}
	if s.ByType["financial-transfer"] != 1 {
		t.Fatalf("resource type counts wrong: %v", s.ByType)
	}
}

func TestReportRejectsInvertedRange(t *testing.T) {
	resolver := fixedResolver{"owner/org-a": active("owner", "org-a", authz.RoleOwner)}
	r, _ := newTestReporter(t, resolver)

	now := time.Now()
	_, err := r.Report(context.Background(), "owner", "org-a", now, now.Add(-time.Hour))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestExportSelfAudits(t *testing.T) {
	resolver := fixedResolver{"owner/org-a": active("owner", "org-a", authz.RoleOwner)}
	r, sink := newTestReporter(t, resolver)
	seed(t, sink, audit.ChannelDomain, "org-a", "u1", audit.ActionRecordUpdate, "sensitive-record")
	seed(t, sink, audit.ChannelDomain, "org-a", "u2", audit.ActionRecordAccess, "sensitive-record")

	m, events, err := r.Export(context.Background(), "owner", "org-a", "regulator request", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if m.Count != 2 || len(events) != 2 {
		t.Fatalf("expected 2 exported events, got count=%d len=%d", m.Count, len(events))
	}
	if m.ContentHash == "" || m.RequestedBy != "owner" || m.Reason != "regulator request" {
		t.Fatalf("manifest incomplete: %+v", m)
	}

	page, err := sink.Query(context.Background(), audit.Query{Channel: audit.ChannelDomain, OrgID: "org-a", Action: audit.ActionExport})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Events) != 1 {
		t.Fatalf("expected exactly one export event, got %d", len(page.Events))
	}
	e := page.Events[0]
	if e.ActorID != "owner" || e.ResourceID != m.ID {
		t.Fatalf("export event does not reference the manifest: %+v", e)
	}
	if e.Metadata["content_hash"] != m.ContentHash || e.Metadata["reason"] != "regulator request" {
		t.Fatalf("export event metadata incomplete: %v", e.Metadata)
	}
}

func TestExportRequiresReasonAndRole(t *testing.T) {
	resolver := fixedResolver{
		"owner/org-a":  active("owner", "org-a", authz.RoleOwner),
		"member/org-a": active("member", "org-a", authz.RoleMember),
	}
	r, _ := newTestReporter(t, resolver)

	if _, _, err := r.Export(context.Background(), "owner", "org-a", "  ", time.Time{}, time.Time{}); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if _, _, err := r.Export(context.Background(), "member", "org-a", "curiosity", time.Time{}, time.Time{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

type exportBlockingSink struct {
	*audit.InMemory
}

func (s exportBlockingSink) Record(ctx context.Context, e audit.Event) (string, error) {
	if e.Action == audit.ActionExport {
		return "", errors.New("sink unavailable")
	}
	return s.InMemory.Record(ctx, e)
}

func TestExportFailsWhenSelfAuditCannotBeWritten(t *testing.T) {
	resolver := fixedResolver{"owner/org-a": active("owner", "org-a", authz.RoleOwner)}
	sink := exportBlockingSink{audit.NewInMemory()}
	recorder, err := audit.NewRecorder(sink, audit.NopAlerter{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r, err := NewReporter(resolver, sink, recorder)
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}

	_, _, err = r.Export(context.Background(), "owner", "org-a", "regulator request", time.Time{}, time.Time{})
	if !errors.Is(err, audit.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
}
