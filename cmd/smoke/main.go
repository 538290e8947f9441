package main

import (
	"context"
	"log"
	"time"

	"accessgate.org/internal/alert"
	"accessgate.org/internal/audit"
	"accessgate.org/internal/authz"
	"accessgate.org/internal/obs"
	"accessgate.org/internal/report"
)

// Smoke-checks the engine end to end against in-memory stores: an owner is
// allowed and audited, an outsider is denied, and the export self-audits.
func main() {
	log.SetFlags(0)
	obs.Init()

	members := smokeMemberships{
		"u-owner/org-a":  {SubjectID: "u-owner", OrgID: "org-a", Role: authz.RoleOwner, Status: authz.MembershipActive},
		"u-member/org-a": {SubjectID: "u-member", OrgID: "org-a", Role: authz.RoleMember, Status: authz.MembershipActive},
	}

	sink := audit.NewInMemory()
	recorder, err := audit.NewRecorder(sink, alert.New())
	if err != nil {
		log.Fatalf("recorder: %v", err)
	}
	resolver, err := authz.NewStoreResolver(members)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	engine, err := authz.NewEngine(resolver, recorder)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	reporter, err := report.NewReporter(resolver, sink, recorder)
	if err != nil {
		log.Fatalf("reporter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := authz.OrgResource(authz.ResourceSensitiveRecord, "org-a", "rec-1")

	d, err := engine.Authorize(ctx, "u-owner", "org-a", res, authz.OpRead)
	if err != nil || !d.Allow {
		log.Fatalf("owner read: allow=%v err=%v", d.Allow, err)
	}

	d, err = engine.Authorize(ctx, "u-stranger", "org-a", res, authz.OpRead)
	if err != nil || d.Allow {
		log.Fatalf("stranger read: allow=%v err=%v", d.Allow, err)
	}

	manifest, events, err := reporter.Export(ctx, "u-owner", "org-a", "smoke check", time.Time{}, time.Time{})
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionRecordAccess {
		log.Fatalf("expected exactly the owner's access event, got %d events", len(events))
	}

	page, err := sink.Query(ctx, audit.Query{Channel: audit.ChannelDomain, OrgID: "org-a", Action: audit.ActionExport})
	if err != nil || len(page.Events) != 1 {
		log.Fatalf("export self-audit missing: %d events, err=%v", len(page.Events), err)
	}

	log.Printf("OK: decisions enforced, %d domain events, export %s hash=%s", manifest.Count+1, manifest.ID, manifest.ContentHash[:12])
}

type smokeMemberships map[string]authz.Membership

func (m smokeMemberships) Membership(_ context.Context, subjectID, orgID string) (authz.Membership, error) {
	if mem, ok := m[subjectID+"/"+orgID]; ok {
		return mem, nil
	}
	return authz.Membership{}, authz.ErrNotAMember
}
