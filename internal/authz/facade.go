package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"accessgate.org/internal/audit"
	"accessgate.org/internal/obs"
)

// Engine is the single authorization entry point: membership resolution,
// policy evaluation and audit mirroring in one call. It is stateless per
// request and safe for arbitrary concurrent use; all serialization lives in
// the storage layer.
type Engine struct {
	resolver Resolver
	eval     *Evaluator
	recorder *audit.Recorder
}

// NewEngine validates the rule chain and wires the facade. A chain conflict
// surfaces here, at startup, as ErrConfigurationConflict.
func NewEngine(resolver Resolver, recorder *audit.Recorder) (*Engine, error) {
	if resolver == nil {
		return nil, errors.New("authz: resolver is required")
	}
	if recorder == nil {
		return nil, errors.New("authz: audit recorder is required")
	}
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{resolver: resolver, eval: eval, recorder: recorder}, nil
}

// Authorize decides whether subjectID may perform op on the resource within
// orgID. It must be called before every read or mutation of a tenant-scoped
// resource.
//
// Expected conditions (no membership, insufficient role) come back as
// ordinary deny decisions with a nil error. Only storage faults and rule
// chain conflicts return a non-nil error, and those always come with a deny:
// the engine never allows on ambiguous or missing data.
func (e *Engine) Authorize(ctx context.Context, subjectID, orgID string, res ResourceDescriptor, op Operation) (Decision, error) {
	subjectID = strings.TrimSpace(subjectID)
	orgID = strings.TrimSpace(orgID)
	if subjectID == "" || orgID == "" {
		return Decision{Allow: false, Rule: RuleNoMembership}, fmt.Errorf("%w: subject_id and org_id are required", ErrInvalidInput)
	}
	if !op.Valid() {
		return Decision{Allow: false, Rule: RuleNoMembership}, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, op)
	}
	if !res.Type.Valid() {
		return Decision{Allow: false, Rule: RuleNoMembership}, fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, res.Type)
	}
	// The target organization is always caller-supplied, never inferred from
	// the resource. The two must agree for tenant-scoped resources.
	if !res.Public() && res.OrgID != orgID {
		return Decision{Allow: false, Rule: RuleNoMembership}, fmt.Errorf("%w: resource org %q does not match target org %q", ErrInvalidInput, res.OrgID, orgID)
	}

	pc, err := e.resolvePrincipal(ctx, subjectID, res)
	if err != nil {
		// Deny-by-default on fault. The denial is still security-relevant,
		// so it is logged to the identity channel best-effort.
		d := Decision{Allow: false, Rule: RuleNoMembership}
		e.recordDenial(ctx, subjectID, orgID, res, op, d.Rule)
		obs.CountDecision(d.Allow, d.Rule)
		return d, err
	}

	d, err := e.eval.Evaluate(pc, res, op)
	if err != nil {
		return Decision{Allow: false, Rule: RuleNoMembership}, err
	}
	obs.CountDecision(d.Allow, d.Rule)

	if !d.Allow {
		e.recordDenial(ctx, subjectID, orgID, res, op, d.Rule)
		return d, nil
	}

	if res.Type.DomainSensitive() {
		// Exactly one domain event per allowed domain-sensitive access. A
		// failed write escalates inside the recorder but does not revoke the
		// decision: availability of the underlying operation wins, and the
		// gap is surfaced as an incident.
		_, _ = e.recorder.Record(ctx, audit.Event{
			Channel:      audit.ChannelDomain,
			OrgID:        orgID,
			ActorID:      subjectID,
			Action:       domainAction(op),
			ResourceType: string(res.Type),
			ResourceID:   res.ID,
			Metadata:     map[string]string{"rule": d.Rule, "operation": string(op)},
		})
	}
	return d, nil
}

// RecordEvent is the explicit audit-write path for events not tied to a
// single Authorize call, e.g. a multi-step workflow's completion.
func (e *Engine) RecordEvent(ctx context.Context, ev audit.Event) (string, error) {
	return e.recorder.Record(ctx, ev)
}

// resolvePrincipal loads the memberships relevant to the resource: the target
// org and, for dual-tenant resources, the secondary org. A missing membership
// is a normal outcome; a storage fault aborts resolution.
func (e *Engine) resolvePrincipal(ctx context.Context, subjectID string, res ResourceDescriptor) (PrincipalContext, error) {
	pc := PrincipalContext{SubjectID: subjectID, Memberships: map[string]Membership{}}
	for _, orgID := range res.Organizations() {
		m, err := e.resolver.Resolve(ctx, subjectID, orgID)
		if err != nil {
			if errors.Is(err, ErrNotAMember) {
				continue
			}
			return PrincipalContext{}, err
		}
		pc.Memberships[orgID] = m
	}
	return pc, nil
}

func (e *Engine) recordDenial(ctx context.Context, subjectID, orgID string, res ResourceDescriptor, op Operation, rule string) {
	_, _ = e.recorder.Record(ctx, audit.Event{
		Channel:      audit.ChannelIdentity,
		OrgID:        orgID,
		ActorID:      subjectID,
		Action:       audit.ActionAccessDenied,
		ResourceType: string(res.Type),
		ResourceID:   res.ID,
		Metadata:     map[string]string{"rule": rule, "operation": string(op)},
	})
}

func domainAction(op Operation) string {
	switch op {
	case OpWrite:
		return audit.ActionRecordUpdate
	case OpDelete:
		return audit.ActionRecordDelete
	default:
		return audit.ActionRecordAccess
	}
}
