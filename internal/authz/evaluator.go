package authz

import "fmt"

// Evaluator runs the immutable rule chain. It holds no mutable state and is
// safe for concurrent use.
type Evaluator struct {
	chain []rule
}

// NewEvaluator constructs an Evaluator after self-checking the rule chain.
// A chain in which two rules can fire for the same request is a defect; it is
// rejected here rather than discovered under traffic.
func NewEvaluator() (*Evaluator, error) {
	if err := validateChain(chain); err != nil {
		return nil, err
	}
	return &Evaluator{chain: chain}, nil
}

// Evaluate walks the chain top to bottom and returns the decision of the
// first matching rule. Every rule is still probed: a second match means the
// chain is ambiguous and the request fails with ErrConfigurationConflict
// instead of silently picking a winner.
func (e *Evaluator) Evaluate(pc PrincipalContext, res ResourceDescriptor, op Operation) (Decision, error) {
	in := newRuleInput(pc, res, op)

	var (
		matched int
		first   *rule
	)
	for i := range e.chain {
		if !e.chain[i].matches(in) {
			continue
		}
		matched++
		if first == nil {
			first = &e.chain[i]
		}
	}
	switch {
	case matched == 0:
		return Decision{}, fmt.Errorf("%w: no rule matched op=%s type=%s", ErrConfigurationConflict, op, res.Type)
	case matched > 1:
		return Decision{}, fmt.Errorf("%w: %d rules matched op=%s type=%s, first=%s", ErrConfigurationConflict, matched, op, res.Type, first.name)
	}
	return Decision{Allow: first.allow, Rule: first.name}, nil
}

// validateChain sweeps a grid of synthetic inputs covering every evaluation
// shape and asserts that exactly one rule matches each. Rule names must also
// be unique.
func validateChain(rules []rule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.name == "" {
			return fmt.Errorf("%w: unnamed rule", ErrConfigurationConflict)
		}
		if _, dup := seen[r.name]; dup {
			return fmt.Errorf("%w: duplicate rule %s", ErrConfigurationConflict, r.name)
		}
		seen[r.name] = struct{}{}
	}

	for _, in := range probeInputs() {
		matched := 0
		for _, r := range rules {
			if r.matches(in) {
				matched++
			}
		}
		if matched != 1 {
			return fmt.Errorf("%w: %d rules matched probe %+v", ErrConfigurationConflict, matched, in)
		}
	}
	return nil
}

func probeInputs() []ruleInput {
	const (
		subject = "probe-subject"
		orgA    = "probe-org-a"
		orgB    = "probe-org-b"
	)
	shapes := []ResourceDescriptor{
		PublicResource(ResourceProfile, "r"),
		OrgResource(ResourceProfile, orgA, "r"),
		OwnedResource(ResourceSchedulingRecord, orgA, subject, "r"),
		OwnedResource(ResourceSchedulingRecord, orgA, "someone-else", "r"),
		SharedResource(ResourceBooking, orgA, orgB, subject, "r"),
		SharedResource(ResourceBooking, orgA, orgB, "someone-else", "r"),
		SharedResource(ResourceBooking, orgA, orgB, "", "r"),
	}
	contexts := []PrincipalContext{
		{SubjectID: subject},
		{SubjectID: subject, Memberships: map[string]Membership{
			orgA: {SubjectID: subject, OrgID: orgA, Role: RoleOwner, Status: MembershipActive},
		}},
		{SubjectID: subject, Memberships: map[string]Membership{
			orgA: {SubjectID: subject, OrgID: orgA, Role: RoleMember, Status: MembershipActive},
		}},
		{SubjectID: subject, Memberships: map[string]Membership{
			orgA: {SubjectID: subject, OrgID: orgA, Role: RoleBilling, Status: MembershipActive},
		}},
		{SubjectID: subject, Memberships: map[string]Membership{
			orgA: {SubjectID: subject, OrgID: orgA, Role: RoleOwner, Status: MembershipSuspended},
		}},
		{SubjectID: subject, Memberships: map[string]Membership{
			orgB: {SubjectID: subject, OrgID: orgB, Role: RoleMember, Status: MembershipActive},
		}},
		{SubjectID: subject, Memberships: map[string]Membership{
			orgA: {SubjectID: subject, OrgID: orgA, Role: RoleMember, Status: MembershipActive},
			orgB: {SubjectID: subject, OrgID: orgB, Role: RoleAdmin, Status: MembershipActive},
		}},
	}

	var inputs []ruleInput
	for _, res := range shapes {
		for _, pc := range contexts {
			for _, op := range []Operation{OpRead, OpWrite, OpDelete} {
				inputs = append(inputs, newRuleInput(pc, res, op))
			}
		}
	}
	return inputs
}
