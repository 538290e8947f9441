package authz

// Rule identifiers surfaced in decisions and audit metadata.
const (
	RulePublicRead       = "public-read"
	RuleDualTenantRead   = "dual-tenant-read"
	RuleDualTenantWrite  = "dual-tenant-owner-write"
	RuleNoMembership     = "no-membership"
	RuleMemberRead       = "member-read"
	RuleAdminWrite       = "admin-write"
	RuleSelfWrite        = "self-write"
	RuleInsufficientRole = "insufficient-role"
)

// ruleInput is the full evaluation state shared by every rule predicate, so
// that predicates stay cheap, side-effect free and mutually exclusive.
type ruleInput struct {
	subject string
	res     ResourceDescriptor
	op      Operation

	activePrimary   bool
	primaryRole     Role
	activeSecondary bool
	isOwner         bool
}

func newRuleInput(pc PrincipalContext, res ResourceDescriptor, op Operation) ruleInput {
	in := ruleInput{subject: pc.SubjectID, res: res, op: op}
	if m, ok := pc.ActiveIn(res.OrgID); ok && !res.Public() {
		in.activePrimary = true
		in.primaryRole = m.Role
	}
	if res.Shared() {
		if _, ok := pc.ActiveIn(res.SecondaryOrgID); ok {
			in.activeSecondary = true
		}
	}
	in.isOwner = res.OwnerID != "" && res.OwnerID == pc.SubjectID
	return in
}

type rule struct {
	name    string
	allow   bool
	matches func(in ruleInput) bool
}

// chain is the fixed, ordered rule set. First match wins; the order is an
// invariant. The predicates are written to be mutually exclusive, and the
// evaluator treats a double match as a fatal configuration conflict rather
// than silently picking one.
//
// When both the admin-write and self-write preconditions hold, admin-write
// fires: an administrator touching their own record is recorded under the
// role-based rule, which is the more informative attribution for later audit
// review.
var chain = []rule{
	{
		name:  RulePublicRead,
		allow: true,
		matches: func(in ruleInput) bool {
			return in.res.Public() && in.op == OpRead
		},
	},
	{
		name:  RuleDualTenantRead,
		allow: true,
		matches: func(in ruleInput) bool {
			return in.res.Shared() && !in.activePrimary && in.activeSecondary && in.op == OpRead
		},
	},
	{
		name:  RuleDualTenantWrite,
		allow: true,
		matches: func(in ruleInput) bool {
			return in.res.Shared() && !in.activePrimary && in.activeSecondary && in.op.Mutating() && in.isOwner
		},
	},
	{
		name:  RuleNoMembership,
		allow: false,
		matches: func(in ruleInput) bool {
			if in.activePrimary {
				return false
			}
			if in.res.Public() && in.op == OpRead {
				return false
			}
			if in.res.Shared() && in.activeSecondary && (in.op == OpRead || in.op.Mutating() && in.isOwner) {
				return false
			}
			return true
		},
	},
	{
		name:  RuleMemberRead,
		allow: true,
		matches: func(in ruleInput) bool {
			return in.activePrimary && in.op == OpRead
		},
	},
	{
		name:  RuleAdminWrite,
		allow: true,
		matches: func(in ruleInput) bool {
			return in.activePrimary && in.op.Mutating() && in.primaryRole.Administrative()
		},
	},
	{
		name:  RuleSelfWrite,
		allow: true,
		matches: func(in ruleInput) bool {
			return in.activePrimary && in.op.Mutating() && !in.primaryRole.Administrative() && in.isOwner
		},
	},
	{
		name:  RuleInsufficientRole,
		allow: false,
		matches: func(in ruleInput) bool {
			return in.activePrimary && in.op.Mutating() && !in.primaryRole.Administrative() && !in.isOwner
		},
	},
}
