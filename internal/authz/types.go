package authz

import "time"

// Role is the closed set of membership roles.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
	RoleBilling Role = "billing-only"
)

// Valid reports whether the role is part of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleBilling:
		return true
	}
	return false
}

// Administrative reports whether the role carries org-wide write authority.
func (r Role) Administrative() bool {
	return r == RoleOwner || r == RoleAdmin
}

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipInvited   MembershipStatus = "invited"
	MembershipSuspended MembershipStatus = "suspended"
)

// Membership binds a principal to an organization with a role. Memberships
// are never hard-deleted, only suspended, to preserve audit continuity.
type Membership struct {
	SubjectID string    `json:"subject_id"`
	OrgID     string    `json:"org_id"`
	Role      Role      `json:"role"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the membership grants any access at all. Suspended
// and invited memberships behave exactly like no membership.
func (m Membership) Active() bool {
	return m.Status == MembershipActive
}

// OrgKind classifies a tenant.
type OrgKind string

const (
	OrgIndividualPatient  OrgKind = "individual-patient"
	OrgIndividualProvider OrgKind = "individual-provider"
	OrgClinic             OrgKind = "multi-member-clinic"
	OrgInstitutional      OrgKind = "institutional"
)

// OrgState is the lifecycle state of a tenant.
type OrgState string

const (
	OrgActive    OrgState = "active"
	OrgSuspended OrgState = "suspended"
	OrgDeleted   OrgState = "deleted"
)

// Organization is the tenant boundary.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      OrgKind   `json:"kind"`
	State     OrgState  `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Operation is the access being requested.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
)

// Valid reports whether the operation is part of the closed set.
func (op Operation) Valid() bool {
	switch op {
	case OpRead, OpWrite, OpDelete:
		return true
	}
	return false
}

// Mutating reports whether the operation changes state.
func (op Operation) Mutating() bool {
	return op == OpWrite || op == OpDelete
}

// ResourceType classifies the thing being accessed.
type ResourceType string

const (
	ResourceProfile           ResourceType = "profile"
	ResourceSchedulingRecord  ResourceType = "scheduling-record"
	ResourceBooking           ResourceType = "booking"
	ResourceFinancialTransfer ResourceType = "financial-transfer"
	ResourceSensitiveRecord   ResourceType = "sensitive-record"
	ResourceAuditTrail        ResourceType = "audit-trail"
)

// Valid reports whether the resource type is known.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceProfile, ResourceSchedulingRecord, ResourceBooking,
		ResourceFinancialTransfer, ResourceSensitiveRecord, ResourceAuditTrail:
		return true
	}
	return false
}

// DomainSensitive reports whether every allowed access to this resource type
// must be mirrored into the long-retention domain audit channel.
func (t ResourceType) DomainSensitive() bool {
	switch t {
	case ResourceFinancialTransfer, ResourceSensitiveRecord, ResourceAuditTrail:
		return true
	}
	return false
}

// resourceScope is the tagged shape of a ResourceDescriptor. A closed set of
// shapes keeps the evaluator's branching total, instead of null-checking an
// optional secondary org.
type resourceScope int

const (
	scopePublic resourceScope = iota
	scopeSingleOrg
	scopeDualOrg
)

// ResourceDescriptor describes the thing being accessed. It is constructed
// per call and never persisted. Use the constructors; the zero value is not
// meaningful.
type ResourceDescriptor struct {
	Type           ResourceType
	ID             string
	OrgID          string
	SecondaryOrgID string
	// OwnerID is the owning principal for strictly-owner-scoped resources,
	// and the designated owner-side actor for dual-tenant resources.
	OwnerID string

	scope resourceScope
}

// PublicResource describes a resource with no owning organization.
func PublicResource(t ResourceType, id string) ResourceDescriptor {
	return ResourceDescriptor{Type: t, ID: id, scope: scopePublic}
}

// OrgResource describes a resource owned by a single organization.
func OrgResource(t ResourceType, orgID, id string) ResourceDescriptor {
	return ResourceDescriptor{Type: t, ID: id, OrgID: orgID, scope: scopeSingleOrg}
}

// OwnedResource describes a single-org resource additionally scoped to one
// owning principal, e.g. a member's own schedule.
func OwnedResource(t ResourceType, orgID, ownerID, id string) ResourceDescriptor {
	return ResourceDescriptor{Type: t, ID: id, OrgID: orgID, OwnerID: ownerID, scope: scopeSingleOrg}
}

// SharedResource describes a resource that spans two tenants, e.g. a booking
// between a provider org and a patient org. ownerID names the owner-side
// actor permitted to mutate it from the secondary side; it may be empty.
func SharedResource(t ResourceType, orgID, secondaryOrgID, ownerID, id string) ResourceDescriptor {
	return ResourceDescriptor{
		Type:           t,
		ID:             id,
		OrgID:          orgID,
		SecondaryOrgID: secondaryOrgID,
		OwnerID:        ownerID,
		scope:          scopeDualOrg,
	}
}

// Public reports whether the resource has no owning organization.
func (r ResourceDescriptor) Public() bool { return r.scope == scopePublic }

// Shared reports whether the resource spans two tenants.
func (r ResourceDescriptor) Shared() bool { return r.scope == scopeDualOrg }

// Organizations returns the owning org ids, primary first.
func (r ResourceDescriptor) Organizations() []string {
	switch r.scope {
	case scopeSingleOrg:
		return []string{r.OrgID}
	case scopeDualOrg:
		return []string{r.OrgID, r.SecondaryOrgID}
	}
	return nil
}

// Decision is the outcome of an authorization request together with the rule
// that produced it.
type Decision struct {
	Allow bool   `json:"allow"`
	Rule  string `json:"rule"`
}

// PrincipalContext carries the resolved memberships relevant to one request.
// It never outlives the request; membership state is re-resolved every call.
type PrincipalContext struct {
	SubjectID   string
	Memberships map[string]Membership
}

// ActiveIn returns the principal's membership in orgID if it is active.
func (pc PrincipalContext) ActiveIn(orgID string) (Membership, bool) {
	m, ok := pc.Memberships[orgID]
	if !ok || !m.Active() {
		return Membership{}, false
	}
	return m, true
}
