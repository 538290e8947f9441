package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MembershipStore is the persistence surface the resolver reads from.
// Implementations return ErrNotAMember when no membership row exists for the
// pair; any other error is treated as a storage fault.
type MembershipStore interface {
	Membership(ctx context.Context, subjectID, orgID string) (Membership, error)
}

// Resolver resolves the committed membership state for one (subject, org)
// pair. Pure read, idempotent, safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, subjectID, orgID string) (Membership, error)
}

// StoreResolver resolves memberships straight from the store on every call.
// No caching: membership state can change between requests (role revocation),
// and a stale cache would reintroduce exactly the leakage this engine exists
// to prevent.
type StoreResolver struct {
	store MembershipStore
}

// NewStoreResolver constructs a resolver over the given store.
func NewStoreResolver(store MembershipStore) (*StoreResolver, error) {
	if store == nil {
		return nil, errors.New("authz: membership store is required")
	}
	return &StoreResolver{store: store}, nil
}

// Resolve returns the membership for the pair, ErrNotAMember when there is
// none, or ErrStorageUnavailable on a backend fault. The two failure modes
// are never conflated.
func (r *StoreResolver) Resolve(ctx context.Context, subjectID, orgID string) (Membership, error) {
	subjectID = strings.TrimSpace(subjectID)
	orgID = strings.TrimSpace(orgID)
	if subjectID == "" || orgID == "" {
		return Membership{}, fmt.Errorf("%w: subject_id and org_id are required", ErrInvalidInput)
	}
	m, err := r.store.Membership(ctx, subjectID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotAMember) {
			return Membership{}, ErrNotAMember
		}
		return Membership{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return m, nil
}
