package authz

import "errors"

var (
	// ErrNotAMember is a normal outcome, not a fault. Callers must map it to
	// deny, never to a system error.
	ErrNotAMember = errors.New("authz: not a member")

	// ErrStorageUnavailable marks a genuine storage fault. It is kept strictly
	// distinct from ErrNotAMember so that a backend outage can never be
	// mistaken for an ordinary denial, nor the reverse.
	ErrStorageUnavailable = errors.New("authz: storage unavailable")

	// ErrConfigurationConflict means the rule chain is ambiguous: more than
	// one rule matched a single request. This is a defect, never resolved
	// silently.
	ErrConfigurationConflict = errors.New("authz: policy rule conflict")

	ErrInvalidInput = errors.New("authz: invalid input")
)
