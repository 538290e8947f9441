package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accessgate.org/internal/audit"
	"accessgate.org/internal/authz"
)

var (
	// ErrForbidden means the caller lacks the admin/owner role required to
	// read domain-channel audit data.
	ErrForbidden = errors.New("report: admin or owner role required")

	ErrInvalidRange = errors.New("report: invalid time range")
)

// Summary is a time-bounded aggregation of one organization's audit trail.
type Summary struct {
	OrgID     string         `json:"org_id"`
	From      time.Time      `json:"from"`
	To        time.Time      `json:"to"`
	Total     int            `json:"total"`
	ByChannel map[string]int `json:"by_channel"`
	ByAction  map[string]int `json:"by_action"`
	ByType    map[string]int `json:"by_resource_type"`
}

// Reporter is the read side over the audit sink. It shares the engine's
// membership resolver so its role checks carry the same deny-by-default
// semantics, and it records its own exports in the domain channel.
type Reporter struct {
	resolver authz.Resolver
	sink     audit.Sink
	recorder *audit.Recorder
	now      func() time.Time
}

// NewReporter constructs a Reporter.
func NewReporter(resolver authz.Resolver, sink audit.Sink, recorder *audit.Recorder) (*Reporter, error) {
	if resolver == nil {
		return nil, errors.New("report: resolver is required")
	}
	if sink == nil {
		return nil, errors.New("report: sink is required")
	}
	if recorder == nil {
		return nil, errors.New("report: recorder is required")
	}
	return &Reporter{resolver: resolver, sink: sink, recorder: recorder, now: time.Now}, nil
}

// Events runs an org-scoped audit query on behalf of subjectID. Domain
// channel data requires the admin or owner role; the identity channel is open
// to any active member of the organization.
func (r *Reporter) Events(ctx context.Context, subjectID string, q audit.Query) (audit.Page, error) {
	if err := q.Validate(); err != nil {
		return audit.Page{}, err
	}
	needAdmin := q.Channel == audit.ChannelDomain
	if err := r.requireRole(ctx, subjectID, q.OrgID, needAdmin); err != nil {
		return audit.Page{}, err
	}
	return r.sink.Query(ctx, q)
}

// Report aggregates both channels of one organization over a time range.
// Admin/owner only, since the summary covers domain-channel data.
func (r *Reporter) Report(ctx context.Context, subjectID, orgID string, from, to time.Time) (Summary, error) {
	orgID = strings.TrimSpace(orgID)
	if err := validateRange(from, to); err != nil {
		return Summary{}, err
	}
	if err := r.requireRole(ctx, subjectID, orgID, true); err != nil {
		return Summary{}, err
	}

	s := Summary{
		OrgID:     orgID,
		From:      from,
		To:        to,
		ByChannel: map[string]int{},
		ByAction:  map[string]int{},
		ByType:    map[string]int{},
	}
	for _, c := range []audit.Channel{audit.ChannelIdentity, audit.ChannelDomain} {
		err := r.drain(ctx, audit.Query{Channel: c, OrgID: orgID, From: from, To: to}, func(e audit.Event) {
			s.Total++
			s.ByChannel[string(c)]++
			s.ByAction[e.Action]++
			if e.ResourceType != "" {
				s.ByType[e.ResourceType]++
			}
		})
		if err != nil {
			return Summary{}, err
		}
	}
	return s, nil
}

// requireRole resolves the caller's membership in the org. A resolver fault
// denies, it never falls open.
func (r *Reporter) requireRole(ctx context.Context, subjectID, orgID string, needAdmin bool) error {
	m, err := r.resolver.Resolve(ctx, subjectID, orgID)
	if err != nil {
		if errors.Is(err, authz.ErrNotAMember) {
			return ErrForbidden
		}
		return err
	}
	if !m.Active() {
		return ErrForbidden
	}
	if needAdmin && !m.Role.Administrative() {
		return ErrForbidden
	}
	return nil
}

// drain pages through the full query range, invoking fn per event.
func (r *Reporter) drain(ctx context.Context, q audit.Query, fn func(audit.Event)) error {
	for {
		page, err := r.sink.Query(ctx, q)
		if err != nil {
			return err
		}
		for _, e := range page.Events {
			fn(e)
		}
		if page.NextAfterID == "" {
			return nil
		}
		q.AfterID = page.NextAfterID
	}
}

func validateRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return fmt.Errorf("%w: from %s is not before to %s", ErrInvalidRange, from, to)
	}
	return nil
}
