package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"accessgate.org/internal/audit"
	"accessgate.org/internal/authz"
)

var ErrReasonRequired = errors.New("report: export reason is required")

// Manifest describes one export for the receiving party: who asked, what
// range, how many records, and a content hash for tamper detection.
type Manifest struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Count       int       `json:"count"`
	ContentHash string    `json:"content_hash"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Export reads the organization's domain-channel events for the range and
// records the export itself as a domain audit event, closing the loop: the
// audit trail has an audit trail. If that event cannot be written the export
// fails; an unlogged export never leaves the building.
func (r *Reporter) Export(ctx context.Context, subjectID, orgID, reason string, from, to time.Time) (Manifest, []audit.Event, error) {
	orgID = strings.TrimSpace(orgID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Manifest{}, nil, ErrReasonRequired
	}
	if err := validateRange(from, to); err != nil {
		return Manifest{}, nil, err
	}
	if err := r.requireRole(ctx, subjectID, orgID, true); err != nil {
		return Manifest{}, nil, err
	}

	var events []audit.Event
	err := r.drain(ctx, audit.Query{Channel: audit.ChannelDomain, OrgID: orgID, From: from, To: to}, func(e audit.Event) {
		events = append(events, e)
	})
	if err != nil {
		return Manifest{}, nil, err
	}

	hash, err := contentHash(events)
	if err != nil {
		return Manifest{}, nil, err
	}

	m := Manifest{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		RequestedBy: subjectID,
		Reason:      reason,
		From:        from,
		To:          to,
		Count:       len(events),
		ContentHash: hash,
		GeneratedAt: r.now().UTC(),
	}

	if _, err := r.recorder.Record(ctx, audit.Event{
		Channel:      audit.ChannelDomain,
		OrgID:        orgID,
		ActorID:      subjectID,
		Action:       audit.ActionExport,
		ResourceType: string(authz.ResourceAuditTrail),
		ResourceID:   m.ID,
		Metadata: map[string]string{
			"reason":       reason,
			"from":         from.UTC().Format(time.RFC3339Nano),
			"to":           to.UTC().Format(time.RFC3339Nano),
			"count":        strconv.Itoa(m.Count),
			"content_hash": m.ContentHash,
		},
	}); err != nil {
		return Manifest{}, nil, fmt.Errorf("report: export not recorded: %w", err)
	}

	return m, events, nil
}

// contentHash is SHA-256 over the newline-joined JSON encoding of the events
// in id order. The receiving party recomputes it over the delivered stream.
func contentHash(events []audit.Event) (string, error) {
	h := sha256.New()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return "", err
		}
		h.Write(data)
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
