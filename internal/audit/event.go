package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel separates the two trust levels of audit events.
type Channel string

const (
	// ChannelIdentity holds session/membership/authentication-adjacent
	// events. Short retention, best-effort writes.
	ChannelIdentity Channel = "identity"

	// ChannelDomain holds access to sensitive records, payment events and
	// record mutations. Multi-year retention; write failures escalate.
	ChannelDomain Channel = "domain"
)

// Valid reports whether the channel is known.
func (c Channel) Valid() bool {
	return c == ChannelIdentity || c == ChannelDomain
}

// Closed per-channel action vocabularies.
const (
	ActionAccessDenied     = "access.denied"
	ActionSessionStart     = "session.start"
	ActionSessionEnd       = "session.end"
	ActionMembershipCreate = "membership.create"
	ActionMembershipUpdate = "membership.update"

	ActionRecordAccess    = "record.access"
	ActionRecordCreate    = "record.create"
	ActionRecordUpdate    = "record.update"
	ActionRecordDelete    = "record.delete"
	ActionPaymentTransfer = "payment.transfer"
	ActionExport          = "export"
)

var (
	identityActions = map[string]struct{}{
		ActionAccessDenied:     {},
		ActionSessionStart:     {},
		ActionSessionEnd:       {},
		ActionMembershipCreate: {},
		ActionMembershipUpdate: {},
	}
	domainActions = map[string]struct{}{
		ActionRecordAccess:    {},
		ActionRecordCreate:    {},
		ActionRecordUpdate:    {},
		ActionRecordDelete:    {},
		ActionPaymentTransfer: {},
		ActionExport:          {},
	}
)

// ActionAllowed reports whether the action belongs to the channel's closed
// vocabulary.
func ActionAllowed(c Channel, action string) bool {
	switch c {
	case ChannelIdentity:
		_, ok := identityActions[action]
		return ok
	case ChannelDomain:
		_, ok := domainActions[action]
		return ok
	}
	return false
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Event is an immutable audit record. Once recorded it is never updated or
// deleted through normal application paths.
type Event struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	OrgID        string            `json:"org_id"`
	ActorID      string            `json:"actor_id"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	PrevValue    json.RawMessage   `json:"prev_value,omitempty"`
	NewValue     json.RawMessage   `json:"new_value,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// Validate checks the event against the channel vocabulary and required
// fields. ID and RecordedAt are assigned by the sink, not the caller.
func (e Event) Validate() error {
	if !e.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidEvent, e.Channel)
	}
	if strings.TrimSpace(e.OrgID) == "" {
		return fmt.Errorf("%w: org_id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return fmt.Errorf("%w: actor_id is required", ErrInvalidEvent)
	}
	if !ActionAllowed(e.Channel, e.Action) {
		return fmt.Errorf("%w: action %q not in %s channel vocabulary", ErrInvalidEvent, e.Action, e.Channel)
	}
	return nil
}

// Clone returns a deep copy so stored events can never be mutated through a
// returned reference.
func (e Event) Clone() Event {
	out := e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.PrevValue != nil {
		out.PrevValue = append(json.RawMessage(nil), e.PrevValue...)
	}
	if e.NewValue != nil {
		out.NewValue = append(json.RawMessage(nil), e.NewValue...)
	}
	return out
}
