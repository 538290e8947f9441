package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accessgate.org/internal/obs"
)

// Alerter is the operational monitoring hook for escalated audit failures.
type Alerter interface {
	Alert(ctx context.Context, message string, fields map[string]any)
}

// NopAlerter discards alerts. For tests and the smoke binary.
type NopAlerter struct{}

func (NopAlerter) Alert(context.Context, string, map[string]any) {}

// Recorder wraps a Sink with the per-channel failure policy:
//
//   - identity channel: best effort. A failed write is logged and counted,
//     the caller proceeds.
//   - domain channel: a failed write is logged at critical severity, counted,
//     pushed to the monitoring channel, and surfaced to the caller as
//     ErrWriteFailed. The caller decides whether the triggering business
//     operation still proceeds (the facade lets allows through; the gap is an
//     incident, not an outage).
type Recorder struct {
	sink    Sink
	alerter Alerter
}

// NewRecorder constructs a Recorder.
func NewRecorder(sink Sink, alerter Alerter) (*Recorder, error) {
	if sink == nil {
		return nil, errors.New("audit: sink is required")
	}
	if alerter == nil {
		alerter = NopAlerter{}
	}
	return &Recorder{sink: sink, alerter: alerter}, nil
}

// Record writes the event, applying the channel failure policy. Invalid
// events are rejected up front on both channels.
func (r *Recorder) Record(ctx context.Context, e Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	id, err := r.sink.Record(ctx, e)
	if err == nil {
		obs.CountAuditEvent(string(e.Channel))
		return id, nil
	}

	obs.CountAuditFailure(string(e.Channel))
	fields := map[string]any{
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"type":    "audit_failure",
		"channel": string(e.Channel),
		"org_id":  e.OrgID,
		"action":  e.Action,
		"error":   err.Error(),
	}

	if e.Channel == ChannelIdentity {
		fields["level"] = "warn"
		obs.Log(fields)
		return "", nil
	}

	fields["level"] = "critical"
	obs.Log(fields)
	r.alerter.Alert(ctx, "domain audit write failed", fields)
	return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
}

// Query passes through to the underlying sink.
func (r *Recorder) Query(ctx context.Context, q Query) (Page, error) {
	return r.sink.Query(ctx, q)
}
