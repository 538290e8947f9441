package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accessgate.org/internal/obs"
)

// Retention holds the per-channel retention windows. Exact values are an
// operational and legal decision, injected as configuration.
type Retention struct {
	Identity time.Duration
	Domain   time.Duration
}

// Window returns the retention window for the channel; zero means "retain
// forever" and disables pruning.
func (r Retention) Window(c Channel) time.Duration {
	switch c {
	case ChannelIdentity:
		return r.Identity
	case ChannelDomain:
		return r.Domain
	}
	return 0
}

// Janitor enforces retention. It is the only code path that removes audit
// events; sweeps are themselves logged.
type Janitor struct {
	pruner    Pruner
	retention Retention
	now       func() time.Time
}

// NewJanitor constructs a Janitor.
func NewJanitor(pruner Pruner, retention Retention) (*Janitor, error) {
	if pruner == nil {
		return nil, errors.New("audit: pruner is required")
	}
	return &Janitor{pruner: pruner, retention: retention, now: time.Now}, nil
}

// Sweep prunes each channel whose retention window has a value. Channels with
// no configured window are never touched.
func (j *Janitor) Sweep(ctx context.Context) error {
	for _, c := range []Channel{ChannelIdentity, ChannelDomain} {
		window := j.retention.Window(c)
		if window <= 0 {
			continue
		}
		cutoff := j.now().UTC().Add(-window)
		removed, err := j.pruner.Prune(ctx, c, cutoff)
		if err != nil {
			return fmt.Errorf("audit: sweep %s channel: %w", c, err)
		}
		obs.Log(map[string]any{
			"ts":      j.now().UTC().Format(time.RFC3339Nano),
			"type":    "audit_retention_sweep",
			"channel": string(c),
			"cutoff":  cutoff.Format(time.RFC3339),
			"removed": removed,
		})
	}
	return nil
}
