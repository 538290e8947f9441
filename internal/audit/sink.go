package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrWriteFailed = errors.New("audit: write failed")

// Query selects events from one channel of one organization. Queries are
// always org-scoped; events of other organizations are never visible, no
// matter what else the filter says.
type Query struct {
	Channel Channel
	OrgID   string

	// From is inclusive, To exclusive. Zero values leave the bound open.
	From time.Time
	To   time.Time

	// Optional filters.
	ActorID      string
	Action       string
	ResourceType string

	// AfterID resumes a prior page: only events with id > AfterID are
	// returned. Event ids are time-ordered, so paging by id preserves the
	// ascending-by-timestamp contract and is restartable.
	AfterID string
	Limit   int
}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Validate normalizes the query and rejects unusable ones.
func (q *Query) Validate() error {
	if !q.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidEvent, q.Channel)
	}
	q.OrgID = strings.TrimSpace(q.OrgID)
	if q.OrgID == "" {
		return fmt.Errorf("%w: org_id is required", ErrInvalidEvent)
	}
	if q.Limit <= 0 || q.Limit > maxPageSize {
		q.Limit = defaultPageSize
	}
	return nil
}

// Page is one slice of a query result. Pass NextAfterID back as AfterID to
// resume; an empty NextAfterID means the range is exhausted.
type Page struct {
	Events      []Event `json:"events"`
	NextAfterID string  `json:"next_after_id,omitempty"`
}

// Sink is the append-only event store. A successful Record guarantees the
// event is durably readable by subsequent Query calls on the same channel and
// organization.
type Sink interface {
	Record(ctx context.Context, e Event) (string, error)
	Query(ctx context.Context, q Query) (Page, error)
}

// Pruner removes events older than a cutoff. This is the retention path, not
// a normal write path; only the Janitor calls it.
type Pruner interface {
	Prune(ctx context.Context, c Channel, before time.Time) (int, error)
}
