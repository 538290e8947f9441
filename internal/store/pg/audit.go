package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"accessgate.org/internal/audit"
	"accessgate.org/internal/ids"
)

var _ audit.Sink = (*Store)(nil)
var _ audit.Pruner = (*Store)(nil)

// tableFor maps a channel to its physical table. The two channels never share
// a table, so retention and export policies stay independent.
func tableFor(c audit.Channel) (string, error) {
	switch c {
	case audit.ChannelIdentity:
		return "audit_identity", nil
	case audit.ChannelDomain:
		return "audit_domain", nil
	}
	return "", fmt.Errorf("%w: unknown channel %q", audit.ErrInvalidEvent, c)
}

// Record appends one event. Insert only: no update or delete statement exists
// on these tables outside Prune.
func (s *Store) Record(ctx context.Context, e audit.Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	table, err := tableFor(e.Channel)
	if err != nil {
		return "", err
	}

	e.ID = ids.New()
	meta := metadataJSON(e.Metadata)

	query := fmt.Sprintf(`
		insert into %s(id, org_id, actor_id, action, resource_type, resource_id, prev_value, new_value, metadata, recorded_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, table)
	if _, err := s.db.ExecContext(ctx, query,
		e.ID, e.OrgID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		nullableRaw(e.PrevValue), nullableRaw(e.NewValue), meta,
	); err != nil {
		return "", err
	}
	return e.ID, nil
}

// Query returns one ascending, keyset-paged slice of the org's events. The
// org_id predicate is part of every query; tenant isolation holds at the SQL
// layer, not just above it.
func (s *Store) Query(ctx context.Context, q audit.Query) (audit.Page, error) {
	if err := q.Validate(); err != nil {
		return audit.Page{}, err
	}
	table, err := tableFor(q.Channel)
	if err != nil {
		return audit.Page{}, err
	}

	var (
		where = []string{"org_id = $1"}
		args  = []any{q.OrgID}
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if !q.From.IsZero() {
		add("recorded_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		add("recorded_at < ?", q.To)
	}
	if q.ActorID != "" {
		add("actor_id = ?", q.ActorID)
	}
	if q.Action != "" {
		add("action = ?", q.Action)
	}
	if q.ResourceType != "" {
		add("resource_type = ?", q.ResourceType)
	}
	if q.AfterID != "" {
		add("id > ?", q.AfterID)
	}
	args = append(args, q.Limit)

	query := fmt.Sprintf(`
		select id, org_id, actor_id, action, resource_type, resource_id, prev_value, new_value, metadata, recorded_at
		from %s
		where %s
		order by id asc
		limit $%d
	`, table, strings.Join(where, " and "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return audit.Page{}, err
	}
	defer rows.Close()

	var page audit.Page
	for rows.Next() {
		e, err := scanEvent(rows, q.Channel)
		if err != nil {
			return audit.Page{}, err
		}
		page.Events = append(page.Events, e)
	}
	if err := rows.Err(); err != nil {
		return audit.Page{}, err
	}
	if len(page.Events) == q.Limit {
		page.NextAfterID = page.Events[len(page.Events)-1].ID
	}
	return page, nil
}

// Prune removes events recorded before the cutoff. Retention path only.
func (s *Store) Prune(ctx context.Context, c audit.Channel, before time.Time) (int, error) {
	table, err := tableFor(c)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where recorded_at < $1`, table), before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanEvent(rows *sql.Rows, c audit.Channel) (audit.Event, error) {
	var (
		e          audit.Event
		prev, next []byte
		meta       []byte
	)
	if err := rows.Scan(&e.ID, &e.OrgID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &prev, &next, &meta, &e.RecordedAt); err != nil {
		return audit.Event{}, err
	}
	e.Channel = c
	e.PrevValue = prev
	e.NewValue = next
	if len(meta) > 0 {
		e.Metadata = decodeMetadata(meta)
	}
	return e, nil
}
