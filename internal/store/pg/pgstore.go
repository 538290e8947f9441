package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"accessgate.org/internal/authz"
)

// Store implements the membership, organization and audit persistence over
// PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ authz.MembershipStore = (*Store)(nil)

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool (used by tests via sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Membership returns the committed membership row for the pair, or
// authz.ErrNotAMember when none exists. Any other error is a storage fault.
func (s *Store) Membership(ctx context.Context, subjectID, orgID string) (authz.Membership, error) {
	var m authz.Membership
	err := s.db.QueryRowContext(ctx, `
		select subject_id, org_id, role, status, created_at, updated_at
		from memberships
		where subject_id=$1 and org_id=$2
	`, subjectID, orgID).Scan(&m.SubjectID, &m.OrgID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Membership{}, authz.ErrNotAMember
	}
	if err != nil {
		return authz.Membership{}, err
	}
	return m, nil
}

// UpsertMembership creates a membership or changes its role/status. Rows are
// never deleted; revocation is a status change to suspended.
func (s *Store) UpsertMembership(ctx context.Context, m authz.Membership) (authz.Membership, error) {
	if !m.Role.Valid() {
		return authz.Membership{}, fmt.Errorf("%w: unknown role %q", authz.ErrInvalidInput, m.Role)
	}
	err := s.db.QueryRowContext(ctx, `
		insert into memberships(subject_id, org_id, role, status)
		values ($1,$2,$3,$4)
		on conflict (subject_id, org_id) do update
		set role = excluded.role, status = excluded.status, updated_at = now()
		returning subject_id, org_id, role, status, created_at, updated_at
	`, m.SubjectID, m.OrgID, m.Role, m.Status).Scan(
		&m.SubjectID, &m.OrgID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return authz.Membership{}, err
	}
	return m, nil
}

// SuspendMembership marks the membership suspended, preserving the row for
// audit continuity.
func (s *Store) SuspendMembership(ctx context.Context, subjectID, orgID string) error {
	res, err := s.db.ExecContext(ctx, `
		update memberships set status=$3, updated_at=now()
		where subject_id=$1 and org_id=$2
	`, subjectID, orgID, authz.MembershipSuspended)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.ErrNotAMember
	}
	return nil
}

// ListMemberships returns all memberships of a subject, any status.
func (s *Store) ListMemberships(ctx context.Context, subjectID string) ([]authz.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select subject_id, org_id, role, status, created_at, updated_at
		from memberships where subject_id=$1
		order by created_at asc
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []authz.Membership
	for rows.Next() {
		var m authz.Membership
		if err := rows.Scan(&m.SubjectID, &m.OrgID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CreateOrganization inserts a tenant.
func (s *Store) CreateOrganization(ctx context.Context, org authz.Organization) (authz.Organization, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into organizations(id, name, kind, state)
		values ($1,$2,$3,$4)
		returning id, name, kind, state, created_at, updated_at
	`, org.ID, org.Name, org.Kind, authz.OrgActive).Scan(
		&org.ID, &org.Name, &org.Kind, &org.State, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return authz.Organization{}, err
	}
	return org, nil
}

// GetOrganization loads a tenant by id.
func (s *Store) GetOrganization(ctx context.Context, id string) (authz.Organization, error) {
	var org authz.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, name, kind, state, created_at, updated_at
		from organizations where id=$1
	`, id).Scan(&org.ID, &org.Name, &org.Kind, &org.State, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Organization{}, authz.ErrNotAMember
	}
	if err != nil {
		return authz.Organization{}, err
	}
	return org, nil
}

// CascadeDeleteOrganization is the explicit tenant teardown: the org is
// marked deleted and every membership suspended, in one transaction. Audit
// rows are retained untouched.
func (s *Store) CascadeDeleteOrganization(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update organizations set state=$2, updated_at=now() where id=$1
	`, id, authz.OrgDeleted)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.ErrNotAMember
	}
	if _, err := tx.ExecContext(ctx, `
		update memberships set status=$2, updated_at=now() where org_id=$1
	`, id, authz.MembershipSuspended); err != nil {
		return err
	}
	return tx.Commit()
}
