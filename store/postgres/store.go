// Package postgres is a principal.Store on PostgreSQL through database/sql
// and the pgx stdlib driver. Schema migrations are embedded and applied with
// Migrate.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/principal"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const recordColumns = `id, role, tenant_id, security_stamp, provider, external_id, username, display_name, language, created_at, updated_at, deleted_at`

// Store implements principal.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ principal.Store = (*Store)(nil)

// Open connects with the pgx driver and pool defaults sized for a session
// service that reads one row per verification.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// LookupStamp reads only the stamp and the soft-delete flag.
func (s *Store) LookupStamp(ctx context.Context, id string) (principal.StampRecord, error) {
	var out principal.StampRecord
	err := s.db.QueryRowContext(ctx,
		`select security_stamp, deleted_at is not null from principals where id = $1`, id,
	).Scan(&out.Stamp, &out.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return principal.StampRecord{}, principal.ErrNotFound
	}
	if err != nil {
		return principal.StampRecord{}, err
	}
	return out, nil
}

func (s *Store) SetStamp(ctx context.Context, id, stamp string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set security_stamp = $2, updated_at = $3 where id = $1 and deleted_at is null`,
		id, stamp, s.now().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missing(ctx, id)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (principal.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`select `+recordColumns+` from principals where id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return principal.Record{}, principal.ErrNotFound
	}
	return rec, err
}

// FindOrCreate inserts the principal unless the identity is already bound. A
// concurrent insert of the same identity loses on the unique index and reads
// the winner's row.
func (s *Store) FindOrCreate(ctx context.Context, identity principal.ExternalIdentity, nr principal.NewRecord) (principal.Record, bool, error) {
	now := s.now().UTC()
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `
		insert into principals (id, role, tenant_id, security_stamp, provider, external_id, username, display_name, language, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		on conflict (provider, external_id) where external_id <> '' do nothing
		returning `+recordColumns,
		nr.ID, string(nr.Role), nullString(nr.TenantID), nr.SecurityStamp,
		identity.Provider, identity.Subject, identity.Username, displayName(identity), identity.Language, now,
	))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return principal.Record{}, false, err
	}

	rec, err = scanRecord(s.db.QueryRowContext(ctx,
		`select `+recordColumns+` from principals where provider = $1 and external_id = $2`,
		identity.Provider, identity.Subject,
	))
	if err != nil {
		return principal.Record{}, false, err
	}
	return rec, false, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, role principal.Role, stamp string) (principal.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`update principals set role = $2, security_stamp = $3, updated_at = $4 where id = $1 and deleted_at is null returning `+recordColumns,
		id, string(role), stamp, s.now().UTC(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return principal.Record{}, s.missing(ctx, id)
	}
	return rec, err
}

func (s *Store) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set deleted_at = $2, updated_at = $2 where id = $1 and deleted_at is null`,
		id, s.now().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := s.missing(ctx, id); !errors.Is(err, principal.ErrDeleted) {
		return err
	}
	return nil
}

// missing explains why a guarded update touched no row.
func (s *Store) missing(ctx context.Context, id string) error {
	var deleted bool
	err := s.db.QueryRowContext(ctx,
		`select deleted_at is not null from principals where id = $1`, id,
	).Scan(&deleted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return principal.ErrNotFound
	case err != nil:
		return err
	case deleted:
		return principal.ErrDeleted
	default:
		return errors.New("postgres: principal changed concurrently")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (principal.Record, error) {
	var (
		rec     principal.Record
		role    string
		tenant  sql.NullString
		deleted sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &role, &tenant, &rec.SecurityStamp,
		&rec.Provider, &rec.ExternalID, &rec.Username, &rec.DisplayName, &rec.Language,
		&rec.CreatedAt, &rec.UpdatedAt, &deleted,
	)
	if err != nil {
		return principal.Record{}, err
	}
	rec.Role = principal.Role(role)
	if tenant.Valid {
		rec.TenantID = &tenant.String
	}
	if deleted.Valid {
		t := deleted.Time
		rec.DeletedAt = &t
	}
	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func displayName(identity principal.ExternalIdentity) string {
	switch {
	case identity.FirstName != "" && identity.LastName != "":
		return identity.FirstName + " " + identity.LastName
	case identity.FirstName != "":
		return identity.FirstName
	default:
		return identity.LastName
	}
}
