package calls

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"smarttv-backend/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect selects placeholder style and DDL for the backing database.
type Dialect string

const (
	DialectPostgres Dialect = utils.DriverPostgres
	DialectSQLite   Dialect = utils.DriverSQLite
)

// NOTE: Postgres deployments are expected to have the calls table created by migrations.
// Migrate exists for sqlite (local env and tests) and is safe to run against Postgres too.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS calls (
  call_id          TEXT PRIMARY KEY,
  room_name        TEXT NOT NULL,
  caller_id        TEXT NOT NULL DEFAULT '',
  callee_id        TEXT NOT NULL DEFAULT '',
  status           TEXT NOT NULL,
  started_at       TIMESTAMPTZ NULL,
  ended_at         TIMESTAMPTZ NULL,
  end_reason       TEXT NULL,
  duration_seconds INTEGER NULL CHECK (duration_seconds >= 0),
  created_at       TIMESTAMPTZ NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL,
  CHECK ((ended_at IS NULL) = (end_reason IS NULL)),
  CHECK ((ended_at IS NULL) = (duration_seconds IS NULL))
);
CREATE INDEX IF NOT EXISTS calls_status_idx ON calls (status);
CREATE INDEX IF NOT EXISTS calls_created_at_idx ON calls (created_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS calls (
  call_id          TEXT PRIMARY KEY,
  room_name        TEXT NOT NULL,
  caller_id        TEXT NOT NULL DEFAULT '',
  callee_id        TEXT NOT NULL DEFAULT '',
  status           TEXT NOT NULL,
  started_at       DATETIME NULL,
  ended_at         DATETIME NULL,
  end_reason       TEXT NULL,
  duration_seconds INTEGER NULL CHECK (duration_seconds >= 0),
  created_at       DATETIME NOT NULL,
  updated_at       DATETIME NOT NULL,
  CHECK ((ended_at IS NULL) = (end_reason IS NULL)),
  CHECK ((ended_at IS NULL) = (duration_seconds IS NULL))
);
CREATE INDEX IF NOT EXISTS calls_status_idx ON calls (status);
CREATE INDEX IF NOT EXISTS calls_created_at_idx ON calls (created_at);
`

const callColumns = `call_id, room_name, caller_id, callee_id, status, started_at, ended_at, end_reason, duration_seconds, created_at, updated_at`

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// SQLStore is the database/sql Store used in deployed environments.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, clock: time.Now}
}

// q rewrites $n placeholders to ?n for sqlite, which binds ?NNN by explicit index.
func (s *SQLStore) q(query string) string {
	if s.dialect == DialectSQLite {
		return placeholderRe.ReplaceAllString(query, "?$1")
	}
	return query
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classifyErr(fmt.Errorf("calls: migrate: %w", err))
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, c CallRecord) error {
	if err := validateNew(c); err != nil {
		return err
	}
	now := s.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	var started sql.NullTime
	if !c.StartedAt.IsZero() {
		started = sql.NullTime{Time: c.StartedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO calls (call_id, room_name, caller_id, callee_id, status, started_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`),
		c.CallID,
		c.RoomName,
		c.CallerID,
		c.CalleeID,
		string(c.Status),
		started,
		c.CreatedAt.UTC(),
		now,
	)
	return classifyErr(err)
}

func (s *SQLStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+callColumns+` FROM calls WHERE call_id = $1`), callID)
	c, err := scanCall(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, classifyErr(err)
	}
	return c, nil
}

func (s *SQLStore) ListByStatus(ctx context.Context, status CallStatus) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT `+callColumns+`
FROM calls
WHERE status = $1
ORDER BY started_at ASC, call_id ASC
`), string(status))
	if err != nil {
		return nil, classifyErr(err)
	}
	return collectRows(rows)
}

// ListCreatedBetween covers pending calls too, which have no started_at yet.
func (s *SQLStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT `+callColumns+`
FROM calls
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC, call_id ASC
`), from.UTC(), to.UTC())
	if err != nil {
		return nil, classifyErr(err)
	}
	return collectRows(rows)
}

// SetEnded writes the end state only if nobody has yet.
// The guarded UPDATE is the atomicity boundary; the follow-up SELECT in the same
// transaction only explains why zero rows changed.
func (s *SQLStore) SetEnded(ctx context.Context, callID string, endedAt time.Time, reason EndReason, durationSeconds int) error {
	if err := validateEnd(callID, endedAt, reason, durationSeconds); err != nil {
		return err
	}
	now := s.clock().UTC()

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`
UPDATE calls
SET status = $1, ended_at = $2, end_reason = $3, duration_seconds = $4, updated_at = $5
WHERE call_id = $6 AND status = $7 AND ended_at IS NULL
`),
			string(CallStatusEnded),
			endedAt.UTC(),
			string(reason),
			durationSeconds,
			now,
			callID,
			string(CallStatusAccepted),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			return nil
		}

		var status string
		var ended sql.NullTime
		err = tx.QueryRowContext(ctx, s.q(`SELECT status, ended_at FROM calls WHERE call_id = $1`), callID).Scan(&status, &ended)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if ended.Valid {
			return ErrAlreadyEnded
		}
		return ErrNotActive
	})
	return classifyErr(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(r rowScanner) (CallRecord, error) {
	var (
		c         CallRecord
		status    string
		started   sql.NullTime
		ended     sql.NullTime
		reason    sql.NullString
		durationS sql.NullInt64
	)
	if err := r.Scan(
		&c.CallID,
		&c.RoomName,
		&c.CallerID,
		&c.CalleeID,
		&status,
		&started,
		&ended,
		&reason,
		&durationS,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return CallRecord{}, err
	}
	c.Status = CallStatus(status)
	if started.Valid {
		c.StartedAt = started.Time.UTC()
	}
	if ended.Valid {
		t := ended.Time.UTC()
		c.EndedAt = &t
	}
	if reason.Valid {
		c.EndReason = EndReason(reason.String)
	}
	if durationS.Valid {
		d := int(durationS.Int64)
		c.DurationSeconds = &d
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func collectRows(rows *sql.Rows) ([]CallRecord, error) {
	defer rows.Close()
	out := make([]CallRecord, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr(err)
	}
	return out, nil
}

// classifyErr tags connectivity failures with ErrStoreUnavailable and leaves
// sentinel outcomes and query errors untouched.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyEnded), errors.Is(err, ErrNotActive), errors.Is(err, ErrInvalidArgument):
		return err
	case errors.Is(err, ErrStoreUnavailable):
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) ||
		strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
