package audit

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"smarttv-backend/pkg/utils"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
  id         TEXT PRIMARY KEY,
  type       TEXT NOT NULL,
  actor      TEXT NOT NULL,
  actor_role TEXT NOT NULL DEFAULT '',
  ip_address TEXT NOT NULL DEFAULT '',
  call_id    TEXT NOT NULL DEFAULT '',
  room_name  TEXT NOT NULL DEFAULT '',
  message    TEXT NOT NULL DEFAULT '',
  metadata   TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_call_idx ON audit_events (call_id);
`

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// SQLRepo appends audit events with INSERT only.
type SQLRepo struct {
	db     *sql.DB
	sqlite bool
}

// NewSQLRepo takes the database/sql driver name to pick the placeholder style.
func NewSQLRepo(db *sql.DB, driverName string) *SQLRepo {
	return &SQLRepo{db: db, sqlite: driverName == utils.DriverSQLite}
}

func (r *SQLRepo) q(query string) string {
	if r.sqlite {
		return placeholderRe.ReplaceAllString(query, "?$1")
	}
	return query
}

func (r *SQLRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, r.q(`
INSERT INTO audit_events (id, type, actor, actor_role, ip_address, call_id, room_name, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`),
		e.ID,
		string(e.Type),
		e.Actor,
		e.ActorRole,
		e.IPAddress,
		e.CallID,
		e.RoomName,
		e.Message,
		e.Metadata,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// ListByCall returns a call's events oldest first.
func (r *SQLRepo) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
SELECT id, type, actor, actor_role, ip_address, call_id, room_name, message, metadata, created_at
FROM audit_events
WHERE call_id = $1
ORDER BY created_at ASC, id ASC
`), callID)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.Actor, &e.ActorRole, &e.IPAddress, &e.CallID, &e.RoomName, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Type = EventType(typ)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
