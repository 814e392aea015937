package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rfq-cli/internal/model"
)

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Every pooled connection gets a busy timeout and immediate write locks so
// concurrent evaluations queue instead of failing with SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_txlock=immediate"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS rfqs (
	id         TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	rfq_id      TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rfqs_created_at ON rfqs(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_kind_time ON audit_events(kind, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_rfq ON audit_events(rfq_id, seq);

CREATE TRIGGER IF NOT EXISTS audit_events_no_update
BEFORE UPDATE ON audit_events
BEGIN
	SELECT RAISE(ABORT, 'audit_events is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_events_no_delete
BEFORE DELETE ON audit_events
BEGIN
	SELECT RAISE(ABORT, 'audit_events is append-only');
END;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	// Databases created before versioned writes lack the column.
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('rfqs') WHERE name = 'version'`,
	).Scan(&n)
	if err != nil {
		return eris.Wrap(err, "sqlite: inspect rfqs columns")
	}
	if n == 0 {
		_, err = s.db.ExecContext(ctx, `ALTER TABLE rfqs ADD COLUMN version INTEGER NOT NULL DEFAULT 0`)
		return eris.Wrap(err, "sqlite: add rfqs.version")
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRFQ inserts rfq at version 1 and sets rfq.Version on success.
func (s *SQLiteStore) CreateRFQ(ctx context.Context, rfq *model.RFQ) error {
	rec := *rfq
	rec.Version = 1
	recordJSON, err := json.Marshal(&rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal rfq")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rfqs (id, record, created_at, updated_at, version) VALUES (?, ?, ?, ?, ?)`,
		rfq.ID, string(recordJSON), formatTS(rfq.CreatedAt), formatTS(rfq.UpdatedAt), rec.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.NewAttributeError("id", "rfq "+rfq.ID+" already exists")
		}
		return eris.Wrapf(err, "sqlite: insert rfq %s", rfq.ID)
	}
	rfq.Version = rec.Version
	return nil
}

func (s *SQLiteStore) GetRFQ(ctx context.Context, id string) (*model.RFQ, error) {
	var recordJSON string
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT record, version FROM rfqs WHERE id = ?`, id).Scan(&recordJSON, &version)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: rfq %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get rfq %s", id)
	}
	return decodeRFQ([]byte(recordJSON), version)
}

func (s *SQLiteStore) ListRFQs(ctx context.Context, limit, offset int) ([]model.RFQ, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record, version FROM rfqs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, max(offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rfqs")
	}
	defer rows.Close()

	var out []model.RFQ
	for rows.Next() {
		var recordJSON string
		var version int64
		if err := rows.Scan(&recordJSON, &version); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rfq")
		}
		r, err := decodeRFQ([]byte(recordJSON), version)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rfqs iterate")
}

// UpdateRFQ replaces the record if its stored version still equals
// rfq.Version, then advances rfq.Version.
func (s *SQLiteStore) UpdateRFQ(ctx context.Context, rfq *model.RFQ) error {
	next, err := updateRFQ(ctx, s.db, rfq)
	if err != nil {
		return err
	}
	rfq.Version = next
	return nil
}

func (s *SQLiteStore) CommitEvaluation(ctx context.Context, rfq *model.RFQ, events []model.AuditEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin evaluation")
	}
	defer tx.Rollback() //nolint:errcheck

	next, err := updateRFQ(ctx, tx, rfq)
	if err != nil {
		return err
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "sqlite: commit evaluation %s", rfq.ID)
	}
	rfq.Version = next
	return nil
}

func (s *SQLiteStore) AppendEvents(ctx context.Context, events ...model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.AuditEvent, error) {
	query := `SELECT id, rfq_id, kind, occurred_at, payload FROM audit_events WHERE 1=1`
	var args []any

	if filter.RFQID != "" {
		query += ` AND rfq_id = ?`
		args = append(args, filter.RFQID)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, formatTS(filter.Since))
	}
	if !filter.Until.IsZero() {
		query += ` AND occurred_at <= ?`
		args = append(args, formatTS(filter.Until))
	}
	query += ` ORDER BY seq`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var kind, occurredAt, payload string
		if err := rows.Scan(&ev.ID, &ev.RFQID, &kind, &occurredAt, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		ts, err := time.Parse(tsLayout, occurredAt)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse event %s timestamp", ev.ID)
		}
		ev.Kind = model.EventKind(kind)
		ev.Timestamp = ts
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

// helpers

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// updateRFQ writes rfq at rfq.Version+1 when the stored version is still
// rfq.Version and returns the new version.
func updateRFQ(ctx context.Context, x execer, rfq *model.RFQ) (int64, error) {
	rec := *rfq
	rec.Version = rfq.Version + 1
	recordJSON, err := json.Marshal(&rec)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal rfq")
	}
	res, err := x.ExecContext(ctx,
		`UPDATE rfqs SET record = ?, updated_at = ?, version = ? WHERE id = ? AND version = ?`,
		string(recordJSON), formatTS(rfq.UpdatedAt), rec.Version, rfq.ID, rfq.Version,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: update rfq %s", rfq.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return rec.Version, nil
	}

	var exists int
	err = x.QueryRowContext(ctx, `SELECT 1 FROM rfqs WHERE id = ?`, rfq.ID).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, eris.Wrapf(model.ErrNotFound, "sqlite: rfq %s", rfq.ID)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: check rfq %s", rfq.ID)
	}
	return 0, eris.Wrapf(model.ErrConflict, "sqlite: rfq %s version %d", rfq.ID, rfq.Version)
}

func insertEvents(ctx context.Context, x execer, events []model.AuditEvent) error {
	for _, ev := range events {
		_, err := x.ExecContext(ctx,
			`INSERT INTO audit_events (id, rfq_id, kind, occurred_at, payload) VALUES (?, ?, ?, ?, ?)`,
			ev.ID, ev.RFQID, string(ev.Kind), formatTS(ev.Timestamp), string(ev.Payload),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert event %s", ev.ID)
		}
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// decodeRFQ unmarshals a stored record. The version column is authoritative.
func decodeRFQ(data []byte, version int64) (*model.RFQ, error) {
	var r model.RFQ
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "unmarshal rfq")
	}
	r.Version = version
	return &r, nil
}
