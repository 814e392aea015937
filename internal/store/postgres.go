package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rfq-cli/internal/db"
	"github.com/sells-group/rfq-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var auditEventColumns = []string{"id", "rfq_id", "kind", "occurred_at", "payload"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS rfqs (
	id         TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	version    BIGINT NOT NULL DEFAULT 0
);

ALTER TABLE rfqs ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS audit_events (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	rfq_id      TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rfqs_created_at ON rfqs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_kind_time ON audit_events(kind, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_rfq ON audit_events(rfq_id, seq);

CREATE OR REPLACE RULE audit_events_no_update AS ON UPDATE TO audit_events DO INSTEAD NOTHING;
CREATE OR REPLACE RULE audit_events_no_delete AS ON DELETE TO audit_events DO INSTEAD NOTHING;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateRFQ inserts rfq at version 1 and sets rfq.Version on success.
func (s *PostgresStore) CreateRFQ(ctx context.Context, rfq *model.RFQ) error {
	rec := *rfq
	rec.Version = 1
	recordJSON, err := json.Marshal(&rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal rfq")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO rfqs (id, record, created_at, updated_at, version) VALUES ($1, $2, $3, $4, $5)`,
		rfq.ID, recordJSON, rfq.CreatedAt.UTC(), rfq.UpdatedAt.UTC(), rec.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.NewAttributeError("id", "rfq "+rfq.ID+" already exists")
		}
		return eris.Wrapf(err, "postgres: insert rfq %s", rfq.ID)
	}
	rfq.Version = rec.Version
	return nil
}

func (s *PostgresStore) GetRFQ(ctx context.Context, id string) (*model.RFQ, error) {
	var recordJSON []byte
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT record, version FROM rfqs WHERE id = $1`, id).Scan(&recordJSON, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: rfq %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get rfq %s", id)
	}
	return decodeRFQ(recordJSON, version)
}

func (s *PostgresStore) ListRFQs(ctx context.Context, limit, offset int) ([]model.RFQ, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT record, version FROM rfqs ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, max(offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rfqs")
	}
	defer rows.Close()

	var out []model.RFQ
	for rows.Next() {
		var recordJSON []byte
		var version int64
		if err := rows.Scan(&recordJSON, &version); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rfq")
		}
		r, err := decodeRFQ(recordJSON, version)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rfqs iterate")
}

// UpdateRFQ replaces the record if its stored version still equals
// rfq.Version, then advances rfq.Version.
func (s *PostgresStore) UpdateRFQ(ctx context.Context, rfq *model.RFQ) error {
	next, err := pgUpdateRFQ(ctx, s.pool, rfq)
	if err != nil {
		return err
	}
	rfq.Version = next
	return nil
}

func (s *PostgresStore) CommitEvaluation(ctx context.Context, rfq *model.RFQ, events []model.AuditEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin evaluation")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	next, err := pgUpdateRFQ(ctx, tx, rfq)
	if err != nil {
		return err
	}
	if _, err := db.CopyFrom(ctx, tx, "audit_events", auditEventColumns, eventRows(events)); err != nil {
		return eris.Wrapf(err, "postgres: insert events for %s", rfq.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit evaluation %s", rfq.ID)
	}
	rfq.Version = next
	return nil
}

// AppendEvents writes events with COPY so a batch lands atomically.
func (s *PostgresStore) AppendEvents(ctx context.Context, events ...model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := db.CopyFrom(ctx, s.pool, "audit_events", auditEventColumns, eventRows(events))
	return eris.Wrap(err, "postgres: append events")
}

func eventRows(events []model.AuditEvent) [][]any {
	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []any{ev.ID, ev.RFQID, string(ev.Kind), ev.Timestamp.UTC(), []byte(ev.Payload)})
	}
	return rows
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.AuditEvent, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.RFQID != "" {
		where = append(where, "rfq_id = "+arg(filter.RFQID))
	}
	if filter.Kind != "" {
		where = append(where, "kind = "+arg(string(filter.Kind)))
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= "+arg(filter.Since.UTC()))
	}
	if !filter.Until.IsZero() {
		where = append(where, "occurred_at <= "+arg(filter.Until.UTC()))
	}

	query := `SELECT id, rfq_id, kind, occurred_at, payload FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var kind string
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.RFQID, &kind, &ev.Timestamp, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Kind = model.EventKind(kind)
		ev.Timestamp = ev.Timestamp.UTC()
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

// pgUpdateRFQ writes rfq at rfq.Version+1 when the stored version is still
// rfq.Version and returns the new version.
func pgUpdateRFQ(ctx context.Context, q db.Querier, rfq *model.RFQ) (int64, error) {
	rec := *rfq
	rec.Version = rfq.Version + 1
	recordJSON, err := json.Marshal(&rec)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal rfq")
	}
	tag, err := q.Exec(ctx,
		`UPDATE rfqs SET record = $1, updated_at = $2, version = $3 WHERE id = $4 AND version = $5`,
		recordJSON, rfq.UpdatedAt.UTC(), rec.Version, rfq.ID, rfq.Version,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: update rfq %s", rfq.ID)
	}
	if tag.RowsAffected() > 0 {
		return rec.Version, nil
	}

	var exists bool
	err = q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rfqs WHERE id = $1)`, rfq.ID).Scan(&exists)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: check rfq %s", rfq.ID)
	}
	if !exists {
		return 0, eris.Wrapf(model.ErrNotFound, "postgres: rfq %s", rfq.ID)
	}
	return 0, eris.Wrapf(model.ErrConflict, "postgres: rfq %s version %d", rfq.ID, rfq.Version)
}
