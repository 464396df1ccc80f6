package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fiscal_records (
	document_id     TEXT PRIMARY KEY,
	source_filename TEXT NOT NULL DEFAULT '',
	fiscal_uuid     TEXT,
	rfc_emisor      TEXT,
	rfc_receptor    TEXT,
	fecha           TEXT,
	total           NUMERIC(18,2),
	document_kind   TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	record          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fiscal_records_uuid ON fiscal_records(fiscal_uuid);
CREATE INDEX IF NOT EXISTS idx_fiscal_records_emisor_fecha ON fiscal_records(rfc_emisor, fecha);
`

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// PostgresStore is the shared store used by the daemon.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pgx pool and makes sure the table exists.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("repository.postgres.connecting")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("repository.postgres.bad_dsn", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "fiscal-extractor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("repository.postgres.connect_failed", "error", err)
		return nil, err
	}
	if _, err := pool.Exec(dialCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("repository.postgres.connected")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// HealthCheck pings the pool.
func (s *PostgresStore) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.logger.Info("repository.postgres.closing")
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, docID, filename string, rec entity.FiscalRecord) error {
	r, err := toRow(docID, filename, rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO fiscal_records (document_id, source_filename, fiscal_uuid, rfc_emisor, rfc_receptor,
			fecha, total, document_kind, confidence, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10::text::jsonb)
		ON CONFLICT (document_id) DO UPDATE SET
			source_filename = EXCLUDED.source_filename,
			fiscal_uuid = EXCLUDED.fiscal_uuid,
			rfc_emisor = EXCLUDED.rfc_emisor,
			rfc_receptor = EXCLUDED.rfc_receptor,
			fecha = EXCLUDED.fecha,
			total = EXCLUDED.total,
			document_kind = EXCLUDED.document_kind,
			confidence = EXCLUDED.confidence,
			record = EXCLUDED.record`,
		r.docID, r.filename, r.uuid, r.rfcEmisor, r.rfcRecv,
		r.fecha, r.total, r.kind, r.confidence, string(r.body),
	)
	if err != nil {
		s.logger.Error("repository.save.failed", "doc_id", docID, "error", err)
		return fmt.Errorf("save record %s: %w", docID, err)
	}
	return nil
}

func (s *PostgresStore) GetByDocument(ctx context.Context, docID string) (StoredRecord, error) {
	return s.one(ctx, `WHERE document_id = $1`, docID)
}

func (s *PostgresStore) GetByUUID(ctx context.Context, fiscalUUID string) (StoredRecord, error) {
	return s.one(ctx, `WHERE fiscal_uuid = $1 ORDER BY created_at DESC`, uuidKey(fiscalUUID))
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]StoredRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.RFCEmisor != "" {
		where = append(where, "rfc_emisor = "+arg(strings.ToUpper(f.RFCEmisor)))
	}
	if f.FromDate != "" {
		where = append(where, "fecha >= "+arg(f.FromDate))
	}
	if f.ToDate != "" {
		where = append(where, "substr(fecha, 1, 10) <= "+arg(f.ToDate))
	}
	q := `SELECT document_id, source_filename, created_at, record::text FROM fiscal_records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY fecha, document_id LIMIT " + arg(limitOf(f))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) one(ctx context.Context, where string, args ...any) (StoredRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT document_id, source_filename, created_at, record::text FROM fiscal_records `+where+` LIMIT 1`, args...)
	rec, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredRecord{}, ErrNotFound
	}
	return rec, err
}

func scanPostgres(sc scanner) (StoredRecord, error) {
	var (
		docID, filename, body string
		created               time.Time
	)
	if err := sc.Scan(&docID, &filename, &created, &body); err != nil {
		return StoredRecord{}, err
	}
	return fromRow(docID, filename, created, []byte(body))
}
