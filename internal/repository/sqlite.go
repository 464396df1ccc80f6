package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fiscal_records (
	document_id     TEXT PRIMARY KEY,
	source_filename TEXT NOT NULL DEFAULT '',
	fiscal_uuid     TEXT,
	rfc_emisor      TEXT,
	rfc_receptor    TEXT,
	fecha           TEXT,
	total           TEXT,
	document_kind   TEXT NOT NULL,
	confidence      REAL NOT NULL,
	record          TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fiscal_records_uuid ON fiscal_records(fiscal_uuid);
CREATE INDEX IF NOT EXISTS idx_fiscal_records_emisor_fecha ON fiscal_records(rfc_emisor, fecha);
`

// SQLiteStore is the embedded store used by the CLI.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	logger.Info("repository.sqlite.opened", "path", path)
	return &SQLiteStore{db: db, path: path, logger: logger, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Save(ctx context.Context, docID, filename string, rec entity.FiscalRecord) error {
	r, err := toRow(docID, filename, rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fiscal_records (document_id, source_filename, fiscal_uuid, rfc_emisor, rfc_receptor,
			fecha, total, document_kind, confidence, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			source_filename = excluded.source_filename,
			fiscal_uuid = excluded.fiscal_uuid,
			rfc_emisor = excluded.rfc_emisor,
			rfc_receptor = excluded.rfc_receptor,
			fecha = excluded.fecha,
			total = excluded.total,
			document_kind = excluded.document_kind,
			confidence = excluded.confidence,
			record = excluded.record`,
		r.docID, r.filename, r.uuid, r.rfcEmisor, r.rfcRecv,
		r.fecha, r.total, r.kind, r.confidence, string(r.body), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.Error("repository.save.failed", "doc_id", docID, "error", err)
		return fmt.Errorf("save record %s: %w", docID, err)
	}
	return nil
}

func (s *SQLiteStore) GetByDocument(ctx context.Context, docID string) (StoredRecord, error) {
	return s.one(ctx, `WHERE document_id = ?`, docID)
}

func (s *SQLiteStore) GetByUUID(ctx context.Context, fiscalUUID string) (StoredRecord, error) {
	return s.one(ctx, `WHERE fiscal_uuid = ? ORDER BY created_at DESC`, uuidKey(fiscalUUID))
}

func (s *SQLiteStore) List(ctx context.Context, f ListFilter) ([]StoredRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.RFCEmisor != "" {
		where = append(where, "rfc_emisor = ?")
		args = append(args, strings.ToUpper(f.RFCEmisor))
	}
	if f.FromDate != "" {
		where = append(where, "fecha >= ?")
		args = append(args, f.FromDate)
	}
	if f.ToDate != "" {
		where = append(where, "substr(fecha, 1, 10) <= ?")
		args = append(args, f.ToDate)
	}
	q := `SELECT document_id, source_filename, created_at, record FROM fiscal_records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY fecha, document_id LIMIT ?"
	args = append(args, limitOf(f))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) one(ctx context.Context, where string, args ...any) (StoredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document_id, source_filename, created_at, record FROM fiscal_records `+where+` LIMIT 1`, args...)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredRecord{}, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc scanner) (StoredRecord, error) {
	var docID, filename, created, body string
	if err := sc.Scan(&docID, &filename, &created, &body); err != nil {
		return StoredRecord{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return fromRow(docID, filename, ts, []byte(body))
}
