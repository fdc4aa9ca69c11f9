package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS found_results (
	record_id   TEXT    NOT NULL,
	label       TEXT    NOT NULL,
	checked_at  INTEGER NOT NULL,
	chain       TEXT    NOT NULL,
	address     TEXT    NOT NULL,
	provider    TEXT    NOT NULL,
	outcome     TEXT    NOT NULL,
	balance_raw TEXT    NOT NULL,
	balance     TEXT    NOT NULL,
	PRIMARY KEY (record_id, chain)
);
CREATE INDEX IF NOT EXISTS idx_found_results_address ON found_results(address);
`

// SQLite appends one row per chain result of every recorded ScanRecord.
type SQLite struct {
	path string
	db   *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{path: path, db: db}, nil
}

func (s *SQLite) Name() string { return "sqlite:" + s.path }

func (s *SQLite) Record(ctx context.Context, rec model.ScanRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rec.Results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO found_results(record_id, label, checked_at, chain, address, provider, outcome, balance_raw, balance)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.Candidate.Label, rec.CheckedAt.Unix(), r.Chain.String(), r.Address, r.Provider,
			r.Outcome.String(), r.Balance.String(), model.FormatUnits(r.Balance, r.Decimals))
		if err != nil {
			return fmt.Errorf("insert %s/%s: %w", rec.ID, r.Chain, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored chain results for address.
func (s *SQLite) Count(ctx context.Context, address string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM found_results WHERE address = ?`, address).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", address, err)
	}
	return n, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
