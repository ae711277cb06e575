// Package store persists evaluated score rows to a SQLite database so batches from several runs can be queried together.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codalotl/skilleval/internal/rules"
)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	files INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS scores (
	batch_id TEXT NOT NULL REFERENCES batches(id),
	seq INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	model TEXT,
	condition TEXT,
	task TEXT,
	auto_score REAL,
	scored_rules INTEGER,
	fields TEXT NOT NULL,
	PRIMARY KEY (batch_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_scores_model ON scores(model, condition);
`

// Store is a SQLite-backed score sink.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init db %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Batch describes one saved evaluation.
type Batch struct {
	ID      string
	Domain  string
	Files   int
	Failed  int
	Created time.Time
}

// Save writes the batch and its rows in one transaction. Row order is kept.
func (s *Store) Save(ctx context.Context, b Batch, rows []rules.Fields) error {
	if b.ID == "" {
		return errors.New("batch id is empty")
	}
	if b.Created.IsZero() {
		b.Created = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id, domain, files, failed, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.Domain, b.Files, b.Failed, b.Created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scores
		(batch_id, seq, run_id, model, condition, task, auto_score, scored_rules, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range rows {
		blob, err := json.Marshal(row)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, b.ID, i, row["run_id"], row["model"], row["condition"], row["task"],
			nullFloat(row["auto_score"]), nullInt(row["scored_rules"]), string(blob))
		if err != nil {
			return fmt.Errorf("insert row %s: %w", row["run_id"], err)
		}
	}
	return tx.Commit()
}

// Batches lists saved batches, newest first.
func (s *Store) Batches(ctx context.Context) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, domain, files, failed, created_at FROM batches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		var created string
		if err := rows.Scan(&b.ID, &b.Domain, &b.Files, &b.Failed, &created); err != nil {
			return nil, err
		}
		b.Created, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Rows returns the rows of one batch in saved order.
func (s *Store) Rows(ctx context.Context, batchID string) ([]rules.Fields, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fields FROM scores WHERE batch_id = ? ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Fields
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		f := rules.Fields{}
		if err := json.Unmarshal([]byte(blob), &f); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MeanScores averages auto_score per (model, condition) across every batch of domain.
func (s *Store) MeanScores(ctx context.Context, domain string) (map[[2]string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.model, s.condition, AVG(s.auto_score)
		FROM scores s JOIN batches b ON b.id = s.batch_id
		WHERE b.domain = ? AND s.auto_score IS NOT NULL
		GROUP BY s.model, s.condition`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[[2]string]float64{}
	for rows.Next() {
		var model, cond sql.NullString
		var mean float64
		if err := rows.Scan(&model, &cond, &mean); err != nil {
			return nil, err
		}
		out[[2]string{model.String, cond.String}] = mean
	}
	return out, rows.Err()
}

func nullFloat(s string) sql.NullFloat64 {
	v, err := strconv.ParseFloat(s, 64)
	return sql.NullFloat64{Float64: v, Valid: err == nil}
}

func nullInt(s string) sql.NullInt64 {
	v, err := strconv.ParseInt(s, 10, 64)
	return sql.NullInt64{Int64: v, Valid: err == nil}
}
