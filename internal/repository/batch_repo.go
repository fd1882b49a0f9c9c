package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// BatchRecord is the persisted summary of one reconciliation run. All
// payments created by the run carry its id for later filtering/auditing.
type BatchRecord struct {
	ID            string    `json:"id"`
	Label         string    `json:"label,omitempty"`
	Status        string    `json:"status"` // completed | rejected
	TotalRows     int       `json:"total_rows"`
	AutoCount     int       `json:"auto_count"`
	ReviewCount   int       `json:"review_count"`
	NoMatchCount  int       `json:"no_match_count"`
	ConflictCount int       `json:"conflict_count"`
	RowErrors     []string  `json:"row_errors"`
	CreatedAt     time.Time `json:"created_at"`
}

type BatchRepo struct {
	db *sql.DB
}

func NewBatchRepo(db *sql.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

func (r *BatchRepo) Insert(b *BatchRecord) error {
	errsJSON, err := json.Marshal(b.RowErrors)
	if err != nil {
		return fmt.Errorf("marshal row errors: %w", err)
	}
	if b.RowErrors == nil {
		errsJSON = []byte("[]")
	}

	_, err = r.db.Exec(
		`INSERT OR IGNORE INTO batches
		 (id, label, status, total_rows, auto_count, review_count,
		  no_match_count, conflict_count, row_errors, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.Label, b.Status, b.TotalRows, b.AutoCount, b.ReviewCount,
		b.NoMatchCount, b.ConflictCount, string(errsJSON),
		b.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) GetByID(id string) (*BatchRecord, error) {
	row := r.db.QueryRow(
		`SELECT id, label, status, total_rows, auto_count, review_count,
			no_match_count, conflict_count, row_errors, created_at
		 FROM batches WHERE id = ?`, id)

	var b BatchRecord
	var errsJSON, createdAt string
	err := row.Scan(&b.ID, &b.Label, &b.Status, &b.TotalRows, &b.AutoCount,
		&b.ReviewCount, &b.NoMatchCount, &b.ConflictCount, &errsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}

	if err := json.Unmarshal([]byte(errsJSON), &b.RowErrors); err != nil {
		return nil, fmt.Errorf("unmarshal row errors: %w", err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}
