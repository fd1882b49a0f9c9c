package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cobrafacil/reconciler/internal/domain"
)

type CaseRepo struct {
	db *sql.DB
}

func NewCaseRepo(db *sql.DB) *CaseRepo {
	return &CaseRepo{db: db}
}

func (r *CaseRepo) Insert(c *domain.DuplicateCase) error {
	_, err := r.db.Exec(
		`INSERT INTO duplicate_cases (id, fingerprint, status, created_at)
		 VALUES (?,?,?,?)`,
		c.ID, c.Fingerprint, string(c.Status), c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *CaseRepo) GetByID(id string) (*domain.DuplicateCase, error) {
	row := r.db.QueryRow(
		`SELECT id, fingerprint, status, resolved_by, resolved_at, created_at
		 FROM duplicate_cases WHERE id = ?`, id)
	c, err := scanCase(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

// GetOpenByFingerprint returns the open case for a fingerprint if one
// exists, so further collisions accumulate onto it instead of opening a
// second case.
func (r *CaseRepo) GetOpenByFingerprint(fp string) (*domain.DuplicateCase, error) {
	row := r.db.QueryRow(
		`SELECT id, fingerprint, status, resolved_by, resolved_at, created_at
		 FROM duplicate_cases WHERE fingerprint = ? AND status = 'open'`, fp)
	c, err := scanCase(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open case: %w", err)
	}
	return c, nil
}

func (r *CaseRepo) List(status string) ([]domain.DuplicateCase, error) {
	query := `SELECT id, fingerprint, status, resolved_by, resolved_at, created_at
		 FROM duplicate_cases`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var cases []domain.DuplicateCase
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// Resolve closes a case with the outcome of the human decision.
func (r *CaseRepo) Resolve(id string, status domain.CaseStatus, resolvedBy string, resolvedAt time.Time) error {
	_, err := r.db.Exec(
		"UPDATE duplicate_cases SET status = ?, resolved_by = ?, resolved_at = ? WHERE id = ?",
		string(status), resolvedBy, resolvedAt.Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("resolve case: %w", err)
	}
	return nil
}

func scanCase(scan func(dest ...any) error) (*domain.DuplicateCase, error) {
	var c domain.DuplicateCase
	var status, createdAt string
	var resolvedAt sql.NullString

	err := scan(&c.ID, &c.Fingerprint, &status, &c.ResolvedBy, &resolvedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	c.Status = domain.CaseStatus(status)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		c.ResolvedAt = &t
	}
	return &c, nil
}
