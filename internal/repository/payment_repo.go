package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cobrafacil/reconciler/internal/domain"
)

const paymentColumns = `id, payer_raw, payer_normalized, amount, currency, period,
	reference, matched_account_id, match_score, match_status, match_candidates,
	match_explanation, fingerprint, idempotency_key, duplicate_status,
	duplicate_case_id, batch_id, source, created_at`

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// Insert stores a payment if its id is not already present. Deterministic
// ids make re-imports idempotent: the second insert of the same row is a
// no-op. Returns whether a row was actually written.
func (r *PaymentRepo) Insert(p *domain.Payment) (bool, error) {
	res, err := r.db.Exec(
		`INSERT OR IGNORE INTO payments (`+paymentColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		paymentArgs(p)...,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// BulkInsert writes one chunk of payments inside a single SQL transaction.
// Rows whose id already exists are skipped, so retrying a crashed batch
// never duplicates already-committed chunks.
func (r *PaymentRepo) BulkInsert(payments []domain.Payment) (int, error) {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO payments (` + paymentColumns + `)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range payments {
		res, err := stmt.Exec(paymentArgs(&payments[i])...)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *PaymentRepo) GetByID(id string) (*domain.Payment, error) {
	row := r.db.QueryRow("SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// GetByIdempotencyKey returns the payment recorded for a provider delivery
// key, or nil. This is the technical-duplicate lookup.
func (r *PaymentRepo) GetByIdempotencyKey(key string) (*domain.Payment, error) {
	if key == "" {
		return nil, nil
	}
	row := r.db.QueryRow("SELECT "+paymentColumns+" FROM payments WHERE idempotency_key = ?", key)
	p, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get by idempotency key: %w", err)
	}
	return p, nil
}

// GetOpenByFingerprint returns payments sharing a fingerprint whose
// duplicate handling is still unresolved (none or suspected).
func (r *PaymentRepo) GetOpenByFingerprint(fp string) ([]domain.Payment, error) {
	if fp == "" {
		return nil, nil
	}
	rows, err := r.db.Query(
		"SELECT "+paymentColumns+` FROM payments
		 WHERE fingerprint = ? AND duplicate_status IN ('none','suspected')
		 ORDER BY created_at`,
		fp,
	)
	if err != nil {
		return nil, fmt.Errorf("query fingerprint: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (r *PaymentRepo) GetByCaseID(caseID string) ([]domain.Payment, error) {
	rows, err := r.db.Query(
		"SELECT "+paymentColumns+" FROM payments WHERE duplicate_case_id = ? ORDER BY created_at",
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query case payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

type PaymentFilter struct {
	BatchID         string
	MatchStatus     string
	DuplicateStatus string
	Page            int
	Limit           int
}

func (r *PaymentRepo) List(f PaymentFilter) ([]domain.Payment, int, error) {
	where, args := buildPaymentWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM payments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	querySQL := "SELECT " + paymentColumns + " FROM payments" + where +
		" ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// UpdateMatch records a match decision change (human confirmation or
// rejection) on a payment.
func (r *PaymentRepo) UpdateMatch(id, accountID string, score int, status domain.MatchStatus) error {
	_, err := r.db.Exec(
		"UPDATE payments SET matched_account_id = ?, match_score = ?, match_status = ? WHERE id = ?",
		accountID, score, string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return nil
}

// UpdateDuplicate transitions a payment's duplicate status and case link.
func (r *PaymentRepo) UpdateDuplicate(id string, status domain.DuplicateStatus, caseID string) error {
	_, err := r.db.Exec(
		"UPDATE payments SET duplicate_status = ?, duplicate_case_id = ? WHERE id = ?",
		string(status), caseID, id,
	)
	if err != nil {
		return fmt.Errorf("update duplicate: %w", err)
	}
	return nil
}

// MatchStatusCounts holds per-status payment totals for the dashboard.
type MatchStatusCounts struct {
	Total     int `json:"total"`
	Auto      int `json:"auto"`
	Review    int `json:"review"`
	NoMatch   int `json:"no_match"`
	Conflict  int `json:"conflict"`
	Confirmed int `json:"confirmed"`
	Rejected  int `json:"rejected"`
	Suspected int `json:"suspected_duplicates"`
}

func (r *PaymentRepo) GetMatchStatusCounts() (*MatchStatusCounts, error) {
	c := &MatchStatusCounts{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN match_status='auto' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN match_status='review' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN match_status='no_match' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN match_status='conflict' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN match_status='confirmed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN match_status='rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN duplicate_status='suspected' THEN 1 ELSE 0 END), 0)
		FROM payments
	`).Scan(&c.Total, &c.Auto, &c.Review, &c.NoMatch, &c.Conflict,
		&c.Confirmed, &c.Rejected, &c.Suspected)
	return c, err
}

// --- helpers ---

func buildPaymentWhere(f PaymentFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.BatchID != "" {
		clauses = append(clauses, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.MatchStatus != "" {
		clauses = append(clauses, "match_status = ?")
		args = append(args, f.MatchStatus)
	}
	if f.DuplicateStatus != "" {
		clauses = append(clauses, "duplicate_status = ?")
		args = append(args, f.DuplicateStatus)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func paymentArgs(p *domain.Payment) []any {
	candidatesJSON, _ := json.Marshal(p.Candidates)
	if p.Candidates == nil {
		candidatesJSON = []byte("[]")
	}
	return []any{
		p.ID, p.PayerRaw, p.PayerNormalized, p.Amount.String(), p.Currency,
		p.Period, p.Reference, p.MatchedAccountID, p.MatchScore,
		string(p.MatchStatus), string(candidatesJSON), p.Explanation,
		p.Fingerprint, p.IdempotencyKey, string(p.DuplicateStatus),
		p.DuplicateCaseID, p.BatchID, p.Source,
		p.CreatedAt.Format(time.RFC3339),
	}
}

func scanPayment(scan func(dest ...any) error) (*domain.Payment, error) {
	var p domain.Payment
	var amount, matchStatus, candidatesJSON, dupStatus, createdAt string

	err := scan(&p.ID, &p.PayerRaw, &p.PayerNormalized, &amount, &p.Currency,
		&p.Period, &p.Reference, &p.MatchedAccountID, &p.MatchScore,
		&matchStatus, &candidatesJSON, &p.Explanation, &p.Fingerprint,
		&p.IdempotencyKey, &dupStatus, &p.DuplicateCaseID, &p.BatchID,
		&p.Source, &createdAt)
	if err != nil {
		return nil, err
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if candidatesJSON != "" && candidatesJSON != "[]" {
		if err := json.Unmarshal([]byte(candidatesJSON), &p.Candidates); err != nil {
			return nil, fmt.Errorf("unmarshal candidates: %w", err)
		}
	}
	p.MatchStatus = domain.MatchStatus(matchStatus)
	p.DuplicateStatus = domain.DuplicateStatus(dupStatus)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]domain.Payment, error) {
	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
