package repository

import (
	"database/sql"
	"fmt"

	"github.com/cobrafacil/reconciler/internal/domain"
	"github.com/cobrafacil/reconciler/internal/normalize"
)

type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Upsert(acc *domain.Account) error {
	_, err := r.db.Exec(
		`INSERT INTO accounts (id, display_name) VALUES (?,?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name`,
		acc.ID, acc.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (r *AccountRepo) BulkUpsert(accounts []domain.Account) (int, error) {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT INTO accounts (id, display_name) VALUES (?,?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range accounts {
		if _, err := stmt.Exec(accounts[i].ID, accounts[i].DisplayName); err != nil {
			return i, fmt.Errorf("upsert account %d: %w", i, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(accounts), nil
}

func (r *AccountRepo) GetByID(id string) (*domain.Account, error) {
	var acc domain.Account
	err := r.db.QueryRow("SELECT id, display_name FROM accounts WHERE id = ?", id).
		Scan(&acc.ID, &acc.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

func (r *AccountRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&count)
	return count, err
}

// LoadRecords reads every account and derives its matching representation.
// Called once per batch or lookup; records are immutable for the run.
func (r *AccountRepo) LoadRecords() ([]domain.AccountRecord, error) {
	rows, err := r.db.Query("SELECT id, display_name FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var records []domain.AccountRecord
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.ID, &acc.DisplayName); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		n := normalize.Normalize(acc.DisplayName)
		records = append(records, domain.AccountRecord{
			Account:    acc,
			Normalized: n.Normalized,
			Tokens:     n.Tokens,
		})
	}
	return records, rows.Err()
}
