package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cobrafacil/reconciler/internal/domain"
)

// aliasNamespace seeds deterministic alias ids so repeated confirmations of
// the same association never create duplicate rows.
var aliasNamespace = uuid.MustParse("7f1c6b1e-8a4d-4e46-9c7a-30d2f1a2b9c4")

// AliasID derives the stable id for a (normalized key, target kind, target)
// association.
func AliasID(normalizedKey string, kind domain.TargetKind, targetID string) string {
	return uuid.NewSHA1(aliasNamespace, []byte(normalizedKey+"|"+string(kind)+"|"+targetID)).String()
}

type AliasRepo struct {
	db *sql.DB
}

func NewAliasRepo(db *sql.DB) *AliasRepo {
	return &AliasRepo{db: db}
}

// Upsert writes an alias atomically. A different target for an existing key
// overwrites it (last-confirmed-wins) and records the previous target for
// audit; re-confirming the identical association is a no-op. Returns whether
// a row was inserted or changed.
func (r *AliasRepo) Upsert(a *domain.PayerAlias) (bool, error) {
	if a.ID == "" {
		a.ID = AliasID(a.NormalizedKey, a.TargetKind, a.TargetID)
	}
	res, err := r.db.Exec(
		`INSERT INTO payer_aliases
		 (id, normalized_key, target_kind, target_id, provenance, created_by, created_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING
		 ON CONFLICT(normalized_key, target_kind) DO UPDATE SET
			id = excluded.id,
			prev_target_id = payer_aliases.target_id,
			target_id = excluded.target_id,
			provenance = excluded.provenance,
			updated_by = excluded.created_by,
			updated_at = excluded.created_at
		 WHERE payer_aliases.target_id <> excluded.target_id`,
		a.ID, a.NormalizedKey, string(a.TargetKind), a.TargetID,
		string(a.Provenance), a.CreatedBy, a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("upsert alias: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Lookup returns the alias for a normalized key and target kind, or nil.
func (r *AliasRepo) Lookup(normalizedKey string, kind domain.TargetKind) (*domain.PayerAlias, error) {
	row := r.db.QueryRow(
		`SELECT id, normalized_key, target_kind, target_id, provenance,
			created_by, created_at, prev_target_id, updated_by, updated_at
		 FROM payer_aliases WHERE normalized_key = ? AND target_kind = ?`,
		normalizedKey, string(kind),
	)
	a, err := scanAlias(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup alias: %w", err)
	}
	return a, nil
}

// LoadAll bulk-reads every account-targeted alias into a map keyed by
// normalized payer string. Loaded once per batch so row processing never
// goes back to the store.
func (r *AliasRepo) LoadAll() (map[string]domain.PayerAlias, error) {
	rows, err := r.db.Query(
		`SELECT id, normalized_key, target_kind, target_id, provenance,
			created_by, created_at, prev_target_id, updated_by, updated_at
		 FROM payer_aliases WHERE target_kind = ?`,
		string(domain.TargetAccount),
	)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	defer rows.Close()

	aliases := make(map[string]domain.PayerAlias)
	for rows.Next() {
		a, err := scanAlias(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		aliases[a.NormalizedKey] = *a
	}
	return aliases, rows.Err()
}

func (r *AliasRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM payer_aliases").Scan(&count)
	return count, err
}

func scanAlias(scan func(dest ...any) error) (*domain.PayerAlias, error) {
	var a domain.PayerAlias
	var kind, prov, createdAt string
	var updatedAt sql.NullString

	err := scan(&a.ID, &a.NormalizedKey, &kind, &a.TargetID, &prov,
		&a.CreatedBy, &createdAt, &a.PrevTargetID, &a.UpdatedBy, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.TargetKind = domain.TargetKind(kind)
	a.Provenance = domain.AliasProvenance(prov)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if updatedAt.Valid {
		t, _ := time.Parse(time.RFC3339, updatedAt.String)
		a.UpdatedAt = &t
	}
	return &a, nil
}
