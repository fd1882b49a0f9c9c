package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cobrafacil/reconciler/internal/domain"
)

func newPaymentTestDB(t *testing.T) *PaymentRepo {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPaymentRepo(db)
}

func payment(id, key string) domain.Payment {
	return domain.Payment{
		ID:              id,
		PayerRaw:        "Juan Perez",
		PayerNormalized: "JUAN PEREZ",
		Amount:          decimal.NewFromInt(1500),
		Currency:        "ARS",
		Period:          "2026-08",
		MatchStatus:     domain.MatchReview,
		Candidates: []domain.MatchCandidate{
			{AccountID: "ACC-1", DisplayName: "JUAN PEREZ", Score: 80},
			{AccountID: "ACC-2", DisplayName: "JUAN PEREZ DIAZ", Score: 80},
		},
		Explanation:     "scores [ACC-1=80 ACC-2=80]; top two within gap 0 (< 5), both above 75",
		IdempotencyKey:  key,
		DuplicateStatus: domain.DuplicateNone,
		BatchID:         "B1",
		Source:          "import",
		CreatedAt:       time.Now().UTC(),
	}
}

func TestPaymentInsertIdempotent(t *testing.T) {
	t.Parallel()
	repo := newPaymentTestDB(t)

	p := payment("P1", "")
	inserted, err := repo.Insert(&p)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = repo.Insert(&p)
	require.NoError(t, err)
	require.False(t, inserted)

	got, err := repo.GetByID("P1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Amount.Equal(decimal.NewFromInt(1500)))
	require.Equal(t, domain.MatchReview, got.MatchStatus)
	require.Equal(t, p.Candidates, got.Candidates)
	require.Equal(t, p.Explanation, got.Explanation)
}

func TestPaymentIdempotencyKeyUnique(t *testing.T) {
	t.Parallel()
	repo := newPaymentTestDB(t)

	a := payment("P1", "mp:TX-1")
	inserted, err := repo.Insert(&a)
	require.NoError(t, err)
	require.True(t, inserted)

	// A second record for the same provider delivery is refused by the
	// store's create-if-absent semantics.
	b := payment("P2", "mp:TX-1")
	inserted, err = repo.Insert(&b)
	require.NoError(t, err)
	require.False(t, inserted)

	// But payments without a provider key are unconstrained.
	c := payment("P3", "")
	inserted, err = repo.Insert(&c)
	require.NoError(t, err)
	require.True(t, inserted)
	d := payment("P4", "")
	inserted, err = repo.Insert(&d)
	require.NoError(t, err)
	require.True(t, inserted)

	got, err := repo.GetByIdempotencyKey("mp:TX-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "P1", got.ID)
}

func TestPaymentBulkInsertAndList(t *testing.T) {
	t.Parallel()
	repo := newPaymentTestDB(t)

	batch := make([]domain.Payment, 0, 3)
	for _, id := range []string{"P1", "P2", "P3"} {
		batch = append(batch, payment(id, ""))
	}
	n, err := repo.BulkInsert(batch)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// Retry of the same chunk writes nothing new.
	n, err = repo.BulkInsert(batch)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	payments, total, err := repo.List(PaymentFilter{BatchID: "B1"})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, payments, 3)

	_, total, err = repo.List(PaymentFilter{MatchStatus: "auto"})
	require.NoError(t, err)
	require.Equal(t, 0, total)
}

func TestPaymentUpdateMatchAndDuplicate(t *testing.T) {
	t.Parallel()
	repo := newPaymentTestDB(t)

	p := payment("P1", "")
	_, err := repo.Insert(&p)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateMatch("P1", "ACC-1", 95, domain.MatchConfirmed))
	require.NoError(t, repo.UpdateDuplicate("P1", domain.DuplicateSuspected, "CASE-1"))

	got, err := repo.GetByID("P1")
	require.NoError(t, err)
	require.Equal(t, "ACC-1", got.MatchedAccountID)
	require.Equal(t, 95, got.MatchScore)
	require.Equal(t, domain.MatchConfirmed, got.MatchStatus)
	require.Equal(t, domain.DuplicateSuspected, got.DuplicateStatus)
	require.Equal(t, "CASE-1", got.DuplicateCaseID)

	members, err := repo.GetByCaseID("CASE-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
}
