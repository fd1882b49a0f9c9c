package dedup

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cobrafacil/reconciler/internal/domain"
	"github.com/cobrafacil/reconciler/internal/repository"
)

func newTestDetector(t *testing.T) (*Detector, *repository.PaymentRepo, *repository.CaseRepo) {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	payments := repository.NewPaymentRepo(db)
	cases := repository.NewCaseRepo(db)
	return NewDetector(payments, cases), payments, cases
}

func testPayment(id, payer, amount, period string) domain.Payment {
	amt, _ := decimal.NewFromString(amount)
	return domain.Payment{
		ID:              id,
		PayerRaw:        payer,
		PayerNormalized: payer,
		Amount:          amt,
		Currency:        "ARS",
		Period:          period,
		MatchStatus:     domain.MatchReview,
		DuplicateStatus: domain.DuplicateNone,
		Source:          "import",
		CreatedAt:       time.Now().UTC(),
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()

	a := testPayment("P1", "JUAN PEREZ", "1500.50", "2026-08")
	b := testPayment("P2", "JUAN PEREZ", "1500.5", "2026-08")
	fpA, err := Fingerprint(&a)
	require.NoError(t, err)
	fpB, err := Fingerprint(&b)
	require.NoError(t, err)
	// Amounts are compared at two decimal places, not textually.
	require.Equal(t, fpA, fpB)

	c := testPayment("P3", "JUAN PEREZ", "1500.50", "2026-09")
	fpC, err := Fingerprint(&c)
	require.NoError(t, err)
	require.NotEqual(t, fpA, fpC)

	// A matched account takes over from the payer key.
	d := testPayment("P4", "JUAN PEREZ", "1500.50", "2026-08")
	d.MatchedAccountID = "ACC-1"
	fpD, err := Fingerprint(&d)
	require.NoError(t, err)
	require.NotEqual(t, fpA, fpD)
}

func TestFingerprintNotComputable(t *testing.T) {
	t.Parallel()

	p := testPayment("P1", "JUAN PEREZ", "100", "")
	_, err := Fingerprint(&p)
	require.ErrorIs(t, err, ErrNotComputable)

	p = testPayment("P2", "", "100", "2026-08")
	_, err = Fingerprint(&p)
	require.ErrorIs(t, err, ErrNotComputable)

	p = testPayment("P3", "JUAN PEREZ", "0", "2026-08")
	_, err = Fingerprint(&p)
	require.ErrorIs(t, err, ErrNotComputable)
}

func TestClassifyTechnicalDuplicate(t *testing.T) {
	t.Parallel()
	d, payments, _ := newTestDetector(t)

	first := testPayment("P1", "JUAN PEREZ", "100", "2026-08")
	first.IdempotencyKey = IdempotencyKey("mercadopago", "MP-123")
	_, err := payments.Insert(&first)
	require.NoError(t, err)

	replay := testPayment("P2", "JUAN PEREZ", "100", "2026-08")
	replay.IdempotencyKey = IdempotencyKey("mercadopago", "MP-123")

	cls, err := d.Classify(&replay)
	require.NoError(t, err)
	require.True(t, cls.Technical)
	require.Equal(t, "P1", cls.ExistingPaymentID)
}

func TestClassifySuspectedDuplicateOpensCase(t *testing.T) {
	t.Parallel()
	d, payments, cases := newTestDetector(t)

	first := testPayment("P1", "JUAN PEREZ", "1500", "2026-08")
	fp, err := Fingerprint(&first)
	require.NoError(t, err)
	first.Fingerprint = fp
	_, err = payments.Insert(&first)
	require.NoError(t, err)

	// Same payer, amount and period but a different provider tx: suspected.
	second := testPayment("P2", "JUAN PEREZ", "1500", "2026-08")
	second.IdempotencyKey = IdempotencyKey("mercadopago", "MP-999")
	second.Fingerprint, err = Fingerprint(&second)
	require.NoError(t, err)
	_, err = payments.Insert(&second)
	require.NoError(t, err)

	cls, err := d.Classify(&second)
	require.NoError(t, err)
	require.Equal(t, domain.DuplicateSuspected, cls.Status)
	require.False(t, cls.Technical)
	require.Equal(t, []string{"P1"}, cls.CollidingIDs)
	require.Empty(t, cls.CaseID) // no case open yet

	require.NoError(t, d.Apply(&second, cls))

	for _, id := range []string{"P1", "P2"} {
		p, err := payments.GetByID(id)
		require.NoError(t, err)
		require.Equal(t, domain.DuplicateSuspected, p.DuplicateStatus)
		require.NotEmpty(t, p.DuplicateCaseID)
	}

	p1, err := payments.GetByID("P1")
	require.NoError(t, err)
	c, err := cases.GetByID(p1.DuplicateCaseID)
	require.NoError(t, err)
	require.Equal(t, domain.CaseOpen, c.Status)

	// A third collision accumulates onto the same open case.
	third := testPayment("P3", "JUAN PEREZ", "1500", "2026-08")
	third.Fingerprint, err = Fingerprint(&third)
	require.NoError(t, err)
	_, err = payments.Insert(&third)
	require.NoError(t, err)

	cls3, err := d.Classify(&third)
	require.NoError(t, err)
	require.Equal(t, domain.DuplicateSuspected, cls3.Status)
	require.Equal(t, c.ID, cls3.CaseID)
	require.NoError(t, d.Apply(&third, cls3))

	members, err := payments.GetByCaseID(c.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
}

type failingCaseStore struct {
	CaseStore
}

func (failingCaseStore) GetOpenByFingerprint(string) (*domain.DuplicateCase, error) {
	return nil, errors.New("disk I/O error")
}

func TestClassifyCaseLookupErrorPropagates(t *testing.T) {
	t.Parallel()
	_, payments, cases := newTestDetector(t)

	first := testPayment("P1", "JUAN PEREZ", "1500", "2026-08")
	var err error
	first.Fingerprint, err = Fingerprint(&first)
	require.NoError(t, err)
	_, err = payments.Insert(&first)
	require.NoError(t, err)

	// A transient case-store failure must surface, not fork a second case
	// for the same fingerprint.
	broken := NewDetector(payments, failingCaseStore{CaseStore: cases})
	second := testPayment("P2", "JUAN PEREZ", "1500", "2026-08")
	_, err = broken.Classify(&second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "case lookup")
}

func TestClassifyMissingPeriodNeverBlocks(t *testing.T) {
	t.Parallel()
	d, _, _ := newTestDetector(t)

	p := testPayment("P1", "JUAN PEREZ", "100", "")
	cls, err := d.Classify(&p)
	require.NoError(t, err)
	require.Equal(t, domain.DuplicateNone, cls.Status)
}

func TestResolveCase(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) (*Detector, *repository.PaymentRepo, *repository.CaseRepo, string) {
		d, payments, cases := newTestDetector(t)
		for _, id := range []string{"P1", "P2"} {
			p := testPayment(id, "JUAN PEREZ", "1500", "2026-08")
			var err error
			p.Fingerprint, err = Fingerprint(&p)
			require.NoError(t, err)
			_, err = payments.Insert(&p)
			require.NoError(t, err)
		}
		p2, err := payments.GetByID("P2")
		require.NoError(t, err)
		cls, err := d.Classify(p2)
		require.NoError(t, err)
		require.NoError(t, d.Apply(p2, cls))
		p2, err = payments.GetByID("P2")
		require.NoError(t, err)
		return d, payments, cases, p2.DuplicateCaseID
	}

	t.Run("single keeps one and ignores the rest", func(t *testing.T) {
		t.Parallel()
		d, payments, cases, caseID := seed(t)

		require.NoError(t, d.ResolveCase(caseID, ResolveSingle, "P1", "operator"))

		p1, _ := payments.GetByID("P1")
		p2, _ := payments.GetByID("P2")
		require.Equal(t, domain.DuplicateConfirmed, p1.DuplicateStatus)
		require.Equal(t, domain.DuplicateIgnored, p2.DuplicateStatus)

		c, err := cases.GetByID(caseID)
		require.NoError(t, err)
		require.Equal(t, domain.CaseResolvedSingle, c.Status)
		require.Equal(t, "operator", c.ResolvedBy)
		require.NotNil(t, c.ResolvedAt)
	})

	t.Run("refund marks the rest refunded", func(t *testing.T) {
		t.Parallel()
		d, payments, cases, caseID := seed(t)

		require.NoError(t, d.ResolveCase(caseID, ResolveRefund, "P2", "operator"))

		p1, _ := payments.GetByID("P1")
		p2, _ := payments.GetByID("P2")
		require.Equal(t, domain.DuplicateRefunded, p1.DuplicateStatus)
		require.Equal(t, domain.DuplicateConfirmed, p2.DuplicateStatus)

		c, _ := cases.GetByID(caseID)
		require.Equal(t, domain.CaseRefunded, c.Status)
	})

	t.Run("all confirms every payment", func(t *testing.T) {
		t.Parallel()
		d, payments, _, caseID := seed(t)

		require.NoError(t, d.ResolveCase(caseID, ResolveAll, "", "operator"))

		for _, id := range []string{"P1", "P2"} {
			p, _ := payments.GetByID(id)
			require.Equal(t, domain.DuplicateConfirmed, p.DuplicateStatus)
		}
	})

	t.Run("ignore clears the suspicion", func(t *testing.T) {
		t.Parallel()
		d, payments, cases, caseID := seed(t)

		require.NoError(t, d.ResolveCase(caseID, ResolveIgnore, "", "operator"))

		for _, id := range []string{"P1", "P2"} {
			p, _ := payments.GetByID(id)
			require.Equal(t, domain.DuplicateNone, p.DuplicateStatus)
		}
		c, _ := cases.GetByID(caseID)
		require.Equal(t, domain.CaseIgnored, c.Status)
	})

	t.Run("resolving twice fails", func(t *testing.T) {
		t.Parallel()
		d, _, _, caseID := seed(t)

		require.NoError(t, d.ResolveCase(caseID, ResolveAll, "", "operator"))
		require.Error(t, d.ResolveCase(caseID, ResolveAll, "", "operator"))
	})

	t.Run("keep payment must belong to the case", func(t *testing.T) {
		t.Parallel()
		d, _, _, caseID := seed(t)

		require.Error(t, d.ResolveCase(caseID, ResolveSingle, "P-OTHER", "operator"))
	})
}
