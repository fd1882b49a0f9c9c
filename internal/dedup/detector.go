// Package dedup detects payments that are technical or accounting
// duplicates of ones already recorded. The two concepts stay separate: a
// technical duplicate is the same upstream event delivered twice and is
// discarded silently; an accounting duplicate is two distinct recorded
// payments that may double-count the same real payment and needs a human.
package dedup

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cobrafacil/reconciler/internal/domain"
)

// ErrNotComputable signals that a payment lacks the fields a fingerprint
// needs. Callers record the payment anyway with duplicate status "none".
var ErrNotComputable = errors.New("fingerprint not computable")

// IdempotencyKey builds the technical-duplicate key for a provider
// delivery. Empty when the payment did not arrive through a provider.
func IdempotencyKey(provider, providerTxID string) string {
	if provider == "" || providerTxID == "" {
		return ""
	}
	return provider + ":" + providerTxID
}

// Fingerprint derives the accounting-duplicate key: matched account (or the
// normalized payer when unmatched) + amount + billing period. Independent of
// the provider transaction id, so the same real payment entered twice
// through different channels still collides.
func Fingerprint(p *domain.Payment) (string, error) {
	identity := p.MatchedAccountID
	if identity == "" {
		identity = p.PayerNormalized
	}
	if identity == "" || p.Period == "" || p.Amount.IsZero() {
		return "", ErrNotComputable
	}
	sum := sha256.Sum256([]byte(identity + "|" + p.Amount.StringFixed(2) + "|" + p.Period))
	return fmt.Sprintf("%x", sum[:16]), nil
}

// PeriodFromDate derives the default billing period (YYYY-MM) when a row
// carries a date but no explicit period.
func PeriodFromDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01")
}

// PaymentStore is the payment-side persistence the detector needs.
type PaymentStore interface {
	GetByIdempotencyKey(key string) (*domain.Payment, error)
	GetOpenByFingerprint(fp string) ([]domain.Payment, error)
	GetByCaseID(caseID string) ([]domain.Payment, error)
	UpdateDuplicate(id string, status domain.DuplicateStatus, caseID string) error
}

// CaseStore is the duplicate-case persistence the detector needs.
type CaseStore interface {
	Insert(c *domain.DuplicateCase) error
	GetByID(id string) (*domain.DuplicateCase, error)
	GetOpenByFingerprint(fp string) (*domain.DuplicateCase, error)
	Resolve(id string, status domain.CaseStatus, resolvedBy string, resolvedAt time.Time) error
}

// Classification is the detector's verdict for one incoming payment.
type Classification struct {
	Status            domain.DuplicateStatus `json:"status"`
	Technical         bool                   `json:"technical"`
	ExistingPaymentID string                 `json:"existing_payment_id,omitempty"`
	CaseID            string                 `json:"case_id,omitempty"`
	CollidingIDs      []string               `json:"colliding_ids,omitempty"`
}

type Detector struct {
	payments PaymentStore
	cases    CaseStore
}

func NewDetector(payments PaymentStore, cases CaseStore) *Detector {
	return &Detector{payments: payments, cases: cases}
}

// Classify inspects an incoming payment before it is persisted. Technical
// duplicates short-circuit: the caller must discard the delivery without
// creating a record. A fingerprint collision with unresolved payments yields
// "suspected". Detection never blocks a legitimate payment: an uncomputable
// fingerprint downgrades to status "none" with a logged warning.
func (d *Detector) Classify(p *domain.Payment) (Classification, error) {
	if p.IdempotencyKey != "" {
		existing, err := d.payments.GetByIdempotencyKey(p.IdempotencyKey)
		if err != nil {
			return Classification{}, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil && existing.ID != p.ID {
			return Classification{
				Status:            domain.DuplicateNone,
				Technical:         true,
				ExistingPaymentID: existing.ID,
			}, nil
		}
	}

	fp, err := Fingerprint(p)
	if err != nil {
		log.Printf("[dedup] WARNING: payment %s: %v, recording with duplicate_status=none", p.ID, err)
		return Classification{Status: domain.DuplicateNone}, nil
	}
	p.Fingerprint = fp

	colliding, err := d.payments.GetOpenByFingerprint(fp)
	if err != nil {
		return Classification{}, fmt.Errorf("fingerprint lookup: %w", err)
	}

	var ids []string
	for _, other := range colliding {
		if other.ID != p.ID {
			ids = append(ids, other.ID)
		}
	}
	if len(ids) == 0 {
		return Classification{Status: domain.DuplicateNone}, nil
	}

	cls := Classification{
		Status:       domain.DuplicateSuspected,
		CollidingIDs: ids,
	}
	open, err := d.cases.GetOpenByFingerprint(fp)
	if err != nil {
		return Classification{}, fmt.Errorf("case lookup: %w", err)
	}
	if open != nil {
		cls.CaseID = open.ID
	}
	return cls, nil
}

// Apply persists a "suspected" classification: opens (or appends to) the
// duplicate case and marks the new payment and every colliding payment as
// suspected. No-op for any other status.
func (d *Detector) Apply(p *domain.Payment, cls Classification) error {
	if cls.Status != domain.DuplicateSuspected {
		return nil
	}

	caseID := cls.CaseID
	if caseID == "" {
		caseID = uuid.NewString()
		if err := d.cases.Insert(&domain.DuplicateCase{
			ID:          caseID,
			Fingerprint: p.Fingerprint,
			Status:      domain.CaseOpen,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("open case: %w", err)
		}
		log.Printf("[dedup] Opened duplicate case %s for fingerprint %s", caseID, p.Fingerprint)
	}

	for _, id := range append(cls.CollidingIDs, p.ID) {
		if err := d.payments.UpdateDuplicate(id, domain.DuplicateSuspected, caseID); err != nil {
			return fmt.Errorf("mark suspected %s: %w", id, err)
		}
	}
	return nil
}

// ResolveCase records a human resolution, fanning the outcome back onto
// every member payment and closing the case. keepPaymentID names the
// accepted payment for the single and refund resolutions.
func (d *Detector) ResolveCase(caseID string, resolution domain.CaseResolution, keepPaymentID, actor string) error {
	c, err := d.cases.GetByID(caseID)
	if err != nil {
		return fmt.Errorf("get case: %w", err)
	}
	if c == nil {
		return fmt.Errorf("duplicate case %s not found", caseID)
	}
	if c.Status != domain.CaseOpen {
		return fmt.Errorf("duplicate case %s already resolved (%s)", caseID, c.Status)
	}

	members, err := d.payments.GetByCaseID(caseID)
	if err != nil {
		return fmt.Errorf("load case payments: %w", err)
	}
	if len(members) == 0 {
		return fmt.Errorf("duplicate case %s has no payments", caseID)
	}

	var caseStatus domain.CaseStatus
	var keepStatus, restStatus domain.DuplicateStatus

	switch resolution {
	case ResolveSingle:
		caseStatus, keepStatus, restStatus = domain.CaseResolvedSingle, domain.DuplicateConfirmed, domain.DuplicateIgnored
	case ResolveAll:
		caseStatus, keepStatus, restStatus = domain.CaseResolvedAll, domain.DuplicateConfirmed, domain.DuplicateConfirmed
	case ResolveRefund:
		caseStatus, keepStatus, restStatus = domain.CaseRefunded, domain.DuplicateConfirmed, domain.DuplicateRefunded
	case ResolveIgnore:
		// False positive: the payments are unrelated after all.
		caseStatus, keepStatus, restStatus = domain.CaseIgnored, domain.DuplicateNone, domain.DuplicateNone
	default:
		return fmt.Errorf("unknown resolution %q", resolution)
	}

	needsKeep := resolution == ResolveSingle || resolution == ResolveRefund
	if needsKeep {
		found := false
		for _, m := range members {
			if m.ID == keepPaymentID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("payment %s is not part of case %s", keepPaymentID, caseID)
		}
	}

	for _, m := range members {
		status := restStatus
		if !needsKeep || m.ID == keepPaymentID {
			status = keepStatus
		}
		if err := d.payments.UpdateDuplicate(m.ID, status, caseID); err != nil {
			return fmt.Errorf("update payment %s: %w", m.ID, err)
		}
	}

	if err := d.cases.Resolve(caseID, caseStatus, actor, time.Now().UTC()); err != nil {
		return fmt.Errorf("close case: %w", err)
	}

	log.Printf("[dedup] Case %s resolved as %s by %s (%d payments)",
		caseID, caseStatus, actor, len(members))
	return nil
}

// Resolution aliases re-exported for callers.
const (
	ResolveSingle = domain.ResolveSingle
	ResolveAll    = domain.ResolveAll
	ResolveRefund = domain.ResolveRefund
	ResolveIgnore = domain.ResolveIgnore
)
