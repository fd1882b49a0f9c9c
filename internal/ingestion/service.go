// Package ingestion handles single-payment intake from payment-provider
// webhooks. Providers deliver at-least-once, so the idempotency-key check is
// the only strictly-ordered step; everything after the payment is recorded
// is best-effort.
package ingestion

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrafacil/reconciler/internal/dedup"
	"github.com/cobrafacil/reconciler/internal/domain"
	"github.com/cobrafacil/reconciler/internal/matching"
	"github.com/cobrafacil/reconciler/internal/normalize"
	"github.com/cobrafacil/reconciler/internal/repository"
)

var webhookNamespace = uuid.MustParse("3b9f2c61-0d4a-4c7e-bb15-6f0a9d83e2c7")

// WebhookPayment is the payload a payment provider delivers. Transport and
// signature verification happen upstream; only the payload is in scope.
type WebhookPayment struct {
	Provider     string          `json:"provider"`
	ProviderTxID string          `json:"provider_tx_id"`
	Payer        string          `json:"payer"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Period       string          `json:"period,omitempty"`
	Date         *time.Time      `json:"date,omitempty"`
	Reference    string          `json:"reference,omitempty"`
}

// IngestResult reports what happened to one delivery.
type IngestResult struct {
	PaymentID         string               `json:"payment_id,omitempty"`
	Skipped           bool                 `json:"skipped"`
	ExistingPaymentID string               `json:"existing_payment_id,omitempty"`
	Match             domain.MatchResult   `json:"match,omitempty"`
	Duplicate         dedup.Classification `json:"duplicate"`
}

// Notifier delivers non-critical side effects (e.g. a notification email).
// Failures are logged and never fail the ingestion.
type Notifier interface {
	PaymentRecorded(p *domain.Payment) error
}

// LogNotifier is the default Notifier: it only logs.
type LogNotifier struct{}

func (LogNotifier) PaymentRecorded(p *domain.Payment) error {
	log.Printf("[ingestion] Recorded payment %s (%s %s from %q, match=%s)",
		p.ID, p.Amount, p.Currency, p.PayerRaw, p.MatchStatus)
	return nil
}

// Service ingests provider webhook payments.
type Service struct {
	engine   *matching.Engine
	detector *dedup.Detector
	accounts *repository.AccountRepo
	aliases  *repository.AliasRepo
	payments *repository.PaymentRepo
	notifier Notifier
}

func NewService(
	engine *matching.Engine,
	detector *dedup.Detector,
	accounts *repository.AccountRepo,
	aliases *repository.AliasRepo,
	payments *repository.PaymentRepo,
	notifier Notifier,
) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Service{
		engine:   engine,
		detector: detector,
		accounts: accounts,
		aliases:  aliases,
		payments: payments,
		notifier: notifier,
	}
}

// Ingest records one provider delivery. A repeat delivery of the same
// provider transaction id is a technical duplicate: it is discarded with no
// new record and no case. Otherwise the payment is matched, recorded, and
// classified for accounting duplicates.
func (s *Service) Ingest(w *WebhookPayment) (*IngestResult, error) {
	if w.Provider == "" || w.ProviderTxID == "" {
		return nil, fmt.Errorf("provider and provider_tx_id are required")
	}
	if w.Amount.IsZero() || w.Amount.IsNegative() {
		return nil, fmt.Errorf("invalid amount %s", w.Amount)
	}

	key := dedup.IdempotencyKey(w.Provider, w.ProviderTxID)
	if existing, err := s.payments.GetByIdempotencyKey(key); err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	} else if existing != nil {
		log.Printf("[ingestion] Skipping duplicate delivery %s (payment %s)", key, existing.ID)
		return &IngestResult{Skipped: true, ExistingPaymentID: existing.ID}, nil
	}

	accounts, err := s.accounts.LoadRecords()
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	aliases, err := s.aliases.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load aliases: %w", err)
	}
	match := s.engine.Match(w.Payer, accounts, aliases)

	period := w.Period
	if period == "" {
		period = dedup.PeriodFromDate(w.Date)
	}

	p := domain.Payment{
		ID:               uuid.NewSHA1(webhookNamespace, []byte(key)).String(),
		PayerRaw:         w.Payer,
		PayerNormalized:  normalize.Key(w.Payer),
		Amount:           w.Amount,
		Currency:         w.Currency,
		Period:           period,
		Reference:        w.Reference,
		MatchedAccountID: match.AccountID,
		MatchScore:       match.Score,
		MatchStatus:      match.Status,
		Candidates:       match.Candidates,
		Explanation:      match.Explanation,
		IdempotencyKey:   key,
		DuplicateStatus:  domain.DuplicateNone,
		Source:           "webhook",
		CreatedAt:        time.Now().UTC(),
	}
	if fp, err := dedup.Fingerprint(&p); err == nil {
		p.Fingerprint = fp
	} else {
		log.Printf("[ingestion] WARNING: payment %s: %v", p.ID, err)
	}

	inserted, err := s.payments.Insert(&p)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	if !inserted {
		// Lost a race with a concurrent delivery of the same event; the
		// store's create-if-absent semantics already recorded it.
		log.Printf("[ingestion] Concurrent duplicate delivery %s", key)
		return &IngestResult{Skipped: true, ExistingPaymentID: p.ID}, nil
	}

	result := &IngestResult{PaymentID: p.ID, Match: match}

	// Accounting-duplicate classification never fails the ingestion.
	cls, err := s.detector.Classify(&p)
	if err != nil {
		log.Printf("[ingestion] WARNING: duplicate check for %s: %v", p.ID, err)
	} else {
		if err := s.detector.Apply(&p, cls); err != nil {
			log.Printf("[ingestion] WARNING: duplicate apply for %s: %v", p.ID, err)
		}
		result.Duplicate = cls
	}

	if err := s.notifier.PaymentRecorded(&p); err != nil {
		log.Printf("[ingestion] WARNING: notification for %s failed: %v", p.ID, err)
	}

	return result, nil
}
