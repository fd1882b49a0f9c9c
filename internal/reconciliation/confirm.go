package reconciliation

import (
	"fmt"
	"log"
	"time"

	"github.com/cobrafacil/reconciler/internal/domain"
)

// ConfirmMatch records a human confirmation of a payment's account. This is
// the learning step: the payment's normalized payer string becomes (or
// overwrites) an alias for the chosen account, so every future transaction
// with the same payer auto-matches without scoring. Returns whether an alias
// was actually written.
func (s *Service) ConfirmMatch(paymentID, accountID, actor string) (bool, error) {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return false, fmt.Errorf("load payment: %w", err)
	}
	if payment == nil {
		return false, fmt.Errorf("payment %s not found", paymentID)
	}

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return false, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return false, fmt.Errorf("account %s not found", accountID)
	}

	aliasUpserted := false
	if payment.PayerNormalized != "" {
		aliasUpserted, err = s.aliases.Upsert(&domain.PayerAlias{
			NormalizedKey: payment.PayerNormalized,
			TargetKind:    domain.TargetAccount,
			TargetID:      accountID,
			Provenance:    domain.ProvenanceManual,
			CreatedBy:     actor,
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			return false, fmt.Errorf("upsert alias: %w", err)
		}
	}

	if err := s.payments.UpdateMatch(paymentID, accountID, payment.MatchScore, domain.MatchConfirmed); err != nil {
		return aliasUpserted, fmt.Errorf("update payment: %w", err)
	}

	log.Printf("[reconciliation] Confirmed %s -> %s by %s (alias_upserted=%t)",
		paymentID, accountID, actor, aliasUpserted)
	return aliasUpserted, nil
}

// RejectMatch records that the suggested match was wrong. The payment keeps
// its candidates for later review but is no longer attributed to an account.
func (s *Service) RejectMatch(paymentID string) error {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if payment == nil {
		return fmt.Errorf("payment %s not found", paymentID)
	}

	if err := s.payments.UpdateMatch(paymentID, "", 0, domain.MatchRejected); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	log.Printf("[reconciliation] Rejected match for %s", paymentID)
	return nil
}

// Suggest runs the pure matching pipeline for an ad-hoc payer string, for
// the interactive "suggest candidates while typing" flow. Nothing is
// persisted.
func (s *Service) Suggest(payerRaw string) (domain.MatchResult, error) {
	accounts, err := s.accounts.LoadRecords()
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("load accounts: %w", err)
	}
	aliases, err := s.aliases.LoadAll()
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("load aliases: %w", err)
	}
	return s.engine.Match(payerRaw, accounts, aliases), nil
}
