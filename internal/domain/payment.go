package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchStatus string

const (
	MatchAuto      MatchStatus = "auto"
	MatchReview    MatchStatus = "review"
	MatchNoMatch   MatchStatus = "no_match"
	MatchConflict  MatchStatus = "conflict"
	MatchConfirmed MatchStatus = "confirmed"
	MatchRejected  MatchStatus = "rejected"
)

type DuplicateStatus string

const (
	DuplicateNone      DuplicateStatus = "none"
	DuplicateSuspected DuplicateStatus = "suspected"
	DuplicateConfirmed DuplicateStatus = "confirmed"
	DuplicateIgnored   DuplicateStatus = "ignored"
	DuplicateRefunded  DuplicateStatus = "refunded"
)

// Payment is a recorded financial transaction. Payments are never deleted;
// match and duplicate handling only transition their statuses.
type Payment struct {
	ID              string          `json:"id"`
	PayerRaw        string          `json:"payer_raw"`
	PayerNormalized string          `json:"payer_normalized"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Period          string          `json:"period,omitempty"` // billing period, YYYY-MM
	Reference       string          `json:"reference,omitempty"`

	MatchedAccountID string           `json:"matched_account_id,omitempty"`
	MatchScore       int              `json:"match_score"`
	MatchStatus      MatchStatus      `json:"match_status"`
	Candidates       []MatchCandidate `json:"candidates,omitempty"`
	Explanation      string           `json:"explanation,omitempty"`

	Fingerprint     string          `json:"fingerprint,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"` // provider:provider_tx_id
	DuplicateStatus DuplicateStatus `json:"duplicate_status"`
	DuplicateCaseID string          `json:"duplicate_case_id,omitempty"`

	BatchID   string    `json:"batch_id,omitempty"`
	Source    string    `json:"source"` // "import" or "webhook"
	CreatedAt time.Time `json:"created_at"`
}

// PaymentRow is one parsed transaction row handed to the batch orchestrator.
// Column mapping from heterogeneous spreadsheets happens upstream; the core
// only accepts this fixed shape.
type PaymentRow struct {
	PayerRaw  string          `json:"payer_raw"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Date      *time.Time      `json:"date,omitempty"`
	Period    string          `json:"period,omitempty"`
	Reference string          `json:"reference,omitempty"`
}
