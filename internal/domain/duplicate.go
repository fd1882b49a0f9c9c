package domain

import "time"

type CaseStatus string

const (
	CaseOpen           CaseStatus = "open"
	CaseResolvedSingle CaseStatus = "resolved_single"
	CaseResolvedAll    CaseStatus = "resolved_all"
	CaseRefunded       CaseStatus = "refunded"
	CaseIgnored        CaseStatus = "ignored"
)

// CaseResolution is the human decision applied to an open duplicate case.
type CaseResolution string

const (
	ResolveSingle CaseResolution = "single" // keep one payment, ignore the rest
	ResolveAll    CaseResolution = "all"    // all payments are legitimate
	ResolveRefund CaseResolution = "refund" // keep one, refund the rest
	ResolveIgnore CaseResolution = "ignore" // false positive, no duplicates
)

// DuplicateCase groups two or more payments suspected to represent the same
// real-world transaction. More payment ids accumulate if further fingerprint
// collisions occur before the case is resolved.
type DuplicateCase struct {
	ID          string     `json:"id"`
	Fingerprint string     `json:"fingerprint"`
	PaymentIDs  []string   `json:"payment_ids"`
	Status      CaseStatus `json:"status"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
