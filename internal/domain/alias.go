package domain

import "time"

type TargetKind string

const (
	TargetAccount TargetKind = "account"
	TargetPayer   TargetKind = "payer"
)

type AliasProvenance string

const (
	ProvenanceImport AliasProvenance = "import"
	ProvenanceManual AliasProvenance = "manual"
)

// PayerAlias is a learned association from a normalized payer string to a
// target account, created by human confirmation. At most one active alias
// exists per (normalized key, target kind); later confirmations overwrite
// earlier ones, and the previous target is retained for audit.
type PayerAlias struct {
	ID            string          `json:"id"`
	NormalizedKey string          `json:"normalized_key"`
	TargetKind    TargetKind      `json:"target_kind"`
	TargetID      string          `json:"target_id"`
	Provenance    AliasProvenance `json:"provenance"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`

	// Audit trail of the last overwrite, if any.
	PrevTargetID string     `json:"prev_target_id,omitempty"`
	UpdatedBy    string     `json:"updated_by,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}
