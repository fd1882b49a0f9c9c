package domain

// Account is an internal entity (person or organization) that payments are
// attributed to. Sourced from the accounts collection at batch start and
// immutable within one reconciliation run.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// AccountRecord is an Account prepared for matching: normalized name and
// token set derived once per snapshot load.
type AccountRecord struct {
	Account
	Normalized string   `json:"normalized"`
	Tokens     []string `json:"-"`
}
