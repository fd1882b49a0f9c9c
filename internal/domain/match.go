package domain

// MatchCandidate is one scored account for a payer string.
type MatchCandidate struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// MatchResult is the decision for one transaction. Exactly one of the four
// decision statuses applies; candidates are ordered by descending score.
type MatchResult struct {
	AccountID   string           `json:"account_id,omitempty"`
	Status      MatchStatus      `json:"status"`
	Score       int              `json:"score"`
	Candidates  []MatchCandidate `json:"candidates,omitempty"`
	Explanation string           `json:"explanation"`
	Reason      string           `json:"reason,omitempty"`
}
