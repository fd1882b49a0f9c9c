// Package matching decides which internal account an incoming payer string
// belongs to. The decision function is pure: persistence of results and the
// human confirmation loop live with the callers.
package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/cobrafacil/reconciler/internal/domain"
	"github.com/cobrafacil/reconciler/internal/normalize"
	"github.com/cobrafacil/reconciler/internal/similarity"
)

// Policy holds the calibratable decision thresholds. The defaults are
// calibrated against the exact-token scorer in internal/similarity; change
// them only against labeled data.
type Policy struct {
	AutoThreshold   int // auto requires top score >= this
	ReviewThreshold int // below this the best candidate is no match
	AutoGap         int // auto requires 1st-2nd gap >= this (when a 2nd exists)
	ConflictGap     int // conflict requires 1st-2nd gap < this
	TopN            int // candidates retained on the result
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		AutoThreshold:   90,
		ReviewThreshold: 75,
		AutoGap:         10,
		ConflictGap:     5,
		TopN:            5,
	}
}

// Engine scores payers against account records and classifies the outcome.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	if policy.TopN <= 0 {
		policy.TopN = 5
	}
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

// Match normalizes the payer, consults the alias snapshot, scores all
// accounts and classifies the result. An exact alias hit bypasses scoring
// entirely: every manual confirmation removes future ambiguity for that
// payer string.
func (e *Engine) Match(payerRaw string, accounts []domain.AccountRecord, aliases map[string]domain.PayerAlias) domain.MatchResult {
	payer := normalize.Normalize(payerRaw)
	if payer.Empty() {
		return domain.MatchResult{
			Status:      domain.MatchNoMatch,
			Reason:      "empty payer",
			Explanation: "payer text normalized to nothing, cannot match",
		}
	}

	if alias, ok := aliases[payer.Normalized]; ok {
		return domain.MatchResult{
			AccountID: alias.TargetID,
			Status:    domain.MatchAuto,
			Score:     100,
			Reason:    "alias hit",
			Explanation: fmt.Sprintf("alias %q -> %s (%s, confirmed %s)",
				payer.Normalized, alias.TargetID, alias.TargetKind, alias.CreatedAt.Format("2006-01-02")),
		}
	}

	candidates := e.rank(payer, accounts)
	return e.classify(candidates)
}

// rank scores every account and returns the top-N candidates. Ordering is
// deterministic: score descending, then edit distance of the normalized
// names ascending, then account id.
func (e *Engine) rank(payer normalize.Result, accounts []domain.AccountRecord) []domain.MatchCandidate {
	scored := make([]domain.MatchCandidate, 0, len(accounts))
	dist := make(map[string]int, len(accounts))

	for _, acc := range accounts {
		s := similarity.Score(payer.Tokens, acc.Tokens)
		if s <= 0 {
			continue
		}
		scored = append(scored, domain.MatchCandidate{
			AccountID:   acc.ID,
			DisplayName: acc.DisplayName,
			Score:       s,
		})
		dist[acc.ID] = levenshtein.ComputeDistance(payer.Normalized, acc.Normalized)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if dist[scored[i].AccountID] != dist[scored[j].AccountID] {
			return dist[scored[i].AccountID] < dist[scored[j].AccountID]
		}
		return scored[i].AccountID < scored[j].AccountID
	})

	if len(scored) > e.policy.TopN {
		scored = scored[:e.policy.TopN]
	}
	return scored
}

// classify applies the decision thresholds to ranked candidates. The ladder
// is total: every input lands in exactly one of the four statuses.
func (e *Engine) classify(candidates []domain.MatchCandidate) domain.MatchResult {
	if len(candidates) == 0 || candidates[0].Score < e.policy.ReviewThreshold {
		return domain.MatchResult{
			Status:      domain.MatchNoMatch,
			Candidates:  candidates,
			Reason:      "below review threshold",
			Explanation: explain(candidates, fmt.Sprintf("best score below %d", e.policy.ReviewThreshold)),
		}
	}

	top := candidates[0]

	if len(candidates) >= 2 {
		second := candidates[1]
		gap := top.Score - second.Score
		if second.Score >= e.policy.ReviewThreshold && gap < e.policy.ConflictGap {
			return domain.MatchResult{
				Status:     domain.MatchConflict,
				Score:      top.Score,
				Candidates: candidates,
				Reason:     "ambiguous candidates",
				Explanation: explain(candidates, fmt.Sprintf(
					"top two within gap %d (< %d), both above %d", gap, e.policy.ConflictGap, e.policy.ReviewThreshold)),
			}
		}
		if top.Score >= e.policy.AutoThreshold && gap >= e.policy.AutoGap {
			return domain.MatchResult{
				AccountID:  top.AccountID,
				Status:     domain.MatchAuto,
				Score:      top.Score,
				Candidates: candidates,
				Reason:     "clear winner",
				Explanation: explain(candidates, fmt.Sprintf(
					"top score %d >= %d with gap %d >= %d", top.Score, e.policy.AutoThreshold, gap, e.policy.AutoGap)),
			}
		}
	} else if top.Score >= e.policy.AutoThreshold {
		return domain.MatchResult{
			AccountID:  top.AccountID,
			Status:     domain.MatchAuto,
			Score:      top.Score,
			Candidates: candidates,
			Reason:     "single candidate",
			Explanation: explain(candidates, fmt.Sprintf(
				"only candidate scores %d >= %d", top.Score, e.policy.AutoThreshold)),
		}
	}

	return domain.MatchResult{
		Status:     domain.MatchReview,
		Score:      top.Score,
		Candidates: candidates,
		Reason:     "needs confirmation",
		Explanation: explain(candidates, fmt.Sprintf(
			"top score %d above %d but not a clear winner", top.Score, e.policy.ReviewThreshold)),
	}
}

func explain(candidates []domain.MatchCandidate, rule string) string {
	if len(candidates) == 0 {
		return "no candidates scored; " + rule
	}
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("%s=%d", c.AccountID, c.Score))
	}
	return "scores [" + strings.Join(parts, " ") + "]; " + rule
}
