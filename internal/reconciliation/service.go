// Package reconciliation drives bulk imports of payment rows through the
// matching engine and duplicate detector, and closes the learning loop when
// a human confirms or rejects a match.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cobrafacil/reconciler/internal/dedup"
	"github.com/cobrafacil/reconciler/internal/domain"
	"github.com/cobrafacil/reconciler/internal/matching"
	"github.com/cobrafacil/reconciler/internal/normalize"
	"github.com/cobrafacil/reconciler/internal/repository"
)

// ErrEmptyBatch rejects a run with no rows: a structural input error, not a
// per-row failure.
var ErrEmptyBatch = errors.New("batch has no rows")

// paymentNamespace seeds deterministic payment ids from stable row identity,
// so re-running the same import never inserts duplicates.
var paymentNamespace = uuid.MustParse("c2a8e7d4-51b3-4f0e-a9d6-88e41c7b5a02")

// RowResult is the outcome for one input row.
type RowResult struct {
	Index     int                  `json:"index"`
	PaymentID string               `json:"payment_id,omitempty"`
	Match     domain.MatchResult   `json:"match"`
	Duplicate dedup.Classification `json:"duplicate"`
	Err       string               `json:"error,omitempty"`
}

// BatchResult summarises a full reconciliation run.
type BatchResult struct {
	BatchID       string      `json:"batch_id"`
	TotalRows     int         `json:"total_rows"`
	Inserted      int         `json:"inserted"`
	AutoCount     int         `json:"auto_count"`
	ReviewCount   int         `json:"review_count"`
	NoMatchCount  int         `json:"no_match_count"`
	ConflictCount int         `json:"conflict_count"`
	RowErrors     []string    `json:"row_errors"`
	PerRow        []RowResult `json:"per_row,omitempty"`
}

// Service orchestrates batch reconciliation over the repositories.
type Service struct {
	engine   *matching.Engine
	detector *dedup.Detector
	accounts *repository.AccountRepo
	aliases  *repository.AliasRepo
	payments *repository.PaymentRepo
	batches  *repository.BatchRepo

	chunkSize int
	workers   int
}

func NewService(
	engine *matching.Engine,
	detector *dedup.Detector,
	accounts *repository.AccountRepo,
	aliases *repository.AliasRepo,
	payments *repository.PaymentRepo,
	batches *repository.BatchRepo,
	chunkSize, workers int,
) *Service {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		engine:    engine,
		detector:  detector,
		accounts:  accounts,
		aliases:   aliases,
		payments:  payments,
		batches:   batches,
		chunkSize: chunkSize,
		workers:   workers,
	}
}

// RunBatch processes parsed payment rows: load accounts and aliases once,
// match every row (bounded fan-out, match is pure over the read-only
// snapshots), persist payments in chunks, classify duplicates, and record
// the batch summary. Per-row failures are counted and reported, never
// thrown; only structural errors fail the whole run.
func (s *Service) RunBatch(ctx context.Context, label string, rows []domain.PaymentRow) (*BatchResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}

	accounts, err := s.accounts.LoadRecords()
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	aliases, err := s.aliases.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load aliases: %w", err)
	}

	batchID := uuid.NewString()
	result := &BatchResult{
		BatchID:   batchID,
		TotalRows: len(rows),
		PerRow:    make([]RowResult, len(rows)),
	}

	log.Printf("[reconciliation] Batch %s: %d rows, %d accounts, %d aliases",
		batchID, len(rows), len(accounts), len(aliases))

	// Match phase. Rows are independent over the shared read-only snapshots.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range rows {
		if err := gctx.Err(); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			result.PerRow[i] = s.processRow(i, label, rows[i], accounts, aliases)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("match phase: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	// Persist phase: chunked writes, then duplicate classification for the
	// rows that actually inserted.
	var pending []domain.Payment
	rowByPayment := make(map[string]int)
	for i := range result.PerRow {
		rr := &result.PerRow[i]
		if rr.Err != "" {
			result.RowErrors = append(result.RowErrors, fmt.Sprintf("row %d: %s", rr.Index, rr.Err))
			continue
		}
		p := buildPayment(rr, batchID, rows[rr.Index])
		pending = append(pending, p)
		rowByPayment[p.ID] = i

		switch rr.Match.Status {
		case domain.MatchAuto:
			result.AutoCount++
		case domain.MatchReview:
			result.ReviewCount++
		case domain.MatchConflict:
			result.ConflictCount++
		default:
			result.NoMatchCount++
		}
	}

	for start := 0; start < len(pending); start += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled: %w", err)
		}
		end := start + s.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		n, err := s.payments.BulkInsert(chunk)
		if err != nil {
			return nil, fmt.Errorf("persist chunk %d-%d: %w", start, end, err)
		}
		result.Inserted += n

		for i := range chunk {
			p := &chunk[i]
			cls, err := s.detector.Classify(p)
			if err != nil {
				log.Printf("[reconciliation] WARNING: duplicate check for %s: %v", p.ID, err)
				continue
			}
			if err := s.detector.Apply(p, cls); err != nil {
				log.Printf("[reconciliation] WARNING: duplicate apply for %s: %v", p.ID, err)
				continue
			}
			result.PerRow[rowByPayment[p.ID]].Duplicate = cls
		}
	}

	if err := s.batches.Insert(&repository.BatchRecord{
		ID:            batchID,
		Label:         label,
		Status:        "completed",
		TotalRows:     result.TotalRows,
		AutoCount:     result.AutoCount,
		ReviewCount:   result.ReviewCount,
		NoMatchCount:  result.NoMatchCount,
		ConflictCount: result.ConflictCount,
		RowErrors:     result.RowErrors,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}

	log.Printf("[reconciliation] Batch %s done: auto=%d review=%d no_match=%d conflict=%d errors=%d inserted=%d",
		batchID, result.AutoCount, result.ReviewCount, result.NoMatchCount,
		result.ConflictCount, len(result.RowErrors), result.Inserted)

	return result, nil
}

func (s *Service) processRow(idx int, label string, row domain.PaymentRow, accounts []domain.AccountRecord, aliases map[string]domain.PayerAlias) RowResult {
	rr := RowResult{Index: idx}

	if normalize.Key(row.PayerRaw) == "" {
		rr.Err = "empty payer"
		return rr
	}
	if row.Amount.IsZero() || row.Amount.IsNegative() {
		rr.Err = fmt.Sprintf("invalid amount %s", row.Amount)
		return rr
	}

	rr.Match = s.engine.Match(row.PayerRaw, accounts, aliases)
	rr.PaymentID = paymentID(label, idx, row)
	return rr
}

// paymentID derives a stable id from the row's identity within its source,
// so retries and re-imports map to the same record.
func paymentID(label string, idx int, row domain.PaymentRow) string {
	identity := fmt.Sprintf("%s|%d|%s|%s|%s", label, idx, row.PayerRaw, row.Amount, row.Currency)
	return uuid.NewSHA1(paymentNamespace, []byte(identity)).String()
}

func buildPayment(rr *RowResult, batchID string, row domain.PaymentRow) domain.Payment {
	period := row.Period
	if period == "" {
		period = dedup.PeriodFromDate(row.Date)
	}

	p := domain.Payment{
		ID:               rr.PaymentID,
		PayerRaw:         row.PayerRaw,
		PayerNormalized:  normalize.Key(row.PayerRaw),
		Amount:           row.Amount,
		Currency:         row.Currency,
		Period:           period,
		Reference:        row.Reference,
		MatchedAccountID: rr.Match.AccountID,
		MatchScore:       rr.Match.Score,
		MatchStatus:      rr.Match.Status,
		Candidates:       rr.Match.Candidates,
		Explanation:      rr.Match.Explanation,
		DuplicateStatus:  domain.DuplicateNone,
		BatchID:          batchID,
		Source:           "import",
		CreatedAt:        time.Now().UTC(),
	}
	if fp, err := dedup.Fingerprint(&p); err == nil {
		p.Fingerprint = fp
	} else {
		log.Printf("[reconciliation] WARNING: row %d: %v", rr.Index, err)
	}
	return p
}
