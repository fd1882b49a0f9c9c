package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cobrafacil/reconciler/internal/dedup"
	"github.com/cobrafacil/reconciler/internal/domain"
	"github.com/cobrafacil/reconciler/internal/ingestion"
	"github.com/cobrafacil/reconciler/internal/reconciliation"
	"github.com/cobrafacil/reconciler/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	reconSvc    *reconciliation.Service
	ingestSvc   *ingestion.Service
	detector    *dedup.Detector
	accountRepo *repository.AccountRepo
	paymentRepo *repository.PaymentRepo
	caseRepo    *repository.CaseRepo
	batchRepo   *repository.BatchRepo
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- batches ---

type runBatchRequest struct {
	Label string              `json:"label"`
	Rows  []domain.PaymentRow `json:"rows"`
}

func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req runBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.reconSvc.RunBatch(r.Context(), req.Label, req.Rows)
	if err != nil {
		if errors.Is(err, reconciliation.ErrEmptyBatch) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := h.batchRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batch == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// --- payments ---

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PaymentFilter{
		BatchID:         q.Get("batch_id"),
		MatchStatus:     q.Get("match_status"),
		DuplicateStatus: q.Get("duplicate_status"),
		Page:            parseIntDefault(q.Get("page"), 1),
		Limit:           parseIntDefault(q.Get("limit"), 50),
	}

	payments, total, err := h.paymentRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

type confirmRequest struct {
	AccountID string `json:"account_id"`
	Actor     string `json:"actor"`
}

func (h *Handlers) ConfirmMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	aliasUpserted, err := h.reconSvc.ConfirmMatch(id, req.AccountID, req.Actor)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alias_upserted": aliasUpserted})
}

func (h *Handlers) RejectMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.reconSvc.RejectMatch(id); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- interactive matching ---

func (h *Handlers) SuggestMatch(w http.ResponseWriter, r *http.Request) {
	payer := r.URL.Query().Get("payer")
	if payer == "" {
		writeError(w, http.StatusBadRequest, "payer query parameter is required")
		return
	}

	result, err := h.reconSvc.Suggest(payer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- webhooks ---

func (h *Handlers) IngestWebhook(w http.ResponseWriter, r *http.Request) {
	var payload ingestion.WebhookPayment
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	result, err := h.ingestSvc.Ingest(&payload)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- duplicate cases ---

func (h *Handlers) ListDuplicateCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.caseRepo.List(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Attach member payment ids.
	out := make([]domain.DuplicateCase, 0, len(cases))
	for _, c := range cases {
		members, err := h.paymentRepo.GetByCaseID(c.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, m := range members {
			c.PaymentIDs = append(c.PaymentIDs, m.ID)
		}
		out = append(out, c)
	}

	writeJSON(w, http.StatusOK, map[string]any{"cases": out})
}

type resolveRequest struct {
	Resolution    string `json:"resolution"`
	KeepPaymentID string `json:"keep_payment_id,omitempty"`
	Actor         string `json:"actor"`
}

func (h *Handlers) ResolveDuplicateCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.detector.ResolveCase(id, domain.CaseResolution(req.Resolution), req.KeepPaymentID, req.Actor)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- accounts ---

type upsertAccountsRequest struct {
	Accounts []domain.Account `json:"accounts"`
}

func (h *Handlers) UpsertAccounts(w http.ResponseWriter, r *http.Request) {
	var req upsertAccountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Accounts) == 0 {
		writeError(w, http.StatusBadRequest, "accounts is required")
		return
	}

	n, err := h.accountRepo.BulkUpsert(req.Accounts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"upserted": n})
}

// --- dashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.paymentRepo.GetMatchStatusCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	openCases, err := h.caseRepo.List(string(domain.CaseOpen))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	accountCount, err := h.accountRepo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payments":   counts,
		"open_cases": len(openCases),
		"accounts":   accountCount,
	})
}
