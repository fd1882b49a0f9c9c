package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cobrafacil/reconciler/internal/dedup"
	"github.com/cobrafacil/reconciler/internal/ingestion"
	"github.com/cobrafacil/reconciler/internal/reconciliation"
	"github.com/cobrafacil/reconciler/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	reconSvc *reconciliation.Service,
	ingestSvc *ingestion.Service,
	detector *dedup.Detector,
	accountRepo *repository.AccountRepo,
	paymentRepo *repository.PaymentRepo,
	caseRepo *repository.CaseRepo,
	batchRepo *repository.BatchRepo,
) http.Handler {
	h := &Handlers{
		reconSvc:    reconSvc,
		ingestSvc:   ingestSvc,
		detector:    detector,
		accountRepo: accountRepo,
		paymentRepo: paymentRepo,
		caseRepo:    caseRepo,
		batchRepo:   batchRepo,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Batch reconciliation.
		r.Post("/batches", h.RunBatch)
		r.Get("/batches/{id}", h.GetBatch)

		// Payments.
		r.Get("/payments", h.ListPayments)
		r.Post("/payments/{id}/confirm", h.ConfirmMatch)
		r.Post("/payments/{id}/reject", h.RejectMatch)

		// Interactive matching.
		r.Get("/match/suggest", h.SuggestMatch)

		// Provider webhooks.
		r.Post("/webhooks/payments", h.IngestWebhook)

		// Duplicate cases.
		r.Get("/duplicates", h.ListDuplicateCases)
		r.Post("/duplicates/{id}/resolve", h.ResolveDuplicateCase)

		// Accounts.
		r.Post("/accounts", h.UpsertAccounts)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
