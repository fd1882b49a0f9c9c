package main

import (
	"log"
	"net/http"

	"github.com/cobrafacil/reconciler/internal/api"
	"github.com/cobrafacil/reconciler/internal/config"
	"github.com/cobrafacil/reconciler/internal/dedup"
	"github.com/cobrafacil/reconciler/internal/ingestion"
	"github.com/cobrafacil/reconciler/internal/matching"
	"github.com/cobrafacil/reconciler/internal/reconciliation"
	"github.com/cobrafacil/reconciler/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Initializing database at %s", cfg.Database.Path)
	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	accountRepo := repository.NewAccountRepo(db)
	aliasRepo := repository.NewAliasRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	caseRepo := repository.NewCaseRepo(db)
	batchRepo := repository.NewBatchRepo(db)

	// Create services.
	engine := matching.NewEngine(matching.Policy{
		AutoThreshold:   cfg.Matching.AutoThreshold,
		ReviewThreshold: cfg.Matching.ReviewThreshold,
		AutoGap:         cfg.Matching.AutoGap,
		ConflictGap:     cfg.Matching.ConflictGap,
		TopN:            cfg.Matching.TopCandidates,
	})
	detector := dedup.NewDetector(paymentRepo, caseRepo)
	reconSvc := reconciliation.NewService(engine, detector, accountRepo,
		aliasRepo, paymentRepo, batchRepo, cfg.Batch.ChunkSize, cfg.Batch.Workers)
	ingestSvc := ingestion.NewService(engine, detector, accountRepo,
		aliasRepo, paymentRepo, ingestion.LogNotifier{})

	// Create router.
	router := api.NewRouter(reconSvc, ingestSvc, detector,
		accountRepo, paymentRepo, caseRepo, batchRepo)

	log.Printf("Payment Reconciliation & Duplicate-Detection Engine")
	log.Printf("Listening on http://localhost:%s", cfg.Server.Port)
	log.Printf("API base: http://localhost:%s/api/v1", cfg.Server.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/batches")
	log.Printf("  GET    /api/v1/batches/{id}")
	log.Printf("  GET    /api/v1/payments")
	log.Printf("  POST   /api/v1/payments/{id}/confirm")
	log.Printf("  POST   /api/v1/payments/{id}/reject")
	log.Printf("  GET    /api/v1/match/suggest")
	log.Printf("  POST   /api/v1/webhooks/payments")
	log.Printf("  GET    /api/v1/duplicates")
	log.Printf("  POST   /api/v1/duplicates/{id}/resolve")
	log.Printf("  POST   /api/v1/accounts")
	log.Printf("  GET    /api/v1/dashboard")

	if err := http.ListenAndServe(":"+cfg.Server.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
