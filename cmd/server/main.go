package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"privalytics/adapters/excel"
	"privalytics/adapters/memory"
	"privalytics/adapters/postgres"
	"privalytics/internal/anonymize"
	"privalytics/internal/api"
	"privalytics/internal/config"
	"privalytics/internal/consent"
	"privalytics/internal/discovery"
	"privalytics/internal/evidence"
	"privalytics/internal/keys"
	"privalytics/internal/logging"
	"privalytics/internal/platform"
	"privalytics/internal/query"
	"privalytics/internal/rng"
	"privalytics/ports"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()

	log := logging.NewDefaultLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration invalid: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		consentRepo  ports.ConsentRepository
		approvalRepo ports.ApprovalRepository
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(cfg.Database)
		if err != nil {
			log.Error("database connection failed: %v", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("schema setup failed: %v", err)
			os.Exit(1)
		}
		consentRepo = postgres.NewConsentRepository(db)
		approvalRepo = postgres.NewApprovalRepository(db)
		log.Info("using postgres persistence")
	} else {
		consentRepo = memory.NewConsentRepository()
		approvalRepo = memory.NewApprovalRepository()
		log.Warn("DATABASE_URL not set, using in-memory persistence")
	}

	recordStore := memory.NewRecordSource()
	cache := memory.NewQueryCache(cfg.Query.CacheCapacity, cfg.Query.CacheTTL)
	rngPort := rng.New(cfg.Anonymization.NoiseSeed)

	anonymizer, err := anonymize.NewEngine(cfg.Anonymization,
		keys.NewHexProvider(cfg.Anonymization.EncryptionKeyHex), rngPort, log)
	if err != nil {
		log.Error("anonymization engine startup failed: %v", err)
		os.Exit(1)
	}

	ledger := consent.NewLedger(cfg.Consent, consentRepo, log)
	queries := query.NewEngine(cfg.Query, recordStore, cache, approvalRepo, ledger, anonymizer, log)
	patterns := discovery.NewEngine(cfg.Discovery, queries, rngPort, log)
	reports := evidence.NewEngine(cfg.Evidence, queries, log)

	p := platform.New(cfg, ledger, anonymizer, queries, patterns, reports, recordStore, cache, log)
	if env := p.Initialize(ctx); !env.Success {
		log.Error("platform initialization failed: %s", env.Error.Message)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(p, excel.NewReportExporter(), log).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error: %v", err)
		}
	}()

	log.Info("listening on :%s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed: %v", err)
		os.Exit(1)
	}
}
