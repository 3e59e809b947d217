package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banksec/backend/internal/config"
	"github.com/banksec/backend/internal/database"
	"github.com/banksec/backend/internal/handlers"
	"github.com/banksec/backend/internal/hsm"
	mW "github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/scheduler"
	"github.com/banksec/backend/internal/services"
	"github.com/banksec/backend/internal/settlement"
	"github.com/banksec/backend/internal/store"
)

func main() {
	config.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.JWT.SecretKey == "" {
		log.Fatal("JWT_SECRET_KEY is required")
	}
	if cfg.HSMSalt == "" && cfg.Store == "postgres" {
		log.Println("Warning: HSM_SALT unset, audit seals written by earlier runs will not verify")
	}

	ctx := context.Background()

	// Ledger store
	var st store.Store
	switch cfg.Store {
	case "postgres":
		db, err := database.OpenPostgres(ctx, database.GetConfig())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		st = pg
	default:
		log.Println("[STORE] using in-memory ledger store")
		st = store.NewMemoryStore()
	}

	redisClient, err := database.OpenRedis(ctx)
	if err != nil {
		if cfg.Settlement == "redis" {
			log.Fatalf("Redis settlement backend unavailable: %v", err)
		}
		log.Printf("[REDIS] disabled, sessions kept in memory: %v", err)
	} else {
		defer redisClient.Close()
	}

	// Settlement environment
	var env settlement.Environment
	if cfg.Settlement == "redis" {
		env = settlement.NewRedisEnvironment(redisClient)
	} else {
		env = settlement.NewMemoryEnvironment()
	}
	reliable := settlement.NewReliable(env, cfg.Ledger.SettlementAttempts, cfg.Ledger.SettlementTimeout, cfg.Ledger.SettlementBackoff)

	auditLogger := hsm.NewAuditLogger()
	signer, err := hsm.InitSigner(hsm.Config{
		MasterKey:   cfg.HSMKey,
		Salt:        saltFrom(cfg.HSMSalt),
		AuditLogger: auditLogger,
	})
	if err != nil {
		log.Fatalf("Failed to initialize signer: %v", err)
	}

	// Identity capture
	var sessions services.SessionStore = services.NewMemorySessionStore()
	if redisClient != nil {
		sessions = services.NewRedisSessionStore(redisClient)
	}
	var transcriber services.Transcriber
	if speech := services.NewSpeechTranscriber(ctx, services.SpeechConfig{LanguageCode: cfg.Identity.LanguageCode}); speech != nil {
		transcriber = speech
		defer speech.Close()
	}

	var risk services.RiskScorer = services.ThresholdScorer{Threshold: cfg.Risk.FraudThreshold}
	if cfg.Risk.URL != "" {
		risk = services.NewHTTPRiskScorer(cfg.Risk.URL, cfg.Gate.RiskTimeout)
	}

	trail := services.NewAuditTrail(st, signer)
	ledger := services.NewLedgerService(st, reliable, trail)
	capture := services.NewCaptureService(st, signer, sessions, transcriber, cfg.Gate.ProofFreshness, cfg.Identity.MinConfidence)
	gate := services.NewAuthorizationGate(st, capture, risk, cfg.Gate, auditLogger)
	directory := services.NewDirectoryService(st, signer)
	loans := services.NewLoanService(st, ledger, gate, cfg.Loan, auditLogger)

	svc := handlers.Services{
		Auth:         services.NewAuthService(st, signer, redisClient, cfg.JWT.SecretKey, time.Duration(cfg.JWT.ExpiryHours)*time.Hour),
		Directory:    directory,
		Capture:      capture,
		Transactions: services.NewTransactionService(st, gate, ledger),
		Loans:        loans,
		Freeze:       services.NewFreezeService(st, ledger, auditLogger),
		Audit:        trail,
		ISO20022:     services.NewISO20022Service("USD", ""),
	}
	if redisClient != nil {
		svc.QR = services.NewQRService(st, redisClient)
	}

	if cfg.Admin.Address != "" {
		if err := directory.EnsureAdmin(ctx, cfg.Admin.Address, cfg.Admin.Pin); err != nil {
			log.Fatalf("Failed to bootstrap admin account: %v", err)
		}
	}

	sched, err := scheduler.NewScheduler(loans, cfg.Loan.SweepSchedule)
	if err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	limiter := mW.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(svc, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// saltFrom returns nil for an empty salt so the signer generates one.
func saltFrom(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
