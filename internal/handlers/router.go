package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
)

// Services are the dependencies of the HTTP API. QR is optional and its
// routes are only mounted when it is set.
type Services struct {
	Auth         *services.AuthService
	Directory    *services.DirectoryService
	Capture      *services.CaptureService
	Transactions *services.TransactionService
	Loans        *services.LoanService
	Freeze       *services.FreezeService
	Audit        *services.AuditTrail
	ISO20022     *services.ISO20022Service
	QR           *services.QRService
}

func NewRouter(svc Services, limiter *middleware.RateLimiter) http.Handler {
	authHandler := NewAuthHandler(svc.Auth, svc.Directory)
	accountHandler := NewAccountHandler(svc.Directory, svc.Loans)
	identityHandler := NewIdentityHandler(svc.Directory, svc.Capture)
	transferHandler := NewTransferHandler(svc.Transactions, svc.Capture, svc.ISO20022)
	loanHandler := NewLoanHandler(svc.Loans, svc.Capture)
	auditHandler := NewAuditHandler(svc.Audit)
	adminHandler := NewAdminHandler(svc.Directory, svc.Freeze, svc.Loans)

	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdentitySessionHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.With(limiter.Middleware).Post("/auth/login", authHandler.Login)
		r.With(limiter.Middleware).Post("/accounts", authHandler.Signup)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(svc.Auth))

			r.Post("/auth/logout", authHandler.Logout)

			r.Get("/accounts/me", accountHandler.Me)
			r.Get("/accounts/{address}", accountHandler.Get)

			r.Post("/identity/enroll", identityHandler.Enroll)
			r.With(limiter.Middleware).Post("/identity/authenticate", identityHandler.Authenticate)
			r.Get("/identity/history", identityHandler.History)

			r.With(limiter.Middleware).Post("/transfers", transferHandler.Create)
			r.Get("/transfers", transferHandler.List)
			r.Get("/transfers/{id}", transferHandler.Get)
			r.Get("/transfers/{id}/iso20022", transferHandler.ISO20022)

			r.With(limiter.Middleware).Post("/loans", loanHandler.Apply)
			r.Get("/loans", loanHandler.List)
			r.Get("/loans/{id}", loanHandler.Get)
			r.Get("/loans/{id}/schedule", loanHandler.Schedule)
			r.With(limiter.Middleware).Post("/loans/{id}/payments", loanHandler.Pay)

			r.Get("/audit", auditHandler.List)

			if svc.QR != nil {
				qrHandler := NewQRHandler(svc.QR)
				r.Post("/qr/generate", qrHandler.GenerateQR)
				r.Post("/qr/process", qrHandler.ProcessQR)
			}

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))

				r.Get("/accounts", adminHandler.ListAccounts)
				r.Get("/stats", adminHandler.Stats)
				r.Post("/accounts/{address}/credit", adminHandler.Credit)
				r.Post("/accounts/{address}/freeze", adminHandler.Freeze)
				r.Post("/accounts/{address}/unfreeze", adminHandler.Unfreeze)
				r.Post("/loans/{id}/approve", adminHandler.ApproveLoan)
				r.Post("/loans/sweep", adminHandler.Sweep)
			})
		})
	})

	return r
}
