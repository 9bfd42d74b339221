package handlers

import (
	"net/http"

	"otpsim/internal/config"
	"otpsim/internal/db"
	"otpsim/internal/middleware"
	"otpsim/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner  db.TxRunner
	cfg       config.Config
	users     UserStore
	ledger    TransactionStore
	admin     AdminStore
	audit     AuditStore
	deposits  DepositService
	rentals   RentalService
	reconcile ReconcileService
	hub       *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, ledger TransactionStore, admin AdminStore, audit AuditStore, deposits DepositService, rentals RentalService, reconcile ReconcileService, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:  txRunner,
		cfg:       cfg,
		users:     users,
		ledger:    ledger,
		admin:     admin,
		audit:     audit,
		deposits:  deposits,
		rentals:   rentals,
		reconcile: reconcile,
		hub:       hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Gateway-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.Route("/deposit", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/create", h.CreateDeposit)
		r.Post("/check", h.CheckDeposit)
		r.Get("/history", h.DepositHistory)
	})
	router.Post("/webhook/{gateway}", h.Webhook)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/wallet/transactions", h.ListTransactions)
	router.Route("/rentals", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/buy", h.BuyRental)
		r.Get("/", h.ListRentals)
		r.Get("/{id}", h.GetRental)
	})
	router.Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAdmin(h.admin))
		r.Post("/deposits/approve", h.ApproveDeposit)
		r.Post("/deposits/reject", h.RejectDeposit)
		r.Get("/deposits", h.AdminListDeposits)
		r.Get("/audit", h.ListAuditLogs)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
