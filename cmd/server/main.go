package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otpsim/internal/config"
	"otpsim/internal/db"
	"otpsim/internal/gateway"
	"otpsim/internal/handlers"
	"otpsim/internal/notify"
	"otpsim/internal/services"
	"otpsim/internal/store"
	"otpsim/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	deposits := store.NewDepositStore(database)
	transactions := store.NewTransactionStore(database)
	rentals := store.NewRentalStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.TelegramBotToken != "" {
		notifier = notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID)
	}
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)

	reconciler := services.NewReconcileService(txRunner, deposits, users, transactions, notifier, hub, cfg.AmountTolerance)
	depositService := services.NewDepositService(txRunner, deposits, users, transactions, audit, gatewayClient, reconciler, notifier, hub, services.DepositConfig{
		MinAmount:   cfg.MinDepositAmount,
		TTL:         cfg.DepositTTL,
		BankAccount: cfg.BankAccount,
		BankName:    cfg.BankName,
	})
	rentalService := services.NewRentalService(txRunner, rentals, users, transactions, hub, services.RentalConfig{
		Price:     cfg.RentalPrice,
		TTL:       cfg.RentalTTL,
		CodeDelay: 20 * time.Second,
	})

	handler := handlers.New(txRunner, cfg, users, transactions, admin, audit, depositService, rentalService, reconciler, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepOverdueDeposits(sweepCtx, depositService, cfg.SweepInterval)

	go func() {
		log.Printf("otpsim API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// sweepOverdueDeposits backs up the lazy per-request expiry so deposits
// nobody polls still leave the pending set.
func sweepOverdueDeposits(ctx context.Context, depositService *services.DepositService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := depositService.ExpireOverdue(ctx)
			if err != nil {
				log.Printf("deposit sweep: %v", err)
				continue
			}
			if expired > 0 {
				log.Printf("deposit sweep: expired %d overdue deposits", expired)
			}
		}
	}
}
