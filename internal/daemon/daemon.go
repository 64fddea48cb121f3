package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/barterdeck/barterdeck/internal/api"
	"github.com/barterdeck/barterdeck/internal/app/engine"
	"github.com/barterdeck/barterdeck/internal/app/trade"
	"github.com/barterdeck/barterdeck/internal/infra/extern"
	"github.com/barterdeck/barterdeck/internal/infra/holds"
	"github.com/barterdeck/barterdeck/internal/infra/notify"
	"github.com/barterdeck/barterdeck/internal/infra/registry"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// Run starts the daemon and blocks until SIGINT/SIGTERM.
func Run(cfg Config) error {
	db, err := sqlite.Open(cfg.StoreDir())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	log.Printf("[daemon] store at %s (max %d bytes)", cfg.StoreDir(), parseStorageSize(cfg.Store.MaxStorage))

	items := registry.NewManager(db)
	dispatcher := notify.NewDispatcher(notify.LogSink{}, cfg.Notify.QueueSize)
	defer dispatcher.Close()

	trades := trade.New(db, items)
	trades.SetNotifier(dispatcher)
	if cfg.Payments.GatewayURL != "" {
		trades.SetPaymentGateway(extern.NewPaymentClient(cfg.Payments.GatewayURL))
		log.Printf("[daemon] payment gateway at %s", cfg.Payments.GatewayURL)
	}
	if cfg.Shipping.ProviderURL != "" {
		trades.SetShippingProvider(extern.NewShippingClient(cfg.Shipping.ProviderURL))
		log.Printf("[daemon] shipping provider at %s", cfg.Shipping.ProviderURL)
	}

	eng := engine.New(db, items, trades.Resolver())
	eng.SetNotifier(dispatcher)
	eng.SetHoldMinutes(cfg.Engine.HoldMinutes)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Printf("[daemon] redis at %s unreachable, running DB-only: %v", cfg.Redis.Addr, err)
		} else {
			eng.SetHoldCache(holds.NewCache(client))
			log.Printf("[daemon] hold cache at %s", cfg.Redis.Addr)
		}
		defer client.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Engine.SweepHolds {
		eng.EnableHoldSweeper()
		interval, err := time.ParseDuration(cfg.Engine.SweepInterval)
		if err != nil {
			interval = 30 * time.Second
		}
		eng.StartSweeper(ctx, interval)
	}

	server := api.NewServer(db, items, eng, trades)
	if cfg.Metrics.Enabled {
		server.EnableMetrics()
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Printf("[daemon] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
