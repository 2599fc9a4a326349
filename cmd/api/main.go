package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/app"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Environment).With(zap.String("service", cfg.ServiceName))
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Open(ctx, cfg, cfg.ServiceName, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	// Webhook notifications are applied in the request, or handed to the
	// payments worker through Kafka.
	var sink httpx.NotificationSink = httpx.Inline(rt.Orders.HandleNotification)
	if cfg.WebhookMode == "queue" {
		q := kafkax.NewNotificationQueue(cfg.KafkaBrokers, cfg.ServiceName, log.Named("notifications"))
		defer q.Close()
		sink = q
	}

	if cfg.ReservationSweepInterval > 0 {
		go rt.Sweep(ctx, cfg.ReservationSweepInterval)
	}

	router := httpx.NewRouter(log)
	httpx.Mount(router, auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, log.Named("auth")), httpx.Handlers{
		Orders:       &httpx.OrdersHandler{Orders: rt.Orders, Log: log},
		Reservations: &httpx.ReservationsHandler{Orders: rt.Orders, Log: log},
		Inventory:    &httpx.InventoryHandler{Inventory: rt.Inventory, Log: log},
		Payments:     &httpx.PaymentsHandler{Gateway: rt.Gateway, Sink: sink, Log: log.Named("webhook")},
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver), zap.String("webhook_mode", cfg.WebhookMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	rt.Close()
}
