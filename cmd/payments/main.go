package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/app"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logger"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// payments applies queued gateway notifications (WEBHOOK_MODE=queue) and runs
// the reservation sweeper when one is configured.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	service := cfg.ServiceName + "-payments"
	log := logger.New(cfg.Environment).With(zap.String("service", service))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Open(ctx, cfg, service, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	if cfg.ReservationSweepInterval > 0 {
		go rt.Sweep(ctx, cfg.ReservationSweepInterval)
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PaymentsGroup, orders.TopicPaymentNotifications, cfg.PaymentsWorkers, log.Named("consumer"))
	handler := kafkax.NotificationHandler(rt.Orders.HandleNotification, log.Named("notifications"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("payments consumer started",
			zap.String("group", cfg.PaymentsGroup),
			zap.String("topic", orders.TopicPaymentNotifications),
			zap.Int("workers", cfg.PaymentsWorkers),
		)
		if err := cons.Start(ctx, handler); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	<-done
	rt.Close()
}
