// Package app wires the storage, cache, broker and payment provider shared by
// the API and the payments worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

type Runtime struct {
	Orders    *lifecycle.Service
	Inventory *inventory.Service
	Gateway   gateway.Client

	log      *zap.Logger
	producer *kafkax.Producer
	closers  []func()
}

// Open builds the runtime. ctx bounds the event producer loop; Close flushes
// it and releases connections.
func Open(ctx context.Context, cfg config.Config, service string, log *zap.Logger) (*Runtime, error) {
	rt := &Runtime{log: log}

	store, err := rt.openStore(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var events orders.Emitter = orders.NopEmitter{}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) > 0 {
		rt.producer = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
		rt.producer.Start(ctx)
		events = kafkax.NewEmitter(rt.producer, service, log.Named("events"))
	}

	rt.Gateway = gateway.Disabled{}
	if cfg.MercadoPagoToken != "" {
		rt.Gateway = gateway.NewMercadoPago(gateway.MercadoPagoConfig{
			BaseURL:         cfg.MercadoPagoBaseURL,
			AccessToken:     cfg.MercadoPagoToken,
			SiteURL:         cfg.SiteURL,
			NotificationURL: cfg.PublicAPIURL + "/payments/webhook",
			Timeout:         cfg.PaymentTimeout,
		}, log.Named("mercadopago"))
	} else {
		log.Warn("MERCADOPAGO_ACCESS_TOKEN not set, checkout is disabled")
	}

	opts := []lifecycle.Option{
		lifecycle.WithLogger(log.Named("lifecycle")),
		lifecycle.WithEmitter(events),
		lifecycle.WithGateway(rt.Gateway),
		lifecycle.WithReservationTTL(cfg.ReservationTTL),
		lifecycle.WithPaymentTimeout(cfg.PaymentTimeout),
	}
	if cfg.RedisAddr != "" {
		rdb := rt.openRedis(ctx, cfg.RedisAddr)
		opts = append(opts,
			lifecycle.WithDeduper(redisx.NewDedup(rdb)),
			lifecycle.WithStatusCache(redisx.NewStatusCache(rdb)),
		)
	}

	rt.Orders = lifecycle.New(store, opts...)
	rt.Inventory = inventory.NewService(store, inventory.NewLedger(nil), events, log.Named("inventory"))
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg config.Config) (orders.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		rt.log.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		return postgres.NewStore(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openRedis never fails: the dedup and status cache degrade when Redis is
// unreachable, so a failed ping is only logged.
func (rt *Runtime) openRedis(ctx context.Context, addr string) *redis.Client {
	rdb := redisx.New(addr)
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisx.Ping(pingCtx, rdb); err != nil {
		rt.log.Warn("redis unavailable", zap.String("addr", addr), zap.Error(err))
	}
	return rdb
}

// Sweep expires stale reservations every interval until ctx is done.
func (rt *Runtime) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := rt.Orders.ExpireStale(ctx)
			if err != nil {
				rt.log.Error("reservation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				rt.log.Info("reservations expired", zap.Int("count", n))
			}
		}
	}
}

// Close flushes pending events, then releases connections in reverse order.
func (rt *Runtime) Close() {
	if rt.producer != nil {
		rt.producer.Close()
		rt.producer.WaitClosed()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
