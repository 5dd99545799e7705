package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/collection"
	"github.com/ariefcatur/go-gift-mall/internal/config"
	"github.com/ariefcatur/go-gift-mall/internal/donations"
	"github.com/ariefcatur/go-gift-mall/internal/httpx"
	"github.com/ariefcatur/go-gift-mall/internal/inventory"
	kafkax "github.com/ariefcatur/go-gift-mall/internal/kafka"
	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/ariefcatur/go-gift-mall/internal/payment"
	"github.com/ariefcatur/go-gift-mall/internal/postgres"
	"github.com/ariefcatur/go-gift-mall/internal/redisx"
	"github.com/ariefcatur/go-gift-mall/internal/rewards"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing", zap.Error(err))
	}
	tracer := tp.Tracer(cfg.ServiceName)

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	st := &postgres.Store{DB: db}

	// Redis
	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producers, one per topic
	bus := kafkax.NewBus(cfg.KafkaBrokers, cfg.ServiceName, log,
		orders.TopicOrderPlaced, orders.TopicReceiptConfirmed,
		rewards.TopicChancesGranted, rewards.TopicRewardDrawn,
	)
	bus.Start()

	// Services
	inv := &inventory.Service{Store: st, Log: log}
	if _, err := inv.Bootstrap(ctx); err != nil {
		log.Fatal("bootstrap catalogue", zap.Error(err))
	}
	rw := &rewards.Service{
		Store:            st,
		Cache:            redisx.ChanceCache{RDB: rdb},
		Events:           bus,
		Log:              log.Named("rewards"),
		Tracer:           tracer,
		ChanceUnit:       cfg.ChanceUnit,
		DrawPriceCeiling: cfg.DrawPriceCeiling,
	}
	ord := &orders.Service{
		Store:    st,
		Rewards:  rw,
		Payments: payment.NewVerifier(cfg.PaymentVerifyURL, cfg.PaymentPrivateKey, log.Named("payment")),
		Receipts: redisx.ReceiptIndex{RDB: rdb},
		Events:   bus,
		Log:      log.Named("orders"),
		Tracer:   tracer,
	}
	col := &collection.Service{Store: st, Log: log.Named("collection")}
	don := &donations.Service{Store: st, Log: log.Named("donations")}

	// Router & handlers
	router := httpx.NewRouter(log)
	(&httpx.ProductsHandler{Inventory: inv, Log: log}).Register(router)
	(&httpx.OrdersHandler{Orders: ord, Log: log}).Register(router)
	(&httpx.RewardsHandler{Rewards: rw, Log: log}).Register(router)
	(&httpx.CollectionHandler{Collection: col, Log: log}).Register(router)
	(&httpx.DonationsHandler{Donations: don, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	bus.Close() // flush pending events
	cancel()
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
}
