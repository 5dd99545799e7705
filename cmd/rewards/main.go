package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/config"
	kafkax "github.com/ariefcatur/go-gift-mall/internal/kafka"
	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/ariefcatur/go-gift-mall/internal/postgres"
	"github.com/ariefcatur/go-gift-mall/internal/redisx"
	"github.com/ariefcatur/go-gift-mall/internal/rewards"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-rewards"
	log := observability.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, shutdownTracing, err := observability.SetupTracing(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	bus := kafkax.NewBus(cfg.KafkaBrokers, service, log, rewards.TopicChancesGranted)
	bus.Start()

	w := &rewards.Worker{
		Rewards: &rewards.Service{
			Store:      &postgres.Store{DB: db},
			Cache:      redisx.ChanceCache{RDB: rdb},
			Events:     bus,
			Log:        log,
			Tracer:     tp.Tracer(service),
			ChanceUnit: cfg.ChanceUnit,
		},
		Dedup: redisx.Dedup{RDB: rdb, Service: service},
		Log:   log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.RewardsGroup, orders.TopicOrderPlaced, cfg.RewardsWorkers, log)

	go func() {
		log.Info("rewards consumer started",
			zap.String("group", cfg.RewardsGroup), zap.String("topic", orders.TopicOrderPlaced), zap.Int("workers", cfg.RewardsWorkers))
		if err := cons.Start(ctx, w.HandleOrderPlaced); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	bus.Close()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
}
