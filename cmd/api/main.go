package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_tickets/internal/bookings"
	"github.com/fjod/go_tickets/internal/cache"
	"github.com/fjod/go_tickets/internal/checkout"
	"github.com/fjod/go_tickets/internal/config"
	"github.com/fjod/go_tickets/internal/consumer"
	h "github.com/fjod/go_tickets/internal/http"
	"github.com/fjod/go_tickets/internal/logger"
	"github.com/fjod/go_tickets/internal/payment"
	"github.com/fjod/go_tickets/internal/publisher"
	"github.com/fjod/go_tickets/internal/repository"
	"github.com/fjod/go_tickets/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	zap.ReplaceGlobals(lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cart storage
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.Mongo)
	if err != nil {
		lg.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()

	carts := repository.NewMongoRepository(mongoDB)
	if err := carts.CreateIndexes(ctx); err != nil {
		lg.Fatal("failed to create cart indexes", zap.Error(err))
	}
	lg.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		lg.Fatal("redis connection failed", zap.Error(err))
	}

	// Bookings
	bookingRepo, err := bookings.NewRepository(ctx, cfg.Postgres.DSN())
	if err != nil {
		lg.Fatal("failed to connect to Postgres", zap.Error(err))
	}
	defer bookingRepo.Close()
	if err := bookingRepo.RunMigrations(); err != nil {
		lg.Fatal("failed to run migrations", zap.Error(err))
	}

	var processor payment.Processor
	switch cfg.PaymentProvider {
	case "stripe":
		processor = payment.NewStripeProcessor(cfg.StripeSecretKey)
	default:
		lg.Warn("using the in-memory payment processor; no real charges are made")
		processor = payment.NewFakeProcessor(payment.TestCardOutcome)
	}
	processor = payment.NewBreakerProcessor(processor, payment.DefaultBreakerSettings(), lg)

	cartService := service.NewCartService(carts, cache.NewRedisCache(redisClient), lg)
	checkoutService := checkout.NewService(processor, bookingRepo, cfg.Currency, lg)

	router := h.NewRouter(h.RouterConfig{
		Carts:          cartService,
		Checkout:       checkoutService,
		Log:            lg,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	reconciler := checkout.NewReconciler(checkoutService, checkout.ReconcilerSettings{
		Interval:     cfg.ReconcileInterval,
		Grace:        cfg.ReconcileGrace,
		AbandonAfter: cfg.AbandonAfter,
	}, lg)
	run(reconciler.Run)

	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(bookingRepo, lg, cfg.KafkaBrokers...)
		defer func() { _ = poller.Close() }()
		run(poller.Run)

		cleaner := consumer.NewConsumer(consumer.NewCartCleaner(cartService, lg), consumer.CartCleanerGroup, lg, cfg.KafkaBrokers...)
		defer cleaner.Close()
		run(cleaner.Run)

		notifier := consumer.NewConsumer(
			consumer.NewNotifier(consumer.NewLogDispatcher(lg), lg),
			consumer.NotifierGroup, lg, cfg.KafkaBrokers...)
		defer notifier.Close()
		run(notifier.Run)
	} else {
		lg.Info("KAFKA_BROKERS not set; booking events stay in the outbox")
	}

	go func() {
		lg.Info("ticketing API starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	lg.Info("server exited")
}
