package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/application"
	"github.com/RaikyD/btc-content-shop/internal/clock"
	"github.com/RaikyD/btc-content-shop/internal/config"
	"github.com/RaikyD/btc-content-shop/internal/kafka"
	"github.com/RaikyD/btc-content-shop/internal/logger"
	"github.com/RaikyD/btc-content-shop/internal/migrate"
	"github.com/RaikyD/btc-content-shop/internal/notify"
	"github.com/RaikyD/btc-content-shop/internal/oracle"
	"github.com/RaikyD/btc-content-shop/internal/payment"
	"github.com/RaikyD/btc-content-shop/internal/presentation"
	"github.com/RaikyD/btc-content-shop/internal/pricing"
	"github.com/RaikyD/btc-content-shop/internal/rates"
	"github.com/RaikyD/btc-content-shop/internal/repository"
	"github.com/RaikyD/btc-content-shop/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init()
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger.InitWithFormat(cfg.LOG_FORMAT, cfg.LOG_LEVEL)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(cfg.DB_STRING); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.DB_STRING)
	if err != nil {
		logger.Error("pgxpool new failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("db ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("db connected")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.REDIS_ADDR})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, sessions unavailable until it recovers", "addr", cfg.REDIS_ADDR, "err", err)
	}

	clk := clock.NewSystem()

	// Repositories
	orderRepo := repository.NewOrderRepository(pool)
	contentRepo := repository.NewContentRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	rateRepo := repository.NewRateRepository(pool)

	// Ledger oracle, rate cache, pricing
	ledger := oracle.NewClient(oracle.Config{
		BaseURL: cfg.ORACLE_URL,
		Timeout: cfg.ORACLE_TIMEOUT,
	})
	rateCache := rates.NewCache(ledger, cfg.FIAT_CURRENCY,
		rates.WithStore(rateRepo),
		rates.WithClock(clk),
		rates.WithFreshness(cfg.RATE_FRESHNESS),
		rates.WithFallback(cfg.FALLBACK_RATE),
		rates.WithFetchTimeout(cfg.ORACLE_TIMEOUT),
	)
	if err := rateCache.Restore(ctx); err != nil {
		logger.Warn("restore rate snapshot failed", "err", err)
	}
	quoter := pricing.NewQuoter(rateCache, pricing.WithUnitRange(cfg.UNIT_MIN, cfg.UNIT_MAX))

	// Kafka producer for customer and operator notifications
	prod := kafka.NewProducer(cfg.KAFKA_BROKERS, cfg.KAFKA_NOTIFY_TOPIC)
	defer prod.Close()

	// Wiring
	ordersSvc := application.NewOrdersService(application.Dependencies{
		Orders:   orderRepo,
		Content:  contentRepo,
		Catalog:  catalogRepo,
		Quoter:   quoter,
		Verifier: payment.NewVerifier(ledger),
		Notifier: notify.New(prod, clk),
		Clock:    clk,
	},
		application.WithPaymentDeadline(cfg.PAYMENT_DEADLINE),
		application.WithReceivingAddress(cfg.RECEIVING_ADDRESS),
		application.WithOperators(cfg.OPERATOR_IDS...),
	)
	catalogSvc := application.NewCatalogService(catalogRepo, contentRepo)
	flow := session.NewFlow(session.NewRedisStore(rdb, cfg.SESSION_TTL), catalogRepo, ordersSvc, clk)

	var wg sync.WaitGroup

	sweeper := application.NewSweeper(ordersSvc, cfg.SWEEP_INTERVAL)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	// Kafka consumer (payment check commands from the chat frontend)
	consumerDone, err := kafka.StartConsumer(ctx, ordersSvc, kafka.ConsumerConfig{
		Brokers: cfg.KAFKA_BROKERS,
		Topic:   cfg.KAFKA_CHECK_TOPIC,
		GroupID: cfg.KAFKA_GROUP_ID,
	})
	if err != nil {
		logger.Error("kafka consumer failed", "err", err)
		os.Exit(1)
	}

	// API
	v := presentation.NewValidator()
	router := presentation.NewRouter(presentation.Handlers{
		Orders:   presentation.NewOrdersHandler(ordersSvc, v),
		Catalog:  presentation.NewCatalogHandler(catalogSvc, rateCache, v, ordersSvc.IsOperator),
		Sessions: presentation.NewSessionsHandler(flow, v),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTP_PORT,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("starting http", "addr", server.Addr)
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server crashed", "err", err)
		}
		stop()
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http shutdown failed", "err", err)
	}

	wg.Wait()
	<-consumerDone
	logger.Info("stopped")
}
