package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ultimate-banking-app/ledger-engine/internal/api"
	"github.com/ultimate-banking-app/ledger-engine/internal/audit"
	"github.com/ultimate-banking-app/ledger-engine/internal/cache"
	"github.com/ultimate-banking-app/ledger-engine/internal/config"
	"github.com/ultimate-banking-app/ledger-engine/internal/coordinator"
	"github.com/ultimate-banking-app/ledger-engine/internal/engine"
	"github.com/ultimate-banking-app/ledger-engine/internal/idempotency"
	"github.com/ultimate-banking-app/ledger-engine/internal/ledger"
	"github.com/ultimate-banking-app/ledger-engine/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Unable to build logger: %v", err)
	}
	defer logger.Sync()

	dbPool, err := pgxpool.New(context.Background(), cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}

	// Optional advisory balance cache.
	var balanceCache cache.BalanceCache
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		balanceCache = cache.NewRedisCache(redisClient, cfg.BalanceCacheTTL)
		logger.Info("balance cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	// Audit goes to Kafka when brokers are configured, otherwise to the log.
	var auditor audit.Emitter = audit.NewLogEmitter(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaEmitter := audit.NewKafkaEmitter(cfg.KafkaBrokers, cfg.AuditTopic, logger)
		defer kafkaEmitter.Close()
		auditor = kafkaEmitter
		logger.Info("audit publisher enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.AuditTopic))
	}

	// Initialize Layers
	accounts := registry.NewPostgresRegistry(dbPool)
	entryStore := ledger.NewPostgresStore(dbPool)
	idemLedger := idempotency.NewPostgresLedger(dbPool)

	eng := engine.New(accounts, entryStore, engine.Options{
		Cache:         balanceCache,
		Logger:        logger,
		LockWait:      cfg.LockWait,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
	})
	coord := coordinator.New(accounts, eng, idemLedger, auditor, logger)
	handler := api.NewHandler(accounts, eng, coord)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler)
	handler.Register(r.PathPrefix("/api/v1").Subrouter())

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
