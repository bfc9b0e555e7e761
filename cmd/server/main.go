package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	appservice "github.com/sentineliq/riskd/internal/application/service"
	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/audit"
	"github.com/sentineliq/riskd/internal/infrastructure/ledger"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	riskredis "github.com/sentineliq/riskd/internal/infrastructure/redis"
	httpiface "github.com/sentineliq/riskd/internal/interfaces/http"
	"github.com/sentineliq/riskd/internal/interfaces/http/handlers"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/sentineliq/riskd/pkg/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ruleSet, err := config.LoadRuleSet(cfg.RulesPath)
	if err != nil {
		appLogger.Fatal(ctx, "failed to load rule set", err)
	}

	metrics := monitoring.NewMetrics()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Not fatal: every Redis-backed store fails open.
		appLogger.Warn(ctx, "redis unreachable at startup, running degraded",
			logger.Error(err))
	}

	ledgerStore, err := ledger.NewGormLedgerStore(cfg.Ledger, appLogger, metrics)
	if err != nil {
		appLogger.Fatal(ctx, "failed to open audit ledger", err)
	}

	var publisher service.DecisionPublisher
	if cfg.Kafka.Enabled() {
		publisher = audit.NewKafkaDecisionPublisher(cfg.Kafka, appLogger)
	} else {
		publisher = audit.NewNoopDecisionPublisher()
	}
	defer publisher.Close()

	idempotencyGuard := riskredis.NewRedisIdempotencyGuard(redisClient, cfg.Idempotency, appLogger, metrics)
	velocityStore := riskredis.NewRedisVelocityStore(redisClient, appLogger, metrics)
	uaHistoryStore := riskredis.NewRedisUAHistoryStore(
		redisClient, cfg.Engine.UAHistoryMaxEntries, constants.UAHistoryWindow, appLogger, metrics)

	ruleEngine := appservice.NewRuleEngine(ruleSet, velocityStore, cfg.Engine, appLogger)
	uaDetector := appservice.NewUADetector(uaHistoryStore, cfg.Engine, appLogger)

	riskService := appservice.NewRiskAppService(
		ruleEngine, uaDetector, idempotencyGuard, velocityStore,
		ledgerStore, nil, publisher, cfg.Engine, metrics, appLogger)

	router := httpiface.NewRouter(
		cfg, appLogger,
		handlers.NewRiskHandler(riskService, appLogger),
		handlers.NewHealthHandler(redisClient, ledgerStore),
		handlers.NewMiddleware(appLogger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return router.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Fatal(context.Background(), "server exited with error", err)
	}
	appLogger.Info(context.Background(), "server stopped")
}
