// Command server runs the nonconformity lifecycle engine. main only builds
// dependencies from configuration and owns the process lifecycle; all
// behavior lives in the internal vertical packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	actionadapters "conforma/internal/action/adapters"
	actionhandler "conforma/internal/action/handler"
	actionmetrics "conforma/internal/action/metrics"
	actionservice "conforma/internal/action/service"
	actionstore "conforma/internal/action/store"
	"conforma/internal/audit"
	findingadapters "conforma/internal/finding/adapters"
	findinghandler "conforma/internal/finding/handler"
	findingmetrics "conforma/internal/finding/metrics"
	findingservice "conforma/internal/finding/service"
	findingstore "conforma/internal/finding/store"
	httpapi "conforma/internal/http"
	"conforma/internal/identity"
	"conforma/internal/platform/config"
	"conforma/internal/platform/httpserver"
	"conforma/internal/platform/logger"
	"conforma/internal/platform/redis"
	"conforma/internal/stats"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. DATABASE_URL selects Postgres; otherwise everything runs in
	// memory, which is enough for local development and tests.
	var (
		findings   findingservice.Store
		actions    actionservice.Store
		auditStore audit.Store
		health     []httpapi.HealthCheck
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		findings = findingstore.NewPostgres(db)
		actions = actionstore.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		health = append(health, httpapi.HealthCheck{Name: "postgres", Probe: db.PingContext})
		log.Info("using postgres stores")
	} else {
		findings = findingstore.NewInMemory()
		actions = actionstore.NewInMemory()
		auditStore = audit.NewInMemory()
		log.Info("using in-memory stores")
	}

	// Optional audit fan-out to Kafka.
	var sinks []audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		log.Info("audit events fan out to kafka", "topic", cfg.Kafka.Topic)
	}
	trail := audit.NewPublisher(auditStore, sinks...)

	// Finding vertical.
	detector := findingservice.NewRecurrenceDetector(findings, findingservice.RecurrencePolicy{
		Lookback:  cfg.Recurrence.Lookback,
		Threshold: cfg.Recurrence.Threshold,
	})
	findingSvc := findingservice.New(findings, findingadapters.NewActionReader(actions), detector,
		findingservice.Checkpoints(cfg.StageCheckpoints),
		findingservice.WithLogger(log),
		findingservice.WithAuditPublisher(trail),
		findingservice.WithMetrics(findingmetrics.New()),
	)

	// Action vertical, bridged to findings through the gateway. The service
	// and verifier share one metrics handle; collectors register once.
	actionMetrics := actionmetrics.New()
	gateway := actionadapters.NewFindingGateway(findingSvc)
	actionSvc := actionservice.New(actions, gateway,
		actionservice.WithLogger(log),
		actionservice.WithAuditPublisher(trail),
		actionservice.WithMetrics(actionMetrics),
	)
	verifier := actionservice.NewEffectivenessVerifier(actions, gateway,
		actionservice.VerifierWithLogger(log),
		actionservice.VerifierWithAuditPublisher(trail),
		actionservice.VerifierWithMetrics(actionMetrics),
	)

	// Read side, optionally cached in Redis.
	statsOpts := []stats.Option{stats.WithLogger(log)}
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		statsOpts = append(statsOpts, stats.WithCache(stats.NewRedisCache(redisClient.Client), cfg.StatsCacheTTL))
		health = append(health, httpapi.HealthCheck{Name: "redis", Probe: redisClient.Health})
		log.Info("stats served from redis cache", "ttl", cfg.StatsCacheTTL)
	}
	statsSvc := stats.New(findings, actions, statsOpts...)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Logger:         log,
		TokenValidator: identity.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer),
		Handlers: []httpapi.Registrar{
			findinghandler.New(findingSvc, trail, log),
			actionhandler.New(actionSvc, verifier, trail, log),
			stats.NewHandler(statsSvc, log),
		},
		HealthChecks: health,
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
