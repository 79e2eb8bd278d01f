package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"veritrail/internal/auditlog"
	auditfacets "veritrail/internal/auditlog/facets"
	audithandler "veritrail/internal/auditlog/handler"
	auditmetrics "veritrail/internal/auditlog/metrics"
	obshandler "veritrail/internal/observation/handler"
	obsservice "veritrail/internal/observation/service"
	obsstore "veritrail/internal/observation/store"
	"veritrail/internal/platform/config"
	"veritrail/internal/platform/httpserver"
	"veritrail/internal/platform/logger"
	"veritrail/internal/platform/postgres"
	platformredis "veritrail/internal/platform/redis"
	"veritrail/internal/securityevents"
	"veritrail/internal/tenant"
	tenanthandler "veritrail/internal/tenant/handler"
	tenantservice "veritrail/internal/tenant/service"
	tenantstore "veritrail/internal/tenant/store"
	"veritrail/internal/tenantscope"
	scopemetrics "veritrail/internal/tenantscope/metrics"
	httptransport "veritrail/internal/transport/http"
	"veritrail/pkg/platform/middleware/auth"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	log := logger.New()

	if err := run(log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := postgres.Migrate(cfg.DB); err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Security events are optional: without brokers, violations still hit
	// logs and metrics.
	var security *securityevents.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		security, err = securityevents.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.SecurityTopic, log)
		if err != nil {
			return err
		}
		go security.Run(ctx)
	}

	scopeOpts := []tenantscope.Option{
		tenantscope.WithMetrics(scopemetrics.New()),
	}
	if security != nil {
		scopeOpts = append(scopeOpts, tenantscope.WithSecurityReporter(security))
	}
	scopes, err := tenantscope.NewManager(pool, log, scopeOpts...)
	if err != nil {
		return err
	}

	auditMetrics := auditmetrics.New()
	recorder, err := auditlog.NewRecorder(log,
		auditlog.WithRecorderMetrics(auditMetrics),
		auditlog.WithRetentionYears(cfg.Audit.RetentionYears),
	)
	if err != nil {
		return err
	}
	reader, err := auditlog.NewReader(pool, log, auditlog.WithReaderMetrics(auditMetrics))
	if err != nil {
		return err
	}
	facets, err := auditfacets.New(reader, rdb, log)
	if err != nil {
		return err
	}

	observations, err := obsservice.New(scopes, obsstore.NewPostgres(), recorder, log)
	if err != nil {
		return err
	}

	tenantOpts := []tenantservice.Option{}
	if security != nil {
		tenantOpts = append(tenantOpts, tenantservice.WithSecurityReporter(security))
	}
	tenants, err := tenantservice.New(scopes, tenantstore.NewPostgres(), recorder, log, tenantOpts...)
	if err != nil {
		return err
	}

	validator, err := auth.NewJWTValidator(cfg.Auth.JWTSigningKey)
	if err != nil {
		return err
	}

	var reporter auth.SecurityReporter
	if security != nil {
		reporter = security
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Observations:  obshandler.New(observations, log),
		Audit:         audithandler.New(scopes, reader, facets, log),
		Tenants:       tenanthandler.New(tenants, log),
		Validator:     validator,
		TenantGate:    tenant.NewGate(pool),
		Security:      reporter,
		OperatorToken: cfg.Auth.OperatorToken,
		Logger:        log,
	})

	srv := httpserver.New(cfg.HTTP.Addr, router)
	return httpserver.Run(ctx, srv, cfg.HTTP.ShutdownTimeout, log)
}
