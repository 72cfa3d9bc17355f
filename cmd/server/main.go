package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"keepsake/internal/bootstrap"
	jwttoken "keepsake/internal/jwt_token"
	livenesshandler "keepsake/internal/liveness/handler"
	liveness "keepsake/internal/liveness/service"
	"keepsake/internal/platform/config"
	"keepsake/internal/platform/httpserver"
	"keepsake/internal/platform/logger"
	"keepsake/internal/platform/metrics"
	releasehandler "keepsake/internal/release/handler"
	httptransport "keepsake/internal/transport/http"
	vaulthandler "keepsake/internal/vault/handler"
)

// auditBuffer sizes the asynchronous audit queue of the server.
const auditBuffer = 1024

// main wires high-level dependencies, exposes the HTTP router and runs the
// sweep scheduler. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{Metrics: true, AsyncAudit: auditBuffer})
	if err != nil {
		return err
	}
	defer app.Close()

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	health := make(map[string]httptransport.HealthCheck)
	for name, check := range app.HealthChecks() {
		health[name] = check
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:      log,
		Validator:   jwttoken.NewJWTServiceAdapter(jwtService),
		Metrics:     metrics.New(),
		PublicLimit: app.PublicLimit,
		Handlers: []any{
			vaulthandler.New(app.Vaults, log),
			livenesshandler.New(app.Liveness, log),
			releasehandler.New(app.Release, log),
		},
		Health: health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting keepsake",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"postgres", app.DB != nil,
		"redis", app.Redis != nil,
		"kafka", app.Kafka != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if cfg.Liveness.SchedulerEnabled {
		scheduler := liveness.NewScheduler(app.Liveness, cfg.Liveness.SweepInterval, log)
		g.Go(func() error {
			err := scheduler.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
