package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"credlife/internal/credential/handler"
	jwttoken "credlife/internal/jwt_token"
	"credlife/internal/platform/config"
	"credlife/internal/platform/logger"
	httptransport "credlife/internal/transport/http"
	"credlife/pkg/platform/middleware/request"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP API, the expiry scanner and the outbox relay",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cCtx.String("env-file"))
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogLevel)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.TokenTTL)
	tokens.SetEnv(cfg.Server.Environment)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Tokens:         jwttoken.NewJWTServiceAdapter(tokens),
		API:            []httptransport.APIHandler{handler.New(a.service, log)},
		Health:         a.health,
		Metrics:        request.NewMetrics(),
		MetricsHandler: promhttp.Handler(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.WriteTimeout,
		TrustedProxies: cfg.TrustedProxyPrefixes(),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.startBackground(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server",
			"addr", cfg.Server.Addr,
			"env", cfg.Server.Environment,
			"scanner_enabled", cfg.Lifecycle.ScannerEnabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
