package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/chi-demo/app"
	demomw "github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-docstore/pkg/docstore/api"
	"github.com/tendant/simple-docstore/pkg/docstore/config"
	"github.com/tendant/simple-docstore/pkg/docstore/metrics"
)

func main() {
	// Load configuration from .env and the environment
	cfg, err := config.Load(config.WithDotEnv(".env"), config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)

	ctx := context.Background()
	svc, cleanup, err := cfg.BuildService(ctx, logger, recorder)
	if err != nil {
		slog.Error("Failed to build document store service", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := svc.CheckAvailable(ctx); err != nil {
		slog.Warn("Object store not reachable at startup", "backend", cfg.Backend, "err", err)
	}

	var handlerOpts []api.HandlerOption
	handlerOpts = append(handlerOpts, api.WithLogger(logger))
	if cfg.JWTSecret != "" {
		handlerOpts = append(handlerOpts, api.WithTokenAuth(jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)))
	}
	handler := api.NewHandler(svc, handlerOpts...)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	r.Handle("/metrics", metrics.HTTPHandler(reg))
	r.Group(func(r chi.Router) {
		if cfg.APIKeySHA256 != "" {
			apiKeyMiddleware, err := demomw.ApiKeyMiddleware(demomw.ApiKeyConfig{
				APIKeys: map[string]string{"docstore": cfg.APIKeySHA256},
			})
			if err != nil {
				slog.Error("Failed to initialize API key middleware", "err", err)
				os.Exit(1)
			}
			r.Use(apiKeyMiddleware)
		}
		r.Mount("/api/v1", handler.Routes())
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		slog.Info("Document store server starting",
			"port", cfg.Port,
			"backend", cfg.Backend,
			"folder", cfg.Folder,
			"read_only", cfg.ReadOnly,
			"events", cfg.Events.Sink)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}

	slog.Info("Server exiting")
}
