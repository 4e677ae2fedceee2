package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"learnshell/framework/httpserver"
	"learnshell/framework/router"
	"learnshell/internal/api"
	"learnshell/internal/config"
	"learnshell/internal/i18n"
	"learnshell/internal/logging"
	"learnshell/internal/markdown"
	"learnshell/internal/store"
	"learnshell/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	catalog, err := i18n.NewCatalog(cfg.DefaultLocale)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout)
	clientStores := store.NewMemory()
	registry := web.RegisterRoutes(router.NewRegistry(), client)

	handler, err := httpserver.New(httpserver.Config{
		Registry:    registry,
		DefaultKey:  cfg.DefaultRoute,
		NotFoundKey: cfg.NotFoundRoute,
		Shell:       web.Shell,
		SessionContext: func(r *http.Request, clientID string) context.Context {
			ctx := store.WithStore(r.Context(), clientStores.Client(clientID))
			return i18n.WithLocalizer(ctx, catalog.Localizer(r.Header.Get("Accept-Language")))
		},
		Static: httpserver.StaticMount{
			URLPrefix: "/static/",
			Dir:       cfg.StaticDir,
		},
		Stylesheets: map[string]func() string{
			"chroma.css": markdown.Stylesheet,
		},
		CachePolicies: httpserver.DefaultCachePolicies(),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("handler setup: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkCtx, cancel := context.WithTimeout(ctx, cfg.APITimeout)
	if err := client.Health(checkCtx); err != nil {
		logger.Warn("learning api unreachable", zap.String("base_url", cfg.APIBaseURL), zap.Error(err))
	}
	cancel()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("learning shell listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("learning shell stopped")
	return nil
}
