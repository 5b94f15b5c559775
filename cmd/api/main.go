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
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/focusfinder/server/cmd/api/api"
	"github.com/focusfinder/server/cmd/config"
	"github.com/focusfinder/server/lib/browser"
	"github.com/focusfinder/server/lib/focus"
	"github.com/focusfinder/server/lib/hub"
	"github.com/focusfinder/server/lib/logger"
	"github.com/focusfinder/server/lib/settings"
	"github.com/focusfinder/server/lib/store"
)

func main() {
	slogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load configuration from environment variables
	config, err := config.Load()
	if err != nil {
		slogger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	slogger.Info("server configuration", "config", config)

	// context cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.AddToContext(ctx, slogger)

	settingsStore := settings.NewFileStore(config.SettingsPath)
	userSettings, needsReset, err := settingsStore.Load()
	if err != nil {
		slogger.Error("failed to load settings", "path", config.SettingsPath, "err", err)
		os.Exit(1)
	}

	stateStore, err := store.Open(config.StateDBPath)
	if err != nil {
		slogger.Error("failed to open state store", "path", config.StateDBPath, "err", err)
		os.Exit(1)
	}
	if needsReset {
		slogger.Info("settings schema migrated, wiping persisted domain states")
		if err := stateStore.Reset(ctx); err != nil {
			slogger.Error("failed to reset state store", "err", err)
			os.Exit(1)
		}
	}

	tabs := hub.New(slogger)
	shim := browser.NewGateway(slogger)
	engine := focus.New(focus.Options{
		Log:           slogger,
		Settings:      userSettings,
		Store:         stateStore,
		SettingsStore: settingsStore,
		Tabs:          tabs,
		Browser:       shim,
	})
	// When the shim (re)connects, reconcile the registry against the tabs
	// that actually exist in the browser.
	shim.Bind(engine, func(connectCtx context.Context) {
		engine.ReconcileTabs(logger.AddToContext(connectCtx, slogger))
	})

	if err := engine.LoadPersisted(ctx); err != nil {
		slogger.Error("failed to load persisted domain states", "err", err)
		os.Exit(1)
	}

	scheduler := focus.NewScheduler(engine, slogger)
	engine.SetTickerReset(scheduler.Reset)
	scheduler.Start(ctx)

	// Out-of-band settings edits (popup UI writes, hand edits) re-enter the
	// engine through the file watcher.
	watcher, err := settings.Watch(ctx, settingsStore, func(s settings.Settings) {
		engine.ApplyExternalSettings(ctx, s)
	})
	if err != nil {
		slogger.Error("failed to watch settings file", "err", err)
		os.Exit(1)
	}
	defer watcher.Close()

	go runEvery(ctx, time.Duration(config.SaveIntervalSeconds)*time.Second, engine.Flush)
	go runEvery(ctx, time.Duration(config.TabSweepIntervalMinutes)*time.Minute, engine.SweepInvalidTabs)

	apiService, err := api.New(engine, tabs, shim)
	if err != nil {
		slogger.Error("failed to build api service", "err", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(
		chiMiddleware.Logger,
		chiMiddleware.Recoverer,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxWithLogger := logger.AddToContext(r.Context(), slogger)
				next.ServeHTTP(w, r.WithContext(ctxWithLogger))
			})
		},
	)
	apiService.Routes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: r,
	}

	go func() {
		slogger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("http server failed", "err", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	slogger.Info("shutdown signal received")

	shutdownCtx := logger.AddToContext(context.Background(), slogger)
	g, _ := errgroup.WithContext(shutdownCtx)

	g.Go(func() error {
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return apiService.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slogger.Error("server failed to shutdown", "err", err)
	}
	if err := stateStore.Close(); err != nil {
		slogger.Error("failed to close state store", "err", err)
	}
}

// runEvery calls fn on a fixed interval until ctx is cancelled.
func runEvery(ctx context.Context, every time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
