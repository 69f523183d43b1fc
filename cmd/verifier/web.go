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

	"verifier/internal/admin"
	"verifier/internal/config"
	"verifier/internal/discord"
	"verifier/internal/keys"
	"verifier/internal/logsink"
	"verifier/internal/overrides"
	"verifier/internal/portal"
	"verifier/internal/session"
	"verifier/internal/store"
)

func runServer(ctx context.Context, cfg *config.Config, logsinkCfg logsink.Config, addr string) error {
	st, err := store.MakeStore(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	if logsinkCfg.Enabled() {
		sink, err := logsink.New(ctx, logsinkCfg)
		if err != nil {
			return fmt.Errorf("failed to create log sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		slog.SetDefault(slog.New(logsink.NewMulti(slog.Default().Handler(), sink)))
	}

	sessions := session.NewStorage(st)
	cookies := session.NewCookies(cfg.Session)

	var api discord.API
	if cfg.Mocks.Enable {
		slog.Warn("Discord API mocks enabled; no real Discord calls will be made")
		api = discord.NewMock()
	} else {
		api = discord.NewClient(cfg.Discord)
	}

	ov, err := overrides.NewService(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to load override state: %w", err)
	}

	keyStorage := keys.NewStorage(st)

	mux := http.NewServeMux()
	if err := registerStaticAssets(mux); err != nil {
		return fmt.Errorf("failed to register static assets: %w", err)
	}

	portalHandler := portal.NewHandler(cfg, api, sessions, cookies, ov, keyStorage)
	portalHandler.Register(mux)

	owner := admin.New(cfg.Owner.ID, sessions, cookies)

	keyHandler := keys.NewHandler(keyStorage, api, ov, sessions, cookies)
	keyHandler.Register(mux, owner)

	overrideHandler := overrides.NewHandler(ov, api, cfg.Owner.ID)
	overrideHandler.Register(mux, owner)

	ro := &readyOnce{}
	ro.Add(ReadyFunc(api.Ready))
	mux.Handle("/ready", ro)

	server := &http.Server{
		Addr:    addr,
		Handler: WithMiddleware(mux),
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Serving verifier portal", "address", addr, "base_url", cfg.BaseURL)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)
		return gracefulShutdown(server)
	}
}

func gracefulShutdown(svr *http.Server) error {
	// Give outstanding requests 25 seconds to complete (kubernetes has 30 second grace period)
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := svr.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", "error", err)
		if closeErr := svr.Close(); closeErr != nil {
			slog.Error("Server close error", "error", closeErr)
		}
		return err
	}
	return nil
}
