package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/dynamo"
	transporthttp "github.com/go-auth-nosql/internal/transport/http"
	"github.com/urfave/cli/v3"
)

func serve(ctx context.Context, _ *cli.Command) error {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.OutboxDrainInterval > 0 {
		go a.dispatcher.Run(ctx, a.cfg.OutboxDrainInterval)
		slog.Info("scheduled outbox drain enabled", "interval", a.cfg.OutboxDrainInterval)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.AppPort),
		Handler:      transporthttp.NewRouter(a.cfg, a.deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", a.cfg.AppPort, "env", a.cfg.AppEnv, "signup_mode", a.cfg.SignupMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func bootstrap(ctx context.Context, _ *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
	return nil
}

func drainOutbox(ctx context.Context, cmd *cli.Command) error {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	res, err := a.dispatcher.Drain(ctx, domain.DrainRequest{
		Limit:       int(cmd.Int("limit")),
		MaxAttempts: int(cmd.Int("max-attempts")),
		Purpose:     cmd.String("purpose"),
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cleanupOutbox(ctx context.Context, cmd *cli.Command) error {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	n, err := a.dispatcher.Cleanup(ctx, cmd.Duration("retention"))
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"deleted": n})
}

func outboxStats(ctx context.Context, _ *cli.Command) error {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	stats, err := a.dispatcher.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
