// Command postmaster runs the priority mail scheduler as a daemon. It
// loads a YAML configuration, delivers through the configured SMTP relay
// and serves the HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/api"
	audithook "github.com/xraph/postmaster/audit_hook"
	"github.com/xraph/postmaster/engine"
	"github.com/xraph/postmaster/transport/smtp"
)

func main() {
	var (
		configPath = flag.String("config", "postmaster.yaml", "path to the YAML configuration")
		addr       = flag.String("addr", ":8080", "HTTP bind address")
		debug      = flag.Bool("debug", false, "enable debug logging")
		audit      = flag.Bool("audit", false, "log an audit record for every message lifecycle event")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(*configPath, *addr, *audit, logger); err != nil {
		logger.Error("postmaster exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath, addr string, audit bool, logger *slog.Logger) error {
	cfg, err := postmaster.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []engine.Option{engine.WithLogger(logger)}
	if audit {
		opts = append(opts, engine.WithExtension(audithook.New(audithook.SlogRecorder(logger.With(slog.String("component", "audit"))))))
	}
	tr := smtp.New(cfg.Mail, smtp.WithLogger(logger))
	eng, err := engine.Build(ctx, cfg, tr, opts...)
	if errors.Is(err, postmaster.ErrDisabled) {
		logger.Info("scheduler disabled, set 'enabled: true' to run it")
		return nil
	}
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(eng, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", slog.String("addr", addr), slog.String("mode", eng.Mode().String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		logger.Error("http server failed", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatch.ShutdownTimeout)
	defer cancel()
	if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
		logger.Warn("http shutdown", slog.String("error", shutErr.Error()))
	}
	if stopErr := eng.Stop(shutdownCtx); stopErr != nil {
		return stopErr
	}
	return err
}
