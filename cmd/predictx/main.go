package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/predizer/predictx-client/internal/app"
	"github.com/predizer/predictx-client/internal/config"
	"github.com/predizer/predictx-client/pkg/logger"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage(os.Stderr)
		return errUsage
	}

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New("predictx-cli", cfg.LogLevel)
	log.Debug("starting",
		slog.String("command", args[0]),
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("session_backend", cfg.SessionBackend),
	)

	// Cancel in-flight requests on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithCorrelationID(ctx, uuid.NewString())

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	runErr := cmd.run(ctx, application, args[1:], stdout)
	if err := application.Close(); err != nil {
		log.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
	return runErr
}
