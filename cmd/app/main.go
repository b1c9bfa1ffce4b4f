package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/eventsapi/internal/app"
	"github.com/atvirokodosprendimai/eventsapi/internal/logger"
)

func main() {
	cmd := &cli.Command{
		Name:  "eventsapi",
		Usage: "Event management API with image attachments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("EVENTSAPI_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./eventsapi.sqlite",
				Sources: cli.EnvVars("EVENTSAPI_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "upload-dir",
				Value:   "./uploads",
				Sources: cli.EnvVars("EVENTSAPI_UPLOAD_DIR"),
				Usage:   "Directory for event images, served under /uploads/",
			},
			&cli.StringFlag{
				Name:    "env",
				Value:   "development",
				Sources: cli.EnvVars("EVENTSAPI_ENV"),
				Usage:   "Runtime environment; production switches to JSON logs",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Sources: cli.EnvVars("EVENTSAPI_LOG_LEVEL"),
				Usage:   "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("EVENTSAPI_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-user",
				Value:   "bootstrap",
				Sources: cli.EnvVars("EVENTSAPI_BOOTSTRAP_USER"),
				Usage:   "User name bound to the bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("EVENTSAPI_WEBHOOK_URL"),
				Usage:   "Outbox webhook target URL; events are only logged when empty",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("EVENTSAPI_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	log, err := logger.New(c.String("env"), c.String("log-level"))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg := app.Config{
		Addr:            c.String("addr"),
		DBPath:          c.String("db-path"),
		UploadDir:       c.String("upload-dir"),
		BootstrapAPIKey: c.String("bootstrap-api-key"),
		BootstrapUser:   c.String("bootstrap-user"),
		WebhookURL:      c.String("webhook-url"),
		WebhookSecret:   c.String("webhook-secret"),
	}

	server, closer, err := app.NewServer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			log.Error("close resources", zap.Error(closeErr))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("upload_dir", cfg.UploadDir))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return shutdown(server)
	case sig := <-sigCh:
		log.Info("received signal", zap.String("signal", sig.String()))
		return shutdown(server)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func shutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
