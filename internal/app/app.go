package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/eventsapi/internal/adapters/events"
	"github.com/atvirokodosprendimai/eventsapi/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/eventsapi/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/eventsapi/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/eventsapi/internal/adapters/storage"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/ports"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/usecase"
	"github.com/atvirokodosprendimai/eventsapi/migrations"
)

const (
	outboxInterval  = 2 * time.Second
	outboxBatchSize = 100
	webhookTimeout  = 10 * time.Second
)

type Config struct {
	Addr            string
	DBPath          string
	UploadDir       string
	BootstrapAPIKey string
	BootstrapUser   string
	WebhookURL      string
	WebhookSecret   string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServer opens and migrates the database, wires the services and starts
// the outbox dispatcher. The returned closer must run after the server has
// shut down.
func NewServer(ctx context.Context, cfg Config, log *zap.Logger) (*http.Server, io.Closer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB, log); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	eventStore := sqliteadapter.NewEventStore(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	userRepo := sqliteadapter.NewUserRepository(db)
	auditTrailRepo := sqliteadapter.NewAuditTrailRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)
	files := storage.NewLocalStore(cfg.UploadDir)

	eventService := usecase.NewEventService(eventStore, files, log.Named("events"))
	authService := usecase.NewAuthService(apiKeyRepo, userRepo)
	auditService := usecase.NewAuditService(auditTrailRepo)

	if cfg.BootstrapAPIKey != "" {
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		user, err := authService.Bootstrap(bootstrapCtx, cfg.BootstrapAPIKey, cfg.BootstrapUser)
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("bootstrap api key ready", zap.String("user_id", user.ID), zap.String("email", user.Email))
	}

	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg, log), usecase.OutboxDispatcherConfig{
		Interval:  outboxInterval,
		BatchSize: outboxBatchSize,
		Logger:    log.Named("outbox"),
	})
	dispatcher.Start(context.Background())

	handler := httpapi.NewHandler(eventService, authService, auditService, log.Named("http"), httpapi.Options{
		UploadDir:     files.Dir(),
		OutboxMetrics: dispatcher.Metrics,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{eventService, dispatcher, db}}, nil
}

func newPublisher(cfg Config, log *zap.Logger) ports.EventPublisher {
	if cfg.WebhookURL == "" {
		return events.NewLogPublisher(log.Named("publisher"))
	}
	if cfg.WebhookSecret == "" {
		log.Warn("webhook secret is empty, deliveries are signed with an empty key")
	}
	log.Info("outbox webhook delivery enabled", zap.String("url", cfg.WebhookURL))
	return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, webhookTimeout)
}
