// Package app assembles the lifecycle engine and its collaborators from
// configuration. Both binaries share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toolshare-backend/internal/config"
	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/notify"
	"toolshare-backend/internal/payment"
	"toolshare-backend/internal/repository"
	"toolshare-backend/internal/repository/memory"
	"toolshare-backend/internal/repository/postgres"
	"toolshare-backend/internal/security"
	"toolshare-backend/internal/service"

	_ "github.com/lib/pq"
)

// Backend is a store plus the repositories that live outside transactions.
type Backend interface {
	repository.Transactor
	Users() repository.UserRepository
	Notifications() repository.NotificationRepository
	Ledger() repository.LedgerRepository
}

type App struct {
	Config  *config.Config
	Backend Backend
	Engine  *service.Engine
	Notes   service.NotificationService
	Tokens  security.TokenManager

	db *sql.DB
}

// New opens the configured store and wires the engine over it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var authz service.AuthorizationPort
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage; state is lost on restart")
		store := memory.NewStore()
		a.Backend, authz = store, store.Authorizer()
	default:
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := postgres.NewStore(db).WithTxRetries(cfg.Lifecycle.TxRetries)
		a.db = db
		a.Backend, authz = store, store.Authorizer()
	}

	sinks, err := buildSinks(ctx, cfg, a.Backend)
	if err != nil {
		a.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(a.Backend.Users(), sinks...)

	a.Engine = service.NewEngine(service.EngineDeps{
		Tx:       a.Backend,
		Authz:    authz,
		Payments: payment.NewLedgerProvider(a.Backend.Ledger()),
		Notifier: dispatcher,
	}, service.LifecycleConfig{
		ConflictRetries:  cfg.Lifecycle.ConflictRetries,
		MaxDurationHours: int32(cfg.Lifecycle.MaxDurationHours),
	}, service.HandoverConfig{
		Policy: domain.ExpiryPolicy{
			WarnAfter:   cfg.Handover.WarnAfter(),
			ExpireAfter: cfg.Handover.ExpireAfter(),
		},
		MaxAttempts: int32(cfg.Handover.MaxAttempts),
		HashCost:    cfg.Handover.HashCost,
	})
	a.Notes = service.NewNotificationService(a.Backend.Notifications())
	a.Tokens = security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTTL())
	return a, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Database connection established")
	return db, nil
}

// buildSinks enables each delivery channel that is configured.
func buildSinks(ctx context.Context, cfg *config.Config, b Backend) ([]notify.Sink, error) {
	n := cfg.Notifications
	var sinks []notify.Sink
	if n.InboxEnabled {
		sinks = append(sinks, notify.NewInboxSink(b.Notifications()))
	}
	if n.SendGrid.APIKey != "" {
		sinks = append(sinks, notify.NewEmailSink(n.SendGrid.APIKey, n.SendGrid.FromEmail, n.SendGrid.FromName))
	}
	if n.FCM.CredentialsFile != "" {
		push, err := notify.NewPushSink(ctx, n.FCM.CredentialsFile, n.FCM.TopicPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize push notifications: %w", err)
		}
		sinks = append(sinks, push)
	}
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("Notification sinks enabled", "sinks", names)
	return sinks, nil
}

// Ping reports whether the store is reachable.
func (a *App) Ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("Failed to close database", "error", err)
		}
	}
}
