package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/catalog"
	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/fyrsmithlabs/fixdesk/internal/escalation"
	"github.com/fyrsmithlabs/fixdesk/internal/feedback"
	"github.com/fyrsmithlabs/fixdesk/internal/matcher"
	"github.com/fyrsmithlabs/fixdesk/internal/resolver"
	"github.com/fyrsmithlabs/fixdesk/internal/services"
	"github.com/fyrsmithlabs/fixdesk/internal/session"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	store    *store.SQLiteStore
	catalog  *catalog.Catalog
	adapter  ai.Adapter
	natsConn *nats.Conn
	assigner escalation.Assigner
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// initDependencies opens the store, loads the catalog and connects the AI
// backend and the technician assigner.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	st, err := store.NewSQLite(cfg.Store.Path, cfg.Store.BusyTimeout.Duration())
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.Store.Path, err)
	}
	deps.store = st

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	deps.catalog = cat
	if cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		if err := cat.Watch(ctx, cfg.Catalog.Path, logger); err != nil {
			logger.Warn("catalog hot reload disabled", zap.Error(err))
		}
	}

	adapter, err := ai.New(cfg.AI, cat.Categories, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create AI adapter: %w", err)
	}
	deps.adapter = adapter

	switch cfg.Escalation.Assigner {
	case "nats":
		nc, err := escalation.Connect(cfg.NATS, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.natsConn = nc
		deps.assigner = escalation.NewNATSAssigner(nc, cfg.NATS.AssignSubject, cfg.NATS.EventPrefix,
			cfg.Escalation.RequestTimeout.Duration(), logger)
		logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))
	default:
		deps.assigner = escalation.NewLocalAssigner(logger)
	}

	return deps, nil
}

// initServices builds the domain services on top of deps.
func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (services.Registry, error) {
	res := resolver.New(deps.store, deps.adapter, logger)
	mt := matcher.New(deps.store, deps.adapter, matcher.ConfigFromConfig(cfg.Matcher), logger)
	fb := feedback.NewService(deps.store, deps.adapter, feedback.ConfigFromConfig(cfg.Feedback), logger)
	escCfg := escalation.ConfigFromConfig(cfg.Escalation)
	escCfg.SafetyTerm = deps.catalog.IsSafetyTerm
	esc := escalation.NewService(deps.store, deps.adapter, deps.assigner, escCfg, logger)

	sess, err := session.NewService(session.Options{
		Store:      deps.store,
		Resolver:   res,
		Matcher:    mt,
		Feedback:   fb,
		Escalation: esc,
		Catalog:    deps.catalog,
		Adapter:    deps.adapter,
		Config:     session.ConfigFromConfig(cfg.Session),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return services.NewRegistry(services.Options{
		Sessions:   sess,
		Resolver:   res,
		Matcher:    mt,
		Feedback:   fb,
		Escalation: esc,
		Catalog:    deps.catalog,
		Store:      deps.store,
	}), nil
}
