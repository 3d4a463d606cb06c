package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hyperifyio/cmdbot/internal/audit"
	"github.com/hyperifyio/cmdbot/internal/command"
	"github.com/hyperifyio/cmdbot/internal/config"
	"github.com/hyperifyio/cmdbot/internal/dispatch"
	"github.com/hyperifyio/cmdbot/internal/gateway"
	"github.com/hyperifyio/cmdbot/internal/logging"
	"github.com/hyperifyio/cmdbot/internal/natives"
	"github.com/hyperifyio/cmdbot/internal/sandbox"
	"github.com/hyperifyio/cmdbot/internal/store"
	"github.com/hyperifyio/cmdbot/internal/store/filestore"
	"github.com/hyperifyio/cmdbot/internal/store/sqlite"
)

// app is the composed process: one store, one engine, one native set.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      store.Store
	closeStore func() error
	engine     *sandbox.Engine
	natives    *command.Natives
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	n, err := natives.New(natives.Options{Started: time.Now()})
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("build natives: %w", err)
	}
	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		closeStore: closeStore,
		engine:     sandbox.New(cfg.Sandbox(), logger.With("component", "sandbox")),
		natives:    n,
	}, nil
}

func (a *app) Close() error { return a.closeStore() }

func (a *app) dispatcher(sender gateway.Sender) (*dispatch.Dispatcher, error) {
	return dispatch.New(dispatch.Options{
		Natives:      a.natives,
		Store:        a.store,
		Engine:       a.engine,
		Sender:       sender,
		Logger:       a.logger.With("component", "dispatch"),
		Audit:        audit.New(a.cfg.AuditDir, audit.NewRedactor(a.cfg.AuditRedact)),
		BotID:        a.cfg.BotID,
		ReplyUnknown: a.cfg.ReplyUnknown,
	})
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemory(), noop, nil
	case config.StoreFile:
		st, err := filestore.Open(cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return st, noop, nil
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
