package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/animus-labs/freezer/internal/config"
	"github.com/animus-labs/freezer/internal/engine"
	"github.com/animus-labs/freezer/internal/notify"
	"github.com/animus-labs/freezer/internal/platform/auditlog"
	platformstore "github.com/animus-labs/freezer/internal/platform/objectstore"
	"github.com/animus-labs/freezer/internal/platform/postgres"
	"github.com/animus-labs/freezer/internal/state"
	"github.com/animus-labs/freezer/internal/storage/objectstore"
)

type app struct {
	ns      config.Namespace
	fs      billy.Filesystem
	states  state.Store
	store   *objectstore.MinioStore
	s3Cfg   platformstore.Config
	engine  *engine.Engine
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// openNamespace wires the mounted namespace and its state store only.
func openNamespace(ctx context.Context, f config.File) (*app, error) {
	ns, err := config.NamespaceFromEnv(f)
	if err != nil {
		return nil, invalidConfig(err)
	}
	info, err := os.Stat(ns.MountPath)
	if err != nil {
		return nil, unavailable(fmt.Errorf("mount path: %w", err))
	}
	if !info.IsDir() {
		return nil, unavailable(fmt.Errorf("mount path %s is not a directory", ns.MountPath))
	}

	a := &app{ns: ns, fs: osfs.New(ns.MountPath)}
	switch ns.StateBackend {
	case config.StateBackendSQLite:
		store, err := state.OpenSQLiteStore(ctx, ns.StateDSN)
		if err != nil {
			return nil, unavailable(err)
		}
		a.states = store
		a.closers = append(a.closers, store.Close)
	default:
		store, err := state.NewFileStore(a.fs)
		if err != nil {
			return nil, invalidConfig(err)
		}
		a.states = store
	}
	return a, nil
}

func (a *app) openObjectStore(f config.File) error {
	s3Cfg, err := platformstore.ConfigFromEnv(config.S3Base(f))
	if err != nil {
		return invalidConfig(fmt.Errorf("object store: %w", err))
	}
	store, err := objectstore.NewMinioStore(s3Cfg)
	if err != nil {
		return invalidConfig(err)
	}
	a.store = store
	a.s3Cfg = s3Cfg
	return nil
}

// openApp wires everything a scan-and-apply pass needs.
func openApp(ctx context.Context, logger *slog.Logger, f config.File) (*app, error) {
	a, err := openNamespace(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := a.openObjectStore(f); err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := buildNotifier(logger, f)
	if err != nil {
		a.Close()
		return nil, err
	}

	var ledger engine.Ledger
	dbCfg, ok, err := postgres.ConfigFromEnv(f.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, invalidConfig(fmt.Errorf("database: %w", err))
	}
	if ok {
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			a.Close()
			return nil, unavailable(fmt.Errorf("database: %w", err))
		}
		a.closers = append(a.closers, db.Close)
		if err := auditlog.EnsureSchema(ctx, db); err != nil {
			a.Close()
			return nil, unavailable(err)
		}
		ledger = &auditlog.Ledger{DB: db, Actor: actor()}
	}

	a.engine, err = engine.New(engine.Config{
		FS:            a.fs,
		States:        a.states,
		Tagger:        a.store,
		Notifier:      notifier,
		Ledger:        ledger,
		Logger:        logger,
		Root:          a.ns.ScanRoot,
		DisplayPrefix: a.ns.MountPath,
	})
	if err != nil {
		a.Close()
		return nil, invalidConfig(err)
	}
	return a, nil
}

func buildNotifier(logger *slog.Logger, f config.File) (notify.Notifier, error) {
	tgCfg, ok, err := notify.TelegramConfigFromEnv(config.TelegramBase(f))
	if err != nil {
		return nil, invalidConfig(fmt.Errorf("telegram: %w", err))
	}
	if !ok {
		logger.Info("telegram not configured, notifications go to the log")
		return notify.LogNotifier{Logger: logger}, nil
	}
	return notify.NewTelegram(tgCfg)
}

func (a *app) checkBucket(ctx context.Context) error {
	if a.store == nil {
		return errors.New("object store not configured")
	}
	return platformstore.CheckBucket(ctx, a.store.Client(), a.s3Cfg)
}

func actor() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "freezer"
	}
	return "freezer@" + host
}
