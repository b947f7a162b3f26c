package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/blockrun/internal/actions"
	"github.com/rendis/blockrun/internal/hinova"
	"github.com/rendis/blockrun/internal/logging"
	"github.com/rendis/blockrun/internal/secrets"
	"github.com/rendis/blockrun/internal/store"
	"github.com/rendis/blockrun/internal/validation"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        Config
	logger     *slog.Logger
	store      store.Store
	creds      *store.CachedCredentialStore
	resolver   *secrets.Resolver
	validator  *validation.JSONSchemaValidator
	dispatcher *actions.Dispatcher
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(h)), nil
}

// newApp opens the store, runs migrations and wires the dispatcher.
func newApp(ctx context.Context, cfg Config) (*app, error) {
	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}

	vaultCfg, err := cfg.vaultConfig()
	if err != nil {
		return nil, err
	}
	cipher, err := secrets.NewCipher(vaultCfg)
	if err != nil {
		return nil, err
	}

	if path, ok := strings.CutPrefix(cfg.DBPath, "file:"); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	creds := store.NewCachedCredentialStore(st, cfg.CredentialCacheTTL)
	resolver := secrets.NewResolver(creds, cipher)

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		st.Close()
		return nil, err
	}

	client := actions.NewAPIClient(actions.HTTPConfig{
		BaseURL:         cfg.HinovaBaseURL,
		MaxResponseBody: cfg.MaxResponseBody,
		Timeout:         cfg.HTTPTimeout,
	})
	registry := actions.NewRegistry()
	if err := hinova.Register(registry, client); err != nil {
		st.Close()
		return nil, err
	}

	opts := []actions.DispatcherOption{actions.WithValidator(validator), actions.WithLogger(logger)}
	if cfg.RecordExecutions {
		opts = append(opts, actions.WithRecorder(st))
	}
	dispatcher, err := actions.NewDispatcher(registry, resolver, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}

	logger.Debug("blockrun ready",
		slog.String("db_path", cfg.DBPath),
		slog.Int("actions", registry.Count()))

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		creds:      creds,
		resolver:   resolver,
		validator:  validator,
		dispatcher: dispatcher,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
