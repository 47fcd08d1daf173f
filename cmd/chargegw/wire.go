package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ericfisherdev/chargegw/internal/adapter/driven/filestore"
	"github.com/ericfisherdev/chargegw/internal/adapter/driven/redisstore"
	"github.com/ericfisherdev/chargegw/internal/adapter/driven/secretbox"
	sqliteadapter "github.com/ericfisherdev/chargegw/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/chargegw/internal/adapter/driven/vendor"
	"github.com/ericfisherdev/chargegw/internal/adapter/driven/vendorauth"
	"github.com/ericfisherdev/chargegw/internal/application"
	"github.com/ericfisherdev/chargegw/internal/config"
	"github.com/ericfisherdev/chargegw/internal/domain/model"
	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
	"github.com/ericfisherdev/chargegw/internal/metrics"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	store    driven.TokenStore
	sessions *application.SessionManager
	charger  *application.ChargerService

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(a.registry)

	sealer, err := secretbox.New(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	if !cfg.HasSecretKey() {
		logger.Warn("CHARGEGW_SECRET_KEY not set, token cache is stored unencrypted")
	}

	a.store, err = a.openStore(ctx, sealer)
	if err != nil {
		a.Close()
		return nil, err
	}

	vendorClient, err := vendor.NewClient(cfg.VendorBaseURL, m, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	driver := vendorauth.NewChromeDriver(cfg.BrowserPath, cfg.BrowserHeadless, vendorauth.DefaultSelectors, logger)
	auth := vendorauth.NewAuthenticator(vendorauth.Config{
		AuthorizeURL:    cfg.AuthorizeURL,
		TokenURL:        cfg.TokenURL,
		RedirectURL:     cfg.RedirectURL,
		Scopes:          cfg.OAuthScopes,
		Timeout:         cfg.LoginTimeout,
		DefaultLifetime: cfg.TokenLifetime,
	}, driver, a.store, logger)

	creds := model.LoginCredentials{
		Email:              cfg.AccountEmail,
		Password:           cfg.AccountPassword,
		OAuthClientID:      cfg.OAuthClientID,
		VendorClientID:     cfg.VendorClientID,
		VendorClientSecret: cfg.VendorClientSecret,
	}

	a.sessions = application.NewSessionManager(a.store, auth, creds, m, logger)
	a.charger = application.NewChargerService(a.sessions, vendorClient, cfg.ChargerID, cfg.EVSEID, logger)

	return a, nil
}

func (a *app) openStore(ctx context.Context, sealer *secretbox.Sealer) (driven.TokenStore, error) {
	switch a.cfg.TokenStore {
	case config.StoreSQLite:
		db, err := sqliteadapter.NewDB(ctx, a.cfg.TokenPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return nil, err
		}
		a.logger.Info("token store opened", "kind", "sqlite", "path", a.cfg.TokenPath)
		return sqliteadapter.NewCredentialRepo(db, sealer, a.logger), nil

	case config.StoreRedis:
		store, closeFn, err := redisstore.New(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, sealer, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeFn)
		a.logger.Info("token store opened", "kind", "redis", "addr", a.cfg.RedisAddr)
		return store, nil

	case config.StoreFile:
		a.logger.Info("token store opened", "kind", "file", "path", a.cfg.TokenPath)
		return filestore.New(a.cfg.TokenPath, sealer, a.logger), nil

	default:
		return nil, fmt.Errorf("unknown token store %q", a.cfg.TokenStore)
	}
}

// Close releases store connections in reverse order of opening.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("error closing token store", "error", err)
	}
}
