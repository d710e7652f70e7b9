package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm/logger"

	"github.com/dlrs-ng/land-registry/internal/config"
	"github.com/dlrs-ng/land-registry/internal/db"
	"github.com/dlrs-ng/land-registry/pkg/api"
	"github.com/dlrs-ng/land-registry/pkg/cache"
	"github.com/dlrs-ng/land-registry/pkg/metrics"
	"github.com/dlrs-ng/land-registry/pkg/parcel"
	"github.com/dlrs-ng/land-registry/pkg/registry"
	"github.com/dlrs-ng/land-registry/pkg/store"
)

// app is the wired registry: store, service and HTTP handler.
type app struct {
	handler http.Handler
	service *registry.Service
	closers []func() error
	logger  *slog.Logger
}

// newApp builds every component named by cfg. Background work, such as the
// data file watcher, stops when ctx is cancelled.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{logger: log}

	schema, err := parcel.ParseGeometryKind(cfg.Registry.GeometrySchema)
	if err != nil {
		return nil, err
	}
	opts := []registry.Option{
		registry.WithLogger(log),
		registry.WithGeometrySchema(schema),
		registry.WithLandIDGenerator(parcel.NewLandIDGenerator(cfg.Registry.LandIDPrefix, nil)),
	}

	var records registry.Store
	switch cfg.Store.Backend {
	case config.StoreGorm:
		gormDB, err := db.Connect(cfg.Database, logger.Warn)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqlDB.Close)
		if err := db.Migrate(ctx, gormDB, cfg.Database.MigrationLock, log); err != nil {
			a.close()
			return nil, err
		}
		records = store.NewGormStore(gormDB)
		opts = append(opts, registry.WithAudit(store.NewAuditStore(gormDB)))
		log.Info("using database store", "type", cfg.Database.Type)

	case config.StoreFile:
		fileStore, err := store.NewFileStore(cfg.Store.DataFile, store.WithFileLogger(log))
		if err != nil {
			return nil, err
		}
		records = fileStore
		opts = append(opts, registry.WithAudit(registry.NewLogAuditLog(log)))
		if cfg.Store.Watch {
			go func() {
				if err := fileStore.Watch(ctx, store.DefaultWatchDebounce); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("parcel data watcher stopped", "error", err)
				}
			}()
		}
		log.Info("using file store", "path", fileStore.Path(), "watch", cfg.Store.Watch)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	viewCache, err := cache.New(ctx, cfg.Cache, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create view cache: %w", err)
	}
	if viewCache != nil {
		opts = append(opts, registry.WithViewCache(viewCache))
		a.closers = append(a.closers, viewCache.Close)
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, registry.WithMetrics(metrics.New(reg)))
		gatherer = reg
	}

	identity, err := identityExtractor(cfg.Auth, log)
	if err != nil {
		a.close()
		return nil, err
	}

	a.service = registry.NewService(records, opts...)
	a.handler = api.NewRouter(a.service, api.Config{
		Identity: identity,
		CORS:     cfg.CORS,
		Metrics:  gatherer,
		Logger:   log,
	})
	return a, nil
}

func identityExtractor(cfg config.AuthConfig, log *slog.Logger) (api.IdentityExtractor, error) {
	switch cfg.Mode {
	case config.AuthJWT:
		jwtCfg := cfg.JWT
		jwtCfg.Logger = log
		log.Info("using JWT auth",
			"roleClaim", jwtCfg.RoleClaim,
			"hasPublicKey", jwtCfg.PublicKeyPath != "")
		return api.NewJWTIdentityExtractor(jwtCfg)
	case config.AuthHeader:
		log.Info("using header-based auth (X-User-Role)")
		return api.HeaderIdentityExtractor, nil
	case config.AuthNone, "":
		log.Warn("authentication disabled, every caller has full access")
		return api.OpenIdentityExtractor, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("shutdown error", "error", err)
		}
	}
	a.closers = nil
}
