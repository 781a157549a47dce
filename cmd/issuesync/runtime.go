package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/auth"
	"github.com/civic-desk/issue-sync/internal/backend"
	"github.com/civic-desk/issue-sync/internal/config"
	"github.com/civic-desk/issue-sync/internal/enricher"
	"github.com/civic-desk/issue-sync/internal/events"
	"github.com/civic-desk/issue-sync/internal/gateway"
	"github.com/civic-desk/issue-sync/internal/observability"
	"github.com/civic-desk/issue-sync/internal/persistence"
	"github.com/civic-desk/issue-sync/internal/pipeline"
	"github.com/civic-desk/issue-sync/internal/repository"
	"github.com/civic-desk/issue-sync/internal/service"
	"github.com/civic-desk/issue-sync/internal/store"
)

// runtime holds the wired pipeline and services shared by the commands.
type runtime struct {
	cfg           *config.Config
	logger        *zap.Logger
	metrics       *observability.Metrics
	postgres      *persistence.Postgres
	redis         *persistence.Redis
	dispatcher    events.Dispatcher
	store         *store.Store
	flags         *pipeline.FlagManager
	poller        *pipeline.Poller
	query         *service.QueryService
	mutations     *service.MutationService
	departments   *service.DepartmentService
	notifications *service.NotificationService
	tokens        *auth.TokenManager
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	rt.postgres = pg
	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	rt.redis = persistence.NewRedis(ctx, cfg.Redis, logger)

	rt.dispatcher = events.NewInMemoryDispatcher()
	rt.store = store.New(store.Options{
		MaxMissedCycles: cfg.Store.MaxMissedCycles,
		Dispatcher:      rt.dispatcher,
		Logger:          logger,
	})

	var (
		geocoder    gateway.Geocoder = gateway.NewNominatimClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.AcceptLanguage)
		media       gateway.MediaSigner
		profiles    gateway.ProfileSource
		deptRepo    repository.DepartmentRepository
		deptSource  pipeline.DepartmentSource
		cacheTTL    = cfg.Enrichment.CacheTTL()
		redisClient = rt.redis.Client
	)
	if rt.redis.Enabled() {
		geocoder = gateway.NewCachedGeocoder(geocoder, redisClient, cacheTTL, logger, rt.metrics)
	}
	if cfg.Media.Enabled() {
		signer, err := gateway.NewS3Signer(cfg.Media)
		if err != nil {
			logger.Warn("media signer disabled", zap.Error(err))
		} else {
			media = signer
		}
	}
	if pg.Enabled() {
		profiles = repository.NewProfileRepository(pg.Pool)
		if rt.redis.Enabled() {
			profiles = gateway.NewCachedProfiles(profiles, redisClient, cacheTTL, logger, rt.metrics)
		}
		deptRepo = repository.NewDepartmentRepository(pg.Pool)
		deptSource = deptRepo
	}

	gw := gateway.New(gateway.Dependencies{
		Geocoder:    geocoder,
		Media:       media,
		Profiles:    profiles,
		Logger:      logger,
		Metrics:     rt.metrics,
		CallTimeout: cfg.Enrichment.CallTimeout(),
	})
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout(), logger)

	rt.flags = pipeline.NewFlagManager(rt.store, cfg.Poller.FlagClearDelay(), logger)
	rt.poller = pipeline.NewPoller(pipeline.Dependencies{
		Issues:      client,
		Departments: deptSource,
		Enricher:    enricher.New(gw, cfg.Enrichment.PoolSize, logger),
		Store:       rt.store,
		Flags:       rt.flags,
		Logger:      logger,
		Metrics:     rt.metrics,
	})

	rt.query = service.NewQueryService(rt.store, cfg.Map)
	rt.mutations = service.NewMutationService(service.MutationDependencies{
		Store:   rt.store,
		Backend: client,
		Logger:  logger,
		Metrics: rt.metrics,
	})
	rt.departments = service.NewDepartmentService(deptRepo, rt.store, logger)
	rt.notifications = service.NewNotificationService(rt.dispatcher, logger, cfg.Notification)
	rt.tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, 0)
	return rt, nil
}

func (rt *runtime) Close() {
	rt.redis.Close()
	rt.postgres.Close()
}
