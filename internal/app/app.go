// Package app wires configuration, stores and use cases into one graph shared
// by the api, worker and scanctl binaries.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/adapter/chromedp_solver"
	"github.com/user/bookscan-service/internal/adapter/flaresolverr"
	natsadapter "github.com/user/bookscan-service/internal/adapter/nats"
	"github.com/user/bookscan-service/internal/adapter/postgres"
	redisadapter "github.com/user/bookscan-service/internal/adapter/redis"
	"github.com/user/bookscan-service/internal/catalog"
	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/internal/usecase"
	"github.com/user/bookscan-service/internal/worker"
	"github.com/user/bookscan-service/pkg/config"
	"github.com/user/bookscan-service/pkg/metrics"
	"github.com/user/bookscan-service/pkg/proxy"
)

// App holds every long-lived dependency.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	DB    *pgxpool.Pool
	Redis *redis.Client
	NATS  *nats.Conn

	Items     repository.ItemRepository
	ParseLogs repository.ParseLogRepository
	Presence  repository.PresenceRepository
	Queue     repository.TaskQueueRepository

	Jobs         *usecase.JobManager
	Credentials  *usecase.CredentialStore
	Catalog      *catalog.Client
	Pending      *usecase.PendingQueue
	Limiter      *usecase.LoadAwareLimiter
	Orchestrator *usecase.ParseOrchestrator
	Sweep        *usecase.DiscountSweep
	Search       *usecase.SmartSearch

	closers []func()
}

// New connects to PostgreSQL and Redis (and NATS when configured) and builds
// the use cases. reg receives the service's collectors.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New(reg)}

	db, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := db.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("PostgreSQL connection pool established")

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = a.Redis.Close() })
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Redis connection established")

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("bookscan"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.NATS = nc
		a.closers = append(a.closers, nc.Close)
		logger.Info("NATS connection established", zap.String("subject", cfg.NotifySubject))
	}

	a.build()
	return a, nil
}

func (a *App) build() {
	cfg := a.Config

	a.Items = postgres.NewItemRepo(a.DB)
	a.ParseLogs = postgres.NewParseLogRepo(a.DB)
	a.Presence = redisadapter.NewPresenceRepo(a.Redis, 2*cfg.PresenceWindow())
	a.Queue = redisadapter.NewTaskQueueRepo(a.Redis)

	a.Jobs = usecase.NewJobManager(a.Queue, a.Metrics, a.Logger)
	a.Credentials = usecase.NewCredentialStore(
		redisadapter.NewCredentialRepo(a.Redis),
		a.Jobs,
		cfg.CatalogStaticToken,
		cfg.RefreshCountdown(),
		a.Logger.Named("credentials"),
	)

	opts := catalog.DefaultOptions()
	opts.BaseURL = cfg.CatalogAPIURL
	opts.SiteURL = cfg.CatalogSiteURL
	opts.ImageURL = cfg.CatalogImageURL
	opts.CityID = cfg.CatalogCityID
	opts.UserID = cfg.CatalogUserID
	opts.DelayMin = cfg.CatalogDelayMin()
	opts.DelayMax = cfg.CatalogDelayMax()
	opts.MaxRetries = cfg.CatalogMaxRetries
	opts.Timeout = cfg.CatalogTimeout()
	opts.RPS = cfg.CatalogRPS
	opts.RefreshWait = cfg.RefreshWait()
	opts.RefreshPoll = cfg.RefreshPoll()
	opts.CacheTTL = cfg.CatalogCacheTTL()
	opts.CacheSize = cfg.CatalogCacheSize
	a.Catalog = catalog.NewClient(opts, a.Credentials, a.Logger.Named("catalog"),
		catalog.WithProxyManager(proxy.NewManager(cfg.Proxies())),
		catalog.WithMetrics(a.Metrics),
	)

	a.Pending = usecase.NewPendingQueue(redisadapter.NewPendingRepo(a.Redis), cfg.PendingTTL())
	a.Limiter = usecase.NewLoadAwareLimiter(
		usecase.NewPresenceSignal(a.Presence, cfg.PresenceWindow()),
		int64(cfg.LoadThreshold),
		cfg.BudgetNormal,
		cfg.BudgetLoaded,
		a.Logger.Named("limiter"),
	)
	sessions := func() usecase.ProductSearcher { return a.Catalog.Session() }
	a.Orchestrator = usecase.NewParseOrchestrator(
		a.Items, a.ParseLogs, sessions, a.Credentials, a.Limiter, a.Pending, a.Metrics, a.Logger.Named("parse"),
	)
	a.Sweep = usecase.NewDiscountSweep(sessions, a.Items, a.ParseLogs, usecase.SweepOptions{
		MinDiscount: cfg.SweepMinDiscount,
	}, a.Metrics, a.Logger.Named("sweep"))
	a.Search = usecase.NewSmartSearch(a.Items, a.Jobs, a.Logger.Named("search"))
}

// Notifier returns the NATS sink, or a log-only sink when NATS is not configured.
func (a *App) Notifier() repository.Notifier {
	if a.NATS != nil {
		return natsadapter.NewNotifier(a.NATS, a.Config.NotifySubject)
	}
	return usecase.NewLogNotifier(a.Logger.Named("notify"))
}

// Refresher builds the token refresher on the configured solver backend.
func (a *App) Refresher() *usecase.TokenRefresher {
	cfg := a.Config
	var solver repository.ChallengeSolver
	switch cfg.SolverBackend {
	case config.SolverChromedp:
		proxyURL := ""
		if proxies := cfg.Proxies(); len(proxies) > 0 {
			proxyURL = proxies[0]
		}
		s := chromedp_solver.NewSolver(cfg.SolverTimeout(), proxyURL, a.Logger.Named("chromedp"))
		a.closers = append(a.closers, s.Close)
		solver = s
	default:
		solver = flaresolverr.NewSolver(cfg.FlareSolverrURL, cfg.SolverTimeout(), a.Logger.Named("flaresolverr"))
	}
	return usecase.NewTokenRefresher(
		solver, a.Catalog, a.Credentials, a.Notifier(), a.Metrics,
		cfg.CatalogSiteURL, cfg.CredentialTTL(), a.Logger.Named("refresh"),
	)
}

// Runner builds the worker pool with a handler for every task type.
func (a *App) Runner() *worker.Runner {
	r := worker.NewRunner(a.Queue, a.Jobs, a.Config.WorkerConcurrency, a.Metrics, a.Logger.Named("worker"))
	policies := worker.DefaultPolicies(rand.New(rand.NewSource(time.Now().UnixNano())))
	r.Handle(entity.TaskParseQuery, worker.ParseHandler(a.Orchestrator), policies[entity.TaskParseQuery])
	r.Handle(entity.TaskRefreshCredential, worker.RefreshHandler(a.Refresher()), policies[entity.TaskRefreshCredential])
	r.Handle(entity.TaskSweepDiscounts, worker.SweepHandler(a.Sweep), policies[entity.TaskSweepDiscounts])
	return r
}

// Scheduler enqueues the periodic refresh and sweep. The first refresh runs
// at start-up when no credential is cached.
func (a *App) Scheduler(ctx context.Context) *worker.Scheduler {
	cred, _ := a.Credentials.Get(ctx)
	return worker.NewScheduler(a.Jobs, a.Logger.Named("scheduler"),
		worker.Periodic{
			Type:      entity.TaskRefreshCredential,
			Every:     time.Duration(a.Config.RefreshScheduleHours) * time.Hour,
			Immediate: cred.Empty(),
		},
		worker.Periodic{
			Type:  entity.TaskSweepDiscounts,
			Every: time.Duration(a.Config.SweepScheduleHours) * time.Hour,
		},
	)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
