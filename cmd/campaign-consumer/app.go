package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"campaignd/internal/admin"
	"campaignd/internal/aggregator"
	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/counter"
	"campaignd/internal/ingest"
	"campaignd/internal/logger"
	"campaignd/internal/notifier"
	"campaignd/internal/parser"
	"campaignd/internal/reconcile"
	"campaignd/internal/store"
	"campaignd/pkg/bootstrap"
	"campaignd/pkg/circuitbreaker"
	"campaignd/pkg/health"
	"campaignd/pkg/logging"
	"campaignd/pkg/metrics"
	"campaignd/pkg/migrations"
	"campaignd/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	redis       *redis.Client
	mongoClient *mongo.Client
	postgres    *sqlx.DB
	repo        store.Repository
	counters    counter.Store
	notifier    notifier.Notifier
	aggregator  *aggregator.Service
	reconciler  *reconcile.Reconciler
	worker      *ingest.Worker
	health      *health.CheckerRegistry
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

// InitCore connects the stores and builds the aggregator and reconciler.
// It is all the one-shot commands need.
func (a *App) InitCore(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracer", tp.Shutdown)

	if err := a.initCounters(ctx); err != nil {
		return fmt.Errorf("failed to initialize counter store: %w", err)
	}

	if err := a.initMessageStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize message store: %w", err)
	}

	a.initNotifier()

	a.aggregator = aggregator.NewService(
		parser.New(nil),
		a.repo,
		a.counters,
		a.notifier,
		a.Config.Aggregator,
		a.Logger,
	)
	a.reconciler = reconcile.New(a.counters, a.repo, a.notifier, a.Config.Aggregator.StageTimeout, a.Logger)
	return nil
}

// Initialize prepares everything serve needs: the core, the broker
// consumer, the ingest pool and the admin server.
func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterCampaignMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterAdminMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.InitCore(ctx); err != nil {
		return err
	}

	if a.Config.Database.RunMigrations {
		if err := a.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	workers := a.Config.Ingest.Workers
	if workers <= 0 {
		workers = constants.DefaultWorkers
	}
	if err := a.InitConsumer(workers); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	a.worker = ingest.NewWorker(a.Consumer, a.aggregator, a.Config.Ingest, a.Logger)

	a.initHTTPServer(ctx)
	return nil
}

func (a *App) initCounters(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	a.OnShutdown("redis", func(context.Context) error { return rdb.Close() })
	a.health.Register(health.NewRedisChecker(rdb))

	var counters counter.Store = counter.NewRedisStore(rdb)
	if a.Config.CircuitBreaker.Enabled {
		breaker := counter.NewCircuitBreakerStore(counters, a.breakerSettings())
		a.health.Register(health.NewBreakerChecker("redis-counter", breaker))
		counters = breaker
		a.Logger.InfowCtx(ctx, "Circuit breaker enabled for counter store")
	}
	a.counters = counters
	return nil
}

func (a *App) initMessageStore(ctx context.Context) error {
	var repo store.Repository

	switch a.Config.Database.MessageStore {
	case constants.MessageStorePostgres:
		db, err := a.dbConnector.InitPostgreSQL(ctx)
		if err != nil {
			return err
		}
		a.postgres = db
		a.OnShutdown("postgres", func(context.Context) error { return db.Close() })
		a.health.Register(health.NewPostgreSQLChecker(db))
		repo = store.NewPostgresRepository(db)
	default:
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongoClient = client
		a.OnShutdown("mongodb", client.Disconnect)
		a.health.Register(health.NewMongoDBChecker(client))
		repo = store.NewMongoRepository(
			client.Database(a.Config.Database.MongoDB.Database),
			a.Config.Database.MongoDB.Collection,
		)
	}

	if a.Config.CircuitBreaker.Enabled {
		breaker := store.NewCircuitBreakerRepository(repo, "message-store", a.breakerSettings())
		a.health.Register(health.NewBreakerChecker("message-store", breaker))
		repo = breaker
		a.Logger.InfowCtx(ctx, "Circuit breaker enabled for message store")
	}
	a.repo = repo
	return nil
}

func (a *App) initNotifier() {
	var n notifier.Notifier = notifier.NewHTTPNotifier(a.Config.Notifier, a.Logger)
	if a.Config.CircuitBreaker.Enabled {
		breaker := notifier.NewCircuitBreakerNotifier(n, a.breakerSettings())
		a.health.Register(health.NewBreakerChecker("campaign-api", breaker))
		n = breaker
	}
	a.notifier = n
}

func (a *App) breakerSettings() circuitbreaker.Settings {
	return circuitbreaker.Settings(a.Config.CircuitBreaker)
}

func (a *App) initHTTPServer(ctx context.Context) {
	handler := admin.NewHandler(a.aggregator, a.reconciler, a.Logger)
	router := admin.NewRouter(ctx, handler, admin.RouterOptions{
		ServiceName: constants.ServiceName,
		Tracing:     a.Config.Tracing.Enabled,
		RateLimit:   a.Config.Admin.RateLimit,
		Health:      a.health,
	}, a.Logger)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Migrate prepares the configured message store: SQL migrations for
// PostgreSQL, indexes for MongoDB.
func (a *App) Migrate(ctx context.Context) error {
	if a.postgres != nil {
		if err := migrations.RunPostgres(a.postgres.DB, a.Config.Database.Postgres.MigrationsPath); err != nil {
			return err
		}
		a.Logger.InfowCtx(ctx, "PostgreSQL migrations applied", "path", a.Config.Database.Postgres.MigrationsPath)
		return nil
	}
	if a.mongoClient != nil {
		db := a.mongoClient.Database(a.Config.Database.MongoDB.Database)
		if err := migrations.EnsureMongoIndexes(ctx, db, a.Config.Database.MongoDB.Collection); err != nil {
			return err
		}
		a.Logger.InfowCtx(ctx, "MongoDB indexes ensured", "collection", a.Config.Database.MongoDB.Collection)
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.worker.Run(gCtx)
	})

	g.Go(func() error {
		a.reconciler.Start(gCtx, a.Config.Reconcile.Interval)
		return nil
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down campaign consumer")
	return a.Base.Shutdown(shutdownCtx)
}
