package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shopfloor-service/internal/audit"
	"shopfloor-service/internal/bucketing"
	"shopfloor-service/internal/client"
	"shopfloor-service/internal/config"
	"shopfloor-service/internal/encryption"
	"shopfloor-service/internal/hashing"
	"shopfloor-service/internal/ratelimit"
	"shopfloor-service/internal/repository/postgres"
	"shopfloor-service/internal/repository/redis"
	"shopfloor-service/internal/search"
	"shopfloor-service/internal/service"
	"shopfloor-service/internal/tls"
	"shopfloor-service/internal/util"
)

// Factory owns the lifecycle of every external dependency and hands out
// wired repositories and services.
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	redisClient      *client.RedisClient
	postgresClient   *client.PostgresClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher           *hashing.Hasher
	encryptionMgr    *encryption.Manager
	bucketingManager *bucketing.Manager
	auditPublisher   *audit.Publisher
	searchIndexer    *search.Indexer

	// Repositories
	sessionStore       *redis.SessionStore
	rateLimitStore     *redis.RateLimitStore
	employeeRepository postgres.EmployeeRepository
	ticketRepository   postgres.TicketRepository
	settingsRepository postgres.SettingsRepository

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration, initializes the logger, and brings up all
// clients. Redis and Postgres are required; Kafka, ClickHouse, and
// Elasticsearch degrade to disabled outside production.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewManager(&tls.Config{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis holds sessions and rate-limit state; it is never optional.
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	// Postgres is the system of record.
	postgresClient, err := client.NewPostgresClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.postgresClient = postgresClient
	if err := f.postgresClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres health check: %w", err)
	}
	util.Info("Postgres client initialized and healthy")

	var initErrors []error

	if producer, err := client.NewKafkaProducer(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
	} else {
		f.kafkaProducer = producer
	}

	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
	}

	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Optional client unavailable", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewManager(f.config)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	encryptionMgr, err := encryption.NewManager(ctx, f.config)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	f.encryptionMgr = encryptionMgr

	f.auditPublisher = audit.NewPublisher(f.config, f.kafkaProducer, f.clickhouseClient, f.bucketingManager)
	f.searchIndexer = search.NewIndexer(f.config, f.esClient)

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) SessionStore() *redis.SessionStore {
	if f.sessionStore == nil {
		f.sessionStore = redis.NewSessionStore(f.redisClient, f.config)
	}
	return f.sessionStore
}

func (f *Factory) RateLimitStore() ratelimit.Limiter {
	if f.rateLimitStore == nil {
		f.rateLimitStore = redis.NewRateLimitStore(f.redisClient, f.config)
	}
	return f.rateLimitStore
}

func (f *Factory) EmployeeRepository() postgres.EmployeeRepository {
	if f.employeeRepository == nil {
		f.employeeRepository = postgres.NewEmployeeRepository(f.postgresClient, util.Get())
	}
	return f.employeeRepository
}

func (f *Factory) TicketRepository() postgres.TicketRepository {
	if f.ticketRepository == nil {
		f.ticketRepository = postgres.NewTicketRepository(f.postgresClient, util.Get())
	}
	return f.ticketRepository
}

func (f *Factory) SettingsRepository() postgres.SettingsRepository {
	if f.settingsRepository == nil {
		f.settingsRepository = postgres.NewSettingsRepository(f.postgresClient, util.Get())
	}
	return f.settingsRepository
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.SessionStore(),
			f.RateLimitStore(),
			f.hasher,
			f.encryptionMgr,
			f.auditPublisher,
			f.searchIndexer,
			f.EmployeeRepository(),
			f.TicketRepository(),
			f.SettingsRepository(),
		)
	}
	return f.serviceFactory
}

// StartSessionSweeper runs the expiry sweep on its configured interval until
// the factory closes.
func (f *Factory) StartSessionSweeper() {
	interval := f.config.Sessions.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-f.closed:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := f.ServiceFactory().AuthService().SweepExpiredSessions(ctx); err != nil {
					util.Error("Session sweep failed", util.ErrorField(err))
				}
				cancel()
			}
		}
	}()

	util.Info("Session sweeper started", util.Duration("interval", interval))
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.postgresClient != nil {
		if err := f.postgresClient.HealthCheck(ctx); err != nil {
			healthErrors["postgres"] = err
		}
	} else {
		healthErrors["postgres"] = fmt.Errorf("postgres client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// IsHealthy treats the optional sinks as advisory.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
		}

		if f.postgresClient != nil {
			f.postgresClient.Close()
			util.Info("Postgres client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown complete")
		util.Sync()
	})
	return nil
}
