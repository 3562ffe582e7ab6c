package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	novaconfig "econova/api_nova/internal/config"
	"econova/api_nova/internal/datasource"
	"econova/api_nova/internal/fx"
	"econova/api_nova/internal/handler"
	"econova/api_nova/internal/metering"
	"econova/api_nova/internal/summary"
	"econova/api_nova/internal/tenants"
	"econova/pkg/auth"
	"econova/pkg/config"
	"econova/pkg/database"
	"econova/pkg/kafka"
	"econova/pkg/llm"
	"econova/pkg/logging"
	"econova/pkg/middleware"
	"econova/pkg/monitoring"
	"econova/pkg/nova"
	"econova/pkg/nova/tenant"
	"econova/pkg/nova/usage"
	"econova/pkg/redis"
	"econova/pkg/server"
	"econova/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("nova")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithField("version", version.Version).Info("Starting Nova (tenant agent API)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := novaconfig.LoadConfig()

	registry, err := tenants.Load(cfg.TenantsFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load tenants")
	}

	prices := usage.DefaultPriceTable()
	if cfg.PricesFile != "" {
		prices, err = usage.LoadPriceTable(cfg.PricesFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load price table")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("nova", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("nova", version.Version, version.GitCommit)
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"NOVA_TENANTS_FILE": cfg.TenantsFile,
		"JWT_SECRET":        cfg.JWTSecret,
		"LLM_API_KEY":       cfg.LLMAPIKey,
	}))

	// Usage metering: Postgres for the ledger, Kafka for billing summaries
	var meteringDB *sql.DB
	if cfg.MeteringDBURL != "" {
		dbConfig := database.ConfigFromEnv("DATABASE")
		dbConfig.URL = cfg.MeteringDBURL
		meteringDB = database.MustConnect(ctx, dbConfig, logger)
		defer func() { _ = meteringDB.Close() }()
		if err := database.ApplySchema(ctx, meteringDB, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply usage schema")
		}
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(meteringDB))
	} else {
		logger.Warn("DATABASE_URL not set - usage records will not be persisted")
	}

	var publisher metering.SummaryPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.KafkaBrokers, ClientID: "nova"}, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Kafka producer - usage summaries disabled")
		} else {
			defer func() { _ = producer.Close() }()
			publisher = metering.NewKafkaPublisher(producer, cfg.UsageTopic, logger)
			healthChecker.AddOptionalCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.Client()))
		}
	}

	tracker := metering.NewTracker(metering.TrackerConfig{
		DB:            meteringDB,
		Publisher:     publisher,
		Logger:        logger,
		FlushInterval: cfg.FlushInterval,
	})
	tracker.Start()
	defer tracker.Stop()

	// Exchange rates: Banxico behind an in-process cache and optional Redis
	var rates tenant.ExchangeRateSource
	if cfg.BanxicoToken != "" {
		banxico, err := fx.NewBanxicoClient(fx.BanxicoConfig{
			BaseURL: cfg.BanxicoURL,
			Token:   cfg.BanxicoToken,
			Logger:  logger,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Banxico client")
		}
		cacheCfg := fx.CacheConfig{TTL: cfg.FXCacheTTL, Logger: logger}
		if redisCfg := redis.ConfigFromEnv("REDIS"); len(redisCfg.Addrs) > 0 {
			client, err := redis.NewUniversalClient(ctx, redisCfg)
			if err != nil {
				logger.WithError(err).Warn("Redis unavailable - FX cache is per replica")
			} else {
				defer func() { _ = client.Close() }()
				cacheCfg.Shared = redis.NewTypedStore[[]tenant.ExchangeRate](client, cfg.RedisKeyPrefix+"fx:")
				healthChecker.AddOptionalCheck("redis", monitoring.RedisHealthCheck(client))
			}
		}
		rates = fx.NewCachedSource(banxico, cacheCfg)
	} else {
		logger.Warn("BANXICO_TOKEN not set - get_exchange_rate will report it is not configured")
	}

	// One agent per tenant, each with its own database pool
	agents := make(handler.AgentMap, len(registry.IDs()))
	for _, id := range registry.IDs() {
		spec, _ := registry.Get(id)
		agent, db, err := buildAgent(ctx, spec, cfg, rates, tracker, prices, logger)
		if err != nil {
			logger.WithError(err).WithField("tenant_id", id).Fatal("Failed to initialize tenant agent")
		}
		defer func() { _ = db.Close() }()
		healthChecker.AddOptionalCheck("tenant_db_"+id, monitoring.DatabaseHealthCheck(db))
		agents[id] = agent
	}
	logger.WithField("tenants", len(agents)).Info("Tenant agents ready")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, cfg.AllowedOrigins, healthChecker, metricsCollector)

	authOpts := []auth.JWTOption{
		auth.WithAPIKeys(auth.NewAPIKeyVerifier(registry.APIKeys(), 0)),
	}
	if cfg.ServiceToken != "" {
		authOpts = append(authOpts, auth.WithServiceToken(cfg.ServiceToken, auth.Identity{
			UserID:   "service",
			TenantID: "service",
			Role:     auth.RoleService,
		}))
	}
	api := router.Group("/api/nova",
		middleware.BodyLimitMiddleware(cfg.MaxBodyBytes),
		middleware.TimeoutMiddleware(cfg.ChatTimeout),
		auth.JWTAuthMiddleware([]byte(cfg.JWTSecret), authOpts...),
	)
	handler.RegisterRoutes(api, handler.NewNovaHandler(agents, logger))

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("nova", cfg.Port)
	serverConfig.AllowedOrigins = cfg.AllowedOrigins
	if err := server.Start(ctx, serverConfig, router, logger); err != nil {
		logger.WithError(err).Error("Server stopped with error")
	}
}

func buildAgent(
	ctx context.Context,
	spec tenants.Spec,
	cfg novaconfig.Config,
	rates tenant.ExchangeRateSource,
	tracker *metering.Tracker,
	prices usage.PriceTable,
	logger logging.Logger,
) (*nova.Agent, *sql.DB, error) {
	dbConfig := database.DefaultConfig()
	dbConfig.URL = spec.DatabaseURL
	dbConfig.MaxOpenConns = 10
	db, err := database.Connect(ctx, dbConfig, logger)
	if err != nil {
		return nil, nil, err
	}

	maxRows := spec.Limits.MaxRows
	if maxRows <= 0 {
		maxRows = tenant.DefaultMaxRows
	}
	ds := datasource.New(db, datasource.Options{
		StatementTimeout: spec.Limits.StatementTimeout,
		MaxRows:          maxRows,
	}, logger)

	summaries, err := summary.New(ds, spec.Summaries)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	agentCfg := spec.AgentConfig(tenants.Dependencies{
		DataSource:    ds,
		ExchangeRates: rates,
		Summaries:     summaries,
		OnUsage:       tracker.OnUsage,
		APIKey:        cfg.LLMAPIKey,
	})
	agentCfg = agentCfg.WithDefaults()

	provider, err := llm.NewProvider(llm.Config{
		Provider:  cfg.LLMProvider,
		Model:     agentCfg.Model,
		APIKey:    cfg.LLMAPIKey,
		APIURL:    cfg.LLMAPIURL,
		MaxTokens: agentCfg.MaxTokensPerRequest,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	agent, err := nova.New(agentCfg,
		nova.WithProvider(provider),
		nova.WithLogger(logger),
		nova.WithPriceTable(prices),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return agent, db, nil
}
