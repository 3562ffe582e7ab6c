package config

import (
	"time"

	"econova/pkg/config"
)

// Config stores environment configuration for the Nova service.
type Config struct {
	Port           string
	TenantsFile    string
	PricesFile     string
	MeteringDBURL  string
	JWTSecret      string
	ServiceToken   string
	AllowedOrigins []string

	LLMProvider string
	LLMAPIKey   string
	LLMAPIURL   string

	BanxicoToken   string
	BanxicoURL     string
	FXCacheTTL     time.Duration
	RedisKeyPrefix string

	KafkaBrokers  []string
	UsageTopic    string
	FlushInterval time.Duration

	ChatTimeout  time.Duration
	MaxBodyBytes int64
}

// LoadConfig loads the Nova configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:           config.GetEnv("PORT", "18030"),
		TenantsFile:    config.RequireEnv("NOVA_TENANTS_FILE"),
		PricesFile:     config.GetEnv("NOVA_PRICES_FILE", ""),
		MeteringDBURL:  config.GetEnv("DATABASE_URL", ""),
		JWTSecret:      config.RequireEnv("JWT_SECRET"),
		ServiceToken:   config.GetEnv("SERVICE_TOKEN", ""),
		AllowedOrigins: config.GetEnvList("CORS_ALLOWED_ORIGINS"),

		LLMProvider: config.GetEnv("LLM_PROVIDER", "anthropic"),
		LLMAPIKey:   config.GetEnv("LLM_API_KEY", config.GetEnv("ANTHROPIC_API_KEY", "")),
		LLMAPIURL:   config.GetEnv("LLM_API_URL", ""),

		BanxicoToken:   config.GetEnv("BANXICO_TOKEN", ""),
		BanxicoURL:     config.GetEnv("BANXICO_API_URL", ""),
		FXCacheTTL:     config.GetEnvDuration("FX_CACHE_TTL", time.Hour),
		RedisKeyPrefix: config.GetEnv("NOVA_REDIS_PREFIX", "nova:"),

		KafkaBrokers:  config.GetEnvList("KAFKA_BROKERS"),
		UsageTopic:    config.GetEnv("NOVA_USAGE_TOPIC", "billing.usage_reports"),
		FlushInterval: config.GetEnvDuration("NOVA_USAGE_FLUSH_INTERVAL", time.Minute),

		ChatTimeout:  config.GetEnvDuration("NOVA_CHAT_TIMEOUT", 150*time.Second),
		MaxBodyBytes: int64(config.GetEnvInt("NOVA_MAX_BODY_BYTES", 1<<20)),
	}
}
