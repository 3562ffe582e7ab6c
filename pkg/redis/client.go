package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"econova/pkg/config"
)

const defaultDialTimeout = 5 * time.Second

// Mode selects the Redis deployment topology.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeSentinel Mode = "sentinel"
	ModeCluster  Mode = "cluster"
)

// Config configures a topology-agnostic Redis connection.
type Config struct {
	Mode         Mode
	Addrs        []string // single: 1 addr, sentinel: sentinel addrs, cluster: seed nodes
	MasterName   string   // sentinel only
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ConfigFromEnv reads <PREFIX>_ADDRS, _MODE, _MASTER_NAME, _USERNAME,
// _PASSWORD and _DB. An empty address list means Redis is not configured.
func ConfigFromEnv(prefix string) Config {
	return Config{
		Mode:       Mode(strings.ToLower(config.GetEnv(prefix+"_MODE", string(ModeSingle)))),
		Addrs:      config.GetEnvList(prefix + "_ADDRS"),
		MasterName: config.GetEnv(prefix+"_MASTER_NAME", ""),
		Username:   config.GetEnv(prefix+"_USERNAME", ""),
		Password:   config.GetEnv(prefix+"_PASSWORD", ""),
		DB:         config.GetEnvInt(prefix+"_DB", 0),
	}
}

func (c Config) validate() error {
	if len(c.Addrs) == 0 {
		return fmt.Errorf("at least one redis address is required")
	}
	switch c.Mode {
	case "", ModeSingle:
		if len(c.Addrs) > 1 {
			return fmt.Errorf("single mode takes one address, got %d", len(c.Addrs))
		}
	case ModeSentinel:
		if c.MasterName == "" {
			return fmt.Errorf("sentinel mode requires a master name")
		}
	case ModeCluster:
	default:
		return fmt.Errorf("unknown redis mode %q", c.Mode)
	}
	return nil
}

// NewUniversalClient creates a Redis client that works with single-node,
// Sentinel, or Cluster topologies based on Config.Mode. go-redis routes
// internally: MasterName set → Sentinel, multiple Addrs → Cluster,
// single Addr → standalone.
func NewUniversalClient(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultDialTimeout
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultDialTimeout
	}

	masterName := ""
	if cfg.Mode == ModeSentinel {
		masterName = cfg.MasterName
	}

	opts := &goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   masterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	if cfg.Mode == ModeCluster {
		opts.IsClusterMode = true
	}

	client := goredis.NewUniversalClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
