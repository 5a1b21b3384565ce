package engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/store"
	bunstore "github.com/xraph/postmaster/store/bun"
	"github.com/xraph/postmaster/store/memory"
	redisstore "github.com/xraph/postmaster/store/redis"
)

// openStore selects the backend for the configured mode. Memory-only mode
// still gets a memory store so dead letters can be inspected and replayed.
func openStore(cfg postmaster.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Mode() {
	case postmaster.ModeMemoryOnly:
		return memory.New(), nil
	case postmaster.ModePersistentRemote:
		p := cfg.Persistence
		if p.Redis.Enabled && !p.Redis.Embedded {
			opts, err := redisOptions(p.Redis)
			if err != nil {
				return nil, err
			}
			client := goredis.NewClient(opts)
			logger.Info("using redis persistence", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))
			return redisstore.New(client, redisstore.WithCloser(client), redisstore.WithLogger(logger)), nil
		}
		return openSQL(p.SQL, logger)
	case postmaster.ModePersistentLocal:
		sqlCfg := cfg.Persistence.SQL
		sqlCfg.Driver = "sqlite"
		if cfg.Persistence.Redis.Embedded {
			logger.Info("embedded redis persistence is served by the local sqlite store")
		}
		return openSQL(sqlCfg, logger)
	default:
		return nil, postmaster.ErrDisabled
	}
}

func openSQL(cfg postmaster.SQLConfig, logger *slog.Logger) (store.Store, error) {
	s, err := bunstore.Open(cfg.Driver, cfg.DSN, bunstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("postmaster/engine: open %s store: %w", cfg.Driver, err)
	}
	logger.Info("using sql persistence", slog.String("driver", cfg.Driver))
	return s, nil
}

// redisOptions maps the configuration, including the free-form settings
// map, onto client options.
func redisOptions(cfg postmaster.RedisConfig) (*goredis.Options, error) {
	opts := &goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	for k, v := range cfg.Settings {
		switch k {
		case "pool_size":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, settingErr(k, v, err)
			}
			opts.PoolSize = n
		case "dial_timeout", "read_timeout", "write_timeout":
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, settingErr(k, v, err)
			}
			switch k {
			case "dial_timeout":
				opts.DialTimeout = d
			case "read_timeout":
				opts.ReadTimeout = d
			default:
				opts.WriteTimeout = d
			}
		case "client_name":
			opts.ClientName = v
		default:
			return nil, fmt.Errorf("%w: unknown redis setting %q, review 'persistence.redis.settings'",
				postmaster.ErrInvalidConfiguration, k)
		}
	}
	return opts, nil
}

func settingErr(key, val string, err error) error {
	return fmt.Errorf("%w: redis setting %s=%q: %v, review 'persistence.redis.settings'",
		postmaster.ErrInvalidConfiguration, key, val, err)
}
