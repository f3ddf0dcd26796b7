// Package config lê a configuração do limitador a partir de variáveis de
// ambiente (com .env opcional) e de um arquivo YAML de políticas.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"action-limiter/actionlimit/domain"

	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	ListenAddr string

	Store         string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	PoliciesFile string
	Policies     domain.PolicyTable

	RefreshEvery time.Duration

	StatsEnabled bool
	StatsPrefix  string
	StatsTTL     time.Duration
	StatsBucket  string

	MetricsEnabled bool

	LogLevel  string
	LogFormat string
}

// LoadDotEnv carrega .env do diretório atual se existir.
// Variáveis já definidas no ambiente não são sobrescritas.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load lê o ambiente, aplica o arquivo de políticas (se houver) e valida.
func Load() (Config, error) {
	cfg := Config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", "127.0.0.1:8787")

	cfg.Store = strings.ToLower(getenvDefault("ACTIONLIMIT_STORE", StoreSQLite))
	cfg.SQLitePath = getenvDefault("ACTIONLIMIT_SQLITE_PATH", "actionlimit.db")
	cfg.RedisAddr = getenvDefault("ACTIONLIMIT_REDIS_ADDR", "")
	cfg.RedisPassword = os.Getenv("ACTIONLIMIT_REDIS_PASSWORD")
	cfg.RedisDB = getenvIntDefault("ACTIONLIMIT_REDIS_DB", 0)
	cfg.KeyPrefix = getenvDefault("ACTIONLIMIT_KEY_PREFIX", domain.DefaultKeyPrefix)

	cfg.PoliciesFile = os.Getenv("ACTIONLIMIT_POLICIES_FILE")
	cfg.RefreshEvery = getenvDurationDefault("ACTIONLIMIT_REFRESH_EVERY", 5*time.Second)

	cfg.StatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.StatsPrefix = getenvDefault("RATE_STATS_PREFIX", "actionlimit:stats")
	cfg.StatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.StatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")

	cfg.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", true)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")

	cfg.Policies = domain.DefaultPolicies()
	if cfg.PoliciesFile != "" {
		override, err := LoadPoliciesFile(cfg.PoliciesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Policies = cfg.Policies.Merge(override)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("ACTIONLIMIT_SQLITE_PATH is required when ACTIONLIMIT_STORE=sqlite")
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("ACTIONLIMIT_REDIS_ADDR is required when ACTIONLIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf("ACTIONLIMIT_STORE must be memory, sqlite or redis, got %q", c.Store)
	}
	if c.StatsEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("ACTIONLIMIT_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.RefreshEvery < 0 {
		return errors.New("ACTIONLIMIT_REFRESH_EVERY must be >= 0")
	}
	for cat, p := range c.Policies {
		if !p.Valid() {
			return fmt.Errorf("policy %q: limit and window must be > 0", cat)
		}
	}
	return nil
}

// MaxWindow é a maior janela configurada; serve de TTL para chaves no Redis.
func (c Config) MaxWindow() time.Duration {
	var out time.Duration
	for _, p := range c.Policies {
		out = max(out, p.Window)
	}
	return out
}
