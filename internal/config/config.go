// Package config содержит логику чтения конфигурации сервиса накопительных целей.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/goalsaver/internal/interest"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	RateOracleAddress string `env:"RATE_ORACLE_ADDRESS"`

	AuthSecret string `env:"AUTH_SECRET" envDefault:"goalsaver-dev-secret"`
	// AdminToken открывает административные маршруты. Пустое значение их отключает.
	AdminToken string `env:"ADMIN_TOKEN"`

	InterestRateBps    uint64        `env:"INTEREST_RATE_BPS" envDefault:"500"`
	RateOracleInterval time.Duration `env:"RATE_ORACLE_INTERVAL" envDefault:"1m"`
	PenaltyCurve       string        `env:"PENALTY_CURVE" envDefault:"linear"`
	PenaltyMaxBps      uint64        `env:"PENALTY_MAX_BPS" envDefault:"1000"`
	PodPayoutPolicy    string        `env:"POD_PAYOUT_POLICY" envDefault:"proportional"`
	// RewardsConfig — путь к YAML-каталогу этапов и бейджей. Пусто — встроенный каталог.
	RewardsConfig string `env:"REWARDS_CONFIG"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envOracleAddress := cfg.RateOracleAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RateOracleAddress, "r", "", "interest rate oracle address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envOracleAddress != "" {
		cfg.RateOracleAddress = envOracleAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	switch cfg.PodPayoutPolicy {
	case "proportional", "equal":
	default:
		return nil, fmt.Errorf("unknown pod payout policy %q", cfg.PodPayoutPolicy)
	}

	if err := interest.ValidateRate(cfg.InterestRateBps); err != nil {
		return nil, fmt.Errorf("INTEREST_RATE_BPS: %w", err)
	}

	return cfg, nil
}
