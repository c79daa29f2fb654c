// Package config загружает конфигурацию ядра из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"serotonyl.ru/dating-core/internal/common"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker дефолт "postgres" (имя сервиса в docker-compose), для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"dating"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"dating_core"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Redis (кэш выданных доступов). Пустой адрес = кэш в памяти процесса ---
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// --- Economy ---
	EconomyStartingBalance int64 `envconfig:"ECONOMY_STARTING_BALANCE" default:"0"`
	UnlockPhotosCost       int64 `envconfig:"UNLOCK_PHOTOS_COST" default:"70"`
	// Пакеты монет: "id:монеты,id:монеты"
	CoinPackagesRaw string           `envconfig:"COIN_PACKAGES" default:"starter:100,popular:550,premium:1200"`
	CoinPackages    map[string]int64 `envconfig:"-"` // заполним вручную
	GrantCacheTTL   time.Duration    `envconfig:"GRANT_CACHE_TTL" default:"24h"`

	// --- Subscriptions ---
	BillingPeriod      time.Duration `envconfig:"BILLING_PERIOD" default:"720h"`
	RenewalCron        string        `envconfig:"RENEWAL_CRON" default:"0 3 * * *"`
	RenewalBatchSize   int           `envconfig:"RENEWAL_BATCH_SIZE" default:"500"`
	RenewalConcurrency int           `envconfig:"RENEWAL_CONCURRENCY" default:"8"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.EconomyStartingBalance < 0 {
		return fmt.Errorf("ECONOMY_STARTING_BALANCE не может быть отрицательным")
	}
	if c.UnlockPhotosCost <= 0 {
		return fmt.Errorf("UNLOCK_PHOTOS_COST должен быть > 0")
	}
	if c.BillingPeriod <= 0 {
		return fmt.Errorf("BILLING_PERIOD должен быть > 0")
	}
	if c.RenewalBatchSize <= 0 {
		return fmt.Errorf("RENEWAL_BATCH_SIZE должен быть > 0")
	}
	if c.RenewalConcurrency <= 0 {
		return fmt.Errorf("RENEWAL_CONCURRENCY должен быть > 0")
	}
	for id, coins := range c.CoinPackages {
		if coins <= 0 {
			return fmt.Errorf("пакет %q: количество монет должно быть > 0", id)
		}
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	packages, err := common.ParseKeyValueCSV(cfg.CoinPackagesRaw)
	if err != nil {
		return nil, fmt.Errorf("COIN_PACKAGES parse: %w", err)
	}
	cfg.CoinPackages = packages

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
