package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Pricing      PricingConfig
	Catalog      CatalogConfig
	Designs      DesignsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TEEPRINT_APP_ENV" required:"true"`
	Port         string `envconfig:"TEEPRINT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TEEPRINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TEEPRINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TEEPRINT_DB_DSN"`
	Driver string `envconfig:"TEEPRINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TEEPRINT_DB_HOST"`
	LegacyPort     int    `envconfig:"TEEPRINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TEEPRINT_DB_USER"`
	LegacyPassword string `envconfig:"TEEPRINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"TEEPRINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"TEEPRINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TEEPRINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TEEPRINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TEEPRINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TEEPRINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TEEPRINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TEEPRINT_REDIS_ADDR"`
	Password     string        `envconfig:"TEEPRINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TEEPRINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TEEPRINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TEEPRINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TEEPRINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TEEPRINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TEEPRINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TEEPRINT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TEEPRINT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TEEPRINT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig configures the external payment gateway client.
type GatewayConfig struct {
	BaseURL string        `envconfig:"TEEPRINT_GATEWAY_BASE_URL" required:"true"`
	KeyID   string        `envconfig:"TEEPRINT_GATEWAY_KEY_ID" required:"true"`
	Secret  string        `envconfig:"TEEPRINT_GATEWAY_SECRET" required:"true"`
	Timeout time.Duration `envconfig:"TEEPRINT_GATEWAY_TIMEOUT" default:"10s"`
}

// PricingConfig carries the storefront-wide tax and shipping figures.
type PricingConfig struct {
	TaxRatePercent string `envconfig:"TEEPRINT_TAX_RATE_PERCENT" default:"5"`
	ShippingCharge string `envconfig:"TEEPRINT_SHIPPING_CHARGE" default:"50"`
}

func (p PricingConfig) validate() error {
	if _, err := decimal.NewFromString(p.TaxRatePercent); err != nil {
		return fmt.Errorf("invalid tax rate %q: %w", p.TaxRatePercent, err)
	}
	if _, err := decimal.NewFromString(p.ShippingCharge); err != nil {
		return fmt.Errorf("invalid shipping charge %q: %w", p.ShippingCharge, err)
	}
	return nil
}

// TaxRate returns the configured tax rate as a decimal percentage.
func (p PricingConfig) TaxRate() decimal.Decimal {
	rate, err := decimal.NewFromString(p.TaxRatePercent)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

// Shipping returns the flat shipping charge.
func (p PricingConfig) Shipping() decimal.Decimal {
	charge, err := decimal.NewFromString(p.ShippingCharge)
	if err != nil {
		return decimal.Zero
	}
	return charge
}

type CatalogConfig struct {
	BaseURL string        `envconfig:"TEEPRINT_CATALOG_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"TEEPRINT_CATALOG_TIMEOUT" default:"5s"`
}

type DesignsConfig struct {
	BaseURL string        `envconfig:"TEEPRINT_DESIGNS_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"TEEPRINT_DESIGNS_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TEEPRINT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TEEPRINT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
