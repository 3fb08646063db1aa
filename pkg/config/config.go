package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FX            FXConfig
	Duffel        DuffelConfig
	Hotelbeds     HotelbedsConfig
	Payments      PaymentsConfig
	Retry         RetryConfig
	Cancellation  CancellationConfig
	Notifications NotificationsConfig
	Cron          CronConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Cancellation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NOMADAIR_APP_ENV" required:"true"`
	Port         string `envconfig:"NOMADAIR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NOMADAIR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NOMADAIR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"NOMADAIR_DB_DSN"`
	Driver string `envconfig:"NOMADAIR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"NOMADAIR_DB_HOST"`
	Port     int    `envconfig:"NOMADAIR_DB_PORT" default:"5432"`
	User     string `envconfig:"NOMADAIR_DB_USER"`
	Password string `envconfig:"NOMADAIR_DB_PASSWORD"`
	Name     string `envconfig:"NOMADAIR_DB_NAME"`
	SSLMode  string `envconfig:"NOMADAIR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NOMADAIR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NOMADAIR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NOMADAIR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NOMADAIR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("db config requires DSN or host/user/name")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"NOMADAIR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NOMADAIR_REDIS_ADDR"`
	Password     string        `envconfig:"NOMADAIR_REDIS_PASSWORD"`
	DB           int           `envconfig:"NOMADAIR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NOMADAIR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NOMADAIR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NOMADAIR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NOMADAIR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NOMADAIR_REDIS_WRITE_TIMEOUT" default:"5s"`

	// WebhookGuardTTL bounds how long processed supplier event ids are kept.
	WebhookGuardTTL time.Duration `envconfig:"NOMADAIR_REDIS_WEBHOOK_GUARD_TTL" default:"72h"`
}

type JWTConfig struct {
	Secret string `envconfig:"NOMADAIR_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"NOMADAIR_JWT_ISSUER" required:"true"`
}

// FXConfig points at the currency conversion collaborator.
type FXConfig struct {
	BaseURL string        `envconfig:"NOMADAIR_FX_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"NOMADAIR_FX_API_KEY"`
	Timeout time.Duration `envconfig:"NOMADAIR_FX_TIMEOUT" default:"10s"`
}

// DuffelConfig configures the flights supplier client.
type DuffelConfig struct {
	BaseURL       string        `envconfig:"NOMADAIR_DUFFEL_BASE_URL" default:"https://api.duffel.com"`
	AccessToken   string        `envconfig:"NOMADAIR_DUFFEL_ACCESS_TOKEN"`
	WebhookSecret string        `envconfig:"NOMADAIR_DUFFEL_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"NOMADAIR_DUFFEL_TIMEOUT" default:"30s"`
}

// HotelbedsConfig configures the hotels supplier client.
type HotelbedsConfig struct {
	BaseURL       string        `envconfig:"NOMADAIR_HOTELBEDS_BASE_URL"`
	AccessToken   string        `envconfig:"NOMADAIR_HOTELBEDS_ACCESS_TOKEN"`
	WebhookSecret string        `envconfig:"NOMADAIR_HOTELBEDS_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"NOMADAIR_HOTELBEDS_TIMEOUT" default:"30s"`
}

// PaymentsConfig configures inbound payment processor callbacks.
type PaymentsConfig struct {
	WebhookSecret string `envconfig:"NOMADAIR_PAYMENTS_WEBHOOK_SECRET"`
}

// RetryConfig bounds the supplier retry policy shared by order creation and
// cancellation.
type RetryConfig struct {
	MaxAttempts int           `envconfig:"NOMADAIR_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"NOMADAIR_RETRY_BASE_DELAY" default:"2s"`
	MaxDelay    time.Duration `envconfig:"NOMADAIR_RETRY_MAX_DELAY" default:"8s"`
}

// UnknownDataPolicy decides what happens when departure time or fare
// conditions cannot be found on the stored booking payload.
const (
	UnknownDataAllow  = "allow"
	UnknownDataReject = "reject"
)

type CancellationConfig struct {
	// MinHoursBeforeDeparture rejects cancellations inside this window.
	MinHoursBeforeDeparture int    `envconfig:"NOMADAIR_CANCELLATION_MIN_HOURS" default:"24"`
	UnknownDataPolicy       string `envconfig:"NOMADAIR_CANCELLATION_UNKNOWN_DATA_POLICY" default:"allow"`
}

func (c CancellationConfig) validate() error {
	switch c.UnknownDataPolicy {
	case UnknownDataAllow, UnknownDataReject:
		return nil
	default:
		return fmt.Errorf("unknown data policy must be %q or %q", UnknownDataAllow, UnknownDataReject)
	}
}

// FailOpenOnUnknownData reports whether missing departure/fare data lets the
// cancellation proceed.
func (c CancellationConfig) FailOpenOnUnknownData() bool {
	return c.UnknownDataPolicy == UnknownDataAllow
}

type NotificationsConfig struct {
	MailerBaseURL string        `envconfig:"NOMADAIR_MAILER_BASE_URL"`
	MailerAPIKey  string        `envconfig:"NOMADAIR_MAILER_API_KEY"`
	FromAddress   string        `envconfig:"NOMADAIR_MAILER_FROM" default:"bookings@nomadair.example"`
	SendTimeout   time.Duration `envconfig:"NOMADAIR_MAILER_SEND_TIMEOUT" default:"15s"`
}

type CronConfig struct {
	// PaymentPendingTTL fails bookings stuck awaiting payment beyond this age.
	PaymentPendingTTL time.Duration `envconfig:"NOMADAIR_CRON_PAYMENT_PENDING_TTL" default:"24h"`
	SweepInterval     time.Duration `envconfig:"NOMADAIR_CRON_SWEEP_INTERVAL" default:"15m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"NOMADAIR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"NOMADAIR_AUTO_MIGRATE" default:"false"`
}
