package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"google.golang.org/api/option"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Marketplace  MarketplaceConfig
	Webhooks     WebhooksConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Counters     CountersConfig
	Telemetry    TelemetryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MANGOPAYGW_APP_ENV" required:"true"`
	Port         string `envconfig:"MANGOPAYGW_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MANGOPAYGW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MANGOPAYGW_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"MANGOPAYGW_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"MANGOPAYGW_DB_DSN"`
	Driver string `envconfig:"MANGOPAYGW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MANGOPAYGW_DB_HOST"`
	LegacyPort     int    `envconfig:"MANGOPAYGW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MANGOPAYGW_DB_USER"`
	LegacyPassword string `envconfig:"MANGOPAYGW_DB_PASSWORD"`
	LegacyName     string `envconfig:"MANGOPAYGW_DB_NAME"`
	LegacySSLMode  string `envconfig:"MANGOPAYGW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MANGOPAYGW_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MANGOPAYGW_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"MANGOPAYGW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MANGOPAYGW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MANGOPAYGW_REDIS_URL"`
	Address      string        `envconfig:"MANGOPAYGW_REDIS_ADDR"`
	Password     string        `envconfig:"MANGOPAYGW_REDIS_PASSWORD"`
	DB           int           `envconfig:"MANGOPAYGW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MANGOPAYGW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MANGOPAYGW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MANGOPAYGW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MANGOPAYGW_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"MANGOPAYGW_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// JWTConfig verifies platform-issued caller tokens.
type JWTConfig struct {
	Secret string `envconfig:"MANGOPAYGW_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"MANGOPAYGW_JWT_ISSUER" required:"true"`

	// Lifetime applies to tokens minted by the gateway's own tooling.
	ExpirationMinutes int `envconfig:"MANGOPAYGW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// MarketplaceConfig points the resource requesters at the platform API.
type MarketplaceConfig struct {
	BaseURL   string        `envconfig:"MANGOPAYGW_MARKETPLACE_BASE_URL" required:"true"`
	SystemKey string        `envconfig:"MANGOPAYGW_MARKETPLACE_SYSTEM_KEY" required:"true"`
	Timeout   time.Duration `envconfig:"MANGOPAYGW_MARKETPLACE_TIMEOUT" default:"15s"`

	// ProcessorTimeout bounds each call to the payment processor.
	ProcessorTimeout time.Duration `envconfig:"MANGOPAYGW_PROCESSOR_TIMEOUT" default:"30s"`
}

func (m MarketplaceConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(m.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute url", EnvMarketplaceBaseURL)
	}
	return nil
}

type WebhooksConfig struct {
	GuardTTL time.Duration `envconfig:"MANGOPAYGW_WEBHOOK_GUARD_TTL" default:"72h"`
}

type RateLimitConfig struct {
	WebhookWindow time.Duration `envconfig:"MANGOPAYGW_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookLimit  int           `envconfig:"MANGOPAYGW_RATE_LIMIT_WEBHOOK_LIMIT" default:"600"`
	RequestWindow time.Duration `envconfig:"MANGOPAYGW_RATE_LIMIT_REQUEST_WINDOW" default:"1m"`
	RequestLimit  int           `envconfig:"MANGOPAYGW_RATE_LIMIT_REQUEST_LIMIT" default:"120"`
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"MANGOPAYGW_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"MANGOPAYGW_AUTO_MIGRATE" default:"false"`
	PublishToPubSub  bool `envconfig:"MANGOPAYGW_PUBLISH_TO_PUBSUB" default:"false"`
	SponsorshipFacts bool `envconfig:"MANGOPAYGW_SPONSORSHIP_FACTS" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MANGOPAYGW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MANGOPAYGW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MANGOPAYGW_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions prefers inline JSON over a credentials file. With neither,
// Google clients fall back to application default credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if raw := strings.TrimSpace(g.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(g.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

type PubSubConfig struct {
	ProcessorEventsTopic string `envconfig:"MANGOPAYGW_PUBSUB_PROCESSOR_EVENTS_TOPIC" default:"mangopay-events"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"MANGOPAYGW_BIGQUERY_DATASET" default:"mangopay_gateway"`
	SponsorshipTable string `envconfig:"MANGOPAYGW_BIGQUERY_SPONSORSHIP_TABLE" default:"sponsorship_facts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MANGOPAYGW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MANGOPAYGW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MANGOPAYGW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"MANGOPAYGW_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetention   int `envconfig:"MANGOPAYGW_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MANGOPAYGW_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"MANGOPAYGW_CRON_LOCK_TTL" default:"1h"`
}

// CountersConfig tunes the lock guarding balance and transfer counters.
type CountersConfig struct {
	LockTTL     time.Duration `envconfig:"MANGOPAYGW_COUNTER_LOCK_TTL" default:"10s"`
	MaxAttempts int           `envconfig:"MANGOPAYGW_COUNTER_LOCK_ATTEMPTS" default:"20"`
	RetryDelay  time.Duration `envconfig:"MANGOPAYGW_COUNTER_LOCK_RETRY_DELAY" default:"50ms"`
}

// TelemetryConfig names the service in logs and spans and exposes the
// metrics route. Tracing exports spans to stdout when enabled.
type TelemetryConfig struct {
	ServiceName  string `envconfig:"MANGOPAYGW_SERVICE_NAME" default:"mangopay-gateway"`
	MetricsRoute string `envconfig:"MANGOPAYGW_METRICS_ROUTE" default:"/metrics"`

	Tracing          bool    `envconfig:"MANGOPAYGW_TRACING_ENABLED" default:"false"`
	TraceSampleRatio float64 `envconfig:"MANGOPAYGW_TRACE_SAMPLE_RATIO" default:"1"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.Driver = "sqlite"
		db.DSN = "file:mangopay-gateway.db?cache=shared"
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
