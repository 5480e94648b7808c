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
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	RateLimit     RateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	Storage       StorageConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	SMTP          SMTPConfig
	QR            QRConfig
	Certificate   CertificateConfig
	Sentry        SentryConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cron.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string   `envconfig:"TASTECERT_APP_ENV" required:"true"`
	Port          string   `envconfig:"TASTECERT_APP_PORT" required:"true"`
	LogLevel      string   `envconfig:"TASTECERT_LOG_LEVEL" default:"info"`
	LogWarnStack  bool     `envconfig:"TASTECERT_LOG_WARN_STACK" default:"false"`
	PublicBaseURL string   `envconfig:"TASTECERT_PUBLIC_BASE_URL" default:"http://localhost:3000"`
	APIBaseURL    string   `envconfig:"TASTECERT_API_BASE_URL" default:"http://localhost:8080"`
	Release       string   `envconfig:"TASTECERT_RELEASE" default:"dev"`
	MetricsAddr   string   `envconfig:"TASTECERT_WORKER_METRICS_ADDR"`
	CORSOrigins   []string `envconfig:"TASTECERT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TASTECERT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TASTECERT_DB_DSN"`
	Driver string `envconfig:"TASTECERT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TASTECERT_DB_HOST"`
	LegacyPort     int    `envconfig:"TASTECERT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TASTECERT_DB_USER"`
	LegacyPassword string `envconfig:"TASTECERT_DB_PASSWORD"`
	LegacyName     string `envconfig:"TASTECERT_DB_NAME"`
	LegacySSLMode  string `envconfig:"TASTECERT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TASTECERT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TASTECERT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TASTECERT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TASTECERT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TASTECERT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TASTECERT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TASTECERT_REDIS_ADDR"`
	Password     string        `envconfig:"TASTECERT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TASTECERT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TASTECERT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TASTECERT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TASTECERT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TASTECERT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TASTECERT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"TASTECERT_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"TASTECERT_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"TASTECERT_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"TASTECERT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// AccessTokenTTL is the lifetime of a minted JWT.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TASTECERT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TASTECERT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TASTECERT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TASTECERT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TASTECERT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"TASTECERT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"TASTECERT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"TASTECERT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"TASTECERT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"TASTECERT_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"TASTECERT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type RateLimitConfig struct {
	APIWindow    time.Duration `envconfig:"TASTECERT_RATE_LIMIT_API_WINDOW" default:"1m"`
	APIUserLimit int           `envconfig:"TASTECERT_RATE_LIMIT_API_USER_LIMIT" default:"300"`
}

type FeatureFlagsConfig struct {
	AutoMigrate       bool `envconfig:"TASTECERT_AUTO_MIGRATE" default:"false"`
	AdminRegistration bool `envconfig:"TASTECERT_ALLOW_ADMIN_REGISTRATION" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TASTECERT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	IdempotencyLease     time.Duration `envconfig:"TASTECERT_EVENTING_IDEMPOTENCY_LEASE" default:"5m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TASTECERT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TASTECERT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TASTECERT_GOOGLE_APPLICATION_CREDENTIALS"`
}

// StorageConfig selects where generated and uploaded assets live.
type StorageConfig struct {
	Driver        string `envconfig:"TASTECERT_STORAGE_DRIVER" default:"local"`
	LocalRoot     string `envconfig:"TASTECERT_STORAGE_LOCAL_ROOT" default:"./data/assets"`
	GCSBucketName string `envconfig:"TASTECERT_GCS_BUCKET_NAME"`
	MaxUploadMB   int    `envconfig:"TASTECERT_MAX_UPLOAD_MB" default:"10"`
	ImageMaxEdge  int    `envconfig:"TASTECERT_IMAGE_MAX_EDGE" default:"1600"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StorageDriverLocal:
		if strings.TrimSpace(s.LocalRoot) == "" {
			return fmt.Errorf("%s is required for the local storage driver", EnvStorageLocalRoot)
		}
	case StorageDriverGCS:
		if strings.TrimSpace(s.GCSBucketName) == "" {
			return fmt.Errorf("%s is required for the gcs storage driver", EnvGCSBucket)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
	return nil
}

// MaxUploadBytes returns the multipart upload limit.
func (s StorageConfig) MaxUploadBytes() int64 {
	if s.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(s.MaxUploadMB) << 20
}

// PubSubConfig names the domain event topic and the subscription the
// notification worker reads from.
type PubSubConfig struct {
	DomainTopic        string `envconfig:"TASTECERT_PUBSUB_DOMAIN_TOPIC" default:"tc-domain-events"`
	DomainSubscription string `envconfig:"TASTECERT_PUBSUB_DOMAIN_SUBSCRIPTION" default:"tc-domain-events-notifications"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TASTECERT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TASTECERT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TASTECERT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SMTPConfig struct {
	Host     string `envconfig:"TASTECERT_SMTP_HOST"`
	Port     int    `envconfig:"TASTECERT_SMTP_PORT" default:"587"`
	Username string `envconfig:"TASTECERT_SMTP_USERNAME"`
	Password string `envconfig:"TASTECERT_SMTP_PASSWORD"`
	From     string `envconfig:"TASTECERT_SMTP_FROM" default:"no-reply@tastecert.local"`
	UseTLS   bool   `envconfig:"TASTECERT_SMTP_TLS" default:"true"`
	AdminTo  string `envconfig:"TASTECERT_SMTP_ADMIN_TO"`
}

// Enabled reports whether outbound mail is configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

// QRConfig holds the default rendering options for issued QR codes.
type QRConfig struct {
	Size            int    `envconfig:"TASTECERT_QR_SIZE" default:"512"`
	Margin          int    `envconfig:"TASTECERT_QR_MARGIN" default:"16"`
	ForegroundColor string `envconfig:"TASTECERT_QR_FOREGROUND" default:"#1B1B1B"`
	BackgroundColor string `envconfig:"TASTECERT_QR_BACKGROUND" default:"#FFFFFF"`
	LogoPath        string `envconfig:"TASTECERT_QR_LOGO_PATH"`
	LogoSize        int    `envconfig:"TASTECERT_QR_LOGO_SIZE" default:"96"`
}

type CertificateConfig struct {
	VerificationCacheTTL time.Duration `envconfig:"TASTECERT_CERTIFICATE_CACHE_TTL" default:"5m"`
	IssuerName           string        `envconfig:"TASTECERT_CERTIFICATE_ISSUER" default:"TasteCert International"`
}

type SentryConfig struct {
	DSN string `envconfig:"TASTECERT_SENTRY_DSN"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"TASTECERT_CRON_INTERVAL" default:"1h"`
	LockTTL                   time.Duration `envconfig:"TASTECERT_CRON_LOCK_TTL" default:"10m"`
	JobTimeout                time.Duration `envconfig:"TASTECERT_CRON_JOB_TIMEOUT" default:"5m"`
	NotificationRetentionDays int           `envconfig:"TASTECERT_NOTIFICATION_RETENTION_DAYS" default:"90"`
	OrphanAssetGrace          time.Duration `envconfig:"TASTECERT_ORPHAN_ASSET_GRACE" default:"24h"`
	OutboxRetentionDays       int           `envconfig:"TASTECERT_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxDLQRetentionDays    int           `envconfig:"TASTECERT_OUTBOX_DLQ_RETENTION_DAYS" default:"180"`
}

// validate keeps every job inside the lock lease.
func (c CronConfig) validate() error {
	if c.JobTimeout > 0 && c.LockTTL > 0 && c.JobTimeout >= c.LockTTL {
		return fmt.Errorf("%s (%s) must be shorter than %s (%s)", EnvCronJobTimeout, c.JobTimeout, EnvCronLockTTL, c.LockTTL)
	}
	return nil
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
