package config

const (
	EnvPrefix = "TASTECERT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StorageDriverLocal = "local"
	StorageDriverGCS   = "gcs"
)

const (
	EnvAppEnv                 = "TASTECERT_APP_ENV"
	EnvPort                   = "TASTECERT_APP_PORT"
	EnvDBDSN                  = "TASTECERT_DB_DSN"
	EnvDBHost                 = "TASTECERT_DB_HOST"
	EnvDBUser                 = "TASTECERT_DB_USER"
	EnvDBName                 = "TASTECERT_DB_NAME"
	EnvDBPassword             = "TASTECERT_DB_PASSWORD"
	EnvRedisURL               = "TASTECERT_REDIS_URL"
	EnvJWTSecret              = "TASTECERT_JWT_SECRET"
	EnvJWTIssuer              = "TASTECERT_JWT_ISSUER"
	EnvJWTExpMins             = "TASTECERT_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "TASTECERT_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "TASTECERT_GCP_PROJECT_ID"
	EnvStorageDriver          = "TASTECERT_STORAGE_DRIVER"
	EnvStorageLocalRoot       = "TASTECERT_STORAGE_LOCAL_ROOT"
	EnvGCSBucket              = "TASTECERT_GCS_BUCKET_NAME"
	EnvPubSubDomainTopic      = "TASTECERT_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub        = "TASTECERT_PUBSUB_DOMAIN_SUBSCRIPTION"
	EnvQRLogoPath             = "TASTECERT_QR_LOGO_PATH"
	EnvCronLockTTL            = "TASTECERT_CRON_LOCK_TTL"
	EnvCronJobTimeout         = "TASTECERT_CRON_JOB_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
