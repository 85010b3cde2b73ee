package config

const (
	EnvPrefix = "MANGOPAYGW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "MANGOPAYGW_APP_ENV"

	EnvDBDSN  = "MANGOPAYGW_DB_DSN"
	EnvDBHost = "MANGOPAYGW_DB_HOST"
	EnvDBUser = "MANGOPAYGW_DB_USER"
	EnvDBName = "MANGOPAYGW_DB_NAME"

	EnvRedisURL = "MANGOPAYGW_REDIS_URL"

	EnvJWTSecret = "MANGOPAYGW_JWT_SECRET"
	EnvJWTIssuer = "MANGOPAYGW_JWT_ISSUER"

	EnvMarketplaceBaseURL   = "MANGOPAYGW_MARKETPLACE_BASE_URL"
	EnvMarketplaceSystemKey = "MANGOPAYGW_MARKETPLACE_SYSTEM_KEY"
)

// Discrete connection settings assembled into a DSN when none is given.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
