package config

const (
	EnvPrefix = "GIGMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "GIGMARKET_APP_ENV"
	EnvPort                   = "GIGMARKET_APP_PORT"
	EnvDBDSN                  = "GIGMARKET_DB_DSN"
	EnvDBHost                 = "GIGMARKET_DB_HOST"
	EnvDBUser                 = "GIGMARKET_DB_USER"
	EnvDBName                 = "GIGMARKET_DB_NAME"
	EnvDBPassword             = "GIGMARKET_DB_PASSWORD"
	EnvRedisURL               = "GIGMARKET_REDIS_URL"
	EnvJWTSecret              = "GIGMARKET_JWT_SECRET"
	EnvJWTIssuer              = "GIGMARKET_JWT_ISSUER"
	EnvJWTExpMins             = "GIGMARKET_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "GIGMARKET_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "GIGMARKET_GCP_PROJECT_ID"
	EnvGCSBucket              = "GIGMARKET_GCS_BUCKET_NAME"
	EnvGCSUploadExpiry        = "GIGMARKET_GCS_UPLOAD_URL_EXPIRY"
	EnvGCSDownloadExpiry      = "GIGMARKET_GCS_DOWNLOAD_URL_EXPIRY"
	EnvPubSubDomainTopic      = "GIGMARKET_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub        = "GIGMARKET_PUBSUB_DOMAIN_SUBSCRIPTION"
	EnvPubSubAnalyticsTopic   = "GIGMARKET_PUBSUB_ANALYTICS_TOPIC"
	EnvPubSubAnalyticsSub     = "GIGMARKET_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvQuotaFreeContactViews  = "GIGMARKET_QUOTA_FREE_CONTACT_VIEWS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
