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
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GenAI         GenAIConfig
	GoogleMaps    GoogleMapsConfig
	GCP           GCPConfig
	GCS           GCSConfig
	Documents     DocumentsConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Stripe        StripeConfig
	Payments      PaymentsConfig
	Sendgrid      SendgridConfig
	Push          PushConfig
	Realtime      RealtimeConfig
	Quota         QuotaConfig
	Emergency     EmergencyConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GIGMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"GIGMARKET_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"GIGMARKET_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"GIGMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIGMARKET_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"GIGMARKET_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	parts := strings.Split(a.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type ServiceConfig struct {
	Kind string `envconfig:"GIGMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN       string        `envconfig:"GIGMARKET_DB_DSN"`
	SlowQuery time.Duration `envconfig:"GIGMARKET_DB_SLOW_QUERY" default:"500ms"`

	Host     string `envconfig:"GIGMARKET_DB_HOST"`
	Port     int    `envconfig:"GIGMARKET_DB_PORT" default:"5432"`
	User     string `envconfig:"GIGMARKET_DB_USER"`
	Password string `envconfig:"GIGMARKET_DB_PASSWORD"`
	Name     string `envconfig:"GIGMARKET_DB_NAME"`
	SSLMode  string `envconfig:"GIGMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIGMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIGMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GIGMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GIGMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"GIGMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIGMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIGMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIGMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIGMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"GIGMARKET_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"GIGMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"GIGMARKET_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"GIGMARKET_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GIGMARKET_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GIGMARKET_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GIGMARKET_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GIGMARKET_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GIGMARKET_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"GIGMARKET_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"GIGMARKET_AUTO_MIGRATE" default:"false"`
	AISuggestions   bool `envconfig:"GIGMARKET_FEATURE_AI_SUGGESTIONS" default:"true"`
	PushEnabled     bool `envconfig:"GIGMARKET_FEATURE_PUSH" default:"true"`
	EmergencyLaunch bool `envconfig:"GIGMARKET_FEATURE_EMERGENCY" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"GIGMARKET_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GenAIConfig struct {
	APIKey  string        `envconfig:"GIGMARKET_GENAI_API_KEY"`
	Model   string        `envconfig:"GIGMARKET_GENAI_MODEL" default:"gemini-2.5-flash"`
	Timeout time.Duration `envconfig:"GIGMARKET_GENAI_TIMEOUT" default:"8s"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"GIGMARKET_GOOGLE_MAPS_API_KEY"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GIGMARKET_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GIGMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GIGMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions picks inline JSON credentials over a credentials file. With
// neither set the Google clients fall back to application default credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(g.ApplicationCredentials)}
	}
	return nil
}

type GCSConfig struct {
	BucketName        string        `envconfig:"GIGMARKET_GCS_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"GIGMARKET_GCS_UPLOAD_URL_EXPIRY" required:"true"`
	DownloadURLExpiry time.Duration `envconfig:"GIGMARKET_GCS_DOWNLOAD_URL_EXPIRY" required:"true"`
}

type DocumentsConfig struct {
	MaxUploadMB int `envconfig:"GIGMARKET_DOCUMENTS_MAX_UPLOAD_MB" default:"20"`
}

type PubSubConfig struct {
	DomainTopic           string `envconfig:"GIGMARKET_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription    string `envconfig:"GIGMARKET_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
	AnalyticsTopic        string `envconfig:"GIGMARKET_PUBSUB_ANALYTICS_TOPIC" required:"true"`
	AnalyticsSubscription string `envconfig:"GIGMARKET_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset                string `envconfig:"GIGMARKET_BIGQUERY_DATASET" default:"gigmarket"`
	MarketplaceEventsTable string `envconfig:"GIGMARKET_BIGQUERY_MARKETPLACE_TABLE" default:"marketplace_events"`
	GigViewsTable          string `envconfig:"GIGMARKET_BIGQUERY_GIG_VIEWS_TABLE" default:"gig_views"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"GIGMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"GIGMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"GIGMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"GIGMARKET_OUTBOX_RETENTION" default:"720h"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"GIGMARKET_STRIPE_API_KEY"`
	Secret        string `envconfig:"GIGMARKET_STRIPE_SECRET"`
	Env           string `envconfig:"GIGMARKET_STRIPE_ENV" default:"test"`
	ProPriceID    string `envconfig:"GIGMARKET_STRIPE_PRO_PRICE_ID"`
	BusinessPrice string `envconfig:"GIGMARKET_STRIPE_BUSINESS_PRICE_ID"`
	MaxRetries    int64  `envconfig:"GIGMARKET_STRIPE_MAX_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	Currency           string        `envconfig:"GIGMARKET_PAYMENTS_CURRENCY" default:"usd"`
	PlatformFeePercent string        `envconfig:"GIGMARKET_PAYMENTS_PLATFORM_FEE_PERCENT" default:"10"`
	AutoReleaseAfter   time.Duration `envconfig:"GIGMARKET_PAYMENTS_AUTO_RELEASE_AFTER" default:"168h"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"GIGMARKET_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"GIGMARKET_SENDGRID_FROM_EMAIL" default:"no-reply@gigmarket.app"`
	FromName    string `envconfig:"GIGMARKET_SENDGRID_FROM_NAME" default:"GigMarket"`
}

type PushConfig struct {
	CredentialsJSON       string        `envconfig:"GIGMARKET_FCM_CREDENTIALS_JSON"`
	TokenStaleAfter       time.Duration `envconfig:"GIGMARKET_PUSH_TOKEN_STALE_AFTER" default:"2160h"`
	NotificationRetention time.Duration `envconfig:"GIGMARKET_NOTIFICATION_RETENTION" default:"720h"`
}

type RealtimeConfig struct {
	SendBuffer     int           `envconfig:"GIGMARKET_REALTIME_SEND_BUFFER" default:"64"`
	PingInterval   time.Duration `envconfig:"GIGMARKET_REALTIME_PING_INTERVAL" default:"25s"`
	FrameRateLimit float64       `envconfig:"GIGMARKET_REALTIME_FRAME_RATE" default:"5"`
	FrameBurst     int           `envconfig:"GIGMARKET_REALTIME_FRAME_BURST" default:"10"`
}

// QuotaConfig carries per-plan monthly limits. A negative limit is unlimited.
type QuotaConfig struct {
	FreeContactViews     int `envconfig:"GIGMARKET_QUOTA_FREE_CONTACT_VIEWS" default:"5"`
	FreeProposals        int `envconfig:"GIGMARKET_QUOTA_FREE_PROPOSALS" default:"10"`
	FreeResponses        int `envconfig:"GIGMARKET_QUOTA_FREE_RESPONSES" default:"10"`
	ProContactViews      int `envconfig:"GIGMARKET_QUOTA_PRO_CONTACT_VIEWS" default:"50"`
	ProProposals         int `envconfig:"GIGMARKET_QUOTA_PRO_PROPOSALS" default:"100"`
	ProResponses         int `envconfig:"GIGMARKET_QUOTA_PRO_RESPONSES" default:"100"`
	BusinessContactViews int `envconfig:"GIGMARKET_QUOTA_BUSINESS_CONTACT_VIEWS" default:"-1"`
	BusinessProposals    int `envconfig:"GIGMARKET_QUOTA_BUSINESS_PROPOSALS" default:"-1"`
	BusinessResponses    int `envconfig:"GIGMARKET_QUOTA_BUSINESS_RESPONSES" default:"-1"`
}

type EmergencyConfig struct {
	RadiusKM      float64       `envconfig:"GIGMARKET_EMERGENCY_RADIUS_KM" default:"25"`
	MaxCandidates int           `envconfig:"GIGMARKET_EMERGENCY_MAX_CANDIDATES" default:"10"`
	ExpireAfter   time.Duration `envconfig:"GIGMARKET_EMERGENCY_EXPIRE_AFTER" default:"30m"`
	LocationTTL   time.Duration `envconfig:"GIGMARKET_EMERGENCY_LOCATION_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
