package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment      string
	LogLevel         string
	Addr             string
	DatabaseURL      string
	JWTSecret        string
	AccessTokenTTL   time.Duration
	SecretEncryptKey string

	// Network identity used for DNS verification and mapping instructions.
	NetworkDomain string
	NetworkIPs    []string

	DomainStageMaxTries   int
	DomainStageRetryDelay time.Duration
	DNSQueryTimeout       time.Duration
	DNSResolvers          []string
	TLSCheckTimeout       time.Duration

	QueueRedisAddr    string
	QueueRedisPass    string
	QueueRedisDB      int
	QueuePollInterval time.Duration
	QueueTaskTimeout  time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	EventsThresholdDays int
	WebhookTimeout      time.Duration
	WebhookRatePerSec   int

	NginxContainerName string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	LogBuffer int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:           GetString("APP_ENV", "development"),
		LogLevel:              GetString("LOG_LEVEL", "info"),
		Addr:                  GetString("API_ADDR", ":4000"),
		DatabaseURL:           GetString("DATABASE_URL", "postgres://domainmap:domainmap@db:5432/domainmap?sslmode=disable"),
		JWTSecret:             GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:        time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
		SecretEncryptKey:      GetString("SECRET_ENCRYPTION_KEY", "supersecuresecret"),
		NetworkDomain:         GetString("NETWORK_DOMAIN", "network.local"),
		NetworkIPs:            GetList("NETWORK_IP", nil),
		DomainStageMaxTries:   GetInt("DOMAIN_STAGE_MAX_TRIES", 5),
		DomainStageRetryDelay: time.Duration(GetInt("DOMAIN_STAGE_RETRY_MINUTES", 5)) * time.Minute,
		DNSQueryTimeout:       GetSeconds("DNS_QUERY_TIMEOUT_SECONDS", 5),
		DNSResolvers:          GetList("DNS_RESOLVERS", []string{"1.1.1.1:53", "8.8.8.8:53"}),
		TLSCheckTimeout:       GetSeconds("TLS_CHECK_TIMEOUT_SECONDS", 10),
		QueueRedisAddr:        GetString("QUEUE_REDIS_ADDR", ""),
		QueueRedisPass:        GetString("QUEUE_REDIS_PASSWORD", ""),
		QueueRedisDB:          GetInt("QUEUE_REDIS_DB", 0),
		QueuePollInterval:     time.Duration(GetInt("QUEUE_POLL_MS", 1000)) * time.Millisecond,
		QueueTaskTimeout:      GetSeconds("QUEUE_TASK_TIMEOUT_SECONDS", 60),
		RateLimitRedisAddr:    GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:    GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:      GetInt("RATE_LIMIT_REDIS_DB", 0),
		EventsThresholdDays:   GetInt("EVENTS_THRESHOLD_DAYS", 1),
		WebhookTimeout:        GetSeconds("WEBHOOK_TIMEOUT_SECONDS", 10),
		WebhookRatePerSec:     GetInt("WEBHOOK_RATE_PER_SECOND", 5),
		NginxContainerName:    GetString("NGINX_CONTAINER_NAME", ""),
		StripeSecretKey:       GetString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:   GetString("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:    GetString("CHECKOUT_SUCCESS_URL", "http://localhost:4000/checkout/success"),
		CheckoutCancelURL:     GetString("CHECKOUT_CANCEL_URL", "http://localhost:4000/checkout/cancel"),
		LogBuffer:             GetInt("WS_LOG_BUFFER", 100),
	}
}
