package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string

	DatabaseURL   string
	MemoryStore   bool
	RunMigrations bool

	JWTSecret    string
	JWTTTL       time.Duration
	CookieName   string
	CookieDomain string
	CookieSecure bool

	ObjectStoreType string
	LocalStoreDir   string
	PublicBaseURL   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	S3Endpoint      string
	S3AccessKeyID   string
	S3SecretKey     string
	S3SSE           string
	SSEKMSKeyID     string
	GCSBucket       string
	GCSPrefix       string
	GCSCredentials  string
	SignedURLTTL    time.Duration
	MaxUploadBytes  int64

	AIServiceURL      string
	AIQueryURL        string
	AITimeout         time.Duration
	AITokenURL        string
	AIClientID        string
	AIClientSecret    string
	AIRetryAttempts   int
	AIRetryBackoff    time.Duration
	AIBreakerEnabled  bool
	AIBreakerCooldown time.Duration

	WebhookBaseURL string
	WebhookSecret  string

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	port := getEnv("PORT", "8080")
	publicBase := strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+strings.TrimPrefix(port, ":")), "/")
	aiURL := strings.TrimRight(getEnv("AI_SERVICE_URL", ""), "/")
	queryURL := getEnv("AI_SERVICE_QUERY_URL", "")
	if queryURL == "" && aiURL != "" {
		queryURL = aiURL + "/api/v1/query"
	}

	return Config{
		Port:            port,
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),

		DatabaseURL:   databaseURL(),
		MemoryStore:   getBool("MEMORY_STORE", false),
		RunMigrations: getBool("RUN_MIGRATIONS", false),

		JWTSecret:    strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTTTL:       getDuration("JWT_TTL", time.Hour),
		CookieName:   getEnv("COOKIE_NAME", "access_token"),
		CookieDomain: getEnv("COOKIE_DOMAIN", ""),
		CookieSecure: getBool("COOKIE_SECURE", env == "production"),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		PublicBaseURL:   publicBase,
		AWSRegion:       getEnv("S3_REGION", getEnv("AWS_REGION", "")),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:   getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3SSE:           strings.ToLower(getEnv("S3_SSE", "off")),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		GCSBucket:       getEnv("GCS_BUCKET", ""),
		GCSPrefix:       getEnv("GCS_PREFIX", ""),
		GCSCredentials:  getEnv("GCS_CREDENTIALS_FILE", ""),
		SignedURLTTL:    getDuration("SIGNED_URL_TTL", 300*time.Second),
		MaxUploadBytes:  getInt64("MAX_UPLOAD_BYTES", 10<<20),

		AIServiceURL:      aiURL,
		AIQueryURL:        queryURL,
		AITimeout:         getDuration("AI_SERVICE_TIMEOUT", 30*time.Second),
		AITokenURL:        getEnv("AI_SERVICE_TOKEN_URL", ""),
		AIClientID:        getEnv("AI_SERVICE_CLIENT_ID", ""),
		AIClientSecret:    getEnv("AI_SERVICE_CLIENT_SECRET", ""),
		AIRetryAttempts:   int(getInt64("AI_RETRY_MAX_ATTEMPTS", 3)),
		AIRetryBackoff:    getDuration("AI_RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		AIBreakerEnabled:  getBool("AI_BREAKER_ENABLED", true),
		AIBreakerCooldown: getDuration("AI_BREAKER_OPEN_TIMEOUT", 30*time.Second),

		WebhookBaseURL: strings.TrimRight(getEnv("WEBHOOK_BASE_URL", publicBase), "/"),
		WebhookSecret:  strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: int(getInt64("RATE_LIMIT_BURST", 30)),
	}
}

// Validate reports configuration that must stop the process from starting.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" && !c.MemoryStore {
		errs = append(errs, errors.New("database parameters are required (DATABASE_URL or DB_HOST/DB_USER/DB_NAME)"))
	}
	if c.IsProduction() {
		if c.MemoryStore {
			errs = append(errs, errors.New("MEMORY_STORE is not allowed in production"))
		}
		if c.WebhookSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET is required in production"))
		}
	}
	if c.AIServiceURL == "" && !c.IsDevLike() {
		errs = append(errs, errors.New("AI_SERVICE_URL is required"))
	}
	switch c.ObjectStoreType {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("OBJECT_STORE=s3 requires S3_BUCKET"))
		}
	case "gcs":
		if c.GCSBucket == "" {
			errs = append(errs, errors.New("OBJECT_STORE=gcs requires GCS_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OBJECT_STORE %q", c.ObjectStoreType))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.SignedURLTTL <= 0 {
		errs = append(errs, errors.New("SIGNED_URL_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the process runs with production trust boundaries.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevLike reports whether the environment is a developer machine.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

// databaseURL prefers DATABASE_URL and otherwise assembles a DSN from DB_* parts.
func databaseURL() string {
	if raw := strings.TrimSpace(os.Getenv("DATABASE_URL")); raw != "" {
		return raw
	}
	host := strings.TrimSpace(os.Getenv("DB_HOST"))
	user := strings.TrimSpace(os.Getenv("DB_USER"))
	name := strings.TrimSpace(os.Getenv("DB_NAME"))
	if host == "" || user == "" || name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, os.Getenv("DB_PASSWORD")),
		Host:   host + ":" + getEnv("DB_PORT", "5432"),
		Path:   "/" + name,
	}
	q := url.Values{}
	q.Set("sslmode", getEnv("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config %s invalid bool %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		// Bare integers are seconds.
		if secs, convErr := strconv.Atoi(raw); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		log.Printf("config %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
