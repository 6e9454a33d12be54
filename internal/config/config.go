package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the goals backend server configuration
type Config struct {
	Port            string
	Environment     string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseJWKSURL string // JWKS_URL, or SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string
	// LLM Configuration
	OpenRouterAPIKey string
	DefaultProvider  string // "openrouter" or "lorem"
	// Stream rate limiting, per user
	StreamRateLimit float64 // requests per second
	StreamBurst     int
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)
	supabaseURL := getEnv("SUPABASE_URL", "")

	jwksURL := getEnv("JWKS_URL", "")
	if jwksURL == "" && supabaseURL != "" {
		jwksURL = supabaseURL + "/auth/v1/.well-known/jwks.json"
	}

	openRouterKey := getEnv("OPENROUTER_API_KEY", "")

	return &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      env,
		DatabaseURL:      getEnv("DATABASE_URL", getEnv("SUPABASE_DB_URL", "")),
		SupabaseURL:      supabaseURL,
		SupabaseJWKSURL:  jwksURL,
		CORSOrigins:      getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:      tablePrefix,
		OpenRouterAPIKey: openRouterKey,
		DefaultProvider:  getEnv("DEFAULT_PROVIDER", getDefaultProvider(openRouterKey)),
		StreamRateLimit:  getEnvFloat("STREAM_RATE_LIMIT", 1),
		StreamBurst:      getEnvInt("STREAM_BURST", 5),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// AuthEnabled reports whether bearer tokens are verified.
func (c *Config) AuthEnabled() bool {
	return c.SupabaseJWKSURL != ""
}

// ClientConfig configures the engine hosted by goalctl
type ClientConfig struct {
	APIURL       string
	UserID       string
	Token        string
	CachePath    string
	SaveDebounce time.Duration
	FallbackPool []string // empty means the catalog pool
	LogDir       string
}

// Client defaults, shared with the CLI flag definitions
const (
	DefaultAPIURL       = "http://localhost:8080/api/v1"
	DefaultSaveDebounce = 2 * time.Second
	DefaultCacheFile    = "goalbreaker/cache.db"
)

// LoadClient reads the GOALBREAKER_* environment.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		APIURL:       getEnv("GOALBREAKER_API_URL", DefaultAPIURL),
		UserID:       getEnv("GOALBREAKER_USER_ID", ""),
		Token:        getEnv("GOALBREAKER_TOKEN", ""),
		CachePath:    getEnv("GOALBREAKER_CACHE_PATH", DefaultCachePath()),
		SaveDebounce: getEnvDuration("GOALBREAKER_SAVE_DEBOUNCE", DefaultSaveDebounce),
		FallbackPool: SplitList(getEnv("GOALBREAKER_FALLBACK_POOL", "")),
		LogDir:       getEnv("GOALBREAKER_LOG_DIR", ""),
	}
}

// DefaultCachePath places the cache under the user cache directory.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return DefaultCacheFile
	}
	return dir + string(os.PathSeparator) + DefaultCacheFile
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

// getDefaultProvider falls back to the offline lorem provider when no key is configured
func getDefaultProvider(openRouterKey string) string {
	if openRouterKey == "" {
		return "lorem"
	}
	return "openrouter"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
