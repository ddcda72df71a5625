package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Session store backends
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Session       SessionConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Secrets       SecretsConfig
	RateLimit     RateLimitConfig
	Pages         PagesConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// TrustedProxies lists CIDRs or addresses allowed to set X-Forwarded-For
	TrustedProxies  []string
}

// SessionConfig holds session cookie and store settings
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Store      string
	MaxEntries int
	// EncSecret is the encrypted cookie signing secret
	EncSecret string
	Secure    bool
}

// DatabaseConfig selects the user directory backend
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// RedisConfig holds the redis connection used for sessions and rate limits
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig describes which identity providers are enabled. A nil provider
// section means the provider is not offered.
type AuthConfig struct {
	Google          *GoogleConfig
	Slack           *SlackConfig
	LocalUsersPath  string
	WatchLocalUsers bool
	PostLoginPath   string
}

// GoogleConfig configures the Google OAuth provider
type GoogleConfig struct {
	ClientID        string
	EncClientSecret string
	CallbackURL     string
	IssuerURL       string
}

// SlackConfig configures the Slack OAuth provider
type SlackConfig struct {
	ClientID        string
	EncClientSecret string
	CallbackURL     string
	TeamID          string
}

// SecretsConfig holds the key material for decrypting enc* values
type SecretsConfig struct {
	MasterKey string
	Salt      string
}

// RateLimitConfig limits anonymous endpoints per client
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// PagesConfig points at the HTML served to authenticated users
type PagesConfig struct {
	MainPagePath string
}

// AuditConfig enables the JSON-lines audit file. Events always reach the
// application log; LogPath adds a file sink when set.
type AuditConfig struct {
	LogPath  string
	Rotate   bool
	MaxSize  int64
	MaxFiles int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// fileConfig mirrors the keys of the portal's YAML configuration file
type fileConfig struct {
	GoogleClientID          string `yaml:"googleClientId"`
	EncGoogleClientSecret   string `yaml:"encGoogleClientSecret"`
	GoogleOauthCallbackURL  string `yaml:"googleOauthCallbackUrl"`
	SlackClientID           string `yaml:"slackClientId"`
	EncSlackClientSecret    string `yaml:"encSlackClientSecret"`
	SlackOauthCallbackURL   string `yaml:"slackOauthCallbackUrl"`
	SlackTeamID             string `yaml:"slackTeamId"`
	LocalUsersPath          string `yaml:"localUsersPath"`
	EncExpressSessionSecret string `yaml:"encExpressSessionSecret"`
	IsSecure                *bool  `yaml:"isSecure"`
	MainPagePath            string `yaml:"mainPagePath"`
	DatabaseDriver          string `yaml:"databaseDriver"`
	DatabaseDSN             string `yaml:"databaseDsn"`
	RedisURL                string `yaml:"redisUrl"`
}

// LoadConfig loads configuration from the optional YAML file named by
// PORTAL_CONFIG_FILE, overridden by PORTAL_* environment variables.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("PORTAL_CONFIG_FILE"))
}

// Load reads the YAML file at path (skipped when empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Session:       loadSessionConfig(file),
		Database:      loadDatabaseConfig(file),
		Redis:         loadRedisConfig(file),
		Auth:          loadAuthConfig(file),
		Secrets:       LoadSecretsConfig(),
		RateLimit:     loadRateLimitConfig(),
		Pages:         PagesConfig{MainPagePath: getEnv("PORTAL_MAIN_PAGE", file.MainPagePath)},
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PORTAL_HOST", "0.0.0.0"),
		Port:            getEnv("PORTAL_PORT", "8081"),
		ReadTimeout:     getEnvDuration("PORTAL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PORTAL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PORTAL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PORTAL_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("PORTAL_MAX_BODY_BYTES", 1<<20),
		TrustedProxies:  getEnvList("PORTAL_TRUSTED_PROXIES"),
	}
}

func loadSessionConfig(file fileConfig) SessionConfig {
	secure := false
	if file.IsSecure != nil {
		secure = *file.IsSecure
	}
	return SessionConfig{
		CookieName: getEnv("PORTAL_SESSION_COOKIE", "portal.sid"),
		TTL:        getEnvDuration("PORTAL_SESSION_TTL", 24*time.Hour),
		Store:      getEnv("PORTAL_SESSION_STORE", SessionStoreMemory),
		MaxEntries: getEnvInt("PORTAL_SESSION_MAX_ENTRIES", 10000),
		EncSecret:  getEnv("PORTAL_ENC_SESSION_SECRET", file.EncExpressSessionSecret),
		Secure:     getEnvBool("PORTAL_SECURE_COOKIES", secure),
	}
}

func loadDatabaseConfig(file fileConfig) DatabaseConfig {
	return DatabaseConfig{
		Driver: getEnv("PORTAL_DB_DRIVER", orDefault(file.DatabaseDriver, DriverSQLite)),
		DSN:    getEnv("PORTAL_DB_DSN", orDefault(file.DatabaseDSN, "portal.db")),
	}
}

func loadRedisConfig(file fileConfig) RedisConfig {
	return RedisConfig{
		URL:          getEnv("PORTAL_REDIS_URL", file.RedisURL),
		PoolSize:     getEnvInt("PORTAL_REDIS_POOL_SIZE", 10),
		DialTimeout:  getEnvDuration("PORTAL_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("PORTAL_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("PORTAL_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func loadAuthConfig(file fileConfig) AuthConfig {
	cfg := AuthConfig{
		LocalUsersPath:  getEnv("PORTAL_LOCAL_USERS_PATH", file.LocalUsersPath),
		WatchLocalUsers: getEnvBool("PORTAL_WATCH_LOCAL_USERS", false),
		PostLoginPath:   getEnv("PORTAL_POST_LOGIN_PATH", "/main"),
	}

	if clientID := getEnv("PORTAL_GOOGLE_CLIENT_ID", file.GoogleClientID); clientID != "" {
		cfg.Google = &GoogleConfig{
			ClientID:        clientID,
			EncClientSecret: getEnv("PORTAL_ENC_GOOGLE_CLIENT_SECRET", file.EncGoogleClientSecret),
			CallbackURL:     getEnv("PORTAL_GOOGLE_CALLBACK_URL", file.GoogleOauthCallbackURL),
			IssuerURL:       getEnv("PORTAL_GOOGLE_ISSUER_URL", "https://accounts.google.com"),
		}
	}

	if clientID := getEnv("PORTAL_SLACK_CLIENT_ID", file.SlackClientID); clientID != "" {
		cfg.Slack = &SlackConfig{
			ClientID:        clientID,
			EncClientSecret: getEnv("PORTAL_ENC_SLACK_CLIENT_SECRET", file.EncSlackClientSecret),
			CallbackURL:     getEnv("PORTAL_SLACK_CALLBACK_URL", file.SlackOauthCallbackURL),
			TeamID:          getEnv("PORTAL_SLACK_TEAM_ID", file.SlackTeamID),
		}
	}

	return cfg
}

// LoadSecretsConfig reads the master key settings from the environment. It is
// usable on its own for tooling that only encrypts values.
func LoadSecretsConfig() SecretsConfig {
	return SecretsConfig{
		MasterKey: getEnv("PORTAL_MASTER_KEY", ""),
		Salt:      getEnv("PORTAL_MASTER_SALT", "portal"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("PORTAL_RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("PORTAL_RATE_LIMIT_RPM", 60),
		Burst:             getEnvInt("PORTAL_RATE_LIMIT_BURST", 10),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		LogPath:  getEnv("PORTAL_AUDIT_LOG_PATH", ""),
		Rotate:   getEnvBool("PORTAL_AUDIT_ROTATE", true),
		MaxSize:  getEnvInt64("PORTAL_AUDIT_MAX_SIZE", 100*1024*1024),
		MaxFiles: getEnvInt("PORTAL_AUDIT_MAX_FILES", 10),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("PORTAL_LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("PORTAL_METRICS_ENABLED", true),
	}
}

// LocalAuthEnabled reports whether a local users file is configured
func (c *Config) LocalAuthEnabled() bool {
	return c.Auth.LocalUsersPath != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}

	switch c.Session.Store {
	case SessionStoreMemory:
		if c.Session.MaxEntries <= 0 {
			return errors.New("session max entries must be positive")
		}
	case SessionStoreRedis:
		if c.Redis.URL == "" {
			return errors.New("redis URL is required for the redis session store")
		}
	default:
		return fmt.Errorf("invalid session store: %s (must be memory or redis)", c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.EncSecret == "" {
		return errors.New("encExpressSessionSecret is required")
	}
	if c.Secrets.MasterKey == "" {
		return errors.New("PORTAL_MASTER_KEY is required to decrypt configuration secrets")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite3 or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}

	if g := c.Auth.Google; g != nil {
		if g.EncClientSecret == "" || g.CallbackURL == "" {
			return errors.New("google provider requires encGoogleClientSecret and googleOauthCallbackUrl")
		}
	}
	if s := c.Auth.Slack; s != nil {
		if s.EncClientSecret == "" || s.CallbackURL == "" {
			return errors.New("slack provider requires encSlackClientSecret and slackOauthCallbackUrl")
		}
		if s.TeamID == "" {
			return errors.New("slack provider requires slackTeamId")
		}
	}
	if !strings.HasPrefix(c.Auth.PostLoginPath, "/") {
		return fmt.Errorf("post-login path must be absolute: %q", c.Auth.PostLoginPath)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("rate limit requests per minute must be positive when enabled")
	}

	if c.Audit.LogPath != "" && (c.Audit.MaxSize <= 0 || c.Audit.MaxFiles <= 0) {
		return errors.New("audit max size and max files must be positive")
	}

	return nil
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable as a list
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
