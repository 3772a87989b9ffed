package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Rrens/event-chat/internal/security"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Mail     MailConfig     `mapstructure:"mail"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	BasePath          string        `mapstructure:"base_path"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MinConns       int32  `mapstructure:"min_conns"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// MigrationsURL returns the golang-migrate source URL for the migrations directory
func (c DatabaseConfig) MigrationsURL() string {
	return "file://" + c.MigrationsPath
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	SitePassword string        `mapstructure:"site_password"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	ResetTTL     time.Duration `mapstructure:"reset_ttl"`
	BcryptCost   int           `mapstructure:"bcrypt_cost"`
	CookieName   string        `mapstructure:"cookie_name"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
	MinPassword  int           `mapstructure:"min_password"`
}

type ChatConfig struct {
	PresenceWindow   time.Duration `mapstructure:"presence_window"`
	HistoryLimit     int           `mapstructure:"history_limit"`
	HistoryMaxLimit  int           `mapstructure:"history_max_limit"`
	PollLookback     time.Duration `mapstructure:"poll_lookback"`
	PollMaxMessages  int           `mapstructure:"poll_max_messages"`
	MaxContentLength int           `mapstructure:"max_content_length"`
	AttendeeLimit    int           `mapstructure:"attendee_limit"`
}

type MailConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	From         string        `mapstructure:"from"`
	ResetURLBase string        `mapstructure:"reset_url_base"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether an outbound mail API is configured
func (c MailConfig) Enabled() bool {
	return c.BaseURL != "" && c.TokenURL != ""
}

type WorkerConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
	SendPerMinute     int `mapstructure:"send_per_minute"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   string        `mapstructure:"file"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Auth.SitePassword == "" {
		return nil, fmt.Errorf("auth.site_password (CHAT_SITE_PASSWORD) is required")
	}
	// bcrypt limit; the site password is hashed when an account is claimed
	if len(cfg.Auth.SitePassword) > security.MaxPasswordBytes {
		return nil, fmt.Errorf("auth.site_password must be at most %d bytes", security.MaxPasswordBytes)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.middleware_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.base_path", "/api/chat")

	// Database
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "eventchat")
	v.SetDefault("database.database", "eventchat")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.sqlite_path", "./data/chat.db")
	v.SetDefault("database.migrations_path", "./migrations")
	v.SetDefault("database.auto_migrate", false)

	// Redis
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Auth
	v.SetDefault("auth.session_ttl", "168h") // 7 days
	v.SetDefault("auth.reset_ttl", "1h")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.cookie_name", "chat-token")
	v.SetDefault("auth.secure_cookie", false)
	v.SetDefault("auth.min_password", 4)

	// Chat
	v.SetDefault("chat.presence_window", "5m")
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.history_max_limit", 100)
	v.SetDefault("chat.poll_lookback", "30s")
	v.SetDefault("chat.poll_max_messages", 100)
	v.SetDefault("chat.max_content_length", 2000)
	v.SetDefault("chat.attendee_limit", 50)

	// Mail
	v.SetDefault("mail.timeout", "10s")
	v.SetDefault("mail.reset_url_base", "http://localhost:3000/chat/reset-password")

	// Worker
	v.SetDefault("worker.max_concurrent", 64)
	v.SetDefault("worker.task_timeout", "5s")

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 10)
	v.SetDefault("security.rate_limit.burst", 5)
	v.SetDefault("security.rate_limit.send_per_minute", 60)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age", "168h")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("env", "ENV")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "POSTGRES_HOST")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")
	v.BindEnv("database.sqlite_path", "SQLITE_PATH")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Auth
	v.BindEnv("auth.site_password", "CHAT_SITE_PASSWORD")
	v.BindEnv("auth.secure_cookie", "SECURE_COOKIE")

	// Mail
	v.BindEnv("mail.base_url", "MAIL_API_URL")
	v.BindEnv("mail.token_url", "MAIL_TOKEN_URL")
	v.BindEnv("mail.client_id", "MAIL_CLIENT_ID")
	v.BindEnv("mail.client_secret", "MAIL_CLIENT_SECRET")
	v.BindEnv("mail.from", "MAIL_FROM")
	v.BindEnv("mail.reset_url_base", "RESET_URL_BASE")
}
