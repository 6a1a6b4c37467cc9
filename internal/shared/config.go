package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	App         AppConfig         `toml:"app"`
	Credentials CredentialsConfig `toml:"credentials"`
	Frontend    FrontendConfig    `toml:"frontend"`
	Session     SessionConfig     `toml:"session"`
	CORS        CORSConfig        `toml:"cors"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Server      ServerConfig      `toml:"server"`
	Paths       PathsConfig       `toml:"paths"`
	Log         LogConfig         `toml:"log"`
}

// AppConfig names the deployment environment.
type AppConfig struct {
	Name string `toml:"name"`
	Env  string `toml:"env"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	Timeout      string `toml:"timeout"`
}

// TimeoutDuration parses Timeout, falling back to 10 seconds.
func (c SpotifyConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// FrontendConfig points at the single page app that receives tokens.
type FrontendConfig struct {
	URL string `toml:"url"`
}

// SessionConfig controls the session cookie and its backing store.
type SessionConfig struct {
	Name       string `toml:"name"`
	Secret     string `toml:"secret"`
	Store      string `toml:"store"` // memory, redis or sql
	MaxAgeDays int    `toml:"max_age_days"`
}

// MaxAge returns the cookie lifetime.
func (c SessionConfig) MaxAge() time.Duration {
	days := c.MaxAgeDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// CORSConfig is the cross-origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	AllowedMethods []string `toml:"allowed_methods"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver       string `toml:"driver"` // sqlite3 or postgres
	Path         string `toml:"path"`
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// DSN returns the data source name for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == DriverPostgres || c.URL != "" {
		return c.URL
	}
	return c.Path
}

// RedisConfig contains the redis connection URL used by the redis session store.
type RedisConfig struct {
	URL string `toml:"url"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port"`
	APIPrefix string  `toml:"api_prefix"`
	RateLimit float64 `toml:"rate_limit"` // requests per second per client on mounted routes, 0 disables
	RateBurst int     `toml:"rate_burst"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PathsConfig locates the plugin directories and static assets.
type PathsConfig struct {
	Routes string `toml:"routes"`
	Models string `toml:"models"`
	Public string `toml:"public"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// IsProduction reports whether the app runs with env "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// IsDevelopment reports whether the app runs with env "development".
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.Env, "development")
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads a .env file into the process environment when one exists.
//
// Variables already present in the environment win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides config values from environment variables looked up through getenv.
// Pass [os.Getenv] in production code.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	set(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	set(&c.Credentials.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")
	set(&c.Frontend.URL, "FRONTEND_URL")
	set(&c.Session.Secret, "SESSION_SECRET")
	set(&c.Session.Store, "SESSION_STORE")
	set(&c.App.Env, "APP_ENV", "NODE_ENV")
	set(&c.Database.Driver, "DATABASE_DRIVER")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Redis.URL, "REDIS_URL")
	set(&c.Log.Level, "LOG_LEVEL")

	if v := getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Resolve loads the configuration the way every command does: embedded defaults,
// then the TOML file at path (if it exists), then .env and environment overrides.
func Resolve(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	config.ApplyEnv(os.Getenv)
	return config, nil
}
