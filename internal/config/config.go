// Package config builds the process-wide configuration once at startup.
//
// Values are layered: struct defaults, then an optional YAML file (CONFIG_PATH),
// then environment variables. The resulting Config is validated and passed by
// reference into the token codec, the database layer and the HTTP API.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML configuration file.
const ConfigPathEnvVar = "CONFIG_PATH"

// ErrMissingSecret is returned when JWT_SECRET is unset or one of the known placeholder values.
var ErrMissingSecret = errors.New("config: JWT_SECRET must be set to a non-default value")

// insecureSecrets are placeholder secrets that must never sign production tokens.
var insecureSecrets = map[string]struct{}{
	"rahasia":           {},
	"secret123":         {},
	"access_secret_key": {},
	"secret":            {},
	"changeme":          {},
}

// Config is the full service configuration.
type Config struct {
	HTTPAddr    string          `koanf:"http_addr"`
	GRPCAddr    string          `koanf:"grpc_addr"`
	LogLevel    string          `koanf:"log_level"`
	CORSOrigins []string        `koanf:"cors_origins"`
	Auth        AuthConfig      `koanf:"auth"`
	DB          DBConfig        `koanf:"db"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

// AuthConfig configures token issuance and the session cookie.
type AuthConfig struct {
	JWTSecret    string        `koanf:"jwt_secret"`
	JWTIssuer    string        `koanf:"jwt_issuer"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// DBConfig holds the relational database connection settings.
type DBConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	User         string        `koanf:"user"`
	Password     string        `koanf:"password"`
	Name         string        `koanf:"name"`
	SSLMode      string        `koanf:"sslmode"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	ConnMaxLife  time.Duration `koanf:"conn_max_lifetime"`
}

// RateLimitConfig tunes the per-IP limiter in front of the auth endpoints.
type RateLimitConfig struct {
	Burst     int `koanf:"burst"`
	PerSecond int `koanf:"per_second"`
}

// envKeys maps the flat environment names to koanf paths.
var envKeys = map[string]string{
	"HTTP_ADDR":            "http_addr",
	"GRPC_ADDR":            "grpc_addr",
	"LOG_LEVEL":            "log_level",
	"CORS_ORIGINS":         "cors_origins",
	"JWT_SECRET":           "auth.jwt_secret",
	"JWT_ISSUER":           "auth.jwt_issuer",
	"JWT_TTL":              "auth.token_ttl",
	"COOKIE_SECURE":        "auth.cookie_secure",
	"DB_HOST":              "db.host",
	"DB_PORT":              "db.port",
	"DB_USER":              "db.user",
	"DB_PASS":              "db.password",
	"DB_NAME":              "db.name",
	"DB_SSLMODE":           "db.sslmode",
	"DB_MAX_OPEN_CONNS":    "db.max_open_conns",
	"DB_MAX_IDLE_CONNS":    "db.max_idle_conns",
	"DB_CONN_MAX_LIFETIME": "db.conn_max_lifetime",
	"RATE_LIMIT_BURST":     "rate_limit.burst",
	"RATE_LIMIT_PER_SEC":   "rate_limit.per_second",
}

// Defaults returns the configuration used before file and environment overrides.
func Defaults() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		LogLevel: "info",
		Auth: AuthConfig{
			JWTIssuer:    "rcsa",
			TokenTTL:     8 * time.Hour,
			CookieSecure: false,
		},
		DB: DBConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "rcsa",
			Name:         "rcsa",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 10,
			ConnMaxLife:  30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Burst:     10,
			PerSecond: 5,
		},
	}
}

// Load reads defaults, the optional config file and the environment.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDB is Load for tools that only talk to the database.
func LoadDB() (*DBConfig, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.DB.Validate(); err != nil {
		return nil, err
	}
	return &cfg.DB, nil
}

func load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(ConfigPathEnvVar)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func envValue(key, value string) (string, any) {
	path, ok := envKeys[key]
	if !ok || strings.TrimSpace(value) == "" {
		return "", nil
	}
	if path == "cors_origins" {
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return path, origins
	}
	return path, strings.TrimSpace(value)
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	secret := strings.TrimSpace(c.Auth.JWTSecret)
	if secret == "" {
		return ErrMissingSecret
	}
	if _, bad := insecureSecrets[strings.ToLower(secret)]; bad {
		return ErrMissingSecret
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: JWT_TTL must be positive")
	}
	if err := c.DB.Validate(); err != nil {
		return err
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		return errors.New("config: rate limit burst and per-second must be positive")
	}
	return nil
}

func (c DBConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" || strings.TrimSpace(c.Name) == "" {
		return errors.New("config: DB_HOST and DB_NAME are required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid DB_PORT %d", c.Port)
	}
	if c.MaxOpenConns <= 0 {
		return errors.New("config: DB_MAX_OPEN_CONNS must be positive")
	}
	return nil
}

// DSN renders the database settings as a connection URL for the pgx driver.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
