package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	App      App
	Log      Log
	Database Database
}

// App captures HTTP server level configuration.
type App struct {
	Host        string `env:"HOST" envDefault:"127.0.0.1"`
	Port        int    `env:"PORT" envDefault:"8000"`
	ProxyPrefix string `env:"PROXY_PREFIX"`
	ProjectName string `env:"PROJECT_NAME" envDefault:"API"`
	Mode        string `env:"MODE" envDefault:"dev"`
	Version     string `env:"VERSION" envDefault:"0.1.0"`

	CORSAllowOrigins     string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	CORSAllowCredentials bool   `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSAllowMethods     string `env:"CORS_ALLOW_METHODS" envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowHeaders     string `env:"CORS_ALLOW_HEADERS" envDefault:"*"`

	SecurityToken  string        `env:"SECURITY_TOKEN" envDefault:"secret"`
}

// Log controls the structured logger.
type Log struct {
	Level      string `env:"LOG_LEVEL" envDefault:"INFO"`
	Format     string `env:"LOG_FORMAT" envDefault:"text"`
	Dir        string `env:"LOGS_DIR"`
	RotationMB int    `env:"LOG_ROTATION_MB" envDefault:"200"`
}

// Database describes how to reach the registrant table.
type Database struct {
	Driver       string `env:"DB_DRIVER" envDefault:"postgres"`
	User         string `env:"DB_USER"`
	Password     string `env:"DB_PASSWORD"`
	Host         string `env:"DB_HOST" envDefault:"localhost"`
	Port         string `env:"DB_PORT" envDefault:"5432"`
	Name         string `env:"DB_NAME"`
	OverrideURL  string `env:"DB_OVERRIDE_URL"`
	SSLMode      string `env:"DB_SSLMODE" envDefault:"disable"`
	Table        string `env:"DB_TABLE" envDefault:"pessoa"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	// QueryTimeout bounds the store work done for a single request.
	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file and then the environment.
// A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Database.Table == "" {
		return Config{}, fmt.Errorf("DB_TABLE must not be empty")
	}
	return cfg, nil
}

// Addr is the listen address.
func (a App) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsProd reports whether the service runs in production mode.
func (a App) IsProd() bool {
	return a.Mode == "prod"
}

// Title is the upper-cased project name, suffixed with the mode outside prod.
func (a App) Title() string {
	title := strings.ToUpper(a.ProjectName)
	if a.IsProd() {
		return title
	}
	return title + "-" + strings.ToUpper(a.Mode)
}

// APIKey is the value callers must present: the hex SHA-256 of SecurityToken.
func (a App) APIKey() string {
	sum := sha256.Sum256([]byte(a.SecurityToken))
	return hex.EncodeToString(sum[:])
}

// URL returns the connection string, preferring DB_OVERRIDE_URL.
func (d Database) URL() string {
	if d.OverrideURL != "" {
		return d.OverrideURL
	}
	u := url.URL{
		Scheme: d.Driver,
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// SplitList splits a comma separated setting, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
