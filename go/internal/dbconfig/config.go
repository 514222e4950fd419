package dbconfig

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// Config holds Postgres connection settings.
type Config struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewConfigFromEnv reads DATABASE_URL or the DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}

	return Config{
		URL:      os.Getenv("DATABASE_URL"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "quizrooms"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

// DSN returns the Postgres connection URL. DATABASE_URL wins when set.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Redacted returns the DSN with the password masked, for logging.
func (c Config) Redacted() string {
	u, err := url.Parse(c.DSN())
	if err != nil {
		return "postgres://invalid"
	}
	return u.Redacted()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
