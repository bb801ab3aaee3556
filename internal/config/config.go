// Package config loads server settings from the environment, after reading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted in STORE_DRIVER.
const (
	DriverSQLite    = "sqlite"
	DriverMongo     = "mongo"
	DriverFirestore = "firestore"
)

const defaultMongoDatabase = "recipe-finder"

type Config struct {
	Port           int
	LogLevel       slog.Level
	ClientURL      string   // frontend origin; where the browser lands after login
	AllowedOrigins []string // CORS origins, from ALLOWED_ORIGINS or CLIENT_URL

	StoreDriver        string
	DBPath             string
	MongoURI           string
	MongoDatabase      string
	FirestoreProjectID string

	RedisURL string // empty disables the cache
	CacheTTL time.Duration

	JWTSecret          string // empty disables authentication
	RequireAuth        bool
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Load reads .env (a missing file is fine), then the environment, and
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "5000"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid PORT: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: invalid LOG_LEVEL: %w", err)
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid CACHE_TTL: %w", err)
	}

	requireAuth, err := strconv.ParseBool(getEnv("REQUIRE_AUTH", "false"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid REQUIRE_AUTH: %w", err)
	}

	clientURL := getEnv("CLIENT_URL", "http://localhost:3000")
	origins := parseList(getEnv("ALLOWED_ORIGINS", ""))
	if len(origins) == 0 {
		origins = parseList(clientURL)
	}

	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017/"+defaultMongoDatabase)

	cfg := &Config{
		Port:           port,
		LogLevel:       level,
		ClientURL:      clientURL,
		AllowedOrigins: origins,

		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DBPath:             getEnv("DB_PATH", "data/recipes.db"),
		MongoURI:           mongoURI,
		MongoDatabase:      getEnv("MONGO_DATABASE", databaseFromURI(mongoURI)),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),

		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: cacheTTL,

		JWTSecret:          getEnv("JWT_SECRET", ""),
		RequireAuth:        requireAuth,
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	case DriverFirestore:
		if c.FirestoreProjectID == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT_ID is required for the firestore driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q (want sqlite, mongo or firestore)", c.StoreDriver))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.RequireAuth && c.JWTSecret == "" {
		errs = append(errs, errors.New("REQUIRE_AUTH needs JWT_SECRET"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// AuthEnabled reports whether identity tokens are checked at all.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// GitHubEnabled reports whether the GitHub login routes should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.AuthEnabled() && c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// databaseFromURI takes the database name from the path of a MongoDB URI,
// e.g. mongodb://host:27017/recipes?retryWrites=true → "recipes".
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
