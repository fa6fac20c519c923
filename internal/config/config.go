package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

const (
	DefaultTokenTTL       = 7 * time.Hour
	DefaultLoanPeriod     = 15 * 24 * time.Hour
	DefaultLendingReserve = 1
	DefaultJWTAlgorithm   = "HS256"
	DefaultBcryptCost     = 10
)

type Config struct {
	Host string
	Port string

	DatabaseDriver string
	DatabaseURL    string

	JWTSecret    string
	JWTAlgorithm string
	TokenTTL     time.Duration

	// AdminAccessKey gates the bootstrap admin grant.
	AdminAccessKey string

	LoanPeriod time.Duration
	// LendingReserve is the number of copies that always stay on the shelf.
	LendingReserve int
	BcryptCost     int

	LogLevel  string
	LogFormat string

	CORSOrigin string
}

// Load reads .env (if present) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var errs *multierror.Error

	tokenTTL, err := getDuration("TOKEN_TTL", DefaultTokenTTL)
	errs = multierror.Append(errs, err)
	loanPeriod, err := getDuration("LOAN_PERIOD", DefaultLoanPeriod)
	errs = multierror.Append(errs, err)
	reserve, err := getInt("LENDING_RESERVE", DefaultLendingReserve)
	errs = multierror.Append(errs, err)
	cost, err := getInt("BCRYPT_COST", DefaultBcryptCost)
	errs = multierror.Append(errs, err)

	cfg := &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    getDatabaseURL(),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTAlgorithm:   getEnv("JWT_ALGORITHM", DefaultJWTAlgorithm),
		TokenTTL:       tokenTTL,
		AdminAccessKey: getEnv("ADMIN_ACCESS_KEY", ""),
		LoanPeriod:     loanPeriod,
		LendingReserve: reserve,
		BcryptCost:     cost,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		CORSOrigin:     getEnv("CORS_ORIGIN", "http://localhost:5173"),
	}

	errs = multierror.Append(errs, cfg.Validate())

	return cfg, errs.ErrorOrNil()
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.JWTSecret == "" {
		result = multierror.Append(result, errors.New("JWT_SECRET is required"))
	}
	if c.AdminAccessKey == "" {
		result = multierror.Append(result, errors.New("ADMIN_ACCESS_KEY is required"))
	}
	switch c.DatabaseDriver {
	case "postgres", "pgx", "sqlite3":
	default:
		result = multierror.Append(result, fmt.Errorf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}
	if c.TokenTTL <= 0 {
		result = multierror.Append(result, errors.New("TOKEN_TTL must be positive"))
	}
	if c.LoanPeriod <= 0 {
		result = multierror.Append(result, errors.New("LOAN_PERIOD must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		result = multierror.Append(result, fmt.Errorf("BCRYPT_COST %d is outside 4..31", c.BcryptCost))
	}
	if c.LendingReserve < 0 {
		result = multierror.Append(result, errors.New("LENDING_RESERVE must not be negative"))
	}

	return result.ErrorOrNil()
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	if strings.EqualFold(os.Getenv("DATABASE_DRIVER"), "sqlite3") {
		return getEnv("DB_PATH", "library.db")
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "library")
	sslmode := getEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode,
	)
}

func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
