package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/service/payout"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultPayoutCurrency    = payout.DefaultCurrency
	defaultReconcileInterval = 30 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the api will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Payment processor api key
	StripeSecretKey string

	// Redis address for notification fan-out, notifications are only stored when empty
	RedisAddr string

	// Currency of bank payouts, one credit is one unit of it
	PayoutCurrency string

	// How often unfinished payouts are looked up
	ReconcileInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		ListenAddr:        defaultListenAddr,
		Environment:       defaultEnvironment,
		PayoutCurrency:    defaultPayoutCurrency,
		ReconcileInterval: defaultReconcileInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"STRIPE_SECRET_KEY":  setString(&c.StripeSecretKey),
		"REDIS_ADDRESS":      setString(&c.RedisAddr),
		"PAYOUT_CURRENCY":    setString(&c.PayoutCurrency),
		"RECONCILE_INTERVAL": setDuration(&c.ReconcileInterval),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("medipals", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.StripeSecretKey, "stripe-key", c.StripeSecretKey, "Payment processor secret key")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for notification fan-out")
	fs.StringVar(&c.PayoutCurrency, "payout-currency", c.PayoutCurrency, "Currency of bank payouts")
	fs.DurationVar(&c.ReconcileInterval, "reconcile-interval", c.ReconcileInterval, "Unfinished payouts lookup interval")

	return fs.Parse(args)
}

// Validate checks options the app can't start without
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("payment processor key is required"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("reconcile interval must be positive"))
	}

	return errors.Join(errs...)
}
