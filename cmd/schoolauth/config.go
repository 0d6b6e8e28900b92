package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/service/schoology"
	"github.com/nkiryanov/schoolauth/internal/service/sweeper"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Environment
	Environment string

	// Schoology API base url and application credentials
	SchoologyURL            string
	SchoologyConsumerKey    string
	SchoologyConsumerSecret string

	// Timeout of a single Schoology API call
	SchoologyTimeout time.Duration

	// How often expired request tokens and sessions are removed
	SweepInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		SchoologyURL:     schoology.DefaultBaseURL,
		SchoologyTimeout: schoology.DefaultTimeout,
		SweepInterval:    sweeper.DefaultInterval,
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
		"RUN_ADDRESS":               setString(&c.ListenAddr),
		"DATABASE_URI":              setString(&c.DatabaseDSN),
		"LOG_LEVEL":                 setString(&c.LogLevel),
		"ENVIRONMENT":               setString(&c.Environment),
		"SCHOOLOGY_API_URL":         setString(&c.SchoologyURL),
		"SCHOOLOGY_CONSUMER_KEY":    setString(&c.SchoologyConsumerKey),
		"SCHOOLOGY_CONSUMER_SECRET": setString(&c.SchoologyConsumerSecret),
		"SCHOOLOGY_TIMEOUT":         setDuration(&c.SchoologyTimeout),
		"SWEEP_INTERVAL":            setDuration(&c.SweepInterval),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("schoolauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.SchoologyURL, "schoology-url", c.SchoologyURL, "Schoology API base url")
	fs.StringVarP(&c.SchoologyConsumerKey, "consumer-key", "k", c.SchoologyConsumerKey, "Schoology consumer key")
	fs.StringVarP(&c.SchoologyConsumerSecret, "consumer-secret", "s", c.SchoologyConsumerSecret, "Schoology consumer secret")
	fs.DurationVar(&c.SchoologyTimeout, "schoology-timeout", c.SchoologyTimeout, "Timeout of Schoology API call")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Interval between expired records sweeps")

	return fs.Parse(args)
}

// Validate config has everything to start
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.SchoologyConsumerKey == "" || c.SchoologyConsumerSecret == "" {
		errs = append(errs, errors.New("schoology consumer key and secret are required"))
	}
	if c.SchoologyTimeout <= 0 {
		errs = append(errs, errors.New("schoology timeout must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}

	return errors.Join(errs...)
}
