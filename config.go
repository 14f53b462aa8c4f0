package xmr

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Store backends selectable by config.
const (
	StoreMemory string = "memory"
	StoreSQLite string = "sqlite"
	StoreXLSX   string = "xlsx"
	StoreRedis  string = "redis"
)

// Config holds everything a chart run needs beyond the measurement store
// itself: the identity of the series, which backend to open, and how to
// report the outcome.
type Config struct {
	ID              string
	Series          Name
	Store           string
	Path            string
	Sheet           string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
	WebhookURL      string
	NotifyTimeout   time.Duration
	NotifyOnSuccess bool
	NotifyOnFailure bool
	LogLevel        slog.Level
	NoErrorReports  bool
}

type ConfigOption func(c *Config) error

// newConfig applies defaults, then every option in order, collecting all
// validation problems rather than stopping at the first.
func newConfig(options ...ConfigOption) (Config, []error) {
	c := Config{
		ID:              uuid.New().String(),
		Series:          NewName("process", nil),
		Store:           StoreSQLite,
		Sheet:           "Process",
		RedisAddr:       "localhost:6379",
		RedisPrefix:     "xmr",
		NotifyTimeout:   1 * time.Minute,
		NotifyOnSuccess: true,
		NotifyOnFailure: true,
		LogLevel:        slog.LevelInfo,
	}

	var errors []error
	for _, option := range options {
		if err := option(&c); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return Config{}, errors
	}
	return c, nil
}

// ID overrides the generated run identifier.
func ID(id string) ConfigOption {
	return func(c *Config) error {
		c.ID = id
		return nil
	}
}

// Series sets the name of the measured stream, with optional tags in the
// form name[key=value].
func Series(name string) ConfigOption {
	return func(c *Config) error {
		n, err := ParseName(name)
		if err != nil {
			return err
		}
		c.Series = n
		return nil
	}
}

// Store selects the measurement store backend.
func Store(backend string) ConfigOption {
	return func(c *Config) error {
		switch backend {
		case StoreMemory, StoreSQLite, StoreXLSX, StoreRedis:
			c.Store = backend
			return nil
		default:
			return fmt.Errorf("unknown store backend %s, expected one of %s, %s, %s, %s", backend, StoreMemory, StoreSQLite, StoreXLSX, StoreRedis)
		}
	}
}

// Path sets the file path for the sqlite and xlsx backends.
func Path(path string) ConfigOption {
	return func(c *Config) error {
		c.Path = path
		return nil
	}
}

// Sheet sets the worksheet name for the xlsx backend.
func Sheet(name string) ConfigOption {
	return func(c *Config) error {
		c.Sheet = name
		return nil
	}
}

func RedisAddr(addr string) ConfigOption {
	return func(c *Config) error {
		c.RedisAddr = addr
		return nil
	}
}

func RedisPassword(password string) ConfigOption {
	return func(c *Config) error {
		c.RedisPassword = password
		return nil
	}
}

func RedisDB(db string) ConfigOption {
	return func(c *Config) error {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("could not convert redis-db to integer")
		}
		c.RedisDB = n
		return nil
	}
}

func RedisPrefix(prefix string) ConfigOption {
	return func(c *Config) error {
		c.RedisPrefix = prefix
		return nil
	}
}

// Webhook sets the URL that receives the JSON run report.  Leaving it unset
// disables notifications entirely.
func Webhook(rawurl string) ConfigOption {
	return func(c *Config) error {
		u, err := url.Parse(rawurl)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook must be a http(s) URL, got %s", rawurl)
		}
		c.WebhookURL = rawurl
		return nil
	}
}

// NotifyTimeout caps how long the notifier retries a failing webhook.
func NotifyTimeout(timeout string) ConfigOption {
	return func(c *Config) error {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("unrecognized notify timeout duration: %s", timeout)
		}
		c.NotifyTimeout = duration
		return nil
	}
}

func NoNotifyOnSuccess() ConfigOption {
	return func(c *Config) error {
		c.NotifyOnSuccess = false
		return nil
	}
}

func NoNotifyOnFailure() ConfigOption {
	return func(c *Config) error {
		c.NotifyOnFailure = false
		return nil
	}
}

// LogLevel sets the minimum level for run logging.
func LogLevel(level string) ConfigOption {
	return func(c *Config) error {
		switch level {
		case "debug":
			c.LogLevel = slog.LevelDebug
		case "info":
			c.LogLevel = slog.LevelInfo
		case "warn":
			c.LogLevel = slog.LevelWarn
		case "error":
			c.LogLevel = slog.LevelError
		default:
			return fmt.Errorf("unknown log level %s, expected debug, info, warn or error", level)
		}
		return nil
	}
}

// NoErrorReports disables forwarding unexpected errors to the crash
// reporting service.
func NoErrorReports() ConfigOption {
	return func(c *Config) error {
		c.NoErrorReports = true
		return nil
	}
}
