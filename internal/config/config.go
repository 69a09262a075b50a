// Package config provides functionality for managing configuration options
// for the server using command-line flags, a JSON config file, a .env file
// and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the server.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDSN holds the PostgreSQL connection string.
	DatabaseDSN string `json:"database_dsn"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// RedisURL selects the Redis session store when set, e.g.
	// redis://localhost:6379/0. Sessions are kept in PostgreSQL otherwise.
	RedisURL string `json:"redis_url"`

	// JWTSecret signs session tokens.
	JWTSecret string `json:"jwt_secret"`

	// SessionTTL is how long a session token stays valid.
	SessionTTL Duration `json:"session_ttl"`

	// CleanupInterval is how often expired PostgreSQL sessions are purged.
	CleanupInterval Duration `json:"cleanup_interval"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// CORSOrigin is the browser origin allowed to call the API.
	CORSOrigin string `json:"cors_origin"`

	// AllowRegistration turns POST /api/register on or off.
	AllowRegistration bool `json:"allow_registration"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// OpenAI configures the analysis endpoint. Analysis is disabled without
	// an API key.
	OpenAI OpenAI `json:"openai"`
}

// OpenAI holds the chat-completions client settings.
type OpenAI struct {
	APIKey       string `json:"api_key"`
	Model        string `json:"model"`
	BaseURL      string `json:"base_url"`
	Organization string `json:"organization"`
}

// Duration is a time.Duration that reads from JSON as a string like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Defaults returns the options used when nothing is configured.
func Defaults() *Options {
	return &Options{
		Port:              "localhost:8080",
		Config:            "config.json",
		SessionTTL:        Duration{24 * time.Hour},
		CleanupInterval:   Duration{time.Hour},
		CORSOrigin:        "http://localhost:5173",
		AllowRegistration: true,
		LogLevel:          "info",
		OpenAI: OpenAI{
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com",
		},
	}
}

// options holds the current configuration values.
var options = Defaults()

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.Config, "config", options.Config, "path to config file")
	flag.StringVar(&options.Config, "c", options.Config, "path to config file (shorthand)")
}

// Parse parses the command-line flags, the config file and environment
// variables to set configuration values. Later sources win: flags, then the
// config file, then the environment (a .env file in the working directory is
// loaded into the environment first).
func Parse() *Options {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("error while reading .env: %v", err)
	}
	if err := Load(options, os.Getenv); err != nil {
		log.Fatalf("%v", err)
	}
	return options
}

// Load applies the config file named by opts.Config (or $CONFIG) and the
// environment read through getenv to opts.
func Load(opts *Options, getenv func(string) string) error {
	if configPath := getenv("CONFIG"); configPath != "" {
		opts.Config = configPath
	}

	if opts.Config != "" {
		if _, err := os.Stat(opts.Config); err == nil {
			data, err := os.ReadFile(opts.Config)
			if err != nil {
				return fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, opts); err != nil {
				return fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("SERVER_ADDRESS", &opts.Port)
	str("DATABASE_DSN", &opts.DatabaseDSN)
	str("REDIS_URL", &opts.RedisURL)
	str("JWT_SECRET", &opts.JWTSecret)
	str("TLS_CERT", &opts.TLSCert)
	str("TLS_KEY", &opts.TLSKey)
	str("CORS_ORIGIN", &opts.CORSOrigin)
	str("LOG_LEVEL", &opts.LogLevel)
	str("OPENAI_API_KEY", &opts.OpenAI.APIKey)
	str("OPENAI_MODEL", &opts.OpenAI.Model)
	str("OPENAI_BASE_URL", &opts.OpenAI.BaseURL)
	str("OPENAI_ORG", &opts.OpenAI.Organization)

	if v := getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		opts.SessionTTL = Duration{d}
	}
	if v := getenv("ALLOW_REGISTRATION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALLOW_REGISTRATION: %w", err)
		}
		opts.AllowRegistration = b
	}
	return nil
}

// TLSEnabled reports whether both a certificate and a key are configured.
func (o *Options) TLSEnabled() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}
