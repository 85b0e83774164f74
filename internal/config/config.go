package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for rabbittt.
// OAuth client credentials are always injected from the environment,
// never compiled in.
type Config struct {
	// Google OAuth client credentials (required).
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// Local callback endpoint the provider redirects to after consent.
	// Must match the redirect URI registered with the provider exactly,
	// so neither value is ever adjusted at runtime.
	CallbackPort int    `env:"OAUTH_CALLBACK_PORT" envDefault:"8917"`
	CallbackPath string `env:"OAUTH_CALLBACK_PATH" envDefault:"/oauth/callback"`

	// Requested scope set, comma-separated.
	Scopes []string `env:"OAUTH_SCOPES" envSeparator:"," envDefault:"https://www.googleapis.com/auth/calendar.readonly"`

	// How long to wait for the browser redirect before giving up.
	// Zero disables the bound and waits until the process is interrupted.
	AuthTimeout time.Duration `env:"OAUTH_TIMEOUT" envDefault:"5m"`

	// Provider endpoints. Defaults target Google; overridable for tests
	// and self-hosted providers.
	AuthURL  string `env:"OAUTH_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/auth"`
	TokenURL string `env:"OAUTH_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`

	// Token file location. Defaults to ~/.rabbittt/token.json.
	TokenFile string `env:"TOKEN_FILE"`

	// Record database location. Defaults to ~/.rabbittt/rabbittt.db.
	DBPath string `env:"DB_PATH"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the client secret to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.TokenFile == "" {
		path, err := defaultDataPath("token.json")
		if err != nil {
			return nil, err
		}

		cfg.TokenFile = path
	}

	if cfg.DBPath == "" {
		path, err := defaultDataPath("rabbittt.db")
		if err != nil {
			return nil, err
		}

		cfg.DBPath = path
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}

	if c.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}

	if c.CallbackPort < 1 || c.CallbackPort > 65535 {
		return fmt.Errorf("OAUTH_CALLBACK_PORT must be between 1 and 65535, got %d", c.CallbackPort)
	}

	if !strings.HasPrefix(c.CallbackPath, "/") {
		return fmt.Errorf("OAUTH_CALLBACK_PATH must start with '/', got %q", c.CallbackPath)
	}

	if len(c.Scopes) == 0 {
		return fmt.Errorf("OAUTH_SCOPES must name at least one scope")
	}

	if c.AuthTimeout < 0 {
		return fmt.Errorf("OAUTH_TIMEOUT must not be negative")
	}

	return nil
}

// RedirectURL returns the fixed redirect URI embedded in consent URLs and
// sent with the token exchange.
func (c *Config) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d%s", c.CallbackPort, c.CallbackPath)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// defaultDataPath returns ~/.rabbittt/<name>.
func defaultDataPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".rabbittt", name), nil
}
