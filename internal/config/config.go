package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/alexjbarnes/netchat/internal/livechat"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for netchat.
type Config struct {
	// REST API root for dialogs.
	APIURL string `env:"NETCHAT_API_URL" envDefault:"https://social-network.samuraijs.com/api/1.0"`

	// Credentials for the REST API. The key is sent as API-KEY; the
	// cookie, when set, is sent verbatim.
	APIKey     string `env:"NETCHAT_API_KEY"`
	AuthCookie string `env:"NETCHAT_AUTH_COOKIE"`

	// Live chat websocket endpoint.
	ChatURL string `env:"NETCHAT_CHAT_URL" envDefault:"wss://social-network.samuraijs.com/handlers/ChatHandler.ashx"`

	// Fixed delay between live channel reconnect attempts.
	ReconnectDelay time.Duration `env:"NETCHAT_RECONNECT_DELAY" envDefault:"3s"`

	// Messages per history page.
	PageSize int `env:"NETCHAT_PAGE_SIZE" envDefault:"10"`

	// heuristic or diff.
	ReconcileMode string `env:"NETCHAT_RECONCILE_MODE" envDefault:"heuristic"`

	// Settings database. Defaults to ~/.netchat/state.db.
	StatePath string `env:"NETCHAT_STATE_PATH"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. The file may carry the API key and
// session cookie.
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

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		p, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	} else {
		abs, err := filepath.Abs(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
		}

		cfg.StatePath = abs
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("NETCHAT_PAGE_SIZE must be positive, got %d", c.PageSize)
	}

	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("NETCHAT_RECONNECT_DELAY must be positive, got %s", c.ReconnectDelay)
	}

	if _, err := livechat.ParseMode(c.ReconcileMode); err != nil {
		return fmt.Errorf("NETCHAT_RECONCILE_MODE: %w", err)
	}

	if err := checkScheme("NETCHAT_CHAT_URL", c.ChatURL, "ws", "wss"); err != nil {
		return err
	}

	return checkScheme("NETCHAT_API_URL", c.APIURL, "http", "https")
}

func checkScheme(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}

	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}

	return fmt.Errorf("%s must be a %s URL with a host, got %q", name, schemes[len(schemes)-1], raw)
}

// Mode returns the parsed reconcile mode. Load has already validated it.
func (c *Config) Mode() livechat.Mode {
	m, _ := livechat.ParseMode(c.ReconcileMode)
	return m
}

// DefaultStatePath returns ~/.netchat/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".netchat", "state.db"), nil
}
