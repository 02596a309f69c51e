// Package config loads the runtime configuration: a YAML file for search
// queries and tuning knobs, environment variables for credentials. Built once
// at startup and passed in; nothing in here is mutated afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketwatch/pkg/offer"
)

// Default negative keywords. Titles containing any of these mark a poster
// who is seeking rather than selling, or a listing with reduced trust.
var defaultNegativeKeywords = []string{
	"busco", "se busca", "wanted", "permuto", "trade",
	"broken", "roto", "para repuestos", "locked", "bloqueado",
}

// Config holds all runtime configuration for the monitor.
type Config struct {
	// Search
	Queries       []offer.SearchQuery `yaml:"queries"`
	SearchBaseURL string              `yaml:"search_base_url"`
	SiteOrigin    string              `yaml:"site_origin"`

	// Pipeline tuning
	PollIntervalSec  int      `yaml:"poll_interval_seconds"`
	ResultCap        int      `yaml:"result_cap"`
	NegativeKeywords []string `yaml:"negative_keywords"`
	AllowZeroPrice   bool     `yaml:"allow_zero_price"`

	// Document source
	Renderer         string `yaml:"renderer"` // "playwright" or "http"
	NavTimeoutSec    int    `yaml:"navigation_timeout_seconds"`
	SettleDelaySec   int    `yaml:"settle_delay_seconds"`
	SettleScrollStep int    `yaml:"settle_scroll_steps"`
	UserAgent        string `yaml:"user_agent"`

	// Credentials and endpoints (env only)
	ProxyURL        string
	PushoverToken   string
	PushoverUserKey string
	TelegramToken   string
	TelegramChatID  int64
	DatabaseURL     string
	DataDir         string
	AdminPassword   string
	Port            string
	BaseURL         string
}

// Load reads the optional .env file, the YAML config, and env overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if path == "" {
		path = os.Getenv("MARKETWATCH_CONFIG")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		// No file is fine; env + defaults carry a dev setup.
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.SiteOrigin == "" {
		c.SiteOrigin = "https://www.facebook.com"
	}
	if c.SearchBaseURL == "" {
		c.SearchBaseURL = c.SiteOrigin + "/marketplace/category/search"
	}
	if c.PollIntervalSec == 0 {
		c.PollIntervalSec = 300
	}
	if c.ResultCap == 0 {
		c.ResultCap = 15
	}
	if len(c.NegativeKeywords) == 0 {
		c.NegativeKeywords = defaultNegativeKeywords
	}
	if c.Renderer == "" {
		c.Renderer = "playwright"
	}
	if c.NavTimeoutSec == 0 {
		c.NavTimeoutSec = 60
	}
	if c.SettleDelaySec == 0 {
		c.SettleDelaySec = 5
	}
	if c.SettleScrollStep == 0 {
		c.SettleScrollStep = 3
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
}

func (c *Config) applyEnv() error {
	c.ProxyURL = os.Getenv("PROXY_URL")
	c.PushoverToken = os.Getenv("PUSHOVER_API_TOKEN")
	c.PushoverUserKey = os.Getenv("PUSHOVER_USER_KEY")
	c.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", chatID, err)
		}
		c.TelegramChatID = id
	}

	c.DataDir = os.Getenv("DATA_DIR")
	if c.DataDir == "" && c.DatabaseURL == "" {
		c.DataDir = "./data"
	}

	c.Port = os.Getenv("PORT")
	if c.Port == "" {
		c.Port = "8080"
	}

	c.BaseURL = os.Getenv("BASE_URL")
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:" + c.Port
	}

	if s := os.Getenv("POLL_INTERVAL_SECONDS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return fmt.Errorf("POLL_INTERVAL_SECONDS must be a positive integer, got %q", s)
		}
		c.PollIntervalSec = v
	}

	return nil
}

func (c *Config) validate() error {
	if len(c.Queries) == 0 {
		return fmt.Errorf("at least one search query is required")
	}
	for i, q := range c.Queries {
		if q.Query == "" {
			return fmt.Errorf("query %d: empty query text", i)
		}
		if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
			return fmt.Errorf("query %q: min_price %d above max_price %d", q.Query, *q.MinPrice, *q.MaxPrice)
		}
	}
	if c.Renderer != "playwright" && c.Renderer != "http" {
		return fmt.Errorf("renderer must be playwright or http, got %q", c.Renderer)
	}
	if c.ResultCap < 1 {
		return fmt.Errorf("result_cap must be positive, got %d", c.ResultCap)
	}
	return nil
}

// PollInterval returns the sleep between full scan cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// NavTimeout returns the per-navigation deadline.
func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// SettleDelay returns the fixed wait applied after navigation.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySec) * time.Second
}
