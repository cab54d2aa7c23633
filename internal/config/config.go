package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Search struct {
	Job      string `yaml:"job"`
	Location string `yaml:"location"`
	Pages    int    `yaml:"pages"`
}

type Browser struct {
	// Mode is "http" (guest pages, no login) or "rod" (headless Chrome session).
	Mode        string        `yaml:"mode"`
	Headless    bool          `yaml:"headless"`
	ControlURL  string        `yaml:"control_url"`
	CookiesPath string        `yaml:"cookies_path"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
	LoginURL    string        `yaml:"login_url"`
}

type Scrape struct {
	Delay        time.Duration `yaml:"delay"`
	ListingDelay time.Duration `yaml:"listing_delay"`
	Workers      int           `yaml:"workers"`
	Retries      int           `yaml:"retries"`
	MaxPages     int           `yaml:"max_pages"`
	// MaxRate caps posting requests per second across workers; 0 is no cap.
	MaxRate float64 `yaml:"max_rate"`
}

type Paths struct {
	SnapshotDir string `yaml:"snapshot_dir"`
	Rules       string `yaml:"rules"`
	OutputCSV   string `yaml:"output_csv"`
	DB          string `yaml:"db"`
}

type Config struct {
	App struct {
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Browser  Browser  `yaml:"browser"`
	Scrape   Scrape   `yaml:"scrape"`
	Searches []Search `yaml:"searches"`

	Schedule struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"schedule"`

	Paths Paths `yaml:"paths"`

	Normalize struct {
		Workers           int     `yaml:"workers"`
		MinLangConfidence float64 `yaml:"min_lang_confidence"`
	} `yaml:"normalize"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Credentials struct {
		Account string `yaml:"account"`
	} `yaml:"credentials"`
}

// Default returns a config that runs one guest scrape with sequential
// extraction and a one second delay.
func Default() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "data"
	c.Browser.Mode = "http"
	c.Browser.Headless = true
	c.Browser.CookiesPath = "cookies.json"
	c.Browser.Timeout = 30 * time.Second
	c.Browser.LoginURL = "https://www.linkedin.com/login"
	c.Scrape.Delay = time.Second
	c.Scrape.ListingDelay = time.Second
	c.Scrape.Workers = 1
	c.Scrape.MaxPages = 40
	c.Paths.SnapshotDir = "snapshots"
	c.Paths.Rules = "rules.yml"
	c.Paths.OutputCSV = "all.csv"
	c.Paths.DB = "jobharvest.db"
	c.Normalize.Workers = 4
	return c
}

// Load reads a YAML config on top of Default and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads the first .env file found. A missing file is not an error.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("JOBHARVEST_DATA_DIR")); v != "" {
		cfg.App.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("JOBHARVEST_ACCOUNT")); v != "" {
		cfg.Credentials.Account = v
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}

// Resolve makes a configured path absolute relative to app.data_dir.
func (c Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.App.DataDir, p)
}
