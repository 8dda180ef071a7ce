package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/commentlink/controller"
	"github.com/hazyhaar/commentlink/loader"
	"github.com/hazyhaar/commentlink/watcher"
)

// Config is the daemon configuration.
type Config struct {
	Browser    BrowserConfig     `yaml:"browser"`
	Resolve    controller.Config `yaml:"resolve"`
	Loader     loader.Config     `yaml:"loader"`
	Watcher    watcher.Config    `yaml:"watcher"`
	API        APIConfig         `yaml:"api"`
	Settings   SettingsConfig    `yaml:"settings"`
	Affordance AffordanceConfig  `yaml:"affordance"`
	Options    Options           `yaml:"options"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"` // DevTools URL; empty launches a local Chrome
	Bin              string        `yaml:"bin"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Addr         string  `yaml:"addr"`
	MessageRate  float64 `yaml:"message_rate"` // messages per second per session
	MessageBurst int     `yaml:"message_burst"`
	MaxSessions  int     `yaml:"max_sessions"`
}

// SettingsConfig locates the SQLite options store. An empty DB keeps the
// options from this file.
type SettingsConfig struct {
	DB       string        `yaml:"db"`
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

// AffordanceConfig customizes the share button.
type AffordanceConfig struct {
	Label string `yaml:"label"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig is the configuration used without a file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	c.Resolve.Defaults()
	c.Loader.Defaults()
	if c.Watcher.Window <= 0 {
		c.Watcher.Window = 300 * time.Millisecond
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8417"
	}
	if c.API.MessageRate <= 0 {
		c.API.MessageRate = 2
	}
	if c.API.MessageBurst <= 0 {
		c.API.MessageBurst = 4
	}
	if c.API.MaxSessions <= 0 {
		c.API.MaxSessions = 16
	}
	if c.Settings.Interval <= 0 {
		c.Settings.Interval = time.Second
	}
	if c.Settings.Debounce <= 0 {
		c.Settings.Debounce = 250 * time.Millisecond
	}
	c.Options = c.Options.Normalize()
}
