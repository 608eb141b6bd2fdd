package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models lpa.yml.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
		// AllowLegacyUserHeader enables the plain X-User-Id header as a
		// fallback identity. Meant for migration setups only.
		AllowLegacyUserHeader bool `yaml:"allow_legacy_user_header"`
	} `yaml:"server"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		From     string `yaml:"from"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"smtp"`
	Storage struct {
		Dir string `yaml:"dir"`
	} `yaml:"storage"`
	Planner struct {
		// FixedDay is the day-of-month used by the fixed deadline
		// strategy; WindowMinDays/WindowMaxDays bound the randomized one.
		FixedDay      int `yaml:"fixed_day"`
		WindowMinDays int `yaml:"window_min_days"`
		WindowMaxDays int `yaml:"window_max_days"`
	} `yaml:"planner"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.SMTP.Host != "" {
		if c.SMTP.Port <= 0 {
			return fmt.Errorf("config.smtp.port is required when smtp.host is set")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("config.smtp.from is required when smtp.host is set")
		}
	}
	if c.Planner.FixedDay != 0 && (c.Planner.FixedDay < 1 || c.Planner.FixedDay > 28) {
		return fmt.Errorf("config.planner.fixed_day must be between 1 and 28")
	}
	if c.Planner.WindowMinDays < 0 || c.Planner.WindowMaxDays < 0 {
		return fmt.Errorf("config.planner window days must not be negative")
	}
	if c.Planner.WindowMaxDays > 0 && c.Planner.WindowMinDays > c.Planner.WindowMaxDays {
		return fmt.Errorf("config.planner.window_min_days must not exceed window_max_days")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "lpa.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run lpa init first", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the config used when no lpa.yml exists.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8484
  jwt_secret: ""
  # accept the plain X-User-Id header as identity (migration aid)
  allow_legacy_user_header: false

smtp:
  host: ""
  port: 587
  from: ""
  username: ""
  password: ""

storage:
  dir: .lpa/pictures

planner:
  fixed_day: 28
  window_min_days: 7
  window_max_days: 20
`
