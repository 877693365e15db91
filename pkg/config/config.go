package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "taskflow"
	configFile = "config.yaml"
	envPrefix  = "TASKFLOW"

	ProviderLocal  = "local"
	ProviderGoogle = "google"

	placeholderURL = "your_database_url_here"
)

type Config struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CachePath   string `yaml:"cache_path" mapstructure:"cache_path"`
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Calendar    string `yaml:"calendar" mapstructure:"calendar"`
	Listen      string `yaml:"listen" mapstructure:"listen"`
	Locale      string `yaml:"locale" mapstructure:"locale"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Provider: ProviderLocal,
		Calendar: "Tasks",
		Listen:   ":8080",
		Locale:   "en",
	}
}

// Dir is the directory holding the config file, credentials and caches.
func Dir() (string, error) {
	if dir := os.Getenv(envPrefix + "_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config file, if any, and applies TASKFLOW_* environment
// overrides on top.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	defaults := Default()
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("database_url", defaults.DatabaseURL)
	v.SetDefault("cache_path", defaults.CachePath)
	v.SetDefault("provider", defaults.Provider)
	v.SetDefault("calendar", defaults.Calendar)
	v.SetDefault("listen", defaults.Listen)
	v.SetDefault("locale", defaults.Locale)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(filepath.Dir(path), "cache.db")
	}
	return &cfg, nil
}

func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Set assigns the key named by its YAML name.
func (c *Config) Set(key, value string) error {
	switch key {
	case "database_url":
		c.DatabaseURL = value
	case "cache_path":
		c.CachePath = value
	case "provider":
		if value != ProviderLocal && value != ProviderGoogle {
			return fmt.Errorf("provider must be %q or %q", ProviderLocal, ProviderGoogle)
		}
		c.Provider = value
	case "calendar":
		c.Calendar = value
	case "listen":
		c.Listen = value
	case "locale":
		c.Locale = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Validate reports gateway.ErrNotConfigured when no usable database URL is
// set.
func (c *Config) Validate() error {
	url := strings.TrimSpace(c.DatabaseURL)
	if url == "" || url == placeholderURL {
		return fmt.Errorf("database_url is not set: %w", gateway.ErrNotConfigured)
	}
	if !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") &&
		!strings.Contains(url, "host=") {
		return fmt.Errorf("database_url %q is not a PostgreSQL connection string: %w", url, gateway.ErrNotConfigured)
	}
	if c.Provider != ProviderLocal && c.Provider != ProviderGoogle {
		return errors.New("provider must be local or google")
	}
	return nil
}
