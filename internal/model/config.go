package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds one mail endpoint (IMAP or SMTP).
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
	TLS  bool   `mapstructure:"tls" yaml:"tls"`
}

// AccountConfig identifies the mail account this instance serves.
type AccountConfig struct {
	// Email is the authenticated user's address; outbound messages are
	// always sent with this sender.
	Email string `mapstructure:"email" yaml:"email"`

	// Username is the login name for IMAP and SMTP; defaults to Email.
	Username string `mapstructure:"username" yaml:"username"`
}

// FolderConfig names the well-known folders of the backing store. The
// hierarchy separator ("/" or ".") is a store convention and is passed
// through opaquely.
type FolderConfig struct {
	Trash string `mapstructure:"trash" yaml:"trash"`
	Draft string `mapstructure:"draft" yaml:"draft"`
	Sent  string `mapstructure:"sent" yaml:"sent"`
}

// CacheConfig controls the local summary cache.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP    ServerConfig  `mapstructure:"imap" yaml:"imap"`
	SMTP    ServerConfig  `mapstructure:"smtp" yaml:"smtp"`
	Account AccountConfig `mapstructure:"account" yaml:"account"`
	Folders FolderConfig  `mapstructure:"folders" yaml:"folders"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/minig/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "minig", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: ServerConfig{Port: "993", TLS: true},
		SMTP: ServerConfig{Port: "465", TLS: true},
		Folders: FolderConfig{
			Trash: "Trash",
			Draft: "Drafts",
			Sent:  "Sent",
		},
		Cache: CacheConfig{Path: ":memory:"},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("imap.port", "993")
	v.SetDefault("imap.tls", true)
	v.SetDefault("smtp.port", "465")
	v.SetDefault("smtp.tls", true)
	v.SetDefault("folders.trash", "Trash")
	v.SetDefault("folders.draft", "Drafts")
	v.SetDefault("folders.sent", "Sent")
	v.SetDefault("cache.path", ":memory:")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Account.Username == "" {
		cfg.Account.Username = cfg.Account.Email
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("imap.host", cfg.IMAP.Host)
	v.Set("imap.port", cfg.IMAP.Port)
	v.Set("imap.tls", cfg.IMAP.TLS)
	v.Set("smtp.host", cfg.SMTP.Host)
	v.Set("smtp.port", cfg.SMTP.Port)
	v.Set("smtp.tls", cfg.SMTP.TLS)
	v.Set("account.email", cfg.Account.Email)
	v.Set("account.username", cfg.Account.Username)
	v.Set("folders.trash", cfg.Folders.Trash)
	v.Set("folders.draft", cfg.Folders.Draft)
	v.Set("folders.sent", cfg.Folders.Sent)
	v.Set("cache.path", cfg.Cache.Path)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
