package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAPIURL       = "https://127.0.0.1:27124"
	DefaultTargetFolder = "Clippings"
	DefaultBadgerDBPath = "./badger_data"
	DefaultServerAddr   = "127.0.0.1:27180"
	DefaultConcurrency  = 3
	envPrefix           = "VAULTCLIP"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	Vault    VaultConfig    `mapstructure:"vault"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Server   ServerConfig   `mapstructure:"server"`
	Images   ImagesConfig   `mapstructure:"images"`
	Log      LogConfig      `mapstructure:"log"`
}

type VaultConfig struct {
	Settings `mapstructure:",squash"`

	// InsecureSkipVerify disables TLS verification for the Local REST API,
	// which serves a self-signed certificate.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// SkipVerify reports whether TLS verification is disabled. It only ever is
// for loopback API hosts.
func (v VaultConfig) SkipVerify() bool {
	if !v.InsecureSkipVerify {
		return false
	}
	u, err := url.Parse(v.APIURL)
	if err != nil {
		return false
	}
	switch host := u.Hostname(); host {
	case "localhost":
		return true
	default:
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type StorageConfig struct {
	BadgerDBPath string `mapstructure:"badger_path"`
}

type BrowserConfig struct {
	Bin         string        `mapstructure:"bin"`
	Headless    bool          `mapstructure:"headless"`
	PageTimeout time.Duration `mapstructure:"page_timeout"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type ImagesConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vault.api_url", DefaultAPIURL)
	v.SetDefault("vault.api_key", "")
	v.SetDefault("vault.target_folder", DefaultTargetFolder)
	v.SetDefault("vault.include_metadata", true)
	v.SetDefault("vault.localize_images", true)
	v.SetDefault("vault.insecure_skip_verify", true)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("storage.badger_path", DefaultBadgerDBPath)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.page_timeout", 30*time.Second)
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("images.concurrency", DefaultConcurrency)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and env vars still apply.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// VAULTCLIP_VAULT_API_KEY overrides vault.api_key, and so on.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.Vault.Settings = cfg.Vault.Settings.Normalize()
	if err := cfg.Vault.Settings.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Storage.BadgerDBPath == "" {
		cfg.Storage.BadgerDBPath = DefaultBadgerDBPath
	}
	if cfg.Images.Concurrency <= 0 {
		cfg.Images.Concurrency = DefaultConcurrency
	}

	return cfg, nil
}
