package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Copy engine
	BlockSize int64  `mapstructure:"block-size"`
	UseDD     bool   `mapstructure:"use-dd"`
	DDPath    string `mapstructure:"dd-path"`

	// Image limits
	MaxImageSize int64 `mapstructure:"max-image-size"`

	// Post-write behaviour
	Verify    bool `mapstructure:"verify"`
	SyncAfter bool `mapstructure:"sync-after"`

	// Timing
	PollInterval   time.Duration `mapstructure:"poll-interval"`
	SettleInterval time.Duration `mapstructure:"settle-interval"`
	KillGrace      time.Duration `mapstructure:"kill-grace"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("block-size", 4*1024*1024)
	viper.SetDefault("use-dd", false)
	viper.SetDefault("dd-path", "dd")
	viper.SetDefault("max-image-size", 10*1024*1024*1024)
	viper.SetDefault("verify", true)
	viper.SetDefault("sync-after", true)
	viper.SetDefault("poll-interval", 500*time.Millisecond)
	viper.SetDefault("settle-interval", time.Second)
	viper.SetDefault("kill-grace", 5*time.Second)

	// Environment variables (will be USBFLASH_BLOCK_SIZE, etc.)
	viper.SetEnvPrefix("USBFLASH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.usbflash")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block-size must be positive")
	}
	if c.BlockSize > 64*1024*1024 {
		return fmt.Errorf("block-size must not exceed 64 MiB")
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max-image-size must be positive")
	}
	if c.DDPath == "" {
		return fmt.Errorf("dd-path cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.SettleInterval < 0 {
		return fmt.Errorf("settle-interval must be non-negative")
	}
	if c.KillGrace <= 0 {
		return fmt.Errorf("kill-grace must be positive")
	}
	return nil
}
