package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		BlockSize:      4 * 1024 * 1024,
		DDPath:         "dd",
		MaxImageSize:   10 * 1024 * 1024 * 1024,
		PollInterval:   500 * time.Millisecond,
		SettleInterval: time.Second,
		KillGrace:      5 * time.Second,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BlockSize != 4*1024*1024 {
		t.Errorf("default block-size = %d, want 4 MiB", cfg.BlockSize)
	}
	if cfg.MaxImageSize != 10*1024*1024*1024 {
		t.Errorf("default max-image-size = %d, want 10 GiB", cfg.MaxImageSize)
	}
	if !cfg.Verify {
		t.Error("verify should default to true")
	}
	if cfg.UseDD {
		t.Error("use-dd should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero block size", func(c *Config) { c.BlockSize = 0 }, true},
		{"negative block size", func(c *Config) { c.BlockSize = -1 }, true},
		{"oversized block", func(c *Config) { c.BlockSize = 128 * 1024 * 1024 }, true},
		{"zero image ceiling", func(c *Config) { c.MaxImageSize = 0 }, true},
		{"empty dd path", func(c *Config) { c.DDPath = "" }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"negative settle", func(c *Config) { c.SettleInterval = -time.Second }, true},
		{"zero settle ok", func(c *Config) { c.SettleInterval = 0 }, false},
		{"zero kill grace", func(c *Config) { c.KillGrace = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
