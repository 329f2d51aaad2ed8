package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		RedisAddr:         "localhost:6379",
		ListenAddr:        ":8765",
		ChannelPrefix:     "compliance",
		ServiceName:       "alertstream",
		HeartbeatInterval: 30 * time.Second,
		HistoryLimit:      100,
		QueueSize:         1024,
		MaxRetries:        3,
		BatchSize:         10,
		RateLimit:         60,
		RateWindow:        time.Minute,
		EmailProvider:     "mock",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty redis addr",
			mutate:  func(c *Config) { c.RedisAddr = "" },
			wantErr: true,
			errMsg:  "redis-addr cannot be empty",
		},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.ListenAddr = "" },
			wantErr: true,
			errMsg:  "listen-addr cannot be empty",
		},
		{
			name:    "empty channel prefix",
			mutate:  func(c *Config) { c.ChannelPrefix = "" },
			wantErr: true,
			errMsg:  "channel-prefix cannot be empty",
		},
		{
			name:    "zero heartbeat interval",
			mutate:  func(c *Config) { c.HeartbeatInterval = 0 },
			wantErr: true,
			errMsg:  "heartbeat-interval must be positive",
		},
		{
			name:    "negative max retries",
			mutate:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: true,
			errMsg:  "max-retries cannot be negative",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit = 0 },
			wantErr: true,
			errMsg:  "rate-limit must be positive",
		},
		{
			name:    "unknown email provider",
			mutate:  func(c *Config) { c.EmailProvider = "carrier-pigeon" },
			wantErr: true,
			errMsg:  "email-provider must be one of mock, smtp, resend, ses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if err.Error() != tt.errMsg {
					t.Errorf("Config.Validate() error = %v, want error message %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}
