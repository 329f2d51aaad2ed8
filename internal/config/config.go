// Package config provides configuration parsing and validation for the
// alertstream service.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration parameters for the alertstream service.
type Config struct {
	RedisAddr     string
	ListenAddr    string
	ChannelPrefix string
	ServiceName   string

	HeartbeatInterval time.Duration
	HistoryLimit      int

	QueueSize     int
	MaxRetries    int
	BatchSize     int
	RateLimit     int
	RateWindow    time.Duration
	EmailProvider string
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen-addr cannot be empty")
	}
	if c.ChannelPrefix == "" {
		return fmt.Errorf("channel-prefix cannot be empty")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service-name cannot be empty")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat-interval must be positive")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history-limit must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue-size must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries cannot be negative")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be positive")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate-limit must be positive")
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("rate-window must be positive")
	}
	switch c.EmailProvider {
	case "mock", "smtp", "resend", "ses":
	default:
		return fmt.Errorf("email-provider must be one of mock, smtp, resend, ses")
	}
	return nil
}
