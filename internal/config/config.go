// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds wallet-router configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"wallet-router"`

	// Subject overrides (empty = package defaults)
	RequestSubject     string `envconfig:"ROUTER_REQUEST_SUBJECT"`
	ApprovalSubject    string `envconfig:"ROUTER_APPROVAL_SUBJECT"`
	RegisterSubject    string `envconfig:"ROUTER_REGISTER_SUBJECT"`
	EventSubject       string `envconfig:"ROUTER_EVENT_SUBJECT"`
	ApprovalNotifySubj string `envconfig:"ROUTER_APPROVAL_NOTIFY_SUBJECT"`

	// Timeouts
	RequestTimeout  time.Duration `envconfig:"ROUTER_REQUEST_TIMEOUT" default:"25s"`
	ApprovalTimeout time.Duration `envconfig:"ROUTER_APPROVAL_TIMEOUT" default:"2m"`

	// Permissions
	DefaultPermission string `envconfig:"ROUTER_DEFAULT_PERMISSION" default:"deny"`

	// Database (optional; empty disables grant persistence)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the router server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - ROUTER_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.ApprovalTimeout <= 0 {
		return fmt.Errorf("%s - ROUTER_APPROVAL_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	switch c.DefaultPermission {
	case "allow", "ask", "deny":
	default:
		return fmt.Errorf("%s - ROUTER_DEFAULT_PERMISSION must be allow, ask, or deny", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
