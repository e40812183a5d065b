// Package config handles external configuration loading from JSON and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"motoshop/internal/maintenance"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	Debug       bool                            `json:"debug"`
	PublicURL   string                          `json:"publicUrl"`
	Timezone    string                          `json:"timezone"`
	Server      Server                          `json:"server"`
	Database    Database                        `json:"database"`
	Business    Business                        `json:"business"`
	JWT         JWT                             `json:"jwt"`
	Log         Log                             `json:"log"`
	CORS        CORS                            `json:"cors"`
	Templates   Templates                       `json:"templates"`
	Maintenance map[string]maintenance.Override `json:"maintenance"`
}

// Server holds HTTP server configuration
type Server struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"readTimeout"`
	WriteTimeout int    `json:"writeTimeout"`
}

// Database holds database configuration
type Database struct {
	Path string `json:"path"`
}

// Business is the shop information printed on invoices
type Business struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// JWT holds JWT configuration
type JWT struct {
	Secret          string `json:"secret"`
	ExpirationHours int    `json:"expirationHours"`
}

// Log holds logging configuration
type Log struct {
	Level string `json:"level"`
}

// CORS lists the origins allowed to call the API from a browser
type CORS struct {
	AllowedOrigins []string `json:"allowedOrigins"`
}

// Templates holds the invoice template location
type Templates struct {
	Dir string `json:"dir"`
}

// envOverrides are read from MOTOSHOP_* variables and win over the file
type envOverrides struct {
	Debug          *bool    `envconfig:"DEBUG"`
	Port           int      `envconfig:"PORT"`
	Host           string   `envconfig:"HOST"`
	DatabasePath   string   `envconfig:"DATABASE_PATH"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	PublicURL      string   `envconfig:"PUBLIC_URL"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

const envPrefix = "MOTOSHOP"

const insecureSecret = "CHANGE_THIS_SECRET_IN_PRODUCTION"

// Load reads configuration from the specified JSON file and overrides with environment variables
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// a missing file is fine, everything can come from the environment

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides overrides config values with environment variables if set
func (c *Config) applyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return err
	}

	if env.Debug != nil {
		c.Debug = *env.Debug
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.Host != "" {
		c.Server.Host = env.Host
	}
	if env.DatabasePath != "" {
		c.Database.Path = env.DatabasePath
	}
	if env.JWTSecret != "" {
		c.JWT.Secret = env.JWTSecret
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.PublicURL != "" {
		c.PublicURL = env.PublicURL
	}
	if len(env.AllowedOrigins) > 0 {
		c.CORS.AllowedOrigins = env.AllowedOrigins
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/motoshop.db"
	}
	if c.JWT.ExpirationHours == 0 {
		c.JWT.ExpirationHours = 12
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Ho_Chi_Minh"
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = "./templates"
	}
	if c.Business.Name == "" {
		c.Business.Name = "Motoshop"
	}
	if c.PublicURL == "" {
		c.PublicURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
}

// validate checks that all required configuration values are present
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	cleanDBPath := filepath.Clean(c.Database.Path)
	if !filepath.IsLocal(cleanDBPath) && !filepath.IsAbs(cleanDBPath) {
		return fmt.Errorf("invalid database path: potential path traversal detected")
	}

	if c.JWT.Secret == "" || c.JWT.Secret == insecureSecret {
		if !c.Debug {
			return fmt.Errorf("JWT secret must be changed for production")
		}
		c.JWT.Secret = insecureSecret
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	known := make(map[string]bool)
	for _, r := range maintenance.DefaultRules() {
		known[string(r.Type)] = true
	}
	for name, o := range c.Maintenance {
		if !known[name] {
			return fmt.Errorf("unknown maintenance type %q", name)
		}
		if o.IntervalKm < 0 || o.WarningKm < 0 {
			return fmt.Errorf("maintenance %s: distances must not be negative", name)
		}
		if o.IntervalKm > 0 && o.WarningKm >= o.IntervalKm {
			return fmt.Errorf("maintenance %s: warning distance must be below the interval", name)
		}
	}

	return nil
}

// Address returns the full server address (host:port)
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetDatabasePath returns the cleaned and validated database path
func (c *Config) GetDatabasePath() string {
	return filepath.Clean(c.Database.Path)
}

// Location returns the shop's time zone for printed dates and reports
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogLevel returns the configured logrus level
func (c *Config) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// MaintenanceRules returns the default maintenance rules with configured overrides applied
func (c *Config) MaintenanceRules() []maintenance.Rule {
	return maintenance.WithOverrides(maintenance.DefaultRules(), c.Maintenance)
}
