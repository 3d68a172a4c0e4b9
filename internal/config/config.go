package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

type AuthMode string

const (
	AuthModeToken AuthMode = "token"
	AuthModeBasic AuthMode = "basic"
)

// ResolutionPolicy decides what happens when the registered user does not exist in Grafana yet.
type ResolutionPolicy string

const (
	ResolutionSkip   ResolutionPolicy = "skip"
	ResolutionCreate ResolutionPolicy = "create"
)

type Config struct {
	Server    ServerConfig
	Grafana   GrafanaConfig
	Provision ProvisionConfig
	Webhook   WebhookConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  Environment
	ServiceName  string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type GrafanaConfig struct {
	URL           string
	AuthMode      AuthMode
	Token         string
	TokenFile     string
	AdminUser     string
	AdminPassword string
	OrgID         int64
	Timeout       time.Duration
}

type ProvisionConfig struct {
	Resolution ResolutionPolicy
	// AdminUserID is granted admin on every provisioned folder next to the owner. Zero disables it.
	AdminUserID int64
}

type WebhookConfig struct {
	Secret string
}

type LogConfig struct {
	Level slog.Level
	File  string
}

type TelemetryConfig struct {
	Enabled        bool
	ExporterURL    string
	APIKey         string
	InstanceID     string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRatio  float64
}

// LoadDotEnv loads variables from an optional .env file without overriding the real environment.
func LoadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func NewConfig() *Config {
	environment := Environment(getEnv("SERVER_ENVIRONMENT", string(EnvironmentDevelopment)))
	serviceName := getEnv("SERVICE_NAME", "grafana-folder-provisioner")

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", ""),
			Port:         getEnv("PORT", "3001"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			Environment:  environment,
			ServiceName:  serviceName,
		},
		Grafana: GrafanaConfig{
			URL:           strings.TrimRight(getEnv("GRAFANA_URL", "http://grafana.monitoring.svc.cluster.local:3000"), "/"),
			AuthMode:      AuthMode(strings.ToLower(getEnv("GRAFANA_AUTH_MODE", string(AuthModeToken)))),
			Token:         getEnv("GRAFANA_TOKEN", ""),
			TokenFile:     getEnv("GRAFANA_TOKEN_FILE", "/var/run/secrets/grafana/token"),
			AdminUser:     getEnv("GRAFANA_ADMIN_USER", "admin"),
			AdminPassword: getEnv("GRAFANA_ADMIN_PASSWORD", ""),
			OrgID:         getEnvInt64("GRAFANA_ORG_ID", 1),
			Timeout:       getEnvDuration("GRAFANA_TIMEOUT", 0),
		},
		Provision: ProvisionConfig{
			Resolution:  ResolutionPolicy(strings.ToLower(getEnv("USER_RESOLUTION", string(ResolutionSkip)))),
			AdminUserID: getEnvInt64("GRAFANA_ADMIN_USER_ID", 1),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Log: LogConfig{
			Level: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
			File:  getEnv("LOG_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			ExporterURL:    getEnv("OTEL_EXPORTER_URL", ""),
			APIKey:         getEnv("OTEL_API_KEY", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			ServiceName:    serviceName,
			ServiceVersion: getEnv("VERSION", "dev"),
			Environment:    string(environment),
			SamplingRatio:  getEnvFloat("OTEL_SAMPLING_RATIO", 1.0),
		},
	}
}

// Validate rejects mode values the service does not know how to run with.
func (c *Config) Validate() error {
	switch c.Grafana.AuthMode {
	case AuthModeToken, AuthModeBasic:
	default:
		return fmt.Errorf("invalid GRAFANA_AUTH_MODE %q: expected %q or %q", c.Grafana.AuthMode, AuthModeToken, AuthModeBasic)
	}

	switch c.Provision.Resolution {
	case ResolutionSkip, ResolutionCreate:
	default:
		return fmt.Errorf("invalid USER_RESOLUTION %q: expected %q or %q", c.Provision.Resolution, ResolutionSkip, ResolutionCreate)
	}

	if c.Grafana.URL == "" {
		return errors.New("GRAFANA_URL must not be empty")
	}
	if c.Provision.AdminUserID < 0 {
		return errors.New("GRAFANA_ADMIN_USER_ID must not be negative")
	}

	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	if value, exists := os.LookupEnv(key); exists {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err == nil {
			return level
		}
	}
	return defaultValue
}
