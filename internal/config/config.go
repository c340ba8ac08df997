package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Logging      LoggingConfig
	Auth         AuthConfig
	Judge        JudgeConfig
	Environments map[string]Environment
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// AuthConfig holds access control configuration. The backoffice uses a single
// shared token; an empty token disables the check.
type AuthConfig struct {
	Token string
}

// JudgeConfig holds LLM judge configuration
type JudgeConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxAttempts int
}

// Environment describes one target environment of the agent service
type Environment struct {
	AgentEndpoint string `yaml:"agent_endpoint"`
	AgentAPIKey   string `yaml:"agent_api_key"`
}

// Load loads configuration from environment variables and, when
// ENVIRONMENTS_FILE is set, the YAML environments file.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "qabackoffice"),
			Password:        getEnv("DB_PASSWORD", "qabackoffice"),
			Name:            getEnv("DB_NAME", "qabackoffice"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8082"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			Token: getEnv("BACKOFFICE_TOKEN", ""),
		},
		Judge: JudgeConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("JUDGE_MODEL", "gpt-4o-mini"),
			MaxAttempts: getEnvInt("JUDGE_MAX_ATTEMPTS", 3),
		},
		Environments: map[string]Environment{},
	}

	if path := os.Getenv("ENVIRONMENTS_FILE"); path != "" {
		envs, err := loadEnvironmentsFile(path)
		if err != nil {
			return nil, fmt.Errorf("load environments file: %w", err)
		}
		cfg.Environments = envs
	} else {
		// Fallback: AGENT_ENDPOINT_<ENV> / AGENT_API_KEY_<ENV> pairs
		for _, name := range []string{"dev", "staging", "production"} {
			suffix := strings.ToUpper(name)
			endpoint := getEnv("AGENT_ENDPOINT_"+suffix, "")
			if endpoint == "" {
				continue
			}
			cfg.Environments[name] = Environment{
				AgentEndpoint: endpoint,
				AgentAPIKey:   getEnv("AGENT_API_KEY_"+suffix, ""),
			}
		}
	}

	return cfg, nil
}

func loadEnvironmentsFile(path string) (map[string]Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Environments map[string]Environment `yaml:"environments"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Environments) == 0 {
		return nil, fmt.Errorf("no environments defined in %s", path)
	}
	return doc.Environments, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}
