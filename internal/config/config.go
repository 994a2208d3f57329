// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Mail     MailConfig
	App      AppConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds database connection settings.
// Driver selects "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
}

// AuthConfig holds identity verification settings.
type AuthConfig struct {
	// JWTSecret verifies bearer tokens issued by the identity provider.
	JWTSecret string
}

// MailConfig holds outbound email settings. An empty APIKey selects the
// logging sender, which records messages instead of delivering them.
type MailConfig struct {
	APIKey string
	From   string
	APIURL string
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
	// StrictTransitions enables the guarded invoice status transition table.
	// Off by default: any status may be set from any other.
	StrictTransitions bool
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "invoicer"),
			Password: getEnv("DB_PASSWORD", "invoicer123"),
			DBName:   getEnv("DB_NAME", "invoicer"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "invoicer.db"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "devjwtsecret"),
		},
		Mail: MailConfig{
			APIKey: getEnv("RESEND_API_KEY", ""),
			From:   getEnv("EMAIL_FROM", "invoices@localhost"),
			APIURL: getEnv("RESEND_API_URL", "https://api.resend.com/emails"),
		},
		App: AppConfig{
			Dev:               getEnvBool("DEV", true),
			Migrations:        getEnvBool("MIGRATIONS", true),
			StrictTransitions: getEnvBool("STRICT_TRANSITIONS", false),
		},
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}
