// Package config loads the process's environment-derived settings once
// at startup (spec §6 "Environment (database host, name, user, password,
// port) read once at startup").
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting this service needs.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	HTTPAddr   string
	LogLevel   string
}

// Load reads a local .env file if present, then the real environment,
// applying defaults for anything unset.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "backtester"),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}
}

// ConnectionString builds the lib/pq connection string the price
// repository and strategy store both open.
func (c Config) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
