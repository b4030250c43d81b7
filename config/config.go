// Package config loads service configuration from an optional JSON file
// with environment-variable overrides.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	NATS     NATSConfig     `json:"nats"`
	Auth     AuthConfig     `json:"auth"`
	Bidding  BiddingConfig  `json:"bidding"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int `json:"port"`
}

// DatabaseConfig contains session-store settings. Driver is "postgres" or
// "memory"; the memory store is for local development only.
type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name,
	)
}

// RedisConfig contains realtime fan-out settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NATSConfig contains archival stream settings
type NATSConfig struct {
	URL string `json:"url"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// BiddingConfig contains session lifecycle settings
type BiddingConfig struct {
	SessionDurationHours int `json:"session_duration_hours"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "localhost",
			Port:   5432,
			Name:   "nightbid",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Bidding: BiddingConfig{
			SessionDurationHours: 24,
			SweepIntervalSeconds: 30,
		},
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = filepath.Join("configs", "config.json")
	}

	if _, err := os.Stat(configFile); err == nil {
		file, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, err
		}
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		var serverPort int
		if _, err := fmt.Sscanf(port, "%d", &serverPort); err == nil {
			cfg.Server.Port = serverPort
		}
	}

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		var databasePort int
		if _, err := fmt.Sscanf(dbPort, "%d", &databasePort); err == nil {
			cfg.Database.Port = databasePort
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("DB_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisPass := os.Getenv("REDIS_PASSWORD"); redisPass != "" {
		cfg.Redis.Password = redisPass
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	} else if cfg.Auth.JWTSecret == "" {
		// Generate a random JWT secret if not provided
		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, err
		}
		cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(randomBytes)
	}

	return cfg, nil
}
