package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Auth     AuthConfig
	Log      LogConfig
	Events   EventsConfig
	Dedup    DedupConfig
	Sim      SimConfig
	Tracking TrackingConfig
	Proof    ProofConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

type HTTPConfig struct {
	Address        string
	AllowedOrigins []string
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string // JWT signing secret
}

type LogConfig struct {
	Env   string // development | production
	Level string
}

// EventsConfig selects where order changes are published.
type EventsConfig struct {
	Driver  string // memory | nats
	NATSURL string
}

// DedupConfig selects where fired notification keys are remembered.
type DedupConfig struct {
	Driver    string // memory | redis
	RedisAddr string
}

type SimConfig struct {
	Tick         time.Duration
	StepFraction float64
	JitterDeg    float64
	SpeedKmh     float64
}

type TrackingConfig struct {
	PollInterval    time.Duration
	NotificationTTL time.Duration
	// IdleTimeout stops an observer's poller after this long without activity.
	IdleTimeout time.Duration
}

type ProofConfig struct {
	AttemptsPerMinute int
}

// Load loads configuration from the environment (and an optional .env file).
// JWT_SECRET is required.
func Load() (*Config, error) {
	return load("")
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "restaurant.db"),
		},
		HTTP: HTTPConfig{
			Address:        getEnv("HTTP_ADDRESS", ":8080"),
			AllowedOrigins: []string{getEnv("CORS_ORIGIN", "*")},
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", defaultSecret),
		},
		Log: LogConfig{
			Env:   getEnv("LOG_ENV", "development"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Events: EventsConfig{
			Driver:  getEnv("EVENTS_DRIVER", "memory"),
			NATSURL: getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		},
		Dedup: DedupConfig{
			Driver:    getEnv("DEDUP_DRIVER", "memory"),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
	}

	var err error
	if cfg.Sim.Tick, err = getEnvDuration("SIM_TICK", time.Second); err != nil {
		return nil, err
	}
	if cfg.Sim.StepFraction, err = getEnvFloat("SIM_STEP_FRACTION", 0.03); err != nil {
		return nil, err
	}
	if cfg.Sim.JitterDeg, err = getEnvFloat("SIM_JITTER_DEG", 0.00005); err != nil {
		return nil, err
	}
	if cfg.Sim.SpeedKmh, err = getEnvFloat("SIM_SPEED_KMH", 40); err != nil {
		return nil, err
	}
	if cfg.Tracking.PollInterval, err = getEnvDuration("POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Tracking.NotificationTTL, err = getEnvDuration("NOTIFICATION_TTL", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.Tracking.IdleTimeout, err = getEnvDuration("TRACKING_IDLE_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Proof.AttemptsPerMinute, err = getEnvInt("PROOF_ATTEMPTS_PER_MINUTE", 5); err != nil {
		return nil, err
	}

	// Validate critical settings
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	switch cfg.Events.Driver {
	case "memory", "nats":
	default:
		return nil, fmt.Errorf("EVENTS_DRIVER must be memory or nats, got %q", cfg.Events.Driver)
	}
	switch cfg.Dedup.Driver {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("DEDUP_DRIVER must be memory or redis, got %q", cfg.Dedup.Driver)
	}
	return cfg, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, HTTP: %s, gRPC: %s, Events: %s, Dedup: %s, Log: %s/%s, Auth: *** (masked) ***}",
		c.Database.Path, c.HTTP.Address, c.GRPC.Address, c.Events.Driver, c.Dedup.Driver, c.Log.Env, c.Log.Level)
}
