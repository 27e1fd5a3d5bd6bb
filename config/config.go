package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string
	Store    StoreConfig
	Mongo    MongoConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	NATS     NATSConfig
	Redis    RedisConfig
	Audit    AuditConfig
}

type StoreConfig struct {
	Driver  string
	Timeout time.Duration
}

type MongoConfig struct {
	URI string
	DB  string
}

type AuthConfig struct {
	JWTSecret string

	// Optional admin account created at startup when absent.
	AdminEmail    string
	AdminPassword string
}

type GatewayConfig struct {
	Driver      string
	SecretKey   string
	FrontendURL string
	Timeout     time.Duration
}

type NATSConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	SalesTTL time.Duration
}

type AuditConfig struct {
	DBPath string
}

// LoadEnv reads a .env file into the process environment when one exists.
func LoadEnv() {
	_ = godotenv.Load()
}

func Load() (*Config, error) {
	LoadEnv()

	cfg := &Config{
		Port:     GetEnv("PORT", "8080"),
		LogLevel: GetEnv("LOG_LEVEL", "info"),
		Store: StoreConfig{
			Driver: GetEnv("STORE_DRIVER", "mongo"),
		},
		Mongo: MongoConfig{
			URI: GetEnv("MONGO_URI", "mongodb://localhost:27017"),
			DB:  GetEnv("DB_NAME", "storefront"),
		},
		Auth: AuthConfig{
			JWTSecret:     GetEnv("JWT_SECRET", ""),
			AdminEmail:    GetEnv("ADMIN_EMAIL", ""),
			AdminPassword: GetEnv("ADMIN_PASSWORD", ""),
		},
		Gateway: GatewayConfig{
			Driver:      GetEnv("GATEWAY_DRIVER", "stripe"),
			SecretKey:   GetEnv("STRIPE_SECRET_KEY", ""),
			FrontendURL: GetEnv("FRONTEND_URL", "http://localhost:5173"),
		},
		NATS: NATSConfig{
			URL: GetEnv("NATS_URL", ""),
		},
		Redis: RedisConfig{
			Addr: GetEnv("REDIS_ADDR", ""),
		},
		Audit: AuditConfig{
			DBPath: GetEnv("AUDIT_DB_PATH", ""),
		},
	}

	var err error
	if cfg.Store.Timeout, err = getDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Gateway.Timeout, err = getDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Redis.SalesTTL, err = getDuration("SALES_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required")
		}
		if c.Mongo.DB == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be mongo or memory, got %q", c.Store.Driver)
	}

	switch c.Gateway.Driver {
	case "stripe":
		if c.Gateway.SecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required")
		}
	case "fake":
		if c.Store.Driver != "memory" {
			return fmt.Errorf("GATEWAY_DRIVER=fake is only allowed with STORE_DRIVER=memory")
		}
	default:
		return fmt.Errorf("GATEWAY_DRIVER must be stripe or fake, got %q", c.Gateway.Driver)
	}

	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
