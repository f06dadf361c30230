package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	InvoicePrefix string

	Gateway GatewayConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	LogLevel string

	SeedDemoData bool
}

// GatewayConfig carries card-gateway credentials. Credentials are required
// before any capture attempt; see Validate.
type GatewayConfig struct {
	Endpoint       string
	LoginID        string
	TransactionKey string
	TimeoutSeconds int
	Sandbox        bool
}

// ErrGatewayNotConfigured is returned when gateway credentials are missing.
// Capture paths fail closed on it before any network attempt.
var ErrGatewayNotConfigured = errors.New("gateway_not_configured")

// Validate reports whether the gateway credentials are usable.
func (g GatewayConfig) Validate() error {
	if strings.TrimSpace(g.LoginID) == "" || strings.TrimSpace(g.TransactionKey) == "" {
		return ErrGatewayNotConfigured
	}
	return nil
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "paycore"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		InvoicePrefix: getenv("INVOICE_PREFIX", "INV"),

		Gateway: GatewayConfig{
			Endpoint:       getenv("GATEWAY_ENDPOINT", "https://api.authorize.net/xml/v1/request.api"),
			LoginID:        strings.TrimSpace(getenv("GATEWAY_LOGIN_ID", "")),
			TransactionKey: strings.TrimSpace(getenv("GATEWAY_TRANSACTION_KEY", "")),
			TimeoutSeconds: int(getenvInt64("GATEWAY_TIMEOUT_SECONDS", 30)),
			Sandbox:        getenvBool("GATEWAY_SANDBOX", true),
		},

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "paycore"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 100)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 3600)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 600)),

		LogLevel: getenv("LOG_LEVEL", "info"),

		SeedDemoData: getenvBool("SEED_DEMO_DATA", false),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
