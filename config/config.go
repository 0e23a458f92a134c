package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	HTTP      ServerConfig
	MySQL     MySQLConfig
	Log       LogConfig
	Gateway   GatewayConfig
	Reconcile ReconcileConfig
	Jobs      JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type GatewayConfig struct {
	APIKey             string
	BaseURL            string
	HTTPTimeout        time.Duration
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

type ReconcileConfig struct {
	CollisionWindow    time.Duration
	ConfirmationCutoff time.Duration
	OperationDelay     time.Duration
	MaxRetryCount      int32
	MaxPages           int
	JobBatchSize       int32
}

type JobsConfig struct {
	PaymentSyncInterval time.Duration
	OrderSyncInterval   time.Duration
	RetryInterval       time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	mysqlDSN, err := normalizeMySQLDSN(mysqlDSN)
	if err != nil {
		return nil, err
	}

	gatewayAPIKey := os.Getenv("GATEWAY_API_KEY")
	if gatewayAPIKey == "" {
		return nil, errors.New("GATEWAY_API_KEY environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "reconciler-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Gateway: GatewayConfig{
			APIKey:      gatewayAPIKey,
			BaseURL:     getEnv("GATEWAY_BASE_URL", "https://api.pay.bleumi.com/v1"),
			HTTPTimeout: getSecondsEnv("GATEWAY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			CheckoutSuccessURL: getEnv("GATEWAY_CHECKOUT_SUCCESS_URL",
				"http://localhost:8080/checkout/complete"),
			CheckoutCancelURL: getEnv("GATEWAY_CHECKOUT_CANCEL_URL",
				"http://localhost:8080/checkout/canceled"),
		},
		Reconcile: ReconcileConfig{
			CollisionWindow:    getMinutesEnv("RECONCILE_COLLISION_WINDOW_MINUTES", 10*time.Minute),
			ConfirmationCutoff: getMinutesEnv("RECONCILE_CONFIRMATION_CUTOFF_MINUTES", 24*time.Hour),
			OperationDelay:     getMillisEnv("RECONCILE_OPERATION_DELAY_MILLIS", 300*time.Millisecond),
			MaxRetryCount:      int32(getIntEnv("RECONCILE_MAX_RETRY_COUNT", 3)),
			MaxPages:           getIntEnv("RECONCILE_MAX_PAGES", 25),
			JobBatchSize:       int32(getIntEnv("RECONCILE_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			PaymentSyncInterval: getMinutesEnv("JOBS_PAYMENT_SYNC_INTERVAL_MINUTES", 2*time.Minute),
			OrderSyncInterval:   getMinutesEnv("JOBS_ORDER_SYNC_INTERVAL_MINUTES", 2*time.Minute),
			RetryInterval:       getMinutesEnv("JOBS_RETRY_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

// normalizeMySQLDSN forces clientFoundRows so UPDATE results count matched
// rows. Without it a same-values write reports zero rows and is
// indistinguishable from a missing row. parseTime is required for the
// DATETIME scans in the repositories.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MYSQL_DSN: %w", err)
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if millis, err := strconv.Atoi(value); err == nil {
			return time.Duration(millis) * time.Millisecond
		}
	}
	return defaultValue
}
