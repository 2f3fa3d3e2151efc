package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SQLitePath        string
	PostgresDSN       string
	RedisAddr         string
	KafkaBrokers      []string
	KafkaTopic        string
	UseKafka          bool
	PublishEndpoint   string
	HTTPPort          string
	ClickHouseAddr    string
	ClickHouseDB      string

	// Parámetros del núcleo event-sourcing/outbox.
	MaxRetries        int
	LockTimeout       time.Duration
	BatchSize         int
	PollInterval      time.Duration
	RetentionPeriod   time.Duration
	SnapshotFrequency int64
	CacheTTL          time.Duration
}

func LoadConfig() *Config {
	// .env es opcional; si no existe seguimos con el entorno del proceso.
	_ = godotenv.Load()

	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	getEnvInt := func(key string, fallback int) int {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return fallback
	}

	getEnvDuration := func(key string, fallback time.Duration) time.Duration {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
		return fallback
	}

	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")

	return &Config{
		SQLitePath:      getEnv("SQLITE_PATH", "./eventlab.db"),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:    kafkaBrokers,
		KafkaTopic:      getEnv("KAFKA_TOPIC", "integration-events"),
		UseKafka:        getEnv("USE_KAFKA", "false") == "true",
		PublishEndpoint: getEnv("PUBLISH_ENDPOINT", "http://localhost:9090/events"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ClickHouseAddr:  getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:    getEnv("CLICKHOUSE_DB", "eventlab"),

		MaxRetries:        getEnvInt("OUTBOX_MAX_RETRIES", 5),
		LockTimeout:       getEnvDuration("OUTBOX_LOCK_TIMEOUT", 30*time.Second),
		BatchSize:         getEnvInt("OUTBOX_BATCH_SIZE", 10),
		PollInterval:      getEnvDuration("OUTBOX_POLL_INTERVAL", 1*time.Second),
		RetentionPeriod:   getEnvDuration("OUTBOX_RETENTION", 7*24*time.Hour),
		SnapshotFrequency: int64(getEnvInt("SNAPSHOT_FREQUENCY", 50)),
		CacheTTL:          getEnvDuration("CACHE_TTL", 5*time.Minute),
	}
}
