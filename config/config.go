package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Logger   LoggerConfig
	Postgres PostgresConfig
	Site     SiteConfig
	Export   ExportConfig
	Kafka    KafkaConfig
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

// SiteConfig describes the storefront the feed is generated for. Extractors
// need the base URL for absolute product links and the image view type used
// to select feed images.
type SiteConfig struct {
	ID             string
	BaseURL        string
	Currency       string
	ImageViewType  string
	AllowedLocales []string
}

// ExportConfig is the job parameter surface. TargetDir is mandatory; the
// remaining fields have working defaults.
type ExportConfig struct {
	TargetDir      string
	FileNamePrefix string
	ExportType     string
	LocaleID       string
	Disabled       bool
	ChunkSize      int
	Workers        int
	ReportEvery    int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func Load() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "info"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5432"),
			User:            getEnv("POSTGRES_USER", "omnifeed"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnifeed"),
			DBName:          getEnv("POSTGRES_DB", "omnifeed_catalog"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Site: SiteConfig{
			ID:             getEnv("SITE_ID", "default"),
			BaseURL:        getEnv("SITE_BASE_URL", "https://www.example.com"),
			Currency:       getEnv("SITE_CURRENCY", "USD"),
			ImageViewType:  getEnv("SITE_IMAGE_VIEW_TYPE", "large"),
			AllowedLocales: getEnvSlice("SITE_ALLOWED_LOCALES", []string{"en_US"}),
		},
		Export: ExportConfig{
			TargetDir:      getEnv("EXPORT_TARGET_DIR", ""),
			FileNamePrefix: getEnv("EXPORT_FILE_PREFIX", ""),
			ExportType:     getEnv("EXPORT_TYPE", "catalog"),
			LocaleID:       getEnv("EXPORT_LOCALE_ID", ""),
			Disabled:       getEnvBool("EXPORT_DISABLED", false),
			ChunkSize:      getEnvInt("EXPORT_CHUNK_SIZE", 100),
			Workers:        getEnvInt("EXPORT_WORKERS", 4),
			ReportEvery:    getEnvInt("EXPORT_REPORT_EVERY", 1000),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC_FEED", "feed.events"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}
