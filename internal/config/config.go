package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir    string
	GPXDir     string
	ResultsDir string

	DBDriver        string
	DBPath          string
	DBDSN           string
	DBRequireParent bool
	BatchSize       int
	GPSTimeOffset   time.Duration
	GPSMaxGap       time.Duration
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka result publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopic         string
	BatchFlushInterval time.Duration

	// MQTT result publishing.
	MQTTEnabled     bool
	MQTTBroker      string
	MQTTTopicPrefix string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string

	// S3-compatible upload of exported reports.
	S3Enabled   bool
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Mapbox reverse geocoding of severity map points.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is applied first;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	// GPX times are UTC; the sensors log UTC+8 wall clock.
	gpsOffset, err := parseDuration("GPS_TIME_OFFSET", "8h", true)
	if err != nil {
		return nil, err
	}
	gpsMaxGap, err := parseDuration("GPS_MAX_GAP", "60s", false)
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", "./data"),
		GPXDir:          sharedcfg.EnvOrDefault("GPX_DIR", "./gpx"),
		ResultsDir:      sharedcfg.EnvOrDefault("RESULTS_DIR", "./results"),
		DBDriver:        strings.ToLower(sharedcfg.EnvOrDefault("DB_DRIVER", "sqlite")),
		DBPath:          sharedcfg.EnvOrDefault("DB_PATH", "vibration.db"),
		DBDSN:           os.Getenv("DB_DSN"),
		DBRequireParent: os.Getenv("DB_REQUIRE_RAW_PARENT") == "true",
		BatchSize:       batchSize,
		GPSTimeOffset:   gpsOffset,
		GPSMaxGap:       gpsMaxGap,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "vibration-severity"),
		BatchFlushInterval: flushInterval,

		MQTTEnabled:     os.Getenv("MQTT_ENABLED") == "true",
		MQTTBroker:      sharedcfg.EnvOrDefault("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTTopicPrefix: sharedcfg.EnvOrDefault("MQTT_TOPIC_PREFIX", "vibration/severity"),
		MQTTClientID:    sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "vibration-etl"),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),

		S3Enabled:   os.Getenv("S3_ENABLED") == "true",
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    sharedcfg.EnvOrDefault("S3_BUCKET", "vibration-reports"),
		S3UseSSL:    os.Getenv("S3_USE_SSL") == "true",

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	switch cfg.DBDriver {
	case "sqlite", "duckdb":
		if cfg.DBPath == "" {
			return nil, errors.New("DB_PATH is required for DB_DRIVER " + cfg.DBDriver)
		}
	case "pgx":
		if cfg.DBDSN == "" {
			return nil, errors.New("DB_DSN is required when DB_DRIVER is pgx")
		}
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}
	if cfg.S3Enabled && (cfg.S3Endpoint == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return nil, errors.New("S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENABLED is true")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseDuration(key, def string, allowNegative bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 && !allowNegative {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
