package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Source kinds for OBSERVATION_SOURCE.
const (
	SourceFile  = "file"
	SourceKafka = "kafka"
)

const maxBatchSize = 1000

// Config holds all service settings, populated from environment variables.
type Config struct {
	ObservationSource string
	ObservationFile   string

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	KafkaSinkEnabled bool

	BatchSize          int
	BatchFlushInterval time.Duration

	StorePath         string
	StoreBackupDir    string
	StoreBackupRetain int
	StorePretty       bool
	StoreLockTimeout  time.Duration
	StoreAutoRecover  bool

	LexiconPath string

	// Optional MongoDB mirror; disabled when MongoURI is empty.
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	MongoTimeout    time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MetricsTextfile string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	batchSize, err := parseInt("BATCH_SIZE", 50, 1, maxBatchSize)
	collect(err)
	flushInterval, err := parseDuration("BATCH_FLUSH_INTERVAL", "2s")
	collect(err)
	retain, err := parseInt("STORE_BACKUP_RETAIN", 48, 0, 1<<20)
	collect(err)
	pretty, err := parseBool("STORE_PRETTY", true)
	collect(err)
	lockTimeout, err := parseDuration("STORE_LOCK_TIMEOUT", "30s")
	collect(err)
	autoRecover, err := parseBool("STORE_AUTO_RECOVER", false)
	collect(err)
	sinkEnabled, err := parseBool("KAFKA_SINK_ENABLED", false)
	collect(err)
	mongoTimeout, err := parseDuration("MONGO_TIMEOUT", "10s")
	collect(err)
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	collect(err)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg := &Config{
		ObservationSource: strings.ToLower(envOrDefault("OBSERVATION_SOURCE", SourceFile)),
		ObservationFile:   envOrDefault("OBSERVATION_FILE", "data/observations.jsonl"),

		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: envOrDefault("KAFKA_SOURCE_TOPIC", "rail-notice-observations"),
		KafkaSinkTopic:   envOrDefault("KAFKA_SINK_TOPIC", "rail-notice-changes"),
		KafkaGroupID:     envOrDefault("KAFKA_GROUP_ID", "rail-notice-etl"),
		KafkaSinkEnabled: sinkEnabled,

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		StorePath:         envOrDefault("STORE_PATH", "data/master.json"),
		StoreBackupDir:    os.Getenv("STORE_BACKUP_DIR"),
		StoreBackupRetain: retain,
		StorePretty:       pretty,
		StoreLockTimeout:  lockTimeout,
		StoreAutoRecover:  autoRecover,

		LexiconPath: os.Getenv("LEXICON_PATH"),

		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   envOrDefault("MONGO_DATABASE", "rail_notice"),
		MongoCollection: envOrDefault("MONGO_COLLECTION", "announcements"),
		MongoTimeout:    mongoTimeout,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),
	}

	switch cfg.ObservationSource {
	case SourceFile:
		if cfg.ObservationFile == "" {
			return nil, errors.New("OBSERVATION_FILE is required when OBSERVATION_SOURCE=file")
		}
	case SourceKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	default:
		return nil, fmt.Errorf("invalid OBSERVATION_SOURCE %q (want %s or %s)", cfg.ObservationSource, SourceFile, SourceKafka)
	}
	if cfg.KafkaSinkEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_SINK_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_SINK_ENABLED is true")
		}
	}
	if cfg.StorePath == "" {
		return nil, errors.New("STORE_PATH is required")
	}
	if cfg.MongoURI != "" && (cfg.MongoDatabase == "" || cfg.MongoCollection == "") {
		return nil, errors.New("MONGO_DATABASE and MONGO_COLLECTION are required when MONGO_URI is set")
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: must be an integer in [%d, %d]", key, raw, lo, hi)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be a boolean", key, raw)
	}
	return b, nil
}
