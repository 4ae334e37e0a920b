package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultSIGELURL is the ANEEL SIGEL wind turbine layer query endpoint.
const DefaultSIGELURL = "https://sigel.aneel.gov.br/arcgis/rest/services/PORTAL/WFS/MapServer/0/query"

// Config holds all service settings, populated from environment variables.
type Config struct {
	SIGELURL        string
	PageSize        int
	RequestTimeout  time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	SampleSize      int
	Workers         int
	DataDir         string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	ScheduleInterval time.Duration
	HistoryDB        string

	// Optional sinks for the consolidated output.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSSL       bool
	MinioEnabled   bool

	AMQPURL   string
	AMQPQueue string
}

// FetcherConfig configures the SIGEL HTTP client.
type FetcherConfig struct {
	URL           string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// ExtractionConfig configures the extraction stage.
type ExtractionConfig struct {
	RawDir     string
	PageSize   int
	SampleSize int
	Workers    int
}

// TransformationConfig configures the transformation stage.
type TransformationConfig struct {
	RawDir       string
	ProcessedDir string
	Workers      int
}

// ConsolidationConfig configures the consolidation stage.
type ConsolidationConfig struct {
	ProcessedDir string
	OutputDir    string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	requestTimeout, err := parseDuration("SIGEL_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("SIGEL_RETRY_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	maxRetryDelay, err := parseDuration("SIGEL_MAX_RETRY_DELAY", "30s")
	if err != nil {
		return nil, err
	}
	scheduleInterval, err := parseDuration("SCHEDULE_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}

	pageSize, err := parseInt("SIGEL_PAGE_SIZE", 1000, 1, 2000)
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseInt("SIGEL_MAX_RETRIES", 3, 1, 10)
	if err != nil {
		return nil, err
	}
	sampleSize, err := parseInt("SIGEL_SAMPLE_SIZE", 10, 1, 2000)
	if err != nil {
		return nil, err
	}
	workers, err := parseInt("WORKERS", 4, 1, 64)
	if err != nil {
		return nil, err
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")
	historyDB := filepath.Join(dataDir, "history.db")
	if v, ok := os.LookupEnv("HISTORY_DB"); ok {
		historyDB = v
	}

	cfg := &Config{
		SIGELURL:        sharedcfg.EnvOrDefault("SIGEL_URL", DefaultSIGELURL),
		PageSize:        pageSize,
		RequestTimeout:  requestTimeout,
		MaxRetries:      maxRetries,
		RetryDelay:      retryDelay,
		MaxRetryDelay:   maxRetryDelay,
		SampleSize:      sampleSize,
		Workers:         workers,
		DataDir:         dataDir,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ScheduleInterval: scheduleInterval,
		HistoryDB:        historyDB,

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "wind-turbines"),
		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",

		MinioEndpoint:  sharedcfg.EnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    sharedcfg.EnvOrDefault("MINIO_BUCKET", "hometown"),
		MinioSSL:       os.Getenv("MINIO_SSL") == "true",
		MinioEnabled:   os.Getenv("MINIO_ENABLED") == "true",

		AMQPURL:   os.Getenv("AMQP_URL"),
		AMQPQueue: sharedcfg.EnvOrDefault("AMQP_QUEUE", "hometown.consolidated"),
	}

	if cfg.MaxRetryDelay < cfg.RetryDelay {
		return nil, errors.New("SIGEL_MAX_RETRY_DELAY must not be less than SIGEL_RETRY_DELAY")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required")
		}
	}
	if cfg.MinioEnabled && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return nil, errors.New("MINIO_ENABLED is true but MINIO_ACCESS_KEY or MINIO_SECRET_KEY is not set")
	}

	return cfg, nil
}

// RawDir holds raw page payloads and the extraction metadata file.
func (c *Config) RawDir() string { return filepath.Join(c.DataDir, "raw") }

// ProcessedDir holds transformed Parquet files.
func (c *Config) ProcessedDir() string { return filepath.Join(c.DataDir, "processed") }

// OutputDir holds consolidated CSV files.
func (c *Config) OutputDir() string { return filepath.Join(c.DataDir, "output") }

func (c *Config) Fetcher() FetcherConfig {
	return FetcherConfig{
		URL:           c.SIGELURL,
		Timeout:       c.RequestTimeout,
		MaxRetries:    c.MaxRetries,
		RetryDelay:    c.RetryDelay,
		MaxRetryDelay: c.MaxRetryDelay,
	}
}

func (c *Config) Extraction() ExtractionConfig {
	return ExtractionConfig{
		RawDir:     c.RawDir(),
		PageSize:   c.PageSize,
		SampleSize: c.SampleSize,
		Workers:    c.Workers,
	}
}

func (c *Config) Transformation() TransformationConfig {
	return TransformationConfig{
		RawDir:       c.RawDir(),
		ProcessedDir: c.ProcessedDir(),
		Workers:      c.Workers,
	}
}

func (c *Config) Consolidation() ConsolidationConfig {
	return ConsolidationConfig{
		ProcessedDir: c.ProcessedDir(),
		OutputDir:    c.OutputDir(),
	}
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}
