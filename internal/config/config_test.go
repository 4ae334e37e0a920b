package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultSIGELURL, cfg.SIGELURL)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 10, cfg.SampleSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 24*time.Hour, cfg.ScheduleInterval)
	assert.Equal(t, filepath.Join("data", "history.db"), cfg.HistoryDB)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "wind-turbines", cfg.KafkaTopic)
	assert.False(t, cfg.KafkaEnabled)
	assert.False(t, cfg.MinioEnabled)
	assert.Equal(t, "hometown", cfg.MinioBucket)
	assert.Empty(t, cfg.AMQPURL)
	assert.Equal(t, "hometown.consolidated", cfg.AMQPQueue)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("SIGEL_URL", "http://localhost:1234/query")
	t.Setenv("SIGEL_PAGE_SIZE", "500")
	t.Setenv("SIGEL_TIMEOUT", "5s")
	t.Setenv("SIGEL_MAX_RETRIES", "5")
	t.Setenv("SIGEL_RETRY_DELAY", "250ms")
	t.Setenv("SIGEL_SAMPLE_SIZE", "20")
	t.Setenv("WORKERS", "8")
	t.Setenv("DATA_DIR", "/tmp/hometown")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("SCHEDULE_INTERVAL", "1h")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "turbines")
	t.Setenv("KAFKA_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:1234/query", cfg.SIGELURL)
	assert.Equal(t, 500, cfg.PageSize)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 20, cfg.SampleSize)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "/tmp/hometown", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/hometown", "history.db"), cfg.HistoryDB)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Hour, cfg.ScheduleInterval)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "turbines", cfg.KafkaTopic)
	assert.True(t, cfg.KafkaEnabled)
}

func TestLoad_EmptyHistoryDBDisablesHistory(t *testing.T) {
	t.Setenv("HISTORY_DB", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.HistoryDB)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidTimeout(t *testing.T) {
	t.Setenv("SIGEL_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIGEL_TIMEOUT")
}

func TestLoad_InvalidPageSize(t *testing.T) {
	for _, v := range []string{"0", "abc", "2001"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("SIGEL_PAGE_SIZE", v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "SIGEL_PAGE_SIZE")
		})
	}
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("WORKERS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKERS")
}

func TestLoad_RetryDelayAboveCap(t *testing.T) {
	t.Setenv("SIGEL_RETRY_DELAY", "1m")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIGEL_MAX_RETRY_DELAY")
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_MinioEnabledWithoutCredentials(t *testing.T) {
	t.Setenv("MINIO_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINIO_ACCESS_KEY")
}

func TestStageConfigs(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/data")
	t.Setenv("WORKERS", "2")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ExtractionConfig{
		RawDir:     filepath.Join("/srv/data", "raw"),
		PageSize:   1000,
		SampleSize: 10,
		Workers:    2,
	}, cfg.Extraction())
	assert.Equal(t, TransformationConfig{
		RawDir:       filepath.Join("/srv/data", "raw"),
		ProcessedDir: filepath.Join("/srv/data", "processed"),
		Workers:      2,
	}, cfg.Transformation())
	assert.Equal(t, ConsolidationConfig{
		ProcessedDir: filepath.Join("/srv/data", "processed"),
		OutputDir:    filepath.Join("/srv/data", "output"),
	}, cfg.Consolidation())
	assert.Equal(t, DefaultSIGELURL, cfg.Fetcher().URL)
}
