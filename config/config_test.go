package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	require.NoError(t, err)
	assert.Equal(t, "subdivisions", cfg.AppName)
	assert.Equal(t, 3004, cfg.Port)
	assert.Equal(t, "58c984b088ee386cdb1261f3", cfg.COGDatasetID)
	assert.Equal(t, 2019, cfg.COGMinYear)
	assert.Equal(t, 2021, cfg.ColumnEpochYear)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.RedisLockTTL)
	assert.Equal(t, 24*time.Hour, cfg.SchedulerInterval)
	assert.Equal(t, int64(128*1024*1024), cfg.CatalogMaxDownloadBytes)
	assert.Empty(t, cfg.CommuneRegistryDataset)
}

func TestLoad_EnvFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=4000\nREDIS_ENABLED=true\nKAFKA_BROKERS=k1:9092,k2:9092\n"), 0o600))
	t.Cleanup(func() {
		for _, key := range []string{"PORT", "REDIS_ENABLED", "KAFKA_BROKERS"} {
			_ = os.Unsetenv(key)
		}
	})
	t.Setenv("SCHEDULER_INTERVAL", "6h")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 6*time.Hour, cfg.SchedulerInterval)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	require.ErrorContains(t, err, "failed to read config")
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DatabaseHost:     "db",
		DatabasePort:     "5433",
		DatabaseUserName: "registry",
		DatabasePassword: "secret",
		DatabaseName:     "subdivisions",
		DatabaseSSLMode:  "require",
	}

	assert.Equal(t, "host=db port=5433 user=registry password=secret dbname=subdivisions sslmode=require", cfg.DatabaseDSN())
}
