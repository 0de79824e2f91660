package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "memory", c.Store.Type)
	assert.Equal(t, 30, c.Forecast.WindowLength)
	assert.Equal(t, 10*time.Second, c.Store.FetchTimeout)
	assert.Equal(t, "fs", c.Registry.Source)
	assert.Equal(t, "invsight_predictions", c.Kafka.Topics.Predictions)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestLoadReconcilePlan(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: test
reconcile:
  fact: orders
  steps:
    - {table: items, left_key: item_id, right_key: id}
  rolling:
    - {column: qty, windows: [3], funcs: [sum]}
`))
	require.NoError(t, err)
	require.Len(t, c.Reconcile.Steps, 1)
	assert.Equal(t, "id", c.Reconcile.Steps[0].RightKey)
	assert.Equal(t, []int{3}, c.Reconcile.Rolling[0].Windows)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no environment":        "store: {type: memory}\n",
		"bad store":             "environment: test\nstore: {type: postgres}\n",
		"csv without dir":       "environment: test\nstore: {type: csv}\n",
		"minio without bucket":  "environment: test\nregistry: {source: minio}\n",
		"redis cache no redis":  "environment: test\nwindow_cache: {enabled: true, backend: redis}\n",
		"kafka without brokers": "environment: test\nkafka: {enabled: true}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("STORE_TYPE", "csv")
	t.Setenv("STORE_CSV_DIR", "/data")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("REDIS_PORT", "6380")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)
	assert.Equal(t, "csv", c.Store.Type)
	assert.Equal(t, "/data", c.Store.CSVDir)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 6380, c.Redis.Port)
}
