package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.Reservation.LockTTL.Std())
	assert.Equal(t, "zookeeper", cfg.Reservation.LockBackend)
	assert.False(t, cfg.Reservation.SortLockKeys)
	assert.Equal(t, "order-created", cfg.Infra.Kafka.Topics.OrderCreated)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
  workers: 2
reservation:
  lock_backend: redis
  lock_ttl: 45s
  sort_lock_keys: true
infra:
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 2, cfg.App.Workers)
	assert.Equal(t, "redis", cfg.Reservation.LockBackend)
	assert.Equal(t, 45*time.Second, cfg.Reservation.LockTTL.Std())
	assert.True(t, cfg.Reservation.SortLockKeys)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Infra.Kafka.Brokers)
	// 未出现在文件中的字段保持默认值
	assert.Equal(t, "reservation-made", cfg.Infra.Kafka.Topics.ReservationMade)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("LOCK_BACKEND", "memory")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("ZK_SERVERS", "zk1:2181")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "memory", cfg.Reservation.LockBackend)
	assert.Equal(t, 3307, cfg.Infra.Mysql.Port)
	assert.Equal(t, []string{"zk1:2181"}, cfg.Infra.Zookeeper.Servers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":  "reservation:\n  lock_ttl: soon\n",
		"zero workers":  "app:\n  workers: 0\n",
		"zero lock ttl": "reservation:\n  lock_ttl: 0s\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	t.Run("bad env port", func(t *testing.T) {
		t.Setenv("MYSQL_PORT", "abc")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
