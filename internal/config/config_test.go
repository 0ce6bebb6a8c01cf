package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "owlrd", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, "default", cfg.SmartWake.TenantID)
	assert.Equal(t, ":8090", cfg.SmartWake.HTTPAddr)
	assert.Equal(t, 30, cfg.SmartWake.Defaults.WindowMinutes)
	assert.True(t, cfg.SmartWake.Defaults.SmartEnabled)
	assert.False(t, cfg.SmartWake.EmitCancelled)
	assert.Equal(t, 60*time.Second, cfg.SmartWake.MaxSleepCap)

	assert.False(t, cfg.SmartWake.Source.MQTTEnabled)
	assert.True(t, cfg.SmartWake.Source.StreamEnabled)
	assert.Equal(t, "sleepace:data:stream", cfg.SmartWake.Source.Stream)
	assert.Equal(t, "smartwake-consumer-group", cfg.SmartWake.Source.ConsumerGroup)
	assert.Equal(t, 10, cfg.SmartWake.Source.BatchSize)

	assert.Equal(t, "smartwake:records", cfg.SmartWake.Output.RecordStream)
	assert.Equal(t, "smartwake:device:", cfg.SmartWake.Output.StatusKeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.SmartWake.Output.StatusTTL)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_PORT", "6543")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://broker:1883")
	os.Setenv("TENANT_ID", "test-tenant")
	os.Setenv("SMARTWAKE_WINDOW_MINUTES", "20")
	os.Setenv("SMARTWAKE_SMART_ENABLED", "false")
	os.Setenv("SMARTWAKE_EMIT_CANCELLED", "true")
	os.Setenv("SMARTWAKE_MAX_SLEEP_CAP", "15s")
	os.Setenv("SMARTWAKE_STATUS_TTL", "3600")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "test-tenant", cfg.SmartWake.TenantID)
	assert.Equal(t, 20, cfg.SmartWake.Defaults.WindowMinutes)
	assert.False(t, cfg.SmartWake.Defaults.SmartEnabled)
	assert.True(t, cfg.SmartWake.EmitCancelled)
	assert.Equal(t, 15*time.Second, cfg.SmartWake.MaxSleepCap)
	assert.Equal(t, time.Hour, cfg.SmartWake.Output.StatusTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	// 清理环境变量
	os.Clearenv()
}

func TestDefaultLocation(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", cfg.DefaultLocation().String())

	cfg.SmartWake.Defaults.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.DefaultLocation())
}
