package config

import (
	"time"

	"wisefido-smartwake/internal/common/config"
)

// Config 智能唤醒服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 智能唤醒服务特定配置
	SmartWake struct {
		TenantID string // 默认租户ID
		HTTPAddr string // HTTP 监听地址，如 ":8090"

		// 默认闹钟设置（设备未配置时使用）
		Defaults struct {
			WindowMinutes int    // 提前唤醒窗口（分钟），默认 30
			SmartEnabled  bool   // 是否启用智能唤醒，默认 true
			Timezone      string // 默认时区，如 "Asia/Shanghai"
		}

		EmitCancelled bool          // 取消时是否输出记录
		MaxSleepCap   time.Duration // 触发服务最长休眠间隔，默认 60秒

		// 输入源
		Source struct {
			MQTTEnabled   bool   // 直接订阅 Sleepace MQTT
			MQTTTopic     string // 如 "sleepace-57136"
			StreamEnabled bool   // 消费 Redis Stream
			Stream        string // 如 "sleepace:data:stream"
			ConsumerGroup string // 如 "smartwake-consumer-group"
			ConsumerName  string // 如 "smartwake-consumer-1"
			BatchSize     int    // 每次读取条数，默认 10
		}

		// 输出
		Output struct {
			RecordStream    string        // 唤醒记录流，如 "smartwake:records"
			StatusKeyPrefix string        // 状态缓存键前缀，如 "smartwake:device:"
			StatusTTL       time.Duration // 状态缓存 TTL，默认 24小时
			PersistRecords  bool          // 是否写入 PostgreSQL
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owlrd",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "wisefido-smartwake",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	sw := &cfg.SmartWake
	sw.TenantID = config.EnvString("TENANT_ID", "default")
	sw.HTTPAddr = config.EnvString("HTTP_ADDR", ":8090")

	sw.Defaults.WindowMinutes = config.EnvInt("SMARTWAKE_WINDOW_MINUTES", 30)
	sw.Defaults.SmartEnabled = config.EnvBool("SMARTWAKE_SMART_ENABLED", true)
	sw.Defaults.Timezone = config.EnvString("SMARTWAKE_TIMEZONE", "Asia/Shanghai")

	sw.EmitCancelled = config.EnvBool("SMARTWAKE_EMIT_CANCELLED", false)
	sw.MaxSleepCap = config.EnvDuration("SMARTWAKE_MAX_SLEEP_CAP", 60*time.Second)

	sw.Source.MQTTEnabled = config.EnvBool("SMARTWAKE_MQTT_ENABLED", false)
	sw.Source.MQTTTopic = config.EnvString("SLEEPACE_MQTT_TOPIC", "sleepace-57136")
	sw.Source.StreamEnabled = config.EnvBool("SMARTWAKE_STREAM_ENABLED", true)
	sw.Source.Stream = config.EnvString("SLEEPACE_STREAM", "sleepace:data:stream")
	sw.Source.ConsumerGroup = config.EnvString("SMARTWAKE_CONSUMER_GROUP", "smartwake-consumer-group")
	sw.Source.ConsumerName = config.EnvString("SMARTWAKE_CONSUMER_NAME", "smartwake-consumer-1")
	sw.Source.BatchSize = config.EnvInt("SMARTWAKE_BATCH_SIZE", 10)

	sw.Output.RecordStream = config.EnvString("SMARTWAKE_RECORD_STREAM", "smartwake:records")
	sw.Output.StatusKeyPrefix = config.EnvString("SMARTWAKE_STATUS_PREFIX", "smartwake:device:")
	sw.Output.StatusTTL = config.EnvDuration("SMARTWAKE_STATUS_TTL", 24*time.Hour)
	sw.Output.PersistRecords = config.EnvBool("SMARTWAKE_PERSIST_RECORDS", true)

	cfg.Log.Level = config.EnvString("LOG_LEVEL", "info")
	cfg.Log.Format = config.EnvString("LOG_FORMAT", "json")

	return cfg, nil
}

// DefaultLocation 默认时区，无法加载时回退到 UTC
func (c *Config) DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(c.SmartWake.Defaults.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
