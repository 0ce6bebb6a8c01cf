package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-smartwake/internal/models"

	"go.uber.org/zap"
)

// WakeSettingsConfig alarm_device.monitor_config 中的 smart_wake 节点
//
//	{"target_time": "07:00", "window_minutes": 30, "smart_enabled": true,
//	 "weekdays": "1-5", "timezone": "Asia/Shanghai"}
type WakeSettingsConfig struct {
	TargetTime    string `json:"target_time"`
	WindowMinutes *int   `json:"window_minutes,omitempty"`
	SmartEnabled  *bool  `json:"smart_enabled,omitempty"`
	Weekdays      string `json:"weekdays,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// SettingsDefaults 未配置字段使用的默认值
type SettingsDefaults struct {
	WindowLookback time.Duration
	SmartEnabled   bool
	Location       *time.Location
}

// ToAlarmSettings 转换为调度器使用的 AlarmSettings
func (c *WakeSettingsConfig) ToAlarmSettings(defaults SettingsDefaults) (models.AlarmSettings, error) {
	target, err := models.ParseTimeOfDay(c.TargetTime)
	if err != nil {
		return models.AlarmSettings{}, fmt.Errorf("invalid target_time %q: %w", c.TargetTime, err)
	}

	settings := models.AlarmSettings{
		TargetTime:     target,
		WindowLookback: defaults.WindowLookback,
		SmartEnabled:   defaults.SmartEnabled,
		Weekdays:       c.Weekdays,
		Location:       defaults.Location,
	}
	if c.WindowMinutes != nil {
		settings.WindowLookback = time.Duration(*c.WindowMinutes) * time.Minute
	}
	if c.SmartEnabled != nil {
		settings.SmartEnabled = *c.SmartEnabled
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return models.AlarmSettings{}, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		settings.Location = loc
	}
	return settings, nil
}

// WakeSettingsRepository 设备闹钟设置仓库
type WakeSettingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWakeSettingsRepository 创建闹钟设置仓库
func NewWakeSettingsRepository(db *sql.DB, logger *zap.Logger) *WakeSettingsRepository {
	return &WakeSettingsRepository{
		db:     db,
		logger: logger,
	}
}

// GetWakeSettings 读取设备的 smart_wake 配置，未配置时返回 nil
func (r *WakeSettingsRepository) GetWakeSettings(ctx context.Context, tenantID, deviceID string) (*WakeSettingsConfig, error) {
	query := `
		SELECT monitor_config -> 'smart_wake'
		FROM alarm_device
		WHERE device_id = $1 AND tenant_id = $2
	`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, deviceID, tenantID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 设备没有配置，返回 nil
		}
		return nil, fmt.Errorf("failed to query alarm_device: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var cfg WakeSettingsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse smart_wake config: %w", err)
	}
	return &cfg, nil
}
