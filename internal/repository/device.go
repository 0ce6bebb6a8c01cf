package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Device 设备模型
type Device struct {
	DeviceID          string
	TenantID          string
	SerialNumber      sql.NullString
	UID               sql.NullString
	DeviceName        string
	Status            string
	BusinessAccess    string
	MonitoringEnabled bool
}

// DeviceAccess 设备授权信息
type DeviceAccess struct {
	DeviceID          string
	TenantID          string
	BusinessAccess    string // pending / approved / rejected
	MonitoringEnabled bool
}

// Allowed 设备已批准且开启监测
func (a *DeviceAccess) Allowed() bool {
	return a != nil && a.BusinessAccess == "approved" && a.MonitoringEnabled
}

// DeviceRepository 设备仓库
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// GetDeviceByCode 根据设备代码获取设备（Sleepace 上报使用 serial_number 或 uid）
func (r *DeviceRepository) GetDeviceByCode(ctx context.Context, deviceCode string) (*Device, error) {
	query := `
		SELECT
			d.device_id,
			d.tenant_id,
			d.serial_number,
			d.uid,
			d.device_name,
			d.status,
			d.business_access,
			d.monitoring_enabled
		FROM devices d
		WHERE d.serial_number = $1 OR d.uid = $1
		LIMIT 1
	`

	device := &Device{}
	err := r.db.QueryRowContext(ctx, query, deviceCode).Scan(
		&device.DeviceID,
		&device.TenantID,
		&device.SerialNumber,
		&device.UID,
		&device.DeviceName,
		&device.Status,
		&device.BusinessAccess,
		&device.MonitoringEnabled,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("device not found: %s", deviceCode)
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return device, nil
}

// GetDeviceAccess 获取设备授权信息，设备不存在时返回 nil
func (r *DeviceRepository) GetDeviceAccess(ctx context.Context, tenantID, deviceID string) (*DeviceAccess, error) {
	query := `
		SELECT
			device_id,
			tenant_id,
			business_access,
			monitoring_enabled
		FROM devices
		WHERE device_id = $1 AND tenant_id = $2
	`

	access := &DeviceAccess{}
	err := r.db.QueryRowContext(ctx, query, deviceID, tenantID).Scan(
		&access.DeviceID,
		&access.TenantID,
		&access.BusinessAccess,
		&access.MonitoringEnabled,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query device access: %w", err)
	}
	return access, nil
}
