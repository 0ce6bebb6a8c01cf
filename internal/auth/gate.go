// Package auth 决定设备是否允许开始智能唤醒监测
package auth

import (
	"context"
	"errors"
	"fmt"

	"wisefido-smartwake/internal/repository"

	"go.uber.org/zap"
)

// ErrNotAuthorized 设备未被授权开始监测
var ErrNotAuthorized = errors.New("not authorized")

// Gate 授权闸门：Activate 之前必须通过
type Gate interface {
	Authorize(ctx context.Context, tenantID, deviceID string) error
}

// DeviceAccessReader 设备授权信息来源（由 repository.DeviceRepository 实现）
type DeviceAccessReader interface {
	GetDeviceAccess(ctx context.Context, tenantID, deviceID string) (*repository.DeviceAccess, error)
}

// DeviceGate 基于 devices 表 business_access / monitoring_enabled 的授权
type DeviceGate struct {
	devices DeviceAccessReader
	logger  *zap.Logger
}

// NewDeviceGate 创建设备授权闸门
func NewDeviceGate(devices DeviceAccessReader, logger *zap.Logger) *DeviceGate {
	return &DeviceGate{devices: devices, logger: logger}
}

// Authorize 设备不存在、未批准或未开启监测时返回 ErrNotAuthorized
func (g *DeviceGate) Authorize(ctx context.Context, tenantID, deviceID string) error {
	access, err := g.devices.GetDeviceAccess(ctx, tenantID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to check device access: %w", err)
	}
	if access == nil {
		g.logger.Warn("Smart wake rejected: device not found",
			zap.String("tenant_id", tenantID),
			zap.String("device_id", deviceID),
		)
		return fmt.Errorf("%w: device %s not found", ErrNotAuthorized, deviceID)
	}
	if !access.Allowed() {
		g.logger.Warn("Smart wake rejected: device not allowed",
			zap.String("tenant_id", tenantID),
			zap.String("device_id", deviceID),
			zap.String("business_access", access.BusinessAccess),
			zap.Bool("monitoring_enabled", access.MonitoringEnabled),
		)
		return fmt.Errorf("%w: device %s access=%s monitoring=%t",
			ErrNotAuthorized, deviceID, access.BusinessAccess, access.MonitoringEnabled)
	}
	return nil
}

// StaticGate 固定结果的授权（未连接数据库时使用）
type StaticGate bool

// Authorize 实现 Gate
func (g StaticGate) Authorize(ctx context.Context, tenantID, deviceID string) error {
	if !g {
		return fmt.Errorf("%w: device %s", ErrNotAuthorized, deviceID)
	}
	return nil
}
