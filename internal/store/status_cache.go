package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-smartwake/internal/scheduler"

	"go.uber.org/zap"
)

// StatusCache 设备智能唤醒状态快照缓存
// 键格式：<prefix><device_id>:status
type StatusCache struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatusCache 创建状态缓存
func NewStatusCache(kv KVStore, prefix string, ttl time.Duration, logger *zap.Logger) *StatusCache {
	return &StatusCache{
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Key 构建状态键
func (c *StatusCache) Key(deviceID string) string {
	return fmt.Sprintf("%s%s:status", c.prefix, deviceID)
}

// Put 写入状态快照（带 TTL）
func (c *StatusCache) Put(ctx context.Context, status scheduler.Status) error {
	jsonData, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := c.Key(status.DeviceID)
	if err := c.kv.Set(ctx, key, string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set status cache: %w", err)
	}

	c.logger.Debug("Updated smart wake status cache",
		zap.String("device_id", status.DeviceID),
		zap.String("state", string(status.State)),
		zap.String("key", key),
	)
	return nil
}

// Get 读取状态快照，不存在时返回 ErrCacheMiss
func (c *StatusCache) Get(ctx context.Context, deviceID string) (*scheduler.Status, error) {
	val, err := c.kv.Get(ctx, c.Key(deviceID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get status cache: %w", err)
	}

	var status scheduler.Status
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

// Delete 删除状态快照
func (c *StatusCache) Delete(ctx context.Context, deviceID string) error {
	return c.kv.Del(ctx, c.Key(deviceID))
}
