package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mqttcommon "wisefido-smartwake/internal/common/mqtt"
	"wisefido-smartwake/internal/models"
	"wisefido-smartwake/internal/repository"
	"wisefido-smartwake/internal/scheduler"

	"go.uber.org/zap"
)

// SampleIngester 睡眠阶段样本的接收方（由 service.SmartWakeService 实现）
type SampleIngester interface {
	Ingest(ctx context.Context, tenantID, deviceID string, sample models.PhaseSample) error
}

// DeviceResolver 根据设备代码查询设备
type DeviceResolver interface {
	GetDeviceByCode(ctx context.Context, deviceCode string) (*repository.Device, error)
}

// Subscriber MQTT 订阅接口（由 mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 直接订阅 Sleepace MQTT 的睡眠阶段消费者
type MQTTConsumer struct {
	topic    string
	qos      byte
	sub      Subscriber
	devices  DeviceResolver
	ingester SampleIngester
	logger   *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	topic string,
	qos byte,
	sub Subscriber,
	devices DeviceResolver,
	ingester SampleIngester,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		topic:    topic,
		qos:      qos,
		sub:      sub,
		devices:  devices,
		ingester: ingester,
		logger:   logger,
	}
}

// Start 订阅主题并阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if c.topic == "" {
		return fmt.Errorf("sleepace MQTT topic not configured")
	}

	if err := c.sub.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sleepace topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if c.topic != "" {
		if err := c.sub.Unsubscribe(c.topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理MQTT消息（Sleepace 消息格式：数组）
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var messages []ReceivedMessage
	if err := json.Unmarshal(payload, &messages); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	for i := range messages {
		msg := &messages[i]
		if msg.DataKey != DataKeySleepStage {
			continue
		}
		if err := c.processSleepStage(context.Background(), msg); err != nil {
			c.logger.Error("Failed to process sleep stage message",
				zap.String("device_code", msg.DeviceId),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}
	}
	return nil
}

// processSleepStage 处理单条 sleepStage 消息
func (c *MQTTConsumer) processSleepStage(ctx context.Context, msg *ReceivedMessage) error {
	var stage SleepStageData
	if err := json.Unmarshal(msg.Data, &stage); err != nil {
		return fmt.Errorf("failed to unmarshal sleep stage data: %w", err)
	}

	ts := msg.TimeStamp
	if stage.TimeStamp > 0 {
		ts = stage.TimeStamp
	}
	if ts <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidDataFormat)
	}

	device, err := c.devices.GetDeviceByCode(ctx, msg.DeviceId)
	if err != nil {
		return err
	}
	sample := models.PhaseSample{
		Timestamp: UnixTimestamp(ts),
		Phase:     models.PhaseFromSleepaceStage(stage.SleepStage),
	}

	return ingestSample(ctx, c.ingester, device.TenantID, device.DeviceID, sample, c.logger)
}

// ingestSample 终态会话拒收样本属于正常情况，只记 debug
func ingestSample(ctx context.Context, ingester SampleIngester, tenantID, deviceID string, sample models.PhaseSample, logger *zap.Logger) error {
	err := ingester.Ingest(ctx, tenantID, deviceID, sample)
	if err == nil {
		return nil
	}
	if errors.Is(err, scheduler.ErrInvalidState) {
		logger.Debug("Sample ignored by finished session",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("failed to ingest sample: %w", err)
}
