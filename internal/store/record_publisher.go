package store

import (
	"context"
	"fmt"

	"wisefido-smartwake/internal/common/redis"
	"wisefido-smartwake/internal/models"

	"go.uber.org/zap"
)

// RecordPublisher 把唤醒记录发布到 Redis Stream，供通知/报表服务消费
type RecordPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRecordPublisher 创建记录发布器
func NewRecordPublisher(client *redis.Client, stream string, logger *zap.Logger) *RecordPublisher {
	return &RecordPublisher{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Publish 发布一条唤醒记录
func (p *RecordPublisher) Publish(ctx context.Context, record models.AlarmRecord) error {
	id, err := redis.PublishJSONToStream(ctx, p.client, p.stream, record)
	if err != nil {
		return fmt.Errorf("failed to publish smart wake record: %w", err)
	}

	p.logger.Debug("Published smart wake record",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("record_id", record.RecordID),
	)
	return nil
}
