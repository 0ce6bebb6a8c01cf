package consumer

import (
	"context"
	"fmt"
	"time"

	rediscommon "wisefido-smartwake/internal/common/redis"

	"go.uber.org/zap"
)

// StreamConfig Redis Streams 消费参数
type StreamConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int
	Block         time.Duration
}

// StreamConsumer 消费 sleepace:data:stream 中的睡眠阶段数据
type StreamConsumer struct {
	config      StreamConfig
	redisClient *rediscommon.Client
	ingester    SampleIngester
	logger      *zap.Logger
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg StreamConfig,
	redisClient *rediscommon.Client,
	ingester SampleIngester,
	logger *zap.Logger,
) *StreamConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		ingester:    ingester,
		logger:      logger,
	}
}

// Start 启动消费者，阻塞到 ctx 取消
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.config.Stream, c.config.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.config.Stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.config.Stream),
		zap.String("consumer_group", c.config.ConsumerGroup),
		zap.String("consumer_name", c.config.ConsumerName),
	)

	backoffDuration := time.Second // 初始退避时间
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.String("stream", c.config.Stream),
				zap.Duration("backoff", backoffDuration),
				zap.Error(err),
			)

			// 指数退避
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// ConsumeOnce 读取并处理一批消息，返回处理的消息数
// 无论处理成功与否都会 XACK，解析失败的消息不会被重复投递
func (c *StreamConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	messages, err := rediscommon.ReadFromStream(ctx, c.redisClient, c.config.Stream, rediscommon.ReadOptions{
		Group:    c.config.ConsumerGroup,
		Consumer: c.config.ConsumerName,
		Count:    int64(c.config.BatchSize),
		Block:    c.config.Block,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", c.config.Stream, err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream", c.config.Stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}
		ids = append(ids, msg.ID)
	}

	if err := rediscommon.Ack(ctx, c.redisClient, c.config.Stream, c.config.ConsumerGroup, ids...); err != nil {
		c.logger.Warn("Failed to ack messages", zap.Int("count", len(ids)), zap.Error(err))
	}
	return len(messages), nil
}

// processMessage 处理单条消息，非睡眠阶段主题直接跳过
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	data, err := ParseStageStreamData(msg.Values)
	if err != nil {
		return err
	}
	if data.Topic != TopicSleepStage {
		return nil
	}
	if data.DeviceID == "" {
		return fmt.Errorf("%w: missing device_id", ErrInvalidDataFormat)
	}

	sample, err := data.Sample()
	if err != nil {
		return err
	}

	return ingestSample(ctx, c.ingester, data.TenantID, data.DeviceID, sample, c.logger)
}
