package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-smartwake/internal/models"
)

// Sleepace 数据类型
const (
	DataKeySleepStage = "sleepStage"
	TopicSleepStage   = "sleepace/sleepStage"
)

// ErrInvalidDataFormat 数据格式错误
var ErrInvalidDataFormat = errors.New("invalid data format")

// ReceivedMessage Sleepace MQTT 消息结构（v1.0 格式）
type ReceivedMessage struct {
	DeviceId  string          `json:"deviceId"`  // 设备代码（device_code）
	DataKey   string          `json:"dataKey"`   // realtime, connectionStatus, sleepStage, alarmNotify 等
	TimeStamp int64           `json:"timestamp"` // 时间戳
	Data      json.RawMessage `json:"data"`
}

// SleepStageData 睡眠阶段数据
type SleepStageData struct {
	DeviceId   string `json:"deviceId"`
	TimeStamp  int64  `json:"timestamp"`
	LeftRight  int    `json:"leftRight"`
	SleepStage int    `json:"sleepStage"` // 0=清醒, 1=浅睡眠, 2=深睡眠, 3=REM睡眠
}

// StageStreamData Redis Stream 中的标准化睡眠阶段数据（data 字段）
type StageStreamData struct {
	DeviceID   string `json:"device_id"`
	TenantID   string `json:"tenant_id"`
	DeviceType string `json:"device_type"`
	RawData    struct {
		SleepStage *int   `json:"sleepStage"`
		SnomedCode string `json:"snomed_code,omitempty"`
		LeftRight  int    `json:"leftRight"`
	} `json:"raw_data"`
	Timestamp int64  `json:"timestamp"`
	Topic     string `json:"topic"`
}

// ParseStageStreamData 从 Redis Streams 消息解析 data 字段
func ParseStageStreamData(values map[string]interface{}) (*StageStreamData, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, ErrInvalidDataFormat
	}

	var data StageStreamData
	if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataFormat, err)
	}
	return &data, nil
}

// Sample 转换为 PhaseSample；sleepStage 优先，其次 SNOMED 编码
func (d *StageStreamData) Sample() (models.PhaseSample, error) {
	if d.Timestamp <= 0 {
		return models.PhaseSample{}, fmt.Errorf("%w: missing timestamp", ErrInvalidDataFormat)
	}

	phase := models.PhaseUnknown
	switch {
	case d.RawData.SleepStage != nil:
		phase = models.PhaseFromSleepaceStage(*d.RawData.SleepStage)
	case d.RawData.SnomedCode != "":
		phase = models.PhaseFromSNOMED(d.RawData.SnomedCode)
	default:
		return models.PhaseSample{}, fmt.Errorf("%w: missing sleepStage", ErrInvalidDataFormat)
	}

	return models.PhaseSample{Timestamp: UnixTimestamp(d.Timestamp), Phase: phase}, nil
}

// UnixTimestamp 兼容秒和毫秒两种时间戳
func UnixTimestamp(ts int64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}
