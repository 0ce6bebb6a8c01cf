package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-smartwake/internal/auth"
	"wisefido-smartwake/internal/metrics"
	"wisefido-smartwake/internal/models"
	"wisefido-smartwake/internal/monitor"
	"wisefido-smartwake/internal/repository"
	"wisefido-smartwake/internal/scheduler"

	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound 设备没有智能唤醒会话（需要先 Arm）
	ErrSessionNotFound = errors.New("smart wake session not found")
	// ErrSettingsNotFound 未传入设置且设备没有保存的 smart_wake 配置
	ErrSettingsNotFound = errors.New("smart wake settings not found")
)

// RecordStore 唤醒记录持久化（由 repository.AlarmRecordRepository 实现）
type RecordStore interface {
	CreateAlarmRecord(ctx context.Context, record *models.AlarmRecord) error
	ListAlarmRecords(ctx context.Context, tenantID, deviceID string, limit int) ([]*models.AlarmRecord, error)
}

// SettingsStore 设备闹钟设置（由 repository.WakeSettingsRepository 实现）
type SettingsStore interface {
	GetWakeSettings(ctx context.Context, tenantID, deviceID string) (*repository.WakeSettingsConfig, error)
}

// RecordPublisher 唤醒记录下发（由 store.RecordPublisher 实现）
type RecordPublisher interface {
	Publish(ctx context.Context, record models.AlarmRecord) error
}

// StatusCache 状态快照缓存（由 store.StatusCache 实现）
type StatusCache interface {
	Put(ctx context.Context, status scheduler.Status) error
}

// Options 服务参数
type Options struct {
	TenantID      string // 默认租户
	Defaults      repository.SettingsDefaults
	EmitCancelled bool
	SinkTimeout   time.Duration // 记录落库/发布超时，默认 5秒
}

// deviceSession 单个设备的监测器 + 调度器
type deviceSession struct {
	tenantID string
	deviceID string
	monitor  *monitor.PhaseMonitor
	sched    *scheduler.Scheduler
}

// SmartWakeService 智能唤醒服务：按设备管理调度器，串联授权、设置、记录输出
type SmartWakeService struct {
	opts    Options
	trigger scheduler.TriggerService
	gate    auth.Gate
	logger  *zap.Logger

	records   RecordStore
	settings  SettingsStore
	publisher RecordPublisher
	cache     StatusCache
	metrics   *metrics.Metrics
	now       func() time.Time

	// 会话在 Arm 时创建，Reset 成功后移除；Fired/Cancelled 的会话保留到 Reset
	mu       sync.Mutex
	sessions map[string]*deviceSession
}

// Option SmartWakeService 可选项
type Option func(*SmartWakeService)

// WithRecordStore 唤醒记录落库
func WithRecordStore(r RecordStore) Option {
	return func(s *SmartWakeService) { s.records = r }
}

// WithSettingsStore 从数据库读取设备闹钟设置
func WithSettingsStore(st SettingsStore) Option {
	return func(s *SmartWakeService) { s.settings = st }
}

// WithPublisher 唤醒记录发布到 Redis Stream
func WithPublisher(p RecordPublisher) Option {
	return func(s *SmartWakeService) { s.publisher = p }
}

// WithStatusCache 状态快照写入 Redis
func WithStatusCache(c StatusCache) Option {
	return func(s *SmartWakeService) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SmartWakeService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *SmartWakeService) { s.now = now }
}

// NewSmartWakeService 创建智能唤醒服务
func NewSmartWakeService(
	opts Options,
	trig scheduler.TriggerService,
	gate auth.Gate,
	logger *zap.Logger,
	options ...Option,
) *SmartWakeService {
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 5 * time.Second
	}
	if opts.Defaults.Location == nil {
		opts.Defaults.Location = time.Local
	}
	s := &SmartWakeService{
		opts:     opts,
		trigger:  trig,
		gate:     gate,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*deviceSession),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *SmartWakeService) tenant(tenantID string) string {
	if tenantID == "" {
		return s.opts.TenantID
	}
	return tenantID
}

func sessionKey(tenantID, deviceID string) string {
	return tenantID + ":" + deviceID
}

// session 获取设备会话，create 为 true 时不存在则创建
func (s *SmartWakeService) session(tenantID, deviceID string, create bool) *deviceSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked(tenantID, deviceID, create)
}

func (s *SmartWakeService) sessionLocked(tenantID, deviceID string, create bool) *deviceSession {
	key := sessionKey(tenantID, deviceID)
	if sess, ok := s.sessions[key]; ok || !create {
		return sess
	}

	logger := s.logger.With(zap.String("tenant_id", tenantID))
	mon := monitor.NewPhaseMonitor(logger.With(zap.String("device_id", deviceID)),
		monitor.WithClock(s.now),
		monitor.WithMetrics(s.metrics),
	)
	sess := &deviceSession{tenantID: tenantID, deviceID: deviceID, monitor: mon}
	sess.sched = scheduler.New(
		scheduler.Config{TenantID: tenantID, DeviceID: deviceID, EmitCancelled: s.opts.EmitCancelled},
		mon,
		s.trigger,
		func(record models.AlarmRecord) { s.onFired(sess, record) },
		logger,
		scheduler.WithClock(s.now),
		scheduler.WithMetrics(s.metrics),
	)
	s.sessions[key] = sess
	return sess
}

// Arm 设置闹钟；settings 为 nil 时读取设备保存的 smart_wake 配置
func (s *SmartWakeService) Arm(ctx context.Context, tenantID, deviceID string, settings *models.AlarmSettings) (scheduler.Status, error) {
	tenantID = s.tenant(tenantID)

	var resolved models.AlarmSettings
	if settings != nil {
		resolved = *settings
		if resolved.Location == nil {
			resolved.Location = s.opts.Defaults.Location
		}
	} else {
		loaded, err := s.loadSettings(ctx, tenantID, deviceID)
		if err != nil {
			return scheduler.Status{}, err
		}
		resolved = loaded
	}

	// 与 Reset 的移除互斥，避免 Arm 落到已移除的会话上
	s.mu.Lock()
	sess := s.sessionLocked(tenantID, deviceID, true)
	err := sess.sched.Arm(resolved)
	s.mu.Unlock()
	if err != nil {
		return scheduler.Status{}, err
	}
	return s.publishStatus(ctx, sess), nil
}

func (s *SmartWakeService) loadSettings(ctx context.Context, tenantID, deviceID string) (models.AlarmSettings, error) {
	if s.settings == nil {
		return models.AlarmSettings{}, ErrSettingsNotFound
	}
	cfg, err := s.settings.GetWakeSettings(ctx, tenantID, deviceID)
	if err != nil {
		return models.AlarmSettings{}, fmt.Errorf("failed to load wake settings: %w", err)
	}
	if cfg == nil {
		return models.AlarmSettings{}, fmt.Errorf("%w: device %s", ErrSettingsNotFound, deviceID)
	}
	settings, err := cfg.ToAlarmSettings(s.opts.Defaults)
	if err != nil {
		return models.AlarmSettings{}, fmt.Errorf("%w: %v", scheduler.ErrInvalidSettings, err)
	}
	return settings, nil
}

// Activate 授权通过后开始监测并安排截止触发
func (s *SmartWakeService) Activate(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error) {
	tenantID = s.tenant(tenantID)

	sess := s.session(tenantID, deviceID, false)
	if sess == nil {
		return scheduler.Status{}, fmt.Errorf("%w: device %s", ErrSessionNotFound, deviceID)
	}
	if err := s.gate.Authorize(ctx, tenantID, deviceID); err != nil {
		return scheduler.Status{}, err
	}
	if err := sess.sched.Activate(ctx); err != nil {
		return scheduler.Status{}, err
	}
	return s.publishStatus(ctx, sess), nil
}

// Cancel 取消当前周期
func (s *SmartWakeService) Cancel(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error) {
	sess := s.session(s.tenant(tenantID), deviceID, false)
	if sess == nil {
		return scheduler.Status{}, fmt.Errorf("%w: device %s", ErrSessionNotFound, deviceID)
	}
	sess.sched.Cancel()
	return s.publishStatus(ctx, sess), nil
}

// Reset 结束的周期回到 Idle 并移除设备会话，下次 Arm 重新创建
func (s *SmartWakeService) Reset(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error) {
	tenantID = s.tenant(tenantID)

	s.mu.Lock()
	sess := s.sessionLocked(tenantID, deviceID, false)
	if sess == nil {
		s.mu.Unlock()
		return scheduler.Status{}, fmt.Errorf("%w: device %s", ErrSessionNotFound, deviceID)
	}
	if err := sess.sched.Reset(); err != nil {
		s.mu.Unlock()
		return scheduler.Status{}, err
	}
	delete(s.sessions, sessionKey(tenantID, deviceID))
	s.mu.Unlock()

	return s.publishStatus(ctx, sess), nil
}

// Ingest 转发睡眠阶段样本；没有会话的设备直接忽略
func (s *SmartWakeService) Ingest(ctx context.Context, tenantID, deviceID string, sample models.PhaseSample) error {
	sess := s.session(s.tenant(tenantID), deviceID, false)
	if sess == nil {
		s.metrics.SampleInactive()
		s.logger.Debug("Sample for device without smart wake session",
			zap.String("device_id", deviceID),
			zap.String("phase", string(sample.Phase)),
		)
		return nil
	}
	return sess.sched.Ingest(sample)
}

// Status 设备状态快照
func (s *SmartWakeService) Status(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error) {
	sess := s.session(s.tenant(tenantID), deviceID, false)
	if sess == nil {
		return scheduler.Status{}, fmt.Errorf("%w: device %s", ErrSessionNotFound, deviceID)
	}
	return sess.sched.Status(), nil
}

// Records 设备最近的唤醒记录；未配置持久化时返回内存中的最近一条
func (s *SmartWakeService) Records(ctx context.Context, tenantID, deviceID string, limit int) ([]*models.AlarmRecord, error) {
	tenantID = s.tenant(tenantID)
	if s.records != nil {
		return s.records.ListAlarmRecords(ctx, tenantID, deviceID, limit)
	}

	sess := s.session(tenantID, deviceID, false)
	if sess == nil {
		return []*models.AlarmRecord{}, nil
	}
	if record, ok := sess.sched.LastRecord(); ok {
		return []*models.AlarmRecord{&record}, nil
	}
	return []*models.AlarmRecord{}, nil
}

// onFired 调度器输出记录后：落库、发布、刷新状态缓存
// 各环节失败只记录日志，不影响其他环节
func (s *SmartWakeService) onFired(sess *deviceSession, record models.AlarmRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SinkTimeout)
	defer cancel()

	if s.records != nil {
		if err := s.records.CreateAlarmRecord(ctx, &record); err != nil {
			s.logger.Error("Failed to persist smart wake record",
				zap.String("record_id", record.RecordID),
				zap.String("device_id", record.DeviceID),
				zap.Error(err),
			)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, record); err != nil {
			s.logger.Error("Failed to publish smart wake record",
				zap.String("record_id", record.RecordID),
				zap.Error(err),
			)
		}
	}
	s.publishStatus(ctx, sess)

	s.logger.Info("Smart wake record emitted",
		zap.String("record_id", record.RecordID),
		zap.String("device_id", record.DeviceID),
		zap.Bool("fired_early", record.FiredEarly),
		zap.Bool("cancelled", record.Cancelled),
		zap.Int("score", record.Score),
	)
}

// publishStatus 刷新状态缓存并返回当前快照
func (s *SmartWakeService) publishStatus(ctx context.Context, sess *deviceSession) scheduler.Status {
	status := sess.sched.Status()
	if s.cache != nil {
		if err := s.cache.Put(ctx, status); err != nil {
			s.logger.Warn("Failed to update status cache",
				zap.String("device_id", sess.deviceID),
				zap.Error(err),
			)
		}
	}
	return status
}

// Shutdown 取消所有进行中的周期
func (s *SmartWakeService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*deviceSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.sched.Cancel()
	}
	s.logger.Info("Smart wake service stopped", zap.Int("sessions", len(sessions)))
}
