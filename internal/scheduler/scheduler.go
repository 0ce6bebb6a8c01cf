// Package scheduler 实现自适应唤醒窗口调度器
//
// 状态机：Idle → Armed → Monitoring → {Firing → Fired} | Cancelled
//
// 样本流与截止触发回调会竞争 Monitoring → Firing 的转换，所有转换都在同一把锁内
// 检查并设置状态，只有一方生效；onFired 回调和触发取消在释放锁之后执行。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wisefido-smartwake/internal/metrics"
	"wisefido-smartwake/internal/models"
	"wisefido-smartwake/internal/monitor"
	"wisefido-smartwake/internal/trigger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriggerService 外部截止触发服务（每个 handle 至多回调一次）
type TriggerService interface {
	ScheduleAt(ctx context.Context, at time.Time, fn trigger.FireFunc) (trigger.Handle, error)
	Cancel(h trigger.Handle)
}

// Config 调度器配置
type Config struct {
	TenantID string
	DeviceID string
	// EmitCancelled 取消时是否输出 ActualFireTime 为空的记录
	EmitCancelled bool
}

// Status 调度器状态快照
type Status struct {
	TenantID     string              `json:"tenant_id"`
	DeviceID     string              `json:"device_id"`
	State        State               `json:"state"`
	Window       *models.WakeWindow  `json:"window,omitempty"`
	SmartEnabled bool                `json:"smart_enabled"`
	CurrentPhase models.PhaseKind    `json:"current_phase"`
	Score        int                 `json:"score"`
	Bedtime      *time.Time          `json:"bedtime,omitempty"`
	LastRecord   *models.AlarmRecord `json:"last_record,omitempty"`
	Monitor      monitor.Stats       `json:"monitor"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Scheduler 唤醒窗口调度器，每个设备会话一个实例
type Scheduler struct {
	mu sync.Mutex

	state      State
	settings   models.AlarmSettings
	window     models.WakeWindow
	armedAt    time.Time
	bedtime    time.Time
	handle     trigger.Handle
	generation uint64
	lastRecord *models.AlarmRecord

	// activating Activate 正在锁外安排触发；deadlineDue 表示此期间截止回调已到达
	activating  bool
	deadlineDue bool

	config  Config
	monitor *monitor.PhaseMonitor
	trigger TriggerService
	onFired func(models.AlarmRecord)
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option Scheduler 可选项
type Option func(*Scheduler)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics 挂接 Prometheus 指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New 创建调度器
// onFired 在每个完成周期恰好调用一次（EmitCancelled 时取消也会调用）
func New(
	cfg Config,
	mon *monitor.PhaseMonitor,
	trig TriggerService,
	onFired func(models.AlarmRecord),
	logger *zap.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		state:   StateIdle,
		config:  cfg,
		monitor: mon,
		trigger: trig,
		onFired: onFired,
		now:     time.Now,
		logger:  logger.With(zap.String("device_id", cfg.DeviceID)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm Idle → Armed，计算唤醒窗口，不启动监测
func (s *Scheduler) Arm(settings models.AlarmSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("%w: arm requires Idle, current %s", ErrInvalidState, s.state)
	}

	now := s.now()
	target, err := ResolveTarget(settings, now)
	if err != nil {
		return err
	}
	window, err := ComputeWindow(target, settings.WindowLookback)
	if err != nil {
		return err
	}

	s.settings = settings
	s.window = window
	s.armedAt = now
	s.bedtime = time.Time{}
	s.generation++
	s.state = StateArmed

	s.logger.Info("Smart wake armed",
		zap.Time("earliest_fire", window.EarliestFire),
		zap.Time("hard_deadline", window.HardDeadline),
		zap.Bool("smart_enabled", settings.SmartEnabled),
	)
	return nil
}

// Activate Armed → Monitoring：安排截止触发并启动监测
// 触发安排在锁外进行，期间 Ingest/Cancel 不受阻塞；提交前重新检查周期是否仍为 Armed
// 触发安排失败时保持 Armed 并返回 ErrSchedulingFailure
func (s *Scheduler) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateArmed || s.activating {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: activate requires Armed, current %s", ErrInvalidState, state)
	}
	s.activating = true
	s.deadlineDue = false
	gen := s.generation
	deadline := s.window.HardDeadline
	s.mu.Unlock()

	handle, err := s.trigger.ScheduleAt(ctx, deadline, func(h trigger.Handle, at time.Time) {
		s.onDeadline(gen, h, at)
	})

	s.mu.Lock()
	s.activating = false

	if gen != s.generation || s.state != StateArmed {
		state := s.state
		s.mu.Unlock()
		if err == nil {
			s.trigger.Cancel(handle)
		}
		return fmt.Errorf("%w: cycle left Armed during activation, current %s", ErrInvalidState, state)
	}

	if err != nil {
		s.mu.Unlock()
		s.metrics.SchedulingFailed()
		s.logger.Error("Failed to schedule hard deadline",
			zap.Time("hard_deadline", deadline),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrSchedulingFailure, err)
	}

	s.monitor.StartMonitoring()
	s.handle = handle
	s.bedtime = s.now()
	s.state = StateMonitoring
	s.metrics.MonitoringStarted()

	s.logger.Info("Smart wake monitoring",
		zap.String("trigger_handle", string(handle)),
		zap.Time("bedtime", s.bedtime),
	)

	if !s.deadlineDue {
		s.mu.Unlock()
		return nil
	}

	// 截止回调先于提交到达
	record, _ := s.fireLocked(false, s.window.HardDeadline)
	s.mu.Unlock()
	s.emit(record)
	return nil
}

// Ingest 转发样本到监测器，并在 Monitoring 中评估提前唤醒条件
// 终态下返回 ErrInvalidState；被监测器丢弃的样本不视为错误
func (s *Scheduler) Ingest(sample models.PhaseSample) error {
	s.mu.Lock()

	if s.state.IsTerminal() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: ingest in %s", ErrInvalidState, state)
	}

	accepted := s.monitor.Ingest(sample)
	now := s.now()
	if !accepted || !s.shouldFireEarlyLocked(sample, now) {
		s.mu.Unlock()
		return nil
	}

	record, pending := s.fireLocked(true, now)
	s.mu.Unlock()

	s.trigger.Cancel(pending)
	s.emit(record)
	return nil
}

// shouldFireEarlyLocked 提前唤醒判定：Monitoring、智能模式、阶段适合唤醒，
// 当前时刻已进入窗口，且样本时间戳落在 [EarliestFire, now] 内
// 设备时钟超前或重放的旧消息都不会让闹钟在窗口打开前响起
func (s *Scheduler) shouldFireEarlyLocked(sample models.PhaseSample, now time.Time) bool {
	if s.state != StateMonitoring || !s.settings.SmartEnabled {
		return false
	}
	if !sample.Phase.IsWakeSuitable() {
		return false
	}
	if !s.window.Contains(now) {
		return false
	}
	return !sample.Timestamp.Before(s.window.EarliestFire) && !sample.Timestamp.After(now)
}

// onDeadline 截止触发回调；过期会话或已失效 handle 的回调直接丢弃
func (s *Scheduler) onDeadline(gen uint64, h trigger.Handle, at time.Time) {
	s.mu.Lock()

	if gen == s.generation && s.state == StateArmed && s.activating {
		s.deadlineDue = true
		s.mu.Unlock()
		return
	}

	if gen != s.generation || s.state != StateMonitoring || h != s.handle {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("Stale deadline callback discarded",
			zap.String("trigger_handle", string(h)),
			zap.String("state", string(state)),
		)
		return
	}

	record, _ := s.fireLocked(false, s.window.HardDeadline)
	s.mu.Unlock()

	s.emit(record)
}

// fireLocked Monitoring → Firing → Fired，at 为实际响铃时刻
// 返回待输出记录和需要取消的触发 handle
func (s *Scheduler) fireLocked(early bool, at time.Time) (models.AlarmRecord, trigger.Handle) {
	s.state = StateFiring

	pending := s.handle
	s.handle = ""

	s.monitor.StopMonitoringAt(at)
	fireTime := at
	record := models.AlarmRecord{
		RecordID:       uuid.New().String(),
		TenantID:       s.config.TenantID,
		DeviceID:       s.config.DeviceID,
		Bedtime:        s.bedtime,
		TargetTime:     s.window.HardDeadline,
		ActualFireTime: &fireTime,
		Score:          s.monitor.ScoreAt(at),
		FiredEarly:     early,
		CreatedAt:      s.now(),
	}

	s.state = StateFired
	s.lastRecord = &record
	s.metrics.MonitoringEnded()
	s.metrics.AlarmFired(early)

	s.logger.Info("Smart wake fired",
		zap.Bool("fired_early", early),
		zap.Time("actual_fire_time", at),
		zap.Int("score", record.Score),
	)
	return record, pending
}

// Cancel Armed/Monitoring → Cancelled；其他状态下为空操作
func (s *Scheduler) Cancel() {
	s.mu.Lock()

	var pending trigger.Handle
	switch s.state {
	case StateArmed:
	case StateMonitoring:
		pending = s.handle
		s.handle = ""
		s.monitor.StopMonitoring()
		s.metrics.MonitoringEnded()
	default:
		s.mu.Unlock()
		return
	}

	previous := s.state
	s.state = StateCancelled
	s.metrics.AlarmCancelled()

	var record *models.AlarmRecord
	if s.config.EmitCancelled {
		bedtime := s.bedtime
		if bedtime.IsZero() {
			bedtime = s.armedAt
		}
		record = &models.AlarmRecord{
			RecordID:   uuid.New().String(),
			TenantID:   s.config.TenantID,
			DeviceID:   s.config.DeviceID,
			Bedtime:    bedtime,
			TargetTime: s.window.HardDeadline,
			Score:      s.monitor.Score(),
			Cancelled:  true,
			CreatedAt:  s.now(),
		}
		s.lastRecord = record
	}
	s.mu.Unlock()

	s.logger.Info("Smart wake cancelled", zap.String("from_state", string(previous)))

	s.trigger.Cancel(pending)
	if record != nil {
		s.emit(*record)
	}
}

// Reset 终态（或 Idle）→ Idle；Armed/Monitoring 需先 Cancel
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateFired, StateCancelled:
	default:
		return fmt.Errorf("%w: reset requires Idle, Fired or Cancelled, current %s", ErrInvalidState, s.state)
	}

	s.state = StateIdle
	s.settings = models.AlarmSettings{}
	s.window = models.WakeWindow{}
	s.armedAt = time.Time{}
	s.bedtime = time.Time{}
	s.deadlineDue = false
	s.generation++
	return nil
}

func (s *Scheduler) emit(record models.AlarmRecord) {
	if s.onFired != nil {
		s.onFired(record)
	}
}

// State 当前状态
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Window 当前周期的唤醒窗口，Idle 时 ok 为 false
func (s *Scheduler) Window() (models.WakeWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window, s.state != StateIdle
}

// CurrentPhase 监测器当前阶段
func (s *Scheduler) CurrentPhase() models.PhaseKind {
	return s.monitor.CurrentPhase()
}

// Score 监测器当前评分
func (s *Scheduler) Score() int {
	return s.monitor.Score()
}

// LastRecord 最近一次输出的记录
func (s *Scheduler) LastRecord() (models.AlarmRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRecord == nil {
		return models.AlarmRecord{}, false
	}
	return *s.lastRecord, true
}

// Status 状态快照
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		TenantID:     s.config.TenantID,
		DeviceID:     s.config.DeviceID,
		State:        s.state,
		SmartEnabled: s.settings.SmartEnabled,
		CurrentPhase: s.monitor.CurrentPhase(),
		Score:        s.monitor.Score(),
		Monitor:      s.monitor.Stats(),
		UpdatedAt:    s.now(),
	}
	if s.state != StateIdle {
		w := s.window
		st.Window = &w
	}
	if !s.bedtime.IsZero() {
		b := s.bedtime
		st.Bedtime = &b
	}
	if s.lastRecord != nil {
		r := *s.lastRecord
		st.LastRecord = &r
	}
	return st
}
