// Package monitor 维护一次监测会话内的睡眠阶段历史
package monitor

import (
	"sync"
	"time"

	"wisefido-smartwake/internal/metrics"
	"wisefido-smartwake/internal/models"
	"wisefido-smartwake/internal/scoring"

	"go.uber.org/zap"
)

// Stats 诊断计数
type Stats struct {
	Active        bool       `json:"active"`
	Accepted      int64      `json:"accepted"`
	OutOfOrder    int64      `json:"out_of_order"`
	Inactive      int64      `json:"inactive"`
	SessionStart  time.Time  `json:"session_start"`
	SessionEnd    *time.Time `json:"session_end,omitempty"` // 监测中为 nil
	HistoryLength int        `json:"history_length"`
}

// PhaseMonitor 睡眠阶段监测器
// 历史只能通过 Ingest 追加，对外只暴露副本
type PhaseMonitor struct {
	mu      sync.Mutex
	active  bool
	history []models.PhaseSample
	current models.PhaseKind

	sessionStart time.Time
	sessionEnd   time.Time

	accepted   int64
	outOfOrder int64
	inactive   int64

	calc    *scoring.Calculator
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option PhaseMonitor 可选项
type Option func(*PhaseMonitor)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *PhaseMonitor) { m.now = now }
}

// WithCalculator 替换评分计算器
func WithCalculator(calc *scoring.Calculator) Option {
	return func(m *PhaseMonitor) { m.calc = calc }
}

// WithMetrics 挂接 Prometheus 指标
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *PhaseMonitor) { m.metrics = mt }
}

// NewPhaseMonitor 创建监测器
func NewPhaseMonitor(logger *zap.Logger, opts ...Option) *PhaseMonitor {
	m := &PhaseMonitor{
		current: models.PhaseUnknown,
		calc:    scoring.NewCalculator(scoring.DefaultWeights),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartMonitoring 清空历史并开始接收样本，已在监测中时为空操作
func (m *PhaseMonitor) StartMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return
	}
	m.active = true
	m.history = nil
	m.current = models.PhaseUnknown
	m.sessionStart = m.now()
	m.sessionEnd = time.Time{}
	m.accepted, m.outOfOrder, m.inactive = 0, 0, 0

	m.logger.Debug("Phase monitoring started", zap.Time("session_start", m.sessionStart))
}

// StopMonitoring 停止接收样本，历史保留
func (m *PhaseMonitor) StopMonitoring() {
	m.stop(m.now())
}

// StopMonitoringAt 以指定时刻结束会话（评分尾部计到该时刻）
func (m *PhaseMonitor) StopMonitoringAt(end time.Time) {
	m.stop(end)
}

func (m *PhaseMonitor) stop(end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.active = false
	m.sessionEnd = end

	m.logger.Debug("Phase monitoring stopped",
		zap.Time("session_end", end),
		zap.Int("history_length", len(m.history)),
		zap.Int64("out_of_order", m.outOfOrder),
	)
}

// Ingest 追加一条样本，返回是否被接收
// 未监测、时间戳早于会话开始或早于上一条已接收样本时丢弃（记录日志并计数，不作为错误返回）
func (m *PhaseMonitor) Ingest(sample models.PhaseSample) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		m.inactive++
		m.metrics.SampleInactive()
		m.logger.Debug("Phase sample dropped: monitor inactive",
			zap.Time("timestamp", sample.Timestamp),
			zap.String("phase", string(sample.Phase)),
		)
		return false
	}

	if sample.Timestamp.Before(m.sessionStart) {
		m.outOfOrder++
		m.metrics.SampleOutOfOrder()
		m.logger.Debug("Phase sample dropped: before session start",
			zap.Time("timestamp", sample.Timestamp),
			zap.Time("session_start", m.sessionStart),
		)
		return false
	}

	if n := len(m.history); n > 0 && sample.Timestamp.Before(m.history[n-1].Timestamp) {
		m.outOfOrder++
		m.metrics.SampleOutOfOrder()
		m.logger.Debug("Phase sample dropped: out of order",
			zap.Time("timestamp", sample.Timestamp),
			zap.Time("last_timestamp", m.history[n-1].Timestamp),
		)
		return false
	}

	if !sample.Phase.Valid() {
		sample.Phase = models.PhaseUnknown
	}
	m.history = append(m.history, sample)
	m.current = sample.Phase
	m.accepted++
	m.metrics.SampleAccepted()
	return true
}

// CurrentPhase 本次会话最新阶段，无样本时为 Unknown
func (m *PhaseMonitor) CurrentPhase() models.PhaseKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Score 当前历史的睡眠评分
// 监测中末条样本计到当前时刻，已停止时计到会话结束
func (m *PhaseMonitor) Score() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.sessionEnd
	if m.active {
		end = m.now()
	}
	return m.calc.ComputeUntil(m.history, end)
}

// ScoreAt 末条样本计到 end 的评分
func (m *PhaseMonitor) ScoreAt(end time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calc.ComputeUntil(m.history, end)
}

// History 返回历史副本
func (m *PhaseMonitor) History() []models.PhaseSample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.PhaseSample, len(m.history))
	copy(out, m.history)
	return out
}

// Clear 清空已停止会话的历史，监测中调用无效
func (m *PhaseMonitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return
	}
	m.history = nil
	m.current = models.PhaseUnknown
}

// IsActive 是否在监测中
func (m *PhaseMonitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Stats 返回诊断计数快照
func (m *PhaseMonitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		Active:        m.active,
		Accepted:      m.accepted,
		OutOfOrder:    m.outOfOrder,
		Inactive:      m.inactive,
		SessionStart:  m.sessionStart,
		HistoryLength: len(m.history),
	}
	if !m.active && !m.sessionEnd.IsZero() {
		end := m.sessionEnd
		stats.SessionEnd = &end
	}
	return stats
}
