package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 智能唤醒服务的 Prometheus 指标，nil 接收者上的方法均为空操作
type Metrics struct {
	samplesTotal       *prometheus.CounterVec
	alarmsFiredTotal   *prometheus.CounterVec
	alarmsCancelled    prometheus.Counter
	schedulingFailures prometheus.Counter
	activeSessions     prometheus.Gauge
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartwake_phase_samples_total",
			Help: "Phase samples offered to monitors by result (accepted, out_of_order, inactive).",
		}, []string{"result"}),
		alarmsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartwake_alarms_fired_total",
			Help: "Alarms fired by cause (early, deadline).",
		}, []string{"cause"}),
		alarmsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartwake_alarms_cancelled_total",
			Help: "Alarm cycles cancelled before firing.",
		}),
		schedulingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartwake_scheduling_failures_total",
			Help: "Hard-deadline triggers that could not be scheduled.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartwake_monitoring_sessions",
			Help: "Schedulers currently in the Monitoring state.",
		}),
	}

	reg.MustRegister(
		m.samplesTotal,
		m.alarmsFiredTotal,
		m.alarmsCancelled,
		m.schedulingFailures,
		m.activeSessions,
	)
	return m
}

// SampleAccepted 样本被接收
func (m *Metrics) SampleAccepted() {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues("accepted").Inc()
}

// SampleOutOfOrder 乱序样本被丢弃
func (m *Metrics) SampleOutOfOrder() {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues("out_of_order").Inc()
}

// SampleInactive 未监测时到达的样本
func (m *Metrics) SampleInactive() {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues("inactive").Inc()
}

// AlarmFired 记录一次触发
func (m *Metrics) AlarmFired(early bool) {
	if m == nil {
		return
	}
	cause := "deadline"
	if early {
		cause = "early"
	}
	m.alarmsFiredTotal.WithLabelValues(cause).Inc()
}

func (m *Metrics) AlarmCancelled() {
	if m == nil {
		return
	}
	m.alarmsCancelled.Inc()
}

func (m *Metrics) SchedulingFailed() {
	if m == nil {
		return
	}
	m.schedulingFailures.Inc()
}

// MonitoringStarted / MonitoringEnded 维护监测中会话数
func (m *Metrics) MonitoringStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) MonitoringEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
