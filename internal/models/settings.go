package models

import (
	"fmt"
	"time"
)

// TimeOfDay 一天中的时刻（精确到分钟）
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay 解析 "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Valid 小时 0-23，分钟 0-59
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText 以 "HH:MM" 编码
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText 从 "HH:MM" 解码
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AlarmSettings 智能唤醒设置（调用方持有，调度器只读）
type AlarmSettings struct {
	TargetTime     TimeOfDay
	WindowLookback time.Duration
	SmartEnabled   bool

	// Weekdays cron 星期字段（如 "1-5"），为空表示每天
	Weekdays string
	// Location 目标时刻所在时区，nil 表示 time.Local
	Location *time.Location
}

// WakeWindow 唤醒窗口：[EarliestFire, HardDeadline]
type WakeWindow struct {
	EarliestFire time.Time `json:"earliest_fire"`
	HardDeadline time.Time `json:"hard_deadline"`
}

// Contains t 是否落在可提前唤醒的区间 [EarliestFire, HardDeadline)
func (w WakeWindow) Contains(t time.Time) bool {
	return !t.Before(w.EarliestFire) && t.Before(w.HardDeadline)
}
