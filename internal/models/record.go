package models

import "time"

// AlarmRecord 一次完成（或取消）的唤醒周期记录，创建后不可变
type AlarmRecord struct {
	RecordID       string     `json:"record_id" db:"record_id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	DeviceID       string     `json:"device_id" db:"device_id"`
	Bedtime        time.Time  `json:"bedtime" db:"bedtime"`
	TargetTime     time.Time  `json:"target_time" db:"target_time"`
	ActualFireTime *time.Time `json:"actual_fire_time,omitempty" db:"actual_fire_time"`
	Score          int        `json:"score" db:"score"`
	FiredEarly     bool       `json:"fired_early" db:"fired_early"`
	Cancelled      bool       `json:"cancelled" db:"cancelled"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
