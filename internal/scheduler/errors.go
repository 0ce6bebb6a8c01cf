package scheduler

import "errors"

var (
	// ErrInvalidSettings 设置无效（回看窗口为负、目标时刻无法解析为未来时刻）
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("invalid state")
	// ErrSchedulingFailure 外部触发服务无法安排截止触发，周期保持 Armed，可重试
	ErrSchedulingFailure = errors.New("scheduling failure")
)
