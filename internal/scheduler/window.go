package scheduler

import (
	"fmt"
	"strings"
	"time"

	"wisefido-smartwake/internal/models"

	"github.com/adhocore/gronx"
)

// ResolveTarget 返回严格晚于 now 的下一次目标时刻（考虑时区和星期限制）
func ResolveTarget(settings models.AlarmSettings, now time.Time) (time.Time, error) {
	if !settings.TargetTime.Valid() {
		return time.Time{}, fmt.Errorf("%w: target time %s out of range", ErrInvalidSettings, settings.TargetTime)
	}

	loc := settings.Location
	if loc == nil {
		loc = time.Local
	}
	weekdays := strings.TrimSpace(settings.Weekdays)
	if weekdays == "" {
		weekdays = "*"
	}

	expr := fmt.Sprintf("%d %d * * %s", settings.TargetTime.Minute, settings.TargetTime.Hour, weekdays)
	if !gronx.New().IsValid(expr) {
		return time.Time{}, fmt.Errorf("%w: invalid weekdays %q", ErrInvalidSettings, settings.Weekdays)
	}

	next, err := gronx.NextTickAfter(expr, now.In(loc), false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot resolve target %s: %v", ErrInvalidSettings, settings.TargetTime, err)
	}
	next = next.Truncate(time.Minute)
	if !next.After(now) {
		return time.Time{}, fmt.Errorf("%w: target %s is not in the future", ErrInvalidSettings, next.Format(time.RFC3339))
	}
	return next, nil
}

// ComputeWindow HardDeadline = target，EarliestFire = target - lookback
func ComputeWindow(target time.Time, lookback time.Duration) (models.WakeWindow, error) {
	if lookback < 0 {
		return models.WakeWindow{}, fmt.Errorf("%w: window lookback must be >= 0, got %s", ErrInvalidSettings, lookback)
	}
	return models.WakeWindow{
		EarliestFire: target.Add(-lookback),
		HardDeadline: target,
	}, nil
}
