package trigger

import (
	"container/heap"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxSleepCap 调度循环单次休眠上限
const DefaultMaxSleepCap = 60 * time.Second

// ErrStopped 服务 context 结束后 ScheduleAt 返回此错误
var ErrStopped = errors.New("trigger service stopped")

// Handle 一次已安排的截止触发
type Handle string

// FireFunc 到达截止时刻时调用一次，at 为安排的时刻而非实际投递时刻
type FireFunc func(h Handle, at time.Time)

type entry struct {
	handle Handle
	at     time.Time
	fn     FireFunc
}

// Service 单个后台 goroutine 维护所有截止触发
type Service struct {
	addChan    chan entry
	removeChan chan Handle
	ctx        context.Context
	maxSleep   time.Duration
	logger     *zap.Logger
}

// Option Service 可选项
type Option func(*Service)

// WithMaxSleepCap 覆盖 DefaultMaxSleepCap
func WithMaxSleepCap(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxSleep = d
		}
	}
}

// New 创建并启动 Service；ctx 取消后循环退出，未触发的条目被丢弃
func New(ctx context.Context, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		addChan:    make(chan entry, 64),
		removeChan: make(chan Handle, 64),
		ctx:        ctx,
		maxSleep:   DefaultMaxSleepCap,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// ScheduleAt 在 at 时刻调用一次 fn；已过去的时刻在下一轮循环触发
func (s *Service) ScheduleAt(ctx context.Context, at time.Time, fn FireFunc) (Handle, error) {
	if fn == nil {
		return "", errors.New("trigger callback is required")
	}
	e := entry{handle: Handle(uuid.New().String()), at: at, fn: fn}

	select {
	case <-s.ctx.Done():
		return "", ErrStopped
	default:
	}

	select {
	case s.addChan <- e:
		return e.handle, nil
	case <-s.ctx.Done():
		return "", ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel 移除未触发的条目，未知或已触发的 handle 忽略
func (s *Service) Cancel(h Handle) {
	if h == "" {
		return
	}
	select {
	case s.removeChan <- h:
	case <-s.ctx.Done():
	}
}

func (s *Service) run() {
	h := &deadlineHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := time.Until((*h)[0].at)
		if dur > s.maxSleep {
			dur = s.maxSleep
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			if h.Len() > 0 {
				s.logger.Warn("Trigger service stopped with pending deadlines", zap.Int("pending", h.Len()))
			}
			return

		case e := <-s.addChan:
			heapPush(h, e)
			timerCh = resetTimer()

		case handle := <-s.removeChan:
			if heapRemove(h, handle) {
				s.logger.Debug("Trigger cancelled", zap.String("handle", string(handle)))
			}
			timerCh = resetTimer()

		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].at.After(now) {
				e := heapPop(h)
				s.logger.Debug("Trigger fired",
					zap.String("handle", string(e.handle)),
					zap.Time("at", e.at),
				)
				// 回调不在调度循环内执行
				go e.fn(e.handle, e.at)
			}
			timerCh = resetTimer()
		}
	}
}
