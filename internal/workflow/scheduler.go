package workflow

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRefreshInterval 自动刷新默认间隔
const DefaultRefreshInterval = 30 * time.Second

// AutoRefreshScheduler 周期性拉取记录
// 挂起期间定时器被取消,恢复后重新计时
type AutoRefreshScheduler struct {
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	log       logrus.FieldLogger

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	suspended  int
	running    bool
	closed     bool
	inFlight   bool
}

// SchedulerOptions 调度参数
type SchedulerOptions struct {
	Interval time.Duration
	// Timeout 单次刷新的超时,默认与间隔相同
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// NewAutoRefreshScheduler 创建调度器,需调用 Start 开始计时
func NewAutoRefreshScheduler(refresher Refresher, opts SchedulerOptions) *AutoRefreshScheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &AutoRefreshScheduler{
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		log:       log,
	}
}

// Start 开始周期刷新
func (s *AutoRefreshScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.running {
		return
	}
	s.running = true
	s.armLocked()
}

// Stop 停止计时,不影响已发出的请求
func (s *AutoRefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.running = false
	s.disarmLocked()
}

// SetInterval 修改刷新间隔,正在计时的定时器按新间隔重新计时
func (s *AutoRefreshScheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	if s.running && !s.closed && s.suspended == 0 && s.timer != nil {
		s.armLocked()
	}
}

// Interval 当前刷新间隔
func (s *AutoRefreshScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Suspend 挂起(可嵌套),直到对应次数的 Resume
func (s *AutoRefreshScheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended++
	s.disarmLocked()
}

// Resume 解除一次挂起,全部解除后重新计时
func (s *AutoRefreshScheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspended == 0 {
		return
	}
	s.suspended--
	if s.suspended == 0 && s.running && !s.closed {
		s.armLocked()
	}
}

// Suspended 是否处于挂起状态
func (s *AutoRefreshScheduler) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended > 0
}

// Nudge 收到变更通知时立即刷新; 挂起期间忽略
func (s *AutoRefreshScheduler) Nudge() {
	s.mu.Lock()
	if s.closed || !s.running || s.suspended > 0 {
		s.mu.Unlock()
		return
	}
	s.disarmLocked()
	gen := s.generation
	s.mu.Unlock()

	go s.tick(gen)
}

// RefreshNow 手动刷新,不受挂起状态影响
func (s *AutoRefreshScheduler) RefreshNow(ctx context.Context) error {
	return s.refresher.Refresh(ctx)
}

// Accepting 刷新结果是否可以写入: 未关闭且未挂起
func (s *AutoRefreshScheduler) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.suspended == 0
}

func (s *AutoRefreshScheduler) armLocked() {
	s.disarmLocked()
	gen := s.generation
	s.timer = time.AfterFunc(s.interval, func() { s.tick(gen) })
}

func (s *AutoRefreshScheduler) disarmLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *AutoRefreshScheduler) tick(gen uint64) {
	s.mu.Lock()
	if s.closed || s.suspended > 0 || gen != s.generation || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inFlight = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.refresher.Refresh(ctx)
	cancel()
	if err != nil {
		s.log.WithError(err).Warn("Auto refresh failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.running && !s.closed && s.suspended == 0 && s.timer == nil {
		s.armLocked()
	}
}
