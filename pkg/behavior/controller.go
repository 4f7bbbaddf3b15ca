// Package behavior 实现吉祥物的睡眠 / 唤醒状态机
//
// 状态流转：
//
//	Asleep --交互--> Waking --唤醒动画结束--> Awake
//	Awake/Waking --空闲超时--> FallingAsleep --入睡动画结束--> Asleep
//	FallingAsleep --交互--> Waking
//
// 每次进入过渡状态都会递增 epoch，过期的计时器回调和序列切换结果
// 通过比较 epoch 丢弃。
package behavior

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gonewx/gekmascot/internal/clock"
	"github.com/gonewx/gekmascot/pkg/config"
	"github.com/gonewx/gekmascot/pkg/player"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State 行为状态
type State int

const (
	Asleep State = iota
	Waking
	Awake
	FallingAsleep
)

func (s State) String() string {
	switch s {
	case Asleep:
		return "asleep"
	case Waking:
		return "waking"
	case Awake:
		return "awake"
	case FallingAsleep:
		return "falling-asleep"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Sequencer 控制器驱动的播放器，由 player.Player 实现
type Sequencer interface {
	SwitchTo(ctx context.Context, key string) error
	FrameCount(key string) (int, error)
	FPS() float64
}

// Keys 各状态对应的序列名
type Keys struct {
	Sleep           string
	Wake            string
	Idle            string
	SleepTransition string
}

// Option 控制器选项
type Option func(*Controller)

// WithClock 替换时间源
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithAsync 替换后台执行方式，默认每个任务一个 goroutine
func WithAsync(async func(func())) Option {
	return func(ctl *Controller) { ctl.async = async }
}

// WithStateListener 状态变化回调，在锁外调用
func WithStateListener(fn func(from, to State)) Option {
	return func(ctl *Controller) { ctl.onChange = fn }
}

// Controller 行为状态机
type Controller struct {
	mu              sync.Mutex
	state           State
	epoch           uint64
	idleGen         uint64
	idleTimer       clock.Timer
	transitionTimer clock.Timer
	started         bool
	disposed        bool
	// resync 稳定状态的序列没能显示，下一次交互时重试
	resync string

	seq         Sequencer
	keys        Keys
	idleTimeout time.Duration
	clock       clock.Clock
	async       func(func())
	onChange    func(from, to State)

	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// New 创建控制器，初始状态为 Asleep
func New(seq Sequencer, cfg config.BehaviorConfig, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		state: Asleep,
		seq:   seq,
		keys: Keys{
			Sleep:           cfg.Sequences.Sleep,
			Wake:            cfg.Sequences.Wake,
			Idle:            cfg.Sequences.Idle,
			SleepTransition: cfg.Sequences.SleepTransition,
		},
		idleTimeout: cfg.IdleTimeout.Std(),
		clock:       clock.Real(),
		async:       func(f func()) { go f() },
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.With().Str("component", "behavior").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Keys 返回序列名配置
func (c *Controller) Keys() Keys { return c.keys }

// Start 显示睡眠序列；之后交互才会生效
func (c *Controller) Start(ctx context.Context) error {
	if err := c.seq.SwitchTo(ctx, c.keys.Sleep); err != nil {
		return fmt.Errorf("start with %q: %w", c.keys.Sleep, err)
	}
	c.mu.Lock()
	c.started = true
	c.state = Asleep
	c.mu.Unlock()
	c.logger.Info().Str("sequence", c.keys.Sleep).Msg("behavior started")
	return nil
}

// State 当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Interact 处理一次用户交互：重置空闲计时，睡眠或入睡中时唤醒
func (c *Controller) Interact() {
	c.mu.Lock()
	if c.disposed || !c.started {
		c.mu.Unlock()
		return
	}
	c.resetIdleLocked()
	if c.state != Asleep && c.state != FallingAsleep {
		key, to, e := c.resync, c.state, c.epoch
		c.resync = ""
		c.mu.Unlock()
		if key != "" {
			c.logger.Info().Str("sequence", key).Msg("retrying sequence switch")
			c.async(func() { c.show(e, to, key) })
		}
		return
	}
	from, e := c.enterTransitionLocked(Waking)
	c.mu.Unlock()

	c.notify(from, Waking)
	c.async(func() { c.play(e, c.keys.Wake, Awake, c.keys.Idle) })
}

func (c *Controller) resetIdleLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleGen++
	g := c.idleGen
	c.idleTimer = c.clock.AfterFunc(c.idleTimeout, func() { c.onIdle(g) })
}

// onIdle 空闲超时，只在 Waking/Awake 时开始入睡
func (c *Controller) onIdle(g uint64) {
	c.mu.Lock()
	if g != c.idleGen || c.disposed || (c.state != Waking && c.state != Awake) {
		c.mu.Unlock()
		return
	}
	c.idleTimer = nil
	from, e := c.enterTransitionLocked(FallingAsleep)
	c.mu.Unlock()

	c.logger.Debug().Dur("timeout", c.idleTimeout).Msg("idle timeout")
	c.notify(from, FallingAsleep)
	c.async(func() { c.play(e, c.keys.SleepTransition, Asleep, c.keys.Sleep) })
}

func (c *Controller) enterTransitionLocked(to State) (State, uint64) {
	from := c.state
	c.state = to
	c.epoch++
	c.resync = ""
	if c.transitionTimer != nil {
		c.transitionTimer.Stop()
		c.transitionTimer = nil
	}
	return from, c.epoch
}

// play 播放过渡序列，时长结束后进入 next 状态并切换到 nextKey
// 过渡序列切换失败时直接进入 next 状态
func (c *Controller) play(e uint64, key string, next State, nextKey string) {
	err := c.seq.SwitchTo(c.ctx, key)
	d := c.duration(key)

	c.mu.Lock()
	if e != c.epoch || c.disposed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn().Err(err).Str("sequence", key).Str("fallback", nextKey).Msg("transition unavailable")
		c.settle(e, next, nextKey)
		return
	}
	c.transitionTimer = c.clock.AfterFunc(d, func() { c.settle(e, next, nextKey) })
	c.mu.Unlock()
}

func (c *Controller) settle(e uint64, to State, key string) {
	c.mu.Lock()
	if e != c.epoch || c.disposed {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = to
	c.transitionTimer = nil
	c.mu.Unlock()

	c.notify(from, to)
	c.async(func() { c.show(e, to, key) })
}

// show 切换到稳定状态的序列，失败时记下等待重试
func (c *Controller) show(e uint64, to State, key string) {
	err := c.seq.SwitchTo(c.ctx, key)
	if err == nil || errors.Is(err, player.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Error().Err(err).Str("sequence", key).Str("state", to.String()).Msg("switch failed")
	c.mu.Lock()
	if e == c.epoch && !c.disposed {
		c.resync = key
	}
	c.mu.Unlock()
}

// duration 序列播放一遍的时长
func (c *Controller) duration(key string) time.Duration {
	n, err := c.seq.FrameCount(key)
	fps := c.seq.FPS()
	if err != nil || fps <= 0 {
		return 0
	}
	return time.Duration(float64(n) / fps * float64(time.Second))
}

func (c *Controller) notify(from, to State) {
	if from == to {
		return
	}
	c.logger.Info().Str("from", from.String()).Str("to", to.String()).Msg("state changed")
	if c.onChange != nil {
		c.onChange(from, to)
	}
}

// Dispose 停止所有计时器，之后的交互和回调都被忽略
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.epoch++
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	if c.transitionTimer != nil {
		c.transitionTimer.Stop()
		c.transitionTimer = nil
	}
	c.cancel()
}
