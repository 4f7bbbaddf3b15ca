// Package player 播放 manifest 中的帧序列
//
// Player 持有当前播放会话（序列 + 播放头），在宿主每次渲染回调时
// 调用 Tick 推进；帧按阶段加载：首帧同步、预加载窗口、其余分批流式加载，
// 外加播放过程中的周期性前瞻加载。缺帧时自愈，长时间卡住时强制跳帧。
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gonewx/gekmascot/pkg/config"
	"github.com/gonewx/gekmascot/pkg/manifest"
	"github.com/gonewx/gekmascot/pkg/texture"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnknownSequence manifest 中没有该序列（配置错误，不重试）
	ErrUnknownSequence = errors.New("unknown sequence")
	// ErrFirstFrameUnavailable 新序列的首帧无法加载，原会话保持不变
	ErrFirstFrameUnavailable = errors.New("first frame unavailable")
	// ErrSuperseded 切换完成前已有更新的切换请求
	ErrSuperseded = errors.New("switch superseded")
	// ErrDisposed 播放器已释放
	ErrDisposed = errors.New("player disposed")
)

// Target 渲染目标；纹理无法显示（已释放）时 SetTexture 返回 false
type Target interface {
	SetTexture(tex *texture.Texture) bool
}

// FrameSource 帧加载能力，由 loader.FrameLoader 实现
type FrameSource interface {
	LoadFrame(ctx context.Context, url string) *texture.Texture
	Cached(url string) *texture.Texture
	Prefetch(ctx context.Context, urls []string, batchSize int, pause time.Duration) (ok, failed int)
	Dispose()
}

// Options 加载与自愈参数
type Options struct {
	PreloadFrames   int
	BatchSize       int
	BatchPause      time.Duration
	CheckpointEvery int
	Lookahead       int
	StallThreshold  time.Duration
}

// OptionsFromConfig 从配置转换
func OptionsFromConfig(c config.PlayerConfig) Options {
	return Options{
		PreloadFrames:   c.PreloadFrames,
		BatchSize:       c.BatchSize,
		BatchPause:      c.BatchPause.Std(),
		CheckpointEvery: c.CheckpointEvery,
		Lookahead:       c.Lookahead,
		StallThreshold:  c.StallThreshold.Std(),
	}
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultPlayerConfig())
}

// session 一次播放会话；切换序列时整体替换
type session struct {
	key    string
	frames []string
	index  int
	loop   bool

	// lastAdvance 为零表示下一次 Tick 只记录参考时间
	lastAdvance  time.Time
	lastProgress time.Time
}

// Status 播放状态快照
type Status struct {
	Key     string
	Index   int
	Frames  int
	Loop    bool
	Playing bool
}

// Player 帧序列播放器
type Player struct {
	mu       sync.Mutex
	current  *session
	playing  bool
	healing  bool
	disposed bool

	manifest      *manifest.Manifest
	frames        FrameSource
	target        Target
	opts          Options
	frameInterval time.Duration

	// requests 每次 SwitchTo 递增；只有最新的请求可以安装会话
	requests atomic.Uint64

	// wait 批次之间的让出；ctx 结束时返回 false
	wait func(ctx context.Context, d time.Duration) bool

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	logger zerolog.Logger
}

// New 创建播放器
func New(m *manifest.Manifest, frames FrameSource, target Target, opts Options) *Player {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		manifest:      m,
		frames:        frames,
		target:        target,
		opts:          opts,
		frameInterval: time.Duration(float64(time.Second) / m.FPS),
		wait:          sleep,
		ctx:           ctx,
		cancel:        cancel,
		logger:        log.With().Str("component", "player").Logger(),
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// FPS 帧率
func (p *Player) FPS() float64 { return p.manifest.FPS }

// FrameInterval 每帧的时长
func (p *Player) FrameInterval() time.Duration { return p.frameInterval }

// FrameCount 返回序列帧数
func (p *Player) FrameCount(key string) (int, error) {
	spec, ok := p.manifest.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSequence, key)
	}
	return spec.FrameCount(), nil
}

// SequenceKeys manifest 中全部序列名
func (p *Player) SequenceKeys() []string { return p.manifest.Keys() }

// SwitchTo 切换到序列 key 并开始播放
//
// 返回前新序列的首帧已经加载并显示，画面不会出现空白；
// 其余帧在后台按加载策略继续加载。
func (p *Player) SwitchTo(ctx context.Context, key string) error {
	spec, ok := p.manifest.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSequence, key)
	}
	urls := spec.FrameURLs()
	req := p.requests.Add(1)

	tex := p.frames.LoadFrame(ctx, urls[0])
	if tex == nil {
		return fmt.Errorf("%w: %s (%s)", ErrFirstFrameUnavailable, key, urls[0])
	}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	if req != p.requests.Load() {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSuperseded, key)
	}
	if !p.target.SetTexture(tex) {
		// 加载完成到显示之间被淘汰释放
		p.mu.Unlock()
		return fmt.Errorf("%w: %s frame 0 released before display", ErrFirstFrameUnavailable, key)
	}
	s := &session{
		key:    key,
		frames: urls,
		loop:   spec.Loop,
	}
	p.current = s
	p.playing = true
	p.mu.Unlock()

	p.logger.Info().Str("sequence", key).Int("frames", len(urls)).Bool("loop", spec.Loop).Msg("switched sequence")
	p.stream(s, spec)
	return nil
}

// stream 在后台加载首帧之后的帧
//
// 每次 Prefetch 最多 batch 帧；会话被替换后在下一个批次边界停止。
func (p *Player) stream(s *session, spec *manifest.SequenceSpec) {
	rest := s.frames[1:]
	if len(rest) == 0 {
		return
	}

	preload := p.opts.PreloadFrames
	if spec.PreloadFrames != nil {
		preload = *spec.PreloadFrames
	}
	batch := p.opts.BatchSize
	if spec.BatchSize != nil {
		batch = *spec.BatchSize
	}
	pause := p.opts.BatchPause
	strategy := spec.Strategy()
	if strategy == manifest.StrategyEager {
		pause = 0
	}

	window := rest[:min(preload, len(rest))]
	remaining := rest[len(window):]

	p.bg.Add(1)
	go func() {
		defer p.bg.Done()

		if !p.batches(s, window, batch, 0) {
			return
		}
		if len(window) > 0 {
			p.logger.Debug().Str("sequence", s.key).Int("frames", len(window)).Msg("preload window loaded")
		}
		if strategy == manifest.StrategyOnDemand {
			return
		}
		if p.batches(s, remaining, batch, pause) {
			p.logger.Debug().Str("sequence", s.key).Msg("background streaming finished")
		}
	}()
}

// batches 按 batch 分组加载 urls，每组之前等待 pause；
// 播放器释放或会话被替换时返回 false
func (p *Player) batches(s *session, urls []string, batch int, pause time.Duration) bool {
	for start := 0; start < len(urls); start += batch {
		if p.ctx.Err() != nil || p.superseded(s) {
			return false
		}
		if pause > 0 && !p.wait(p.ctx, pause) {
			return false
		}
		end := min(start+batch, len(urls))
		ok, failed := p.frames.Prefetch(p.ctx, urls[start:end], batch, 0)
		if failed > 0 {
			p.logger.Debug().Str("sequence", s.key).Int("ok", ok).Int("failed", failed).Msg("batch incomplete")
		}
	}
	return true
}

func (p *Player) superseded(s *session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != s
}

// Play 继续推进；下一次 Tick 重新记录参考时间
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.disposed {
		return
	}
	p.playing = true
	p.current.lastAdvance = time.Time{}
}

// Pause 暂停推进，保留会话和缓存
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// Tick 每次宿主渲染回调调用一次
//
// 距上次推进达到一帧时长时推进一帧，并把参考时间重置为 now。
// 不累积错过的时间：负载高时丢帧，而不是连续快进。
func (p *Player) Tick(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.current
	if s == nil || !p.playing || p.disposed {
		return
	}
	if s.lastAdvance.IsZero() {
		s.lastAdvance = now
		s.lastProgress = now
		return
	}
	if now.Sub(s.lastAdvance) < p.frameInterval {
		return
	}

	next := s.index + 1
	if next >= len(s.frames) {
		if !s.loop {
			p.playing = false
			p.logger.Debug().Str("sequence", s.key).Msg("sequence finished")
			return
		}
		next = 0
	}

	if tex := p.frames.Cached(s.frames[next]); tex != nil && p.target.SetTexture(tex) {
		s.index = next
		s.lastAdvance = now
		s.lastProgress = now
		p.checkpointLocked(s)
		return
	}

	if now.Sub(s.lastProgress) >= p.opts.StallThreshold {
		// 保证活性：跳过缺失的帧，画面保留最后一帧
		p.logger.Warn().
			Str("sequence", s.key).
			Int("frame", next).
			Dur("stalled", now.Sub(s.lastProgress)).
			Msg("playback stalled, forcing advance")
		s.index = next
		s.lastAdvance = now
		s.lastProgress = now
		p.checkpointLocked(s)
		return
	}

	p.healLocked(s.frames[next])
}

// healLocked 为缺失的帧发起加载，同一时间最多一个
// 加载完成后由下一次 Tick 显示
func (p *Player) healLocked(url string) {
	if p.healing {
		return
	}
	p.healing = true
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		tex := p.frames.LoadFrame(p.ctx, url)
		p.mu.Lock()
		p.healing = false
		p.mu.Unlock()
		if tex == nil {
			p.logger.Debug().Str("url", url).Msg("heal load failed, will retry")
		}
	}()
}

// checkpointLocked 播放头经过检查点时重新请求前方几帧，
// 补回被淘汰但即将用到的帧（循环序列回绕时尤其需要）
func (p *Player) checkpointLocked(s *session) {
	if p.opts.Lookahead <= 0 || s.index%p.opts.CheckpointEvery != 0 {
		return
	}
	var missing []string
	for i := 1; i <= p.opts.Lookahead; i++ {
		j := s.index + i
		if j >= len(s.frames) {
			if !s.loop {
				break
			}
			j %= len(s.frames)
		}
		url := s.frames[j]
		if p.frames.Cached(url) == nil {
			missing = append(missing, url)
		}
	}
	if len(missing) == 0 {
		return
	}
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		p.frames.Prefetch(p.ctx, missing, min(len(missing), p.opts.BatchSize), 0)
	}()
}

// Status 返回一致的状态快照
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Status{Playing: p.playing}
	}
	return Status{
		Key:     p.current.key,
		Index:   p.current.index,
		Frames:  len(p.current.frames),
		Loop:    p.current.loop,
		Playing: p.playing,
	}
}

// Key 当前序列名
func (p *Player) Key() string { return p.Status().Key }

// Index 当前播放头
func (p *Player) Index() int { return p.Status().Index }

// Playing 是否正在推进
func (p *Player) Playing() bool { return p.Status().Playing }

// Wait 阻塞到所有后台加载结束；调用期间不应再 Tick 或 SwitchTo
func (p *Player) Wait() {
	p.bg.Wait()
}

// Dispose 停止后台加载并释放缓存
func (p *Player) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.playing = false
	p.current = nil
	p.mu.Unlock()

	p.cancel()
	p.frames.Dispose()
}
