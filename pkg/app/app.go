// Package app 提供吉祥物应用的核心包装器
//
// 该包把初始化逻辑从 main 包提取出来，使其可以被桌面端和移动端共用。
// 桌面端通过 main.go 调用 NewApp()，移动端通过 mobile/mobile.go 调用。
package app

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/gonewx/gekmascot/pkg/behavior"
	"github.com/gonewx/gekmascot/pkg/config"
	"github.com/gonewx/gekmascot/pkg/embedded"
	"github.com/gonewx/gekmascot/pkg/interaction"
	"github.com/gonewx/gekmascot/pkg/loader"
	"github.com/gonewx/gekmascot/pkg/manifest"
	"github.com/gonewx/gekmascot/pkg/player"
	"github.com/gonewx/gekmascot/pkg/render"
	"github.com/gonewx/gekmascot/pkg/resource"
	"github.com/gonewx/gekmascot/pkg/texture"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AppName gdata 存储使用的应用名
const AppName = "gekmascot"

// DefaultConfigPath 内置默认配置
const DefaultConfigPath = "data/config.yaml"

// Options 定义应用启动参数
type Options struct {
	// Config 为 nil 时使用内置的 data/config.yaml
	Config *config.Config
	// ShowStatus 显示播放状态叠加层（F3 切换）
	ShowStatus bool
	// Fetcher 为 nil 时按配置创建 resource.Router
	Fetcher resource.Fetcher
}

// layer 一个渲染平面及驱动它的播放器
type layer struct {
	cfg    config.PlaneConfig
	plane  *render.Plane
	player *player.Player
}

// App 实现 ebiten.Game 接口
type App struct {
	cfg        *config.Config
	camera     render.Camera
	background *layer
	mascot     *layer
	controller *behavior.Controller
	poller     *interaction.Poller
	feed       *interaction.Feed

	manifestSource string
	screenW        int
	screenH        int
	showStatus     bool

	pendingWindowSizeReset   bool // 延迟设置窗口大小标志
	windowSizeResetCountdown int  // 延迟帧数

	logger zerolog.Logger
}

// LoadConfig 读取配置文件；path 为空时使用内置默认配置
func LoadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	data, err := embedded.ReadFile(DefaultConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read built-in config: %w", err)
	}
	return config.Parse(data)
}

// NewApp 创建并初始化应用
//
// 调用此函数前，必须先调用 embedded.Init() 初始化嵌入资源。
// 返回前睡眠序列的首帧已经显示。
func NewApp(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = LoadConfig(""); err != nil {
			return nil, err
		}
	}

	a := &App{
		cfg: cfg,
		camera: render.Camera{
			FOV:    cfg.Camera.FOV,
			Aspect: float64(cfg.Window.Width) / float64(cfg.Window.Height),
			Z:      cfg.Camera.Z,
		},
		showStatus: opts.ShowStatus,
		logger:     log.With().Str("component", "app").Logger(),
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = resource.NewRouter(cfg.HTTPTimeout.Std(), cfg.Manifest.BaseURL)
	}

	m, err := a.loadManifest(fetcher)
	if err != nil {
		return nil, err
	}

	decoder := texture.ImageDecoder{MaxSize: cfg.Player.MaxTextureSize}
	newLayer := func(pc config.PlaneConfig) *layer {
		plane := render.NewPlane(pc.Width, pc.Height, render.Vec3{X: pc.X, Y: pc.Y, Z: pc.Z})
		frames := loader.New(fetcher, decoder, cfg.Player.CacheCapacity, cfg.Player.LoadTimeout.Std())
		return &layer{
			cfg:    pc,
			plane:  plane,
			player: player.New(m, frames, plane, player.OptionsFromConfig(cfg.Player)),
		}
	}

	ctx := context.Background()

	if bg := cfg.Background; bg != nil && bg.Sequence != "" {
		if _, ok := m.Lookup(bg.Sequence); ok {
			a.background = newLayer(*bg)
			if err := a.background.player.SwitchTo(ctx, bg.Sequence); err != nil {
				// 背景不是必需的
				a.logger.Warn().Err(err).Str("sequence", bg.Sequence).Msg("background unavailable")
				a.background.dispose()
				a.background = nil
			}
		} else {
			a.logger.Warn().Str("sequence", bg.Sequence).Msg("background sequence not in manifest")
		}
	}

	a.mascot = newLayer(cfg.Mascot)
	a.controller = behavior.New(a.mascot.player, cfg.Behavior,
		behavior.WithStateListener(a.onStateChange))
	if err := a.controller.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("mascot failed to start: %w", err)
	}

	a.poller = interaction.NewPoller(a.onInteraction)
	if cfg.FeedAddr != "" {
		a.feed = interaction.NewFeed(a.onInteraction)
		if _, err := a.feed.Start(cfg.FeedAddr); err != nil {
			a.logger.Warn().Err(err).Str("addr", cfg.FeedAddr).Msg("interaction feed disabled")
			a.feed = nil
		}
	}

	a.relayout(cfg.Window.Width, cfg.Window.Height)
	a.logger.Info().
		Str("manifest", a.manifestSource).
		Int("sequences", len(m.Sequences)).
		Float64("fps", m.FPS).
		Msg("app initialized")
	return a, nil
}

// loadManifest 依次尝试配置的来源、上次成功的快照和内置 manifest
func (a *App) loadManifest(fetcher resource.Fetcher) (*manifest.Manifest, error) {
	cfg := a.cfg
	var store manifest.Store
	if cfg.Manifest.Persist {
		s, err := manifest.OpenGdataStore(AppName)
		if err != nil {
			a.logger.Warn().Err(err).Msg("manifest snapshot storage unavailable")
		} else {
			store = s
		}
	}

	seqs := cfg.Behavior.Sequences
	ml := manifest.NewLoader(fetcher, cfg.Manifest.Sources, cfg.Manifest.Fallback, store,
		seqs.Sleep, seqs.Wake, seqs.Idle, seqs.SleepTransition)
	ml.Timeout = cfg.HTTPTimeout.Std()

	m, source, err := ml.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("no usable manifest: %w", err)
	}
	a.manifestSource = source
	return m, nil
}

func (a *App) onInteraction(ev interaction.Event) {
	a.logger.Debug().Str("kind", string(ev.Kind)).Str("source", ev.Source).Msg("interaction")
	a.controller.Interact()
}

func (a *App) onStateChange(from, to behavior.State) {
	if a.feed != nil {
		a.feed.Broadcast(map[string]string{"type": "state", "from": from.String(), "state": to.String()})
	}
}

// Interact 从外部触发一次交互
func (a *App) Interact() {
	a.onInteraction(interaction.Event{Kind: interaction.KindRemote, Source: "api"})
}

// State 当前行为状态
func (a *App) State() behavior.State { return a.controller.State() }

// Mascot 吉祥物播放器
func (a *App) Mascot() *player.Player { return a.mascot.player }

// Update 更新逻辑
// 每个 tick 调用一次（通常每秒 60 次）
func (a *App) Update() error {
	// 延迟设置窗口大小（退出全屏后需要等待几帧才能正确设置）
	if a.pendingWindowSizeReset {
		a.windowSizeResetCountdown--
		if a.windowSizeResetCountdown <= 0 {
			ebiten.SetWindowSize(a.cfg.Window.Width, a.cfg.Window.Height)
			a.pendingWindowSizeReset = false
		}
	}

	// F11 切换全屏；移动端没有窗口
	if !IsMobile() && inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		if ebiten.IsFullscreen() {
			ebiten.SetFullscreen(false)
			if ebiten.IsWindowMaximized() || ebiten.IsWindowMinimized() {
				ebiten.RestoreWindow()
			}
			a.pendingWindowSizeReset = true
			a.windowSizeResetCountdown = 3
		} else {
			ebiten.SetFullscreen(true)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF3) {
		a.showStatus = !a.showStatus
	}

	a.poller.Update()
	a.tick(time.Now())
	return nil
}

func (a *App) tick(now time.Time) {
	if a.background != nil {
		a.background.player.Tick(now)
	}
	a.mascot.player.Tick(now)
}

// Draw 绘制画面，背景在前
func (a *App) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)
	if a.background != nil {
		a.background.plane.Draw(screen, a.camera)
	}
	a.mascot.plane.Draw(screen, a.camera)

	if a.showStatus {
		ebitenutil.DebugPrint(screen, a.statusText())
	}
}

func (a *App) statusText() string {
	st := a.mascot.player.Status()
	return fmt.Sprintf("state: %s\nsequence: %s %d/%d\nmanifest: %s\nTPS: %0.1f",
		a.controller.State(), st.Key, st.Index+1, st.Frames, a.manifestSource, ebiten.ActualTPS())
}

// DrawFinalScreen 实现 FinalScreenDrawer 接口
// 用于控制全屏时的缩放和 letterbox 颜色
func (a *App) DrawFinalScreen(screen ebiten.FinalScreen, offscreen *ebiten.Image, geoM ebiten.GeoM) {
	screen.Fill(color.Black)
	op := &ebiten.DrawImageOptions{}
	op.GeoM = geoM
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(offscreen, op)
}

// Layout 逻辑屏幕跟随窗口大小；尺寸变化时更新相机宽高比并重新排布平面
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth <= 0 || outsideHeight <= 0 {
		return a.screenW, a.screenH
	}
	if outsideWidth != a.screenW || outsideHeight != a.screenH {
		a.relayout(outsideWidth, outsideHeight)
	}
	return outsideWidth, outsideHeight
}

func (a *App) relayout(w, h int) {
	a.screenW, a.screenH = w, h
	a.camera.Aspect = float64(w) / float64(h)
	for _, l := range []*layer{a.background, a.mascot} {
		if l == nil {
			continue
		}
		if l.cfg.CoverViewport {
			l.plane.FitToViewport(a.camera)
		}
		if l.cfg.StickBottom {
			l.plane.AlignToBottom(a.camera, l.cfg.BottomPadding)
		}
	}
}

func (l *layer) dispose() {
	l.player.Dispose()
	l.plane.Dispose()
}

// Close 停止计时器、交互入口和所有后台加载
func (a *App) Close() {
	if a.controller != nil {
		a.controller.Dispose()
	}
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.logger.Debug().Err(err).Msg("close feed")
		}
	}
	if a.background != nil {
		a.background.dispose()
	}
	if a.mascot != nil {
		a.mascot.dispose()
	}
}
