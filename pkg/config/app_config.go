package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 窗口逻辑尺寸默认值
const (
	DefaultWindowWidth  = 1280
	DefaultWindowHeight = 720
)

// ErrInvalidConfig 配置校验失败时返回（用 errors.Is 判断）
var ErrInvalidConfig = errors.New("invalid config")

// Duration 以 Go 时长字符串（如 "10s"、"150ms"）读写 YAML
type Duration time.Duration

// UnmarshalYAML 解析时长字符串；纯数字按毫秒处理
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		var ms int64
		if numErr := node.Decode(&ms); numErr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		parsed = time.Duration(ms) * time.Millisecond
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML 输出时长字符串
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std 返回标准库 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// PlayerConfig 序列播放器的可调参数
//
// 这些值在历史版本中各不相同，没有唯一"正确"的取值，全部开放配置。
type PlayerConfig struct {
	CacheCapacity   int      `yaml:"cacheCapacity"`   // 纹理缓存最大条目数
	LoadTimeout     Duration `yaml:"loadTimeout"`     // 单帧加载超时
	PreloadFrames   int      `yaml:"preloadFrames"`   // 首帧之后立即加载的帧数
	BatchSize       int      `yaml:"batchSize"`       // 后台批量加载每批帧数
	BatchPause      Duration `yaml:"batchPause"`      // 批次之间的暂停
	CheckpointEvery int      `yaml:"checkpointEvery"` // 每隔多少帧做一次前瞻加载
	Lookahead       int      `yaml:"lookahead"`       // 前瞻加载的帧数
	StallThreshold  Duration `yaml:"stallThreshold"`  // 超过该时长未推进则强制跳帧
	MaxTextureSize  int      `yaml:"maxTextureSize"`  // 解码后最长边上限，0 表示不缩放
}

// BehaviorConfig 行为状态机参数
type BehaviorConfig struct {
	IdleTimeout Duration `yaml:"idleTimeout"`
	Sequences   struct {
		Sleep           string `yaml:"sleep"`
		Wake            string `yaml:"wake"`
		Idle            string `yaml:"idle"`
		SleepTransition string `yaml:"sleepTransition"`
	} `yaml:"sequences"`
}

// PlaneConfig 渲染平面的世界坐标布局
type PlaneConfig struct {
	Sequence      string  `yaml:"sequence,omitempty"` // 仅背景层使用：固定播放的序列
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	X             float64 `yaml:"x"`
	Y             float64 `yaml:"y"`
	Z             float64 `yaml:"z"`
	CoverViewport bool    `yaml:"coverViewport"`
	StickBottom   bool    `yaml:"stickBottom"`
	BottomPadding float64 `yaml:"bottomPadding"`
}

// CameraConfig 透视相机参数
type CameraConfig struct {
	FOV float64 `yaml:"fov"` // 垂直视场角（度）
	Z   float64 `yaml:"z"`
}

// ManifestConfig manifest 来源
type ManifestConfig struct {
	// BaseURL 非空时，以 "/" 开头的来源相对它解析
	BaseURL string `yaml:"baseURL,omitempty"`
	// Sources 按优先级排列：http(s) URL、本地路径或 "embed:data/..."
	Sources []string `yaml:"sources"`
	// Fallback 所有来源失败时使用的内置 manifest，必须存在
	Fallback string `yaml:"fallback"`
	// Persist 是否把最近一次成功的 manifest 存入 gdata
	Persist bool `yaml:"persist"`
}

// Config 应用配置
type Config struct {
	Window struct {
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
		Title  string `yaml:"title"`
	} `yaml:"window"`

	Manifest   ManifestConfig `yaml:"manifest"`
	Player     PlayerConfig   `yaml:"player"`
	Behavior   BehaviorConfig `yaml:"behavior"`
	Camera     CameraConfig   `yaml:"camera"`
	Background *PlaneConfig   `yaml:"background,omitempty"`
	Mascot     PlaneConfig    `yaml:"mascot"`

	// FeedAddr 非空时在该地址开启 websocket 交互事件入口
	FeedAddr string `yaml:"feedAddr,omitempty"`
	// HTTPTimeout 单个远程请求（每个 manifest 来源）的超时
	HTTPTimeout Duration `yaml:"httpTimeout"`
}

// DefaultPlayerConfig 返回播放器默认参数
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		CacheCapacity:   50,
		LoadTimeout:     Duration(10 * time.Second),
		PreloadFrames:   5,
		BatchSize:       3,
		BatchPause:      Duration(100 * time.Millisecond),
		CheckpointEvery: 5,
		Lookahead:       3,
		StallThreshold:  Duration(5 * time.Second),
	}
}

// Default 返回完整的默认配置
func Default() *Config {
	c := &Config{}
	c.Window.Width = DefaultWindowWidth
	c.Window.Height = DefaultWindowHeight
	c.Window.Title = "GEK"

	c.Manifest = ManifestConfig{
		Sources: []string{
			"/animations/manifest-optimized.json",
			"/animations/manifest-cloudinary.json",
		},
		Fallback: "embed:data/manifest-base.json",
		Persist:  true,
	}
	c.Player = DefaultPlayerConfig()

	c.Behavior.IdleTimeout = Duration(10 * time.Second)
	c.Behavior.Sequences.Sleep = "sleep"
	c.Behavior.Sequences.Wake = "wake"
	c.Behavior.Sequences.Idle = "idle"
	c.Behavior.Sequences.SleepTransition = "sleepTransition"

	c.Camera = CameraConfig{FOV: 60, Z: 5}
	c.Background = &PlaneConfig{
		Sequence:      "background",
		Width:         2,
		Height:        2,
		Z:             -1,
		CoverViewport: true,
	}
	c.Mascot = PlaneConfig{
		Width:       9.9,
		Height:      5.65,
		X:           0.1,
		Y:           -0.1,
		StickBottom: true,
	}
	c.HTTPTimeout = Duration(30 * time.Second)
	return c
}

// Parse 把 YAML 内容合并到默认配置之上并校验
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Save 把配置写回文件
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	p := c.Player
	switch {
	case p.CacheCapacity < 1:
		return fmt.Errorf("%w: player.cacheCapacity must be >= 1, got %d", ErrInvalidConfig, p.CacheCapacity)
	case p.LoadTimeout <= 0:
		return fmt.Errorf("%w: player.loadTimeout must be positive", ErrInvalidConfig)
	case p.PreloadFrames < 0:
		return fmt.Errorf("%w: player.preloadFrames must be >= 0", ErrInvalidConfig)
	case p.BatchSize < 1:
		return fmt.Errorf("%w: player.batchSize must be >= 1, got %d", ErrInvalidConfig, p.BatchSize)
	case p.BatchPause < 0:
		return fmt.Errorf("%w: player.batchPause must be >= 0", ErrInvalidConfig)
	case p.CheckpointEvery < 1:
		return fmt.Errorf("%w: player.checkpointEvery must be >= 1", ErrInvalidConfig)
	case p.Lookahead < 0:
		return fmt.Errorf("%w: player.lookahead must be >= 0", ErrInvalidConfig)
	case p.StallThreshold <= 0:
		return fmt.Errorf("%w: player.stallThreshold must be positive", ErrInvalidConfig)
	case p.MaxTextureSize < 0:
		return fmt.Errorf("%w: player.maxTextureSize must be >= 0", ErrInvalidConfig)
	}

	if c.Behavior.IdleTimeout <= 0 {
		return fmt.Errorf("%w: behavior.idleTimeout must be positive", ErrInvalidConfig)
	}
	s := c.Behavior.Sequences
	if s.Sleep == "" || s.Wake == "" || s.Idle == "" || s.SleepTransition == "" {
		return fmt.Errorf("%w: behavior.sequences must name all four sequences", ErrInvalidConfig)
	}

	if len(c.Manifest.Sources) == 0 && c.Manifest.Fallback == "" {
		return fmt.Errorf("%w: manifest needs at least one source or a fallback", ErrInvalidConfig)
	}
	if c.Camera.FOV <= 0 || c.Camera.FOV >= 180 {
		return fmt.Errorf("%w: camera.fov must be in (0, 180), got %v", ErrInvalidConfig, c.Camera.FOV)
	}
	if c.Mascot.Width <= 0 || c.Mascot.Height <= 0 {
		return fmt.Errorf("%w: mascot plane needs positive width and height", ErrInvalidConfig)
	}
	if c.Background != nil && (c.Background.Width <= 0 || c.Background.Height <= 0) {
		return fmt.Errorf("%w: background plane needs positive width and height", ErrInvalidConfig)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("%w: window size must be positive", ErrInvalidConfig)
	}
	return nil
}
