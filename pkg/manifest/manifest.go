// Package manifest 定义动画 manifest 的数据结构、校验和加载链
//
// manifest 是外部提供的只读配置：
//
//	{ "fps": 24, "sequences": { "idle": { "frames": [...], "loop": true } } }
//
// JSON 与 YAML 都可以解析（YAML 1.2 是 JSON 的超集），统一使用 yaml.v3。
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid manifest 结构不合法（配置错误，不重试）
var ErrInvalid = errors.New("invalid manifest")

// LoadingStrategy 序列的加载策略
type LoadingStrategy string

const (
	// StrategyLazy 首帧同步，预加载窗口，其余分批流式加载（默认）
	StrategyLazy LoadingStrategy = "lazy"
	// StrategyEager 首帧之后立即加载整个序列
	StrategyEager LoadingStrategy = "eager"
	// StrategyOnDemand 只加载首帧、预加载窗口和播放时的前瞻窗口，不做后台流式加载
	StrategyOnDemand LoadingStrategy = "ondemand"
)

// SequenceSpec 描述一段动画
type SequenceSpec struct {
	// Frames 按播放顺序排列的帧定位符；上游已排好序，这里不做任何排序
	Frames []string `yaml:"frames,omitempty"`
	Loop   bool     `yaml:"loop"`

	LoadingStrategy LoadingStrategy `yaml:"loadingStrategy,omitempty"`
	PreloadFrames   *int            `yaml:"preloadFrames,omitempty"`
	BatchSize       *int            `yaml:"batchSize,omitempty"`

	// 旧版 manifest 没有 frames 列表，用 path + pattern 在 start..end 上生成
	Path      string `yaml:"path,omitempty"`
	Pattern   string `yaml:"pattern,omitempty"`
	Start     int    `yaml:"start,omitempty"`
	End       int    `yaml:"end,omitempty"`
	FileCount int    `yaml:"fileCount,omitempty"`
}

// Manifest 顶层结构
type Manifest struct {
	FPS       float64                  `yaml:"fps"`
	Sequences map[string]*SequenceSpec `yaml:"sequences"`
}

// Parse 解析并校验 manifest（JSON 或 YAML）
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate 检查 manifest 的结构约束
func (m *Manifest) Validate() error {
	if m.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %v", ErrInvalid, m.FPS)
	}
	if len(m.Sequences) == 0 {
		return fmt.Errorf("%w: no sequences", ErrInvalid)
	}
	for name, seq := range m.Sequences {
		if seq == nil {
			return fmt.Errorf("%w: sequence %q is empty", ErrInvalid, name)
		}
		if err := seq.validate(); err != nil {
			return fmt.Errorf("%w: sequence %q: %v", ErrInvalid, name, err)
		}
	}
	return nil
}

func (s *SequenceSpec) validate() error {
	if len(s.Frames) == 0 {
		if s.Pattern == "" {
			return errors.New("needs frames or path+pattern")
		}
		if s.End < s.Start {
			return fmt.Errorf("end %d before start %d", s.End, s.Start)
		}
		if !strings.Contains(s.Pattern, "%") {
			return fmt.Errorf("pattern %q has no frame number verb", s.Pattern)
		}
	}
	for i, f := range s.Frames {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("frame %d has an empty locator", i)
		}
	}
	switch s.LoadingStrategy {
	case "", StrategyLazy, StrategyEager, StrategyOnDemand:
	default:
		return fmt.Errorf("unknown loadingStrategy %q", s.LoadingStrategy)
	}
	if s.PreloadFrames != nil && *s.PreloadFrames < 0 {
		return errors.New("preloadFrames must be >= 0")
	}
	if s.BatchSize != nil && *s.BatchSize < 1 {
		return errors.New("batchSize must be >= 1")
	}
	return nil
}

// FrameURLs 返回序列的帧定位符列表
//
// 有 frames 时原样返回（保持顺序），否则由 path + pattern 生成。
func (s *SequenceSpec) FrameURLs() []string {
	if len(s.Frames) > 0 {
		out := make([]string, len(s.Frames))
		copy(out, s.Frames)
		return out
	}
	out := make([]string, 0, s.End-s.Start+1)
	for n := s.Start; n <= s.End; n++ {
		out = append(out, s.Path+fmt.Sprintf(s.Pattern, n))
	}
	return out
}

// FrameCount 返回帧数
func (s *SequenceSpec) FrameCount() int {
	if len(s.Frames) > 0 {
		return len(s.Frames)
	}
	return s.End - s.Start + 1
}

// Strategy 返回生效的加载策略
func (s *SequenceSpec) Strategy() LoadingStrategy {
	if s.LoadingStrategy == "" {
		return StrategyLazy
	}
	return s.LoadingStrategy
}

// Lookup 按名称取序列
func (m *Manifest) Lookup(key string) (*SequenceSpec, bool) {
	s, ok := m.Sequences[key]
	return s, ok && s != nil
}

// Keys 返回排序后的序列名
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Sequences))
	for k := range m.Sequences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Require 检查 manifest 包含所有给定序列
func (m *Manifest) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := m.Lookup(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing sequences %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}
