package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gonewx/gekmascot/pkg/resource"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SourceSnapshot 表示结果来自存储中的快照
const SourceSnapshot = "snapshot"

// Loader 按优先级尝试多个 manifest 来源
//
// 顺序：Sources（依次）→ Store 快照 → Fallback（内置基础 manifest）。
// 第一个能取回、能解析且包含 Required 序列的来源胜出。
// 每个来源单独计时；Fallback 不受调用方取消和超时影响。
type Loader struct {
	Fetcher  resource.Fetcher
	Sources  []string
	Fallback string
	Store    Store         // 可为 nil
	Required []string      // 必须存在的序列名
	Timeout  time.Duration // 单个来源的超时，0 表示不限

	logger zerolog.Logger
}

// NewLoader 创建加载器
func NewLoader(fetcher resource.Fetcher, sources []string, fallback string, store Store, required ...string) *Loader {
	return &Loader{
		Fetcher:  fetcher,
		Sources:  sources,
		Fallback: fallback,
		Store:    store,
		Required: required,
		logger:   log.With().Str("component", "manifest").Logger(),
	}
}

// Load 返回第一个可用的 manifest 及其来源
func (l *Loader) Load(ctx context.Context) (*Manifest, string, error) {
	var errs []error

	for _, src := range l.Sources {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, ctx.Err()))
			break
		}
		data, m, err := l.try(ctx, src)
		if err != nil {
			l.logger.Warn().Err(err).Str("source", src).Msg("manifest source unavailable, trying next")
			errs = append(errs, err)
			continue
		}
		if l.Store != nil {
			if err := l.Store.SaveLastGood(data); err != nil {
				l.logger.Warn().Err(err).Msg("failed to persist manifest snapshot")
			}
		}
		l.logger.Info().Str("source", src).Int("sequences", len(m.Sequences)).Msg("manifest loaded")
		return m, src, nil
	}

	if l.Store != nil {
		m, err := l.fromSnapshot()
		if err == nil {
			l.logger.Info().Msg("using stored manifest snapshot")
			return m, SourceSnapshot, nil
		}
		if !errors.Is(err, ErrNoSnapshot) {
			l.logger.Warn().Err(err).Msg("stored manifest snapshot unusable")
		}
		errs = append(errs, err)
	}

	if l.Fallback != "" {
		_, m, err := l.try(context.WithoutCancel(ctx), l.Fallback)
		if err == nil {
			l.logger.Info().Str("source", l.Fallback).Msg("using base manifest")
			return m, l.Fallback, nil
		}
		errs = append(errs, err)
	}

	return nil, "", fmt.Errorf("no usable manifest: %w", errors.Join(errs...))
}

func (l *Loader) try(ctx context.Context, src string) ([]byte, *Manifest, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	data, err := l.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	m, err := l.parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", src, err)
	}
	return data, m, nil
}

func (l *Loader) fromSnapshot() (*Manifest, error) {
	data, err := l.Store.LoadLastGood()
	if err != nil {
		return nil, err
	}
	return l.parse(data)
}

func (l *Loader) parse(data []byte) (*Manifest, error) {
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := m.Require(l.Required...); err != nil {
		return nil, err
	}
	return m, nil
}
