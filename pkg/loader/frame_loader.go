// Package loader 在纹理缓存之上加载单帧
//
// FrameLoader 负责：取回字节 → 解码为纹理 → 交给 texture.Cache 缓存，
// 并为每次加载设置超时。普通的网络/解码失败不会作为错误返回，
// 而是返回 nil 纹理，播放循环据此继续推进。
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gonewx/gekmascot/pkg/resource"
	"github.com/gonewx/gekmascot/pkg/texture"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout 单帧加载的默认超时
const DefaultTimeout = 10 * time.Second

// Stats 加载计数
type Stats struct {
	Loaded   int64
	Failed   int64
	TimedOut int64
}

// FrameLoader 单帧加载器
type FrameLoader struct {
	fetcher resource.Fetcher
	decoder texture.Decoder
	cache   *texture.Cache
	timeout time.Duration

	loaded   atomic.Int64
	failed   atomic.Int64
	timedOut atomic.Int64

	logger zerolog.Logger
}

// New 创建加载器以及它拥有的纹理缓存
func New(fetcher resource.Fetcher, decoder texture.Decoder, capacity int, timeout time.Duration) *FrameLoader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l := &FrameLoader{
		fetcher: fetcher,
		decoder: decoder,
		timeout: timeout,
		logger:  log.With().Str("component", "frame-loader").Logger(),
	}
	l.cache = texture.NewCache(capacity, l.fetchAndDecode)
	return l
}

// Cache 返回底层缓存
func (l *FrameLoader) Cache() *texture.Cache { return l.cache }

// Cached 同步查找，不触发 I/O
func (l *FrameLoader) Cached(url string) *texture.Texture { return l.cache.Get(url) }

// fetchAndDecode 是缓存的取回函数；超时从这里开始计时，
// 到期后取回返回错误，进行中标记随之清除
func (l *FrameLoader) fetchAndDecode(ctx context.Context, url string) (*texture.Texture, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type result struct {
		tex *texture.Texture
		err error
	}
	done := make(chan result, 1)
	go func() {
		data, err := l.fetcher.Fetch(ctx, url)
		if err != nil {
			done <- result{err: err}
			return
		}
		tex, err := l.decoder.Decode(url, data)
		done <- result{tex: tex, err: err}
	}()

	select {
	case r := <-done:
		return r.tex, r.err
	case <-ctx.Done():
		// 不理会 ctx 的 Fetcher 可能仍在运行；它迟到的结果直接丢弃
		go func() {
			if r := <-done; r.tex != nil {
				r.tex.Release()
			}
		}()
		return nil, fmt.Errorf("load %s: %w", url, ctx.Err())
	}
}

// LoadFrame 加载一帧；失败或超时返回 nil，从不 panic
func (l *FrameLoader) LoadFrame(ctx context.Context, url string) *texture.Texture {
	if tex := l.cache.Get(url); tex != nil {
		return tex
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	tex := l.cache.Load(ctx, url)
	if tex != nil {
		l.loaded.Add(1)
		return tex
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// 清除进行中标记，下一次请求重新尝试
		l.cache.Forget(url)
		l.timedOut.Add(1)
		l.logger.Warn().Str("url", url).Dur("timeout", l.timeout).Msg("frame load timed out")
		return nil
	}
	if ctx.Err() == nil {
		l.failed.Add(1)
		l.logger.Warn().Str("url", url).Msg("frame unavailable")
	}
	return nil
}

// Prefetch 按批加载一组帧，每批最多 batchSize 个并发；pause 为批次间的停顿
//
// 返回成功与失败的数量。ctx 结束时停止发起新的批次。
func (l *FrameLoader) Prefetch(ctx context.Context, urls []string, batchSize int, pause time.Duration) (ok, failed int) {
	if batchSize < 1 {
		batchSize = 1
	}
	var okCount, failCount atomic.Int64

	for start := 0; start < len(urls); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		if start > 0 && pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return int(okCount.Load()), int(failCount.Load())
			}
		}

		end := min(start+batchSize, len(urls))
		var g errgroup.Group
		for _, url := range urls[start:end] {
			g.Go(func() error {
				if l.LoadFrame(ctx, url) != nil {
					okCount.Add(1)
				} else {
					failCount.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return int(okCount.Load()), int(failCount.Load())
}

// Stats 返回累计计数
func (l *FrameLoader) Stats() Stats {
	return Stats{
		Loaded:   l.loaded.Load(),
		Failed:   l.failed.Load(),
		TimedOut: l.timedOut.Load(),
	}
}

// Dispose 释放缓存
func (l *FrameLoader) Dispose() {
	l.cache.Dispose()
}
