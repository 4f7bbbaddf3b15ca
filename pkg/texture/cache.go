package texture

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity 默认最大缓存条目数
const DefaultCapacity = 50

// errNoTexture 取回函数既没有返回纹理也没有返回错误
var errNoTexture = errors.New("fetch returned no texture")

// FetchFunc 取回并解码一帧
type FetchFunc func(ctx context.Context, url string) (*Texture, error)

type entry struct {
	url string
	tex *Texture
}

// Cache 容量受限的 url → 纹理缓存
//
// 并发安全。同一 url 的并发加载合并为一次取回（singleflight）；
// 超出容量时按插入顺序淘汰最早的条目并释放其纹理。
// 读取不会调整顺序：淘汰是 FIFO 而不是严格的 LRU。
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // 队首最早插入
	closed   bool

	group singleflight.Group
	fetch FetchFunc

	// 所有取回共享的上下文，Dispose 时取消
	ctx    context.Context
	cancel context.CancelFunc

	logger zerolog.Logger
}

// NewCache 创建缓存；capacity < 1 时使用 DefaultCapacity
func NewCache(capacity int, fetch FetchFunc) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		fetch:    fetch,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With().Str("component", "texture-cache").Logger(),
	}
}

// Get 同步查找，不触发 I/O
func (c *Cache) Get(url string) *Texture {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[url]; ok {
		return el.Value.(*entry).tex
	}
	return nil
}

// Contains url 是否已缓存
func (c *Cache) Contains(url string) bool {
	return c.Get(url) != nil
}

// Len 当前条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity 最大条目数
func (c *Cache) Capacity() int { return c.capacity }

// Load 返回 url 对应的纹理
//
// 已缓存时立即返回；同一 url 正在加载时等待同一次加载；
// 否则发起取回。失败、ctx 结束或缓存已释放时返回 nil。
func (c *Cache) Load(ctx context.Context, url string) *Texture {
	if tex := c.Get(url); tex != nil {
		return tex
	}
	if c.isClosed() {
		return nil
	}

	ch := c.group.DoChan(url, func() (interface{}, error) {
		// 上一次加载可能刚刚完成
		if tex := c.Get(url); tex != nil {
			return tex, nil
		}
		tex, err := c.fetch(c.ctx, url)
		if err != nil {
			return nil, err
		}
		if tex == nil {
			return nil, errNoTexture
		}
		tex.Normalize()
		return c.insert(url, tex), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Debug().Err(res.Err).Str("url", url).Msg("texture load failed")
			return nil
		}
		return res.Val.(*Texture)
	case <-ctx.Done():
		return nil
	}
}

// Forget 清除 url 的进行中标记，下一次 Load 会重新取回
func (c *Cache) Forget(url string) {
	c.group.Forget(url)
}

// insert 放入缓存并按需淘汰，返回最终缓存中的纹理
func (c *Cache) insert(url string, tex *Texture) *Texture {
	var evicted []*Texture

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		tex.Release()
		return nil
	}
	if el, ok := c.entries[url]; ok {
		// Forget 之后的重复加载：保留已缓存的那张
		c.mu.Unlock()
		tex.Release()
		return el.Value.(*entry).tex
	}
	c.entries[url] = c.order.PushBack(&entry{url: url, tex: tex})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		e := c.order.Remove(oldest).(*entry)
		delete(c.entries, e.url)
		evicted = append(evicted, e.tex)
		c.logger.Debug().Str("url", e.url).Msg("evicted texture")
	}
	c.mu.Unlock()

	for _, t := range evicted {
		t.Release()
	}
	return tex
}

func (c *Cache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dispose 释放全部条目并取消进行中的取回；之后的 Load 返回 nil
func (c *Cache) Dispose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var all []*Texture
	for el := c.order.Front(); el != nil; el = el.Next() {
		all = append(all, el.Value.(*entry).tex)
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	c.cancel()
	for _, t := range all {
		t.Release()
	}
}
