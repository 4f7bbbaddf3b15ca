package texture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFetch 记录每个 url 的取回次数
type countingFetch struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newCountingFetch() *countingFetch {
	return &countingFetch{calls: map[string]int{}, fail: map[string]bool{}}
}

func (f *countingFetch) fetch(ctx context.Context, url string) (*Texture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.fail[url] {
		return nil, errors.New("network down")
	}
	return New(url, nil, 4, 4), nil
}

func (f *countingFetch) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func TestCacheLoadAndGet(t *testing.T) {
	f := newCountingFetch()
	c := NewCache(10, f.fetch)

	assert.Nil(t, c.Get("a"))
	tex := c.Load(context.Background(), "a")
	require.NotNil(t, tex)
	assert.Equal(t, "a", tex.URL())
	assert.Same(t, tex, c.Get("a"))

	again := c.Load(context.Background(), "a")
	assert.Same(t, tex, again)
	assert.Equal(t, 1, f.count("a"), "cached loads do not fetch")
}

func TestCacheNormalizesSampling(t *testing.T) {
	c := NewCache(10, newCountingFetch().fetch)
	tex := c.Load(context.Background(), "a")
	require.NotNil(t, tex)

	assert.Equal(t, ebiten.FilterLinear, tex.Filter())
	assert.Equal(t, ColorSpaceSRGB, tex.ColorSpace())
	assert.False(t, tex.Mipmaps())
}

func TestCacheDeduplicatesConcurrentLoads(t *testing.T) {
	var fetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c := NewCache(10, func(ctx context.Context, url string) (*Texture, error) {
		fetches.Add(1)
		close(started)
		<-release
		return New(url, nil, 1, 1), nil
	})

	results := make(chan *Texture, 2)
	go func() { results <- c.Load(context.Background(), "frame") }()
	<-started
	go func() { results <- c.Load(context.Background(), "frame") }()

	// 让第二个调用有机会加入同一次加载
	time.Sleep(20 * time.Millisecond)
	close(release)

	first, second := <-results, <-results
	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestCacheEvictsOldestInserted(t *testing.T) {
	f := newCountingFetch()
	c := NewCache(3, f.fetch)
	ctx := context.Background()

	first := c.Load(ctx, "u0")
	for i := 1; i <= 3; i++ {
		require.NotNil(t, c.Load(ctx, fmt.Sprintf("u%d", i)))
	}

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains("u0"))
	assert.True(t, first.Released(), "evicted texture is released")

	c.Load(ctx, "u0")
	assert.Equal(t, 2, f.count("u0"), "evicted url needs a new fetch")
	assert.False(t, c.Contains("u1"))
}

func TestCacheEvictionIsInsertionOrder(t *testing.T) {
	c := NewCache(2, newCountingFetch().fetch)
	ctx := context.Background()

	c.Load(ctx, "a")
	c.Load(ctx, "b")
	c.Get("a") // 读取不改变淘汰顺序
	c.Load(ctx, "a")
	c.Load(ctx, "c")

	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}

func TestCacheRetainedTextureSurvivesEviction(t *testing.T) {
	c := NewCache(1, newCountingFetch().fetch)
	ctx := context.Background()

	shown := c.Load(ctx, "a")
	require.True(t, shown.Retain())

	c.Load(ctx, "b")
	assert.False(t, c.Contains("a"))
	assert.False(t, shown.Released(), "still held by the render target")

	shown.Release()
	assert.True(t, shown.Released())
	assert.False(t, shown.Retain())
}

func TestCacheFailureIsNil(t *testing.T) {
	f := newCountingFetch()
	f.fail["bad"] = true
	c := NewCache(10, f.fetch)

	assert.Nil(t, c.Load(context.Background(), "bad"))
	assert.False(t, c.Contains("bad"))

	// 失败不会留下进行中标记，可以重试
	assert.Nil(t, c.Load(context.Background(), "bad"))
	assert.Equal(t, 2, f.count("bad"))
}

func TestCacheNilTextureIsFailure(t *testing.T) {
	c := NewCache(10, func(ctx context.Context, url string) (*Texture, error) {
		return nil, nil
	})
	assert.Nil(t, c.Load(context.Background(), "x"))
	assert.Equal(t, 0, c.Len())
}

func TestCacheCallerContext(t *testing.T) {
	release := make(chan struct{})
	c := NewCache(10, func(ctx context.Context, url string) (*Texture, error) {
		<-release
		return New(url, nil, 1, 1), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Nil(t, c.Load(ctx, "slow"))

	close(release)
	// 取回本身仍会完成并填充缓存
	require.Eventually(t, func() bool { return c.Contains("slow") }, time.Second, 5*time.Millisecond)
}

func TestCacheForgetStartsNewFetch(t *testing.T) {
	var fetches atomic.Int32
	block := make(chan struct{})
	c := NewCache(10, func(ctx context.Context, url string) (*Texture, error) {
		if fetches.Add(1) == 1 {
			<-block
			return nil, errors.New("stuck fetch gave up")
		}
		return New(url, nil, 1, 1), nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Nil(t, c.Load(ctx, "u"))

	c.Forget("u")
	assert.NotNil(t, c.Load(context.Background(), "u"))
	assert.Equal(t, int32(2), fetches.Load())
}

func TestCacheDispose(t *testing.T) {
	c := NewCache(10, newCountingFetch().fetch)
	a := c.Load(context.Background(), "a")
	b := c.Load(context.Background(), "b")

	c.Dispose()
	assert.True(t, a.Released())
	assert.True(t, b.Released())
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Load(context.Background(), "a"))

	c.Dispose() // 重复调用安全
}

func TestNormalizePixels(t *testing.T) {
	pal := image.NewPaletted(image.Rect(2, 3, 6, 5), color.Palette{color.Black, color.White})
	pal.SetColorIndex(2, 3, 1)

	rgba := NormalizePixels(pal, 0)
	assert.Equal(t, image.Rect(0, 0, 4, 2), rgba.Bounds())
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba.RGBAAt(0, 0))

	same := image.NewRGBA(image.Rect(0, 0, 8, 8))
	assert.Same(t, same, NormalizePixels(same, 0))

	wide := image.NewRGBA(image.Rect(0, 0, 400, 100))
	scaled := NormalizePixels(wide, 200)
	assert.Equal(t, image.Rect(0, 0, 200, 50), scaled.Bounds())

	tall := image.NewNRGBA(image.Rect(0, 0, 10, 1000))
	assert.Equal(t, image.Rect(0, 0, 1, 100), NormalizePixels(tall, 100).Bounds())
}
