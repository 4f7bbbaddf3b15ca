// Package texture 管理解码后的帧纹理
//
// Texture 包装一张 ebiten.Image 以及统一的采样/色彩设置，
// Cache 负责容量受限的缓存和并发加载去重。
package texture

import (
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
)

// ColorSpace 纹理像素的色彩空间标记
type ColorSpace int

const (
	ColorSpaceUnknown ColorSpace = iota
	ColorSpaceSRGB
)

// Texture 一帧解码后的可渲染图像
//
// 引用计数：创建时为 1（归缓存所有）。渲染目标显示它时 Retain，
// 换下时 Release；计数归零才真正释放 GPU 资源。
// 这样缓存淘汰一张正在显示的纹理时，画面不会变空。
type Texture struct {
	url    string
	image  *ebiten.Image
	width  int
	height int

	// 采样设置，由 Normalize 统一
	filter     ebiten.Filter
	colorSpace ColorSpace
	mipmaps    bool

	refs atomic.Int32
}

// New 创建引用计数为 1 的纹理
// img 可以为 nil（无 GPU 的测试和工具中使用）
func New(url string, img *ebiten.Image, width, height int) *Texture {
	t := &Texture{
		url:     url,
		image:   img,
		width:   width,
		height:  height,
		filter:  ebiten.FilterNearest,
		mipmaps: true,
	}
	t.refs.Store(1)
	return t
}

// Normalize 应用统一的采样设置：不生成 mipmap、线性过滤、sRGB 标记
// 必须在纹理共享给其他 goroutine 之前调用
func (t *Texture) Normalize() {
	t.filter = ebiten.FilterLinear
	t.colorSpace = ColorSpaceSRGB
	t.mipmaps = false
}

// URL 帧定位符
func (t *Texture) URL() string { return t.url }

// Image 返回底层图像，可能为 nil
func (t *Texture) Image() *ebiten.Image { return t.image }

// Size 像素尺寸
func (t *Texture) Size() (int, int) { return t.width, t.height }

// Filter 绘制时使用的过滤方式
func (t *Texture) Filter() ebiten.Filter { return t.filter }

// ColorSpace 色彩空间标记
func (t *Texture) ColorSpace() ColorSpace { return t.colorSpace }

// Mipmaps 是否需要生成 mipmap
func (t *Texture) Mipmaps() bool { return t.mipmaps }

// Retain 增加一个引用；纹理已释放时返回 false
func (t *Texture) Retain() bool {
	for {
		n := t.refs.Load()
		if n <= 0 {
			return false
		}
		if t.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release 减少一个引用，归零时释放 GPU 图像
func (t *Texture) Release() {
	if t.refs.Add(-1) != 0 {
		return
	}
	if t.image != nil {
		t.image.Deallocate()
	}
}

// Released 纹理是否已经释放
func (t *Texture) Released() bool { return t.refs.Load() <= 0 }
