// Package render 提供帧序列的渲染目标：透视相机下的一块贴图平面
//
// 平面在世界坐标中有位置和缩放，Draw 时按相机视场角投影到屏幕像素。
// 只支持与相机正对的矩形，没有旋转。
package render

import (
	"math"
	"sync"

	"github.com/gonewx/gekmascot/pkg/texture"
	"github.com/hajimehoshi/ebiten/v2"
)

// Camera 透视相机，朝 -Z 方向看
type Camera struct {
	FOV    float64 // 垂直视场角（度）
	Aspect float64 // 宽 / 高
	Z      float64
}

// ViewportHeight 返回与相机距离为 distance 处可见区域的世界高度
func (c Camera) ViewportHeight(distance float64) float64 {
	vFOV := c.FOV * math.Pi / 180
	return 2 * math.Tan(vFOV/2) * distance
}

// Vec3 世界坐标
type Vec3 struct{ X, Y, Z float64 }

// Plane 贴图平面，实现播放器的渲染目标
//
// 并发安全：播放器在加载 goroutine 或 Update 中 SetTexture，
// Draw 在渲染时读取。
type Plane struct {
	mu     sync.RWMutex
	width  float64
	height float64
	pos    Vec3
	scaleX float64
	scaleY float64
	tex    *texture.Texture
}

// NewPlane 创建基础尺寸为 width x height 的平面
func NewPlane(width, height float64, pos Vec3) *Plane {
	return &Plane{
		width:  width,
		height: height,
		pos:    pos,
		scaleX: 1,
		scaleY: 1,
	}
}

// SetTexture 切换显示的纹理
//
// 新纹理被 Retain，旧纹理被 Release。纹理已被释放时返回 false，
// 画面保持原来的帧。
func (p *Plane) SetTexture(tex *texture.Texture) bool {
	if tex == nil || !tex.Retain() {
		return false
	}
	p.mu.Lock()
	old := p.tex
	p.tex = tex
	p.mu.Unlock()

	if old != nil {
		old.Release()
	}
	return true
}

// Texture 当前纹理
func (p *Plane) Texture() *texture.Texture {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tex
}

// Position 当前位置
func (p *Plane) Position() Vec3 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

// Scale 当前缩放
func (p *Plane) Scale() (float64, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scaleX, p.scaleY
}

// SetPosition 设置位置
func (p *Plane) SetPosition(pos Vec3) {
	p.mu.Lock()
	p.pos = pos
	p.mu.Unlock()
}

// FitToViewport 缩放平面铺满相机视口并居中
func (p *Plane) FitToViewport(cam Camera) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := cam.ViewportHeight(cam.Z - p.pos.Z)
	w := h * cam.Aspect
	p.scaleX = w / p.width
	p.scaleY = h / p.height
	p.pos.X = 0
	p.pos.Y = 0
}

// AlignToBottom 把平面底边贴到视口底部；padding 以视口高度的百分之一个世界单位计
func (p *Plane) AlignToBottom(cam Camera, padding float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	viewportHeight := cam.ViewportHeight(cam.Z - p.pos.Z)
	planeHeight := p.height * p.scaleY
	p.pos.Y = -viewportHeight/2 + planeHeight/2 + padding/100
}

// ScreenRect 返回平面在 screenW x screenH 屏幕上的像素矩形（左上角与尺寸）
// ok 为 false 表示平面在相机后方
func (p *Plane) ScreenRect(cam Camera, screenW, screenH int) (x, y, w, h float64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	distance := cam.Z - p.pos.Z
	if distance <= 0 {
		return 0, 0, 0, 0, false
	}
	pixelsPerUnit := float64(screenH) / cam.ViewportHeight(distance)

	w = p.width * p.scaleX * pixelsPerUnit
	h = p.height * p.scaleY * pixelsPerUnit
	cx := float64(screenW)/2 + p.pos.X*pixelsPerUnit
	cy := float64(screenH)/2 - p.pos.Y*pixelsPerUnit
	return cx - w/2, cy - h/2, w, h, true
}

// Draw 把当前纹理绘制到屏幕
func (p *Plane) Draw(screen *ebiten.Image, cam Camera) {
	tex := p.Texture()
	if tex == nil || tex.Image() == nil {
		return
	}
	b := screen.Bounds()
	x, y, w, h, ok := p.ScreenRect(cam, b.Dx(), b.Dy())
	if !ok {
		return
	}
	iw, ih := tex.Size()
	if iw == 0 || ih == 0 {
		return
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(w/float64(iw), h/float64(ih))
	op.GeoM.Translate(x, y)
	op.Filter = tex.Filter()
	screen.DrawImage(tex.Image(), op)
}

// Dispose 释放当前纹理引用
func (p *Plane) Dispose() {
	p.mu.Lock()
	old := p.tex
	p.tex = nil
	p.mu.Unlock()
	if old != nil {
		old.Release()
	}
}
