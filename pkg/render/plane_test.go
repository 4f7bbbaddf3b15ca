package render

import (
	"testing"

	"github.com/gonewx/gekmascot/pkg/texture"
	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func TestViewportHeight(t *testing.T) {
	cam := Camera{FOV: 90, Aspect: 2, Z: 5}
	assert.InDelta(t, 10, cam.ViewportHeight(5), eps)
	assert.InDelta(t, 12, cam.ViewportHeight(6), eps)
}

func TestFitToViewport(t *testing.T) {
	cam := Camera{FOV: 90, Aspect: 2, Z: 5}
	p := NewPlane(2, 2, Vec3{X: 3, Y: 1, Z: 0})

	p.FitToViewport(cam)
	sx, sy := p.Scale()
	assert.InDelta(t, 10, sx, eps)
	assert.InDelta(t, 5, sy, eps)
	assert.Equal(t, Vec3{X: 0, Y: 0, Z: 0}, p.Position())

	x, y, w, h, ok := p.ScreenRect(cam, 800, 400)
	assert.True(t, ok)
	assert.InDelta(t, 0, x, eps)
	assert.InDelta(t, 0, y, eps)
	assert.InDelta(t, 800, w, eps)
	assert.InDelta(t, 400, h, eps)
}

func TestAlignToBottom(t *testing.T) {
	cam := Camera{FOV: 90, Aspect: 4.0 / 3.0, Z: 5}
	p := NewPlane(4, 2, Vec3{X: 1, Y: 0, Z: 0})

	p.AlignToBottom(cam, 0)
	assert.InDelta(t, -4, p.Position().Y, eps)

	x, y, w, h, ok := p.ScreenRect(cam, 800, 600)
	assert.True(t, ok)
	assert.InDelta(t, 340, x, eps)
	assert.InDelta(t, 480, y, eps)
	assert.InDelta(t, 240, w, eps)
	assert.InDelta(t, 120, h, eps)
	assert.InDelta(t, 600, y+h, eps, "bottom edge touches the screen bottom")

	p.AlignToBottom(cam, 50)
	assert.InDelta(t, -3.5, p.Position().Y, eps)
}

func TestScreenRectBehindCamera(t *testing.T) {
	p := NewPlane(1, 1, Vec3{Z: 10})
	_, _, _, _, ok := p.ScreenRect(Camera{FOV: 60, Aspect: 1, Z: 5}, 100, 100)
	assert.False(t, ok)
}

func TestSetTextureRefCounting(t *testing.T) {
	p := NewPlane(1, 1, Vec3{})
	a := texture.New("a", nil, 1, 1)
	b := texture.New("b", nil, 1, 1)

	assert.True(t, p.SetTexture(a))
	assert.Same(t, a, p.Texture())

	a.Release() // 缓存淘汰
	assert.False(t, a.Released(), "plane still holds a")

	assert.True(t, p.SetTexture(b))
	assert.True(t, a.Released())
	assert.Same(t, b, p.Texture())

	assert.False(t, p.SetTexture(a), "released textures are refused")
	assert.Same(t, b, p.Texture())
	assert.False(t, p.SetTexture(nil))

	p.Dispose()
	assert.Nil(t, p.Texture())
	assert.False(t, b.Released(), "cache reference remains")
}
