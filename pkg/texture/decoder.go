package texture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Decoder 把帧的原始字节解码为纹理
type Decoder interface {
	Decode(url string, data []byte) (*Texture, error)
}

// ImageDecoder 支持 PNG / JPEG / WebP，上传为 ebiten.Image
//
// 不同来源编码（调色板、YCbCr、带 alpha 的 NRGBA）统一转换为 RGBA，
// 使所有帧的显示效果一致。
type ImageDecoder struct {
	// MaxSize 最长边上限（像素），0 表示保持原尺寸
	MaxSize int
}

// Decode 实现 Decoder
func (d ImageDecoder) Decode(url string, data []byte) (*Texture, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", url, err)
	}
	rgba := NormalizePixels(src, d.MaxSize)
	b := rgba.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("image %s (%s) has no pixels", url, format)
	}
	return New(url, ebiten.NewImageFromImage(rgba), b.Dx(), b.Dy()), nil
}

// NormalizePixels 把任意图像转换为原点在 (0,0) 的 RGBA，
// 最长边超过 maxSize 时等比缩小（maxSize <= 0 不缩放）
func NormalizePixels(src image.Image, maxSize int) *image.RGBA {
	sb := src.Bounds()
	w, h := fitWithin(sb.Dx(), sb.Dy(), maxSize)

	if rgba, ok := src.(*image.RGBA); ok && sb.Min == (image.Point{}) && w == sb.Dx() && h == sb.Dy() {
		return rgba
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}

func fitWithin(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	if w >= h {
		nh := h * maxSize / w
		if nh < 1 {
			nh = 1
		}
		return maxSize, nh
	}
	nw := w * maxSize / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSize
}
