// Package imaging holds the CPU-bound half of thumbnail generation: decoding
// a source JPEG into a fixed 8-bit RGB model, fitting it into a size x size
// box with a Catmull-Rom (bicubic) filter and encoding the result as lossy
// WebP at a fixed quality.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"math"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
)

// Quality 是所有派生图使用的固定有损压缩质量。
const Quality = 82

var (
	// ErrDecode 表示源文件无法解码为受支持的位图。
	ErrDecode = errors.New("decode image")
	// ErrEncode 表示派生图编码失败。
	ErrEncode = errors.New("encode image")
)

// Decode 解码 JPEG 源图并转换为不透明的 RGBA，后续按尺寸缩放时可复用同一份像素。
func Decode(r io.Reader) (*image.RGBA, error) {
	src, err := jpeg.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgb, rgb.Bounds(), src, bounds.Min, draw.Src)
	return rgb, nil
}

// FitDimensions 计算保持宽高比、恰好放入 size x size 边框的目标尺寸，
// 小图同样会被放大到边框大小。
func FitDimensions(width, height, size int) (int, int) {
	if width <= 0 || height <= 0 || size <= 0 {
		return 0, 0
	}
	ratio := math.Min(float64(size)/float64(width), float64(size)/float64(height))
	w := int(math.Round(float64(width) * ratio))
	h := int(math.Round(float64(height) * ratio))
	return max(w, 1), max(h, 1)
}

// Resize 将图像缩放进 size x size 边框。
func Resize(src image.Image, size int) image.Image {
	bounds := src.Bounds()
	w, h := FitDimensions(bounds.Dx(), bounds.Dy(), size)
	if w == bounds.Dx() && h == bounds.Dy() {
		return src
	}
	return resize.Resize(uint(w), uint(h), src, resize.Bicubic)
}

// EncodeWebP 以固定质量输出有损 WebP。
func EncodeWebP(w io.Writer, img image.Image) error {
	if err := webp.Encode(w, img, &webp.Options{Quality: Quality}); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return nil
}

// ValidWebP 检查派生文件能否解析出 WebP 头部与非空尺寸，用于识别写坏或被截断的缓存。
func ValidWebP(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	return err == nil && cfg.Width > 0 && cfg.Height > 0
}

// Thumbnail 对已解码的图像执行缩放 + 编码，返回 WebP 字节。
func Thumbnail(src image.Image, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrEncode, size)
	}
	var buf bytes.Buffer
	if err := EncodeWebP(&buf, Resize(src, size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
