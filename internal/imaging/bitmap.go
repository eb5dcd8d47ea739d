// Package imaging holds the bitmap helpers used when saving pictures:
// decoding raw bytes, JPEG compression and down-sampled decoding.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var ErrInvalidSize = errors.New("requested size must be positive")

// Decode turns an encoded image (PNG, JPEG, GIF, BMP or WebP) into a bitmap.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG compresses img into w at the given quality (1-100).
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if img == nil {
		return errors.New("encode jpeg: nil image")
	}
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}

// CalculateInSampleSize returns the largest power of two that keeps both
// halved dimensions, once divided by it, at or above the requested size.
func CalculateInSampleSize(width, height, reqWidth, reqHeight int) int {
	inSampleSize := 1

	if height > reqHeight || width > reqWidth {
		halfHeight := height / 2
		halfWidth := width / 2

		for halfHeight/inSampleSize >= reqHeight && halfWidth/inSampleSize >= reqWidth {
			inSampleSize *= 2
		}
	}

	return inSampleSize
}

// DecodeSampled decodes data scaled down by the sample size computed for
// the requested dimensions. Only the header is read to find the bounds.
func DecodeSampled(data []byte, reqWidth, reqHeight int) (image.Image, error) {
	if reqWidth <= 0 || reqHeight <= 0 {
		return nil, ErrInvalidSize
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image bounds: %w", err)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	sample := CalculateInSampleSize(cfg.Width, cfg.Height, reqWidth, reqHeight)
	if sample == 1 {
		return img, nil
	}

	return Scale(img, cfg.Width/sample, cfg.Height/sample), nil
}

// Scale resizes img to width x height.
func Scale(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
