// Package capture turns a live video-bearing source into still frames.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

const DefaultJPEGQuality = 50

// ErrSourceNotReady is returned when the source has no intrinsic size yet.
var ErrSourceNotReady = errors.New("capture source not ready")

// Source is a live camera or screen-share preview.
type Source interface {
	Snapshot(ctx context.Context) (image.Image, error)
}

// TargetSize returns the surface size for a w×h source. A positive
// targetWidth smaller than w scales both sides by the same factor.
func TargetSize(w, h, targetWidth int) (int, int) {
	if targetWidth <= 0 || w <= targetWidth {
		return w, h
	}
	scale := float64(targetWidth) / float64(w)
	return int(math.Round(float64(w) * scale)), int(math.Round(float64(h) * scale))
}

// CaptureFrame renders the current contents of src into a new RGBA surface,
// downscaled to targetWidth when the source is wider.
func CaptureFrame(ctx context.Context, src Source, targetWidth int) (*image.RGBA, error) {
	img, err := src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrSourceNotReady
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrSourceNotReady
	}

	w, h := TargetSize(b.Dx(), b.Dy(), targetWidth)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst, nil
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// EncodeJPEG compresses img. quality outside 1..100 uses DefaultJPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBase64 is EncodeJPEG followed by standard base64, the payload format of
// frame messages.
func EncodeBase64(img image.Image, quality int) (string, error) {
	b, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
