package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ img image.Image }

func (s staticSource) Snapshot(context.Context) (image.Image, error) { return s.img, nil }

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 90, A: 255})
		}
	}
	return img
}

func TestCaptureFrame_Downscales(t *testing.T) {
	out, err := CaptureFrame(context.Background(), staticSource{solid(1280, 720)}, 640)
	require.NoError(t, err)
	assert.Equal(t, 640, out.Bounds().Dx())
	assert.Equal(t, 360, out.Bounds().Dy())
}

func TestCaptureFrame_NaturalSize(t *testing.T) {
	out, err := CaptureFrame(context.Background(), staticSource{solid(1280, 720)}, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1280, 720), out.Bounds())

	// narrower than target: no upscaling
	out, err = CaptureFrame(context.Background(), staticSource{solid(320, 240)}, 640)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), out.Bounds())
}

func TestCaptureFrame_NonZeroOrigin(t *testing.T) {
	sub := solid(200, 100).SubImage(image.Rect(50, 20, 150, 70))
	out, err := CaptureFrame(context.Background(), staticSource{sub}, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), out.Bounds())
	assert.Equal(t, uint8(200), out.RGBAAt(10, 10).R)
}

func TestCaptureFrame_ZeroSizeFailsFast(t *testing.T) {
	_, err := CaptureFrame(context.Background(), staticSource{image.NewRGBA(image.Rect(0, 0, 0, 0))}, 640)
	assert.ErrorIs(t, err, ErrSourceNotReady)

	_, err = CaptureFrame(context.Background(), staticSource{nil}, 640)
	assert.ErrorIs(t, err, ErrSourceNotReady)

	_, err = CaptureFrame(context.Background(), NewLatestFrame(), 640)
	assert.ErrorIs(t, err, ErrSourceNotReady)
}

func TestTargetSize_Rounds(t *testing.T) {
	w, h := TargetSize(1920, 1080, 1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 576, h)

	w, h = TargetSize(1366, 768, 640)
	assert.Equal(t, 640, w)
	assert.Equal(t, 360, h)
}

func TestEncodeBase64_DecodesAsJPEG(t *testing.T) {
	s, err := EncodeBase64(solid(64, 48), 50)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestLatestFrame_Update(t *testing.T) {
	lf := NewLatestFrame()
	lf.Update(solid(8, 8))
	img, err := lf.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestHTTPSnapshotSource(t *testing.T) {
	var body bytes.Buffer
	require.NoError(t, png.Encode(&body, solid(40, 30)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body.Bytes())
	}))
	defer srv.Close()

	out, err := CaptureFrame(context.Background(), NewHTTPSnapshotSource(srv.URL+"/snap", nil), 20)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 15), out.Bounds())

	_, err = NewHTTPSnapshotSource(srv.URL+"/missing", srv.Client()).Snapshot(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSourceNotReady))
}
