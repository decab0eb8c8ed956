package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 40, G: 90, B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnailIsCoverFit(t *testing.T) {
	raw := pngBytes(t, flatImage(640, 360))

	thumb, err := Thumbnail(raw)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	_, err := Thumbnail([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestTranscodeAcceptsLargeWin(t *testing.T) {
	// BMP is uncompressed, so the JPEG re-encode wins by a wide margin.
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, flatImage(200, 200), imaging.BMP))
	raw := buf.Bytes()

	out, ext, ok := Transcode(raw)
	require.True(t, ok)
	assert.Equal(t, ".jpg", ext)
	assert.LessOrEqual(t, float64(len(out)), float64(len(raw))*0.9)

	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestTranscodeRejectsUndecodable(t *testing.T) {
	out, ext, ok := Transcode([]byte{0x00, 0x01, 0x02})
	assert.False(t, ok)
	assert.Nil(t, out)
	assert.Empty(t, ext)
}

func TestDimensions(t *testing.T) {
	raw := pngBytes(t, flatImage(320, 240))

	w, h, err := Dimensions(raw)
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
}
