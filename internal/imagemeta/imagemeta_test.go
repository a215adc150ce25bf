package imagemeta

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 60), A: 255})
		}
	}
	return img
}

func TestDimensions(t *testing.T) {
	encoders := map[string]func(*bytes.Buffer, image.Image) error{
		"png":  func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) },
		"jpeg": func(b *bytes.Buffer, m image.Image) error { return jpeg.Encode(b, m, nil) },
		"gif":  func(b *bytes.Buffer, m image.Image) error { return gif.Encode(b, m, nil) },
		"bmp":  func(b *bytes.Buffer, m image.Image) error { return bmp.Encode(b, m) },
	}

	for format, encode := range encoders {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encode(&buf, testImage(7, 3)))

			info, ok := Dimensions(buf.Bytes())
			require.True(t, ok)
			assert.Equal(t, 7, info.Width)
			assert.Equal(t, 3, info.Height)
			assert.Equal(t, format, info.Format)
		})
	}
}

func TestDimensionsWebPHeader(t *testing.T) {
	// Lossless VP8L header for a 2x3 image.
	data := []byte{
		'R', 'I', 'F', 'F', 0x1a, 0x00, 0x00, 0x00,
		'W', 'E', 'B', 'P', 'V', 'P', '8', 'L',
		0x0d, 0x00, 0x00, 0x00,
		0x2f, 0x01, 0x80, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	info, ok := Dimensions(data)
	require.True(t, ok)
	assert.Equal(t, "webp", info.Format)
	assert.Equal(t, 2, info.Width)
	assert.Equal(t, 3, info.Height)
}

func TestDimensionsUnknown(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"text":      []byte("not an image at all"),
		"truncated": []byte("\x89PNG\r\n\x1a\n"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := Dimensions(data)
			assert.False(t, ok)
		})
	}
}
