// Package imagemeta reads pixel dimensions from image headers without
// decoding pixel data.
package imagemeta

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Info is what could be read from the header.
type Info struct {
	Width  int
	Height int
	Format string
}

// Dimensions parses the header of data. ok is false when the format is not
// recognized or the header is truncated; callers treat that as "unknown",
// never as an error.
func Dimensions(data []byte) (Info, bool) {
	if len(data) == 0 {
		return Info{}, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, false
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, true
}
