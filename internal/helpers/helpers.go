package helpers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	slugDisallowed  = regexp.MustCompile(`[^a-z0-9._-]+`)
	slugRepeatedSep = regexp.MustCompile(`_{2,}`)
	slugMixedSep    = regexp.MustCompile(`[_-]*-[_-]*`)
)

// ConvertToSlug turns a display name into a lowercase identifier that is
// safe in keys and paths. Spaces become underscores, colons become dashes,
// anything outside [a-z0-9._-] is dropped.
func ConvertToSlug(str string) string {
	str = strings.ToLower(strings.TrimSpace(str))
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.Join(strings.Fields(str), "_")
	str = slugDisallowed.ReplaceAllString(str, "")
	str = slugRepeatedSep.ReplaceAllString(str, "_")
	str = slugMixedSep.ReplaceAllString(str, "-")
	return strings.Trim(str, "_-")
}

// BytesToSize converts a byte count into a human-readable string.
func BytesToSize(bytes uint64) string {
	if bytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", value, units[i])
}

// SanitizePath cleans a relative path and strips any traversal so the
// result always stays below whatever root it is joined to.
func SanitizePath(path string) string {
	cleaned := filepath.Clean("/" + filepath.ToSlash(path))
	return strings.TrimPrefix(cleaned, "/")
}

// StringSliceContains reports whether item is in slice, ignoring case.
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

var mimeToExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

var extToMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// GetExtensionFromMimeType maps an image MIME type (parameters allowed) to
// its canonical extension.
func GetExtensionFromMimeType(mimeType string) (string, bool) {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	ext, ok := mimeToExt[strings.ToLower(base)]
	return ext, ok
}

// GetMimeTypeFromExtension is the inverse of GetExtensionFromMimeType.
// Unknown extensions map to application/octet-stream.
func GetMimeTypeFromExtension(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if mime, ok := extToMime[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// CheckAndMakeDir ensures dir exists, creating it if needed.
func CheckAndMakeDir(dir string) bool {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// CounterWriter counts the bytes passed through to Writer.
type CounterWriter struct {
	Writer io.Writer
	Total  uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}
