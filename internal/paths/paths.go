package paths

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"go-image-organizer/internal/naming"
)

// DefaultBlobPattern is where mirrored images live in object storage.
const DefaultBlobPattern = "projects/{project}/images/{filename}"

// Allowed tags and how each value is sanitized before substitution.
var tagSanitizers = map[string]func(string) string{
	"project":  naming.ProjectSlug,
	"filename": sanitizeFilename,
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

// sanitizeFilename keeps the name as is apart from anything that could
// introduce another path segment.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return strings.ReplaceAll(name, "..", "_")
}

// ValidatePattern reports unknown tags in pattern.
func ValidatePattern(pattern string) error {
	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		if _, allowed := tagSanitizers[match[1]]; !allowed {
			return fmt.Errorf("unknown tag found in path pattern: %s", match[0])
		}
	}
	return nil
}

// GeneratePath substitutes placeholders in a pattern string with sanitized values from the data map.
// It returns the generated object path (always forward slashes) or an error if substitution fails.
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generatedPath := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		tagName := match[1]       // e.g., "project"
		tagWithBraces := match[0] // e.g., "{project}"

		sanitize, allowed := tagSanitizers[tagName]
		if !allowed {
			return "", fmt.Errorf("unknown tag found in path pattern: %s", tagWithBraces)
		}

		sanitizedValue := sanitize(data[tagName])
		if sanitizedValue == "" {
			// Missing and empty values both end up here.
			sanitizedValue = "empty_" + tagName
		}

		generatedPath = strings.ReplaceAll(generatedPath, tagWithBraces, sanitizedValue)
	}

	cleanedPath := path.Clean(generatedPath)
	if cleanedPath == "." || cleanedPath == "" || cleanedPath == "/" {
		return "", fmt.Errorf("generated path pattern resulted in an empty or invalid path: '%s'", pattern)
	}
	// Object keys are always relative
	cleanedPath = strings.TrimPrefix(cleanedPath, "/")

	// Security check: Prevent path traversal
	for _, segment := range strings.Split(cleanedPath, "/") {
		if segment == ".." {
			return "", fmt.Errorf("generated path contains invalid sequence '..': %s", cleanedPath)
		}
	}

	return cleanedPath, nil
}

// BlobPath renders pattern (DefaultBlobPattern when empty) for one file.
func BlobPath(pattern, projectName, filename string) (string, error) {
	if pattern == "" {
		pattern = DefaultBlobPattern
	}
	return GeneratePath(pattern, map[string]string{
		"project":  projectName,
		"filename": filename,
	})
}
