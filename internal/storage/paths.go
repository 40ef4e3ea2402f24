package storage

import (
	"fmt"
	"path"
	"strings"
)

// invalidSegmentChars are characters replaced when sanitizing a path
// segment, matching what common filesystems refuse in file names.
const invalidSegmentChars = `<>:"/\|?*`

// SanitizeSegment turns arbitrary user text (video titles, subfolder names)
// into a safe single path segment. Invalid characters become underscores,
// surrounding dots and spaces are stripped, and the result is capped at 200
// characters.
// Parameters:
//   - name: raw segment text.
//
// Returns:
//   - string: safe segment; "download" when nothing usable remains.
func SanitizeSegment(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(invalidSegmentChars, r) || r < 0x20 {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.Trim(b.String(), ". ")
	if len(cleaned) > 200 {
		cleaned = strings.Trim(cleaned[:200], ". ")
	}
	if cleaned == "" {
		return "download"
	}
	return cleaned
}

// ValidateKey rejects keys that could escape the store's namespace.
// Parameters:
//   - key: relative artifact key.
//
// Returns:
//   - string: the cleaned key.
//   - error: non-nil for empty, absolute, or parent-traversing keys.
func ValidateKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(key, "/"))
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("empty storage key")
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("storage key %q escapes the store root", key)
	}
	return cleaned, nil
}

// contentTypeFor maps an artifact key to its MIME type by extension.
func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
