package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job ID does not exist in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrArtifactNotFound is returned when a job exists but never produced
	// the requested artifact.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrNoTranscript marks the absence of any caption track for a video.
	// The transcript stage treats this as a soft outcome: the job continues
	// without transcript artifacts.
	ErrNoTranscript = errors.New("no transcript available")

	// ErrMetadataFetch wraps failures while probing video metadata.
	ErrMetadataFetch = errors.New("metadata fetch failed")

	// ErrStorage wraps failures while writing artifacts to the store.
	ErrStorage = errors.New("artifact storage failed")
)

// TruncateMessage shortens a string to at most limit runes. Used to keep
// user-facing error messages bounded while the full detail is stored
// separately.
// Parameters:
//   - s: message to shorten.
//   - limit: maximum rune count; non-positive limits return the empty string.
//
// Returns:
//   - string: the original string when already short enough.
func TruncateMessage(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
