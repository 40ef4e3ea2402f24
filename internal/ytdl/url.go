package ytdl

import "regexp"

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/watch\?.*&v=([a-zA-Z0-9_-]{11})`),
}

var playlistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/playlist\?list=`),
	regexp.MustCompile(`youtube\.com/watch\?.*&list=`),
	regexp.MustCompile(`youtube\.com/channel/`),
	regexp.MustCompile(`youtube\.com/user/`),
	regexp.MustCompile(`youtube\.com/c/`),
	regexp.MustCompile(`youtube\.com/@`),
}

// ExtractVideoID pulls the 11-character video ID out of a YouTube URL.
// Parameters:
//   - url: video URL in any common form (watch, short link, embed, shorts).
//
// Returns:
//   - string: the video ID, or empty when the URL carries none.
func ExtractVideoID(url string) string {
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(url); match != nil {
			return match[1]
		}
	}
	return ""
}

// IsPlaylistURL reports whether a URL points at a playlist, channel, or
// other multi-video listing that flat expansion should unroll.
// Parameters:
//   - url: URL to classify.
//
// Returns:
//   - bool: true for playlist-like URLs.
func IsPlaylistURL(url string) bool {
	for _, pattern := range playlistPatterns {
		if pattern.MatchString(url) {
			return true
		}
	}
	return false
}
