package ytdl

import (
	"fmt"

	"github.com/tobk/ytvault/internal/domain"
)

// AudioFormatSelector builds the yt-dlp format expression for an audio-only
// download at the requested quality tier. Fixed tiers fall back through
// progressively looser selectors so constrained videos still download.
// Parameters:
//   - quality: requested quality tier.
//
// Returns:
//   - string: yt-dlp --format expression.
func AudioFormatSelector(quality domain.Quality) string {
	switch quality {
	case domain.QualityBest:
		return "bestaudio/best"
	case domain.QualityWorst:
		return "worstaudio/worst"
	default:
		if h := quality.Height(); h > 0 {
			return fmt.Sprintf("bestaudio[height<=%d]/bestaudio/best", h)
		}
		return "bestaudio/best"
	}
}

// VideoFormatSelector builds the yt-dlp format expression for a video
// download at the requested quality tier, preferring mp4 containers so the
// merged output stays playable everywhere.
// Parameters:
//   - quality: requested quality tier.
//
// Returns:
//   - string: yt-dlp --format expression.
func VideoFormatSelector(quality domain.Quality) string {
	switch quality {
	case domain.QualityBest:
		return "mp4/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best"
	case domain.QualityWorst:
		return "worst[ext=mp4]/worst"
	default:
		if h := quality.Height(); h > 0 {
			return fmt.Sprintf("best[height<=%d][ext=mp4]/best[height<=%d]/best", h, h)
		}
		return "mp4/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best"
	}
}
